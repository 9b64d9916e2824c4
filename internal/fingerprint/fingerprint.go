// Package fingerprint derives a stable machine identity from hardware
// attributes and decides whether two identities belong to the same machine.
//
// Matching is a coarse similarity heuristic, not proof of identity: a match
// means "probably the same machine".
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// MatchThreshold is the minimum position-wise similarity accepted as a match.
const MatchThreshold = 0.85

// Sentinel is recorded in place of a fingerprint when none could be derived.
const Sentinel = "error"

// Attributes identifies a machine. Optional fields may be left empty.
type Attributes struct {
	MACAddress        string `json:"mac_address" validate:"required"`
	ProcessorID       string `json:"processor_id" validate:"required"`
	MotherboardSerial string `json:"motherboard_serial,omitempty"`
	DiskSerial        string `json:"disk_serial,omitempty"`
	OSInfo            string `json:"os_info" validate:"required"`
	Hostname          string `json:"hostname" validate:"required"`
}

// Derive returns the hex SHA-256 of the attributes concatenated, without a
// separator, in the order MAC, processor, motherboard, disk, OS, hostname.
func Derive(a Attributes) string {
	h := sha256.New()
	for _, part := range []string{
		a.MACAddress,
		a.ProcessorID,
		a.MotherboardSerial,
		a.DiskSerial,
		a.OSInfo,
		a.Hostname,
	} {
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Similarity counts positions holding the same character in both strings
// and divides by the length of the longer one.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}

	common := 0
	for i := 0; i < len(ra) && i < len(rb); i++ {
		if ra[i] == rb[i] {
			common++
		}
	}
	return float64(common) / float64(longest)
}

// IsMatch reports whether candidate is accepted for a license bound to stored.
func IsMatch(stored, candidate string) bool {
	if stored == candidate {
		return true
	}
	return Similarity(stored, candidate) >= MatchThreshold
}
