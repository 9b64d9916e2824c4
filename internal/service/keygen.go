package service

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

// KeyGenerator returns a fresh license key with the given prefix.
type KeyGenerator func(prefix string) (string, error)

// GenerateKey returns PREFIX-XXXXXXXX-XXXXXXXX-XXXXXXXX where each group is
// four random bytes in uppercase hex.
func GenerateKey(prefix string) (string, error) {
	var buf [12]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", errors.Wrap(err, "read random bytes")
	}
	groups := make([]string, 0, 4)
	groups = append(groups, prefix)
	for i := 0; i < len(buf); i += 4 {
		groups = append(groups, strings.ToUpper(hex.EncodeToString(buf[i:i+4])))
	}
	return strings.Join(groups, "-"), nil
}
