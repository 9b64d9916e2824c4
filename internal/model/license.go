package model

import (
	"math"
	"time"

	"gorm.io/datatypes"
)

// License statuses reported by Info.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// UnlimitedUsers and UnlimitedModules mark a limit that is never enforced.
const (
	UnlimitedUsers   = -1
	UnlimitedModules = -1
)

// License is an issued key bound to one machine. HardwareFingerprint never
// changes after creation. CurrentUsers is a high-water mark.
type License struct {
	ID                  uint                        `json:"id" gorm:"primaryKey"`
	LicenseKey          string                      `json:"license_key" gorm:"size:200;uniqueIndex;not null"`
	ClientName          string                      `json:"client_name" gorm:"not null"`
	ClientEmail         string                      `json:"client_email" gorm:"not null"`
	LicenseType         string                      `json:"license_type" gorm:"size:64;not null"`
	HardwareFingerprint string                      `json:"hardware_fingerprint" gorm:"size:128;index;not null"`
	IssuedDate          time.Time                   `json:"issued_date"`
	ExpiryDate          time.Time                   `json:"expiry_date" gorm:"index"`
	MaxUsers            int                         `json:"max_users"`
	CurrentUsers        int                         `json:"current_users"`
	AllowedModules      datatypes.JSONSlice[string] `json:"allowed_modules"`
	IsActive            bool                        `json:"is_active" gorm:"index"`
	LastValidation      *time.Time                  `json:"last_validation"`
	ValidationCount     int64                       `json:"validation_count"`
	CreatedAt           time.Time                   `json:"created_at"`
}

// HasModule reports whether name is among the allowed modules.
func (l *License) HasModule(name string) bool {
	for _, m := range l.AllowedModules {
		if m == name {
			return true
		}
	}
	return false
}

// IsExpired reports whether now is strictly after the expiry date.
func (l *License) IsExpired(now time.Time) bool {
	return now.After(l.ExpiryDate)
}

// DaysRemaining is the whole number of days until expiry, negative once expired.
func (l *License) DaysRemaining(now time.Time) int {
	return int(math.Floor(l.ExpiryDate.Sub(now).Hours() / 24))
}

// Status is active only while the license is both enabled and unexpired.
func (l *License) Status(now time.Time) string {
	if l.IsActive && !l.IsExpired(now) {
		return StatusActive
	}
	return StatusInactive
}

// LicenseType is a catalog entry describing the limits of an issued license.
type LicenseType struct {
	ID           uint              `json:"id" gorm:"primaryKey"`
	Name         string            `json:"name" gorm:"size:64;uniqueIndex;not null"`
	Description  string            `json:"description"`
	MaxUsers     int               `json:"max_users"`
	MaxModules   int               `json:"max_modules"`
	DurationDays int               `json:"duration_days"`
	Price        int               `json:"price"`
	Features     datatypes.JSONMap `json:"features"`
	CreatedAt    time.Time         `json:"created_at"`
}

// AllowsModuleCount reports whether n modules fit the type. Zero or a
// negative limit means unlimited.
func (t *LicenseType) AllowsModuleCount(n int) bool {
	return t.MaxModules <= 0 || n <= t.MaxModules
}
