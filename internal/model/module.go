package model

import "time"

// Defaults applied to catalog modules created without these fields.
const (
	DefaultModuleVersion   = "18.0.1.0.0"
	DefaultModuleCategory  = "custom"
	DefaultMinLicenseLevel = "standard"
	DefaultModuleAuthor    = "Pedro Diaz Nicolas"
	DefaultLicensePrefix   = "PDN"
)

// FeatureModule is a licensable feature. Core modules cannot be deleted.
type FeatureModule struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	Name            string    `json:"name" gorm:"size:100;uniqueIndex;not null"`
	DisplayName     string    `json:"display_name" gorm:"not null"`
	Description     string    `json:"description"`
	Version         string    `json:"version" gorm:"size:32"`
	Category        string    `json:"category" gorm:"size:64;index"`
	IsCore          bool      `json:"is_core"`
	MinLicenseLevel string    `json:"min_license_level" gorm:"size:64"`
	Author          string    `json:"author"`
	LicensePrefix   string    `json:"license_prefix" gorm:"size:16"`
	CreatedAt       time.Time `json:"created_at"`
}

func (FeatureModule) TableName() string {
	return "feature_modules"
}

// ApplyDefaults fills empty optional fields.
func (m *FeatureModule) ApplyDefaults() {
	if m.Version == "" {
		m.Version = DefaultModuleVersion
	}
	if m.Category == "" {
		m.Category = DefaultModuleCategory
	}
	if m.MinLicenseLevel == "" {
		m.MinLicenseLevel = DefaultMinLicenseLevel
	}
	if m.Author == "" {
		m.Author = DefaultModuleAuthor
	}
	if m.LicensePrefix == "" {
		m.LicensePrefix = DefaultLicensePrefix
	}
}
