package model

import "license-server/internal/fingerprint"

// IssueRequest asks for a new license bound to the caller's hardware.
type IssueRequest struct {
	ClientName       string                  `json:"client_name" validate:"required,max=200"`
	ClientEmail      string                  `json:"client_email" validate:"required,email"`
	LicenseType      string                  `json:"license_type" validate:"required"`
	HardwareInfo     *fingerprint.Attributes `json:"hardware_info" validate:"required"`
	RequestedModules []string                `json:"requested_modules"`
}

// ValidateRequest checks whether a license may use ModuleName. A nil
// UserCount means one user.
type ValidateRequest struct {
	LicenseKey   string                  `json:"license_key" validate:"required"`
	ModuleName   string                  `json:"module_name" validate:"required"`
	HardwareInfo *fingerprint.Attributes `json:"hardware_info" validate:"required"`
	UserCount    *int                    `json:"user_count" validate:"omitempty,min=0"`
}

// Users returns the requested user count, defaulting to 1.
func (r *ValidateRequest) Users() int {
	if r.UserCount == nil {
		return 1
	}
	return *r.UserCount
}

// ModuleInput creates a catalog module. Empty optional fields get defaults.
type ModuleInput struct {
	Name            string `json:"name" validate:"required,max=100"`
	DisplayName     string `json:"display_name" validate:"required"`
	Description     string `json:"description"`
	Version         string `json:"version"`
	Category        string `json:"category"`
	IsCore          bool   `json:"is_core"`
	MinLicenseLevel string `json:"min_license_level"`
	Author          string `json:"author"`
	LicensePrefix   string `json:"license_prefix" validate:"omitempty,alphanum,max=10"`
}

// ModuleUpdate changes only the fields that are present.
type ModuleUpdate struct {
	Name            *string `json:"name" validate:"omitempty,min=1,max=100"`
	DisplayName     *string `json:"display_name"`
	Description     *string `json:"description"`
	Version         *string `json:"version"`
	Category        *string `json:"category"`
	MinLicenseLevel *string `json:"min_license_level"`
	Author          *string `json:"author"`
	LicensePrefix   *string `json:"license_prefix" validate:"omitempty,alphanum,max=10"`
}

type LicenseTypeInput struct {
	Name         string                 `json:"name" validate:"required,max=64"`
	Description  string                 `json:"description"`
	MaxUsers     int                    `json:"max_users" validate:"min=-1"`
	MaxModules   int                    `json:"max_modules" validate:"min=-1"`
	DurationDays int                    `json:"duration_days" validate:"gt=0"`
	Price        int                    `json:"price" validate:"min=0"`
	Features     map[string]interface{} `json:"features"`
}
