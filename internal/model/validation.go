package model

import "time"

// Validation results stored in the audit log.
const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
	ResultError   = "error"
)

// ValidationLog is one append-only audit row per validation attempt.
type ValidationLog struct {
	ID                  uint      `json:"id" gorm:"primaryKey"`
	LicenseKey          string    `json:"license_key" gorm:"size:200;index"`
	ModuleName          string    `json:"module_name" gorm:"size:100"`
	HardwareFingerprint string    `json:"hardware_fingerprint" gorm:"size:128"`
	IPAddress           string    `json:"ip_address" gorm:"size:64"`
	UserAgent           string    `json:"user_agent"`
	ValidationTime      time.Time `json:"validation_time" gorm:"index"`
	UserCount           int       `json:"user_count"`
	ValidationResult    string    `json:"validation_result" gorm:"size:16;index"`
	ErrorMessage        string    `json:"error_message"`
	RequestID           string    `json:"request_id" gorm:"size:64"`
}

func (ValidationLog) TableName() string {
	return "license_validations"
}
