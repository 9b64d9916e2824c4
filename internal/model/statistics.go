package model

import "time"

// DashboardStats summarises license state for the admin dashboard.
type DashboardStats struct {
	TotalLicenses        int64 `json:"total_licenses"`
	ActiveLicenses       int64 `json:"active_licenses"`
	ExpiredLicenses      int64 `json:"expired_licenses"`
	RecentValidations24h int64 `json:"recent_validations_24h"`
}

// AdminStats describes the module catalog alongside license counts.
type AdminStats struct {
	TotalModules      int64            `json:"total_modules"`
	TotalLicenses     int64            `json:"total_licenses"`
	ActiveLicenses    int64            `json:"active_licenses"`
	ModulesByCategory map[string]int64 `json:"modules_by_category"`
	CoreModules       int64            `json:"core_modules"`
	CustomModules     int64            `json:"custom_modules"`
	Categories        []string         `json:"categories"`
}

// LicenseInfo is a license plus its validation activity.
type LicenseInfo struct {
	License
	TotalValidations  int64  `json:"total_validations"`
	RecentValidations int64  `json:"recent_validations"`
	DaysRemaining     int    `json:"days_remaining"`
	Status            string `json:"status"`
}

// Purchase is one issued license as shown in the purchase history.
type Purchase struct {
	ID           uint      `json:"id"`
	LicenseKey   string    `json:"license_key"`
	ClientName   string    `json:"client_name"`
	ClientEmail  string    `json:"client_email"`
	LicenseType  string    `json:"license_type"`
	PurchaseDate time.Time `json:"purchase_date"`
	Amount       int       `json:"amount"`
	Modules      []string  `json:"modules"`
	Status       string    `json:"status"`
}

// Page is one page of a listing.
type Page[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

// Normalize clamps page and size into the accepted range.
func Normalize(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}
	if size > 100 {
		size = 100
	}
	return page, size
}

// DailyValidations counts one UTC day of validation results.
type DailyValidations struct {
	Date    string `json:"date"`
	Success int64  `json:"success"`
	Failed  int64  `json:"failed"`
	Error   int64  `json:"error"`
}

// ValidationStatistics summarises validation traffic between two dates.
type ValidationStatistics struct {
	StartDate   string             `json:"start_date"`
	EndDate     string             `json:"end_date"`
	Total       int64              `json:"total"`
	Success     int64              `json:"success"`
	Failed      int64              `json:"failed"`
	Error       int64              `json:"error"`
	ByModule    map[string]int64   `json:"by_module"`
	DailyCounts []DailyValidations `json:"daily"`
}
