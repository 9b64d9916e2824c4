package service

import (
	"context"
	"time"

	"license-server/internal/model"
)

// LicenseStore persists licenses and their validation audit trail.
type LicenseStore interface {
	FindLicenseType(ctx context.Context, name string) (*model.LicenseType, error)
	ListLicenseTypes(ctx context.Context) ([]model.LicenseType, error)
	FindModule(ctx context.Context, name string) (*model.FeatureModule, error)

	HasActiveFingerprint(ctx context.Context, fp string) (bool, error)
	CreateLicense(ctx context.Context, lic *model.License) error
	FindLicense(ctx context.Context, key string) (*model.License, error)
	FindActiveLicense(ctx context.Context, key string) (*model.License, error)
	ListLicenses(ctx context.Context) ([]model.License, error)
	UpdateLicense(ctx context.Context, key string, fn func(*model.License) error) (*model.License, error)

	RecordSuccess(ctx context.Context, id uint, users int, at time.Time, entry *model.ValidationLog) error
	AppendValidationLog(ctx context.Context, entry *model.ValidationLog) error
	CountValidations(ctx context.Context, key string, since time.Time) (int64, error)
	ListValidations(ctx context.Context, key string, page, size int) ([]model.ValidationLog, int64, error)
	ValidationsBetween(ctx context.Context, start, end time.Time) ([]model.ValidationLog, error)
	Dashboard(ctx context.Context, now time.Time) (model.DashboardStats, error)
}

// CatalogStore persists license types and feature modules.
type CatalogStore interface {
	ListLicenseTypes(ctx context.Context) ([]model.LicenseType, error)
	FindLicenseType(ctx context.Context, name string) (*model.LicenseType, error)
	CreateLicenseType(ctx context.Context, lt *model.LicenseType) error

	ListModules(ctx context.Context) ([]model.FeatureModule, error)
	FindModule(ctx context.Context, name string) (*model.FeatureModule, error)
	GetModule(ctx context.Context, id uint) (*model.FeatureModule, error)
	CreateModule(ctx context.Context, m *model.FeatureModule) error
	SaveModule(ctx context.Context, m *model.FeatureModule) error
	DeleteModule(ctx context.Context, id uint) error
	ModuleCategories(ctx context.Context) ([]string, error)
	AdminStats(ctx context.Context) (model.AdminStats, error)
}

type UserStore interface {
	FindUserByUsername(ctx context.Context, username string) (*model.User, error)
	FindUserByID(ctx context.Context, id uint) (*model.User, error)
	SaveUser(ctx context.Context, u *model.User) error
	AppendLoginLog(ctx context.Context, entry *model.LoginLog) error
	ListLoginLogs(ctx context.Context, userID uint, page, size int) ([]model.LoginLog, int64, error)
}

type OperationStore interface {
	AppendOperationLog(ctx context.Context, entry *model.OperationLog) error
	ListOperationLogs(ctx context.Context, userID uint, page, size int) ([]model.OperationLog, int64, error)
}

// Cache stores catalog listings. Implementations report a miss as false
// with a nil error.
type Cache interface {
	Get(ctx context.Context, key string, dst interface{}) (bool, error)
	Set(ctx context.Context, key string, v interface{}) error
	Invalidate(ctx context.Context, keys ...string) error
}

// LicenseSyncer mirrors license state to an external ledger.
type LicenseSyncer interface {
	SyncLicense(ctx context.Context, lic *model.License) error
}
