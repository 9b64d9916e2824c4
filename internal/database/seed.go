package database

import (
	"context"
	"time"

	"license-server/internal/config"
	"license-server/internal/model"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultLicenseTypes is the catalog loaded into an empty database.
func DefaultLicenseTypes() []model.LicenseType {
	return []model.LicenseType{
		{
			Name:         "trial",
			Description:  "30 day trial license",
			MaxUsers:     3,
			MaxModules:   2,
			DurationDays: 30,
			Price:        0,
			Features:     datatypes.JSONMap{"support": "email", "updates": true},
		},
		{
			Name:         "standard",
			Description:  "Standard license for small clinics",
			MaxUsers:     10,
			MaxModules:   5,
			DurationDays: 365,
			Price:        299,
			Features:     datatypes.JSONMap{"support": "email", "updates": true, "backup": true},
		},
		{
			Name:         "enterprise",
			Description:  "Enterprise license for hospitals",
			MaxUsers:     50,
			MaxModules:   model.UnlimitedModules,
			DurationDays: 365,
			Price:        999,
			Features:     datatypes.JSONMap{"support": "phone", "updates": true, "backup": true, "priority": true},
		},
		{
			Name:         "unlimited",
			Description:  "Unlimited license for large institutions",
			MaxUsers:     model.UnlimitedUsers,
			MaxModules:   model.UnlimitedModules,
			DurationDays: 365,
			Price:        1999,
			Features:     datatypes.JSONMap{"support": "dedicated", "updates": true, "backup": true, "priority": true, "custom": true},
		},
	}
}

func DefaultModules() []model.FeatureModule {
	modules := []model.FeatureModule{
		{
			Name:            "medical_clinic",
			DisplayName:     "Medical Clinic Base",
			Description:     "Patients, doctors, appointments and medical records",
			Category:        "medical",
			IsCore:          true,
			MinLicenseLevel: "trial",
			LicensePrefix:   "MED",
		},
		{
			Name:            "medical_clinic_dashboard",
			DisplayName:     "Medical Dashboard BI",
			Description:     "Business intelligence dashboard with analytics and reports",
			Category:        "medical",
			MinLicenseLevel: "standard",
			LicensePrefix:   "MED",
		},
	}
	for i := range modules {
		modules[i].ApplyDefaults()
	}
	return modules
}

// Seed loads the default catalog when no license types exist and creates the
// configured admin account when it is missing.
func Seed(ctx context.Context, db *gorm.DB, auth config.AuthConfig, log *zap.Logger) error {
	db = db.WithContext(ctx)
	if err := seedCatalog(db); err != nil {
		return err
	}

	var admins int64
	if err := db.Model(&model.User{}).Where("username = ?", auth.AdminUsername).Count(&admins).Error; err != nil {
		return errors.Wrap(err, "count admin users")
	}
	if admins > 0 {
		return nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(auth.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "hash admin password")
	}
	now := time.Now().UTC()
	admin := &model.User{
		Username:  auth.AdminUsername,
		Password:  string(hashed),
		Email:     auth.AdminEmail,
		Role:      model.RoleAdmin,
		Status:    "active",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.Create(admin).Error; err != nil {
		return errors.Wrap(err, "create admin user")
	}
	log.Info("created default admin account", zap.String("username", admin.Username))
	return nil
}

func seedCatalog(db *gorm.DB) error {
	var count int64
	if err := db.Model(&model.LicenseType{}).Count(&count).Error; err != nil {
		return errors.Wrap(err, "count license types")
	}
	if count > 0 {
		return nil
	}

	return db.Transaction(func(tx *gorm.DB) error {
		types := DefaultLicenseTypes()
		if err := tx.Create(&types).Error; err != nil {
			return errors.Wrap(err, "seed license types")
		}
		modules := DefaultModules()
		if err := tx.Create(&modules).Error; err != nil {
			return errors.Wrap(err, "seed modules")
		}
		return nil
	})
}
