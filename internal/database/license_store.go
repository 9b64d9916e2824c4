package database

import (
	"context"
	"time"

	"license-server/internal/apperror"
	"license-server/internal/model"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

func (s *Store) FindLicense(ctx context.Context, key string) (*model.License, error) {
	var lic model.License
	err := s.db.WithContext(ctx).Where("license_key = ?", key).First(&lic).Error
	if err != nil {
		return nil, translate(err, "find license")
	}
	return &lic, nil
}

// FindActiveLicense returns the license only while it is enabled.
func (s *Store) FindActiveLicense(ctx context.Context, key string) (*model.License, error) {
	var lic model.License
	err := s.db.WithContext(ctx).
		Where("license_key = ? AND is_active = ?", key, true).
		First(&lic).Error
	if err != nil {
		return nil, translate(err, "find active license")
	}
	return &lic, nil
}

// ListLicenses returns every license, newest first.
func (s *Store) ListLicenses(ctx context.Context) ([]model.License, error) {
	var out []model.License
	err := s.db.WithContext(ctx).Order("issued_date DESC").Order("id DESC").Find(&out).Error
	return out, translate(err, "list licenses")
}

func (s *Store) HasActiveFingerprint(ctx context.Context, fp string) (bool, error) {
	return hasActiveFingerprint(s.db.WithContext(ctx), fp)
}

func hasActiveFingerprint(db *gorm.DB, fp string) (bool, error) {
	var n int64
	err := db.Model(&model.License{}).
		Where("hardware_fingerprint = ? AND is_active = ?", fp, true).
		Count(&n).Error
	if err != nil {
		return false, errors.Wrap(err, "count licenses by fingerprint")
	}
	return n > 0, nil
}

// CreateLicense inserts lic unless an active license already holds its
// fingerprint or its key is taken. The checks and the insert share one
// transaction.
func (s *Store) CreateLicense(ctx context.Context, lic *model.License) error {
	return s.tx(ctx, true, func(tx *gorm.DB) error {
		bound, err := hasActiveFingerprint(tx, lic.HardwareFingerprint)
		if err != nil {
			return err
		}
		if bound {
			return apperror.ErrHardwareBound
		}

		var n int64
		if err := tx.Model(&model.License{}).Where("license_key = ?", lic.LicenseKey).Count(&n).Error; err != nil {
			return errors.Wrap(err, "count licenses by key")
		}
		if n > 0 {
			return apperror.ErrKeyCollision
		}

		if err := tx.Create(lic).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperror.ErrKeyCollision
			}
			return errors.Wrap(err, "insert license")
		}
		return nil
	})
}

// RecordSuccess applies a successful validation to license id and appends
// entry in the same transaction. The counters are updated in SQL so
// concurrent validations never lose an increment and current_users only grows.
// A license deactivated since it was read is not updated and yields
// ErrNoRecord.
func (s *Store) RecordSuccess(ctx context.Context, id uint, users int, at time.Time, entry *model.ValidationLog) error {
	return s.tx(ctx, false, func(tx *gorm.DB) error {
		res := tx.Model(&model.License{}).Where("id = ? AND is_active = ?", id, true).Updates(map[string]interface{}{
			"validation_count": gorm.Expr("validation_count + 1"),
			"current_users":    gorm.Expr("CASE WHEN current_users < ? THEN ? ELSE current_users END", users, users),
			"last_validation":  at,
		})
		if res.Error != nil {
			return errors.Wrap(res.Error, "update license counters")
		}
		if res.RowsAffected == 0 {
			return errors.Wrap(apperror.ErrNoRecord, "update license counters")
		}
		if err := tx.Create(entry).Error; err != nil {
			return errors.Wrap(err, "insert validation log")
		}
		return nil
	})
}

func (s *Store) AppendValidationLog(ctx context.Context, entry *model.ValidationLog) error {
	return errors.Wrap(s.db.WithContext(ctx).Create(entry).Error, "insert validation log")
}

// UpdateLicense loads the license, lets fn change it and saves the result.
// The row is locked for the duration on Postgres. An error from fn aborts
// without writing.
func (s *Store) UpdateLicense(ctx context.Context, key string, fn func(*model.License) error) (*model.License, error) {
	var lic model.License
	err := s.tx(ctx, false, func(tx *gorm.DB) error {
		if err := s.forUpdate(tx).Where("license_key = ?", key).First(&lic).Error; err != nil {
			return translate(err, "load license")
		}
		if err := fn(&lic); err != nil {
			return err
		}
		return errors.Wrap(tx.Save(&lic).Error, "save license")
	})
	if err != nil {
		return nil, err
	}
	return &lic, nil
}

// CountValidations counts audit rows for key at or after since. A zero
// since counts them all.
func (s *Store) CountValidations(ctx context.Context, key string, since time.Time) (int64, error) {
	q := s.db.WithContext(ctx).Model(&model.ValidationLog{}).Where("license_key = ?", key)
	if !since.IsZero() {
		q = q.Where("validation_time >= ?", since)
	}
	var n int64
	err := q.Count(&n).Error
	return n, errors.Wrap(err, "count validations")
}

// ListValidations pages through audit rows, newest first. An empty key lists
// every license.
func (s *Store) ListValidations(ctx context.Context, key string, page, size int) ([]model.ValidationLog, int64, error) {
	q := s.db.WithContext(ctx).Model(&model.ValidationLog{})
	if key != "" {
		q = q.Where("license_key = ?", key)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count validations")
	}

	var logs []model.ValidationLog
	err := q.Order("validation_time DESC").Order("id DESC").Scopes(paginate(page, size)).Find(&logs).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "list validations")
	}
	return logs, total, nil
}

// Dashboard counts licenses and the validations of the last 24 hours.
func (s *Store) Dashboard(ctx context.Context, now time.Time) (model.DashboardStats, error) {
	db := s.db.WithContext(ctx)
	var st model.DashboardStats

	if err := db.Model(&model.License{}).Count(&st.TotalLicenses).Error; err != nil {
		return st, errors.Wrap(err, "count licenses")
	}
	if err := db.Model(&model.License{}).Where("is_active = ?", true).Count(&st.ActiveLicenses).Error; err != nil {
		return st, errors.Wrap(err, "count active licenses")
	}
	if err := db.Model(&model.License{}).Where("expiry_date < ?", now).Count(&st.ExpiredLicenses).Error; err != nil {
		return st, errors.Wrap(err, "count expired licenses")
	}
	err := db.Model(&model.ValidationLog{}).
		Where("validation_time > ?", now.Add(-24*time.Hour)).
		Count(&st.RecentValidations24h).Error
	return st, errors.Wrap(err, "count recent validations")
}

// ValidationsBetween returns the audit rows in [start, end), oldest first,
// with only the columns needed for statistics.
func (s *Store) ValidationsBetween(ctx context.Context, start, end time.Time) ([]model.ValidationLog, error) {
	var logs []model.ValidationLog
	err := s.db.WithContext(ctx).
		Select("id", "module_name", "validation_result", "validation_time").
		Where("validation_time >= ? AND validation_time < ?", start, end).
		Order("validation_time").
		Find(&logs).Error
	return logs, errors.Wrap(err, "list validations by time")
}
