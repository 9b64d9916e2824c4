package database

import (
	"context"
	"sort"

	"license-server/internal/model"

	"github.com/pkg/errors"
)

func (s *Store) ListLicenseTypes(ctx context.Context) ([]model.LicenseType, error) {
	var out []model.LicenseType
	err := s.db.WithContext(ctx).Order("id").Find(&out).Error
	return out, translate(err, "list license types")
}

func (s *Store) FindLicenseType(ctx context.Context, name string) (*model.LicenseType, error) {
	var lt model.LicenseType
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&lt).Error; err != nil {
		return nil, translate(err, "find license type")
	}
	return &lt, nil
}

func (s *Store) CreateLicenseType(ctx context.Context, lt *model.LicenseType) error {
	return translate(s.db.WithContext(ctx).Create(lt).Error, "create license type")
}

func (s *Store) ListModules(ctx context.Context) ([]model.FeatureModule, error) {
	var out []model.FeatureModule
	err := s.db.WithContext(ctx).Order("id").Find(&out).Error
	return out, translate(err, "list modules")
}

func (s *Store) FindModule(ctx context.Context, name string) (*model.FeatureModule, error) {
	var m model.FeatureModule
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&m).Error; err != nil {
		return nil, translate(err, "find module")
	}
	return &m, nil
}

func (s *Store) GetModule(ctx context.Context, id uint) (*model.FeatureModule, error) {
	var m model.FeatureModule
	if err := s.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, translate(err, "get module")
	}
	return &m, nil
}

func (s *Store) CreateModule(ctx context.Context, m *model.FeatureModule) error {
	return translate(s.db.WithContext(ctx).Create(m).Error, "create module")
}

func (s *Store) SaveModule(ctx context.Context, m *model.FeatureModule) error {
	return translate(s.db.WithContext(ctx).Save(m).Error, "save module")
}

func (s *Store) DeleteModule(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&model.FeatureModule{}, id)
	if res.Error != nil {
		return translate(res.Error, "delete module")
	}
	return nil
}

// ModuleCategories returns the distinct non-empty categories, sorted.
func (s *Store) ModuleCategories(ctx context.Context) ([]string, error) {
	var cats []string
	err := s.db.WithContext(ctx).Model(&model.FeatureModule{}).
		Where("category <> ''").
		Distinct().Pluck("category", &cats).Error
	if err != nil {
		return nil, errors.Wrap(err, "list categories")
	}
	sort.Strings(cats)
	return cats, nil
}

type categoryCount struct {
	Category string
	Count    int64
}

// AdminStats summarises the catalog and license counts.
func (s *Store) AdminStats(ctx context.Context) (model.AdminStats, error) {
	db := s.db.WithContext(ctx)
	st := model.AdminStats{ModulesByCategory: map[string]int64{}, Categories: []string{}}

	if err := db.Model(&model.FeatureModule{}).Count(&st.TotalModules).Error; err != nil {
		return st, errors.Wrap(err, "count modules")
	}
	if err := db.Model(&model.FeatureModule{}).Where("is_core = ?", true).Count(&st.CoreModules).Error; err != nil {
		return st, errors.Wrap(err, "count core modules")
	}
	st.CustomModules = st.TotalModules - st.CoreModules

	var rows []categoryCount
	err := db.Model(&model.FeatureModule{}).
		Select("category, COUNT(*) AS count").
		Group("category").
		Scan(&rows).Error
	if err != nil {
		return st, errors.Wrap(err, "count modules by category")
	}
	for _, r := range rows {
		st.ModulesByCategory[r.Category] = r.Count
		st.Categories = append(st.Categories, r.Category)
	}
	sort.Strings(st.Categories)

	if err := db.Model(&model.License{}).Count(&st.TotalLicenses).Error; err != nil {
		return st, errors.Wrap(err, "count licenses")
	}
	if err := db.Model(&model.License{}).Where("is_active = ?", true).Count(&st.ActiveLicenses).Error; err != nil {
		return st, errors.Wrap(err, "count active licenses")
	}
	return st, nil
}
