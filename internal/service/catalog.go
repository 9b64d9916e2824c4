package service

import (
	"context"

	"license-server/internal/apperror"
	"license-server/internal/metrics"
	"license-server/internal/model"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	cacheKeyTypes   = "license_types"
	cacheKeyModules = "modules"
)

// Catalog manages license types and feature modules. Listings are served
// from the cache when one is configured and dropped from it on every change.
type Catalog struct {
	store    CatalogStore
	cache    Cache
	log      *zap.Logger
	metrics  *metrics.Metrics
	validate *Validator
}

func NewCatalog(store CatalogStore, cache Cache, m *metrics.Metrics, log *zap.Logger) *Catalog {
	return &Catalog{
		store:    store,
		cache:    cache,
		log:      log.Named("catalog"),
		metrics:  m,
		validate: NewValidator(),
	}
}

func (c *Catalog) LicenseTypes(ctx context.Context) ([]model.LicenseType, error) {
	var out []model.LicenseType
	if c.cached(ctx, cacheKeyTypes, &out) {
		return out, nil
	}
	out, err := c.store.ListLicenseTypes(ctx)
	if err != nil {
		return nil, c.internal(err, "list license types")
	}
	c.fill(ctx, cacheKeyTypes, out)
	return out, nil
}

func (c *Catalog) Modules(ctx context.Context) ([]model.FeatureModule, error) {
	var out []model.FeatureModule
	if c.cached(ctx, cacheKeyModules, &out) {
		return out, nil
	}
	out, err := c.store.ListModules(ctx)
	if err != nil {
		return nil, c.internal(err, "list modules")
	}
	c.fill(ctx, cacheKeyModules, out)
	return out, nil
}

// CreateLicenseType adds a catalog entry. Names are unique.
func (c *Catalog) CreateLicenseType(ctx context.Context, in *model.LicenseTypeInput) (*model.LicenseType, error) {
	if err := c.validate.Struct(in); err != nil {
		return nil, err
	}
	if _, err := c.store.FindLicenseType(ctx, in.Name); err == nil {
		return nil, apperror.Conflict("license type %q already exists", in.Name)
	} else if !errors.Is(err, apperror.ErrNoRecord) {
		return nil, c.internal(err, "find license type")
	}

	features := datatypes.JSONMap(in.Features)
	if features == nil {
		features = datatypes.JSONMap{}
	}
	lt := &model.LicenseType{
		Name:         in.Name,
		Description:  in.Description,
		MaxUsers:     in.MaxUsers,
		MaxModules:   in.MaxModules,
		DurationDays: in.DurationDays,
		Price:        in.Price,
		Features:     features,
	}
	if err := c.store.CreateLicenseType(ctx, lt); err != nil {
		if errors.Is(err, apperror.ErrDuplicate) {
			return nil, apperror.Conflict("license type %q already exists", in.Name)
		}
		return nil, c.internal(err, "create license type")
	}
	c.invalidate(ctx, cacheKeyTypes)
	c.log.Info("license type created", zap.String("name", lt.Name))
	return lt, nil
}

// CreateModule adds a module, filling unset optional fields with defaults.
func (c *Catalog) CreateModule(ctx context.Context, in *model.ModuleInput) (*model.FeatureModule, error) {
	if err := c.validate.Struct(in); err != nil {
		return nil, err
	}
	if _, err := c.store.FindModule(ctx, in.Name); err == nil {
		return nil, apperror.Conflict("module %q already exists", in.Name)
	} else if !errors.Is(err, apperror.ErrNoRecord) {
		return nil, c.internal(err, "find module")
	}

	mod := &model.FeatureModule{
		Name:            in.Name,
		DisplayName:     in.DisplayName,
		Description:     in.Description,
		Version:         in.Version,
		Category:        in.Category,
		IsCore:          in.IsCore,
		MinLicenseLevel: in.MinLicenseLevel,
		Author:          in.Author,
		LicensePrefix:   in.LicensePrefix,
	}
	mod.ApplyDefaults()
	if err := c.store.CreateModule(ctx, mod); err != nil {
		if errors.Is(err, apperror.ErrDuplicate) {
			return nil, apperror.Conflict("module %q already exists", in.Name)
		}
		return nil, c.internal(err, "create module")
	}
	c.invalidate(ctx, cacheKeyModules)
	c.log.Info("module created", zap.String("name", mod.Name))
	return mod, nil
}

// UpdateModule applies the fields present in in.
func (c *Catalog) UpdateModule(ctx context.Context, id uint, in *model.ModuleUpdate) (*model.FeatureModule, error) {
	if err := c.validate.Struct(in); err != nil {
		return nil, err
	}
	mod, err := c.store.GetModule(ctx, id)
	if err != nil {
		return nil, c.notFoundOr(err, "module %d not found", id)
	}

	if in.Name != nil && *in.Name != mod.Name {
		if _, err := c.store.FindModule(ctx, *in.Name); err == nil {
			return nil, apperror.Conflict("module %q already exists", *in.Name)
		} else if !errors.Is(err, apperror.ErrNoRecord) {
			return nil, c.internal(err, "find module")
		}
		mod.Name = *in.Name
	}
	setIf(&mod.DisplayName, in.DisplayName)
	setIf(&mod.Description, in.Description)
	setIf(&mod.Version, in.Version)
	setIf(&mod.Category, in.Category)
	setIf(&mod.MinLicenseLevel, in.MinLicenseLevel)
	setIf(&mod.Author, in.Author)
	setIf(&mod.LicensePrefix, in.LicensePrefix)

	if err := c.store.SaveModule(ctx, mod); err != nil {
		if errors.Is(err, apperror.ErrDuplicate) {
			return nil, apperror.Conflict("module %q already exists", mod.Name)
		}
		return nil, c.internal(err, "save module")
	}
	c.invalidate(ctx, cacheKeyModules)
	c.log.Info("module updated", zap.Uint("id", id), zap.String("name", mod.Name))
	return mod, nil
}

// DeleteModule removes a non-core module.
func (c *Catalog) DeleteModule(ctx context.Context, id uint) (*model.FeatureModule, error) {
	mod, err := c.store.GetModule(ctx, id)
	if err != nil {
		return nil, c.notFoundOr(err, "module %d not found", id)
	}
	if mod.IsCore {
		return nil, apperror.Invalid("core modules cannot be deleted")
	}
	if err := c.store.DeleteModule(ctx, id); err != nil {
		return nil, c.internal(err, "delete module")
	}
	c.invalidate(ctx, cacheKeyModules)
	c.log.Info("module deleted", zap.String("name", mod.Name))
	return mod, nil
}

func (c *Catalog) Categories(ctx context.Context) ([]string, error) {
	cats, err := c.store.ModuleCategories(ctx)
	if err != nil {
		return nil, c.internal(err, "list categories")
	}
	return cats, nil
}

func (c *Catalog) Stats(ctx context.Context) (model.AdminStats, error) {
	st, err := c.store.AdminStats(ctx)
	if err != nil {
		return st, c.internal(err, "admin stats")
	}
	return st, nil
}

func (c *Catalog) cached(ctx context.Context, key string, dst interface{}) bool {
	if c.cache == nil {
		return false
	}
	hit, err := c.cache.Get(ctx, key, dst)
	if err != nil {
		c.log.Warn("catalog cache read", zap.String("key", key), zap.Error(err))
		return false
	}
	if hit {
		c.metrics.RecordCacheHit()
	} else {
		c.metrics.RecordCacheMiss()
	}
	return hit
}

func (c *Catalog) fill(ctx context.Context, key string, v interface{}) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, key, v); err != nil {
		c.log.Warn("catalog cache write", zap.String("key", key), zap.Error(err))
	}
}

func (c *Catalog) invalidate(ctx context.Context, keys ...string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Invalidate(ctx, keys...); err != nil {
		c.log.Warn("catalog cache invalidate", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (c *Catalog) notFoundOr(err error, format string, args ...interface{}) error {
	if errors.Is(err, apperror.ErrNoRecord) {
		return apperror.NotFound(format, args...)
	}
	return c.internal(err, "load record")
}

func (c *Catalog) internal(err error, op string) error {
	c.log.Error(op, zap.Error(err))
	return apperror.Internal(errors.Wrap(err, op))
}

func setIf(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
