package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"license-server/internal/apperror"
	"license-server/internal/config"
	"license-server/internal/fingerprint"
	"license-server/internal/metrics"
	"license-server/internal/model"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// maxKeyAttempts bounds retries when a generated key is already taken.
const maxKeyAttempts = 5

const syncTimeout = 30 * time.Second

// RequestMeta describes the caller of a validation for the audit log.
type RequestMeta struct {
	IP        string
	UserAgent string
	RequestID string
}

// ValidationOutcome is the answer to a validation request. Business
// failures are outcomes with Valid false, never errors.
type ValidationOutcome struct {
	Valid      bool
	Result     string
	Reason     string
	LicenseKey string
	ModuleName string
	Error      string
	Malformed  bool
	License    *model.License
}

// Failure reasons, also used as metric labels.
const (
	ReasonNotFound     = "not_found"
	ReasonExpired      = "expired"
	ReasonHardware     = "hardware_mismatch"
	ReasonModule       = "module_not_permitted"
	ReasonUserLimit    = "user_limit"
	ReasonMalformed    = "malformed"
	ReasonInternal     = "internal"
	internalValidation = "internal server error"
)

// LicenseManager issues licenses and answers validation requests.
type LicenseManager struct {
	store    LicenseStore
	cfg      config.LicenseConfig
	log      *zap.Logger
	metrics  *metrics.Metrics
	syncer   LicenseSyncer
	validate *Validator
	now      func() time.Time
	newKey   KeyGenerator

	// issueMu serializes the check-then-insert of Issue within this process.
	issueMu sync.Mutex
	syncWG  sync.WaitGroup
}

type Option func(*LicenseManager)

func WithMetrics(m *metrics.Metrics) Option {
	return func(lm *LicenseManager) { lm.metrics = m }
}

// WithSyncer mirrors every license change through s in the background.
func WithSyncer(s LicenseSyncer) Option {
	return func(lm *LicenseManager) { lm.syncer = s }
}

func WithClock(now func() time.Time) Option {
	return func(lm *LicenseManager) { lm.now = now }
}

func WithKeyGenerator(g KeyGenerator) Option {
	return func(lm *LicenseManager) { lm.newKey = g }
}

func NewLicenseManager(store LicenseStore, cfg config.LicenseConfig, log *zap.Logger, opts ...Option) *LicenseManager {
	lm := &LicenseManager{
		store:    store,
		cfg:      cfg,
		log:      log.Named("license"),
		validate: NewValidator(),
		now:      func() time.Time { return time.Now().UTC() },
		newKey:   GenerateKey,
	}
	for _, opt := range opts {
		opt(lm)
	}
	if len(lm.cfg.DefaultModules) == 0 {
		lm.cfg.DefaultModules = []string{"medical_clinic"}
	}
	if lm.cfg.KeyPrefix == "" {
		lm.cfg.KeyPrefix = model.DefaultLicensePrefix
	}
	return lm
}

// Issue creates a license for the requested hardware. Checks run in order:
// license type, modules, existing active license on the hardware, module
// count limit.
func (m *LicenseManager) Issue(ctx context.Context, req *model.IssueRequest) (*model.License, error) {
	lic, err := m.issue(ctx, req)
	if err != nil {
		m.metrics.RecordIssueRejected(string(apperror.KindOf(err)))
		return nil, err
	}
	m.metrics.RecordIssued(lic.LicenseType)
	m.log.Info("license issued",
		zap.String("license_key", lic.LicenseKey),
		zap.String("client_name", lic.ClientName),
		zap.String("license_type", lic.LicenseType),
		zap.Strings("modules", lic.AllowedModules),
	)
	m.sync(lic)
	return lic, nil
}

func (m *LicenseManager) issue(ctx context.Context, req *model.IssueRequest) (*model.License, error) {
	if req == nil {
		return nil, apperror.Invalid("invalid request: body is required")
	}
	if err := m.validate.Struct(req); err != nil {
		return nil, err
	}

	m.issueMu.Lock()
	defer m.issueMu.Unlock()

	lt, err := m.store.FindLicenseType(ctx, req.LicenseType)
	if err != nil {
		return nil, m.notFoundOr(err, "license type %q not found", req.LicenseType)
	}

	prefix := m.cfg.KeyPrefix
	requested := dedupe(req.RequestedModules)
	for i, name := range requested {
		mod, err := m.store.FindModule(ctx, name)
		if err != nil {
			return nil, m.notFoundOr(err, "module %q not found", name)
		}
		if i == 0 && mod.LicensePrefix != "" {
			prefix = mod.LicensePrefix
		}
	}

	modules := requested
	if len(modules) == 0 {
		modules = append([]string(nil), m.cfg.DefaultModules...)
	}

	fp := fingerprint.Derive(*req.HardwareInfo)
	bound, err := m.store.HasActiveFingerprint(ctx, fp)
	if err != nil {
		return nil, m.internal(err, "check hardware binding")
	}
	if bound {
		return nil, apperror.ErrHardwareBound
	}

	if !lt.AllowsModuleCount(len(modules)) {
		return nil, apperror.Newf(apperror.KindLimitExceeded,
			"license type %q allows at most %d modules, %d requested", lt.Name, lt.MaxModules, len(modules))
	}

	now := m.now()
	for attempt := 1; attempt <= maxKeyAttempts; attempt++ {
		key, err := m.newKey(prefix)
		if err != nil {
			return nil, m.internal(err, "generate license key")
		}
		lic := &model.License{
			LicenseKey:          key,
			ClientName:          req.ClientName,
			ClientEmail:         req.ClientEmail,
			LicenseType:         lt.Name,
			HardwareFingerprint: fp,
			IssuedDate:          now,
			ExpiryDate:          now.AddDate(0, 0, lt.DurationDays),
			MaxUsers:            lt.MaxUsers,
			CurrentUsers:        0,
			AllowedModules:      modules,
			IsActive:            true,
			CreatedAt:           now,
		}

		err = m.store.CreateLicense(ctx, lic)
		switch {
		case err == nil:
			return lic, nil
		case errors.Is(err, apperror.ErrKeyCollision):
			m.log.Warn("license key collision, retrying", zap.String("license_key", key), zap.Int("attempt", attempt))
			continue
		case errors.Is(err, apperror.ErrHardwareBound):
			return nil, apperror.ErrHardwareBound
		default:
			return nil, m.internal(err, "create license")
		}
	}
	return nil, m.internal(errors.Errorf("no unique key after %d attempts", maxKeyAttempts), "create license")
}

// Validate checks req against the stored license and records exactly one
// audit row. The returned error is non-nil only when that row could not be
// written.
func (m *LicenseManager) Validate(ctx context.Context, req *model.ValidateRequest, meta RequestMeta) (*ValidationOutcome, error) {
	now := m.now()
	if req == nil {
		req = &model.ValidateRequest{}
	}
	entry := &model.ValidationLog{
		LicenseKey:     req.LicenseKey,
		ModuleName:     req.ModuleName,
		IPAddress:      meta.IP,
		UserAgent:      meta.UserAgent,
		ValidationTime: now,
		RequestID:      meta.RequestID,
		UserCount:      req.Users(),
	}
	out := &ValidationOutcome{LicenseKey: req.LicenseKey, ModuleName: req.ModuleName}

	entry.HardwareFingerprint = fingerprint.Sentinel
	if req.HardwareInfo != nil && m.validate.Struct(req.HardwareInfo) == nil {
		entry.HardwareFingerprint = fingerprint.Derive(*req.HardwareInfo)
	}
	if err := m.validate.Struct(req); err != nil {
		out.Malformed = true
		return m.reject(ctx, entry, out, model.ResultError, ReasonMalformed, apperror.MessageOf(err))
	}
	fp := entry.HardwareFingerprint

	lic, err := m.store.FindActiveLicense(ctx, req.LicenseKey)
	if err != nil {
		if errors.Is(err, apperror.ErrNoRecord) {
			return m.reject(ctx, entry, out, model.ResultFailed, ReasonNotFound, "license not found or inactive")
		}
		return m.validationError(ctx, entry, out, err)
	}

	users := req.Users()
	switch {
	case lic.IsExpired(now):
		return m.reject(ctx, entry, out, model.ResultFailed, ReasonExpired, "license expired")
	case !fingerprint.IsMatch(lic.HardwareFingerprint, fp):
		return m.reject(ctx, entry, out, model.ResultFailed, ReasonHardware, "hardware does not match the license")
	case !lic.HasModule(req.ModuleName):
		return m.reject(ctx, entry, out, model.ResultFailed, ReasonModule,
			fmt.Sprintf("module %q is not permitted by this license", req.ModuleName))
	case lic.MaxUsers > 0 && users > lic.MaxUsers:
		return m.reject(ctx, entry, out, model.ResultFailed, ReasonUserLimit,
			fmt.Sprintf("user limit exceeded (%d)", lic.MaxUsers))
	}

	entry.ValidationResult = model.ResultSuccess
	if err := m.store.RecordSuccess(ctx, lic.ID, users, now, entry); err != nil {
		entry.ID = 0
		if errors.Is(err, apperror.ErrNoRecord) {
			return m.reject(ctx, entry, out, model.ResultFailed, ReasonNotFound, "license not found or inactive")
		}
		return m.validationError(ctx, entry, out, err)
	}

	lic.ValidationCount++
	if users > lic.CurrentUsers {
		lic.CurrentUsers = users
	}
	lic.LastValidation = &now

	m.metrics.RecordValidation(model.ResultSuccess, "")
	out.Valid = true
	out.Result = model.ResultSuccess
	out.License = lic
	return out, nil
}

func (m *LicenseManager) reject(ctx context.Context, entry *model.ValidationLog, out *ValidationOutcome, result, reason, msg string) (*ValidationOutcome, error) {
	entry.ValidationResult = result
	entry.ErrorMessage = msg
	if err := m.store.AppendValidationLog(ctx, entry); err != nil {
		m.log.Error("write validation log", zap.Error(err), zap.String("license_key", entry.LicenseKey))
		return nil, apperror.Internal(err)
	}
	m.metrics.RecordValidation(result, reason)
	m.log.Debug("validation rejected",
		zap.String("license_key", entry.LicenseKey),
		zap.String("module", entry.ModuleName),
		zap.String("reason", reason),
	)
	out.Result = result
	out.Reason = reason
	out.Error = msg
	return out, nil
}

// validationError records an unexpected failure. The caller sees a generic
// message; the audit row keeps the cause.
func (m *LicenseManager) validationError(ctx context.Context, entry *model.ValidationLog, out *ValidationOutcome, cause error) (*ValidationOutcome, error) {
	m.log.Error("validate license", zap.Error(cause), zap.String("license_key", entry.LicenseKey))
	out, err := m.reject(ctx, entry, out, model.ResultError, ReasonInternal, cause.Error())
	if err != nil {
		return nil, err
	}
	out.Error = internalValidation
	return out, nil
}

// Renew extends the license by days from the later of now and its current
// expiry, and reactivates it.
func (m *LicenseManager) Renew(ctx context.Context, key string, days int) (*model.License, error) {
	if days <= 0 {
		return nil, apperror.Invalid("renewal_days must be positive")
	}
	lic, err := m.mutate(ctx, key, func(l *model.License) error {
		base := m.now()
		if l.ExpiryDate.After(base) {
			base = l.ExpiryDate
		}
		l.ExpiryDate = base.AddDate(0, 0, days)
		l.IsActive = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("license renewed", zap.String("license_key", key), zap.Time("expiry_date", lic.ExpiryDate), zap.Int("days", days))
	return lic, nil
}

// Deactivate disables the license. Deactivating twice is not an error.
func (m *LicenseManager) Deactivate(ctx context.Context, key string) (*model.License, error) {
	lic, err := m.mutate(ctx, key, func(l *model.License) error {
		l.IsActive = false
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("license deactivated", zap.String("license_key", key))
	return lic, nil
}

// Toggle flips the active flag.
func (m *LicenseManager) Toggle(ctx context.Context, key string) (*model.License, error) {
	lic, err := m.mutate(ctx, key, func(l *model.License) error {
		l.IsActive = !l.IsActive
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("license toggled", zap.String("license_key", key), zap.Bool("is_active", lic.IsActive))
	return lic, nil
}

// BlockModule removes module from the license. A module the license does not
// hold is an error.
func (m *LicenseManager) BlockModule(ctx context.Context, key, module string) (*model.License, error) {
	if module == "" {
		return nil, apperror.Invalid("module_name is required")
	}
	lic, err := m.mutate(ctx, key, func(l *model.License) error {
		if !l.HasModule(module) {
			return apperror.Invalid("module not in this license")
		}
		kept := make([]string, 0, len(l.AllowedModules))
		for _, name := range l.AllowedModules {
			if name != module {
				kept = append(kept, name)
			}
		}
		l.AllowedModules = kept
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("module blocked", zap.String("license_key", key), zap.String("module", module))
	return lic, nil
}

func (m *LicenseManager) mutate(ctx context.Context, key string, fn func(*model.License) error) (*model.License, error) {
	lic, err := m.store.UpdateLicense(ctx, key, fn)
	if err != nil {
		if apperror.KindOf(err) != apperror.KindInternal {
			return nil, m.notFoundOr(err, "license %q not found", key)
		}
		return nil, m.internal(err, "update license")
	}
	m.sync(lic)
	return lic, nil
}

func (m *LicenseManager) Get(ctx context.Context, key string) (*model.License, error) {
	lic, err := m.store.FindLicense(ctx, key)
	if err != nil {
		return nil, m.notFoundOr(err, "license %q not found", key)
	}
	return lic, nil
}

// Info returns the license with its total and last-seven-day validation
// counts.
func (m *LicenseManager) Info(ctx context.Context, key string) (*model.LicenseInfo, error) {
	lic, err := m.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	now := m.now()

	total, err := m.store.CountValidations(ctx, key, time.Time{})
	if err != nil {
		return nil, m.internal(err, "count validations")
	}
	recent, err := m.store.CountValidations(ctx, key, now.AddDate(0, 0, -7))
	if err != nil {
		return nil, m.internal(err, "count recent validations")
	}

	return &model.LicenseInfo{
		License:           *lic,
		TotalValidations:  total,
		RecentValidations: recent,
		DaysRemaining:     lic.DaysRemaining(now),
		Status:            lic.Status(now),
	}, nil
}

// List returns every license, newest first.
func (m *LicenseManager) List(ctx context.Context) ([]model.License, error) {
	out, err := m.store.ListLicenses(ctx)
	if err != nil {
		return nil, m.internal(err, "list licenses")
	}
	return out, nil
}

// Purchases lists issued licenses with the price of their license type.
func (m *LicenseManager) Purchases(ctx context.Context) ([]model.Purchase, error) {
	licenses, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	types, err := m.store.ListLicenseTypes(ctx)
	if err != nil {
		return nil, m.internal(err, "list license types")
	}
	prices := make(map[string]int, len(types))
	for _, lt := range types {
		prices[lt.Name] = lt.Price
	}

	out := make([]model.Purchase, 0, len(licenses))
	for _, l := range licenses {
		status := model.StatusInactive
		if l.IsActive {
			status = model.StatusActive
		}
		out = append(out, model.Purchase{
			ID:           l.ID,
			LicenseKey:   l.LicenseKey,
			ClientName:   l.ClientName,
			ClientEmail:  l.ClientEmail,
			LicenseType:  l.LicenseType,
			PurchaseDate: l.IssuedDate,
			Amount:       prices[l.LicenseType],
			Modules:      append([]string(nil), l.AllowedModules...),
			Status:       status,
		})
	}
	return out, nil
}

func (m *LicenseManager) Dashboard(ctx context.Context) (model.DashboardStats, error) {
	st, err := m.store.Dashboard(ctx, m.now())
	if err != nil {
		return st, m.internal(err, "dashboard stats")
	}
	return st, nil
}

// Validations pages through the audit log, optionally for one license.
func (m *LicenseManager) Validations(ctx context.Context, key string, page, size int) (model.Page[model.ValidationLog], error) {
	page, size = model.Normalize(page, size)
	logs, total, err := m.store.ListValidations(ctx, key, page, size)
	if err != nil {
		return model.Page[model.ValidationLog]{}, m.internal(err, "list validations")
	}
	return model.Page[model.ValidationLog]{Items: logs, Total: total, Page: page, PageSize: size}, nil
}

// RenewalDays is the configured default renewal period.
func (m *LicenseManager) RenewalDays() int {
	if m.cfg.RenewalDays > 0 {
		return m.cfg.RenewalDays
	}
	return 365
}

// Wait blocks until background syncs started so far have finished.
func (m *LicenseManager) Wait() {
	m.syncWG.Wait()
}

func (m *LicenseManager) sync(lic *model.License) {
	if m.syncer == nil {
		return
	}
	snapshot := *lic
	snapshot.AllowedModules = append([]string(nil), lic.AllowedModules...)

	m.syncWG.Add(1)
	go func() {
		defer m.syncWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		defer cancel()
		if err := m.syncer.SyncLicense(ctx, &snapshot); err != nil {
			m.metrics.RecordSyncError()
			m.log.Warn("mirror license", zap.String("license_key", snapshot.LicenseKey), zap.Error(err))
		}
	}()
}

// notFoundOr turns a missing record into a NotFound error with the given
// message; other failures become internal errors.
func (m *LicenseManager) notFoundOr(err error, format string, args ...interface{}) error {
	if errors.Is(err, apperror.ErrNoRecord) {
		return apperror.NotFound(format, args...)
	}
	if apperror.KindOf(err) != apperror.KindInternal {
		return err
	}
	return m.internal(err, "load record")
}

func (m *LicenseManager) internal(err error, op string) error {
	m.log.Error(op, zap.Error(err))
	return apperror.Internal(errors.Wrap(err, op))
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
