package service

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"license-server/internal/apperror"
	"license-server/internal/config"
	"license-server/internal/fingerprint"
	"license-server/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var keyPattern = regexp.MustCompile(`^[A-Z0-9]+-[0-9A-F]{8}-[0-9A-F]{8}-[0-9A-F]{8}$`)

func TestGenerateKey(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		key, err := GenerateKey("PDN")
		require.NoError(t, err)
		assert.Regexp(t, keyPattern, key)
		assert.True(t, len(key) == len("PDN-")+26)
		assert.False(t, seen[key])
		seen[key] = true
	}
}

func TestIssue(t *testing.T) {
	f := newFixture(t)
	lic := f.mustIssue(t, issueReq("trial", hardware("frontdesk"), "medical_clinic", "medical_clinic_dashboard"))

	assert.Regexp(t, `^MED-`, lic.LicenseKey)
	assert.Regexp(t, keyPattern, lic.LicenseKey)
	assert.Equal(t, fingerprint.Derive(*hardware("frontdesk")), lic.HardwareFingerprint)
	assert.Equal(t, []string{"medical_clinic", "medical_clinic_dashboard"}, []string(lic.AllowedModules))
	assert.Equal(t, 3, lic.MaxUsers)
	assert.Equal(t, 0, lic.CurrentUsers)
	assert.EqualValues(t, 0, lic.ValidationCount)
	assert.True(t, lic.IsActive)
	assert.Nil(t, lic.LastValidation)
	assert.True(t, lic.ExpiryDate.Equal(f.clock.Now().AddDate(0, 0, 30)))

	stored, err := f.store.FindLicense(context.Background(), lic.LicenseKey)
	require.NoError(t, err)
	assert.Equal(t, lic.HardwareFingerprint, stored.HardwareFingerprint)
}

func TestIssueDefaultModules(t *testing.T) {
	f := newFixture(t)
	lic := f.mustIssue(t, issueReq("standard", hardware("frontdesk")))

	assert.Equal(t, []string{"medical_clinic"}, []string(lic.AllowedModules))
	assert.Regexp(t, `^PDN-`, lic.LicenseKey)
}

func TestIssuePrecedence(t *testing.T) {
	f := newFixture(t)
	f.mustIssue(t, issueReq("trial", hardware("bound"), "medical_clinic"))

	tests := []struct {
		name    string
		req     *model.IssueRequest
		kind    apperror.Kind
		message string
	}{
		{
			name:    "unknown_type_before_unknown_module",
			req:     issueReq("platinum", hardware("bound"), "nope"),
			kind:    apperror.KindNotFound,
			message: `license type "platinum" not found`,
		},
		{
			name:    "unknown_module_before_conflict",
			req:     issueReq("trial", hardware("bound"), "medical_clinic", "nope"),
			kind:    apperror.KindNotFound,
			message: `module "nope" not found`,
		},
		{
			name:    "unknown_module_last",
			req:     issueReq("trial", hardware("bound"), "medical_clinic", "medical_clinic_dashboard", "medical_clinic_dashboard", "radiology"),
			kind:    apperror.KindNotFound,
			message: `module "radiology" not found`,
		},
		{
			name: "bad_email",
			req: &model.IssueRequest{
				ClientName: "x", ClientEmail: "not-an-email", LicenseType: "trial", HardwareInfo: hardware("a"),
			},
			kind:    apperror.KindInvalid,
			message: "client_email must be a valid email address",
		},
		{
			name:    "missing_hardware",
			req:     issueReq("trial", nil),
			kind:    apperror.KindInvalid,
			message: "hardware_info is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.manager.Issue(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperror.KindOf(err))
			assert.Contains(t, apperror.MessageOf(err), tt.message)
		})
	}
}

func TestIssueConflictBeforeLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.CreateModule(ctx, &model.FeatureModule{Name: "radiology", DisplayName: "Radiology", LicensePrefix: "RAD"}))
	f.mustIssue(t, issueReq("trial", hardware("bound")))

	// Three modules exceed the trial limit, but the hardware conflict wins.
	_, err := f.manager.Issue(ctx, issueReq("trial", hardware("bound"), "medical_clinic", "medical_clinic_dashboard", "radiology"))
	assert.ErrorIs(t, err, apperror.ErrHardwareBound)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))

	_, err = f.manager.Issue(ctx, issueReq("trial", hardware("fresh"), "medical_clinic", "medical_clinic_dashboard", "radiology"))
	assert.Equal(t, apperror.KindLimitExceeded, apperror.KindOf(err))

	lic, err := f.manager.Issue(ctx, issueReq("enterprise", hardware("fresh"), "radiology", "medical_clinic", "medical_clinic_dashboard"))
	require.NoError(t, err)
	assert.Regexp(t, `^RAD-`, lic.LicenseKey)
}

func TestIssueAfterDeactivationRebindsHardware(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.mustIssue(t, issueReq("trial", hardware("pc")))

	_, err := f.manager.Issue(ctx, issueReq("trial", hardware("pc")))
	require.ErrorIs(t, err, apperror.ErrHardwareBound)

	_, err = f.manager.Deactivate(ctx, first.LicenseKey)
	require.NoError(t, err)

	second := f.mustIssue(t, issueReq("trial", hardware("pc")))
	assert.NotEqual(t, first.LicenseKey, second.LicenseKey)
}

func TestIssueConcurrentSameHardware(t *testing.T) {
	f := newFixture(t)
	const workers = 8

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.manager.Issue(context.Background(), issueReq("trial", hardware("race")))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, apperror.ErrHardwareBound):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)
}

func TestIssueRetriesKeyCollision(t *testing.T) {
	calls := 0
	gen := func(prefix string) (string, error) {
		calls++
		if calls <= 2 {
			return prefix + "-AAAAAAAA-AAAAAAAA-AAAAAAAA", nil
		}
		return GenerateKey(prefix)
	}
	f := newFixture(t, WithKeyGenerator(gen))

	first := f.mustIssue(t, issueReq("trial", hardware("one")))
	assert.Equal(t, "PDN-AAAAAAAA-AAAAAAAA-AAAAAAAA", first.LicenseKey)

	second := f.mustIssue(t, issueReq("trial", hardware("two")))
	assert.NotEqual(t, first.LicenseKey, second.LicenseKey)
	assert.Equal(t, 3, calls)
}

func TestIssueGivesUpAfterRepeatedCollisions(t *testing.T) {
	fixed := func(prefix string) (string, error) { return prefix + "-00000000-00000000-00000000", nil }
	f := newFixture(t, WithKeyGenerator(fixed))
	f.mustIssue(t, issueReq("trial", hardware("one")))

	_, err := f.manager.Issue(context.Background(), issueReq("trial", hardware("two")))
	assert.Equal(t, apperror.KindInternal, apperror.KindOf(err))
}

func TestValidateSuccessUpdatesCounters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lic := f.mustIssue(t, issueReq("standard", hardware("pc")))

	out, err := f.manager.Validate(ctx, validateReq(lic.LicenseKey, "medical_clinic", hardware("pc"), intPtr(4)), RequestMeta{IP: "10.0.0.5", UserAgent: "clinic-app/1.0", RequestID: "req-1"})
	require.NoError(t, err)
	assert.True(t, out.Valid)
	assert.Equal(t, model.ResultSuccess, out.Result)
	require.NotNil(t, out.License)
	assert.Equal(t, 4, out.License.CurrentUsers)

	stored, err := f.store.FindLicense(ctx, lic.LicenseKey)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stored.ValidationCount)
	assert.Equal(t, 4, stored.CurrentUsers)
	require.NotNil(t, stored.LastValidation)
	assert.True(t, stored.LastValidation.Equal(f.clock.Now()))

	rows := f.auditRows(t, lic.LicenseKey)
	require.Len(t, rows, 1)
	assert.Equal(t, model.ResultSuccess, rows[0].ValidationResult)
	assert.Equal(t, "10.0.0.5", rows[0].IPAddress)
	assert.Equal(t, "clinic-app/1.0", rows[0].UserAgent)
	assert.Equal(t, "req-1", rows[0].RequestID)
	assert.Equal(t, 4, rows[0].UserCount)
	assert.Equal(t, lic.HardwareFingerprint, rows[0].HardwareFingerprint)
}

func TestValidateDefaultUserCount(t *testing.T) {
	f := newFixture(t)
	lic := f.mustIssue(t, issueReq("trial", hardware("pc")))

	out, err := f.manager.Validate(context.Background(), validateReq(lic.LicenseKey, "medical_clinic", hardware("pc"), nil), RequestMeta{})
	require.NoError(t, err)
	assert.True(t, out.Valid)
	assert.Equal(t, 1, out.License.CurrentUsers)
}

func TestValidateFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lic := f.mustIssue(t, issueReq("trial", hardware("pc"), "medical_clinic"))
	inactive := f.mustIssue(t, issueReq("trial", hardware("old"), "medical_clinic"))
	_, err := f.manager.Deactivate(ctx, inactive.LicenseKey)
	require.NoError(t, err)

	tests := []struct {
		name   string
		req    *model.ValidateRequest
		reason string
		msg    string
	}{
		{name: "unknown_key", req: validateReq("PDN-00000000-00000000-00000000", "medical_clinic", hardware("pc"), nil), reason: ReasonNotFound, msg: "license not found or inactive"},
		{name: "inactive", req: validateReq(inactive.LicenseKey, "medical_clinic", hardware("old"), nil), reason: ReasonNotFound, msg: "license not found or inactive"},
		{name: "hardware", req: validateReq(lic.LicenseKey, "medical_clinic", otherHardware(), nil), reason: ReasonHardware, msg: "hardware does not match the license"},
		{name: "module", req: validateReq(lic.LicenseKey, "medical_clinic_dashboard", hardware("pc"), nil), reason: ReasonModule, msg: `module "medical_clinic_dashboard" is not permitted by this license`},
		{name: "users", req: validateReq(lic.LicenseKey, "medical_clinic", hardware("pc"), intPtr(4)), reason: ReasonUserLimit, msg: "user limit exceeded (3)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := f.manager.Validate(ctx, tt.req, RequestMeta{})
			require.NoError(t, err)
			assert.False(t, out.Valid)
			assert.Equal(t, model.ResultFailed, out.Result)
			assert.Equal(t, tt.reason, out.Reason)
			assert.Equal(t, tt.msg, out.Error)
		})
	}

	stored, err := f.store.FindLicense(ctx, lic.LicenseKey)
	require.NoError(t, err)
	assert.EqualValues(t, 0, stored.ValidationCount)
	assert.Equal(t, 0, stored.CurrentUsers)
}

func TestValidateNearMatchHardware(t *testing.T) {
	f := newFixture(t)
	lic := f.mustIssue(t, issueReq("trial", hardware("pc")))

	// Derived fingerprints of different machines share almost no positions,
	// so a tolerant match only happens for near-identical digests.
	_, err := f.store.UpdateLicense(context.Background(), lic.LicenseKey, func(l *model.License) error {
		fp := []byte(fingerprint.Derive(*hardware("pc")))
		fp[0] ^= 1
		l.HardwareFingerprint = string(fp)
		return nil
	})
	require.NoError(t, err)

	out, err := f.manager.Validate(context.Background(), validateReq(lic.LicenseKey, "medical_clinic", hardware("pc"), nil), RequestMeta{})
	require.NoError(t, err)
	assert.True(t, out.Valid)
}

func TestValidateExpiredBeforeHardware(t *testing.T) {
	f := newFixture(t)
	lic := f.mustIssue(t, issueReq("trial", hardware("pc")))
	f.clock.Advance(31 * 24 * time.Hour)

	out, err := f.manager.Validate(context.Background(), validateReq(lic.LicenseKey, "medical_clinic", otherHardware(), nil), RequestMeta{})
	require.NoError(t, err)
	assert.False(t, out.Valid)
	assert.Equal(t, ReasonExpired, out.Reason)
	assert.Equal(t, "license expired", out.Error)
}

func TestValidateUnlimitedUsers(t *testing.T) {
	f := newFixture(t)
	lic := f.mustIssue(t, issueReq("unlimited", hardware("pc")))

	out, err := f.manager.Validate(context.Background(), validateReq(lic.LicenseKey, "medical_clinic", hardware("pc"), intPtr(10000)), RequestMeta{})
	require.NoError(t, err)
	assert.True(t, out.Valid)
}

func TestValidateMalformedIsAudited(t *testing.T) {
	f := newFixture(t)
	lic := f.mustIssue(t, issueReq("trial", hardware("pc")))

	out, err := f.manager.Validate(context.Background(), validateReq(lic.LicenseKey, "medical_clinic", nil, nil), RequestMeta{IP: "10.0.0.9"})
	require.NoError(t, err)
	assert.False(t, out.Valid)
	assert.True(t, out.Malformed)
	assert.Equal(t, model.ResultError, out.Result)
	assert.Contains(t, out.Error, "hardware_info is required")

	rows := f.auditRows(t, lic.LicenseKey)
	require.Len(t, rows, 1)
	assert.Equal(t, fingerprint.Sentinel, rows[0].HardwareFingerprint)
	assert.Equal(t, model.ResultError, rows[0].ValidationResult)
}

func TestValidateMalformedKeepsRequestFingerprint(t *testing.T) {
	f := newFixture(t)

	out, err := f.manager.Validate(context.Background(), validateReq("", "medical_clinic", hardware("h1"), nil), RequestMeta{})
	require.NoError(t, err)
	assert.True(t, out.Malformed)
	assert.Contains(t, out.Error, "license_key is required")

	rows := f.auditRows(t, "")
	require.Len(t, rows, 1)
	assert.Equal(t, fingerprint.Derive(*hardware("h1")), rows[0].HardwareFingerprint)
	assert.Equal(t, model.ResultError, rows[0].ValidationResult)
}

func TestValidateIncompleteHardwareIsMalformed(t *testing.T) {
	f := newFixture(t)
	lic := f.mustIssue(t, issueReq("trial", hardware("pc")))

	hw := hardware("pc")
	hw.MACAddress = ""
	out, err := f.manager.Validate(context.Background(), validateReq(lic.LicenseKey, "medical_clinic", hw, nil), RequestMeta{})
	require.NoError(t, err)
	assert.False(t, out.Valid)
	assert.True(t, out.Malformed)
	assert.Contains(t, out.Error, "mac_address is required")

	out, err = f.manager.Validate(context.Background(), validateReq(lic.LicenseKey, "medical_clinic", &fingerprint.Attributes{}, nil), RequestMeta{})
	require.NoError(t, err)
	assert.True(t, out.Malformed)

	rows := f.auditRows(t, lic.LicenseKey)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, fingerprint.Sentinel, row.HardwareFingerprint)
		assert.Equal(t, model.ResultError, row.ValidationResult)
	}
}

func TestIssueRejectsIncompleteHardware(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Issue(context.Background(), issueReq("trial", &fingerprint.Attributes{}))
	assert.True(t, apperror.Is(err, apperror.KindInvalid))
}

// deactivatingStore disables the license right after Validate reads it.
type deactivatingStore struct {
	LicenseStore
}

func (s deactivatingStore) FindActiveLicense(ctx context.Context, key string) (*model.License, error) {
	lic, err := s.LicenseStore.FindActiveLicense(ctx, key)
	if err != nil {
		return nil, err
	}
	_, err = s.LicenseStore.UpdateLicense(ctx, key, func(l *model.License) error {
		l.IsActive = false
		return nil
	})
	return lic, err
}

func TestValidateRacingDeactivationFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lic := f.mustIssue(t, issueReq("trial", hardware("pc")))
	manager := NewLicenseManager(deactivatingStore{f.store}, config.Default().License, zap.NewNop(), WithClock(f.clock.Now))

	out, err := manager.Validate(ctx, validateReq(lic.LicenseKey, "medical_clinic", hardware("pc"), nil), RequestMeta{})
	require.NoError(t, err)
	assert.False(t, out.Valid)
	assert.Equal(t, model.ResultFailed, out.Result)
	assert.Equal(t, ReasonNotFound, out.Reason)

	got, err := f.store.FindLicense(ctx, lic.LicenseKey)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Zero(t, got.ValidationCount)

	rows := f.auditRows(t, lic.LicenseKey)
	require.Len(t, rows, 1)
	assert.Equal(t, model.ResultFailed, rows[0].ValidationResult)
}

func TestValidateWatermarkIsMonotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lic := f.mustIssue(t, issueReq("enterprise", hardware("pc")))

	for _, users := range []int{5, 2, 9, 1} {
		out, err := f.manager.Validate(ctx, validateReq(lic.LicenseKey, "medical_clinic", hardware("pc"), intPtr(users)), RequestMeta{})
		require.NoError(t, err)
		require.True(t, out.Valid)
	}

	stored, err := f.store.FindLicense(ctx, lic.LicenseKey)
	require.NoError(t, err)
	assert.Equal(t, 9, stored.CurrentUsers)
	assert.EqualValues(t, 4, stored.ValidationCount)
}

func TestEveryValidationIsAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lic := f.mustIssue(t, issueReq("trial", hardware("pc")))

	reqs := []*model.ValidateRequest{
		validateReq(lic.LicenseKey, "medical_clinic", hardware("pc"), nil),
		validateReq(lic.LicenseKey, "medical_clinic_dashboard", hardware("pc"), nil),
		validateReq(lic.LicenseKey, "medical_clinic", otherHardware(), nil),
		validateReq(lic.LicenseKey, "medical_clinic", nil, nil),
		validateReq(lic.LicenseKey, "medical_clinic", hardware("pc"), intPtr(50)),
	}
	const rounds = 4
	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		for _, r := range reqs {
			wg.Add(1)
			go func(r *model.ValidateRequest) {
				defer wg.Done()
				_, err := f.manager.Validate(ctx, r, RequestMeta{})
				assert.NoError(t, err)
			}(r)
		}
	}
	wg.Wait()

	n, err := f.store.CountValidations(ctx, lic.LicenseKey, time.Time{})
	require.NoError(t, err)
	assert.EqualValues(t, rounds*len(reqs), n)

	stored, err := f.store.FindLicense(ctx, lic.LicenseKey)
	require.NoError(t, err)
	assert.EqualValues(t, rounds, stored.ValidationCount)
}

func TestRenew(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lic := f.mustIssue(t, issueReq("trial", hardware("pc")))

	renewed, err := f.manager.Renew(ctx, lic.LicenseKey, 10)
	require.NoError(t, err)
	assert.True(t, renewed.ExpiryDate.Equal(lic.ExpiryDate.AddDate(0, 0, 10)))

	// From an expired, deactivated baseline the extension starts now.
	_, err = f.manager.Deactivate(ctx, lic.LicenseKey)
	require.NoError(t, err)
	f.clock.Advance(90 * 24 * time.Hour)

	renewed, err = f.manager.Renew(ctx, lic.LicenseKey, 365)
	require.NoError(t, err)
	assert.True(t, renewed.IsActive)
	assert.True(t, renewed.ExpiryDate.Equal(f.clock.Now().AddDate(0, 0, 365)))

	out, err := f.manager.Validate(ctx, validateReq(lic.LicenseKey, "medical_clinic", hardware("pc"), nil), RequestMeta{})
	require.NoError(t, err)
	assert.True(t, out.Valid)
}

func TestRenewRejects(t *testing.T) {
	f := newFixture(t)
	lic := f.mustIssue(t, issueReq("trial", hardware("pc")))

	_, err := f.manager.Renew(context.Background(), lic.LicenseKey, 0)
	assert.Equal(t, apperror.KindInvalid, apperror.KindOf(err))

	_, err = f.manager.Renew(context.Background(), "PDN-MISSING", 30)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestDeactivateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lic := f.mustIssue(t, issueReq("trial", hardware("pc")))

	for i := 0; i < 2; i++ {
		got, err := f.manager.Deactivate(ctx, lic.LicenseKey)
		require.NoError(t, err)
		assert.False(t, got.IsActive)
	}

	_, err := f.manager.Deactivate(ctx, "PDN-MISSING")
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestToggle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lic := f.mustIssue(t, issueReq("trial", hardware("pc")))

	got, err := f.manager.Toggle(ctx, lic.LicenseKey)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	got, err = f.manager.Toggle(ctx, lic.LicenseKey)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
}

func TestBlockModule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lic := f.mustIssue(t, issueReq("trial", hardware("pc"), "medical_clinic", "medical_clinic_dashboard"))

	got, err := f.manager.BlockModule(ctx, lic.LicenseKey, "medical_clinic_dashboard")
	require.NoError(t, err)
	assert.Equal(t, []string{"medical_clinic"}, []string(got.AllowedModules))

	_, err = f.manager.BlockModule(ctx, lic.LicenseKey, "medical_clinic_dashboard")
	require.Error(t, err)
	assert.Equal(t, apperror.KindInvalid, apperror.KindOf(err))
	assert.Equal(t, "module not in this license", apperror.MessageOf(err))

	_, err = f.manager.BlockModule(ctx, "PDN-MISSING", "medical_clinic")
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestTrialScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hw := hardware("reception")

	lic := f.mustIssue(t, issueReq("trial", hw, "medical_clinic", "medical_clinic_dashboard"))

	out, err := f.manager.Validate(ctx, validateReq(lic.LicenseKey, "medical_clinic", hw, nil), RequestMeta{})
	require.NoError(t, err)
	assert.True(t, out.Valid)

	out, err = f.manager.Validate(ctx, validateReq(lic.LicenseKey, "pharmacy", hw, nil), RequestMeta{})
	require.NoError(t, err)
	assert.False(t, out.Valid)
	assert.Equal(t, ReasonModule, out.Reason)

	_, err = f.manager.BlockModule(ctx, lic.LicenseKey, "medical_clinic_dashboard")
	require.NoError(t, err)

	out, err = f.manager.Validate(ctx, validateReq(lic.LicenseKey, "medical_clinic_dashboard", hw, nil), RequestMeta{})
	require.NoError(t, err)
	assert.False(t, out.Valid)
	assert.Equal(t, ReasonModule, out.Reason)

	assert.Len(t, f.auditRows(t, lic.LicenseKey), 3)
}

func TestInfo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lic := f.mustIssue(t, issueReq("trial", hardware("pc")))

	_, err := f.manager.Validate(ctx, validateReq(lic.LicenseKey, "medical_clinic", hardware("pc"), nil), RequestMeta{})
	require.NoError(t, err)
	f.clock.Advance(10 * 24 * time.Hour)
	_, err = f.manager.Validate(ctx, validateReq(lic.LicenseKey, "medical_clinic", hardware("pc"), nil), RequestMeta{})
	require.NoError(t, err)

	info, err := f.manager.Info(ctx, lic.LicenseKey)
	require.NoError(t, err)
	assert.EqualValues(t, 2, info.TotalValidations)
	assert.EqualValues(t, 1, info.RecentValidations)
	assert.Equal(t, 20, info.DaysRemaining)
	assert.Equal(t, model.StatusActive, info.Status)

	f.clock.Advance(30 * 24 * time.Hour)
	info, err = f.manager.Info(ctx, lic.LicenseKey)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInactive, info.Status)
	assert.Equal(t, -10, info.DaysRemaining)

	_, err = f.manager.Info(ctx, "PDN-MISSING")
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestPurchasesAndDashboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mustIssue(t, issueReq("trial", hardware("a")))
	f.clock.Advance(time.Minute)
	std := f.mustIssue(t, issueReq("standard", hardware("b")))

	purchases, err := f.manager.Purchases(ctx)
	require.NoError(t, err)
	require.Len(t, purchases, 2)
	assert.Equal(t, std.LicenseKey, purchases[0].LicenseKey)
	assert.Equal(t, 299, purchases[0].Amount)
	assert.Equal(t, 0, purchases[1].Amount)
	assert.Equal(t, model.StatusActive, purchases[0].Status)

	_, err = f.manager.Validate(ctx, validateReq(std.LicenseKey, "medical_clinic", hardware("b"), nil), RequestMeta{})
	require.NoError(t, err)

	st, err := f.manager.Dashboard(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, st.TotalLicenses)
	assert.EqualValues(t, 2, st.ActiveLicenses)
	assert.EqualValues(t, 0, st.ExpiredLicenses)
	assert.EqualValues(t, 1, st.RecentValidations24h)
}

func TestSyncerMirrorsChanges(t *testing.T) {
	syncer := &recordingSyncer{err: errors.New("sheet offline")}
	f := newFixture(t, WithSyncer(syncer))
	ctx := context.Background()

	lic := f.mustIssue(t, issueReq("trial", hardware("pc")))
	_, err := f.manager.Renew(ctx, lic.LicenseKey, 30)
	require.NoError(t, err)
	_, err = f.manager.Deactivate(ctx, lic.LicenseKey)
	require.NoError(t, err)
	f.manager.Wait()

	assert.Equal(t, []string{lic.LicenseKey, lic.LicenseKey, lic.LicenseKey}, syncer.Keys())
}

func TestValidationStatistics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lic := f.mustIssue(t, issueReq("trial", hardware("pc"), "medical_clinic", "medical_clinic_dashboard"))

	_, err := f.manager.Validate(ctx, validateReq(lic.LicenseKey, "medical_clinic", hardware("pc"), nil), RequestMeta{})
	require.NoError(t, err)
	_, err = f.manager.Validate(ctx, validateReq(lic.LicenseKey, "medical_clinic", otherHardware(), nil), RequestMeta{})
	require.NoError(t, err)
	f.clock.Advance(24 * time.Hour)
	_, err = f.manager.Validate(ctx, validateReq(lic.LicenseKey, "medical_clinic_dashboard", hardware("pc"), nil), RequestMeta{})
	require.NoError(t, err)

	st, err := f.manager.ValidationStatistics(ctx, "2026-03-01", "2026-03-03")
	require.NoError(t, err)
	assert.EqualValues(t, 3, st.Total)
	assert.EqualValues(t, 2, st.Success)
	assert.EqualValues(t, 1, st.Failed)
	assert.EqualValues(t, 2, st.ByModule["medical_clinic"])
	require.Len(t, st.DailyCounts, 3)
	assert.Equal(t, model.DailyValidations{Date: "2026-03-01", Success: 1, Failed: 1}, st.DailyCounts[0])
	assert.Equal(t, model.DailyValidations{Date: "2026-03-02", Success: 1}, st.DailyCounts[1])
	assert.Equal(t, "2026-03-03", st.EndDate)

	// Defaults end today and cover thirty days before it.
	st, err = f.manager.ValidationStatistics(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", st.EndDate)
	assert.Len(t, st.DailyCounts, 31)
	assert.EqualValues(t, 3, st.Total)
}

func TestParseStatsRangeRejects(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, tc := range [][2]string{
		{"03/01/2026", ""},
		{"", "yesterday"},
		{"2026-03-05", "2026-03-01"},
		{"2024-01-01", "2026-01-01"},
	} {
		_, _, err := ParseStatsRange(tc[0], tc[1], now)
		assert.Equal(t, apperror.KindInvalid, apperror.KindOf(err), tc)
	}
}
