package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"license-server/internal/config"
	"license-server/internal/database"
	"license-server/internal/fingerprint"
	"license-server/internal/model"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	store   *database.Store
	manager *LicenseManager
	clock   *clock
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	database.SeedForTest(db)

	store := database.NewStore(db)
	clk := newClock()
	cfg := config.Default().License
	opts = append([]Option{WithClock(clk.Now)}, opts...)
	return &fixture{
		store:   store,
		manager: NewLicenseManager(store, cfg, zap.NewNop(), opts...),
		clock:   clk,
	}
}

func hardware(host string) *fingerprint.Attributes {
	return &fingerprint.Attributes{
		MACAddress:        "00:1A:2B:3C:4D:5E",
		ProcessorID:       "BFEBFBFF000906EA",
		MotherboardSerial: "MB-4411-X",
		DiskSerial:        "WD-WCC4N0123456",
		OSInfo:            "Windows 11 Pro",
		Hostname:          host,
	}
}

// otherHardware shares nothing with hardware() so fingerprints never match.
func otherHardware() *fingerprint.Attributes {
	return &fingerprint.Attributes{
		MACAddress:  "AA:BB:CC:DD:EE:FF",
		ProcessorID: "AMD-7950X",
		OSInfo:      "Ubuntu 24.04",
		Hostname:    "thief",
	}
}

func issueReq(licenseType string, hw *fingerprint.Attributes, modules ...string) *model.IssueRequest {
	return &model.IssueRequest{
		ClientName:       "Clinica Norte",
		ClientEmail:      "it@norte.example",
		LicenseType:      licenseType,
		HardwareInfo:     hw,
		RequestedModules: modules,
	}
}

func validateReq(key, module string, hw *fingerprint.Attributes, users *int) *model.ValidateRequest {
	return &model.ValidateRequest{LicenseKey: key, ModuleName: module, HardwareInfo: hw, UserCount: users}
}

func intPtr(n int) *int { return &n }

func (f *fixture) mustIssue(t *testing.T, req *model.IssueRequest) *model.License {
	t.Helper()
	lic, err := f.manager.Issue(context.Background(), req)
	require.NoError(t, err)
	return lic
}

func (f *fixture) auditRows(t *testing.T, key string) []model.ValidationLog {
	t.Helper()
	logs, _, err := f.store.ListValidations(context.Background(), key, 1, 100)
	require.NoError(t, err)
	return logs
}

// recordingSyncer collects mirrored license keys.
type recordingSyncer struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (s *recordingSyncer) SyncLicense(_ context.Context, lic *model.License) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, lic.LicenseKey)
	return s.err
}

func (s *recordingSyncer) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.keys...)
}
