package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"license-server/internal/config"
	"license-server/internal/model"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// sheetHeader names the mirrored columns A through L.
var sheetHeader = []interface{}{
	"license_key", "client_name", "client_email", "license_type", "status",
	"issued_date", "expiry_date", "max_users", "current_users",
	"allowed_modules", "validation_count", "last_validation",
}

const sheetLastColumn = "L"

// SheetSyncService mirrors licenses into a Google Sheet, one row per key.
// The database stays the source of truth.
type SheetSyncService struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	log           *zap.Logger
	now           func() time.Time

	mu sync.Mutex
}

// NewSheetSyncService returns nil when syncing is disabled.
func NewSheetSyncService(ctx context.Context, cfg config.SheetsConfig, log *zap.Logger) (*SheetSyncService, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	b, err := os.ReadFile(cfg.CredentialsPath)
	if err != nil {
		return nil, errors.Wrap(err, "read sheets credentials")
	}
	creds, err := google.CredentialsFromJSON(ctx, b, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, errors.Wrap(err, "load sheets credentials")
	}
	return NewSheetSyncServiceWithOptions(ctx, cfg, log, option.WithCredentials(creds))
}

// NewSheetSyncServiceWithOptions builds the client from explicit options and
// checks that the target sheet exists.
func NewSheetSyncServiceWithOptions(ctx context.Context, cfg config.SheetsConfig, log *zap.Logger, opts ...option.ClientOption) (*SheetSyncService, error) {
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create sheets client")
	}
	s := &SheetSyncService{
		service:       srv,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     cfg.SheetName,
		log:           log.Named("sheets"),
		now:           func() time.Time { return time.Now().UTC() },
	}
	if err := s.ensureSheet(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SheetSyncService) ensureSheet(ctx context.Context) error {
	spreadsheet, err := s.service.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return errors.Wrap(err, "get spreadsheet")
	}
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == s.sheetName {
			return nil
		}
	}
	return errors.Errorf("sheet %q not found in spreadsheet", s.sheetName)
}

// SyncLicense updates the row holding lic's key, appending one if absent.
func (s *SheetSyncService) SyncLicense(ctx context.Context, lic *model.License) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A2:A")).Context(ctx).Do()
	if err != nil {
		return errors.Wrap(err, "read sheet keys")
	}

	values := [][]interface{}{licenseRow(lic, s.now())}
	if row := findRow(keys.Values, lic.LicenseKey); row > 0 {
		_, err = s.service.Spreadsheets.Values.Update(
			s.spreadsheetID,
			s.rng(fmt.Sprintf("A%d:%s%d", row, sheetLastColumn, row)),
			&sheets.ValueRange{Values: values},
		).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	} else {
		_, err = s.service.Spreadsheets.Values.Append(
			s.spreadsheetID,
			s.rng("A2:"+sheetLastColumn),
			&sheets.ValueRange{Values: values},
		).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	}
	if err != nil {
		return errors.Wrapf(err, "write sheet row for %s", lic.LicenseKey)
	}
	s.log.Debug("license mirrored", zap.String("license_key", lic.LicenseKey))
	return nil
}

// BatchSyncLicenses rewrites the whole sheet from licenses.
func (s *SheetSyncService) BatchSyncLicenses(ctx context.Context, licenses []model.License) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	values := make([][]interface{}, 0, len(licenses)+1)
	values = append(values, sheetHeader)
	for i := range licenses {
		values = append(values, licenseRow(&licenses[i], now))
	}

	if _, err := s.service.Spreadsheets.Values.Clear(
		s.spreadsheetID, s.rng("A:"+sheetLastColumn), &sheets.ClearValuesRequest{},
	).Context(ctx).Do(); err != nil {
		return errors.Wrap(err, "clear sheet")
	}
	if _, err := s.service.Spreadsheets.Values.Update(
		s.spreadsheetID,
		s.rng(fmt.Sprintf("A1:%s%d", sheetLastColumn, len(values))),
		&sheets.ValueRange{Values: values},
	).ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return errors.Wrap(err, "write sheet")
	}
	s.log.Info("sheet rebuilt", zap.Int("licenses", len(licenses)))
	return nil
}

func (s *SheetSyncService) rng(cells string) string {
	return fmt.Sprintf("'%s'!%s", s.sheetName, cells)
}

// findRow returns the 1-based sheet row of key in a column read from A2, or 0.
func findRow(column [][]interface{}, key string) int {
	for i, row := range column {
		if len(row) > 0 && fmt.Sprint(row[0]) == key {
			return i + 2
		}
	}
	return 0
}

func licenseRow(lic *model.License, now time.Time) []interface{} {
	last := ""
	if lic.LastValidation != nil {
		last = lic.LastValidation.UTC().Format(time.RFC3339)
	}
	return []interface{}{
		lic.LicenseKey,
		lic.ClientName,
		lic.ClientEmail,
		lic.LicenseType,
		lic.Status(now),
		lic.IssuedDate.UTC().Format(time.RFC3339),
		lic.ExpiryDate.UTC().Format(time.RFC3339),
		lic.MaxUsers,
		lic.CurrentUsers,
		strings.Join(lic.AllowedModules, ","),
		lic.ValidationCount,
		last,
	}
}
