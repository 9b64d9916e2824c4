package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"license-server/internal/config"
	"license-server/internal/database"
	"license-server/internal/fingerprint"
	"license-server/internal/middleware"
	"license-server/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	app   *fiber.App
	store *database.Store
	cfg   *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	cfg := config.Default()
	cfg.Auth.JWTSecret = "handler-test"
	log := zap.NewNop()
	require.NoError(t, database.Seed(context.Background(), db, cfg.Auth, log))

	store := database.NewStore(db)
	licenses := service.NewLicenseManager(store, cfg.License, log)
	catalog := service.NewCatalog(store, nil, nil, log)
	auth := service.NewAuthService(store, cfg.Auth, log)
	h := New(licenses, catalog, auth, service.NewAuditor(store, log), log)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(log)})
	passthrough := func(string) fiber.Handler { return func(c *fiber.Ctx) error { return c.Next() } }
	h.Register(app.Group("/api/v1"), middleware.Auth(auth), passthrough)

	return &testEnv{app: app, store: store, cfg: cfg}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, token string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewBuffer(raw)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/api/v1/auth/login", fiber.Map{
		"username": e.cfg.Auth.AdminUsername,
		"password": e.cfg.Auth.AdminPassword,
	}, "")
	require.Equal(t, fiber.StatusOK, status, body)
	return body["token"].(string)
}

func workstation(host string) fingerprint.Attributes {
	return fingerprint.Attributes{
		MACAddress:  "00:1A:2B:3C:4D:5E",
		ProcessorID: "BFEBFBFF000906EA",
		OSInfo:      "Windows 11 Pro",
		Hostname:    host,
	}
}

func (e *testEnv) issue(t *testing.T, host string, modules ...string) string {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/api/v1/license/request", fiber.Map{
		"client_name":       "Clinica Norte",
		"client_email":      "it@norte.example",
		"license_type":      "trial",
		"hardware_info":     workstation(host),
		"requested_modules": modules,
	}, "")
	require.Equal(t, fiber.StatusOK, status, body)
	return body["license_key"].(string)
}

func validateBody(key, module, host string) fiber.Map {
	return fiber.Map{"license_key": key, "module_name": module, "hardware_info": workstation(host)}
}
