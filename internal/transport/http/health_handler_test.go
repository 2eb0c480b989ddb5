package http

import (
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cicadagallery/internal/license"
	"cicadagallery/internal/services"
)

func newHealthRouter(t *testing.T, licenseFile string) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	svc := services.NewHealthService(licenseFile, &fakeLicenseService{premium: true}, func() int { return 3 }, logger)
	h := NewHealthHandler(svc, logger)

	mux := http.NewServeMux()
	mux.Handle("/api/health/", http.StripPrefix("/api/health", h.Routes()))
	mux.HandleFunc("/api/version", h.Version)
	return mux
}

func TestHealthHandler(t *testing.T) {
	router := newHealthRouter(t, filepath.Join(t.TempDir(), "license.key"))

	rec, body := do(t, router, http.MethodGet, "/api/health/", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])

	svcs, ok := body["services"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 3, svcs["websocket_clients"])

	rec, body = do(t, router, http.MethodGet, "/api/version", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, license.Edition, body["edition"])
	assert.Equal(t, "CG1", body["license_format"])
}

func TestHealthHandler_Ready(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	tests := []struct {
		name        string
		licenseFile string
		wantStatus  int
		wantState   string
	}{
		{"writable", filepath.Join(dir, "sub", "license.key"), http.StatusOK, "ready"},
		{"parent is a file", filepath.Join(blocker, "license.key"), http.StatusServiceUnavailable, "not_ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, newHealthRouter(t, tt.licenseFile), http.MethodGet, "/api/health/ready", "", "")
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantState, body["status"])
		})
	}
}
