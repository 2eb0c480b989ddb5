package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"cicadagallery/internal/license"
	"cicadagallery/pkg/contracts"
)

// HealthService provides health check functionality
type HealthService struct {
	licenseFile string
	license     LicenseService
	clients     func() int
	startTime   time.Time
	logger      *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   contracts.VersionInfo  `json:"version"`
	Runtime   map[string]interface{} `json:"runtime,omitempty"`
	Services  map[string]interface{} `json:"services,omitempty"`
}

// NewHealthService creates a health service. clients reports connected
// websocket clients and may be nil.
func NewHealthService(licenseFile string, svc LicenseService, clients func() int, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	if clients == nil {
		clients = func() int { return 0 }
	}
	return &HealthService{
		licenseFile: licenseFile,
		license:     svc,
		clients:     clients,
		startTime:   time.Now(),
		logger:      logger.With(slog.String("component", "health_service")),
	}
}

// Health reports liveness with runtime details.
func (h *HealthService) Health(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   contracts.GetVersionInfo(license.Edition),
		Runtime: map[string]interface{}{
			"uptime_seconds": time.Since(h.startTime).Seconds(),
			"goroutines":     runtime.NumGoroutine(),
			"go_version":     runtime.Version(),
			"os":             runtime.GOOS,
			"arch":           runtime.GOARCH,
		},
		Services: map[string]interface{}{
			"license": map[string]interface{}{
				"premium":     h.license.IsPremium(),
				"in_progress": h.license.InProgress(),
			},
			"websocket_clients": h.clients(),
		},
	}
}

// Ready checks that the license directory is writable so an activation
// can be persisted.
func (h *HealthService) Ready(ctx context.Context) error {
	dir := filepath.Dir(h.licenseFile)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("license directory unavailable: %w", err)
	}
	f, err := os.CreateTemp(dir, ".ready-*")
	if err != nil {
		h.logger.WarnContext(ctx, "license directory not writable",
			slog.String("dir", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("license directory not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
