package app

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"cicadagallery/internal/config"
	apperrors "cicadagallery/internal/errors"
	"cicadagallery/internal/infrastructure"
	"cicadagallery/internal/license"
	customMiddleware "cicadagallery/internal/middleware"
	"cicadagallery/internal/services"
	handlers "cicadagallery/internal/transport/http"
	ws "cicadagallery/internal/websocket"
	"cicadagallery/pkg/contracts"
)

// AppName is reported in logs and telemetry.
const AppName = "CicadaGallery"

// Application is the license backend of the desktop app: the local API the
// frontend talks to, plus the activation pipeline behind it.
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Router        *chi.Mux
	Server        *http.Server

	Store          *license.Store
	Coordinator    *license.Coordinator
	LicenseService services.LicenseService
	HealthService  *services.HealthService
	WebSocketHub   *ws.Hub

	issuance license.IssuanceClient
	key      ed25519.PublicKey
	hubStop  context.CancelFunc
}

// Option customizes New.
type Option func(*Application)

// WithIssuanceClient replaces the HTTP issuance client.
func WithIssuanceClient(c license.IssuanceClient) Option {
	return func(a *Application) { a.issuance = c }
}

// WithVerificationKey replaces the embedded verification key. Only tests
// use it; configuration cannot reach it.
func WithVerificationKey(key ed25519.PublicKey) Option {
	return func(a *Application) { a.key = key }
}

// NewApplication loads configuration, sets up logging and telemetry and
// builds the application.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	providers, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(infrastructure.ServiceName, cfg.Telemetry), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	return New(cfg, logger, providers)
}

// New wires every component from an already loaded configuration.
func New(cfg *config.Config, logger *slog.Logger, providers *infrastructure.OTelProviders, opts ...Option) (*Application, error) {
	a := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: providers,
		key:           license.TrustedKey(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.issuance == nil {
		a.issuance = license.NewIssuanceClient(cfg.License.IssuanceURL, cfg.License.Timeout)
	}

	logger.Info("application starting",
		slog.String("name", AppName),
		slog.String("version", contracts.Version),
		slog.String("edition", license.Edition))

	paths := config.Paths{
		ConfigDir:   cfg.Paths.ConfigDir,
		LicenseFile: cfg.Paths.LicenseFile,
		LogsDir:     cfg.Paths.LogsDir,
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}

	if err := a.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	a.setupRouter()
	a.Server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      a.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return a, nil
}

// initializeServices loads the stored license once and builds the gate,
// the activation pipeline and the services on top of it.
func (a *Application) initializeServices() error {
	ctx := context.Background()

	var metrics *license.Metrics
	var hubMetrics *ws.Metrics
	if a.OTelProviders != nil && a.OTelProviders.Meter != nil {
		var err error
		if metrics, err = license.NewMetrics(a.OTelProviders.Meter); err != nil {
			return fmt.Errorf("failed to create license metrics: %w", err)
		}
		if hubMetrics, err = ws.NewMetrics(a.OTelProviders.Meter); err != nil {
			return fmt.Errorf("failed to create websocket metrics: %w", err)
		}
	}

	a.Store = license.NewStore(a.Config.Paths.LicenseFile, a.key, license.WithStoreMetrics(metrics))
	state, err := a.Store.Load(ctx)
	if err != nil {
		// Unreadable is not fatal: the app runs as the free tier.
		a.Logger.ErrorContext(ctx, "failed to load license",
			slog.String("path", a.Store.Path()),
			slog.String("error", err.Error()))
		state = nil
	}

	gate := license.NewGate(state)
	a.Coordinator = license.NewCoordinator(a.issuance, a.Store, gate, a.key, license.WithMetrics(metrics))
	a.LicenseService = services.NewLicenseService(a.Coordinator, a.Config.License.Lang, a.Logger)

	a.WebSocketHub = ws.NewHub(a.Logger, ws.WithHubMetrics(hubMetrics))
	ws.BindLicenseEvents(a.WebSocketHub, a.LicenseService, a.Config.License.Lang)

	a.HealthService = services.NewHealthService(a.Config.Paths.LicenseFile, a.LicenseService, a.WebSocketHub.ClientCount, a.Logger)

	a.Logger.InfoContext(ctx, "license state loaded",
		slog.Bool("premium", gate.IsPremium()),
		slog.Bool("activated", state != nil))
	return nil
}

// setupRouter configures the local API.
// Middleware order: RequestID, RealIP, OTel, Logger, Recoverer.
func (a *Application) setupRouter() {
	errHandler := apperrors.NewErrorHandler(a.Logger, false)

	r := chi.NewRouter()
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	if a.OTelProviders != nil {
		otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders)
		if err != nil {
			a.Logger.Error("failed to create OpenTelemetry middleware", slog.String("error", err.Error()))
		} else {
			r.Use(otelMiddleware.Handler)
		}
	}
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(errHandler.Recoverer)
	r.Use(customMiddleware.SecurityHeaders)
	r.Use(customMiddleware.CORS(customMiddleware.CORSConfig{
		AllowedOrigins: a.Config.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Accept-Language", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
	r.NotFound(errHandler.NotFound)

	licenseHandler := handlers.NewLicenseHandler(a.LicenseService, errHandler, a.Logger)
	healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)
	wsHandler := ws.NewHandler(a.WebSocketHub, a.Config.WebSocket, a.Config.Server.AllowedOrigins, a.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		licenseRoutes := licenseHandler.Routes()
		licenseRoutes.Handle("/ws", wsHandler)
		r.Mount("/license", licenseRoutes)
		r.Mount("/premium", licenseHandler.PremiumRoutes())
		r.Mount("/health", healthHandler.Routes())
		r.Get("/version", healthHandler.Version)
	})

	if a.OTelProviders != nil && a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
}

// Start runs the websocket hub and the HTTP server in the background.
// cancel is called if the server fails.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	hubCtx, hubStop := context.WithCancel(context.WithoutCancel(ctx))
	a.hubStop = hubStop
	go a.WebSocketHub.Run(hubCtx)

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "application started",
		slog.String("address", a.Server.Addr),
		slog.Bool("premium", a.LicenseService.IsPremium()))
	return nil
}

// Stop shuts down the server, abandons any running activation and flushes
// telemetry.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}

	if a.Coordinator.Cancel() {
		a.Logger.InfoContext(ctx, "activation in progress was cancelled")
	}
	if a.hubStop != nil {
		a.hubStop()
	}
	a.WebSocketHub.Stop()

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "application shutdown complete")
	return errors.Join(errs...)
}

// Run runs the application until SIGINT or SIGTERM.
func (a *Application) Run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	<-ctx.Done()
	a.Logger.Info("received shutdown signal")
	return a.Stop(context.Background())
}
