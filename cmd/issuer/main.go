// Command issuer runs the reference license issuance service: it looks up
// orders and signs a license for each one exactly once.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"cicadagallery/internal/config"
	"cicadagallery/internal/infrastructure"
	"cicadagallery/internal/issuance"
	"cicadagallery/internal/middleware"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Issuer error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer infrastructure.CloseLogFile()

	providers, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom("cicadagallery-issuer", cfg.Telemetry), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	pass, err := passphrase(cfg.Issuer)
	if err != nil {
		return err
	}
	key, err := issuance.LoadSigningKey(cfg.Issuer.SigningKeyFile, pass)
	if err != nil {
		return fmt.Errorf("failed to load signing key: %w", err)
	}
	signer, err := issuance.NewSigner(key, cfg.Issuer.ProductID)
	if err != nil {
		return err
	}

	orders, err := issuance.LoadOrderBook(cfg.Issuer.OrdersFile)
	if err != nil {
		return fmt.Errorf("failed to load orders: %w", err)
	}

	metrics, err := issuance.NewMetrics(providers.Meter)
	if err != nil {
		return fmt.Errorf("failed to create issuer metrics: %w", err)
	}
	httpMW, err := middleware.NewOTelMiddleware(providers)
	if err != nil {
		return fmt.Errorf("failed to create HTTP instrumentation: %w", err)
	}

	server := issuance.NewServer(cfg.Issuer, signer, orders, logger,
		issuance.WithMetrics(metrics),
		issuance.WithTelemetry(httpMW.Handler, providers.PrometheusHTTP),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go server.Lockout().Run(ctx, time.Minute)

	httpServer := &http.Server{
		Addr:         cfg.Issuer.Addr(),
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("issuer listening",
			slog.String("address", httpServer.Addr),
			slog.String("product_id", signer.ProductID()),
			slog.String("public_key", signer.PublicKeyHex()),
			slog.Int("orders", orders.Len()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down issuer")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return providers.Shutdown(shutdownCtx)
}

// passphrase returns the configured passphrase or prompts for it.
func passphrase(cfg config.IssuerConfig) ([]byte, error) {
	if cfg.KeyPassphrase != "" {
		return []byte(cfg.KeyPassphrase), nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("signing key passphrase required: set %s_ISSUER_KEY_PASSPHRASE", config.EnvPrefix)
	}
	fmt.Fprint(os.Stderr, "Signing key passphrase: ")
	pass, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	return pass, nil
}
