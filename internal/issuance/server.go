package issuance

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"cicadagallery/internal/config"
	apperrors "cicadagallery/internal/errors"
	"cicadagallery/internal/i18n"
	"cicadagallery/internal/infrastructure"
	"cicadagallery/internal/license"
	"cicadagallery/internal/middleware"
	"cicadagallery/pkg/contracts"
	"cicadagallery/pkg/contracts/domain"
)

const maxRequestBody = 4 << 10

// Server answers issue requests from desktop installations.
type Server struct {
	signer      *Signer
	orders      *OrderBook
	lockout     *Lockout
	limiter     *middleware.ClientRateLimiter
	metrics     *Metrics
	logger      *slog.Logger
	errors      *apperrors.ErrorHandler
	httpMetrics func(http.Handler) http.Handler
	promHandler http.Handler
	validate    *validator.Validate
	now         func() time.Time
	started     time.Time
}

// Option configures a Server
type Option func(*Server)

// WithClock overrides the issue timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithMetrics records issuer metrics on m.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithTelemetry mounts the HTTP instrumentation middleware and the
// Prometheus scrape handler.
func WithTelemetry(mw func(http.Handler) http.Handler, prom http.Handler) Option {
	return func(s *Server) {
		s.httpMetrics = mw
		s.promHandler = prom
	}
}

// NewServer creates the issuer. cfg supplies the rate limit and lockout
// settings.
func NewServer(cfg config.IssuerConfig, signer *Signer, orders *OrderBook, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		signer:   signer,
		orders:   orders,
		lockout:  NewLockout(cfg.MaxFailures, cfg.LockoutPeriod),
		logger:   logger.With(slog.String("component", "issuer")),
		errors:   apperrors.NewErrorHandler(logger, false),
		validate: validator.New(),
		now:      time.Now,
		started:  time.Now(),
	}
	if cfg.RateLimit.Enabled {
		s.limiter = middleware.NewClientRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, s.logger)
		s.limiter.OnLimited = func(w http.ResponseWriter, r *http.Request) {
			s.reject(w, r, requestLang("", r), apperrors.ErrRateLimited)
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Lockout exposes the failed-lookup tracker so callers can run its sweeper.
func (s *Server) Lockout() *Lockout {
	return s.lockout
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if s.httpMetrics != nil {
		r.Use(s.httpMetrics)
	}
	r.Use(middleware.StructuredLogger(s.logger))
	r.Use(s.errors.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.NotFound(s.errors.NotFound)

	r.Get("/healthz", s.handleHealth)
	if s.promHandler != nil {
		r.Handle("/metrics", s.promHandler)
	}

	issue := r.With()
	if s.limiter != nil {
		issue = r.With(s.limiter.Handler)
	}
	issue.Post(license.IssuePath, s.handleIssue)

	return r
}

func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	client := middleware.ClientIP(r)

	var req domain.IssueLicenseRequest
	if err := render.DecodeJSON(http.MaxBytesReader(w, r.Body, maxRequestBody), &req); err != nil {
		s.metrics.recordRequest(ctx, "invalid_request")
		s.reject(w, r, requestLang("", r), apperrors.ErrInvalidRequest)
		return
	}
	req.OrderID = strings.TrimSpace(req.OrderID)
	req.Email = strings.TrimSpace(req.Email)
	lang := requestLang(req.Lang, r)

	if err := s.validate.Struct(req); err != nil {
		s.metrics.recordRequest(ctx, "invalid_request")
		s.reject(w, r, lang, apperrors.ErrInvalidRequest)
		return
	}

	if s.lockout.IsBlocked(client) {
		s.metrics.recordRequest(ctx, "locked_out")
		s.reject(w, r, lang, apperrors.ErrRateLimited)
		return
	}

	now := s.now()
	licenseString, err := s.orders.Issue(req.OrderID, req.Email, now, func(o Order) (string, error) {
		str, _, err := s.signer.Sign(o.OrderID, o.Email, now, o.Expiry(now))
		return str, err
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrOrderNotFound) || errors.Is(err, apperrors.ErrOrderEmailMismatch) {
			if s.lockout.RecordFailure(ctx, client) {
				s.metrics.recordLockout(ctx)
			}
		}
		s.metrics.recordRequest(ctx, apperrors.ErrorType(err))
		s.logger.WarnContext(ctx, "License not issued",
			slog.String("order_id", req.OrderID),
			slog.String("email", license.MaskEmail(req.Email)),
			slog.String("reason", apperrors.ErrorType(err)),
			slog.String("client", client),
		)
		s.reject(w, r, lang, err)
		return
	}

	s.lockout.RecordSuccess(client)
	s.metrics.recordRequest(ctx, "issued")
	s.logger.InfoContext(ctx, "License issued",
		slog.String("order_id", req.OrderID),
		slog.String("email", license.MaskEmail(req.Email)),
		slog.String("license_hash", license.HashLicense(licenseString)),
	)

	render.JSON(w, r, domain.IssueLicenseResponse{
		Success:       true,
		LicenseString: licenseString,
		Message:       i18n.T(lang, "activation_success"),
	})
}

var rejectionMessages = map[string]string{
	"order_not_found": "order_not_found",
	"already_issued":  "order_already_issued",
	"rate_limited":    "rate_limited",
	"invalid_request": "invalid_request",
}

// reject answers with the issue response shape the desktop client
// expects, carrying a localized reason.
func (s *Server) reject(w http.ResponseWriter, r *http.Request, lang string, err error) {
	errType := apperrors.ErrorType(err)
	msgID, ok := rejectionMessages[errType]
	if !ok {
		msgID = "err_internal"
		s.logger.ErrorContext(r.Context(), "Issue request failed",
			slog.String("error", err.Error()))
	}

	status := apperrors.MapLicenseError(err, "", "", "").Status
	render.Status(r, status)
	render.JSON(w, r, domain.IssueLicenseResponse{
		Success: false,
		Error:   i18n.T(lang, msgID),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"status":     "ok",
		"version":    contracts.Version,
		"product_id": s.signer.ProductID(),
		"public_key": s.signer.PublicKeyHex(),
		"orders":     s.orders.Len(),
		"uptime":     time.Since(s.started).Round(time.Second).String(),
		"lockout":    s.lockout.Stats(),
		"trace_id":   infrastructure.GetTraceID(r.Context()),
	})
}

func requestLang(lang string, r *http.Request) string {
	if lang == "" {
		lang = r.Header.Get("Accept-Language")
	}
	return i18n.Normalize(lang)
}
