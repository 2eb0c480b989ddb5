package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "cicadagallery/internal/errors"
	"cicadagallery/internal/i18n"
	"cicadagallery/internal/infrastructure"
	"cicadagallery/internal/license"
	"cicadagallery/internal/middleware"
	"cicadagallery/internal/services"
	apiv1 "cicadagallery/pkg/contracts/api/v1"
)

const maxActivateBody = 4 << 10

// LicenseHandler serves the license screen.
type LicenseHandler struct {
	service  services.LicenseService
	errors   *apperrors.ErrorHandler
	validate *validator.Validate
	logger   *slog.Logger
}

// NewLicenseHandler creates a new license handler
func NewLicenseHandler(service services.LicenseService, errHandler *apperrors.ErrorHandler, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service:  service,
		errors:   errHandler,
		validate: validator.New(),
		logger:   logger.With(slog.String("handler", "license")),
	}
}

// Routes returns the /api/license routes.
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/status", h.GetStatus)
	r.Post("/activate", h.Activate)
	r.Post("/cancel", h.Cancel)
	r.Delete("/", h.Deactivate)
	return r
}

// PremiumRoutes returns the /api/premium routes, guarded by the gate.
func (h *LicenseHandler) PremiumRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequirePremium(h.service, h.logger))
	r.Get("/features", h.PremiumFeatures)
	return r
}

// GetStatus handles GET /api/license/status
func (h *LicenseHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.GetStatus(r.Context(), requestLang(r, "")))
}

// Activate handles POST /api/license/activate
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(license.TracerName).Start(r.Context(), "license_handler.activate",
		trace.WithAttributes(attribute.String("component", "license_handler")))
	defer span.End()

	var req apiv1.ActivateLicenseRequest
	if err := render.DecodeJSON(http.MaxBytesReader(w, r.Body, maxActivateBody), &req); err != nil {
		h.errors.HandleError(w, r, apperrors.InvalidRequestWithError(err), "")
		return
	}
	req.OrderID = strings.TrimSpace(req.OrderID)
	req.Email = strings.TrimSpace(req.Email)
	req.Lang = requestLang(r, req.Lang)

	if err := h.validate.Struct(req); err != nil {
		h.errors.HandleError(w, r, apperrors.FromValidator(err), "")
		return
	}

	// The activation outlives the HTTP request; POST /cancel stops it.
	result, err := h.service.Activate(context.WithoutCancel(ctx), req)
	if err != nil {
		span.SetAttributes(attribute.String("error.type", apperrors.ErrorType(err)))
		h.errors.HandleError(w, r, err, license.UserMessage(err, req.Lang))
		return
	}

	h.logger.InfoContext(ctx, "license activated",
		slog.String("order_id", result.Status.OrderID),
		slog.String("trace_id", infrastructure.GetTraceID(ctx)))
	render.JSON(w, r, result)
}

// Cancel handles POST /api/license/cancel
func (h *LicenseHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]bool{"cancelled": h.service.Cancel(r.Context())})
}

// Deactivate handles DELETE /api/license
func (h *LicenseHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.Deactivate(ctx); err != nil {
		h.errors.HandleError(w, r, err, "")
		return
	}

	lang := requestLang(r, "")
	render.JSON(w, r, map[string]interface{}{
		"success": true,
		"message": i18n.T(lang, "deactivated"),
		"status":  h.service.GetStatus(ctx, lang),
	})
}

// PremiumFeatures handles GET /api/premium/features
func (h *LicenseHandler) PremiumFeatures(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.GetStatus(r.Context(), requestLang(r, "")).Capabilities)
}

func requestLang(r *http.Request, lang string) string {
	if lang == "" {
		lang = r.Header.Get("Accept-Language")
	}
	return i18n.Normalize(lang)
}
