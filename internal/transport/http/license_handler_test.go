package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "cicadagallery/internal/errors"
	"cicadagallery/internal/license"
	apiv1 "cicadagallery/pkg/contracts/api/v1"
	"cicadagallery/pkg/contracts/domain"
	"cicadagallery/pkg/contracts/events"
)

type fakeLicenseService struct {
	premium     bool
	activateErr error
	lastReq     apiv1.ActivateLicenseRequest
	cancelled   bool
	deactivated bool
}

func (f *fakeLicenseService) GetStatus(ctx context.Context, lang string) *domain.LicenseStatus {
	return &domain.LicenseStatus{
		Premium:      f.premium,
		Tier:         map[bool]string{true: domain.TierPremium, false: domain.TierFree}[f.premium],
		TierLabel:    license.TierLabel(f.premium, lang),
		Capabilities: license.CapabilitiesFor(f.premium),
	}
}

func (f *fakeLicenseService) Activate(ctx context.Context, req apiv1.ActivateLicenseRequest) (*domain.ActivationResult, error) {
	f.lastReq = req
	if f.activateErr != nil {
		return nil, f.activateErr
	}
	f.premium = true
	return &domain.ActivationResult{Success: true, Message: "ok", Status: *f.GetStatus(ctx, req.Lang)}, nil
}

func (f *fakeLicenseService) Cancel(context.Context) bool { return f.cancelled }

func (f *fakeLicenseService) Deactivate(context.Context) error {
	f.deactivated = true
	f.premium = false
	return nil
}

func (f *fakeLicenseService) InProgress() bool                           { return false }
func (f *fakeLicenseService) IsPremium() bool                            { return f.premium }
func (f *fakeLicenseService) OnStatusChange(func(*domain.LicenseStatus)) {}
func (f *fakeLicenseService) OnActivation(func(events.ActivationEvent))   {}

func newTestRouter(svc *fakeLicenseService) http.Handler {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	h := NewLicenseHandler(svc, apperrors.NewErrorHandler(logger, false), logger)
	r := chi.NewRouter()
	r.Mount("/api/license", h.Routes())
	r.Mount("/api/premium", h.PremiumRoutes())
	return r
}

func do(t *testing.T, h http.Handler, method, path, body, lang string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if lang != "" {
		req.Header.Set("Accept-Language", lang)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestLicenseHandler_GetStatus(t *testing.T) {
	router := newTestRouter(&fakeLicenseService{})

	rec, body := do(t, router, http.MethodGet, "/api/license/status", "", "zh-CN")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["premium"])
	assert.Equal(t, license.TierLabel(false, "zh"), body["tier_label"])
}

func TestLicenseHandler_Activate(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		lang       string
		err        error
		wantStatus int
		wantType   string
		wantDetail string
	}{
		{
			name:       "success",
			body:       `{"order_id":" ORD-1 ","email":"a@example.com"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "invalid json",
			body:       `{`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing email",
			body:       `{"order_id":"ORD-1"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "rejected by service",
			body:       `{"order_id":"ORD-1","email":"a@example.com"}`,
			err:        &license.ServiceRejectedError{Message: "Order not found"},
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   "service_rejected",
			wantDetail: "Activation was rejected: Order not found",
		},
		{
			name:       "network",
			body:       `{"order_id":"ORD-1","email":"a@example.com"}`,
			err:        apperrors.ErrNetworkError,
			wantStatus: http.StatusBadGateway,
			wantType:   "network_error",
		},
		{
			name:       "in progress",
			body:       `{"order_id":"ORD-1","email":"a@example.com"}`,
			err:        apperrors.ErrActivationInProgress,
			wantStatus: http.StatusConflict,
			wantType:   "in_progress",
		},
		{
			name:       "signature mismatch in japanese",
			body:       `{"order_id":"ORD-1","email":"a@example.com","lang":"ja"}`,
			err:        apperrors.ErrSignatureMismatch,
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   "signature_mismatch",
			wantDetail: license.UserMessage(apperrors.ErrSignatureMismatch, "ja"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeLicenseService{activateErr: tt.err}
			rec, body := do(t, newTestRouter(svc), http.MethodPost, "/api/license/activate", tt.body, tt.lang)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantType != "" {
				assert.Equal(t, tt.wantType, body["error_type"])
			}
			if tt.wantDetail != "" {
				assert.Equal(t, tt.wantDetail, body["detail"])
			}
			if rec.Code == http.StatusOK {
				assert.Equal(t, "ORD-1", svc.lastReq.OrderID)
				assert.Equal(t, "en", svc.lastReq.Lang)
				assert.Equal(t, true, body["success"])
			}
		})
	}
}

func TestLicenseHandler_CancelAndDeactivate(t *testing.T) {
	svc := &fakeLicenseService{premium: true, cancelled: true}
	router := newTestRouter(svc)

	rec, body := do(t, router, http.MethodPost, "/api/license/cancel", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["cancelled"])

	rec, body = do(t, router, http.MethodDelete, "/api/license/", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.deactivated)
	assert.Equal(t, true, body["success"])
}

func TestLicenseHandler_PremiumFeatures(t *testing.T) {
	tests := []struct {
		name       string
		premium    bool
		wantStatus int
	}{
		{"free", false, http.StatusForbidden},
		{"premium", true, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, newTestRouter(&fakeLicenseService{premium: tt.premium}), http.MethodGet, "/api/premium/features", "", "")
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.premium {
				assert.Equal(t, true, body["gpu_rendering"])
				assert.EqualValues(t, 5, body["max_star_rating"])
			} else {
				assert.Equal(t, "not_activated", body["error_type"])
			}
		})
	}
}
