//go:build !free

package services

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	licerr "cicadagallery/internal/errors"
	"cicadagallery/internal/license"
	apiv1 "cicadagallery/pkg/contracts/api/v1"
	"cicadagallery/pkg/contracts/domain"
	"cicadagallery/pkg/contracts/events"
)

type serviceFixture struct {
	svc   LicenseService
	store *license.Store
	path  string
}

func newServiceFixture(t *testing.T, expires time.Duration) *serviceFixture {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req domain.IssueLicenseRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.OrderID != "ORD-1001" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(domain.IssueLicenseResponse{Error: "No such order"})
			return
		}
		var exp time.Time
		if expires > 0 {
			exp = time.Now().Add(expires)
		}
		rec := license.NewRecord(license.ProductID, req.OrderID, req.Email, time.Now(), exp)
		rec.Signature = ed25519.Sign(priv, rec.CanonicalClaims())
		_ = json.NewEncoder(w).Encode(domain.IssueLicenseResponse{Success: true, LicenseString: license.Encode(rec)})
	}))
	t.Cleanup(srv.Close)

	path := filepath.Join(t.TempDir(), "license.key")
	store := license.NewStore(path, pub)
	gate := license.NewGate(nil)
	coordinator := license.NewCoordinator(license.NewIssuanceClient(srv.URL, 5*time.Second), store, gate, pub)

	return &serviceFixture{
		svc:   NewLicenseService(coordinator, "en", nil),
		store: store,
		path:  path,
	}
}

func activateRequest() apiv1.ActivateLicenseRequest {
	return apiv1.ActivateLicenseRequest{OrderID: "ORD-1001", Email: "buyer@example.com"}
}

func TestLicenseService_StatusBeforeActivation(t *testing.T) {
	f := newServiceFixture(t, 0)

	status := f.svc.GetStatus(context.Background(), "")
	assert.False(t, status.Premium)
	assert.False(t, status.Activated)
	assert.Equal(t, domain.TierFree, status.Tier)
	assert.Equal(t, "Free", status.TierLabel)
	assert.Equal(t, license.Edition, status.Edition)
	assert.Equal(t, license.FreeMaxVideos, status.Capabilities.MaxVideos)
	assert.Empty(t, status.OrderID)
}

func TestLicenseService_Activate(t *testing.T) {
	f := newServiceFixture(t, 0)
	ctx := context.Background()

	var pushed []*domain.LicenseStatus
	f.svc.OnStatusChange(func(s *domain.LicenseStatus) { pushed = append(pushed, s) })

	res, err := f.svc.Activate(ctx, activateRequest())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "License activated. Premium features are now available.", res.Message)
	assert.True(t, res.Status.Premium)
	assert.Equal(t, domain.TierPremium, res.Status.Tier)
	assert.Equal(t, "ORD-1001", res.Status.OrderID)
	assert.Equal(t, "b****r@example.com", res.Status.Email)
	assert.Equal(t, "Never", res.Status.Expires)
	assert.NotNil(t, res.Status.VerifiedAt)

	require.Len(t, pushed, 1)
	assert.True(t, pushed[0].Premium)
	assert.True(t, f.svc.IsPremium())
}

func TestLicenseService_ActivateLocalized(t *testing.T) {
	f := newServiceFixture(t, 30*24*time.Hour)
	req := activateRequest()
	req.Lang = "ja"

	res, err := f.svc.Activate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "プレミアム版", res.Status.TierLabel)
	assert.NotNil(t, res.Status.ExpiresAt)
	assert.Equal(t, res.Status.ExpiresAt.Format(time.DateOnly), res.Status.Expires)
}

func TestLicenseService_ActivateRejected(t *testing.T) {
	f := newServiceFixture(t, 0)
	req := activateRequest()
	req.OrderID = "ORD-404"

	var got []events.ActivationEvent
	f.svc.OnActivation(func(ev events.ActivationEvent) { got = append(got, ev) })

	_, err := f.svc.Activate(context.Background(), req)
	assert.ErrorIs(t, err, licerr.ErrServiceRejected)
	assert.False(t, f.svc.IsPremium())

	require.Len(t, got, 1)
	assert.False(t, got[0].Success)
	assert.Equal(t, "service_rejected", got[0].ErrorType)
	assert.Equal(t, "Activation was rejected: No such order", got[0].Message)
}

func TestLicenseService_ActivationEventOnSuccess(t *testing.T) {
	f := newServiceFixture(t, 0)

	var got []events.ActivationEvent
	f.svc.OnActivation(func(ev events.ActivationEvent) { got = append(got, ev) })

	_, err := f.svc.Activate(context.Background(), activateRequest())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Success)
	assert.Empty(t, got[0].ErrorType)
}

func TestLicenseService_Deactivate(t *testing.T) {
	f := newServiceFixture(t, 0)
	ctx := context.Background()

	_, err := f.svc.Activate(ctx, activateRequest())
	require.NoError(t, err)

	require.NoError(t, f.svc.Deactivate(ctx))
	status := f.svc.GetStatus(ctx, "en")
	assert.False(t, status.Premium)
	assert.False(t, status.Activated)
}

func TestLicenseService_CancelIdle(t *testing.T) {
	f := newServiceFixture(t, 0)
	assert.False(t, f.svc.Cancel(context.Background()))
	assert.False(t, f.svc.InProgress())
}

func TestStatusToDomain_InvalidLicense(t *testing.T) {
	rec := license.NewRecord(license.ProductID, "ORD-1", "someone@example.com", time.Now(), time.Time{})
	st := license.Status{Activated: true, Reason: licerr.ErrLicenseExpired, Record: &rec}

	out := StatusToDomain(st, "en")
	assert.False(t, out.Premium)
	assert.True(t, out.Activated)
	assert.Equal(t, "This license has expired.", out.Reason)
	assert.Equal(t, "ORD-1", out.OrderID)
}

func TestHealthService(t *testing.T) {
	f := newServiceFixture(t, 0)
	h := NewHealthService(f.path, f.svc, func() int { return 3 }, nil)

	status := h.Health(context.Background())
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, license.Edition, status.Version.Edition)
	assert.Equal(t, 3, status.Services["websocket_clients"])

	assert.NoError(t, h.Ready(context.Background()))
}
