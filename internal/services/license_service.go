package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	apperrors "cicadagallery/internal/errors"
	"cicadagallery/internal/i18n"
	"cicadagallery/internal/license"
	apiv1 "cicadagallery/pkg/contracts/api/v1"
	"cicadagallery/pkg/contracts/domain"
	"cicadagallery/pkg/contracts/events"
)

// LicenseService is the license screen's backend.
type LicenseService interface {
	GetStatus(ctx context.Context, lang string) *domain.LicenseStatus
	Activate(ctx context.Context, req apiv1.ActivateLicenseRequest) (*domain.ActivationResult, error)
	Cancel(ctx context.Context) bool
	Deactivate(ctx context.Context) error
	InProgress() bool
	IsPremium() bool
	OnStatusChange(fn func(*domain.LicenseStatus))
	OnActivation(fn func(events.ActivationEvent))
}

type licenseService struct {
	coordinator *license.Coordinator
	defaultLang string
	logger      *slog.Logger

	mu          sync.RWMutex
	activations []func(events.ActivationEvent)
}

// NewLicenseService creates the service. defaultLang localizes status
// pushes that have no request language.
func NewLicenseService(coordinator *license.Coordinator, defaultLang string, logger *slog.Logger) LicenseService {
	if logger == nil {
		logger = slog.Default()
	}
	return &licenseService{
		coordinator: coordinator,
		defaultLang: i18n.Normalize(defaultLang),
		logger:      logger.With(slog.String("component", "license_service")),
	}
}

func (s *licenseService) lang(lang string) string {
	if lang == "" {
		return s.defaultLang
	}
	return i18n.Normalize(lang)
}

// GetStatus returns the gate's current state.
func (s *licenseService) GetStatus(ctx context.Context, lang string) *domain.LicenseStatus {
	return StatusToDomain(s.coordinator.Gate().Status(), s.lang(lang))
}

// Activate runs one activation and returns the refreshed status.
func (s *licenseService) Activate(ctx context.Context, req apiv1.ActivateLicenseRequest) (*domain.ActivationResult, error) {
	lang := s.lang(req.Lang)

	_, err := s.coordinator.Activate(ctx, license.ActivationRequest{
		OrderID: req.OrderID,
		Email:   req.Email,
		Lang:    lang,
	})
	s.notifyActivation(err, lang)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "license activated via API", slog.String("lang", lang))
	return &domain.ActivationResult{
		Success: true,
		Message: license.UserMessage(nil, lang),
		Status:  *s.GetStatus(ctx, lang),
	}, nil
}

// Cancel abandons the running activation.
func (s *licenseService) Cancel(ctx context.Context) bool {
	cancelled := s.coordinator.Cancel()
	s.logger.InfoContext(ctx, "activation cancel requested", slog.Bool("cancelled", cancelled))
	return cancelled
}

// Deactivate removes the license from this machine.
func (s *licenseService) Deactivate(ctx context.Context) error {
	return s.coordinator.Deactivate(ctx)
}

func (s *licenseService) InProgress() bool {
	return s.coordinator.InProgress()
}

func (s *licenseService) IsPremium() bool {
	return s.coordinator.Gate().IsPremium()
}

// OnStatusChange forwards gate changes, localized in the default language.
func (s *licenseService) OnStatusChange(fn func(*domain.LicenseStatus)) {
	s.coordinator.Gate().OnChange(func(st license.Status) {
		fn(StatusToDomain(st, s.defaultLang))
	})
}

// OnActivation registers fn to hear the outcome of every activation attempt.
func (s *licenseService) OnActivation(fn func(events.ActivationEvent)) {
	s.mu.Lock()
	s.activations = append(s.activations, fn)
	s.mu.Unlock()
}

func (s *licenseService) notifyActivation(err error, lang string) {
	ev := events.ActivationEvent{Success: err == nil, Message: license.UserMessage(err, lang)}
	if err != nil {
		ev.ErrorType = apperrors.ErrorType(err)
	}

	s.mu.RLock()
	listeners := append([]func(events.ActivationEvent){}, s.activations...)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

// StatusToDomain shapes a gate status for the frontend.
func StatusToDomain(st license.Status, lang string) *domain.LicenseStatus {
	out := &domain.LicenseStatus{
		Premium:      st.Premium,
		Tier:         domain.TierFree,
		TierLabel:    license.TierLabel(st.Premium, lang),
		Edition:      license.Edition,
		Activated:    st.Activated,
		Capabilities: st.Capabilities(),
	}
	if st.Premium {
		out.Tier = domain.TierPremium
	}
	if st.Reason != nil {
		out.Reason = license.UserMessage(st.Reason, lang)
	}
	if !st.VerifiedAt.IsZero() {
		verified := st.VerifiedAt
		out.VerifiedAt = &verified
	}

	if rec := st.Record; rec != nil {
		out.OrderID = rec.OrderID
		out.Email = license.MaskEmail(rec.Email)
		issued := rec.IssuedAt
		out.IssuedAt = &issued
		if rec.ExpiresAt != nil {
			expires := *rec.ExpiresAt
			out.ExpiresAt = &expires
			out.Expires = expires.Format(time.DateOnly)
		} else {
			out.Expires = i18n.T(lang, "never_expires")
		}
	}
	return out
}
