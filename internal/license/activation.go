package license

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/semaphore"

	licerr "cicadagallery/internal/errors"
	"cicadagallery/pkg/contracts/domain"
)

// ActivationRequest is what the user submits on the license screen.
type ActivationRequest struct {
	OrderID string
	Email   string
	Lang    string
}

// ActivationResult is a successful activation.
type ActivationResult struct {
	Record         Record
	ServiceMessage string
}

// AsyncResult is delivered by ActivateAsync.
type AsyncResult struct {
	Result *ActivationResult
	Err    error
}

// Coordinator runs activations: it calls the issuance service, verifies the
// returned license, persists it and flips the gate. At most one activation
// runs at a time.
type Coordinator struct {
	client    IssuanceClient
	store     *Store
	gate      *Gate
	key       ed25519.PublicKey
	productID string
	now       func() time.Time
	metrics   *Metrics

	sem *semaphore.Weighted

	// mu orders commit against Cancel and Deactivate.
	mu         sync.Mutex
	generation uint64
	cancelled  uint64
	cancelFn   context.CancelFunc
}

// CoordinatorOption configures a Coordinator
type CoordinatorOption func(*Coordinator)

// WithClock overrides the clock used for expiry checks.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

// WithMetrics records activation metrics on m.
func WithMetrics(m *Metrics) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = m }
}

// WithProductID overrides the expected product ID.
func WithProductID(productID string) CoordinatorOption {
	return func(c *Coordinator) { c.productID = productID }
}

// NewCoordinator wires the activation pipeline. key is the verification
// key; production callers pass TrustedKey().
func NewCoordinator(client IssuanceClient, store *Store, gate *Gate, key ed25519.PublicKey, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		client:    client,
		store:     store,
		gate:      gate,
		key:       key,
		productID: ProductID,
		now:       time.Now,
		sem:       semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Gate returns the gate this coordinator controls.
func (c *Coordinator) Gate() *Gate {
	return c.gate
}

// InProgress reports whether an activation is running.
func (c *Coordinator) InProgress() bool {
	if !c.sem.TryAcquire(1) {
		return true
	}
	c.sem.Release(1)
	return false
}

// Activate performs one activation attempt. A second call while one is
// running fails immediately with ErrActivationInProgress. Nothing is
// persisted unless the returned license verifies.
func (c *Coordinator) Activate(ctx context.Context, req ActivationRequest) (*ActivationResult, error) {
	if !premiumBuild {
		return nil, licerr.ErrPremiumUnavailable
	}

	req.OrderID = strings.TrimSpace(req.OrderID)
	req.Email = strings.TrimSpace(req.Email)
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	if !c.sem.TryAcquire(1) {
		logInfo(ctx, "activation", "Rejected concurrent activation",
			slog.String("order_id", req.OrderID))
		return nil, licerr.ErrActivationInProgress
	}
	defer c.sem.Release(1)

	attemptCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.cancelFn = cancel
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.generation == gen {
			c.cancelFn = nil
		}
		c.mu.Unlock()
		cancel()
	}()

	start := time.Now()
	var result *ActivationResult
	err := traceActivation(attemptCtx, req.OrderID, func(ctx context.Context) error {
		var err error
		result, err = c.activate(ctx, gen, req)
		return err
	})
	c.metrics.recordActivation(ctx, time.Since(start), err)

	if err != nil {
		level := slog.LevelWarn
		if licerr.ErrorType(err) == "internal" {
			level = slog.LevelError
		}
		logAction(ctx, level, "activation", "Activation failed",
			slog.String("order_id", req.OrderID),
			slog.String("email", MaskEmail(req.Email)),
			slog.String("reason", resultLabel(err)),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)),
		)
		return nil, err
	}

	logInfo(ctx, "activation", "License activated",
		slog.String("order_id", req.OrderID),
		slog.String("email", MaskEmail(req.Email)),
		slog.Duration("duration", time.Since(start)),
	)
	return result, nil
}

func (c *Coordinator) activate(ctx context.Context, gen uint64, req ActivationRequest) (*ActivationResult, error) {
	resp, err := c.client.IssueLicense(ctx, domain.IssueLicenseRequest{
		OrderID: req.OrderID,
		Email:   req.Email,
		Lang:    req.Lang,
	})
	if c.isCancelled(gen) {
		return nil, licerr.ErrActivationCancelled
	}
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &ServiceRejectedError{Message: resp.Error}
	}

	rec, err := Decode(resp.LicenseString)
	if err != nil {
		return nil, err
	}

	now := c.now()
	verr := VerifyAt(rec, c.key, c.productID, now)
	c.metrics.recordVerification(ctx, verr)
	if verr != nil {
		return nil, verr
	}

	state := &ActivationState{
		LicenseString: strings.TrimSpace(resp.LicenseString),
		Record:        rec,
		VerifiedAt:    now.UTC(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled == gen {
		return nil, licerr.ErrActivationCancelled
	}
	if err := c.store.Save(ctx, state.LicenseString); err != nil {
		return nil, fmt.Errorf("persist license: %w", err)
	}
	c.gate.refresh(state)

	return &ActivationResult{Record: rec, ServiceMessage: resp.Message}, nil
}

// ActivateAsync runs Activate on its own goroutine. The channel receives
// exactly one result and is then closed.
func (c *Coordinator) ActivateAsync(ctx context.Context, req ActivationRequest) <-chan AsyncResult {
	out := make(chan AsyncResult, 1)
	go func() {
		defer close(out)
		res, err := c.Activate(ctx, req)
		out <- AsyncResult{Result: res, Err: err}
	}()
	return out
}

// Cancel abandons the running activation, if any. Its result is discarded
// and nothing is persisted. It reports whether an attempt was cancelled.
func (c *Coordinator) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancelFn == nil {
		return false
	}
	c.cancelled = c.generation
	c.cancelFn()
	c.cancelFn = nil
	return true
}

func (c *Coordinator) isCancelled(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled == gen
}

// Deactivate removes the stored license and returns the gate to free.
func (c *Coordinator) Deactivate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Remove(ctx); err != nil {
		return err
	}
	c.gate.refresh(nil)
	logInfo(ctx, "deactivation", "License deactivated")
	return nil
}

var validate = validator.New()

func validateRequest(req ActivationRequest) error {
	err := validate.Struct(domain.IssueLicenseRequest{
		OrderID: req.OrderID,
		Email:   req.Email,
		Lang:    req.Lang,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", licerr.ErrInvalidRequest, err)
	}
	return nil
}

// IsCancelled reports whether err means the attempt was abandoned.
func IsCancelled(err error) bool {
	return errors.Is(err, licerr.ErrActivationCancelled)
}
