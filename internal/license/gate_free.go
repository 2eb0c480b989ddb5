//go:build free

package license

import (
	"sync"

	licerr "cicadagallery/internal/errors"
)

// Gate is the free edition gate: premium is never available.
type Gate struct {
	mu        sync.Mutex
	listeners []func(Status)
}

// NewGate ignores state; the free edition cannot unlock anything.
func NewGate(state *ActivationState) *Gate {
	return &Gate{}
}

// IsPremium always returns false.
func (g *Gate) IsPremium() bool {
	return false
}

// Capabilities always returns the free tier.
func (g *Gate) Capabilities() Capabilities {
	return FreeCapabilities()
}

// Status reports the free tier with ErrPremiumUnavailable as the reason.
func (g *Gate) Status() Status {
	return Status{Reason: licerr.ErrPremiumUnavailable}
}

// OnChange registers fn. It is never called in the free edition.
func (g *Gate) OnChange(fn func(Status)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, fn)
}

func (g *Gate) refresh(*ActivationState) {}
