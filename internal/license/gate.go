//go:build !free

package license

import (
	"slices"
	"sync"
)

// Gate answers whether premium features are available. The answer is
// fixed at construction and changes only through the Coordinator.
type Gate struct {
	mu        sync.RWMutex
	state     *ActivationState
	listeners []func(Status)
}

// NewGate creates a gate from the state loaded at startup. A nil state
// means not activated.
func NewGate(state *ActivationState) *Gate {
	return &Gate{state: state}
}

// IsPremium reports whether a verified license is active.
func (g *Gate) IsPremium() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state.Valid()
}

// Capabilities returns the features unlocked for this process.
func (g *Gate) Capabilities() Capabilities {
	return CapabilitiesFor(g.IsPremium())
}

// Status returns a snapshot suitable for display.
func (g *Gate) Status() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return statusFrom(g.state, g.state.Valid())
}

// OnChange registers fn to be called after every change. Callbacks run
// synchronously and must not block.
func (g *Gate) OnChange(fn func(Status)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, fn)
}

func (g *Gate) refresh(state *ActivationState) {
	g.mu.Lock()
	g.state = state
	status := statusFrom(state, state.Valid())
	listeners := slices.Clone(g.listeners)
	g.mu.Unlock()

	for _, fn := range listeners {
		fn(status)
	}
}
