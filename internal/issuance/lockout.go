package issuance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"cicadagallery/internal/infrastructure"
)

// Lockout blocks clients after repeated failed order lookups, which makes
// guessing order IDs impractical.
type Lockout struct {
	mu          sync.Mutex
	attempts    map[string]int
	lastAttempt map[string]time.Time
	blocked     map[string]time.Time

	maxFailures int
	period      time.Duration
	now         func() time.Time
}

// NewLockout blocks a client for period after maxFailures failures within
// period. A maxFailures of zero disables it.
func NewLockout(maxFailures int, period time.Duration) *Lockout {
	return &Lockout{
		attempts:    make(map[string]int),
		lastAttempt: make(map[string]time.Time),
		blocked:     make(map[string]time.Time),
		maxFailures: maxFailures,
		period:      period,
		now:         time.Now,
	}
}

// IsBlocked reports whether the client is locked out.
func (l *Lockout) IsBlocked(client string) bool {
	if l.maxFailures <= 0 {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if since, ok := l.blocked[client]; ok {
		if l.now().Sub(since) < l.period {
			return true
		}
		delete(l.blocked, client)
	}
	return false
}

// RecordFailure counts a failed lookup and reports whether the client is
// now blocked.
func (l *Lockout) RecordFailure(ctx context.Context, client string) bool {
	if l.maxFailures <= 0 {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if last, ok := l.lastAttempt[client]; ok && now.Sub(last) <= l.period {
		l.attempts[client]++
	} else {
		l.attempts[client] = 1
	}
	l.lastAttempt[client] = now

	if l.attempts[client] < l.maxFailures {
		return false
	}

	l.blocked[client] = now
	delete(l.attempts, client)
	delete(l.lastAttempt, client)

	infrastructure.LoggerWithContext(ctx).WarnContext(ctx, "Client locked out after repeated failed lookups",
		slog.String("action", "security_violation"),
		slog.String("client", client),
		slog.Int("max_failures", l.maxFailures),
		slog.Duration("lockout_period", l.period),
	)
	return true
}

// RecordSuccess clears the client's failure count.
func (l *Lockout) RecordSuccess(client string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, client)
	delete(l.lastAttempt, client)
}

// Stats returns counters for the health endpoint.
func (l *Lockout) Stats() map[string]interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return map[string]interface{}{
		"tracked_clients": len(l.attempts),
		"blocked_clients": len(l.blocked),
		"max_failures":    l.maxFailures,
		"lockout_period":  l.period.String(),
	}
}

// Run removes stale entries every interval until ctx is done.
func (l *Lockout) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-ctx.Done():
			return
		}
	}
}

func (l *Lockout) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for client, last := range l.lastAttempt {
		if now.Sub(last) > l.period {
			delete(l.attempts, client)
			delete(l.lastAttempt, client)
		}
	}
	for client, since := range l.blocked {
		if now.Sub(since) >= l.period {
			delete(l.blocked, client)
		}
	}
}
