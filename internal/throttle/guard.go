package throttle

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/recall/internal/domain"
	"github.com/kailas-cloud/recall/internal/metrics"
)

// Guard admits callers into per-key throttle slots. The registry is resolved
// through the injected indirection on every Enter, never cached across calls,
// so a hot-reloaded registry takes effect transparently.
type Guard struct {
	resolve  func() *Registry
	logger   *zap.Logger
	lastSeen atomic.Pointer[Registry]
}

// NewGuard creates a guard bound to a registry resolver.
func NewGuard(resolve func() *Registry, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{resolve: resolve, logger: logger}
}

// Enter acquires a throttle slot for key, blocking up to the configured
// acquire timeout. It returns a release function and the absolute deadline
// derived from the latency budget (zero time when unbounded).
//
// The release function is idempotent and must be called on every exit path;
// callers defer it immediately after a successful Enter.
func (g *Guard) Enter(ctx context.Context, key string, s Settings) (func(), time.Time, error) {
	s = s.withDefaults()

	reg := g.observeRegistry()
	sl := reg.slotFor(key, s.Parallelism)

	acquireTimeout := time.Duration(s.AcquireTimeoutMs) * time.Millisecond
	timer := time.NewTimer(acquireTimeout)
	defer timer.Stop()

	waitStart := time.Now()
	select {
	case sl.sem <- struct{}{}:
		metrics.ThrottleWaitDuration.Observe(time.Since(waitStart).Seconds())
	case <-ctx.Done():
		return nil, time.Time{}, fmt.Errorf("acquire throttle slot %q: %w", key, ctx.Err())
	case <-timer.C:
		metrics.ThrottleTimeoutsTotal.Inc()
		return nil, time.Time{}, fmt.Errorf("%w: key %q after %s",
			domain.ErrThrottleTimeout, key, acquireTimeout)
	}

	if s.SleepMsBetweenCalls > 0 {
		sl.pace(time.Duration(s.SleepMsBetweenCalls) * time.Millisecond)
	}

	var deadline time.Time
	if s.LatencyBudgetMs > 0 {
		deadline = time.Now().Add(time.Duration(s.LatencyBudgetMs) * time.Millisecond)
	}

	var once sync.Once
	release := func() {
		once.Do(func() { <-sl.sem })
	}
	return release, deadline, nil
}

// observeRegistry resolves the active registry and reports a rebind when the
// instance changed since the previous call.
func (g *Guard) observeRegistry() *Registry {
	reg := g.resolve()
	prev := g.lastSeen.Swap(reg)
	if prev != nil && prev != reg {
		metrics.ThrottleRebindsTotal.Inc()
		g.logger.Info("throttle registry rebound")
	}
	return reg
}

// DeadlineExceeded reports whether the deadline has passed. A zero deadline
// means no latency budget and never expires.
func DeadlineExceeded(deadline time.Time) bool {
	return !deadline.IsZero() && time.Now().After(deadline)
}
