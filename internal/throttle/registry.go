package throttle

import (
	"sync"
	"time"
)

// Registry holds the per-key throttle state for the process. Entries are
// created lazily on first use and live for the registry's lifetime. All
// mutation goes through Guard.Enter and the release it returns.
type Registry struct {
	mu   sync.Mutex
	keys map[string]*slot
}

// slot is the concurrency state for one throttle key.
type slot struct {
	sem chan struct{}

	// paceMu serializes pacing so back-to-back holders observe the
	// configured gap between entries.
	paceMu   sync.Mutex
	lastCall time.Time
}

// NewRegistry creates an empty throttle registry.
func NewRegistry() *Registry {
	return &Registry{keys: make(map[string]*slot)}
}

// slotFor returns the slot for key, creating it with the given parallelism on
// first use. A later call with different parallelism keeps the original
// capacity: resizing a live semaphore would break accounting for holders.
func (r *Registry) slotFor(key string, parallelism int) *slot {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.keys[key]; ok {
		return s
	}
	s := &slot{sem: make(chan struct{}, parallelism)}
	r.keys[key] = s
	return s
}

// pace blocks until at least gap has passed since the previous paced entry on
// this slot, then records the current entry time.
func (s *slot) pace(gap time.Duration) {
	s.paceMu.Lock()
	defer s.paceMu.Unlock()

	if !s.lastCall.IsZero() {
		if wait := gap - time.Since(s.lastCall); wait > 0 {
			time.Sleep(wait)
		}
	}
	s.lastCall = time.Now()
}
