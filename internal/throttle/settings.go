// Package throttle bounds concurrent in-flight searches per key and
// propagates a shared latency deadline.
package throttle

// Defaults applied when a Settings field is unset.
const (
	DefaultParallelism      = 1
	DefaultAcquireTimeoutMs = 10000
)

// Settings holds per-key concurrency and latency budget parameters.
type Settings struct {
	LatencyBudgetMs     int    // 0 = unbounded
	Parallelism         int    // max concurrent in-flight searches per key
	SleepMsBetweenCalls int    // pacing between consecutive entries on the same key
	AcquireTimeoutMs    int    // max wait to enter the guard
	Key                 string // override for the default slug::scope key, "" = none
}

func (s Settings) withDefaults() Settings {
	if s.Parallelism <= 0 {
		s.Parallelism = DefaultParallelism
	}
	if s.AcquireTimeoutMs <= 0 {
		s.AcquireTimeoutMs = DefaultAcquireTimeoutMs
	}
	return s
}
