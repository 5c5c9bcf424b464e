package recall

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	dbPath   string
	embedder Embedder

	redisAddrs    []string
	redisPassword string
	cacheTTL      time.Duration

	latencyBudgetMs int
	parallelism     int
	acquireTimeout  time.Duration
	pacingGap       time.Duration

	manifestDir string

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithDBPath sets the default candidate store used by searches that do not
// carry their own DBPath. Required unless every request sets DBPath.
func WithDBPath(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.dbPath = path
	})
}

// WithEmbedder sets the text embedding provider. Required.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithRedis enables the embedding cache backed by a Redis instance.
// ttl of zero caches forever.
func WithRedis(addr, password string, ttl time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.redisAddrs = []string{addr}
		c.redisPassword = password
		c.cacheTTL = ttl
	})
}

// WithLatencyBudget bounds each search to budgetMs milliseconds. Past the
// budget a search returns empty results instead of partial ones. Zero
// (default) means unbounded.
func WithLatencyBudget(budgetMs int) Option {
	return optionFunc(func(c *clientConfig) {
		c.latencyBudgetMs = budgetMs
	})
}

// WithParallelism caps concurrent searches per tenant key. Default: 1.
func WithParallelism(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.parallelism = n
	})
}

// WithAcquireTimeout bounds how long a search waits for a throttle slot
// before failing with ErrThrottleTimeout. Default: 10s.
func WithAcquireTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.acquireTimeout = d
	})
}

// WithPacing enforces a minimum gap between searches on the same tenant key.
func WithPacing(gap time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.pacingGap = gap
	})
}

// WithManifestDir enables evidence manifest emission under dir.
func WithManifestDir(dir string) Option {
	return optionFunc(func(c *clientConfig) {
		c.manifestDir = dir
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
