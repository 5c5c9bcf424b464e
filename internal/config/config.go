package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the recall API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retriever RetrieverConfig `yaml:"retriever"`
	Throttle  ThrottleConfig  `yaml:"throttle"`
	Explain   ExplainConfig   `yaml:"explain"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds the embedding-cache store connection. Optional: with no
// addrs configured the embedding cache is disabled and queries hit the
// provider directly.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	CacheTTLSec      int      `yaml:"cache_ttl_sec"`
}

// RetrieverConfig holds candidate-limit calibration settings.
type RetrieverConfig struct {
	// AutoByBudget derives the candidate limit from the latency budget when
	// no explicit per-request limit is given.
	AutoByBudget   bool   `yaml:"auto_by_budget"`
	CandidateLimit int    `yaml:"candidate_limit"` // 0 = compile-time default
	DBPath         string `yaml:"db_path"`         // default candidate store for requests without one
}

// ThrottleConfig holds per-key concurrency and latency budget settings.
type ThrottleConfig struct {
	LatencyBudgetMs     int    `yaml:"latency_budget_ms"` // 0 = unbounded
	Parallelism         int    `yaml:"parallelism"`
	SleepMsBetweenCalls int    `yaml:"sleep_ms_between_calls"`
	AcquireTimeoutMs    int    `yaml:"acquire_timeout_ms"`
	CandidateLimit      int    `yaml:"candidate_limit"` // overrides retriever.candidate_limit
	Key                 string `yaml:"key"`             // override for the slug::scope throttle key
}

// ExplainConfig holds evidence manifest settings.
type ExplainConfig struct {
	BaseDir string `yaml:"base_dir"` // empty = manifests disabled
}

// EmbeddingConfig holds embedding settings.
type EmbeddingConfig struct {
	Providers   map[string]ProviderConfig   `yaml:"providers"`
	Vectorizers map[string]VectorizerConfig `yaml:"vectorizers"`
}

// ProviderConfig holds embedding provider settings.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// VectorizerConfig holds vectorizer settings.
type VectorizerConfig struct {
	Provider         string `yaml:"provider"`
	Model            string `yaml:"model"`
	Dimensions       int    `yaml:"dimensions"`
	QueryInstruction string `yaml:"query_instruction"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.CacheTTLSec <= 0 {
		c.Database.CacheTTLSec = 7 * 24 * 3600
	}
	if c.Throttle.Parallelism <= 0 {
		c.Throttle.Parallelism = 1
	}
	if c.Throttle.AcquireTimeoutMs <= 0 {
		c.Throttle.AcquireTimeoutMs = 10000
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Throttle.LatencyBudgetMs < 0 {
		return fmt.Errorf("throttle.latency_budget_ms must be >= 0, got %d", c.Throttle.LatencyBudgetMs)
	}
	if c.Throttle.SleepMsBetweenCalls < 0 {
		return fmt.Errorf("throttle.sleep_ms_between_calls must be >= 0, got %d", c.Throttle.SleepMsBetweenCalls)
	}
	if c.Retriever.CandidateLimit < 0 {
		return fmt.Errorf("retriever.candidate_limit must be >= 0, got %d", c.Retriever.CandidateLimit)
	}
	if c.Throttle.CandidateLimit < 0 {
		return fmt.Errorf("throttle.candidate_limit must be >= 0, got %d", c.Throttle.CandidateLimit)
	}
	return nil
}

// ConfiguredCandidateLimit returns the candidate limit configured across both
// sections. throttle.candidate_limit wins over retriever.candidate_limit;
// 0 means nothing configured.
func (c *Config) ConfiguredCandidateLimit() int {
	if c.Throttle.CandidateLimit > 0 {
		return c.Throttle.CandidateLimit
	}
	return c.Retriever.CandidateLimit
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
