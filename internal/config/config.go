// Package config handles loading and validating Mtafiti configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for Mtafiti.
type Config struct {
	DataDir       string               `json:"data_dir,omitempty" yaml:"data_dir,omitempty"` // Persistent data directory. Default: ~/.mtafiti/data. Override: MTAFITI_DATA_DIR env var.
	Server        ServerConfig         `json:"server" yaml:"server"`
	Providers     ProvidersConfig      `json:"providers" yaml:"providers"`
	Pipeline      *PipelineConfig      `json:"pipeline,omitempty" yaml:"pipeline,omitempty"`           // nil = stock model settings
	Storage       *StorageConfig       `json:"storage,omitempty" yaml:"storage,omitempty"`             // nil = SQLite default (derived from data dir)
	Scheduler     *SchedulerConfig     `json:"scheduler,omitempty" yaml:"scheduler,omitempty"`         // nil = scheduled reports disabled
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr      string           `json:"addr" yaml:"addr"`             // Listen address. Default: ":8080".
	SecretKey string           `json:"secret_key" yaml:"secret_key"` // Flash-cookie signing key. Override: MTAFITI_SECRET_KEY env var.
	APIKeys   []string         `json:"api_keys" yaml:"api_keys"`     // Bearer keys for the JSON API. No keys = every /v1 request is rejected.
	RateLimit *RateLimitConfig `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
}

// ListenAddr returns the listen address, defaulting to ":8080".
func (s *ServerConfig) ListenAddr() string {
	if s != nil && s.Addr != "" {
		return s.Addr
	}
	return ":8080"
}

// RateLimitConfig configures per-key rate limiting for the JSON API.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"` // 0 = unlimited.
	BurstSize         int `json:"burst_size" yaml:"burst_size"`                   // 0 = defaults to RequestsPerMinute.
}

// ProvidersConfig selects and configures the LLM backends.
type ProvidersConfig struct {
	Default  string       `json:"default" yaml:"default"`                       // "gemini", "openai", "ollama". Empty = "gemini".
	Fallback []string     `json:"fallback,omitempty" yaml:"fallback,omitempty"` // Fallback providers tried in order when default fails.
	Gemini   GeminiConfig `json:"gemini" yaml:"gemini"`
	OpenAI   OpenAIConfig `json:"openai" yaml:"openai"`
	Ollama   OllamaConfig `json:"ollama" yaml:"ollama"`
}

// DefaultProvider returns the default provider name.
func (p *ProvidersConfig) DefaultProvider() string {
	if p != nil && p.Default != "" {
		return p.Default
	}
	return "gemini"
}

type GeminiConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`
	BaseURL string `json:"base_url" yaml:"base_url"` // Optional. Defaults to https://generativelanguage.googleapis.com.
}

type OpenAIConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`
	Model   string `json:"model" yaml:"model"`
	BaseURL string `json:"base_url" yaml:"base_url"` // Optional. Defaults to https://api.openai.com.
}

type OllamaConfig struct {
	Model   string `json:"model" yaml:"model"`
	BaseURL string `json:"base_url" yaml:"base_url"` // Optional. Defaults to http://localhost:11434.
}

// PipelineConfig configures the shared model settings all five agents use.
// When nil, the stock configuration applies (gemini-2.0-flash at 0.4).
type PipelineConfig struct {
	Model       string  `json:"model" yaml:"model"`             // Default: "gemini-2.0-flash".
	Temperature float64 `json:"temperature" yaml:"temperature"` // Default: 0.4.
	UseNative   bool    `json:"use_native" yaml:"use_native"`   // Native provider SDK. Default: false.
}

// ModelName returns the configured model, defaulting to "gemini-2.0-flash".
func (p *PipelineConfig) ModelName() string {
	if p != nil && p.Model != "" {
		return p.Model
	}
	return "gemini-2.0-flash"
}

// ModelTemperature returns the sampling temperature with a default of 0.4.
func (p *PipelineConfig) ModelTemperature() float64 {
	if p != nil && p.Temperature > 0 {
		return p.Temperature
	}
	return 0.4
}

// NativeProvider reports whether the native provider SDK integration is on.
func (p *PipelineConfig) NativeProvider() bool {
	return p != nil && p.UseNative
}

// StorageConfig configures the persistence backend.
// When nil, defaults to SQLite with the database path derived from the data dir.
type StorageConfig struct {
	Driver   string                 `json:"driver" yaml:"driver"`                         // "sqlite" (default) or "postgres".
	SQLite   *SQLiteStorageConfig   `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`     // SQLite-specific settings.
	Postgres *PostgresStorageConfig `json:"postgres,omitempty" yaml:"postgres,omitempty"` // PostgreSQL-specific settings.
}

// StorageDriver returns the configured driver, defaulting to "sqlite".
func (s *StorageConfig) StorageDriver() string {
	if s != nil && s.Driver != "" {
		return s.Driver
	}
	return "sqlite"
}

// SQLiteStorageConfig holds SQLite-specific settings.
type SQLiteStorageConfig struct {
	Path        string `json:"path,omitempty" yaml:"path,omitempty"` // Database file path. Default: derived from data dir.
	JournalMode string `json:"journal_mode" yaml:"journal_mode"`     // "wal" (default), "delete", "truncate", etc.
}

// PostgresStorageConfig holds PostgreSQL-specific settings.
type PostgresStorageConfig struct {
	DSN              string `json:"dsn" yaml:"dsn"`
	MaxOpenConns     int    `json:"max_open_conns" yaml:"max_open_conns"`           // Default: 25
	MaxIdleConns     int    `json:"max_idle_conns" yaml:"max_idle_conns"`           // Default: 5
	ConnMaxLifetimeS int    `json:"conn_max_lifetime_s" yaml:"conn_max_lifetime_s"` // Default: 1800 (30 min)
}

// SchedulerConfig configures scheduled report regeneration.
// When nil, no schedules are executed. Requires a database.
type SchedulerConfig struct {
	Enabled                bool `json:"enabled" yaml:"enabled"`
	PollIntervalSeconds    int  `json:"poll_interval_seconds" yaml:"poll_interval_seconds"`         // Default: 30.
	MaxConcurrentRuns      int  `json:"max_concurrent_runs" yaml:"max_concurrent_runs"`             // Default: 2.
	MissedRunWindowSeconds int  `json:"missed_run_window_seconds" yaml:"missed_run_window_seconds"` // Default: 3600 (1 hour).
}

// PollInterval returns the poll interval with a default of 30s.
func (s *SchedulerConfig) PollInterval() time.Duration {
	if s != nil && s.PollIntervalSeconds > 0 {
		return time.Duration(s.PollIntervalSeconds) * time.Second
	}
	return 30 * time.Second
}

// MaxConcurrent returns the max concurrent runs with a default of 2.
func (s *SchedulerConfig) MaxConcurrent() int {
	if s != nil && s.MaxConcurrentRuns > 0 {
		return s.MaxConcurrentRuns
	}
	return 2
}

// MissedRunWindow returns the window for recovering missed runs.
// Runs missed more than this duration ago are skipped. Default: 1 hour.
func (s *SchedulerConfig) MissedRunWindow() time.Duration {
	if s != nil && s.MissedRunWindowSeconds > 0 {
		return time.Duration(s.MissedRunWindowSeconds) * time.Second
	}
	return 1 * time.Hour
}

// ObservabilityConfig configures metrics, tracing, and health checks.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	Health  *HealthConfig  `json:"health,omitempty" yaml:"health,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "mtafiti"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0–1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`         // Skip TLS for dev
}

// HealthConfig configures dependency health checks for readiness probes.
type HealthConfig struct {
	IncludeDB       bool `json:"include_db" yaml:"include_db"`
	IncludeProvider bool `json:"include_provider" yaml:"include_provider"`
}

// DefaultConfigPath returns the default config file path (~/.mtafiti/config.json).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "configs/mtafiti.json" // fallback for environments without a home dir
	}
	return filepath.Join(home, ".mtafiti", "config.json")
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything
// else for JSON. Provider API keys and the server secret can be set in the
// config file or overridden by environment variables. Environment variables
// take precedence.
func Load(path string) (*Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no config file is present.
// Environment overrides still apply.
func Default() *Config {
	cfg := &Config{}
	cfg.applyEnvOverrides()
	return cfg
}

// applyEnvOverrides applies environment variables on top of file values.
func (c *Config) applyEnvOverrides() {
	if envKey := os.Getenv("GEMINI_API_KEY"); envKey != "" {
		c.Providers.Gemini.APIKey = envKey
	}
	// The original deployment shipped the Gemini credential under GOOGLE_API_KEY.
	if envKey := os.Getenv("GOOGLE_API_KEY"); envKey != "" && c.Providers.Gemini.APIKey == "" {
		c.Providers.Gemini.APIKey = envKey
	}
	if envKey := os.Getenv("OPENAI_API_KEY"); envKey != "" {
		c.Providers.OpenAI.APIKey = envKey
	}
	if envKey := os.Getenv("MTAFITI_SECRET_KEY"); envKey != "" {
		c.Server.SecretKey = envKey
	}
	if envAddr := os.Getenv("MTAFITI_ADDR"); envAddr != "" {
		c.Server.Addr = envAddr
	}
	if envKeys := os.Getenv("MTAFITI_API_KEYS"); envKeys != "" {
		c.Server.APIKeys = splitAndTrim(envKeys)
	}
	if envDSN := os.Getenv("MTAFITI_DB_DSN"); envDSN != "" {
		if c.Storage == nil {
			c.Storage = &StorageConfig{}
		}
		c.Storage.Driver = "postgres"
		if c.Storage.Postgres == nil {
			c.Storage.Postgres = &PostgresStorageConfig{}
		}
		c.Storage.Postgres.DSN = envDSN
	}
	if envDD := os.Getenv("MTAFITI_DATA_DIR"); envDD != "" {
		c.DataDir = envDD
	}

	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			c.DataDir = filepath.Join(home, ".mtafiti", "data")
		}
	}
}

func (c *Config) validate() error {
	switch d := c.Storage.StorageDriver(); d {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown storage driver %q", d)
	}

	if c.Storage.StorageDriver() == "postgres" {
		if c.Storage == nil || c.Storage.Postgres == nil || c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("postgres storage requires a dsn")
		}
	}

	switch p := c.Providers.DefaultProvider(); p {
	case "gemini", "openai", "ollama":
	default:
		return fmt.Errorf("unknown provider %q", p)
	}

	for _, fb := range c.Providers.Fallback {
		switch fb {
		case "gemini", "openai", "ollama":
		default:
			return fmt.Errorf("unknown fallback provider %q", fb)
		}
	}

	if c.Observability != nil && c.Observability.Tracing != nil && c.Observability.Tracing.Enabled {
		t := c.Observability.Tracing
		if t.Endpoint == "" {
			return fmt.Errorf("tracing requires an endpoint")
		}
		switch t.Protocol {
		case "", "grpc", "http":
		default:
			return fmt.Errorf("unknown tracing protocol %q", t.Protocol)
		}
	}

	return nil
}

// SQLitePath returns the database file path, deriving a default from DataDir.
func (c *Config) SQLitePath() string {
	if c.Storage != nil && c.Storage.SQLite != nil && c.Storage.SQLite.Path != "" {
		return c.Storage.SQLite.Path
	}
	return filepath.Join(c.DataDir, "mtafiti.db")
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
