// Package config loads promotion-core configuration from defaults, an
// optional YAML file, and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// RegistryConfig points at the OCI registry backing every promotion.
type RegistryConfig struct {
	Host       string `yaml:"host" env:"FLOE_REGISTRY_HOST"`
	Repository string `yaml:"repository" env:"FLOE_REGISTRY_REPOSITORY"`
	Insecure   bool   `yaml:"insecure" env:"FLOE_REGISTRY_INSECURE"`
	Username   string `yaml:"username" env:"FLOE_REGISTRY_USERNAME"`
	Password   string `yaml:"password" env:"FLOE_REGISTRY_PASSWORD"`
}

// EnvironmentConfig describes one link in the promotion chain.
type EnvironmentConfig struct {
	Name                  string   `yaml:"name"`
	Gates                 []string `yaml:"gates"`
	OptionalGates         []string `yaml:"optional_gates"`
	RequiredOperators     []string `yaml:"required_operators"`
	SeparationOfDutiesFrom string  `yaml:"separation_of_duties_from"`
}

// SigningConfig configures the signature verifier.
type SigningConfig struct {
	TrustedSignerPatterns []string      `yaml:"trusted_signer_patterns"`
	LockTimeout           time.Duration `yaml:"lock_timeout" env:"FLOE_SIGNING_LOCK_TIMEOUT"`
	RequireTransparencyLog bool         `yaml:"require_transparency_log"`
}

// GatesConfig tunes the gate runner's concurrency and timeouts.
type GatesConfig struct {
	FanOut         int           `yaml:"fan_out" env:"FLOE_GATE_FANOUT"`
	PerGateTimeout time.Duration `yaml:"per_gate_timeout" env:"FLOE_GATE_TIMEOUT"`
}

// WebhookSubscriberConfig is one configured webhook destination.
type WebhookSubscriberConfig struct {
	URL            string            `yaml:"url"`
	Events         []string          `yaml:"events"`
	Headers        map[string]string `yaml:"headers"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	RetryCount     int               `yaml:"retry_count"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// TracingConfig configures the OTel tracer.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled" env:"FLOE_TRACING_ENABLED"`
	ServiceName string `yaml:"service_name" env:"FLOE_TRACING_SERVICE_NAME"`
}

// MetricsConfig controls the Prometheus metrics registry.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"FLOE_METRICS_ENABLED"`
	Addr    string `yaml:"addr" env:"FLOE_METRICS_ADDR"`
}

// Config is the top-level promotion-core configuration.
type Config struct {
	Registry RegistryConfig            `yaml:"registry"`
	Chain    []EnvironmentConfig       `yaml:"chain"`
	Signing  SigningConfig             `yaml:"signing"`
	Gates    GatesConfig               `yaml:"gates"`
	Webhooks []WebhookSubscriberConfig `yaml:"webhooks"`
	Logging  LoggingConfig             `yaml:"logging"`
	Tracing  TracingConfig             `yaml:"tracing"`
	Metrics  MetricsConfig             `yaml:"metrics"`
}

// New returns a Config populated with sensible defaults: a three-stage
// dev/staging/prod chain, a 4-way gate fan-out, and a 5 minute per-gate
// timeout, matching the defaults named in spec §4.3.
func New() *Config {
	return &Config{
		Chain: []EnvironmentConfig{
			{Name: "dev", Gates: []string{"policy_compliance", "tests"}},
			{Name: "staging", Gates: []string{"policy_compliance", "tests", "security_scan"}},
			{Name: "prod", Gates: []string{"policy_compliance", "tests", "security_scan", "cost_analysis", "performance_baseline"},
				SeparationOfDutiesFrom: "staging"},
		},
		Signing: SigningConfig{
			LockTimeout: 30 * time.Second,
		},
		Gates: GatesConfig{
			FanOut:         4,
			PerGateTimeout: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
	}
}

// Load loads configuration from an optional `.env` file, an optional YAML
// file named by CONFIG_FILE (or configs/floe.yaml by default), and
// environment variable overrides, following the teacher's layered Load().
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/floe.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	return cfg, nil
}

// LoadFile reads configuration from a specific YAML file, applying defaults
// first.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// EnvironmentByName returns the chain entry with the given name, or false.
func (c *Config) EnvironmentByName(name string) (EnvironmentConfig, bool) {
	for _, e := range c.Chain {
		if e.Name == name {
			return e, true
		}
	}
	return EnvironmentConfig{}, false
}

// Successor returns the environment immediately after `from` in the chain,
// or false if `from` is the last environment or not found.
func (c *Config) Successor(from string) (EnvironmentConfig, bool) {
	for i, e := range c.Chain {
		if e.Name == from && i+1 < len(c.Chain) {
			return c.Chain[i+1], true
		}
	}
	return EnvironmentConfig{}, false
}

// IsFirst reports whether env is the first entry in the chain.
func (c *Config) IsFirst(env string) bool {
	return len(c.Chain) > 0 && c.Chain[0].Name == env
}
