package resilience

import (
	"time"

	"github.com/obsidian-owl/floe/internal/floelog"
)

// RegistryCircuitBreakerConfig provides preconfigured circuit breaker
// settings for the OCI registry adapter's outbound calls.
type RegistryCircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures before opening the circuit
	MaxFailures int

	// TimeoutSeconds is the duration to wait in open state before trying half-open
	TimeoutSeconds int

	// HalfOpenMax is the maximum number of requests allowed in half-open state
	HalfOpenMax int

	// Logger for state change notifications (optional)
	Logger *floelog.Logger
}

// DefaultRegistryCBConfig returns a circuit breaker configuration suitable
// for most registry calls:
// - MaxFailures: 5
// - Timeout: 30 seconds
// - HalfOpenMax: 1 (a single probe, per spec §5)
func DefaultRegistryCBConfig(logger *floelog.Logger) Config {
	return RegistryCBConfig(RegistryCircuitBreakerConfig{
		MaxFailures:    5,
		TimeoutSeconds: 30,
		HalfOpenMax:    1,
		Logger:         logger,
	})
}

// StrictRegistryCBConfig is a more conservative configuration for registries
// that should fail fast under sustained errors.
func StrictRegistryCBConfig(logger *floelog.Logger) Config {
	return RegistryCBConfig(RegistryCircuitBreakerConfig{
		MaxFailures:    3,
		TimeoutSeconds: 60,
		HalfOpenMax:    1,
		Logger:         logger,
	})
}

// RegistryCBConfig creates a Config from RegistryCircuitBreakerConfig.
func RegistryCBConfig(cfg RegistryCircuitBreakerConfig) Config {
	cbConfig := Config{
		MaxFailures: cfg.MaxFailures,
		Timeout:     SecondsToDuration(cfg.TimeoutSeconds),
		HalfOpenMax: cfg.HalfOpenMax,
	}

	if cbConfig.MaxFailures <= 0 {
		cbConfig.MaxFailures = 5
	}
	if cbConfig.Timeout <= 0 {
		cbConfig.Timeout = 30 * time.Second
	}
	if cbConfig.HalfOpenMax <= 0 {
		cbConfig.HalfOpenMax = 1
	}

	if cfg.Logger != nil {
		cbConfig.OnStateChange = func(from, to State) {
			cfg.Logger.WithFields(map[string]interface{}{
				"from_state": from.String(),
				"to_state":   to.String(),
			}).Warn("registry circuit breaker state changed")
		}
	}

	return cbConfig
}

// SecondsToDuration converts seconds to Duration.
func SecondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
