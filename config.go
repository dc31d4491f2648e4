package sessionguard

import (
	"errors"
	"time"
)

// Config defines the immutable configuration for a session [Service].
//
// Config instances are intended to be configured during initialization and
// then treated as immutable.
type Config struct {
	Session   SessionConfig
	Hardening HardeningConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls token lifetime and rotation cadence.
type SessionConfig struct {
	RedisPrefix string

	// IdleTimeout is the maximum gap between validated requests before a
	// session is considered expired. It is an idle window, not an absolute
	// lifetime: active users are never forcibly logged out.
	IdleTimeout time.Duration

	// RememberMeTTL replaces IdleTimeout for sessions created with the
	// remember-me flag.
	RememberMeTTL time.Duration

	// RotationInterval is the maximum age of a token before a successful
	// validation triggers a transparent rotation.
	RotationInterval time.Duration

	// StoreTimeout bounds every store round-trip. Security-sensitive paths
	// fail closed on timeout.
	StoreTimeout time.Duration
}

// HardeningConfig controls per-user session pressure limits.
type HardeningConfig struct {
	// MaxSessionsPerUser caps concurrently live sessions per user; the oldest
	// session is evicted when a create would exceed it. Advisory: two
	// near-simultaneous logins may transiently exceed the cap by one.
	MaxSessionsPerUser int
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			RedisPrefix:      "sg",
			IdleTimeout:      30 * time.Minute,
			RememberMeTTL:    30 * 24 * time.Hour,
			RotationInterval: 15 * time.Minute,
			StoreTimeout:     500 * time.Millisecond,
		},
		Hardening: HardeningConfig{
			MaxSessionsPerUser: 5,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration for internally inconsistent or unsafe
// values. Build refuses configurations that fail validation.
func (c *Config) Validate() error {
	if c.Session.IdleTimeout <= 0 {
		return errors.New("Session IdleTimeout must be > 0")
	}
	if c.Session.RememberMeTTL <= 0 {
		return errors.New("Session RememberMeTTL must be > 0")
	}
	if c.Session.RememberMeTTL < c.Session.IdleTimeout {
		return errors.New("Session RememberMeTTL must be >= IdleTimeout")
	}
	if c.Session.RotationInterval <= 0 {
		return errors.New("Session RotationInterval must be > 0")
	}
	if c.Session.RotationInterval > c.Session.RememberMeTTL {
		return errors.New("Session RotationInterval must be <= RememberMeTTL")
	}
	if c.Session.StoreTimeout <= 0 {
		return errors.New("Session StoreTimeout must be > 0")
	}
	if c.Session.StoreTimeout > 5*time.Second {
		return errors.New("Session StoreTimeout must be <= 5s")
	}
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}

	if c.Hardening.MaxSessionsPerUser < 0 {
		return errors.New("Hardening MaxSessionsPerUser must be >= 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
