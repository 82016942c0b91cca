package loginbridge

import (
	"errors"
	"strings"
	"time"
)

// Config holds every tunable of a Coordinator.
//
// Config values are copied by Builder.WithConfig; mutating the original after
// Build has no effect on the coordinator.
type Config struct {
	Backend     BackendConfig     `mapstructure:"backend"`
	Login       LoginConfig       `mapstructure:"login"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Audit       AuditConfig       `mapstructure:"audit"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

/*
====================================
BACKEND CONFIG
====================================
*/

// BackendConfig selects the identity service resolved from the registry.
type BackendConfig struct {
	Name string `mapstructure:"name"`
}

/*
====================================
LOGIN CONFIG
====================================
*/

// LoginConfig controls attempt lifetime and outcome classification.
//
// AttemptTimeout bounds how long an attempt may stay pending; zero disables
// the bound and an attempt that never completes then blocks later logins
// until Cancel is called. AlreadyLoggedInErrors lists backend error texts
// that are reported as a successful outcome.
type LoginConfig struct {
	AttemptTimeout        time.Duration `mapstructure:"attempt_timeout"`
	AlreadyLoggedInErrors []string      `mapstructure:"already_logged_in_errors"`
}

/*
====================================
CREDENTIALS CONFIG
====================================
*/

// CredentialPair is an identifier/secret pair sent to the backend.
type CredentialPair struct {
	ID    string `mapstructure:"id"`
	Token string `mapstructure:"token"`
}

// CredentialsConfig holds the placeholder pairs used to build Credentials.
// PortalMethods lists extra methods, beyond web and persistent-web, that use
// the Portal pair.
type CredentialsConfig struct {
	Developer     CredentialPair `mapstructure:"developer"`
	Portal        CredentialPair `mapstructure:"portal"`
	PortalMethods []string       `mapstructure:"portal_methods"`
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
	DropIfFull bool `mapstructure:"drop_if_full"`
}

// MetricsConfig controls in-process counters and the latency histogram.
type MetricsConfig struct {
	Enabled                 bool `mapstructure:"enabled"`
	EnableLatencyHistograms bool `mapstructure:"enable_latency_histograms"`
}

const (
	// AlreadyLoggedInError is the backend error text reclassified as success
	// by default.
	AlreadyLoggedInError = "Already logged in"

	defaultAttemptTimeout = 60 * time.Second
	maxAttemptTimeout     = time.Hour
)

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Backend: BackendConfig{
			Name: DefaultBackendName,
		},
		Login: LoginConfig{
			AttemptTimeout:        defaultAttemptTimeout,
			AlreadyLoggedInErrors: []string{AlreadyLoggedInError},
		},
		Credentials: CredentialsConfig{
			Developer: CredentialPair{
				ID:    "localhost:12345",
				Token: "TEST_USER_1",
			},
			Portal: CredentialPair{
				ID:    "ACCOUNT_ID",
				Token: "ACCOUNT_TOKEN",
			},
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 64,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Login.AlreadyLoggedInErrors = cloneStrings(cfg.Login.AlreadyLoggedInErrors)
	out.Credentials.PortalMethods = cloneStrings(cfg.Credentials.PortalMethods)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// Validate reports the first invalid setting, or nil.
func (c *Config) Validate() error {
	// Backend
	if strings.TrimSpace(c.Backend.Name) == "" {
		return errors.New("Backend Name must not be empty")
	}

	// Login
	if c.Login.AttemptTimeout < 0 {
		return errors.New("Login AttemptTimeout must be >= 0")
	}
	if c.Login.AttemptTimeout > maxAttemptTimeout {
		return errors.New("Login AttemptTimeout must be <= 1h")
	}
	for _, marker := range c.Login.AlreadyLoggedInErrors {
		if marker == "" {
			return errors.New("Login AlreadyLoggedInErrors must not contain empty entries")
		}
	}

	// Credentials
	if c.Credentials.Developer.ID == "" || c.Credentials.Developer.Token == "" {
		return errors.New("Credentials Developer requires ID and Token")
	}
	if c.Credentials.Portal.ID == "" || c.Credentials.Portal.Token == "" {
		return errors.New("Credentials Portal requires ID and Token")
	}
	for _, m := range c.Credentials.PortalMethods {
		if strings.TrimSpace(m) == "" {
			return errors.New("Credentials PortalMethods must not contain empty entries")
		}
	}

	// Audit
	if c.Audit.BufferSize < 0 {
		return errors.New("Audit BufferSize must be >= 0")
	}
	if c.Audit.Enabled && c.Audit.BufferSize == 0 {
		return errors.New("Audit BufferSize must be > 0 when Audit is enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
