// Package configfile loads loginbridge settings from YAML and the
// environment through viper.
//
// Every key can be overridden by an environment variable named after its
// dotted path with the LOGINBRIDGE_ prefix, e.g.
// LOGINBRIDGE_LOGIN_ATTEMPT_TIMEOUT=30s or LOGINBRIDGE_IDENTITY_KIND=redis.
package configfile

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/loginbridge"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const EnvPrefix = "LOGINBRIDGE"

// Identity backend kinds understood by the CLI and the HTTP example.
const (
	KindMemory = "memory"
	KindRedis  = "redis"
	KindPortal = "portal"
)

// Settings is the file layout: the coordinator config at the top level plus
// the wiring sections used by the binaries.
type Settings struct {
	loginbridge.Config `mapstructure:",squash"`

	Identity IdentitySettings `mapstructure:"identity"`
	Kafka    KafkaSettings    `mapstructure:"kafka"`
	Log      LogSettings      `mapstructure:"log"`
}

// IdentitySettings selects and configures the identity backend.
type IdentitySettings struct {
	Kind       string        `mapstructure:"kind"`
	RedisAddr  string        `mapstructure:"redis_addr"`
	Prefix     string        `mapstructure:"prefix"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	// UserID is the id bound by the memory backend on success.
	UserID string `mapstructure:"user_id"`
	// MaxFailedLogins per credential id within FailureWindow; zero disables
	// the redis backend's failure budget.
	MaxFailedLogins int           `mapstructure:"max_failed_logins"`
	FailureWindow   time.Duration `mapstructure:"failure_window"`

	Portal PortalSettings `mapstructure:"portal"`
}

// PortalSettings configures the portal backend. An empty Secret makes the
// binaries generate an ephemeral HS256 key and mint the portal token for the
// configured portal credential id.
type PortalSettings struct {
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`
	Audience string        `mapstructure:"audience"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// KafkaSettings enables the Kafka audit sink when Brokers is non-empty.
type KafkaSettings struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type LogSettings struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Defaults returns the settings used for absent keys.
func Defaults() Settings {
	return Settings{
		Config: loginbridge.DefaultConfig(),
		Identity: IdentitySettings{
			Kind:       KindMemory,
			Prefix:     "lb",
			SessionTTL: 12 * time.Hour,
			UserID:     "local-user",

			MaxFailedLogins: 5,
			FailureWindow:   15 * time.Minute,

			Portal: PortalSettings{
				Issuer:   "loginbridge",
				TokenTTL: 15 * time.Minute,
			},
		},
		Kafka: KafkaSettings{
			Topic: "loginbridge.audit",
		},
		Log: LogSettings{
			Level: "info",
		},
	}
}

// Load reads path (optional; "" means environment and defaults only) and
// returns validated settings.
func Load(path string, logger *zap.Logger) (*Settings, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		logger.Info("loaded config file", zap.String("path", path))
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the coordinator config and the wiring sections.
func (s *Settings) Validate() error {
	if err := s.Config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch s.Identity.Kind {
	case KindMemory, KindRedis, KindPortal:
	default:
		return fmt.Errorf("identity.kind %q is not one of %s, %s, %s", s.Identity.Kind, KindMemory, KindRedis, KindPortal)
	}
	if s.Identity.SessionTTL < 0 {
		return errors.New("identity.session_ttl must not be negative")
	}
	if s.Identity.MaxFailedLogins < 0 || s.Identity.FailureWindow < 0 {
		return errors.New("identity failure budget must not be negative")
	}
	if s.Identity.Portal.TokenTTL < 0 {
		return errors.New("identity.portal.token_ttl must not be negative")
	}
	if _, err := zapcore.ParseLevel(s.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// NewLogger builds the process logger described by s.Log.
func (s *Settings) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(s.Log.Level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	if s.Log.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only resolves keys viper already knows, so every key
	// gets a default.
	setDefaults(v, Defaults())
	return v
}

func setDefaults(v *viper.Viper, d Settings) {
	v.SetDefault("backend.name", d.Backend.Name)

	v.SetDefault("login.attempt_timeout", d.Login.AttemptTimeout)
	v.SetDefault("login.already_logged_in_errors", d.Login.AlreadyLoggedInErrors)

	v.SetDefault("credentials.developer.id", d.Credentials.Developer.ID)
	v.SetDefault("credentials.developer.token", d.Credentials.Developer.Token)
	v.SetDefault("credentials.portal.id", d.Credentials.Portal.ID)
	v.SetDefault("credentials.portal.token", d.Credentials.Portal.Token)
	v.SetDefault("credentials.portal_methods", d.Credentials.PortalMethods)

	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.buffer_size", d.Audit.BufferSize)
	v.SetDefault("audit.drop_if_full", d.Audit.DropIfFull)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.enable_latency_histograms", d.Metrics.EnableLatencyHistograms)

	v.SetDefault("identity.kind", d.Identity.Kind)
	v.SetDefault("identity.redis_addr", d.Identity.RedisAddr)
	v.SetDefault("identity.prefix", d.Identity.Prefix)
	v.SetDefault("identity.session_ttl", d.Identity.SessionTTL)
	v.SetDefault("identity.user_id", d.Identity.UserID)
	v.SetDefault("identity.max_failed_logins", d.Identity.MaxFailedLogins)
	v.SetDefault("identity.failure_window", d.Identity.FailureWindow)
	v.SetDefault("identity.portal.secret", d.Identity.Portal.Secret)
	v.SetDefault("identity.portal.issuer", d.Identity.Portal.Issuer)
	v.SetDefault("identity.portal.audience", d.Identity.Portal.Audience)
	v.SetDefault("identity.portal.token_ttl", d.Identity.Portal.TokenTTL)

	v.SetDefault("kafka.brokers", d.Kafka.Brokers)
	v.SetDefault("kafka.topic", d.Kafka.Topic)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)
}
