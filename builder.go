package loginbridge

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Builder assembles a Coordinator. A Builder builds at most once.
type Builder struct {
	config   Config
	registry ServiceRegistry
	logger   *zap.Logger

	auditSink AuditSink

	newAttemptID func() string
	now          func() time.Time

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration with a copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRegistry sets the registry the backend is resolved from on every Login.
func (b *Builder) WithRegistry(r ServiceRegistry) *Builder {
	b.registry = r
	return b
}

// WithIdentityService registers svc under name, creating a Registry when
// none is set. It panics if a non-*Registry registry was set earlier.
func (b *Builder) WithIdentityService(name string, svc IdentityService) *Builder {
	if b.registry == nil {
		b.registry = NewRegistry()
	}
	reg, ok := b.registry.(*Registry)
	if !ok {
		panic("loginbridge: WithIdentityService requires the builder's own *Registry")
	}
	reg.Register(name, svc)
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithAttemptTimeout overrides Config.Login.AttemptTimeout.
func (b *Builder) WithAttemptTimeout(d time.Duration) *Builder {
	b.config.Login.AttemptTimeout = d
	return b
}

// Build validates the configuration and returns an uninitialized Coordinator.
func (b *Builder) Build() (*Coordinator, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if b.registry == nil {
		return nil, ErrNilRegistry
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("loginbridge")

	for _, w := range cfg.Lint() {
		logger.Warn("config lint", zap.String("code", w.Code), zap.String("detail", w.Message))
	}

	alreadyIn := make(map[string]struct{}, len(cfg.Login.AlreadyLoggedInErrors))
	for _, marker := range cfg.Login.AlreadyLoggedInErrors {
		alreadyIn[marker] = struct{}{}
	}

	newID := b.newAttemptID
	if newID == nil {
		newID = func() string { return uuid.NewString() }
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	c := &Coordinator{
		config:       cfg,
		registry:     b.registry,
		logger:       logger,
		metrics:      NewMetrics(cfg.Metrics),
		auditSink:    b.auditSink,
		credentials:  newCredentialBuilder(cfg.Credentials),
		alreadyIn:    alreadyIn,
		newAttemptID: newID,
		now:          now,
	}

	b.built = true

	return c, nil
}
