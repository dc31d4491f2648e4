package sessionguard

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/panelforge/sessionguard/session"
)

// Builder assembles a [Service]. Single use: construct one Service per
// process at startup and share it across requests.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	auditSink AuditSink
	logger    *zap.Logger
	clock     func() time.Time

	built bool
}

// New returns a Builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the shared KV store client. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAuditSink sets the destination for security events. Enables the audit
// dispatcher implicitly.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = true
	return b
}

// WithLogger sets the logger for fail-open paths (dropped telemetry writes,
// best-effort cleanup). Defaults to a no-op logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the time source. Test hook.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the validate-latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Service.
func (b *Builder) Build() (*Service, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	svc := &Service{
		config:  cfg,
		store:   session.NewStore(b.redis, cfg.Session.RedisPrefix),
		audit:   newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
		logger:  logger,
		now:     clock,
	}

	b.built = true

	return svc, nil
}
