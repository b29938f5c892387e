package notevault

import (
	"errors"
	"time"

	"github.com/MrEthical07/notevault/internal/audit"
	"github.com/MrEthical07/notevault/internal/limiters"
	"github.com/MrEthical07/notevault/internal/rate"
	"github.com/MrEthical07/notevault/jwt"
	"github.com/MrEthical07/notevault/password"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. Configure it during initialization, call
// [Builder.Build] once, then discard it.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users     UserStore
	notifier  Notifier
	auditSink AuditSink
	logger    *zap.Logger
	clock     func() time.Time

	built bool
}

// New returns a Builder seeded with the default configuration. Signing
// secrets must still be supplied through [Builder.WithConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration. The value is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing the MFA limiter, the replay guard and
// the per-IP throttles.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore sets the credential store.
func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.users = store
	return b
}

// WithNotifier sets the welcome and login notifier. Defaults to a no-op.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink sets the destination of audit events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger used for backend and notifier failures.
// Defaults to zap.NewNop.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for token issuance, lockout and TOTP. Tests
// use it to move time without sleeping.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires every component. A Builder
// can be built only once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.users == nil {
		return nil, errors.New("user store required")
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := b.notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}

	engine := &Engine{
		config:   cloneConfig(cfg),
		users:    b.users,
		notifier: notifier,
		logger:   logger,
		clock:    clock,
		redis:    b.redis,
	}

	engine.rateLimiter = rate.New(b.redis, rate.Config{
		Prefix:           cfg.Redis.KeyPrefix,
		EnableIPThrottle: cfg.RateLimit.EnableIPThrottle,
		MaxLoginPerIP:    cfg.RateLimit.MaxLoginPerIP,
		LoginWindow:      cfg.RateLimit.LoginWindow,
		MaxSignupPerIP:   cfg.RateLimit.MaxSignupPerIP,
		SignupWindow:     cfg.RateLimit.SignupWindow,
	})
	engine.mfaLimiter = limiters.NewMFALimiter(b.redis, limiters.MFALimiterConfig{
		Prefix:      cfg.Redis.KeyPrefix,
		MaxFailures: cfg.TOTP.MaxFailures,
		Window:      cfg.TOTP.FailureWindow,
	})
	if cfg.TOTP.EnforceReplayProtection {
		engine.replayGuard = limiters.NewReplayGuard(
			b.redis,
			cfg.Redis.KeyPrefix,
			time.Duration(cfg.TOTP.Period)*time.Second,
			cfg.TOTP.Skew,
		)
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:     cfg.Audit.Enabled,
		BufferSize:  cfg.Audit.BufferSize,
		DropIfFull:  cfg.Audit.DropIfFull,
		SinkTimeout: cfg.Audit.SinkTimeout,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.totp = newTOTPManager(cfg.TOTP)

	ph, err := password.NewHasher(cfg.passwordConfig())
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	jm, err := jwt.NewManager(jwt.Config{
		AccessSecret:  cloneBytes(cfg.JWT.AccessSecret),
		RefreshSecret: cloneBytes(cfg.JWT.RefreshSecret),
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		MFASetupTTL:   cfg.JWT.MFASetupTTL,
		MFALoginTTL:   cfg.JWT.MFALoginTTL,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Now:           clock,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	b.built = true
	return engine, nil
}
