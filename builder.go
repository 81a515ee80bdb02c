package goSignIn

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	internalaudit "github.com/MrEthical07/goSignIn/internal/audit"
	"github.com/MrEthical07/goSignIn/internal/rate"
	"github.com/MrEthical07/goSignIn/internal/sweep"
	"github.com/MrEthical07/goSignIn/password"
	"github.com/MrEthical07/goSignIn/providers"
	"github.com/MrEthical07/goSignIn/providers/emailpassword"
	"github.com/MrEthical07/goSignIn/providers/magiclink"
	"github.com/MrEthical07/goSignIn/providers/oauth"
	"github.com/MrEthical07/goSignIn/providers/totp"
	"github.com/MrEthical07/goSignIn/security"
	"github.com/MrEthical07/goSignIn/session"
	"github.com/MrEthical07/goSignIn/users"
)

const tracerName = "github.com/MrEthical07/goSignIn"

type oauthRegistration struct {
	name      string
	authority oauth.Authority
}

// Builder assembles an Engine. A Builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time

	userStore users.Store
	auditSink AuditSink
	oauth     []oauthRegistration
	extra     []Provider

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration. cfg is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis moves the attempt throttle into Redis so that several engine
// instances share one budget per key.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithTracer sets the tracer used for engine spans. The default is a no-op.
func (b *Builder) WithTracer(tracer trace.Tracer) *Builder {
	b.tracer = tracer
	return b
}

// WithClock overrides time.Now for every component.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithUserStore replaces the in-memory credential store.
func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.userStore = store
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithOAuth registers an OAuth provider called name backed by authority.
func (b *Builder) WithOAuth(name string, authority OAuthAuthority) *Builder {
	b.oauth = append(b.oauth, oauthRegistration{name: name, authority: authority})
	return b
}

// WithProvider registers an additional provider under its own name.
func (b *Builder) WithProvider(p Provider) *Builder {
	b.extra = append(b.extra, p)
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

// Build validates the configuration and starts the engine's background
// work. The returned Engine must be closed.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	tracer := b.tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(tracerName)
	}

	// -------- TOKEN SERVICE --------
	svc, err := security.New(security.Config{
		Secret:   cloneBytes(cfg.Token.Secret),
		TokenTTL: cfg.Token.TTL,
		Password: password.Config{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		},
		Now: now,
	})
	if err != nil {
		return nil, err
	}

	// -------- CREDENTIAL STORE --------
	store := b.userStore
	if store == nil {
		store = users.NewMemoryStore(now)
	}

	engine := &Engine{
		config:    cfg,
		logger:    logger,
		tracer:    tracer,
		now:       now,
		security:  svc,
		users:     store,
		sessions:  session.NewRegistry(session.Config{Lifetime: cfg.Session.Lifetime, Now: now}),
		providers: providers.NewRegistry(),
		metrics:   NewMetrics(cfg.Metrics),
	}

	// -------- THROTTLE --------
	rateCfg := rate.Config{
		MaxAttempts: cfg.Throttle.MaxAttempts,
		Window:      cfg.Throttle.Window,
		Prefix:      cfg.Throttle.RedisPrefix,
		Now:         now,
	}
	if b.redis != nil {
		engine.throttle = rate.NewRedis(b.redis, rateCfg)
	} else {
		mem := rate.NewMemory(rateCfg)
		engine.throttle = mem
		engine.memThrottle = mem
	}

	// -------- PROVIDERS --------
	engine.password = emailpassword.New(store, svc, emailpassword.Config{
		LockoutThreshold: cfg.Lockout.Threshold,
		LockoutDuration:  cfg.Lockout.Duration,
		Policy:           cfg.PasswordPolicy.policy(),
		Now:              now,
		Logger:           logger.With("provider", emailpassword.Name),
	})
	if err := engine.providers.Register(engine.password); err != nil {
		return nil, err
	}

	if cfg.MagicLink.Enabled {
		engine.magic = magiclink.New(store, magiclink.Config{TTL: cfg.MagicLink.TTL, Now: now})
		if err := engine.providers.Register(engine.magic); err != nil {
			return nil, err
		}
	}

	if cfg.TOTP.Enabled {
		engine.totp = totp.New(store, totp.Config{
			Issuer: cfg.TOTP.Issuer,
			Period: cfg.TOTP.Period,
			Skew:   cfg.TOTP.Skew,
			Digits: cfg.TOTP.Digits,
			Now:    now,
		})
		if err := engine.providers.Register(engine.totp); err != nil {
			return nil, err
		}
	}

	for _, reg := range b.oauth {
		p, err := oauth.New(store, oauth.Config{
			Name:      reg.name,
			Authority: reg.authority,
			Timeout:   cfg.OAuth.Timeout,
			Now:       now,
			Logger:    logger.With("provider", reg.name),
		})
		if err != nil {
			return nil, fmt.Errorf("oauth provider %q: %w", reg.name, err)
		}
		if err := engine.providers.Register(p); err != nil {
			return nil, err
		}
	}

	for _, p := range b.extra {
		if p == nil {
			return nil, errors.New("nil provider")
		}
		if err := engine.providers.Register(p); err != nil {
			return nil, err
		}
	}

	// -------- AUDIT --------
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Logger:     logger,
	}, b.auditSink)

	// -------- SWEEPS --------
	engine.sweeper = sweep.Start(cfg.Sweep.Interval, logger, engine.sweepTasks()...)

	b.built = true
	return engine, nil
}
