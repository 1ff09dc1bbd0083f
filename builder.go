package authcore

import (
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/agilepm-dev/authcore/jwt"
	"github.com/agilepm-dev/authcore/password"

	internalaudit "github.com/agilepm-dev/authcore/internal/audit"
	internalmetrics "github.com/agilepm-dev/authcore/internal/metrics"
	"github.com/agilepm-dev/authcore/internal/stores"
)

// Builder assembles an [Engine]. Collaborators are attached with the With*
// methods; Build validates the configuration and wires the stores.
type Builder struct {
	config    Config
	hasConfig bool

	redis     redis.UniversalClient
	directory UserDirectory
	hasher    Hasher
	mailer    Mailer
	sink      AuditSink
	keyPrefix string
}

// NewBuilder returns a Builder seeded with [DefaultConfig].
func NewBuilder() *Builder {
	return &Builder{}
}

// WithConfig replaces the entire configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	b.hasConfig = true
	return b
}

// WithRedis attaches the redis client backing every engine-owned store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserDirectory attaches the application's principal directory.
func (b *Builder) WithUserDirectory(directory UserDirectory) *Builder {
	b.directory = directory
	return b
}

// WithHasher overrides the credential hasher. When omitted, Build installs
// an argon2id hasher with default costs.
func (b *Builder) WithHasher(hasher Hasher) *Builder {
	b.hasher = hasher
	return b
}

// WithMailer attaches the password-reset mailer. Without one,
// InitiatePasswordReset fails with ErrEngineNotReady.
func (b *Builder) WithMailer(mailer Mailer) *Builder {
	b.mailer = mailer
	return b
}

// WithAuditSink attaches an application sink fed by the async dispatcher in
// addition to the redis trail. Defaults to [NoOpSink].
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithKeyPrefix namespaces every redis key the engine writes. Useful when
// several deployments share one redis.
func (b *Builder) WithKeyPrefix(prefix string) *Builder {
	b.keyPrefix = strings.TrimSuffix(prefix, ":")
	return b
}

// Build validates the configuration, wires the stores, and returns a ready
// engine. The builder can be discarded afterwards.
func (b *Builder) Build() (*Engine, error) {
	cfg := b.config
	if !b.hasConfig {
		cfg = DefaultConfig()
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("builder: redis client is required")
	}
	if b.directory == nil {
		return nil, errors.New("builder: user directory is required")
	}

	hasher := b.hasher
	if hasher == nil {
		argon, err := password.NewArgon2(password.DefaultConfig())
		if err != nil {
			return nil, err
		}
		hasher = argon
	}

	var method jwt.SigningMethod
	switch strings.ToLower(cfg.JWT.SigningMethod) {
	case "", "hs256":
		method = jwt.MethodHS256
	case "ed25519":
		method = jwt.MethodEd25519
	default:
		return nil, errors.New("builder: unsupported JWT signing method")
	}

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: method,
		PrivateKey:    cfg.JWT.PrivateKey,
		PublicKey:     cfg.JWT.PublicKey,
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	sink := b.sink
	if sink == nil {
		sink = NoOpSink{}
	}

	prefix := func(suffix string) string {
		if b.keyPrefix == "" {
			return suffix
		}
		return b.keyPrefix + ":" + suffix
	}

	return &Engine{
		config:    cfg,
		directory: b.directory,
		hasher:    hasher,
		mailer:    b.mailer,

		tokens: tokens,
		totp:   newTOTPEngine(cfg.TOTP),

		devices:     stores.NewDeviceStore(b.redis, prefix("adt")),
		refresh:     stores.NewRefreshStore(b.redis, prefix("art")),
		resets:      stores.NewResetStore(b.redis, prefix("apr")),
		backupCodes: stores.NewBackupCodeStore(b.redis, prefix("abc")),
		challenges:  stores.NewChallengeStore(b.redis, prefix("amc")),
		auditTrail:  stores.NewAuditStore(b.redis, prefix("aud")),

		dispatcher: internalaudit.NewDispatcher(internalaudit.Config{
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, sink),
		metrics: internalmetrics.New(internalmetrics.Config{Enabled: cfg.Metrics.Enabled}),
	}, nil
}
