package goSignIn

import (
	"errors"
	"time"

	"github.com/MrEthical07/goSignIn/internal/validate"
)

// Config is the immutable engine configuration. Obtain one from
// DefaultConfig, adjust it, and pass it to Builder.WithConfig.
type Config struct {
	Token          TokenConfig
	Password       PasswordConfig
	PasswordPolicy PasswordPolicyConfig
	Session        SessionConfig
	Throttle       ThrottleConfig
	MagicLink      MagicLinkConfig
	Lockout        LockoutConfig
	TOTP           TOTPConfig
	OAuth          OAuthConfig
	PasswordReset  PasswordResetConfig
	Sweep          SweepConfig
	Audit          AuditConfig
	Metrics        MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig configures bearer token signing. Secret also keys the
// password pepper and the payload sealer.
type TokenConfig struct {
	Secret []byte
	TTL    time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the Argon2id cost parameters.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// PasswordPolicyConfig holds the shape rules applied at registration and on
// every password change.
type PasswordPolicyConfig struct {
	MinLength int
	// RequireComplexity demands an upper-case letter, a lower-case letter,
	// a digit and one of @$!%*?&.
	RequireComplexity bool
}

func (c PasswordPolicyConfig) policy() validate.Policy {
	return validate.Policy{MinLength: c.MinLength, RequireComplexity: c.RequireComplexity}
}

/*
====================================
SESSION CONFIG
====================================
*/

type SessionConfig struct {
	Lifetime time.Duration
}

/*
====================================
THROTTLE CONFIG
====================================
*/

// ThrottleConfig bounds sign-in attempts per credential key in a sliding
// window. RedisPrefix is used only with Builder.WithRedis.
type ThrottleConfig struct {
	MaxAttempts int
	Window      time.Duration
	RedisPrefix string
}

/*
====================================
MAGIC LINK CONFIG
====================================
*/

type MagicLinkConfig struct {
	Enabled bool
	TTL     time.Duration
	// MaxRequests caps GenerateMagicLink calls per email within
	// RequestWindow.
	MaxRequests   int
	RequestWindow time.Duration
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig locks password accounts after Threshold consecutive wrong
// passwords. A zero Threshold disables lockout.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig enables the totp provider and enrollment. Accounts that have
// confirmed enrollment always need a code at sign-in.
type TOTPConfig struct {
	Enabled bool
	Issuer  string
	Period  uint
	Skew    uint
	Digits  int
}

/*
====================================
OAUTH CONFIG
====================================
*/

type OAuthConfig struct {
	// Timeout bounds each call to an identity authority.
	Timeout time.Duration
}

/*
====================================
PASSWORD RESET CONFIG
====================================
*/

type PasswordResetConfig struct {
	Enabled bool
	TTL     time.Duration
}

/*
====================================
SWEEP CONFIG
====================================
*/

// SweepConfig schedules the background reclamation of expired sessions,
// throttle keys and magic links. A zero Interval disables the background
// loop; Engine.Sweep still works.
type SweepConfig struct {
	Interval time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults. Token.Secret is left empty
// and must be set.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			TTL: 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		PasswordPolicy: PasswordPolicyConfig{
			MinLength:         validate.DefaultMinPasswordLength,
			RequireComplexity: true,
		},
		Session: SessionConfig{
			Lifetime: 24 * time.Hour,
		},
		Throttle: ThrottleConfig{
			MaxAttempts: 5,
			Window:      15 * time.Minute,
			RedisPrefix: "signin:thr",
		},
		MagicLink: MagicLinkConfig{
			Enabled:       true,
			TTL:           15 * time.Minute,
			MaxRequests:   3,
			RequestWindow: 15 * time.Minute,
		},
		Lockout: LockoutConfig{
			Threshold: 0,
			Duration:  15 * time.Minute,
		},
		TOTP: TOTPConfig{
			Enabled: true,
			Issuer:  "SignInEngine",
			Period:  30,
			Skew:    1,
			Digits:  6,
		},
		OAuth: OAuthConfig{
			Timeout: 10 * time.Second,
		},
		PasswordReset: PasswordResetConfig{
			Enabled: true,
			TTL:     time.Hour,
		},
		Sweep: SweepConfig{
			Interval: time.Minute,
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

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.Secret = cloneBytes(cfg.Token.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Token
	if len(c.Token.Secret) == 0 {
		return errors.New("Token Secret is required")
	}
	if len(c.Token.Secret) < 32 {
		return errors.New("Token Secret must be at least 32 bytes")
	}
	if c.Token.TTL <= 0 {
		return errors.New("Token TTL must be > 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.PasswordPolicy.MinLength < 0 {
		return errors.New("PasswordPolicy MinLength must be >= 0")
	}

	// Session
	if c.Session.Lifetime <= 0 {
		return errors.New("Session Lifetime must be > 0")
	}

	// Throttle
	if c.Throttle.MaxAttempts < 1 {
		return errors.New("Throttle MaxAttempts must be >= 1")
	}
	if c.Throttle.Window <= 0 {
		return errors.New("Throttle Window must be > 0")
	}

	// Magic link
	if c.MagicLink.Enabled {
		if c.MagicLink.TTL <= 0 {
			return errors.New("MagicLink TTL must be > 0")
		}
		if c.MagicLink.MaxRequests < 1 || c.MagicLink.RequestWindow <= 0 {
			return errors.New("MagicLink MaxRequests and RequestWindow must be positive")
		}
	}

	// Lockout
	if c.Lockout.Threshold < 0 {
		return errors.New("Lockout Threshold must be >= 0")
	}
	if c.Lockout.Threshold > 0 && c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0 when Threshold is set")
	}
	if c.Lockout.Threshold > 0 && c.Lockout.Threshold < c.Throttle.MaxAttempts {
		return errors.New("Lockout Threshold must be >= Throttle MaxAttempts")
	}

	// TOTP
	if c.TOTP.Enabled {
		if c.TOTP.Period == 0 {
			return errors.New("TOTP Period must be > 0")
		}
		if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
			return errors.New("TOTP Digits must be 6 or 8")
		}
		if c.TOTP.Skew > 3 {
			return errors.New("TOTP Skew must be <= 3")
		}
	}

	// OAuth
	if c.OAuth.Timeout <= 0 {
		return errors.New("OAuth Timeout must be > 0")
	}

	// Password reset
	if c.PasswordReset.Enabled && c.PasswordReset.TTL <= 0 {
		return errors.New("PasswordReset TTL must be > 0")
	}

	// Sweep
	if c.Sweep.Interval < 0 {
		return errors.New("Sweep Interval must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
