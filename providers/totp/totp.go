// Package totp provides time-based one-time codes (RFC 6238), both as a
// second factor and as a standalone provider that authenticates an email
// plus a current code.
package totp

import (
	"context"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/MrEthical07/goSignIn/autherr"
	"github.com/MrEthical07/goSignIn/internal/validate"
	"github.com/MrEthical07/goSignIn/providers"
	"github.com/MrEthical07/goSignIn/users"
)

// Name is the registry name of this provider.
const Name = "totp"

const (
	DefaultIssuer = "SignInEngine"
	DefaultPeriod = 30
	DefaultSkew   = 1
	DefaultDigits = 6

	secretSize = 20
)

// Config tunes code generation. Codes are always HMAC-SHA1.
type Config struct {
	Issuer string
	Period uint
	// Skew is the number of neighbouring time steps accepted on each side.
	Skew   uint
	Digits int
	Now    func() time.Time
}

// Setup is a freshly generated shared secret.
type Setup struct {
	// Secret is base32 without padding.
	Secret string
	// URI is the otpauth:// provisioning URI for authenticator apps.
	URI string
}

// Provider generates and checks codes. It holds no per-user state.
type Provider struct {
	store  users.Store
	issuer string
	opts   totp.ValidateOpts
	now    func() time.Time
}

var (
	_ providers.Provider            = (*Provider)(nil)
	_ providers.CredentialValidator = (*Provider)(nil)
)

// New creates the provider. A nil store is allowed when the provider is only
// used to generate and verify codes.
func New(store users.Store, cfg Config) *Provider {
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.Period == 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Digits == 0 {
		cfg.Digits = DefaultDigits
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Provider{
		store:  store,
		issuer: cfg.Issuer,
		opts: totp.ValidateOpts{
			Period:    cfg.Period,
			Skew:      cfg.Skew,
			Digits:    otp.Digits(cfg.Digits),
			Algorithm: otp.AlgorithmSHA1,
		},
		now: cfg.Now,
	}
}

// Name implements providers.Provider.
func (p *Provider) Name() string { return Name }

// GenerateSecret creates a 160-bit secret bound to account.
func (p *Provider) GenerateSecret(account string) (*Setup, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      p.issuer,
		AccountName: account,
		Period:      p.opts.Period,
		SecretSize:  secretSize,
		Digits:      p.opts.Digits,
		Algorithm:   p.opts.Algorithm,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}
	return &Setup{Secret: key.Secret(), URI: key.URL()}, nil
}

// Verify reports whether code is valid for secret at the current step or
// within the configured skew.
func (p *Provider) Verify(secret, code string) bool {
	return p.VerifyAt(secret, code, p.now())
}

// VerifyAt is Verify at an explicit time.
func (p *Provider) VerifyAt(secret, code string, at time.Time) bool {
	if secret == "" || code == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, at.UTC(), p.opts)
	return err == nil && ok
}

// Code returns the code for secret at t.
func (p *Provider) Code(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t.UTC(), p.opts)
}

// ValidateCredentials requires an email and a code of the configured length.
func (p *Provider) ValidateCredentials(c providers.Credentials) error {
	if !validate.Email(c.Email) {
		return fmt.Errorf("%w: invalid email address", autherr.ErrValidation)
	}
	if len(c.Code) != p.opts.Digits.Length() {
		return fmt.Errorf("%w: code must be %d digits", autherr.ErrValidation, p.opts.Digits.Length())
	}
	return nil
}

// Authenticate signs in an account with TOTP enabled using its email and a
// current code.
func (p *Provider) Authenticate(ctx context.Context, c providers.Credentials) (*providers.Principal, error) {
	u, err := p.store.ByEmail(ctx, c.Email)
	if err != nil {
		return nil, err
	}
	if !u.TOTPEnabled || !p.Verify(u.TOTPSecret, c.Code) {
		return nil, autherr.ErrInvalidCredentials
	}

	u, err = p.store.Update(ctx, u.ID, users.Patch{LastLogin: users.Ptr(p.now())})
	if err != nil {
		return nil, err
	}
	return providers.PrincipalFromUser(u, Name), nil
}
