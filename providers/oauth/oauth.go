// Package oauth signs users in with identities vouched for by an external
// authority.
//
// The protocol work (redirects, code exchange, token validation) belongs to
// an [Authority]. This package only turns a verified [Identity] into a local
// account, keyed by the pair (provider name, external id).
package oauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/MrEthical07/goSignIn/autherr"
	"github.com/MrEthical07/goSignIn/providers"
	"github.com/MrEthical07/goSignIn/users"
)

// DefaultTimeout bounds a single authority call when Config.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// Identity is what an authority asserts about the credential holder.
type Identity struct {
	ExternalID    string
	Email         string
	Name          string
	EmailVerified bool
}

// Authority verifies an opaque credential issued by the named provider.
type Authority interface {
	Verify(ctx context.Context, provider, credential string) (*Identity, error)
}

// AuthorityFunc adapts a function to Authority.
type AuthorityFunc func(ctx context.Context, provider, credential string) (*Identity, error)

// Verify implements Authority.
func (f AuthorityFunc) Verify(ctx context.Context, provider, credential string) (*Identity, error) {
	return f(ctx, provider, credential)
}

var (
	// ErrMissingAuthority is returned by New when no authority is configured.
	ErrMissingAuthority = errors.New("oauth authority is required")
	// ErrMissingName is returned by New when the provider has no name.
	ErrMissingName = errors.New("oauth provider name is required")
)

// Config configures one OAuth provider.
type Config struct {
	// Name is both the registry name and the identity namespace, for
	// example "github".
	Name      string
	Authority Authority
	Timeout   time.Duration
	Now       func() time.Time
	Logger    *slog.Logger
}

// Provider authenticates credentials through an Authority.
type Provider struct {
	name      string
	store     users.Store
	authority Authority
	timeout   time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

var (
	_ providers.Provider            = (*Provider)(nil)
	_ providers.CredentialValidator = (*Provider)(nil)
)

// New creates a provider.
func New(store users.Store, cfg Config) (*Provider, error) {
	if cfg.Name == "" {
		return nil, ErrMissingName
	}
	if cfg.Authority == nil {
		return nil, ErrMissingAuthority
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Provider{
		name:      cfg.Name,
		store:     store,
		authority: cfg.Authority,
		timeout:   cfg.Timeout,
		now:       cfg.Now,
		logger:    cfg.Logger,
	}, nil
}

// Name implements providers.Provider.
func (p *Provider) Name() string { return p.name }

// ValidateCredentials requires a token or an authorization code.
func (p *Provider) ValidateCredentials(c providers.Credentials) error {
	if credential(c) == "" {
		return fmt.Errorf("%w: token or code required", autherr.ErrValidation)
	}
	return nil
}

func credential(c providers.Credentials) string {
	if c.Token != "" {
		return c.Token
	}
	return c.Code
}

// Authenticate verifies the credential with the authority, bounded by the
// configured timeout, then finds or creates the linked account.
//
// An identity links to an existing account with the same email only when the
// authority reports that email as verified.
func (p *Provider) Authenticate(ctx context.Context, c providers.Credentials) (*providers.Principal, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	id, err := p.authority.Verify(callCtx, p.name, credential(c))
	cancel()
	if err != nil {
		p.logger.Info("oauth verification failed", "provider", p.name, "error", err)
		return nil, fmt.Errorf("%w: %w", autherr.ErrInvalidCredentials, err)
	}
	if id == nil || id.ExternalID == "" {
		return nil, fmt.Errorf("%w: authority returned no subject", autherr.ErrInvalidCredentials)
	}

	u, err := p.resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	u, err = p.store.Update(ctx, u.ID, users.Patch{LastLogin: users.Ptr(p.now())})
	if err != nil {
		return nil, err
	}
	return providers.PrincipalFromUser(u, p.name), nil
}

func (p *Provider) resolve(ctx context.Context, id *Identity) (*users.User, error) {
	u, err := p.store.ByExternalIdentity(ctx, p.name, id.ExternalID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, autherr.ErrUserNotFound) {
		return nil, err
	}

	if id.Email == "" {
		return nil, fmt.Errorf("%w: authority returned no email", autherr.ErrInvalidCredentials)
	}

	existing, err := p.store.ByEmail(ctx, id.Email)
	switch {
	case err == nil:
		return p.link(ctx, existing, id)
	case !errors.Is(err, autherr.ErrUserNotFound):
		return nil, err
	}

	u, err = p.store.Create(ctx, users.User{
		Email:       id.Email,
		DisplayName: id.Name,
		Provider:    p.name,
		ExternalID:  id.ExternalID,
		Role:        users.RoleUser,
		Verified:    id.EmailVerified,
	})
	if errors.Is(err, autherr.ErrUserExists) {
		// Lost a race with a concurrent first sign-in.
		return p.store.ByExternalIdentity(ctx, p.name, id.ExternalID)
	}
	return u, err
}

func (p *Provider) link(ctx context.Context, u *users.User, id *Identity) (*users.User, error) {
	if !id.EmailVerified {
		p.logger.Info("oauth sign-in refused", "provider", p.name, "reason", "unverified_email_collision", "user_id", u.ID)
		return nil, autherr.ErrInvalidCredentials
	}
	if u.ExternalID != "" {
		// Already linked elsewhere; the verified email is enough to sign in.
		return u, nil
	}

	return p.store.Update(ctx, u.ID, users.Patch{
		Provider:   users.Ptr(p.name),
		ExternalID: users.Ptr(id.ExternalID),
		Verified:   users.Ptr(true),
	})
}
