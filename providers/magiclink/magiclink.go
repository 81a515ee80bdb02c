// Package magiclink implements passwordless sign-in through single-use
// links. Pending links live in process memory, never in the user store.
package magiclink

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/MrEthical07/goSignIn/autherr"
	"github.com/MrEthical07/goSignIn/internal"
	"github.com/MrEthical07/goSignIn/internal/validate"
	"github.com/MrEthical07/goSignIn/providers"
	"github.com/MrEthical07/goSignIn/users"
)

// Name is the registry name of this provider.
const Name = "magic_link"

const (
	// DefaultTTL applies when Config.TTL is zero.
	DefaultTTL = 15 * time.Minute
	// DefaultRedirect is used when GenerateLink receives no redirect.
	DefaultRedirect = "/"

	tokenBytes = 32
)

// Config tunes link lifetime.
type Config struct {
	TTL time.Duration
	Now func() time.Time
}

// Link is a freshly issued magic link. Delivering URL to the user is the
// caller's job.
type Link struct {
	Token     string
	URL       string
	ExpiresAt time.Time
}

type pending struct {
	email     string
	expiresAt time.Time
	used      bool
}

// Provider issues and consumes magic links.
type Provider struct {
	store users.Store
	ttl   time.Duration
	now   func() time.Time

	mu     sync.Mutex
	tokens map[[32]byte]*pending
}

var (
	_ providers.Provider            = (*Provider)(nil)
	_ providers.CredentialValidator = (*Provider)(nil)
)

// New creates the provider.
func New(store users.Store, cfg Config) *Provider {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Provider{
		store:  store,
		ttl:    cfg.TTL,
		now:    cfg.Now,
		tokens: make(map[[32]byte]*pending),
	}
}

// Name implements providers.Provider.
func (p *Provider) Name() string { return Name }

// GenerateLink issues a single-use token for email and appends it to
// redirect as the token query parameter.
func (p *Provider) GenerateLink(ctx context.Context, email, redirect string) (*Link, error) {
	if !validate.Email(email) {
		return nil, fmt.Errorf("%w: invalid email address", autherr.ErrValidation)
	}
	if redirect == "" {
		redirect = DefaultRedirect
	}
	target, err := url.Parse(redirect)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid redirect", autherr.ErrValidation)
	}

	token, err := internal.RandomHex(tokenBytes)
	if err != nil {
		return nil, err
	}

	q := target.Query()
	q.Set("token", token)
	target.RawQuery = q.Encode()

	expiresAt := p.now().Add(p.ttl)
	p.mu.Lock()
	p.tokens[internal.HashToken(token)] = &pending{
		email:     users.NormalizeEmail(email),
		expiresAt: expiresAt,
	}
	p.mu.Unlock()

	return &Link{Token: token, URL: target.String(), ExpiresAt: expiresAt}, nil
}

// ValidateCredentials requires a token.
func (p *Provider) ValidateCredentials(c providers.Credentials) error {
	if c.Token == "" {
		return fmt.Errorf("%w: token required", autherr.ErrValidation)
	}
	return nil
}

// Authenticate consumes c.Token. Of several concurrent calls with the same
// token exactly one proceeds; the rest fail with autherr.ErrAlreadyUsed. The
// account for the link's email is created on first use and marked verified.
func (p *Provider) Authenticate(ctx context.Context, c providers.Credentials) (*providers.Principal, error) {
	email, err := p.consume(c.Token)
	if err != nil {
		return nil, err
	}

	u, err := p.findOrCreate(ctx, email)
	if err != nil {
		return nil, err
	}
	return providers.PrincipalFromUser(u, Name), nil
}

func (p *Provider) consume(token string) (string, error) {
	key := internal.HashToken(token)

	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.tokens[key]
	if !ok {
		return "", autherr.ErrInvalidOrExpiredLink
	}
	if e.used {
		return "", autherr.ErrAlreadyUsed
	}
	if p.now().After(e.expiresAt) {
		delete(p.tokens, key)
		return "", autherr.ErrInvalidOrExpiredLink
	}
	e.used = true
	return e.email, nil
}

func (p *Provider) findOrCreate(ctx context.Context, email string) (*users.User, error) {
	u, err := p.store.ByEmail(ctx, email)
	if errors.Is(err, autherr.ErrUserNotFound) {
		u, err = p.store.Create(ctx, users.User{Email: email, Role: users.RoleUser, Verified: true})
		if errors.Is(err, autherr.ErrUserExists) {
			u, err = p.store.ByEmail(ctx, email)
		}
	}
	if err != nil {
		return nil, err
	}

	if !u.Verified {
		return p.store.Update(ctx, u.ID, users.Patch{Verified: users.Ptr(true)})
	}
	return u, nil
}

// Sweep drops links past their expiry, used or not, and returns how many
// were dropped. The lock is taken per link.
func (p *Provider) Sweep() int {
	p.mu.Lock()
	keys := make([][32]byte, 0, len(p.tokens))
	for key := range p.tokens {
		keys = append(keys, key)
	}
	p.mu.Unlock()

	removed := 0
	for _, key := range keys {
		p.mu.Lock()
		if e, ok := p.tokens[key]; ok && p.now().After(e.expiresAt) {
			delete(p.tokens, key)
			removed++
		}
		p.mu.Unlock()
	}
	return removed
}

// Pending returns the number of links held in memory.
func (p *Provider) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tokens)
}
