package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/MrEthical07/goSignIn/users"
)

// Principal is the identity a provider vouches for. It is a projection of
// the stored user without credential material.
type Principal struct {
	ID          int64
	Email       string
	Username    string
	Role        users.Role
	Verified    bool
	Provider    string
	TOTPEnabled bool
}

// PrincipalFromUser projects u as authenticated by provider.
func PrincipalFromUser(u *users.User, provider string) *Principal {
	return &Principal{
		ID:          u.ID,
		Email:       u.Email,
		Username:    u.Username,
		Role:        u.Role,
		Verified:    u.Verified,
		Provider:    provider,
		TOTPEnabled: u.TOTPEnabled,
	}
}

// Credentials carries the provider-specific proof presented at sign-in.
// Each provider reads only the fields it understands.
type Credentials struct {
	Email    string
	Username string
	Password string
	// Token is a magic-link token or an opaque OAuth credential.
	Token string
	// Code is an authorization code for OAuth or a one-time code for TOTP.
	Code string
	// SecondFactor is the current TOTP code of an account that has TOTP
	// enabled, presented alongside the primary credential.
	SecondFactor string
}

// ThrottleKey returns the identifier attempts are counted against.
func (c Credentials) ThrottleKey() string {
	if c.Email != "" {
		return users.FoldEmail(c.Email)
	}
	return c.Token
}

// Registration is a new local account request.
type Registration struct {
	Email           string
	Username        string
	DisplayName     string
	Password        string
	ConfirmPassword string
}

// Provider authenticates one kind of credential.
type Provider interface {
	Name() string
	Authenticate(ctx context.Context, c Credentials) (*Principal, error)
}

// Registrar is implemented by providers that can create accounts.
type Registrar interface {
	Register(ctx context.Context, r Registration) (*Principal, error)
}

// CredentialResetter is implemented by providers whose secret can be replaced.
type CredentialResetter interface {
	ResetCredential(ctx context.Context, email, secret string) error
}

// CredentialValidator is implemented by providers that check credential
// shape before any lookup.
type CredentialValidator interface {
	ValidateCredentials(c Credentials) error
}

var (
	// ErrDuplicateProvider is returned when a name is registered twice.
	ErrDuplicateProvider = errors.New("provider already registered")
	// ErrUnnamedProvider is returned for providers whose Name is empty.
	ErrUnnamedProvider = errors.New("provider name is empty")
)

// Registry maps provider names to providers.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Provider)}
}

// Register adds p under p.Name().
func (r *Registry) Register(p Provider) error {
	name := p.Name()
	if name == "" {
		return ErrUnnamedProvider
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateProvider, name)
	}
	r.byName[name] = p
	return nil
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	return p, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
