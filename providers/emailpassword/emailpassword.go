// Package emailpassword authenticates local accounts by email and password.
package emailpassword

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/goSignIn/autherr"
	"github.com/MrEthical07/goSignIn/internal/validate"
	"github.com/MrEthical07/goSignIn/providers"
	"github.com/MrEthical07/goSignIn/users"
)

// Name is the registry name of this provider.
const Name = "email"

// Hasher derives and checks password hashes.
type Hasher interface {
	HashPassword(plain string) (string, error)
	VerifyPassword(plain, encoded string) bool
}

// Config tunes lockout and password shape rules.
type Config struct {
	// LockoutThreshold is the number of consecutive wrong passwords that
	// locks the account. Zero disables lockout.
	LockoutThreshold int
	LockoutDuration  time.Duration

	Policy validate.Policy
	Now    func() time.Time
	Logger *slog.Logger
}

// Provider is the email and password provider.
type Provider struct {
	store  users.Store
	hasher Hasher
	cfg    Config

	// failMu serializes the read-modify-write of failure counters.
	failMu sync.Mutex

	dummyOnce sync.Once
	dummyHash string
}

var (
	_ providers.Provider            = (*Provider)(nil)
	_ providers.Registrar           = (*Provider)(nil)
	_ providers.CredentialResetter  = (*Provider)(nil)
	_ providers.CredentialValidator = (*Provider)(nil)
)

// New creates the provider.
func New(store users.Store, hasher Hasher, cfg Config) *Provider {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.LockoutThreshold > 0 && cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = 15 * time.Minute
	}
	return &Provider{store: store, hasher: hasher, cfg: cfg}
}

// Name implements providers.Provider.
func (p *Provider) Name() string { return Name }

// ValidateCredentials checks the email and password shape.
func (p *Provider) ValidateCredentials(c providers.Credentials) error {
	return validate.SignIn(c.Email, c.Password, p.cfg.Policy)
}

// Authenticate loads the account by email, refuses locked accounts, and
// checks the password. A wrong password counts toward lockout; a correct one
// clears the counter and stamps LastLogin.
func (p *Provider) Authenticate(ctx context.Context, c providers.Credentials) (*providers.Principal, error) {
	u, err := p.store.ByEmail(ctx, c.Email)
	if err != nil {
		if errors.Is(err, autherr.ErrUserNotFound) {
			p.burnVerify(c.Password)
		}
		return nil, err
	}

	now := p.cfg.Now()
	if u.Locked(now) {
		p.cfg.Logger.Info("sign-in refused", "reason", "locked", "user_id", u.ID)
		return nil, autherr.ErrAccountLocked
	}

	if u.PasswordHash == "" {
		p.burnVerify(c.Password)
	}
	if u.PasswordHash == "" || !p.hasher.VerifyPassword(c.Password, u.PasswordHash) {
		p.recordFailure(ctx, u.ID)
		p.cfg.Logger.Debug("sign-in refused", "reason", "password_mismatch", "user_id", u.ID)
		return nil, autherr.ErrInvalidCredentials
	}

	updated, err := p.store.Update(ctx, u.ID, users.Patch{
		FailedAttempts: users.Ptr(0),
		LockedUntil:    users.Ptr(time.Time{}),
		LastLogin:      users.Ptr(now),
	})
	if err != nil {
		return nil, err
	}
	return providers.PrincipalFromUser(updated, Name), nil
}

// burnVerify runs one password check against a throwaway hash so that
// accounts without a usable hash cost as much as a wrong password.
func (p *Provider) burnVerify(plain string) {
	p.dummyOnce.Do(func() {
		h, err := p.hasher.HashPassword("unusable-" + time.Now().String())
		if err != nil {
			p.cfg.Logger.Warn("dummy hash unavailable", "error", err)
			return
		}
		p.dummyHash = h
	})
	if p.dummyHash != "" {
		p.hasher.VerifyPassword(plain, p.dummyHash)
	}
}

func (p *Provider) recordFailure(ctx context.Context, id int64) {
	if p.cfg.LockoutThreshold <= 0 {
		return
	}

	p.failMu.Lock()
	defer p.failMu.Unlock()

	u, err := p.store.ByID(ctx, id)
	if err != nil {
		return
	}

	patch := users.Patch{FailedAttempts: users.Ptr(u.FailedAttempts + 1)}
	if u.FailedAttempts+1 >= p.cfg.LockoutThreshold {
		patch.FailedAttempts = users.Ptr(0)
		patch.LockedUntil = users.Ptr(p.cfg.Now().Add(p.cfg.LockoutDuration))
		p.cfg.Logger.Info("account locked", "user_id", id, "until", *patch.LockedUntil)
	}
	if _, err := p.store.Update(ctx, id, patch); err != nil {
		p.cfg.Logger.Warn("record failed attempt", "user_id", id, "error", err)
	}
}

// Register creates an unverified account with role user. It does not sign
// the account in.
func (p *Provider) Register(ctx context.Context, r providers.Registration) (*providers.Principal, error) {
	if _, err := p.store.ByEmail(ctx, r.Email); err == nil {
		return nil, autherr.ErrUserExists
	} else if !errors.Is(err, autherr.ErrUserNotFound) {
		return nil, err
	}

	hash, err := p.hasher.HashPassword(r.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := p.store.Create(ctx, users.User{
		Email:             r.Email,
		Username:          r.Username,
		DisplayName:       r.DisplayName,
		PasswordHash:      hash,
		Role:              users.RoleUser,
		Verified:          false,
		PasswordChangedAt: p.cfg.Now(),
	})
	if err != nil {
		return nil, err
	}
	return providers.PrincipalFromUser(u, Name), nil
}

// ResetCredential replaces the password of the account at email and stamps
// PasswordChangedAt. It also lifts any lockout.
func (p *Provider) ResetCredential(ctx context.Context, email, secret string) error {
	u, err := p.store.ByEmail(ctx, email)
	if err != nil {
		return err
	}

	hash, err := p.hasher.HashPassword(secret)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	_, err = p.store.Update(ctx, u.ID, users.Patch{
		PasswordHash:      users.Ptr(hash),
		PasswordChangedAt: users.Ptr(p.cfg.Now()),
		FailedAttempts:    users.Ptr(0),
		LockedUntil:       users.Ptr(time.Time{}),
	})
	return err
}
