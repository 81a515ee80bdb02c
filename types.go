package goSignIn

import (
	"time"

	"github.com/MrEthical07/goSignIn/providers"
	"github.com/MrEthical07/goSignIn/providers/emailpassword"
	"github.com/MrEthical07/goSignIn/providers/magiclink"
	"github.com/MrEthical07/goSignIn/providers/oauth"
	"github.com/MrEthical07/goSignIn/providers/totp"
	"github.com/MrEthical07/goSignIn/security"
	"github.com/MrEthical07/goSignIn/session"
	"github.com/MrEthical07/goSignIn/users"
)

type (
	// Principal is the authenticated identity, without credential material.
	Principal    = providers.Principal
	Credentials  = providers.Credentials
	Registration = providers.Registration
	Provider     = providers.Provider

	Session = session.Session

	User       = users.User
	UserFilter = users.Filter
	UserStore  = users.Store
	Role       = users.Role

	// Verification is the outcome of Engine.VerifyToken.
	Verification = security.Verification

	MagicLink = magiclink.Link
	TOTPSetup = totp.Setup

	OAuthAuthority = oauth.Authority
	OAuthIdentity  = oauth.Identity
)

const (
	RoleUser      = users.RoleUser
	RoleAdmin     = users.RoleAdmin
	RoleModerator = users.RoleModerator
)

// Provider names registered by every engine. OAuth providers use the name
// passed to Builder.WithOAuth.
const (
	ProviderEmail     = emailpassword.Name
	ProviderMagicLink = magiclink.Name
	ProviderTOTP      = totp.Name
)

// Token claim names.
const (
	ClaimSubject  = "sub"
	ClaimSession  = "sid"
	ClaimEmail    = "email"
	ClaimRole     = "role"
	ClaimProvider = "provider"
	ClaimType     = "typ"
	ClaimBinding  = "bnd"
)

// Token types carried in ClaimType.
const (
	TokenTypeAccess = "access"
	TokenTypeReset  = "password_reset"
)

// SignInResult is returned by a successful sign-in or refresh.
type SignInResult struct {
	Principal *Principal
	Token     string
	SessionID string
	// ExpiresAt is the token expiry. The session may outlive it.
	ExpiresAt time.Time
}

// PasswordResetTicket carries a single-use reset token. Delivering it to the
// account owner is the caller's job.
type PasswordResetTicket struct {
	Token     string
	ExpiresAt time.Time
}
