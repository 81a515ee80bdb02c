package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

var (
	// ErrUnknownAuthority is returned by Authorities for unregistered providers.
	ErrUnknownAuthority = errors.New("no authority for provider")
	// ErrIdentityRejected is returned when the identity endpoint refuses the credential.
	ErrIdentityRejected = errors.New("identity rejected by authority")
)

// Authorities dispatches to one Authority per provider name.
type Authorities map[string]Authority

// Verify implements Authority.
func (a Authorities) Verify(ctx context.Context, provider, credential string) (*Identity, error) {
	auth, ok := a[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAuthority, provider)
	}
	return auth.Verify(ctx, provider, credential)
}

const (
	defaultRequestTimeout = 30 * time.Second
	maxUserInfoBytes      = 1 << 20
)

// HTTPConfig configures an HTTPAuthority.
type HTTPConfig struct {
	// OAuth2 is required when ExchangeCode is set. Its Endpoint.TokenURL
	// receives the authorization code.
	OAuth2 *oauth2.Config
	// ExchangeCode treats the credential as an authorization code instead of
	// an access token.
	ExchangeCode bool

	// UserInfoURL answers a bearer-authenticated GET with the identity as JSON.
	UserInfoURL string

	HTTPClient     *http.Client
	RequestTimeout time.Duration

	// RequestsPerSecond and Burst cap outbound calls. Zero disables the cap.
	RequestsPerSecond float64
	Burst             int
}

// HTTPAuthority verifies credentials against an OAuth 2.0 authorization
// server and its userinfo endpoint.
type HTTPAuthority struct {
	oauth       *oauth2.Config
	exchange    bool
	userInfoURL string
	client      *http.Client
	limiter     *rate.Limiter
}

var _ Authority = (*HTTPAuthority)(nil)

// NewHTTPAuthority creates an HTTPAuthority.
func NewHTTPAuthority(cfg HTTPConfig) (*HTTPAuthority, error) {
	if cfg.UserInfoURL == "" {
		return nil, errors.New("userinfo url is required")
	}
	if cfg.ExchangeCode && cfg.OAuth2 == nil {
		return nil, errors.New("oauth2 config is required for code exchange")
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &HTTPAuthority{
		oauth:       cfg.OAuth2,
		exchange:    cfg.ExchangeCode,
		userInfoURL: cfg.UserInfoURL,
		client:      client,
		limiter:     limiter,
	}, nil
}

// Verify exchanges the credential when configured to, then reads the
// identity from the userinfo endpoint.
func (a *HTTPAuthority) Verify(ctx context.Context, provider, credential string) (*Identity, error) {
	if credential == "" {
		return nil, ErrIdentityRejected
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for %s rate limit: %w", provider, err)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client)

	token := &oauth2.Token{AccessToken: credential, TokenType: "Bearer"}
	if a.exchange {
		exchanged, err := a.oauth.Exchange(ctx, credential)
		if err != nil {
			return nil, fmt.Errorf("exchange %s code: %w", provider, err)
		}
		token = exchanged
	}

	return a.fetchUserInfo(ctx, token)
}

func (a *HTTPAuthority) fetchUserInfo(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create userinfo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token)).Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrIdentityRejected
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("userinfo request failed with status %d", resp.StatusCode)
	}

	var body struct {
		Sub           string          `json:"sub"`
		ID            json.RawMessage `json:"id"`
		Email         string          `json:"email"`
		Name          string          `json:"name"`
		EmailVerified *bool           `json:"email_verified"`
		VerifiedEmail *bool           `json:"verified_email"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUserInfoBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}

	id := &Identity{
		ExternalID: body.Sub,
		Email:      body.Email,
		Name:       body.Name,
	}
	if id.ExternalID == "" {
		id.ExternalID = rawID(body.ID)
	}
	switch {
	case body.EmailVerified != nil:
		id.EmailVerified = *body.EmailVerified
	case body.VerifiedEmail != nil:
		id.EmailVerified = *body.VerifiedEmail
	}
	if id.ExternalID == "" {
		return nil, fmt.Errorf("%w: userinfo has no subject", ErrIdentityRejected)
	}
	return id, nil
}

// rawID accepts both string and numeric ids.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
