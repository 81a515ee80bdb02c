package jwt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goSignIn/autherr"
	"github.com/golang-jwt/jwt/v5"
)

// ClaimExpiry is the claim name holding the expiry instant (unix seconds).
const ClaimExpiry = "exp"

// ErrMissingKey is returned by NewManager when no signing key is configured.
var ErrMissingKey = errors.New("jwt: signing key required")

// Config defines a public type used by goSignIn APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Key []byte
	TTL time.Duration
	Now func() time.Time
}

// Manager signs and verifies tokens with a single process-lifetime key.
type Manager struct {
	key    []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewManager validates cfg and returns a ready Manager. A missing key is a
// construction error, never a per-request one.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Key) == 0 {
		return nil, ErrMissingKey
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("jwt: invalid TTL configuration")
	}

	m := &Manager{
		key: append([]byte(nil), cfg.Key...),
		ttl: cfg.TTL,
		now: cfg.Now,
	}
	if m.now == nil {
		m.now = time.Now
	}
	m.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
		jwt.WithStrictDecoding(),
		jwt.WithJSONNumber(),
	)

	return m, nil
}

// TTL returns the default lifetime applied by Issue.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue signs payload with the default TTL.
func (m *Manager) Issue(payload map[string]any) (string, time.Time, error) {
	return m.IssueWithTTL(payload, m.ttl)
}

// IssueWithTTL signs a copy of payload with exp set to now+ttl. A caller
// supplied exp claim is always overwritten.
func (m *Manager) IssueWithTTL(payload map[string]any, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = m.ttl
	}

	expiresAt := time.Unix(m.now().Add(ttl).Unix(), 0)

	claims := make(jwt.MapClaims, len(payload)+1)
	for k, v := range payload {
		claims[k] = v
	}
	claims[ClaimExpiry] = expiresAt.Unix()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify returns the token's claims when the signature matches and the
// token has not expired. Integral numbers come back as int64 and other
// numbers as float64, so an int64 payload value round-trips unchanged. Errors are always one of autherr.ErrInvalidToken,
// autherr.ErrInvalidSignature or autherr.ErrTokenExpired (possibly wrapped).
func (m *Manager) Verify(token string) (map[string]any, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, fmt.Errorf("%w: expected three non-empty segments", autherr.ErrInvalidToken)
	}

	sig, err := m.parser.DecodeSegment(parts[2])
	if err != nil {
		return nil, autherr.ErrInvalidSignature
	}
	// hmac.Equal inside Verify keeps the comparison constant-time.
	if err := jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, m.key); err != nil {
		return nil, autherr.ErrInvalidSignature
	}

	parsed, err := m.parser.Parse(token, func(*jwt.Token) (interface{}, error) {
		return m.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, autherr.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", autherr.ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, autherr.ErrInvalidToken
	}

	out := make(map[string]any, len(claims))
	for k, v := range claims {
		out[k] = normalizeNumber(v)
	}
	return out, nil
}

func normalizeNumber(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		for k, inner := range t {
			t[k] = normalizeNumber(inner)
		}
		return t
	case []any:
		for i, inner := range t {
			t[i] = normalizeNumber(inner)
		}
		return t
	default:
		return v
	}
}
