package security

import (
	"errors"
	"time"

	"github.com/MrEthical07/goSignIn/internal"
	"github.com/MrEthical07/goSignIn/jwt"
	"github.com/MrEthical07/goSignIn/password"
)

// ErrMissingSecret is returned by New when no signing secret is configured.
var ErrMissingSecret = errors.New("security: signing secret required")

// Config is the immutable input to New.
type Config struct {
	Secret   []byte
	TokenTTL time.Duration
	Password password.Config
	Now      func() time.Time
}

// Verification is the outcome of Service.Verify. Err is nil iff Valid.
type Verification struct {
	Valid   bool
	Payload map[string]any
	Err     error
}

// Service issues and verifies tokens, hashes passwords, and seals payloads.
// It is safe for concurrent use.
type Service struct {
	tokens *jwt.Manager
	hasher *password.Argon2
	aead   *sealer
}

// New builds a Service from cfg.
func New(cfg Config) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrMissingSecret
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.Password == (password.Config{}) {
		cfg.Password = password.DefaultConfig()
	}

	tokens, err := jwt.NewManager(jwt.Config{Key: cfg.Secret, TTL: cfg.TokenTTL, Now: cfg.Now})
	if err != nil {
		return nil, err
	}
	hasher, err := password.NewPepperedArgon2(cfg.Password, cfg.Secret)
	if err != nil {
		return nil, err
	}
	aead, err := newSealer(cfg.Secret)
	if err != nil {
		return nil, err
	}

	return &Service{tokens: tokens, hasher: hasher, aead: aead}, nil
}

// TokenTTL returns the default token lifetime.
func (s *Service) TokenTTL() time.Duration {
	return s.tokens.TTL()
}

// Issue signs payload with the default lifetime.
func (s *Service) Issue(payload map[string]any) (string, time.Time, error) {
	return s.tokens.Issue(payload)
}

// IssueWithTTL signs payload with an explicit lifetime.
func (s *Service) IssueWithTTL(payload map[string]any, ttl time.Duration) (string, time.Time, error) {
	return s.tokens.IssueWithTTL(payload, ttl)
}

// Verify never panics; every failure is reported through Verification.Err.
func (s *Service) Verify(token string) Verification {
	payload, err := s.tokens.Verify(token)
	if err != nil {
		return Verification{Err: err}
	}
	return Verification{Valid: true, Payload: payload}
}

// HashPassword returns a PHC-encoded peppered Argon2id hash.
func (s *Service) HashPassword(plain string) (string, error) {
	return s.hasher.Hash(plain)
}

// VerifyPassword reports whether plain matches encoded. Malformed encodings
// verify as false.
func (s *Service) VerifyPassword(plain, encoded string) bool {
	ok, err := s.hasher.Verify(plain, encoded)
	return err == nil && ok
}

// Seal encrypts plaintext, binding aad into the authentication tag.
func (s *Service) Seal(plaintext, aad []byte) (Envelope, error) {
	return s.aead.seal(plaintext, aad)
}

// Open reverses Seal. Tampering with any envelope field or aad fails with
// autherr.ErrInvalidToken.
func (s *Service) Open(env Envelope, aad []byte) ([]byte, error) {
	return s.aead.open(env, aad)
}

// SealString is Seal with the compact string encoding.
func (s *Service) SealString(plaintext, aad []byte) (string, error) {
	env, err := s.aead.seal(plaintext, aad)
	if err != nil {
		return "", err
	}
	return env.String(), nil
}

// OpenString reverses SealString.
func (s *Service) OpenString(sealed string, aad []byte) ([]byte, error) {
	env, err := ParseEnvelope(sealed)
	if err != nil {
		return nil, err
	}
	return s.aead.open(env, aad)
}

// RandomToken returns n random bytes as lowercase hex.
func RandomToken(n int) (string, error) {
	return internal.RandomHex(n)
}
