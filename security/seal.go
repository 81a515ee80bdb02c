package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/MrEthical07/goSignIn/autherr"
	"golang.org/x/crypto/hkdf"
)

const (
	aeadKeySize = 32
	aeadInfo    = "goSignIn aead v1"
)

// Envelope is an AES-256-GCM ciphertext split into its three parts.
type Envelope struct {
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
	Tag        string `json:"tag"`
}

// String joins the parts as base64url segments separated by dots.
func (e Envelope) String() string {
	return strings.Join([]string{e.Nonce, e.Ciphertext, e.Tag}, ".")
}

// ParseEnvelope splits the output of Envelope.String.
func ParseEnvelope(s string) (Envelope, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Envelope{}, fmt.Errorf("%w: malformed envelope", autherr.ErrInvalidToken)
	}
	return Envelope{Nonce: parts[0], Ciphertext: parts[1], Tag: parts[2]}, nil
}

type sealer struct {
	gcm cipher.AEAD
}

func newSealer(secret []byte) (*sealer, error) {
	key := make([]byte, aeadKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(aeadInfo)), key); err != nil {
		return nil, fmt.Errorf("derive aead key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}

	return &sealer{gcm: gcm}, nil
}

func (s *sealer) seal(plaintext, aad []byte) (Envelope, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return Envelope{}, fmt.Errorf("generate nonce: %w", err)
	}

	out := s.gcm.Seal(nil, nonce, plaintext, aad)
	split := len(out) - s.gcm.Overhead()

	enc := base64.RawURLEncoding
	return Envelope{
		Nonce:      enc.EncodeToString(nonce),
		Ciphertext: enc.EncodeToString(out[:split]),
		Tag:        enc.EncodeToString(out[split:]),
	}, nil
}

func (s *sealer) open(env Envelope, aad []byte) ([]byte, error) {
	enc := base64.RawURLEncoding
	nonce, err := enc.DecodeString(env.Nonce)
	if err != nil || len(nonce) != s.gcm.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce", autherr.ErrInvalidToken)
	}
	body, err := enc.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ciphertext", autherr.ErrInvalidToken)
	}
	tag, err := enc.DecodeString(env.Tag)
	if err != nil || len(tag) != s.gcm.Overhead() {
		return nil, fmt.Errorf("%w: bad tag", autherr.ErrInvalidToken)
	}

	plain, err := s.gcm.Open(nil, nonce, append(body, tag...), aad)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", autherr.ErrInvalidToken)
	}
	return plain, nil
}

// Fingerprint returns a short stable hex digest of v, suitable for binding a
// value into a token without revealing it.
func Fingerprint(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:8])
}
