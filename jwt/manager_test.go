package jwt

import (
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goSignIn/autherr"
	gjwt "github.com/golang-jwt/jwt/v5"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newTestManager(t *testing.T, clock *fakeClock) *Manager {
	t.Helper()
	m, err := NewManager(Config{Key: []byte("test-secret-test-secret"), TTL: 24 * time.Hour, Now: clock.Now})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestNewManagerRequiresKey(t *testing.T) {
	if _, err := NewManager(Config{TTL: time.Hour}); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey, got %v", err)
	}
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, clock)

	payload := map[string]any{"sub": "42", "role": "admin", "sid": "abc"}
	token, exp, err := m.Issue(payload)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if want := clock.t.Add(24 * time.Hour); !exp.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, exp)
	}

	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(claims) != len(payload)+1 {
		t.Fatalf("expected payload plus exp, got %v", claims)
	}
	for k, v := range payload {
		if claims[k] != v {
			t.Fatalf("claim %s: expected %v, got %v", k, v, claims[k])
		}
	}
	if got, ok := claims[ClaimExpiry].(int64); !ok || got != exp.Unix() {
		t.Fatalf("unexpected exp claim %v", claims[ClaimExpiry])
	}
}

func TestIssueIsDeterministic(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, clock)

	a, _, err := m.Issue(map[string]any{"sub": "1", "role": "user"})
	if err != nil {
		t.Fatalf("issue a: %v", err)
	}
	b, _, err := m.Issue(map[string]any{"role": "user", "sub": "1"})
	if err != nil {
		t.Fatalf("issue b: %v", err)
	}
	if a != b {
		t.Fatalf("expected identical tokens, got\n%s\n%s", a, b)
	}
}

func TestIssueOverridesCallerExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, clock)

	token, exp, err := m.Issue(map[string]any{"sub": "1", "exp": int64(1)})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims[ClaimExpiry] != exp.Unix() {
		t.Fatal("caller exp must be replaced")
	}
}

func TestVerifyExpired(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, clock)

	token, exp, err := m.IssueWithTTL(map[string]any{"sub": "1"}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clock.t = exp
	if _, err := m.Verify(token); !errors.Is(err, autherr.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired at expiry instant, got %v", err)
	}

	clock.t = exp.Add(-time.Second)
	if _, err := m.Verify(token); err != nil {
		t.Fatalf("expected token valid one second before expiry, got %v", err)
	}
}

func TestVerifyMutatedTokenReportsSignature(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, clock)

	token, _, err := m.Issue(map[string]any{"sub": "7", "role": "user"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	for i := 0; i < len(token); i++ {
		if token[i] == '.' {
			continue
		}
		mutated := []byte(token)
		if mutated[i] == 'A' {
			mutated[i] = 'B'
		} else {
			mutated[i] = 'A'
		}
		if _, err := m.Verify(string(mutated)); !errors.Is(err, autherr.ErrInvalidSignature) {
			t.Fatalf("byte %d: expected ErrInvalidSignature, got %v", i, err)
		}
	}
}

func TestVerifyRejectsAlteredSignatureTail(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, clock)

	token, _, err := m.Issue(map[string]any{"sub": "7"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	last := token[len(token)-1]
	for i := 0; i < len(alphabet); i++ {
		if alphabet[i] == last {
			continue
		}
		mutated := token[:len(token)-1] + string(alphabet[i])
		if _, err := m.Verify(mutated); !errors.Is(err, autherr.ErrInvalidSignature) {
			t.Fatalf("last char %q -> %q: expected ErrInvalidSignature, got %v", last, alphabet[i], err)
		}
	}
}

func TestVerifyKeepsNumericClaims(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, clock)

	payload := map[string]any{
		"n":     int64(42),
		"big":   int64(1) << 60,
		"ratio": 0.5,
		"ok":    true,
	}
	token, _, err := m.Issue(payload)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	for k, v := range payload {
		if claims[k] != v {
			t.Fatalf("claim %s: expected %v (%T), got %v (%T)", k, v, v, claims[k], claims[k])
		}
	}
}

func TestVerifyWrongKey(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, clock)

	other, err := NewManager(Config{Key: []byte("another-secret"), TTL: time.Hour, Now: clock.Now})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, _, err := other.Issue(map[string]any{"sub": "1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(token); !errors.Is(err, autherr.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyMalformed(t *testing.T) {
	m := newTestManager(t, &fakeClock{t: time.Now()})

	for _, input := range []string{"", "abc", "a.b", "a.b.c.d", "..", "a..c"} {
		if _, err := m.Verify(input); !errors.Is(err, autherr.ErrInvalidToken) {
			t.Fatalf("%q: expected ErrInvalidToken, got %v", input, err)
		}
	}
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	key := []byte("test-secret-test-secret")
	m, err := NewManager(Config{Key: key, TTL: time.Hour})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS512, gjwt.MapClaims{
		"sub": "1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Verify(signed); err == nil {
		t.Fatal("expected HS512 token to be rejected")
	}
}

func TestVerifyRequiresExpiry(t *testing.T) {
	key := []byte("test-secret-test-secret")
	m, err := NewManager(Config{Key: key, TTL: time.Hour})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	signed, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, gjwt.MapClaims{"sub": "1"}).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Verify(signed); !errors.Is(err, autherr.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken without exp, got %v", err)
	}
}
