package totp

import (
	"context"
	"encoding/base32"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goSignIn/autherr"
	"github.com/MrEthical07/goSignIn/providers"
	"github.com/MrEthical07/goSignIn/users"
)

func TestRFC6238VectorsSHA1(t *testing.T) {
	p := New(nil, Config{Digits: 8, Skew: 0})
	secret := base32.StdEncoding.EncodeToString([]byte("12345678901234567890"))
	cases := []struct {
		ts   int64
		code string
	}{
		{59, "94287082"},
		{1111111109, "07081804"},
		{1111111111, "14050471"},
		{1234567890, "89005924"},
		{2000000000, "69279037"},
		{20000000000, "65353130"},
	}

	for _, tc := range cases {
		if !p.VerifyAt(secret, tc.code, time.Unix(tc.ts, 0)) {
			t.Fatalf("SHA1 vector failed at t=%d", tc.ts)
		}
		got, err := p.Code(secret, time.Unix(tc.ts, 0))
		if err != nil || got != tc.code {
			t.Fatalf("code at t=%d: got %q err=%v, want %q", tc.ts, got, err, tc.code)
		}
	}
}

func TestGenerateSecret(t *testing.T) {
	p := New(nil, Config{})
	setup, err := p.GenerateSecret("a@b.com")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(setup.Secret)
	if err != nil || len(raw) != 20 {
		t.Fatalf("expected 20-byte base32 secret, got %d bytes err=%v", len(raw), err)
	}

	u, err := url.Parse(setup.URI)
	if err != nil {
		t.Fatalf("parse uri: %v", err)
	}
	if u.Scheme != "otpauth" || u.Host != "totp" {
		t.Fatalf("unexpected uri %q", setup.URI)
	}
	q := u.Query()
	if q.Get("issuer") != DefaultIssuer || q.Get("secret") != setup.Secret || q.Get("digits") != "6" || q.Get("period") != "30" {
		t.Fatalf("unexpected uri params %q", setup.URI)
	}
	if !strings.Contains(u.Path, "a@b.com") {
		t.Fatalf("account missing from uri %q", setup.URI)
	}

	other, _ := p.GenerateSecret("a@b.com")
	if other.Secret == setup.Secret {
		t.Fatalf("secrets must be random")
	}
}

func TestVerifySkewWindow(t *testing.T) {
	base := time.Unix(1_700_000_010, 0)
	p := New(nil, Config{Skew: 1, Now: func() time.Time { return base }})
	setup, err := p.GenerateSecret("a@b.com")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	for _, offset := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
		code, err := p.Code(setup.Secret, base.Add(offset))
		if err != nil {
			t.Fatalf("code: %v", err)
		}
		if !p.Verify(setup.Secret, code) {
			t.Fatalf("code at offset %v rejected", offset)
		}
	}

	far, _ := p.Code(setup.Secret, base.Add(-90*time.Second))
	near, _ := p.Code(setup.Secret, base)
	if far != near && p.Verify(setup.Secret, far) {
		t.Fatalf("code three steps old accepted")
	}
	if p.Verify(setup.Secret, "") || p.Verify("", near) {
		t.Fatalf("empty inputs must not verify")
	}
}

func TestAuthenticate(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	store := users.NewMemoryStore(clock)
	p := New(store, Config{Skew: 1, Now: clock})
	ctx := context.Background()

	setup, err := p.GenerateSecret("a@b.com")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	u, err := store.Create(ctx, users.User{Email: "a@b.com", TOTPSecret: setup.Secret})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	code, _ := p.Code(setup.Secret, now)

	if _, err := p.Authenticate(ctx, providers.Credentials{Email: "a@b.com", Code: code}); !errors.Is(err, autherr.ErrInvalidCredentials) {
		t.Fatalf("TOTP not enabled yet, expected InvalidCredentials, got %v", err)
	}

	if _, err := store.Update(ctx, u.ID, users.Patch{TOTPEnabled: users.Ptr(true)}); err != nil {
		t.Fatalf("enable: %v", err)
	}
	pr, err := p.Authenticate(ctx, providers.Credentials{Email: "a@b.com", Code: code})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if pr.ID != u.ID || pr.Provider != Name {
		t.Fatalf("unexpected principal %+v", pr)
	}

	if _, err := p.Authenticate(ctx, providers.Credentials{Email: "a@b.com", Code: "000000"}); err == nil && code != "000000" {
		t.Fatalf("wrong code accepted")
	}
	if _, err := p.Authenticate(ctx, providers.Credentials{Email: "x@b.com", Code: code}); !errors.Is(err, autherr.ErrUserNotFound) {
		t.Fatalf("expected UserNotFound, got %v", err)
	}
}

func TestValidateCredentials(t *testing.T) {
	p := New(nil, Config{})
	if err := p.ValidateCredentials(providers.Credentials{Email: "a@b.com", Code: "123456"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.ValidateCredentials(providers.Credentials{Email: "a@b.com", Code: "123"}); !errors.Is(err, autherr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
