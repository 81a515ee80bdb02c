package magiclink

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goSignIn/autherr"
	"github.com/MrEthical07/goSignIn/providers"
	"github.com/MrEthical07/goSignIn/users"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestProvider(t *testing.T) (*Provider, *users.MemoryStore, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	store := users.NewMemoryStore(clock.Now)
	return New(store, Config{Now: clock.Now}), store, clock
}

func mustLink(t *testing.T, p *Provider, email, redirect string) *Link {
	t.Helper()
	link, err := p.GenerateLink(context.Background(), email, redirect)
	if err != nil {
		t.Fatalf("generate link: %v", err)
	}
	return link
}

func TestGenerateLink(t *testing.T) {
	p, _, clock := newTestProvider(t)

	link := mustLink(t, p, "a@b.com", "")
	if len(link.Token) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(link.Token))
	}
	if link.URL != "/?token="+link.Token {
		t.Fatalf("unexpected default link %q", link.URL)
	}
	if !link.ExpiresAt.Equal(clock.Now().Add(DefaultTTL)) {
		t.Fatalf("unexpected expiry %v", link.ExpiresAt)
	}

	link = mustLink(t, p, "a@b.com", "https://app.example.com/welcome?next=%2Fhome")
	u, err := url.Parse(link.URL)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	if u.Host != "app.example.com" || u.Query().Get("token") != link.Token || u.Query().Get("next") != "/home" {
		t.Fatalf("redirect not preserved: %q", link.URL)
	}

	if _, err := p.GenerateLink(context.Background(), "not-an-email", ""); !errors.Is(err, autherr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAuthenticateCreatesVerifiedUser(t *testing.T) {
	p, store, _ := newTestProvider(t)
	link := mustLink(t, p, "New@B.com", "")

	pr, err := p.Authenticate(context.Background(), providers.Credentials{Token: link.Token})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if pr.Email != "New@B.com" || !pr.Verified || pr.Provider != Name {
		t.Fatalf("unexpected principal %+v", pr)
	}
	u, err := store.ByEmail(context.Background(), "New@B.com")
	if err != nil || u.ID != pr.ID || u.Role != users.RoleUser {
		t.Fatalf("user not created: %+v %v", u, err)
	}
}

func TestAuthenticateVerifiesExistingUser(t *testing.T) {
	p, store, _ := newTestProvider(t)
	existing, err := store.Create(context.Background(), users.User{Email: "a@b.com", Role: users.RoleAdmin})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	link := mustLink(t, p, "a@b.com", "")
	pr, err := p.Authenticate(context.Background(), providers.Credentials{Token: link.Token})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if pr.ID != existing.ID || pr.Role != users.RoleAdmin || !pr.Verified {
		t.Fatalf("unexpected principal %+v", pr)
	}
	if store.Len() != 1 {
		t.Fatalf("duplicate user created")
	}
}

func TestTokenIsSingleUse(t *testing.T) {
	p, _, _ := newTestProvider(t)
	link := mustLink(t, p, "a@b.com", "")
	ctx := context.Background()

	if _, err := p.Authenticate(ctx, providers.Credentials{Token: link.Token}); err != nil {
		t.Fatalf("first use: %v", err)
	}
	if _, err := p.Authenticate(ctx, providers.Credentials{Token: link.Token}); !errors.Is(err, autherr.ErrAlreadyUsed) {
		t.Fatalf("expected AlreadyUsed, got %v", err)
	}
	if _, err := p.Authenticate(ctx, providers.Credentials{Token: "deadbeef"}); !errors.Is(err, autherr.ErrInvalidOrExpiredLink) {
		t.Fatalf("expected InvalidOrExpiredLink, got %v", err)
	}
}

func TestExpiredToken(t *testing.T) {
	p, _, clock := newTestProvider(t)
	link := mustLink(t, p, "a@b.com", "")

	clock.Advance(DefaultTTL + time.Second)
	if _, err := p.Authenticate(context.Background(), providers.Credentials{Token: link.Token}); !errors.Is(err, autherr.ErrInvalidOrExpiredLink) {
		t.Fatalf("expected InvalidOrExpiredLink, got %v", err)
	}
	if p.Pending() != 0 {
		t.Fatalf("expired link not dropped on use")
	}
}

func TestConcurrentAuthenticateOneWinner(t *testing.T) {
	p, _, _ := newTestProvider(t)
	link := mustLink(t, p, "a@b.com", "")

	const workers = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		already int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := p.Authenticate(context.Background(), providers.Credentials{Token: link.Token})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, autherr.ErrAlreadyUsed):
				already++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins != 1 || already != workers-1 {
		t.Fatalf("expected 1 winner and %d AlreadyUsed, got %d and %d", workers-1, wins, already)
	}
}

func TestSweep(t *testing.T) {
	p, _, clock := newTestProvider(t)
	used := mustLink(t, p, "a@b.com", "")
	mustLink(t, p, "b@b.com", "")
	if _, err := p.Authenticate(context.Background(), providers.Credentials{Token: used.Token}); err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	if n := p.Sweep(); n != 0 {
		t.Fatalf("nothing expired yet, swept %d", n)
	}
	clock.Advance(5 * time.Minute)
	fresh := mustLink(t, p, "c@b.com", "")

	clock.Advance(DefaultTTL - time.Minute)
	if n := p.Sweep(); n != 2 {
		t.Fatalf("expected 2 swept, got %d", n)
	}
	if p.Pending() != 1 {
		t.Fatalf("expected only the fresh link left, got %d", p.Pending())
	}
	if _, err := p.Authenticate(context.Background(), providers.Credentials{Token: fresh.Token}); err != nil {
		t.Fatalf("fresh link broken by sweep: %v", err)
	}
}

func TestValidateCredentials(t *testing.T) {
	p, _, _ := newTestProvider(t)
	if err := p.ValidateCredentials(providers.Credentials{}); !errors.Is(err, autherr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
