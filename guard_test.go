package goSignIn

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goSignIn/users"
)

func TestExtractTokenOrder(t *testing.T) {
	tests := []struct {
		name string
		req  MapRequest
		want string
	}{
		{
			name: "header wins",
			req: MapRequest{
				Headers:     map[string]string{"Authorization": "Bearer from-header"},
				QueryParams: map[string]string{"token": "from-query"},
				Cookies:     map[string]string{"token": "from-cookie"},
			},
			want: "from-header",
		},
		{
			name: "lower-case header name and scheme",
			req:  MapRequest{Headers: map[string]string{"authorization": "bearer abc"}},
			want: "abc",
		},
		{
			name: "query before cookie",
			req: MapRequest{
				QueryParams: map[string]string{"token": "from-query"},
				Cookies:     map[string]string{"token": "from-cookie"},
			},
			want: "from-query",
		},
		{
			name: "non bearer header falls through",
			req: MapRequest{
				Headers: map[string]string{"Authorization": "Basic dXNlcjpwYXNz"},
				Cookies: map[string]string{"token": "from-cookie"},
			},
			want: "from-cookie",
		},
		{
			name: "empty bearer falls through",
			req:  MapRequest{Headers: map[string]string{"Authorization": "Bearer   "}},
			want: "",
		},
		{
			name: "nothing",
			req:  MapRequest{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractToken(tt.req); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestGuardAcceptsQueryAndCookieTokens(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	registerAlice(t, e)
	res := signInAlice(t, e)
	guard := e.Guard()

	if got := guard.Authenticate(ctx, MapRequest{QueryParams: map[string]string{"token": res.Token}}); !got.Authenticated {
		t.Fatalf("query token rejected: %v", got.Err)
	}
	got := guard.Authenticate(ctx, MapRequest{Cookies: map[string]string{"token": res.Token}})
	if !got.Authenticated {
		t.Fatalf("cookie token rejected: %v", got.Err)
	}
	if got.Principal.Email != "alice@example.com" || got.Principal.Role != RoleUser {
		t.Fatalf("unexpected principal: %+v", got.Principal)
	}
	if got.Session == nil || got.Session.ID != res.SessionID {
		t.Fatalf("unexpected session: %+v", got.Session)
	}
}

func TestGuardRejectsBadTokens(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()
	registerAlice(t, e)
	res := signInAlice(t, e)
	guard := e.Guard()

	if got := guard.Authenticate(ctx, MapRequest{}); !errors.Is(got.Err, ErrInvalidToken) {
		t.Fatalf("expected invalid token without credentials, got %+v", got)
	}

	tampered := res.Token[:len(res.Token)-2] + flip(res.Token[len(res.Token)-2:])
	if got := guard.Authenticate(ctx, bearer(tampered)); !errors.Is(got.Err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %+v", got)
	}

	reset, err := e.RequestPasswordReset(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("request reset: %v", err)
	}
	if got := guard.Authenticate(ctx, bearer(reset.Token)); !errors.Is(got.Err, ErrInvalidToken) {
		t.Fatalf("reset tokens must not authenticate, got %+v", got)
	}

	clock.Advance(25 * time.Hour)
	if got := guard.Authenticate(ctx, bearer(res.Token)); !errors.Is(got.Err, ErrTokenExpired) {
		t.Fatalf("expected token expired, got %+v", got)
	}
}

func TestGuardSessionOutlivedByToken(t *testing.T) {
	cfg := testConfig()
	cfg.Session.Lifetime = time.Hour
	e, clock := newTestEngineWith(t, cfg, nil)
	ctx := context.Background()
	registerAlice(t, e)
	res := signInAlice(t, e)

	clock.Advance(time.Hour)
	if got := e.Guard().Authenticate(ctx, bearer(res.Token)); !got.Authenticated {
		t.Fatalf("session should be live at its expiry instant, got %v", got.Err)
	}

	clock.Advance(time.Second)
	got := e.Guard().Authenticate(ctx, bearer(res.Token))
	if !errors.Is(got.Err, ErrSessionExpired) {
		t.Fatalf("expected session expired while token is still valid, got %+v", got)
	}
	if !e.VerifyToken(ctx, res.Token).Valid {
		t.Fatal("token itself should still verify")
	}
}

func TestRequireRole(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	alice := registerAlice(t, e)
	userToken := signInAlice(t, e).Token

	if _, err := e.users.Update(ctx, alice.ID, users.Patch{Role: users.Ptr(RoleAdmin)}); err != nil {
		t.Fatalf("promote: %v", err)
	}
	adminToken := signInAlice(t, e).Token

	adminOnly := e.Guard().RequireRole(RoleAdmin)

	got := adminOnly(ctx, bearer(userToken))
	if !errors.Is(got.Err, ErrInsufficientPermissions) || !got.IsForbidden() {
		t.Fatalf("expected insufficient permissions, got %+v", got)
	}
	if got.Authenticated {
		t.Fatal("a role denial must not report the request as authenticated")
	}
	if got.Principal == nil || got.Principal.ID != alice.ID || got.Session == nil {
		t.Fatalf("role denial should keep the principal and session, got %+v", got)
	}

	if got := adminOnly(ctx, bearer(adminToken)); got.Err != nil || !got.Authenticated {
		t.Fatalf("expected admin allowed, got %+v", got)
	}

	if got := adminOnly(ctx, MapRequest{}); got.IsForbidden() || !errors.Is(got.Err, ErrInvalidToken) {
		t.Fatalf("unauthenticated requests are not forbidden, got %+v", got)
	}

	snap := e.MetricsSnapshot()
	if snap.Counters[MetricGuardForbidden] != 1 || snap.Counters[MetricGuardAllowed] != 2 || snap.Counters[MetricGuardDenied] != 1 {
		t.Fatalf("unexpected guard counters: %v", snap.Counters)
	}
}

func TestGuardLatencyRecorded(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.EnableLatencyHistograms = true
	e, _ := newTestEngineWith(t, cfg, nil)

	e.Guard().Authenticate(context.Background(), MapRequest{})

	var total uint64
	for _, n := range e.MetricsSnapshot().Histograms[MetricGuardLatency] {
		total += n
	}
	if total != 1 {
		t.Fatalf("expected one latency observation, got %d", total)
	}
}

func flip(s string) string {
	if strings.HasPrefix(s, "A") {
		return "B" + s[1:]
	}
	return "A" + s[1:]
}
