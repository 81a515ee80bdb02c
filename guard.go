package goSignIn

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrEthical07/goSignIn/autherr"
	"github.com/MrEthical07/goSignIn/users"
)

// TokenParam is the query parameter and cookie name a token may arrive in.
const TokenParam = "token"

// Request is the slice of an incoming request the guard reads.
type Request interface {
	Header(name string) string
	Query(name string) string
	Cookie(name string) string
}

// MapRequest is an in-memory Request. Header names are matched without
// regard to case.
type MapRequest struct {
	Headers     map[string]string
	QueryParams map[string]string
	Cookies     map[string]string
}

func (r MapRequest) Header(name string) string {
	if v, ok := r.Headers[name]; ok {
		return v
	}
	canonical := textproto.CanonicalMIMEHeaderKey(name)
	for k, v := range r.Headers {
		if textproto.CanonicalMIMEHeaderKey(k) == canonical {
			return v
		}
	}
	return ""
}

func (r MapRequest) Query(name string) string  { return r.QueryParams[name] }
func (r MapRequest) Cookie(name string) string { return r.Cookies[name] }

// ExtractToken returns the first token found in, in order, a Bearer
// authorization header, the token query parameter and the token cookie.
func ExtractToken(r Request) string {
	if r == nil {
		return ""
	}
	if token, ok := bearerToken(r.Header("Authorization")); ok {
		return token
	}
	if token := r.Query(TokenParam); token != "" {
		return token
	}
	return r.Cookie(TokenParam)
}

func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) <= len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

// AccessResult is the outcome of a guard check. Err is nil exactly when
// Authenticated is true. A role denial keeps Principal and Session so the
// caller can tell it apart from a missing identity.
type AccessResult struct {
	Authenticated bool
	Principal     *Principal
	Session       *Session
	Err           error
}

// Check is a guard decision over one request.
type Check func(ctx context.Context, r Request) AccessResult

// Guard authorizes requests against live sessions. A valid token is not
// enough on its own: the session it names must still be live and must
// still hold that token.
type Guard struct {
	engine *Engine
}

// Authenticate resolves the principal behind r.
func (g *Guard) Authenticate(ctx context.Context, r Request) AccessResult {
	start := time.Now()
	e := g.engine
	ctx, span := e.startSpan(ctx, "Guard.Authenticate")

	res := g.authenticate(ctx, r)
	if res.Authenticated {
		e.metricInc(MetricGuardAllowed)
		span.SetAttributes(attribute.Int64("signin.user_id", res.Principal.ID))
	} else {
		e.metricInc(MetricGuardDenied)
		e.emitAudit(ctx, auditRecord{eventType: auditEventAccessDenied, err: res.Err})
	}

	e.metrics.Observe(MetricGuardLatency, time.Since(start))
	endSpan(span, res.Err)
	return res
}

func (g *Guard) authenticate(_ context.Context, r Request) AccessResult {
	e := g.engine
	token := ExtractToken(r)
	if token == "" {
		return AccessResult{Err: fmt.Errorf("%w: no token presented", autherr.ErrInvalidToken)}
	}

	claims, err := e.accessClaims(token)
	if err != nil {
		return AccessResult{Err: err}
	}

	sess := e.sessions.Get(claims.sessionID)
	if sess == nil || sess.UserID != claims.userID {
		return AccessResult{Err: autherr.ErrSessionExpired}
	}
	if sess.Token != token {
		return AccessResult{Err: fmt.Errorf("%w: token superseded", autherr.ErrInvalidToken)}
	}

	return AccessResult{
		Authenticated: true,
		Principal: &Principal{
			ID:       claims.userID,
			Email:    claims.email,
			Role:     users.Role(sess.Role),
			Provider: sess.Provider,
		},
		Session: sess,
	}
}

// RequireRole authenticates the request and then demands one of roles.
// A principal with another role is denied with ErrInsufficientPermissions
// and Authenticated set to false.
func (g *Guard) RequireRole(roles ...Role) Check {
	allowed := make(map[Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(ctx context.Context, r Request) AccessResult {
		res := g.Authenticate(ctx, r)
		if !res.Authenticated {
			return res
		}
		if _, ok := allowed[res.Principal.Role]; !ok {
			g.engine.metricInc(MetricGuardForbidden)
			g.engine.emitAudit(ctx, auditRecord{
				eventType: auditEventAccessDenied,
				userID:    res.Principal.ID,
				sessionID: res.Session.ID,
				err:       autherr.ErrInsufficientPermissions,
			})
			res.Authenticated = false
			res.Err = autherr.ErrInsufficientPermissions
		}
		return res
	}
}

// Check adapts Authenticate to a Check.
func (g *Guard) Check() Check {
	return g.Authenticate
}

// IsForbidden reports whether res was denied for role rather than for
// identity.
func (res AccessResult) IsForbidden() bool {
	return errors.Is(res.Err, autherr.ErrInsufficientPermissions)
}
