package middleware

import (
	"errors"
	"net"
	"net/http"

	goSignIn "github.com/MrEthical07/goSignIn"
)

// HTTPRequest adapts *http.Request to goSignIn.Request.
type HTTPRequest struct {
	R *http.Request
}

func (h HTTPRequest) Header(name string) string {
	return h.R.Header.Get(name)
}

func (h HTTPRequest) Query(name string) string {
	return h.R.URL.Query().Get(name)
}

func (h HTTPRequest) Cookie(name string) string {
	c, err := h.R.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// Status maps a denied AccessResult to an HTTP status: 403 when the
// principal lacks a role, 401 otherwise.
func Status(res goSignIn.AccessResult) int {
	if errors.Is(res.Err, goSignIn.ErrInsufficientPermissions) {
		return http.StatusForbidden
	}
	return http.StatusUnauthorized
}

// Require runs check on every request and rejects the ones it denies. The
// AccessResult of admitted requests is available downstream through
// goSignIn.AccessFromContext.
func Require(check goSignIn.Check) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if check == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := goSignIn.WithUserAgent(goSignIn.WithClientIP(r.Context(), clientIP(r)), r.UserAgent())
			res := check(ctx, HTTPRequest{R: r})
			if res.Err != nil || !res.Authenticated {
				status := Status(res)
				http.Error(w, http.StatusText(status), status)
				return
			}

			next.ServeHTTP(w, r.WithContext(goSignIn.WithAccess(r.Context(), res)))
		})
	}
}

// RequireSignedIn is Require with the engine's plain authentication check.
func RequireSignedIn(engine *goSignIn.Engine) func(http.Handler) http.Handler {
	if engine == nil {
		return Require(nil)
	}
	return Require(engine.Guard().Check())
}

// RequireRole admits principals holding one of roles.
func RequireRole(engine *goSignIn.Engine, roles ...goSignIn.Role) func(http.Handler) http.Handler {
	if engine == nil {
		return Require(nil)
	}
	return Require(engine.Guard().RequireRole(roles...))
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
