package goSignIn

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type accessContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. Sessions and audit
// events record it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the caller's User-Agent to ctx. Sessions record it.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithAccess stores a guard result in ctx. The middleware package uses it to
// hand the result to downstream handlers.
func WithAccess(ctx context.Context, res AccessResult) context.Context {
	return context.WithValue(ctx, accessContextKey{}, res)
}

// AccessFromContext returns the guard result stored by WithAccess.
func AccessFromContext(ctx context.Context) (AccessResult, bool) {
	if ctx == nil {
		return AccessResult{}, false
	}
	res, ok := ctx.Value(accessContextKey{}).(AccessResult)
	return res, ok
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}
