package rate

import "errors"

var (
	// ErrRedisUnavailable wraps backend failures from the Redis limiter.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrInvalidOptions is returned for non-positive attempt budgets or windows.
	ErrInvalidOptions = errors.New("invalid throttle options")
)
