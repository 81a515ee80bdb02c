package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const slidingWindowScript = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
local count = redis.call("ZCARD", KEYS[1])
if count >= max then
  local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
  return {0, count, tonumber(oldest[2])}
end

redis.call("ZADD", KEYS[1], now, ARGV[4])
redis.call("PEXPIRE", KEYS[1], window)
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
return {1, count + 1, tonumber(oldest[2])}
`

var slidingWindowLua = redis.NewScript(slidingWindowScript)

// Redis is the shared sliding-window limiter for multi-instance deployments.
// Timestamps come from the limiter clock, not the Redis server.
type Redis struct {
	client redis.UniversalClient
	cfg    Config
}

// NewRedis creates a Redis-backed limiter.
func NewRedis(client redis.UniversalClient, cfg Config) *Redis {
	return &Redis{client: client, cfg: cfg.withDefaults()}
}

// Check applies the sliding window to key atomically on the server.
func (r *Redis) Check(ctx context.Context, key string, opts Options) (Decision, error) {
	maxAttempts, window, err := r.cfg.resolve(opts)
	if err != nil {
		return Decision{}, err
	}

	now := r.cfg.Now().UnixMilli()
	res, err := slidingWindowLua.Run(ctx, r.client,
		[]string{r.key(key)},
		now, window.Milliseconds(), maxAttempts, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("%w: unexpected script reply", ErrRedisUnavailable)
	}

	resetAt := time.UnixMilli(res[2]).Add(window)
	if res[0] == 0 {
		return Decision{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil
	}
	return Decision{
		Allowed:   true,
		Remaining: maxAttempts - int(res[1]),
		ResetAt:   resetAt,
	}, nil
}

// Reset deletes key's window.
func (r *Redis) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (r *Redis) key(k string) string {
	return r.cfg.Prefix + ":" + k
}
