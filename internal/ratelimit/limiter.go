// Package ratelimit throttles client requests. Limiter keeps fixed-window
// counters in Redis so limits hold across server instances; FloodLimiter is
// an in-process token bucket per connection for high-rate relay traffic.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Rule defines a rate limiting policy: the Redis key prefix, maximum number of
// requests allowed in the window, and the window duration.
type Rule struct {
	Key    string        // Redis key prefix (e.g., "rl:search:")
	Limit  int           // max count in the window
	Window time.Duration // time window
}

var (
	// RuleSearch allows 20 start-search requests per minute per user.
	RuleSearch = Rule{Key: "rl:search:", Limit: 20, Window: time.Minute}

	// RuleReport allows 5 reports per minute per user.
	RuleReport = Rule{Key: "rl:report:", Limit: 5, Window: time.Minute}
)

// Limiter performs rate limiting checks against Redis.
type Limiter struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewLimiter creates a Limiter backed by the given Redis client.
func NewLimiter(client *redis.Client, log zerolog.Logger) *Limiter {
	return &Limiter{
		client: client,
		log:    log.With().Str("component", "ratelimit").Logger(),
	}
}

// windowIncr bumps the counter and starts the window on the first hit in
// one round trip, so a crash between the two can never leave a key without
// a TTL.
var windowIncr = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// Allow counts one request for identifier under rule and reports whether it
// is within the limit. Redis errors fail open: the request is allowed and
// the error returned for logging.
func (l *Limiter) Allow(ctx context.Context, identifier string, rule Rule) (bool, error) {
	key := rule.Key + identifier

	count, err := windowIncr.Run(ctx, l.client, []string{key}, rule.Window.Milliseconds()).Int64()
	if err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("rate limit check failed, failing open")
		return true, err
	}
	return count <= int64(rule.Limit), nil
}

// Remaining returns the number of requests the identifier has left in the
// current window for the given rule. Returns the full limit if the key does not
// exist yet. On Redis errors it returns the full limit (fail open).
func (l *Limiter) Remaining(ctx context.Context, identifier string, rule Rule) (int, error) {
	key := rule.Key + identifier

	count, err := l.client.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return rule.Limit, nil
	}
	if err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("GET failed, failing open")
		return rule.Limit, err
	}

	remaining := rule.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
