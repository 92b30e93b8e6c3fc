package redislimit

import (
	"context"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/trustgate/internal/core/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "trustgate:rl:"

// fixedWindow increments the counter and starts the window on the first hit.
// The PTTL repair covers keys that lost their expiry.
var fixedWindow = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// Limiter is a fixed-window limiter shared by every instance pointing at the
// same Redis. Redis errors fail open.
type Limiter struct {
	client redis.UniversalClient
	logger zerolog.Logger
	now    func() time.Time
}

func New(client redis.UniversalClient, logger zerolog.Logger) *Limiter {
	return &Limiter{
		client: client,
		logger: logger.With().Str("component", "ratelimit").Str("backend", "redis").Logger(),
		now:    time.Now,
	}
}

// Dial parses a redis:// URL or a plain host:port and checks the connection.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		opts = &redis.Options{Addr: addr}
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

func (l *Limiter) Allow(ctx context.Context, key string, policy domain.RateLimitPolicy) (domain.RateLimitDecision, error) {
	now := l.now()
	if policy.Limit <= 0 {
		return domain.RateLimitDecision{Allowed: false, Limit: policy.Limit, ResetAt: now.Add(policy.Window)}, nil
	}

	res, err := fixedWindow.Run(ctx, l.client, []string{keyPrefix + policy.Name + ":" + key}, policy.Window.Milliseconds()).Int64Slice()
	if err != nil || len(res) != 2 {
		l.logger.Warn().Err(err).Str("policy", policy.Name).Msg("rate limit check failed, allowing request")
		return domain.RateLimitDecision{
			Allowed:   true,
			Limit:     policy.Limit,
			Remaining: policy.Limit,
			ResetAt:   now.Add(policy.Window),
		}, nil
	}

	count, ttl := int(res[0]), time.Duration(res[1])*time.Millisecond
	decision := domain.RateLimitDecision{
		Allowed: count <= policy.Limit,
		Limit:   policy.Limit,
		ResetAt: now.Add(ttl),
	}
	if decision.Allowed {
		decision.Remaining = policy.Limit - count
	}
	return decision, nil
}
