package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shanmukh0504/polling-application-cicd/internal/domain"
)

// tokenBucketScript refills the bucket for the elapsed time, then tries to take one token.
// The key expires once a full bucket would have refilled, so idle users cost nothing.
// KEYS: [1]=bucket key
// ARGV: [1]=now_ms, [2]=capacity, [3]=tokens per minute
// Returns 1 when a token was taken, 0 when the bucket is empty.
var tokenBucketScript = goredis.NewScript(`
local now = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local per_ms = tonumber(ARGV[3]) / 60000.0

local bucket = redis.call('HMGET', KEYS[1], 'tokens', 'last_refill')
local tokens = tonumber(bucket[1])
local last_refill = tonumber(bucket[2])
if tokens == nil or last_refill == nil then
  tokens = capacity
  last_refill = now
end

local elapsed = math.max(0, now - last_refill)
tokens = math.min(capacity, tokens + elapsed * per_ms)

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'last_refill', tostring(now))
redis.call('PEXPIRE', KEYS[1], math.ceil(capacity / per_ms) + 1000)
return allowed
`)

// VoteRateLimiter implements token bucket rate limiting for votes, one bucket per user.
type VoteRateLimiter struct {
	rdb      *goredis.Client
	clock    clockwork.Clock
	capacity int
	rate     int // tokens per minute
}

var _ domain.VoteRateLimiter = (*VoteRateLimiter)(nil)

// NewVoteRateLimiter creates a new vote rate limiter.
// capacity: maximum burst size (tokens)
// rate: sustained rate (tokens per minute)
func NewVoteRateLimiter(client *Client, clock clockwork.Clock, capacity, rate int) *VoteRateLimiter {
	return &VoteRateLimiter{
		rdb:      client.rdb,
		clock:    clock,
		capacity: capacity,
		rate:     rate,
	}
}

func voteBucketKey(userID string) string {
	return "rate_limit:votes:" + userID
}

// AllowVote reports whether the user may vote now, consuming a token if so.
// While the circuit breaker is open the check fails open.
func (v *VoteRateLimiter) AllowVote(ctx context.Context, userID string) (bool, error) {
	allowed, err := tokenBucketScript.Run(ctx, v.rdb,
		[]string{voteBucketKey(userID)},
		v.clock.Now().UnixMilli(),
		v.capacity,
		v.rate,
	).Int()

	if errors.Is(err, ErrCircuitOpen) {
		slog.Debug("Vote rate limit skipped, redis circuit open", "user_id", userID)
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	return allowed == 1, nil
}
