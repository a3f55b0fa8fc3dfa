// Package redis holds the Redis client used for per-user vote rate limiting.
//
// Every command passes through a metrics hook and a circuit breaker hook. Rate limit
// checks run a token bucket as a Lua script so refill and consume are atomic.
package redis
