package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	apperrors "github.com/shanmukh0504/polling-application-cicd/internal/errors"
	"github.com/shanmukh0504/polling-application-cicd/internal/metrics"
	"golang.org/x/time/rate"
)

const (
	idleBucketTTL  = 10 * time.Minute
	bucketSweepGap = 5 * time.Minute
)

// LimitReason describes why a viewer connection was refused.
type LimitReason string

const (
	LimitReasonGlobal LimitReason = "global_limit"
	LimitReasonPerIP  LimitReason = "per_ip_limit"
	LimitReasonRate   LimitReason = "rate_limit"
)

// ConnectionLimits caps live viewer connections per process and per client IP,
// and throttles how fast one IP may open new ones.
type ConnectionLimits struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	total     int
	maxTotal  int
	perIP     map[string]int
	maxPerIP  int
	buckets   map[string]*ipBucket
	rate      rate.Limit
	burst     int
	nextSweep time.Time
}

type ipBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewConnectionLimits(maxTotal, maxPerIP int, connectionsPerSecond float64, burst int, clock clockwork.Clock) *ConnectionLimits {
	return &ConnectionLimits{
		clock:     clock,
		maxTotal:  maxTotal,
		perIP:     make(map[string]int),
		maxPerIP:  maxPerIP,
		buckets:   make(map[string]*ipBucket),
		rate:      rate.Limit(connectionsPerSecond),
		burst:     burst,
		nextSweep: clock.Now().Add(bucketSweepGap),
	}
}

// Acquire reserves a slot for ip. The rate bucket is consulted first, so a refused
// connection still spends a token.
func (l *ConnectionLimits) Acquire(ip string) (bool, LimitReason) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.After(l.nextSweep) {
		l.sweep(now)
		l.nextSweep = now.Add(bucketSweepGap)
	}

	bucket, ok := l.buckets[ip]
	if !ok {
		bucket = &ipBucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[ip] = bucket
	}
	bucket.lastSeen = now

	if !bucket.limiter.AllowN(now, 1) {
		return false, LimitReasonRate
	}
	if l.total >= l.maxTotal {
		return false, LimitReasonGlobal
	}
	if l.perIP[ip] >= l.maxPerIP {
		return false, LimitReasonPerIP
	}

	l.total++
	l.perIP[ip]++
	metrics.ConnectionCapacityPercent.Set(l.capacityPercent())
	return true, ""
}

// Release frees a slot taken by a successful Acquire for ip.
func (l *ConnectionLimits) Release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	count, ok := l.perIP[ip]
	if !ok {
		return
	}
	if count <= 1 {
		delete(l.perIP, ip)
	} else {
		l.perIP[ip] = count - 1
	}
	l.total--
	metrics.ConnectionCapacityPercent.Set(l.capacityPercent())
}

// Current returns the number of held slots overall.
func (l *ConnectionLimits) Current() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// CountFor returns the number of held slots for ip.
func (l *ConnectionLimits) CountFor(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.perIP[ip]
}

// TrackedIPs returns how many IPs currently have a rate bucket.
func (l *ConnectionLimits) TrackedIPs() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Must be called with mu held.
func (l *ConnectionLimits) capacityPercent() float64 {
	if l.maxTotal <= 0 {
		return 0
	}
	return float64(l.total) / float64(l.maxTotal) * 100
}

// sweep drops rate buckets of IPs that have been idle and hold no slot.
// Must be called with mu held.
func (l *ConnectionLimits) sweep(now time.Time) {
	cutoff := now.Add(-idleBucketTTL)
	for ip, bucket := range l.buckets {
		if bucket.lastSeen.Before(cutoff) && l.perIP[ip] == 0 {
			delete(l.buckets, ip)
		}
	}
}

// Middleware holds a slot for the lifetime of the wrapped handler. Refusals are
// 503 when the process is full and 429 when the client IP is over its share.
func (l *ConnectionLimits) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			ok, reason := l.Acquire(ip)
			if !ok {
				metrics.ConnectionsRejected.WithLabelValues(string(reason)).Inc()
				if reason == LimitReasonGlobal {
					return echo.NewHTTPError(http.StatusServiceUnavailable, "server at connection capacity")
				}
				return apperrors.RateLimitedError("too many connections").
					WithField("reason", string(reason)).
					WithField("remote_ip", ip)
			}
			defer l.Release(ip)

			return next(c)
		}
	}
}
