package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shanmukh0504/polling-application-cicd/internal/metrics"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned for commands rejected while the breaker is open
// or while half-open probes are exhausted.
var ErrCircuitOpen = errors.New("redis circuit breaker open")

// CircuitBreakerHook implements redis.Hook so that every command, pipeline and dial
// shares one breaker. While it is open, commands fail fast without touching the network.
type CircuitBreakerHook struct {
	cb *gobreaker.CircuitBreaker
}

var _ goredis.Hook = (*CircuitBreakerHook)(nil)

// NewCircuitBreakerHook trips after at least 5 requests with a 60% failure rate inside
// a 10s window, stays open for 30s, then lets 3 probe requests through.
func NewCircuitBreakerHook() *CircuitBreakerHook {
	return newCircuitBreakerHook(gobreaker.Settings{
		Name:        "redis",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
	})
}

func newCircuitBreakerHook(settings gobreaker.Settings) *CircuitBreakerHook {
	if settings.ReadyToTrip == nil {
		settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		}
	}
	settings.IsSuccessful = isBreakerSuccess
	settings.OnStateChange = func(name string, from, to gobreaker.State) {
		slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
		metrics.CircuitBreakerStateChanges.WithLabelValues(name, to.String()).Inc()
		metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
	}

	metrics.CircuitBreakerState.WithLabelValues(settings.Name).Set(stateToFloat(gobreaker.StateClosed))
	return &CircuitBreakerHook{cb: gobreaker.NewCircuitBreaker(settings)}
}

// isBreakerSuccess treats replies that prove the server is healthy as successes:
// a missing key, a script cache miss (go-redis retries with EVAL) and a cancelled caller.
func isBreakerSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, goredis.Nil) ||
		isNoScript(err) ||
		errors.Is(err, context.Canceled)
}

func isNoScript(err error) bool {
	var replyErr goredis.Error
	return errors.As(err, &replyErr) && strings.HasPrefix(replyErr.Error(), "NOSCRIPT")
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func (h *CircuitBreakerHook) execute(run func() error) error {
	_, err := h.cb.Execute(func() (any, error) {
		return nil, run()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	}
	return err
}

func (h *CircuitBreakerHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		var conn net.Conn
		err := h.execute(func() error {
			var dialErr error
			conn, dialErr = next(ctx, network, addr)
			return dialErr
		})
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

func (h *CircuitBreakerHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		err := h.execute(func() error { return next(ctx, cmd) })
		if errors.Is(err, ErrCircuitOpen) {
			cmd.SetErr(err)
		}
		return err
	}
}

func (h *CircuitBreakerHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		err := h.execute(func() error { return next(ctx, cmds) })
		if errors.Is(err, ErrCircuitOpen) {
			for _, cmd := range cmds {
				cmd.SetErr(err)
			}
		}
		return err
	}
}

// GetState returns the current state of the circuit breaker.
func (h *CircuitBreakerHook) GetState() gobreaker.State {
	return h.cb.State()
}

// GetCounts returns the request counts of the current breaker window.
func (h *CircuitBreakerHook) GetCounts() gobreaker.Counts {
	return h.cb.Counts()
}
