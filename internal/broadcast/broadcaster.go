package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shanmukh0504/polling-application-cicd/internal/domain"
	"github.com/shanmukh0504/polling-application-cicd/internal/logging"
	"github.com/shanmukh0504/polling-application-cicd/internal/metrics"
)

const (
	DefaultBufferSize = 100
	stopTimeout       = 10 * time.Second
)

// ErrStopped is returned by Subscribe once the broadcaster has been stopped.
var ErrStopped = errors.New("broadcaster stopped")

var _ domain.EventPublisher = (*Broadcaster)(nil)

// Broadcaster delivers published poll events to the subscribers of that poll.
type Broadcaster struct {
	registry    *Registry
	clock       clockwork.Clock
	bufferSize  int
	stopTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	loops   sync.WaitGroup
}

// NewBroadcaster creates a broadcaster over registry.
// bufferSize bounds the number of undelivered events queued per subscriber;
// values below 1 use DefaultBufferSize.
func NewBroadcaster(registry *Registry, clock clockwork.Clock, bufferSize int) *Broadcaster {
	if bufferSize < 1 {
		bufferSize = DefaultBufferSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Broadcaster{
		registry:    registry,
		clock:       clock,
		bufferSize:  bufferSize,
		stopTimeout: stopTimeout,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Publish offers event to every subscriber of its poll registered at the time of the
// call. It never blocks: a subscriber whose buffer is full misses this event.
func (b *Broadcaster) Publish(event domain.Event) {
	if event == nil {
		return
	}
	metrics.BroadcastEventsPublished.WithLabelValues(string(event.Kind())).Inc()

	subscribers := b.registry.SubscribersOf(event.TargetPoll())
	if len(subscribers) == 0 {
		metrics.BroadcastEventsDropped.WithLabelValues("no_subscribers").Inc()
		return
	}

	for _, sub := range subscribers {
		if !sub.offer(event) {
			metrics.BroadcastEventsDropped.WithLabelValues("lagging").Inc()
		}
	}
}

// Subscribe registers conn as a subscriber of pollID and starts its lifecycle loop.
// The broadcaster owns conn from here on and closes it when the loop ends.
func (b *Broadcaster) Subscribe(pollID string, conn Conn) (*Subscriber, error) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		_ = conn.Close()
		return nil, ErrStopped
	}
	b.loops.Add(1)
	b.mu.Unlock()

	sub := newSubscriber(pollID, conn, b.clock, b.bufferSize)
	id := b.registry.Subscribe(sub)

	go func() {
		defer b.loops.Done()
		sub.run(b.ctx, func() { b.registry.Unsubscribe(pollID, id) })
	}()

	logging.WithPoll(pollID).Debug("Subscriber registered", "connection_id", id, "poll_subscribers", b.registry.Count(pollID))
	return sub, nil
}

// SubscriberCount returns the number of live subscribers of a poll.
func (b *Broadcaster) SubscriberCount(pollID string) int {
	return b.registry.Count(pollID)
}

// Stop closes every subscriber with a going-away close frame and waits for the
// lifecycle loops to deregister, bounded by the stop timeout. Safe to call twice.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	b.mu.Unlock()

	slog.Info("Broadcaster shutting down", "polls", b.registry.Polls())
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.loops.Wait()
		close(done)
	}()

	timeout := b.clock.NewTimer(b.stopTimeout)
	defer timeout.Stop()

	select {
	case <-done:
		slog.Info("Broadcaster stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Broadcaster stop timeout exceeded", "timeout", b.stopTimeout, "remaining_polls", b.registry.Polls())
		metrics.BroadcastStopTimeoutsTotal.Inc()
	}
}
