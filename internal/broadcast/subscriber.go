package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/shanmukh0504/polling-application-cicd/internal/domain"
	"github.com/shanmukh0504/polling-application-cicd/internal/logging"
	"github.com/shanmukh0504/polling-application-cicd/internal/metrics"
)

const (
	writeDeadline = 5 * time.Second
	pingInterval  = 30 * time.Second
	pongDeadline  = 60 * time.Second
)

// Conn is the transport a subscriber exclusively owns. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPingHandler(h func(appData string) error)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// State is the lifecycle state of a subscriber connection.
type State int32

const (
	StateActive State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	errShutdown    = errors.New("server shutting down")
	errLoopAborted = errors.New("lifecycle loop aborted")
)

// Subscriber is one live client connection scoped to a single poll.
type Subscriber struct {
	id          uint64
	pollID      string
	conn        Conn
	clock       clockwork.Clock
	outbound    chan domain.Event
	lagged      atomic.Uint64
	state       atomic.Int32
	done        chan struct{}
	connectedAt time.Time
}

func newSubscriber(pollID string, conn Conn, clock clockwork.Clock, bufferSize int) *Subscriber {
	return &Subscriber{
		pollID:      pollID,
		conn:        conn,
		clock:       clock,
		outbound:    make(chan domain.Event, bufferSize),
		done:        make(chan struct{}),
		connectedAt: clock.Now(),
	}
}

// ID returns the connection id assigned by the registry (0 before registration).
func (s *Subscriber) ID() uint64 { return s.id }

func (s *Subscriber) PollID() string { return s.pollID }

func (s *Subscriber) State() State { return State(s.state.Load()) }

// Done is closed once the lifecycle loop has exited and the subscriber is deregistered.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// offer queues an event without blocking. A full buffer drops the event and
// records the gap; the subscriber stays connected.
func (s *Subscriber) offer(event domain.Event) bool {
	select {
	case s.outbound <- event:
		return true
	default:
		s.lagged.Add(1)
		return false
	}
}

// run is the lifecycle loop. unsubscribe is invoked exactly once, on every exit path.
func (s *Subscriber) run(ctx context.Context, unsubscribe func()) {
	reason := errLoopAborted
	defer func() { s.finish(reason, unsubscribe) }()

	inbound := s.startReadPump()
	reason = s.loop(ctx, inbound)
}

func (s *Subscriber) loop(ctx context.Context, inbound <-chan error) error {
	ticker := s.clock.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-inbound:
			return err

		case event := <-s.outbound:
			s.reportLag()
			if err := s.deliver(event); err != nil {
				return err
			}

		case <-ticker.Chan():
			if err := s.conn.WriteControl(websocket.PingMessage, nil, s.clock.Now().Add(writeDeadline)); err != nil {
				metrics.WebSocketPingFailures.Inc()
				return fmt.Errorf("write ping: %w", err)
			}

		case <-ctx.Done():
			closeMsg := websocket.FormatCloseMessage(websocket.CloseGoingAway, errShutdown.Error())
			_ = s.conn.WriteControl(websocket.CloseMessage, closeMsg, s.clock.Now().Add(writeDeadline))
			return errShutdown
		}
	}
}

// deliver writes one event frame. Events for other polls are discarded and an event
// that cannot be encoded is dropped; only a failed write ends the connection.
func (s *Subscriber) deliver(event domain.Event) error {
	if event.TargetPoll() != s.pollID {
		return nil
	}

	data, err := domain.EncodeEvent(event)
	if err != nil {
		logging.WithPoll(s.pollID).Warn("Dropping undeliverable event", "connection_id", s.id, "error", err)
		metrics.BroadcastEventsDropped.WithLabelValues("encode").Inc()
		return nil
	}

	start := s.clock.Now()
	_ = s.conn.SetWriteDeadline(start.Add(writeDeadline))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		metrics.BroadcastSendFailures.Inc()
		return fmt.Errorf("write event: %w", err)
	}
	metrics.BroadcastEventsDelivered.Inc()
	metrics.WebSocketMessageSendDuration.Observe(s.clock.Since(start).Seconds())
	return nil
}

func (s *Subscriber) reportLag() {
	if missed := s.lagged.Swap(0); missed > 0 {
		logging.WithPoll(s.pollID).Debug("Subscriber lagging, events dropped", "connection_id", s.id, "missed", missed)
	}
}

// startReadPump drains inbound frames in its own goroutine. Ping frames are answered
// from the ping handler while reading; every other payload is ignored. The first read
// error (including a peer close) is reported on the returned channel.
func (s *Subscriber) startReadPump() <-chan error {
	s.extendReadDeadline()
	s.conn.SetPongHandler(func(string) error {
		s.extendReadDeadline()
		return nil
	})
	s.conn.SetPingHandler(func(appData string) error {
		if err := s.conn.WriteControl(websocket.PongMessage, []byte(appData), s.clock.Now().Add(writeDeadline)); err != nil {
			return fmt.Errorf("write pong: %w", err)
		}
		s.extendReadDeadline()
		return nil
	})

	errCh := make(chan error, 1)
	go func() {
		for {
			if _, _, err := s.conn.ReadMessage(); err != nil {
				errCh <- err
				return
			}
		}
	}()
	return errCh
}

func (s *Subscriber) extendReadDeadline() {
	_ = s.conn.SetReadDeadline(s.clock.Now().Add(pongDeadline))
}

func (s *Subscriber) finish(reason error, unsubscribe func()) {
	s.state.Store(int32(StateClosing))

	unsubscribe()
	_ = s.conn.Close()

	metrics.WebSocketConnectionDuration.Observe(s.clock.Since(s.connectedAt).Seconds())
	logger := logging.WithPoll(s.pollID)
	if websocket.IsCloseError(reason, websocket.CloseNormalClosure, websocket.CloseGoingAway) || errors.Is(reason, errShutdown) {
		logger.Debug("Subscriber closed", "connection_id", s.id, "reason", reason)
	} else {
		logger.Info("Subscriber disconnected", "connection_id", s.id, "reason", reason)
	}

	s.state.Store(int32(StateClosed))
	close(s.done)
}
