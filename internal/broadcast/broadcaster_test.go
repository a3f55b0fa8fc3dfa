package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shanmukh0504/polling-application-cicd/internal/domain"
	"github.com/shanmukh0504/polling-application-cicd/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroadcaster(t *testing.T, clock clockwork.Clock, bufferSize int) *Broadcaster {
	t.Helper()
	b := NewBroadcaster(NewRegistry(), clock, bufferSize)
	t.Cleanup(b.Stop)
	return b
}

func subscribeFake(t *testing.T, b *Broadcaster, pollID string) (*Subscriber, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	sub, err := b.Subscribe(pollID, conn)
	require.NoError(t, err)
	return sub, conn
}

func TestPublish_VoteUpdateReachesOnlyTargetPoll(t *testing.T) {
	b := newTestBroadcaster(t, clockwork.NewRealClock(), DefaultBufferSize)
	_, c1 := subscribeFake(t, b, "p1")
	_, c2 := subscribeFake(t, b, "p2")

	b.Publish(domain.VoteUpdate{
		PollID:  "p1",
		Results: []domain.OptionCount{{OptionID: "a", Count: 3}},
	})

	assert.JSONEq(t, `{"VoteUpdate":{"poll_id":"p1","results":[{"_id":"a","count":3}]}}`, string(expectFrame(t, c1)))
	expectNoFrame(t, c2, 50*time.Millisecond)
}

func TestPublish_FanOutToEverySubscriber(t *testing.T) {
	b := newTestBroadcaster(t, clockwork.NewRealClock(), DefaultBufferSize)
	conns := make([]*fakeConn, 3)
	for i := range conns {
		_, conns[i] = subscribeFake(t, b, "p1")
	}

	b.Publish(domain.StatusUpdate{PollID: "p1", IsActive: false})

	for _, c := range conns {
		assert.JSONEq(t, `{"StatusUpdate":{"poll_id":"p1","is_active":false}}`, string(expectFrame(t, c)))
	}
}

func TestPublish_NoSubscribersIsNoop(t *testing.T) {
	registry := NewRegistry()
	b := NewBroadcaster(registry, clockwork.NewRealClock(), DefaultBufferSize)
	t.Cleanup(b.Stop)
	dropped := metrics.BroadcastEventsDropped.WithLabelValues("no_subscribers")
	before := testutil.ToFloat64(dropped)

	assert.NotPanics(t, func() {
		for i := range 1000 {
			b.Publish(domain.VoteUpdate{PollID: "p9", Results: []domain.OptionCount{{OptionID: "a", Count: i}}})
		}
		b.Publish(nil)
	})

	assert.Equal(t, 0, b.SubscriberCount("p9"))
	assert.Equal(t, 0, registry.Polls())
	assert.Equal(t, 1000.0, testutil.ToFloat64(dropped)-before)
}

func TestPublish_LateSubscriberMissesEarlierEvents(t *testing.T) {
	b := newTestBroadcaster(t, clockwork.NewRealClock(), DefaultBufferSize)

	b.Publish(domain.Reset{PollID: "p1"})
	_, c := subscribeFake(t, b, "p1")

	expectNoFrame(t, c, 50*time.Millisecond)

	b.Publish(domain.StatusUpdate{PollID: "p1", IsActive: true})
	assert.JSONEq(t, `{"StatusUpdate":{"poll_id":"p1","is_active":true}}`, string(expectFrame(t, c)))
}

func TestPublish_PreservesOrderPerConnection(t *testing.T) {
	b := newTestBroadcaster(t, clockwork.NewRealClock(), DefaultBufferSize)
	_, c := subscribeFake(t, b, "p1")

	const n = 50
	for i := range n {
		b.Publish(domain.VoteUpdate{PollID: "p1", Results: []domain.OptionCount{{OptionID: "a", Count: i}}})
	}

	for i := range n {
		event, err := domain.DecodeEvent(expectFrame(t, c))
		require.NoError(t, err)
		update, ok := event.(domain.VoteUpdate)
		require.True(t, ok)
		require.Len(t, update.Results, 1)
		assert.Equal(t, i, update.Results[0].Count, "event %d out of order", i)
	}
}

func TestPublish_ConcurrentPublishersDeliverEverything(t *testing.T) {
	b := newTestBroadcaster(t, clockwork.NewRealClock(), 1024)
	_, c := subscribeFake(t, b, "p1")

	const publishers = 8
	const perPublisher = 25

	var wg sync.WaitGroup
	for p := range publishers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perPublisher {
				b.Publish(domain.VoteUpdate{
					PollID:  "p1",
					Results: []domain.OptionCount{{OptionID: fmt.Sprintf("pub-%d", p), Count: i}},
				})
			}
		}()
	}
	wg.Wait()

	// Order across publishers is unspecified; each publisher's own events stay in order.
	next := make(map[string]int)
	for range publishers * perPublisher {
		event, err := domain.DecodeEvent(expectFrame(t, c))
		require.NoError(t, err)
		result := event.(domain.VoteUpdate).Results[0]
		assert.Equal(t, next[result.OptionID], result.Count)
		next[result.OptionID]++
	}
}

func TestPublish_LaggingSubscriberDropsButStaysConnected(t *testing.T) {
	b := newTestBroadcaster(t, clockwork.NewRealClock(), 1)
	sub, c := subscribeFake(t, b, "p1")

	gate := make(chan struct{})
	c.setWriteGate(gate)

	b.Publish(domain.Reset{PollID: "p1"})
	// Wait until the loop has taken the first event and is stuck writing it.
	require.Eventually(t, func() bool { return len(sub.outbound) == 0 }, time.Second, time.Millisecond)

	b.Publish(domain.StatusUpdate{PollID: "p1", IsActive: false}) // buffered
	b.Publish(domain.StatusUpdate{PollID: "p1", IsActive: true})  // dropped
	b.Publish(domain.Reset{PollID: "p1"})                         // dropped
	assert.Equal(t, uint64(2), sub.lagged.Load())

	c.setWriteGate(nil)
	close(gate)

	assert.JSONEq(t, `{"Reset":{"poll_id":"p1"}}`, string(expectFrame(t, c)))
	assert.JSONEq(t, `{"StatusUpdate":{"poll_id":"p1","is_active":false}}`, string(expectFrame(t, c)))
	expectNoFrame(t, c, 50*time.Millisecond)

	assert.Equal(t, StateActive, sub.State())
	assert.Equal(t, 1, b.SubscriberCount("p1"))
	assert.False(t, c.isClosed())

	b.Publish(domain.Reset{PollID: "p1"})
	assert.JSONEq(t, `{"Reset":{"poll_id":"p1"}}`, string(expectFrame(t, c)))
	require.Eventually(t, func() bool { return sub.lagged.Load() == 0 }, time.Second, time.Millisecond)
}

type unencodableEvent struct{ pollID string }

func (unencodableEvent) Kind() domain.EventKind       { return "Unencodable" }
func (e unencodableEvent) TargetPoll() string         { return e.pollID }
func (unencodableEvent) MarshalJSON() ([]byte, error) { return nil, errors.New("cannot encode") }

func TestPublish_EncodeFailureDropsOnlyThatEvent(t *testing.T) {
	b := newTestBroadcaster(t, clockwork.NewRealClock(), DefaultBufferSize)
	sub, c := subscribeFake(t, b, "p1")

	b.Publish(unencodableEvent{pollID: "p1"})
	b.Publish(domain.Reset{PollID: "p1"})

	assert.JSONEq(t, `{"Reset":{"poll_id":"p1"}}`, string(expectFrame(t, c)))
	assert.Equal(t, StateActive, sub.State())
	assert.Equal(t, 1, b.SubscriberCount("p1"))
}

func TestSubscriber_IgnoresEventsForOtherPolls(t *testing.T) {
	b := newTestBroadcaster(t, clockwork.NewRealClock(), DefaultBufferSize)
	sub, c := subscribeFake(t, b, "p1")

	// Bypass routing to exercise the loop's own filter.
	require.True(t, sub.offer(domain.Reset{PollID: "p2"}))
	require.True(t, sub.offer(domain.Reset{PollID: "p1"}))

	assert.JSONEq(t, `{"Reset":{"poll_id":"p1"}}`, string(expectFrame(t, c)))
	expectNoFrame(t, c, 50*time.Millisecond)
}

func TestSubscriber_WriteFailureUnsubscribes(t *testing.T) {
	b := newTestBroadcaster(t, clockwork.NewRealClock(), DefaultBufferSize)
	broken, bc := subscribeFake(t, b, "p1")
	_, healthy := subscribeFake(t, b, "p1")

	bc.setWriteErr(errors.New("connection reset by peer"))
	b.Publish(domain.Reset{PollID: "p1"})

	waitDone(t, broken)
	assert.Equal(t, StateClosed, broken.State())
	assert.True(t, bc.isClosed())
	assert.Equal(t, 1, b.SubscriberCount("p1"))

	assert.JSONEq(t, `{"Reset":{"poll_id":"p1"}}`, string(expectFrame(t, healthy)))
}

func TestSubscriber_PeerCloseUnsubscribes(t *testing.T) {
	b := newTestBroadcaster(t, clockwork.NewRealClock(), DefaultBufferSize)
	sub, c := subscribeFake(t, b, "p1")

	c.inbound <- inboundFrame{messageType: ws.CloseMessage}

	waitDone(t, sub)
	assert.Equal(t, 0, b.SubscriberCount("p1"))
	assert.Equal(t, 0, b.registry.Polls())
}

func TestSubscriber_ReadErrorUnsubscribes(t *testing.T) {
	b := newTestBroadcaster(t, clockwork.NewRealClock(), DefaultBufferSize)
	sub, c := subscribeFake(t, b, "p1")

	c.inbound <- inboundFrame{err: errors.New("unexpected EOF")}

	waitDone(t, sub)
	assert.Equal(t, 0, b.SubscriberCount("p1"))
}

func TestSubscriber_IgnoresClientPayloads(t *testing.T) {
	b := newTestBroadcaster(t, clockwork.NewRealClock(), DefaultBufferSize)
	sub, c := subscribeFake(t, b, "p1")

	c.inbound <- inboundFrame{messageType: ws.TextMessage, data: []byte(`{"vote":"a"}`)}
	c.inbound <- inboundFrame{messageType: ws.BinaryMessage, data: []byte{0x01}}

	b.Publish(domain.Reset{PollID: "p1"})
	assert.JSONEq(t, `{"Reset":{"poll_id":"p1"}}`, string(expectFrame(t, c)))
	assert.Equal(t, StateActive, sub.State())
}

func TestSubscriber_AnswersPingWithPong(t *testing.T) {
	b := newTestBroadcaster(t, clockwork.NewRealClock(), DefaultBufferSize)
	sub, c := subscribeFake(t, b, "p1")

	c.inbound <- inboundFrame{messageType: ws.PingMessage, data: []byte("hb-1")}

	pong := expectControl(t, c, ws.PongMessage)
	assert.Equal(t, []byte("hb-1"), pong.data)
	assert.Equal(t, StateActive, sub.State())
}

func TestSubscriber_PongFailureUnsubscribes(t *testing.T) {
	b := newTestBroadcaster(t, clockwork.NewRealClock(), DefaultBufferSize)
	sub, c := subscribeFake(t, b, "p1")

	c.setControlErr(errors.New("broken pipe"))
	c.inbound <- inboundFrame{messageType: ws.PingMessage, data: []byte("hb")}

	waitDone(t, sub)
	assert.Equal(t, 0, b.SubscriberCount("p1"))
	assert.True(t, c.isClosed())
}

func TestSubscriber_SendsPeriodicPings(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := newTestBroadcaster(t, clock, DefaultBufferSize)
	_, c := subscribeFake(t, b, "p1")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(pingInterval)
	expectControl(t, c, ws.PingMessage)
}

func TestSubscriber_PingFailureUnsubscribes(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := newTestBroadcaster(t, clock, DefaultBufferSize)
	sub, c := subscribeFake(t, b, "p1")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	c.setControlErr(errors.New("broken pipe"))
	clock.Advance(pingInterval)

	waitDone(t, sub)
	assert.Equal(t, 0, b.SubscriberCount("p1"))
}

func TestStop_ClosesEverySubscriberGoingAway(t *testing.T) {
	b := NewBroadcaster(NewRegistry(), clockwork.NewRealClock(), DefaultBufferSize)
	s1, c1 := subscribeFake(t, b, "p1")
	s2, c2 := subscribeFake(t, b, "p2")

	b.Stop()

	for _, c := range []*fakeConn{c1, c2} {
		frame := expectControl(t, c, ws.CloseMessage)
		require.GreaterOrEqual(t, len(frame.data), 2)
		code := int(frame.data[0])<<8 | int(frame.data[1])
		assert.Equal(t, ws.CloseGoingAway, code)
		assert.True(t, c.isClosed())
	}
	waitDone(t, s1)
	waitDone(t, s2)
	assert.Equal(t, 0, b.registry.Polls())

	assert.NotPanics(t, b.Stop)
}

func TestSubscribe_AfterStopFails(t *testing.T) {
	b := NewBroadcaster(NewRegistry(), clockwork.NewRealClock(), DefaultBufferSize)
	b.Stop()

	c := newFakeConn()
	sub, err := b.Subscribe("p1", c)

	assert.ErrorIs(t, err, ErrStopped)
	assert.Nil(t, sub)
	assert.True(t, c.isClosed())
	assert.Equal(t, 0, b.SubscriberCount("p1"))
}

func TestStop_TimeoutWhenLoopIsStuck(t *testing.T) {
	b := NewBroadcaster(NewRegistry(), clockwork.NewRealClock(), DefaultBufferSize)
	b.stopTimeout = 50 * time.Millisecond

	sub, c := subscribeFake(t, b, "p1")
	gate := make(chan struct{})
	c.setWriteGate(gate)
	b.Publish(domain.Reset{PollID: "p1"})
	require.Eventually(t, func() bool { return len(sub.outbound) == 0 }, time.Second, time.Millisecond)

	start := time.Now()
	b.Stop()
	assert.Less(t, time.Since(start), time.Second)

	close(gate)
	waitDone(t, sub)
	assert.Equal(t, 0, b.SubscriberCount("p1"))
}

func TestBroadcaster_GorillaConnectionEndToEnd(t *testing.T) {
	b := newTestBroadcaster(t, clockwork.NewRealClock(), DefaultBufferSize)
	serverConn, clientConn := newTestConnPair(t)

	sub, err := b.Subscribe("p1", serverConn)
	require.NoError(t, err)
	assert.Equal(t, 1, b.SubscriberCount("p1"))

	b.Publish(domain.VoteUpdate{PollID: "p1", Results: []domain.OptionCount{{OptionID: "a", Count: 1}, {OptionID: "b", Count: 0}}})

	require.NoError(t, clientConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, data, err := clientConn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, ws.TextMessage, msgType)
	assert.JSONEq(t, `{"VoteUpdate":{"poll_id":"p1","results":[{"_id":"a","count":1},{"_id":"b","count":0}]}}`, string(data))

	require.NoError(t, clientConn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, "")))
	waitDone(t, sub)
	assert.Equal(t, 0, b.SubscriberCount("p1"))
}

func TestBroadcaster_GorillaPingPong(t *testing.T) {
	b := newTestBroadcaster(t, clockwork.NewRealClock(), DefaultBufferSize)
	serverConn, clientConn := newTestConnPair(t)

	_, err := b.Subscribe("p1", serverConn)
	require.NoError(t, err)

	pongs := make(chan string, 1)
	clientConn.SetPongHandler(func(appData string) error {
		pongs <- appData
		return nil
	})
	require.NoError(t, clientConn.WriteControl(ws.PingMessage, []byte("are-you-there"), time.Now().Add(time.Second)))

	// Control frames are only processed while the client reads.
	go func() {
		for {
			if _, _, err := clientConn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case appData := <-pongs:
		assert.Equal(t, "are-you-there", appData)
	case <-time.After(2 * time.Second):
		t.Fatal("no pong received")
	}
}

func TestBroadcaster_GorillaStopSendsGoingAway(t *testing.T) {
	b := NewBroadcaster(NewRegistry(), clockwork.NewRealClock(), DefaultBufferSize)
	serverConn, clientConn := newTestConnPair(t)

	sub, err := b.Subscribe("p1", serverConn)
	require.NoError(t, err)

	b.Stop()
	waitDone(t, sub)

	require.NoError(t, clientConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = clientConn.ReadMessage()
	assert.True(t, ws.IsCloseError(err, ws.CloseGoingAway), "expected going-away close, got %v", err)
}

type malformedEvent struct{ pollID string }

func (malformedEvent) Kind() domain.EventKind       { return "Malformed" }
func (e malformedEvent) TargetPoll() string         { return e.pollID }
func (malformedEvent) MarshalJSON() ([]byte, error) { panic("encoder failure") }

func TestSubscriber_PanicInLoopStillDeregisters(t *testing.T) {
	registry := NewRegistry()
	conn := newFakeConn()
	sub := newSubscriber("p1", conn, clockwork.NewFakeClock(), 1)
	id := registry.Subscribe(sub)
	require.True(t, sub.offer(malformedEvent{pollID: "p1"}))

	assert.Panics(t, func() {
		sub.run(context.Background(), func() { registry.Unsubscribe("p1", id) })
	})

	waitDone(t, sub)
	assert.Equal(t, 0, registry.Count("p1"))
	assert.Equal(t, StateClosed, sub.State())
	assert.True(t, conn.isClosed())
}
