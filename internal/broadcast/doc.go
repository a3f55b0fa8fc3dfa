// Package broadcast implements the real-time poll fanout.
//
// A Registry indexes live subscriber connections by poll id behind a RWMutex. The
// Broadcaster snapshots a poll's subscribers on Publish and offers the event to each
// subscriber's bounded buffer without blocking; a full buffer drops the event for that
// subscriber only. Every Subscriber runs its own lifecycle loop goroutine that selects
// between inbound transport events (close, error, ping) and outbound events, and
// deregisters itself exactly once on exit.
package broadcast
