package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/shanmukh0504/polling-application-cicd/internal/metrics"
)

type pollSubscribers map[uint64]*Subscriber

// Registry maps poll ids to the subscribers currently watching them.
// Reads (snapshots, counts) share the lock; Subscribe and Unsubscribe are exclusive.
// No method performs I/O.
type Registry struct {
	mu     sync.RWMutex
	polls  map[string]pollSubscribers
	nextID atomic.Uint64
}

func NewRegistry() *Registry {
	return &Registry{polls: make(map[string]pollSubscribers)}
}

// Subscribe registers sub under its poll id and returns the connection id assigned to it.
// Ids are unique for the lifetime of the registry. Subscribing a subscriber that is still
// registered returns its existing id; one that was unsubscribed is registered again under
// a fresh id.
func (r *Registry) Subscribe(sub *Subscriber) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, exists := r.polls[sub.pollID]
	if exists && sub.id != 0 && subs[sub.id] == sub {
		return sub.id
	}
	sub.id = r.nextID.Add(1)

	if !exists {
		subs = make(pollSubscribers)
		r.polls[sub.pollID] = subs
	}
	subs[sub.id] = sub

	metrics.BroadcastConnectedClients.Inc()
	metrics.BroadcastActivePolls.Set(float64(len(r.polls)))

	return sub.id
}

// Unsubscribe removes the connection id from the poll and drops the poll entry once it
// is empty. It reports whether anything was removed; repeated calls are no-ops.
func (r *Registry) Unsubscribe(pollID string, connectionID uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, exists := r.polls[pollID]
	if !exists {
		return false
	}
	if _, exists := subs[connectionID]; !exists {
		return false
	}

	delete(subs, connectionID)
	if len(subs) == 0 {
		delete(r.polls, pollID)
	}

	metrics.BroadcastConnectedClients.Dec()
	metrics.BroadcastActivePolls.Set(float64(len(r.polls)))

	return true
}

// SubscribersOf returns a snapshot of the poll's subscribers. Later registry
// changes do not affect the returned slice.
func (r *Registry) SubscribersOf(pollID string) []*Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := r.polls[pollID]
	if len(subs) == 0 {
		return nil
	}
	snapshot := make([]*Subscriber, 0, len(subs))
	for _, sub := range subs {
		snapshot = append(snapshot, sub)
	}
	return snapshot
}

// Count returns the number of subscribers watching the poll.
func (r *Registry) Count(pollID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.polls[pollID])
}

// Polls returns the number of polls with at least one subscriber.
func (r *Registry) Polls() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.polls)
}
