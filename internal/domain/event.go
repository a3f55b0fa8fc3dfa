package domain

import (
	"encoding/json"
	"fmt"
)

// EventKind names an Event variant. The kind is also the single top-level key
// of the event's JSON wire form.
type EventKind string

const (
	EventVoteUpdate   EventKind = "VoteUpdate"
	EventStatusUpdate EventKind = "StatusUpdate"
	EventReset        EventKind = "Reset"
)

// Event is one real-time poll notification. Implementations are plain values:
// they are never mutated after construction and may be shared between goroutines.
type Event interface {
	Kind() EventKind
	// TargetPoll is the routing key: only subscribers of this poll receive the event.
	TargetPoll() string
}

// OptionCount is the tally of one poll option. Its JSON form is {"_id": ..., "count": ...}.
type OptionCount struct {
	OptionID string `json:"_id"`
	Count    int    `json:"count"`
}

type VoteUpdate struct {
	PollID  string        `json:"poll_id"`
	Results []OptionCount `json:"results"`
}

func (VoteUpdate) Kind() EventKind      { return EventVoteUpdate }
func (e VoteUpdate) TargetPoll() string { return e.PollID }

// MarshalJSON keeps results an array on the wire even when no votes exist.
func (e VoteUpdate) MarshalJSON() ([]byte, error) {
	type plain VoteUpdate
	if e.Results == nil {
		e.Results = []OptionCount{}
	}
	return json.Marshal(plain(e))
}

type StatusUpdate struct {
	PollID   string `json:"poll_id"`
	IsActive bool   `json:"is_active"`
}

func (StatusUpdate) Kind() EventKind      { return EventStatusUpdate }
func (e StatusUpdate) TargetPoll() string { return e.PollID }

type Reset struct {
	PollID string `json:"poll_id"`
}

func (Reset) Kind() EventKind      { return EventReset }
func (e Reset) TargetPoll() string { return e.PollID }

// EncodeEvent renders an event in its externally-tagged wire form,
// e.g. {"Reset":{"poll_id":"p1"}}.
func EncodeEvent(e Event) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("encode event: %w", ErrUnknownEvent)
	}
	data, err := json.Marshal(map[EventKind]Event{e.Kind(): e})
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", e.Kind(), err)
	}
	return data, nil
}

// DecodeEvent parses a wire frame produced by EncodeEvent.
func DecodeEvent(data []byte) (Event, error) {
	var envelope map[EventKind]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	if len(envelope) != 1 {
		return nil, fmt.Errorf("decode event: expected exactly one variant, got %d: %w", len(envelope), ErrUnknownEvent)
	}

	for kind, body := range envelope {
		switch kind {
		case EventVoteUpdate:
			var e VoteUpdate
			if err := json.Unmarshal(body, &e); err != nil {
				return nil, fmt.Errorf("decode %s: %w", kind, err)
			}
			return e, nil
		case EventStatusUpdate:
			var e StatusUpdate
			if err := json.Unmarshal(body, &e); err != nil {
				return nil, fmt.Errorf("decode %s: %w", kind, err)
			}
			return e, nil
		case EventReset:
			var e Reset
			if err := json.Unmarshal(body, &e); err != nil {
				return nil, fmt.Errorf("decode %s: %w", kind, err)
			}
			return e, nil
		default:
			return nil, fmt.Errorf("decode event %q: %w", kind, ErrUnknownEvent)
		}
	}
	return nil, ErrUnknownEvent
}
