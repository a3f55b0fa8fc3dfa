package domain

// EventPublisher hands poll events to the real-time fanout.
// Publish never blocks on subscribers and never fails; delivery is best-effort.
type EventPublisher interface {
	Publish(event Event)
}
