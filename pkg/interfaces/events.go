package interfaces

import (
	"context"
	"time"
)

// Event is one row in the append-only outbox/audit log: a sheet
// execution, a publish decision, or a materialisation run.
type Event struct {
	SequenceID  int64       `json:"sequence_id"`
	EventType   string      `json:"event_type"`
	Timestamp   time.Time   `json:"timestamp"`
	ActorID     string      `json:"actor_id"`
	Payload     interface{} `json:"payload"`
	PayloadHash string      `json:"payload_hash"`
	PrevHash    string      `json:"prev_hash"`
	TraceID     string      `json:"trace_id,omitempty"`
}

// EventRepository is the append-only log interface backing the audit
// trail (§4.1 registry changes, §4.7 sheet execution, §4.9 materialiser
// runs all append through an implementation of this interface).
type EventRepository interface {
	// Append adds a new event to the history.
	Append(ctx context.Context, eventType, actorID string, payload interface{}) (*Event, error)

	// ReadFrom reads events starting from a sequence ID (inclusive).
	ReadFrom(ctx context.Context, startSequenceID int64, limit int) ([]Event, error)
}
