// Package bus provides the event distribution system for turn progress:
// thread-safe pub/sub with typed and wildcard subscriptions plus a bounded
// replay history, consumed by the status stream and by anything else that
// wants live progress. The orchestration core publishes into it but never
// depends on anyone listening.
package bus

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of turn-progress event.
type EventType string

const (
	// Turn lifecycle
	EventTurnStart    EventType = "turn_start"
	EventTurnComplete EventType = "turn_complete"
	EventTurnError    EventType = "turn_error"

	// Decision stage, once per loop iteration
	EventDecisionStart    EventType = "decision_start"
	EventDecisionComplete EventType = "decision_complete"

	// Capability invocations inside an Acting phase
	EventCapabilityStart    EventType = "capability_start"
	EventCapabilityComplete EventType = "capability_complete"
	EventCapabilityError    EventType = "capability_error"

	// Output stage
	EventOutputStart    EventType = "output_start"
	EventOutputComplete EventType = "output_complete"
)

// Event is one turn-progress notification.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`

	// Turn tracking
	TurnID    string `json:"turn_id,omitempty"`
	Iteration int    `json:"iteration,omitempty"`

	// Step progress
	Step    string `json:"step,omitempty"`
	Status  string `json:"status,omitempty"` // "started", "completed", "failed"
	Message string `json:"message,omitempty"`

	// Capability context
	Capability string `json:"capability,omitempty"`

	// Performance
	DurationMs int64 `json:"duration_ms,omitempty"`

	// Error information
	Error string `json:"error,omitempty"`

	// LLM context
	Model string `json:"model,omitempty"`
}

// NewEvent creates an event with identity and timestamp filled in.
func NewEvent(eventType EventType, turnID string) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Type:      eventType,
		TurnID:    turnID,
	}
}
