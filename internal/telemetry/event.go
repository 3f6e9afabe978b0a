package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// Session lifecycle event types.
const (
	EventSessionCreated     = "session_created"
	EventSessionInvalidated = "session_invalidated"
	EventHubCheckFailed     = "hub_check_failed"
)

// SessionEvent is a session lifecycle event. It is the Kafka message value (JSON) and the
// source of OTel log attributes.
type SessionEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	SessionID string    `json:"sessionId,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Service   string    `json:"service,omitempty"`
	IP        string    `json:"ip,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewSessionEvent returns an event of the given type stamped with a fresh id and the current UTC time.
func NewSessionEvent(eventType, sessionID, userID, reason string) *SessionEvent {
	return &SessionEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		SessionID: sessionID,
		UserID:    userID,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
}
