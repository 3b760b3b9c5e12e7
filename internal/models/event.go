package models

import (
	"encoding/json"
	"time"
)

// EventType categorizes sync session events.
type EventType string

const (
	// Conversation list events
	EventTypeListUpdated EventType = "list.updated"

	// Thread events
	EventTypeThreadUpdated EventType = "thread.updated"

	// Presence events
	EventTypePresenceChanged EventType = "presence.changed"
	EventTypeTypingChanged   EventType = "typing.changed"

	// Send events
	EventTypeMessageSent   EventType = "message.sent"
	EventTypeMessageFailed EventType = "message.failed"

	// Session events
	EventTypeReauthRequired EventType = "auth.reauth_required"
	EventTypeAutoScroll     EventType = "scroll.auto"
	EventTypeSyncError      EventType = "sync.error"
)

// EntityType identifies the type of entity an event relates to.
type EntityType string

const (
	EntityTypeConversation EntityType = "conversation"
	EntityTypeMessage      EntityType = "message"
	EntityTypeSession      EntityType = "session"
)

// Event is a notification emitted by a sync session.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// EntityType identifies what kind of entity this event relates to.
	EntityType EntityType `json:"entity_type"`

	// EntityID is the local id of the related entity.
	EntityID string `json:"entity_id,omitempty"`

	// Payload contains event-specific data as JSON.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Message is a human readable summary, set on failures.
	Message string `json:"message,omitempty"`
}

// NewEvent builds an event with a JSON-encoded payload. A payload that
// cannot be encoded is dropped; the event itself is still useful.
func NewEvent(at time.Time, typ EventType, entity EntityType, entityID string, payload any) *Event {
	event := &Event{
		Timestamp:  at.UTC(),
		Type:       typ,
		EntityType: entity,
		EntityID:   entityID,
	}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			event.Payload = data
		}
	}
	return event
}
