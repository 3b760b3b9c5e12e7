package models

import (
	"strings"
	"time"
)

// NoMessagesPreview is the preview text of a conversation with no history.
const NoMessagesPreview = "No messages yet"

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "active"
	ConversationArchived ConversationStatus = "archived"
)

// Counterparty is the other party of an operator's conversation.
type Counterparty struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
	Avatar string `json:"avatar,omitempty"`
}

// Conversation is a two-party message relationship seen from the operator.
type Conversation struct {
	// ID is the local surrogate id, stable for the session.
	ID string `json:"id"`

	// PersistentID is the backend conversation id. Empty until any message
	// has been exchanged; once set it never changes.
	PersistentID string `json:"persistent_id,omitempty"`

	Counterparty Counterparty `json:"counterparty"`

	LastMessage   string    `json:"last_message"`
	LastMessageAt time.Time `json:"last_message_at,omitempty"`

	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`

	Unread int                `json:"unread"`
	Status ConversationStatus `json:"status"`
}

// LocalConversationID derives the session-stable surrogate id for a
// counterparty.
func LocalConversationID(counterpartyID string) string {
	return "conv-" + strings.TrimSpace(counterpartyID)
}

// HasHistory reports whether the conversation has a last message.
func (c Conversation) HasHistory() bool {
	return !c.LastMessageAt.IsZero()
}

// CopyVolatile copies presence, unread and preview fields from src. Identity
// and persistent id are left untouched.
func (c *Conversation) CopyVolatile(src Conversation) {
	c.Online = src.Online
	c.LastSeen = cloneTime(src.LastSeen)
	c.Unread = src.Unread
	c.LastMessage = src.LastMessage
	c.LastMessageAt = src.LastMessageAt
	c.Counterparty.Name = src.Counterparty.Name
	c.Counterparty.Avatar = src.Counterparty.Avatar
	c.Status = src.Status
}

// Clone returns a deep copy.
func (c Conversation) Clone() Conversation {
	out := c
	out.LastSeen = cloneTime(c.LastSeen)
	return out
}

// ConversationSummary is one entry of the backend's conversation listing.
type ConversationSummary struct {
	CounterpartyID  string             `json:"counterparty_id"`
	ConversationID  string             `json:"conversation_id,omitempty"`
	LastMessageAt   time.Time          `json:"last_message_at,omitempty"`
	LastMessageText string             `json:"last_message_text,omitempty"`
	UnreadCount     int                `json:"unread_count,omitempty"`
	Status          ConversationStatus `json:"status,omitempty"`
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
