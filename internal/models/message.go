package models

import (
	"sort"
	"strings"
	"time"
)

// MessageStatus is the delivery status shown for a message.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Valid reports whether s is a known status.
func (s MessageStatus) Valid() bool {
	switch s {
	case StatusSent, StatusDelivered, StatusRead:
		return true
	default:
		return false
	}
}

// DeliveryState tracks a message's local send lifecycle.
type DeliveryState string

const (
	// DeliveryConfirmed is the state of any message known to the backend.
	// The zero value is treated the same way.
	DeliveryConfirmed DeliveryState = "confirmed"
	DeliveryPending   DeliveryState = "pending"
	DeliveryFailed    DeliveryState = "failed"
)

// Message is the atomic unit of communication.
type Message struct {
	// ID is the server id, or a local provisional id until confirmed.
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id,omitempty"`

	SenderID      string `json:"sender_id"`
	SenderRole    Role   `json:"sender_role,omitempty"`
	RecipientID   string `json:"recipient_id"`
	RecipientRole Role   `json:"recipient_role,omitempty"`

	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`

	Read      bool          `json:"read"`
	Delivered bool          `json:"delivered"`
	Status    MessageStatus `json:"status,omitempty"`

	// Delivery is local-only send state; it is never sent to the backend.
	Delivery  DeliveryState `json:"delivery,omitempty"`
	SendError string        `json:"send_error,omitempty"`
}

// Unconfirmed reports whether the message exists only locally.
func (m Message) Unconfirmed() bool {
	return m.Delivery == DeliveryPending || m.Delivery == DeliveryFailed
}

// Failed reports whether the last send attempt failed.
func (m Message) Failed() bool {
	return m.Delivery == DeliveryFailed
}

// Normalize makes Status and the read/delivered flags agree
// (read implies delivered implies sent). An explicit valid Status wins over
// the flags.
func (m *Message) Normalize() {
	status := MessageStatus(strings.ToLower(strings.TrimSpace(string(m.Status))))
	switch status {
	case StatusRead:
		m.Read, m.Delivered = true, true
	case StatusDelivered:
		m.Read, m.Delivered = false, true
	case StatusSent:
		m.Read, m.Delivered = false, false
	default:
		if m.Read {
			m.Delivered = true
		}
		switch {
		case m.Read:
			status = StatusRead
		case m.Delivered:
			status = StatusDelivered
		default:
			status = StatusSent
		}
	}
	m.Status = status
}

// MessageLess orders messages by creation time, ties broken by id.
func MessageLess(a, b Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// SortMessages sorts msgs in place by (created, id).
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return MessageLess(msgs[i], msgs[j])
	})
}

// CloneMessages returns a copy of msgs. A nil input yields nil.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	return append([]Message(nil), msgs...)
}

// SendRequest is the payload of a send call.
type SendRequest struct {
	RecipientID string `json:"recipient_id"`
	Body        string `json:"body"`

	// ConversationID is the persistent id, if one is known.
	ConversationID string `json:"conversation_id,omitempty"`
}

// SendReceipt is the backend's acknowledgement of a sent message.
type SendReceipt struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	SenderID       string        `json:"sender_id"`
	CreatedAt      time.Time     `json:"created_at"`
	Read           bool          `json:"read"`
	Delivered      bool          `json:"delivered,omitempty"`
	Status         MessageStatus `json:"status,omitempty"`
}
