// Package receipt maps message delivery signals to a receipt tick.
package receipt

import (
	"strings"

	"github.com/tOgg1/sitesync/internal/models"
)

// Tick is the receipt indicator shown next to an outgoing message.
type Tick int

const (
	// TickNone is used for messages the viewer did not send.
	TickNone Tick = iota
	TickSent
	TickDelivered
	TickRead
)

func (t Tick) String() string {
	switch t {
	case TickSent:
		return "sent"
	case TickDelivered:
		return "delivered"
	case TickRead:
		return "read"
	default:
		return "none"
	}
}

// Glyph returns the check marks for the tick. Delivered and read share a
// glyph; the viewer styles read differently.
func (t Tick) Glyph() string {
	switch t {
	case TickSent:
		return "✓"
	case TickDelivered, TickRead:
		return "✓✓"
	default:
		return ""
	}
}

// Render returns the receipt tick for msg as seen by viewerID.
//
// An explicit status wins over the read/delivered flags. Read implies
// delivered, which implies sent.
func Render(msg models.Message, viewerID string) Tick {
	if viewerID == "" || msg.SenderID != viewerID {
		return TickNone
	}

	switch models.MessageStatus(strings.ToLower(strings.TrimSpace(string(msg.Status)))) {
	case models.StatusRead:
		return TickRead
	case models.StatusDelivered:
		return TickDelivered
	case models.StatusSent:
		return TickSent
	}

	switch {
	case msg.Read:
		return TickRead
	case msg.Delivered:
		return TickDelivered
	default:
		return TickSent
	}
}
