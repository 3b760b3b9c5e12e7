package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tOgg1/sitesync/internal/models"
	"github.com/tOgg1/sitesync/internal/presence"
)

// flexID accepts ids encoded as JSON strings or numbers.
type flexID string

func (id *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = flexID(n.String())
	return nil
}

// flexTime accepts any timestamp encoding presence.ParseTimestamp knows.
// Unreadable values decode as the zero time instead of failing the payload.
type flexTime time.Time

func (t *flexTime) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		*t = flexTime{}
		return nil
	}
	parsed, _ := presence.ParseTimestamp(raw)
	*t = flexTime(parsed)
	return nil
}

func (t flexTime) utc() time.Time {
	v := time.Time(t)
	if v.IsZero() {
		return v
	}
	return v.UTC()
}

// Field names tried on directory records, first match wins.
var (
	userIDFields       = []string{"id", "user_id", "userId"}
	userNameFields     = []string{"name", "full_name", "fullName", "display_name", "username"}
	userRoleFields     = []string{"role", "user_type", "userType"}
	userAvatarFields   = []string{"avatar", "avatar_url", "avatarUrl"}
	userSetupFields    = []string{"setup_complete", "setupComplete", "profile_complete"}
	userVerifiedFields = []string{"verified", "is_verified", "isVerified"}
)

// userFromFields builds a UserRecord from a raw directory record. Records
// without an id are dropped.
func userFromFields(fields map[string]any) (models.UserRecord, bool) {
	id := stringField(fields, userIDFields...)
	if id == "" {
		return models.UserRecord{}, false
	}
	return models.UserRecord{
		ID:            id,
		Name:          stringField(fields, userNameFields...),
		Role:          models.ParseRole(stringField(fields, userRoleFields...)),
		Avatar:        stringField(fields, userAvatarFields...),
		Presence:      presence.NormalizeFields(fields),
		SetupComplete: boolField(fields, userSetupFields...),
		Verified:      boolField(fields, userVerifiedFields...),
	}, true
}

func stringField(fields map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := fields[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func boolField(fields map[string]any, keys ...string) bool {
	for _, key := range keys {
		if _, ok := fields[key]; ok {
			return presence.Truthy(fields[key])
		}
	}
	return false
}

type summaryWire struct {
	CounterpartyID  flexID   `json:"counterparty_id"`
	ConversationID  flexID   `json:"conversation_id"`
	LastMessageAt   flexTime `json:"last_message_at"`
	LastMessageText string   `json:"last_message_text"`
	UnreadCount     int      `json:"unread_count"`
	Status          string   `json:"status"`
}

func (w summaryWire) model() models.ConversationSummary {
	return models.ConversationSummary{
		CounterpartyID:  string(w.CounterpartyID),
		ConversationID:  string(w.ConversationID),
		LastMessageAt:   w.LastMessageAt.utc(),
		LastMessageText: w.LastMessageText,
		UnreadCount:     w.UnreadCount,
		Status:          models.ConversationStatus(strings.ToLower(strings.TrimSpace(w.Status))),
	}
}

type messageWire struct {
	ID             flexID   `json:"id"`
	ConversationID flexID   `json:"conversation_id"`
	SenderID       flexID   `json:"sender_id"`
	SenderRole     string   `json:"sender_role"`
	RecipientID    flexID   `json:"recipient_id"`
	RecipientRole  string   `json:"recipient_role"`
	Body           string   `json:"body"`
	Content        string   `json:"content"`
	CreatedAt      flexTime `json:"created_at"`
	Read           bool     `json:"read"`
	Delivered      bool     `json:"delivered"`
	Status         string   `json:"status"`
}

func (w messageWire) model() models.Message {
	body := w.Body
	if body == "" {
		body = w.Content
	}
	m := models.Message{
		ID:             string(w.ID),
		ConversationID: string(w.ConversationID),
		SenderID:       string(w.SenderID),
		SenderRole:     models.ParseRole(w.SenderRole),
		RecipientID:    string(w.RecipientID),
		RecipientRole:  models.ParseRole(w.RecipientRole),
		Body:           body,
		CreatedAt:      w.CreatedAt.utc(),
		Read:           w.Read,
		Delivered:      w.Delivered,
		Status:         models.MessageStatus(w.Status),
	}
	m.Normalize()
	return m
}

type receiptWire struct {
	ID             flexID   `json:"id"`
	ConversationID flexID   `json:"conversation_id"`
	SenderID       flexID   `json:"sender_id"`
	CreatedAt      flexTime `json:"created_at"`
	Read           bool     `json:"read"`
	Delivered      bool     `json:"delivered"`
	Status         string   `json:"status"`
}

func (w receiptWire) model() models.SendReceipt {
	return models.SendReceipt{
		ID:             string(w.ID),
		ConversationID: string(w.ConversationID),
		SenderID:       string(w.SenderID),
		CreatedAt:      w.CreatedAt.utc(),
		Read:           w.Read,
		Delivered:      w.Delivered,
		Status:         models.MessageStatus(strings.ToLower(strings.TrimSpace(w.Status))),
	}
}

type typingWire struct {
	Typing bool   `json:"typing"`
	UserID flexID `json:"user_id"`
}
