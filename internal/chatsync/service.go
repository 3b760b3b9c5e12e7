// Package chatsync keeps an operator's conversation list, selected thread,
// typing indicator and outgoing messages in sync with a polled backend.
package chatsync

import (
	"context"

	"github.com/tOgg1/sitesync/internal/models"
)

// UserDirectory lists marketplace users with normalized presence hints.
type UserDirectory interface {
	ListUsers(ctx context.Context) ([]models.UserRecord, error)
}

// ConversationService is the backend messaging API.
//
// Implementations report a missing conversation with an error matching
// models.ErrNotFound and a rejected session with models.ErrUnauthorized.
type ConversationService interface {
	ListConversations(ctx context.Context) ([]models.ConversationSummary, error)
	ConversationMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	SendMessage(ctx context.Context, req models.SendRequest) (models.SendReceipt, error)
	MarkConversationRead(ctx context.Context, conversationID string) error
	TypingStatus(ctx context.Context, conversationID string) (models.TypingStatus, error)
}

// ThreadCache is an optional local store of thread history, consulted when
// a conversation has no persistent id yet.
type ThreadCache interface {
	LoadThread(ctx context.Context, counterpartyID string) ([]models.Message, error)
	SaveThread(ctx context.Context, counterpartyID, conversationID string, msgs []models.Message) error
	// ConversationID returns the persistent id stored with a thread, or "".
	ConversationID(ctx context.Context, counterpartyID string) (string, error)
}
