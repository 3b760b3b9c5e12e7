package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"

	"github.com/tOgg1/sitesync/internal/logging"
	"github.com/tOgg1/sitesync/internal/models"
)

// DefaultMaxMessages is how many of the newest messages a thread keeps.
const DefaultMaxMessages = 200

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("cache: cbor encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("cache: cbor decoder initialization failed: " + err.Error())
	}
}

// ThreadStore keeps the last known messages of each counterparty's thread.
type ThreadStore struct {
	db          *DB
	maxMessages int
	now         func() time.Time
	logger      zerolog.Logger
}

// NewThreadStore creates a ThreadStore. maxMessages <= 0 uses
// DefaultMaxMessages.
func NewThreadStore(db *DB, maxMessages int) *ThreadStore {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &ThreadStore{
		db:          db,
		maxMessages: maxMessages,
		now:         time.Now,
		logger:      logging.Component("cache"),
	}
}

// LoadThread returns the cached messages for a counterparty, or nil.
func (s *ThreadStore) LoadThread(ctx context.Context, counterpartyID string) ([]models.Message, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM threads WHERE counterparty_id = ?`,
		strings.TrimSpace(counterpartyID),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load thread: %w", err)
	}

	var msgs []models.Message
	if err := decMode.Unmarshal(payload, &msgs); err != nil {
		return nil, fmt.Errorf("failed to decode thread: %w", err)
	}
	return msgs, nil
}

// SaveThread replaces the cached thread of a counterparty. Only messages
// the backend confirmed are stored.
func (s *ThreadStore) SaveThread(ctx context.Context, counterpartyID, conversationID string, msgs []models.Message) error {
	counterpartyID = strings.TrimSpace(counterpartyID)
	if counterpartyID == "" {
		return errors.New("counterparty id is required")
	}

	kept := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Unconfirmed() {
			continue
		}
		m.SendError = ""
		kept = append(kept, m)
	}
	models.SortMessages(kept)
	if len(kept) > s.maxMessages {
		kept = kept[len(kept)-s.maxMessages:]
	}

	payload, err := encMode.Marshal(kept)
	if err != nil {
		return fmt.Errorf("failed to encode thread: %w", err)
	}

	updated := s.now().UTC().Format(time.RFC3339)
	err = s.db.TransactionWithRetry(ctx, 0, 0, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO threads (counterparty_id, conversation_id, payload, message_count, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(counterparty_id) DO UPDATE SET
				conversation_id = CASE WHEN excluded.conversation_id = '' THEN threads.conversation_id ELSE excluded.conversation_id END,
				payload = excluded.payload,
				message_count = excluded.message_count,
				updated_at = excluded.updated_at
		`, counterpartyID, conversationID, payload, len(kept), updated)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save thread: %w", err)
	}

	s.logger.Debug().
		Str("counterparty", counterpartyID).
		Str("conversation_id", conversationID).
		Int("messages", len(kept)).
		Msg("thread cached")
	return nil
}

// ConversationID returns the persistent id last stored for a counterparty.
func (s *ThreadStore) ConversationID(ctx context.Context, counterpartyID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT conversation_id FROM threads WHERE counterparty_id = ?`,
		strings.TrimSpace(counterpartyID),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load conversation id: %w", err)
	}
	return id, nil
}
