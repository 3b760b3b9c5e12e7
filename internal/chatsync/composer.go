package chatsync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tOgg1/sitesync/internal/logging"
	"github.com/tOgg1/sitesync/internal/models"
)

// Composer errors.
var (
	ErrEmptyMessage    = errors.New("message is empty")
	ErrReauthRequired  = fmt.Errorf("re-authentication required: %w", models.ErrUnauthorized)
	ErrMessageNotFound = errors.New("message not found")
	ErrNotRetryable    = errors.New("message has not failed")
)

// Send outcome labels.
const (
	sendOK     = "ok"
	sendFailed = "failed"
	sendAuth   = "reauth"
)

const provisionalPrefix = "local-"

// SetInput replaces the composer input buffer.
func (s *Session) SetInput(text string) {
	s.mu.Lock()
	s.input = text
	s.mu.Unlock()
}

// Input returns the composer input buffer.
func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// Submit sends the input buffer. The buffer is cleared as soon as the
// provisional message is shown; a rejected submit leaves it untouched.
func (s *Session) Submit(ctx context.Context) (models.Message, error) {
	return s.send(ctx, s.Input(), true)
}

// Send sends body to the selected counterparty.
//
// The message is appended to the thread right away as a provisional entry
// and reconciled in place with the backend's answer. A failed message stays
// in the thread marked failed; use Retry to resend it.
func (s *Session) Send(ctx context.Context, body string) (models.Message, error) {
	return s.send(ctx, body, false)
}

func (s *Session) send(ctx context.Context, body string, fromInput bool) (models.Message, error) {
	ctx, done := s.track(ctx)
	defer done()

	body = strings.TrimSpace(body)
	if body == "" {
		return models.Message{}, ErrEmptyMessage
	}
	if err := s.requireSession(); err != nil {
		return models.Message{}, err
	}

	s.mu.Lock()
	if s.selected == nil {
		s.mu.Unlock()
		return models.Message{}, ErrNoConversation
	}
	target := s.selected.Clone()
	op := s.config.Operator
	msg := models.Message{
		ID:             provisionalPrefix + s.newID(),
		ConversationID: s.persistentIDLocked(s.selected),
		SenderID:       op.ID,
		SenderRole:     op.Role,
		RecipientID:    target.Counterparty.ID,
		RecipientRole:  target.Counterparty.Role,
		Body:           body,
		CreatedAt:      s.now().UTC(),
		Status:         models.StatusSent,
		Delivery:       models.DeliveryPending,
	}
	cp := target.Counterparty.ID
	s.outbox[cp] = append(s.outbox[cp], msg)
	s.thread = append(s.thread, msg)
	if fromInput {
		s.input = ""
	}
	e := s.event(models.EventTypeThreadUpdated, models.EntityTypeConversation, target.ID, map[string]int{"messages": len(s.thread)})
	s.mu.Unlock()
	s.emit(e)

	return s.transmit(ctx, msg, target)
}

// Retry resends a failed message.
func (s *Session) Retry(ctx context.Context, localID string) (models.Message, error) {
	ctx, done := s.track(ctx)
	defer done()

	if err := s.requireSession(); err != nil {
		return models.Message{}, err
	}

	s.mu.Lock()
	var (
		msg   models.Message
		found bool
		cp    string
	)
	for counterparty, queued := range s.outbox {
		for i := range queued {
			if queued[i].ID != localID {
				continue
			}
			if !queued[i].Failed() {
				s.mu.Unlock()
				return queued[i], ErrNotRetryable
			}
			queued[i].Delivery = models.DeliveryPending
			queued[i].SendError = ""
			if queued[i].ConversationID == "" {
				queued[i].ConversationID = s.memo[counterparty]
			}
			msg, found, cp = queued[i], true, counterparty
		}
	}
	if !found {
		s.mu.Unlock()
		return models.Message{}, fmt.Errorf("%w: %s", ErrMessageNotFound, localID)
	}
	s.replaceInThreadLocked(localID, msg)
	target := models.Conversation{ID: models.LocalConversationID(cp), Counterparty: models.Counterparty{ID: cp}}
	for _, c := range s.conversations {
		if c.Counterparty.ID == cp {
			target = c.Clone()
		}
	}
	e := s.event(models.EventTypeThreadUpdated, models.EntityTypeConversation, target.ID, map[string]int{"messages": len(s.thread)})
	s.mu.Unlock()
	s.emit(e)

	return s.transmit(ctx, msg, target)
}

func (s *Session) requireSession() error {
	if s.config.Operator.HasActiveSession(s.now()) {
		return nil
	}
	s.metrics.sent(sendAuth)
	s.composerLog.Warn().Msg("send rejected: no active session")
	s.emit(s.event(models.EventTypeReauthRequired, models.EntityTypeSession, "", nil))
	return ErrReauthRequired
}

func (s *Session) transmit(ctx context.Context, msg models.Message, target models.Conversation) (models.Message, error) {
	req := models.SendRequest{
		RecipientID:    msg.RecipientID,
		Body:           msg.Body,
		ConversationID: msg.ConversationID,
	}
	if err := req.Validate(); err != nil {
		return s.failSend(msg, target, err)
	}

	sendCtx, cancel := withTimeout(ctx, s.config.RequestTimeout)
	receipt, err := s.convs.SendMessage(sendCtx, req)
	cancel()
	if err != nil {
		return s.failSend(msg, target, err)
	}

	confirmed := msg
	if receipt.ID != "" {
		confirmed.ID = receipt.ID
	}
	if !receipt.CreatedAt.IsZero() {
		confirmed.CreatedAt = receipt.CreatedAt.UTC()
	}
	if receipt.ConversationID != "" {
		confirmed.ConversationID = receipt.ConversationID
	}
	confirmed.Read = receipt.Read
	confirmed.Delivered = receipt.Delivered
	confirmed.Status = receipt.Status
	confirmed.Normalize()
	confirmed.Delivery = models.DeliveryConfirmed
	confirmed.SendError = ""

	cp := msg.RecipientID

	s.mu.Lock()
	// The confirmed copy stays queued until a thread load returns it, so a
	// load that started before the answer cannot drop it.
	queued := s.outbox[cp]
	for i := range queued {
		if queued[i].ID == msg.ID {
			queued[i] = confirmed
		}
	}
	s.replaceInThreadLocked(msg.ID, confirmed)
	s.adoptPersistentIDLocked(cp, confirmed.ConversationID)
	s.updatePreviewLocked(cp, confirmed)
	pending := []*models.Event{
		s.event(models.EventTypeMessageSent, models.EntityTypeMessage, confirmed.ID, map[string]string{
			"local_id":        msg.ID,
			"conversation_id": confirmed.ConversationID,
		}),
		s.event(models.EventTypeThreadUpdated, models.EntityTypeConversation, target.ID, map[string]int{"messages": len(s.thread)}),
		s.event(models.EventTypeListUpdated, models.EntityTypeSession, "", map[string]int{"count": len(s.conversations)}),
	}
	s.mu.Unlock()

	s.metrics.sent(sendOK)
	clog := logging.WithConversation(s.composerLog, target.ID, confirmed.ConversationID)
	clog.Debug().
		Str("message_id", confirmed.ID).
		Msg("message sent")
	s.emit(pending...)
	return confirmed, nil
}

func (s *Session) failSend(msg models.Message, target models.Conversation, err error) (models.Message, error) {
	failed := msg
	failed.Delivery = models.DeliveryFailed
	failed.SendError = logging.Redact(err.Error())

	s.mu.Lock()
	queued := s.outbox[msg.RecipientID]
	for i := range queued {
		if queued[i].ID == msg.ID {
			queued[i] = failed
		}
	}
	s.replaceInThreadLocked(msg.ID, failed)
	count := len(s.thread)
	s.mu.Unlock()

	pending := []*models.Event{
		s.event(models.EventTypeThreadUpdated, models.EntityTypeConversation, target.ID, map[string]int{"messages": count}),
	}
	fe := s.event(models.EventTypeMessageFailed, models.EntityTypeMessage, msg.ID, map[string]string{"conversation": target.ID})
	fe.Message = failed.SendError
	pending = append(pending, fe)

	outcome := sendFailed
	retErr := fmt.Errorf("send message: %w", err)
	if errors.Is(err, models.ErrUnauthorized) {
		outcome = sendAuth
		retErr = fmt.Errorf("send message: %w", ErrReauthRequired)
		pending = append(pending, s.event(models.EventTypeReauthRequired, models.EntityTypeSession, "", nil))
	}
	s.metrics.sent(outcome)
	s.composerLog.Warn().Err(err).Str("message", msg.ID).Str("conversation", target.ID).Msg("send failed")
	s.emit(pending...)
	return failed, retErr
}

// replaceInThreadLocked overwrites the message with id in place. If the
// replacement's id already appears elsewhere (a reload raced the send
// answer), that other copy is dropped so the provisional slot keeps its
// position.
func (s *Session) replaceInThreadLocked(id string, next models.Message) {
	idx := -1
	for i := range s.thread {
		if s.thread[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	s.thread[idx] = next
	if next.ID == id {
		return
	}
	out := s.thread[:0]
	for i, m := range s.thread {
		if i != idx && m.ID == next.ID {
			continue
		}
		out = append(out, m)
	}
	s.thread = out
}

// pruneOutboxLocked drops confirmed messages the server has returned.
func (s *Session) pruneOutboxLocked(counterpartyID string, server []models.Message) {
	queued, ok := s.outbox[counterpartyID]
	if !ok {
		return
	}
	known := make(map[string]bool, len(server))
	for _, m := range server {
		known[m.ID] = true
	}
	out := queued[:0]
	for _, m := range queued {
		if m.Delivery == models.DeliveryConfirmed && known[m.ID] {
			continue
		}
		out = append(out, m)
	}
	if len(out) == 0 {
		delete(s.outbox, counterpartyID)
		return
	}
	s.outbox[counterpartyID] = out
}

// updatePreviewLocked sets the last-message preview of the counterparty's
// conversation and restores list order.
func (s *Session) updatePreviewLocked(counterpartyID string, msg models.Message) {
	for i := range s.conversations {
		c := &s.conversations[i]
		if c.Counterparty.ID != counterpartyID {
			continue
		}
		if !c.LastMessageAt.After(msg.CreatedAt) {
			c.LastMessage = msg.Body
			c.LastMessageAt = msg.CreatedAt
		}
	}
	sortConversations(s.conversations)

	if s.selected != nil && s.selected.Counterparty.ID == counterpartyID && !s.selected.LastMessageAt.After(msg.CreatedAt) {
		s.selected.LastMessage = msg.Body
		s.selected.LastMessageAt = msg.CreatedAt
	}
}
