package chatsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/tOgg1/sitesync/internal/logging"
	"github.com/tOgg1/sitesync/internal/models"
)

// nil and empty threads are the same thread.
var equateEmpty = cmpopts.EquateEmpty()

// Select makes the conversation with the given local id current and loads
// its thread. Loads still running for a previous selection are discarded
// when they complete.
func (s *Session) Select(ctx context.Context, conversationID string) error {
	ctx, done := s.track(ctx)
	defer done()

	s.mu.Lock()
	var target *models.Conversation
	for i := range s.conversations {
		if s.conversations[i].ID == conversationID {
			c := s.conversations[i].Clone()
			target = &c
			break
		}
	}
	if target == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}

	s.epoch++
	s.selected = target
	s.thread = models.CloneMessages(s.outbox[target.Counterparty.ID])
	s.presence = models.PresenceSnapshot{Online: target.Online, LastSeen: target.LastSeen}
	pending := []*models.Event{
		s.event(models.EventTypeThreadUpdated, models.EntityTypeConversation, target.ID, map[string]int{"messages": len(s.thread)}),
		s.event(models.EventTypePresenceChanged, models.EntityTypeConversation, target.ID, s.presence),
	}
	s.mu.Unlock()

	s.scroll.Reset()
	s.emit(pending...)
	return s.LoadThread(ctx)
}

// SelectCounterparty selects the conversation with a counterparty.
func (s *Session) SelectCounterparty(ctx context.Context, counterpartyID string) error {
	return s.Select(ctx, models.LocalConversationID(counterpartyID))
}

// ClearSelection deselects the current conversation.
func (s *Session) ClearSelection() {
	s.mu.Lock()
	if s.selected == nil {
		s.mu.Unlock()
		return
	}
	s.epoch++
	s.selected = nil
	s.thread = nil
	s.presence = models.PresenceSnapshot{}
	s.mu.Unlock()
	s.scroll.Reset()
}

// LoadThread resolves the selected conversation's persistent id and loads
// its messages. Without a persistent id the thread falls back to the local
// cache, or stays empty.
func (s *Session) LoadThread(ctx context.Context) error {
	ctx, done := s.track(ctx)
	defer done()

	s.mu.Lock()
	if s.selected == nil {
		s.mu.Unlock()
		return nil
	}
	epoch := s.epoch
	target := s.selected.Clone()
	id := s.persistentIDLocked(s.selected)
	s.mu.Unlock()

	logger := logging.WithConversation(s.threadLog, target.ID, id)

	if id == "" {
		resolved, err := s.resolvePersistentID(ctx, target.Counterparty.ID)
		if err != nil {
			// Resolution failure is an empty thread, not an error.
			logger.Debug().Err(err).Msg("conversation id lookup failed")
		}
		if resolved != "" {
			s.mu.Lock()
			s.adoptPersistentIDLocked(target.Counterparty.ID, resolved)
			s.mu.Unlock()
			id = resolved
			logger = logging.WithConversation(s.threadLog, target.ID, id)
			logger.Debug().Msg("adopted conversation id")
		}
	}

	if id == "" {
		return s.loadCachedThread(ctx, epoch, target)
	}

	fetchCtx, cancel := withTimeout(ctx, s.config.RequestTimeout)
	msgs, err := s.convs.ConversationMessages(fetchCtx, id)
	cancel()
	s.metrics.pollDone(taskThread, err)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil
		}
		logger.Warn().Err(err).Msg("thread refresh failed; keeping last thread")
		s.emit(s.syncError(taskThread, err))
		return fmt.Errorf("load messages: %w", err)
	}

	server := normalizeThread(msgs)
	if committed := s.commitThread(epoch, target, server); !committed {
		return nil
	}

	if s.cache != nil {
		if err := s.cache.SaveThread(ctx, target.Counterparty.ID, id, server); err != nil {
			logger.Debug().Err(err).Msg("thread cache save failed")
		}
	}

	s.markRead(ctx, epoch, target, id)
	return nil
}

// resolvePersistentID looks up the conversation with counterpartyID, first
// in the thread cache from an earlier run, then in the backend listing.
func (s *Session) resolvePersistentID(ctx context.Context, counterpartyID string) (string, error) {
	if s.cache != nil {
		id, err := s.cache.ConversationID(ctx, counterpartyID)
		if err != nil {
			s.threadLog.Debug().Err(err).Str("counterparty", counterpartyID).Msg("cached conversation id lookup failed")
		} else if id != "" {
			return id, nil
		}
	}

	ctx, cancel := withTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	summaries, err := s.convs.ListConversations(ctx)
	if err != nil {
		return "", fmt.Errorf("list conversations: %w", err)
	}
	for _, summary := range summaries {
		if summary.CounterpartyID == counterpartyID && summary.ConversationID != "" {
			return summary.ConversationID, nil
		}
	}
	return "", nil
}

func (s *Session) loadCachedThread(ctx context.Context, epoch uint64, target models.Conversation) error {
	var cached []models.Message
	if s.cache != nil {
		msgs, err := s.cache.LoadThread(ctx, target.Counterparty.ID)
		if err != nil {
			s.threadLog.Debug().Err(err).Str("counterparty", target.Counterparty.ID).Msg("thread cache load failed")
		} else {
			cached = normalizeThread(msgs)
		}
	}
	s.commitThread(epoch, target, cached)
	return nil
}

// commitThread replaces the thread with server messages plus the queued
// local ones, if the selection is unchanged and the content differs.
// It reports whether the selection was still current.
func (s *Session) commitThread(epoch uint64, target models.Conversation, server []models.Message) bool {
	s.mu.Lock()
	if s.epoch != epoch || s.selected == nil {
		s.mu.Unlock()
		s.threadLog.Debug().Str("conversation", target.ID).Msg("discarding thread for stale selection")
		return false
	}

	merged := mergeLocal(server, s.outbox[target.Counterparty.ID])
	s.pruneOutboxLocked(target.Counterparty.ID, server)
	if cmp.Equal(s.thread, merged, equateEmpty) {
		s.mu.Unlock()
		return true
	}

	arrived := countNew(s.thread, merged)
	s.thread = merged
	pending := []*models.Event{
		s.event(models.EventTypeThreadUpdated, models.EntityTypeConversation, target.ID, map[string]int{"messages": len(merged)}),
	}
	s.mu.Unlock()

	if arrived > 0 && s.scroll.OnNewMessages() == ScrollToBottom {
		pending = append(pending, s.event(models.EventTypeAutoScroll, models.EntityTypeSession, target.ID, nil))
	}
	s.emit(pending...)
	return true
}

// markRead is best effort: failures are logged and swallowed.
func (s *Session) markRead(ctx context.Context, epoch uint64, target models.Conversation, id string) {
	ctx, cancel := withTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	if err := s.convs.MarkConversationRead(ctx, id); err != nil {
		s.threadLog.Debug().Err(err).Str("conversation_id", id).Msg("mark read failed")
		return
	}

	s.mu.Lock()
	changed := false
	for i := range s.conversations {
		if s.conversations[i].ID == target.ID && s.conversations[i].Unread != 0 {
			s.conversations[i].Unread = 0
			changed = true
		}
	}
	if s.epoch == epoch && s.selected != nil && s.selected.Unread != 0 {
		s.selected.Unread = 0
		changed = true
	}
	var e []*models.Event
	if changed {
		e = append(e, s.event(models.EventTypeListUpdated, models.EntityTypeSession, "", map[string]int{"count": len(s.conversations)}))
	}
	s.mu.Unlock()
	s.emit(e...)
}

func normalizeThread(msgs []models.Message) []models.Message {
	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		m.Normalize()
		m.Delivery = models.DeliveryConfirmed
		m.SendError = ""
		out = append(out, m)
	}
	models.SortMessages(out)
	return out
}

// mergeLocal appends queued local messages (pending, failed, or confirmed
// but not yet returned by a load) after the server messages, skipping any
// the server already returned.
func mergeLocal(server, local []models.Message) []models.Message {
	out := make([]models.Message, 0, len(server)+len(local))
	out = append(out, server...)
	if len(local) == 0 {
		return out
	}
	known := make(map[string]bool, len(server))
	for _, m := range server {
		known[m.ID] = true
	}
	for _, m := range local {
		if !known[m.ID] {
			out = append(out, m)
		}
	}
	return out
}

func countNew(prev, next []models.Message) int {
	seen := make(map[string]bool, len(prev))
	for _, m := range prev {
		seen[m.ID] = true
	}
	n := 0
	for _, m := range next {
		if !seen[m.ID] {
			n++
		}
	}
	return n
}
