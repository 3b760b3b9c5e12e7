package chatsync

import (
	"context"
	"errors"

	"github.com/tOgg1/sitesync/internal/models"
)

// pollTyping asks whether the selected counterparty is typing. Without a
// persistent conversation id no call is made.
func (s *Session) pollTyping(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	if s.selected == nil {
		s.mu.Unlock()
		return
	}
	epoch := s.epoch
	target := s.selected.Clone()
	id := s.persistentIDLocked(s.selected)
	if id == "" {
		e := s.setTypingLocked(false, "")
		s.mu.Unlock()
		s.metrics.skipped(taskTyping, "no_conversation_id")
		s.emit(e)
		return
	}
	if until, ok := s.typingDormant[id]; ok {
		if now.Before(until) {
			s.mu.Unlock()
			s.metrics.skipped(taskTyping, "not_found_backoff")
			return
		}
		delete(s.typingDormant, id)
	}
	s.mu.Unlock()

	callCtx, cancel := withTimeout(ctx, s.config.TypingTimeout)
	status, err := s.convs.TypingStatus(callCtx, id)
	cancel()
	s.metrics.pollDone(taskTyping, err)

	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.mu.Lock()
			s.typingDormant[id] = s.now().Add(s.config.TypingNotFoundBackoff)
			var e *models.Event
			if s.epoch == epoch {
				e = s.setTypingLocked(false, "")
			}
			s.mu.Unlock()
			s.typingLog.Debug().Str("conversation_id", id).Dur("backoff", s.config.TypingNotFoundBackoff).Msg("typing endpoint reports conversation missing")
			s.emit(e)
			return
		}
		if ctx.Err() == nil {
			s.typingLog.Debug().Err(err).Str("conversation_id", id).Msg("typing poll failed")
		}
		return
	}

	typing := status.Typing && status.UserID != s.config.Operator.ID
	userID := status.UserID
	if typing && userID == "" {
		userID = target.Counterparty.ID
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	e := s.setTypingLocked(typing, userID)
	s.mu.Unlock()
	s.emit(e)
}

// setTypingLocked replaces the typing pair as a unit and returns an event
// when it changed.
func (s *Session) setTypingLocked(typing bool, userID string) *models.Event {
	next := s.presence.WithTyping(typing, userID)
	if next.Typing == s.presence.Typing && next.TypingUserID == s.presence.TypingUserID {
		return nil
	}
	s.presence = next
	id := ""
	if s.selected != nil {
		id = s.selected.ID
	}
	return s.event(models.EventTypeTypingChanged, models.EntityTypeConversation, id, map[string]any{
		"typing":  next.Typing,
		"user_id": next.TypingUserID,
	})
}
