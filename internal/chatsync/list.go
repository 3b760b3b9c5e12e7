package chatsync

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"

	"github.com/tOgg1/sitesync/internal/models"
	"github.com/tOgg1/sitesync/internal/presence"
)

// RefreshList rebuilds the conversation list from the directory and the
// conversation listing. On failure the previous list is kept.
func (s *Session) RefreshList(ctx context.Context) error {
	ctx, done := s.track(ctx)
	defer done()
	ctx, cancel := withTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	var (
		users     []models.UserRecord
		summaries []models.ConversationSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		users, err = s.users.ListUsers(gctx)
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		summaries, err = s.convs.ListConversations(gctx)
		if err != nil {
			return fmt.Errorf("list conversations: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		s.metrics.pollDone(taskList, err)
		s.listLog.Warn().Err(err).Msg("conversation list refresh failed; keeping last list")
		s.emit(s.syncError(taskList, err))
		return err
	}
	s.metrics.pollDone(taskList, nil)

	now := s.now()

	s.mu.Lock()
	for _, summary := range summaries {
		if summary.ConversationID == "" {
			continue
		}
		if _, ok := s.memo[summary.CounterpartyID]; !ok {
			s.memo[summary.CounterpartyID] = summary.ConversationID
		}
	}
	built := buildConversations(users, summaries, s.memo, s.evaluator, s.config.Operator.ID, now)

	var pending []*models.Event
	if !s.listLoaded || !cmp.Equal(s.conversations, built, equateEmpty) {
		pending = append(pending, s.event(models.EventTypeListUpdated, models.EntityTypeSession, "", map[string]int{"count": len(built)}))
	}
	s.conversations = built
	s.listLoaded = true

	if s.selected != nil {
		for _, c := range built {
			if c.ID != s.selected.ID {
				continue
			}
			s.selected.CopyVolatile(c)
			if s.selected.PersistentID == "" {
				s.selected.PersistentID = c.PersistentID
			}
			if e := s.refreshPresenceLocked(); e != nil {
				pending = append(pending, e)
			}
			break
		}
	}
	s.mu.Unlock()

	s.listLog.Debug().Int("users", len(users)).Int("conversations", len(built)).Msg("conversation list rebuilt")
	s.emit(pending...)
	return nil
}

func (s *Session) listTick(ctx context.Context) {
	s.mu.Lock()
	loaded := s.listLoaded
	s.mu.Unlock()

	// The first load is never held back by scrolling.
	if loaded && s.scroll.Active() {
		s.metrics.skipped(taskList, "scrolling")
		s.listLog.Debug().Msg("list refresh skipped while scrolling")
		return
	}
	_ = s.RefreshList(ctx)
}

// refreshPresenceLocked copies online/last-seen of the selection into the
// presence snapshot, keeping the typing pair.
func (s *Session) refreshPresenceLocked() *models.Event {
	next := s.presence
	if s.selected == nil {
		next = models.PresenceSnapshot{}
	} else {
		next.Online = s.selected.Online
		next.LastSeen = s.selected.LastSeen
	}
	if cmp.Equal(next, s.presence) {
		return nil
	}
	s.presence = next
	id := ""
	if s.selected != nil {
		id = s.selected.ID
	}
	return s.event(models.EventTypePresenceChanged, models.EntityTypeConversation, id, next)
}

// buildConversations builds the full, sorted conversation list. It is a
// pure function of its inputs.
func buildConversations(
	users []models.UserRecord,
	summaries []models.ConversationSummary,
	memo map[string]string,
	evaluator presence.Evaluator,
	operatorID string,
	now time.Time,
) []models.Conversation {
	latest := latestSummaries(summaries)
	seen := make(map[string]bool, len(users))
	out := make([]models.Conversation, 0, len(users))

	for _, user := range users {
		if !eligibleCounterparty(user, operatorID) || seen[user.ID] {
			continue
		}
		seen[user.ID] = true

		status := evaluator.Evaluate(user, now)
		conv := models.Conversation{
			ID: models.LocalConversationID(user.ID),
			Counterparty: models.Counterparty{
				ID:     user.ID,
				Name:   user.DisplayName(),
				Role:   user.Role,
				Avatar: user.Avatar,
			},
			LastMessage: models.NoMessagesPreview,
			Online:      status.Online,
			LastSeen:    status.LastSeen,
			Status:      models.ConversationActive,
		}

		if summary, ok := latest[user.ID]; ok {
			conv.PersistentID = summary.ConversationID
			if !summary.LastMessageAt.IsZero() {
				conv.LastMessageAt = summary.LastMessageAt.UTC()
				conv.LastMessage = summary.LastMessageText
			}
			conv.Unread = summary.UnreadCount
			if summary.Status == models.ConversationArchived {
				conv.Status = models.ConversationArchived
			}
		}
		if id, ok := memo[user.ID]; ok {
			conv.PersistentID = id
		}

		out = append(out, conv)
	}

	sortConversations(out)
	return out
}

func eligibleCounterparty(user models.UserRecord, operatorID string) bool {
	if user.ID == "" || user.ID == operatorID {
		return false
	}
	return user.Role.IsCounterparty() && user.SetupComplete
}

// latestSummaries keys the listing by counterparty, keeping the most recent
// entry when the backend returns duplicates.
func latestSummaries(summaries []models.ConversationSummary) map[string]models.ConversationSummary {
	out := make(map[string]models.ConversationSummary, len(summaries))
	for _, summary := range summaries {
		prev, ok := out[summary.CounterpartyID]
		if !ok || summary.LastMessageAt.After(prev.LastMessageAt) {
			if ok && summary.ConversationID == "" {
				summary.ConversationID = prev.ConversationID
			}
			out[summary.CounterpartyID] = summary
		}
	}
	return out
}

// sortConversations orders by last message time descending. Conversations
// without history go last; ties break by name, then counterparty id.
func sortConversations(list []models.Conversation) {
	sort.SliceStable(list, func(i, j int) bool {
		return conversationLess(list[i], list[j])
	})
}

func conversationLess(a, b models.Conversation) bool {
	aHist, bHist := a.HasHistory(), b.HasHistory()
	if aHist != bHist {
		return aHist
	}
	if !a.LastMessageAt.Equal(b.LastMessageAt) {
		return a.LastMessageAt.After(b.LastMessageAt)
	}
	an, bn := strings.ToLower(a.Counterparty.Name), strings.ToLower(b.Counterparty.Name)
	if an != bn {
		return an < bn
	}
	return a.Counterparty.ID < b.Counterparty.ID
}
