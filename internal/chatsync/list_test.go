package chatsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/sitesync/internal/models"
	"github.com/tOgg1/sitesync/internal/presence"
)

func TestBuildConversationsEligibilityAndOrder(t *testing.T) {
	users := []models.UserRecord{
		developer("10", "Zed Concrete"),
		client("11", "anna"),
		client("12", "Anna"),
		developer("13", "Bob Roofing"),
		{ID: "14", Name: "Admin", Role: models.RoleAdmin, SetupComplete: true},
		{ID: "15", Name: "Onboarding", Role: models.RoleClient},
		developer("1", "Operator Self"),
		developer("10", "Duplicate"),
	}
	summaries := []models.ConversationSummary{
		{CounterpartyID: "13", ConversationID: "300", LastMessageAt: baseTime.Add(-time.Hour), LastMessageText: "roof done", UnreadCount: 2},
		{CounterpartyID: "10", ConversationID: "100", LastMessageAt: baseTime.Add(-time.Minute), LastMessageText: "pour tomorrow"},
	}

	got := buildConversations(users, summaries, map[string]string{}, presence.NewEvaluator("1", 0), "1", baseTime)

	ids := make([]string, len(got))
	for i, c := range got {
		ids[i] = c.ID
	}
	require.Equal(t, []string{"conv-10", "conv-13", "conv-11", "conv-12"}, ids)

	require.Equal(t, "100", got[0].PersistentID)
	require.Equal(t, "pour tomorrow", got[0].LastMessage)
	require.Equal(t, "Zed Concrete", got[0].Counterparty.Name)
	require.Equal(t, 2, got[1].Unread)
	require.Equal(t, models.NoMessagesPreview, got[2].LastMessage)
	require.Empty(t, got[2].PersistentID)
	require.Equal(t, models.ConversationActive, got[2].Status)
}

func TestBuildConversationsIsDeterministic(t *testing.T) {
	users := []models.UserRecord{client("3", "Cara"), developer("2", "Cara"), client("4", "Dee"), developer("5", "Eli")}
	summaries := []models.ConversationSummary{
		{CounterpartyID: "4", ConversationID: "40", LastMessageAt: baseTime, LastMessageText: "hi"},
		{CounterpartyID: "5", ConversationID: "50", LastMessageAt: baseTime, LastMessageText: "hey"},
	}
	eval := presence.NewEvaluator("1", 0)

	first := buildConversations(users, summaries, map[string]string{}, eval, "1", baseTime)
	second := buildConversations(users, summaries, map[string]string{}, eval, "1", baseTime)
	require.Equal(t, first, second)

	// Same inputs in another order produce the same list.
	reversed := []models.UserRecord{users[3], users[2], users[1], users[0]}
	third := buildConversations(reversed, []models.ConversationSummary{summaries[1], summaries[0]}, map[string]string{}, eval, "1", baseTime)
	require.Equal(t, first, third)

	require.Equal(t, "conv-4", first[0].ID)
	require.Equal(t, "conv-5", first[1].ID)
	require.Equal(t, "conv-2", first[2].ID)
	require.Equal(t, "conv-3", first[3].ID)
}

func TestBuildConversationsMemoWinsAndArchived(t *testing.T) {
	users := []models.UserRecord{developer("42", "Dana")}
	summaries := []models.ConversationSummary{
		{CounterpartyID: "42", ConversationID: "999", Status: models.ConversationArchived},
	}
	got := buildConversations(users, summaries, map[string]string{"42": "77"}, presence.NewEvaluator("1", 0), "1", baseTime)
	require.Len(t, got, 1)
	require.Equal(t, "77", got[0].PersistentID)
	require.Equal(t, models.ConversationArchived, got[0].Status)
	require.Equal(t, models.NoMessagesPreview, got[0].LastMessage)
}

func TestBuildConversationsPresence(t *testing.T) {
	users := []models.UserRecord{
		{ID: "2", Name: "Recent", Role: models.RoleClient, SetupComplete: true, Presence: models.SeenAt(baseTime.Add(-time.Minute))},
		{ID: "3", Name: "Stale", Role: models.RoleClient, SetupComplete: true, Presence: models.SeenAt(baseTime.Add(-5 * time.Minute))},
		{ID: "4", Name: "Flagged", Role: models.RoleClient, SetupComplete: true, Presence: presence.NormalizeFields(map[string]any{"session_active": "1"})},
	}
	got := buildConversations(users, nil, map[string]string{}, presence.NewEvaluator("1", 0), "1", baseTime)
	byID := map[string]models.Conversation{}
	for _, c := range got {
		byID[c.Counterparty.ID] = c
	}
	require.True(t, byID["2"].Online)
	require.False(t, byID["3"].Online)
	require.NotNil(t, byID["3"].LastSeen)
	require.True(t, byID["4"].Online)
	require.Nil(t, byID["4"].LastSeen)
}

func TestRefreshListKeepsLastGoodListOnFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.dir.set(nil, errors.New("connection refused"))
	require.Error(t, h.session.RefreshList(ctx))
	require.Empty(t, h.session.Conversations())

	h.dir.set([]models.UserRecord{developer("42", "Dana")}, nil)
	require.NoError(t, h.session.RefreshList(ctx))
	require.Len(t, h.session.Conversations(), 1)

	h.svc.with(func(f *fakeService) { f.listErr = errors.New("503") })
	err := h.session.RefreshList(ctx)
	require.Error(t, err)
	require.Len(t, h.session.Conversations(), 1)
	require.Equal(t, 2, h.events.count(models.EventTypeSyncError))
}

func TestRefreshListCopiesVolatileFieldsOntoSelection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.dir.set([]models.UserRecord{developer("42", "Dana")}, nil)
	require.NoError(t, h.session.RefreshList(ctx))
	require.NoError(t, h.session.Select(ctx, "conv-42"))

	seen := baseTime.Add(-30 * time.Second)
	h.dir.set([]models.UserRecord{{
		ID: "42", Name: "Dana B.", Role: models.RoleDeveloper, SetupComplete: true,
		Presence: models.SeenAt(seen),
	}}, nil)
	h.svc.with(func(f *fakeService) {
		f.summaries = []models.ConversationSummary{{CounterpartyID: "42", LastMessageAt: seen, LastMessageText: "on site", UnreadCount: 3}}
	})
	require.NoError(t, h.session.RefreshList(ctx))

	sel, ok := h.session.Selected()
	require.True(t, ok)
	require.Equal(t, "conv-42", sel.ID)
	require.Equal(t, "on site", sel.LastMessage)
	require.Equal(t, 3, sel.Unread)
	require.True(t, sel.Online)
	require.Equal(t, "Dana B.", sel.Counterparty.Name)

	snap := h.session.Presence()
	require.True(t, snap.Online)
	require.NotNil(t, snap.LastSeen)
	require.True(t, seen.Equal(*snap.LastSeen))
}

func TestRefreshListIdempotentPublishesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.dir.set([]models.UserRecord{developer("42", "Dana"), client("7", "Cal")}, nil)
	require.NoError(t, h.session.RefreshList(ctx))
	first := h.session.Conversations()
	require.NoError(t, h.session.RefreshList(ctx))

	require.Equal(t, first, h.session.Conversations())
	require.Equal(t, 1, h.events.count(models.EventTypeListUpdated))
}

func TestListTickSkippedWhileScrolling(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.dir.set([]models.UserRecord{developer("42", "Dana")}, nil)
	h.session.listTick(ctx)
	require.Equal(t, 1, h.dir.calls)

	h.session.Scroll().OnScroll(400)
	h.session.listTick(ctx)
	require.Equal(t, 1, h.dir.calls)

	// On-demand refresh is not held back.
	require.NoError(t, h.session.RefreshList(ctx))
	require.Equal(t, 2, h.dir.calls)

	h.clock.Advance(DefaultScrollCooldown)
	h.session.listTick(ctx)
	require.Equal(t, 3, h.dir.calls)
}
