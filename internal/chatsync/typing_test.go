package chatsync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/sitesync/internal/models"
)

func TestTypingPollWithoutConversationIDMakesNoCall(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.session.pollTyping(ctx)
	require.Zero(t, h.svc.typingCallCount())

	h.dir.set([]models.UserRecord{developer("42", "Dana")}, nil)
	require.NoError(t, h.session.RefreshList(ctx))
	require.NoError(t, h.session.Select(ctx, "conv-42"))

	for i := 0; i < 5; i++ {
		h.session.pollTyping(ctx)
	}
	require.Zero(t, h.svc.typingCallCount())

	// Once the id resolves, the next tick polls.
	h.svc.with(func(f *fakeService) {
		f.summaries = []models.ConversationSummary{{CounterpartyID: "42", ConversationID: "77"}}
		f.typing = models.TypingStatus{Typing: true, UserID: "42"}
	})
	require.NoError(t, h.session.LoadThread(ctx))
	h.session.pollTyping(ctx)

	require.Equal(t, []string{"77"}, h.svc.typingCalls)
	snap := h.session.Presence()
	require.True(t, snap.Typing)
	require.Equal(t, "42", snap.TypingUserID)
}

func TestTypingPollReplacesPairAtomically(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.dir.set([]models.UserRecord{developer("42", "Dana")}, nil)
	h.svc.with(func(f *fakeService) {
		f.summaries = []models.ConversationSummary{{CounterpartyID: "42", ConversationID: "77"}}
		f.typing = models.TypingStatus{Typing: true}
	})
	require.NoError(t, h.session.RefreshList(ctx))
	require.NoError(t, h.session.Select(ctx, "conv-42"))

	h.session.pollTyping(ctx)
	snap := h.session.Presence()
	require.True(t, snap.Typing)
	require.Equal(t, "42", snap.TypingUserID)

	h.svc.with(func(f *fakeService) { f.typing = models.TypingStatus{Typing: false, UserID: "42"} })
	h.session.pollTyping(ctx)
	snap = h.session.Presence()
	require.False(t, snap.Typing)
	require.Empty(t, snap.TypingUserID)

	// The operator's own typing is never shown.
	h.svc.with(func(f *fakeService) { f.typing = models.TypingStatus{Typing: true, UserID: "1"} })
	h.session.pollTyping(ctx)
	require.False(t, h.session.Presence().Typing)
	require.Equal(t, 2, h.events.count(models.EventTypeTypingChanged))
}

func TestTypingPollNotFoundBacksOff(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.dir.set([]models.UserRecord{developer("42", "Dana")}, nil)
	h.svc.with(func(f *fakeService) {
		f.summaries = []models.ConversationSummary{{CounterpartyID: "42", ConversationID: "77"}}
		f.typing = models.TypingStatus{Typing: true, UserID: "42"}
	})
	require.NoError(t, h.session.RefreshList(ctx))
	require.NoError(t, h.session.Select(ctx, "conv-42"))
	h.session.pollTyping(ctx)
	require.True(t, h.session.Presence().Typing)

	h.svc.with(func(f *fakeService) { f.typingErr = fmt.Errorf("typing: %w", models.ErrNotFound) })
	h.session.pollTyping(ctx)
	require.Equal(t, 2, h.svc.typingCallCount())
	require.False(t, h.session.Presence().Typing)

	h.clock.Advance(700 * time.Millisecond)
	h.session.pollTyping(ctx)
	h.clock.Advance(700 * time.Millisecond)
	h.session.pollTyping(ctx)
	require.Equal(t, 2, h.svc.typingCallCount())

	h.svc.with(func(f *fakeService) { f.typingErr = nil })
	h.clock.Advance(5 * time.Second)
	h.session.pollTyping(ctx)
	require.Equal(t, 3, h.svc.typingCallCount())
	require.True(t, h.session.Presence().Typing)
}

func TestTypingPollTransientErrorKeepsSnapshot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.dir.set([]models.UserRecord{developer("42", "Dana")}, nil)
	h.svc.with(func(f *fakeService) {
		f.summaries = []models.ConversationSummary{{CounterpartyID: "42", ConversationID: "77"}}
		f.typing = models.TypingStatus{Typing: true, UserID: "42"}
	})
	require.NoError(t, h.session.RefreshList(ctx))
	require.NoError(t, h.session.Select(ctx, "conv-42"))
	h.session.pollTyping(ctx)

	h.svc.with(func(f *fakeService) { f.typingErr = errors.New("timeout") })
	h.session.pollTyping(ctx)
	require.True(t, h.session.Presence().Typing)

	// Retried on the very next tick.
	h.session.pollTyping(ctx)
	require.Equal(t, 3, h.svc.typingCallCount())
}

func TestTypingClearedOnSelectionChange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.dir.set([]models.UserRecord{developer("42", "Dana"), developer("43", "Eve")}, nil)
	h.svc.with(func(f *fakeService) {
		f.summaries = []models.ConversationSummary{{CounterpartyID: "42", ConversationID: "77"}}
		f.typing = models.TypingStatus{Typing: true, UserID: "42"}
	})
	require.NoError(t, h.session.RefreshList(ctx))
	require.NoError(t, h.session.Select(ctx, "conv-42"))
	h.session.pollTyping(ctx)
	require.True(t, h.session.Presence().Typing)

	require.NoError(t, h.session.Select(ctx, "conv-43"))
	snap := h.session.Presence()
	require.False(t, snap.Typing)
	require.Empty(t, snap.TypingUserID)
}
