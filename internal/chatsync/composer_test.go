package chatsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/sitesync/internal/events"
	"github.com/tOgg1/sitesync/internal/models"
)

func receiptFor(id, conversationID string, at time.Time) func(models.SendRequest) (models.SendReceipt, error) {
	return func(models.SendRequest) (models.SendReceipt, error) {
		return models.SendReceipt{ID: id, ConversationID: conversationID, SenderID: "1", CreatedAt: at}, nil
	}
}

func TestSubmitFirstMessageAdoptsConversationID(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	h := newHarness(t, WithMetrics(metrics))
	ctx := context.Background()

	h.dir.set([]models.UserRecord{developer("42", "Dana")}, nil)
	require.NoError(t, h.session.RefreshList(ctx))
	require.NoError(t, h.session.Select(ctx, "conv-42"))
	require.Empty(t, h.session.Thread())

	h.svc.with(func(f *fakeService) {
		f.sendGate = make(chan struct{})
		f.sendFn = receiptFor("m-1", "77", baseTime)
	})
	h.session.SetInput("Foundation complete")

	type result struct {
		msg models.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := h.session.Submit(ctx)
		done <- result{msg, err}
	}()
	require.Equal(t, "send", <-h.svc.started)

	// The provisional message is visible while the call is in flight.
	thread := h.session.Thread()
	require.Len(t, thread, 1)
	require.True(t, strings.HasPrefix(thread[0].ID, "local-"))
	require.Equal(t, "Foundation complete", thread[0].Body)
	require.Equal(t, models.StatusSent, thread[0].Status)
	require.Equal(t, models.DeliveryPending, thread[0].Delivery)
	require.Empty(t, h.session.Input())

	h.svc.with(func(f *fakeService) { close(f.sendGate) })
	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, "m-1", res.msg.ID)
	require.Equal(t, "77", res.msg.ConversationID)

	require.Equal(t, "42", h.svc.sendCalls[0].RecipientID)
	require.Empty(t, h.svc.sendCalls[0].ConversationID)

	thread = h.session.Thread()
	require.Len(t, thread, 1)
	require.Equal(t, "m-1", thread[0].ID)
	require.Equal(t, models.DeliveryConfirmed, thread[0].Delivery)

	sel, _ := h.session.Selected()
	require.Equal(t, "77", sel.PersistentID)
	list := h.session.Conversations()
	require.Equal(t, "77", list[0].PersistentID)
	require.Equal(t, "Foundation complete", list[0].LastMessage)

	// Typing polling starts with the adopted id.
	h.session.pollTyping(ctx)
	require.Equal(t, []string{"77"}, h.svc.typingCalls)

	// The listing has not caught up yet; the memo keeps the id.
	require.NoError(t, h.session.RefreshList(ctx))
	require.Equal(t, "77", h.session.Conversations()[0].PersistentID)

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.sends.WithLabelValues(sendOK)))
	require.Equal(t, 1, h.events.count(models.EventTypeMessageSent))
}

func TestSubmitRejectsEmptyInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.dir.set([]models.UserRecord{developer("42", "Dana")}, nil)
	require.NoError(t, h.session.RefreshList(ctx))
	require.NoError(t, h.session.Select(ctx, "conv-42"))

	h.session.SetInput("  \n\t ")
	_, err := h.session.Submit(ctx)
	require.ErrorIs(t, err, ErrEmptyMessage)
	require.Zero(t, h.svc.sendCallCount())
	require.Empty(t, h.session.Thread())
}

func TestSendWithoutSessionRequiresReauth(t *testing.T) {
	dir := &fakeDirectory{}
	svc := newFakeService()
	log := &eventLog{}
	publisher := events.NewInMemoryPublisher()
	require.NoError(t, publisher.Subscribe("test", events.Filter{}, log.handle))

	cfg := DefaultConfig()
	cfg.Operator = models.Operator{ID: "1", Role: models.RoleAdmin}
	session := NewSession(cfg, dir, svc, WithPublisher(publisher))
	ctx := context.Background()

	dir.set([]models.UserRecord{developer("42", "Dana")}, nil)
	require.NoError(t, session.RefreshList(ctx))
	require.NoError(t, session.Select(ctx, "conv-42"))

	session.SetInput("Foundation complete")
	_, err := session.Submit(ctx)
	require.ErrorIs(t, err, ErrReauthRequired)
	require.ErrorIs(t, err, models.ErrUnauthorized)
	require.Zero(t, svc.sendCallCount())
	require.Empty(t, session.Thread())
	require.Equal(t, "Foundation complete", session.Input())
	require.Equal(t, 1, log.count(models.EventTypeReauthRequired))
}

func TestSendWithoutSelection(t *testing.T) {
	h := newHarness(t)
	_, err := h.session.Send(context.Background(), "hello")
	require.ErrorIs(t, err, ErrNoConversation)
}

func TestSendFailureKeepsFailedMessage(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	h := newHarness(t, WithMetrics(metrics))
	ctx := context.Background()

	h.dir.set([]models.UserRecord{developer("42", "Dana"), developer("43", "Eve")}, nil)
	require.NoError(t, h.session.RefreshList(ctx))
	require.NoError(t, h.session.Select(ctx, "conv-42"))

	h.svc.with(func(f *fakeService) {
		f.sendFn = func(models.SendRequest) (models.SendReceipt, error) {
			return models.SendReceipt{}, errors.New("502 bad gateway")
		}
	})
	failed, err := h.session.Send(ctx, "Rebar delivered")
	require.Error(t, err)
	require.True(t, failed.Failed())
	require.Contains(t, failed.SendError, "502")

	thread := h.session.Thread()
	require.Len(t, thread, 1)
	require.True(t, thread[0].Failed())

	// Reloads and reselection keep the failed message.
	require.NoError(t, h.session.LoadThread(ctx))
	require.Len(t, h.session.Thread(), 1)
	require.NoError(t, h.session.Select(ctx, "conv-43"))
	require.Empty(t, h.session.Thread())
	require.NoError(t, h.session.Select(ctx, "conv-42"))
	require.Equal(t, []string{failed.ID}, messageIDs(h.session.Thread()))

	h.svc.with(func(f *fakeService) { f.sendFn = receiptFor("m-9", "77", baseTime) })
	sent, err := h.session.Retry(ctx, failed.ID)
	require.NoError(t, err)
	require.Equal(t, "m-9", sent.ID)
	require.Equal(t, []string{"m-9"}, messageIDs(h.session.Thread()))
	require.False(t, h.session.Thread()[0].Unconfirmed())

	_, err = h.session.Retry(ctx, failed.ID)
	require.ErrorIs(t, err, ErrMessageNotFound)

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.sends.WithLabelValues(sendFailed)))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.sends.WithLabelValues(sendOK)))
	require.Equal(t, 1, h.events.count(models.EventTypeMessageFailed))
}

func TestRetryRejectsPendingMessage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.dir.set([]models.UserRecord{developer("42", "Dana")}, nil)
	require.NoError(t, h.session.RefreshList(ctx))
	require.NoError(t, h.session.Select(ctx, "conv-42"))

	h.svc.with(func(f *fakeService) {
		f.sendGate = make(chan struct{})
		f.sendFn = receiptFor("m-1", "77", baseTime)
	})
	done := make(chan error, 1)
	go func() {
		_, err := h.session.Send(ctx, "pending")
		done <- err
	}()
	require.Equal(t, "send", <-h.svc.started)

	localID := h.session.Thread()[0].ID
	_, err := h.session.Retry(ctx, localID)
	require.ErrorIs(t, err, ErrNotRetryable)

	h.svc.with(func(f *fakeService) { close(f.sendGate) })
	require.NoError(t, <-done)
}

func TestSendUnauthorizedRequiresReauth(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.dir.set([]models.UserRecord{developer("42", "Dana")}, nil)
	require.NoError(t, h.session.RefreshList(ctx))
	require.NoError(t, h.session.Select(ctx, "conv-42"))

	h.svc.with(func(f *fakeService) {
		f.sendFn = func(models.SendRequest) (models.SendReceipt, error) {
			return models.SendReceipt{}, fmt.Errorf("status 401: %w", models.ErrUnauthorized)
		}
	})
	msg, err := h.session.Send(ctx, "hello")
	require.ErrorIs(t, err, ErrReauthRequired)
	require.True(t, msg.Failed())
	require.Equal(t, 1, h.events.count(models.EventTypeReauthRequired))
}

func TestSendAnswerRacingReloadKeepsOneCopy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.dir.set([]models.UserRecord{developer("42", "Dana")}, nil)
	h.svc.with(func(f *fakeService) {
		f.summaries = []models.ConversationSummary{{CounterpartyID: "42", ConversationID: "77", LastMessageAt: baseTime}}
		f.messages["77"] = []models.Message{
			serverMessage("m1", "77", "42", baseTime.Add(-2*time.Minute), "one"),
			serverMessage("m2", "77", "42", baseTime.Add(-time.Minute), "two"),
		}
	})
	require.NoError(t, h.session.RefreshList(ctx))
	require.NoError(t, h.session.Select(ctx, "conv-42"))

	h.svc.with(func(f *fakeService) {
		f.sendGate = make(chan struct{})
		f.sendFn = receiptFor("m3", "77", baseTime)
	})
	done := make(chan error, 1)
	go func() {
		_, err := h.session.Send(ctx, "three")
		done <- err
	}()
	require.Equal(t, "send", <-h.svc.started)
	localID := h.session.Thread()[2].ID

	// A reload sees the message before the send call returns.
	h.svc.with(func(f *fakeService) {
		f.messages["77"] = append(f.messages["77"], serverMessage("m3", "77", "1", baseTime, "three"))
	})
	require.NoError(t, h.session.LoadThread(ctx))
	require.Equal(t, []string{"m1", "m2", "m3", localID}, messageIDs(h.session.Thread()))

	h.svc.with(func(f *fakeService) { close(f.sendGate) })
	require.NoError(t, <-done)
	require.Equal(t, []string{"m1", "m2", "m3"}, messageIDs(h.session.Thread()))

	require.NoError(t, h.session.LoadThread(ctx))
	require.Equal(t, []string{"m1", "m2", "m3"}, messageIDs(h.session.Thread()))
}

func TestReloadStartedBeforeAnswerKeepsConfirmedMessage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.dir.set([]models.UserRecord{developer("42", "Dana")}, nil)
	h.svc.with(func(f *fakeService) {
		f.summaries = []models.ConversationSummary{{CounterpartyID: "42", ConversationID: "77", LastMessageAt: baseTime}}
		f.messages["77"] = []models.Message{serverMessage("m1", "77", "42", baseTime.Add(-time.Minute), "one")}
	})
	require.NoError(t, h.session.RefreshList(ctx))
	require.NoError(t, h.session.Select(ctx, "conv-42"))

	h.svc.with(func(f *fakeService) {
		f.messageGates["77"] = make(chan struct{})
		f.sendFn = receiptFor("m3", "77", baseTime)
	})
	loaded := make(chan error, 1)
	go func() { loaded <- h.session.LoadThread(ctx) }()
	require.Equal(t, "77", <-h.svc.started)

	_, err := h.session.Send(ctx, "three")
	require.NoError(t, err)
	require.Equal(t, []string{"m1", "m3"}, messageIDs(h.session.Thread()))

	// The reload answers with the listing from before the send.
	h.svc.with(func(f *fakeService) { close(f.messageGates["77"]) })
	require.NoError(t, <-loaded)
	require.Equal(t, []string{"m1", "m3"}, messageIDs(h.session.Thread()))

	// Once a load returns the message it is no longer held locally.
	h.svc.with(func(f *fakeService) {
		delete(f.messageGates, "77")
		f.messages["77"] = append(f.messages["77"], serverMessage("m3", "77", "1", baseTime, "three"))
	})
	require.NoError(t, h.session.LoadThread(ctx))
	require.Equal(t, []string{"m1", "m3"}, messageIDs(h.session.Thread()))
	h.session.mu.Lock()
	require.Empty(t, h.session.outbox)
	h.session.mu.Unlock()
}
