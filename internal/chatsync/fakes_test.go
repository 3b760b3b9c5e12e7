package chatsync

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/sitesync/internal/events"
	"github.com/tOgg1/sitesync/internal/models"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: baseTime} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeDirectory struct {
	mu    sync.Mutex
	users []models.UserRecord
	err   error
	calls int
}

func (d *fakeDirectory) ListUsers(ctx context.Context) ([]models.UserRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return append([]models.UserRecord(nil), d.users...), nil
}

func (d *fakeDirectory) set(users []models.UserRecord, err error) {
	d.mu.Lock()
	d.users, d.err = users, err
	d.mu.Unlock()
}

// fakeService records calls. Gates block a call until closed; the call
// announces itself on started first.
type fakeService struct {
	mu sync.Mutex

	summaries []models.ConversationSummary
	listErr   error
	listCalls int

	messages     map[string][]models.Message
	messagesErr  error
	messageCalls []string
	messageGates map[string]chan struct{}
	started      chan string

	sendFn    func(models.SendRequest) (models.SendReceipt, error)
	sendGate  chan struct{}
	sendCalls []models.SendRequest

	markReadErr   error
	markReadCalls []string

	typing      models.TypingStatus
	typingErr   error
	typingCalls []string
}

func newFakeService() *fakeService {
	return &fakeService{
		messages:     make(map[string][]models.Message),
		messageGates: make(map[string]chan struct{}),
		started:      make(chan string, 16),
	}
}

func (f *fakeService) ListConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]models.ConversationSummary(nil), f.summaries...), nil
}

func (f *fakeService) ConversationMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	f.mu.Lock()
	f.messageCalls = append(f.messageCalls, conversationID)
	gate := f.messageGates[conversationID]
	f.mu.Unlock()

	if gate != nil {
		f.started <- conversationID
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.messagesErr != nil {
		return nil, f.messagesErr
	}
	return append([]models.Message(nil), f.messages[conversationID]...), nil
}

func (f *fakeService) SendMessage(ctx context.Context, req models.SendRequest) (models.SendReceipt, error) {
	f.mu.Lock()
	f.sendCalls = append(f.sendCalls, req)
	gate := f.sendGate
	fn := f.sendFn
	f.mu.Unlock()

	if gate != nil {
		f.started <- "send"
		<-gate
	}
	if fn == nil {
		return models.SendReceipt{}, fmt.Errorf("no send handler")
	}
	return fn(req)
}

func (f *fakeService) MarkConversationRead(ctx context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReadCalls = append(f.markReadCalls, conversationID)
	return f.markReadErr
}

func (f *fakeService) TypingStatus(ctx context.Context, conversationID string) (models.TypingStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typingCalls = append(f.typingCalls, conversationID)
	if f.typingErr != nil {
		return models.TypingStatus{}, f.typingErr
	}
	return f.typing, nil
}

func (f *fakeService) with(fn func(f *fakeService)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeService) typingCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.typingCalls)
}

func (f *fakeService) sendCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sendCalls)
}

type fakeCache struct {
	mu      sync.Mutex
	threads map[string][]models.Message
	saved   map[string]string
}

func (c *fakeCache) ConversationID(ctx context.Context, counterpartyID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saved[counterpartyID], nil
}

func (c *fakeCache) LoadThread(ctx context.Context, counterpartyID string) ([]models.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Message(nil), c.threads[counterpartyID]...), nil
}

func (c *fakeCache) SaveThread(ctx context.Context, counterpartyID, conversationID string, msgs []models.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saved == nil {
		c.saved = make(map[string]string)
	}
	c.saved[counterpartyID] = conversationID
	return nil
}

// eventLog collects published events.
type eventLog struct {
	mu     sync.Mutex
	events []*models.Event
}

func (l *eventLog) handle(e *models.Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) count(typ models.EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func developer(id, name string) models.UserRecord {
	return models.UserRecord{ID: id, Name: name, Role: models.RoleDeveloper, SetupComplete: true}
}

func client(id, name string) models.UserRecord {
	return models.UserRecord{ID: id, Name: name, Role: models.RoleClient, SetupComplete: true}
}

func serverMessage(id, conversationID, sender string, at time.Time, body string) models.Message {
	return models.Message{ID: id, ConversationID: conversationID, SenderID: sender, Body: body, CreatedAt: at}
}

type harness struct {
	session *Session
	dir     *fakeDirectory
	svc     *fakeService
	clock   *fakeClock
	events  *eventLog
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	h := &harness{
		dir:    &fakeDirectory{},
		svc:    newFakeService(),
		clock:  newFakeClock(),
		events: &eventLog{},
	}
	publisher := events.NewInMemoryPublisher()
	require.NoError(t, publisher.Subscribe("test", events.Filter{}, h.events.handle))

	ids := 0
	base := []Option{
		WithClock(h.clock.Now),
		WithPublisher(publisher),
		WithIDGenerator(func() string {
			ids++
			return fmt.Sprintf("%d", ids)
		}),
	}
	cfg := DefaultConfig()
	cfg.Operator = models.Operator{ID: "1", Name: "Ops", Role: models.RoleAdmin, AccessToken: "token"}
	h.session = NewSession(cfg, h.dir, h.svc, append(base, opts...)...)
	return h
}
