package chatsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tOgg1/sitesync/internal/events"
	"github.com/tOgg1/sitesync/internal/logging"
	"github.com/tOgg1/sitesync/internal/models"
	"github.com/tOgg1/sitesync/internal/presence"
)

// Session errors.
var (
	ErrSessionAlreadyRunning = errors.New("sync session already running")
	ErrSessionNotRunning     = errors.New("sync session not running")
	ErrConversationNotFound  = errors.New("conversation not in list")
	ErrNoConversation        = errors.New("no conversation selected")
)

// Config contains poll cadences and limits for a Session.
type Config struct {
	// Operator is the authenticated user.
	Operator models.Operator

	// ListInterval is how often the conversation list is rebuilt.
	// Default: 30s
	ListInterval time.Duration

	// ThreadInterval is how often the selected thread is reloaded.
	// Default: 5s
	ThreadInterval time.Duration

	// TypingInterval is the typing poll and scroll settle cadence.
	// Default: 700ms
	TypingInterval time.Duration

	// ScrollCooldown is how long a scroll gesture holds refreshes.
	// Default: 1.5s
	ScrollCooldown time.Duration

	// NearBottom is the distance from the bottom that still auto-scrolls.
	// Zero means only the very bottom; negative values use the default.
	// Default: 100
	NearBottom int

	// OnlineWindow is passed to the presence evaluator.
	// Default: 5m
	OnlineWindow time.Duration

	// TypingNotFoundBackoff is how long a conversation id stays dormant
	// after the typing endpoint reports it missing.
	// Default: 5s
	TypingNotFoundBackoff time.Duration

	// RequestTimeout bounds list, thread and send calls.
	// Default: 10s
	RequestTimeout time.Duration

	// TypingTimeout bounds typing calls.
	// Default: 2s
	TypingTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListInterval:          30 * time.Second,
		ThreadInterval:        5 * time.Second,
		TypingInterval:        700 * time.Millisecond,
		ScrollCooldown:        DefaultScrollCooldown,
		NearBottom:            DefaultNearBottom,
		OnlineWindow:          presence.DefaultOnlineWindow,
		TypingNotFoundBackoff: 5 * time.Second,
		RequestTimeout:        10 * time.Second,
		TypingTimeout:         2 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ListInterval <= 0 {
		c.ListInterval = d.ListInterval
	}
	if c.ThreadInterval <= 0 {
		c.ThreadInterval = d.ThreadInterval
	}
	if c.TypingInterval <= 0 {
		c.TypingInterval = d.TypingInterval
	}
	if c.ScrollCooldown <= 0 {
		c.ScrollCooldown = d.ScrollCooldown
	}
	if c.NearBottom < 0 {
		c.NearBottom = d.NearBottom
	}
	if c.OnlineWindow <= 0 {
		c.OnlineWindow = d.OnlineWindow
	}
	if c.TypingNotFoundBackoff <= 0 {
		c.TypingNotFoundBackoff = d.TypingNotFoundBackoff
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.TypingTimeout <= 0 {
		c.TypingTimeout = d.TypingTimeout
	}
	return c
}

// Option customizes a Session.
type Option func(*Session)

// WithThreadCache sets the offline thread cache.
func WithThreadCache(cache ThreadCache) Option {
	return func(s *Session) { s.cache = cache }
}

// WithPublisher sets the event publisher.
func WithPublisher(publisher events.Publisher) Option {
	return func(s *Session) { s.publisher = publisher }
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics *Metrics) Option {
	return func(s *Session) { s.metrics = metrics }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithIDGenerator replaces the provisional message id source.
func WithIDGenerator(newID func() string) Option {
	return func(s *Session) { s.newID = newID }
}

// Session owns the sync state of one operator and the loops that refresh it.
//
// All state lives behind mu. Network calls run without the lock; results
// are committed only if the selection epoch they started under is still
// current.
type Session struct {
	config    Config
	users     UserDirectory
	convs     ConversationService
	cache     ThreadCache
	publisher events.Publisher
	metrics   *Metrics
	evaluator presence.Evaluator
	scroll    *ScrollController
	now       func() time.Time
	newID     func() string

	listLog     zerolog.Logger
	threadLog   zerolog.Logger
	typingLog   zerolog.Logger
	composerLog zerolog.Logger

	runMu    sync.Mutex
	running  bool
	runCtx   context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	inflight int        // caller-driven calls, guarded by runMu
	idle     *sync.Cond // signalled when inflight drops to zero

	mu            sync.Mutex
	conversations []models.Conversation
	listLoaded    bool
	memo          map[string]string // counterparty id -> persistent id
	selected      *models.Conversation
	epoch         uint64
	thread        []models.Message
	outbox        map[string][]models.Message // counterparty id -> sent, not yet loaded
	presence      models.PresenceSnapshot
	input         string
	typingDormant map[string]time.Time // persistent id -> resume time
}

// NewSession creates a Session. It does not start polling.
func NewSession(config Config, users UserDirectory, convs ConversationService, opts ...Option) *Session {
	config = config.withDefaults()

	s := &Session{
		config:        config,
		users:         users,
		convs:         convs,
		now:           time.Now,
		newID:         func() string { return uuid.New().String() },
		listLog:       logging.Component("chatsync.list"),
		threadLog:     logging.Component("chatsync.thread"),
		typingLog:     logging.Component("chatsync.typing"),
		composerLog:   logging.Component("chatsync.composer"),
		memo:          make(map[string]string),
		outbox:        make(map[string][]models.Message),
		typingDormant: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.idle = sync.NewCond(&s.runMu)
	s.evaluator = presence.NewEvaluator(config.Operator.ID, config.OnlineWindow)
	s.scroll = NewScrollController(config.ScrollCooldown, config.NearBottom, s.now)
	return s
}

// Scroll returns the scroll controller of the message pane.
func (s *Session) Scroll() *ScrollController {
	return s.scroll
}

// Operator returns the authenticated user.
func (s *Session) Operator() models.Operator {
	return s.config.Operator
}

// Start begins the list, thread and typing loops. The list is loaded once
// immediately.
func (s *Session) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.running {
		return ErrSessionAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.runCtx = runCtx
	s.cancel = cancel
	s.running = true

	s.listLog.Info().
		Str("operator", s.config.Operator.ID).
		Dur("list_interval", s.config.ListInterval).
		Dur("thread_interval", s.config.ThreadInterval).
		Dur("typing_interval", s.config.TypingInterval).
		Msg("sync session starting")

	s.wg.Add(3)
	go s.runLoop(runCtx, s.config.ListInterval, true, s.listTick)
	go s.runLoop(runCtx, s.config.ThreadInterval, false, s.threadTick)
	go s.runLoop(runCtx, s.config.TypingInterval, false, s.fastTick)

	return nil
}

// Stop cancels the loops and any in-flight Select, LoadThread, RefreshList,
// Send, Submit or Retry call, and waits for all of them to return.
func (s *Session) Stop() error {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return ErrSessionNotRunning
	}
	s.cancel()
	s.running = false
	s.runCtx = nil
	for s.inflight > 0 {
		s.idle.Wait()
	}
	s.runMu.Unlock()

	s.wg.Wait()
	s.listLog.Info().Msg("sync session stopped")
	return nil
}

// IsRunning returns true if the loops are running.
func (s *Session) IsRunning() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.running
}

// track registers a caller-driven call so Stop can wait for it. The
// returned context is also cancelled when a running session stops.
func (s *Session) track(ctx context.Context) (context.Context, func()) {
	s.runMu.Lock()
	s.inflight++
	runCtx := s.runCtx
	s.runMu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	stop := func() bool { return false }
	if runCtx != nil {
		stop = context.AfterFunc(runCtx, cancel)
	}
	return ctx, func() {
		stop()
		cancel()
		s.runMu.Lock()
		s.inflight--
		if s.inflight == 0 {
			s.idle.Broadcast()
		}
		s.runMu.Unlock()
	}
}

func (s *Session) runLoop(ctx context.Context, interval time.Duration, immediate bool, tick func(context.Context)) {
	defer s.wg.Done()

	if immediate {
		tick(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

func (s *Session) threadTick(ctx context.Context) {
	s.mu.Lock()
	hasSelection := s.selected != nil
	s.mu.Unlock()
	if !hasSelection {
		return
	}
	if s.scroll.Active() {
		s.metrics.skipped(taskThread, "scrolling")
		s.threadLog.Debug().Msg("thread refresh skipped while scrolling")
		return
	}
	_ = s.LoadThread(ctx)
}

func (s *Session) fastTick(ctx context.Context) {
	s.pollTyping(ctx)
	if s.scroll.Settle() {
		s.emit(s.event(models.EventTypeAutoScroll, models.EntityTypeSession, "", nil))
	}
}

// Conversations returns a copy of the current conversation list.
func (s *Session) Conversations() []models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Conversation, len(s.conversations))
	for i, c := range s.conversations {
		out[i] = c.Clone()
	}
	return out
}

// Selected returns a copy of the selected conversation.
func (s *Session) Selected() (models.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return models.Conversation{}, false
	}
	return s.selected.Clone(), true
}

// Thread returns a copy of the selected conversation's messages.
func (s *Session) Thread() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.CloneMessages(s.thread)
}

// Presence returns the presence snapshot of the selected counterparty.
func (s *Session) Presence() models.PresenceSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.presence
	if snap.LastSeen != nil {
		t := *snap.LastSeen
		snap.LastSeen = &t
	}
	return snap
}

func (s *Session) event(typ models.EventType, entity models.EntityType, id string, payload any) *models.Event {
	return models.NewEvent(s.now(), typ, entity, id, payload)
}

// emit publishes events. It must be called without mu held so handlers can
// read session state.
func (s *Session) emit(evts ...*models.Event) {
	if s.publisher == nil {
		return
	}
	for _, e := range evts {
		if e != nil {
			s.publisher.Publish(e)
		}
	}
}

func (s *Session) syncError(task string, err error) *models.Event {
	e := s.event(models.EventTypeSyncError, models.EntityTypeSession, "", map[string]string{"task": task})
	e.Message = logging.Redact(err.Error())
	return e
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// persistentIDLocked returns the known persistent id of a conversation,
// consulting the memo.
func (s *Session) persistentIDLocked(c *models.Conversation) string {
	if c == nil {
		return ""
	}
	if c.PersistentID != "" {
		return c.PersistentID
	}
	return s.memo[c.Counterparty.ID]
}

// adoptPersistentIDLocked memoizes id for counterpartyID and copies it onto
// the list entry and the selection. It reports whether anything changed.
func (s *Session) adoptPersistentIDLocked(counterpartyID, id string) bool {
	if counterpartyID == "" || id == "" {
		return false
	}
	changed := false
	if _, ok := s.memo[counterpartyID]; !ok {
		s.memo[counterpartyID] = id
		changed = true
	}
	id = s.memo[counterpartyID]
	for i := range s.conversations {
		c := &s.conversations[i]
		if c.Counterparty.ID == counterpartyID && c.PersistentID == "" {
			c.PersistentID = id
			changed = true
		}
	}
	if s.selected != nil && s.selected.Counterparty.ID == counterpartyID && s.selected.PersistentID == "" {
		s.selected.PersistentID = id
		changed = true
	}
	return changed
}
