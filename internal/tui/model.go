// Package tui is the terminal conversation viewer: a conversation list
// with presence, the selected thread with receipts and typing, and a
// composer.
package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tOgg1/sitesync/internal/chatsync"
	"github.com/tOgg1/sitesync/internal/models"
)

// rowUnits is how many scroll units one terminal row counts as when
// reporting the pane position to the scroll controller.
const rowUnits = 20

const (
	listWidth      = 32
	statusLifetime = 4 * time.Second
)

// Session is the part of a sync session the viewer drives.
type Session interface {
	Conversations() []models.Conversation
	Selected() (models.Conversation, bool)
	Thread() []models.Message
	Presence() models.PresenceSnapshot
	Operator() models.Operator
	Scroll() *chatsync.ScrollController

	Select(ctx context.Context, conversationID string) error
	Send(ctx context.Context, body string) (models.Message, error)
	Retry(ctx context.Context, localID string) (models.Message, error)
}

type focus int

const (
	focusList focus = iota
	focusThread
	focusInput
)

// Model is the bubbletea model of the viewer.
type Model struct {
	ctx     context.Context
	session Session
	events  <-chan *models.Event
	styles  styles
	now     func() time.Time

	width  int
	height int
	focus  focus

	conversations []models.Conversation
	cursor        int
	selected      models.Conversation
	hasSelected   bool
	thread        []models.Message
	presence      models.PresenceSnapshot

	viewport viewport.Model
	input    textinput.Model

	status      string
	statusError bool
	statusAt    time.Time
	reauth      bool
	initial     string
}

// Options configures a Model.
type Options struct {
	// Events is the session event stream; the viewer refreshes on each one.
	Events <-chan *models.Event

	// Select is a conversation id opened on start.
	Select string

	// Palette overrides DefaultPalette.
	Palette *Palette
}

// New creates a viewer for session.
func New(ctx context.Context, session Session, opts Options) *Model {
	palette := DefaultPalette
	if opts.Palette != nil {
		palette = *opts.Palette
	}

	input := textinput.New()
	input.Placeholder = "Write a message"
	input.Prompt = "> "
	input.CharLimit = 4000

	m := &Model{
		ctx:      ctx,
		session:  session,
		events:   opts.Events,
		styles:   newStyles(palette),
		now:      time.Now,
		viewport: viewport.New(0, 0),
		input:    input,
		initial:  opts.Select,
	}
	m.refresh(false)
	return m
}

// Run opens the viewer and blocks until it is closed.
func Run(ctx context.Context, session Session, opts Options) error {
	program := tea.NewProgram(New(ctx, session, opts),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

type eventMsg struct {
	event *models.Event
}

type selectDoneMsg struct {
	err error
}

type sendDoneMsg struct {
	body  string
	msg   models.Message
	err   error
	retry bool
}

type statusClearMsg struct {
	at time.Time
}

func (m *Model) waitForEventCmd() tea.Cmd {
	if m.events == nil {
		return nil
	}
	events := m.events
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return nil
		}
		return eventMsg{event: event}
	}
}

func (m *Model) selectCmd(conversationID string) tea.Cmd {
	ctx, session := m.ctx, m.session
	return func() tea.Msg {
		return selectDoneMsg{err: session.Select(ctx, conversationID)}
	}
}

func (m *Model) sendCmd(body string) tea.Cmd {
	ctx, session := m.ctx, m.session
	return func() tea.Msg {
		msg, err := session.Send(ctx, body)
		return sendDoneMsg{body: body, msg: msg, err: err}
	}
}

func (m *Model) retryCmd(localID string) tea.Cmd {
	ctx, session := m.ctx, m.session
	return func() tea.Msg {
		msg, err := session.Retry(ctx, localID)
		return sendDoneMsg{msg: msg, err: err, retry: true}
	}
}

func statusClearCmd(at time.Time) tea.Cmd {
	return tea.Tick(statusLifetime, func(time.Time) tea.Msg {
		return statusClearMsg{at: at}
	})
}

// Init starts listening for session events and opens the initial
// conversation, if any.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.waitForEventCmd()}
	if m.initial != "" {
		cmds = append(cmds, m.selectCmd(m.initial))
	}
	return tea.Batch(cmds...)
}

// Update handles input and session events.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.renderThread(true)
		return m, nil

	case eventMsg:
		return m, tea.Batch(m.handleEvent(msg.event), m.waitForEventCmd())

	case selectDoneMsg:
		m.refresh(true)
		if msg.err != nil {
			return m, m.setStatus(msg.err.Error(), true)
		}
		return m, nil

	case sendDoneMsg:
		// A send rejected before anything was shown gives the draft back,
		// unless a new one was started meanwhile.
		if msg.err != nil && msg.msg.ID == "" && !msg.retry && m.input.Value() == "" {
			m.input.SetValue(msg.body)
			m.input.CursorEnd()
		}
		m.refresh(true)
		if msg.msg.ID != "" {
			m.viewport.GotoBottom()
			m.session.Scroll().SetDistance(0)
		}
		switch {
		case errors.Is(msg.err, chatsync.ErrReauthRequired):
			m.reauth = true
			return m, m.setStatus("session expired; sign in again to send", true)
		case msg.err != nil && msg.msg.Failed():
			return m, m.setStatus("send failed; ctrl+r to retry", true)
		case msg.err != nil:
			return m, m.setStatus(msg.err.Error(), true)
		case msg.retry:
			return m, m.setStatus("message sent", false)
		}
		return m, nil

	case statusClearMsg:
		if msg.at.Equal(m.statusAt) {
			m.status = ""
		}
		return m, nil

	case tea.MouseMsg:
		return m, m.handleMouse(msg)

	case tea.KeyMsg:
		return m, m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleEvent(event *models.Event) tea.Cmd {
	if event == nil {
		return nil
	}
	switch event.Type {
	case models.EventTypeAutoScroll:
		m.viewport.GotoBottom()
		m.session.Scroll().SetDistance(0)
		return nil
	case models.EventTypeReauthRequired:
		m.reauth = true
		m.refresh(true)
		return m.setStatus("session expired; sign in again to send", true)
	case models.EventTypeSyncError:
		m.refresh(true)
		if event.Message != "" {
			return m.setStatus(event.Message, true)
		}
		return nil
	}
	m.refresh(true)
	return nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c":
		return tea.Quit
	case "tab":
		m.cycleFocus()
		return nil
	case "ctrl+r":
		if id := m.lastFailedID(); id != "" {
			return m.retryCmd(id)
		}
		return nil
	}

	switch m.focus {
	case focusInput:
		return m.handleInputKey(msg)
	case focusThread:
		return m.handleThreadKey(msg)
	default:
		return m.handleListKey(msg)
	}
}

func (m *Model) handleListKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q":
		return tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.conversations)-1 {
			m.cursor++
		}
	case "home", "g":
		m.cursor = 0
	case "end", "G":
		m.cursor = max(len(m.conversations)-1, 0)
	case "enter":
		if m.cursor < len(m.conversations) {
			m.focus = focusInput
			m.input.Focus()
			return m.selectCmd(m.conversations[m.cursor].ID)
		}
	}
	return nil
}

func (m *Model) handleThreadKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q":
		return tea.Quit
	case "up", "k":
		m.viewport.LineUp(1)
	case "down", "j":
		m.viewport.LineDown(1)
	case "pgup", "b":
		m.viewport.HalfViewUp()
	case "pgdown", "f", " ":
		m.viewport.HalfViewDown()
	case "end", "G":
		m.viewport.GotoBottom()
	case "home", "g":
		m.viewport.GotoTop()
	default:
		return nil
	}
	m.session.Scroll().OnScroll(m.distanceFromBottom())
	return nil
}

func (m *Model) handleInputKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		m.focus = focusList
		m.input.Blur()
		return nil
	case "enter":
		if !m.hasSelected {
			return m.setStatus("select a conversation first", true)
		}
		body := m.input.Value()
		if strings.TrimSpace(body) == "" {
			return nil
		}
		// Cleared now so a second enter cannot send the same text again.
		m.input.Reset()
		return m.sendCmd(body)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *Model) handleMouse(msg tea.MouseMsg) tea.Cmd {
	if msg.Action != tea.MouseActionPress {
		return nil
	}
	inThread := msg.X >= listWidth
	switch msg.Button {
	case tea.MouseButtonWheelUp:
		if inThread {
			m.viewport.LineUp(3)
			m.session.Scroll().OnScroll(m.distanceFromBottom())
		} else if m.cursor > 0 {
			m.cursor--
		}
	case tea.MouseButtonWheelDown:
		if inThread {
			m.viewport.LineDown(3)
			m.session.Scroll().OnScroll(m.distanceFromBottom())
		} else if m.cursor < len(m.conversations)-1 {
			m.cursor++
		}
	}
	return nil
}

func (m *Model) cycleFocus() {
	switch m.focus {
	case focusList:
		m.focus = focusThread
	case focusThread:
		m.focus = focusInput
		m.input.Focus()
		return
	default:
		m.focus = focusList
	}
	m.input.Blur()
}

// refresh copies the session's current state into the model.
func (m *Model) refresh(keepPosition bool) {
	m.conversations = m.session.Conversations()
	prevID := m.selected.ID
	m.selected, m.hasSelected = m.session.Selected()
	m.thread = m.session.Thread()
	m.presence = m.session.Presence()

	if m.hasSelected {
		for i, c := range m.conversations {
			if c.ID == m.selected.ID {
				if prevID != m.selected.ID {
					m.cursor = i
				}
				break
			}
		}
	}
	if m.cursor >= len(m.conversations) {
		m.cursor = max(len(m.conversations)-1, 0)
	}

	m.renderThread(keepPosition && prevID == m.selected.ID)
}

// distanceFromBottom is the pane position in scroll controller units.
func (m *Model) distanceFromBottom() int {
	rows := m.viewport.TotalLineCount() - m.viewport.YOffset - m.viewport.Height
	return max(rows, 0) * rowUnits
}

func (m *Model) lastFailedID() string {
	for i := len(m.thread) - 1; i >= 0; i-- {
		if m.thread[i].Failed() {
			return m.thread[i].ID
		}
	}
	return ""
}

func (m *Model) setStatus(text string, isError bool) tea.Cmd {
	m.status = text
	m.statusError = isError
	m.statusAt = m.now()
	return statusClearCmd(m.statusAt)
}
