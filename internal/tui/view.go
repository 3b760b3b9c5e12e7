package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"

	"github.com/tOgg1/sitesync/internal/models"
	"github.com/tOgg1/sitesync/internal/presence"
	"github.com/tOgg1/sitesync/internal/receipt"
)

const (
	headerRows = 1
	footerRows = 1
	inputRows  = 1
	// Rounded borders take one row or column on each side.
	borderSize = 2
)

// View renders the viewer.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "loading…"
	}

	header := m.styles.header.Render(runewidth.Truncate(m.headerText(), m.width, "…"))

	listStyle := m.styles.pane
	if m.focus == focusList {
		listStyle = m.styles.activePane
	}
	threadStyle := m.styles.pane
	if m.focus != focusList {
		threadStyle = m.styles.activePane
	}

	bodyHeight := m.bodyHeight()
	list := listStyle.Width(listWidth - borderSize).Height(bodyHeight).Render(m.renderList(bodyHeight))

	threadWidth := max(m.width-listWidth-borderSize, 1)
	thread := lipgloss.JoinVertical(lipgloss.Left,
		m.threadTitle(threadWidth),
		m.viewport.View(),
		m.input.View(),
	)
	threadPane := threadStyle.Width(threadWidth).Height(bodyHeight).Render(thread)

	body := lipgloss.JoinHorizontal(lipgloss.Top, list, threadPane)
	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.renderFooter())
}

func (m *Model) bodyHeight() int {
	return max(m.height-headerRows-footerRows-borderSize, 3)
}

// layout sizes the viewport and input to the window.
func (m *Model) layout() {
	threadWidth := max(m.width-listWidth-borderSize, 1)
	m.viewport.Width = threadWidth
	// One row each for the title and the input.
	m.viewport.Height = max(m.bodyHeight()-1-inputRows, 1)
	m.input.Width = max(threadWidth-runewidth.StringWidth(m.input.Prompt)-1, 1)
}

func (m *Model) headerText() string {
	op := m.session.Operator()
	name := op.Name
	if name == "" {
		name = op.ID
	}
	text := fmt.Sprintf("sitesync · %s", name)
	if op.Role != "" {
		text += fmt.Sprintf(" (%s)", op.Role)
	}
	if m.reauth {
		text += " · session expired"
	}
	return text
}

func (m *Model) renderList(height int) string {
	if len(m.conversations) == 0 {
		return m.styles.muted.Render("No conversations")
	}

	inner := listWidth - borderSize
	// Keep the cursor visible; each conversation takes two rows.
	perPage := max(height/2, 1)
	start := 0
	if m.cursor >= perPage {
		start = m.cursor - perPage + 1
	}
	end := min(start+perPage, len(m.conversations))

	var b strings.Builder
	for i := start; i < end; i++ {
		c := m.conversations[i]

		dot := m.styles.muted.Render("○")
		if c.Online {
			dot = m.styles.online.Render("●")
		}
		name := runewidth.Truncate(c.Counterparty.Name, inner-8, "…")
		badge := ""
		if c.Unread > 0 {
			badge = m.styles.unread.Render(fmt.Sprintf(" (%d)", c.Unread))
		}
		preview := runewidth.Truncate(strings.Join(strings.Fields(c.LastMessage), " "), inner-2, "…")

		style := m.styles.row
		if i == m.cursor {
			style = m.styles.selectedRow
		}
		b.WriteString(style.Width(inner).Render(dot + " " + name + badge))
		b.WriteString("\n")
		b.WriteString(m.styles.muted.Width(inner).Render("  " + preview))
		if i < end-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m *Model) threadTitle(width int) string {
	if !m.hasSelected {
		return m.styles.muted.Render("Select a conversation (enter)")
	}

	status := presence.Describe(m.presence.Online, m.presence.LastSeen, m.now())
	if m.presence.Online {
		status = m.styles.online.Render(status)
	} else {
		status = m.styles.muted.Render(status)
	}
	if m.presence.Typing {
		status = m.styles.typing.Render("typing…")
	}

	name := runewidth.Truncate(m.selected.Counterparty.Name, max(width/2, 1), "…")
	return fmt.Sprintf("%s · %s · %s", m.styles.header.Render(name), m.selected.Counterparty.Role, status)
}

// renderThread redraws the thread into the viewport. Without keepPosition
// the pane jumps to the newest message.
func (m *Model) renderThread(keepPosition bool) {
	if !m.hasSelected {
		m.viewport.SetContent("")
		return
	}
	if len(m.thread) == 0 {
		m.viewport.SetContent(m.styles.muted.Render(models.NoMessagesPreview))
		return
	}

	viewer := m.session.Operator().ID
	now := m.now()
	width := max(m.viewport.Width, 10)

	var b strings.Builder
	for i, msg := range m.thread {
		sender := m.styles.other.Render(m.selected.Counterparty.Name)
		if msg.SenderID == viewer {
			sender = m.styles.own.Render("You")
		}
		when := ""
		if !msg.CreatedAt.IsZero() {
			when = m.styles.muted.Render(humanize.RelTime(msg.CreatedAt, now, "ago", "from now"))
		}
		line := sender + " " + when
		if mark := m.receiptMark(msg, viewer); mark != "" {
			line += " " + mark
		}
		b.WriteString(line + "\n")
		b.WriteString(lipgloss.NewStyle().Width(width).Render(msg.Body))
		if i < len(m.thread)-1 {
			b.WriteString("\n\n")
		}
	}

	m.viewport.SetContent(b.String())
	if !keepPosition {
		m.viewport.GotoBottom()
		m.session.Scroll().SetDistance(0)
	}
}

func (m *Model) receiptMark(msg models.Message, viewer string) string {
	switch {
	case msg.Failed():
		return m.styles.failed.Render("! not sent")
	case msg.Delivery == models.DeliveryPending:
		return m.styles.muted.Render("sending…")
	}

	tick := receipt.Render(msg, viewer)
	switch tick {
	case receipt.TickNone:
		return ""
	case receipt.TickRead:
		return m.styles.tickRead.Render(tick.Glyph())
	default:
		return m.styles.tickSent.Render(tick.Glyph())
	}
}

func (m *Model) renderFooter() string {
	if m.status != "" {
		style := m.styles.footer
		if m.statusError {
			style = m.styles.failed
		}
		return style.Render(runewidth.Truncate(m.status, m.width, "…"))
	}

	var help string
	switch m.focus {
	case focusInput:
		help = "enter send · esc list · tab focus · ctrl+r retry · ctrl+c quit"
	case focusThread:
		help = "j/k scroll · pgup/pgdn page · tab focus · q quit"
	default:
		help = "j/k move · enter open · tab focus · q quit"
	}
	return m.styles.footer.Render(runewidth.Truncate(help, m.width, "…"))
}
