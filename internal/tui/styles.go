package tui

import "github.com/charmbracelet/lipgloss"

// Palette holds the colors of the conversation viewer.
type Palette struct {
	Foreground string
	Muted      string
	Accent     string
	Border     string
	Online     string
	Typing     string
	Read       string
	Error      string
	Selected   string
}

// DefaultPalette uses ANSI-256 colors that read on dark and light terminals.
var DefaultPalette = Palette{
	Foreground: "252",
	Muted:      "244",
	Accent:     "39",
	Border:     "240",
	Online:     "42",
	Typing:     "214",
	Read:       "39",
	Error:      "196",
	Selected:   "236",
}

type styles struct {
	header      lipgloss.Style
	footer      lipgloss.Style
	muted       lipgloss.Style
	pane        lipgloss.Style
	activePane  lipgloss.Style
	row         lipgloss.Style
	selectedRow lipgloss.Style
	online      lipgloss.Style
	unread      lipgloss.Style
	typing      lipgloss.Style
	own         lipgloss.Style
	other       lipgloss.Style
	tickSent    lipgloss.Style
	tickRead    lipgloss.Style
	failed      lipgloss.Style
}

func newStyles(p Palette) styles {
	border := lipgloss.RoundedBorder()
	return styles{
		header:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(p.Accent)),
		footer:      lipgloss.NewStyle().Foreground(lipgloss.Color(p.Muted)),
		muted:       lipgloss.NewStyle().Foreground(lipgloss.Color(p.Muted)),
		pane:        lipgloss.NewStyle().Border(border).BorderForeground(lipgloss.Color(p.Border)),
		activePane:  lipgloss.NewStyle().Border(border).BorderForeground(lipgloss.Color(p.Accent)),
		row:         lipgloss.NewStyle().Foreground(lipgloss.Color(p.Foreground)),
		selectedRow: lipgloss.NewStyle().Foreground(lipgloss.Color(p.Foreground)).Background(lipgloss.Color(p.Selected)).Bold(true),
		online:      lipgloss.NewStyle().Foreground(lipgloss.Color(p.Online)),
		unread:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(p.Accent)),
		typing:      lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color(p.Typing)),
		own:         lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(p.Accent)),
		other:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(p.Foreground)),
		tickSent:    lipgloss.NewStyle().Foreground(lipgloss.Color(p.Muted)),
		tickRead:    lipgloss.NewStyle().Foreground(lipgloss.Color(p.Read)),
		failed:      lipgloss.NewStyle().Foreground(lipgloss.Color(p.Error)),
	}
}
