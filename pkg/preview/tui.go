package preview

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ViewMode represents the current view mode
type ViewMode int

// View modes for the preview TUI
const (
	ListViewMode ViewMode = iota
	DetailViewMode
	DigestViewMode
)

// Model represents the Bubble Tea model for the preview TUI
type Model struct {
	items         []Entry
	cursor        int
	viewMode      ViewMode
	previous      ViewMode
	title         string
	digest        string
	width         int
	height        int
	selectedIndex int // Index of the item currently being viewed in detail
}

// NewModel creates a new preview model. digest is the message a real run would send.
func NewModel(items []Entry, digest, title string) Model {
	return Model{
		items:         items,
		cursor:        0,
		viewMode:      ListViewMode,
		title:         title,
		digest:        digest,
		selectedIndex: -1,
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch m.viewMode {
		case ListViewMode:
			return m.updateListView(msg)
		case DetailViewMode:
			return m.updateDetailView(msg)
		case DigestViewMode:
			return m.updateDigestView(msg)
		}
	}

	return m, nil
}

// updateListView handles key presses in list view mode
func (m Model) updateListView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}

	case "enter":
		m.selectedIndex = m.cursor
		m.viewMode = DetailViewMode

	case "d":
		m.previous = ListViewMode
		m.viewMode = DigestViewMode
	}

	return m, nil
}

// updateDetailView handles key presses in detail view mode
func (m Model) updateDetailView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "esc":
		m.viewMode = ListViewMode

	case "d":
		m.previous = DetailViewMode
		m.viewMode = DigestViewMode
	}

	return m, nil
}

// updateDigestView returns to whichever view opened the digest
func (m Model) updateDigestView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "esc", "d":
		m.viewMode = m.previous
	}

	return m, nil
}

// View implements tea.Model
func (m Model) View() string {
	switch m.viewMode {
	case ListViewMode:
		return m.renderListView()
	case DetailViewMode:
		return m.renderDetailView()
	case DigestViewMode:
		return m.renderDigestView()
	}
	return ""
}

// renderListView renders the list view
func (m Model) renderListView() string {
	var b strings.Builder

	// Header
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12"))

	header := fmt.Sprintf("Feed Preview - %s (%d items, %d to send)", m.title, len(m.items), m.selectedCount())
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n\n")

	// Items list
	visibleStart := 0
	visibleEnd := len(m.items)

	// Calculate visible range if height is set
	if m.height > 0 {
		maxVisible := m.height - 6 // Account for header, footer, and padding
		if maxVisible < len(m.items) {
			// Keep cursor in the middle of the screen when possible
			visibleStart = m.cursor - maxVisible/2
			if visibleStart < 0 {
				visibleStart = 0
			}
			visibleEnd = visibleStart + maxVisible
			if visibleEnd > len(m.items) {
				visibleEnd = len(m.items)
				visibleStart = visibleEnd - maxVisible
				if visibleStart < 0 {
					visibleStart = 0
				}
			}
		}
	}

	for i := visibleStart; i < visibleEnd; i++ {
		item := m.items[i]
		line := FormatCompactListItem(i, item)

		if i == m.cursor {
			// Highlight selected item
			selectedStyle := lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("12")).
				Bold(true)
			b.WriteString(selectedStyle.Render("→ " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}

	// Footer
	b.WriteString("\n")
	footerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240"))

	footer := "↑/↓ or j/k: navigate • enter: view details • d: digest • q: quit"
	b.WriteString(footerStyle.Render(footer))

	return b.String()
}

// renderDetailView renders the detail view
func (m Model) renderDetailView() string {
	if m.selectedIndex < 0 || m.selectedIndex >= len(m.items) {
		return "No item selected"
	}

	item := m.items[m.selectedIndex]
	content := FormatDetailedItem(item)

	var b strings.Builder
	b.WriteString(content)
	b.WriteString("\n")

	footerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240"))

	footer := "esc: back to list • d: digest • q: quit"
	b.WriteString(footerStyle.Render(footer))

	return b.String()
}

// renderDigestView renders the message a real run would deliver
func (m Model) renderDigestView() string {
	var b strings.Builder

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12"))

	b.WriteString(headerStyle.Render("Digest Preview"))
	b.WriteString("\n\n")

	width := m.width
	if width <= 0 {
		width = 80
	}
	b.WriteString(wrapLines(m.digest, width))
	b.WriteString("\n")

	footerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240"))

	footer := "esc/d: back • q: quit"
	b.WriteString(footerStyle.Render(footer))

	return b.String()
}

func (m Model) selectedCount() int {
	n := 0
	for _, e := range m.items {
		if e.Selected {
			n++
		}
	}
	return n
}

// Run starts the Bubble Tea program
func Run(items []Entry, digest, title string) error {
	if len(items) == 0 {
		fmt.Println("No items to preview")
		fmt.Println()
		fmt.Println(digest)
		return nil
	}

	p := tea.NewProgram(NewModel(items, digest, title), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
