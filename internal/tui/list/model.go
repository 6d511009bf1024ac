package listview

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// chromeRows is the number of rows taken by the title and the footer.
const chromeRows = 2

// RenderFunc renders one item. selected is true for the highlighted row.
type RenderFunc[T any] func(item T, selected bool) string

// Model is a Bubble Tea model that scrolls through items.
type Model[T any] struct {
	title  string
	items  []T
	render RenderFunc[T]

	selected int
	// top is the index of the first visible row.
	top int

	height int
	width  int

	chosen   bool
	quitting bool
}

// New creates a list of items titled title in a viewport of height rows.
func New[T any](title string, items []T, height, width int, render RenderFunc[T]) *Model[T] {
	m := &Model[T]{title: title, items: items, render: render, width: width}
	m.setHeight(height)
	return m
}

// Init implements tea.Model.
func (m *Model[T]) Init() tea.Cmd {
	return nil
}

// Update handles keys and window resizes.
func (m *Model[T]) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.setHeight(msg.Height)
	}
	return m, nil
}

//nolint:exhaustive // Only navigation keys are handled.
func (m *Model[T]) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.quitting = true
		return tea.Quit
	case tea.KeyEnter:
		if len(m.items) > 0 {
			m.chosen = true
		}
		m.quitting = true
		return tea.Quit
	case tea.KeyUp:
		m.move(-1)
	case tea.KeyDown:
		m.move(1)
	case tea.KeyPgUp:
		m.move(-m.viewportRows())
	case tea.KeyPgDown:
		m.move(m.viewportRows())
	case tea.KeyHome:
		m.Select(0)
	case tea.KeyEnd:
		m.Select(len(m.items) - 1)
	case tea.KeyRunes:
		if len(msg.Runes) == 0 {
			return nil
		}
		switch msg.Runes[0] {
		case 'q':
			m.quitting = true
			return tea.Quit
		case 'j':
			m.move(1)
		case 'k':
			m.move(-1)
		case 'g':
			m.Select(0)
		case 'G':
			m.Select(len(m.items) - 1)
		}
	}
	return nil
}

func (m *Model[T]) move(delta int) {
	m.Select(m.selected + delta)
}

// Select highlights index, clamped to the list, and scrolls it into view.
func (m *Model[T]) Select(index int) {
	if len(m.items) == 0 {
		m.selected, m.top = 0, 0
		return
	}
	m.selected = max(0, min(index, len(m.items)-1))
	m.scrollIntoView()
}

func (m *Model[T]) setHeight(h int) {
	m.height = h
	m.scrollIntoView()
}

// viewportRows is the number of item rows that fit, at least one.
func (m *Model[T]) viewportRows() int {
	return max(1, m.height-chromeRows)
}

func (m *Model[T]) scrollIntoView() {
	rows := m.viewportRows()
	switch {
	case m.selected < m.top:
		m.top = m.selected
	case m.selected >= m.top+rows:
		m.top = m.selected - rows + 1
	}
	m.top = max(0, min(m.top, len(m.items)-rows))
}

// View renders the title, the visible rows and a position footer.
func (m *Model[T]) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.title)
	b.WriteByte('\n')

	if len(m.items) == 0 {
		b.WriteString("(empty)\n")
	}
	from, to := m.VisibleRange()
	for i := from; i < to; i++ {
		b.WriteString(m.render(m.items[i], i == m.selected))
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "%d/%d • ↑/↓ move • enter select • q quit", m.position(), len(m.items))
	return b.String()
}

func (m *Model[T]) position() int {
	if len(m.items) == 0 {
		return 0
	}
	return m.selected + 1
}

// VisibleRange returns the [from, to) indexes of the rendered rows.
func (m *Model[T]) VisibleRange() (int, int) {
	return m.top, min(m.top+m.viewportRows(), len(m.items))
}

// Selected returns the highlighted index.
func (m *Model[T]) Selected() int {
	return m.selected
}

// Chosen returns the item confirmed with enter, or false when the list was quit.
func (m *Model[T]) Chosen() (T, bool) {
	var zero T
	if !m.chosen {
		return zero, false
	}
	return m.items[m.selected], true
}
