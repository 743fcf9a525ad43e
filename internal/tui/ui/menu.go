package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// Menu lists the keys of the current page and, in a second column, the
// keys that work everywhere.
type Menu struct {
	*tview.TextView
	theme  *Theme
	global []MenuHint
}

// NewMenu creates an empty menu.
func NewMenu(theme *Theme) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	tv.SetBackgroundColor(theme.Bg)
	tv.SetBorderPadding(0, 0, 2, 0)
	return &Menu{TextView: tv, theme: theme}
}

// SetGlobal sets the hints of the second column.
func (m *Menu) SetGlobal(hints []MenuHint) {
	m.global = hints
}

// Update renders the page's hints next to the global ones.
func (m *Menu) Update(page []MenuHint) {
	m.Clear()

	width := 0
	for _, h := range page {
		width = max(width, hintWidth(h))
	}
	var b strings.Builder
	for i := range max(len(page), len(m.global)) {
		pad := width
		if i < len(page) {
			b.WriteString(m.hint(page[i]))
			pad -= hintWidth(page[i])
		}
		if i < len(m.global) {
			b.WriteString(strings.Repeat(" ", pad+3))
			b.WriteString(m.hint(m.global[i]))
		}
		b.WriteByte('\n')
	}
	_, _ = fmt.Fprint(m, b.String())
}

func (m *Menu) hint(h MenuHint) string {
	color := m.theme.Key
	if h.Numeric {
		color = m.theme.NumericKey
	}
	return fmt.Sprintf("[%s::b]<%s>[-:-:-] %s", ColorName(color), tview.Escape(h.Key), h.Description)
}

func hintWidth(h MenuHint) int {
	return tview.TaggedStringWidth(fmt.Sprintf("<%s> %s", h.Key, h.Description))
}
