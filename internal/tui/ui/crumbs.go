package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

const maxCrumb = 24

// Crumbs is the breadcrumb bar under the pages.
type Crumbs struct {
	*tview.TextView
	theme *Theme
}

// NewCrumbs creates an empty breadcrumb bar.
func NewCrumbs(theme *Theme) *Crumbs {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(theme.Bg)
	return &Crumbs{TextView: tv, theme: theme}
}

// Update renders labels, the last one highlighted.
func (c *Crumbs) Update(labels []string) {
	c.Clear()
	var b strings.Builder
	for i, label := range labels {
		fg, bg := c.theme.Crumb, c.theme.CrumbBg
		if i == len(labels)-1 {
			fg, bg = c.theme.ActiveCrumb, c.theme.ActiveCrumbBg
		}
		fmt.Fprintf(&b, "[%s:%s:b] %s [-:-:-] ", ColorName(fg), ColorName(bg), tview.Escape(shorten(label)))
	}
	_, _ = fmt.Fprint(c, b.String())
}

func shorten(s string) string {
	r := []rune(s)
	if len(r) <= maxCrumb {
		return s
	}
	return string(r[:maxCrumb-1]) + "…"
}
