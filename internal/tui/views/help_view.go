package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/chatsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpEntry is one key or command on the help page.
type HelpEntry struct {
	Key         string
	Description string
}

// HelpSection groups entries under a heading.
type HelpSection struct {
	Title   string
	Entries []HelpEntry
}

// HelpView lists the key bindings and commands.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates an empty help page.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.Border)
	tv.SetBackgroundColor(theme.Bg)
	tv.SetTextColor(theme.Fg)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.Title)

	return &HelpView{TextView: tv, theme: theme}
}

// Name implements Component.
func (hv *HelpView) Name() string { return "Help" }

// Init implements Component.
func (hv *HelpView) Init() {}

// Start implements Component.
func (hv *HelpView) Start() { hv.ScrollToBeginning() }

// Stop implements Component.
func (hv *HelpView) Stop() {}

// Hints implements Component.
func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

// SetSections renders sections, keys aligned per section.
func (hv *HelpView) SetSections(sections []HelpSection) {
	hv.Clear()
	kc := ui.ColorName(hv.theme.Key)

	var b strings.Builder
	for _, s := range sections {
		fmt.Fprintf(&b, "\n  [::b]%s[-:-:-]\n\n", tview.Escape(s.Title))
		width := 0
		for _, e := range s.Entries {
			width = max(width, len([]rune(e.Key)))
		}
		for _, e := range s.Entries {
			pad := strings.Repeat(" ", width-len([]rune(e.Key))+2)
			fmt.Fprintf(&b, "  [%s]%s[-:-:-]%s%s\n", kc, tview.Escape(e.Key), pad, e.Description)
		}
	}
	_, _ = fmt.Fprint(hv, b.String())
}
