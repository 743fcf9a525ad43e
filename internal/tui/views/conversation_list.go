package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// ConversationList is the main conversation list view.
type ConversationList struct {
	*tview.Table
	theme  *ui.Theme
	me     string
	names  NameFunc
	convs  []model.Conversation
	status cache.Status
	filter string
}

// NewConversationList creates a new conversation list table. me is the
// local user, left out of member-derived titles.
func NewConversationList(theme *ui.Theme, me string, names NameFunc) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.Border)
	table.SetBackgroundColor(theme.Bg)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.Cursor).
		Background(theme.CursorBg))
	table.SetTitle(" Conversations ")
	table.SetTitleColor(theme.Title)

	return &ConversationList{
		Table: table,
		theme: theme,
		me:    me,
		names: names,
	}
}

// Name implements Component.
func (cl *ConversationList) Name() string { return "Conversations" }

// Init implements Component.
func (cl *ConversationList) Init() {}

// Start implements Component.
func (cl *ConversationList) Start() {}

// Stop implements Component.
func (cl *ConversationList) Stop() {}

// Hints implements Component.
func (cl *ConversationList) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Open"},
		{Key: "/", Description: "Filter"},
		{Key: "1-9", Description: "Jump", Numeric: true},
	}
}

// Update refreshes the list from a cache snapshot.
func (cl *ConversationList) Update(e cache.Entry[[]model.Conversation]) {
	cl.convs = e.Value
	cl.status = e.Status
	cl.render()
}

// Refresh re-renders with the current data, e.g. after display names
// arrived.
func (cl *ConversationList) Refresh() {
	cl.render()
}

// SetFilter sets the active filter text and re-renders.
func (cl *ConversationList) SetFilter(filter string) {
	cl.filter = filter
	cl.render()
}

// ClearFilter clears the active filter.
func (cl *ConversationList) ClearFilter() {
	cl.filter = ""
	cl.render()
}

// Title returns the display title of a conversation.
func (cl *ConversationList) Title(c model.Conversation) string {
	return c.Title(cl.me, cl.names)
}

func (cl *ConversationList) visible() []model.Conversation {
	if cl.filter == "" {
		return cl.convs
	}
	var out []model.Conversation
	for _, c := range cl.convs {
		if containsFold(cl.Title(c), cl.filter) || containsFold(c.LastMessagePreview, cl.filter) {
			out = append(out, c)
		}
	}
	return out
}

func (cl *ConversationList) render() {
	cl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" NAME", 1},
		{" LAST MESSAGE", 2},
		{" TIME", 0},
		{" MEMBERS", 0},
	}
	for col, h := range headers {
		cell := tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.Header).
			SetBackgroundColor(cl.theme.HeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp)
		cl.SetCell(0, col, cell)
	}

	rows := cl.visible()
	for i, c := range rows {
		row := i + 1
		preview := c.LastMessagePreview
		if c.LastMessageSenderID != "" && c.LastMessageSenderID == cl.me {
			preview = "You: " + preview
		}
		cl.SetCell(row, 0, tview.NewTableCell(" "+inline(cl.Title(c))).SetExpansion(1).SetTextColor(cl.theme.Fg))
		cl.SetCell(row, 1, tview.NewTableCell(" "+inline(preview)).SetExpansion(2).SetTextColor(cl.theme.Fg))
		cl.SetCell(row, 2, tview.NewTableCell(formatTimestamp(c.LastMessageTimestamp)).SetTextColor(cl.theme.Fg).SetAlign(tview.AlignRight))
		cl.SetCell(row, 3, tview.NewTableCell(fmt.Sprintf("%d ", len(c.RecipientIDs))).SetTextColor(cl.theme.Fg).SetAlign(tview.AlignRight))
	}

	suffix := ""
	switch cl.status {
	case cache.StatusLoading:
		suffix = " loading…"
	case cache.StatusError:
		suffix = " [error]"
	}
	if cl.filter != "" {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d/%d) filter: %s%s ", len(rows), len(cl.convs), cl.filter, suffix))
	} else {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d)%s ", len(cl.convs), suffix))
	}
}

// Selected returns the currently selected conversation.
func (cl *ConversationList) Selected() (model.Conversation, bool) {
	row, _ := cl.GetSelection()
	return cl.ByIndex(row)
}

// ByIndex returns the Nth visible conversation (1-based).
func (cl *ConversationList) ByIndex(n int) (model.Conversation, bool) {
	rows := cl.visible()
	if n < 1 || n > len(rows) {
		return model.Conversation{}, false
	}
	return rows[n-1], true
}

// ByName returns the first conversation whose title contains name.
func (cl *ConversationList) ByName(name string) (model.Conversation, bool) {
	for _, c := range cl.convs {
		if containsFold(cl.Title(c), name) {
			return c, true
		}
	}
	return model.Conversation{}, false
}

// Complete returns "chat <title>" lines for the titles starting with the
// argument of a partial chat command.
func (cl *ConversationList) Complete(text string) []string {
	arg, ok := strings.CutPrefix(text, "chat ")
	if !ok {
		return nil
	}
	arg = strings.TrimSpace(arg)
	var out []string
	for _, c := range cl.convs {
		if title := cl.Title(c); len(title) >= len(arg) && strings.EqualFold(title[:len(arg)], arg) {
			out = append(out, "chat "+title)
		}
	}
	return out
}
