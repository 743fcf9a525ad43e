package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// ConversationInfo displays detailed information about a conversation.
type ConversationInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewConversationInfo creates a new conversation info view.
func NewConversationInfo(theme *ui.Theme) *ConversationInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.Border)
	tv.SetBackgroundColor(theme.Bg)
	tv.SetTextColor(theme.Fg)
	tv.SetTitle(" Conversation Details ")
	tv.SetTitleColor(theme.Title)

	return &ConversationInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements Component.
func (ci *ConversationInfo) Name() string { return "Details" }

// Init implements Component.
func (ci *ConversationInfo) Init() {}

// Start implements Component.
func (ci *ConversationInfo) Start() {}

// Stop implements Component.
func (ci *ConversationInfo) Stop() {}

// Hints implements Component.
func (ci *ConversationInfo) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

// Update renders conversation details. names resolves member IDs.
func (ci *ConversationInfo) Update(c model.Conversation, title string, names NameFunc) {
	ci.Clear()

	fg := ui.ColorName(ci.theme.Fg)
	ct := ui.ColorName(ci.theme.Value)

	members := make([]string, len(c.RecipientIDs))
	for i, id := range c.RecipientIDs {
		members[i] = id
		if names != nil {
			if n := names(id); n != id {
				members[i] = fmt.Sprintf("%s (%s)", n, id)
			}
		}
	}

	lastActive := formatTimestamp(c.LastMessageTimestamp)
	if lastActive == "" {
		lastActive = "-"
	}

	text := fmt.Sprintf(
		"\n [%s::b]Name:[-:-:-]         [%s]%s[-]\n"+
			" [%s::b]ID:[-:-:-]           [%s]%s[-]\n"+
			" [%s::b]Members:[-:-:-]      [%s]%s[-]\n"+
			" [%s::b]Last Active:[-:-:-]  [%s]%s[-]\n"+
			" [%s::b]Last Message:[-:-:-] [%s]%s[-]",
		fg, ct, inline(title),
		fg, ct, tview.Escape(c.ID),
		fg, ct, inline(strings.Join(members, ", ")),
		fg, ct, lastActive,
		fg, ct, inline(c.LastMessagePreview),
	)

	_, _ = fmt.Fprint(ci, text)
	ci.SetTitle(fmt.Sprintf(" %s Details ", title))
}
