package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// MessageThread displays messages and a composer for a single conversation.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	me       string
	names    NameFunc
	messages *tview.TextView
	composer *tview.InputField
	title    string
	convID   string
	last     cache.Entry[[]model.Message]
	onSend   func(text string)
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme, me string, names NameFunc) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.Border)
	messages.SetBackgroundColor(theme.Bg)
	messages.SetTextColor(theme.Fg)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.Title)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.Border)
	composer.SetBackgroundColor(theme.Bg)
	composer.SetFieldBackgroundColor(theme.Bg)
	composer.SetFieldTextColor(theme.Fg)
	composer.SetLabelColor(theme.Key)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.Title)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		theme:    theme,
		me:       me,
		names:    names,
		messages: messages,
		composer: composer,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && mt.onSend != nil {
			text := composer.GetText()
			if text != "" {
				mt.onSend(text)
				composer.SetText("")
			}
		}
	})

	return mt
}

// Name implements Component.
func (mt *MessageThread) Name() string {
	if mt.title != "" {
		return mt.title
	}
	return "Messages"
}

// Init implements Component.
func (mt *MessageThread) Init() {}

// Start implements Component.
func (mt *MessageThread) Start() {}

// Stop implements Component.
func (mt *MessageThread) Stop() {}

// Hints implements Component.
func (mt *MessageThread) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "i", Description: "Compose"},
		{Key: "r", Description: "Retry send"},
		{Key: "d", Description: "Details"},
		{Key: "Esc", Description: "Back"},
	}
}

// Open switches the thread to a conversation and clears the old messages.
func (mt *MessageThread) Open(conversationID, title string) {
	mt.convID = conversationID
	mt.title = title
	mt.last = cache.Entry[[]model.Message]{}
	mt.messages.Clear()
	mt.messages.SetTitle(fmt.Sprintf(" %s ", title))
}

// ConversationID returns the open conversation.
func (mt *MessageThread) ConversationID() string {
	return mt.convID
}

// SetOnSend sets the callback when a message is sent.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// Update renders a cache snapshot of the open conversation's messages.
func (mt *MessageThread) Update(e cache.Entry[[]model.Message]) {
	mt.last = e
	mt.render()
}

// Refresh re-renders the last snapshot, e.g. after display names arrived.
func (mt *MessageThread) Refresh() {
	mt.render()
}

func (mt *MessageThread) render() {
	mt.messages.Clear()
	e := mt.last

	switch {
	case e.Status == cache.StatusLoading && len(e.Value) == 0:
		_, _ = fmt.Fprint(mt.messages, "[::d]loading…[-:-:-]\n")
	case e.Status == cache.StatusError && e.Err != nil:
		_, _ = fmt.Fprintf(mt.messages, "[red]%s[-]\n\n", tview.Escape(e.Err.Error()))
	}

	for _, m := range e.Value {
		_, _ = fmt.Fprint(mt.messages, mt.line(m))
	}
	mt.messages.ScrollToEnd()
}

func (mt *MessageThread) line(m model.Message) string {
	sender, color := m.SenderID, mt.theme.Peer
	switch {
	case m.SenderID == mt.me:
		sender, color = "You", mt.theme.Own
	case mt.names != nil:
		sender = mt.names(m.SenderID)
	}

	meta := formatTimestamp(m.Timestamp)
	if m.IsPending() {
		meta += " sending…"
		color = mt.theme.Pending
	}
	return fmt.Sprintf("[%s::b]%s[-:-:-] [::d]%s[-:-:-]\n%s\n\n",
		ui.ColorName(color), inline(sender), meta, block(m.Text))
}

// Messages returns the messages text view (for focus management).
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the composer input field (for focus management).
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}
