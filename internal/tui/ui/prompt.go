package ui

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// PromptMode is what the prompt's text is used for.
type PromptMode int

const (
	PromptCommand PromptMode = iota
	PromptFilter
)

const historySize = 50

// Prompt is the input bar for commands and list filters. Commands are kept
// in a history recalled with the arrow keys.
type Prompt struct {
	*tview.InputField
	mode     PromptMode
	history  []string
	cursor   int
	complete func(prefix string) []string
	onSubmit func(mode PromptMode, text string)
	onCancel func()
}

// NewPrompt creates a hidden prompt.
func NewPrompt(theme *Theme) *Prompt {
	input := tview.NewInputField()
	input.SetBorder(true)
	input.SetBorderColor(theme.Border)
	input.SetBackgroundColor(theme.Bg)
	input.SetFieldBackgroundColor(theme.Bg)
	input.SetFieldTextColor(theme.Fg)
	input.SetLabelColor(theme.Key)

	p := &Prompt{InputField: input}
	input.SetDoneFunc(p.done)
	input.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if p.mode != PromptCommand || !p.browsing() {
			return event
		}
		switch event.Key() {
		case tcell.KeyUp:
			p.SetText(p.recall(-1))
			return nil
		case tcell.KeyDown:
			p.SetText(p.recall(1))
			return nil
		}
		return event
	})
	input.SetAutocompleteFunc(func(text string) []string {
		if p.mode != PromptCommand || p.complete == nil || strings.TrimSpace(text) == "" {
			return nil
		}
		return p.complete(text)
	})
	return p
}

func (p *Prompt) done(key tcell.Key) {
	switch key {
	case tcell.KeyEnter:
		text := strings.TrimSpace(p.GetText())
		p.SetText("")
		if text == "" {
			return
		}
		if p.mode == PromptCommand {
			p.remember(text)
		}
		if p.onSubmit != nil {
			p.onSubmit(p.mode, text)
		}
	case tcell.KeyEscape:
		p.SetText("")
		if p.onCancel != nil {
			p.onCancel()
		}
	}
}

// remember appends text to the history unless it repeats the last entry.
func (p *Prompt) remember(text string) {
	if n := len(p.history); n == 0 || p.history[n-1] != text {
		p.history = append(p.history, text)
		if len(p.history) > historySize {
			p.history = p.history[len(p.history)-historySize:]
		}
	}
	p.cursor = len(p.history)
}

// browsing reports whether the arrow keys belong to the history rather
// than to the completion list.
func (p *Prompt) browsing() bool {
	text := p.GetText()
	return text == "" || (p.cursor < len(p.history) && text == p.history[p.cursor])
}

// recall moves through the history by delta and returns the entry there.
// Moving past the newest entry yields an empty line.
func (p *Prompt) recall(delta int) string {
	p.cursor = max(0, min(p.cursor+delta, len(p.history)))
	if p.cursor == len(p.history) {
		return ""
	}
	return p.history[p.cursor]
}

// SetOnSubmit sets the callback run with the trimmed text on Enter.
func (p *Prompt) SetOnSubmit(fn func(mode PromptMode, text string)) {
	p.onSubmit = fn
}

// SetOnCancel sets the callback run on Escape.
func (p *Prompt) SetOnCancel(fn func()) {
	p.onCancel = fn
}

// SetCompletions sets the source of command completions.
func (p *Prompt) SetCompletions(fn func(prefix string) []string) {
	p.complete = fn
}

// Activate clears the prompt and switches it to mode.
func (p *Prompt) Activate(mode PromptMode) {
	p.mode = mode
	p.cursor = len(p.history)
	p.SetText("")
	switch mode {
	case PromptCommand:
		p.SetLabel(":")
		p.SetTitle(" Command ")
	case PromptFilter:
		p.SetLabel("/")
		p.SetTitle(" Filter ")
	}
}

// Mode returns the current mode.
func (p *Prompt) Mode() PromptMode {
	return p.mode
}
