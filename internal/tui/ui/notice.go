package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/rivo/tview"
)

// Level is the severity of a notice.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

var noticeTTL = [...]time.Duration{
	LevelInfo:  4 * time.Second,
	LevelWarn:  8 * time.Second,
	LevelError: 12 * time.Second,
}

// Notice is a one-line message shown under the pages.
type Notice struct {
	Text  string
	Level Level
	At    time.Time
}

func (n Notice) expired(now time.Time) bool {
	return now.Sub(n.At) >= noticeTTL[n.Level]
}

// Notices holds the notices on screen. A notice hides older ones of the
// same or lower level; a lower level notice waits until a more severe one
// expires.
type Notices struct {
	mu      sync.Mutex
	clock   func() time.Time
	shown   [len(noticeTTL)]Notice
	changed chan struct{}
}

// NewNotices creates an empty notice model. A nil clock means time.Now.
func NewNotices(clock func() time.Time) *Notices {
	if clock == nil {
		clock = time.Now
	}
	return &Notices{
		clock:   clock,
		changed: make(chan struct{}, 1),
	}
}

func (n *Notices) Info(text string) { n.Post(LevelInfo, text) }
func (n *Notices) Warn(text string) { n.Post(LevelWarn, text) }
func (n *Notices) Err(err error)    { n.Post(LevelError, err.Error()) }

// Post shows text at level.
func (n *Notices) Post(level Level, text string) {
	n.mu.Lock()
	n.shown[level] = Notice{Text: text, Level: level, At: n.clock()}
	n.mu.Unlock()

	select {
	case n.changed <- struct{}{}:
	default:
	}
}

// Current returns the notice to display, if any.
func (n *Notices) Current() (Notice, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := n.clock()
	for level := LevelError; level >= LevelInfo; level-- {
		if cur := n.shown[level]; cur.Text != "" && !cur.expired(now) {
			return cur, true
		}
	}
	return Notice{}, false
}

// Changed receives after every Post. Posts between two receives coalesce.
func (n *Notices) Changed() <-chan struct{} {
	return n.changed
}

// NoticeBar renders the current notice.
type NoticeBar struct {
	*tview.TextView
	theme *Theme
}

// NewNoticeBar creates an empty notice bar.
func NewNoticeBar(theme *Theme) *NoticeBar {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(theme.Bg)
	return &NoticeBar{TextView: tv, theme: theme}
}

// Show renders n, or clears the bar when ok is false.
func (nb *NoticeBar) Show(n Notice, ok bool) {
	nb.Clear()
	if !ok {
		return
	}
	color := nb.theme.Info
	switch n.Level {
	case LevelWarn:
		color = nb.theme.Warn
	case LevelError:
		color = nb.theme.Error
	}
	_, _ = fmt.Fprintf(nb, " [::d]%s[-:-:-] [%s]%s[-]", n.At.Format("15:04:05"), ColorName(color), tview.Escape(n.Text))
}
