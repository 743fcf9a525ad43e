package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// SessionData is what the header shows about the running session.
type SessionData struct {
	Profile string
	User    string
	Server  string
	// Link is the push link state; anything but ATTACHED is highlighted.
	Link          string
	Conversations int
	Threads       int
	Users         int
	Uptime        time.Duration
}

// SessionInfo is the header panel with the session details.
type SessionInfo struct {
	*tview.TextView
	theme *Theme
}

// NewSessionInfo creates an empty session panel.
func NewSessionInfo(theme *Theme) *SessionInfo {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(theme.Bg)
	tv.SetBorderPadding(0, 0, 1, 1)
	return &SessionInfo{TextView: tv, theme: theme}
}

// Update renders data.
func (si *SessionInfo) Update(data SessionData) {
	si.Clear()

	link := si.theme.Value
	if data.Link != "ATTACHED" {
		link = si.theme.Warn
	}
	rows := []struct {
		label string
		value string
		color tcell.Color
	}{
		{"Profile", data.Profile, si.theme.Value},
		{"User", orDash(data.User), si.theme.Value},
		{"Server", data.Server, si.theme.Value},
		{"Push", data.Link, link},
		{"Cached", fmt.Sprintf("%d chats, %d threads, %d users", data.Conversations, data.Threads, data.Users), si.theme.Value},
		{"Uptime", formatDuration(data.Uptime), si.theme.Value},
	}

	fg := ColorName(si.theme.Fg)
	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "[%s::b]%-8s[-:-:-] [%s]%s[-]\n", fg, r.label+":", ColorName(r.color), tview.Escape(r.value))
	}
	_, _ = fmt.Fprint(si, strings.TrimSuffix(b.String(), "\n"))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatDuration(d time.Duration) string {
	d = d.Truncate(time.Minute)
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}
