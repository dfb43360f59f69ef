package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/inbox/internal/unread"
	"github.com/rivo/tview"
)

// Header shows the session, the signed-in user and the combined unread badge.
// It is one of the surfaces fed by the unread hub.
type Header struct {
	*tview.TextView
	theme   *Theme
	session string
	user    string
	state   string
	since   time.Time
	counts  unread.Snapshot
	known   bool
}

// NewHeader creates the header panel.
func NewHeader(theme *Theme, session string) *Header {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	h := &Header{TextView: tv, theme: theme, session: session}
	h.render()
	return h
}

// SetUser updates the signed-in user line.
func (h *Header) SetUser(name string) {
	h.user = name
	h.render()
}

// SetState updates the session state line.
func (h *Header) SetState(state string, since time.Time) {
	h.state = state
	h.since = since
	h.render()
}

// ApplyUnread takes a snapshot from the hub.
func (h *Header) ApplyUnread(s unread.Snapshot) {
	h.counts = s
	h.known = true
	h.render()
}

// Badge returns the number currently shown on the badge.
func (h *Header) Badge() int {
	return h.counts.Badge()
}

func (h *Header) render() {
	label := ColorName(h.theme.FgColor)
	value := ColorName(h.theme.CounterColor)

	user := h.user
	if user == "" {
		user = "-"
	}
	state := h.state
	if state == "" {
		state = "-"
	}

	var b strings.Builder
	row := func(name, v string) {
		fmt.Fprintf(&b, "[%s::b]%-8s[-:-:-] [%s]%s[-]\n", label, name+":", value, v)
	}
	row("Session", tview.Escape(h.session))
	row("User", tview.Escape(user))
	row("State", state)
	row("Unread", h.badge())
	if !h.since.IsZero() {
		row("Since", FormatDuration(time.Since(h.since)))
	}
	h.SetText(strings.TrimSuffix(b.String(), "\n"))
}

func (h *Header) badge() string {
	if !h.known {
		return "…"
	}
	color := h.theme.CounterColor
	if h.counts.Badge() > 0 {
		color = h.theme.BadgeColor
	}
	text := fmt.Sprintf("%s%d[-] (%d msg, %d notif)", Tag(color), h.counts.Badge(), h.counts.Total, h.counts.Notifications)
	if h.counts.Freshness != unread.Fresh {
		text += " " + Tag(h.theme.StaleColor) + string(h.counts.Freshness) + "[-]"
	}
	return text
}

// FormatDuration renders d as "2h5m" or "7m".
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
