package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/inbox/internal/unread"
)

func TestPagesStack(t *testing.T) {
	p := NewPages()
	for _, name := range []string{"users", "thread", "details"} {
		p.AddPage(name, NewLogo(DefaultTheme()), true, false)
	}
	var seen [][]string
	p.SetOnChange(func(stack []string) { seen = append(seen, stack) })

	p.Reset("users")
	p.Push("thread")
	p.Push("details")
	if got := p.Current(); got != "details" {
		t.Fatalf("Current() = %q, want details", got)
	}

	// Pushing a page already on the stack moves it to the top.
	p.Push("thread")
	if got := strings.Join(p.Stack(), ","); got != "users,details,thread" {
		t.Errorf("stack = %s", got)
	}

	if got := p.Pop(); got != "thread" {
		t.Errorf("Pop() = %q, want thread", got)
	}
	p.Pop()
	if got := p.Pop(); got != "" {
		t.Errorf("Pop() on root = %q, want empty", got)
	}
	if p.Current() != "users" || !p.Contains("users") || p.Contains("thread") {
		t.Errorf("stack = %v, want only users", p.Stack())
	}
	if len(seen) != 6 {
		t.Errorf("onChange fired %d times, want 6", len(seen))
	}
}

func TestMenuLayoutFillsColumns(t *testing.T) {
	m := NewMenu(DefaultTheme(), 2)
	got := m.layout([]MenuHint{
		{Key: "a", Description: "one"},
		{Key: "b", Description: "two"},
		{Key: "c", Description: "three"},
	})
	lines := strings.Split(got, "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), got)
	}
	if !strings.Contains(lines[0], "<a>") || !strings.Contains(lines[0], "<c>") {
		t.Errorf("first line = %q, want hints a and c", lines[0])
	}
	if !strings.Contains(lines[1], "<b>") {
		t.Errorf("second line = %q, want hint b", lines[1])
	}
}

func TestFlashExpires(t *testing.T) {
	f := NewFlashModel()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return now }

	if f.Current() != nil {
		t.Fatal("fresh model has a message")
	}
	f.Err(errors.New("upload failed"))
	msg := f.Current()
	if msg == nil || msg.Level != FlashErr || msg.Text != "upload failed" {
		t.Fatalf("Current() = %+v", msg)
	}
	select {
	case <-f.Watch():
	default:
		t.Error("Watch did not signal")
	}

	now = now.Add(11 * time.Second)
	if f.Current() != nil {
		t.Error("message did not expire")
	}
}

func TestHeaderBadge(t *testing.T) {
	h := NewHeader(DefaultTheme(), "main")
	if text := h.GetText(true); !strings.Contains(text, "…") {
		t.Errorf("header before first snapshot = %q, want placeholder", text)
	}

	h.SetUser("Admin")
	h.ApplyUnread(unread.Snapshot{Total: 3, Notifications: 2, Freshness: unread.Fresh})
	text := h.GetText(true)
	if h.Badge() != 5 || !strings.Contains(text, "5 (3 msg, 2 notif)") {
		t.Errorf("header = %q, want badge 5", text)
	}
	if strings.Contains(text, "stale") {
		t.Errorf("fresh snapshot rendered as stale: %q", text)
	}

	h.ApplyUnread(unread.Snapshot{Total: 3, Freshness: unread.Stale})
	if text := h.GetText(true); !strings.Contains(text, "stale") {
		t.Errorf("header = %q, want stale marker", text)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0m"},
		{7 * time.Minute, "7m"},
		{2*time.Hour + 5*time.Minute, "2h5m"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
