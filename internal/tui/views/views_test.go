package views

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/inbox/internal/attachment"
	"github.com/matheus3301/inbox/internal/backend"
	"github.com/matheus3301/inbox/internal/conversation"
	"github.com/matheus3301/inbox/internal/outbox"
	"github.com/matheus3301/inbox/internal/tui/ui"
	"github.com/matheus3301/inbox/internal/unread"
)

var (
	me   = conversation.User{ID: "u1", Name: "Admin"}
	ayse = conversation.User{ID: "u42", Name: "Ayşe", Email: "ayse@example.com"}
	t0   = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
)

func cellText(ul *UserList, row, col int) string {
	return strings.TrimSpace(ul.GetCell(row, col).Text)
}

func TestUserListBadges(t *testing.T) {
	ul := NewUserList(ui.DefaultTheme())
	if !strings.Contains(ul.GetTitle(), "loading") {
		t.Errorf("title before load = %q", ul.GetTitle())
	}
	ul.SetUsers([]conversation.User{ayse, {ID: "u7", Name: "Mehmet"}})
	ul.ApplyUnread(unread.Snapshot{Total: 4, PerUser: map[string]int{"u7": 4}, Freshness: unread.Fresh})

	if got := cellText(ul, 1, 1); got != "Mehmet" {
		t.Errorf("first row = %q, want the user with unread messages", got)
	}
	if got := cellText(ul, 1, 3); got != "4" {
		t.Errorf("badge = %q, want 4", got)
	}
	if got := cellText(ul, 2, 3); got != "" {
		t.Errorf("badge for read conversation = %q, want blank", got)
	}
	if ul.Badge("u7") != 4 || ul.Badge("u42") != 0 {
		t.Error("Badge() disagrees with the table")
	}
	if u, ok := ul.At(2); !ok || u.ID != "u42" {
		t.Errorf("At(2) = %v, %v", u, ok)
	}
	if _, ok := ul.At(3); ok {
		t.Error("At past the end succeeded")
	}
}

func TestUserListKeepsCursorOnRefresh(t *testing.T) {
	ul := NewUserList(ui.DefaultTheme())
	ul.SetUsers([]conversation.User{ayse, {ID: "u7", Name: "Mehmet"}})
	ul.Select(1, 0) // Ayşe
	if u, _ := ul.Selected(); u.ID != "u42" {
		t.Fatalf("selected %q", u.ID)
	}

	// Mehmet gets a message and moves up; the cursor follows Ayşe down.
	ul.ApplyUnread(unread.Snapshot{Total: 1, PerUser: map[string]int{"u7": 1}, Freshness: unread.Fresh})
	if u, _ := ul.Selected(); u.ID != "u42" {
		t.Errorf("cursor moved to %q", u.ID)
	}
	if row, _ := ul.GetSelection(); row != 2 {
		t.Errorf("cursor row = %d, want 2", row)
	}
}

func TestUserListFilterAndStaleTitle(t *testing.T) {
	ul := NewUserList(ui.DefaultTheme())
	ul.SetUsers([]conversation.User{ayse, {ID: "u7", Name: "Mehmet"}})
	ul.SetFilter("meh")
	if u, ok := ul.At(1); !ok || u.ID != "u7" {
		t.Errorf("At(1) = %v after filter", u)
	}
	if !strings.Contains(ul.GetTitle(), "(1/2) filter: meh") {
		t.Errorf("title = %q", ul.GetTitle())
	}
	ul.ApplyUnread(unread.Snapshot{Freshness: unread.Stale})
	if !strings.Contains(ul.GetTitle(), "stale") {
		t.Errorf("title = %q, want stale marker", ul.GetTitle())
	}
}

func TestMessageThreadRendering(t *testing.T) {
	mt := NewMessageThread(ui.DefaultTheme())
	mt.now = func() time.Time { return t0.Add(time.Hour) }
	mt.Open(me.ID, ayse)

	local := conversation.NewLocalID()
	mt.Update([]conversation.Message{
		{
			ID: conversation.ServerID("m1"), Sender: ayse, Receiver: me, Subject: "Invoice",
			Content: "see attached\x1b[2J", CreatedAt: t0, State: conversation.Sent,
			Attachments: []conversation.Attachment{
				{ID: conversation.ServerID("a1"), Name: "march.pdf", Size: 2048},
				{ID: conversation.ServerID("a2"), Name: "scan.png", Size: 10},
			},
		},
		{
			ID: local, Sender: me, Receiver: ayse, Content: "thanks [red]",
			CreatedAt: t0.Add(time.Minute), State: conversation.Pending,
			Attachments: []conversation.Attachment{{ID: conversation.NewLocalID(), Name: "reply.pdf", Size: 1}},
		},
	})

	text := mt.Messages().GetText(true)
	for _, want := range []string{"Ayşe 09:30", "Invoice", "see attached[2J", "#1 📎 march.pdf (2.0 KiB)", "#2 📎 scan.png (10 B)", "You 09:31 sending…", "thanks", "📎 reply.pdf"} {
		if !strings.Contains(text, want) {
			t.Errorf("thread missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "\x1b") {
		t.Error("escape character reached the terminal")
	}

	ref, ok := mt.Attachment(2)
	if !ok || ref.MessageID != "m1" || ref.AttachmentID != "a2" || ref.Name != "scan.png" {
		t.Errorf("Attachment(2) = %+v, %v", ref, ok)
	}
	if _, ok := mt.Attachment(3); ok {
		t.Error("pending attachment was numbered")
	}
}

func TestMessageThreadDraft(t *testing.T) {
	mt := NewMessageThread(ui.DefaultTheme())
	mt.Open(me.ID, ayse)

	var submitted []string
	mt.SetOnSubmit(func(text string) { submitted = append(submitted, text) })

	mt.SetSubject("Invoice")
	mt.Queue(attachment.FromBytes("cv.pdf", []byte("%PDF-1.4\n")))
	if title := mt.Composer().GetTitle(); !strings.Contains(title, "subject: Invoice") || !strings.Contains(title, "1 file(s): cv.pdf") {
		t.Errorf("composer title = %q", title)
	}
	subject, files := mt.Draft()
	if subject != "Invoice" || len(files) != 1 {
		t.Errorf("Draft() = %q, %d files", subject, len(files))
	}

	mt.ResetDraft()
	if _, files := mt.Draft(); len(files) != 0 {
		t.Error("ResetDraft kept files")
	}

	mt.Queue(attachment.FromBytes("a.png", nil))
	mt.Open(me.ID, conversation.User{ID: "u7"})
	if _, files := mt.Draft(); len(files) != 0 {
		t.Error("opening another conversation kept the draft")
	}
}

func TestMessageThreadCountsUnreadElsewhere(t *testing.T) {
	mt := NewMessageThread(ui.DefaultTheme())
	mt.Open(me.ID, ayse)
	mt.ApplyUnread(unread.Snapshot{Total: 5, PerUser: map[string]int{"u42": 2, "u7": 3}})
	if mt.Elsewhere() != 3 {
		t.Errorf("Elsewhere() = %d, want 3", mt.Elsewhere())
	}
	if title := mt.Messages().GetTitle(); !strings.Contains(title, "+3 unread elsewhere") {
		t.Errorf("title = %q", title)
	}
	mt.ApplyUnread(unread.Snapshot{Total: 2, PerUser: map[string]int{"u42": 2}})
	if title := mt.Messages().GetTitle(); strings.Contains(title, "elsewhere") {
		t.Errorf("title = %q, want no marker", title)
	}
}

func TestNotificationList(t *testing.T) {
	nl := NewNotificationList(ui.DefaultTheme())
	nl.now = func() time.Time { return t0 }
	nl.Update([]backend.Notification{
		{ID: "n2", Title: "Backup", Message: "done", Type: "info", CreatedAt: t0},
		{ID: "n1", Title: "Quota", Message: "80%", Type: "warning", IsRead: true, CreatedAt: t0.AddDate(0, 0, -3)},
	})
	if !strings.Contains(nl.GetTitle(), "1 unread / 2") {
		t.Errorf("title = %q", nl.GetTitle())
	}
	if got := strings.TrimSpace(nl.GetCell(2, 4).Text); got != "26 Feb" {
		t.Errorf("older date = %q, want 26 Feb", got)
	}
	n, ok := nl.Selected()
	if !ok || n.ID != "n2" {
		t.Errorf("Selected() = %v, %v", n.ID, ok)
	}
}

func TestUserDetailsListsFailures(t *testing.T) {
	ud := NewUserDetails(ui.DefaultTheme())
	ud.Update(Details{
		User:   ayse,
		Unread: 2,
		Failures: []outbox.Failure{
			{Draft: outbox.Draft{Content: "first try"}, Err: errors.New("HTTP 502")},
		},
	})
	text := ud.GetText(true)
	for _, want := range []string{"ayse@example.com", "Failed sends:", "first try", "HTTP 502", "/retry"} {
		if !strings.Contains(text, want) {
			t.Errorf("details missing %q:\n%s", want, text)
		}
	}
}

func TestSanitizeForTerminal(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"line\nbreak\ttab", "line\nbreak\ttab"},
		{"bell\a esc\x1b[31m", "bell esc[31m"},
		{"👍🏻", "👍"},
		{"👨‍👩‍👧", "👨👩👧"},
		{"bad\xffbyte", "badbyte"},
	}
	for _, tt := range tests {
		if got := sanitizeForTerminal(tt.in); got != tt.want {
			t.Errorf("sanitizeForTerminal(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := singleLine("  two\n lines "); got != "two lines" {
		t.Errorf("singleLine = %q", got)
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1536, "1.5 KiB"},
		{10 << 20, "10.0 MiB"},
	}
	for _, tt := range tests {
		if got := formatSize(tt.n); got != tt.want {
			t.Errorf("formatSize(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
