package tui

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/inbox/internal/config"
	"github.com/matheus3301/inbox/internal/session"
	"github.com/matheus3301/inbox/internal/status"
	"github.com/matheus3301/inbox/internal/store"
	"github.com/matheus3301/inbox/internal/stub"
	"github.com/matheus3301/inbox/internal/tui/ui"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

type testSession struct {
	home string
	cfg  *config.Config
	db   *store.DB
	hs   *httptest.Server
	stub *stub.Server
}

// newTestSession starts a stub API with three users and points a session home
// at a temp dir.
func newTestSession(t *testing.T) *testSession {
	t.Helper()
	home := t.TempDir()
	t.Setenv(session.BaseDirEnv, home)
	t.Setenv(config.TokenEnv, "")

	db, err := store.Open(filepath.Join(home, "stub.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	for _, u := range []store.User{
		{ID: "u1", Name: "Admin"},
		{ID: "u42", Name: "Ayşe", Email: "ayse@example.com"},
		{ID: "u7", Name: "Mehmet"},
	} {
		if err := db.UpsertUser(&u); err != nil {
			t.Fatal(err)
		}
	}
	api, err := stub.New(db, stub.Options{Secret: []byte("s3cret")})
	if err != nil {
		t.Fatal(err)
	}
	hs := httptest.NewServer(api.Handler())
	t.Cleanup(hs.Close)

	cfg := config.Default()
	cfg.BaseURL = hs.URL + "/api"
	cfg.PollInterval.Duration = time.Hour
	cfg.TokenFile = filepath.Join(home, "token")
	cfg.DownloadDir = filepath.Join(home, "downloads")
	return &testSession{home: home, cfg: cfg, db: db, hs: hs, stub: api}
}

func (s *testSession) signIn(t *testing.T) {
	t.Helper()
	token, err := s.stub.IssueToken("u1")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.cfg.TokenFile, []byte(token+"\n"), 0600); err != nil {
		t.Fatal(err)
	}
}

func (s *testSession) receive(t *testing.T, from, content string) {
	t.Helper()
	if err := s.db.InsertMessage(&store.Message{SenderID: from, ReceiverID: "u1", Content: content}, nil); err != nil {
		t.Fatal(err)
	}
}

// harness drives an App without a terminal. The event loop is replaced by a
// mutex, so queued updates and test assertions never overlap.
type harness struct {
	t   *testing.T
	mu  sync.Mutex
	app *App
}

func startApp(t *testing.T, s *testSession) *harness {
	t.Helper()
	var a *App
	fxApp := fxtest.New(t, Module(Params{SessionName: "test", Config: s.cfg}), fx.Populate(&a))
	fxApp.RequireStart()
	t.Cleanup(fxApp.RequireStop)

	h := &harness{t: t, app: a}
	a.queue = h.on
	a.start()
	return h
}

func (h *harness) on(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn()
}

func (h *harness) waitFor(what string, cond func(a *App) bool) {
	h.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var ok bool
		h.on(func() { ok = cond(h.app) })
		if ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	h.t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) threadText() string {
	var text string
	h.on(func() { text = h.app.thread.Messages().GetText(true) })
	return text
}

func flashText(a *App) string {
	if m := a.flash.Current(); m != nil {
		return m.Text
	}
	return ""
}

func TestUsersShowUnreadBadges(t *testing.T) {
	s := newTestSession(t)
	s.signIn(t)
	s.receive(t, "u42", "are you there?")
	s.receive(t, "u42", "hello?")
	if err := s.db.InsertNotification(&store.Notification{UserID: "u1", Title: "Meeting moved"}); err != nil {
		t.Fatal(err)
	}

	h := startApp(t, s)
	h.waitFor("user list with badges", func(a *App) bool {
		return a.users.Roster().Len() == 2 && a.users.Badge("u42") == 2
	})
	h.on(func() {
		a := h.app
		if got := a.pages.Current(); got != pageUsers {
			t.Errorf("page = %q, want %q", got, pageUsers)
		}
		if u, ok := a.users.At(1); !ok || u.ID != "u42" {
			t.Errorf("first row = %+v, want the user with unread messages", u)
		}
		if got := a.users.Badge("u7"); got != 0 {
			t.Errorf("Badge(u7) = %d, want 0", got)
		}
	})
	h.waitFor("header badge", func(a *App) bool { return a.header.Badge() == 3 })
}

func TestOpenConversationMarksRead(t *testing.T) {
	s := newTestSession(t)
	s.signIn(t)
	s.receive(t, "u42", "are you there?")

	h := startApp(t, s)
	h.waitFor("badge", func(a *App) bool { return a.users.Badge("u42") == 1 })

	h.on(func() {
		u := h.app.users.Roster().Find("u42")
		h.app.openConversation(u)
	})
	h.waitFor("history", func(a *App) bool { return a.shownID == "u42" })
	if text := h.threadText(); !strings.Contains(text, "are you there?") {
		t.Errorf("thread = %q, want the received message", text)
	}
	h.waitFor("badge cleared", func(a *App) bool {
		return a.users.Badge("u42") == 0 && a.header.Badge() == 0
	})
	if !h.app.m.IsOpen("u42") {
		t.Error("conversation not held open by the messenger")
	}

	h.on(func() { h.app.back() })
	h.waitFor("conversation released", func(a *App) bool { return !a.m.IsOpen("u42") })
	h.on(func() {
		if got := h.app.pages.Current(); got != pageUsers {
			t.Errorf("page after back = %q, want %q", got, pageUsers)
		}
	})
}

func TestSendMessage(t *testing.T) {
	s := newTestSession(t)
	s.signIn(t)

	h := startApp(t, s)
	h.waitFor("users", func(a *App) bool { return a.users.Roster().Len() == 2 })
	h.on(func() { h.app.runCommand(ParseCommand(":open ayş")) })
	h.waitFor("history", func(a *App) bool { return a.shownID == "u42" })
	if text := h.threadText(); !strings.Contains(text, "No messages yet") {
		t.Errorf("empty thread = %q", text)
	}

	h.on(func() {
		h.app.submit("/subject March")
		h.app.submit("thanks for the report")
		if subject, files := h.app.thread.Draft(); subject != "" || len(files) != 0 {
			t.Errorf("draft after send = %q, %v; want reset", subject, files)
		}
	})
	h.waitFor("sent message", func(a *App) bool {
		text := a.thread.Messages().GetText(true)
		return strings.Contains(text, "thanks for the report") && !strings.Contains(text, "sending…")
	})
	text := h.threadText()
	for _, want := range []string{"You ", "March"} {
		if !strings.Contains(text, want) {
			t.Errorf("thread = %q, want %q", text, want)
		}
	}

	msgs, err := s.db.Conversation("u1", "u42")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Subject != "March" || msgs[0].Content != "thanks for the report" {
		t.Errorf("stored = %+v", msgs)
	}
}

func TestSendAttachmentAndDownload(t *testing.T) {
	s := newTestSession(t)
	s.signIn(t)
	pdf := filepath.Join(t.TempDir(), "march.pdf")
	if err := os.WriteFile(pdf, []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<<>>\nendobj\n"), 0600); err != nil {
		t.Fatal(err)
	}

	h := startApp(t, s)
	h.waitFor("users", func(a *App) bool { return a.users.Roster().Len() == 2 })
	h.on(func() { h.app.runCommand(ParseCommand("open u42")) })
	h.waitFor("history", func(a *App) bool { return a.shownID == "u42" })

	h.on(func() {
		h.app.submit("/attach " + pdf)
		if _, files := h.app.thread.Draft(); len(files) != 1 || files[0].MimeType != "application/pdf" {
			t.Fatalf("queued files = %+v", files)
		}
		h.app.submit("")
	})
	h.waitFor("attachment sent", func(a *App) bool {
		_, ok := a.thread.Attachment(1)
		return ok
	})
	if text := h.threadText(); !strings.Contains(text, "#1 📎 march.pdf") {
		t.Errorf("thread = %q, want numbered attachment", text)
	}

	h.on(func() { h.app.runCommand(ParseCommand("download 1")) })
	h.waitFor("download", func(a *App) bool { return strings.HasPrefix(flashText(a), "Saved ") })
	if _, err := os.Stat(filepath.Join(s.cfg.DownloadDir, "march.pdf")); err != nil {
		t.Errorf("downloaded file: %v", err)
	}
}

func TestAttachRejectsMissingFile(t *testing.T) {
	s := newTestSession(t)
	s.signIn(t)

	h := startApp(t, s)
	h.waitFor("users", func(a *App) bool { return a.users.Roster().Len() == 2 })
	h.on(func() {
		a := h.app
		u := a.users.Roster().Find("u7")
		a.openConversation(u)
		a.submit("/attach " + filepath.Join(s.home, "absent.pdf"))
		if _, files := a.thread.Draft(); len(files) != 0 {
			t.Errorf("files = %v, want none", files)
		}
		if got := flashText(a); !strings.Contains(got, "absent.pdf") {
			t.Errorf("flash = %q", got)
		}
		a.submit("/bogus")
		if got := flashText(a); got != "unknown directive /bogus" {
			t.Errorf("flash = %q", got)
		}
	})
}

func TestFailedSendCanBeRetried(t *testing.T) {
	s := newTestSession(t)
	s.signIn(t)

	h := startApp(t, s)
	h.waitFor("users", func(a *App) bool { return a.users.Roster().Len() == 2 })
	h.on(func() { h.app.runCommand(ParseCommand("open Mehmet")) })
	h.waitFor("history", func(a *App) bool { return a.shownID == "u7" })

	s.hs.Close()
	h.on(func() { h.app.submit("lost in transit") })
	h.waitFor("failure", func(a *App) bool { return len(a.m.Failures()) == 1 })
	first := h.app.m.Failures()[0].LocalID
	h.waitFor("rollback", func(a *App) bool {
		return !strings.Contains(a.thread.Messages().GetText(true), "lost in transit") &&
			strings.Contains(flashText(a), "/retry")
	})

	h.on(func() { h.app.submit("/retry") })
	h.waitFor("second failure", func(a *App) bool {
		f := a.m.Failures()
		return len(f) == 1 && f[0].LocalID != first
	})
	if got := h.app.m.Failures()[0].Draft.Content; got != "lost in transit" {
		t.Errorf("retried content = %q", got)
	}
}

func TestRetryWithoutFailure(t *testing.T) {
	s := newTestSession(t)
	s.signIn(t)

	h := startApp(t, s)
	h.waitFor("users", func(a *App) bool { return a.users.Roster().Len() == 2 })
	h.on(func() {
		u := h.app.users.Roster().Find("u7")
		h.app.openConversation(u)
		h.app.submit("/r")
		if got := flashText(h.app); got != "Nothing to retry in this conversation" {
			t.Errorf("flash = %q", got)
		}
	})
}

func TestSignedOutWithoutToken(t *testing.T) {
	s := newTestSession(t)

	h := startApp(t, s)
	h.waitFor("signed-out page", func(a *App) bool { return a.pages.Current() == pageSignedOut })
	h.on(func() {
		a := h.app
		if got := a.signedOut.GetText(true); !strings.Contains(got, s.cfg.TokenFile) {
			t.Errorf("signed-out text = %q, want token path", got)
		}
		if a.users.Roster().Len() != 0 {
			t.Error("users loaded without a session")
		}
		a.runCommand(ParseCommand("open u42"))
		if got := a.pages.Current(); got != pageSignedOut {
			t.Errorf("page = %q after open while signed out", got)
		}
	})
}

func TestLogoutCommand(t *testing.T) {
	s := newTestSession(t)
	s.signIn(t)

	h := startApp(t, s)
	h.waitFor("users", func(a *App) bool { return a.users.Roster().Len() == 2 })
	h.on(func() { h.app.runCommand(ParseCommand("open u42")) })
	h.waitFor("history", func(a *App) bool { return a.shownID == "u42" })

	h.on(func() { h.app.runCommand(ParseCommand("logout")) })
	h.waitFor("signed out", func(a *App) bool {
		return a.machine.Current() == status.SignedOut && a.pages.Current() == pageSignedOut
	})
	h.waitFor("conversation released", func(a *App) bool { return !a.m.IsOpen("u42") })
	h.on(func() {
		if h.app.openID != "" {
			t.Errorf("openID = %q after logout", h.app.openID)
		}
	})
}

func TestCommands(t *testing.T) {
	s := newTestSession(t)
	s.signIn(t)
	if err := s.db.InsertNotification(&store.Notification{UserID: "u1", Title: "Meeting moved"}); err != nil {
		t.Fatal(err)
	}

	h := startApp(t, s)
	h.waitFor("users", func(a *App) bool { return a.users.Roster().Len() == 2 })

	h.on(func() {
		a := h.app
		a.runCommand(ParseCommand("open nobody"))
		if got := flashText(a); !strings.Contains(got, "nobody") {
			t.Errorf("flash = %q", got)
		}
		a.runCommand(ParseCommand("frobnicate"))
		if got := flashText(a); got != "Unknown command: frobnicate" {
			t.Errorf("flash = %q", got)
		}
		a.runCommand(ParseCommand("download 1"))
		if got := flashText(a); !strings.HasPrefix(got, "Usage:") {
			t.Errorf("download outside a thread: flash = %q", got)
		}
		a.runCommand(ParseCommand("help"))
		if got := a.pages.Current(); got != pageHelp {
			t.Errorf("page = %q, want help", got)
		}
		a.runCommand(ParseCommand("notifications"))
		if got := a.pages.Stack(); len(got) != 3 || got[2] != pageNotifications {
			t.Errorf("stack = %v", got)
		}
	})
	h.waitFor("notifications", func(a *App) bool {
		n, ok := a.notices.Selected()
		return ok && n.Title == "Meeting moved" && !n.IsRead
	})
	h.waitFor("header counts notification", func(a *App) bool { return a.header.Badge() == 1 })

	h.on(func() { h.app.runCommand(ParseCommand("read-all")) })
	h.waitFor("notification read", func(a *App) bool {
		n, ok := a.notices.Selected()
		return ok && n.IsRead
	})
	h.waitFor("header badge cleared", func(a *App) bool { return a.header.Badge() == 0 })

	h.on(func() {
		a := h.app
		a.runCommand(ParseCommand("users"))
		if got := a.pages.Stack(); len(got) != 1 || got[0] != pageUsers {
			t.Errorf("stack after :users = %v", got)
		}
	})
}

func TestFilterPrompt(t *testing.T) {
	s := newTestSession(t)
	s.signIn(t)

	h := startApp(t, s)
	h.waitFor("users", func(a *App) bool { return a.users.Roster().Len() == 2 })
	h.on(func() {
		a := h.app
		a.showPrompt(ui.PromptFilter)
		a.prompt.Submit("meh")
		if got := len(a.users.Roster().Rows()); got != 1 {
			t.Errorf("filtered rows = %d, want 1", got)
		}
		if u, ok := a.users.At(1); !ok || u.ID != "u7" {
			t.Errorf("row 1 = %+v, want Mehmet", u)
		}
	})
}
