package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// fakeAPI serves canned bodies per "METHOD path" and records what it saw.
type fakeAPI struct {
	routes map[string]string
	status map[string]int
	seen   []string
	auth   []string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route := r.Method + " " + r.URL.Path
	f.seen = append(f.seen, route)
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	if code, ok := f.status[route]; ok {
		w.WriteHeader(code)
		_, _ = io.WriteString(w, `{"error":"nope"}`)
		return
	}
	body, ok := f.routes[route]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

func newTestClient(t *testing.T, api http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	c, err := New(Options{BaseURL: srv.URL + "/api/", Token: "tok", Timeout: 2 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNewRejectsRelativeURL(t *testing.T) {
	if _, err := New(Options{BaseURL: "/api"}); err == nil {
		t.Fatal("expected error for relative base url")
	}
}

func TestConversationDecodesMessages(t *testing.T) {
	api := &fakeAPI{routes: map[string]string{
		"GET /api/messages/conversation/u42": `[
			{"id":"m1","sender":{"id":"u42","name":"Ayşe"},"receiver":{"id":"u1","name":"Admin"},
			 "subject":"","content":"selam","attachments":[{"id":"a1","originalName":"cv.pdf","mimeType":"application/pdf","size":12}],
			 "createdAt":"2026-03-01T09:00:00Z","isRead":true}
		]`,
	}}
	c := newTestClient(t, api)

	msgs, err := c.Conversation(context.Background(), "u42")
	if err != nil {
		t.Fatalf("Conversation() error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	m := msgs[0]
	if id, ok := m.ServerID(); !ok || id != "m1" {
		t.Errorf("ID = %v", m.ID)
	}
	if !m.Key.Has("u1") || !m.Key.Has("u42") {
		t.Errorf("Key = %v", m.Key)
	}
	if len(m.Attachments) != 1 || m.Attachments[0].Name != "cv.pdf" {
		t.Errorf("attachments = %+v", m.Attachments)
	}
	if api.auth[0] != "Bearer tok" {
		t.Errorf("Authorization = %q", api.auth[0])
	}
}

func TestCountsAndBreakdown(t *testing.T) {
	api := &fakeAPI{routes: map[string]string{
		"GET /api/messages/unread-count":      `{"count":3}`,
		"GET /api/messages/unread-by-user":    `[{"id":"u42","count":2},{"id":"u7","count":1}]`,
		"GET /api/notifications/unread-count": `{"count":5}`,
	}}
	c := newTestClient(t, api)
	ctx := context.Background()

	total, err := c.UnreadCount(ctx)
	if err != nil || total != 3 {
		t.Errorf("UnreadCount() = %d, %v", total, err)
	}
	entries, err := c.UnreadByUser(ctx)
	if err != nil || len(entries) != 2 || entries[0].ID != "u42" || entries[0].Count != 2 {
		t.Errorf("UnreadByUser() = %+v, %v", entries, err)
	}
	n, err := c.NotificationUnreadCount(ctx)
	if err != nil || n != 5 {
		t.Errorf("NotificationUnreadCount() = %d, %v", n, err)
	}
}

func TestNotificationMarkReadRoutes(t *testing.T) {
	api := &fakeAPI{routes: map[string]string{
		"PUT /api/notifications/n1/read":  `{}`,
		"PUT /api/notifications/read-all": `{}`,
	}}
	c := newTestClient(t, api)
	if err := c.MarkNotificationRead(context.Background(), "n1"); err != nil {
		t.Fatal(err)
	}
	if err := c.MarkAllNotificationsRead(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(api.seen) != 2 || api.seen[1] != "PUT /api/notifications/read-all" {
		t.Errorf("seen = %v", api.seen)
	}
}

func TestStatusErrors(t *testing.T) {
	api := &fakeAPI{status: map[string]int{
		"GET /api/messages/users":        http.StatusUnauthorized,
		"GET /api/messages/unread-count": http.StatusBadGateway,
	}}
	c := newTestClient(t, api)

	_, err := c.ListUsers(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("ListUsers() = %v, want ErrUnauthorized", err)
	}

	_, err = c.UnreadCount(context.Background())
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("UnreadCount() = %v, want *StatusError", err)
	}
	if se.Status != http.StatusBadGateway || se.Message != "nope" {
		t.Errorf("StatusError = %+v", se)
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Error("502 must not match ErrUnauthorized")
	}
}

func TestPostMessageSendsBody(t *testing.T) {
	var gotType, gotBody string
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = io.WriteString(w, `{"id":"m9","sender":{"id":"u1"},"receiver":{"id":"u42"},"content":"hi","createdAt":"2026-03-01T09:00:00Z"}`)
	})
	c := newTestClient(t, api)

	msg, err := c.PostMessage(context.Background(), "multipart/form-data; boundary=x", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("PostMessage() error: %v", err)
	}
	if gotType != "multipart/form-data; boundary=x" || gotBody != "payload" {
		t.Errorf("request = %q %q", gotType, gotBody)
	}
	if id, _ := msg.ServerID(); id != "m9" {
		t.Errorf("ID = %v", msg.ID)
	}
}

func TestFetchAttachmentReadsFilename(t *testing.T) {
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/messages/m1/attachment/a1" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Disposition", `attachment; filename="cv.pdf"`)
		_, _ = io.WriteString(w, "%PDF")
	})
	c := newTestClient(t, api)

	body, name, err := c.FetchAttachment(context.Background(), "m1", "a1")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = body.Close() }()
	data, _ := io.ReadAll(body)
	if name != "cv.pdf" || string(data) != "%PDF" {
		t.Errorf("got %q %q", name, data)
	}
}

func TestEndpointEscapesSegments(t *testing.T) {
	c, err := New(Options{BaseURL: "http://h/api"})
	if err != nil {
		t.Fatal(err)
	}
	if got := c.endpoint("messages", "conversation", "a/b"); got != "http://h/api/messages/conversation/a%2Fb" {
		t.Errorf("endpoint = %q", got)
	}
}
