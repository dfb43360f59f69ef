package api

import (
	"sort"
	"time"

	"github.com/matheus3301/inbox/internal/attachment"
	"github.com/matheus3301/inbox/internal/backend"
	"github.com/matheus3301/inbox/internal/conversation"
	"github.com/matheus3301/inbox/internal/outbox"
	"github.com/matheus3301/inbox/internal/unread"
)

// Conversions into structpb-compatible maps. Timestamps travel as RFC 3339 strings.

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func userValue(u conversation.User) map[string]any {
	return map[string]any{"id": u.ID, "name": u.Name, "email": u.Email}
}

func messageValue(m conversation.Message) map[string]any {
	atts := make([]any, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		atts = append(atts, map[string]any{
			"id":        a.ID.String(),
			"name":      a.Name,
			"mime_type": a.MimeType,
			"size":      float64(a.Size),
		})
	}
	return map[string]any{
		"id":          m.ID.String(),
		"pending":     m.IsPending(),
		"state":       string(m.State),
		"sender":      userValue(m.Sender),
		"receiver":    userValue(m.Receiver),
		"subject":     m.Subject,
		"content":     m.Content,
		"attachments": atts,
		"created_at":  formatTime(m.CreatedAt),
		"is_read":     m.IsRead,
	}
}

func messagesValue(msgs []conversation.Message) []any {
	out := make([]any, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageValue(m))
	}
	return out
}

func snapshotValue(s unread.Snapshot) map[string]any {
	perUser := make(map[string]any, len(s.PerUser))
	for id, n := range s.PerUser {
		perUser[id] = float64(n)
	}
	return map[string]any{
		"total":         float64(s.Total),
		"per_user":      perUser,
		"notifications": float64(s.Notifications),
		"freshness":     string(s.Freshness),
		"updated_at":    formatTime(s.UpdatedAt),
	}
}

func rejectionsValue(rs []*attachment.Rejection) []any {
	out := make([]any, 0, len(rs))
	for _, r := range rs {
		out = append(out, map[string]any{"file": r.File, "reason": string(r.Reason), "detail": r.Detail})
	}
	return out
}

func notificationValue(n backend.Notification) map[string]any {
	return map[string]any{
		"id":         n.ID,
		"title":      n.Title,
		"message":    n.Message,
		"type":       n.Type,
		"is_read":    n.IsRead,
		"created_at": formatTime(n.CreatedAt),
	}
}

func failureValue(f outbox.Failure) map[string]any {
	files := make([]any, 0, len(f.Draft.Files))
	for _, file := range f.Draft.Files {
		files = append(files, file.Name)
	}
	return map[string]any{
		"local_id": f.LocalID.String(),
		"to":       f.Draft.To.ID,
		"subject":  f.Draft.Subject,
		"content":  f.Draft.Content,
		"files":    files,
		"error":    f.Err.Error(),
		"at":       formatTime(f.At),
	}
}

func usersValue(users []conversation.User, snap unread.Snapshot) []any {
	sorted := append([]conversation.User(nil), users...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DisplayName() < sorted[j].DisplayName()
	})
	out := make([]any, 0, len(sorted))
	for _, u := range sorted {
		v := userValue(u)
		v["unread"] = float64(snap.For(u.ID))
		out = append(out, v)
	}
	return out
}
