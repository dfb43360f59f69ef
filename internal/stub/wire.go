package stub

import (
	"time"

	"github.com/matheus3301/inbox/internal/backend"
	"github.com/matheus3301/inbox/internal/store"
)

func millis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func userDTO(u store.User) backend.UserDTO {
	return backend.UserDTO{ID: u.ID, Name: u.Name, Email: u.Email}
}

func messageDTO(m store.Message, users map[string]store.User) backend.MessageDTO {
	atts := make([]backend.AttachmentDTO, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		atts = append(atts, backend.AttachmentDTO{
			ID:           a.ID,
			OriginalName: a.OriginalName,
			MimeType:     a.MimeType,
			Size:         a.Size,
		})
	}
	return backend.MessageDTO{
		ID:          m.ID,
		Sender:      userDTO(users[m.SenderID]),
		Receiver:    userDTO(users[m.ReceiverID]),
		Subject:     m.Subject,
		Content:     m.Content,
		Attachments: atts,
		CreatedAt:   millis(m.CreatedAt),
		IsRead:      m.IsRead,
	}
}

func notificationDTO(n store.Notification) backend.Notification {
	return backend.Notification{
		ID:        n.ID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      n.Type,
		IsRead:    n.IsRead,
		CreatedAt: millis(n.CreatedAt),
	}
}
