package backend

import (
	"time"

	"github.com/matheus3301/inbox/internal/conversation"
)

// Wire representations of the API payloads. The JSON names are the API's.

type UserDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type AttachmentDTO struct {
	ID           string `json:"id"`
	OriginalName string `json:"originalName"`
	MimeType     string `json:"mimeType"`
	Size         int64  `json:"size"`
}

type MessageDTO struct {
	ID          string          `json:"id"`
	Sender      UserDTO         `json:"sender"`
	Receiver    UserDTO         `json:"receiver"`
	Subject     string          `json:"subject"`
	Content     string          `json:"content"`
	Attachments []AttachmentDTO `json:"attachments"`
	CreatedAt   time.Time       `json:"createdAt"`
	IsRead      bool            `json:"isRead"`
}

// UnreadEntry is one element of GET /messages/unread-by-user.
type UnreadEntry struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

// CountDTO is the body of the unread-count endpoints.
type CountDTO struct {
	Count int `json:"count"`
}

// Notification is a generic, non-message notification.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u UserDTO) domain() conversation.User {
	return conversation.User{ID: u.ID, Name: u.Name, Email: u.Email}
}

// Domain converts a server message. The result always carries a ServerID.
func (m MessageDTO) Domain() conversation.Message {
	atts := make([]conversation.Attachment, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		atts = append(atts, conversation.Attachment{
			ID:       conversation.ServerID(a.ID),
			Name:     a.OriginalName,
			MimeType: a.MimeType,
			Size:     a.Size,
		})
	}
	return conversation.Message{
		ID:          conversation.ServerID(m.ID),
		Key:         conversation.NewKey(m.Sender.ID, m.Receiver.ID),
		Sender:      m.Sender.domain(),
		Receiver:    m.Receiver.domain(),
		Subject:     m.Subject,
		Content:     m.Content,
		Attachments: atts,
		CreatedAt:   m.CreatedAt,
		State:       conversation.Sent,
		IsRead:      m.IsRead,
	}
}
