package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/matheus3301/inbox/internal/conversation"
)

// ListUsers returns the counterparts available in the messaging UI.
func (c *Client) ListUsers(ctx context.Context) ([]conversation.User, error) {
	var dto []UserDTO
	if err := c.doJSON(ctx, http.MethodGet, &dto, "messages", "users"); err != nil {
		return nil, err
	}
	users := make([]conversation.User, 0, len(dto))
	for _, u := range dto {
		users = append(users, u.domain())
	}
	return users, nil
}

// UnreadCount returns the global unread message count.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var dto CountDTO
	if err := c.doJSON(ctx, http.MethodGet, &dto, "messages", "unread-count"); err != nil {
		return 0, err
	}
	return dto.Count, nil
}

// UnreadByUser returns the raw per-counterpart breakdown.
func (c *Client) UnreadByUser(ctx context.Context) ([]UnreadEntry, error) {
	var dto []UnreadEntry
	if err := c.doJSON(ctx, http.MethodGet, &dto, "messages", "unread-by-user"); err != nil {
		return nil, err
	}
	return dto, nil
}

// Conversation returns the full history with userID. The API marks the
// counterpart's messages read as a side effect.
func (c *Client) Conversation(ctx context.Context, userID string) ([]conversation.Message, error) {
	var dto []MessageDTO
	if err := c.doJSON(ctx, http.MethodGet, &dto, "messages", "conversation", userID); err != nil {
		return nil, err
	}
	msgs := make([]conversation.Message, 0, len(dto))
	for _, m := range dto {
		msgs = append(msgs, m.Domain())
	}
	return msgs, nil
}

// MarkConversationRead tells the API the conversation with userID was viewed.
// The API has no dedicated endpoint: fetching the history is what marks it read.
func (c *Client) MarkConversationRead(ctx context.Context, userID string) error {
	return c.doJSON(ctx, http.MethodGet, nil, "messages", "conversation", userID)
}

// PostMessage submits a pre-encoded multipart body to POST /messages. The
// request is bounded by ctx only so large uploads are not cut by the JSON timeout.
func (c *Client) PostMessage(ctx context.Context, contentType string, body io.Reader) (conversation.Message, error) {
	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint("messages"), body)
	if err != nil {
		return conversation.Message{}, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	resp, err := c.send(req)
	if err != nil {
		return conversation.Message{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	var dto MessageDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return conversation.Message{}, fmt.Errorf("decode sent message: %w", err)
	}
	if dto.ID == "" {
		return conversation.Message{}, fmt.Errorf("decode sent message: missing id")
	}
	return dto.Domain(), nil
}

// FetchAttachment streams one attachment. The caller closes body. filename comes
// from Content-Disposition and may be empty.
func (c *Client) FetchAttachment(ctx context.Context, messageID, attachmentID string) (io.ReadCloser, string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.endpoint("messages", messageID, "attachment", attachmentID), nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.send(req)
	if err != nil {
		return nil, "", err
	}
	var filename string
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		filename = params["filename"]
	}
	return resp.Body, filename, nil
}
