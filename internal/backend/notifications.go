package backend

import (
	"context"
	"net/http"
)

// ListNotifications returns the generic notifications of the current user.
func (c *Client) ListNotifications(ctx context.Context) ([]Notification, error) {
	var out []Notification
	if err := c.doJSON(ctx, http.MethodGet, &out, "notifications"); err != nil {
		return nil, err
	}
	return out, nil
}

// NotificationUnreadCount returns the unread notification count.
func (c *Client) NotificationUnreadCount(ctx context.Context) (int, error) {
	var dto CountDTO
	if err := c.doJSON(ctx, http.MethodGet, &dto, "notifications", "unread-count"); err != nil {
		return 0, err
	}
	return dto.Count, nil
}

// MarkNotificationRead marks one notification read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodPut, nil, "notifications", id, "read")
}

// MarkAllNotificationsRead marks every notification read.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPut, nil, "notifications", "read-all")
}
