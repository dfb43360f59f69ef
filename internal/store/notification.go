package store

import (
	"time"

	"github.com/google/uuid"
)

// InsertNotification stores n, filling ID and CreatedAt when unset.
func (db *DB) InsertNotification(n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt == 0 {
		n.CreatedAt = time.Now().UnixMilli()
	}
	if n.Type == "" {
		n.Type = "info"
	}
	_, err := db.Exec(`
		INSERT INTO notifications (id, user_id, title, message, type, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Title, n.Message, n.Type, n.IsRead, n.CreatedAt)
	return err
}

// ListNotifications returns userID's notifications, newest first.
func (db *DB) ListNotifications(userID string) ([]Notification, error) {
	rows, err := db.Query(`
		SELECT id, user_id, title, message, type, is_read, created_at
		FROM notifications WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// NotificationUnreadCount returns the number of unread notifications for userID.
func (db *DB) NotificationUnreadCount(userID string) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`, userID).Scan(&n)
	return n, err
}

// MarkNotificationRead marks one of userID's notifications read. Marking an
// already-read notification is not an error; an unknown id is ErrNotFound.
func (db *DB) MarkNotificationRead(userID, id string) error {
	res, err := db.Exec(`UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllNotificationsRead marks every notification of userID read.
func (db *DB) MarkAllNotificationsRead(userID string) error {
	_, err := db.Exec(`UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0`, userID)
	return err
}
