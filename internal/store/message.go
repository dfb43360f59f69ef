package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InsertMessage stores m and its attachments in one transaction: either the
// message and every file are saved, or nothing is. m.ID, m.CreatedAt and
// m.Attachments are filled in on success.
func (db *DB) InsertMessage(m *Message, files []NewAttachment) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt == 0 {
		m.CreatedAt = time.Now().UnixMilli()
	}
	atts := make([]Attachment, 0, len(files))
	err := db.tx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			INSERT INTO messages (id, sender_id, receiver_id, subject, content, is_read, created_at)
			VALUES (?, ?, ?, ?, ?, 0, ?)`,
			m.ID, m.SenderID, m.ReceiverID, m.Subject, m.Content, m.CreatedAt); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		for i, f := range files {
			a := Attachment{
				ID:           uuid.NewString(),
				MessageID:    m.ID,
				OriginalName: f.OriginalName,
				MimeType:     f.MimeType,
				Size:         int64(len(f.Data)),
			}
			if _, err := tx.Exec(`
				INSERT INTO attachments (id, message_id, position, original_name, mime_type, size, data)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				a.ID, a.MessageID, i, a.OriginalName, a.MimeType, a.Size, f.Data); err != nil {
				return fmt.Errorf("insert attachment %s: %w", f.OriginalName, err)
			}
			atts = append(atts, a)
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.IsRead = false
	m.Attachments = atts
	return nil
}

// Conversation returns every message exchanged between a and b, oldest first,
// with attachment metadata.
func (db *DB) Conversation(a, b string) ([]Message, error) {
	rows, err := db.Query(`
		SELECT id, sender_id, receiver_id, subject, content, is_read, created_at
		FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at ASC, rowid ASC`, a, b, b, a)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	index := make(map[string]int)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Subject, &m.Content, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, err
		}
		index[m.ID] = len(msgs)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return msgs, nil
	}

	arows, err := db.Query(`
		SELECT a.id, a.message_id, a.original_name, a.mime_type, a.size
		FROM attachments a JOIN messages m ON m.id = a.message_id
		WHERE (m.sender_id = ? AND m.receiver_id = ?) OR (m.sender_id = ? AND m.receiver_id = ?)
		ORDER BY a.message_id, a.position`, a, b, b, a)
	if err != nil {
		return nil, err
	}
	defer func() { _ = arows.Close() }()
	for arows.Next() {
		var att Attachment
		if err := arows.Scan(&att.ID, &att.MessageID, &att.OriginalName, &att.MimeType, &att.Size); err != nil {
			return nil, err
		}
		if i, ok := index[att.MessageID]; ok {
			msgs[i].Attachments = append(msgs[i].Attachments, att)
		}
	}
	return msgs, arows.Err()
}

// MarkConversationRead marks every message from sender to receiver read and
// returns how many changed.
func (db *DB) MarkConversationRead(receiver, sender string) (int64, error) {
	res, err := db.Exec(`
		UPDATE messages SET is_read = 1
		WHERE receiver_id = ? AND sender_id = ? AND is_read = 0`, receiver, sender)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UnreadCount returns the number of unread messages addressed to userID.
func (db *DB) UnreadCount(userID string) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM messages WHERE receiver_id = ? AND is_read = 0`, userID).Scan(&n)
	return n, err
}

// UnreadByUser breaks UnreadCount down per sender.
func (db *DB) UnreadByUser(userID string) ([]UnreadEntry, error) {
	rows, err := db.Query(`
		SELECT sender_id, COUNT(*) FROM messages
		WHERE receiver_id = ? AND is_read = 0
		GROUP BY sender_id
		ORDER BY sender_id`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []UnreadEntry
	for rows.Next() {
		var e UnreadEntry
		if err := rows.Scan(&e.SenderID, &e.Count); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Attachment loads one attachment with its payload. Only the sender and the
// receiver of the message may read it; anyone else gets ErrNotFound.
func (db *DB) Attachment(viewerID, messageID, attachmentID string) (*Attachment, error) {
	var a Attachment
	err := db.QueryRow(`
		SELECT a.id, a.message_id, a.original_name, a.mime_type, a.size, a.data
		FROM attachments a JOIN messages m ON m.id = a.message_id
		WHERE a.id = ? AND a.message_id = ? AND (m.sender_id = ? OR m.receiver_id = ?)`,
		attachmentID, messageID, viewerID, viewerID).
		Scan(&a.ID, &a.MessageID, &a.OriginalName, &a.MimeType, &a.Size, &a.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
