package store

import (
	"database/sql"
	"errors"
	"time"
)

// UpsertUser inserts or updates a user (idempotent on id).
func (db *DB) UpsertUser(u *User) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO users (id, name, email, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE users.name END,
			email = CASE WHEN excluded.email != '' THEN excluded.email ELSE users.email END`,
		u.ID, u.Name, u.Email, now)
	return err
}

// GetUser returns a user by id, or ErrNotFound.
func (db *DB) GetUser(id string) (*User, error) {
	var u User
	err := db.QueryRow(`SELECT id, name, email, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsersExcept returns every user other than id, ordered by name.
func (db *DB) ListUsersExcept(id string) ([]User, error) {
	rows, err := db.Query(`
		SELECT id, name, email, created_at FROM users
		WHERE id != ?
		ORDER BY name COLLATE NOCASE, id`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
