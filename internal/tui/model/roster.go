// Package model holds TUI state that is independent of any widget.
package model

import (
	"cmp"
	"slices"
	"strings"

	"github.com/matheus3301/inbox/internal/conversation"
	"github.com/matheus3301/inbox/internal/unread"
)

// Row is one line of the user list.
type Row struct {
	User   conversation.User
	Unread int
}

// Roster is the user list joined with the latest unread counts. Users with
// unread messages sort first, then by display name. Not safe for concurrent
// use; the TUI touches it from the draw goroutine only.
type Roster struct {
	users  []conversation.User
	counts unread.Snapshot
	filter string
}

// SetUsers replaces the directory.
func (r *Roster) SetUsers(users []conversation.User) {
	r.users = slices.Clone(users)
}

// Apply takes a snapshot from the hub.
func (r *Roster) Apply(s unread.Snapshot) {
	r.counts = s
}

// Counts returns the last applied snapshot.
func (r *Roster) Counts() unread.Snapshot {
	return r.counts
}

// SetFilter narrows Rows to users whose name, email or id contains text,
// ignoring case. An empty filter shows everyone.
func (r *Roster) SetFilter(text string) {
	r.filter = strings.ToLower(strings.TrimSpace(text))
}

// Filter returns the active filter.
func (r *Roster) Filter() string {
	return r.filter
}

// Len returns the number of users regardless of the filter.
func (r *Roster) Len() int {
	return len(r.users)
}

// Rows returns the visible rows in display order.
func (r *Roster) Rows() []Row {
	rows := make([]Row, 0, len(r.users))
	for _, u := range r.users {
		if !r.matches(u) {
			continue
		}
		rows = append(rows, Row{User: u, Unread: r.counts.For(u.ID)})
	}
	slices.SortStableFunc(rows, func(a, b Row) int {
		if (a.Unread > 0) != (b.Unread > 0) {
			if a.Unread > 0 {
				return -1
			}
			return 1
		}
		return cmp.Compare(strings.ToLower(a.User.DisplayName()), strings.ToLower(b.User.DisplayName()))
	})
	return rows
}

// Find returns the user with id, falling back to a bare id.
func (r *Roster) Find(id string) conversation.User {
	for _, u := range r.users {
		if u.ID == id {
			return u
		}
	}
	return conversation.User{ID: id}
}

// Lookup resolves a name typed at the prompt: an exact id, then an exact
// display name, then the only partial match.
func (r *Roster) Lookup(text string) (conversation.User, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return conversation.User{}, false
	}
	var partial []conversation.User
	for _, u := range r.users {
		switch {
		case strings.ToLower(u.ID) == text, strings.ToLower(u.DisplayName()) == text:
			return u, true
		case strings.Contains(strings.ToLower(u.DisplayName()), text):
			partial = append(partial, u)
		}
	}
	if len(partial) == 1 {
		return partial[0], true
	}
	return conversation.User{}, false
}

func (r *Roster) matches(u conversation.User) bool {
	if r.filter == "" {
		return true
	}
	for _, field := range []string{u.Name, u.Email, u.ID} {
		if strings.Contains(strings.ToLower(field), r.filter) {
			return true
		}
	}
	return false
}
