package unread

import "time"

// Freshness is a reader's view of how current the counts are. There is no
// error state: a failed poll leaves the counts as they were.
type Freshness string

const (
	Stale      Freshness = "stale"
	Refreshing Freshness = "refreshing"
	Fresh      Freshness = "fresh"
)

// Snapshot is an immutable copy of the unread index.
type Snapshot struct {
	Total         int
	PerUser       map[string]int
	Notifications int
	Freshness     Freshness
	UpdatedAt     time.Time
}

// For returns the unread count for one counterpart.
func (s Snapshot) For(userID string) int {
	return s.PerUser[userID]
}

// Badge is the number shown on a combined messages + notifications badge.
func (s Snapshot) Badge() int {
	return s.Total + s.Notifications
}
