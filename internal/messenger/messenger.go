// Package messenger is the entry point UI surfaces use: it combines history
// loading, optimistic sends, attachment transfer and unread tracking.
package messenger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/matheus3301/inbox/internal/attachment"
	"github.com/matheus3301/inbox/internal/backend"
	"github.com/matheus3301/inbox/internal/broadcast"
	"github.com/matheus3301/inbox/internal/conversation"
	"github.com/matheus3301/inbox/internal/logging"
	"github.com/matheus3301/inbox/internal/outbox"
	"github.com/matheus3301/inbox/internal/status"
	"github.com/matheus3301/inbox/internal/unread"
	"go.uber.org/zap"
)

// ErrSessionInactive is returned when no authenticated session is live.
var ErrSessionInactive = errors.New("no active session")

// Directory is the read side of the API used by the messenger.
type Directory interface {
	ListUsers(ctx context.Context) ([]conversation.User, error)
	Conversation(ctx context.Context, userID string) ([]conversation.Message, error)
	ListNotifications(ctx context.Context) ([]backend.Notification, error)
}

// Deps groups the collaborators of a Messenger.
type Deps struct {
	Me          conversation.User
	Directory   Directory
	Store       *conversation.Store
	Pipeline    *outbox.Pipeline
	Transfer    *attachment.Transfer
	Aggregator  *unread.Aggregator
	Hub         *broadcast.Hub
	Machine     *status.Machine
	DownloadDir string
	Logger      *zap.Logger
}

// Messenger serves one signed-in user.
type Messenger struct {
	me          conversation.User
	dir         Directory
	store       *conversation.Store
	pipeline    *outbox.Pipeline
	transfer    *attachment.Transfer
	agg         *unread.Aggregator
	hub         *broadcast.Hub
	machine     *status.Machine
	downloadDir string
	logger      *zap.Logger

	mu    sync.Mutex
	users map[string]conversation.User
	open  map[string]int

	stopWatch func()
	watchDone chan struct{}
}

// New creates a messenger.
func New(d Deps) *Messenger {
	return &Messenger{
		me:          d.Me,
		dir:         d.Directory,
		store:       d.Store,
		pipeline:    d.Pipeline,
		transfer:    d.Transfer,
		agg:         d.Aggregator,
		hub:         d.Hub,
		machine:     d.Machine,
		downloadDir: d.DownloadDir,
		logger:      logging.OrNop(d.Logger),
		users:       make(map[string]conversation.User),
		open:        make(map[string]int),
	}
}

// Me returns the signed-in user.
func (m *Messenger) Me() conversation.User {
	return m.me
}

// KeyFor returns the conversation key between the signed-in user and userID.
func (m *Messenger) KeyFor(userID string) conversation.Key {
	return conversation.NewKey(m.me.ID, userID)
}

func (m *Messenger) requireActive() error {
	if !m.machine.IsActive() {
		return ErrSessionInactive
	}
	return nil
}

// Users lists counterparts and caches them for naming send receivers.
func (m *Messenger) Users(ctx context.Context) ([]conversation.User, error) {
	if err := m.requireActive(); err != nil {
		return nil, err
	}
	users, err := m.dir.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	m.mu.Lock()
	for _, u := range users {
		m.users[u.ID] = u
	}
	m.mu.Unlock()
	return users, nil
}

func (m *Messenger) user(id string) conversation.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u
	}
	return conversation.User{ID: id}
}

// Open loads the history with userID, marks the conversation read and returns
// the merged list. Opening the same conversation from several surfaces is
// reference counted; each Open needs a matching Close.
func (m *Messenger) Open(ctx context.Context, userID string) ([]conversation.Message, error) {
	if err := m.requireActive(); err != nil {
		return nil, err
	}
	msgs, err := m.reload(ctx, userID)
	if err != nil {
		return nil, err
	}
	// Marked before the watch subscribes: a hub loop started by the watch then
	// finds fresh counts and skips its first poll.
	if _, err := m.agg.MarkRead(ctx, userID); err != nil {
		m.logger.Debug("mark read failed", zap.String("user_id", userID), zap.Error(err))
	}
	m.mu.Lock()
	m.open[userID]++
	m.watchLocked()
	m.mu.Unlock()
	return msgs, nil
}

// reload fetches history and merges it with in-flight sends.
func (m *Messenger) reload(ctx context.Context, userID string) ([]conversation.Message, error) {
	return m.load(ctx, m.store.BeginLoad(m.KeyFor(userID)), userID)
}

func (m *Messenger) load(ctx context.Context, ticket conversation.Ticket, userID string) ([]conversation.Message, error) {
	history, err := m.dir.Conversation(ctx, userID)
	if err != nil {
		m.store.Abandon(ticket)
		return nil, fmt.Errorf("load conversation %s: %w", userID, err)
	}
	return m.store.Load(ticket, history), nil
}

// Close releases one Open. The list is evicted when the last surface closes;
// in-flight sends still complete into the store. Closing the last open
// conversation ends the messenger's hub subscription.
func (m *Messenger) Close(userID string) {
	m.mu.Lock()
	n := m.open[userID] - 1
	if n > 0 {
		m.open[userID] = n
		m.mu.Unlock()
		return
	}
	delete(m.open, userID)
	var stop func()
	var done chan struct{}
	if len(m.open) == 0 {
		stop, done = m.takeWatchLocked()
	}
	m.mu.Unlock()

	m.store.Evict(m.KeyFor(userID))
	stopWatch(stop, done)
}

// IsOpen reports whether a surface has the conversation with userID open.
func (m *Messenger) IsOpen(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open[userID] > 0
}

// Conversation returns the in-memory list for userID.
func (m *Messenger) Conversation(userID string) []conversation.Message {
	return m.store.Messages(m.KeyFor(userID))
}

// Send composes a message to userID and hands it to the pipeline.
func (m *Messenger) Send(to, subject, content string, files []attachment.File) (*outbox.Ticket, error) {
	if err := m.requireActive(); err != nil {
		return nil, err
	}
	return m.pipeline.Send(outbox.Draft{
		From:    m.me,
		To:      m.user(to),
		Subject: subject,
		Content: content,
		Files:   files,
	})
}

// Retry resends a failed draft.
func (m *Messenger) Retry(id conversation.LocalID) (*outbox.Ticket, error) {
	if err := m.requireActive(); err != nil {
		return nil, err
	}
	return m.pipeline.Retry(id)
}

// Failures lists rolled-back sends awaiting retry.
func (m *Messenger) Failures() []outbox.Failure {
	return m.pipeline.Failures()
}

// Download saves an attachment into the download directory.
func (m *Messenger) Download(ctx context.Context, messageID, attachmentID string) (string, error) {
	if err := m.requireActive(); err != nil {
		return "", err
	}
	return m.transfer.Download(ctx, messageID, attachmentID, m.downloadDir)
}

// Notifications lists generic notifications.
func (m *Messenger) Notifications(ctx context.Context) ([]backend.Notification, error) {
	if err := m.requireActive(); err != nil {
		return nil, err
	}
	return m.dir.ListNotifications(ctx)
}

// MarkNotificationRead marks one notification read, or all of them when id is empty.
func (m *Messenger) MarkNotificationRead(ctx context.Context, id string) (unread.Snapshot, error) {
	if err := m.requireActive(); err != nil {
		return unread.Snapshot{}, err
	}
	if id == "" {
		return m.agg.MarkAllNotificationsRead(ctx)
	}
	return m.agg.MarkNotificationRead(ctx, id)
}

// Unread returns the current counts.
func (m *Messenger) Unread() unread.Snapshot {
	return m.agg.Snapshot()
}

// FreshUnread returns the counts, polling first when they are not fresh. A poll
// already in flight is joined, not repeated. Readers without a hub subscription
// use it, since nothing else polls for them.
func (m *Messenger) FreshUnread(ctx context.Context) unread.Snapshot {
	snap := m.agg.Snapshot()
	if snap.Freshness == unread.Fresh || !m.machine.IsActive() {
		return snap
	}
	snap, err := m.agg.Refresh(ctx)
	if err != nil {
		m.logger.Debug("unread refresh failed, serving previous counts", zap.Error(err))
	}
	return snap
}

// Subscribe registers a surface with the unread hub.
func (m *Messenger) Subscribe() (<-chan unread.Snapshot, func()) {
	return m.hub.Subscribe()
}

// RefreshNow asks the hub for an immediate poll cycle.
func (m *Messenger) RefreshNow() {
	m.hub.RefreshNow()
}

// Logout ends the authenticated session. The hub stops polling and open
// conversations are dropped.
func (m *Messenger) Logout() error {
	if err := m.machine.Transition(status.SignedOut); err != nil {
		return err
	}
	m.mu.Lock()
	open := make([]string, 0, len(m.open))
	for id := range m.open {
		open = append(open, id)
	}
	m.open = make(map[string]int)
	stop, done := m.takeWatchLocked()
	m.mu.Unlock()

	stopWatch(stop, done)
	for _, id := range open {
		m.store.Evict(m.KeyFor(id))
	}
	m.logger.Info("signed out", zap.String("user_id", m.me.ID))
	return nil
}
