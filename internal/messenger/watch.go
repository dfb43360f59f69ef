package messenger

import (
	"context"

	"github.com/matheus3301/inbox/internal/conversation"
	"github.com/matheus3301/inbox/internal/unread"
	"go.uber.org/zap"
)

// watchLocked subscribes to the hub while at least one conversation is open:
// when an open conversation's counterpart shows unread messages, it is reloaded
// and marked read. Must be called with m.mu held.
func (m *Messenger) watchLocked() {
	if m.stopWatch != nil {
		return
	}
	ch, unsub := m.hub.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.stopWatch = func() {
		cancel()
		unsub()
	}
	m.watchDone = done

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-ch:
				m.catchUp(ctx, snap)
			}
		}
	}()
}

// takeWatchLocked detaches the watch so the caller can stop it outside the lock.
func (m *Messenger) takeWatchLocked() (func(), chan struct{}) {
	stop, done := m.stopWatch, m.watchDone
	m.stopWatch, m.watchDone = nil, nil
	return stop, done
}

func stopWatch(stop func(), done chan struct{}) {
	if stop != nil {
		stop()
		<-done
	}
}

// Stop ends the hub subscription if one is live.
func (m *Messenger) Stop() {
	m.mu.Lock()
	stop, done := m.takeWatchLocked()
	m.mu.Unlock()
	stopWatch(stop, done)
}

func (m *Messenger) catchUp(ctx context.Context, snap unread.Snapshot) {
	m.mu.Lock()
	var stale []string
	for id := range m.open {
		if snap.For(id) > 0 {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	for _, id := range stale {
		ticket, ok := m.beginIfOpen(id)
		if !ok {
			continue
		}
		if _, err := m.load(ctx, ticket, id); err != nil {
			m.logger.Debug("reload of open conversation failed", zap.String("user_id", id), zap.Error(err))
			continue
		}
		if !m.IsOpen(id) {
			continue
		}
		if _, err := m.agg.MarkRead(ctx, id); err != nil {
			m.logger.Debug("mark read failed", zap.String("user_id", id), zap.Error(err))
		}
	}
}

// beginIfOpen issues a load ticket only while id is open. A Close after this
// point evicts the key, which moves its floor past the ticket and discards the load.
func (m *Messenger) beginIfOpen(id string) (conversation.Ticket, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open[id] == 0 {
		return conversation.Ticket{}, false
	}
	return m.store.BeginLoad(m.KeyFor(id)), true
}
