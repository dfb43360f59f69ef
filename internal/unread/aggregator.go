// Package unread maintains the advisory unread counters: the global message
// count, the per-counterpart breakdown and the generic notification count.
package unread

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/matheus3301/inbox/internal/backend"
	"github.com/matheus3301/inbox/internal/bus"
	"github.com/matheus3301/inbox/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultInterval = 30 * time.Second
	DefaultTimeout  = 15 * time.Second

	flightKey = "unread"
)

// Source is the subset of the API the aggregator reads and mutates.
type Source interface {
	UnreadCount(ctx context.Context) (int, error)
	UnreadByUser(ctx context.Context) ([]backend.UnreadEntry, error)
	NotificationUnreadCount(ctx context.Context) (int, error)
	MarkConversationRead(ctx context.Context, userID string) error
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context) error
}

// Options tunes the aggregator.
type Options struct {
	// Interval is how long a successful poll stays fresh.
	Interval time.Duration
	// Timeout bounds one poll cycle.
	Timeout time.Duration
}

// Aggregator owns the unread index. It is the only writer of it.
type Aggregator struct {
	src      Source
	interval time.Duration
	timeout  time.Duration
	bus      *bus.Bus
	logger   *zap.Logger
	flights  singleflight.Group
	now      func() time.Time

	mu         sync.Mutex
	total      int
	perUser    map[string]int
	notices    int
	updatedAt  time.Time
	freshUntil time.Time
	inFlight   int
	// started numbers poll cycles; applied is the number of the newest cycle
	// whose result is in the index.
	started   uint64
	applied   uint64
	listeners []func(Snapshot)
}

// New creates an aggregator with an empty, stale index.
func New(src Source, opts Options, b *bus.Bus, logger *zap.Logger) *Aggregator {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Aggregator{
		src:      src,
		interval: opts.Interval,
		timeout:  opts.Timeout,
		bus:      b,
		logger:   logging.OrNop(logger),
		now:      time.Now,
		perUser:  make(map[string]int),
	}
}

// Interval returns the freshness window, which is also the polling period.
func (a *Aggregator) Interval() time.Duration {
	return a.interval
}

// OnChange registers fn to be called with every applied snapshot.
// fn runs synchronously on the applying goroutine and must not block.
func (a *Aggregator) OnChange(fn func(Snapshot)) {
	a.mu.Lock()
	a.listeners = append(a.listeners, fn)
	a.mu.Unlock()
}

// PollTotal fetches the global unread count. Negative values read as zero.
func (a *Aggregator) PollTotal(ctx context.Context) (int, error) {
	n, err := a.src.UnreadCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("poll total: %w", err)
	}
	return max(n, 0), nil
}

// PollPerUser fetches the breakdown and normalizes it into a map keyed by user
// id. Entries with no id or a non-positive count are dropped; repeated ids add up.
func (a *Aggregator) PollPerUser(ctx context.Context) (map[string]int, error) {
	entries, err := a.src.UnreadByUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("poll per user: %w", err)
	}
	return normalize(entries), nil
}

// PollNotifications fetches the generic notification unread count.
func (a *Aggregator) PollNotifications(ctx context.Context) (int, error) {
	n, err := a.src.NotificationUnreadCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("poll notifications: %w", err)
	}
	return max(n, 0), nil
}

func normalize(entries []backend.UnreadEntry) map[string]int {
	out := make(map[string]int, len(entries))
	for _, e := range entries {
		if e.ID == "" || e.Count <= 0 {
			continue
		}
		out[e.ID] += e.Count
	}
	return out
}

// Refresh runs one poll cycle, or joins the one already running. On failure the
// previous index is kept and the error is returned for logging only.
func (a *Aggregator) Refresh(ctx context.Context) (Snapshot, error) {
	ch := a.flights.DoChan(flightKey, func() (any, error) {
		return a.cycle()
	})
	select {
	case res := <-ch:
		return a.Snapshot(), res.Err
	case <-ctx.Done():
		return a.Snapshot(), ctx.Err()
	}
}

// cycle is detached from callers' contexts: a joined flight must not fail
// because the caller that started it went away.
func (a *Aggregator) cycle() (any, error) {
	a.mu.Lock()
	a.started++
	seq := a.started
	a.inFlight++
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.inFlight--
		a.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	var (
		total, notices int
		perUser        map[string]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		total, err = a.PollTotal(gctx)
		return err
	})
	g.Go(func() (err error) {
		perUser, err = a.PollPerUser(gctx)
		return err
	})
	g.Go(func() (err error) {
		notices, err = a.PollNotifications(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		a.logger.Debug("unread poll failed, keeping previous counts", zap.Uint64("cycle", seq), zap.Error(err))
		return nil, err
	}

	a.apply(seq, total, perUser, notices)
	return nil, nil
}

// apply stores a cycle's result unless a newer cycle already landed.
func (a *Aggregator) apply(seq uint64, total int, perUser map[string]int, notices int) {
	a.mu.Lock()
	if seq < a.applied {
		a.mu.Unlock()
		a.logger.Debug("discarding superseded unread poll", zap.Uint64("cycle", seq), zap.Uint64("applied", a.applied))
		return
	}
	now := a.now()
	a.applied = seq
	a.total = total
	a.perUser = perUser
	a.notices = notices
	a.updatedAt = now
	a.freshUntil = now.Add(a.interval)
	snap := a.snapshotLocked(now)
	listeners := append([]func(Snapshot){}, a.listeners...)
	a.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
	a.bus.Emit(bus.KindUnreadUpdated, snap)
}

// Invalidate marks the index stale so the next read reports it as such.
// The counts themselves are kept until a newer poll replaces them.
func (a *Aggregator) Invalidate() {
	a.mu.Lock()
	a.freshUntil = time.Time{}
	a.mu.Unlock()
}

// MarkRead tells the API the conversation with userID has been viewed and then
// re-polls at once. The re-poll is a new cycle even if another one is running;
// the older cycle's result is discarded if it lands later.
func (a *Aggregator) MarkRead(ctx context.Context, userID string) (Snapshot, error) {
	if err := a.src.MarkConversationRead(ctx, userID); err != nil {
		return a.Snapshot(), fmt.Errorf("mark %s read: %w", userID, err)
	}
	return a.forceRefresh(ctx)
}

// MarkNotificationRead marks one notification read and re-polls.
func (a *Aggregator) MarkNotificationRead(ctx context.Context, id string) (Snapshot, error) {
	if err := a.src.MarkNotificationRead(ctx, id); err != nil {
		return a.Snapshot(), fmt.Errorf("mark notification %s read: %w", id, err)
	}
	return a.forceRefresh(ctx)
}

// MarkAllNotificationsRead marks every notification read and re-polls.
func (a *Aggregator) MarkAllNotificationsRead(ctx context.Context) (Snapshot, error) {
	if err := a.src.MarkAllNotificationsRead(ctx); err != nil {
		return a.Snapshot(), fmt.Errorf("mark all notifications read: %w", err)
	}
	return a.forceRefresh(ctx)
}

func (a *Aggregator) forceRefresh(ctx context.Context) (Snapshot, error) {
	a.Invalidate()
	a.flights.Forget(flightKey)
	return a.Refresh(ctx)
}

// Reset clears the index, used when the session ends.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.total, a.notices = 0, 0
	a.perUser = make(map[string]int)
	a.updatedAt, a.freshUntil = time.Time{}, time.Time{}
	// Results of cycles started before the reset are discarded.
	a.applied = a.started + 1
	a.started = a.applied
	snap := a.snapshotLocked(a.now())
	listeners := append([]func(Snapshot){}, a.listeners...)
	a.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

// Snapshot returns a copy of the index with its current freshness.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked(a.now())
}

func (a *Aggregator) snapshotLocked(now time.Time) Snapshot {
	return Snapshot{
		Total:         a.total,
		PerUser:       maps.Clone(a.perUser),
		Notifications: a.notices,
		Freshness:     a.freshnessLocked(now),
		UpdatedAt:     a.updatedAt,
	}
}

func (a *Aggregator) freshnessLocked(now time.Time) Freshness {
	switch {
	case now.Before(a.freshUntil):
		return Fresh
	case a.inFlight > 0:
		return Refreshing
	default:
		return Stale
	}
}
