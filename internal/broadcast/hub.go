// Package broadcast owns the single unread poll loop of the process and fans
// its results out to every UI surface.
package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/matheus3301/inbox/internal/bus"
	"github.com/matheus3301/inbox/internal/logging"
	"github.com/matheus3301/inbox/internal/status"
	"github.com/matheus3301/inbox/internal/unread"
	"go.uber.org/zap"
)

// Hub runs the poll loop while a session is active and at least one surface is
// subscribed. Surfaces receive snapshots on latest-value channels: a slow reader
// sees the newest snapshot, never a backlog.
type Hub struct {
	agg      *unread.Aggregator
	machine  *status.Machine
	bus      *bus.Bus
	interval time.Duration
	logger   *zap.Logger
	kick     chan struct{}

	mu      sync.Mutex
	subs    map[int]chan unread.Snapshot
	next    int
	last    unread.Snapshot
	hasLast bool
	active  bool
	cancel  context.CancelFunc
	done    chan struct{}

	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

// NewHub creates a hub fed by agg. The loop period is the aggregator's interval.
func NewHub(agg *unread.Aggregator, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *Hub {
	h := &Hub{
		agg:      agg,
		machine:  machine,
		bus:      b,
		interval: agg.Interval(),
		logger:   logging.OrNop(logger),
		kick:     make(chan struct{}, 1),
		subs:     make(map[int]chan unread.Snapshot),
	}
	agg.OnChange(h.publish)
	return h
}

// Start begins following session status. The loop itself starts only once a
// session is active and a surface has subscribed.
func (h *Hub) Start() {
	events, unsub := h.bus.Subscribe(bus.KindSessionStatus, 8)
	ctx, cancel := context.WithCancel(context.Background())

	h.mu.Lock()
	h.watchCancel = cancel
	h.watchDone = make(chan struct{})
	done := h.watchDone
	h.mu.Unlock()

	h.setActive(h.machine.IsActive())

	go func() {
		defer close(done)
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-events:
				if change, ok := evt.Payload.(status.StatusChange); ok {
					h.setActive(change.To == status.Active)
				}
			}
		}
	}()
}

// Stop ends the status watch and the poll loop, waiting for both.
func (h *Hub) Stop() {
	h.mu.Lock()
	watchCancel, watchDone := h.watchCancel, h.watchDone
	h.watchCancel, h.watchDone = nil, nil
	h.active = false
	cancel, done := h.stopLoopLocked()
	h.mu.Unlock()

	if watchCancel != nil {
		watchCancel()
		<-watchDone
	}
	if cancel != nil {
		cancel()
		<-done
	}
}

// Subscribe registers a surface. The channel immediately holds the latest
// snapshot if one exists. The returned func unsubscribes and may be called twice.
func (h *Hub) Subscribe() (<-chan unread.Snapshot, func()) {
	ch := make(chan unread.Snapshot, 1)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	if h.hasLast {
		ch <- h.last
	}
	h.reconcileLocked()
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			cancel, done := h.reconcileLocked()
			h.mu.Unlock()
			if cancel != nil {
				cancel()
				<-done
			}
		})
	}
}

// Subscribers returns the number of registered surfaces.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Running reports whether the poll loop is live.
func (h *Hub) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancel != nil
}

// Latest returns the last published snapshot.
func (h *Hub) Latest() (unread.Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last, h.hasLast
}

// RefreshNow marks the counts stale and asks the loop for an immediate cycle.
// It never blocks; a kick already pending absorbs this one. With no loop running
// only the invalidation remains, and the next loop start polls once.
func (h *Hub) RefreshNow() {
	h.agg.Invalidate()
	h.mu.Lock()
	running := h.cancel != nil
	h.mu.Unlock()
	if !running {
		return
	}
	select {
	case h.kick <- struct{}{}:
	default:
	}
}

func (h *Hub) setActive(active bool) {
	h.mu.Lock()
	if h.active == active {
		h.mu.Unlock()
		return
	}
	h.active = active
	cancel, done := h.reconcileLocked()
	h.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if !active {
		// Counts belong to the session that just ended.
		h.agg.Reset()
	}
	h.logger.Debug("unread broadcast session change", zap.Bool("active", active))
}

// reconcileLocked starts or stops the loop to match (active && subscribers > 0).
// A stopped loop's cancel and done are returned so the caller waits outside the lock.
func (h *Hub) reconcileLocked() (context.CancelFunc, chan struct{}) {
	want := h.active && len(h.subs) > 0
	switch {
	case want && h.cancel == nil:
		// The loop's first cycle covers any kick left from the previous loop.
		select {
		case <-h.kick:
		default:
		}
		ctx, cancel := context.WithCancel(context.Background())
		h.cancel = cancel
		h.done = make(chan struct{})
		go h.loop(ctx, h.done)
		h.logger.Info("unread polling started", zap.Int("subscribers", len(h.subs)), zap.Duration("interval", h.interval))
	case !want && h.cancel != nil:
		h.logger.Info("unread polling stopped")
		return h.stopLoopLocked()
	}
	return nil, nil
}

func (h *Hub) stopLoopLocked() (context.CancelFunc, chan struct{}) {
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	return cancel, done
}

func (h *Hub) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	// Counts still fresh, for instance from a mark-read refresh, are polled
	// again only once they age out.
	wait := h.interval
	if snap := h.agg.Snapshot(); snap.Freshness == unread.Fresh {
		wait = time.Until(snap.UpdatedAt.Add(h.interval))
	} else {
		h.cycle(ctx)
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			h.cycle(ctx)
		case <-h.kick:
			h.cycle(ctx)
		}
		timer.Reset(h.interval)
	}
}

func (h *Hub) cycle(ctx context.Context) {
	if _, err := h.agg.Refresh(ctx); err != nil && ctx.Err() == nil {
		h.logger.Debug("unread cycle failed", zap.Error(err))
	}
}

// publish delivers snap to every subscriber, replacing any undelivered value.
func (h *Hub) publish(snap unread.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last, h.hasLast = snap, true
	for _, ch := range h.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
