package broadcast

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/inbox/internal/backend"
	"github.com/matheus3301/inbox/internal/bus"
	"github.com/matheus3301/inbox/internal/status"
	"github.com/matheus3301/inbox/internal/unread"
)

type countingSource struct {
	mu    sync.Mutex
	total int
	calls atomic.Int32
}

func (s *countingSource) set(total int) {
	s.mu.Lock()
	s.total = total
	s.mu.Unlock()
}

func (s *countingSource) UnreadCount(context.Context) (int, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total, nil
}

func (s *countingSource) UnreadByUser(context.Context) ([]backend.UnreadEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return []backend.UnreadEntry{{ID: "u42", Count: s.total}}, nil
}

func (s *countingSource) NotificationUnreadCount(context.Context) (int, error)  { return 0, nil }
func (s *countingSource) MarkConversationRead(context.Context, string) error    { return nil }
func (s *countingSource) MarkNotificationRead(context.Context, string) error    { return nil }
func (s *countingSource) MarkAllNotificationsRead(context.Context) error        { return nil }

type fixture struct {
	src     *countingSource
	machine *status.Machine
	hub     *Hub
}

func newFixture(t *testing.T, interval time.Duration) *fixture {
	t.Helper()
	b := bus.New()
	src := &countingSource{}
	agg := unread.New(src, unread.Options{Interval: interval}, b, nil)
	machine := status.NewMachine(b)
	hub := NewHub(agg, machine, b, nil)
	hub.Start()
	t.Cleanup(hub.Stop)
	return &fixture{src: src, machine: machine, hub: hub}
}

func (f *fixture) activate(t *testing.T) {
	t.Helper()
	if err := f.machine.Transition(status.Active); err != nil {
		t.Fatal(err)
	}
}

func receive(t *testing.T, ch <-chan unread.Snapshot, want int) unread.Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-ch:
			if s.Total == want {
				return s
			}
		case <-deadline:
			t.Fatalf("timeout waiting for total %d", want)
		}
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestTwoSurfacesShareOnePoll has badge A and badge B subscribed while one cycle
// returns a total of 3.
func TestTwoSurfacesShareOnePoll(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.src.set(3)

	a, unsubA := f.hub.Subscribe()
	defer unsubA()
	b, unsubB := f.hub.Subscribe()
	defer unsubB()
	f.activate(t)

	receive(t, a, 3)
	receive(t, b, 3)
	if n := f.src.calls.Load(); n != 1 {
		t.Errorf("network calls = %d, want 1", n)
	}
}

func TestLoopFollowsSessionAndSubscribers(t *testing.T) {
	f := newFixture(t, time.Hour)

	ch, unsub := f.hub.Subscribe()
	if f.hub.Running() {
		t.Fatal("loop running before the session is active")
	}

	f.activate(t)
	eventually(t, "loop start", f.hub.Running)

	unsub()
	if f.hub.Running() {
		t.Error("loop still running without subscribers")
	}
	unsub()

	// Marks the counts stale so the restarted loop polls at once.
	f.src.set(2)
	f.hub.RefreshNow()
	ch, unsub = f.hub.Subscribe()
	defer unsub()
	if !f.hub.Running() {
		t.Fatal("loop not restarted by a new subscriber")
	}
	receive(t, ch, 2)

	if err := f.machine.Transition(status.SignedOut); err != nil {
		t.Fatal(err)
	}
	eventually(t, "loop stop", func() bool { return !f.hub.Running() })
	// Logout clears the counts on every surface.
	receive(t, ch, 0)
}

func TestRefreshNowRunsAnImmediateCycle(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.src.set(1)
	ch, unsub := f.hub.Subscribe()
	defer unsub()
	f.activate(t)
	receive(t, ch, 1)

	f.src.set(4)
	f.hub.RefreshNow()
	s := receive(t, ch, 4)
	if s.For("u42") != 4 {
		t.Errorf("per user = %v", s.PerUser)
	}
}

// TestRefreshNowBeforeFirstSubscriberPollsOnce covers a send settling while no
// surface watches: the loop started by the next subscribers runs one cycle.
func TestRefreshNowBeforeFirstSubscriberPollsOnce(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.activate(t)
	f.src.set(2)
	f.hub.RefreshNow()
	f.hub.RefreshNow()

	a, unsubA := f.hub.Subscribe()
	defer unsubA()
	b, unsubB := f.hub.Subscribe()
	defer unsubB()
	receive(t, a, 2)
	receive(t, b, 2)

	time.Sleep(50 * time.Millisecond)
	if n := f.src.calls.Load(); n != 1 {
		t.Errorf("network calls = %d, want 1", n)
	}
}

func TestRestartWithFreshCountsSkipsPoll(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.src.set(1)
	ch, unsub := f.hub.Subscribe()
	f.activate(t)
	receive(t, ch, 1)
	unsub()

	ch, unsub = f.hub.Subscribe()
	defer unsub()
	if !f.hub.Running() {
		t.Fatal("loop not restarted by a new subscriber")
	}
	receive(t, ch, 1)

	time.Sleep(50 * time.Millisecond)
	if n := f.src.calls.Load(); n != 1 {
		t.Errorf("network calls = %d, want 1 while counts are fresh", n)
	}
}

func TestLateSubscriberGetsLatestSnapshot(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.src.set(5)
	first, unsub := f.hub.Subscribe()
	defer unsub()
	f.activate(t)
	receive(t, first, 5)

	late, unsubLate := f.hub.Subscribe()
	defer unsubLate()
	select {
	case s := <-late:
		if s.Total != 5 {
			t.Errorf("late subscriber got %d, want 5", s.Total)
		}
	default:
		t.Fatal("late subscriber did not get the latest snapshot immediately")
	}
	if n := f.src.calls.Load(); n != 1 {
		t.Errorf("late subscriber caused %d network calls, want 1", n)
	}
}

func TestSlowSubscriberSeesOnlyLatest(t *testing.T) {
	f := newFixture(t, time.Hour)
	ch, unsub := f.hub.Subscribe()
	defer unsub()

	// Nothing reads ch between publishes.
	f.hub.publish(unread.Snapshot{Total: 1})
	f.hub.publish(unread.Snapshot{Total: 2})
	f.hub.publish(unread.Snapshot{Total: 3})

	if s := <-ch; s.Total != 3 {
		t.Errorf("got %d, want the latest value 3", s.Total)
	}
	select {
	case s := <-ch:
		t.Errorf("stale value %d still queued", s.Total)
	default:
	}
}
