package conversation

import (
	"slices"
	"sync"

	"github.com/matheus3301/inbox/internal/bus"
)

// Change is the payload of bus.KindConversationChanged.
type Change struct {
	Key    Key
	Reason string
}

// Ticket pins the store revision at the moment a history fetch began.
// Load uses it to tell which reconciliations the fetched history cannot contain.
type Ticket struct {
	key Key
	rev uint64
}

// Key returns the conversation the ticket was issued for.
func (t Ticket) Key() Key { return t.key }

type reconciled struct {
	msg Message
	rev uint64
}

// Store owns the message lists of loaded conversations. Only the send pipeline and
// the history-load path mutate it. All operations are in-memory and cannot fail.
type Store struct {
	mu sync.Mutex
	// rev increases on every reconciliation and eviction.
	rev   uint64
	convs map[Key][]Message
	// inflight holds pending messages per key independently of convs, so an
	// evicted or reloaded conversation gets them back.
	inflight   map[Key]map[LocalID]Message
	reconciled map[Key][]reconciled
	// floor is the lowest ticket revision a Load for the key still accepts.
	floor map[Key]uint64
	// loading counts tickets not yet passed to Load or Abandon.
	loading map[Key]int
	// loaded marks keys with an accepted Load since their last eviction.
	loaded map[Key]bool
	bus    *bus.Bus
}

// NewStore creates an empty store. b may be nil.
func NewStore(b *bus.Bus) *Store {
	return &Store{
		convs:      make(map[Key][]Message),
		inflight:   make(map[Key]map[LocalID]Message),
		reconciled: make(map[Key][]reconciled),
		floor:      make(map[Key]uint64),
		loading:    make(map[Key]int),
		loaded:     make(map[Key]bool),
		bus:        b,
	}
}

// BeginLoad must be called before fetching history for key. Every ticket must
// end in Load, or in Abandon when the fetch fails.
func (s *Store) BeginLoad(key Key) Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading[key]++
	return Ticket{key: key, rev: s.rev}
}

// Abandon releases a ticket whose fetch failed.
func (s *Store) Abandon(t Ticket) {
	s.mu.Lock()
	s.release(t.key)
	s.mu.Unlock()
}

// Load replaces the list for t's key with history. Pending messages of in-flight
// sends, and messages reconciled after t was issued that history lacks, are spliced
// back in. A load older than the last accepted load or eviction is discarded.
func (s *Store) Load(t Ticket, history []Message) []Message {
	s.mu.Lock()
	key := t.key
	if t.rev < s.floor[key] {
		s.release(key)
		out := cloneAll(s.convs[key])
		s.mu.Unlock()
		return out
	}

	list := make([]Message, 0, len(history))
	seen := make(map[string]bool, len(history))
	for _, m := range history {
		r := ref(m.ID)
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		m = m.clone()
		m.Key = key
		list = append(list, m)
	}

	kept := s.reconciled[key][:0]
	for _, rc := range s.reconciled[key] {
		if rc.rev <= t.rev {
			continue
		}
		kept = append(kept, rc)
		if r := ref(rc.msg.ID); !seen[r] {
			seen[r] = true
			list = append(list, rc.msg.clone())
		}
	}
	if len(kept) == 0 {
		delete(s.reconciled, key)
	} else {
		s.reconciled[key] = kept
	}

	for _, m := range s.inflight[key] {
		list = append(list, m.clone())
	}

	slices.SortStableFunc(list, byCreatedAt)
	s.convs[key] = list
	s.floor[key] = t.rev
	s.loaded[key] = true
	s.release(key)
	out := cloneAll(list)
	s.mu.Unlock()

	s.changed(key, "load")
	return out
}

// Append inserts msg in createdAt order. It is a no-op when an entry with the same
// identity is already present. Pending messages are also registered as in flight.
func (s *Store) Append(msg Message) bool {
	s.mu.Lock()
	key := msg.Key
	if id, ok := msg.LocalID(); ok {
		if s.inflight[key] == nil {
			s.inflight[key] = make(map[LocalID]Message)
		}
		if _, dup := s.inflight[key][id]; !dup {
			s.inflight[key][id] = msg.clone()
		}
	}
	list := s.convs[key]
	if indexOf(list, msg.ID) >= 0 {
		s.mu.Unlock()
		return false
	}
	s.convs[key] = insertOrdered(list, msg.clone())
	s.mu.Unlock()

	s.changed(key, "append")
	return true
}

// Replace swaps the pending entry localID for the confirmed serverMsg. When no such
// pending entry exists it is a no-op and returns false. A server id that is already
// present (for example brought in by a reload) is not inserted twice.
func (s *Store) Replace(key Key, localID LocalID, serverMsg Message) bool {
	s.mu.Lock()
	_, tracked := s.inflight[key][localID]
	list := s.convs[key]
	idx := indexOf(list, localID)
	if !tracked && idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.dropInflight(key, localID)

	serverMsg = serverMsg.clone()
	serverMsg.Key = key
	s.rev++
	// Only a load already in progress can have fetched history without it.
	if s.loading[key] > 0 {
		s.reconciled[key] = append(s.reconciled[key], reconciled{msg: serverMsg, rev: s.rev})
	}

	if idx < 0 {
		// Conversation evicted meanwhile; a later fetch brings the message.
		s.settle(key)
		s.mu.Unlock()
		return true
	}
	list = slices.Delete(list, idx, idx+1)
	if indexOf(list, serverMsg.ID) < 0 {
		list = insertOrdered(list, serverMsg)
	}
	s.convs[key] = list
	s.settle(key)
	s.mu.Unlock()

	s.changed(key, "replace")
	return true
}

// Remove drops a pending entry outright (rollback of a failed send).
func (s *Store) Remove(key Key, localID LocalID) bool {
	s.mu.Lock()
	_, tracked := s.inflight[key][localID]
	s.dropInflight(key, localID)
	list := s.convs[key]
	idx := indexOf(list, localID)
	if idx >= 0 {
		s.convs[key] = slices.Delete(list, idx, idx+1)
	}
	s.settle(key)
	s.mu.Unlock()

	if idx < 0 {
		return tracked
	}
	s.changed(key, "remove")
	return true
}

// Evict forgets the loaded list for key when the user navigates away. In-flight
// pending messages survive and reappear on the next Load; loads that started
// before the eviction are discarded.
func (s *Store) Evict(key Key) {
	s.mu.Lock()
	_, loaded := s.convs[key]
	delete(s.convs, key)
	delete(s.loaded, key)
	s.rev++
	s.floor[key] = s.rev
	s.settle(key)
	s.mu.Unlock()

	if loaded {
		s.changed(key, "evict")
	}
}

// Messages returns a snapshot of the list for key, oldest first.
func (s *Store) Messages(key Key) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.convs[key])
}

// Loaded reports whether key currently has an in-memory list.
func (s *Store) Loaded(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.convs[key]
	return ok
}

// Pending returns the in-flight messages for key, oldest first.
func (s *Store) Pending(key Key) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, 0, len(s.inflight[key]))
	for _, m := range s.inflight[key] {
		out = append(out, m.clone())
	}
	slices.SortStableFunc(out, byCreatedAt)
	return out
}

func (s *Store) release(key Key) {
	if s.loading[key] > 1 {
		s.loading[key]--
		return
	}
	delete(s.loading, key)
	delete(s.reconciled, key)
	s.settle(key)
}

// settle forgets a key nobody loaded once it has no sends or loads in flight,
// so sends to conversations that are never opened leave nothing behind.
func (s *Store) settle(key Key) {
	if s.loaded[key] || s.loading[key] > 0 || len(s.inflight[key]) > 0 {
		return
	}
	delete(s.convs, key)
	delete(s.reconciled, key)
	delete(s.floor, key)
}

func (s *Store) dropInflight(key Key, id LocalID) {
	pending := s.inflight[key]
	delete(pending, id)
	if len(pending) == 0 {
		delete(s.inflight, key)
	}
}

func (s *Store) changed(key Key, reason string) {
	s.bus.Emit(bus.KindConversationChanged, Change{Key: key, Reason: reason})
}

func indexOf(list []Message, id Identity) int {
	r := ref(id)
	return slices.IndexFunc(list, func(m Message) bool { return ref(m.ID) == r })
}

// insertOrdered places m after every entry created at or before it.
func insertOrdered(list []Message, m Message) []Message {
	i := slices.IndexFunc(list, func(e Message) bool { return e.CreatedAt.After(m.CreatedAt) })
	if i < 0 {
		return append(list, m)
	}
	return slices.Insert(list, i, m)
}

func byCreatedAt(a, b Message) int {
	return a.CreatedAt.Compare(b.CreatedAt)
}

func cloneAll(list []Message) []Message {
	if list == nil {
		return nil
	}
	out := make([]Message, len(list))
	for i, m := range list {
		out[i] = m.clone()
	}
	return out
}
