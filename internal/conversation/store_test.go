package conversation

import (
	"testing"
	"time"

	"github.com/matheus3301/inbox/internal/bus"
)

var (
	me   = User{ID: "u1", Name: "Admin"}
	them = User{ID: "u42", Name: "Ayşe"}
	key  = NewKey(me.ID, them.ID)
	t0   = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
)

func serverMsg(id string, at time.Duration, content string) Message {
	return Message{
		ID: ServerID(id), Key: key, Sender: them, Receiver: me,
		Content: content, CreatedAt: t0.Add(at), State: Sent,
	}
}

func pendingMsg(content string, at time.Duration) Message {
	return Message{
		ID: NewLocalID(), Key: key, Sender: me, Receiver: them,
		Content: content, CreatedAt: t0.Add(at), State: Pending,
	}
}

func contents(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestKeyOrderIndependent(t *testing.T) {
	if NewKey("a", "b") != NewKey("b", "a") {
		t.Fatal("NewKey is order dependent")
	}
	k := NewKey("u1", "u42")
	if k.Other("u1") != "u42" || k.Other("u42") != "u1" {
		t.Errorf("Other() wrong: %v", k)
	}
	if !k.Has("u42") || k.Has("u7") || k.Has("") {
		t.Error("Has() wrong")
	}
	if (Key{}).IsZero() != true || k.IsZero() {
		t.Error("IsZero() wrong")
	}
}

func TestIdentityNamespaces(t *testing.T) {
	local := NewLocalID()
	if !IsLocal(local.String()) {
		t.Errorf("%q not recognised as local", local)
	}
	if _, ok := ParseIdentity(local.String()).(LocalID); !ok {
		t.Error("ParseIdentity lost the local variant")
	}
	if _, ok := ParseIdentity("m1").(ServerID); !ok {
		t.Error("ParseIdentity lost the server variant")
	}
	// Same raw text in different namespaces must not collide.
	if ref(LocalID("x")) == ref(ServerID("x")) {
		t.Error("local and server refs collide")
	}
}

func TestAppendIdempotentOnServerID(t *testing.T) {
	s := NewStore(nil)
	s.Load(s.BeginLoad(key), []Message{serverMsg("m1", 0, "selam")})

	before := s.Messages(key)
	if s.Append(serverMsg("m1", time.Minute, "duplicate")) {
		t.Error("Append reported a change for an existing server id")
	}
	after := s.Messages(key)
	if len(after) != len(before) || after[0].Content != "selam" {
		t.Errorf("store changed: %v", contents(after))
	}
}

func TestAppendKeepsCreatedAtOrder(t *testing.T) {
	s := NewStore(nil)
	s.Append(serverMsg("m3", 3*time.Minute, "three"))
	s.Append(serverMsg("m1", 1*time.Minute, "one"))
	s.Append(serverMsg("m2", 2*time.Minute, "two"))
	s.Append(serverMsg("m4", 2*time.Minute, "two-bis"))

	got := contents(s.Messages(key))
	want := []string{"one", "two", "two-bis", "three"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestReplaceLeavesExactlyOneServerMessage(t *testing.T) {
	s := NewStore(nil)
	s.Load(s.BeginLoad(key), nil)
	p := pendingMsg("Merhaba", 0)
	s.Append(p)
	local, _ := p.LocalID()

	confirmed := serverMsg("m1", time.Second, "Merhaba")
	confirmed.Sender, confirmed.Receiver = me, them
	if !s.Replace(key, local, confirmed) {
		t.Fatal("Replace reported no-op")
	}

	msgs := s.Messages(key)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if id, ok := msgs[0].ServerID(); !ok || id != "m1" {
		t.Errorf("ID = %v, want server m1", msgs[0].ID)
	}
	if !msgs[0].CreatedAt.Equal(t0.Add(time.Second)) {
		t.Errorf("CreatedAt = %v, want server timestamp", msgs[0].CreatedAt)
	}
	if len(s.Pending(key)) != 0 {
		t.Error("pending registry not cleared")
	}
}

func TestReplaceWhenServerIDAlreadyLoaded(t *testing.T) {
	s := NewStore(nil)
	p := pendingMsg("hi", 0)
	s.Append(p)
	local, _ := p.LocalID()

	// A reload raced ahead and already brought the confirmed copy in.
	s.Load(s.BeginLoad(key), []Message{serverMsg("m1", time.Second, "hi")})
	if got := len(s.Messages(key)); got != 2 {
		t.Fatalf("after reload got %d messages, want 2 (server + re-spliced pending)", got)
	}

	s.Replace(key, local, serverMsg("m1", time.Second, "hi"))
	msgs := s.Messages(key)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (no duplicate)", len(msgs))
	}
}

func TestReplaceNoOpWithoutLocalEntry(t *testing.T) {
	s := NewStore(nil)
	s.Append(serverMsg("m1", 0, "x"))
	if s.Replace(key, LocalID("local-missing"), serverMsg("m2", 0, "y")) {
		t.Error("Replace without a local entry should be a no-op")
	}
	if got := len(s.Messages(key)); got != 1 {
		t.Errorf("got %d messages, want 1", got)
	}
}

func TestRemoveRollsBackPending(t *testing.T) {
	s := NewStore(nil)
	p := pendingMsg("will fail", 0)
	s.Append(p)
	local, _ := p.LocalID()

	if !s.Remove(key, local) {
		t.Fatal("Remove reported no-op")
	}
	if got := len(s.Messages(key)); got != 0 {
		t.Errorf("got %d messages after rollback, want 0", got)
	}
	if s.Remove(key, local) {
		t.Error("second Remove should be a no-op")
	}
}

// TestLoadResplicesPending covers the main hazard: a history reload that completes
// while a send is in flight must not drop the optimistic message.
func TestLoadResplicesPending(t *testing.T) {
	s := NewStore(nil)
	s.Load(s.BeginLoad(key), []Message{serverMsg("m1", 0, "old")})

	ticket := s.BeginLoad(key)
	p := pendingMsg("typed just now", time.Hour)
	s.Append(p)

	msgs := s.Load(ticket, []Message{serverMsg("m1", 0, "old"), serverMsg("m2", time.Minute, "new")})
	got := contents(msgs)
	if len(got) != 3 || got[2] != "typed just now" {
		t.Fatalf("got %v, want pending re-spliced at the end", got)
	}
	if !msgs[2].IsPending() {
		t.Error("re-spliced message lost its pending identity")
	}
}

// TestLoadKeepsMessagesReconciledDuringFetch covers a fetch that started before a
// send was confirmed and returns history without it.
func TestLoadKeepsMessagesReconciledDuringFetch(t *testing.T) {
	s := NewStore(nil)
	p := pendingMsg("racing", time.Minute)
	s.Append(p)
	local, _ := p.LocalID()

	ticket := s.BeginLoad(key)
	s.Replace(key, local, serverMsg("m9", time.Minute, "racing"))

	msgs := s.Load(ticket, []Message{serverMsg("m1", 0, "old")})
	if len(msgs) != 2 {
		t.Fatalf("got %v, want old + reconciled", contents(msgs))
	}
	if id, _ := msgs[1].ServerID(); id != "m9" {
		t.Errorf("second message = %v, want m9", msgs[1].ID)
	}

	// A later fetch that includes it does not duplicate it.
	msgs = s.Load(s.BeginLoad(key), []Message{serverMsg("m1", 0, "old"), serverMsg("m9", time.Minute, "racing")})
	if len(msgs) != 2 {
		t.Errorf("got %d messages, want 2", len(msgs))
	}
}

func TestEvictDiscardsOlderLoadsButKeepsPending(t *testing.T) {
	s := NewStore(nil)
	stale := s.BeginLoad(key)
	p := pendingMsg("in flight", 0)
	s.Append(p)

	s.Evict(key)
	if s.Loaded(key) {
		t.Fatal("conversation still loaded after Evict")
	}
	if msgs := s.Load(stale, []Message{serverMsg("m1", 0, "x")}); msgs != nil {
		t.Errorf("stale load resurrected conversation: %v", contents(msgs))
	}

	msgs := s.Load(s.BeginLoad(key), nil)
	if len(msgs) != 1 || !msgs[0].IsPending() {
		t.Errorf("got %v, want the in-flight message back", contents(msgs))
	}
}

func TestReplaceAfterEvictSurfacesOnNextLoad(t *testing.T) {
	s := NewStore(nil)
	p := pendingMsg("left the page", 0)
	s.Append(p)
	local, _ := p.LocalID()
	s.Evict(key)

	ticket := s.BeginLoad(key)
	if !s.Replace(key, local, serverMsg("m5", 0, "left the page")) {
		t.Fatal("Replace after evict should still reconcile")
	}
	msgs := s.Load(ticket, nil)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if _, ok := msgs[0].ServerID(); !ok {
		t.Error("reconciled message should carry the server id")
	}
}

func TestSettledSendToUnopenedConversationLeavesNothing(t *testing.T) {
	s := NewStore(nil)
	sent := pendingMsg("from the cli", 0)
	failed := pendingMsg("never arrives", time.Second)
	s.Append(sent)
	s.Append(failed)
	sentID, _ := sent.LocalID()
	failedID, _ := failed.LocalID()

	s.Replace(key, sentID, serverMsg("m1", 0, "from the cli"))
	if !s.Loaded(key) {
		t.Fatal("list dropped while a send is still pending")
	}
	s.Remove(key, failedID)

	if s.Loaded(key) {
		t.Error("conversation list kept after its sends settled")
	}
	if len(s.convs) != 0 || len(s.reconciled) != 0 || len(s.floor) != 0 || len(s.inflight) != 0 {
		t.Errorf("leftover state: convs=%d reconciled=%d floor=%d inflight=%d",
			len(s.convs), len(s.reconciled), len(s.floor), len(s.inflight))
	}
}

func TestReconciledDroppedOnceNoLoadCanMissIt(t *testing.T) {
	s := NewStore(nil)
	s.Load(s.BeginLoad(key), nil)

	for i, id := range []string{"m1", "m2", "m3"} {
		at := time.Duration(i) * time.Second
		p := pendingMsg("hi", at)
		s.Append(p)
		local, _ := p.LocalID()
		s.Replace(key, local, serverMsg(id, at, "hi"))
	}
	if n := len(s.reconciled[key]); n != 0 {
		t.Errorf("reconciled holds %d entries with no load in progress, want 0", n)
	}
	if got := len(s.Messages(key)); got != 3 {
		t.Errorf("got %d messages, want 3", got)
	}

	ticket := s.BeginLoad(key)
	p := pendingMsg("racing", time.Minute)
	s.Append(p)
	local, _ := p.LocalID()
	s.Replace(key, local, serverMsg("m9", time.Minute, "racing"))
	if n := len(s.reconciled[key]); n != 1 {
		t.Fatalf("reconciled holds %d entries during a load, want 1", n)
	}
	s.Abandon(ticket)
	if n := len(s.reconciled[key]); n != 0 {
		t.Errorf("reconciled holds %d entries after the load was abandoned, want 0", n)
	}
	if len(s.loading) != 0 {
		t.Errorf("loading = %v after every ticket ended", s.loading)
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	s := NewStore(nil)
	m := serverMsg("m1", 0, "x")
	m.Attachments = []Attachment{{ID: ServerID("a1"), Name: "cv.pdf"}}
	s.Append(m)

	snap := s.Messages(key)
	snap[0].Content = "mutated"
	snap[0].Attachments[0].Name = "mutated.pdf"

	again := s.Messages(key)
	if again[0].Content != "x" || again[0].Attachments[0].Name != "cv.pdf" {
		t.Error("caller mutation leaked into the store")
	}
}

func TestMutationsPublishChanges(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("conversation.", 10)
	defer unsub()

	s := NewStore(b)
	s.Append(serverMsg("m1", 0, "x"))

	select {
	case evt := <-ch:
		change, ok := evt.Payload.(Change)
		if !ok {
			t.Fatalf("payload type = %T", evt.Payload)
		}
		if change.Key != key || change.Reason != "append" {
			t.Errorf("change = %+v", change)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for conversation.changed")
	}
}
