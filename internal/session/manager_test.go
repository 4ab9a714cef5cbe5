package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// recordingSender captures broadcasts and can simulate dead connections.
type recordingSender struct {
	mu   sync.Mutex
	sent map[string][]string // connID -> snapshots received
	dead map[string]bool
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: make(map[string][]string), dead: make(map[string]bool)}
}

func (s *recordingSender) Send(connID string, snapshot json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead[connID] {
		return fmt.Errorf("connection %s is gone", connID)
	}
	s.sent[connID] = append(s.sent[connID], string(snapshot))
	return nil
}

func (s *recordingSender) received(connID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent[connID]...)
}

// gatedSender blocks delivery of one chosen snapshot until released,
// exposing any window between storing a snapshot and broadcasting it.
type gatedSender struct {
	*recordingSender
	gateOn  string
	entered chan struct{}
	release chan struct{}
}

func (s *gatedSender) Send(connID string, snapshot json.RawMessage) error {
	if string(snapshot) == s.gateOn {
		close(s.entered)
		<-s.release
	}
	return s.recordingSender.Send(connID, snapshot)
}

func snap(s string) json.RawMessage { return json.RawMessage(s) }

func TestCreateAndJoin(t *testing.T) {
	sender := newRecordingSender()
	m := NewManager(sender)

	if err := m.Create("k1", snap(`{"v":1}`), "c1"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Create("k1", snap(`{"v":2}`), "c2"); !errors.Is(err, ErrKeyInUse) {
		t.Errorf("expected ErrKeyInUse, got %v", err)
	}
	if err := m.Create("", snap(`{}`), "c1"); err == nil {
		t.Error("expected error for empty key")
	}

	got, err := m.Join("k1", "c1")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if string(got) != `{"v":1}` {
		t.Errorf("joined snapshot = %s", got)
	}

	if _, err := m.Join("nope", "c1"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestCreateDoesNotAutoJoin(t *testing.T) {
	m := NewManager(newRecordingSender())
	if err := m.Create("k1", snap(`{}`), "creator"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	// The creator has no group until it joins explicitly; a created but
	// never-joined group keeps its key reserved.
	if _, ok := m.GroupOf("creator"); ok {
		t.Error("creator must not be a member before joining")
	}
	if err := m.Create("k1", snap(`{}`), "other"); !errors.Is(err, ErrKeyInUse) {
		t.Errorf("expected ErrKeyInUse, got %v", err)
	}
}

func TestUpdateBroadcastsToAllMembers(t *testing.T) {
	sender := newRecordingSender()
	m := NewManager(sender)
	m.Create("k1", snap(`{"v":1}`), "c1")
	m.Join("k1", "c1")
	m.Join("k1", "c2")

	m.Update("k1", snap(`{"v":2}`), "c1")

	// Both members receive the new snapshot, the sender included: the
	// echo acts as the acknowledgement.
	for _, conn := range []string{"c1", "c2"} {
		got := sender.received(conn)
		if len(got) != 1 || got[0] != `{"v":2}` {
			t.Errorf("%s received %v, want the new snapshot", conn, got)
		}
	}

	// Later joiners see the latest snapshot.
	got, err := m.Join("k1", "c3")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if string(got) != `{"v":2}` {
		t.Errorf("late join snapshot = %s", got)
	}
}

func TestConcurrentUpdatesDeliverInStorageOrder(t *testing.T) {
	sender := &gatedSender{
		recordingSender: newRecordingSender(),
		gateOn:          `{"v":"first"}`,
		entered:         make(chan struct{}),
		release:         make(chan struct{}),
	}
	m := NewManager(sender)
	m.Create("k1", snap(`{"v":0}`), "c1")
	if _, err := m.Join("k1", "c1"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.Update("k1", snap(`{"v":"first"}`), "c1")
	}()
	// Wait until the first update has stored its snapshot and is stuck
	// mid-broadcast, then race a second update against the delivery.
	<-sender.entered
	go func() {
		defer wg.Done()
		m.Update("k1", snap(`{"v":"second"}`), "c1")
	}()
	time.Sleep(20 * time.Millisecond)
	close(sender.release)
	wg.Wait()

	// The member must observe snapshots in the order they were stored,
	// ending on the group's final state; a stale snapshot delivered last
	// would leave the member diverged from the group.
	got := sender.received("c1")
	want := []string{`{"v":"first"}`, `{"v":"second"}`}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("member received %v, want %v", got, want)
	}
	stored, err := m.Snapshot("c1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if string(stored) != got[len(got)-1] {
		t.Errorf("member converged on %q but the group stores %q", got[len(got)-1], stored)
	}
}

func TestUpdateUnknownKeyIsNoop(t *testing.T) {
	sender := newRecordingSender()
	m := NewManager(sender)
	m.Update("ghost", snap(`{}`), "c1")
	if len(sender.sent) != 0 {
		t.Errorf("unexpected broadcasts: %v", sender.sent)
	}
}

func TestBroadcastSurvivesDeadMember(t *testing.T) {
	sender := newRecordingSender()
	m := NewManager(sender)
	m.Create("k1", snap(`{"v":1}`), "dead")
	m.Join("k1", "dead")
	m.Join("k1", "alive")
	sender.mu.Lock()
	sender.dead["dead"] = true
	sender.mu.Unlock()

	m.Update("k1", snap(`{"v":2}`), "alive")

	if got := sender.received("alive"); len(got) != 1 {
		t.Errorf("healthy member missed the broadcast: %v", got)
	}
}

func TestLeaveFreesEmptyGroup(t *testing.T) {
	sender := newRecordingSender()
	m := NewManager(sender)
	m.Create("k1", snap(`{"v":1}`), "c1")
	m.Join("k1", "c1")
	m.Join("k1", "c2")

	m.Leave("c1")
	if _, err := m.Join("k1", "c3"); err != nil {
		t.Fatalf("group died while a member remained: %v", err)
	}
	m.Leave("c2")
	m.Leave("c3")

	// Last member gone: the key is free again.
	if _, err := m.Join("k1", "c4"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound after group freed, got %v", err)
	}
	if err := m.Create("k1", snap(`{"v":9}`), "c4"); err != nil {
		t.Errorf("key not reusable after group freed: %v", err)
	}
}

func TestCreatorLeaveFreesUnjoinedGroup(t *testing.T) {
	m := NewManager(newRecordingSender())
	m.Create("orphan", snap(`{"v":1}`), "c1")
	m.Leave("c1")

	// Nobody ever joined and the only holder of the key is gone.
	if _, err := m.Join("orphan", "c2"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound after creator left, got %v", err)
	}
	if err := m.Create("orphan", snap(`{"v":2}`), "c2"); err != nil {
		t.Errorf("key not reusable after creator left: %v", err)
	}
}

func TestJoinedGroupSurvivesCreatorLeave(t *testing.T) {
	m := NewManager(newRecordingSender())
	m.Create("k1", snap(`{"v":1}`), "c1")
	m.Join("k1", "c2")

	// The creator disconnects without ever joining; the group now belongs
	// to its members.
	m.Leave("c1")
	if _, err := m.Join("k1", "c3"); err != nil {
		t.Errorf("group with members died with its creator: %v", err)
	}
}

func TestCreatorCanJoinOwnGroupAfterSwitching(t *testing.T) {
	m := NewManager(newRecordingSender())
	m.Create("mine", snap(`{"v":1}`), "c1")
	m.Create("other", snap(`{"v":2}`), "c2")
	m.Join("other", "c1")

	// Switching groups is not a disconnect; the created key stays
	// reserved until its creator actually goes away.
	if _, err := m.Join("mine", "c1"); err != nil {
		t.Fatalf("creator could not come back to its own group: %v", err)
	}
}

func TestConnectionBelongsToOneGroup(t *testing.T) {
	sender := newRecordingSender()
	m := NewManager(sender)
	m.Create("k1", snap(`{"v":1}`), "c1")
	m.Create("k2", snap(`{"v":2}`), "c1")
	m.Join("k1", "c1")
	m.Join("k1", "c2") // keeps k1 alive
	m.Join("k2", "c1")

	if key, _ := m.GroupOf("c1"); key != "k2" {
		t.Errorf("c1 in group %q, want k2", key)
	}

	// c1 must no longer receive k1 broadcasts.
	m.Update("k1", snap(`{"v":3}`), "c2")
	if got := sender.received("c1"); len(got) != 0 {
		t.Errorf("c1 got k1 broadcast after switching groups: %v", got)
	}
}

func TestSnapshotForConnection(t *testing.T) {
	m := NewManager(newRecordingSender())
	m.Create("k1", snap(`{"v":1}`), "c1")
	m.Join("k1", "c1")

	got, err := m.Snapshot("c1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if string(got) != `{"v":1}` {
		t.Errorf("snapshot = %s", got)
	}
	if _, err := m.Snapshot("stranger"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}
