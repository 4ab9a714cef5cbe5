// Package session maintains the named groups of collaborating connections.
// Each group holds one authoritative tree snapshot, treated as opaque
// bytes; consistency is last-writer-wins at whole-snapshot granularity.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
)

var (
	// ErrKeyInUse is returned when creating a group whose key is taken.
	ErrKeyInUse = errors.New("group key already in use")
	// ErrKeyNotFound is returned when joining or reading a group that
	// does not exist (or has been freed after its last member left).
	ErrKeyNotFound = errors.New("no group with that key")
)

// Sender delivers a snapshot to one connection. Delivery is best-effort:
// the manager logs failures and carries on, so one dead member never
// blocks a broadcast to the rest.
type Sender interface {
	Send(connID string, snapshot json.RawMessage) error
}

type group struct {
	members  map[string]bool
	snapshot json.RawMessage
	// creator is the connection that registered the key. It is only
	// consulted while the group has no members, to reclaim keys whose
	// creator disconnected before anyone joined.
	creator string
}

// Manager owns all active groups and the connection-to-group mapping.
// Every operation takes the one mutex, which serializes group updates:
// there is no per-node merging to interleave, only whole-snapshot
// replacement.
type Manager struct {
	mu     sync.Mutex
	sender Sender
	groups map[string]*group
	byConn map[string]string // connection id -> group key
}

// NewManager returns a manager broadcasting through sender.
func NewManager(sender Sender) *Manager {
	return &Manager{
		sender: sender,
		groups: make(map[string]*group),
		byConn: make(map[string]string),
	}
}

// Create registers a new group under key holding snapshot, on behalf of
// connection connID. The creator is not enrolled as a member; joining is a
// separate, explicit step. A group nobody has joined lives only as long as
// its creator's connection.
func (m *Manager) Create(key string, snapshot json.RawMessage, connID string) error {
	if key == "" {
		return errors.New("empty group key")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.groups[key]; ok {
		return fmt.Errorf("%w: %q", ErrKeyInUse, key)
	}
	m.groups[key] = &group{
		members:  make(map[string]bool),
		snapshot: snapshot,
		creator:  connID,
	}
	return nil
}

// Join adds the connection to the group and returns its current snapshot.
// A connection belongs to at most one group, so joining implicitly leaves
// any previous one.
func (m *Manager) Join(key, connID string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.groups[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	m.leaveLocked(connID)
	g.members[connID] = true
	m.byConn[connID] = key
	return g.snapshot, nil
}

// Update replaces the group's snapshot and broadcasts it to every member,
// including the sender: the echo doubles as an acknowledgement and keeps
// last-writer-wins convergence trivial. The lock stays held through the
// broadcast so each member observes snapshots in storage order; sending
// after unlocking would let a concurrent update overtake this one in
// flight and leave members converged on an overwritten snapshot. Updates
// for unknown keys are dropped silently, matching the fire-and-forget
// protocol.
func (m *Manager) Update(key string, snapshot json.RawMessage, from string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.groups[key]
	if !ok {
		return
	}
	g.snapshot = snapshot
	for id := range g.members {
		if err := m.sender.Send(id, snapshot); err != nil {
			log.Printf("session: send to %s in group %q: %v", id, key, err)
		}
	}
}

// Snapshot returns the current snapshot of the group the connection
// belongs to, used to answer explicit tree requests after reconnects.
func (m *Manager) Snapshot(connID string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, ok := m.byConn[connID]
	if !ok {
		return nil, ErrKeyNotFound
	}
	g, ok := m.groups[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	return g.snapshot, nil
}

// GroupOf returns the key of the group the connection belongs to.
func (m *Manager) GroupOf(connID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.byConn[connID]
	return key, ok
}

// Leave removes the connection from its group, if any. A group whose last
// member leaves is destroyed, freeing the key for reuse. Groups the
// connection created that nobody ever joined are destroyed too; the only
// holder of the key is gone, so the key would otherwise leak forever.
func (m *Manager) Leave(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaveLocked(connID)
	for key, g := range m.groups {
		if g.creator == connID && len(g.members) == 0 {
			delete(m.groups, key)
			log.Printf("session: group %q lost its creator before anyone joined, freed", key)
		}
	}
}

func (m *Manager) leaveLocked(connID string) {
	key, ok := m.byConn[connID]
	if !ok {
		return
	}
	delete(m.byConn, connID)
	g, ok := m.groups[key]
	if !ok {
		return
	}
	delete(g.members, connID)
	if len(g.members) == 0 {
		delete(m.groups, key)
		log.Printf("session: group %q empty, freed", key)
	}
}
