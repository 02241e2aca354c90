// Package serverstate tracks gateway liveness (not_ready/ready/draining) and
// optionally mirrors it into a shared store so operators of multi-process
// deployments can see each gateway's status.
package serverstate

import (
	"sync"
	"time"
)

// Status values.
const (
	StatusNotReady = "not_ready"
	StatusReady    = "ready"
	StatusDraining = "draining"
)

// State is the externally visible gateway status snapshot.
type State struct {
	Status    string `json:"status"`
	Sessions  int    `json:"sessions"`
	Instances []int  `json:"instances,omitempty"`
	UpdatedAt int64  `json:"updated_at"`
}

// Store persists a State snapshot.
type Store interface {
	Load() State
	Save(State)
}

// memStore keeps the snapshot in memory.
type memStore struct {
	mu sync.Mutex
	st State
}

// NewMemStore returns an in-memory Store.
func NewMemStore() Store { return &memStore{st: State{Status: StatusNotReady}} }

func (m *memStore) Load() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st
}

func (m *memStore) Save(st State) {
	m.mu.Lock()
	m.st = st
	m.mu.Unlock()
}

// Tracker is the mutable status holder owned by the process. Every change is
// mirrored into the configured store.
type Tracker struct {
	mu       sync.Mutex
	cur      State
	draining bool
	store    Store
}

// NewTracker builds a tracker mirroring into store. A nil store uses memory.
func NewTracker(store Store) *Tracker {
	if store == nil {
		store = NewMemStore()
	}
	t := &Tracker{store: store, cur: State{Status: StatusNotReady}}
	t.mu.Lock()
	t.flushLocked()
	t.mu.Unlock()
	return t
}

// SetStatus sets the status string unless the tracker is draining.
func (t *Tracker) SetStatus(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.draining {
		return
	}
	t.cur.Status = status
	t.flushLocked()
}

// Update records the current session count and registered instances.
func (t *Tracker) Update(sessions int, instances []int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cur.Sessions = sessions
	t.cur.Instances = instances
	t.flushLocked()
}

// StartDrain marks the gateway as draining; the status no longer changes.
func (t *Tracker) StartDrain() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.draining = true
	t.cur.Status = StatusDraining
	t.flushLocked()
}

// IsDraining reports whether StartDrain was called.
func (t *Tracker) IsDraining() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.draining
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur
}

func (t *Tracker) flushLocked() {
	t.cur.UpdatedAt = time.Now().UnixMilli()
	t.store.Save(t.cur)
}
