// Package session keeps per-user conversation state in memory. Loss on
// restart is acceptable: sessions are transient, the durable profile
// lives in storage.
//
// The manager guarantees at most one in-flight transition per user:
// Do locks the user's entry for the whole read-transition-write cycle,
// so two concurrent events for the same identity can never observe
// stale state. Different users proceed in parallel.
package session

import (
	"sync"

	"github.com/m3rciful/aromabot/internal/engine"
)

type entry struct {
	mu    sync.Mutex
	state engine.State
	acc   engine.Accumulated
}

// Manager owns all live sessions.
type Manager struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

// NewManager returns an empty session manager.
func NewManager() *Manager {
	return &Manager{entries: make(map[int64]*entry)}
}

func (m *Manager) entryFor(userID int64) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[userID]
	if !ok {
		e = &entry{state: engine.StateRoot}
		m.entries[userID] = e
	}
	return e
}

// Do runs fn with the user's current state under the per-user lock and
// stores whatever fn returns. fn must not call back into the manager
// for the same user.
func (m *Manager) Do(userID int64, fn func(st engine.State, acc engine.Accumulated) (engine.State, engine.Accumulated)) {
	e := m.entryFor(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state, e.acc = fn(e.state, e.acc)
}

// State returns the user's current state, StateRoot when no session exists.
func (m *Manager) State(userID int64) engine.State {
	m.mu.Lock()
	e, ok := m.entries[userID]
	m.mu.Unlock()
	if !ok {
		return engine.StateRoot
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Set replaces the user's state and accumulated answers outright.
// Command handlers use it for unconditional transitions.
func (m *Manager) Set(userID int64, st engine.State, acc engine.Accumulated) {
	e := m.entryFor(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = st
	e.acc = acc
}

// Reset returns the user to the root state with no accumulated answers.
func (m *Manager) Reset(userID int64) {
	m.Set(userID, engine.StateRoot, engine.Accumulated{})
}
