// Package queue holds FIFO matchmaking queues, one per mode.
package queue

import (
	"sync"
	"time"
)

// Ticket is a queued player.
type Ticket struct {
	PlayerID string
	Name     string
	JoinedAt time.Time
}

// Queue is a snapshot of one mode's waiting players.
type Queue struct {
	Mode     string
	Capacity int
	Tickets  []Ticket
}

type lane struct {
	capacity int
	tickets  []Ticket
}

// Manager owns every queue. A player may wait in at most one queue at a time.
type Manager struct {
	mu    sync.Mutex
	lanes map[string]*lane
	now   func() time.Time
}

// NewManager creates queues for the given modes with their capacities.
func NewManager(capacities map[string]int) *Manager {
	m := &Manager{lanes: make(map[string]*lane, len(capacities)), now: time.Now}
	for mode, capacity := range capacities {
		m.lanes[mode] = &lane{capacity: capacity}
	}
	return m
}

// Join appends a player to a mode's queue and returns their 1-based position.
func (m *Manager) Join(mode, playerID, name string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.lanes[mode]
	if !ok {
		return 0, ErrNotFound
	}
	if _, _, found := m.locate(playerID); found {
		return 0, ErrAlreadyIn
	}
	if l.capacity > 0 && len(l.tickets) >= l.capacity {
		return 0, ErrFull
	}
	l.tickets = append(l.tickets, Ticket{PlayerID: playerID, Name: name, JoinedAt: m.now()})
	return len(l.tickets), nil
}

// Leave removes a player from whichever queue holds them and returns that mode.
func (m *Manager) Leave(playerID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mode, i, found := m.locate(playerID)
	if !found {
		return "", ErrNotIn
	}
	l := m.lanes[mode]
	l.tickets = append(l.tickets[:i], l.tickets[i+1:]...)
	return mode, nil
}

// Pop removes and returns the n oldest tickets of a mode, or nothing if fewer are waiting.
func (m *Manager) Pop(mode string, n int) ([]Ticket, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.lanes[mode]
	if !ok || n <= 0 || len(l.tickets) < n {
		return nil, false
	}
	out := append([]Ticket(nil), l.tickets[:n]...)
	l.tickets = append(l.tickets[:0], l.tickets[n:]...)
	return out, true
}

// Requeue puts tickets back at the head of a mode's queue, preserving their order.
func (m *Manager) Requeue(mode string, tickets []Ticket) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.lanes[mode]
	if !ok {
		return
	}
	l.tickets = append(append([]Ticket(nil), tickets...), l.tickets...)
}

// Size returns the number of players waiting for a mode.
func (m *Manager) Size(mode string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.lanes[mode]; ok {
		return len(l.tickets)
	}
	return 0
}

// Position returns the mode and 1-based position of a waiting player.
func (m *Manager) Position(playerID string) (string, int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mode, i, found := m.locate(playerID)
	return mode, i + 1, found
}

// Queues returns copies of every queue.
func (m *Manager) Queues() []Queue {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Queue, 0, len(m.lanes))
	for mode, l := range m.lanes {
		out = append(out, Queue{Mode: mode, Capacity: l.capacity, Tickets: append([]Ticket(nil), l.tickets...)})
	}
	return out
}

// locate must be called with mu held.
func (m *Manager) locate(playerID string) (string, int, bool) {
	for mode, l := range m.lanes {
		for i, t := range l.tickets {
			if t.PlayerID == playerID {
				return mode, i, true
			}
		}
	}
	return "", -1, false
}
