// Package room tracks which connection occupies which chat room and routes
// join, send, and disconnect events to the right room members.
package room

import (
	"slices"
	"sync"
)

// ConnID identifies one live connection. It is assigned by the transport.
type ConnID string

type entry struct {
	name string
	room string
	// seq orders members by the time they entered their current room.
	seq uint64
}

// Registry holds the display name and current room of every connection.
// A connection is in at most one room at a time. All methods are safe for
// concurrent use and total over any connection id.
type Registry struct {
	mu    sync.RWMutex
	conns map[ConnID]*entry
	seq   uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[ConnID]*entry)}
}

func (r *Registry) lookup(id ConnID) *entry {
	e, ok := r.conns[id]
	if !ok {
		e = &entry{}
		r.conns[id] = e
	}
	return e
}

// SetName stores the display name for id, replacing any earlier one.
// Names are not checked for uniqueness.
func (r *Registry) SetName(id ConnID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookup(id).name = name
}

// Name returns the stored display name, or "" if none was set.
func (r *Registry) Name(id ConnID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.name
	}
	return ""
}

// CurrentRoom returns the room id occupies, if any.
func (r *Registry) CurrentRoom(id ConnID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok || e.room == "" {
		return "", false
	}
	return e.room, true
}

// Enter moves id into room, implicitly leaving any previous room.
func (r *Registry) Enter(id ConnID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	e := r.lookup(id)
	e.room = room
	e.seq = r.seq
}

// LeaveCurrentRoom clears the room association of id. The caller is
// responsible for notifying the remaining members.
func (r *Registry) LeaveCurrentRoom(id ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[id]; ok {
		e.room = ""
		e.seq = 0
	}
}

// Forget discards everything known about id.
func (r *Registry) Forget(id ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

// Members returns the connections currently in room, in the order they
// entered it.
func (r *Registry) Members(room string) []ConnID {
	if room == "" {
		return nil
	}

	r.mu.RLock()
	type member struct {
		id  ConnID
		seq uint64
	}
	var found []member
	for id, e := range r.conns {
		if e.room == room {
			found = append(found, member{id: id, seq: e.seq})
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(found, func(a, b member) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		default:
			return 0
		}
	})

	ids := make([]ConnID, len(found))
	for i, m := range found {
		ids[i] = m.id
	}
	return ids
}

// Occupancy returns the number of connections in each non-empty room.
func (r *Registry) Occupancy() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int)
	for _, e := range r.conns {
		if e.room != "" {
			counts[e.room]++
		}
	}
	return counts
}

// Len returns the number of connections the registry knows about.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
