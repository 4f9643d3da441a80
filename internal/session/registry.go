package session

import (
	"errors"
	"time"
)

// ErrExists is returned by Register when the connection id is already known.
var ErrExists = errors.New("session: connection already registered")

// Registry maps connection ids to their Connection record. It is not safe
// for concurrent use; the owner serializes access.
type Registry struct {
	conns map[string]*Connection
	now   func() time.Time
}

// NewRegistry creates an empty registry. A nil clock defaults to time.Now.
func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		conns: make(map[string]*Connection),
		now:   now,
	}
}

// Register adds a new IDLE connection.
func (r *Registry) Register(id string) (Connection, error) {
	if _, ok := r.conns[id]; ok {
		return Connection{}, ErrExists
	}
	c := &Connection{
		ID:          id,
		State:       StateIdle,
		ConnectedAt: r.now(),
	}
	r.conns[id] = c
	return *c, nil
}

// Get returns a copy of the connection record.
func (r *Registry) Get(id string) (Connection, bool) {
	c, ok := r.conns[id]
	if !ok {
		return Connection{}, false
	}
	return *c, true
}

// Remove deletes the connection. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	delete(r.conns, id)
}

// SetState moves the connection to state. Entering StateSearching stamps the
// search start time unless the connection was already searching; leaving it
// clears the stamp. Leaving StateInRoom clears the room.
func (r *Registry) SetState(id string, state State) bool {
	c, ok := r.conns[id]
	if !ok {
		return false
	}
	if state == StateSearching && c.State != StateSearching {
		c.SearchStartedAt = r.now()
	}
	if state != StateSearching {
		c.SearchStartedAt = time.Time{}
	}
	if state != StateInRoom {
		c.RoomID = ""
	}
	c.State = state
	return true
}

// SetProfile replaces the profile snapshot with a normalized copy of p. A
// connection that is already searching restarts its wait, since the new
// constraints have not been given any time yet.
func (r *Registry) SetProfile(id string, p Profile) bool {
	c, ok := r.conns[id]
	if !ok {
		return false
	}
	c.Profile = p.Normalized()
	if c.State == StateSearching {
		c.SearchStartedAt = r.now()
	}
	return true
}

// SetRoom records the room the connection occupies and moves it to
// StateInRoom.
func (r *Registry) SetRoom(id, roomID string) bool {
	c, ok := r.conns[id]
	if !ok {
		return false
	}
	c.RoomID = roomID
	c.State = StateInRoom
	c.SearchStartedAt = time.Time{}
	return true
}

// SetPending stores preferences to apply at the next search.
func (r *Registry) SetPending(id string, prefs Preferences) bool {
	c, ok := r.conns[id]
	if !ok {
		return false
	}
	p := prefs.Clone()
	c.Pending = &p
	return true
}

// TakePending returns and clears the stored preferences.
func (r *Registry) TakePending(id string) (Preferences, bool) {
	c, ok := r.conns[id]
	if !ok || c.Pending == nil {
		return Preferences{}, false
	}
	p := *c.Pending
	c.Pending = nil
	return p, true
}

// Len returns the number of registered connections.
func (r *Registry) Len() int { return len(r.conns) }

// Each calls fn for every connection until fn returns false.
func (r *Registry) Each(fn func(Connection) bool) {
	for _, c := range r.conns {
		if !fn(*c) {
			return
		}
	}
}
