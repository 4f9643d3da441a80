// Package chat holds the rooms that pair two connections: who occupies each
// room, which side initiates the WebRTC negotiation, and the recent chat
// lines kept as report context.
package chat

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/whisper/roulette/internal/session"
)

var (
	// ErrSameConnection is returned when both occupants are the same connection.
	ErrSameConnection = errors.New("chat: room needs two distinct connections")
	// ErrOccupied is returned when a connection already sits in another room.
	ErrOccupied = errors.New("chat: connection already in a room")
)

// Role decides which side sends the WebRTC offer.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// Occupant is one side of a room.
type Occupant struct {
	ConnID  string
	Role    Role
	Profile session.Profile
}

// Room pairs exactly two connections.
type Room struct {
	ID        string
	Occupants [2]Occupant
	CreatedAt time.Time
	buffer    *Buffer
}

// Partner returns the occupant other than connID.
func (r *Room) Partner(connID string) (Occupant, bool) {
	switch connID {
	case r.Occupants[0].ConnID:
		return r.Occupants[1], true
	case r.Occupants[1].ConnID:
		return r.Occupants[0], true
	}
	return Occupant{}, false
}

// Occupant returns the record for connID.
func (r *Room) Occupant(connID string) (Occupant, bool) {
	for _, o := range r.Occupants {
		if o.ConnID == connID {
			return o, true
		}
	}
	return Occupant{}, false
}

// Append records a chat line.
func (r *Room) Append(msg BufferedMessage) { r.buffer.Add(msg) }

// Transcript returns the retained chat lines oldest first.
func (r *Room) Transcript() []BufferedMessage { return r.buffer.Messages() }

// Manager owns all live rooms. It is not safe for concurrent use.
type Manager struct {
	rooms      map[string]*Room
	byConn     map[string]string
	bufferSize int
	newID      func() string
	now        func() time.Time
}

// NewManager creates a manager whose rooms keep bufferSize chat lines.
func NewManager(bufferSize int, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		rooms:      make(map[string]*Room),
		byConn:     make(map[string]string),
		bufferSize: bufferSize,
		newID:      func() string { return uuid.New().String() },
		now:        now,
	}
}

// Create opens a room for a and b. The connection with the smaller id
// becomes the initiator so both sides agree without extra round trips.
func (m *Manager) Create(a, b Occupant) (*Room, error) {
	if a.ConnID == b.ConnID {
		return nil, ErrSameConnection
	}
	if _, ok := m.byConn[a.ConnID]; ok {
		return nil, ErrOccupied
	}
	if _, ok := m.byConn[b.ConnID]; ok {
		return nil, ErrOccupied
	}

	if b.ConnID < a.ConnID {
		a, b = b, a
	}
	a.Role, b.Role = RoleInitiator, RoleResponder
	a.Profile, b.Profile = a.Profile.Clone(), b.Profile.Clone()

	r := &Room{
		ID:        m.newID(),
		Occupants: [2]Occupant{a, b},
		CreatedAt: m.now(),
		buffer:    NewBuffer(m.bufferSize),
	}
	m.rooms[r.ID] = r
	m.byConn[a.ConnID] = r.ID
	m.byConn[b.ConnID] = r.ID
	return r, nil
}

// Get returns the room with id.
func (m *Manager) Get(id string) (*Room, bool) {
	r, ok := m.rooms[id]
	return r, ok
}

// RoomOf returns the room connID occupies.
func (m *Manager) RoomOf(connID string) (*Room, bool) {
	id, ok := m.byConn[connID]
	if !ok {
		return nil, false
	}
	return m.Get(id)
}

// Destroy removes the room and returns it. Destroying an unknown room is a
// no-op.
func (m *Manager) Destroy(id string) (*Room, bool) {
	r, ok := m.rooms[id]
	if !ok {
		return nil, false
	}
	delete(m.rooms, id)
	for _, o := range r.Occupants {
		if m.byConn[o.ConnID] == id {
			delete(m.byConn, o.ConnID)
		}
	}
	return r, true
}

// Len returns the number of live rooms.
func (m *Manager) Len() int { return len(m.rooms) }

// Each calls fn for every room until fn returns false.
func (m *Manager) Each(fn func(*Room) bool) {
	for _, r := range m.rooms {
		if !fn(r) {
			return
		}
	}
}
