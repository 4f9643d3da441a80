// Package session owns the per-connection state of the matchmaking engine:
// lifecycle state, the profile snapshot taken when a search starts, and the
// room the connection currently occupies. A Redis presence mirror publishes a
// best-effort copy of that state for other processes.
package session

import "time"

// State is the lifecycle state of a single connection.
type State string

const (
	// StateIdle is connected and neither searching nor chatting.
	StateIdle State = "IDLE"
	// StateSearching is waiting in the pool for a partner.
	StateSearching State = "SEARCHING"
	// StateInRoom is paired with exactly one partner.
	StateInRoom State = "IN_ROOM"
)

// Connection is the registry's record for one live client connection.
type Connection struct {
	ID              string
	State           State
	Profile         Profile   // snapshot taken at the last start-search
	RoomID          string    // set only while StateInRoom
	SearchStartedAt time.Time // set only while StateSearching
	ConnectedAt     time.Time

	// Pending holds preferences from the most recent settings update. The
	// next search consumes them; an explicit start-search filter wins.
	Pending *Preferences
}

// Searching reports whether the connection is waiting for a partner.
func (c Connection) Searching() bool { return c.State == StateSearching }

// InRoom reports whether the connection currently occupies a room.
func (c Connection) InRoom() bool { return c.State == StateInRoom && c.RoomID != "" }
