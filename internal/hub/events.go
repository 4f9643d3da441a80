package hub

import (
	"encoding/json"
	"errors"

	"github.com/whisper/roulette/internal/moderation"
	"github.com/whisper/roulette/internal/session"
)

// Event is an input to the hub. The set of events is closed.
type Event interface {
	isEvent()
}

// Connect registers a new connection.
type Connect struct{}

// Disconnect removes a connection and releases its pool entry or room.
type Disconnect struct{}

// StartSearch enters the waiting pool with a validated profile snapshot.
type StartSearch struct {
	Profile session.Profile
}

// StopSearch leaves the waiting pool.
type StopSearch struct{}

// Skip leaves the current room and searches again.
type Skip struct{}

// StopChat leaves the current room and goes idle.
type StopChat struct{}

// Signal forwards a WebRTC payload to the room partner.
type Signal struct {
	Target  string // optional; must name the partner when set
	Kind    string
	Payload json.RawMessage
}

// ChatText forwards a chat line to the room partner.
type ChatText struct {
	Text string
}

// Report files an abuse report against the room partner and leaves the room.
type Report struct {
	Evidence []byte
	ChatLog  []moderation.LogEntry // reporter-supplied, forwarded as untrusted evidence
}

// SettingsUpdated stores preferences for the next search.
type SettingsUpdated struct {
	Preferences session.Preferences
}

func (Connect) isEvent()         {}
func (Disconnect) isEvent()      {}
func (StartSearch) isEvent()     {}
func (StopSearch) isEvent()      {}
func (Skip) isEvent()            {}
func (StopChat) isEvent()        {}
func (Signal) isEvent()          {}
func (ChatText) isEvent()        {}
func (Report) isEvent()          {}
func (SettingsUpdated) isEvent() {}

// ErrUnknownConnection is returned for events from an unregistered id.
var ErrUnknownConnection = errors.New("hub: unknown connection")

// ProtocolError is a client mistake. The hub reports it to the sender as an
// error message.
type ProtocolError struct {
	Code    string
	Message string
}

func (e *ProtocolError) Error() string {
	return "hub: " + e.Code + ": " + e.Message
}
