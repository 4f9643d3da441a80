// Package protocol defines the WebSocket message types and structures used for
// communication between the client and server. All messages are serialized as
// JSON and follow a consistent envelope format with a type discriminator.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/whisper/roulette/internal/ice"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeStartSearch     = "start-search"
	TypeStopSearch      = "stop-search"
	TypeSkipChat        = "skip-chat"
	TypeStopChat        = "stop-chat"
	TypeReportPeer      = "report-peer"
	TypeSettingsUpdated = "settings-updated"
	TypePing            = "ping"
)

// Types used in both directions.
const (
	TypeSignal      = "signal"
	TypeChatMessage = "chat-message"
)

// Server -> Client message types.
const (
	TypeSessionCreated      = "session-created"
	TypeSearchStarted       = "search-started"
	TypeSearchStopped       = "search-stopped"
	TypeMatchFound          = "match-found"
	TypePartnerDisconnected = "partner-disconnected"
	TypeAutoSearching       = "auto-searching"
	TypeChatEnded           = "chat-ended"
	TypeReportSubmitted     = "report-submitted"
	TypeError               = "error"
	TypePong                = "pong"
)

// Signal kinds accepted for relay.
const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "candidate"
)

// Limits enforced while decoding client messages.
const (
	MaxEvidenceBytes  = 512 << 10 // decoded screenshot
	MaxChatLogEntries = 50
	MaxSignalBytes    = 64 << 10
)

// Error codes sent in ErrorMsg.
const (
	CodeParseError      = "parse_error"
	CodeUnsupportedType = "unsupported_type"
	CodeInvalidMessage  = "invalid_message"
	CodeInvalidProfile  = "invalid_profile"
	CodeInvalidState    = "invalid_state"
	CodeUnknownUser     = "unknown_user"
	CodeBanned          = "banned"
	CodeRateLimited     = "rate_limited"
	CodeReportFailed    = "report_failed"
	CodeInternal        = "internal_error"
)

var (
	// ErrInvalidMessage wraps every validation failure of a decoded message.
	ErrInvalidMessage = errors.New("protocol: invalid message")
	// ErrUnknownType is returned for types a client may not send.
	ErrUnknownType = errors.New("protocol: unknown client message type")
)

// ---------------------------------------------------------------------------
// Envelope is used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// StartSearchMsg asks to enter the waiting pool with the given profile.
type StartSearchMsg struct {
	Type    string         `json:"type"`
	Profile ProfilePayload `json:"profile"`
}

// StopSearchMsg leaves the waiting pool.
type StopSearchMsg struct {
	Type string `json:"type"`
}

// SkipChatMsg leaves the current room and searches again.
type SkipChatMsg struct {
	Type string `json:"type"`
}

// StopChatMsg leaves the current room and goes idle.
type StopChatMsg struct {
	Type string `json:"type"`
}

// SignalMsg carries an opaque WebRTC payload for the room partner.
type SignalMsg struct {
	Type           string          `json:"type"`
	TargetRoomPeer string          `json:"targetRoomPeer,omitempty"`
	Kind           string          `json:"kind"`
	Payload        json.RawMessage `json:"payload"`
}

// ChatMessageMsg is a text line for the room partner.
type ChatMessageMsg struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ChatLogEntry is one line of a client supplied chat log.
type ChatLogEntry struct {
	SenderID string `json:"senderId"`
	Text     string `json:"text"`
	Ts       int64  `json:"ts"`
}

// ReportPeerMsg reports the current partner with a base64 screenshot.
type ReportPeerMsg struct {
	Type       string         `json:"type"`
	Screenshot string         `json:"screenshot"`
	ChatLog    []ChatLogEntry `json:"chatLog,omitempty"`
}

// SettingsUpdatedMsg stores preferences for the next search.
type SettingsUpdatedMsg struct {
	Type     string          `json:"type"`
	Settings SettingsPayload `json:"settings"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// SessionCreatedMsg is sent by the server when a new session is established.
type SessionCreatedMsg struct {
	Type       string       `json:"type"`
	SessionID  string       `json:"sessionId"`
	IceServers []ice.Server `json:"iceServers"`
}

// SearchStartedMsg confirms the connection entered the pool.
type SearchStartedMsg struct {
	Type string `json:"type"`
}

// SearchStoppedMsg confirms the connection left the pool.
type SearchStoppedMsg struct {
	Type string `json:"type"`
}

// MatchFoundMsg announces a new room to one of its occupants.
type MatchFoundMsg struct {
	Type           string        `json:"type"`
	RoomID         string        `json:"roomId"`
	PartnerID      string        `json:"partnerId"`
	Role           string        `json:"role"`
	IceServers     []ice.Server  `json:"iceServers"`
	PartnerProfile PublicProfile `json:"partnerProfile"`
}

// PartnerDisconnectedMsg tells a connection its partner left the room.
type PartnerDisconnectedMsg struct {
	Type string `json:"type"`
}

// AutoSearchingMsg tells a connection it was put back into the pool.
type AutoSearchingMsg struct {
	Type string `json:"type"`
}

// ChatEndedMsg confirms a stop-chat.
type ChatEndedMsg struct {
	Type string `json:"type"`
}

// ServerSignalMsg is a relayed WebRTC payload.
type ServerSignalMsg struct {
	Type     string          `json:"type"`
	SenderID string          `json:"senderId"`
	Kind     string          `json:"kind"`
	Payload  json.RawMessage `json:"payload"`
}

// ServerChatMsg is a text message relayed from the partner by the server.
type ServerChatMsg struct {
	Type     string `json:"type"`
	SenderID string `json:"senderId"`
	Text     string `json:"text"`
	Ts       int64  `json:"ts"`
}

// ReportSubmittedMsg confirms the moderation service stored a report.
type ReportSubmittedMsg struct {
	Type     string `json:"type"`
	ReportID string `json:"reportId"`
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

type validator interface {
	validate() error
}

func (m SignalMsg) validate() error {
	switch m.Kind {
	case SignalOffer, SignalAnswer, SignalCandidate:
	default:
		return fmt.Errorf("%w: unknown signal kind %q", ErrInvalidMessage, m.Kind)
	}
	if len(m.Payload) == 0 {
		return fmt.Errorf("%w: signal payload is empty", ErrInvalidMessage)
	}
	if len(m.Payload) > MaxSignalBytes {
		return fmt.Errorf("%w: signal payload exceeds %d bytes", ErrInvalidMessage, MaxSignalBytes)
	}
	return nil
}

func (m ReportPeerMsg) validate() error {
	if len(m.ChatLog) > MaxChatLogEntries {
		return fmt.Errorf("%w: chat log exceeds %d entries", ErrInvalidMessage, MaxChatLogEntries)
	}
	_, err := m.Evidence()
	return err
}

// Evidence decodes the screenshot. A data URL prefix is accepted.
func (m ReportPeerMsg) Evidence() ([]byte, error) {
	raw := m.Screenshot
	if strings.HasPrefix(raw, "data:") {
		if _, after, ok := strings.Cut(raw, ","); ok {
			raw = after
		}
	}
	if raw == "" {
		return nil, fmt.Errorf("%w: screenshot is required", ErrInvalidMessage)
	}
	if base64.StdEncoding.DecodedLen(len(raw)) > MaxEvidenceBytes+3 {
		return nil, fmt.Errorf("%w: screenshot exceeds %d bytes", ErrInvalidMessage, MaxEvidenceBytes)
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: screenshot is not base64: %v", ErrInvalidMessage, err)
	}
	if len(data) > MaxEvidenceBytes {
		return nil, fmt.Errorf("%w: screenshot exceeds %d bytes", ErrInvalidMessage, MaxEvidenceBytes)
	}
	return data, nil
}

func (m StartSearchMsg) validate() error {
	return m.Profile.Validate()
}

func (m SettingsUpdatedMsg) validate() error {
	return m.Settings.Validate()
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing or validation. An error is returned for unknown
// or server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeStartSearch:
		var m StartSearchMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeStopSearch:
		var m StopSearchMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSkipChat:
		var m SkipChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeStopChat:
		var m StopChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSignal:
		var m SignalMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeChatMessage:
		var m ChatMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReportPeer:
		var m ReportPeerMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSettingsUpdated:
		var m SettingsUpdatedMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	if v, ok := msg.(validator); ok {
		if err := v.validate(); err != nil {
			return env.Type, nil, err
		}
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the server message structs; this function marshals it to
// JSON, injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}
	if m == nil {
		m = make(map[string]json.RawMessage, 1)
	}

	typ, _ := json.Marshal(msgType)
	m["type"] = typ

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}

// ErrorCode maps a ParseClientMessage error to the code sent to the client.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnknownType):
		return CodeUnsupportedType
	case errors.Is(err, ErrInvalidProfile):
		return CodeInvalidProfile
	case errors.Is(err, ErrInvalidMessage):
		return CodeInvalidMessage
	default:
		return CodeParseError
	}
}
