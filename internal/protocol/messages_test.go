package protocol

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper/roulette/internal/ice"
)

func TestParseClientMessage_StartSearch(t *testing.T) {
	input := []byte(`{"type":"start-search","profile":{"user_id":"u1","gender":"female","interests":["Music","gaming"],"preferred_gender":"male","interest_max_wait":10}}`)

	msgType, msg, err := ParseClientMessage(input)
	require.NoError(t, err)
	assert.Equal(t, TypeStartSearch, msgType)

	ss, ok := msg.(StartSearchMsg)
	require.True(t, ok, "expected StartSearchMsg, got %T", msg)
	assert.Equal(t, "u1", ss.Profile.UserID)
	assert.Equal(t, StringList{"male"}, ss.Profile.PreferredGender)
	require.NotNil(t, ss.Profile.InterestMaxWait)
	assert.Equal(t, 10, *ss.Profile.InterestMaxWait)
}

func TestParseClientMessage_StartSearchRequiresUser(t *testing.T) {
	_, _, err := ParseClientMessage([]byte(`{"type":"start-search","profile":{}}`))
	assert.ErrorIs(t, err, ErrInvalidProfile)
}

func TestParseClientMessage_Signal(t *testing.T) {
	input := []byte(`{"type":"signal","targetRoomPeer":"c2","kind":"offer","payload":{"sdp":"v=0"}}`)

	msgType, msg, err := ParseClientMessage(input)
	require.NoError(t, err)
	assert.Equal(t, TypeSignal, msgType)

	sig := msg.(SignalMsg)
	assert.Equal(t, "c2", sig.TargetRoomPeer)
	assert.Equal(t, SignalOffer, sig.Kind)
	assert.JSONEq(t, `{"sdp":"v=0"}`, string(sig.Payload))
}

func TestParseClientMessage_SignalRejectsUnknownKind(t *testing.T) {
	_, _, err := ParseClientMessage([]byte(`{"type":"signal","kind":"hangup","payload":{}}`))
	assert.ErrorIs(t, err, ErrInvalidMessage)

	_, _, err = ParseClientMessage([]byte(`{"type":"signal","kind":"answer"}`))
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestParseClientMessage_ReportPeer(t *testing.T) {
	shot := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	input := []byte(`{"type":"report-peer","screenshot":"data:image/png;base64,` + shot + `","chatLog":[{"senderId":"c1","text":"hi","ts":1}]}`)

	_, msg, err := ParseClientMessage(input)
	require.NoError(t, err)

	rp := msg.(ReportPeerMsg)
	evidence, err := rp.Evidence()
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), evidence)
	assert.Len(t, rp.ChatLog, 1)
}

func TestParseClientMessage_ReportPeerValidation(t *testing.T) {
	_, _, err := ParseClientMessage([]byte(`{"type":"report-peer","screenshot":""}`))
	assert.ErrorIs(t, err, ErrInvalidMessage)

	_, _, err = ParseClientMessage([]byte(`{"type":"report-peer","screenshot":"%%%"}`))
	assert.ErrorIs(t, err, ErrInvalidMessage)

	big := base64.StdEncoding.EncodeToString(make([]byte, MaxEvidenceBytes+1))
	_, _, err = ParseClientMessage([]byte(`{"type":"report-peer","screenshot":"` + big + `"}`))
	assert.ErrorIs(t, err, ErrInvalidMessage)

	entries := make([]ChatLogEntry, MaxChatLogEntries+1)
	raw, _ := json.Marshal(ReportPeerMsg{Type: TypeReportPeer, Screenshot: "aGk=", ChatLog: entries})
	_, _, err = ParseClientMessage(raw)
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestParseClientMessage_SimpleTypes(t *testing.T) {
	cases := map[string]interface{}{
		`{"type":"stop-search"}`:              StopSearchMsg{Type: TypeStopSearch},
		`{"type":"skip-chat"}`:                SkipChatMsg{Type: TypeSkipChat},
		`{"type":"stop-chat"}`:                StopChatMsg{Type: TypeStopChat},
		`{"type":"ping"}`:                     PingMsg{Type: TypePing},
		`{"type":"chat-message","text":"yo"}`: ChatMessageMsg{Type: TypeChatMessage, Text: "yo"},
	}
	for input, want := range cases {
		_, msg, err := ParseClientMessage([]byte(input))
		require.NoError(t, err, input)
		assert.Equal(t, want, msg, input)
	}
}

func TestParseClientMessage_Errors(t *testing.T) {
	for _, input := range []string{
		`not json`,
		`{"text":"no type"}`,
		`{"type":""}`,
		`{"type":"match-found"}`,
		`{"type":"chat-message","text":42}`,
	} {
		_, _, err := ParseClientMessage([]byte(input))
		assert.Error(t, err, input)
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		input string
		code  string
	}{
		{`not json`, CodeParseError},
		{`{"type":"match-found"}`, CodeUnsupportedType},
		{`{"type":"start-search","profile":{}}`, CodeInvalidProfile},
		{`{"type":"signal","kind":"hangup","payload":{}}`, CodeInvalidMessage},
		{`{"type":"chat-message","text":42}`, CodeParseError},
	}
	for _, tt := range tests {
		_, _, err := ParseClientMessage([]byte(tt.input))
		require.Error(t, err, tt.input)
		assert.Equal(t, tt.code, ErrorCode(err), tt.input)
	}
}

func TestNewServerMessage_InjectsType(t *testing.T) {
	data, err := NewServerMessage(TypeMatchFound, MatchFoundMsg{
		RoomID:     "r1",
		PartnerID:  "c2",
		Role:       "initiator",
		IceServers: []ice.Server{{URLs: []string{"stun:x"}}},
	})
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, TypeMatchFound, got["type"])
	assert.Equal(t, "r1", got["roomId"])
	assert.Equal(t, "initiator", got["role"])
}

func TestNewServerMessage_KeepsSignalPayload(t *testing.T) {
	payload := json.RawMessage(`{"candidate":"a=1 2 3","sdpMLineIndex":0}`)
	data, err := NewServerMessage(TypeSignal, ServerSignalMsg{SenderID: "c1", Kind: SignalCandidate, Payload: payload})
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"payload":{"candidate":"a=1 2 3","sdpMLineIndex":0}`))
}

func TestNewServerMessage_EmptyStruct(t *testing.T) {
	data, err := NewServerMessage(TypePong, PongMsg{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong"}`, string(data))
}
