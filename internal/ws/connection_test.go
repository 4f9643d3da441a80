package ws

import (
	"encoding/json"
	"net"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper/roulette/internal/protocol"
)

func pipeConnection(t *testing.T, queue int) *Connection {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })
	c := newConnection("c1", server, -1, queue)
	t.Cleanup(func() { c.Close() })
	return c
}

func nextQueued(t *testing.T, c *Connection) map[string]interface{} {
	t.Helper()
	select {
	case data := <-c.send:
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &m))
		return m
	default:
		t.Fatal("nothing queued")
		return nil
	}
}

func TestEnqueue(t *testing.T) {
	c := pipeConnection(t, 1)

	require.NoError(t, c.Enqueue([]byte("a")))
	assert.ErrorIs(t, c.Enqueue([]byte("b")), ErrQueueFull)

	require.NoError(t, c.Close())
	assert.NoError(t, c.Close())
	assert.ErrorIs(t, c.Enqueue([]byte("c")), ErrClosed)
}

func TestConnectionManager(t *testing.T) {
	cm := NewConnectionManager()
	c := pipeConnection(t, 1)

	cm.Add(c)
	assert.Same(t, c, cm.Get("c1"))
	assert.Same(t, c, cm.GetByConn(c.Conn))
	assert.Equal(t, 1, cm.Count())
	assert.Len(t, cm.All(), 1)

	assert.True(t, cm.Remove("c1"))
	assert.False(t, cm.Remove("c1"))
	assert.Nil(t, cm.Get("c1"))
	assert.Nil(t, cm.GetByConn(c.Conn))
	assert.ErrorIs(t, c.Enqueue(nil), ErrClosed)
}

func TestDispatchPing(t *testing.T) {
	c := pipeConnection(t, 4)
	d := NewMessageDispatcher(zerolog.Nop())

	d.Dispatch(c, []byte(`{"type":"ping"}`))
	assert.Equal(t, protocol.TypePong, nextQueued(t, c)["type"])
}

func TestDispatchErrors(t *testing.T) {
	c := pipeConnection(t, 4)
	d := NewMessageDispatcher(zerolog.Nop())

	d.Dispatch(c, []byte(`garbage`))
	msg := nextQueued(t, c)
	assert.Equal(t, protocol.TypeError, msg["type"])
	assert.Equal(t, protocol.CodeParseError, msg["code"])

	d.Dispatch(c, []byte(`{"type":"stop-chat"}`))
	assert.Equal(t, protocol.CodeUnsupportedType, nextQueued(t, c)["code"])

	d.Dispatch(c, []byte(`{"type":"signal","kind":"nope","payload":{}}`))
	assert.Equal(t, protocol.CodeInvalidMessage, nextQueued(t, c)["code"])
}

func TestDispatchRoutesToHandler(t *testing.T) {
	c := pipeConnection(t, 4)
	d := NewMessageDispatcher(zerolog.Nop())

	var got interface{}
	d.Register(protocol.TypeSkipChat, func(conn *Connection, msg interface{}) {
		assert.Same(t, c, conn)
		got = msg
	})
	d.Dispatch(c, []byte(`{"type":"skip-chat"}`))
	assert.IsType(t, protocol.SkipChatMsg{}, got)
}
