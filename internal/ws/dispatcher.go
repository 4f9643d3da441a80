package ws

import (
	"github.com/rs/zerolog"

	"github.com/whisper/roulette/internal/metrics"
	"github.com/whisper/roulette/internal/protocol"
)

// MessageHandler is the callback signature for handling a parsed client message.
// The msg parameter is the concrete struct returned by protocol.ParseClientMessage
// (e.g., protocol.StartSearchMsg, protocol.SignalMsg, etc.).
type MessageHandler func(conn *Connection, msg interface{})

// MessageDispatcher routes incoming WebSocket messages to registered handlers
// based on the message type. It answers ping internally and sends structured
// error responses for malformed or unsupported messages.
type MessageDispatcher struct {
	handlers map[string]MessageHandler
	log      zerolog.Logger
}

// NewMessageDispatcher creates an empty MessageDispatcher.
func NewMessageDispatcher(log zerolog.Logger) *MessageDispatcher {
	return &MessageDispatcher{
		handlers: make(map[string]MessageHandler),
		log:      log.With().Str("component", "dispatcher").Logger(),
	}
}

// Register associates a MessageHandler with a message type. If a handler was
// already registered for the given type, it is silently replaced.
func (d *MessageDispatcher) Register(msgType string, handler MessageHandler) {
	d.handlers[msgType] = handler
}

// Dispatch is the onMessage callback implementation. It parses the raw bytes
// into a typed message, handles ping internally, and routes all other types to
// the registered handler.
func (d *MessageDispatcher) Dispatch(conn *Connection, data []byte) {
	msgType, msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		code := protocol.ErrorCode(err)
		d.log.Warn().Err(err).Str("conn", conn.ID).Str("type", msgType).Msg("rejected message")
		d.sendError(conn, code, err.Error())
		return
	}

	if msgType == protocol.TypePing {
		conn.Touch()
		if err := conn.Send(protocol.TypePong, protocol.PongMsg{}); err != nil {
			d.log.Debug().Err(err).Str("conn", conn.ID).Msg("pong not sent")
		}
		return
	}

	handler, ok := d.handlers[msgType]
	if !ok {
		d.log.Warn().Str("conn", conn.ID).Str("type", msgType).Msg("unsupported message type")
		d.sendError(conn, protocol.CodeUnsupportedType, "unsupported message type")
		return
	}

	handler(conn, msg)
}

func (d *MessageDispatcher) sendError(conn *Connection, code, message string) {
	metrics.ProtocolErrors.WithLabelValues(code).Inc()
	if err := conn.SendError(code, message); err != nil {
		d.log.Debug().Err(err).Str("conn", conn.ID).Msg("error message not sent")
	}
}
