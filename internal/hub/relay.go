package hub

import (
	"github.com/whisper/roulette/internal/chat"
	"github.com/whisper/roulette/internal/metrics"
	"github.com/whisper/roulette/internal/protocol"
)

// partnerOf resolves the room and partner of an IN_ROOM connection.
func (h *Hub) partnerOf(id string) (string, *chat.Room, bool) {
	c, ok := h.registry.Get(id)
	if !ok || !c.InRoom() {
		return "", nil, false
	}
	room, ok := h.rooms.Get(c.RoomID)
	if !ok {
		return "", nil, false
	}
	partner, ok := room.Partner(id)
	if !ok {
		return "", nil, false
	}
	return partner.ConnID, room, true
}

// relaySignal forwards the payload verbatim to the sender's partner. Signals
// from connections outside a room, or aimed at anyone but the partner, are
// dropped; they are usually late messages from a room that just closed.
func (h *Hub) relaySignal(id string, e Signal) {
	partner, _, ok := h.partnerOf(id)
	if !ok {
		metrics.DroppedTotal.WithLabelValues("not_in_room").Inc()
		h.log.Debug().Str("conn_id", id).Str("kind", e.Kind).Msg("signal dropped: not in a room")
		return
	}
	if e.Target != "" && e.Target != partner {
		metrics.DroppedTotal.WithLabelValues("wrong_target").Inc()
		h.log.Warn().Str("conn_id", id).Str("target", e.Target).Msg("signal dropped: target is not the partner")
		return
	}

	h.notify(partner, protocol.TypeSignal, protocol.ServerSignalMsg{
		SenderID: id,
		Kind:     e.Kind,
		Payload:  e.Payload,
	})
	metrics.RelayedTotal.WithLabelValues(e.Kind).Inc()
}

// relayChat validates the text, records it in the room transcript and
// forwards it to the partner.
func (h *Hub) relayChat(id string, e ChatText) error {
	if err := chat.ValidateMessage(e.Text); err != nil {
		return &ProtocolError{Code: protocol.CodeInvalidMessage, Message: err.Error()}
	}

	partner, room, ok := h.partnerOf(id)
	if !ok {
		metrics.DroppedTotal.WithLabelValues("not_in_room").Inc()
		h.log.Debug().Str("conn_id", id).Msg("chat dropped: not in a room")
		return nil
	}

	ts := h.now().UnixMilli()
	room.Append(chat.BufferedMessage{From: id, Text: e.Text, Ts: ts})
	h.notify(partner, protocol.TypeChatMessage, protocol.ServerChatMsg{
		SenderID: id,
		Text:     e.Text,
		Ts:       ts,
	})
	metrics.RelayedTotal.WithLabelValues("chat").Inc()
	return nil
}
