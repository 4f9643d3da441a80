package hub

import (
	"github.com/whisper/roulette/internal/chat"
	"github.com/whisper/roulette/internal/metrics"
	"github.com/whisper/roulette/internal/protocol"
	"github.com/whisper/roulette/internal/session"
)

// repair records an inconsistency that was found and fixed.
func (h *Hub) repair(kind, connID, roomID string) {
	metrics.InvariantRepairs.WithLabelValues(kind).Inc()
	h.dirty = true
	h.log.Error().Str("kind", kind).Str("conn_id", connID).Str("room_id", roomID).Msg("state inconsistency repaired")
}

// heal restores the cross-structure invariants: every room occupant points
// back at its room, every IN_ROOM connection has a live room, and every
// SEARCHING connection is pooled.
func (h *Hub) heal() {
	type orphan struct {
		roomID string
		conns  []string
	}
	var broken []orphan
	h.rooms.Each(func(r *chat.Room) bool {
		intact := true
		for _, o := range r.Occupants {
			c, ok := h.registry.Get(o.ConnID)
			if !ok || c.State != session.StateInRoom || c.RoomID != r.ID {
				intact = false
			}
		}
		if !intact {
			broken = append(broken, orphan{
				roomID: r.ID,
				conns:  []string{r.Occupants[0].ConnID, r.Occupants[1].ConnID},
			})
		}
		return true
	})
	for _, b := range broken {
		h.rooms.Destroy(b.roomID)
		h.repair("orphan_room", "", b.roomID)
		for _, id := range b.conns {
			if c, ok := h.registry.Get(id); ok && c.RoomID == b.roomID {
				h.abandon(id, b.roomID)
			}
		}
	}

	var dangling, unpooled []string
	h.registry.Each(func(c session.Connection) bool {
		switch c.State {
		case session.StateInRoom:
			if _, ok := h.rooms.Get(c.RoomID); !ok {
				dangling = append(dangling, c.ID)
			}
		case session.StateSearching:
			if !h.pool.Contains(c.ID) {
				unpooled = append(unpooled, c.ID)
			}
		}
		return true
	})
	for _, id := range dangling {
		c, _ := h.registry.Get(id)
		h.repair("dangling_room", id, c.RoomID)
		h.requeue(id, true)
		h.notify(id, protocol.TypePartnerDisconnected, protocol.PartnerDisconnectedMsg{})
		h.notify(id, protocol.TypeAutoSearching, protocol.AutoSearchingMsg{})
	}
	for _, id := range unpooled {
		h.repair("unpooled_searcher", id, "")
		h.pool.EnqueueHead(id)
	}
}
