package hub

import (
	"fmt"

	"github.com/whisper/roulette/internal/chat"
	"github.com/whisper/roulette/internal/matching"
	"github.com/whisper/roulette/internal/metrics"
	"github.com/whisper/roulette/internal/protocol"
	"github.com/whisper/roulette/internal/session"
)

func (h *Hub) connect(id string) error {
	if _, err := h.registry.Register(id); err != nil {
		return fmt.Errorf("hub: connect %s: %w", id, err)
	}
	h.observe(id)
	h.notify(id, protocol.TypeSessionCreated, protocol.SessionCreatedMsg{
		SessionID:  id,
		IceServers: h.ice.ICEServers(),
	})
	return nil
}

func (h *Hub) disconnect(id string) {
	c, ok := h.registry.Get(id)
	if !ok {
		return
	}

	switch c.State {
	case session.StateSearching:
		h.pool.Remove(id)
	case session.StateInRoom:
		h.vacate(c)
	}
	h.registry.Remove(id)
	h.observe(id)
}

func (h *Hub) startSearch(id string, e StartSearch) error {
	c, ok := h.registry.Get(id)
	if !ok {
		return ErrUnknownConnection
	}
	if c.State == session.StateInRoom {
		return invalidState("already in a room")
	}

	profile := e.Profile
	if prefs, ok := h.registry.TakePending(id); ok && profile.Preferences.Empty() {
		profile = profile.WithPreferences(prefs)
	}
	h.registry.SetProfile(id, profile)
	h.registry.SetState(id, session.StateSearching)
	h.pool.EnqueueTail(id)
	h.arrivals = append(h.arrivals, id)
	h.observe(id)
	h.notify(id, protocol.TypeSearchStarted, protocol.SearchStartedMsg{})
	return nil
}

func (h *Hub) stopSearch(id string) error {
	c, ok := h.registry.Get(id)
	if !ok {
		return ErrUnknownConnection
	}

	switch c.State {
	case session.StateIdle:
		return nil
	case session.StateInRoom:
		return invalidState("not searching")
	}

	h.pool.Remove(id)
	h.registry.SetState(id, session.StateIdle)
	h.observe(id)
	h.notify(id, protocol.TypeSearchStopped, protocol.SearchStoppedMsg{})
	return nil
}

func (h *Hub) skip(id string) error {
	c, ok := h.registry.Get(id)
	if !ok {
		return ErrUnknownConnection
	}
	if !c.InRoom() {
		return invalidState("not in a room")
	}

	h.vacate(c)
	h.requeue(id, false)
	h.notify(id, protocol.TypeAutoSearching, protocol.AutoSearchingMsg{})
	return nil
}

func (h *Hub) stopChat(id string) error {
	c, ok := h.registry.Get(id)
	if !ok {
		return ErrUnknownConnection
	}
	if !c.InRoom() {
		return invalidState("not in a room")
	}

	h.vacate(c)
	h.registry.SetState(id, session.StateIdle)
	h.observe(id)
	h.notify(id, protocol.TypeChatEnded, protocol.ChatEndedMsg{})
	return nil
}

func (h *Hub) settings(id string, e SettingsUpdated) error {
	if !h.registry.SetPending(id, e.Preferences) {
		return ErrUnknownConnection
	}
	return nil
}

// vacate destroys the room c occupies and puts the partner back at the head
// of the pool with partner-disconnected and auto-searching notices. The
// caller decides what happens to c. It reports whether a partner was queued.
func (h *Hub) vacate(c session.Connection) bool {
	room, ok := h.rooms.Destroy(c.RoomID)
	if !ok {
		h.repair("dangling_room", c.ID, c.RoomID)
		return false
	}
	partner, ok := room.Partner(c.ID)
	if !ok {
		h.repair("not_an_occupant", c.ID, room.ID)
		return false
	}
	return h.abandon(partner.ConnID, room.ID)
}

// abandon handles a connection whose partner left roomID.
func (h *Hub) abandon(id, roomID string) bool {
	pc, ok := h.registry.Get(id)
	if !ok || pc.RoomID != roomID {
		h.repair("partner_mismatch", id, roomID)
		return false
	}
	h.requeue(id, true)
	h.notify(id, protocol.TypePartnerDisconnected, protocol.PartnerDisconnectedMsg{})
	h.notify(id, protocol.TypeAutoSearching, protocol.AutoSearchingMsg{})
	return true
}

// requeue puts id back into the pool, applying any pending preferences.
func (h *Hub) requeue(id string, head bool) {
	c, ok := h.registry.Get(id)
	if !ok {
		return
	}
	if prefs, ok := h.registry.TakePending(id); ok {
		h.registry.SetProfile(id, c.Profile.WithPreferences(prefs))
	}
	h.registry.SetState(id, session.StateSearching)
	if head {
		h.pool.EnqueueHead(id)
	} else {
		h.pool.EnqueueTail(id)
	}
	h.arrivals = append(h.arrivals, id)
	h.observe(id)
}

func (h *Hub) lookupCandidate(id string) (matching.Candidate, bool) {
	c, ok := h.registry.Get(id)
	if !ok || c.State != session.StateSearching {
		return matching.Candidate{}, false
	}
	return matching.Candidate{ID: id, Profile: c.Profile, SearchStartedAt: c.SearchStartedAt}, true
}

func (h *Hub) commitMatch(a, b matching.Candidate) {
	room, err := h.rooms.Create(
		chat.Occupant{ConnID: a.ID, Profile: a.Profile},
		chat.Occupant{ConnID: b.ID, Profile: b.Profile},
	)
	if err != nil {
		// Both already left the pool; park them idle.
		h.log.Error().Err(err).Str("a", a.ID).Str("b", b.ID).Msg("room creation failed")
		metrics.InvariantRepairs.WithLabelValues("room_create").Inc()
		for _, id := range []string{a.ID, b.ID} {
			h.registry.SetState(id, session.StateIdle)
			h.observe(id)
			h.notify(id, protocol.TypeError, protocol.ErrorMsg{Code: protocol.CodeInternal, Message: "match failed, search again"})
		}
		return
	}

	now := h.now()
	metrics.MatchesTotal.Inc()
	metrics.MatchDuration.Observe(now.Sub(a.SearchStartedAt).Seconds())
	metrics.MatchDuration.Observe(now.Sub(b.SearchStartedAt).Seconds())

	servers := h.ice.ICEServers()
	for _, o := range room.Occupants {
		h.registry.SetRoom(o.ConnID, room.ID)
		h.observe(o.ConnID)
	}
	for _, o := range room.Occupants {
		partner, _ := room.Partner(o.ConnID)
		h.notify(o.ConnID, protocol.TypeMatchFound, protocol.MatchFoundMsg{
			RoomID:         room.ID,
			PartnerID:      partner.ConnID,
			Role:           string(o.Role),
			IceServers:     servers,
			PartnerProfile: protocol.NewPublicProfile(partner.Profile, now),
		})
	}

	h.log.Debug().
		Str("room_id", room.ID).
		Str("initiator", room.Occupants[0].ConnID).
		Str("responder", room.Occupants[1].ConnID).
		Msg("match committed")
}
