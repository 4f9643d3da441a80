package hub

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/whisper/roulette/internal/chat"
	"github.com/whisper/roulette/internal/metrics"
	"github.com/whisper/roulette/internal/moderation"
	"github.com/whisper/roulette/internal/protocol"
	"github.com/whisper/roulette/internal/session"
)

// report captures the evidence, tears the room down and returns the task
// that files the report once the hub lock is released. The accused is
// re-queued with priority; the reporter goes idle.
func (h *Hub) report(id string, e Report) (func(), error) {
	c, ok := h.registry.Get(id)
	if !ok {
		return nil, ErrUnknownConnection
	}
	if !c.InRoom() {
		return nil, invalidState("not in a room")
	}
	room, ok := h.rooms.Get(c.RoomID)
	if !ok {
		h.repair("dangling_room", id, c.RoomID)
		h.registry.SetState(id, session.StateIdle)
		h.observe(id)
		return nil, invalidState("not in a room")
	}
	accused, _ := room.Partner(id)

	rep := moderation.Report{
		ReporterID:     c.Profile.UserID,
		ReporterConnID: id,
		AccusedID:      accused.Profile.UserID,
		AccusedConnID:  accused.ConnID,
		RoomID:         room.ID,
		Evidence:       e.Evidence,
		ChatLog:        transcript(room.Transcript()),
		ClientChatLog:  e.ChatLog,
		CreatedAt:      h.now(),
	}

	h.vacate(c)
	h.registry.SetState(id, session.StateIdle)
	h.observe(id)

	t := &reportTask{
		connID:   id,
		report:   rep,
		service:  h.moderation,
		notifier: h.notifier,
		timeout:  h.reportTimeout,
		log:      h.log,
	}
	return t.run, nil
}

func transcript(msgs []chat.BufferedMessage) []moderation.LogEntry {
	out := make([]moderation.LogEntry, len(msgs))
	for i, m := range msgs {
		out[i] = moderation.LogEntry{SenderID: m.From, Text: m.Text, Ts: m.Ts}
	}
	return out
}

// reportTask files a report off the hub lock. It holds only the values it
// needs so it cannot touch matchmaking state.
type reportTask struct {
	connID   string
	report   moderation.Report
	service  moderation.Service
	notifier Notifier
	timeout  time.Duration
	log      zerolog.Logger
}

func (t *reportTask) run() {
	if t.service == nil {
		t.fail(moderation.ErrUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	id, err := t.service.CreateReport(ctx, t.report)
	if err != nil {
		t.fail(err)
		return
	}

	metrics.ReportsTotal.WithLabelValues("submitted").Inc()
	t.log.Info().
		Str("report_id", id).
		Str("reporter", t.report.ReporterID).
		Str("accused", t.report.AccusedID).
		Msg("report filed")
	t.notifier.Notify(t.connID, protocol.TypeReportSubmitted, protocol.ReportSubmittedMsg{ReportID: id})
}

func (t *reportTask) fail(err error) {
	metrics.ReportsTotal.WithLabelValues("failed").Inc()
	t.log.Error().Err(err).
		Str("reporter", t.report.ReporterID).
		Str("accused", t.report.AccusedID).
		Msg("report failed")
	t.notifier.Notify(t.connID, protocol.TypeError, protocol.ErrorMsg{
		Code:    protocol.CodeReportFailed,
		Message: "report could not be submitted",
	})
}
