package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/whisper/roulette/internal/ban"
	"github.com/whisper/roulette/internal/metrics"
	"github.com/whisper/roulette/internal/moderation"
	"github.com/whisper/roulette/internal/report"
)

type reportStore interface {
	Create(ctx context.Context, r *report.Report) (string, error)
	CountRecent(ctx context.Context, accusedID string, window time.Duration) (int, error)
}

type banStore interface {
	Escalate(ctx context.Context, userID, reason string) (time.Duration, error)
}

// worker answers report requests: it stores the report and bans repeat or
// spamming offenders.
type worker struct {
	reports reportStore
	bans    banStore
	window  time.Duration
	timeout time.Duration
	log     zerolog.Logger
}

func (w *worker) handle(data []byte) []byte {
	var req moderation.ReportRequest
	if err := json.Unmarshal(data, &req); err != nil {
		w.log.Warn().Err(err).Msg("malformed report request")
		return w.reply(moderation.ReportReply{Error: "malformed request"})
	}
	if req.ReporterID == "" || req.AccusedID == "" {
		return w.reply(moderation.ReportReply{Error: "reporter and accused are required"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	// Only the server transcript can flag the accused. The reporter's copy is
	// stored for a human moderator.
	flags := moderation.Triage(req.AccusedConnID, req.ChatLog)
	created := time.UnixMilli(req.Ts)
	if req.Ts == 0 {
		created = time.Now()
	}
	id, err := w.reports.Create(ctx, &report.Report{
		ReporterID:    req.ReporterID,
		AccusedID:     req.AccusedID,
		RoomID:        req.RoomID,
		Evidence:      req.Evidence,
		ChatLog:       req.ChatLog,
		ClientChatLog: req.ClientChatLog,
		Flags:         flags,
		CreatedAt:     created,
	})
	if err != nil {
		w.log.Error().Err(err).Str("accused", req.AccusedID).Msg("store report failed")
		metrics.ReportsTotal.WithLabelValues("store_failed").Inc()
		return w.reply(moderation.ReportReply{Error: "report could not be stored"})
	}
	metrics.ReportsTotal.WithLabelValues("stored").Inc()

	w.log.Info().
		Str("report", id).
		Str("reporter", req.ReporterID).
		Str("accused", req.AccusedID).
		Strs("flags", flags).
		Msg("report stored")

	w.enforce(ctx, req.AccusedID, flags)
	return w.reply(moderation.ReportReply{ReportID: id})
}

// enforce bans the accused right away when the transcript was flagged, and
// otherwise once enough reports piled up in the window. Failures only log;
// the report itself is already stored.
func (w *worker) enforce(ctx context.Context, accused string, flags []string) {
	reason := ""
	if len(flags) > 0 {
		reason = "spam:" + flags[0]
	} else {
		count, err := w.reports.CountRecent(ctx, accused, w.window)
		if err != nil {
			w.log.Error().Err(err).Str("accused", accused).Msg("count recent reports failed")
			return
		}
		if count < ban.AutoBanThreshold {
			return
		}
		reason = ban.ReasonReports
	}

	d, err := w.bans.Escalate(ctx, accused, reason)
	if err != nil {
		w.log.Error().Err(err).Str("accused", accused).Msg("ban failed")
		return
	}
	w.log.Info().Str("accused", accused).Str("reason", reason).Dur("duration", d).Msg("user banned")
}

func (w *worker) reply(r moderation.ReportReply) []byte {
	data, err := json.Marshal(r)
	if err != nil {
		w.log.Error().Err(err).Msg("marshal reply failed")
		return []byte(`{"error":"internal error"}`)
	}
	return data
}
