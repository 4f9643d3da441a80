// Package report stores abuse reports in PostgreSQL. Each report keeps the
// screenshot, the chat transcript and the spam flags found by triage, and
// bumps the accused user's report counter.
package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/whisper/roulette/internal/moderation"
)

// Store manages abuse reports in PostgreSQL.
type Store struct {
	db *sql.DB
}

// Report represents a single abuse report to be persisted.
type Report struct {
	ReporterID    string
	AccusedID     string
	RoomID        string
	Evidence      []byte
	ChatLog       []moderation.LogEntry
	ClientChatLog []moderation.LogEntry // nil when the reporter sent none
	Flags         []string
	CreatedAt     time.Time
}

// NewStore creates a new report store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts the report and increments profiles.times_reported for the
// accused in one transaction. It returns the new report id.
func (s *Store) Create(ctx context.Context, r *Report) (string, error) {
	if r.ReporterID == "" || r.AccusedID == "" {
		return "", fmt.Errorf("report: reporter and accused are required")
	}

	log := r.ChatLog
	if log == nil {
		log = []moderation.LogEntry{}
	}
	chatLog, err := json.Marshal(log)
	if err != nil {
		return "", fmt.Errorf("report: marshal chat log: %w", err)
	}
	var clientLog sql.NullString
	if r.ClientChatLog != nil {
		raw, err := json.Marshal(r.ClientChatLog)
		if err != nil {
			return "", fmt.Errorf("report: marshal client chat log: %w", err)
		}
		clientLog = sql.NullString{String: string(raw), Valid: true}
	}
	flags := r.Flags
	if flags == nil {
		flags = []string{}
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("report: begin: %w", err)
	}
	defer tx.Rollback()

	id := uuid.NewString()
	const insert = `
		INSERT INTO reports (id, reporter_id, accused_id, room_id, chat_log, client_chat_log, evidence, flags, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := tx.ExecContext(ctx, insert,
		id, r.ReporterID, r.AccusedID, r.RoomID, chatLog, clientLog, r.Evidence, pq.Array(flags), created,
	); err != nil {
		return "", fmt.Errorf("report: insert: %w", err)
	}

	const bump = `UPDATE profiles SET times_reported = times_reported + 1 WHERE user_id = $1`
	if _, err := tx.ExecContext(ctx, bump, r.AccusedID); err != nil {
		return "", fmt.Errorf("report: bump times_reported: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("report: commit: %w", err)
	}
	return id, nil
}

// CountRecent returns the number of reports filed against a user within the
// given time window.
func (s *Store) CountRecent(ctx context.Context, accusedID string, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM reports
		WHERE accused_id = $1
		  AND created_at >= NOW() - make_interval(secs => $2)`

	var count int
	err := s.db.QueryRowContext(ctx, query, accusedID, window.Seconds()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("report: count recent: %w", err)
	}
	return count, nil
}
