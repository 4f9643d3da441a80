// Package moderation carries abuse reports from the matchmaking server to the
// moderation worker and triages their chat transcripts for spam.
package moderation

import (
	"errors"
	"time"
)

var (
	// ErrUnavailable is returned when no moderation worker answered in time.
	ErrUnavailable = errors.New("moderation: service unavailable")
	// ErrRejected is returned when the worker refused the report.
	ErrRejected = errors.New("moderation: report rejected")
)

// LogEntry is one chat line attached to a report.
type LogEntry struct {
	SenderID string `json:"sender_id"` // connection id of the sender
	Text     string `json:"text"`
	Ts       int64  `json:"ts"`
}

// Report is everything the server knows about an abuse report at the moment
// it was filed.
type Report struct {
	ReporterID     string // user ids
	AccusedID      string
	AccusedConnID  string
	ReporterConnID string
	RoomID         string
	Evidence       []byte
	ChatLog        []LogEntry // server-side room transcript
	ClientChatLog  []LogEntry // reporter's own copy; never triaged
	CreatedAt      time.Time
}

// ReportRequest is the JSON body sent on the report subject.
type ReportRequest struct {
	ReporterID    string     `json:"reporter_id"`
	AccusedID     string     `json:"accused_id"`
	AccusedConnID string     `json:"accused_conn_id"`
	RoomID        string     `json:"room_id"`
	Evidence      []byte     `json:"evidence"` // base64 in JSON
	ChatLog       []LogEntry `json:"chat_log"`
	ClientChatLog []LogEntry `json:"client_chat_log,omitempty"`
	Ts            int64      `json:"ts"` // unix milliseconds
}

// ReportReply is the worker's answer.
type ReportReply struct {
	ReportID string `json:"report_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// NewReportRequest converts a report into its wire form.
func NewReportRequest(r Report) ReportRequest {
	return ReportRequest{
		ReporterID:    r.ReporterID,
		AccusedID:     r.AccusedID,
		AccusedConnID: r.AccusedConnID,
		RoomID:        r.RoomID,
		Evidence:      r.Evidence,
		ChatLog:       r.ChatLog,
		ClientChatLog: r.ClientChatLog,
		Ts:            r.CreatedAt.UnixMilli(),
	}
}
