package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/whisper/roulette/internal/ban"
	"github.com/whisper/roulette/internal/moderation"
	"github.com/whisper/roulette/internal/report"
)

type mockReports struct{ mock.Mock }

func (m *mockReports) Create(ctx context.Context, r *report.Report) (string, error) {
	args := m.Called(r)
	return args.String(0), args.Error(1)
}

func (m *mockReports) CountRecent(ctx context.Context, accusedID string, window time.Duration) (int, error) {
	args := m.Called(accusedID, window)
	return args.Int(0), args.Error(1)
}

type mockBans struct{ mock.Mock }

func (m *mockBans) Escalate(ctx context.Context, userID, reason string) (time.Duration, error) {
	args := m.Called(userID, reason)
	return args.Get(0).(time.Duration), args.Error(1)
}

func newWorker(r *mockReports, b *mockBans) *worker {
	return &worker{reports: r, bans: b, window: 24 * time.Hour, timeout: time.Second, log: zerolog.Nop()}
}

func request(t *testing.T, log ...moderation.LogEntry) []byte {
	t.Helper()
	data, err := json.Marshal(moderation.ReportRequest{
		ReporterID:    "u1",
		AccusedID:     "u2",
		AccusedConnID: "c2",
		RoomID:        "room-1",
		Evidence:      []byte("png"),
		ChatLog:       log,
		Ts:            1_700_000_000_000,
	})
	require.NoError(t, err)
	return data
}

func decode(t *testing.T, data []byte) moderation.ReportReply {
	t.Helper()
	var r moderation.ReportReply
	require.NoError(t, json.Unmarshal(data, &r))
	return r
}

func TestWorkerStoresReport(t *testing.T) {
	reports, bans := &mockReports{}, &mockBans{}
	reports.On("Create", mock.MatchedBy(func(r *report.Report) bool {
		return r.ReporterID == "u1" && r.AccusedID == "u2" && string(r.Evidence) == "png" &&
			len(r.Flags) == 0 && r.CreatedAt.Equal(time.UnixMilli(1_700_000_000_000))
	})).Return("r-1", nil)
	reports.On("CountRecent", "u2", 24*time.Hour).Return(1, nil)

	reply := decode(t, newWorker(reports, bans).handle(request(t)))

	assert.Equal(t, "r-1", reply.ReportID)
	assert.Empty(t, reply.Error)
	reports.AssertExpectations(t)
	bans.AssertNotCalled(t, "Escalate", mock.Anything, mock.Anything)
}

func TestWorkerBansRepeatOffender(t *testing.T) {
	reports, bans := &mockReports{}, &mockBans{}
	reports.On("Create", mock.Anything).Return("r-3", nil)
	reports.On("CountRecent", "u2", 24*time.Hour).Return(ban.AutoBanThreshold, nil)
	bans.On("Escalate", "u2", ban.ReasonReports).Return(ban.Ban15Min, nil)

	reply := decode(t, newWorker(reports, bans).handle(request(t)))

	assert.Equal(t, "r-3", reply.ReportID)
	bans.AssertExpectations(t)
}

func TestWorkerBansFlaggedSpam(t *testing.T) {
	reports, bans := &mockReports{}, &mockBans{}
	reports.On("Create", mock.MatchedBy(func(r *report.Report) bool {
		return assert.ObjectsAreEqual([]string{"url"}, r.Flags)
	})).Return("r-4", nil)
	bans.On("Escalate", "u2", "spam:url").Return(ban.Ban15Min, nil)

	reply := decode(t, newWorker(reports, bans).handle(
		request(t, moderation.LogEntry{SenderID: "c2", Text: "visit http://spam.example"})))

	assert.Equal(t, "r-4", reply.ReportID)
	reports.AssertNotCalled(t, "CountRecent", mock.Anything, mock.Anything)
	bans.AssertExpectations(t)
}

func TestWorkerIgnoresClientLogForTriage(t *testing.T) {
	reports, bans := &mockReports{}, &mockBans{}
	claimed := []moderation.LogEntry{{SenderID: "c2", Text: "visit http://spam.example"}}
	reports.On("Create", mock.MatchedBy(func(r *report.Report) bool {
		return len(r.Flags) == 0 && assert.ObjectsAreEqual(claimed, r.ClientChatLog)
	})).Return("r-6", nil)
	reports.On("CountRecent", "u2", 24*time.Hour).Return(1, nil)

	data, err := json.Marshal(moderation.ReportRequest{
		ReporterID:    "u1",
		AccusedID:     "u2",
		AccusedConnID: "c2",
		RoomID:        "room-1",
		ChatLog:       []moderation.LogEntry{{SenderID: "c2", Text: "hi"}},
		ClientChatLog: claimed,
		Ts:            1_700_000_000_000,
	})
	require.NoError(t, err)

	reply := decode(t, newWorker(reports, bans).handle(data))

	assert.Equal(t, "r-6", reply.ReportID)
	reports.AssertExpectations(t)
	bans.AssertNotCalled(t, "Escalate", mock.Anything, mock.Anything)
}

func TestWorkerBanFailureStillReplies(t *testing.T) {
	reports, bans := &mockReports{}, &mockBans{}
	reports.On("Create", mock.Anything).Return("r-5", nil)
	reports.On("CountRecent", "u2", 24*time.Hour).Return(5, nil)
	bans.On("Escalate", "u2", ban.ReasonReports).Return(time.Duration(0), errors.New("redis down"))

	reply := decode(t, newWorker(reports, bans).handle(request(t)))
	assert.Equal(t, "r-5", reply.ReportID)
}

func TestWorkerStoreFailure(t *testing.T) {
	reports, bans := &mockReports{}, &mockBans{}
	reports.On("Create", mock.Anything).Return("", errors.New("db down"))

	reply := decode(t, newWorker(reports, bans).handle(request(t)))
	assert.Empty(t, reply.ReportID)
	assert.NotEmpty(t, reply.Error)
}

func TestWorkerMalformedRequest(t *testing.T) {
	w := newWorker(&mockReports{}, &mockBans{})

	assert.NotEmpty(t, decode(t, w.handle([]byte("nope"))).Error)
	assert.NotEmpty(t, decode(t, w.handle([]byte(`{"reporter_id":"u1"}`))).Error)
}
