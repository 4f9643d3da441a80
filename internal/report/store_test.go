package report

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper/roulette/internal/db"
	"github.com/whisper/roulette/internal/moderation"
)

func TestCreateRequiresParties(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Create(context.Background(), &Report{AccusedID: "u2"})
	assert.Error(t, err)
}

func TestCreateAndCount(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := db.Open(ctx, dsn)
	require.NoError(t, err)
	defer conn.Close()
	_, err = db.Migrate(conn)
	require.NoError(t, err)

	_, err = conn.ExecContext(ctx, `INSERT INTO profiles (user_id) VALUES ('test-accused') ON CONFLICT DO NOTHING`)
	require.NoError(t, err)
	t.Cleanup(func() {
		bg := context.Background()
		conn.ExecContext(bg, `DELETE FROM reports WHERE accused_id = 'test-accused'`)
		conn.ExecContext(bg, `DELETE FROM profiles WHERE user_id = 'test-accused'`)
	})

	s := NewStore(conn)
	id, err := s.Create(ctx, &Report{
		ReporterID: "test-reporter",
		AccusedID:  "test-accused",
		RoomID:     "room-1",
		Evidence:   []byte("png"),
		ChatLog:    []moderation.LogEntry{{SenderID: "c2", Text: "hi", Ts: 1}},
		Flags:      []string{"url"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	withCopy, err := s.Create(ctx, &Report{
		ReporterID:    "test-reporter",
		AccusedID:     "test-accused",
		RoomID:        "room-2",
		ClientChatLog: []moderation.LogEntry{{SenderID: "c2", Text: "client copy", Ts: 2}},
	})
	require.NoError(t, err)

	var stored, clientStored sql.NullString
	require.NoError(t, conn.QueryRowContext(ctx,
		`SELECT chat_log::text, client_chat_log::text FROM reports WHERE id = $1`, withCopy).Scan(&stored, &clientStored))
	assert.JSONEq(t, `[]`, stored.String)
	require.True(t, clientStored.Valid)
	assert.JSONEq(t, `[{"sender_id":"c2","text":"client copy","ts":2}]`, clientStored.String)

	var noCopy sql.NullString
	require.NoError(t, conn.QueryRowContext(ctx,
		`SELECT client_chat_log::text FROM reports WHERE id = $1`, id).Scan(&noCopy))
	assert.False(t, noCopy.Valid)

	count, err := s.CountRecent(ctx, "test-accused", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	var times int
	require.NoError(t, conn.QueryRowContext(ctx,
		`SELECT times_reported FROM profiles WHERE user_id = 'test-accused'`).Scan(&times))
	assert.Equal(t, 2, times)
}
