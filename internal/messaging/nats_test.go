package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *NATSClient {
	t.Helper()
	cfg := DefaultNATSConfig()
	cfg.MaxReconnects = 0
	c, err := NewNATSClient(cfg, zerolog.Nop())
	if err != nil {
		t.Skipf("nats not available: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestReportRequestReply(t *testing.T) {
	worker := newTestClient(t)
	server := newTestClient(t)

	require.NoError(t, worker.SubscribeReports(func(data []byte) []byte {
		return append([]byte("ack:"), data...)
	}))
	require.NoError(t, worker.conn.Flush())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := server.Request(ctx, SubjectReport, []byte("r1"))
	require.NoError(t, err)
	assert.Equal(t, "ack:r1", string(resp))
	assert.True(t, server.Connected())
}
