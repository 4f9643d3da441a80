package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/whisper/roulette/internal/metrics"
)

const (
	// PresencePrefix is the Redis key prefix for presence hashes.
	PresencePrefix = "presence:"

	// PresenceTTL bounds how long a record outlives a crashed server.
	PresenceTTL = 1 * time.Hour

	presenceQueueSize = 1024
	presenceTimeout   = 2 * time.Second
)

// Change describes one state transition to mirror.
type Change struct {
	ConnID  string
	UserID  string
	State   State
	RoomID  string
	Removed bool
}

// Record is the mirrored presence of a connection.
type Record struct {
	ID        string `redis:"id"`
	UserID    string `redis:"user_id"`
	State     string `redis:"state"`
	RoomID    string `redis:"room_id"`
	Server    string `redis:"server"`
	UpdatedAt int64  `redis:"updated_at"`
}

// Presence mirrors connection state into Redis. Observe never blocks; a
// single writer goroutine applies changes in order, so callers may invoke
// it while holding their own locks.
type Presence struct {
	client     *redis.Client
	serverName string
	changes    chan Change
	log        zerolog.Logger
}

// NewPresence creates a presence mirror writing through client.
func NewPresence(client *redis.Client, serverName string, log zerolog.Logger) *Presence {
	return &Presence{
		client:     client,
		serverName: serverName,
		changes:    make(chan Change, presenceQueueSize),
		log:        log.With().Str("component", "presence").Logger(),
	}
}

// Observe queues a change. When the queue is full the change is dropped.
func (p *Presence) Observe(c Change) {
	select {
	case p.changes <- c:
	default:
		metrics.PresenceDropped.Inc()
	}
}

// Run applies queued changes until ctx is cancelled.
func (p *Presence) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-p.changes:
			applyCtx, cancel := context.WithTimeout(ctx, presenceTimeout)
			if err := p.apply(applyCtx, c); err != nil {
				p.log.Warn().Err(err).Str("conn_id", c.ConnID).Msg("presence update failed")
			}
			cancel()
		}
	}
}

func (p *Presence) apply(ctx context.Context, c Change) error {
	key := PresencePrefix + c.ConnID
	if c.Removed {
		return p.client.Del(ctx, key).Err()
	}

	pipe := p.client.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"id":         c.ConnID,
		"user_id":    c.UserID,
		"state":      string(c.State),
		"room_id":    c.RoomID,
		"server":     p.serverName,
		"updated_at": time.Now().Unix(),
	})
	pipe.Expire(ctx, key, PresenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: presence write: %w", err)
	}
	return nil
}

// Get reads a mirrored record. It returns nil when none exists.
func (p *Presence) Get(ctx context.Context, connID string) (*Record, error) {
	var rec Record
	if err := p.client.HGetAll(ctx, PresencePrefix+connID).Scan(&rec); err != nil {
		return nil, err
	}
	if rec.ID == "" {
		return nil, nil
	}
	return &rec, nil
}
