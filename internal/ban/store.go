// Package ban keeps per-user bans in Redis. A ban is a key with a TTL:
//
//	Key:   ban:<user_id>
//	Value: <reason>
//	TTL:   ban duration
//
// Repeat offenders are tracked with a 24h offense counter that escalates the
// ban duration.
package ban

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// BanPrefix is the Redis key prefix for ban records.
	BanPrefix = "ban:"

	// ReportsPrefix is the Redis key prefix for report counters.
	ReportsPrefix = "reports:"

	Ban15Min  = 15 * time.Minute // 1st offense
	Ban1Hour  = 1 * time.Hour    // 2nd offense
	Ban24Hour = 24 * time.Hour   // 3rd+ offense

	// ReportsTTL is how long the offense counter lives in Redis.
	ReportsTTL = 24 * time.Hour

	// AutoBanThreshold is the number of reports within the report window
	// that triggers an automatic ban.
	AutoBanThreshold = 3

	// ReasonReports is recorded for bans caused by repeated reports.
	ReasonReports = "multiple_reports"
)

// Status describes a user's ban.
type Status struct {
	Banned    bool
	Remaining time.Duration
	Reason    string
}

// Store manages ban records in Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates a new ban store using the provided Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// IsBanned returns the ban status of a user. Redis errors are returned so
// callers can decide how to handle them; the gateway fails open.
func (s *Store) IsBanned(ctx context.Context, userID string) (Status, error) {
	key := BanPrefix + userID

	reason, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("ban: get %s: %w", userID, err)
	}

	st := Status{Banned: true, Reason: reason}
	// An unreadable TTL still leaves the user banned.
	if ttl, err := s.client.TTL(ctx, key).Result(); err == nil && ttl > 0 {
		st.Remaining = ttl
	}
	return st, nil
}

// Ban bans a user for duration.
func (s *Store) Ban(ctx context.Context, userID string, duration time.Duration, reason string) error {
	return s.client.Set(ctx, BanPrefix+userID, reason, duration).Err()
}

// Unban lifts a ban immediately.
func (s *Store) Unban(ctx context.Context, userID string) error {
	return s.client.Del(ctx, BanPrefix+userID).Err()
}

func escalationDuration(offenseCount int) time.Duration {
	switch {
	case offenseCount <= 1:
		return Ban15Min
	case offenseCount == 2:
		return Ban1Hour
	default:
		return Ban24Hour
	}
}

// GetOffenseCount returns the current offense counter for a user, 0 when the
// counter does not exist or has expired.
func (s *Store) GetOffenseCount(ctx context.Context, userID string) (int, error) {
	val, err := s.client.Get(ctx, ReportsPrefix+userID).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

// incrOffenses bumps the counter, starting its 24h window on the first
// increment so the window doesn't slide.
func (s *Store) incrOffenses(ctx context.Context, userID string) (int, error) {
	key := ReportsPrefix + userID
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("ban: incr %s: %w", userID, err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, ReportsTTL).Err(); err != nil {
			return 0, fmt.Errorf("ban: expire %s: %w", userID, err)
		}
	}
	return int(count), nil
}

// Escalate records an offense and bans the user right away:
//
//	1st offense  -> 15 minutes
//	2nd offense  -> 1 hour
//	3rd+ offense -> 24 hours
//
// Returns the ban duration that was applied.
func (s *Store) Escalate(ctx context.Context, userID, reason string) (time.Duration, error) {
	count, err := s.incrOffenses(ctx, userID)
	if err != nil {
		return 0, err
	}

	duration := escalationDuration(count)
	if err := s.Ban(ctx, userID, duration, reason); err != nil {
		return 0, fmt.Errorf("ban: escalate %s: %w", userID, err)
	}
	return duration, nil
}
