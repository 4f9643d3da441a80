// Package profile loads user profiles from Postgres. The gateway trusts the
// stored identity (gender, country, role, bans) over what a client sends.
package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/whisper/roulette/internal/session"
)

// ErrNotFound is returned for unknown user ids.
var ErrNotFound = errors.New("profile: not found")

// Store looks up profiles by user id.
type Store interface {
	GetProfile(ctx context.Context, userID string) (session.Profile, error)
}

// PGStore reads the profiles table.
type PGStore struct {
	db *sql.DB
}

// NewPGStore creates a PGStore on db.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// GetProfile returns the stored identity of userID. Preferences are left
// empty; they are chosen per search.
func (s *PGStore) GetProfile(ctx context.Context, userID string) (session.Profile, error) {
	const query = `
		SELECT user_id, username, avatar_url, gender, date_of_birth, country, role, banned_until
		FROM profiles
		WHERE user_id = $1`

	var (
		p      session.Profile
		dob    sql.NullTime
		banned sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID, &p.Username, &p.AvatarURL, &p.Gender, &dob, &p.Country, &p.Role, &banned,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Profile{}, fmt.Errorf("%w: %s", ErrNotFound, userID)
	}
	if err != nil {
		return session.Profile{}, fmt.Errorf("profile: get %s: %w", userID, err)
	}
	if dob.Valid {
		p.DateOfBirth = dob.Time
	}
	if banned.Valid {
		p.BannedUntil = banned.Time
	}
	return p, nil
}

// Merge combines a stored identity with the preferences a client sent.
func Merge(stored, wire session.Profile) session.Profile {
	return stored.WithPreferences(wire.Preferences)
}
