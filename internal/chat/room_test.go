package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper/roulette/internal/session"
)

func TestCreateAssignsRolesByID(t *testing.T) {
	m := NewManager(10, nil)

	r, err := m.Create(
		Occupant{ConnID: "zed", Profile: session.Profile{UserID: "u2"}},
		Occupant{ConnID: "amy", Profile: session.Profile{UserID: "u1"}},
	)
	require.NoError(t, err)

	assert.Equal(t, "amy", r.Occupants[0].ConnID)
	assert.Equal(t, RoleInitiator, r.Occupants[0].Role)
	assert.Equal(t, RoleResponder, r.Occupants[1].Role)

	p, ok := r.Partner("amy")
	require.True(t, ok)
	assert.Equal(t, "zed", p.ConnID)
	assert.Equal(t, "u2", p.Profile.UserID)

	_, ok = r.Partner("stranger")
	assert.False(t, ok)
}

func TestCreateRejectsBadPairs(t *testing.T) {
	m := NewManager(10, nil)

	_, err := m.Create(Occupant{ConnID: "a"}, Occupant{ConnID: "a"})
	assert.ErrorIs(t, err, ErrSameConnection)

	_, err = m.Create(Occupant{ConnID: "a"}, Occupant{ConnID: "b"})
	require.NoError(t, err)
	_, err = m.Create(Occupant{ConnID: "b"}, Occupant{ConnID: "c"})
	assert.ErrorIs(t, err, ErrOccupied)
}

func TestDestroy(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManager(10, func() time.Time { return now })

	r, err := m.Create(Occupant{ConnID: "a"}, Occupant{ConnID: "b"})
	require.NoError(t, err)
	assert.Equal(t, now, r.CreatedAt)

	got, ok := m.RoomOf("b")
	require.True(t, ok)
	assert.Same(t, r, got)

	_, ok = m.Destroy(r.ID)
	assert.True(t, ok)
	_, ok = m.Destroy(r.ID)
	assert.False(t, ok)

	_, ok = m.RoomOf("a")
	assert.False(t, ok)
	assert.Zero(t, m.Len())

	// Both connections are free again.
	_, err = m.Create(Occupant{ConnID: "a"}, Occupant{ConnID: "b"})
	assert.NoError(t, err)
}

func TestTranscriptBounded(t *testing.T) {
	m := NewManager(2, nil)
	r, _ := m.Create(Occupant{ConnID: "a"}, Occupant{ConnID: "b"})

	r.Append(BufferedMessage{From: "a", Text: "1"})
	r.Append(BufferedMessage{From: "b", Text: "2"})
	r.Append(BufferedMessage{From: "a", Text: "3"})

	msgs := r.Transcript()
	require.Len(t, msgs, 2)
	assert.Equal(t, "2", msgs[0].Text)
	assert.Equal(t, "3", msgs[1].Text)
}
