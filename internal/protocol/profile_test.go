package protocol

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper/roulette/internal/session"
)

func intPtr(v int) *int { return &v }

func TestSnapshotNormalizes(t *testing.T) {
	p := ProfilePayload{
		UserID:  " u1 ",
		Gender:  "Female",
		DOB:     "2000-02-29",
		Country: " DE",
		Role:    "VIP",
		SettingsPayload: SettingsPayload{
			Interests:          StringList{"Music", "music", " go "},
			PreferredCountries: StringList{"FR"},
			InterestMaxWait:    intPtr(10),
			CountryMaxWait:     intPtr(5000),
		},
	}

	snap, err := p.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "u1", snap.UserID)
	assert.Equal(t, "female", snap.Gender)
	assert.Equal(t, "de", snap.Country)
	assert.Equal(t, "vip", snap.Role)
	assert.Equal(t, 2000, snap.DateOfBirth.Year())
	assert.Equal(t, []string{"music", "go"}, snap.Interests)
	assert.Equal(t, []string{"fr"}, snap.PreferredCountries)
	assert.Equal(t, 10*time.Second, snap.InterestMaxWait)
	assert.Equal(t, session.MaxWaitCeiling, snap.CountryMaxWait)
}

func TestSnapshotDefaultsWaits(t *testing.T) {
	snap, err := ProfilePayload{UserID: "u1"}.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, session.DefaultMaxWait, snap.InterestMaxWait)
	assert.Equal(t, session.DefaultMaxWait, snap.CountryMaxWait)
}

func TestSnapshotClampsHugeWaits(t *testing.T) {
	p := ProfilePayload{UserID: "u1", SettingsPayload: SettingsPayload{
		InterestMaxWait: intPtr(math.MaxInt),
		CountryMaxWait:  intPtr(-1),
	}}

	snap, err := p.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, session.MaxWaitCeiling, snap.InterestMaxWait)
	assert.Equal(t, session.DefaultMaxWait, snap.CountryMaxWait)
}

func TestValidateRejects(t *testing.T) {
	tooMany := make(StringList, maxInterests+1)
	for i := range tooMany {
		tooMany[i] = "x"
	}

	for name, p := range map[string]ProfilePayload{
		"no user":     {},
		"bad gender":  {UserID: "u", Gender: "robot"},
		"bad dob":     {UserID: "u", DOB: "01/02/2000"},
		"interests":   {UserID: "u", SettingsPayload: SettingsPayload{Interests: tooMany}},
		"pref gender": {UserID: "u", SettingsPayload: SettingsPayload{PreferredGender: StringList{"robot"}}},
	} {
		assert.ErrorIs(t, p.Validate(), ErrInvalidProfile, name)
	}
}

func TestNewPublicProfile(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	p := session.Profile{
		UserID:      "secret-id",
		Username:    "neo",
		Gender:      "male",
		DateOfBirth: time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC),
		Preferences: session.Preferences{Interests: []string{"film"}},
	}

	pub := NewPublicProfile(p, now)
	assert.Equal(t, "neo", pub.Username)
	assert.Equal(t, 26, pub.Age)
	assert.Equal(t, []string{"film"}, pub.Interests)
}
