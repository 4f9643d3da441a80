package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper/roulette/internal/session"
)

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func cand(id string, p session.Profile) Candidate {
	return Candidate{ID: id, Profile: p.Normalized(), SearchStartedAt: t0}
}

func TestCompatibleOpenProfiles(t *testing.T) {
	a := cand("a", session.Profile{Gender: "male"})
	b := cand("b", session.Profile{Gender: "female"})
	assert.True(t, Compatible(a, b, t0, PolicyStrict))
}

func TestInterestWidening(t *testing.T) {
	a := cand("a", session.Profile{Preferences: session.Preferences{
		Interests:       []string{"x"},
		InterestMaxWait: 10 * time.Second,
	}})
	b := cand("b", session.Profile{})

	assert.False(t, Compatible(a, b, t0.Add(5*time.Second), PolicyStrict))
	assert.True(t, Compatible(a, b, t0.Add(11*time.Second), PolicyStrict))
}

func TestSharedInterestMatchesImmediately(t *testing.T) {
	prefs := session.Preferences{Interests: []string{"Music", "go"}, InterestMaxWait: time.Minute}
	a := cand("a", session.Profile{Preferences: prefs})
	b := cand("b", session.Profile{Preferences: session.Preferences{
		Interests: []string{"music"}, InterestMaxWait: time.Minute,
	}})
	assert.True(t, Compatible(a, b, t0, PolicyStrict))
}

func TestPolicyOnOneSidedInterest(t *testing.T) {
	a := cand("a", session.Profile{Preferences: session.Preferences{
		Interests: []string{"x"}, InterestMaxWait: time.Minute,
	}})
	b := cand("b", session.Profile{Preferences: session.Preferences{
		Interests: []string{"y"}, InterestMaxWait: 10 * time.Second,
	}})
	at := t0.Add(20 * time.Second)

	// b has lapsed, a has not.
	assert.False(t, Compatible(a, b, at, PolicyStrict))
	assert.True(t, Compatible(a, b, at, PolicyLenient))
}

func TestCountryPreference(t *testing.T) {
	a := cand("a", session.Profile{Country: "fr", Preferences: session.Preferences{
		PreferredCountries: []string{"DE"}, CountryMaxWait: 30 * time.Second,
	}})
	german := cand("b", session.Profile{Country: "de"})
	spanish := cand("c", session.Profile{Country: "es"})

	assert.True(t, Compatible(a, german, t0, PolicyStrict))
	assert.False(t, Compatible(a, spanish, t0, PolicyStrict))
	assert.True(t, Compatible(a, spanish, t0.Add(31*time.Second), PolicyStrict))
}

func TestZeroMaxWaitDisablesConstraint(t *testing.T) {
	a := cand("a", session.Profile{Preferences: session.Preferences{Interests: []string{"x"}}})
	b := cand("b", session.Profile{Preferences: session.Preferences{Interests: []string{"y"}}})
	assert.True(t, Compatible(a, b, t0, PolicyStrict))
}

func TestGenderPreferenceRequiresRole(t *testing.T) {
	prefs := session.Preferences{PreferredGenders: []string{"female"}}
	free := cand("a", session.Profile{Role: "user", Gender: "male", Preferences: prefs})
	vip := cand("v", session.Profile{Role: "vip", Gender: "male", Preferences: prefs})
	male := cand("m", session.Profile{Gender: "male"})
	female := cand("f", session.Profile{Gender: "female"})

	assert.True(t, Compatible(free, male, t0, PolicyStrict))
	assert.False(t, Compatible(vip, male, t0, PolicyStrict))
	assert.True(t, Compatible(vip, female, t0, PolicyStrict))
	// Gender never widens.
	assert.False(t, Compatible(vip, male, t0.Add(time.Hour), PolicyStrict))
}

func TestGenderPreferenceIsMutual(t *testing.T) {
	a := cand("a", session.Profile{Role: "admin", Gender: "female", Preferences: session.Preferences{
		PreferredGenders: []string{"female", "other"},
	}})
	b := cand("b", session.Profile{Role: "boost", Gender: "female", Preferences: session.Preferences{
		PreferredGenders: []string{"male"},
	}})
	assert.False(t, Compatible(a, b, t0, PolicyStrict))
	assert.False(t, Compatible(b, a, t0, PolicyStrict))
}

func TestGenderAnyEntry(t *testing.T) {
	a := cand("a", session.Profile{Role: "vip", Preferences: session.Preferences{
		PreferredGenders: []string{"any"},
	}})
	b := cand("b", session.Profile{})
	assert.True(t, Compatible(a, b, t0, PolicyStrict))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyStrict, p)

	p, err = ParsePolicy("Lenient")
	require.NoError(t, err)
	assert.Equal(t, PolicyLenient, p)
	assert.Equal(t, "lenient", p.String())

	_, err = ParsePolicy("loose")
	assert.Error(t, err)
}
