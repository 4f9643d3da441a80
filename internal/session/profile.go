package session

import (
	"strings"
	"time"
)

// DefaultMaxWait is how long interest and country constraints stay active
// when a profile does not say otherwise.
const DefaultMaxWait = 30 * time.Second

// MaxWaitCeiling bounds any configured max wait.
const MaxWaitCeiling = 10 * time.Minute

// Preferences are the matching constraints a user can change between
// searches.
type Preferences struct {
	Interests          []string
	PreferredGenders   []string // empty means any
	PreferredCountries []string // empty means any
	InterestMaxWait    time.Duration
	CountryMaxWait     time.Duration
}

// Profile is the snapshot of a user's identity and preferences used for
// filtering and shown to the partner on match.
type Profile struct {
	UserID      string
	Username    string
	AvatarURL   string
	Gender      string
	DateOfBirth time.Time // zero when unknown
	Country     string
	Role        string
	BannedUntil time.Time // zero when not banned

	Preferences
}

// Clone returns a deep copy so snapshots never share slices with callers.
func (p Profile) Clone() Profile {
	out := p
	out.Preferences = p.Preferences.Clone()
	return out
}

// Clone returns a deep copy of the preference lists.
func (p Preferences) Clone() Preferences {
	out := p
	out.Interests = cloneStrings(p.Interests)
	out.PreferredGenders = cloneStrings(p.PreferredGenders)
	out.PreferredCountries = cloneStrings(p.PreferredCountries)
	return out
}

// Empty reports whether no interest, gender or country filter is set.
func (p Preferences) Empty() bool {
	return len(p.Interests) == 0 && len(p.PreferredGenders) == 0 && len(p.PreferredCountries) == 0
}

// Normalized returns a deep copy with gender, country and role lowercased
// and every preference list passed through Normalize, so filters can compare
// values directly.
func (p Profile) Normalized() Profile {
	out := p
	out.Gender = strings.ToLower(strings.TrimSpace(p.Gender))
	out.Country = strings.ToLower(strings.TrimSpace(p.Country))
	out.Role = strings.ToLower(strings.TrimSpace(p.Role))
	out.Interests = Normalize(p.Interests)
	out.PreferredGenders = Normalize(p.PreferredGenders)
	out.PreferredCountries = Normalize(p.PreferredCountries)
	return out
}

// WithPreferences returns a copy of p whose preferences are replaced by prefs.
func (p Profile) WithPreferences(prefs Preferences) Profile {
	out := p.Clone()
	out.Preferences = prefs.Clone()
	return out
}

// Age returns the whole years between the date of birth and now, or 0 when
// the date of birth is unknown.
func (p Profile) Age(now time.Time) int {
	if p.DateOfBirth.IsZero() || now.Before(p.DateOfBirth) {
		return 0
	}
	years := now.Year() - p.DateOfBirth.Year()
	if now.Month() < p.DateOfBirth.Month() ||
		(now.Month() == p.DateOfBirth.Month() && now.Day() < p.DateOfBirth.Day()) {
		years--
	}
	return years
}

// Banned reports whether the profile carries a ban that is still running.
func (p Profile) Banned(now time.Time) bool {
	return !p.BannedUntil.IsZero() && now.Before(p.BannedUntil)
}

// ClampMaxWait maps a configured wait onto [0, MaxWaitCeiling]. Negative
// values fall back to DefaultMaxWait.
func ClampMaxWait(d time.Duration) time.Duration {
	switch {
	case d < 0:
		return DefaultMaxWait
	case d > MaxWaitCeiling:
		return MaxWaitCeiling
	default:
		return d
	}
}

// Normalize lowercases and trims every entry, dropping blanks and duplicates.
func Normalize(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
