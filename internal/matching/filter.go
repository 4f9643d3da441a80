package matching

import (
	"fmt"
	"strings"
	"time"

	"github.com/whisper/roulette/internal/session"
)

// Policy selects how a one-sided interest or country constraint is treated.
type Policy int

const (
	// PolicyStrict keeps a constraint in force while either side still has
	// it active.
	PolicyStrict Policy = iota
	// PolicyLenient drops a constraint as soon as either side's wait lapses.
	PolicyLenient
)

// ParsePolicy maps "strict" or "lenient" onto a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return PolicyStrict, nil
	case "lenient":
		return PolicyLenient, nil
	default:
		return PolicyStrict, fmt.Errorf("matching: unknown widening policy %q", s)
	}
}

func (p Policy) String() string {
	if p == PolicyLenient {
		return "lenient"
	}
	return "strict"
}

// genderFilterRoles are the roles whose gender preference is honoured.
var genderFilterRoles = map[string]bool{
	"vip":   true,
	"boost": true,
	"admin": true,
}

// Candidate is the view of a waiting connection the filter needs. Its
// profile must already be normalized (see session.Profile.Normalized); the
// filter compares values as they are.
type Candidate struct {
	ID              string
	Profile         session.Profile
	SearchStartedAt time.Time
}

// Compatible reports whether a and b may be paired at now. Gender
// preferences must be mutually satisfied. Interest and country constraints
// apply while their max wait has not elapsed, as decided by policy.
func Compatible(a, b Candidate, now time.Time, policy Policy) bool {
	if !acceptsGender(a.Profile, b.Profile) || !acceptsGender(b.Profile, a.Profile) {
		return false
	}

	shared := sharesAny(a.Profile.Interests, b.Profile.Interests)
	if !constraintHolds(
		interestActive(a, now), shared,
		interestActive(b, now), shared,
		policy,
	) {
		return false
	}

	return constraintHolds(
		countryActive(a, now), contains(a.Profile.PreferredCountries, b.Profile.Country),
		countryActive(b, now), contains(b.Profile.PreferredCountries, a.Profile.Country),
		policy,
	)
}

// constraintHolds combines the per-side activity and satisfaction of one
// constraint.
func constraintHolds(activeA, okA, activeB, okB bool, policy Policy) bool {
	if policy == PolicyLenient {
		if !activeA || !activeB {
			return true
		}
		return okA && okB
	}
	return (!activeA || okA) && (!activeB || okB)
}

func acceptsGender(self, other session.Profile) bool {
	if len(self.PreferredGenders) == 0 || !genderFilterRoles[self.Role] {
		return true
	}
	for _, g := range self.PreferredGenders {
		if g == "any" {
			return true
		}
	}
	return contains(self.PreferredGenders, other.Gender)
}

func interestActive(c Candidate, now time.Time) bool {
	return len(c.Profile.Interests) > 0 && now.Sub(c.SearchStartedAt) < c.Profile.InterestMaxWait
}

func countryActive(c Candidate, now time.Time) bool {
	return len(c.Profile.PreferredCountries) > 0 && now.Sub(c.SearchStartedAt) < c.Profile.CountryMaxWait
}

// lapsedBetween reports whether an interest or country constraint of c
// stopped being active in (from, to].
func lapsedBetween(c Candidate, from, to time.Time) bool {
	lapses := func(n int, wait time.Duration) bool {
		if n == 0 {
			return false
		}
		at := c.SearchStartedAt.Add(wait)
		return at.After(from) && !at.After(to)
	}
	return lapses(len(c.Profile.Interests), c.Profile.InterestMaxWait) ||
		lapses(len(c.Profile.PreferredCountries), c.Profile.CountryMaxWait)
}

// Interest lists are capped small, so a nested loop beats building a set.
func sharesAny(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func contains(set []string, v string) bool {
	if v == "" {
		return false
	}
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
