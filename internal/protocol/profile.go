package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/whisper/roulette/internal/session"
)

// ErrInvalidProfile is wrapped by every profile validation failure.
var ErrInvalidProfile = errors.New("protocol: invalid profile")

const (
	maxInterests     = 16
	maxCountries     = 32
	maxTagChars      = 64
	maxUserIDChars   = 128
	maxUsernameChars = 64
	dobLayout        = "2006-01-02"
)

var validGenders = map[string]bool{"": true, "male": true, "female": true, "couple": true}

// StringList decodes either a JSON array of strings or a single string.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one == "" {
			*l = nil
		} else {
			*l = StringList{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected string or array of strings: %w", err)
	}
	*l = many
	return nil
}

// SettingsPayload carries the preference fields of a profile.
type SettingsPayload struct {
	Interests          StringList `json:"interests,omitempty"`
	PreferredGender    StringList `json:"preferred_gender,omitempty"`
	PreferredCountries StringList `json:"preferred_countries,omitempty"`
	InterestMaxWait    *int       `json:"interest_max_wait,omitempty"` // seconds
	CountryMaxWait     *int       `json:"country_max_wait,omitempty"`  // seconds
}

// ProfilePayload is the profile a client sends with start-search.
type ProfilePayload struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Gender    string `json:"gender,omitempty"`
	DOB       string `json:"dob,omitempty"`
	Country   string `json:"country,omitempty"`
	Role      string `json:"role,omitempty"`
	SettingsPayload
}

// PublicProfile is the subset of a profile shown to the partner.
type PublicProfile struct {
	Username  string   `json:"username,omitempty"`
	AvatarURL string   `json:"avatar_url,omitempty"`
	Gender    string   `json:"gender,omitempty"`
	Country   string   `json:"country,omitempty"`
	Age       int      `json:"age,omitempty"`
	Interests []string `json:"interests,omitempty"`
}

// NewPublicProfile builds the partner view of p.
func NewPublicProfile(p session.Profile, now time.Time) PublicProfile {
	return PublicProfile{
		Username:  p.Username,
		AvatarURL: p.AvatarURL,
		Gender:    p.Gender,
		Country:   p.Country,
		Age:       p.Age(now),
		Interests: append([]string(nil), p.Interests...),
	}
}

// Validate checks the preference fields.
func (s SettingsPayload) Validate() error {
	if len(s.Interests) > maxInterests {
		return fmt.Errorf("%w: more than %d interests", ErrInvalidProfile, maxInterests)
	}
	for _, tag := range s.Interests {
		if utf8.RuneCountInString(tag) > maxTagChars {
			return fmt.Errorf("%w: interest longer than %d characters", ErrInvalidProfile, maxTagChars)
		}
	}
	if len(s.PreferredCountries) > maxCountries {
		return fmt.Errorf("%w: more than %d preferred countries", ErrInvalidProfile, maxCountries)
	}
	for _, g := range s.PreferredGender {
		if g = strings.ToLower(strings.TrimSpace(g)); g != "any" && !validGenders[g] {
			return fmt.Errorf("%w: unknown preferred gender %q", ErrInvalidProfile, g)
		}
	}
	return nil
}

// Preferences converts the payload into normalized matching preferences.
// Missing waits default to session.DefaultMaxWait and all waits are clamped.
func (s SettingsPayload) Preferences() session.Preferences {
	return session.Preferences{
		Interests:          session.Normalize(s.Interests),
		PreferredGenders:   session.Normalize(s.PreferredGender),
		PreferredCountries: session.Normalize(s.PreferredCountries),
		InterestMaxWait:    waitSeconds(s.InterestMaxWait),
		CountryMaxWait:     waitSeconds(s.CountryMaxWait),
	}
}

// Validate checks identity and preference fields.
func (p ProfilePayload) Validate() error {
	id := strings.TrimSpace(p.UserID)
	if id == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidProfile)
	}
	if utf8.RuneCountInString(id) > maxUserIDChars {
		return fmt.Errorf("%w: user_id too long", ErrInvalidProfile)
	}
	if utf8.RuneCountInString(p.Username) > maxUsernameChars {
		return fmt.Errorf("%w: username longer than %d characters", ErrInvalidProfile, maxUsernameChars)
	}
	if !validGenders[strings.ToLower(p.Gender)] {
		return fmt.Errorf("%w: unknown gender %q", ErrInvalidProfile, p.Gender)
	}
	if p.DOB != "" {
		if _, err := time.Parse(dobLayout, p.DOB); err != nil {
			return fmt.Errorf("%w: dob must be YYYY-MM-DD", ErrInvalidProfile)
		}
	}
	return p.SettingsPayload.Validate()
}

// Snapshot validates the payload and converts it into a session profile.
func (p ProfilePayload) Snapshot() (session.Profile, error) {
	if err := p.Validate(); err != nil {
		return session.Profile{}, err
	}
	var dob time.Time
	if p.DOB != "" {
		dob, _ = time.Parse(dobLayout, p.DOB)
	}
	return session.Profile{
		UserID:      strings.TrimSpace(p.UserID),
		Username:    p.Username,
		AvatarURL:   p.AvatarURL,
		Gender:      strings.ToLower(p.Gender),
		DateOfBirth: dob,
		Country:     strings.ToLower(strings.TrimSpace(p.Country)),
		Role:        strings.ToLower(strings.TrimSpace(p.Role)),
		Preferences: p.SettingsPayload.Preferences(),
	}, nil
}

func waitSeconds(v *int) time.Duration {
	if v == nil {
		return session.DefaultMaxWait
	}
	secs := *v
	if ceiling := int(session.MaxWaitCeiling / time.Second); secs > ceiling {
		secs = ceiling
	}
	return session.ClampMaxWait(time.Duration(secs) * time.Second)
}
