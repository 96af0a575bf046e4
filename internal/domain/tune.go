package domain

import (
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

type PrivacyStatus string

const (
	PrivacyPrivate  PrivacyStatus = "private"
	PrivacyUnlisted PrivacyStatus = "unlisted"
	PrivacyPublic   PrivacyStatus = "public"
)

const MaxTitleLength = 100

// Tune is one scheduled audio+image → video → upload unit of work.
//
// A tune is either pending (Executed=false) or done (Executed=true); there is
// no other state. A failed attempt leaves the tune pending, so the next sweep
// naturally retries it. All timestamps are UTC.
type Tune struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	CreatedAt time.Time  `json:"date_created"`
	DueAt     *time.Time `json:"upload_date"` // nil means run immediately
	Executed  bool       `json:"executed"`

	Title       string        `json:"video_title"`
	Description string        `json:"video_description"`
	Category    string        `json:"category"`
	Tags        []string      `json:"tags"`
	Privacy     PrivacyStatus `json:"privacy_status"`
	Embeddable  bool          `json:"embeddable"`
	License     string        `json:"license"`

	// Artifacts. BaseDir holds exactly one audio and one image file, plus the
	// rendered video once a fulfillment attempt has run. Immutable after
	// creation: re-uploading new media requires a new tune.
	BaseDir   string `json:"base_dir"`
	ImageName string `json:"image_name"`
	ImageType string `json:"image_type"`
	AudioName string `json:"audio_name"`
	AudioType string `json:"audio_type"`
}

func (p PrivacyStatus) Valid() bool {
	switch p {
	case PrivacyPrivate, PrivacyUnlisted, PrivacyPublic:
		return true
	}
	return false
}

// Validate checks invariants that must hold before the tune causes any side
// effect. Errors carry the offending field name.
func (t *Tune) Validate(now time.Time) error {
	title := strings.TrimSpace(t.Title)
	if title == "" {
		return &ValidationError{Field: "video_title", Message: "must not be empty"}
	}
	if len(title) > MaxTitleLength {
		return &ValidationError{Field: "video_title", Message: "must be at most 100 characters"}
	}
	if t.DueAt != nil && t.DueAt.Before(now) {
		return &ValidationError{Field: "upload_date", Message: "must be in the future"}
	}
	if !t.Privacy.Valid() {
		return &ValidationError{Field: "privacy_status", Message: "must be private, unlisted or public"}
	}
	if t.AudioName == "" {
		return &ValidationError{Field: "audio_name", Message: "must not be empty"}
	}
	if t.ImageName == "" {
		return &ValidationError{Field: "image_name", Message: "must not be empty"}
	}
	return nil
}

// Due reports whether the tune is eligible for fulfillment at the given time.
// A nil due date means "run immediately".
func (t *Tune) Due(now time.Time) bool {
	if t.Executed {
		return false
	}
	return t.DueAt == nil || !t.DueAt.After(now)
}

func (t *Tune) AudioPath() string {
	return filepath.Join(t.BaseDir, t.AudioName)
}

func (t *Tune) ImagePath() string {
	return filepath.Join(t.BaseDir, t.ImageName)
}

// OutputPath is the deterministic location of the rendered video, derived from
// the title and co-located with the source artifacts.
func (t *Tune) OutputPath() string {
	return filepath.Join(t.BaseDir, SanitizeFilename(t.Title)+".mp4")
}

// SanitizeFilename reduces a video title to a safe filename: letters, digits,
// dashes and underscores, with runs of anything else collapsed to a single
// underscore.
func SanitizeFilename(title string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.TrimSpace(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "tune"
	}
	return out
}
