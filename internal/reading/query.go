// Package reading exposes the query facade: the single synchronous entry
// point that turns a per-request [QueryRecord] into delivery recommendations,
// reward diagnostics, and learning data.
package reading

import (
	"fmt"

	"github.com/veloread/cadence/internal/env"
)

// RangeError reports a QueryRecord field outside its declared range. The
// record is rejected before any internal state is touched, so the caller can
// correct and resubmit.
type RangeError struct {
	Field    string
	Value    float64
	Min, Max float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("reading: %s = %g outside [%g, %g]", e.Field, e.Value, e.Min, e.Max)
}

// QueryRecord is the immutable per-request input. All required fields must
// lie in their declared ranges (inclusive); optional fields are pointers so
// absence is distinguishable from zero.
type QueryRecord struct {
	// Text analysis signals, each in [0, 1].
	TextDifficulty float64 `json:"text_difficulty"`
	TextType       float64 `json:"text_type"`
	TextLength     float64 `json:"text_length"`

	// User behaviour signals.
	UserEngagement    float64  `json:"user_engagement"`
	UserComprehension float64  `json:"user_comprehension"`
	RecentCommands    []string `json:"recent_commands"`
	TextProgress      float64  `json:"text_progress"`

	// Current delivery settings on the playback side.
	CurrentReadingSpeed       float64 `json:"current_reading_speed"`
	CurrentPauseFrequency     float64 `json:"current_pause_frequency"`
	CurrentHighlightIntensity float64 `json:"current_highlight_intensity"`
	CurrentChunkSize          float64 `json:"current_chunk_size"`

	// Optional session data.
	SessionDuration float64 `json:"session_duration,omitempty"`
	ActionCount     int     `json:"action_count,omitempty"`

	// Optional stated preferences; nil means not reported.
	PreferredSpeed        *float64 `json:"preferred_speed,omitempty"`
	PreferredPauses       *float64 `json:"preferred_pauses,omitempty"`
	PreferredHighlighting *float64 `json:"preferred_highlighting,omitempty"`
}

// DefaultRecord returns a QueryRecord pre-filled with the neutral signal
// values and the default delivery settings. Callers override the fields they
// actually observed; preferences stay nil until the listener states them.
func DefaultRecord() QueryRecord {
	return QueryRecord{
		TextDifficulty:            0.5,
		TextType:                  0.4,
		TextLength:                0.5,
		UserEngagement:            0.5,
		UserComprehension:         0.5,
		CurrentReadingSpeed:       env.DefaultReadingSpeed,
		CurrentPauseFrequency:     env.DefaultPauseFrequency,
		CurrentHighlightIntensity: env.DefaultHighlightIntensity,
		CurrentChunkSize:          env.DefaultChunkSize,
	}
}

// fieldRange binds a record field to its inclusive bounds for validation.
type fieldRange struct {
	name     string
	value    float64
	min, max float64
}

// Validate checks every field against its declared range and returns a
// [*RangeError] naming the first violation. Bounds are inclusive at both
// ends.
func (q *QueryRecord) Validate() error {
	checks := []fieldRange{
		{"text_difficulty", q.TextDifficulty, 0, 1},
		{"text_type", q.TextType, 0, 1},
		{"text_length", q.TextLength, 0, 1},
		{"user_engagement", q.UserEngagement, 0, 1},
		{"user_comprehension", q.UserComprehension, 0, 1},
		{"text_progress", q.TextProgress, 0, 1},
		{"current_reading_speed", q.CurrentReadingSpeed, 0.5, 1.5},
		{"current_pause_frequency", q.CurrentPauseFrequency, 0.1, 0.8},
		{"current_highlight_intensity", q.CurrentHighlightIntensity, 0, 1},
		{"current_chunk_size", q.CurrentChunkSize, 0.1, 1.0},
	}
	if q.SessionDuration != 0 {
		checks = append(checks, fieldRange{"session_duration", q.SessionDuration, 0, maxSessionDuration})
	}
	if q.ActionCount < 0 {
		return &RangeError{Field: "action_count", Value: float64(q.ActionCount), Min: 0, Max: maxActionCount}
	}
	if q.PreferredSpeed != nil {
		checks = append(checks, fieldRange{"preferred_speed", *q.PreferredSpeed, 0.5, 1.5})
	}
	if q.PreferredPauses != nil {
		checks = append(checks, fieldRange{"preferred_pauses", *q.PreferredPauses, 0.1, 0.8})
	}
	if q.PreferredHighlighting != nil {
		checks = append(checks, fieldRange{"preferred_highlighting", *q.PreferredHighlighting, 0, 1})
	}

	for _, c := range checks {
		if c.value < c.min || c.value > c.max {
			return &RangeError{Field: c.name, Value: c.value, Min: c.min, Max: c.max}
		}
	}
	return nil
}

// Practical ceilings for the open-ended optional fields; a week-long session
// or a million actions is a caller bug, not a preference.
const (
	maxSessionDuration = 7 * 24 * 3600
	maxActionCount     = 1 << 20
)
