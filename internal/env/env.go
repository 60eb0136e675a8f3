// Package env implements the reading environment: the mutable delivery
// settings (speed, pause frequency, highlight intensity, chunk size), the
// step/reset state machine that applies continuous actions to them, and the
// multi-term reward that scores how well the current settings serve the
// listener.
//
// The environment is the sole owner of [Settings]; actions mutate them only
// through [Environment.Step], and the query facade writes observed settings
// through [Environment.SetSettings] before asking for a reward.
package env

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Default delivery settings used at construction and after [Environment.Reset].
const (
	DefaultReadingSpeed       = 1.0
	DefaultPauseFrequency     = 0.3
	DefaultHighlightIntensity = 0.5
	DefaultChunkSize          = 0.5
)

// maxSessionSteps is the step count after which a reading session is
// considered complete.
const maxSessionSteps = 50

// Settings are the live delivery control parameters.
type Settings struct {
	ReadingSpeed       float64 `json:"reading_speed"`
	PauseFrequency     float64 `json:"pause_frequency"`
	HighlightIntensity float64 `json:"highlight_intensity"`
	ChunkSize          float64 `json:"chunk_size"`
}

// DefaultSettings returns the neutral starting settings.
func DefaultSettings() Settings {
	return Settings{
		ReadingSpeed:       DefaultReadingSpeed,
		PauseFrequency:     DefaultPauseFrequency,
		HighlightIntensity: DefaultHighlightIntensity,
		ChunkSize:          DefaultChunkSize,
	}
}

// Feedback is one listener feedback entry. Nil fields were not reported.
// Comprehension and Engagement overwrite the tracked user signals when set;
// the Preferred* fields feed the preference-alignment reward.
type Feedback struct {
	Comprehension         *float64 `json:"comprehension,omitempty"`
	Engagement            *float64 `json:"engagement,omitempty"`
	PreferredSpeed        *float64 `json:"preferred_speed,omitempty"`
	PreferredPauses       *float64 `json:"preferred_pauses,omitempty"`
	PreferredHighlighting *float64 `json:"preferred_highlighting,omitempty"`
}

// SessionRecord captures one bracketed reading session.
type SessionRecord struct {
	ID              string    `json:"id"`
	StartTime       time.Time `json:"start_time"`
	Duration        float64   `json:"duration_seconds"`
	TextDifficulty  float64   `json:"text_difficulty"`
	InitialSettings Settings  `json:"initial_settings"`
	FinalSettings   Settings  `json:"final_settings"`
}

// StepResult is the outcome of one [Environment.Step].
type StepResult struct {
	// State is the rebuilt state vector after the action was applied.
	State []float64

	// Reward is the clipped total reward for the new settings.
	Reward float64

	// Done reports that the session step limit has been exceeded.
	Done bool

	// Truncated is reserved for external cutoffs; the environment itself
	// never truncates.
	Truncated bool

	// Breakdown carries the per-term reward diagnostics behind Reward.
	Breakdown RewardBreakdown
}

// Environment tracks delivery settings, listener signals, feedback history,
// and session bookkeeping.
//
// Not safe for concurrent use on its own; the reading facade serialises
// access.
type Environment struct {
	stateSize  int
	actionSize int

	settings Settings

	// Tracked listener/text signals, all in [0, 1].
	textDifficulty float64
	comprehension  float64
	engagement     float64
	textProgress   float64

	stepCount    int
	feedback     []Feedback
	sessions     []SessionRecord
	sessionStart time.Time

	// now is swappable for tests.
	now func() time.Time
}

// Config configures an [Environment].
type Config struct {
	// StateSize is the dimension of emitted state vectors. Default: 20.
	StateSize int

	// ActionSize is the expected action vector dimension. Default: 8.
	ActionSize int
}

// New creates an [Environment] with neutral signals and default settings.
func New(cfg Config) *Environment {
	stateSize := cfg.StateSize
	if stateSize <= 0 {
		stateSize = 20
	}
	actionSize := cfg.ActionSize
	if actionSize <= 0 {
		actionSize = 8
	}
	return &Environment{
		stateSize:      stateSize,
		actionSize:     actionSize,
		settings:       DefaultSettings(),
		textDifficulty: 0.5,
		comprehension:  0.5,
		engagement:     0.5,
		now:            time.Now,
	}
}

// Reset restores the default settings and returns the resulting state
// vector. Session history and feedback are deliberately preserved: reset
// starts a fresh decision sequence, not a fresh listener.
func (e *Environment) Reset() []float64 {
	e.settings = DefaultSettings()
	e.stepCount = 0
	return e.StateVector()
}

// Step applies action to the delivery settings, computes the reward for the
// resulting configuration, and returns the new state.
//
// Only the first three action dimensions are mapped to settings; the
// remainder are reserved for future controls. The affine maps and bounds are
// fixed:
//
//	speed     = clamp(1.0 + a[0]*0.5, 0.5, 1.5)
//	pause     = clamp(0.3 + a[1]*0.5, 0.1, 0.8)
//	highlight = clamp(0.5 + a[2]*0.5, 0.0, 1.0)
func (e *Environment) Step(action []float64) (StepResult, error) {
	if len(action) != e.actionSize {
		return StepResult{}, fmt.Errorf("env: action has dimension %d, want %d", len(action), e.actionSize)
	}

	e.settings.ReadingSpeed = clamp(1.0+action[0]*0.5, 0.5, 1.5)
	e.settings.PauseFrequency = clamp(0.3+action[1]*0.5, 0.1, 0.8)
	e.settings.HighlightIntensity = clamp(0.5+action[2]*0.5, 0.0, 1.0)

	e.stepCount++

	breakdown := e.RewardBreakdown()
	return StepResult{
		State:     e.StateVector(),
		Reward:    breakdown.Total,
		Done:      e.stepCount > maxSessionSteps,
		Breakdown: breakdown,
	}, nil
}

// StateVector builds the environment's own view of the state: tracked
// signals, current settings, and session aggregates, zero-padded to the
// configured state size.
func (e *Environment) StateVector() []float64 {
	features := []float64{
		e.textDifficulty,
		e.settings.ReadingSpeed,
		e.comprehension,
		e.engagement,
		e.settings.PauseFrequency,
		e.settings.HighlightIntensity,
		float64(len(e.sessions)),
		e.meanFeedbackComprehension(),
		e.textProgress,
	}

	state := make([]float64, e.stateSize)
	copy(state, features)
	return state
}

// meanFeedbackComprehension averages the comprehension values reported in
// feedback history, defaulting to 0.5 when none were reported.
func (e *Environment) meanFeedbackComprehension() float64 {
	var sum float64
	var n int
	for _, f := range e.feedback {
		if f.Comprehension != nil {
			sum += *f.Comprehension
			n++
		}
	}
	if n == 0 {
		return 0.5
	}
	return sum / float64(n)
}

// ObserveSignals updates the tracked text and listener signals. Values are
// clamped to [0, 1].
func (e *Environment) ObserveSignals(difficulty, engagement, comprehension, progress float64) {
	e.textDifficulty = clamp(difficulty, 0, 1)
	e.engagement = clamp(engagement, 0, 1)
	e.comprehension = clamp(comprehension, 0, 1)
	e.textProgress = clamp(progress, 0, 1)
}

// UpdateFeedback appends fb to the feedback history and overwrites the
// tracked comprehension/engagement signals when fb reports them.
func (e *Environment) UpdateFeedback(fb Feedback) {
	e.feedback = append(e.feedback, fb)
	if fb.Comprehension != nil {
		e.comprehension = clamp(*fb.Comprehension, 0, 1)
	}
	if fb.Engagement != nil {
		e.engagement = clamp(*fb.Engagement, 0, 1)
	}
}

// SetSettings writes observed delivery settings through to the environment.
// Used by the query facade when a caller reports the settings actually in
// effect on the playback side.
func (e *Environment) SetSettings(s Settings) {
	e.settings = s
}

// Settings returns the current delivery settings.
func (e *Environment) Settings() Settings {
	return e.settings
}

// StepCount returns the number of steps taken since the last reset.
func (e *Environment) StepCount() int {
	return e.stepCount
}

// StartSession opens a new session record with the current settings as the
// initial snapshot.
func (e *Environment) StartSession() {
	e.sessionStart = e.now()
	e.sessions = append(e.sessions, SessionRecord{
		ID:              uuid.New().String(),
		StartTime:       e.sessionStart,
		TextDifficulty:  e.textDifficulty,
		InitialSettings: e.settings,
	})
}

// EndSession closes the most recent session record, stamping its duration
// and final settings. A call without a matching StartSession is a no-op.
func (e *Environment) EndSession() {
	if e.sessionStart.IsZero() || len(e.sessions) == 0 {
		return
	}
	last := &e.sessions[len(e.sessions)-1]
	last.Duration = e.now().Sub(e.sessionStart).Seconds()
	last.FinalSettings = e.settings
	e.sessionStart = time.Time{}
}

// Sessions returns a copy of the recorded sessions.
func (e *Environment) Sessions() []SessionRecord {
	out := make([]SessionRecord, len(e.sessions))
	copy(out, e.sessions)
	return out
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
