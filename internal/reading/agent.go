package reading

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/veloread/cadence/internal/analyze"
	"github.com/veloread/cadence/internal/env"
	"github.com/veloread/cadence/internal/observe"
)

// maxCommandHistory bounds the retained per-session command list.
const maxCommandHistory = 10

// Policy produces action vectors from state vectors. Implemented by the
// actor-critic agent.
type Policy interface {
	Action(state []float64, stochastic bool) (action, raw []float64, err error)
}

// ExperienceSink receives decision-cycle experience for later training.
// Implemented by the training scheduler; a nil sink disables collection.
type ExperienceSink interface {
	Collect(state, action []float64, reward float64, nextState []float64, done bool)
}

// Recommendations are the policy's suggested delivery settings, each mapped
// to its physical bounds.
type Recommendations struct {
	ReadingSpeed       float64 `json:"recommended_reading_speed"`
	PauseFrequency     float64 `json:"recommended_pause_frequency"`
	HighlightIntensity float64 `json:"recommended_highlight_intensity"`
	ChunkSize          float64 `json:"recommended_chunk_size"`
}

// StateAnalysis echoes the signals that entered the state vector, for caller
// diagnostics.
type StateAnalysis struct {
	TextDifficulty     float64 `json:"text_difficulty"`
	TextLength         float64 `json:"text_length"`
	TextType           float64 `json:"text_type"`
	ReadingSpeed       float64 `json:"reading_speed"`
	PauseFrequency     float64 `json:"pause_frequency"`
	HighlightIntensity float64 `json:"highlight_intensity"`
	ChunkSize          float64 `json:"chunk_size"`
	UserEngagement     float64 `json:"user_engagement"`
	UserComprehension  float64 `json:"user_comprehension"`
	SessionProgress    float64 `json:"session_progress"`
	ActionCount        float64 `json:"action_count"`
	RecentCommands     float64 `json:"recent_commands"`
}

// LearningData carries the raw decision-cycle artifacts so callers can feed
// them back into training pipelines of their own.
type LearningData struct {
	Reward      float64   `json:"reward"`
	StateVector []float64 `json:"state_vector"`
	Action      []float64 `json:"action_taken"`
}

// Response is the full result of one processed query.
type Response struct {
	Recommendations Recommendations     `json:"recommendations"`
	StateAnalysis   StateAnalysis       `json:"state_analysis"`
	RewardBreakdown env.RewardBreakdown `json:"reward_breakdown"`
	CurrentSettings env.Settings        `json:"current_settings"`
	Learning        LearningData        `json:"learning_data"`
}

// AgentConfig configures a reading [Agent].
type AgentConfig struct {
	// Policy is the trained decision policy. Required.
	Policy Policy

	// Environment owns delivery settings and computes rewards. Required.
	Environment *env.Environment

	// Builder converts query records to state vectors. Required.
	Builder *Builder

	// Sink receives per-decision experience. Optional.
	Sink ExperienceSink

	// Metrics records query counters and reward distributions. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Agent is the query facade: the single synchronous entry point that turns a
// [QueryRecord] into recommendations and diagnostics.
//
// All methods are safe for concurrent use. One coarse mutex guards the
// environment and session trackers; decision traffic is light enough that
// finer-grained locking buys nothing.
type Agent struct {
	policy  Policy
	builder *Builder
	sink    ExperienceSink
	metrics *observe.Metrics
	scorer  *analyze.CommandScorer

	mu             sync.Mutex
	environ        *env.Environment
	commandHistory []string
	sessionSeconds float64
}

// NewAgent wires the facade together. Policy, Environment, and Builder are
// required.
func NewAgent(cfg AgentConfig) (*Agent, error) {
	if cfg.Policy == nil {
		return nil, fmt.Errorf("reading: policy is required")
	}
	if cfg.Environment == nil {
		return nil, fmt.Errorf("reading: environment is required")
	}
	if cfg.Builder == nil {
		return nil, fmt.Errorf("reading: state builder is required")
	}
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Agent{
		policy:  cfg.Policy,
		environ: cfg.Environment,
		builder: cfg.Builder,
		sink:    cfg.Sink,
		metrics: m,
		scorer:  analyze.NewCommandScorer(),
	}, nil
}

// ProcessQuery validates q, writes its observed settings and signals through
// to the environment, asks the policy for a deterministic action, and returns
// recommendations with full reward diagnostics.
//
// Validation failures reject the record before any state mutation and are
// returned as a [*RangeError].
func (a *Agent) ProcessQuery(ctx context.Context, q *QueryRecord) (*Response, error) {
	ctx, span := observe.StartSpan(ctx, "reading.process_query")
	defer span.End()
	start := time.Now()

	if err := q.Validate(); err != nil {
		a.metrics.RecordQuery(ctx, time.Since(start).Seconds(), "invalid")
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Write-through: the caller's observed settings and signals become the
	// environment's current truth.
	a.environ.SetSettings(env.Settings{
		ReadingSpeed:       q.CurrentReadingSpeed,
		PauseFrequency:     q.CurrentPauseFrequency,
		HighlightIntensity: q.CurrentHighlightIntensity,
		ChunkSize:          q.CurrentChunkSize,
	})
	a.environ.ObserveSignals(q.TextDifficulty, q.UserEngagement, q.UserComprehension, q.TextProgress)
	a.recordCommands(q.RecentCommands)
	a.sessionSeconds = q.SessionDuration
	if q.PreferredSpeed != nil || q.PreferredPauses != nil || q.PreferredHighlighting != nil {
		a.environ.UpdateFeedback(env.Feedback{
			PreferredSpeed:        q.PreferredSpeed,
			PreferredPauses:       q.PreferredPauses,
			PreferredHighlighting: q.PreferredHighlighting,
		})
	}

	state := a.builder.Build(q)

	// Live recommendations never explore.
	action, _, err := a.policy.Action(state, false)
	if err != nil {
		a.metrics.RecordQuery(ctx, time.Since(start).Seconds(), "error")
		return nil, fmt.Errorf("reading: policy evaluation: %w", err)
	}

	breakdown := a.environ.RewardBreakdown()

	if a.sink != nil {
		a.sink.Collect(state, action, breakdown.Total, state, false)
	}

	a.metrics.RecordQuery(ctx, time.Since(start).Seconds(), "ok")
	a.metrics.RecordReward(ctx, breakdown.Total)
	observe.Logger(ctx).Debug("query processed",
		"reward", breakdown.Total,
		"difficulty", q.TextDifficulty,
		"commands", len(q.RecentCommands),
	)

	return &Response{
		Recommendations: mapRecommendations(action),
		StateAnalysis: StateAnalysis{
			TextDifficulty:     q.TextDifficulty,
			TextLength:         q.TextLength,
			TextType:           q.TextType,
			ReadingSpeed:       q.CurrentReadingSpeed,
			PauseFrequency:     q.CurrentPauseFrequency,
			HighlightIntensity: q.CurrentHighlightIntensity,
			ChunkSize:          q.CurrentChunkSize,
			UserEngagement:     q.UserEngagement,
			UserComprehension:  q.UserComprehension,
			SessionProgress:    q.TextProgress,
			ActionCount:        float64(q.ActionCount),
			RecentCommands:     saturatingCommandCount(len(q.RecentCommands)),
		},
		RewardBreakdown: breakdown,
		CurrentSettings: a.environ.Settings(),
		Learning: LearningData{
			Reward:      breakdown.Total,
			StateVector: state,
			Action:      action,
		},
	}, nil
}

// mapRecommendations applies the fixed affine maps to the first four action
// dimensions.
func mapRecommendations(action []float64) Recommendations {
	return Recommendations{
		ReadingSpeed:       clampf(1.0+action[0]*0.5, 0.5, 1.5),
		PauseFrequency:     clampf(0.3+action[1]*0.5, 0.1, 0.8),
		HighlightIntensity: clampf(0.5+action[2]*0.5, 0.0, 1.0),
		ChunkSize:          clampf(0.5+action[3]*0.5, 0.1, 1.0),
	}
}

// RecordFromText builds a QueryRecord from raw text content and recent voice
// commands, deriving the text and behaviour signals with the analyze
// heuristics. current supplies the live delivery settings.
func (a *Agent) RecordFromText(content string, commands []string, current env.Settings, progress float64) QueryRecord {
	sig := analyze.Text(content)
	return QueryRecord{
		TextDifficulty:            sig.Difficulty,
		TextType:                  sig.Type,
		TextLength:                sig.Length,
		UserEngagement:            a.scorer.Engagement(commands),
		UserComprehension:         a.scorer.Comprehension(commands),
		RecentCommands:            commands,
		TextProgress:              clampf(progress, 0, 1),
		CurrentReadingSpeed:       current.ReadingSpeed,
		CurrentPauseFrequency:     current.PauseFrequency,
		CurrentHighlightIntensity: current.HighlightIntensity,
		CurrentChunkSize:          current.ChunkSize,
	}
}

// SettingsPatch updates a subset of the delivery settings; nil fields are
// left unchanged.
type SettingsPatch struct {
	ReadingSpeed       *float64 `json:"reading_speed,omitempty"`
	PauseFrequency     *float64 `json:"pause_frequency,omitempty"`
	HighlightIntensity *float64 `json:"highlight_intensity,omitempty"`
	ChunkSize          *float64 `json:"chunk_size,omitempty"`
}

// UpdateSettings applies p to the current settings, validating each supplied
// field against its physical range.
func (a *Agent) UpdateSettings(p SettingsPatch) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.environ.Settings()
	if p.ReadingSpeed != nil {
		if *p.ReadingSpeed < 0.5 || *p.ReadingSpeed > 1.5 {
			return &RangeError{Field: "reading_speed", Value: *p.ReadingSpeed, Min: 0.5, Max: 1.5}
		}
		s.ReadingSpeed = *p.ReadingSpeed
	}
	if p.PauseFrequency != nil {
		if *p.PauseFrequency < 0.1 || *p.PauseFrequency > 0.8 {
			return &RangeError{Field: "pause_frequency", Value: *p.PauseFrequency, Min: 0.1, Max: 0.8}
		}
		s.PauseFrequency = *p.PauseFrequency
	}
	if p.HighlightIntensity != nil {
		if *p.HighlightIntensity < 0 || *p.HighlightIntensity > 1 {
			return &RangeError{Field: "highlight_intensity", Value: *p.HighlightIntensity, Min: 0, Max: 1}
		}
		s.HighlightIntensity = *p.HighlightIntensity
	}
	if p.ChunkSize != nil {
		if *p.ChunkSize < 0.1 || *p.ChunkSize > 1 {
			return &RangeError{Field: "chunk_size", Value: *p.ChunkSize, Min: 0.1, Max: 1}
		}
		s.ChunkSize = *p.ChunkSize
	}
	a.environ.SetSettings(s)
	return nil
}

// UpdateFeedback forwards listener feedback to the environment.
func (a *Agent) UpdateFeedback(fb env.Feedback) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.environ.UpdateFeedback(fb)
}

// CurrentSettings returns the live delivery settings.
func (a *Agent) CurrentSettings() env.Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.environ.Settings()
}

// ResetSession closes the current session record, clears per-session tracking
// (command history, duration), restores default delivery settings, and opens
// a fresh session. Feedback and prior session records survive.
func (a *Agent) ResetSession() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.commandHistory = a.commandHistory[:0]
	a.sessionSeconds = 0
	a.environ.EndSession()
	a.environ.Reset()
	a.environ.StartSession()
}

// Sessions returns the recorded session history.
func (a *Agent) Sessions() []env.SessionRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.environ.Sessions()
}

// recordCommands appends to the bounded command history, keeping the newest
// entries.
func (a *Agent) recordCommands(cmds []string) {
	a.commandHistory = append(a.commandHistory, cmds...)
	if n := len(a.commandHistory); n > maxCommandHistory {
		a.commandHistory = a.commandHistory[n-maxCommandHistory:]
	}
}

// CommandHistory returns a copy of the retained command history.
func (a *Agent) CommandHistory() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.commandHistory))
	copy(out, a.commandHistory)
	return out
}

// clampf bounds v to [lo, hi].
func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
