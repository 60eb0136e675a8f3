// Package trainer buffers decision-cycle experience, packages it into
// episodes, and periodically retrains the actor-critic agent in the
// background. It owns the training statistics and pushes stats plus episode
// summaries to durable storage after every training pass and on shutdown.
package trainer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veloread/cadence/internal/observe"
)

// Defaults applied by [NewScheduler] when the corresponding Config field is
// zero.
const (
	DefaultInterval     = 5 * time.Minute
	DefaultMaxSteps     = 50
	DefaultMinEpisodes  = 2
	DefaultMaxEpisodes  = 10
	DefaultRewardWindow = 100

	// summarySampleSize bounds how many recent episodes are persisted per
	// training pass.
	summarySampleSize = 5
)

// Episode is one packaged trajectory. Immutable once packaged.
type Episode struct {
	ID          string
	States      [][]float64
	Actions     [][]float64
	Rewards     []float64
	TotalReward float64
	Length      int
	PackagedAt  time.Time
}

// EpisodeSummary is the persisted slice of an episode: enough for offline
// reward analysis without storing full state trajectories.
type EpisodeSummary struct {
	ID          string    `json:"id"`
	Length      int       `json:"episode_length"`
	TotalReward float64   `json:"total_reward"`
	Rewards     []float64 `json:"rewards"`
	PackagedAt  time.Time `json:"timestamp"`
}

// Stats are the scheduler's cumulative training counters.
type Stats struct {
	EpisodesCollected int       `json:"episodes_collected"`
	TrainingPasses    int       `json:"total_training_steps"`
	AverageReward     float64   `json:"average_reward"`
	LastTrainingTime  time.Time `json:"last_training_time"`
}

// Status is the read-only diagnostic snapshot returned by
// [Scheduler.Status].
type Status struct {
	Stats                 Stats         `json:"stats"`
	BufferedSteps         int           `json:"buffered_steps"`
	RetainedEpisodes      int           `json:"retained_episodes"`
	Running               bool          `json:"running"`
	TimeSinceLastTraining time.Duration `json:"time_since_last_training"`
	NextTrainingIn        time.Duration `json:"next_training_in"`
}

// Trainer runs one gradient update over a concatenated trajectory.
// Implemented by the actor-critic agent.
type Trainer interface {
	Train(states, actions [][]float64, rewards []float64) (policyLoss, baselineLoss float64, err error)
}

// Store persists training artifacts. Implementations must be safe for use
// from the scheduler's background goroutine.
type Store interface {
	SaveStats(ctx context.Context, s Stats) error
	LoadStats(ctx context.Context) (Stats, bool, error)
	SaveEpisodes(ctx context.Context, eps []EpisodeSummary) error
}

// errAgentRequired rejects scheduler construction without a trainable agent.
var errAgentRequired = errors.New("trainer: agent is required")

// Config configures a [Scheduler].
type Config struct {
	// Agent is the trainable policy. Required.
	Agent Trainer

	// Store receives stats and episode summaries. Optional; nil disables
	// persistence.
	Store Store

	// Interval between scheduled training attempts. Default: 5m.
	Interval time.Duration

	// MaxSteps is the trajectory-length ceiling that forces episode
	// packaging. Default: 50.
	MaxSteps int

	// MinEpisodes is the minimum packaged episodes required for a training
	// pass. Default: 2.
	MinEpisodes int

	// MaxEpisodes is the episode retention cap; older episodes are evicted
	// FIFO. Default: 10.
	MaxEpisodes int

	// RewardWindow is the trailing window length for the running average
	// reward. Default: 100.
	RewardWindow int

	// Metrics records training telemetry. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Scheduler collects experience and periodically retrains the agent.
//
// All methods are safe for concurrent use. One mutex guards buffers,
// episodes, and stats; training passes hold it for their full duration,
// which is acceptable at a cadence of minutes.
type Scheduler struct {
	agent    Trainer
	store    Store
	metrics  *observe.Metrics
	interval time.Duration
	maxSteps int
	minEps   int
	maxEps   int
	window   int

	mu            sync.Mutex
	states        [][]float64
	actions       [][]float64
	rewards       []float64
	episodes      []Episode
	recentRewards []float64
	stats         Stats
	running       bool

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler. When a store is configured, previously
// persisted stats are restored so counters survive restarts.
func NewScheduler(ctx context.Context, cfg Config) (*Scheduler, error) {
	if cfg.Agent == nil {
		return nil, errAgentRequired
	}
	s := &Scheduler{
		agent:    cfg.Agent,
		store:    cfg.Store,
		metrics:  cfg.Metrics,
		interval: cfg.Interval,
		maxSteps: cfg.MaxSteps,
		minEps:   cfg.MinEpisodes,
		maxEps:   cfg.MaxEpisodes,
		window:   cfg.RewardWindow,
		done:     make(chan struct{}),
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.maxSteps <= 0 {
		s.maxSteps = DefaultMaxSteps
	}
	if s.minEps <= 0 {
		s.minEps = DefaultMinEpisodes
	}
	if s.maxEps <= 0 {
		s.maxEps = DefaultMaxEpisodes
	}
	if s.window <= 0 {
		s.window = DefaultRewardWindow
	}

	if s.store != nil {
		stats, ok, err := s.store.LoadStats(ctx)
		if err != nil {
			observe.Logger(ctx).Warn("trainer: restoring stats failed", "error", err)
		} else if ok {
			s.stats = stats
		}
	}
	return s, nil
}

// Start launches the background training loop. Call [Scheduler.Stop] to
// shut it down; Stop flushes buffered data to the store.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)
	observe.Logger(ctx).Info("trainer: scheduler started", "interval", s.interval)
}

// loop sleeps between training attempts. Cancellation through ctx or Stop
// always flushes before the goroutine exits.
func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			s.performTraining(ctx, "scheduled")
			s.mu.Unlock()
		case <-ctx.Done():
			s.flush(context.WithoutCancel(ctx))
			return
		case <-s.done:
			s.flush(context.WithoutCancel(ctx))
			return
		}
	}
}

// Stop terminates the background loop and flushes buffered experience and
// stats to the store. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// Collect appends one experience tuple to the live buffers. When done fires
// or the buffer reaches the step ceiling, the buffer is packaged into an
// episode and cleared. The next-state vector is accepted for interface
// completeness; the n-step bootstrap re-derives values from the recorded
// states.
func (s *Scheduler) Collect(state, action []float64, reward float64, nextState []float64, done bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states = append(s.states, cloneVec(state))
	s.actions = append(s.actions, cloneVec(action))
	s.rewards = append(s.rewards, reward)

	s.recentRewards = append(s.recentRewards, reward)
	if len(s.recentRewards) > s.window {
		s.recentRewards = s.recentRewards[len(s.recentRewards)-s.window:]
	}
	s.stats.AverageReward = mean(s.recentRewards)

	s.metrics.BufferedSteps.Add(context.Background(), 1)

	if done || len(s.states) >= s.maxSteps {
		s.packageEpisode(context.Background())
	}
}

// packageEpisode moves the live buffers into a new immutable episode.
// Caller must hold s.mu.
func (s *Scheduler) packageEpisode(ctx context.Context) {
	n := len(s.states)
	if n == 0 {
		return
	}

	ep := Episode{
		ID:          uuid.New().String(),
		States:      s.states,
		Actions:     s.actions,
		Rewards:     s.rewards,
		TotalReward: sum(s.rewards),
		Length:      n,
		PackagedAt:  time.Now(),
	}
	s.states = nil
	s.actions = nil
	s.rewards = nil

	s.episodes = append(s.episodes, ep)
	s.stats.EpisodesCollected++
	s.evictOldEpisodes(ctx)

	s.metrics.BufferedSteps.Add(ctx, int64(-n))
	s.metrics.Episodes.Add(ctx, 1)
	s.metrics.RetainedEpisodes.Add(ctx, 1)

	observe.Logger(ctx).Info("trainer: episode packaged",
		"length", ep.Length,
		"total_reward", ep.TotalReward,
	)
}

// evictOldEpisodes drops the oldest episodes beyond the retention cap.
// Caller must hold s.mu.
func (s *Scheduler) evictOldEpisodes(ctx context.Context) {
	if over := len(s.episodes) - s.maxEps; over > 0 {
		s.episodes = append([]Episode(nil), s.episodes[over:]...)
		s.metrics.RetainedEpisodes.Add(ctx, int64(-over))
	}
}

// performTraining runs one training pass when enough episodes are packaged.
// Insufficient data is a silent no-op: the loop will try again next tick.
// Caller must hold s.mu.
func (s *Scheduler) performTraining(ctx context.Context, trigger string) {
	log := observe.Logger(ctx)
	if len(s.episodes) < s.minEps {
		log.Debug("trainer: not enough episodes",
			"have", len(s.episodes), "need", s.minEps)
		return
	}

	start := time.Now()

	var states, actions [][]float64
	var rewards []float64
	for _, ep := range s.episodes {
		states = append(states, ep.States...)
		actions = append(actions, ep.Actions...)
		rewards = append(rewards, ep.Rewards...)
	}

	policyLoss, baselineLoss, err := s.agent.Train(states, actions, rewards)
	if err != nil {
		// Training errors must never kill the loop; they are surfaced
		// through logs and the stats staying stale.
		log.Error("trainer: training pass failed", "error", err)
		return
	}

	s.stats.TrainingPasses++
	s.stats.LastTrainingTime = time.Now()

	s.persist(ctx)

	elapsed := time.Since(start)
	s.metrics.RecordTrainingPass(ctx, elapsed.Seconds(), trigger)
	log.Info("trainer: training pass completed",
		"trigger", trigger,
		"steps", len(states),
		"episodes", len(s.episodes),
		"policy_loss", policyLoss,
		"baseline_loss", baselineLoss,
		"elapsed", elapsed,
	)
}

// persist writes stats and a sample of recent episode summaries to the
// store. Failures are logged and counted, never propagated: the next pass
// retries. Caller must hold s.mu.
func (s *Scheduler) persist(ctx context.Context) {
	if s.store == nil {
		return
	}
	log := observe.Logger(ctx)

	if err := s.store.SaveStats(ctx, s.stats); err != nil {
		s.metrics.RecordPersistenceError(ctx, "stats")
		log.Error("trainer: persisting stats failed", "error", err)
	}

	if len(s.episodes) == 0 {
		return
	}
	recent := s.episodes
	if len(recent) > summarySampleSize {
		recent = recent[len(recent)-summarySampleSize:]
	}
	summaries := make([]EpisodeSummary, len(recent))
	for i, ep := range recent {
		summaries[i] = EpisodeSummary{
			ID:          ep.ID,
			Length:      ep.Length,
			TotalReward: ep.TotalReward,
			Rewards:     ep.Rewards,
			PackagedAt:  ep.PackagedAt,
		}
	}
	if err := s.store.SaveEpisodes(ctx, summaries); err != nil {
		s.metrics.RecordPersistenceError(ctx, "episodes")
		log.Error("trainer: persisting episodes failed", "error", err)
	}
}

// flush packages any partial episode and persists everything. Called on
// shutdown.
func (s *Scheduler) flush(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.packageEpisode(ctx)
	s.persist(ctx)
	observe.Logger(ctx).Info("trainer: flushed on shutdown",
		"episodes", len(s.episodes))
}

// ForceTraining triggers an immediate out-of-band training pass. Returns
// false without touching any state when no episode has been packaged yet.
// With episodes below the training minimum it still returns true but the
// pass itself is a no-op, mirroring the scheduled path.
func (s *Scheduler) ForceTraining(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.episodes) == 0 {
		return false
	}
	s.performTraining(ctx, "forced")
	return true
}

// Status returns a diagnostic snapshot.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Stats:            s.stats,
		BufferedSteps:    len(s.states),
		RetainedEpisodes: len(s.episodes),
		Running:          s.running,
	}
	if !s.stats.LastTrainingTime.IsZero() {
		st.TimeSinceLastTraining = time.Since(s.stats.LastTrainingTime)
	}
	if next := s.interval - st.TimeSinceLastTraining; next > 0 {
		st.NextTrainingIn = next
	}
	return st
}

// Suggestions returns heuristic guidance for improving data collection,
// keyed off low episode counts, weak rewards, and overdue training.
func (s *Scheduler) Suggestions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	if s.stats.EpisodesCollected < 5 {
		out = append(out, "Need more reading episodes - run longer sessions before training")
	}
	if s.stats.AverageReward < 0.5 {
		out = append(out, "Reward signals are low - vary text difficulty and delivery settings")
	}
	if len(s.states) > 0 && len(s.states) < 10 {
		out = append(out, "Current episode is short - continue the session for more data")
	}
	if !s.stats.LastTrainingTime.IsZero() && time.Since(s.stats.LastTrainingTime) > s.interval {
		out = append(out, "Training overdue - will train automatically soon")
	}
	out = append(out,
		"Try different text types: simple emails (0.1) to academic texts (0.8)",
		"Use voice commands like 'faster', 'slower', 'repeat' to exercise command rewards",
		"Mix engaged responses with confused ones to test comprehension adaptation",
	)
	return out
}

// Episodes returns the packaged episode count.
func (s *Scheduler) Episodes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.episodes)
}

func cloneVec(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

func sum(v []float64) float64 {
	var total float64
	for _, x := range v {
		total += x
	}
	return total
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return sum(v) / float64(len(v))
}
