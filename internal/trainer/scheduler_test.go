package trainer

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

// stubTrainer records the trajectories passed to Train.
type stubTrainer struct {
	calls    int
	steps    int
	trainErr error
}

func (t *stubTrainer) Train(states, actions [][]float64, rewards []float64) (float64, float64, error) {
	t.calls++
	t.steps = len(states)
	if t.trainErr != nil {
		return 0, 0, t.trainErr
	}
	return 0.1, 0.2, nil
}

// fakeStore keeps saved artifacts in memory.
type fakeStore struct {
	stats        Stats
	statsOK      bool
	savedStats   []Stats
	savedBatches [][]EpisodeSummary
	saveErr      error
}

func (f *fakeStore) SaveStats(ctx context.Context, s Stats) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.savedStats = append(f.savedStats, s)
	return nil
}

func (f *fakeStore) LoadStats(ctx context.Context) (Stats, bool, error) {
	return f.stats, f.statsOK, nil
}

func (f *fakeStore) SaveEpisodes(ctx context.Context, eps []EpisodeSummary) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.savedBatches = append(f.savedBatches, eps)
	return nil
}

func newTestScheduler(t *testing.T, cfg Config) *Scheduler {
	t.Helper()
	if cfg.Agent == nil {
		cfg.Agent = &stubTrainer{}
	}
	s, err := NewScheduler(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	return s
}

func step(dim int) []float64 {
	v := make([]float64, dim)
	for i := range v {
		v[i] = 0.5
	}
	return v
}

// collectN feeds n experience tuples with the given reward.
func collectN(s *Scheduler, n int, reward float64, done bool) {
	for i := 0; i < n; i++ {
		last := done && i == n-1
		s.Collect(step(20), step(8), reward, step(20), last)
	}
}

func TestNewScheduler_RequiresAgent(t *testing.T) {
	if _, err := NewScheduler(context.Background(), Config{}); err == nil {
		t.Error("expected error for missing agent")
	}
}

func TestNewScheduler_RestoresStats(t *testing.T) {
	store := &fakeStore{
		stats:   Stats{EpisodesCollected: 7, TrainingPasses: 3, AverageReward: 1.2},
		statsOK: true,
	}
	s := newTestScheduler(t, Config{Store: store})

	if got := s.Status().Stats.EpisodesCollected; got != 7 {
		t.Errorf("restored episodes = %d, want 7", got)
	}
}

func TestCollect_PackagingBoundary(t *testing.T) {
	s := newTestScheduler(t, Config{})

	collectN(s, 49, 1.0, false)
	if st := s.Status(); st.BufferedSteps != 49 || st.RetainedEpisodes != 0 {
		t.Fatalf("after 49 steps: buffered=%d episodes=%d, want 49/0",
			st.BufferedSteps, st.RetainedEpisodes)
	}

	collectN(s, 1, 1.0, false)
	st := s.Status()
	if st.BufferedSteps != 0 {
		t.Errorf("after 50 steps: buffered = %d, want 0", st.BufferedSteps)
	}
	if st.RetainedEpisodes != 1 {
		t.Errorf("after 50 steps: episodes = %d, want 1", st.RetainedEpisodes)
	}
	if st.Stats.EpisodesCollected != 1 {
		t.Errorf("episodes collected = %d, want 1", st.Stats.EpisodesCollected)
	}
}

func TestCollect_DonePackagesEarly(t *testing.T) {
	s := newTestScheduler(t, Config{})

	collectN(s, 5, 2.0, true)
	st := s.Status()
	if st.BufferedSteps != 0 || st.RetainedEpisodes != 1 {
		t.Errorf("after done: buffered=%d episodes=%d, want 0/1",
			st.BufferedSteps, st.RetainedEpisodes)
	}
}

func TestCollect_RewardWindow(t *testing.T) {
	s := newTestScheduler(t, Config{RewardWindow: 100})

	// 120 rewards of 0 then 1: the window keeps only the last 100.
	collectN(s, 20, 0.0, false)
	collectN(s, 100, 1.0, false)

	if avg := s.Status().Stats.AverageReward; math.Abs(avg-1.0) > 1e-12 {
		t.Errorf("average reward = %g, want 1.0 over the trailing window", avg)
	}
}

func TestEpisodeRetention_FIFO(t *testing.T) {
	s := newTestScheduler(t, Config{MaxEpisodes: 10})

	for i := 0; i < 12; i++ {
		collectN(s, 3, 1.0, true)
	}
	st := s.Status()
	if st.RetainedEpisodes != 10 {
		t.Errorf("retained = %d, want 10", st.RetainedEpisodes)
	}
	if st.Stats.EpisodesCollected != 12 {
		t.Errorf("collected counter = %d, want 12 (eviction must not rewind it)", st.Stats.EpisodesCollected)
	}
}

func TestForceTraining_NoEpisodes(t *testing.T) {
	agent := &stubTrainer{}
	s := newTestScheduler(t, Config{Agent: agent})

	before := s.Status().Stats
	if s.ForceTraining(context.Background()) {
		t.Error("ForceTraining with no episodes must return false")
	}
	if agent.calls != 0 {
		t.Error("agent must not be trained")
	}
	if s.Status().Stats != before {
		t.Error("stats must be unchanged")
	}
}

func TestForceTraining_TrainsOnConcatenatedEpisodes(t *testing.T) {
	agent := &stubTrainer{}
	store := &fakeStore{}
	s := newTestScheduler(t, Config{Agent: agent, Store: store})

	collectN(s, 10, 1.0, true)
	collectN(s, 15, 0.5, true)

	if !s.ForceTraining(context.Background()) {
		t.Fatal("ForceTraining with two episodes must return true")
	}
	if agent.calls != 1 {
		t.Fatalf("train calls = %d, want 1", agent.calls)
	}
	if agent.steps != 25 {
		t.Errorf("trained on %d steps, want concatenated 25", agent.steps)
	}

	st := s.Status().Stats
	if st.TrainingPasses != 1 {
		t.Errorf("training passes = %d, want 1", st.TrainingPasses)
	}
	if st.LastTrainingTime.IsZero() {
		t.Error("last training time must be stamped")
	}

	if len(store.savedStats) != 1 {
		t.Fatalf("stats saved %d times, want 1", len(store.savedStats))
	}
	if len(store.savedBatches) != 1 {
		t.Fatalf("episode batches saved %d times, want 1", len(store.savedBatches))
	}
	if got := len(store.savedBatches[0]); got != 2 {
		t.Errorf("saved %d summaries, want 2", got)
	}
	if store.savedBatches[0][0].Length != 10 {
		t.Errorf("first summary length = %d, want 10", store.savedBatches[0][0].Length)
	}
}

func TestForceTraining_SingleEpisodeIsAcceptedButBelowMinimum(t *testing.T) {
	agent := &stubTrainer{}
	s := newTestScheduler(t, Config{Agent: agent, MinEpisodes: 2})

	collectN(s, 5, 1.0, true)
	if !s.ForceTraining(context.Background()) {
		t.Error("ForceTraining with one episode must return true")
	}
	if agent.calls != 0 {
		t.Error("pass below the episode minimum must not train")
	}
}

func TestTraining_AgentErrorLeavesStatsUntouched(t *testing.T) {
	agent := &stubTrainer{trainErr: errors.New("boom")}
	s := newTestScheduler(t, Config{Agent: agent})

	collectN(s, 5, 1.0, true)
	collectN(s, 5, 1.0, true)

	if !s.ForceTraining(context.Background()) {
		t.Fatal("ForceTraining must still report that it ran")
	}
	if got := s.Status().Stats.TrainingPasses; got != 0 {
		t.Errorf("training passes = %d, want 0 after a failed pass", got)
	}
}

func TestTraining_PersistenceErrorIsAbsorbed(t *testing.T) {
	agent := &stubTrainer{}
	store := &fakeStore{saveErr: errors.New("disk full")}
	s := newTestScheduler(t, Config{Agent: agent, Store: store})

	collectN(s, 5, 1.0, true)
	collectN(s, 5, 1.0, true)

	if !s.ForceTraining(context.Background()) {
		t.Fatal("persistence failure must not block training")
	}
	if got := s.Status().Stats.TrainingPasses; got != 1 {
		t.Errorf("training passes = %d, want 1", got)
	}
}

func TestBackgroundLoop_TrainsOnInterval(t *testing.T) {
	agent := &stubTrainer{}
	s := newTestScheduler(t, Config{Agent: agent, Interval: 20 * time.Millisecond})

	collectN(s, 5, 1.0, true)
	collectN(s, 5, 1.0, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Status().Stats.TrainingPasses >= 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("background loop never trained")
}

func TestStop_FlushesPartialEpisode(t *testing.T) {
	store := &fakeStore{}
	s := newTestScheduler(t, Config{Store: store, Interval: time.Hour})

	s.Start(context.Background())
	collectN(s, 7, 1.0, false)
	s.Stop()

	st := s.Status()
	if st.BufferedSteps != 0 {
		t.Errorf("buffered steps after stop = %d, want 0 (flushed)", st.BufferedSteps)
	}
	if st.RetainedEpisodes != 1 {
		t.Errorf("episodes after stop = %d, want 1 (partial packaged)", st.RetainedEpisodes)
	}
	if len(store.savedStats) == 0 {
		t.Error("stop must persist stats")
	}
	if len(store.savedBatches) == 0 {
		t.Error("stop must persist episode summaries")
	}
}

func TestStop_Idempotent(t *testing.T) {
	s := newTestScheduler(t, Config{Interval: time.Hour})
	s.Start(context.Background())
	s.Stop()
	s.Stop()
}

func TestSuggestions(t *testing.T) {
	s := newTestScheduler(t, Config{})

	out := s.Suggestions()
	if len(out) == 0 {
		t.Fatal("expected suggestions")
	}

	// A fresh scheduler has few episodes, so the low-episode hint leads.
	if out[0] != "Need more reading episodes - run longer sessions before training" {
		t.Errorf("unexpected first suggestion: %q", out[0])
	}

	// A short in-flight episode adds its own hint.
	collectN(s, 3, 2.0, false)
	var found bool
	for _, sg := range s.Suggestions() {
		if sg == "Current episode is short - continue the session for more data" {
			found = true
		}
	}
	if !found {
		t.Error("expected short-episode suggestion")
	}
}

func TestStatus_NextTrainingIn(t *testing.T) {
	s := newTestScheduler(t, Config{Interval: time.Minute})

	// Never trained: no countdown baseline, both durations stay zero.
	st := s.Status()
	if st.TimeSinceLastTraining != 0 {
		t.Errorf("time since training = %v, want 0 before first pass", st.TimeSinceLastTraining)
	}

	collectN(s, 5, 1.0, true)
	collectN(s, 5, 1.0, true)
	if !s.ForceTraining(context.Background()) {
		t.Fatal("ForceTraining failed")
	}

	st = s.Status()
	if st.NextTrainingIn <= 0 || st.NextTrainingIn > time.Minute {
		t.Errorf("next training in = %v, want within (0, 1m]", st.NextTrainingIn)
	}
}
