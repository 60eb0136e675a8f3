// Package a2c implements the actor-critic agent that maps reading state
// vectors to continuous delivery adjustments.
//
// Two independent feed-forward networks are maintained: the actor (policy)
// maps a state vector to an action vector bounded to [-1, 1] by a tanh head,
// and the critic (baseline) maps a state vector to a scalar value estimate.
// Each has its own Adam optimiser; no parameters are shared.
//
// The policy update is a regression-style surrogate: the actor's output is
// pulled towards recorded actions weighted by the n-step advantage, rather
// than through a log-probability policy gradient. This is a deliberate
// property of the learning dynamics and must not be "corrected"; see
// DESIGN.md.
package a2c

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

// Defaults applied by [New] when the corresponding Config field is zero.
const (
	DefaultHiddenSize = 256
	DefaultActorLR    = 1e-3
	DefaultCriticLR   = 1e-3
	DefaultGamma      = 0.99
	DefaultNStep      = 1

	// explorationSigma is the standard deviation of the Gaussian noise added
	// to actor outputs in stochastic mode.
	explorationSigma = 0.1
)

// DimensionError reports a state or action vector whose length does not
// match the agent's configured dimensions. The agent never pads or truncates;
// only the state builder is allowed to do that.
type DimensionError struct {
	// Kind names the offending vector ("state" or "action").
	Kind string

	// Got and Want are the observed and required lengths.
	Got, Want int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("a2c: %s vector has dimension %d, want %d", e.Kind, e.Got, e.Want)
}

// Config configures an [Agent]. Zero fields fall back to the package
// defaults; StateSize and ActionSize are required.
type Config struct {
	// StateSize is the input dimension of both networks.
	StateSize int

	// ActionSize is the actor's output dimension.
	ActionSize int

	// HiddenSize is the width of both hidden layers. Default: 256.
	HiddenSize int

	// ActorLR and CriticLR are the Adam learning rates. Default: 1e-3 each.
	ActorLR  float64
	CriticLR float64

	// Gamma is the discount factor. Default: 0.99.
	Gamma float64

	// NStep is the bootstrap horizon for return estimation. Default: 1.
	NStep int

	// Seed seeds weight initialisation and exploration noise, making the
	// agent fully reproducible. A zero seed is used as-is.
	Seed uint64
}

// Agent is the actor-critic function approximator pair.
//
// All methods are safe for concurrent use; a single mutex serialises access
// since decision requests and training passes may arrive from different
// goroutines.
type Agent struct {
	stateSize  int
	actionSize int
	gamma      float64
	nStep      int

	mu        sync.Mutex
	actor     *mlp
	critic    *mlp
	actorOpt  *adam
	criticOpt *adam
	rng       *rand.Rand
}

// New constructs an [Agent] from cfg. StateSize and ActionSize must be
// positive; everything else defaults sensibly.
func New(cfg Config) (*Agent, error) {
	if cfg.StateSize <= 0 {
		return nil, fmt.Errorf("a2c: state size must be positive, got %d", cfg.StateSize)
	}
	if cfg.ActionSize <= 0 {
		return nil, fmt.Errorf("a2c: action size must be positive, got %d", cfg.ActionSize)
	}
	hidden := cfg.HiddenSize
	if hidden <= 0 {
		hidden = DefaultHiddenSize
	}
	actorLR := cfg.ActorLR
	if actorLR <= 0 {
		actorLR = DefaultActorLR
	}
	criticLR := cfg.CriticLR
	if criticLR <= 0 {
		criticLR = DefaultCriticLR
	}
	gamma := cfg.Gamma
	if gamma <= 0 {
		gamma = DefaultGamma
	}
	if gamma > 1 {
		return nil, fmt.Errorf("a2c: gamma must be in (0, 1], got %g", gamma)
	}
	n := cfg.NStep
	if n <= 0 {
		n = DefaultNStep
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	actor := newMLP([]int{cfg.StateSize, hidden, hidden, cfg.ActionSize}, true, rng)
	critic := newMLP([]int{cfg.StateSize, hidden, hidden, 1}, false, rng)

	return &Agent{
		stateSize:  cfg.StateSize,
		actionSize: cfg.ActionSize,
		gamma:      gamma,
		nStep:      n,
		actor:      actor,
		critic:     critic,
		actorOpt:   newAdam(actor, actorLR),
		criticOpt:  newAdam(critic, criticLR),
		rng:        rng,
	}, nil
}

// StateSize returns the expected state vector dimension.
func (a *Agent) StateSize() int { return a.stateSize }

// ActionSize returns the produced action vector dimension.
func (a *Agent) ActionSize() int { return a.actionSize }

// Action evaluates the policy on state. In stochastic mode, zero-mean
// Gaussian noise (σ=0.1) is added to the raw actor output for exploration
// and both the noisy and raw actions are returned. In deterministic mode,
// the mode used for live recommendations, both return values are the raw
// actor output.
//
// Returns a [*DimensionError] when state does not match the configured
// state size.
func (a *Agent) Action(state []float64, stochastic bool) (action, raw []float64, err error) {
	if len(state) != a.stateSize {
		return nil, nil, &DimensionError{Kind: "state", Got: len(state), Want: a.stateSize}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	raw, _ = a.actor.forward(state)
	if !stochastic {
		return raw, raw, nil
	}

	action = make([]float64, len(raw))
	for i, v := range raw {
		action[i] = v + a.rng.NormFloat64()*explorationSigma
	}
	return action, raw, nil
}

// Value returns the critic's value estimate for state.
func (a *Agent) Value(state []float64) (float64, error) {
	if len(state) != a.stateSize {
		return 0, &DimensionError{Kind: "state", Got: len(state), Want: a.stateSize}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	out, _ := a.critic.forward(state)
	return out[0], nil
}

// Train runs one actor-critic update over the given trajectory steps and
// returns the policy and baseline losses.
//
// Targets are n-step bootstrapped returns
//
//	G[i] = Σ_{k=0}^{n-1} γ^k·r[i+k] + γ^n·V[i+n]
//
// with zero value contribution when i+n runs past the trajectory end. The
// policy loss is mean(-advantage[i] · mse(actor(s[i]), actions[i])) with the
// advantage treated as a constant (no critic gradient flows through it); the
// baseline loss is mean((G[i] - V[i])²). Both optimisers step once.
//
// Training on empty inputs is a no-op returning neutral (0, 0) losses.
// Mismatched lengths or vector dimensions fail fast with an error and leave
// all parameters untouched.
func (a *Agent) Train(states, actions [][]float64, rewards []float64) (policyLoss, baselineLoss float64, err error) {
	t := len(rewards)
	if t == 0 {
		return 0, 0, nil
	}
	if len(states) != t || len(actions) != t {
		return 0, 0, fmt.Errorf("a2c: trajectory length mismatch: %d states, %d actions, %d rewards",
			len(states), len(actions), t)
	}
	for _, s := range states {
		if len(s) != a.stateSize {
			return 0, 0, &DimensionError{Kind: "state", Got: len(s), Want: a.stateSize}
		}
	}
	for _, act := range actions {
		if len(act) != a.actionSize {
			return 0, 0, &DimensionError{Kind: "action", Got: len(act), Want: a.actionSize}
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Value estimates for every step.
	values := make([]float64, t)
	criticCaches := make([]*forwardCache, t)
	for i, s := range states {
		out, cache := a.critic.forward(s)
		values[i] = out[0]
		criticCaches[i] = cache
	}

	returns := a.bootstrapReturns(rewards, values)

	actorGrads := newGradients(a.actor)
	criticGrads := newGradients(a.critic)
	scale := 1.0 / float64(t)

	for i := 0; i < t; i++ {
		advantage := returns[i] - values[i]

		// Policy: advantage-weighted regression towards the recorded action.
		out, cache := a.actor.forward(states[i])
		var mse float64
		dOut := make([]float64, a.actionSize)
		for j := range out {
			diff := out[j] - actions[i][j]
			mse += diff * diff
			dOut[j] = -advantage * 2 * diff / float64(a.actionSize) * scale
		}
		mse /= float64(a.actionSize)
		policyLoss += -advantage * mse
		a.actor.backward(cache, dOut, actorGrads)

		// Baseline: squared error against the bootstrapped return.
		residual := returns[i] - values[i]
		baselineLoss += residual * residual
		a.critic.backward(criticCaches[i], []float64{-2 * residual * scale}, criticGrads)
	}
	policyLoss *= scale
	baselineLoss *= scale

	a.actorOpt.apply(a.actor, actorGrads)
	a.criticOpt.apply(a.critic, criticGrads)

	return policyLoss, baselineLoss, nil
}

// bootstrapReturns computes n-step bootstrapped return targets. Rewards past
// the trajectory end contribute nothing, and the value bootstrap is dropped
// (zero) when its index lands beyond the final recorded state.
func (a *Agent) bootstrapReturns(rewards, values []float64) []float64 {
	t := len(rewards)
	returns := make([]float64, t)
	for i := 0; i < t; i++ {
		g := 0.0
		discount := 1.0
		for k := 0; k < a.nStep && i+k < t; k++ {
			g += discount * rewards[i+k]
			discount *= a.gamma
		}
		if i+a.nStep < t {
			g += pow(a.gamma, a.nStep) * values[i+a.nStep]
		}
		returns[i] = g
	}
	return returns
}

// pow is an integer-exponent power, avoiding math.Pow for the small n used
// in bootstrapping.
func pow(base float64, exp int) float64 {
	out := 1.0
	for i := 0; i < exp; i++ {
		out *= base
	}
	return out
}
