package a2c

import (
	"math"
	"math/rand/v2"
)

// mlp is a small fully-connected network with ReLU hidden activations and an
// optional tanh output head. Weights are plain float64 slices; there is no
// tensor library involved, so all math is explicit and auditable.
//
// An mlp is not safe for concurrent use; [Agent] serialises access.
type mlp struct {
	// sizes lists layer widths, input first: e.g. [20, 256, 256, 8].
	sizes []int

	// tanhOut squashes the final layer to [-1, 1] when true.
	tanhOut bool

	// weights[l] holds the layer-l weight matrix in row-major order
	// (sizes[l+1] rows of sizes[l] columns). biases[l] has sizes[l+1] entries.
	weights [][]float64
	biases  [][]float64
}

// forwardCache retains the per-layer inputs and pre-activations of one
// forward pass, which backward needs to compute gradients.
type forwardCache struct {
	inputs  [][]float64 // input vector fed to each layer
	preacts [][]float64 // pre-activation output of each layer
}

// newMLP builds a network with Xavier-uniform initial weights drawn from rng.
// Passing a seeded rng makes initialisation reproducible.
func newMLP(sizes []int, tanhOut bool, rng *rand.Rand) *mlp {
	m := &mlp{
		sizes:   sizes,
		tanhOut: tanhOut,
		weights: make([][]float64, len(sizes)-1),
		biases:  make([][]float64, len(sizes)-1),
	}
	for l := 0; l < len(sizes)-1; l++ {
		in, out := sizes[l], sizes[l+1]
		limit := math.Sqrt(6.0 / float64(in+out))
		w := make([]float64, out*in)
		for i := range w {
			w[i] = (rng.Float64()*2 - 1) * limit
		}
		m.weights[l] = w
		m.biases[l] = make([]float64, out)
	}
	return m
}

// forward runs x through the network and returns the output along with the
// cache needed for a subsequent backward pass.
func (m *mlp) forward(x []float64) ([]float64, *forwardCache) {
	cache := &forwardCache{
		inputs:  make([][]float64, len(m.weights)),
		preacts: make([][]float64, len(m.weights)),
	}

	cur := x
	for l := range m.weights {
		in, out := m.sizes[l], m.sizes[l+1]
		cache.inputs[l] = cur

		pre := make([]float64, out)
		for o := 0; o < out; o++ {
			sum := m.biases[l][o]
			row := m.weights[l][o*in : (o+1)*in]
			for i, v := range cur {
				sum += row[i] * v
			}
			pre[o] = sum
		}
		cache.preacts[l] = pre

		cur = make([]float64, out)
		last := l == len(m.weights)-1
		for o, p := range pre {
			switch {
			case last && m.tanhOut:
				cur[o] = math.Tanh(p)
			case last:
				cur[o] = p
			default:
				cur[o] = math.Max(0, p) // ReLU
			}
		}
	}
	return cur, cache
}

// gradients accumulates weight and bias gradients across samples; shapes
// mirror the mlp's parameters.
type gradients struct {
	weights [][]float64
	biases  [][]float64
}

// newGradients allocates zeroed gradient buffers matching m.
func newGradients(m *mlp) *gradients {
	g := &gradients{
		weights: make([][]float64, len(m.weights)),
		biases:  make([][]float64, len(m.biases)),
	}
	for l := range m.weights {
		g.weights[l] = make([]float64, len(m.weights[l]))
		g.biases[l] = make([]float64, len(m.biases[l]))
	}
	return g
}

// backward accumulates into g the parameter gradients for the forward pass
// recorded in cache, given dOut = ∂loss/∂output. The cache's activation
// values are consumed as-is; callers must pair each backward with the cache
// from the matching forward.
func (m *mlp) backward(cache *forwardCache, dOut []float64, g *gradients) {
	delta := make([]float64, len(dOut))
	copy(delta, dOut)

	for l := len(m.weights) - 1; l >= 0; l-- {
		in := m.sizes[l]
		pre := cache.preacts[l]
		last := l == len(m.weights)-1

		// Chain through the layer's activation.
		for o := range delta {
			switch {
			case last && m.tanhOut:
				th := math.Tanh(pre[o])
				delta[o] *= 1 - th*th
			case last:
				// identity output
			default:
				if pre[o] <= 0 {
					delta[o] = 0
				}
			}
		}

		input := cache.inputs[l]
		for o, d := range delta {
			g.biases[l][o] += d
			row := g.weights[l][o*in : (o+1)*in]
			for i, v := range input {
				row[i] += d * v
			}
		}

		if l == 0 {
			break
		}

		// Propagate to the previous layer's output.
		next := make([]float64, in)
		for o, d := range delta {
			row := m.weights[l][o*in : (o+1)*in]
			for i := range next {
				next[i] += row[i] * d
			}
		}
		delta = next
	}
}

// adam implements the Adam optimiser with the usual defaults
// (β1=0.9, β2=0.999, ε=1e-8). One instance per network; actor and critic
// never share state.
type adam struct {
	lr           float64
	beta1, beta2 float64
	eps          float64
	step         int

	mW, vW [][]float64
	mB, vB [][]float64
}

// newAdam creates an optimiser whose moment buffers match m's parameters.
func newAdam(m *mlp, lr float64) *adam {
	o := &adam{
		lr:    lr,
		beta1: 0.9,
		beta2: 0.999,
		eps:   1e-8,
		mW:    make([][]float64, len(m.weights)),
		vW:    make([][]float64, len(m.weights)),
		mB:    make([][]float64, len(m.biases)),
		vB:    make([][]float64, len(m.biases)),
	}
	for l := range m.weights {
		o.mW[l] = make([]float64, len(m.weights[l]))
		o.vW[l] = make([]float64, len(m.weights[l]))
		o.mB[l] = make([]float64, len(m.biases[l]))
		o.vB[l] = make([]float64, len(m.biases[l]))
	}
	return o
}

// apply performs one Adam update of m's parameters from the accumulated
// gradients in g.
func (o *adam) apply(m *mlp, g *gradients) {
	o.step++
	bc1 := 1 - math.Pow(o.beta1, float64(o.step))
	bc2 := 1 - math.Pow(o.beta2, float64(o.step))

	for l := range m.weights {
		o.applySlice(m.weights[l], g.weights[l], o.mW[l], o.vW[l], bc1, bc2)
		o.applySlice(m.biases[l], g.biases[l], o.mB[l], o.vB[l], bc1, bc2)
	}
}

// applySlice updates one parameter slice in place.
func (o *adam) applySlice(params, grads, m, v []float64, bc1, bc2 float64) {
	for i, grad := range grads {
		m[i] = o.beta1*m[i] + (1-o.beta1)*grad
		v[i] = o.beta2*v[i] + (1-o.beta2)*grad*grad
		mHat := m[i] / bc1
		vHat := v[i] / bc2
		params[i] -= o.lr * mHat / (math.Sqrt(vHat) + o.eps)
	}
}
