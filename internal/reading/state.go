package reading

// Builder converts a [QueryRecord] into the fixed-length state vector the
// policy and value networks consume. The first twelve positions are
// semantically bound; the remainder is zero padding.
type Builder struct {
	dim int
}

// NewBuilder creates a state builder emitting vectors of dim elements.
// Dimensions below the twelve bound features are honoured by truncation, but
// in practice dim is the agent's state size (20).
func NewBuilder(dim int) *Builder {
	if dim <= 0 {
		dim = 20
	}
	return &Builder{dim: dim}
}

// Dim returns the emitted vector length.
func (b *Builder) Dim() int { return b.dim }

// Build encodes q into a state vector of exactly Dim elements. Recent
// commands collapse to a saturating count; individual command identities
// never enter the state.
func (b *Builder) Build(q *QueryRecord) []float64 {
	features := []float64{
		q.TextDifficulty,
		q.TextLength,
		q.TextType,
		q.CurrentReadingSpeed,
		q.CurrentPauseFrequency,
		q.CurrentHighlightIntensity,
		q.CurrentChunkSize,
		q.UserEngagement,
		q.UserComprehension,
		q.TextProgress,
		float64(q.ActionCount),
		saturatingCommandCount(len(q.RecentCommands)),
	}
	return padOrTruncate(features, b.dim)
}

// saturatingCommandCount maps a command count to [0, 1], saturating at ten
// commands.
func saturatingCommandCount(n int) float64 {
	v := float64(n) / 10.0
	if v > 1 {
		return 1
	}
	return v
}

// padOrTruncate returns a fresh slice of exactly dim elements: features
// zero-padded on the right, or cut short when dim is smaller.
func padOrTruncate(features []float64, dim int) []float64 {
	out := make([]float64, dim)
	copy(out, features)
	return out
}
