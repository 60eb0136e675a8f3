package analyze

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// defaultFuzzyThreshold is the minimum Jaro-Winkler similarity for a spoken
// token to count as a keyword hit. STT finals routinely mangle short command
// words ("fasster", "repeet"), so exact matching alone under-counts.
const defaultFuzzyThreshold = 0.88

// Keyword families for scoring listener behaviour from recent voice
// commands. Multi-word entries are matched as substrings of the whole
// command; single words are matched per token, exactly or fuzzily.
var (
	positiveCommands = []string{"continue", "faster", "slower", "repeat", "explain", "more", "yes", "good", "keep going"}
	negativeCommands = []string{"stop", "pause", "skip", "enough", "quit", "no", "bad"}

	confusionCommands  = []string{"explain", "what", "why", "how", "repeat", "clarify", "confused", "huh", "again"}
	confidenceCommands = []string{"got it", "understand", "clear", "makes sense", "continue", "okay", "yes", "perfect"}
)

// CommandScorer derives engagement and comprehension scores from a
// listener's recent voice commands. The zero value is not usable; construct
// with [NewCommandScorer].
//
// Safe for concurrent use; the scorer is read-only after construction.
type CommandScorer struct {
	fuzzyThreshold float64
}

// ScorerOption is a functional option for configuring a [CommandScorer].
type ScorerOption func(*CommandScorer)

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a fuzzy keyword
// hit. Default: 0.88.
func WithFuzzyThreshold(threshold float64) ScorerOption {
	return func(s *CommandScorer) {
		s.fuzzyThreshold = threshold
	}
}

// NewCommandScorer returns a [CommandScorer] configured with the supplied
// options.
func NewCommandScorer(opts ...ScorerOption) *CommandScorer {
	s := &CommandScorer{fuzzyThreshold: defaultFuzzyThreshold}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Engagement scores how engaged the listener is from their recent commands:
// the fraction of engagement-signalling commands that are positive
// ("faster", "continue", …) rather than negative ("stop", "quit", …).
// Returns the neutral 0.5 when no command carries an engagement signal.
func (s *CommandScorer) Engagement(commands []string) float64 {
	positive := s.countHits(commands, positiveCommands)
	negative := s.countHits(commands, negativeCommands)
	return ratio(positive, negative)
}

// Comprehension scores how well the listener is following along: the
// fraction of comprehension-signalling commands that express confidence
// ("got it", "makes sense", …) rather than confusion ("explain", "huh", …).
// Returns the neutral 0.5 when no command carries a comprehension signal.
func (s *CommandScorer) Comprehension(commands []string) float64 {
	confusion := s.countHits(commands, confusionCommands)
	confidence := s.countHits(commands, confidenceCommands)
	return ratio(confidence, confusion)
}

// countHits returns the number of commands that match at least one keyword
// in the family. Each command counts at most once per family regardless of
// how many keywords it contains.
func (s *CommandScorer) countHits(commands, family []string) int {
	var n int
	for _, cmd := range commands {
		if s.matches(cmd, family) {
			n++
		}
	}
	return n
}

// matches reports whether the command contains any keyword of the family.
// Multi-word keywords use substring matching on the full lowered command;
// single-word keywords match any token exactly, with Jaro-Winkler similarity
// above the fuzzy threshold, or by a shared Double Metaphone code.
func (s *CommandScorer) matches(command string, family []string) bool {
	lower := strings.ToLower(strings.TrimSpace(command))
	if lower == "" {
		return false
	}
	tokens := strings.Fields(lower)

	for _, keyword := range family {
		if strings.ContainsRune(keyword, ' ') {
			if strings.Contains(lower, keyword) {
				return true
			}
			continue
		}
		for _, tok := range tokens {
			if tok == keyword {
				return true
			}
			// Fuzzy matching only helps words long enough to have a stable
			// similarity score; two-letter tokens like "no" stay exact.
			if len(keyword) < 4 || len(tok) < 4 {
				continue
			}
			if matchr.JaroWinkler(tok, keyword, false) >= s.fuzzyThreshold {
				return true
			}
			if phoneticMatch(tok, keyword) {
				return true
			}
		}
	}
	return false
}

// phoneticMatch reports whether two words share a Double Metaphone code, so
// STT misspellings that sound right ("fone" for "phone") still register.
// Words without a code never match.
func phoneticMatch(a, b string) bool {
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	if ap == "" || bp == "" {
		return false
	}
	if ap == bp {
		return true
	}
	return (as != "" && as == bp) || (bs != "" && ap == bs)
}

// ratio converts hit counts into a [0, 1] score, returning the neutral 0.5
// when neither side registered a hit.
func ratio(favourable, unfavourable int) float64 {
	total := favourable + unfavourable
	if total == 0 {
		return 0.5
	}
	return float64(favourable) / float64(total)
}
