// Package analyze provides pure heuristics that turn raw text content and
// recent voice commands into the numeric signals consumed by the reading
// state builder: text difficulty, text type, text length, and the listener's
// engagement and comprehension scores.
//
// All functions are deterministic and free of side effects, so they can be
// unit-tested with literal strings. None of them perform I/O or require an
// LLM. They are the cheap, always-available fallback used when no external
// classifier supplies these signals.
package analyze

import "strings"

// Text type scores on the [0, 1] scale used by the state vector. Emails are
// skimmable (0.1), academic prose is dense (0.8); everything else falls in
// between.
const (
	TypeEmail    = 0.1
	TypeGeneral  = 0.4
	TypeNews     = 0.6
	TypeAcademic = 0.8
)

// Neutral signal values used when no text content is available.
const (
	neutralDifficulty = 0.5
	neutralType       = TypeGeneral
	neutralLength     = 0.5
)

// TextSignals holds the three text-derived inputs of the reading state
// vector, each normalised to [0, 1].
type TextSignals struct {
	// Difficulty estimates how demanding the text is to follow when read
	// aloud. Derived from average word length: min(1, avgWordLen/8).
	Difficulty float64

	// Type classifies the content family (see the Type* constants).
	Type float64

	// Length is the word count normalised against a 1000-word ceiling.
	Length float64
}

// Keyword families for text type detection. Matching is case-insensitive
// substring search over the whole content, so multi-word markers like
// "according to" work as expected.
var (
	emailMarkers    = []string{"@", "dear", "sincerely", "regards"}
	academicMarkers = []string{"chapter", "section", "figure", "table", "reference", "abstract"}
	newsMarkers     = []string{"breaking", "reported", "according to", "sources"}
)

// Text analyses raw content and returns its difficulty, type, and length
// signals. Empty or whitespace-only content yields neutral defaults rather
// than an error; a missing transcript must never fail a decision cycle.
func Text(content string) TextSignals {
	words := strings.Fields(content)
	if len(words) == 0 {
		return TextSignals{
			Difficulty: neutralDifficulty,
			Type:       neutralType,
			Length:     neutralLength,
		}
	}

	var runeCount int
	for _, w := range words {
		runeCount += len([]rune(w))
	}
	avgWordLen := float64(runeCount) / float64(len(words))

	return TextSignals{
		Difficulty: min(1.0, avgWordLen/8.0),
		Type:       classifyType(content),
		Length:     min(1.0, float64(len(words))/1000.0),
	}
}

// classifyType assigns a text type score from keyword families. The first
// matching family wins; ordering encodes specificity (email markers are the
// strongest signal, news markers the weakest).
func classifyType(content string) float64 {
	lower := strings.ToLower(content)

	if containsAny(lower, emailMarkers) {
		return TypeEmail
	}
	if containsAny(lower, academicMarkers) {
		return TypeAcademic
	}
	if containsAny(lower, newsMarkers) {
		return TypeNews
	}
	return TypeGeneral
}

// containsAny reports whether s contains any of the given markers.
func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
