package env

import "math"

// RewardBreakdown itemises the ten sub-rewards that score the current
// delivery settings against the tracked listener signals. Total is the sum
// clipped to [-1, 5].
type RewardBreakdown struct {
	Speed                float64 `json:"speed"`
	Pause                float64 `json:"pause"`
	Highlight            float64 `json:"highlight"`
	Engagement           float64 `json:"engagement"`
	Comprehension        float64 `json:"comprehension"`
	DifficultyAdaptation float64 `json:"difficulty_adaptation"`
	Continuity           float64 `json:"continuity"`
	Preference           float64 `json:"preference"`
	Efficiency           float64 `json:"efficiency"`
	ExtremePenalty       float64 `json:"extreme_penalty"`
	Total                float64 `json:"total"`
}

// RewardBreakdown scores the current settings. Each term has a fixed weight
// ceiling; the thresholds are tuned constants, not derived values.
func (e *Environment) RewardBreakdown() RewardBreakdown {
	b := RewardBreakdown{
		Speed:                e.speedReward(),
		Pause:                e.pauseReward(),
		Highlight:            e.highlightReward(),
		Engagement:           e.engagementReward(),
		Comprehension:        e.comprehensionReward(),
		DifficultyAdaptation: e.difficultyAdaptationReward(),
		Continuity:           e.continuityReward(),
		Preference:           e.preferenceReward(),
		Efficiency:           e.efficiencyReward(),
		ExtremePenalty:       e.extremePenalty(),
	}
	sum := b.Speed + b.Pause + b.Highlight + b.Engagement + b.Comprehension +
		b.DifficultyAdaptation + b.Continuity + b.Preference + b.Efficiency +
		b.ExtremePenalty
	b.Total = clamp(sum, -1.0, 5.0)
	return b
}

// speedReward (0 to 1.0): distance from the difficulty-dependent optimal
// speed, optimal = 1.2 - difficulty*0.4.
func (e *Environment) speedReward() float64 {
	optimal := 1.2 - e.textDifficulty*0.4
	diff := math.Abs(e.settings.ReadingSpeed - optimal)
	switch {
	case diff <= 0.1:
		return 1.0
	case diff <= 0.2:
		return 0.8
	case diff <= 0.3:
		return 0.5
	default:
		return math.Max(0, 0.5-diff)
	}
}

// pauseReward (0 to 0.8): harder text and weaker comprehension both call for
// more pauses, optimal = min(0.7, 0.2 + d*0.3 + (1-c)*0.2).
func (e *Environment) pauseReward() float64 {
	optimal := math.Min(0.7, 0.2+e.textDifficulty*0.3+(1-e.comprehension)*0.2)
	diff := math.Abs(e.settings.PauseFrequency - optimal)
	switch {
	case diff <= 0.1:
		return 0.8
	case diff <= 0.2:
		return 0.6
	case diff <= 0.3:
		return 0.3
	default:
		return math.Max(0, 0.3-diff)
	}
}

// highlightReward (0 to 0.6): harder text and lower engagement both call for
// more highlighting, optimal = min(0.9, 0.3 + d*0.4 + (1-eng)*0.2).
func (e *Environment) highlightReward() float64 {
	optimal := math.Min(0.9, 0.3+e.textDifficulty*0.4+(1-e.engagement)*0.2)
	diff := math.Abs(e.settings.HighlightIntensity - optimal)
	switch {
	case diff <= 0.15:
		return 0.6
	case diff <= 0.25:
		return 0.4
	case diff <= 0.35:
		return 0.2
	default:
		return math.Max(0, 0.2-diff)
	}
}

// engagementReward (0 to 1.2): monotone step function of engagement.
func (e *Environment) engagementReward() float64 {
	switch {
	case e.engagement >= 0.9:
		return 1.2
	case e.engagement >= 0.8:
		return 1.0
	case e.engagement >= 0.7:
		return 0.8
	case e.engagement >= 0.6:
		return 0.5
	case e.engagement >= 0.4:
		return 0.2
	default:
		return 0.0
	}
}

// comprehensionReward (-0.5 to 1.5): the heaviest-weighted term; very low
// comprehension is actively penalised.
func (e *Environment) comprehensionReward() float64 {
	switch {
	case e.comprehension >= 0.9:
		return 1.5
	case e.comprehension >= 0.8:
		return 1.2
	case e.comprehension >= 0.7:
		return 1.0
	case e.comprehension >= 0.6:
		return 0.7
	case e.comprehension >= 0.5:
		return 0.4
	case e.comprehension >= 0.3:
		return 0.1
	default:
		return -0.5
	}
}

// difficultyAdaptationReward (0 to 0.8): bonus when each setting has moved in
// the expected direction for clearly hard (>0.7) or clearly easy (<0.3) text.
func (e *Environment) difficultyAdaptationReward() float64 {
	d := e.textDifficulty
	var score float64

	if d > 0.7 && e.settings.ReadingSpeed < 1.0 {
		score += 0.3
	} else if d < 0.3 && e.settings.ReadingSpeed > 1.0 {
		score += 0.3
	}

	if d > 0.7 && e.settings.PauseFrequency > 0.4 {
		score += 0.3
	} else if d < 0.3 && e.settings.PauseFrequency < 0.4 {
		score += 0.3
	}

	if d > 0.7 && e.settings.HighlightIntensity > 0.6 {
		score += 0.2
	} else if d < 0.3 && e.settings.HighlightIntensity < 0.6 {
		score += 0.2
	}

	return math.Min(0.8, score)
}

// continuityReward (0 to 0.5): step function of how long the current session
// has been running.
func (e *Environment) continuityReward() float64 {
	switch {
	case e.stepCount >= 20:
		return 0.5
	case e.stepCount >= 10:
		return 0.3
	case e.stepCount >= 5:
		return 0.1
	default:
		return 0.0
	}
}

// preferenceReward (0 to 0.6): +0.2 for every stated preference in the last
// five feedback entries that the current settings land within 0.1 of.
func (e *Environment) preferenceReward() float64 {
	if len(e.feedback) == 0 {
		return 0.0
	}
	recent := e.feedback
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}

	var score float64
	for _, fb := range recent {
		if fb.PreferredSpeed != nil && math.Abs(e.settings.ReadingSpeed-*fb.PreferredSpeed) <= 0.1 {
			score += 0.2
		}
		if fb.PreferredPauses != nil && math.Abs(e.settings.PauseFrequency-*fb.PreferredPauses) <= 0.1 {
			score += 0.2
		}
		if fb.PreferredHighlighting != nil && math.Abs(e.settings.HighlightIntensity-*fb.PreferredHighlighting) <= 0.1 {
			score += 0.2
		}
	}
	return math.Min(0.6, score)
}

// efficiencyReward (0 to 0.4): step function of progress × comprehension.
func (e *Environment) efficiencyReward() float64 {
	efficiency := e.textProgress * e.comprehension
	switch {
	case efficiency >= 0.8:
		return 0.4
	case efficiency >= 0.6:
		return 0.3
	case efficiency >= 0.4:
		return 0.2
	case efficiency >= 0.2:
		return 0.1
	default:
		return 0.0
	}
}

// extremePenalty (-0.3 to 0): -0.1 per setting sitting at an uncomfortable
// extreme.
func (e *Environment) extremePenalty() float64 {
	var penalty float64
	if e.settings.ReadingSpeed < 0.6 || e.settings.ReadingSpeed > 1.4 {
		penalty -= 0.1
	}
	if e.settings.PauseFrequency < 0.05 || e.settings.PauseFrequency > 0.9 {
		penalty -= 0.1
	}
	if e.settings.HighlightIntensity < 0.05 || e.settings.HighlightIntensity > 0.95 {
		penalty -= 0.1
	}
	return penalty
}
