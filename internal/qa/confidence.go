package qa

import "strings"

// Grader assigns a Confidence label by scanning answer text for two
// phrase families. The tables are policy, not control flow: swap them to
// recalibrate without touching the pipeline.
type Grader struct {
	// HighPhrases signal explicit citation of the excerpts.
	HighPhrases []string
	// LowPhrases signal explicit uncertainty. Hedged answers matching
	// neither table land on the default medium.
	LowPhrases []string
}

// DefaultGrader returns the stock phrase tables.
func DefaultGrader() *Grader {
	return &Grader{
		HighPhrases: []string{
			"explicitly states", "clearly indicates", "directly mentions",
			"according to", "states that", "specifies that",
		},
		LowPhrases: []string{
			"unclear", "not specified", "cannot determine",
			"may or may not", "insufficient information", "does not mention",
		},
	}
}

// Grade labels an answer by its phrasing: explicit citation beats explicit
// uncertainty beats hedging; an answer matching none of the tables defaults
// to medium.
func (g *Grader) Grade(answer string) Confidence {
	lower := strings.ToLower(answer)

	if containsAny(lower, g.HighPhrases) {
		return ConfidenceHigh
	}
	if containsAny(lower, g.LowPhrases) {
		return ConfidenceLow
	}
	return ConfidenceMedium
}

func containsAny(s string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(s, phrase) {
			return true
		}
	}
	return false
}
