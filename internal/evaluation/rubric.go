package evaluation

import "github.com/jmcarthur/docqa/internal/qa"

// Band is the overall quality verdict for a transaction.
type Band string

const (
	BandExcellent Band = "excellent"
	BandGood      Band = "good"
	BandFair      Band = "fair"
	BandPoor      Band = "poor"
)

// Rubric is the point table behind the overall quality band. All weights
// and cutoffs are plain fields so deployments can tune the policy without
// touching the scoring code.
type Rubric struct {
	// Retrieval: average similarity of retrieved chunks.
	StrongAvgScore  float64
	StrongAvgPoints int
	DecentAvgScore  float64
	DecentAvgPoints int

	// Retrieval: count of high-quality chunks.
	ManyHighChunks int
	ManyHighPoints int
	SomeHighChunks int
	SomeHighPoints int

	// Answer shape.
	SubstantiveLength int
	LengthPoints      int
	NonGenericPoints  int

	// Groundedness.
	MinOverlap    float64
	OverlapPoints int

	// Confidence signal from the answer phrasing.
	HighConfidencePoints   int
	MediumConfidencePoints int

	// Band cutoffs over the 0-100 total.
	ExcellentAt int
	GoodAt      int
	FairAt      int
}

// DefaultRubric returns the standard weights, totaling 100 points.
func DefaultRubric() Rubric {
	return Rubric{
		StrongAvgScore:  0.8,
		StrongAvgPoints: 20,
		DecentAvgScore:  0.6,
		DecentAvgPoints: 10,

		ManyHighChunks: 2,
		ManyHighPoints: 20,
		SomeHighChunks: 1,
		SomeHighPoints: 10,

		SubstantiveLength: 100,
		LengthPoints:      10,
		NonGenericPoints:  15,

		MinOverlap:    0.3,
		OverlapPoints: 15,

		HighConfidencePoints:   20,
		MediumConfidencePoints: 10,

		ExcellentAt: 80,
		GoodAt:      60,
		FairAt:      40,
	}
}

// Score totals the rubric points for one transaction. Improving any single
// metric never lowers the total.
func (r Rubric) Score(retrieval RetrievalMetrics, answer AnswerMetrics, confidence qa.Confidence) int {
	score := 0

	switch {
	case retrieval.AvgScore > r.StrongAvgScore:
		score += r.StrongAvgPoints
	case retrieval.AvgScore > r.DecentAvgScore:
		score += r.DecentAvgPoints
	}

	switch {
	case retrieval.HighQualityChunks >= r.ManyHighChunks:
		score += r.ManyHighPoints
	case retrieval.HighQualityChunks >= r.SomeHighChunks:
		score += r.SomeHighPoints
	}

	if answer.Length > r.SubstantiveLength {
		score += r.LengthPoints
	}
	if !answer.IsGeneric {
		score += r.NonGenericPoints
	}
	if answer.ContextOverlap > r.MinOverlap {
		score += r.OverlapPoints
	}

	switch confidence {
	case qa.ConfidenceHigh:
		score += r.HighConfidencePoints
	case qa.ConfidenceMedium:
		score += r.MediumConfidencePoints
	}

	return score
}

// Assess maps the rubric total to a quality band.
func (r Rubric) Assess(retrieval RetrievalMetrics, answer AnswerMetrics, confidence qa.Confidence) Band {
	score := r.Score(retrieval, answer, confidence)
	switch {
	case score >= r.ExcellentAt:
		return BandExcellent
	case score >= r.GoodAt:
		return BandGood
	case score >= r.FairAt:
		return BandFair
	default:
		return BandPoor
	}
}
