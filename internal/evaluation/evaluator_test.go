package evaluation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcarthur/docqa/internal/qa"
	"github.com/jmcarthur/docqa/internal/storage"
)

func resultsWithScores(scores ...float64) []storage.RetrievalResult {
	results := make([]storage.RetrievalResult, len(scores))
	for i, score := range scores {
		results[i] = storage.RetrievalResult{
			Text:       "Payment is due within thirty days of the invoice date.",
			Score:      score,
			DocumentID: 1,
			ChunkIndex: i,
		}
	}
	return results
}

func TestEvaluateRetrieval_Empty(t *testing.T) {
	m := EvaluateRetrieval(nil)
	assert.Zero(t, m.NumChunks)
	assert.Zero(t, m.AvgScore)
	assert.Zero(t, m.HighQualityChunks)
}

func TestEvaluateRetrieval_Statistics(t *testing.T) {
	m := EvaluateRetrieval(resultsWithScores(0.9, 0.6, 0.3))

	assert.Equal(t, 3, m.NumChunks)
	assert.InDelta(t, 0.6, m.AvgScore, 1e-9)
	assert.Equal(t, 0.9, m.MaxScore)
	assert.Equal(t, 0.3, m.MinScore)
	assert.InDelta(t, 0.6, m.ScoreRange, 1e-9)
}

func TestEvaluateRetrieval_QualityBuckets(t *testing.T) {
	// 0.7 is not high and 0.5 is not medium: both thresholds are strict.
	m := EvaluateRetrieval(resultsWithScores(0.95, 0.71, 0.7, 0.5, 0.1))

	assert.Equal(t, 2, m.HighQualityChunks)
	assert.Equal(t, 1, m.MediumQualityChunks)
	assert.Equal(t, 2, m.LowQualityChunks)
}

func TestEvaluateAnswer_OverlapAndShape(t *testing.T) {
	evaluator := New()
	contexts := []string{"payment is due within thirty days", "late fees accrue monthly"}

	m, err := evaluator.EvaluateAnswer(context.Background(), "Payment is due within thirty days.", contexts, "")

	require.NoError(t, err)
	assert.Equal(t, len("Payment is due within thirty days."), m.Length)
	assert.Equal(t, 6, m.WordCount)
	assert.False(t, m.IsGeneric)
	assert.False(t, m.HasExpected)
	// "days." does not match "days" under whitespace tokenization; the
	// other five words all appear in the contexts.
	assert.InDelta(t, 5.0/6.0, m.ContextOverlap, 1e-9)
}

func TestEvaluateAnswer_GenericDetection(t *testing.T) {
	evaluator := New()
	generic := []string{
		"I cannot answer this question from the document.",
		"No information was found on that topic.",
		"The clause was not found.",
		"I am unable to determine the fee.",
		"Please rephrase your question.",
	}
	for _, answer := range generic {
		m, err := evaluator.EvaluateAnswer(context.Background(), answer, nil, "")
		require.NoError(t, err)
		assert.True(t, m.IsGeneric, "expected generic: %q", answer)
	}

	m, err := evaluator.EvaluateAnswer(context.Background(), "The fee is 1.5% per month.", nil, "")
	require.NoError(t, err)
	assert.False(t, m.IsGeneric)
}

func TestEvaluateAnswer_ExpectedComparison(t *testing.T) {
	evaluator := New()
	evaluator.Similarity = func(_ context.Context, a, b string) (float64, error) {
		assert.Equal(t, "Thirty days.", a)
		assert.Equal(t, "Payment is due in 30 days.", b)
		return 0.82, nil
	}

	m, err := evaluator.EvaluateAnswer(context.Background(), "Thirty days.", nil, "Payment is due in 30 days.")

	require.NoError(t, err)
	assert.True(t, m.HasExpected)
	assert.Equal(t, 0.82, m.SimilarityToExpected)
	assert.True(t, m.MatchesExpected)
}

func TestEvaluateAnswer_ExpectedBelowThreshold(t *testing.T) {
	evaluator := New()
	evaluator.Similarity = func(context.Context, string, string) (float64, error) {
		return 0.5, nil
	}

	m, err := evaluator.EvaluateAnswer(context.Background(), "Ninety days.", nil, "Thirty days.")

	require.NoError(t, err)
	assert.True(t, m.HasExpected)
	assert.False(t, m.MatchesExpected)
}

func TestEvaluateAnswer_SimilarityError(t *testing.T) {
	evaluator := New()
	evaluator.Similarity = func(context.Context, string, string) (float64, error) {
		return 0, errors.New("embedding service down")
	}

	_, err := evaluator.EvaluateAnswer(context.Background(), "a", nil, "b")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected-answer similarity")
}

func TestEvaluateAnswer_NoSimilarityFuncSkipsComparison(t *testing.T) {
	evaluator := New()

	m, err := evaluator.EvaluateAnswer(context.Background(), "Thirty days.", nil, "Thirty days.")

	require.NoError(t, err)
	assert.False(t, m.HasExpected)
}

func TestRubric_Bands(t *testing.T) {
	rubric := DefaultRubric()

	strong := RetrievalMetrics{AvgScore: 0.85, HighQualityChunks: 3}
	grounded := AnswerMetrics{Length: 150, ContextOverlap: 0.5}

	cases := []struct {
		name       string
		retrieval  RetrievalMetrics
		answer     AnswerMetrics
		confidence qa.Confidence
		want       Band
	}{
		{"everything strong", strong, grounded, qa.ConfidenceHigh, BandExcellent},
		{"decent retrieval medium confidence", RetrievalMetrics{AvgScore: 0.65, HighQualityChunks: 1}, grounded, qa.ConfidenceMedium, BandGood},
		{"weak retrieval grounded answer", RetrievalMetrics{AvgScore: 0.4}, grounded, qa.ConfidenceLow, BandFair},
		{"generic refusal", RetrievalMetrics{}, AnswerMetrics{Length: 30, IsGeneric: true}, qa.ConfidenceNone, BandPoor},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, rubric.Assess(tc.retrieval, tc.answer, tc.confidence))
		})
	}
}

func TestRubric_ScoreBreakdown(t *testing.T) {
	rubric := DefaultRubric()

	// 20 (avg) + 20 (high chunks) + 10 (length) + 15 (non-generic) +
	// 15 (overlap) + 20 (confidence) = 100.
	full := rubric.Score(
		RetrievalMetrics{AvgScore: 0.9, HighQualityChunks: 2},
		AnswerMetrics{Length: 200, ContextOverlap: 0.6},
		qa.ConfidenceHigh,
	)
	assert.Equal(t, 100, full)

	// Non-generic is the only earned criterion.
	floor := rubric.Score(RetrievalMetrics{}, AnswerMetrics{}, qa.ConfidenceNone)
	assert.Equal(t, 15, floor)
}

func TestRubric_ImprovingAMetricNeverLowersScore(t *testing.T) {
	rubric := DefaultRubric()
	base := RetrievalMetrics{AvgScore: 0.55, HighQualityChunks: 0}
	answer := AnswerMetrics{Length: 80, ContextOverlap: 0.2}

	baseline := rubric.Score(base, answer, qa.ConfidenceLow)

	better := base
	better.AvgScore = 0.95
	assert.GreaterOrEqual(t, rubric.Score(better, answer, qa.ConfidenceLow), baseline)

	better = base
	better.HighQualityChunks = 3
	assert.GreaterOrEqual(t, rubric.Score(better, answer, qa.ConfidenceLow), baseline)

	longer := answer
	longer.Length = 500
	assert.GreaterOrEqual(t, rubric.Score(base, longer, qa.ConfidenceLow), baseline)

	grounded := answer
	grounded.ContextOverlap = 0.9
	assert.GreaterOrEqual(t, rubric.Score(base, grounded, qa.ConfidenceLow), baseline)

	assert.GreaterOrEqual(t, rubric.Score(base, answer, qa.ConfidenceHigh), baseline)
}

func TestEvaluate_EndToEnd(t *testing.T) {
	evaluator := New()
	results := []storage.RetrievalResult{
		{Text: "Payment is due within 30 days of the invoice date.", Score: 0.89, DocumentID: 7, ChunkIndex: 0},
		{Text: "Late fees of 1.5% per month apply to overdue balances.", Score: 0.81, DocumentID: 7, ChunkIndex: 1},
	}
	answer := "According to Excerpt 1, payment is due within 30 days of the invoice date, and Excerpt 2 adds that late fees of 1.5% per month apply."

	eval, err := evaluator.Evaluate(context.Background(), "What are the payment terms?", answer, results, qa.ConfidenceHigh, "")

	require.NoError(t, err)
	assert.Equal(t, "What are the payment terms?", eval.Question)
	assert.Equal(t, 2, eval.Retrieval.HighQualityChunks)
	assert.Equal(t, qa.ConfidenceHigh, eval.Answer.ConfidenceLevel)
	assert.Equal(t, BandExcellent, eval.OverallQuality)
}

func TestEvaluate_TruncatesLongQuestion(t *testing.T) {
	evaluator := New()
	question := strings.Repeat("why ", 50)

	eval, err := evaluator.Evaluate(context.Background(), question, "answer", nil, qa.ConfidenceNone, "")

	require.NoError(t, err)
	assert.Len(t, eval.Question, 100)
}

func TestEvaluate_QuestionCutOnRuneBoundary(t *testing.T) {
	evaluator := New()
	question := strings.Repeat("q", 99) + strings.Repeat("é", 10)

	eval, err := evaluator.Evaluate(context.Background(), question, "answer", nil, qa.ConfidenceNone, "")

	require.NoError(t, err)
	assert.True(t, utf8.ValidString(eval.Question), "question split a rune: %q", eval.Question)
	assert.LessOrEqual(t, len(eval.Question), 100)
}

func TestReport_Rendering(t *testing.T) {
	eval := &Evaluation{
		Question:   "What are the payment terms?",
		Confidence: qa.ConfidenceHigh,
		Retrieval: RetrievalMetrics{
			NumChunks:         2,
			AvgScore:          0.85,
			HighQualityChunks: 2,
		},
		Answer: AnswerMetrics{
			Length:               120,
			WordCount:            22,
			ConfidenceLevel:      qa.ConfidenceHigh,
			ContextOverlap:       0.45,
			HasExpected:          true,
			SimilarityToExpected: 0.91,
			MatchesExpected:      true,
		},
		OverallQuality: BandExcellent,
	}

	report := Report(eval)

	assert.Contains(t, report, "Overall Quality: EXCELLENT")
	assert.Contains(t, report, "Chunks Retrieved: 2")
	assert.Contains(t, report, "Average Score: 0.850")
	assert.Contains(t, report, "Context Usage: 45.0%")
	assert.Contains(t, report, "Similarity to Expected: 0.910")
	assert.Contains(t, report, "Matches Expected: Yes")
}

func TestReport_OmitsExpectedWhenAbsent(t *testing.T) {
	report := Report(&Evaluation{OverallQuality: BandPoor, Confidence: qa.ConfidenceNone})
	assert.NotContains(t, report, "Similarity to Expected")
}
