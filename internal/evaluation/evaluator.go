// Package evaluation scores one question/answer/retrieval transaction.
//
// Everything here is a pure function of its inputs: the only remote-capable
// path is the optional expected-answer comparison, which delegates to a
// caller-supplied similarity function.
package evaluation

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jmcarthur/docqa/internal/qa"
	"github.com/jmcarthur/docqa/internal/storage"
)

// Score bands for retrieved chunks.
const (
	highQualityThreshold   = 0.7
	mediumQualityThreshold = 0.5
)

// expectedMatchThreshold is the semantic similarity above which an answer
// counts as matching the expected answer.
const expectedMatchThreshold = 0.75

// questionPreviewLen bounds the question echoed into the report, cut on a
// rune boundary.
const questionPreviewLen = 100

// genericPhrases flag likely-unhelpful refusal answers.
var genericPhrases = []string{
	"i cannot answer", "no information", "not found",
	"unable to determine", "please rephrase",
}

// RetrievalMetrics summarizes the similarity scores of retrieved chunks.
type RetrievalMetrics struct {
	NumChunks  int
	AvgScore   float64
	MaxScore   float64
	MinScore   float64
	ScoreRange float64
	// Chunk counts per quality band: high >0.7, medium (0.5, 0.7], low ≤0.5.
	HighQualityChunks   int
	MediumQualityChunks int
	LowQualityChunks    int
}

// AnswerMetrics summarizes the generated answer text.
type AnswerMetrics struct {
	Length          int
	WordCount       int
	ConfidenceLevel qa.Confidence
	// ContextOverlap is the fraction of answer words that also appear in
	// the retrieved chunks, a cheap proxy for groundedness.
	ContextOverlap float64
	IsGeneric      bool
	// Expected-answer comparison, populated only when an expected answer
	// and a similarity function were provided.
	HasExpected          bool
	SimilarityToExpected float64
	MatchesExpected      bool
}

// Evaluation is the full quality report for one transaction.
type Evaluation struct {
	Question       string
	Retrieval      RetrievalMetrics
	Answer         AnswerMetrics
	Confidence     qa.Confidence
	OverallQuality Band
}

// SimilarityFunc computes semantic similarity of two texts in [-1, 1],
// typically by embedding both and taking cosine similarity.
type SimilarityFunc func(ctx context.Context, a, b string) (float64, error)

// Evaluator scores RAG transactions. The grader and rubric are replaceable
// policies; Similarity may be nil to disable expected-answer comparison.
type Evaluator struct {
	Grader     *qa.Grader
	Rubric     Rubric
	Similarity SimilarityFunc
}

// New returns an Evaluator with the default grader and rubric.
func New() *Evaluator {
	return &Evaluator{
		Grader: qa.DefaultGrader(),
		Rubric: DefaultRubric(),
	}
}

// EvaluateRetrieval computes score statistics over retrieved chunks. An
// empty retrieval yields zeroed metrics, not an error.
func EvaluateRetrieval(results []storage.RetrievalResult) RetrievalMetrics {
	if len(results) == 0 {
		return RetrievalMetrics{}
	}

	m := RetrievalMetrics{
		NumChunks: len(results),
		MaxScore:  results[0].Score,
		MinScore:  results[0].Score,
	}

	var sum float64
	for _, result := range results {
		score := result.Score
		sum += score
		m.MaxScore = max(m.MaxScore, score)
		m.MinScore = min(m.MinScore, score)

		switch {
		case score > highQualityThreshold:
			m.HighQualityChunks++
		case score > mediumQualityThreshold:
			m.MediumQualityChunks++
		default:
			m.LowQualityChunks++
		}
	}

	m.AvgScore = sum / float64(len(results))
	m.ScoreRange = m.MaxScore - m.MinScore
	return m
}

// EvaluateAnswer scores the answer text against its context chunks. The
// expected answer is optional; when present and a Similarity function is
// configured, the answers are compared semantically.
func (e *Evaluator) EvaluateAnswer(ctx context.Context, answer string, contexts []string, expected string) (AnswerMetrics, error) {
	lower := strings.ToLower(answer)

	m := AnswerMetrics{
		Length:          len(answer),
		WordCount:       len(strings.Fields(answer)),
		ConfidenceLevel: e.Grader.Grade(answer),
		ContextOverlap:  lexicalOverlap(lower, contexts),
		IsGeneric:       isGeneric(lower),
	}

	if expected != "" && e.Similarity != nil {
		similarity, err := e.Similarity(ctx, answer, expected)
		if err != nil {
			return m, fmt.Errorf("expected-answer similarity: %w", err)
		}
		m.HasExpected = true
		m.SimilarityToExpected = similarity
		m.MatchesExpected = similarity > expectedMatchThreshold
	}

	return m, nil
}

// Evaluate scores the whole transaction and assigns the overall band.
func (e *Evaluator) Evaluate(ctx context.Context, question, answer string, results []storage.RetrievalResult, confidence qa.Confidence, expected string) (*Evaluation, error) {
	retrieval := EvaluateRetrieval(results)

	contexts := make([]string, len(results))
	for i, result := range results {
		contexts[i] = result.Text
	}

	answerMetrics, err := e.EvaluateAnswer(ctx, answer, contexts, expected)
	if err != nil {
		return nil, err
	}

	if len(question) > questionPreviewLen {
		limit := questionPreviewLen
		for limit > 0 && !utf8.RuneStart(question[limit]) {
			limit--
		}
		question = question[:limit]
	}

	return &Evaluation{
		Question:       question,
		Retrieval:      retrieval,
		Answer:         answerMetrics,
		Confidence:     confidence,
		OverallQuality: e.Rubric.Assess(retrieval, answerMetrics, confidence),
	}, nil
}

// lexicalOverlap is |answer words ∩ context words| / |answer words|.
func lexicalOverlap(answerLower string, contexts []string) float64 {
	answerWords := wordSet(answerLower)
	if len(answerWords) == 0 {
		return 0
	}

	contextWords := wordSet(strings.ToLower(strings.Join(contexts, " ")))
	common := 0
	for word := range answerWords {
		if contextWords[word] {
			common++
		}
	}
	return float64(common) / float64(len(answerWords))
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, word := range strings.Fields(s) {
		set[word] = true
	}
	return set
}

func isGeneric(answerLower string) bool {
	for _, phrase := range genericPhrases {
		if strings.Contains(answerLower, phrase) {
			return true
		}
	}
	return false
}
