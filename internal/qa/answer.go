// Package qa turns a question about a document into a grounded answer:
// embed the query, retrieve the most similar chunks, prompt the generation
// model with the excerpts only, and grade how confidently the answer is
// phrased. It is the boundary that converts downstream faults into a
// well-formed Answer wherever one can still be constructed.
package qa

import (
	"errors"

	"github.com/jmcarthur/docqa/internal/storage"
)

// Confidence is a coarse, heuristically derived indicator of how directly
// an answer is supported by its sources. It reflects how the answer is
// phrased, not independently verified correctness.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
	// ConfidenceNone means retrieval found nothing; generation never ran.
	ConfidenceNone Confidence = "none"
	// ConfidenceError means generation failed; sources are still populated
	// so the caller can retry against the same retrieval.
	ConfidenceError Confidence = "error"
)

// Source is one retrieved excerpt backing an answer. Text is trimmed to a
// bounded preview; the full chunk remains retrievable by re-querying.
type Source struct {
	Text       string
	Score      float64
	DocumentID int64
	ChunkIndex int
}

// Answer is the terminal result of one question.
type Answer struct {
	Question   string
	Text       string
	Sources    []Source
	Confidence Confidence

	// Retrieved keeps the untrimmed retrieval results so evaluation can
	// score the transaction on the full chunk texts and raw scores.
	Retrieved []storage.RetrievalResult
}

// DetailLevel controls prompt verbosity and output length, never retrieval.
type DetailLevel string

const (
	DetailBrief         DetailLevel = "brief"
	DetailDetailed      DetailLevel = "detailed"
	DetailComprehensive DetailLevel = "comprehensive"
)

var (
	ErrInvalidTopK        = errors.New("top_k must be between 1 and 10")
	ErrInvalidDetailLevel = errors.New("detail_level must be 'brief', 'detailed', or 'comprehensive'")
)

// AskOptions tune a single question. Zero values select the defaults
// (top_k 3, detailed).
type AskOptions struct {
	TopK        int
	DetailLevel DetailLevel
}

func (o AskOptions) withDefaults() AskOptions {
	if o.TopK == 0 {
		o.TopK = 3
	}
	if o.DetailLevel == "" {
		o.DetailLevel = DetailDetailed
	}
	return o
}

func (o AskOptions) validate() error {
	if o.TopK < 1 || o.TopK > 10 {
		return ErrInvalidTopK
	}
	switch o.DetailLevel {
	case DetailBrief, DetailDetailed, DetailComprehensive:
		return nil
	default:
		return ErrInvalidDetailLevel
	}
}
