package qa

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"unicode/utf8"

	"github.com/jmcarthur/docqa/internal/storage"
)

// sourcePreviewLen bounds the excerpt text echoed back in Answer.Sources.
const sourcePreviewLen = 200

// noInformationText is the terminal answer when retrieval finds nothing.
const noInformationText = "I couldn't find any relevant information in the document to answer this question."

// Embedder embeds the query text. The pipeline binds it to a concrete
// embedding model matching the stored vectors (no normalization mismatch).
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Retriever fetches the nearest chunks for a document.
type Retriever interface {
	Search(ctx context.Context, vector []float32, documentID int64, topK int) ([]storage.RetrievalResult, error)
}

// Generator produces the answer text from a grounded prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Engine runs the per-question state machine. Safe for concurrent use.
type Engine struct {
	embedder  Embedder
	retriever Retriever
	generator Generator
	grader    *Grader
	logger    *slog.Logger
}

// NewEngine wires the question-answering engine. A nil logger falls back to
// slog.Default; the grader starts with the default phrase tables and can be
// replaced with SetGrader.
func NewEngine(embedder Embedder, retriever Retriever, generator Generator, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		embedder:  embedder,
		retriever: retriever,
		generator: generator,
		grader:    DefaultGrader(),
		logger:    logger,
	}
}

// SetGrader swaps the confidence grading policy.
func (e *Engine) SetGrader(g *Grader) {
	if g != nil {
		e.grader = g
	}
}

// Ask answers a question about one document. Every branch is terminal:
//
//   - invalid options fail before any remote work
//   - a query that cannot be embedded, or a failed search, propagates as an
//     error (no result shape exists yet)
//   - empty retrieval returns confidence "none" without calling generation
//   - failed generation returns confidence "error" with sources retained
//   - otherwise the answer is graded by its phrasing and returned with
//     trimmed source previews
func (e *Engine) Ask(ctx context.Context, question string, documentID int64, opts AskOptions) (*Answer, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	vector, err := e.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := e.retriever.Search(ctx, vector, documentID, opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("retrieve chunks: %w", err)
	}

	if len(results) == 0 {
		e.logger.Warn("No relevant chunks found", "document_id", documentID)
		return &Answer{
			Question:   question,
			Text:       noInformationText,
			Sources:    []Source{},
			Confidence: ConfidenceNone,
		}, nil
	}

	prompt := buildPrompt(question, results, opts.DetailLevel)
	maxTokens := detailInstruction[opts.DetailLevel].maxTokens

	text, err := e.generator.Generate(ctx, prompt, maxTokens)
	if err != nil {
		e.logger.Error("Generation failed", "document_id", documentID, "error", err)
		return &Answer{
			Question:   question,
			Text:       fmt.Sprintf("I encountered an error while generating the answer: %v. Please try again.", err),
			Sources:    trimSources(results),
			Confidence: ConfidenceError,
			Retrieved:  results,
		}, nil
	}

	confidence := e.grader.Grade(text)
	e.logger.Info("Answer generated",
		"document_id", documentID,
		"sources", len(results),
		"confidence", confidence,
	)

	return &Answer{
		Question:   question,
		Text:       text,
		Sources:    trimSources(results),
		Confidence: confidence,
		Retrieved:  results,
	}, nil
}

// summaryProbe is the generic query used to pull representative chunks for
// document summarization.
const summaryProbe = "main points key information important details"

// Summarize produces a short summary of a document from its most
// representative chunks. Returns the canned no-content message when the
// document has no indexed chunks.
func (e *Engine) Summarize(ctx context.Context, documentID int64, maxChunks int) (string, error) {
	if maxChunks <= 0 {
		maxChunks = 10
	}

	vector, err := e.embedder.EmbedQuery(ctx, summaryProbe)
	if err != nil {
		return "", fmt.Errorf("embed probe: %w", err)
	}

	results, err := e.retriever.Search(ctx, vector, documentID, maxChunks)
	if err != nil {
		return "", fmt.Errorf("retrieve chunks: %w", err)
	}
	if len(results) == 0 {
		return "Unable to generate summary - no content found.", nil
	}

	var excerpts string
	for i, result := range results {
		if i > 0 {
			excerpts += "\n\n"
		}
		excerpts += result.Text
	}

	prompt := fmt.Sprintf(`You are analyzing a legal document. Based on the following excerpts, provide:

1. A concise summary (2-3 sentences)
2. Key points (bullet points)

Excerpts:

%s

Please provide:
1. Summary:
2. Key Points:`, excerpts)

	summary, err := e.generator.Generate(ctx, prompt, detailInstruction[DetailComprehensive].maxTokens)
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}
	return summary, nil
}

// trimSources converts retrieval results into response sources: previews
// bounded to sourcePreviewLen and scores rounded to 4 decimal places.
func trimSources(results []storage.RetrievalResult) []Source {
	sources := make([]Source, len(results))
	for i, result := range results {
		text := result.Text
		if len(text) > sourcePreviewLen {
			text = truncateRunes(text, sourcePreviewLen) + "..."
		}
		sources[i] = Source{
			Text:       text,
			Score:      math.Round(result.Score*10000) / 10000,
			DocumentID: result.DocumentID,
			ChunkIndex: result.ChunkIndex,
		}
	}
	return sources
}

// truncateRunes cuts s to at most n bytes without splitting a UTF-8 rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
