// Package pipeline is the exposed surface of the system: ingest a document
// into the vector index, ask questions about it, evaluate the answers, and
// manage the indexed data. It wires the chunker, the embedding provider,
// the Qdrant index, and the answering engine behind one Service.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmcarthur/docqa/internal/chunker"
	"github.com/jmcarthur/docqa/internal/document"
	"github.com/jmcarthur/docqa/internal/embedding"
	"github.com/jmcarthur/docqa/internal/evaluation"
	"github.com/jmcarthur/docqa/internal/qa"
	"github.com/jmcarthur/docqa/internal/storage"
)

// Index is the vector store surface the pipeline depends on, satisfied by
// storage.QdrantIndex.
type Index interface {
	EnsureCollection(ctx context.Context, dimension int) error
	UpsertChunks(ctx context.Context, documentID int64, chunks []string, vectors [][]float32) (int, error)
	Search(ctx context.Context, vector []float32, documentID int64, topK int) ([]storage.RetrievalResult, error)
	DeleteByDocument(ctx context.Context, documentID int64) error
	Stats(ctx context.Context, documentID int64) (storage.DocumentStats, error)
}

// Embeddings is the embedding surface the pipeline depends on, satisfied
// by embedding.Provider.
type Embeddings interface {
	EmbedMany(ctx context.Context, texts []string, model embedding.ModelID, normalize bool) ([][]float32, error)
	EmbedOne(ctx context.Context, text string, model embedding.ModelID, normalize bool) ([]float32, error)
}

// Config selects the embedding model and chunking parameters for a
// Service. Zero values pick the defaults.
type Config struct {
	Model        embedding.ModelID
	ChunkOptions chunker.Options
}

// Service runs the document QA pipeline. One Service serves one collection
// and one embedding model; all stored vectors share that model's space.
type Service struct {
	index     Index
	embedder  Embeddings
	engine    *qa.Engine
	evaluator *evaluation.Evaluator
	model     embedding.ModelID
	chunkOpts chunker.Options
	logger    *slog.Logger
}

// NewService wires the pipeline. The generator handles answer synthesis
// (see qa.NewChatGenerator); a nil logger falls back to slog.Default.
func NewService(index Index, embedder Embeddings, generator qa.Generator, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = embedding.DefaultModel
	}

	s := &Service{
		index:     index,
		embedder:  embedder,
		model:     cfg.Model,
		chunkOpts: cfg.ChunkOptions,
		logger:    logger,
	}
	s.engine = qa.NewEngine(&queryEmbedder{embedder: embedder, model: cfg.Model}, index, generator, logger)

	s.evaluator = evaluation.New()
	s.evaluator.Similarity = s.Similarity
	return s
}

// queryEmbedder binds the provider to the service's model so queries land
// in the same vector space as the stored chunks.
type queryEmbedder struct {
	embedder Embeddings
	model    embedding.ModelID
}

func (q *queryEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return q.embedder.EmbedOne(ctx, text, q.model, true)
}

// Ingest indexes one document: detect its type (an explicit hint wins),
// chunk, embed, and store. Existing points for the document are deleted
// first, so re-ingesting replaces rather than accumulates. Returns the
// number of chunks stored; empty or unchunkable text is (0, nil).
func (s *Service) Ingest(ctx context.Context, documentID int64, text, typeHint string) (int, error) {
	docType := typeHint
	if docType == "" {
		docType = document.DetectType(text)
	}

	chunks := chunker.Chunk(text, docType, s.chunkOpts)
	if len(chunks) == 0 {
		s.logger.Warn("Nothing to index", "document_id", documentID)
		return 0, nil
	}

	vectors, err := s.embedder.EmbedMany(ctx, chunks, s.model, true)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}

	dimension, err := embedding.Dimension(s.model)
	if err != nil {
		return 0, err
	}
	if err := s.index.EnsureCollection(ctx, dimension); err != nil {
		return 0, fmt.Errorf("ensure collection: %w", err)
	}

	if err := s.index.DeleteByDocument(ctx, documentID); err != nil {
		return 0, fmt.Errorf("clear previous chunks: %w", err)
	}

	stored, err := s.index.UpsertChunks(ctx, documentID, chunks, vectors)
	if err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}

	s.logger.Info("Document indexed",
		"document_id", documentID,
		"type", docType,
		"chunks", stored,
	)
	return stored, nil
}

// Ask answers a question about one document.
func (s *Service) Ask(ctx context.Context, question string, documentID int64, opts qa.AskOptions) (*qa.Answer, error) {
	return s.engine.Ask(ctx, question, documentID, opts)
}

// Summarize produces a short summary of one document.
func (s *Service) Summarize(ctx context.Context, documentID int64, maxChunks int) (string, error) {
	return s.engine.Summarize(ctx, documentID, maxChunks)
}

// Evaluate answers the question and scores the whole transaction. The
// expected answer is optional.
func (s *Service) Evaluate(ctx context.Context, question string, documentID int64, opts qa.AskOptions, expected string) (*qa.Answer, *evaluation.Evaluation, error) {
	answer, err := s.Ask(ctx, question, documentID, opts)
	if err != nil {
		return nil, nil, err
	}

	eval, err := s.evaluator.Evaluate(ctx, question, answer.Text, answer.Retrieved, answer.Confidence, expected)
	if err != nil {
		return answer, nil, err
	}
	return answer, eval, nil
}

// Similarity embeds both texts and returns their cosine similarity. Used
// by the evaluator for expected-answer comparison.
func (s *Service) Similarity(ctx context.Context, a, b string) (float64, error) {
	vectors, err := s.embedder.EmbedMany(ctx, []string{a, b}, s.model, true)
	if err != nil {
		return 0, err
	}
	return embedding.CosineSimilarity(vectors[0], vectors[1]), nil
}

// Purge removes every stored chunk of one document.
func (s *Service) Purge(ctx context.Context, documentID int64) error {
	if err := s.index.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("purge document: %w", err)
	}
	s.logger.Info("Document purged", "document_id", documentID)
	return nil
}

// Stats reports chunk count and average chunk size for one document.
func (s *Service) Stats(ctx context.Context, documentID int64) (storage.DocumentStats, error) {
	return s.index.Stats(ctx, documentID)
}
