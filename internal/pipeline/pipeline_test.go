package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcarthur/docqa/internal/embedding"
	"github.com/jmcarthur/docqa/internal/evaluation"
	"github.com/jmcarthur/docqa/internal/qa"
	"github.com/jmcarthur/docqa/internal/storage"
)

type fakeIndex struct {
	ops           []string
	ensuredDim    int
	deletedDoc    int64
	upsertedDoc   int64
	upsertedTexts []string
	searchResults []storage.RetrievalResult
	stats         storage.DocumentStats
	upsertErr     error
	deleteErr     error
}

func (f *fakeIndex) EnsureCollection(_ context.Context, dimension int) error {
	f.ops = append(f.ops, "ensure")
	f.ensuredDim = dimension
	return nil
}

func (f *fakeIndex) UpsertChunks(_ context.Context, documentID int64, chunks []string, vectors [][]float32) (int, error) {
	f.ops = append(f.ops, "upsert")
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	f.upsertedDoc = documentID
	f.upsertedTexts = chunks
	return len(chunks), nil
}

func (f *fakeIndex) Search(_ context.Context, _ []float32, _ int64, _ int) ([]storage.RetrievalResult, error) {
	f.ops = append(f.ops, "search")
	return f.searchResults, nil
}

func (f *fakeIndex) DeleteByDocument(_ context.Context, documentID int64) error {
	f.ops = append(f.ops, "delete")
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedDoc = documentID
	return nil
}

func (f *fakeIndex) Stats(context.Context, int64) (storage.DocumentStats, error) {
	return f.stats, nil
}

// fakeEmbeddings returns a deterministic vector per text so cosine
// similarity between identical texts is 1.
type fakeEmbeddings struct {
	err   error
	calls int
}

func (f *fakeEmbeddings) vectorFor(text string) []float32 {
	return []float32{float32(len(text)), 1, 2}
}

func (f *fakeEmbeddings) EmbedMany(_ context.Context, texts []string, _ embedding.ModelID, _ bool) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = embedding.Normalize(f.vectorFor(text))
	}
	return vectors, nil
}

func (f *fakeEmbeddings) EmbedOne(ctx context.Context, text string, model embedding.ModelID, normalize bool) ([]float32, error) {
	vectors, err := f.EmbedMany(ctx, []string{text}, model, normalize)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type fakeGenerator struct {
	answer string
	err    error
}

func (f *fakeGenerator) Generate(context.Context, string, int) (string, error) {
	return f.answer, f.err
}

func newTestService(index *fakeIndex, embedder *fakeEmbeddings, generator *fakeGenerator) *Service {
	return NewService(index, embedder, generator, Config{}, nil)
}

const flowingText = `The parties met to discuss the renewal. The meeting covered pricing,
delivery schedules, and support obligations. Both sides agreed to revisit
the open items next quarter. Nothing in the discussion changed the current
terms. A follow-up session was scheduled for early March.`

func TestIngest_EmptyTextIsNoop(t *testing.T) {
	index := &fakeIndex{}
	embedder := &fakeEmbeddings{}
	service := newTestService(index, embedder, &fakeGenerator{})

	count, err := service.Ingest(context.Background(), 1, "   \n\t  ", "")

	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, index.ops, "no index calls for empty input")
	assert.Zero(t, embedder.calls)
}

func TestIngest_DeletesBeforeUpsert(t *testing.T) {
	index := &fakeIndex{}
	service := newTestService(index, &fakeEmbeddings{}, &fakeGenerator{})

	count, err := service.Ingest(context.Background(), 42, flowingText, "")

	require.NoError(t, err)
	assert.Positive(t, count)
	assert.Equal(t, []string{"ensure", "delete", "upsert"}, index.ops)
	assert.Equal(t, int64(42), index.deletedDoc)
	assert.Equal(t, int64(42), index.upsertedDoc)
}

func TestIngest_EnsuresModelDimension(t *testing.T) {
	index := &fakeIndex{}
	service := newTestService(index, &fakeEmbeddings{}, &fakeGenerator{})

	_, err := service.Ingest(context.Background(), 1, flowingText, "")

	require.NoError(t, err)
	assert.Equal(t, 1536, index.ensuredDim)
}

func TestIngest_TypeHintSelectsHierarchicalChunking(t *testing.T) {
	index := &fakeIndex{}
	service := newTestService(index, &fakeEmbeddings{}, &fakeGenerator{})

	text := `1. TERM

The agreement runs for twenty-four months from the effective date and
renews automatically unless either party objects in writing.

2. FEES

Fees are invoiced monthly and payable within thirty days of receipt.`

	_, err := service.Ingest(context.Background(), 1, text, "contract")

	require.NoError(t, err)
	require.NotEmpty(t, index.upsertedTexts)
	assert.True(t, strings.HasPrefix(index.upsertedTexts[0], "["),
		"contract hint must produce section-labeled chunks, got %q", index.upsertedTexts[0])
}

func TestIngest_EmbedFailureLeavesIndexUntouched(t *testing.T) {
	index := &fakeIndex{}
	embedder := &fakeEmbeddings{err: errors.New("rate limited")}
	service := newTestService(index, embedder, &fakeGenerator{})

	count, err := service.Ingest(context.Background(), 1, flowingText, "")

	require.Error(t, err)
	assert.Zero(t, count)
	assert.Empty(t, index.ops, "a failed embed must not touch the index")
}

func TestIngest_UpsertFailureReturnsZero(t *testing.T) {
	index := &fakeIndex{upsertErr: errors.New("qdrant down")}
	service := newTestService(index, &fakeEmbeddings{}, &fakeGenerator{})

	count, err := service.Ingest(context.Background(), 1, flowingText, "")

	require.Error(t, err)
	assert.Zero(t, count)
	assert.Contains(t, err.Error(), "store chunks")
}

func TestAsk_Delegates(t *testing.T) {
	index := &fakeIndex{searchResults: []storage.RetrievalResult{
		{Text: "Payment is due within 30 days.", Score: 0.9, DocumentID: 7, ChunkIndex: 0},
	}}
	generator := &fakeGenerator{answer: "According to Excerpt 1, payment is due within 30 days."}
	service := newTestService(index, &fakeEmbeddings{}, generator)

	answer, err := service.Ask(context.Background(), "When is payment due?", 7, qa.AskOptions{})

	require.NoError(t, err)
	assert.Equal(t, qa.ConfidenceHigh, answer.Confidence)
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, int64(7), answer.Sources[0].DocumentID)
}

func TestEvaluate_ScoresTheTransaction(t *testing.T) {
	index := &fakeIndex{searchResults: []storage.RetrievalResult{
		{Text: "Payment is due within 30 days of the invoice date.", Score: 0.89, DocumentID: 7, ChunkIndex: 0},
		{Text: "Late fees of 1.5% per month apply to overdue balances.", Score: 0.81, DocumentID: 7, ChunkIndex: 1},
	}}
	generator := &fakeGenerator{answer: "According to Excerpt 1, payment is due within 30 days of the invoice date, and late fees of 1.5% per month apply after that."}
	service := newTestService(index, &fakeEmbeddings{}, generator)

	answer, eval, err := service.Evaluate(context.Background(), "What are the payment terms?", 7, qa.AskOptions{}, "")

	require.NoError(t, err)
	require.NotNil(t, answer)
	require.NotNil(t, eval)
	assert.Equal(t, 2, eval.Retrieval.NumChunks)
	assert.Equal(t, 2, eval.Retrieval.HighQualityChunks)
	assert.Equal(t, evaluation.BandExcellent, eval.OverallQuality)
}

func TestEvaluate_ExpectedAnswerUsesEmbeddingSimilarity(t *testing.T) {
	index := &fakeIndex{searchResults: []storage.RetrievalResult{
		{Text: "Payment is due within 30 days.", Score: 0.9, DocumentID: 7, ChunkIndex: 0},
	}}
	generator := &fakeGenerator{answer: "Payment is due within thirty days."}
	service := newTestService(index, &fakeEmbeddings{}, generator)

	// Identical expected text embeds to the same vector, cosine 1.
	_, eval, err := service.Evaluate(context.Background(), "q", 7, qa.AskOptions{}, "Payment is due within thirty days.")

	require.NoError(t, err)
	require.True(t, eval.Answer.HasExpected)
	assert.InDelta(t, 1.0, eval.Answer.SimilarityToExpected, 1e-6)
	assert.True(t, eval.Answer.MatchesExpected)
}

func TestSimilarity(t *testing.T) {
	service := newTestService(&fakeIndex{}, &fakeEmbeddings{}, &fakeGenerator{})

	same, err := service.Similarity(context.Background(), "alpha", "alpha")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, same, 1e-6)

	different, err := service.Similarity(context.Background(), "a", "a much longer and quite different text")
	require.NoError(t, err)
	assert.Less(t, different, 1.0)
}

func TestPurgeAndStats(t *testing.T) {
	index := &fakeIndex{stats: storage.DocumentStats{ChunkCount: 5, AvgChunkSize: 320}}
	service := newTestService(index, &fakeEmbeddings{}, &fakeGenerator{})
	ctx := context.Background()

	require.NoError(t, service.Purge(ctx, 9))
	assert.Equal(t, int64(9), index.deletedDoc)

	stats, err := service.Stats(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.ChunkCount)
	assert.Equal(t, 320, stats.AvgChunkSize)
}
