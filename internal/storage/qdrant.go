// Package storage provides the similarity-searchable chunk index on Qdrant.
//
// One collection holds one embedding space: EnsureCollection records the
// vector dimension and every later upsert or search is validated against it,
// so vectors from a different model can never silently corrupt similarity
// comparisons.
package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// upsertBatchSize bounds the points per upsert request.
const upsertBatchSize = 100

// QdrantIndex wraps the Qdrant gRPC client with connection management,
// dimension enforcement and document-scoped operations. Safe for concurrent
// use once constructed.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string

	mu        sync.RWMutex
	dimension int // 0 until EnsureCollection succeeds
}

// NewQdrantIndex connects to Qdrant and verifies health with exponential
// backoff, failing fast when the server is unreachable. An empty collection
// name selects DefaultCollection.
func NewQdrantIndex(host string, port int, collection string) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	if collection == "" {
		collection = DefaultCollection
	}

	index := &QdrantIndex{
		client:     client,
		collection: collection,
	}

	if err := index.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	return index, nil
}

// healthCheckWithRetry retries startup health checks for up to 30s.
func (s *QdrantIndex) healthCheckWithRetry(ctx context.Context) error {
	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, remoteBackoff(ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantIndex) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// EnsureCollection makes the collection exist with the given vector
// dimension and cosine distance, plus an integer payload index on
// document_id (without it, filtered search degrades to a full scan).
// Idempotent: if the collection already exists with the same dimension this
// is a no-op; an existing collection with a different dimension is a
// configuration error, not something to silently adopt.
func (s *QdrantIndex) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid vector dimension %d", dimension)
	}

	exists, err := s.collectionExists(ctx)
	if err != nil {
		return err
	}

	if exists {
		existing, err := s.collectionDimension(ctx)
		if err != nil {
			return err
		}
		if existing != 0 && existing != dimension {
			return fmt.Errorf("%w: collection %q has dimension %d, requested %d",
				ErrDimensionMismatch, s.collection, existing, dimension)
		}
		s.setDimension(dimension)
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.collection,
		FieldName:      "document_id",
		FieldType:      qdrant.FieldType_FieldTypeInteger.Enum(),
	})
	if err != nil {
		return fmt.Errorf("failed to create document_id index: %w", err)
	}

	s.setDimension(dimension)
	return nil
}

func (s *QdrantIndex) collectionExists(ctx context.Context) (bool, error) {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list collections: %w", err)
	}
	for _, name := range collections {
		if name == s.collection {
			return true, nil
		}
	}
	return false, nil
}

// collectionDimension reads the configured vector size of the existing
// collection. Returns 0 when the config shape is not recognizable.
func (s *QdrantIndex) collectionDimension(ctx context.Context) (int, error) {
	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return 0, fmt.Errorf("failed to get collection: %w", err)
	}
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return 0, nil
	}
	return int(params.GetSize()), nil
}

func (s *QdrantIndex) setDimension(dim int) {
	s.mu.Lock()
	s.dimension = dim
	s.mu.Unlock()
}

// Dimension returns the ensured collection dimension, 0 if not yet ensured.
func (s *QdrantIndex) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

// loadDimension returns the collection dimension, reading it from the
// server when this process has not ensured the collection itself (a fresh
// process answering questions over an already-populated collection).
func (s *QdrantIndex) loadDimension(ctx context.Context) (int, error) {
	if dim := s.Dimension(); dim != 0 {
		return dim, nil
	}

	exists, err := s.collectionExists(ctx)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrCollectionNotReady
	}

	dim, err := s.collectionDimension(ctx)
	if err != nil {
		return 0, err
	}
	if dim == 0 {
		return 0, ErrCollectionNotReady
	}
	s.setDimension(dim)
	return dim, nil
}

func (s *QdrantIndex) checkVector(ctx context.Context, vector []float32) error {
	dim, err := s.loadDimension(ctx)
	if err != nil {
		return err
	}
	if len(vector) != dim {
		return fmt.Errorf("%w: vector has %d dimensions, collection expects %d",
			ErrDimensionMismatch, len(vector), dim)
	}
	return nil
}

// UpsertChunks stores one point per (chunk, vector) pair for the document.
// Every point gets a fresh UUID; existing points for the document are left
// alone (the ingestion pipeline deletes them first on re-ingest). Returns
// the number of points written.
func (s *QdrantIndex) UpsertChunks(ctx context.Context, documentID int64, chunks []string, vectors [][]float32) (int, error) {
	if len(chunks) != len(vectors) {
		return 0, fmt.Errorf("%w: %d chunks, %d vectors", ErrLengthMismatch, len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	for i, vector := range vectors {
		if err := s.checkVector(ctx, vector); err != nil {
			return 0, fmt.Errorf("chunk %d: %w", i, err)
		}
	}

	for start := 0; start < len(chunks); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(chunks))

		points := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(uuid.New().String()),
				Vectors: qdrant.NewVectors(vectors[i]...),
				Payload: qdrant.NewValueMap(map[string]any{
					"document_id": documentID,
					"chunk_index": int64(i),
					"text":        chunks[i],
					"text_length": int64(len(chunks[i])),
				}),
			})
		}

		if err := s.upsertWithRetry(ctx, points); err != nil {
			return 0, fmt.Errorf("failed to upsert batch %d-%d: %w", start, end, err)
		}
	}

	return len(chunks), nil
}

// upsertWithRetry performs one upsert request with exponential backoff.
func (s *QdrantIndex) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	return backoff.Retry(func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points,
		})
		return err
	}, remoteBackoff(ctx))
}

// Search returns the topK nearest chunks by cosine similarity, descending.
// A positive documentID restricts results to that document, enforced
// server-side through the payload index (post-filtering would under-fill
// topK). Dimension mismatches and a non-positive topK are hard errors,
// never silently adjusted.
func (s *QdrantIndex) Search(ctx context.Context, vector []float32, documentID int64, topK int) ([]RetrievalResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("invalid topK %d: must be positive", topK)
	}
	if err := s.checkVector(ctx, vector); err != nil {
		return nil, err
	}

	var filter *qdrant.Filter
	if documentID > 0 {
		filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatchInt("document_id", documentID),
			},
		}
	}

	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	// Qdrant returns hits in descending score order; preserve it.
	results := make([]RetrievalResult, 0, len(hits))
	for _, hit := range hits {
		payload := hit.Payload
		results = append(results, RetrievalResult{
			Text:       payload["text"].GetStringValue(),
			Score:      float64(hit.Score),
			DocumentID: payload["document_id"].GetIntegerValue(),
			ChunkIndex: int(payload["chunk_index"].GetIntegerValue()),
		})
	}

	return results, nil
}

// DeleteByDocument removes every point belonging to the document. Deleting
// a document with no points is not an error.
func (s *QdrantIndex) DeleteByDocument(ctx context.Context, documentID int64) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatchInt("document_id", documentID),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to delete chunks for document %d: %w", documentID, err)
	}
	return nil
}

// Stats reports the chunk count and mean chunk size for a document,
// scrolling the text_length payload field rather than loading chunk text.
func (s *QdrantIndex) Stats(ctx context.Context, documentID int64) (DocumentStats, error) {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatchInt("document_id", documentID),
		},
	}

	var (
		stats     DocumentStats
		totalSize int64
		offset    *qdrant.PointId
	)
	batchSize := uint32(256)

	for {
		points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Filter:         filter,
			Limit:          qdrant.PtrOf(batchSize),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayloadInclude("text_length"),
		})
		if err != nil {
			return DocumentStats{}, fmt.Errorf("failed to scroll document %d: %w", documentID, err)
		}

		for _, point := range points {
			stats.ChunkCount++
			totalSize += point.Payload["text_length"].GetIntegerValue()
		}

		if uint32(len(points)) < batchSize {
			break
		}
		offset = points[len(points)-1].Id
	}

	if stats.ChunkCount > 0 {
		stats.AvgChunkSize = int(totalSize / int64(stats.ChunkCount))
	}
	return stats, nil
}

// ClearCollection drops and recreates the collection with the currently
// ensured dimension. Used by tests and full re-index runs.
func (s *QdrantIndex) ClearCollection(ctx context.Context) error {
	dim, err := s.loadDimension(ctx)
	if err != nil {
		return err
	}
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	s.setDimension(0)
	return s.EnsureCollection(ctx, dim)
}

// Close closes the client connection.
func (s *QdrantIndex) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// remoteBackoff is the retry policy for remote Qdrant calls: 500ms initial,
// 10s max interval, 30s total.
func remoteBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return backoff.WithContext(b, ctx)
}
