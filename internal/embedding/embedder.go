// Package embedding maps text to fixed-length vectors using OpenAI models.
//
// A Provider owns one lazily-created backend per model and is safe for
// concurrent use; batch ingestion and single-query embedding share the same
// instance. Vectors are immutable once produced: changed text means a new
// vector, never an update.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
)

// DefaultBatchSize balances requests-per-minute vs tokens-per-minute rate
// limits. OpenAI accepts up to 2048 texts per request, but smaller batches
// reduce TPM pressure.
const DefaultBatchSize = 500

// backend performs model inference for a single ModelID.
type backend interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Provider is the process-owned embedding pool. Backends are expensive to
// treat casually (connection state, rate limiting), so one is created per
// distinct model on first use and reused for the process lifetime. Callers
// never construct backends directly.
type Provider struct {
	mu         sync.RWMutex
	backends   map[ModelID]backend
	newBackend func(ModelID) (backend, error)
	batchSize  int
	cache      *Cache
}

// Option configures a Provider.
type Option func(*Provider)

// WithBatchSize overrides the per-request batch size.
func WithBatchSize(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithCache attaches a content-addressed vector cache. Cache hits skip
// model inference entirely.
func WithCache(c *Cache) Option {
	return func(p *Provider) {
		p.cache = c
	}
}

// NewProvider creates a Provider backed by the given OpenAI client.
func NewProvider(client *Client, opts ...Option) *Provider {
	p := &Provider{
		backends:  make(map[ModelID]backend),
		batchSize: DefaultBatchSize,
		newBackend: func(model ModelID) (backend, error) {
			return &openaiBackend{client: client.Client(), model: string(model)}, nil
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// newProviderWithFactory is the test seam: it lets tests substitute a fake
// inference backend while exercising the real pool, batching and cache.
func newProviderWithFactory(factory func(ModelID) (backend, error), opts ...Option) *Provider {
	p := &Provider{
		backends:   make(map[ModelID]backend),
		batchSize:  DefaultBatchSize,
		newBackend: factory,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// EmbedMany embeds texts in order, one vector per input. An empty input
// returns an empty slice without touching the model. When normalize is set,
// each vector is scaled to unit length so cosine similarity downstream
// reduces to a dot product; the flag is part of the cache identity.
func (p *Provider) EmbedMany(ctx context.Context, texts []string, model ModelID, normalize bool) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if _, err := Dimension(model); err != nil {
		return nil, err
	}

	key := cacheKey(model, normalize, texts)
	if p.cache != nil {
		if vectors, ok := p.cache.Get(key); ok {
			return vectors, nil
		}
	}

	b, err := p.backendFor(model)
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += p.batchSize {
		end := min(i+p.batchSize, len(texts))
		batch, err := b.Embed(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		if len(batch) != end-i {
			return nil, fmt.Errorf("%w: got %d for %d texts", ErrCountMismatch, len(batch), end-i)
		}
		vectors = append(vectors, batch...)
	}

	if normalize {
		for i := range vectors {
			vectors[i] = Normalize(vectors[i])
		}
	}

	if p.cache != nil {
		p.cache.Put(key, vectors)
	}

	return vectors, nil
}

// EmbedOne embeds a single text (the query path).
func (p *Provider) EmbedOne(ctx context.Context, text string, model ModelID, normalize bool) ([]float32, error) {
	vectors, err := p.EmbedMany(ctx, []string{text}, model, normalize)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// backendFor returns the backend for a model, creating it on first use.
func (p *Provider) backendFor(model ModelID) (backend, error) {
	p.mu.RLock()
	b, ok := p.backends[model]
	p.mu.RUnlock()
	if ok {
		return b, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok := p.backends[model]; ok {
		return b, nil
	}
	b, err := p.newBackend(model)
	if err != nil {
		return nil, err
	}
	p.backends[model] = b
	return b, nil
}

// openaiBackend calls the OpenAI embeddings API with exponential backoff on
// rate limit errors. Other errors are permanent and fail immediately.
type openaiBackend struct {
	client *openai.Client
	model  string
}

func (o *openaiBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32

	operation := func() error {
		resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model: o.model,
		})
		if err != nil {
			if isRateLimitError(err) {
				return err // retry with backoff
			}
			return backoff.Permanent(err)
		}

		vectors = make([][]float32, len(resp.Data))
		for i, data := range resp.Data {
			vectors[i] = toFloat32(data.Embedding)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return vectors, nil
}

// isRateLimitError reports whether the error is an HTTP 429.
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 narrows the API's float64 vectors for storage.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
