package embedding

import "fmt"

// ModelID identifies an embedding model. The vector dimension is a fixed
// property of the model: vectors from different models live in incomparable
// spaces and must never share a collection.
type ModelID string

const (
	ModelTextEmbedding3Small ModelID = "text-embedding-3-small"
	ModelTextEmbedding3Large ModelID = "text-embedding-3-large"
	ModelTextEmbeddingAda002 ModelID = "text-embedding-ada-002"
)

// DefaultModel balances quality and cost for document QA.
const DefaultModel = ModelTextEmbedding3Small

var modelDimensions = map[ModelID]int{
	ModelTextEmbedding3Small: 1536,
	ModelTextEmbedding3Large: 3072,
	ModelTextEmbeddingAda002: 1536,
}

// Dimension returns the vector size produced by the given model.
func Dimension(model ModelID) (int, error) {
	dim, ok := modelDimensions[model]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
	return dim, nil
}
