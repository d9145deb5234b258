package storage

// DefaultCollection is the Qdrant collection holding all document chunks.
const DefaultCollection = "legal_documents"

// RetrievalResult is one search hit: a chunk of document text with its
// cosine similarity to the query vector. Computed per query, never stored.
type RetrievalResult struct {
	Text       string
	Score      float64
	DocumentID int64
	ChunkIndex int
}

// DocumentStats summarizes the indexed chunks of one document.
type DocumentStats struct {
	ChunkCount   int
	AvgChunkSize int
}
