package storage

import "errors"

var (
	ErrQdrantUnreachable  = errors.New("qdrant server unreachable")
	ErrCollectionNotReady = errors.New("collection not ensured")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrLengthMismatch     = errors.New("chunks and vectors must have equal length")
)
