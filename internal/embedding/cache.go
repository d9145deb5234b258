package embedding

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

var bucketVectors = []byte("vectors")

// Cache is a content-addressed vector store backed by bbolt. The key covers
// the model, the normalization policy and the exact ordered text list, so a
// hit is always byte-for-byte valid for the request that produced it.
// Entries are immutable and never invalidated: same key, same vectors.
type Cache struct {
	db *bbolt.DB
}

// OpenCache opens (or creates) the cache file at path.
func OpenCache(path string) (*Cache, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketVectors)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache bucket: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached vectors for key. Read problems degrade to a miss;
// the caller will simply re-embed.
func (c *Cache) Get(key []byte) ([][]float32, bool) {
	var raw []byte
	err := c.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketVectors).Get(key); v != nil {
			raw = make([]byte, len(v))
			copy(raw, v)
		}
		return nil
	})
	if err != nil || raw == nil {
		return nil, false
	}

	var vectors [][]float32
	if err := json.Unmarshal(raw, &vectors); err != nil {
		return nil, false
	}
	return vectors, true
}

// Put stores vectors under key. Write failures are swallowed: the cache is
// an optimization, never a correctness dependency.
func (c *Cache) Put(key []byte, vectors [][]float32) {
	raw, err := json.Marshal(vectors)
	if err != nil {
		return
	}
	_ = c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketVectors).Put(key, raw)
	})
}

// cacheKey hashes (model, normalize, ordered texts) into a fixed key.
// Lengths are mixed in so adjacent texts cannot collide by concatenation.
func cacheKey(model ModelID, normalize bool, texts []string) []byte {
	h := sha256.New()
	h.Write([]byte(model))
	if normalize {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	var lenBuf [8]byte
	for _, t := range texts {
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(t)))
		h.Write(lenBuf[:])
		h.Write([]byte(t))
	}
	return h.Sum(nil)
}
