package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Common errors
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
)

// Embedder turns text into fixed-dimension vectors. Implementations must be
// safe for concurrent use; the sync engine embeds files from multiple
// workers.
type Embedder interface {
	// Embed generates a single embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one request
	// where the provider supports it. The result has one vector per input,
	// in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the vector dimension this provider produces.
	Dimension() int

	// Name identifies the provider and model, e.g. "openai/text-embedding-3-small".
	Name() string

	// Close releases any resources held by the embedder.
	Close() error
}

// ContentHash computes the hex SHA-256 of text, used as the cache key.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Cached wraps an Embedder with an in-memory LRU cache keyed by content
// hash. Identical chunk text across cycles (or across overlapping windows)
// never hits the provider twice while the entry stays resident.
type Cached struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// NewCached wraps inner with an LRU cache of at most size entries.
func NewCached(inner Embedder, size int) *Cached {
	if size <= 0 {
		size = 10000
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		// Only possible with non-positive size, which is clamped above.
		cache, _ = lru.New[string, []float32](10000)
	}
	return &Cached{inner: inner, cache: cache}
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}

	results := make([][]float32, len(texts))
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		if vec, ok := c.cache.Get(ContentHash(text)); ok {
			results[i] = cloneVector(vec)
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) > 0 {
		vecs, err := c.inner.EmbedBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(missTexts) {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrProviderFailed, len(vecs), len(missTexts))
		}
		for j, vec := range vecs {
			c.cache.Add(ContentHash(missTexts[j]), cloneVector(vec))
			results[missIdx[j]] = vec
		}
	}

	return results, nil
}

func (c *Cached) Dimension() int { return c.inner.Dimension() }
func (c *Cached) Name() string   { return c.inner.Name() }
func (c *Cached) Close() error   { return c.inner.Close() }

// CacheLen returns the number of resident cache entries.
func (c *Cached) CacheLen() int { return c.cache.Len() }

// cloneVector copies a vector so cache entries are never aliased by callers.
func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

func validateBatch(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}
	for i, text := range texts {
		if text == "" {
			return fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
	}
	return nil
}
