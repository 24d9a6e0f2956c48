// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cached memoises embeddings of recently seen texts. It is safe for
// concurrent use. Returned vectors are copies and may be modified.
type Cached struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// NewCached wraps inner with an LRU holding up to size vectors.
func NewCached(inner Embedder, size int) (*Cached, error) {
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("creating embedding cache: %w", err)
	}
	return &Cached{inner: inner, cache: c}, nil
}

// Embed returns cached vectors where available and embeds the rest in one
// call to the wrapped embedder.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, t := range texts {
		if v, ok := c.cache.Get(t); ok {
			out[i] = clone(v)
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("embedder %s returned %d vectors for %d texts", c.inner.ModelID(), len(vecs), len(missing))
	}
	for j, v := range vecs {
		c.cache.Add(missing[j], clone(v))
		out[missingIdx[j]] = v
	}
	return out, nil
}

func (c *Cached) Dimensions() int { return c.inner.Dimensions() }

func (c *Cached) ModelID() string { return c.inner.ModelID() }

// Uncached returns the wrapped embedder, for bulk work such as catalog
// builds that would only churn the cache.
func (c *Cached) Uncached() Embedder { return c.inner }

// Len reports the number of cached vectors.
func (c *Cached) Len() int { return c.cache.Len() }

// Close closes the wrapped embedder.
func (c *Cached) Close() error {
	c.cache.Purge()
	return Close(c.inner)
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
