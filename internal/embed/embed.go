// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package embed provides the text embedding functions used to index code
// catalogs and to query them. Every Embedder maps a text to a fixed-length
// vector; the same text always yields the same vector within one process.
package embed

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/pdiddy/medcode/pkg/types"
)

// Embedder maps texts to vectors of a fixed length.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the length of every vector returned.
	Dimensions() int

	// ModelID identifies the model and its settings. Indexes built with
	// different model IDs are not interchangeable.
	ModelID() string
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder %s returned %d vectors for 1 text", e.ModelID(), len(vecs))
	}
	return vecs[0], nil
}

// Batched calls e.Embed with at most size texts per call.
func Batched(ctx context.Context, e Embedder, texts []string, size int) ([][]float32, error) {
	if size <= 0 {
		size = len(texts)
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+size, len(texts))
		vecs, err := e.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embedder %s returned %d vectors for %d texts", e.ModelID(), len(vecs), end-start)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// Normalize scales v to unit length in place. The zero vector is left as is.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

// Close releases resources held by e if it holds any.
func Close(e Embedder) error {
	if c, ok := e.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// FromConfig builds the embedder selected by cfg.Backend, wrapped in an LRU
// of cfg.CacheSize phrase vectors.
func FromConfig(cfg types.EmbeddingConfig, logger *logrus.Logger) (*Cached, error) {
	var inner Embedder
	var err error
	switch cfg.Backend {
	case types.EmbeddingHashing, "":
		inner, err = NewHashing(cfg.Dimensions)
	case types.EmbeddingONNX:
		inner, err = NewONNX(ONNXConfig{
			LibraryPath:   cfg.LibraryPath,
			ModelPath:     cfg.ModelPath,
			TokenizerPath: cfg.TokenizerPath,
			Dimensions:    cfg.Dimensions,
			MaxSeqLen:     cfg.MaxSeqLen,
		})
	case types.EmbeddingHTTP:
		inner, err = NewHTTP(HTTPConfig{
			Endpoint:   cfg.Endpoint,
			Model:      cfg.Model,
			APIKey:     cfg.APIKey,
			Dimensions: cfg.Dimensions,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown embedding backend %q: use hashing, onnx, or http", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return NewCached(inner, cfg.CacheSize)
}
