// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/pdiddy/medcode/internal/textnorm"
)

const (
	wordWeight    = 1.0
	trigramWeight = 0.5
)

// Hashing is a deterministic bag-of-features embedder. Words and character
// trigrams of the case-folded text are hashed into a fixed number of signed
// buckets and the result is L2-normalised. It needs no model files, so it
// serves offline runs and tests.
type Hashing struct {
	dims int
}

// NewHashing returns a Hashing embedder producing dims-length vectors.
func NewHashing(dims int) (*Hashing, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("hashing embedder: dimensions must be positive, got %d", dims)
	}
	return &Hashing{dims: dims}, nil
}

func (h *Hashing) Dimensions() int { return h.dims }

func (h *Hashing) ModelID() string { return fmt.Sprintf("hashing-fnv1a-%d", h.dims) }

// Embed never fails except on a cancelled context.
func (h *Hashing) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *Hashing) vector(text string) []float32 {
	v := make([]float32, h.dims)
	for _, word := range words(textnorm.Key(text)) {
		h.add(v, "w:"+word, wordWeight)
		padded := []rune("^" + word + "$")
		for i := 0; i+3 <= len(padded); i++ {
			h.add(v, "t:"+string(padded[i:i+3]), trigramWeight)
		}
	}
	Normalize(v)
	return v
}

func (h *Hashing) add(v []float32, feature string, weight float32) {
	f := fnv.New64a()
	f.Write([]byte(feature))
	sum := f.Sum64()
	idx := int(sum % uint64(h.dims))
	if sum>>63 == 1 {
		weight = -weight
	}
	v[idx] += weight
}

func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
