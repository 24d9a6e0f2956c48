// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/medcode/internal/embed"
	"github.com/pdiddy/medcode/pkg/types"
)

// tableEmbedder returns fixed vectors for known texts and a zero vector
// otherwise.
type tableEmbedder struct {
	dims    int
	vectors map[string][]float32
	calls   int32
	err     error
}

func (e *tableEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&e.calls, 1)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := e.vectors[t]; ok {
			out[i] = v
			continue
		}
		out[i] = make([]float32, e.dims)
	}
	return out, nil
}

func (e *tableEmbedder) Dimensions() int { return e.dims }
func (e *tableEmbedder) ModelID() string { return "table" }

func icdRecords() []types.CatalogRecord {
	return []types.CatalogRecord{
		{Code: "I10", Description: "Essential (primary) hypertension"},
		{Code: "E11.9", Description: "Type 2 diabetes mellitus without complications"},
		{Code: "J45.909", Description: "Unspecified asthma, uncomplicated"},
	}
}

func TestBuild_Validation(t *testing.T) {
	h, _ := embed.NewHashing(16)
	tests := []struct {
		name    string
		records []types.CatalogRecord
		reason  string
		record  int
	}{
		{"missing code", []types.CatalogRecord{{Code: " ", Description: "x"}}, "missing code", 0},
		{"missing description", []types.CatalogRecord{{Code: "I10"}, {Code: "I11", Description: ""}}, "missing description", 0},
		{"duplicate", []types.CatalogRecord{{Code: "I10", Description: "a"}, {Code: "I10", Description: "b"}}, "duplicate code", 1},
		{"wrong category", []types.CatalogRecord{{Code: "99213", Description: "visit", Category: types.CategoryCPT}}, "does not match", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(context.Background(), types.CategoryICD10, "2024", tt.records, h)
			var be *BuildError
			require.True(t, errors.As(err, &be), "want BuildError, got %v", err)
			assert.Contains(t, be.Reason, tt.reason)
			assert.Equal(t, tt.record, be.Record)
			assert.Equal(t, types.CategoryICD10, be.Category)
		})
	}
}

func TestBuild_DeterministicOrderAndEmbeddings(t *testing.T) {
	h, _ := embed.NewHashing(32)
	a, err := Build(context.Background(), types.CategoryICD10, "2024", icdRecords(), h)
	require.NoError(t, err)
	b, err := Build(context.Background(), types.CategoryICD10, "2024", icdRecords(), h)
	require.NoError(t, err)

	assert.Equal(t, a.Entries(), b.Entries())
	assert.Equal(t, 3, a.Len())
	assert.Equal(t, "I10", a.Entries()[0].Code)
	assert.Equal(t, "2024", a.Entries()[0].Version)
	assert.Equal(t, types.CategoryICD10, a.Entries()[2].Category)
	assert.Equal(t, h.ModelID(), a.ModelID())
}

func TestBuild_EmbedderError(t *testing.T) {
	e := &tableEmbedder{dims: 2, err: errors.New("boom")}
	_, err := Build(context.Background(), types.CategoryICD10, "2024", icdRecords(), e)
	assert.ErrorContains(t, err, "boom")
}

func TestNearest(t *testing.T) {
	e := &tableEmbedder{dims: 2, vectors: map[string][]float32{
		"A1 alpha": {1, 0},
		"B1 beta":  {0.6, 0.8},
		"C1 gamma": {1, 0},
		"D1 delta": {0, 1},
	}}
	records := []types.CatalogRecord{
		{Code: "A1", Description: "alpha"},
		{Code: "B1", Description: "beta"},
		{Code: "C1", Description: "gamma"},
		{Code: "D1", Description: "delta"},
	}
	idx, err := Build(context.Background(), types.CategoryICD10, "v", records, e)
	require.NoError(t, err)

	t.Run("ties keep insertion order", func(t *testing.T) {
		got, err := idx.Nearest([]float32{2, 0}, 5, 0.5)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "A1", got[0].Entry.Code)
		assert.Equal(t, "C1", got[1].Entry.Code)
		assert.Equal(t, "B1", got[2].Entry.Code)
		assert.InDelta(t, 1.0, got[0].Similarity, 1e-9)
		assert.InDelta(t, 0.6, got[2].Similarity, 1e-6)
	})

	t.Run("top k applied before threshold", func(t *testing.T) {
		got, err := idx.Nearest([]float32{1, 0}, 1, 0.0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "A1", got[0].Entry.Code)
	})

	t.Run("nothing clears threshold", func(t *testing.T) {
		got, err := idx.Nearest([]float32{-1, 0}, 5, 0.5)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := idx.Nearest([]float32{1, 0, 0}, 5, 0.5)
		assert.Error(t, err)
	})
}

func TestQuery_EmptyIndex(t *testing.T) {
	h, _ := embed.NewHashing(8)
	idx, err := Build(context.Background(), types.CategoryCPT, "2024", nil, h)
	require.NoError(t, err)

	_, err = idx.Query(context.Background(), h, "colonoscopy", 5, 0.5)
	assert.ErrorIs(t, err, ErrEmptyIndex)
	_, err = idx.Nearest(make([]float32, 8), 5, 0.5)
	assert.ErrorIs(t, err, ErrEmptyIndex)
}

func TestQuery_ConcurrentReaders(t *testing.T) {
	h, _ := embed.NewHashing(64)
	idx, err := Build(context.Background(), types.CategoryICD10, "2024", icdRecords(), h)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := idx.Query(context.Background(), h, "I10 Essential (primary) hypertension", 5, 0.5)
			assert.NoError(t, err)
			if assert.NotEmpty(t, got) {
				assert.Equal(t, "I10", got[0].Entry.Code)
			}
		}()
	}
	wg.Wait()
}

func TestLookup(t *testing.T) {
	h, _ := embed.NewHashing(8)
	idx, err := Build(context.Background(), types.CategoryICD10, "2024", icdRecords(), h)
	require.NoError(t, err)

	e, ok := idx.Lookup("E11.9")
	require.True(t, ok)
	assert.Equal(t, "Type 2 diabetes mellitus without complications", e.Description)

	_, ok = idx.Lookup(" i10 ")
	assert.True(t, ok)

	_, ok = idx.Lookup("Z99.9")
	assert.False(t, ok)
}

func TestFromEntries(t *testing.T) {
	h, _ := embed.NewHashing(8)
	built, err := Build(context.Background(), types.CategoryICD10, "2024", icdRecords(), h)
	require.NoError(t, err)

	rebuilt, err := FromEntries(types.CategoryICD10, "2024", h.ModelID(), 8, built.Entries())
	require.NoError(t, err)
	assert.Equal(t, built.Entries(), rebuilt.Entries())

	entries := built.Entries()
	entries[1].Embedding = []float32{1}
	_, err = FromEntries(types.CategoryICD10, "2024", h.ModelID(), 8, entries)
	var be *BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 1, be.Record)
}
