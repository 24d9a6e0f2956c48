// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package catalog builds and queries the per-category code catalog indexes
// and caches built indexes on disk.
//
// An Index is immutable once built. Queries read only precomputed data, so
// any number of goroutines may query one Index without locking.
package catalog

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/pdiddy/medcode/internal/embed"
	"github.com/pdiddy/medcode/pkg/types"
)

// DefaultBatchSize is the number of entries embedded per embedder call.
const DefaultBatchSize = 64

// Neighbor is one query hit.
type Neighbor struct {
	Entry      types.CatalogEntry
	Similarity float64
}

// Index is an ordered, embedded collection of catalog entries for one
// category and version.
type Index struct {
	category types.Category
	version  string
	modelID  string
	dims     int

	entries []types.CatalogEntry
	norms   []float64
	byCode  map[string]int
}

// Build validates records, embeds "<code> <description>" for each, and
// returns the index. Entry order follows record order.
func Build(ctx context.Context, category types.Category, version string, records []types.CatalogRecord, embedder embed.Embedder) (*Index, error) {
	return buildIndex(ctx, category, version, records, embedder, DefaultBatchSize)
}

func buildIndex(ctx context.Context, category types.Category, version string, records []types.CatalogRecord, embedder embed.Embedder, batchSize int) (*Index, error) {
	entries, err := validate(category, version, records)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.SearchText()
	}
	vecs, err := embed.Batched(ctx, embedder, texts, batchSize)
	if err != nil {
		return nil, fmt.Errorf("embedding %s catalog: %w", category, err)
	}
	for i := range entries {
		if len(vecs[i]) != embedder.Dimensions() {
			return nil, fmt.Errorf("embedding %s catalog: entry %s has %d dimensions, want %d",
				category, entries[i].Code, len(vecs[i]), embedder.Dimensions())
		}
		entries[i].Embedding = vecs[i]
	}

	return newIndex(category, version, embedder.ModelID(), embedder.Dimensions(), entries), nil
}

// FromEntries rebuilds an index from previously embedded entries, applying
// the same validation as Build plus a dimension check.
func FromEntries(category types.Category, version, modelID string, dims int, entries []types.CatalogEntry) (*Index, error) {
	records := make([]types.CatalogRecord, len(entries))
	for i, e := range entries {
		records[i] = types.CatalogRecord{Code: e.Code, Description: e.Description, Category: e.Category}
	}
	validated, err := validate(category, version, records)
	if err != nil {
		return nil, err
	}
	for i, e := range entries {
		if len(e.Embedding) != dims {
			return nil, &BuildError{Category: category, Version: version, Record: i, Code: e.Code,
				Reason: fmt.Sprintf("embedding has %d dimensions, want %d", len(e.Embedding), dims)}
		}
		validated[i].Embedding = e.Embedding
	}
	return newIndex(category, version, modelID, dims, validated), nil
}

func validate(category types.Category, version string, records []types.CatalogRecord) ([]types.CatalogEntry, error) {
	if !category.Valid() {
		return nil, &BuildError{Category: category, Version: version, Record: -1, Reason: "unknown category"}
	}
	entries := make([]types.CatalogEntry, 0, len(records))
	seen := make(map[string]int, len(records))
	for i, r := range records {
		code := strings.TrimSpace(r.Code)
		desc := strings.TrimSpace(r.Description)
		fail := func(reason string) error {
			return &BuildError{Category: category, Version: version, Record: i, Code: code, Reason: reason}
		}
		switch {
		case code == "":
			return nil, fail("missing code")
		case desc == "":
			return nil, fail("missing description")
		case r.Category != "" && r.Category != category:
			return nil, fail(fmt.Sprintf("record category %s does not match index category", r.Category))
		}
		if first, ok := seen[code]; ok {
			return nil, fail(fmt.Sprintf("duplicate code (first seen at record %d)", first))
		}
		seen[code] = i
		entries = append(entries, types.CatalogEntry{
			Code:        code,
			Description: desc,
			Category:    category,
			Version:     version,
		})
	}
	return entries, nil
}

func newIndex(category types.Category, version, modelID string, dims int, entries []types.CatalogEntry) *Index {
	idx := &Index{
		category: category,
		version:  version,
		modelID:  modelID,
		dims:     dims,
		entries:  entries,
		norms:    make([]float64, len(entries)),
		byCode:   make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		idx.norms[i] = norm(e.Embedding)
		idx.byCode[e.Code] = i
	}
	return idx
}

func (x *Index) Category() types.Category { return x.category }

func (x *Index) Version() string { return x.version }

// ModelID names the embedding model the entries were embedded with.
func (x *Index) ModelID() string { return x.modelID }

func (x *Index) Dimensions() int { return x.dims }

func (x *Index) Len() int { return len(x.entries) }

// Entries returns the entries in insertion order. Callers must not modify
// the embeddings.
func (x *Index) Entries() []types.CatalogEntry {
	out := make([]types.CatalogEntry, len(x.entries))
	copy(out, x.entries)
	return out
}

// Lookup finds an entry by exact code, falling back to an upper-cased match.
func (x *Index) Lookup(code string) (types.CatalogEntry, bool) {
	code = strings.TrimSpace(code)
	if i, ok := x.byCode[code]; ok {
		return x.entries[i], true
	}
	if i, ok := x.byCode[strings.ToUpper(code)]; ok {
		return x.entries[i], true
	}
	return types.CatalogEntry{}, false
}

// Nearest returns up to topK entries ordered by descending cosine
// similarity to vec, keeping only those with similarity >= minSimilarity.
// Ties keep insertion order. A topK <= 0 examines every entry.
func (x *Index) Nearest(vec []float32, topK int, minSimilarity float64) ([]Neighbor, error) {
	if len(x.entries) == 0 {
		return nil, ErrEmptyIndex
	}
	if len(vec) != x.dims {
		return nil, fmt.Errorf("query vector has %d dimensions, %s index has %d", len(vec), x.category, x.dims)
	}

	qnorm := norm(vec)
	sims := make([]float64, len(x.entries))
	order := make([]int, len(x.entries))
	for i, e := range x.entries {
		order[i] = i
		if qnorm == 0 || x.norms[i] == 0 {
			continue
		}
		var dot float64
		for k, v := range e.Embedding {
			dot += float64(v) * float64(vec[k])
		}
		sims[i] = dot / (qnorm * x.norms[i])
	}
	sort.SliceStable(order, func(a, b int) bool { return sims[order[a]] > sims[order[b]] })

	if topK <= 0 || topK > len(order) {
		topK = len(order)
	}
	var out []Neighbor
	for _, i := range order[:topK] {
		if sims[i] < minSimilarity {
			continue
		}
		out = append(out, Neighbor{Entry: x.entries[i], Similarity: sims[i]})
	}
	return out, nil
}

// Query embeds text with embedder and returns Nearest for it.
func (x *Index) Query(ctx context.Context, embedder embed.Embedder, text string, topK int, minSimilarity float64) ([]Neighbor, error) {
	if len(x.entries) == 0 {
		return nil, ErrEmptyIndex
	}
	vec, err := embed.EmbedOne(ctx, embedder, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return x.Nearest(vec, topK, minSimilarity)
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}
