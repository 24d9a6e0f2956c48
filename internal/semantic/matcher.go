// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package semantic resolves free-text clinical phrases to catalog codes by
// nearest-neighbour search over embedded code descriptions.
package semantic

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pdiddy/medcode/internal/catalog"
	"github.com/pdiddy/medcode/internal/embed"
	"github.com/pdiddy/medcode/pkg/types"
)

// Matcher pairs one embedding function with at most one index per category.
// It holds no mutable state and is safe for concurrent use.
type Matcher struct {
	embedder  embed.Embedder
	indexes   map[types.Category]*catalog.Index
	topK      int
	threshold float64
	logger    *logrus.Logger
}

// Options tune a Matcher. Zero values take the defaults (top 5, 0.5).
type Options struct {
	TopK      int
	Threshold float64
}

// NewMatcher returns a matcher over indexes. Every index must have been
// embedded with embedder's model.
func NewMatcher(embedder embed.Embedder, indexes []*catalog.Index, opts Options, logger *logrus.Logger) (*Matcher, error) {
	if opts.TopK <= 0 {
		opts.TopK = types.DefaultTopK
	}
	if opts.Threshold <= 0 {
		opts.Threshold = types.DefaultSimilarityThreshold
	}
	if opts.Threshold > 1 {
		return nil, fmt.Errorf("similarity threshold %g is above 1", opts.Threshold)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	m := &Matcher{
		embedder:  embedder,
		indexes:   make(map[types.Category]*catalog.Index, len(indexes)),
		topK:      opts.TopK,
		threshold: opts.Threshold,
		logger:    logger,
	}
	for _, idx := range indexes {
		if _, dup := m.indexes[idx.Category()]; dup {
			return nil, fmt.Errorf("more than one %s catalog index", idx.Category())
		}
		if idx.ModelID() != embedder.ModelID() {
			return nil, fmt.Errorf("%s catalog was embedded with %s, matcher uses %s",
				idx.Category(), idx.ModelID(), embedder.ModelID())
		}
		m.indexes[idx.Category()] = idx
	}
	return m, nil
}

// Threshold is the minimum similarity accepted.
func (m *Matcher) Threshold() float64 { return m.threshold }

// HasCatalog reports whether an index exists for category.
func (m *Matcher) HasCatalog(category types.Category) bool {
	_, ok := m.indexes[category]
	return ok
}

// Match resolves phrase to the most similar catalog entry of category. It
// returns nil without error when nothing clears the threshold, when the
// phrase is blank, or when no catalog is loaded for category. Errors mean
// the catalog or embedder is misconfigured.
func (m *Matcher) Match(ctx context.Context, phrase string, category types.Category) (*types.ResolvedCode, error) {
	neighbors, err := m.query(ctx, phrase, category)
	if err != nil || len(neighbors) == 0 {
		return nil, err
	}
	best := neighbors[0]
	m.logger.WithFields(logrus.Fields{
		"category":   category,
		"code":       best.Entry.Code,
		"similarity": best.Similarity,
	}).Debug("semantic match")
	return &types.ResolvedCode{
		Code:        best.Entry.Code,
		Category:    category,
		Description: best.Entry.Description,
		Confidence:  clip(best.Similarity),
	}, nil
}

// MatchAll returns every top-K neighbour above the threshold as semantic
// candidates, best first.
func (m *Matcher) MatchAll(ctx context.Context, text string, category types.Category) ([]types.ExtractionCandidate, error) {
	neighbors, err := m.query(ctx, text, category)
	if err != nil {
		return nil, err
	}
	out := make([]types.ExtractionCandidate, 0, len(neighbors))
	for _, n := range neighbors {
		out = append(out, types.ExtractionCandidate{
			Text:          text,
			Strategy:      types.StrategySemantic,
			ProposedCode:  n.Entry.Code,
			Category:      category,
			RawConfidence: clip(n.Similarity),
			Offset:        -1,
		})
	}
	return out, nil
}

// Lookup finds code in the category's catalog by exact match.
func (m *Matcher) Lookup(category types.Category, code string) (types.CatalogEntry, bool) {
	idx, ok := m.indexes[category]
	if !ok {
		return types.CatalogEntry{}, false
	}
	return idx.Lookup(code)
}

func (m *Matcher) query(ctx context.Context, text string, category types.Category) ([]catalog.Neighbor, error) {
	idx, ok := m.indexes[category]
	if !ok || strings.TrimSpace(text) == "" {
		return nil, nil
	}
	neighbors, err := idx.Query(ctx, m.embedder, text, m.topK, m.threshold)
	if err != nil {
		return nil, fmt.Errorf("matching %q against %s catalog: %w", text, category, err)
	}
	return neighbors, nil
}

func clip(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
