// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/medcode/internal/catalog"
	"github.com/pdiddy/medcode/internal/embed"
	"github.com/pdiddy/medcode/internal/generative"
	"github.com/pdiddy/medcode/internal/metrics"
	"github.com/pdiddy/medcode/internal/pipeline"
	"github.com/pdiddy/medcode/internal/reconcile"
	"github.com/pdiddy/medcode/internal/secrets"
	"github.com/pdiddy/medcode/internal/semantic"
	"github.com/pdiddy/medcode/pkg/types"
)

var errNoSources = errors.New("no catalog sources configured: set catalog.sources or pass --catalog category=path")

// app holds the components shared by the subcommands. Build it with
// newApp and release it with close.
type app struct {
	cfg      types.PipelineConfig
	logger   *logrus.Logger
	metrics  *metrics.Recorder
	embedder *embed.Cached
	store    *catalog.Store
	builder  *catalog.CachedBuilder
}

// newApp opens the embedder and the index cache.
func newApp(cfg types.PipelineConfig, logger *logrus.Logger) (*app, error) {
	cfg.Embedding.APIKey = loadedSecrets.Resolve(secrets.KeyEmbedding, cfg.Embedding.APIKey)
	emb, err := embed.FromConfig(cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, metrics: metrics.New(), embedder: emb}
	if cfg.Catalog.CacheDir != "" {
		a.store = catalog.OpenStore(cfg.Catalog.CacheDir, logger)
	}

	// The phrase LRU would only fill with catalog descriptions, so builds
	// embed through the uncached backend.
	inner := catalog.EmbeddingBuilder{Embedder: emb.Uncached(), BatchSize: cfg.Embedding.BatchSize}
	a.builder = catalog.NewCachedBuilder(inner, a.store, emb.ModelID(), emb.Dimensions(), logger)
	return a, nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.WithError(err).Warn("closing catalog cache")
		}
	}
	if err := a.embedder.Close(); err != nil {
		a.logger.WithError(err).Warn("closing embedder")
	}
}

// specs groups the configured sources by category. Several files for one
// category are concatenated in the order given.
func (a *app) specs() ([]catalog.Spec, error) {
	if len(a.cfg.Catalog.Sources) == 0 {
		return nil, errNoSources
	}
	byCat := make(map[types.Category][]types.CatalogRecord)
	var order []types.Category
	for _, src := range a.cfg.Catalog.Sources {
		records, err := catalog.LoadRecords(src.Path, src.Category)
		if err != nil {
			return nil, err
		}
		if _, seen := byCat[src.Category]; !seen {
			order = append(order, src.Category)
		}
		byCat[src.Category] = append(byCat[src.Category], records...)
		a.logger.WithFields(logrus.Fields{
			"category": src.Category,
			"path":     src.Path,
			"records":  len(records),
		}).Debug("loaded catalog source")
	}

	specs := make([]catalog.Spec, 0, len(order))
	for _, c := range order {
		specs = append(specs, catalog.Spec{Category: c, Version: a.cfg.Catalog.Version, Records: byCat[c]})
	}
	return specs, nil
}

// buildIndexes builds or loads one index per category concurrently.
func (a *app) buildIndexes(ctx context.Context) ([]*catalog.Index, error) {
	specs, err := a.specs()
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	built := make(map[string]bool)
	a.builder.OnBuild = func(key string) {
		mu.Lock()
		built[key] = true
		mu.Unlock()
	}

	indexes := make([]*catalog.Index, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			idx, err := a.builder.Build(gctx, spec)
			if err != nil {
				return err
			}
			mu.Lock()
			fresh := built[catalog.CacheKey(spec, a.embedder.ModelID())]
			mu.Unlock()
			a.metrics.CatalogBuild(spec.Category, !fresh)
			a.logger.WithFields(logrus.Fields{
				"category": spec.Category,
				"version":  spec.Version,
				"entries":  idx.Len(),
				"cached":   !fresh,
			}).Info("catalog index ready")
			indexes[i] = idx
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return indexes, nil
}

// matcher builds the catalog indexes and a semantic matcher over them.
func (a *app) matcher(ctx context.Context) (*semantic.Matcher, error) {
	indexes, err := a.buildIndexes(ctx)
	if err != nil {
		return nil, err
	}
	return semantic.NewMatcher(a.embedder, indexes, semantic.Options{
		TopK:      a.cfg.Matching.TopK,
		Threshold: a.cfg.Matching.SimilarityThreshold,
	}, a.logger)
}

// generative returns the configured extractor, or nil when it is disabled
// or has no API key.
func (a *app) generative() (*generative.Extractor, error) {
	gc := a.cfg.Generative
	if !gc.Enabled {
		a.logger.Info("generative extraction disabled")
		return nil, nil
	}
	gc.APIKey = loadedSecrets.Resolve(secrets.ProviderKey(gc.Provider), gc.APIKey)
	if gc.APIKey == "" {
		a.logger.WithField("provider", gc.Provider).
			Warn("no API key for generative provider, continuing with pattern and semantic matching only")
		return nil, nil
	}
	return generative.NewFromConfig(gc, nil, a.logger)
}

// resolver wires every strategy into a pipeline.Resolver.
func (a *app) resolver(ctx context.Context) (*pipeline.Resolver, error) {
	m, err := a.matcher(ctx)
	if err != nil {
		return nil, err
	}
	gen, err := a.generative()
	if err != nil {
		return nil, err
	}

	opts := pipeline.Options{Metrics: a.metrics}
	if gen != nil {
		opts.Generative = gen
	}
	if a.cfg.Matching.SectionFallback {
		opts.Sections = m
	}
	return pipeline.NewResolver(reconcile.New(m, a.logger), opts, a.logger), nil
}
