// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/pdiddy/medcode/internal/embed"
	"github.com/pdiddy/medcode/pkg/types"
)

// Spec names the inputs of one index build.
type Spec struct {
	Category types.Category
	Version  string
	Records  []types.CatalogRecord
}

// Builder produces an index from a Spec.
type Builder interface {
	Build(ctx context.Context, spec Spec) (*Index, error)
}

// EmbeddingBuilder builds indexes by embedding every record.
type EmbeddingBuilder struct {
	Embedder  embed.Embedder
	BatchSize int
}

// Build implements Builder.
func (b EmbeddingBuilder) Build(ctx context.Context, spec Spec) (*Index, error) {
	size := b.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	return buildIndex(ctx, spec.Category, spec.Version, spec.Records, b.Embedder, size)
}

// ContentHash is the hex SHA-256 of the ordered records. Any change to a
// code, description, category or the record order changes the hash.
func ContentHash(records []types.CatalogRecord) string {
	h := sha256.New()
	for _, r := range records {
		h.Write([]byte(r.Code))
		h.Write([]byte{0x1f})
		h.Write([]byte(r.Description))
		h.Write([]byte{0x1f})
		h.Write([]byte(r.Category))
		h.Write([]byte{0x1e})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CacheKey identifies a build by category, version, content hash and model.
func CacheKey(spec Spec, modelID string) string {
	return string(spec.Category) + "|" + spec.Version + "|" + ContentHash(spec.Records) + "|" + modelID
}

// CachedBuilder wraps a Builder with a persistent Store and an in-process
// memo. Concurrent builds for the same key run once; later callers share
// the result. A nil Store disables persistence but keeps the memo.
type CachedBuilder struct {
	inner   Builder
	store   *Store
	modelID string
	dims    int
	logger  *logrus.Logger

	group singleflight.Group
	mu    sync.Mutex
	memo  map[string]*Index

	// OnBuild, when set, is called with each key that was embedded rather
	// than loaded.
	OnBuild func(key string)
}

// NewCachedBuilder returns a caching decorator around inner. modelID and
// dims describe the embedder inner uses; they guard against loading vectors
// produced by a different model.
func NewCachedBuilder(inner Builder, store *Store, modelID string, dims int, logger *logrus.Logger) *CachedBuilder {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CachedBuilder{
		inner:   inner,
		store:   store,
		modelID: modelID,
		dims:    dims,
		logger:  logger,
		memo:    make(map[string]*Index),
	}
}

// Build returns the memoised index for spec, else a cached snapshot, else a
// fresh build. Cache read problems cause a rebuild; cache write problems
// are logged and otherwise ignored.
func (c *CachedBuilder) Build(ctx context.Context, spec Spec) (*Index, error) {
	key := CacheKey(spec, c.modelID)

	c.mu.Lock()
	if idx, ok := c.memo[key]; ok {
		c.mu.Unlock()
		return idx, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		c.mu.Lock()
		if idx, ok := c.memo[key]; ok {
			c.mu.Unlock()
			return idx, nil
		}
		c.mu.Unlock()

		idx := c.load(ctx, key, spec)
		if idx == nil {
			built, err := c.inner.Build(ctx, spec)
			if err != nil {
				return nil, err
			}
			idx = built
			if c.OnBuild != nil {
				c.OnBuild(key)
			}
			c.save(ctx, key, spec, idx)
		}

		c.mu.Lock()
		c.memo[key] = idx
		c.mu.Unlock()
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Index), nil
}

func (c *CachedBuilder) load(ctx context.Context, key string, spec Spec) *Index {
	if c.store == nil {
		return nil
	}
	log := c.logger.WithFields(logrus.Fields{"category": spec.Category, "version": spec.Version})

	snap, entries, err := c.store.Load(ctx, key)
	if errors.Is(err, ErrNotCached) {
		log.Debug("catalog cache miss")
		return nil
	}
	if err != nil {
		log.WithError(err).Warn("catalog cache unreadable, rebuilding")
		return nil
	}
	if snap.ModelID != c.modelID || snap.Dimensions != c.dims {
		log.WithFields(logrus.Fields{"cached_model": snap.ModelID, "cached_dimensions": snap.Dimensions}).
			Warn("catalog cache built with a different embedder, rebuilding")
		return nil
	}
	idx, err := FromEntries(spec.Category, spec.Version, snap.ModelID, snap.Dimensions, entries)
	if err != nil {
		log.WithError(err).Warn("catalog cache failed validation, rebuilding")
		return nil
	}
	if idx.Len() != len(spec.Records) {
		log.Warn("catalog cache entry count differs from source, rebuilding")
		return nil
	}
	log.WithField("entries", idx.Len()).Debug("catalog loaded from cache")
	return idx
}

func (c *CachedBuilder) save(ctx context.Context, key string, spec Spec, idx *Index) {
	if c.store == nil {
		return
	}
	snap := Snapshot{
		Key:         key,
		Category:    spec.Category,
		Version:     spec.Version,
		ContentHash: ContentHash(spec.Records),
		ModelID:     idx.ModelID(),
		Dimensions:  idx.Dimensions(),
	}
	if err := c.store.Save(ctx, snap, idx.Entries()); err != nil {
		c.logger.WithError(err).WithField("category", spec.Category).Warn("saving catalog cache failed")
	}
}
