// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs the extraction strategies for a document and
// reconciles their output. Generative and pattern extraction run
// concurrently; a generative failure degrades the document's result
// instead of failing it.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/medcode/internal/generative"
	"github.com/pdiddy/medcode/internal/metrics"
	"github.com/pdiddy/medcode/internal/pattern"
	"github.com/pdiddy/medcode/pkg/types"
)

// GenerativeExtractor proposes entities and codes for a document.
// *generative.Extractor satisfies it.
type GenerativeExtractor interface {
	Extract(ctx context.Context, text string) (*types.GenerativeResult, error)
}

// SectionMatcher proposes semantic candidates from report sections.
// *semantic.Matcher satisfies it.
type SectionMatcher interface {
	SectionCandidates(ctx context.Context, text string) ([]types.ExtractionCandidate, error)
}

// Reconciler merges strategy output. *reconcile.Engine satisfies it.
type Reconciler interface {
	Reconcile(ctx context.Context, gen *types.GenerativeResult, candidates []types.ExtractionCandidate) (*types.ExtractionResult, error)
}

// Options wire the optional collaborators. A nil Generative disables the
// generative strategy; a nil Sections disables the section fallback.
type Options struct {
	Generative GenerativeExtractor
	Sections   SectionMatcher
	Metrics    *metrics.Recorder
}

// Resolver processes documents. It holds no per-document state and is safe
// for concurrent use.
type Resolver struct {
	reconciler Reconciler
	generative GenerativeExtractor
	sections   SectionMatcher
	metrics    *metrics.Recorder
	logger     *logrus.Logger
}

// NewResolver returns a Resolver reconciling through rec.
func NewResolver(rec Reconciler, opts Options, logger *logrus.Logger) *Resolver {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Resolver{
		reconciler: rec,
		generative: opts.Generative,
		sections:   opts.Sections,
		metrics:    opts.Metrics,
		logger:     logger,
	}
}

// Resolve extracts and reconciles codes for one document. The only errors
// returned are cancellation and reconciliation (configuration) failures.
func (r *Resolver) Resolve(ctx context.Context, doc types.Document) (*types.ExtractionResult, error) {
	start := time.Now()
	log := r.logger.WithField("document_id", doc.ID)

	var (
		gen        *types.GenerativeResult
		genErr     error
		candidates []types.ExtractionCandidate
	)

	var g errgroup.Group
	if r.generative != nil {
		g.Go(func() error {
			t := time.Now()
			gen, genErr = r.generative.Extract(ctx, doc.Text)
			r.metrics.Stage("generative", time.Since(t))
			return nil
		})
	}
	g.Go(func() error {
		t := time.Now()
		candidates = pattern.Extract(doc.Text)
		r.metrics.Stage("pattern", time.Since(t))
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reason := ""
	if genErr != nil {
		gen = nil
		reason = failureReason(genErr)
		log.WithFields(logrus.Fields{"reason": reason, "error": genErr}).
			Warn("generative extraction unavailable, continuing with pattern matches")
		r.metrics.GenerativeFailure(reason)
	}

	if gen == nil && r.sections != nil {
		extra, err := r.sections.SectionCandidates(ctx, doc.Text)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, extra...)
	}

	t := time.Now()
	res, err := r.reconciler.Reconcile(ctx, gen, candidates)
	r.metrics.Stage("reconcile", time.Since(t))
	if err != nil {
		return nil, err
	}
	res.DocumentID = doc.ID
	if genErr != nil {
		res.Degraded = true
		res.DegradedReason = reason
	}

	r.metrics.Stage("total", time.Since(start))
	r.metrics.Result(res)
	log.WithFields(logrus.Fields{
		"icd10":    len(res.ICD10),
		"cpt":      len(res.CPT),
		"hcpcs":    len(res.HCPCS),
		"degraded": res.Degraded,
		"elapsed":  time.Since(start).Round(time.Millisecond),
	}).Info("document resolved")
	return res, nil
}

func failureReason(err error) string {
	var uerr *generative.UnavailableError
	if errors.As(err, &uerr) {
		return string(uerr.Reason)
	}
	return "unknown"
}
