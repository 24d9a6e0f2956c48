// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package reconcile merges pattern hits, section matches and validated
// generative guesses into one duplicate-free ExtractionResult.
package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pdiddy/medcode/internal/textnorm"
	"github.com/pdiddy/medcode/pkg/types"
)

// Matcher resolves phrases and literal codes against the catalogs.
// *semantic.Matcher satisfies it.
type Matcher interface {
	Match(ctx context.Context, phrase string, category types.Category) (*types.ResolvedCode, error)
	Lookup(category types.Category, code string) (types.CatalogEntry, bool)
}

// Engine reconciles one document at a time and holds no per-document state.
type Engine struct {
	matcher Matcher
	logger  *logrus.Logger
}

// New returns an Engine backed by m.
func New(m Matcher, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{matcher: m, logger: logger}
}

// Reconcile builds the result for one document. candidates come from the
// pattern extractor and the optional section matcher; gen is nil when the
// generative extractor was disabled or failed, in which case the free-text
// lists are empty and only candidate codes are reported. Generative phrases
// and code guesses are accepted only through the matcher. Matcher errors
// are returned as is; they indicate a configuration problem.
func (e *Engine) Reconcile(ctx context.Context, gen *types.GenerativeResult, candidates []types.ExtractionCandidate) (*types.ExtractionResult, error) {
	set := newCodeSet()

	for _, c := range candidates {
		code := strings.TrimSpace(c.ProposedCode)
		if code == "" || !c.Category.Valid() {
			continue
		}
		rc := types.ResolvedCode{
			Code:       code,
			Category:   c.Category,
			Confidence: c.RawConfidence,
			Strategies: []types.Strategy{c.Strategy},
		}
		if c.Strategy == types.StrategyPattern {
			rc.Confidence = 1.0
		}
		if entry, ok := e.matcher.Lookup(c.Category, code); ok {
			rc.Code = entry.Code
			rc.Description = entry.Description
		}
		set.add(rc)
	}

	res := &types.ExtractionResult{
		ClinicalTerms:       []string{},
		AnatomicalLocations: []string{},
		Diagnoses:           []string{},
		Procedures:          []string{},
	}

	if gen != nil {
		res.ClinicalTerms = textnorm.Dedupe(gen.ClinicalTerms)
		res.AnatomicalLocations = textnorm.Dedupe(gen.AnatomicalLocations)
		res.Diagnoses = textnorm.Dedupe(gen.Diagnoses)
		res.Procedures = textnorm.Dedupe(gen.Procedures)

		var phrases []phrase
		for _, d := range res.Diagnoses {
			phrases = append(phrases, phrase{text: d, category: types.CategoryICD10})
		}
		for _, p := range res.Procedures {
			phrases = append(phrases, phrase{text: p, category: types.CategoryCPT})
		}
		for _, g := range gen.CodeGuesses {
			text := g.Span
			if strings.TrimSpace(text) == "" {
				text = g.Code
			}
			phrases = append(phrases, phrase{text: text, category: g.Category, guess: g.Code})
		}

		for _, p := range phrases {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			rc, err := e.matcher.Match(ctx, p.text, p.category)
			if err != nil {
				return nil, fmt.Errorf("matching %q against %s: %w", p.text, p.category, err)
			}
			if rc == nil {
				if p.guess != "" {
					e.logger.WithFields(logrus.Fields{
						"code":     p.guess,
						"category": p.category,
						"span":     p.text,
					}).Debug("discarding generative code guess below threshold")
				}
				continue
			}
			rc.Strategies = []types.Strategy{types.StrategyGenerative}
			set.add(*rc)
		}
	}

	res.ICD10 = set.codes(types.CategoryICD10)
	res.CPT = set.codes(types.CategoryCPT)
	res.HCPCS = set.codes(types.CategoryHCPCS)
	return res, nil
}

type phrase struct {
	text     string
	category types.Category
	guess    string
}

// codeSet keeps resolved codes unique per (category, code) in first-seen
// order.
type codeSet struct {
	order map[types.Category][]types.ResolvedCode
	index map[string]int
}

func newCodeSet() *codeSet {
	return &codeSet{order: make(map[types.Category][]types.ResolvedCode), index: make(map[string]int)}
}

func (s *codeSet) add(rc types.ResolvedCode) {
	if rc.Confidence < 0 {
		rc.Confidence = 0
	}
	if rc.Confidence > 1 {
		rc.Confidence = 1
	}
	key := string(rc.Category) + "|" + strings.ToUpper(rc.Code)
	i, ok := s.index[key]
	if !ok {
		rc.Strategies = types.AddStrategies(nil, rc.Strategies...)
		s.index[key] = len(s.order[rc.Category])
		s.order[rc.Category] = append(s.order[rc.Category], rc)
		return
	}
	cur := &s.order[rc.Category][i]
	cur.Confidence = max(cur.Confidence, rc.Confidence)
	cur.Strategies = types.AddStrategies(cur.Strategies, rc.Strategies...)
	if cur.Description == "" {
		cur.Description = rc.Description
	}
}

func (s *codeSet) codes(c types.Category) []types.ResolvedCode {
	out := s.order[c]
	if out == nil {
		return []types.ResolvedCode{}
	}
	return out
}
