// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "sort"

// Document is the plain text of one clinical report. Text extraction from
// source files happens before a Document is built.
type Document struct {
	// ID names the document in logs and output (file name, report index).
	ID string `json:"id" yaml:"id"`

	// Source is the path the text was read from, or "-" for stdin.
	Source string `json:"source,omitempty" yaml:"source,omitempty"`

	Text string `json:"-" yaml:"-"`
}

// ExtractionCandidate is a code or phrase proposed by one strategy for one
// document. Candidates are never persisted.
type ExtractionCandidate struct {
	Text          string   `json:"text" yaml:"text"`
	Strategy      Strategy `json:"strategy" yaml:"strategy"`
	ProposedCode  string   `json:"proposed_code,omitempty" yaml:"proposed_code,omitempty"`
	Category      Category `json:"category,omitempty" yaml:"category,omitempty"`
	RawConfidence float64  `json:"raw_confidence" yaml:"raw_confidence"`

	// Offset is the byte offset of Text in the document, or -1 when the
	// candidate is not tied to a literal span.
	Offset int `json:"offset" yaml:"offset"`
}

// CodeGuess is a code proposed by the generative model together with the
// category it claims and the text span it was derived from.
type CodeGuess struct {
	Code     string   `json:"code" yaml:"code"`
	Category Category `json:"category" yaml:"category"`
	Span     string   `json:"span,omitempty" yaml:"span,omitempty"`
}

// GenerativeResult is the parsed reply of the generative model for one
// document. Every list is free of case-insensitive duplicates.
type GenerativeResult struct {
	ClinicalTerms       []string    `json:"clinical_terms" yaml:"clinical_terms"`
	AnatomicalLocations []string    `json:"anatomical_locations" yaml:"anatomical_locations"`
	Diagnoses           []string    `json:"diagnoses" yaml:"diagnoses"`
	Procedures          []string    `json:"procedures" yaml:"procedures"`
	CodeGuesses         []CodeGuess `json:"codes" yaml:"codes"`
}

// ResolvedCode is a final, de-duplicated, confidence-scored code.
type ResolvedCode struct {
	Code        string   `json:"code" yaml:"code"`
	Category    Category `json:"category" yaml:"category"`
	Description string   `json:"description" yaml:"description"`

	// Confidence is in [0,1]; the maximum over the supporting strategies.
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// Strategies is a set kept in canonical order.
	Strategies []Strategy `json:"supporting_strategies" yaml:"supporting_strategies"`
}

// HasStrategy reports whether s supports the code.
func (r ResolvedCode) HasStrategy(s Strategy) bool {
	for _, have := range r.Strategies {
		if have == s {
			return true
		}
	}
	return false
}

// AddStrategies returns the union of existing and extra in canonical order.
func AddStrategies(existing []Strategy, extra ...Strategy) []Strategy {
	seen := make(map[Strategy]bool, len(existing)+len(extra))
	var out []Strategy
	for _, s := range append(append([]Strategy{}, existing...), extra...) {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strategyOrder[out[i]] < strategyOrder[out[j]]
	})
	return out
}

// ExtractionResult is the reconciled output for one document. It is built
// fresh per document and owned by the caller once returned.
type ExtractionResult struct {
	DocumentID string `json:"document_id,omitempty" yaml:"document_id,omitempty"`

	ClinicalTerms       []string `json:"clinical_terms" yaml:"clinical_terms"`
	AnatomicalLocations []string `json:"anatomical_locations" yaml:"anatomical_locations"`
	Diagnoses           []string `json:"diagnoses" yaml:"diagnoses"`
	Procedures          []string `json:"procedures" yaml:"procedures"`

	ICD10 []ResolvedCode `json:"icd10" yaml:"icd10"`
	CPT   []ResolvedCode `json:"cpt" yaml:"cpt"`
	HCPCS []ResolvedCode `json:"hcpcs" yaml:"hcpcs"`

	// Degraded is set when the generative extractor failed and the result
	// was built from the remaining strategies only.
	Degraded       bool   `json:"degraded,omitempty" yaml:"degraded,omitempty"`
	DegradedReason string `json:"degraded_reason,omitempty" yaml:"degraded_reason,omitempty"`
}

// Codes returns the resolved codes for category c.
func (r *ExtractionResult) Codes(c Category) []ResolvedCode {
	switch c {
	case CategoryICD10:
		return r.ICD10
	case CategoryCPT:
		return r.CPT
	case CategoryHCPCS:
		return r.HCPCS
	}
	return nil
}

// CodeCount returns the number of codes across all categories.
func (r *ExtractionResult) CodeCount() int {
	return len(r.ICD10) + len(r.CPT) + len(r.HCPCS)
}

// DocumentOutcome pairs a document with its result or the error that
// prevented one. Exactly one of Result and Err is set.
type DocumentOutcome struct {
	DocumentID string
	Result     *ExtractionResult
	Err        error
}
