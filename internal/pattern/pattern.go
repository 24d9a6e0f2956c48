// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pattern recognises literal ICD-10, CPT and HCPCS code tokens in
// text. Extraction is deterministic and has no failure mode.
package pattern

import (
	"regexp"
	"sort"

	"github.com/pdiddy/medcode/pkg/types"
)

// grammar is one code family's lexical rule. Grammars are listed in
// priority order: when spans overlap the earlier grammar wins.
type grammar struct {
	category types.Category
	re       *regexp.Regexp
	// digitsOnly grammars reject matches that touch another digit, so a
	// five-digit code is never cut out of a longer number.
	digitsOnly bool
}

var grammars = []grammar{
	{category: types.CategoryICD10, re: regexp.MustCompile(`\b[A-Z][0-9]{2}(?:\.[A-Z0-9]{1,4})?\b`)},
	{category: types.CategoryHCPCS, re: regexp.MustCompile(`\b[A-Z][0-9]{4}\b`)},
	{category: types.CategoryCPT, re: regexp.MustCompile(`[0-9]{5}`), digitsOnly: true},
}

type span struct{ start, end int }

// Extract returns every non-overlapping code token in text, in text order,
// as pattern candidates with confidence 1.0.
func Extract(text string) []types.ExtractionCandidate {
	var accepted []span
	var out []types.ExtractionCandidate

	for _, g := range grammars {
		for _, loc := range g.re.FindAllStringIndex(text, -1) {
			s := span{loc[0], loc[1]}
			if g.digitsOnly && !isolatedDigits(text, s) {
				continue
			}
			if overlaps(accepted, s) {
				continue
			}
			accepted = append(accepted, s)
			out = append(out, types.ExtractionCandidate{
				Text:          text[s.start:s.end],
				Strategy:      types.StrategyPattern,
				ProposedCode:  text[s.start:s.end],
				Category:      g.category,
				RawConfidence: 1.0,
				Offset:        s.start,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

// isolatedDigits reports whether s is a maximal run of digits, bounded by a
// non-digit or the string edge on both sides.
func isolatedDigits(text string, s span) bool {
	if s.start > 0 && isDigit(text[s.start-1]) {
		return false
	}
	if s.end < len(text) && isDigit(text[s.end]) {
		return false
	}
	return true
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func overlaps(accepted []span, s span) bool {
	for _, a := range accepted {
		if s.start < a.end && a.start < s.end {
			return true
		}
	}
	return false
}
