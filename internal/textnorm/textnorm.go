// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package textnorm normalises short clinical phrases for comparison.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Clean applies NFKC normalisation, drops control characters, and collapses
// runs of whitespace to single spaces.
func Clean(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// Key returns the comparison key for s: Clean followed by Unicode case folding.
// Two phrases are duplicates when their keys are equal.
func Key(s string) string {
	cleaned := Clean(s)
	if cleaned == "" {
		return ""
	}
	// A Caser carries state and must not be shared between goroutines.
	return cases.Fold().String(cleaned)
}

// Dedupe removes case-insensitive duplicates and blank entries, keeping the
// first occurrence with its original casing (surrounding whitespace trimmed).
// The result is never nil.
func Dedupe(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		k := Key(item)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, strings.TrimSpace(item))
	}
	return out
}
