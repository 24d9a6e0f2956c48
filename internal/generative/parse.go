// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package generative

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pdiddy/medcode/internal/textnorm"
	"github.com/pdiddy/medcode/pkg/types"
)

var errNoObject = errors.New("reply contains no JSON object")

type rawGuess struct {
	Code     string `json:"code"`
	Category string `json:"category"`
	Span     string `json:"span"`
}

// rawReply accepts the requested schema plus the bare per-category code
// lists some models fall back to.
type rawReply struct {
	ClinicalTerms       []string   `json:"clinical_terms"`
	AnatomicalLocations []string   `json:"anatomical_locations"`
	Diagnoses           []string   `json:"diagnoses"`
	Procedures          []string   `json:"procedures"`
	Codes               []rawGuess `json:"codes"`

	ICD10 []string `json:"ICD-10"`
	CPT   []string `json:"CPT"`
	HCPCS []string `json:"HCPCS"`
}

// ParseReply extracts the JSON object from a model reply and converts it to
// a GenerativeResult. Code fences and surrounding prose are ignored. Lists
// are de-duplicated case-insensitively; guesses with an empty code or an
// unknown category are dropped.
func ParseReply(reply string) (*types.GenerativeResult, error) {
	body, err := jsonObject(reply)
	if err != nil {
		return nil, err
	}

	var raw rawReply
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("parsing reply: %w", err)
	}

	guesses := raw.Codes
	for _, legacy := range []struct {
		category types.Category
		codes    []string
	}{
		{types.CategoryICD10, raw.ICD10},
		{types.CategoryCPT, raw.CPT},
		{types.CategoryHCPCS, raw.HCPCS},
	} {
		for _, c := range legacy.codes {
			guesses = append(guesses, rawGuess{Code: c, Category: string(legacy.category)})
		}
	}

	return &types.GenerativeResult{
		ClinicalTerms:       textnorm.Dedupe(raw.ClinicalTerms),
		AnatomicalLocations: textnorm.Dedupe(raw.AnatomicalLocations),
		Diagnoses:           textnorm.Dedupe(raw.Diagnoses),
		Procedures:          textnorm.Dedupe(raw.Procedures),
		CodeGuesses:         cleanGuesses(guesses),
	}, nil
}

func jsonObject(reply string) (string, error) {
	s := strings.TrimSpace(reply)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", errNoObject
	}
	return s[start : end+1], nil
}

func cleanGuesses(raw []rawGuess) []types.CodeGuess {
	out := []types.CodeGuess{}
	seen := make(map[string]bool)
	for _, g := range raw {
		code := strings.ToUpper(strings.TrimSpace(g.Code))
		if code == "" {
			continue
		}
		cat, err := types.ParseCategory(g.Category)
		if err != nil {
			continue
		}
		key := string(cat) + "|" + code
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, types.CodeGuess{Code: code, Category: cat, Span: textnorm.Clean(g.Span)})
	}
	return out
}
