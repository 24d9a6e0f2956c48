// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"strings"
)

// Category identifies a code family. The string values double as the output
// keys for the three code lists.
type Category string

const (
	CategoryICD10 Category = "ICD-10"
	CategoryCPT   Category = "CPT"
	CategoryHCPCS Category = "HCPCS"
)

// AllCategories lists the supported code families in canonical output order.
var AllCategories = []Category{CategoryICD10, CategoryCPT, CategoryHCPCS}

// categoryAliases maps lowercased spellings seen in configuration files and
// model replies to their Category.
var categoryAliases = map[string]Category{
	"icd-10":    CategoryICD10,
	"icd10":     CategoryICD10,
	"icd_10":    CategoryICD10,
	"icd":       CategoryICD10,
	"icd-10-cm": CategoryICD10,
	"cpt":       CategoryCPT,
	"hcpcs":     CategoryHCPCS,
}

// ParseCategory returns the Category for name, accepting case-insensitive
// aliases such as "icd10" or "hcpcs".
func ParseCategory(name string) (Category, error) {
	if c, ok := categoryAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return c, nil
	}
	return "", fmt.Errorf("unknown code category %q", name)
}

// Valid reports whether c is one of AllCategories.
func (c Category) Valid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Strategy names the extraction strategy that supported a code.
type Strategy string

const (
	StrategyGenerative Strategy = "generative"
	StrategyPattern    Strategy = "pattern"
	StrategySemantic   Strategy = "semantic"
)

// strategyOrder fixes the order strategies are listed in a ResolvedCode.
var strategyOrder = map[Strategy]int{
	StrategyGenerative: 0,
	StrategyPattern:    1,
	StrategySemantic:   2,
}
