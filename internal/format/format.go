// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package format projects extraction results into the fixed output schema
// and writes them as JSON or YAML.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/medcode/pkg/types"
)

// Format selects the output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts json, yaml or yml in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown output format %q: use json or yaml", s)
}

// Output is the fixed result schema. Codes are bare strings.
type Output struct {
	ClinicalTerms       []string `json:"Clinical Terms" yaml:"Clinical Terms"`
	AnatomicalLocations []string `json:"Anatomical Locations" yaml:"Anatomical Locations"`
	Diagnosis           []string `json:"Diagnosis" yaml:"Diagnosis"`
	Procedures          []string `json:"Procedures" yaml:"Procedures"`
	ICD10               []string `json:"ICD-10" yaml:"ICD-10"`
	CPT                 []string `json:"CPT" yaml:"CPT"`
	HCPCS               []string `json:"HCPCS" yaml:"HCPCS"`
}

// DetailedOutput carries the same keys with full code objects plus the
// document ID and degradation status.
type DetailedOutput struct {
	DocumentID          string               `json:"Document ID,omitempty" yaml:"Document ID,omitempty"`
	ClinicalTerms       []string             `json:"Clinical Terms" yaml:"Clinical Terms"`
	AnatomicalLocations []string             `json:"Anatomical Locations" yaml:"Anatomical Locations"`
	Diagnosis           []string             `json:"Diagnosis" yaml:"Diagnosis"`
	Procedures          []string             `json:"Procedures" yaml:"Procedures"`
	ICD10               []types.ResolvedCode `json:"ICD-10" yaml:"ICD-10"`
	CPT                 []types.ResolvedCode `json:"CPT" yaml:"CPT"`
	HCPCS               []types.ResolvedCode `json:"HCPCS" yaml:"HCPCS"`
	Degraded            bool                 `json:"Degraded" yaml:"Degraded"`
	DegradedReason      string               `json:"Degraded Reason,omitempty" yaml:"Degraded Reason,omitempty"`
}

// Project maps r onto Output without reordering or filtering.
func Project(r *types.ExtractionResult) Output {
	return Output{
		ClinicalTerms:       strs(r.ClinicalTerms),
		AnatomicalLocations: strs(r.AnatomicalLocations),
		Diagnosis:           strs(r.Diagnoses),
		Procedures:          strs(r.Procedures),
		ICD10:               codeStrings(r.ICD10),
		CPT:                 codeStrings(r.CPT),
		HCPCS:               codeStrings(r.HCPCS),
	}
}

// Detail maps r onto DetailedOutput.
func Detail(r *types.ExtractionResult) DetailedOutput {
	return DetailedOutput{
		DocumentID:          r.DocumentID,
		ClinicalTerms:       strs(r.ClinicalTerms),
		AnatomicalLocations: strs(r.AnatomicalLocations),
		Diagnosis:           strs(r.Diagnoses),
		Procedures:          strs(r.Procedures),
		ICD10:               codes(r.ICD10),
		CPT:                 codes(r.CPT),
		HCPCS:               codes(r.HCPCS),
		Degraded:            r.Degraded,
		DegradedReason:      r.DegradedReason,
	}
}

// Write encodes docs to w. A single document is written as an object,
// any other count as an array.
func Write[T any](w io.Writer, docs []T, f Format) error {
	var v any = docs
	if len(docs) == 1 {
		v = docs[0]
	}
	if docs == nil {
		v = []T{}
	}

	switch f {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q", f)
}

// WriteSummary prints a per-document overview for humans.
func WriteSummary(w io.Writer, outcomes []types.DocumentOutcome) {
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			fmt.Fprintf(w, "\n%s: FAILED: %v\n", o.DocumentID, o.Err)
			continue
		}
		r := o.Result
		status := ""
		if r.Degraded {
			status = fmt.Sprintf(" (degraded: %s)", r.DegradedReason)
		}
		fmt.Fprintf(w, "\n%s%s\n", o.DocumentID, status)
		fmt.Fprintf(w, "  %-22s %d\n", "Clinical Terms:", len(r.ClinicalTerms))
		fmt.Fprintf(w, "  %-22s %d\n", "Anatomical Locations:", len(r.AnatomicalLocations))
		fmt.Fprintf(w, "  %-22s %d\n", "Diagnosis:", len(r.Diagnoses))
		fmt.Fprintf(w, "  %-22s %d\n", "Procedures:", len(r.Procedures))
		fmt.Fprintf(w, "  %-22s %d - %s\n", "ICD-10 Codes:", len(r.ICD10), codeList(r.ICD10, 5))
		fmt.Fprintf(w, "  %-22s %d - %s\n", "CPT Codes:", len(r.CPT), codeList(r.CPT, 0))
		fmt.Fprintf(w, "  %-22s %d - %s\n", "HCPCS Codes:", len(r.HCPCS), codeList(r.HCPCS, 0))
	}
	fmt.Fprintf(w, "\n%d documents, %d failed\n", len(outcomes), failed)
}

// codeList joins up to limit codes; limit 0 means all.
func codeList(rcs []types.ResolvedCode, limit int) string {
	if len(rcs) == 0 {
		return "None"
	}
	list := codeStrings(rcs)
	suffix := ""
	if limit > 0 && len(list) > limit {
		list = list[:limit]
		suffix = "..."
	}
	return strings.Join(list, ", ") + suffix
}

func strs(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func codes(in []types.ResolvedCode) []types.ResolvedCode {
	out := make([]types.ResolvedCode, len(in))
	copy(out, in)
	return out
}

func codeStrings(in []types.ResolvedCode) []string {
	out := make([]string, len(in))
	for i, rc := range in {
		out[i] = rc.Code
	}
	return out
}
