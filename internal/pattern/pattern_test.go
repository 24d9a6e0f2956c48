// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/medcode/pkg/types"
)

type hit struct {
	code     string
	category types.Category
}

func hits(cands []types.ExtractionCandidate) []hit {
	out := make([]hit, len(cands))
	for i, c := range cands {
		out[i] = hit{c.ProposedCode, c.Category}
	}
	return out
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []hit
	}{
		{
			name: "icd with and without decimal",
			text: "Dx: K57.90 and Z86.0100, plus I10.",
			want: []hit{{"K57.90", types.CategoryICD10}, {"Z86.0100", types.CategoryICD10}, {"I10", types.CategoryICD10}},
		},
		{
			name: "icd alphanumeric extension",
			text: "Fracture S52.5XXA noted",
			want: []hit{{"S52.5XXA", types.CategoryICD10}},
		},
		{
			name: "cpt five digits",
			text: "Procedure code 45378 performed",
			want: []hit{{"45378", types.CategoryCPT}},
		},
		{
			name: "cpt at string edges",
			text: "45378,45380",
			want: []hit{{"45378", types.CategoryCPT}, {"45380", types.CategoryCPT}},
		},
		{
			name: "longer numbers are not cpt",
			text: "MRN 1234567, phone 5551234567, zip+4 12345-6789",
			want: []hit{{"12345", types.CategoryCPT}},
		},
		{
			name: "hcpcs",
			text: "Given J3490 and G0121.",
			want: []hit{{"J3490", types.CategoryHCPCS}, {"G0121", types.CategoryHCPCS}},
		},
		{
			name: "mixed families in text order",
			text: "45378 for K57.90; drug J3490",
			want: []hit{{"45378", types.CategoryCPT}, {"K57.90", types.CategoryICD10}, {"J3490", types.CategoryHCPCS}},
		},
		{
			name: "lowercase is not a code",
			text: "i10 j3490",
			want: []hit{},
		},
		{
			name: "embedded in a word",
			text: "XI10 ABJ3490",
			want: []hit{},
		},
		{
			name: "empty",
			text: "",
			want: []hit{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hits(Extract(tt.text)))
		})
	}
}

func TestExtract_OverlapPriority(t *testing.T) {
	// A12.34 is ICD-10; the HCPCS and CPT grammars cannot claim any part of it.
	got := Extract("code A12.34 only")
	require.Len(t, got, 1)
	assert.Equal(t, types.CategoryICD10, got[0].Category)

	// With a digit tail the ICD-10 grammar falls back to the bare category
	// and the remaining five digits stand alone as CPT.
	got = Extract("I10.12345")
	assert.Equal(t, []hit{{"I10", types.CategoryICD10}, {"12345", types.CategoryCPT}}, hits(got))
}

func TestExtract_CandidateFields(t *testing.T) {
	text := "essential hypertension (I10) treated"
	got := Extract(text)
	require.Len(t, got, 1)

	c := got[0]
	assert.Equal(t, "I10", c.Text)
	assert.Equal(t, types.StrategyPattern, c.Strategy)
	assert.Equal(t, 1.0, c.RawConfidence)
	assert.Equal(t, 24, c.Offset)
	assert.Equal(t, "I10", text[c.Offset:c.Offset+3])
}

func TestExtract_Deterministic(t *testing.T) {
	text := "K57.90 45378 J3490 I10 99213"
	assert.Equal(t, Extract(text), Extract(text))
}
