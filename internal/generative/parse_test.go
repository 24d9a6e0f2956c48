package generative

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/medcode/pkg/types"
)

func TestParseReply(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		wantTerms []string
		wantCodes []types.CodeGuess
	}{
		{
			name:      "plain object",
			reply:     `{"clinical_terms":["chest pain"],"codes":[{"code":"i21.4","category":"ICD-10","span":"NSTEMI"}]}`,
			wantTerms: []string{"chest pain"},
			wantCodes: []types.CodeGuess{{Code: "I21.4", Category: types.CategoryICD10, Span: "NSTEMI"}},
		},
		{
			name:      "json fence",
			reply:     "```json\n{\"clinical_terms\":[\"cough\"]}\n```",
			wantTerms: []string{"cough"},
			wantCodes: []types.CodeGuess{},
		},
		{
			name:      "prose around object",
			reply:     "Here is the result:\n{\"clinical_terms\":[\"Fever\",\"fever\",\" \"]}\nLet me know.",
			wantTerms: []string{"Fever"},
			wantCodes: []types.CodeGuess{},
		},
		{
			name: "drops unknown category and empty code",
			reply: `{"codes":[
				{"code":"","category":"CPT","span":"x"},
				{"code":"123","category":"SNOMED","span":"y"},
				{"code":"93000","category":"cpt","span":"ECG"},
				{"code":"93000","category":"CPT","span":"ECG again"}]}`,
			wantTerms: []string{},
			wantCodes: []types.CodeGuess{{Code: "93000", Category: types.CategoryCPT, Span: "ECG"}},
		},
		{
			name:      "per-category lists",
			reply:     `{"ICD-10":["E11.9"],"HCPCS":["J1100"]}`,
			wantTerms: []string{},
			wantCodes: []types.CodeGuess{
				{Code: "E11.9", Category: types.CategoryICD10},
				{Code: "J1100", Category: types.CategoryHCPCS},
			},
		},
		{
			name:      "null lists",
			reply:     `{"clinical_terms":null,"codes":null}`,
			wantTerms: []string{},
			wantCodes: []types.CodeGuess{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReply(tt.reply)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTerms, got.ClinicalTerms)
			assert.Equal(t, tt.wantCodes, got.CodeGuesses)
			assert.NotNil(t, got.Diagnoses)
			assert.NotNil(t, got.Procedures)
			assert.NotNil(t, got.AnatomicalLocations)
		})
	}
}

func TestParseReply_Errors(t *testing.T) {
	for _, reply := range []string{
		"",
		"I could not find any codes.",
		`{"clinical_terms": "chest pain"}`,
		`{"codes": [1, 2]}`,
		`} nothing {`,
	} {
		_, err := ParseReply(reply)
		assert.Error(t, err, "reply %q", reply)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "abc", Truncate("abc", 0))
	assert.Equal(t, "héé", Truncate("hééllo", 3))
}

func TestRenderPrompt(t *testing.T) {
	p, err := RenderPrompt("Patient with chest pain. "+strings.Repeat("x", 100), 24)
	require.NoError(t, err)
	assert.Contains(t, p, "Patient with chest pain.")
	assert.NotContains(t, p, "xxx")
	assert.Contains(t, p, `"codes": [{"code"`)
	assert.Contains(t, p, "anatomical_locations")
}
