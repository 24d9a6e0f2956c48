// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/medcode/pkg/types"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadCSV_HeaderDetection(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []types.CatalogRecord
	}{
		{
			name:  "named columns in any order",
			input: "Long Description,ICD Code\nEssential hypertension,I10\n",
			want:  []types.CatalogRecord{{Code: "I10", Description: "Essential hypertension"}},
		},
		{
			name:  "fallback to first two columns",
			input: "a,b,c\n45378,Colonoscopy,x\n",
			want:  []types.CatalogRecord{{Code: "45378", Description: "Colonoscopy"}},
		},
		{
			name:  "quoted fields and blank rows",
			input: "code,description\n\"J45.909\",\"Unspecified asthma, uncomplicated\"\n,\n",
			want:  []types.CatalogRecord{{Code: "J45.909", Description: "Unspecified asthma, uncomplicated"}},
		},
		{
			name:  "empty input",
			input: "",
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadCSV(strings.NewReader(tt.input), ',')
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadRecords_Formats(t *testing.T) {
	csvPath := writeFile(t, "cpt.csv", "CPT Code,Description\n 99213 , Office visit \n")
	got, err := LoadRecords(csvPath, types.CategoryCPT)
	require.NoError(t, err)
	assert.Equal(t, []types.CatalogRecord{{Code: "99213", Description: "Office visit", Category: types.CategoryCPT}}, got)

	yamlPath := writeFile(t, "hcpcs.yaml", "- code: J3490\n  description: Unclassified drugs\n  category: hcpcs\n")
	got, err = LoadRecords(yamlPath, types.CategoryHCPCS)
	require.NoError(t, err)
	assert.Equal(t, []types.CatalogRecord{{Code: "J3490", Description: "Unclassified drugs", Category: types.CategoryHCPCS}}, got)

	jsonPath := writeFile(t, "icd.json", `[{"code":"I10","description":"Essential hypertension"}]`)
	got, err = LoadRecords(jsonPath, types.CategoryICD10)
	require.NoError(t, err)
	assert.Equal(t, types.CategoryICD10, got[0].Category)

	tsvPath := writeFile(t, "icd.tsv", "code\tdescription\nK57.90\tDiverticulosis\n")
	got, err = LoadRecords(tsvPath, types.CategoryICD10)
	require.NoError(t, err)
	assert.Equal(t, "K57.90", got[0].Code)
}

func TestLoadRecords_Errors(t *testing.T) {
	_, err := LoadRecords(filepath.Join(t.TempDir(), "missing.csv"), types.CategoryICD10)
	assert.Error(t, err)

	_, err = LoadRecords(writeFile(t, "codes.xlsx", "x"), types.CategoryICD10)
	assert.ErrorContains(t, err, "unsupported catalog source")

	_, err = LoadRecords(writeFile(t, "bad.yaml", "- code: X\n  description: y\n  category: snomed\n"), types.CategoryICD10)
	assert.ErrorContains(t, err, "unknown code category")
}
