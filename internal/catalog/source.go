// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package catalog

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/medcode/pkg/types"
)

// LoadRecords reads catalog records for category from a .csv, .tsv, .yaml,
// .yml or .json file. Records are returned in file order with surrounding
// whitespace trimmed. Records without a category take the given one.
func LoadRecords(path string, category types.Category) ([]types.CatalogRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog source: %w", err)
	}
	defer f.Close()

	var records []types.CatalogRecord
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		records, err = ReadCSV(f, ',')
	case ".tsv":
		records, err = ReadCSV(f, '\t')
	case ".yaml", ".yml":
		err = yaml.NewDecoder(f).Decode(&records)
		if errors.Is(err, io.EOF) {
			err = nil
		}
	case ".json":
		err = json.NewDecoder(f).Decode(&records)
	default:
		return nil, fmt.Errorf("unsupported catalog source %s: use .csv, .tsv, .yaml or .json", path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading catalog source %s: %w", path, err)
	}

	for i := range records {
		records[i].Code = strings.TrimSpace(records[i].Code)
		records[i].Description = strings.TrimSpace(records[i].Description)
		if records[i].Category == "" {
			records[i].Category = category
			continue
		}
		c, err := types.ParseCategory(string(records[i].Category))
		if err != nil {
			return nil, fmt.Errorf("reading catalog source %s: record %d: %w", path, i, err)
		}
		records[i].Category = c
	}
	return records, nil
}

// ReadCSV reads a delimited table whose first row is a header. The code
// column is the first header mentioning code, icd, cpt or hcpcs; the
// description column is the first mentioning description, desc or name.
// Without both, the first two columns are used.
func ReadCSV(r io.Reader, delim rune) ([]types.CatalogRecord, error) {
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	codeCol, descCol := detectColumns(header)

	var records []types.CatalogRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if isBlank(row) {
			continue
		}
		rec := types.CatalogRecord{}
		if codeCol < len(row) {
			rec.Code = row[codeCol]
		}
		if descCol < len(row) {
			rec.Description = row[descCol]
		}
		records = append(records, rec)
	}
	return records, nil
}

func detectColumns(header []string) (codeCol, descCol int) {
	codeCol, descCol = -1, -1
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		if descCol < 0 && (strings.Contains(h, "desc") || strings.Contains(h, "name")) {
			descCol = i
			continue
		}
		if codeCol < 0 && (strings.Contains(h, "code") || strings.Contains(h, "icd") ||
			strings.Contains(h, "cpt") || strings.Contains(h, "hcpcs")) {
			codeCol = i
		}
	}
	if codeCol < 0 || descCol < 0 {
		codeCol, descCol = 0, 1
		if len(header) < 2 {
			descCol = 0
		}
	}
	return codeCol, descCol
}

func isBlank(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
