// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert loads clinical documents as plain text. Text files are
// read directly, "-" reads stdin, and PDFs go through a Converter.
package convert

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/pdiddy/medcode/pkg/types"
)

// StdinPath names standard input on the command line.
const StdinPath = "-"

// Converter turns a binary document into plain text.
type Converter interface {
	Convert(ctx context.Context, path string) (string, error)
}

// BatchResult holds the outcome of a load run.
type BatchResult struct {
	Loaded  int
	Skipped int
	Failed  int
}

// Total returns the number of inputs seen.
func (r BatchResult) Total() int {
	return r.Loaded + r.Skipped + r.Failed
}

// HasFailures reports whether any input could not be read.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// Options configure LoadDocuments. A nil PDF converter makes PDF inputs
// fail; a nil Stdin reads os.Stdin.
type Options struct {
	PDF   Converter
	Stdin io.Reader
}

// textExts are picked up when a directory is given.
var textExts = map[string]bool{".txt": true, ".text": true, ".md": true, ".pdf": true}

// LoadDocuments reads every path in order, expanding directories one level
// deep. Per-input status lines go to w. Failed and empty inputs are counted
// and skipped.
func LoadDocuments(ctx context.Context, paths []string, opts Options, w io.Writer) ([]types.Document, BatchResult) {
	var (
		docs   []types.Document
		result BatchResult
	)
	for _, p := range expand(paths, w, &result) {
		if err := ctx.Err(); err != nil {
			fmt.Fprintf(w, "failed:  %s (%v)\n", p, err)
			result.Failed++
			continue
		}
		doc, err := loadOne(ctx, p, opts)
		if err != nil {
			fmt.Fprintf(w, "failed:  %s (%v)\n", p, err)
			result.Failed++
			continue
		}
		if strings.TrimSpace(doc.Text) == "" {
			fmt.Fprintf(w, "skipped: %s (no text)\n", p)
			result.Skipped++
			continue
		}
		docs = append(docs, doc)
		result.Loaded++
	}
	return docs, result
}

func expand(paths []string, w io.Writer, result *BatchResult) []string {
	var out []string
	for _, p := range paths {
		if p == StdinPath {
			out = append(out, p)
			continue
		}
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			out = append(out, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			fmt.Fprintf(w, "failed:  %s (%v)\n", p, err)
			result.Failed++
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !textExts[strings.ToLower(filepath.Ext(e.Name()))] {
				continue
			}
			out = append(out, filepath.Join(p, e.Name()))
		}
	}
	return out
}

func loadOne(ctx context.Context, path string, opts Options) (types.Document, error) {
	if path == StdinPath {
		in := opts.Stdin
		if in == nil {
			in = os.Stdin
		}
		data, err := io.ReadAll(in)
		if err != nil {
			return types.Document{}, fmt.Errorf("reading stdin: %w", err)
		}
		return types.Document{ID: "stdin-" + uuid.NewString()[:8], Source: StdinPath, Text: clean(string(data))}, nil
	}

	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		if opts.PDF == nil {
			return types.Document{}, fmt.Errorf("PDF input needs a container runtime with the pdftotext image")
		}
		text, err := opts.PDF.Convert(ctx, path)
		if err != nil {
			return types.Document{}, err
		}
		return types.Document{ID: id, Source: path, Text: clean(text)}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return types.Document{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return types.Document{ID: id, Source: path, Text: clean(string(data))}, nil
}

// clean replaces invalid UTF-8 and normalises line endings and page
// breaks. Offsets of pattern hits refer to the cleaned text.
func clean(s string) string {
	s = strings.ToValidUTF8(s, "�")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\f", "\n")
}
