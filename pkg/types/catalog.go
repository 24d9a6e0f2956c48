// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// CatalogRecord is one row of a reference code source, before embedding.
type CatalogRecord struct {
	Code        string   `json:"code" yaml:"code"`
	Description string   `json:"description" yaml:"description"`
	Category    Category `json:"category,omitempty" yaml:"category,omitempty"`
}

// CatalogEntry is an indexed reference code. Entries are immutable once an
// index has been built from them; Code is unique within (Category, Version).
type CatalogEntry struct {
	Code        string    `json:"code" yaml:"code"`
	Description string    `json:"description" yaml:"description"`
	Category    Category  `json:"category" yaml:"category"`
	Embedding   []float32 `json:"-" yaml:"-"`
	Version     string    `json:"version" yaml:"version"`
}

// SearchText is the text embedded for the entry: the code followed by its
// description, so that queries naming either can land on it.
func (e CatalogEntry) SearchText() string {
	return e.Code + " " + e.Description
}
