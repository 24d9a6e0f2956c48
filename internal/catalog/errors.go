// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package catalog

import (
	"errors"
	"fmt"

	"github.com/pdiddy/medcode/pkg/types"
)

// ErrEmptyIndex is returned by queries against an index with no entries.
// It is a configuration error, not a per-document one.
var ErrEmptyIndex = errors.New("catalog index has no entries")

// BuildError reports a source record that cannot be indexed.
type BuildError struct {
	Category types.Category
	Version  string

	// Record is the zero-based position of the offending record, or -1 when
	// the problem is not tied to one record.
	Record int
	Code   string
	Reason string
}

func (e *BuildError) Error() string {
	if e.Record < 0 {
		return fmt.Sprintf("building %s catalog %s: %s", e.Category, e.Version, e.Reason)
	}
	return fmt.Sprintf("building %s catalog %s: record %d (code %q): %s",
		e.Category, e.Version, e.Record, e.Code, e.Reason)
}
