// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/medcode/internal/metrics"
	"github.com/pdiddy/medcode/pkg/types"
)

// BatchSummary holds counts from a batch run.
type BatchSummary struct {
	Resolved int
	Degraded int
	Failed   int
}

// Total returns the number of documents processed.
func (s BatchSummary) Total() int {
	return s.Resolved + s.Degraded + s.Failed
}

// HasFailures reports whether any document failed.
func (s BatchSummary) HasFailures() bool {
	return s.Failed > 0
}

// ResolveBatch resolves docs with at most concurrency documents in flight.
// A failing document is recorded in its outcome and never stops the rest.
// Outcomes are returned in input order.
func (r *Resolver) ResolveBatch(ctx context.Context, docs []types.Document, concurrency int) ([]types.DocumentOutcome, BatchSummary) {
	if concurrency <= 0 {
		concurrency = types.DefaultConcurrency
	}
	outcomes := make([]types.DocumentOutcome, len(docs))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			res, err := r.Resolve(ctx, doc)
			outcomes[i] = types.DocumentOutcome{DocumentID: doc.ID, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	var summary BatchSummary
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			summary.Failed++
			r.metrics.Document(metrics.StatusFailed)
			r.logger.WithField("document_id", o.DocumentID).WithError(o.Err).Error("document failed")
		case o.Result.Degraded:
			summary.Degraded++
			r.metrics.Document(metrics.StatusDegraded)
		default:
			summary.Resolved++
			r.metrics.Document(metrics.StatusOK)
		}
	}
	return outcomes, summary
}

var reportSeparator = regexp.MustCompile(`\n{3,}`)

// SplitReports splits text holding several reports on runs of two or more
// blank lines and keeps segments longer than minLen characters. When no
// segment qualifies the whole trimmed text is returned as one report. Blank
// text yields no reports.
func SplitReports(text string, minLen int) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	whole := strings.TrimSpace(text)
	if whole == "" {
		return nil
	}

	var reports []string
	for _, seg := range reportSeparator.Split(text, -1) {
		seg = strings.TrimSpace(seg)
		if len([]rune(seg)) > minLen {
			reports = append(reports, seg)
		}
	}
	if len(reports) == 0 {
		return []string{whole}
	}
	return reports
}

// SplitDocument applies SplitReports to doc. Each report of a multi-report
// document gets the ID "<id>#<n>".
func SplitDocument(doc types.Document, minLen int) []types.Document {
	reports := SplitReports(doc.Text, minLen)
	if len(reports) == 1 {
		doc.Text = reports[0]
		return []types.Document{doc}
	}
	docs := make([]types.Document, len(reports))
	for i, text := range reports {
		docs[i] = types.Document{ID: fmt.Sprintf("%s#%d", doc.ID, i+1), Source: doc.Source, Text: text}
	}
	return docs
}
