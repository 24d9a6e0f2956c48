// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics records pipeline counters and latencies in a private
// Prometheus registry. A batch run can dump them to a node-exporter
// textfile. All methods are no-ops on a nil *Recorder.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pdiddy/medcode/pkg/types"
)

const namespace = "medcode"

// Document statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFailed   = "failed"
)

var durationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60}

// Recorder holds the pipeline collectors.
type Recorder struct {
	registry *prometheus.Registry

	documents          *prometheus.CounterVec
	generativeFailures *prometheus.CounterVec
	codes              *prometheus.CounterVec
	stageDuration      *prometheus.HistogramVec
	catalogBuilds      *prometheus.CounterVec
}

// New registers the collectors in a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_total",
			Help:      "Documents processed, by outcome.",
		}, []string{"status"}),
		generativeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generative_failures_total",
			Help:      "Generative extractor failures, by reason.",
		}, []string{"reason"}),
		codes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "codes_resolved_total",
			Help:      "Resolved codes emitted, by category and supporting strategy.",
		}, []string{"category", "strategy"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent per pipeline stage.",
			Buckets:   durationBuckets,
		}, []string{"stage"}),
		catalogBuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_builds_total",
			Help:      "Catalog indexes prepared, by category and origin (built or cached).",
		}, []string{"category", "origin"}),
	}
	r.registry.MustRegister(r.documents, r.generativeFailures, r.codes, r.stageDuration, r.catalogBuilds)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Document counts one processed document.
func (r *Recorder) Document(status string) {
	if r == nil {
		return
	}
	r.documents.WithLabelValues(status).Inc()
}

// GenerativeFailure counts one generative failure.
func (r *Recorder) GenerativeFailure(reason string) {
	if r == nil {
		return
	}
	r.generativeFailures.WithLabelValues(reason).Inc()
}

// Stage records the duration of one pipeline stage.
func (r *Recorder) Stage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Result counts every code in res once per supporting strategy.
func (r *Recorder) Result(res *types.ExtractionResult) {
	if r == nil || res == nil {
		return
	}
	for _, c := range types.AllCategories {
		for _, rc := range res.Codes(c) {
			for _, s := range rc.Strategies {
				r.codes.WithLabelValues(string(c), string(s)).Inc()
			}
		}
	}
}

// CatalogBuild counts one prepared catalog index.
func (r *Recorder) CatalogBuild(category types.Category, cached bool) {
	if r == nil {
		return
	}
	origin := "built"
	if cached {
		origin = "cached"
	}
	r.catalogBuilds.WithLabelValues(string(category), origin).Inc()
}

// WriteTextfile writes the current values in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
