// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/medcode/internal/container"
	"github.com/pdiddy/medcode/internal/convert"
	"github.com/pdiddy/medcode/internal/format"
	"github.com/pdiddy/medcode/internal/pipeline"
	"github.com/pdiddy/medcode/pkg/types"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [files or directories...]",
	Short: "Extract clinical entities and billing codes from reports",
	Long: `Resolve reads clinical reports and prints the clinical terms, anatomical
locations, diagnoses, procedures and ICD-10, CPT and HCPCS codes found in each.

Inputs may be text files, PDFs (converted with pdftotext in a container),
directories (one level deep) or "-" for stdin. With no arguments stdin is read.
One document prints as an object; several print as an array.

The command exits non-zero if any document failed. A document whose
generative step failed is still reported, marked degraded in --detail output.`,
	RunE: runResolve,
}

func init() {
	f := resolveCmd.Flags()
	f.StringArray("catalog", nil, "catalog source as category=path (repeatable; overrides catalog.sources)")
	f.StringP("format", "f", "json", "output format: json or yaml")
	f.Bool("detail", false, "include descriptions, confidences, strategies and degraded status")
	f.StringP("output", "o", "", "write results to this file instead of stdout")
	f.Bool("summary", false, "print a per-document summary to stderr")
	f.String("metrics-file", "", "write Prometheus metrics to this textfile after the run")
	f.Bool("no-generative", false, "skip the generative model for this run")
	f.Bool("section-fallback", false, "match report sections when the generative model yields nothing")
	f.Int("concurrency", 0, "documents resolved at once (default resolve.concurrency)")
	f.Bool("split", false, "split inputs holding several reports separated by blank lines")
	f.String("pdf-image", convert.DefaultPDFImage, "container image running pdftotext")

	viper.BindPFlag("resolve.concurrency", f.Lookup("concurrency"))
	viper.BindPFlag("matching.section_fallback", f.Lookup("section-fallback"))

	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outFormat, err := format.ParseFormat(mustString(cmd, "format"))
	if err != nil {
		return err
	}
	cfg, err := commandConfig(cmd)
	if err != nil {
		return err
	}
	if noGen, _ := cmd.Flags().GetBool("no-generative"); noGen {
		cfg.Generative.Enabled = false
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	resolver, err := a.resolver(ctx)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		args = []string{convert.StdinPath}
	}
	docs, load := convert.LoadDocuments(ctx, args, convert.Options{
		PDF:   pdfConverter(args, mustString(cmd, "pdf-image")),
		Stdin: cmd.InOrStdin(),
	}, cmd.ErrOrStderr())
	if len(docs) == 0 {
		return fmt.Errorf("no readable documents (%d failed, %d skipped)", load.Failed, load.Skipped)
	}

	if split, _ := cmd.Flags().GetBool("split"); split {
		var parts []types.Document
		for _, d := range docs {
			parts = append(parts, pipeline.SplitDocument(d, cfg.Resolve.MinReportLength)...)
		}
		docs = parts
	}

	outcomes, summary := resolver.ResolveBatch(ctx, docs, cfg.Resolve.Concurrency)
	logger.WithField("resolved", summary.Resolved).
		WithField("degraded", summary.Degraded).
		WithField("failed", summary.Failed).
		Info("batch complete")

	if err := writeResults(cmd, outcomes, outFormat); err != nil {
		return err
	}
	if s, _ := cmd.Flags().GetBool("summary"); s {
		format.WriteSummary(cmd.ErrOrStderr(), outcomes)
	}
	if path := mustString(cmd, "metrics-file"); path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			return err
		}
	}

	if summary.HasFailures() || load.HasFailures() {
		return fmt.Errorf("%d of %d documents failed", summary.Failed+load.Failed, summary.Total()+load.Failed)
	}
	return nil
}

func writeResults(cmd *cobra.Command, outcomes []types.DocumentOutcome, f format.Format) error {
	var w io.Writer = cmd.OutOrStdout()
	if path := mustString(cmd, "output"); path != "" {
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer file.Close()
		w = file
	}

	detail, _ := cmd.Flags().GetBool("detail")
	if detail {
		out := make([]format.DetailedOutput, 0, len(outcomes))
		for _, o := range outcomes {
			if o.Err == nil {
				out = append(out, format.Detail(o.Result))
			}
		}
		return format.Write(w, out, f)
	}
	out := make([]format.Output, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err == nil {
			out = append(out, format.Project(o.Result))
		}
	}
	return format.Write(w, out, f)
}

// pdfConverter returns a pdftotext converter when some input may be a PDF
// and a container runtime with the image is present. Otherwise PDF inputs
// fail individually.
func pdfConverter(paths []string, image string) convert.Converter {
	if !mayHavePDF(paths) {
		return nil
	}
	rt, err := container.DetectRuntime()
	if err != nil {
		logger.WithError(err).Warn("PDF inputs will fail")
		return nil
	}
	c, err := convert.NewPdftotextConverter(rt, image)
	if err != nil {
		logger.WithError(err).Warn("PDF inputs will fail")
		return nil
	}
	return c
}

func mayHavePDF(paths []string) bool {
	for _, p := range paths {
		if p == convert.StdinPath {
			continue
		}
		info, err := os.Stat(p)
		if err == nil && info.IsDir() {
			return true
		}
		if isPDF(p) {
			return true
		}
	}
	return false
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// commandConfig loads the merged config and applies --catalog.
func commandConfig(cmd *cobra.Command) (types.PipelineConfig, error) {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return cfg, err
	}
	if cmd.Flags().Lookup("catalog") == nil {
		return cfg, nil
	}
	values, _ := cmd.Flags().GetStringArray("catalog")
	if len(values) == 0 {
		return cfg, nil
	}
	sources, err := parseCatalogFlags(values)
	if err != nil {
		return cfg, err
	}
	cfg.Catalog.Sources = sources
	return cfg, nil
}

func mustString(cmd *cobra.Command, name string) string {
	s, _ := cmd.Flags().GetString(name)
	return s
}
