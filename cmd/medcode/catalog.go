// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/medcode/internal/catalog"
	"github.com/pdiddy/medcode/internal/semantic"
	"github.com/pdiddy/medcode/pkg/types"
)

var errNoCache = errors.New("catalog cache is unavailable: set catalog.cache_dir to a writable directory")

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Build, inspect and query code catalog indexes",
	Long: `Catalog manages the embedded code catalogs used for semantic matching.
Indexes are cached in SQLite under catalog.cache_dir, keyed by category,
version, content hash and embedding model, so unchanged sources are not
re-embedded on later runs.`,
}

// --- build subcommand ---

var catalogBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Embed the configured catalog sources and cache the indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := commandApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		indexes, err := a.buildIndexes(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-7s %-8s %8s  %s\n", "CAT", "VERSION", "ENTRIES", "MODEL")
		for _, idx := range indexes {
			fmt.Fprintf(out, "%-7s %-8s %8d  %s\n", idx.Category(), idx.Version(), idx.Len(), idx.ModelID())
		}
		return nil
	},
}

// --- list subcommand ---

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached catalog snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := commandApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		if a.store == nil {
			return errNoCache
		}

		snaps, err := a.store.Snapshots(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(snaps) == 0 {
			fmt.Fprintln(out, "No cached snapshots.")
			return nil
		}
		for _, s := range snaps {
			fmt.Fprintf(out, "%-7s %-8s %8d  %-28s %s  %s\n",
				s.Category, s.Version, s.Entries, s.ModelID, shortHash(s.ContentHash),
				s.CreatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

// --- prune subcommand ---

var catalogPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete cached snapshots that no configured source produces",
	Long: `Prune removes snapshots whose key no longer matches the configured
sources, version and embedding model, such as builds from an edited
catalog file or a previous model.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := commandApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		if a.store == nil {
			return errNoCache
		}

		specs, err := a.specs()
		if err != nil {
			return err
		}
		live := make(map[string]bool, len(specs))
		for _, s := range specs {
			live[catalog.CacheKey(s, a.embedder.ModelID())] = true
		}

		snaps, err := a.store.Snapshots(cmd.Context())
		if err != nil {
			return err
		}
		removed := 0
		for _, s := range snaps {
			if live[s.Key] {
				continue
			}
			if err := a.store.Delete(cmd.Context(), s.Key); err != nil {
				return err
			}
			removed++
			fmt.Fprintf(cmd.OutOrStdout(), "removed: %s %s %s\n", s.Category, s.Version, shortHash(s.ContentHash))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d snapshot(s) removed\n", removed)
		return nil
	},
}

// --- query subcommand ---

var catalogQueryCmd = &cobra.Command{
	Use:   "query <category> <text...>",
	Short: "Show the nearest catalog entries for a phrase",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		category, err := types.ParseCategory(args[0])
		if err != nil {
			return err
		}
		text := strings.Join(args[1:], " ")
		topK, _ := cmd.Flags().GetInt("top")

		a, err := commandApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		indexes, err := a.buildIndexes(cmd.Context())
		if err != nil {
			return err
		}
		m, err := semantic.NewMatcher(a.embedder, indexes, semantic.Options{
			TopK:      a.cfg.Matching.TopK,
			Threshold: a.cfg.Matching.SimilarityThreshold,
		}, a.logger)
		if err != nil {
			return err
		}
		if !m.HasCatalog(category) {
			return fmt.Errorf("no %s catalog configured", category)
		}
		var idx *catalog.Index
		for _, x := range indexes {
			if x.Category() == category {
				idx = x
			}
		}

		hits, err := idx.Query(cmd.Context(), a.embedder, text, topK, 0)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "threshold %.2f (* marks a match)\n", m.Threshold())
		for _, h := range hits {
			mark := " "
			if h.Similarity >= m.Threshold() {
				mark = "*"
			}
			fmt.Fprintf(out, "%s %.3f  %-10s %s\n", mark, h.Similarity, h.Entry.Code, h.Entry.Description)
		}
		return nil
	},
}

func commandApp(cmd *cobra.Command) (*app, error) {
	cfg, err := commandConfig(cmd)
	if err != nil {
		return nil, err
	}
	return newApp(cfg, logger)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func init() {
	for _, c := range []*cobra.Command{catalogBuildCmd, catalogListCmd, catalogPruneCmd, catalogQueryCmd} {
		c.Flags().StringArray("catalog", nil, "catalog source as category=path (repeatable; overrides catalog.sources)")
		catalogCmd.AddCommand(c)
	}
	catalogQueryCmd.Flags().Int("top", 10, "number of neighbours to show")

	rootCmd.AddCommand(catalogCmd)
}
