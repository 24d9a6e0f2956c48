// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/medcode/pkg/types"
)

const redacted = "<redacted>"

// setDefaults registers every config key so that MEDCODE_* environment
// variables reach Unmarshal even when no config file sets the key.
func setDefaults(v *viper.Viper) {
	d := types.DefaultConfig()

	v.SetDefault("catalog.version", d.Catalog.Version)
	v.SetDefault("catalog.sources", []types.CatalogSource{})
	v.SetDefault("catalog.cache_dir", types.DefaultCacheDir)

	v.SetDefault("embedding.backend", string(d.Embedding.Backend))
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)
	v.SetDefault("embedding.model_path", "")
	v.SetDefault("embedding.tokenizer_path", "")
	v.SetDefault("embedding.library_path", "")
	v.SetDefault("embedding.max_seq_len", d.Embedding.MaxSeqLen)
	v.SetDefault("embedding.batch_size", d.Embedding.BatchSize)
	v.SetDefault("embedding.cache_size", d.Embedding.CacheSize)
	v.SetDefault("embedding.endpoint", "")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.api_key", "")

	v.SetDefault("matching.similarity_threshold", d.Matching.SimilarityThreshold)
	v.SetDefault("matching.top_k", d.Matching.TopK)
	v.SetDefault("matching.section_fallback", d.Matching.SectionFallback)

	v.SetDefault("generative.enabled", d.Generative.Enabled)
	v.SetDefault("generative.provider", string(d.Generative.Provider))
	// Left empty so ApplyDefaults picks the model matching the provider.
	v.SetDefault("generative.model", "")
	v.SetDefault("generative.api_key", "")
	v.SetDefault("generative.timeout", d.Generative.Timeout)
	v.SetDefault("generative.max_retries", d.Generative.MaxRetries)
	v.SetDefault("generative.max_chars", d.Generative.MaxChars)
	v.SetDefault("generative.temperature", d.Generative.Temperature)
	v.SetDefault("generative.rate_limit", d.Generative.RateLimit)

	v.SetDefault("resolve.concurrency", d.Resolve.Concurrency)
	v.SetDefault("resolve.min_report_length", d.Resolve.MinReportLength)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// loadConfig decodes the merged flag, env, file and default values.
func loadConfig(v *viper.Viper) (types.PipelineConfig, error) {
	var cfg types.PipelineConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}
	for i, src := range cfg.Catalog.Sources {
		c, err := types.ParseCategory(string(src.Category))
		if err != nil {
			return cfg, fmt.Errorf("catalog source %d: %w", i, err)
		}
		cfg.Catalog.Sources[i].Category = c
	}
	if cfg.Generative.Provider != types.ProviderGemini && cfg.Generative.Provider != types.ProviderClaude {
		return cfg, fmt.Errorf("unknown generative provider %q: use gemini or claude", cfg.Generative.Provider)
	}
	if t := cfg.Matching.SimilarityThreshold; t <= 0 || t > 1 {
		return cfg, fmt.Errorf("matching.similarity_threshold must be in (0, 1], got %g", t)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// configureLogger applies log.level and log.format to l and tags every
// entry with a per-process run ID.
func configureLogger(l *logrus.Logger) error {
	level, err := logrus.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	l.SetLevel(level)

	switch strings.ToLower(viper.GetString("log.format")) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid log format %q: use text or json", viper.GetString("log.format"))
	}

	if !hasRunIDHook(l) {
		l.AddHook(runIDHook{id: uuid.NewString()})
	}
	return nil
}

// runIDHook stamps entries with the run they belong to, so interleaved
// batch logs can be told apart.
type runIDHook struct {
	id string
}

func (h runIDHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h runIDHook) Fire(e *logrus.Entry) error {
	if _, ok := e.Data["run_id"]; !ok {
		e.Data["run_id"] = h.id
	}
	return nil
}

func hasRunIDHook(l *logrus.Logger) bool {
	for _, hooks := range l.Hooks {
		for _, h := range hooks {
			if _, ok := h.(runIDHook); ok {
				return true
			}
		}
	}
	return false
}

// parseCatalogFlags turns "category=path" values into sources.
func parseCatalogFlags(values []string) ([]types.CatalogSource, error) {
	var sources []types.CatalogSource
	for _, v := range values {
		name, path, ok := strings.Cut(v, "=")
		if !ok || strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("invalid --catalog %q: want category=path", v)
		}
		c, err := types.ParseCategory(strings.TrimSpace(name))
		if err != nil {
			return nil, fmt.Errorf("invalid --catalog %q: %w", v, err)
		}
		sources = append(sources, types.CatalogSource{Category: c, Path: strings.TrimSpace(path)})
	}
	return sources, nil
}

// redact blanks API keys before a config is printed.
func redact(cfg types.PipelineConfig) types.PipelineConfig {
	if cfg.Generative.APIKey != "" {
		cfg.Generative.APIKey = redacted
	}
	if cfg.Embedding.APIKey != "" {
		cfg.Embedding.APIKey = redacted
	}
	return cfg
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the merged configuration as YAML",
	Long: `Show prints the configuration after defaults, the config file and
MEDCODE_* environment variables are merged. API keys are redacted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(redact(cfg)); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		return enc.Close()
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
