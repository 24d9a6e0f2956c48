package types

import "time"

// CatalogSource names one tabular file holding reference codes for a category.
type CatalogSource struct {
	Category Category `json:"category" yaml:"category" mapstructure:"category"`
	Path     string   `json:"path" yaml:"path" mapstructure:"path"`
}

// CatalogConfig holds settings for building code catalog indexes.
type CatalogConfig struct {
	// Version labels the catalog edition (e.g. "2024"); part of the cache key.
	Version string `json:"version" yaml:"version" mapstructure:"version"`

	// Sources lists one or more files per category.
	Sources []CatalogSource `json:"sources" yaml:"sources" mapstructure:"sources"`

	// CacheDir holds the sqlite index cache. Empty disables caching.
	CacheDir string `json:"cache_dir" yaml:"cache_dir" mapstructure:"cache_dir"`
}

// EmbeddingBackend identifies the embedding function implementation.
type EmbeddingBackend string

const (
	EmbeddingHashing EmbeddingBackend = "hashing"
	EmbeddingONNX    EmbeddingBackend = "onnx"
	EmbeddingHTTP    EmbeddingBackend = "http"
)

// EmbeddingConfig holds settings for the text embedding function.
type EmbeddingConfig struct {
	// Backend selects the embedder: hashing, onnx, or http.
	Backend EmbeddingBackend `json:"backend" yaml:"backend" mapstructure:"backend"`

	// Dimensions is the vector length produced (default 384).
	Dimensions int `json:"dimensions" yaml:"dimensions" mapstructure:"dimensions"`

	// ModelPath is the ONNX sentence-transformer file (onnx backend).
	ModelPath string `json:"model_path" yaml:"model_path" mapstructure:"model_path"`

	// TokenizerPath is the tokenizer.json matching ModelPath (onnx backend).
	TokenizerPath string `json:"tokenizer_path" yaml:"tokenizer_path" mapstructure:"tokenizer_path"`

	// LibraryPath points at the onnxruntime shared library (onnx backend).
	LibraryPath string `json:"library_path" yaml:"library_path" mapstructure:"library_path"`

	// MaxSeqLen caps tokens per input (default 256).
	MaxSeqLen int `json:"max_seq_len" yaml:"max_seq_len" mapstructure:"max_seq_len"`

	// BatchSize is the number of texts per embedding call (default 64).
	BatchSize int `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`

	// CacheSize bounds the phrase embedding LRU (default 4096).
	CacheSize int `json:"cache_size" yaml:"cache_size" mapstructure:"cache_size"`

	// Endpoint is the base URL of an OpenAI-compatible API (http backend).
	Endpoint string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`

	// Model names the embedding model; part of the cache key.
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`
}

// MatchingConfig holds settings for the semantic matcher.
type MatchingConfig struct {
	// SimilarityThreshold is the minimum cosine similarity kept (default 0.5).
	SimilarityThreshold float64 `json:"similarity_threshold" yaml:"similarity_threshold" mapstructure:"similarity_threshold"`

	// TopK is the number of neighbours examined per query (default 5).
	TopK int `json:"top_k" yaml:"top_k" mapstructure:"top_k"`

	// SectionFallback matches report sections when the generative extractor
	// produced nothing.
	SectionFallback bool `json:"section_fallback" yaml:"section_fallback" mapstructure:"section_fallback"`
}

// GenerativeProvider identifies the generative model vendor.
type GenerativeProvider string

const (
	ProviderGemini GenerativeProvider = "gemini"
	ProviderClaude GenerativeProvider = "claude"
)

// GenerativeConfig holds settings for the generative extractor.
type GenerativeConfig struct {
	// Enabled switches the generative extractor on or off for the whole run.
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	Provider GenerativeProvider `json:"provider" yaml:"provider" mapstructure:"provider"`

	// Model is the model identifier (e.g. "gemini-2.5-flash").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Timeout bounds a single model call (default 60s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// MaxRetries is the number of retries after a transient failure (default 1).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// MaxChars truncates document text sent to the model (default 30000).
	MaxChars int `json:"max_chars" yaml:"max_chars" mapstructure:"max_chars"`

	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`

	// RateLimit is the sustained request rate in calls per second (default 1).
	RateLimit float64 `json:"rate_limit" yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ResolveConfig holds settings for the batch driver.
type ResolveConfig struct {
	// Concurrency bounds documents resolved at once (default 4).
	Concurrency int `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`

	// MinReportLength drops split segments this short or shorter (default 200).
	MinReportLength int `json:"min_report_length" yaml:"min_report_length" mapstructure:"min_report_length"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// PipelineConfig groups all component configurations.
type PipelineConfig struct {
	Catalog    CatalogConfig    `json:"catalog" yaml:"catalog" mapstructure:"catalog"`
	Embedding  EmbeddingConfig  `json:"embedding" yaml:"embedding" mapstructure:"embedding"`
	Matching   MatchingConfig   `json:"matching" yaml:"matching" mapstructure:"matching"`
	Generative GenerativeConfig `json:"generative" yaml:"generative" mapstructure:"generative"`
	Resolve    ResolveConfig    `json:"resolve" yaml:"resolve" mapstructure:"resolve"`
	Log        LogConfig        `json:"log" yaml:"log" mapstructure:"log"`
}

// Defaults used by ApplyDefaults.
const (
	DefaultCatalogVersion      = "2024"
	DefaultCacheDir            = ".medcode/cache"
	DefaultDimensions          = 384
	DefaultMaxSeqLen           = 256
	DefaultBatchSize           = 64
	DefaultEmbeddingCacheSize  = 4096
	DefaultSimilarityThreshold = 0.5
	DefaultTopK                = 5
	DefaultGeminiModel         = "gemini-2.5-flash"
	DefaultClaudeModel         = "claude-sonnet-4-5-20250929"
	DefaultGenerativeTimeout   = 60 * time.Second
	DefaultMaxRetries          = 1
	DefaultMaxChars            = 30000
	DefaultTemperature         = 0.1
	DefaultRateLimit           = 1.0
	DefaultConcurrency         = 4
	DefaultMinReportLength     = 200
)

// DefaultConfig returns a configuration with every default applied and the
// generative extractor enabled.
func DefaultConfig() PipelineConfig {
	cfg := PipelineConfig{Generative: GenerativeConfig{Enabled: true, MaxRetries: DefaultMaxRetries}}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields. Booleans are left untouched.
func (c *PipelineConfig) ApplyDefaults() {
	if c.Catalog.Version == "" {
		c.Catalog.Version = DefaultCatalogVersion
	}
	if c.Embedding.Backend == "" {
		c.Embedding.Backend = EmbeddingHashing
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = DefaultDimensions
	}
	if c.Embedding.MaxSeqLen <= 0 {
		c.Embedding.MaxSeqLen = DefaultMaxSeqLen
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = DefaultBatchSize
	}
	if c.Embedding.CacheSize <= 0 {
		c.Embedding.CacheSize = DefaultEmbeddingCacheSize
	}
	if c.Matching.SimilarityThreshold <= 0 {
		c.Matching.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if c.Matching.TopK <= 0 {
		c.Matching.TopK = DefaultTopK
	}
	if c.Generative.Provider == "" {
		c.Generative.Provider = ProviderGemini
	}
	if c.Generative.Model == "" {
		if c.Generative.Provider == ProviderClaude {
			c.Generative.Model = DefaultClaudeModel
		} else {
			c.Generative.Model = DefaultGeminiModel
		}
	}
	if c.Generative.Timeout <= 0 {
		c.Generative.Timeout = DefaultGenerativeTimeout
	}
	if c.Generative.MaxRetries < 0 {
		c.Generative.MaxRetries = 0
	}
	if c.Generative.MaxChars <= 0 {
		c.Generative.MaxChars = DefaultMaxChars
	}
	if c.Generative.Temperature <= 0 {
		c.Generative.Temperature = DefaultTemperature
	}
	if c.Generative.RateLimit <= 0 {
		c.Generative.RateLimit = DefaultRateLimit
	}
	if c.Resolve.Concurrency <= 0 {
		c.Resolve.Concurrency = DefaultConcurrency
	}
	if c.Resolve.MinReportLength <= 0 {
		c.Resolve.MinReportLength = DefaultMinReportLength
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}
