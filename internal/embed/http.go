// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pdiddy/medcode/internal/httputil"
)

// HTTPConfig configures an OpenAI-compatible embeddings endpoint.
type HTTPConfig struct {
	// Endpoint is the API base URL, e.g. "https://api.openai.com/v1".
	Endpoint   string
	Model      string
	APIKey     string
	Dimensions int
	Timeout    time.Duration
}

// HTTP calls a remote /embeddings endpoint. Returned vectors are
// L2-normalised so cosine similarity reduces to a dot product.
type HTTP struct {
	cfg    HTTPConfig
	client *http.Client
	logger *logrus.Logger
}

// NewHTTP returns an embedder for cfg.
func NewHTTP(cfg HTTPConfig, logger *logrus.Logger) (*HTTP, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("http embedder: endpoint is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("http embedder: model is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("http embedder: dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &HTTP{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

func (h *HTTP) Dimensions() int { return h.cfg.Dimensions }

func (h *HTTP) ModelID() string { return "http:" + h.cfg.Model }

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed sends all texts in one request.
func (h *HTTP) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(embeddingRequest{Model: h.cfg.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshaling embedding request: %w", err)
	}

	url := strings.TrimRight(h.cfg.Endpoint, "/") + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.cfg.APIKey)
	}

	resp, err := httputil.DoWithRetry(ctx, h.client, req, 0, h.logger)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading embedding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding API returned status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parsing embedding response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedding API returned %d vectors for %d texts", len(parsed.Data), len(texts))
	}

	sort.SliceStable(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })
	out := make([][]float32, len(texts))
	for i, d := range parsed.Data {
		if len(d.Embedding) != h.cfg.Dimensions {
			return nil, fmt.Errorf("embedding API returned %d dimensions, configured %d", len(d.Embedding), h.cfg.Dimensions)
		}
		Normalize(d.Embedding)
		out[i] = d.Embedding
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
