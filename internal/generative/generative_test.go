// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package generative

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/medcode/pkg/types"
)

func init() {
	retryDelay = time.Millisecond
}

const okReply = `{"clinical_terms":["chest pain"],"diagnoses":["acute myocardial infarction"],` +
	`"codes":[{"code":"I21.4","category":"ICD-10","span":"NSTEMI"}]}`

// fakeBackend replays results in order; the last one repeats.
type fakeBackend struct {
	calls   int32
	results []func(ctx context.Context) (string, error)
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Generate(ctx context.Context, _ string) (string, error) {
	n := int(atomic.AddInt32(&f.calls, 1)) - 1
	if n >= len(f.results) {
		n = len(f.results) - 1
	}
	return f.results[n](ctx)
}

func reply(s string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return s, nil }
}

func status(code int) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		return "", &StatusError{Provider: "fake", Code: code, Body: "boom"}
	}
}

func hang(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func newTestExtractor(b Backend, opts Options) *Extractor {
	logger, _ := logtest.NewNullLogger()
	return NewExtractor(b, opts, logger)
}

func reasonOf(t *testing.T, err error) Reason {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	var uerr *UnavailableError
	require.True(t, errors.As(err, &uerr))
	return uerr.Reason
}

func TestExtract_Success(t *testing.T) {
	b := &fakeBackend{results: []func(context.Context) (string, error){reply(okReply)}}
	x := newTestExtractor(b, Options{MaxRetries: 1})

	got, err := x.Extract(context.Background(), "NSTEMI with chest pain")
	require.NoError(t, err)
	assert.Equal(t, []string{"chest pain"}, got.ClinicalTerms)
	assert.Equal(t, []types.CodeGuess{{Code: "I21.4", Category: types.CategoryICD10, Span: "NSTEMI"}}, got.CodeGuesses)
	assert.Equal(t, int32(1), b.calls)
	assert.Equal(t, "fake", x.Name())
}

func TestExtract_RetryPolicy(t *testing.T) {
	tests := []struct {
		name       string
		results    []func(context.Context) (string, error)
		maxRetries int
		wantReason Reason
		wantCalls  int32
	}{
		{"server error retried once", []func(context.Context) (string, error){status(503)}, 1, ReasonServerError, 2},
		{"no retry configured", []func(context.Context) (string, error){status(500)}, 0, ReasonServerError, 1},
		{"retries capped at one", []func(context.Context) (string, error){status(502)}, 5, ReasonServerError, 2},
		{"rate limited not retried", []func(context.Context) (string, error){status(429)}, 1, ReasonRateLimited, 1},
		{"rejected not retried", []func(context.Context) (string, error){status(401)}, 1, ReasonRejected, 1},
		{"unreachable not retried", []func(context.Context) (string, error){
			func(context.Context) (string, error) { return "", errors.New("connection refused") },
		}, 1, ReasonUnreachable, 1},
		{"malformed not retried", []func(context.Context) (string, error){reply("no json here")}, 1, ReasonMalformed, 1},
		{"timeout retried once", []func(context.Context) (string, error){hang}, 1, ReasonTimeout, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBackend{results: tt.results}
			x := newTestExtractor(b, Options{MaxRetries: tt.maxRetries, Timeout: 20 * time.Millisecond})

			_, err := x.Extract(context.Background(), "report")
			assert.Equal(t, tt.wantReason, reasonOf(t, err))
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&b.calls))
		})
	}
}

func TestExtract_RetrySucceeds(t *testing.T) {
	b := &fakeBackend{results: []func(context.Context) (string, error){status(503), reply(okReply)}}
	x := newTestExtractor(b, Options{MaxRetries: 1})

	got, err := x.Extract(context.Background(), "report")
	require.NoError(t, err)
	assert.Len(t, got.CodeGuesses, 1)
	assert.Equal(t, int32(2), b.calls)
}

func TestExtract_Canceled(t *testing.T) {
	b := &fakeBackend{results: []func(context.Context) (string, error){reply(okReply)}}
	x := newTestExtractor(b, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := x.Extract(ctx, "report")
	assert.Equal(t, ReasonCanceled, reasonOf(t, err))
	assert.Equal(t, int32(0), b.calls)
}

func TestExtract_CircuitOpens(t *testing.T) {
	old := breakerFailures
	breakerFailures = 2
	defer func() { breakerFailures = old }()

	logger, hook := logtest.NewNullLogger()
	b := &fakeBackend{results: []func(context.Context) (string, error){status(400)}}
	x := NewExtractor(b, Options{}, logger)

	for i := 0; i < 2; i++ {
		_, err := x.Extract(context.Background(), "report")
		assert.Equal(t, ReasonRejected, reasonOf(t, err))
	}
	_, err := x.Extract(context.Background(), "report")
	assert.Equal(t, ReasonCircuitOpen, reasonOf(t, err))
	assert.Equal(t, int32(2), b.calls)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "circuit breaker state changed", hook.LastEntry().Message)
}

func TestExtract_TruncatesInput(t *testing.T) {
	var seen string
	b := &fakeBackend{results: []func(context.Context) (string, error){reply(okReply)}}
	x := newTestExtractor(recordingBackend{inner: b, prompt: &seen}, Options{MaxChars: 5})

	_, err := x.Extract(context.Background(), "ABCDEFGHIJ")
	require.NoError(t, err)
	assert.Contains(t, seen, "ABCDE")
	assert.NotContains(t, seen, "ABCDEF")
}

type recordingBackend struct {
	inner  Backend
	prompt *string
}

func (r recordingBackend) Name() string { return r.inner.Name() }

func (r recordingBackend) Generate(ctx context.Context, prompt string) (string, error) {
	*r.prompt = prompt
	return r.inner.Generate(ctx, prompt)
}

func TestClaudeBackend(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var req claudeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-test", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "hello", req.Messages[0].Content)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":"{\"clinical_terms\":[]}"}]}`))
	}))
	defer ts.Close()

	old := claudeAPIURL
	claudeAPIURL = ts.URL
	defer func() { claudeAPIURL = old }()

	b := &ClaudeBackend{APIKey: "test-key", Model: "claude-test", Client: ts.Client()}
	got, err := b.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, `{"clinical_terms":[]}`, got)
}

func TestClaudeBackend_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("overloaded"))
	}))
	defer ts.Close()

	old := claudeAPIURL
	claudeAPIURL = ts.URL
	defer func() { claudeAPIURL = old }()

	b := &ClaudeBackend{APIKey: "k", Model: "m", Client: ts.Client()}
	_, err := b.Generate(context.Background(), "hello")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 503, se.Code)
	assert.Equal(t, ReasonServerError, classify(context.Background(), err).Reason)
}

func TestGeminiBackend(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))

		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 0.95, req.GenerationConfig.TopP)
		assert.Equal(t, 40, req.GenerationConfig.TopK)
		assert.Equal(t, 0.1, req.GenerationConfig.Temperature)

		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"procedures\":"},{"text":"[]}"}]},"finishReason":"STOP"}]}`))
	}))
	defer ts.Close()

	old := geminiAPIBase
	geminiAPIBase = ts.URL
	defer func() { geminiAPIBase = old }()

	b := &GeminiBackend{APIKey: "g-key", Model: "gemini-test", Temperature: 0.1, Client: ts.Client()}
	got, err := b.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, `{"procedures":[]}`, got)
}

func TestGeminiBackend_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"blocked", `{"promptFeedback":{"blockReason":"SAFETY"}}`},
		{"no candidates", `{"candidates":[]}`},
		{"not json", `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			old := geminiAPIBase
			geminiAPIBase = ts.URL
			defer func() { geminiAPIBase = old }()

			b := &GeminiBackend{APIKey: "k", Model: "m", Client: ts.Client()}
			_, err := b.Generate(context.Background(), "hello")
			assert.Equal(t, ReasonMalformed, classify(context.Background(), err).Reason)
		})
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := types.DefaultConfig().Generative

	_, err := NewFromConfig(cfg, nil, nil)
	assert.Error(t, err, "missing API key")

	cfg.APIKey = "k"
	x, err := NewFromConfig(cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "gemini", x.Name())

	cfg.Provider = types.ProviderClaude
	x, err = NewFromConfig(cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "claude", x.Name())

	cfg.Provider = "openai"
	_, err = NewFromConfig(cfg, nil, nil)
	assert.Error(t, err)
}
