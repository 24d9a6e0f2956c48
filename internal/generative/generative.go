// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package generative asks a language model for clinical entities and
// candidate codes. Calls are rate limited, guarded by a circuit breaker and
// bounded by a per-attempt timeout. Every failure surfaces as an
// *UnavailableError so the pipeline can continue without it.
package generative

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/pdiddy/medcode/pkg/types"
)

// Backend sends a rendered prompt to a model and returns its raw text reply.
type Backend interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// retryDelay is the pause before the single retry. Tests override it.
var retryDelay = 500 * time.Millisecond

// Breaker thresholds. Five consecutive failures open the circuit for
// breakerTimeout.
var (
	breakerFailures = uint32(5)
	breakerTimeout  = 30 * time.Second
)

// Options tune an Extractor. Zero values take the package defaults.
type Options struct {
	Timeout    time.Duration
	MaxRetries int
	MaxChars   int
	RateLimit  float64
}

// Extractor is the generative extraction strategy. It is safe for
// concurrent use; the limiter and breaker are shared by all callers.
type Extractor struct {
	backend Backend
	opts    Options
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker
	logger  *logrus.Logger
}

// NewExtractor wraps backend. MaxRetries is capped at one.
func NewExtractor(backend Backend, opts Options, logger *logrus.Logger) *Extractor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = types.DefaultGenerativeTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.MaxRetries > 1 {
		opts.MaxRetries = 1
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = types.DefaultMaxChars
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "generative-" + backend.Name(),
		MaxRequests: 1,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	})

	return &Extractor{
		backend: backend,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		cb:      cb,
		logger:  logger,
	}
}

// NewFromConfig builds the backend named by cfg.Provider and wraps it.
func NewFromConfig(cfg types.GenerativeConfig, client *http.Client, logger *logrus.Logger) (*Extractor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("generative provider %s: API key is required", cfg.Provider)
	}
	if client == nil {
		client = &http.Client{}
	}

	var backend Backend
	switch cfg.Provider {
	case types.ProviderGemini, "":
		backend = &GeminiBackend{APIKey: cfg.APIKey, Model: cfg.Model, Temperature: cfg.Temperature, Client: client}
	case types.ProviderClaude:
		backend = &ClaudeBackend{APIKey: cfg.APIKey, Model: cfg.Model, Temperature: cfg.Temperature, Client: client}
	default:
		return nil, fmt.Errorf("unknown generative provider %q", cfg.Provider)
	}

	return NewExtractor(backend, Options{
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		MaxChars:   cfg.MaxChars,
		RateLimit:  cfg.RateLimit,
	}, logger), nil
}

// Name reports the backend in use.
func (x *Extractor) Name() string { return x.backend.Name() }

// Extract sends text to the model and parses its reply. A timeout or 5xx is
// retried once; anything else fails immediately. The returned error is
// always an *UnavailableError.
func (x *Extractor) Extract(ctx context.Context, text string) (*types.GenerativeResult, error) {
	prompt, err := RenderPrompt(text, x.opts.MaxChars)
	if err != nil {
		return nil, &UnavailableError{Reason: ReasonMalformed, Err: err}
	}

	var last *UnavailableError
	for attempt := 0; attempt <= x.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			x.logger.WithFields(logrus.Fields{
				"backend": x.backend.Name(),
				"reason":  last.Reason,
			}).Warn("generative call failed, retrying")
			select {
			case <-ctx.Done():
				return nil, &UnavailableError{Reason: ReasonCanceled, Err: ctx.Err()}
			case <-time.After(retryDelay):
			}
		}

		if err := x.limiter.Wait(ctx); err != nil {
			return nil, &UnavailableError{Reason: ReasonCanceled, Err: err}
		}

		reply, err := x.call(ctx, prompt)
		if err != nil {
			last = classify(ctx, err)
			if !last.transient() {
				return nil, last
			}
			continue
		}

		res, err := ParseReply(reply)
		if err != nil {
			return nil, &UnavailableError{Reason: ReasonMalformed, Err: err}
		}
		return res, nil
	}
	return nil, last
}

func (x *Extractor) call(ctx context.Context, prompt string) (string, error) {
	out, err := x.cb.Execute(func() (interface{}, error) {
		actx, cancel := context.WithTimeout(ctx, x.opts.Timeout)
		defer cancel()
		return x.backend.Generate(actx, prompt)
	})
	if err != nil {
		return "", err
	}
	reply, ok := out.(string)
	if !ok {
		return "", errors.New("backend returned a non-text reply")
	}
	return reply, nil
}
