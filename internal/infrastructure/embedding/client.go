package embedding

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/vgrishin/docingest/internal/core/domain"
	"github.com/vgrishin/docingest/internal/infrastructure/resilience"
)

// Client calls the external embedding provider. Transient failures are
// retried with linear backoff (delay = base * attempt); empty input and
// missing credentials fail immediately without a retry.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	dims       int
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	RequestTimeout time.Duration
	MaxAttempts    int
	BackoffBase    time.Duration
}

func New(baseURL, apiKey, model string, dims int, opts Options) *Client {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	backoffBase := opts.BackoffBase
	if backoffBase <= 0 {
		backoffBase = 500 * time.Millisecond
	}

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    maxAttempts,
		RetryInitialBackoff: backoffBase,
		RetryMaxBackoff:     backoffBase * time.Duration(maxAttempts),
		RetryStrategy:       resilience.BackoffLinear,
		BreakerEnabled:      false,
	})

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		dims:       dims,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

func (c *Client) Dimensions() int {
	return c.dims
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "embed", errors.New("empty text"))
	}
	if c.apiKey == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "embed", errors.New("missing embedding api key"))
	}

	request := map[string]any{
		"model": c.model,
		"input": text,
	}

	var vector []float32
	err := c.executor.Execute(ctx, "embedding.embed", func(callCtx context.Context) error {
		var response struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := c.postJSON(callCtx, "/v1/embeddings", request, &response, "embed"); err != nil {
			return err
		}
		vector = response.Embedding
		return nil
	}, classifyProviderError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("embed", err)
	}

	if err := c.Validate(vector); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "embed", err)
	}
	return vector, nil
}
