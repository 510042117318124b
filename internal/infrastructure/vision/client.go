package vision

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/vgrishin/docingest/internal/core/domain"
	"github.com/vgrishin/docingest/internal/infrastructure/resilience"
)

// Client calls the external vision-description provider: image in,
// descriptive text out.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, apiKey, model string, executor *resilience.Executor) *Client {
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

func (c *Client) Describe(ctx context.Context, req domain.VisionRequest) (string, error) {
	if strings.TrimSpace(req.ImagePayload) == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "describe", errors.New("empty image payload"))
	}
	if c.apiKey == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "describe", errors.New("missing vision api key"))
	}

	payload := map[string]any{
		"model":        c.model,
		"image":        req.ImagePayload,
		"element_type": req.ElementType,
		"context":      req.Context,
	}
	if req.PageNumber > 0 {
		payload["page_number"] = req.PageNumber
	}

	var description string
	err := c.executor.Execute(ctx, "vision.describe", func(callCtx context.Context) error {
		var response struct {
			Description string `json:"description"`
		}
		if err := c.postJSON(callCtx, "/v1/describe", payload, &response, "describe"); err != nil {
			return err
		}
		description = strings.TrimSpace(response.Description)
		return nil
	}, classifyProviderError)
	if err != nil {
		return "", wrapTemporaryIfNeeded("describe", err)
	}
	return description, nil
}
