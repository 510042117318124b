package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client turns a markdown table into a short natural-language summary. When
// the provider or its credentials are unavailable the original content is
// returned verbatim so ingestion never blocks on this enrichment.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

func New(baseURL, apiKey, model string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

func (c *Client) Summarize(ctx context.Context, markdownTable string) (string, error) {
	if strings.TrimSpace(markdownTable) == "" {
		return markdownTable, nil
	}
	if c.baseURL == "" || c.apiKey == "" {
		c.logger.Debug("summarizer unavailable, returning table verbatim")
		return markdownTable, nil
	}

	payload := map[string]any{
		"model":   c.model,
		"content": markdownTable,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return markdownTable, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/summarize", bytes.NewReader(body))
	if err != nil {
		return markdownTable, nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("summarizer call failed, returning table verbatim", "error", err)
		return markdownTable, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Warn("summarizer returned error status, returning table verbatim",
			"status", resp.Status, "body", strings.TrimSpace(string(raw)))
		return markdownTable, nil
	}

	var response struct {
		Summary string `json:"summary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return markdownTable, fmt.Errorf("decode summarize response: %w", err)
	}
	summary := strings.TrimSpace(response.Summary)
	if summary == "" {
		return markdownTable, nil
	}
	return summary, nil
}
