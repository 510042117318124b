package embedding

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/vgrishin/docingest/internal/core/domain"
)

const previewLen = 80

// BatchItemError records one failed input without leaking its full content.
type BatchItemError struct {
	Index    int    `json:"index"`
	Preview  string `json:"preview"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
}

// BatchResult pairs per-index vectors (nil where the item failed) with the
// collected failures. A batch as a whole never fails.
type BatchResult struct {
	Vectors  [][]float32
	Failures []BatchItemError
}

func (r BatchResult) Succeeded() int {
	return len(r.Vectors) - len(r.Failures)
}

type BatchOptions struct {
	GroupSize   int
	Concurrency int
	// GroupsPerSecond throttles how fast successive groups are issued,
	// approximating the provider's rate limit.
	GroupsPerSecond float64
	OnProgress      func(done, total int)
}

func (o BatchOptions) normalize() BatchOptions {
	out := o
	if out.GroupSize <= 0 {
		out.GroupSize = 10
	}
	if out.Concurrency <= 0 {
		out.Concurrency = out.GroupSize
	}
	if out.GroupsPerSecond <= 0 {
		out.GroupsPerSecond = 2
	}
	return out
}

// EmbedBatch embeds texts in fixed-size groups with bounded concurrency
// inside each group and an inter-group throttle. Item failures are captured
// per index and never abort sibling items.
func (c *Client) EmbedBatch(ctx context.Context, texts []string, opts BatchOptions) BatchResult {
	opts = opts.normalize()

	result := BatchResult{
		Vectors: make([][]float32, len(texts)),
	}
	if len(texts) == 0 {
		return result
	}

	limiter := rate.NewLimiter(rate.Limit(opts.GroupsPerSecond), 1)
	failures := make([]*BatchItemError, len(texts))
	done := 0

	for groupStart := 0; groupStart < len(texts); groupStart += opts.GroupSize {
		groupEnd := groupStart + opts.GroupSize
		if groupEnd > len(texts) {
			groupEnd = len(texts)
		}

		if err := limiter.Wait(ctx); err != nil {
			for i := groupStart; i < len(texts); i++ {
				failures[i] = &BatchItemError{
					Index:   i,
					Preview: truncate(texts[i]),
					Error:   fmt.Sprintf("batch canceled: %v", err),
				}
			}
			break
		}

		g, groupCtx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Concurrency)
		for i := groupStart; i < groupEnd; i++ {
			g.Go(func() error {
				vector, err := c.Embed(groupCtx, texts[i])
				if err != nil {
					attempts := c.executor.MaxAttempts()
					if domainInvalid(err) {
						// Rejected before any provider call.
						attempts = 0
					}
					failures[i] = &BatchItemError{
						Index:    i,
						Preview:  truncate(texts[i]),
						Attempts: attempts,
						Error:    err.Error(),
					}
					return nil
				}
				result.Vectors[i] = vector
				return nil
			})
		}
		_ = g.Wait()

		done += groupEnd - groupStart
		if opts.OnProgress != nil {
			opts.OnProgress(done, len(texts))
		}
	}

	for _, f := range failures {
		if f != nil {
			result.Failures = append(result.Failures, *f)
		}
	}
	return result
}

func domainInvalid(err error) bool {
	return domain.IsKind(err, domain.ErrInvalidInput)
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= previewLen {
		return s
	}
	return string(runes[:previewLen]) + "..."
}
