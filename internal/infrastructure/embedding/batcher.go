package embedding

import (
	"context"

	"github.com/vgrishin/docingest/internal/core/ports"
)

// Batcher binds a client to fixed batch options and exposes the port shape
// the pipeline stages consume.
type Batcher struct {
	client *Client
	opts   BatchOptions
}

func NewBatcher(client *Client, opts BatchOptions) *Batcher {
	return &Batcher{client: client, opts: opts}
}

func (b *Batcher) Embed(ctx context.Context, text string) ([]float32, error) {
	return b.client.Embed(ctx, text)
}

func (b *Batcher) Dimensions() int {
	return b.client.Dimensions()
}

func (b *Batcher) EmbedBatch(ctx context.Context, texts []string) ([][]float32, []ports.BatchItemFailure) {
	result := b.client.EmbedBatch(ctx, texts, b.opts)

	failures := make([]ports.BatchItemFailure, 0, len(result.Failures))
	for _, f := range result.Failures {
		failures = append(failures, ports.BatchItemFailure{
			Index:    f.Index,
			Preview:  f.Preview,
			Attempts: f.Attempts,
			Error:    f.Error,
		})
	}
	return result.Vectors, failures
}
