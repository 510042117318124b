package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/vgrishin/docingest/internal/core/domain"
)

func TestProcessJobPersistsTextVisualAndTableChunks(t *testing.T) {
	docs := newDocRepoFake()
	docs.docs["d1"] = &domain.Document{ID: "d1", Category: "reports", Status: domain.DocProcessing}
	chunks := newChunkRepoFake()
	visualJobs := newVisualJobRepoFake()
	extractor := &extractorFake{extraction: domain.Extraction{
		Text: "body text",
		Visuals: []domain.VisualElement{
			{ChunkIndex: 0, ImagePayload: "aW1n", ElementType: "diagram", PageNumber: 3},
		},
		Tables: []string{"| a | b |"},
	}}
	chunker := &chunkerFake{segments: []domain.Segment{
		{Index: 0, Content: "body text", SpanStart: 0, SpanEnd: 9},
	}}

	runner := NewBatchRunner(docs, chunks, visualJobs, extractor, chunker, &summarizerFake{summary: "table about a and b"}, testLogger(), 25)
	job := &domain.ProcessingJob{ID: "j1", DocumentID: "d1", BatchIndex: 1}
	if err := runner.ProcessJob(context.Background(), job); err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}

	if len(chunks.chunks) != 3 {
		t.Fatalf("expected 3 chunks (text, visual, table), got %d", len(chunks.chunks))
	}
	var visual, table *domain.Chunk
	for _, c := range chunks.chunks {
		switch {
		case c.Kind == domain.ChunkVisual:
			visual = c
		case c.SemanticSummary != "":
			table = c
		default:
			if c.Index != 1*batchIndexStride {
				t.Errorf("text chunk index not offset by batch: %d", c.Index)
			}
		}
	}
	if visual == nil || visual.EmbeddingStatus != domain.EmbedWaitingEnrichment {
		t.Fatalf("visual chunk missing or not waiting_enrichment: %+v", visual)
	}
	if table == nil || table.SemanticSummary != "table about a and b" {
		t.Fatalf("table chunk missing summary: %+v", table)
	}

	if len(visualJobs.jobs) != 1 {
		t.Fatalf("expected 1 visual job, got %d", len(visualJobs.jobs))
	}
	for _, vj := range visualJobs.jobs {
		if vj.ChunkID != visual.ID {
			t.Errorf("visual job not linked to visual chunk: %q vs %q", vj.ChunkID, visual.ID)
		}
		if vj.Context != "reports" {
			t.Errorf("visual job context not taken from category: %q", vj.Context)
		}
	}

	// Batch 1 extracts pages 26..50 at 25 pages per job.
	if extractor.calls[0] != "d1:26-50" {
		t.Errorf("unexpected page range: %s", extractor.calls[0])
	}
}

func TestProcessJobFallsBackToVerbatimTable(t *testing.T) {
	docs := newDocRepoFake()
	docs.docs["d1"] = &domain.Document{ID: "d1", Status: domain.DocProcessing}
	chunks := newChunkRepoFake()
	extractor := &extractorFake{extraction: domain.Extraction{Text: "x", Tables: []string{"| raw |"}}}
	chunker := &chunkerFake{segments: []domain.Segment{{Index: 0, Content: "x"}}}

	runner := NewBatchRunner(docs, chunks, newVisualJobRepoFake(), extractor, chunker,
		&summarizerFake{err: errors.New("provider down")}, testLogger(), 25)
	if err := runner.ProcessJob(context.Background(), &domain.ProcessingJob{ID: "j1", DocumentID: "d1"}); err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}

	found := false
	for _, c := range chunks.chunks {
		if c.Content == "| raw |" && c.SemanticSummary == "| raw |" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected verbatim table fallback chunk")
	}
}

func TestProcessJobPropagatesExtractionError(t *testing.T) {
	docs := newDocRepoFake()
	docs.docs["d1"] = &domain.Document{ID: "d1", Status: domain.DocProcessing}

	runner := NewBatchRunner(docs, newChunkRepoFake(), newVisualJobRepoFake(),
		&extractorFake{err: errors.New("corrupt page")}, &chunkerFake{}, &summarizerFake{}, testLogger(), 25)
	err := runner.ProcessJob(context.Background(), &domain.ProcessingJob{ID: "j1", DocumentID: "d1"})
	if err == nil {
		t.Fatalf("expected extraction error")
	}
}
