package usecase

import (
	"context"
	"testing"

	"github.com/vgrishin/docingest/internal/core/domain"
	"github.com/vgrishin/docingest/internal/core/ports"
)

func TestAggregateAdvancesWhenAllBatchesComplete(t *testing.T) {
	docs := newDocRepoFake()
	docs.docs["d1"] = &domain.Document{ID: "d1", Status: domain.DocProcessing}
	jobs := newProcessingJobRepoFake()
	jobs.add(domain.ProcessingJob{ID: "j1", DocumentID: "d1", BatchIndex: 0, Status: domain.JobCompleted})
	jobs.add(domain.ProcessingJob{ID: "j2", DocumentID: "d1", BatchIndex: 1, Status: domain.JobCompleted})
	dispatcher := &dispatcherFake{}

	stage := NewAggregateStage(docs, jobs, dispatcher, testLogger())
	report, err := stage.Run(context.Background(), ports.StageRequest{DocumentID: "d1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Success || report.Processed != 2 {
		t.Errorf("unexpected report: %+v", report)
	}
	doc, _ := docs.GetByID(context.Background(), "d1")
	if !doc.Aggregated || doc.Status != domain.DocChunked {
		t.Errorf("expected aggregated chunked document, got %+v", doc)
	}
	if dispatcher.count(domain.StageEmbed) != 1 {
		t.Errorf("expected embed dispatch, got %v", dispatcher.stages)
	}
}

func TestAggregateWaitsForIncompleteBatches(t *testing.T) {
	docs := newDocRepoFake()
	docs.docs["d1"] = &domain.Document{ID: "d1", Status: domain.DocProcessing}
	jobs := newProcessingJobRepoFake()
	jobs.add(domain.ProcessingJob{ID: "j1", DocumentID: "d1", Status: domain.JobCompleted})
	jobs.add(domain.ProcessingJob{ID: "j2", DocumentID: "d1", Status: domain.JobProcessing})
	dispatcher := &dispatcherFake{}

	stage := NewAggregateStage(docs, jobs, dispatcher, testLogger())
	report, err := stage.Run(context.Background(), ports.StageRequest{DocumentID: "d1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Processed != 0 {
		t.Errorf("expected no-op report, got %+v", report)
	}
	doc, _ := docs.GetByID(context.Background(), "d1")
	if doc.Aggregated || doc.Status != domain.DocProcessing {
		t.Errorf("document advanced early: %+v", doc)
	}
	if len(dispatcher.stages) != 0 {
		t.Errorf("unexpected dispatches: %v", dispatcher.stages)
	}
}

func TestAggregateIdempotentOnAggregatedDocument(t *testing.T) {
	docs := newDocRepoFake()
	docs.docs["d1"] = &domain.Document{ID: "d1", Status: domain.DocChunked, Aggregated: true}
	dispatcher := &dispatcherFake{}

	stage := NewAggregateStage(docs, newProcessingJobRepoFake(), dispatcher, testLogger())
	report, err := stage.Run(context.Background(), ports.StageRequest{DocumentID: "d1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Success {
		t.Errorf("expected success no-op, got %+v", report)
	}
	if len(dispatcher.stages) != 0 {
		t.Errorf("re-run must not re-dispatch: %v", dispatcher.stages)
	}
}
