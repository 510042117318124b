package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vgrishin/docingest/internal/core/domain"
	"github.com/vgrishin/docingest/internal/core/ports"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type docRepoFake struct {
	mu            sync.Mutex
	docs          map[string]*domain.Document
	intermediate  []domain.Document
	stuckIngested []domain.Document
	statusLog     []string
}

func newDocRepoFake() *docRepoFake {
	return &docRepoFake{docs: map[string]*domain.Document{}}
}

func (f *docRepoFake) Create(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *doc
	f.docs[doc.ID] = &copied
	return nil
}

func (f *docRepoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "fake get", errors.New(id))
	}
	copied := *doc
	return &copied, nil
}

// UpdateStatus mirrors the store guard: terminal rows are never regressed,
// redundant advancement is a silent no-op reported as not-transitioned.
func (f *docRepoFake) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, errMessage string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return false, domain.WrapError(domain.ErrDocumentNotFound, "fake update", errors.New(id))
	}
	if doc.Status.Terminal() || doc.Status == status {
		return false, nil
	}
	doc.Status = status
	doc.Error = errMessage
	f.statusLog = append(f.statusLog, id+":"+string(status))
	return true, nil
}

func (f *docRepoFake) MarkAggregated(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "fake aggregate", errors.New(id))
	}
	doc.Aggregated = true
	return nil
}

func (f *docRepoFake) ListByStatus(_ context.Context, status domain.DocumentStatus, limit int) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Document
	for _, doc := range f.docs {
		if doc.Status == status && len(out) < limit {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (f *docRepoFake) ListIntermediate(_ context.Context, limit int) ([]domain.Document, error) {
	if f.intermediate != nil {
		return f.intermediate, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.docs))
	for id := range f.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []domain.Document
	for _, id := range ids {
		doc := f.docs[id]
		if !doc.Status.Terminal() && doc.Status != domain.DocIngested && len(out) < limit {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (f *docRepoFake) ListStuckIngested(_ context.Context, _ time.Duration, limit int) ([]domain.Document, error) {
	if len(f.stuckIngested) > limit {
		return f.stuckIngested[:limit], nil
	}
	return f.stuckIngested, nil
}

type chunkRepoFake struct {
	mu          sync.Mutex
	chunks      map[string]*domain.Chunk
	upserts     int
	embedErr    error
	countErr    error
	orphans     []domain.OrphanedChunk
	orphanScans int
}

func newChunkRepoFake() *chunkRepoFake {
	return &chunkRepoFake{chunks: map[string]*domain.Chunk{}}
}

func (f *chunkRepoFake) add(chunk domain.Chunk) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := chunk
	f.chunks[chunk.ID] = &copied
}

func (f *chunkRepoFake) UpsertBatch(_ context.Context, chunks []domain.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	for _, chunk := range chunks {
		copied := chunk
		f.chunks[chunk.ID] = &copied
	}
	return nil
}

func (f *chunkRepoFake) GetByID(_ context.Context, id string) (*domain.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chunk, ok := f.chunks[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrChunkNotFound, "fake get", errors.New(id))
	}
	copied := *chunk
	return &copied, nil
}

func (f *chunkRepoFake) ListByStatus(_ context.Context, documentID string, status domain.EmbeddingStatus, limit int) ([]domain.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Chunk
	for _, chunk := range f.chunks {
		if chunk.DocumentID == documentID && chunk.EmbeddingStatus == status && len(out) < limit {
			out = append(out, *chunk)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (f *chunkRepoFake) ListWithPlaceholder(_ context.Context, documentID, token string) ([]domain.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Chunk
	for _, chunk := range f.chunks {
		if chunk.DocumentID == documentID && strings.Contains(chunk.Content, token) {
			out = append(out, *chunk)
		}
	}
	return out, nil
}

func (f *chunkRepoFake) UpdateStatus(_ context.Context, id string, status domain.EmbeddingStatus, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	chunk, ok := f.chunks[id]
	if !ok {
		return domain.WrapError(domain.ErrChunkNotFound, "fake update", errors.New(id))
	}
	if chunk.EmbeddingStatus.Terminal() {
		return nil
	}
	chunk.EmbeddingStatus = status
	chunk.Error = errMessage
	return nil
}

func (f *chunkRepoFake) SetEmbedding(_ context.Context, id string, embedding []float32) error {
	if f.embedErr != nil {
		return f.embedErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	chunk, ok := f.chunks[id]
	if !ok {
		return domain.WrapError(domain.ErrChunkNotFound, "fake embed", errors.New(id))
	}
	if chunk.EmbeddingStatus != domain.EmbedProcessing {
		return domain.WrapError(domain.ErrTransition, "fake embed", errors.New(string(chunk.EmbeddingStatus)))
	}
	chunk.Embedding = embedding
	chunk.EmbeddingStatus = domain.EmbedReady
	chunk.Error = ""
	return nil
}

func (f *chunkRepoFake) ReplaceContent(_ context.Context, id, content, originalContent string, status domain.EmbeddingStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	chunk, ok := f.chunks[id]
	if !ok {
		return domain.WrapError(domain.ErrChunkNotFound, "fake replace", errors.New(id))
	}
	chunk.Content = content
	chunk.OriginalContent = originalContent
	chunk.EmbeddingStatus = status
	return nil
}

func (f *chunkRepoFake) CountByDocument(_ context.Context, documentID string) (int, int, error) {
	if f.countErr != nil {
		return 0, 0, f.countErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	total, ready := 0, 0
	for _, chunk := range f.chunks {
		if chunk.DocumentID != documentID {
			continue
		}
		total++
		if chunk.EmbeddingStatus == domain.EmbedReady {
			ready++
		}
	}
	return total, ready, nil
}

func (f *chunkRepoFake) FindOrphanedChunks(_ context.Context) ([]domain.OrphanedChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orphanScans++
	return f.orphans, nil
}

type visualJobRepoFake struct {
	mu         sync.Mutex
	jobs       map[string]*domain.VisualJob
	resetCount int64
	listCalls  int
}

func newVisualJobRepoFake() *visualJobRepoFake {
	return &visualJobRepoFake{jobs: map[string]*domain.VisualJob{}}
}

func (f *visualJobRepoFake) add(job domain.VisualJob) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := job
	f.jobs[job.ID] = &copied
}

func (f *visualJobRepoFake) CreateBatch(_ context.Context, jobs []domain.VisualJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, job := range jobs {
		copied := job
		f.jobs[job.ID] = &copied
	}
	return nil
}

// ListActivePending excludes orphaned rows, like the store query.
func (f *visualJobRepoFake) ListActivePending(_ context.Context, limit int) ([]domain.VisualJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	var out []domain.VisualJob
	for _, job := range f.jobs {
		if job.Status == domain.JobPending && !job.Orphaned() && len(out) < limit {
			out = append(out, *job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *visualJobRepoFake) UpdateStatus(_ context.Context, id string, status domain.JobStatus, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.WrapError(domain.ErrJobNotFound, "fake update", errors.New(id))
	}
	job.Status = status
	job.Error = errMessage
	return nil
}

func (f *visualJobRepoFake) SetResult(_ context.Context, id, enrichmentText string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.WrapError(domain.ErrJobNotFound, "fake result", errors.New(id))
	}
	job.Status = domain.JobCompleted
	job.EnrichmentText = enrichmentText
	return nil
}

func (f *visualJobRepoFake) ResetStuck(_ context.Context, _ time.Duration) (int64, error) {
	return f.resetCount, nil
}

type processingJobRepoFake struct {
	mu       sync.Mutex
	jobs     map[string]*domain.ProcessingJob
	stuck    []domain.ProcessingJob
	healed   int64
	complete []string
}

func newProcessingJobRepoFake() *processingJobRepoFake {
	return &processingJobRepoFake{jobs: map[string]*domain.ProcessingJob{}}
}

func (f *processingJobRepoFake) add(job domain.ProcessingJob) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := job
	f.jobs[job.ID] = &copied
}

func (f *processingJobRepoFake) CreateBatch(_ context.Context, jobs []domain.ProcessingJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, job := range jobs {
		copied := job
		f.jobs[job.ID] = &copied
	}
	return nil
}

func (f *processingJobRepoFake) NextPending(_ context.Context) (*domain.ProcessingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var candidates []*domain.ProcessingJob
	for _, job := range f.jobs {
		if job.Status == domain.JobPending {
			candidates = append(candidates, job)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].DocumentID != candidates[j].DocumentID {
			return candidates[i].DocumentID < candidates[j].DocumentID
		}
		return candidates[i].BatchIndex < candidates[j].BatchIndex
	})
	copied := *candidates[0]
	return &copied, nil
}

func (f *processingJobRepoFake) UpdateStatus(_ context.Context, id string, status domain.JobStatus, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.WrapError(domain.ErrJobNotFound, "fake update", errors.New(id))
	}
	job.Status = status
	job.Error = errMessage
	return nil
}

func (f *processingJobRepoFake) ListStuck(_ context.Context, _ time.Duration) ([]domain.ProcessingJob, error) {
	return f.stuck, nil
}

func (f *processingJobRepoFake) IncrementRetry(_ context.Context, id string, status domain.JobStatus, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.WrapError(domain.ErrJobNotFound, "fake retry", errors.New(id))
	}
	job.RetryCount++
	job.Status = status
	job.Error = errMessage
	return nil
}

func (f *processingJobRepoFake) ResetForHealing(_ context.Context, _ time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var healed int64
	for _, job := range f.jobs {
		if job.Status == domain.JobFailed {
			job.Status = domain.JobPending
			job.RetryCount = 0
			job.Error = ""
			healed++
		}
	}
	f.healed = healed
	return healed, nil
}

func (f *processingJobRepoFake) ListDocumentsAllComplete(_ context.Context, _ int) ([]string, error) {
	return f.complete, nil
}

func (f *processingJobRepoFake) CountByDocument(_ context.Context, documentID string) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	total, completed := 0, 0
	for _, job := range f.jobs {
		if job.DocumentID != documentID {
			continue
		}
		total++
		if job.Status == domain.JobCompleted {
			completed++
		}
	}
	return total, completed, nil
}

type dispatcherFake struct {
	mu     sync.Mutex
	stages []string
}

func (f *dispatcherFake) Dispatch(stage string, payload domain.StagePayload) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stages = append(f.stages, stage+":"+payload.DocumentID)
}

func (f *dispatcherFake) count(stage string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.stages {
		if strings.HasPrefix(s, stage+":") {
			n++
		}
	}
	return n
}

type embedderFake struct {
	mu       sync.Mutex
	dims     int
	failFor  map[string]error
	embedded []string
}

func newEmbedderFake() *embedderFake {
	return &embedderFake{dims: 3, failFor: map[string]error{}}
}

func (f *embedderFake) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[text]; ok {
		return nil, err
	}
	f.embedded = append(f.embedded, text)
	return []float32{1, 2, 3}, nil
}

func (f *embedderFake) Dimensions() int {
	return f.dims
}

func (f *embedderFake) EmbedBatch(ctx context.Context, texts []string) ([][]float32, []ports.BatchItemFailure) {
	vectors := make([][]float32, len(texts))
	var failures []ports.BatchItemFailure
	for i, text := range texts {
		vector, err := f.Embed(ctx, text)
		if err != nil {
			failures = append(failures, ports.BatchItemFailure{Index: i, Preview: text, Attempts: 3, Error: err.Error()})
			continue
		}
		vectors[i] = vector
	}
	return vectors, failures
}

type visionFake struct {
	mu          sync.Mutex
	description string
	err         error
	requests    []domain.VisionRequest
}

func (f *visionFake) Describe(_ context.Context, req domain.VisionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return f.description, nil
}

type extractorFake struct {
	extraction domain.Extraction
	err        error
	pages      int
	calls      []string
}

func (f *extractorFake) Extract(_ context.Context, doc *domain.Document, pageFrom, pageTo int) (domain.Extraction, error) {
	f.calls = append(f.calls, fmt.Sprintf("%s:%d-%d", doc.ID, pageFrom, pageTo))
	if f.err != nil {
		return domain.Extraction{}, f.err
	}
	return f.extraction, nil
}

func (f *extractorFake) PageCount(_ context.Context, _ *domain.Document) (int, error) {
	return f.pages, nil
}

type chunkerFake struct {
	segments []domain.Segment
	err      error
}

func (f *chunkerFake) Split(_ string, _ []domain.HeadingLevel) ([]domain.Segment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.segments, nil
}

type summarizerFake struct {
	summary string
	err     error
}

func (f *summarizerFake) Summarize(_ context.Context, table string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.summary == "" {
		return table, nil
	}
	return f.summary, nil
}

type objectStorageFake struct {
	mu    sync.Mutex
	saved map[string][]byte
	err   error
}

func newObjectStorageFake() *objectStorageFake {
	return &objectStorageFake{saved: map[string][]byte{}}
}

func (f *objectStorageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[key] = buf
	return nil
}

func (f *objectStorageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf, ok := f.saved[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(strings.NewReader(string(buf))), nil
}
