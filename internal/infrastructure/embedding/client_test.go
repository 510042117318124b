package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vgrishin/docingest/internal/core/domain"
)

func vectorJSON(dims int) string {
	parts := make([]string, dims)
	for i := range parts {
		parts[i] = "0.1"
	}
	return `{"embedding":[` + strings.Join(parts, ",") + `]}`
}

func fastOptions() Options {
	return Options{
		RequestTimeout: 2 * time.Second,
		MaxAttempts:    3,
		BackoffBase:    time.Millisecond,
	}
}

func TestEmbedRejectsEmptyTextWithoutCall(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	client := New(server.URL, "key", "embed-model", 4, fastOptions())
	_, err := client.Embed(context.Background(), "   ")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("provider must not be called for empty text")
	}
}

func TestEmbedRejectsMissingCredentials(t *testing.T) {
	client := New("http://localhost:0", "", "embed-model", 4, fastOptions())
	_, err := client.Embed(context.Background(), "hello")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing key, got %v", err)
	}
}

func TestEmbedRetriesTransientStatusThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(vectorJSON(4)))
	}))
	defer server.Close()

	client := New(server.URL, "key", "embed-model", 4, fastOptions())
	vector, err := client.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vector) != 4 {
		t.Fatalf("vector length = %d, want 4", len(vector))
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestEmbedRetriesRequestTimeoutThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			time.Sleep(300 * time.Millisecond)
			return
		}
		_, _ = w.Write([]byte(vectorJSON(4)))
	}))
	defer server.Close()

	client := New(server.URL, "key", "embed-model", 4, Options{
		RequestTimeout: 50 * time.Millisecond,
		MaxAttempts:    3,
		BackoffBase:    time.Millisecond,
	})
	vector, err := client.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vector) != 4 {
		t.Fatalf("vector length = %d, want 4", len(vector))
	}
	if calls.Load() != 3 {
		t.Fatalf("timed-out calls must count as failed attempts, got %d call(s)", calls.Load())
	}
}

func TestEmbedDoesNotRetryAfterCallerCancellation(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := New(server.URL, "key", "embed-model", 4, fastOptions())
	_, err := client.Embed(ctx, "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("cancelled caller must not trigger retries, got %d call(s)", calls.Load())
	}
}

func TestEmbedDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	client := New(server.URL, "key", "embed-model", 4, fastOptions())
	_, err := client.Embed(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("client errors must not be retried, got %d attempts", calls.Load())
	}
}

func TestEmbedWrapsExhaustedRetriesAsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL, "key", "embed-model", 4, fastOptions())
	_, err := client.Embed(context.Background(), "hello")
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary after exhausted retries, got %v", err)
	}
	if !strings.Contains(err.Error(), "upstream down") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestEmbedRejectsWrongDimensionality(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(vectorJSON(3)))
	}))
	defer server.Close()

	client := New(server.URL, "key", "embed-model", 4, fastOptions())
	_, err := client.Embed(context.Background(), "hello")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for wrong dims, got %v", err)
	}
}

func TestValidateVector(t *testing.T) {
	if err := ValidateVector(nil, 3); err == nil {
		t.Error("empty vector must be invalid")
	}
	if err := ValidateVector([]float32{1, 2}, 3); err == nil {
		t.Error("wrong dims must be invalid")
	}
	if err := ValidateVector([]float32{1, float32(math.NaN()), 3}, 3); err == nil {
		t.Error("NaN must be invalid")
	}
	if err := ValidateVector([]float32{1, float32(math.Inf(1)), 3}, 3); err == nil {
		t.Error("Inf must be invalid")
	}
	if err := ValidateVector([]float32{1, 2, 3}, 3); err != nil {
		t.Errorf("valid vector rejected: %v", err)
	}
}

func TestEmbedBatchPartialFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Input string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if strings.Contains(payload.Input, "poison") {
			http.Error(w, "cannot embed", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(vectorJSON(4)))
	}))
	defer server.Close()

	client := New(server.URL, "key", "embed-model", 4, fastOptions())
	texts := []string{"one", "poison pill", "three", "", "five"}
	result := client.EmbedBatch(context.Background(), texts, BatchOptions{
		GroupSize:       2,
		Concurrency:     2,
		GroupsPerSecond: 1000,
	})

	if got := result.Succeeded(); got != 3 {
		t.Fatalf("succeeded = %d, want 3", got)
	}
	if len(result.Failures) != 2 {
		t.Fatalf("failures = %d, want 2", len(result.Failures))
	}
	for _, f := range result.Failures {
		if f.Index != 1 && f.Index != 3 {
			t.Errorf("unexpected failed index %d", f.Index)
		}
		if len([]rune(f.Preview)) > previewLen+3 {
			t.Errorf("preview not truncated: %d runes", len([]rune(f.Preview)))
		}
	}
	for i, v := range result.Vectors {
		if (i == 1 || i == 3) && v != nil {
			t.Errorf("failed index %d has a vector", i)
		}
		if i != 1 && i != 3 && len(v) != 4 {
			t.Errorf("index %d vector length = %d", i, len(v))
		}
	}
}

func TestEmbedBatchReportsProgressPerGroup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(vectorJSON(4)))
	}))
	defer server.Close()

	client := New(server.URL, "key", "embed-model", 4, fastOptions())
	texts := make([]string, 5)
	for i := range texts {
		texts[i] = fmt.Sprintf("text %d", i)
	}

	var progress []int
	client.EmbedBatch(context.Background(), texts, BatchOptions{
		GroupSize:       2,
		GroupsPerSecond: 1000,
		OnProgress: func(done, total int) {
			if total != 5 {
				t.Errorf("total = %d, want 5", total)
			}
			progress = append(progress, done)
		},
	})

	want := []int{2, 4, 5}
	if len(progress) != len(want) {
		t.Fatalf("progress calls = %v, want %v", progress, want)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Fatalf("progress = %v, want %v", progress, want)
		}
	}
}
