package chunking

import (
	"errors"
	"strings"
	"testing"

	"github.com/vgrishin/docingest/internal/core/domain"
)

func TestSplitRejectsEmptyInput(t *testing.T) {
	s := NewSplitter(100, 20, 0)
	if _, err := s.Split("", nil); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
	if _, err := s.Split("   \n\t ", nil); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("whitespace-only input must be rejected, got %v", err)
	}
}

func TestSplitCoversWholeText(t *testing.T) {
	s := NewSplitter(50, 10, 0)
	text := strings.Repeat("abcdefghij", 30)

	segments, err := s.Split(text, nil)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(segments) == 0 {
		t.Fatal("expected at least one segment")
	}

	// Spans minus overlap must reconstruct the source without gaps.
	step := s.ChunkSize - s.Overlap
	for i, seg := range segments {
		if seg.Index != i {
			t.Errorf("segment %d has index %d", i, seg.Index)
		}
		if seg.SpanStart != i*step {
			t.Errorf("segment %d starts at %d, want %d", i, seg.SpanStart, i*step)
		}
	}
	last := segments[len(segments)-1]
	if last.SpanEnd != len([]rune(text)) {
		t.Errorf("last segment ends at %d, want %d", last.SpanEnd, len([]rune(text)))
	}
}

func TestSplitNoEmptyOrOversizedSegments(t *testing.T) {
	s := NewSplitter(40, 8, 0)
	text := "first block of text\n\n   \n\nsecond block of text that keeps going for a while"

	segments, err := s.Split(text, nil)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	for _, seg := range segments {
		if strings.TrimSpace(seg.Content) == "" {
			t.Error("empty segment survived validation")
		}
		if len([]rune(seg.Content)) > s.MaxSize {
			t.Errorf("segment exceeds max size: %d > %d", len([]rune(seg.Content)), s.MaxSize)
		}
	}
}

func TestSplitOverlapIsApplied(t *testing.T) {
	s := NewSplitter(20, 5, 0)
	text := strings.Repeat("x", 35) + strings.Repeat("y", 35)

	segments, err := s.Split(text, nil)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(segments) < 2 {
		t.Fatalf("expected multiple segments, got %d", len(segments))
	}
	if segments[1].SpanStart != segments[0].SpanEnd-s.Overlap {
		t.Errorf("overlap not applied: seg1 starts %d, seg0 ends %d", segments[1].SpanStart, segments[0].SpanEnd)
	}
}

func TestSplitCarriesHeadings(t *testing.T) {
	s := NewSplitter(100, 0, 0)
	headings := []domain.HeadingLevel{{Level: 1, Text: "Intro"}, {Level: 2, Text: "Scope"}}

	segments, err := s.Split("some document body text", headings)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(segments[0].Headings) != 2 || segments[0].Headings[1].Text != "Scope" {
		t.Fatalf("heading context lost: %+v", segments[0].Headings)
	}
}

func TestNewSplitterNormalizesBadConfig(t *testing.T) {
	s := NewSplitter(0, -5, 10)
	if s.ChunkSize != 900 || s.Overlap != 0 {
		t.Fatalf("defaults not applied: %+v", s)
	}
	if s.MaxSize < s.ChunkSize {
		t.Fatalf("max size below chunk size: %+v", s)
	}
}
