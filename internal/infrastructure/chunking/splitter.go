package chunking

import (
	"errors"
	"strings"

	"github.com/vgrishin/docingest/internal/core/domain"
)

var ErrEmptyInput = errors.New("chunking: empty input text")

type Splitter struct {
	ChunkSize int
	Overlap   int
	MaxSize   int
}

func NewSplitter(chunkSize, overlap, maxSize int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 900
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	if maxSize < chunkSize {
		maxSize = chunkSize * 2
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
		MaxSize:   maxSize,
	}
}

// Split produces ordered overlapping segments covering the whole text.
// Candidates that are empty after trimming or exceed MaxSize are dropped
// here, before any persistence. Headings captured during extraction are
// attached to every segment they precede.
func (s *Splitter) Split(text string, headings []domain.HeadingLevel) ([]domain.Segment, error) {
	runes := []rune(text)
	if len(runes) == 0 || strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	step := s.ChunkSize - s.Overlap
	if step <= 0 {
		step = s.ChunkSize
	}

	out := make([]domain.Segment, 0, len(runes)/step+1)
	index := 0
	for start := 0; start < len(runes); start += step {
		end := start + s.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		content := strings.TrimSpace(string(runes[start:end]))
		if content != "" && len([]rune(content)) <= s.MaxSize {
			out = append(out, domain.Segment{
				Index:     index,
				Content:   content,
				SpanStart: start,
				SpanEnd:   end,
				Headings:  headings,
			})
			index++
		}
		if end == len(runes) {
			break
		}
	}
	return out, nil
}
