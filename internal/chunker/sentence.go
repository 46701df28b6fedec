package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/pedjoni/idiorag/internal/domain"
)

var sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]*`)

// SentenceStrategy packs whole sentences into windows of at most chunkSize
// words, carrying up to chunkOverlap words of trailing sentences into the
// next window. A sentence longer than chunkSize is split on word boundaries.
type SentenceStrategy struct {
	chunkSize    int
	chunkOverlap int
}

// NewSentenceStrategy creates a sentence strategy.
func NewSentenceStrategy(chunkSize, chunkOverlap int) (*SentenceStrategy, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", chunkSize, chunkOverlap)
	}
	return &SentenceStrategy{chunkSize: chunkSize, chunkOverlap: chunkOverlap}, nil
}

// Chunk implements Strategy.
func (s *SentenceStrategy) Chunk(content, documentID, ownerID string, extra map[string]any) ([]domain.Chunk, error) {
	var units [][]string
	for _, sentence := range sentencePattern.FindAllString(content, -1) {
		words := strings.Fields(sentence)
		for len(words) > s.chunkSize {
			units = append(units, words[:s.chunkSize])
			words = words[s.chunkSize:]
		}
		if len(words) > 0 {
			units = append(units, words)
		}
	}

	var (
		chunks  []domain.Chunk
		window  [][]string
		inWords int
	)
	emit := func() {
		parts := make([]string, len(window))
		for i, u := range window {
			parts[i] = strings.Join(u, " ")
		}
		md := BaseMetadata(documentID, ownerID, extra)
		md["chunk_index"] = len(chunks)
		chunks = append(chunks, domain.Chunk{
			ID:            uuid.NewString(),
			Text:          strings.Join(parts, " "),
			Metadata:      md,
			BackReference: documentID,
			Position:      len(chunks),
		})
	}

	for _, u := range units {
		if inWords+len(u) > s.chunkSize && len(window) > 0 {
			emit()
			window, inWords = s.overlapTail(window)
			if inWords+len(u) > s.chunkSize {
				window, inWords = nil, 0
			}
		}
		window = append(window, u)
		inWords += len(u)
	}
	if len(window) > 0 {
		emit()
	}

	return chunks, nil
}

// overlapTail returns the trailing sentences of window that fit in the overlap budget.
func (s *SentenceStrategy) overlapTail(window [][]string) ([][]string, int) {
	n := 0
	start := len(window)
	for start > 0 && n+len(window[start-1]) <= s.chunkOverlap {
		start--
		n += len(window[start])
	}
	if start == len(window) {
		return nil, 0
	}
	tail := make([][]string, len(window)-start)
	copy(tail, window[start:])
	return tail, n
}
