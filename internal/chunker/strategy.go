// Package chunker turns document content into owner-scoped chunks.
//
// Every strategy output passes through Validate before it may reach a
// vector store; a chunk carrying the wrong owner is rejected, never repaired.
package chunker

import (
	"fmt"

	"github.com/pedjoni/idiorag/internal/domain"
)

// Strategy splits document content into chunks.
type Strategy interface {
	Chunk(content, documentID, ownerID string, extra map[string]any) ([]domain.Chunk, error)
}

// Factory builds a fresh Strategy instance.
type Factory func() (Strategy, error)

// StrategyFunc adapts a plain function to Strategy.
type StrategyFunc func(content, documentID, ownerID string, extra map[string]any) ([]domain.Chunk, error)

// Chunk calls f.
func (f StrategyFunc) Chunk(content, documentID, ownerID string, extra map[string]any) ([]domain.Chunk, error) {
	return f(content, documentID, ownerID, extra)
}

// ContractViolationError reports the first chunk that broke the ownership contract.
type ContractViolationError struct {
	Index  int
	Reason string
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("chunk %d: %s", e.Index, e.Reason)
}

func (e *ContractViolationError) Unwrap() error {
	return domain.ErrChunkContractViolation
}

// BaseMetadata merges extra into a new map and then sets the mandatory
// ownership keys, so extra can never override them.
func BaseMetadata(documentID, ownerID string, extra map[string]any) map[string]any {
	md := make(map[string]any, len(extra)+2)
	for k, v := range extra {
		md[k] = v
	}
	md[domain.MetadataKeyDocumentID] = documentID
	md[domain.MetadataKeyOwnerID] = ownerID
	return md
}

// Validate checks that every chunk belongs to documentID and ownerID.
func Validate(chunks []domain.Chunk, documentID, ownerID string) error {
	for i, c := range chunks {
		if len(c.Metadata) == 0 {
			return &ContractViolationError{Index: i, Reason: "missing metadata"}
		}
		owner, ok := c.Metadata[domain.MetadataKeyOwnerID].(string)
		if !ok || owner != ownerID {
			return &ContractViolationError{Index: i, Reason: "missing or incorrect owner_id"}
		}
		docID, ok := c.Metadata[domain.MetadataKeyDocumentID].(string)
		if !ok || docID != documentID {
			return &ContractViolationError{Index: i, Reason: "missing or incorrect document_id"}
		}
		if c.BackReference != documentID {
			return &ContractViolationError{Index: i, Reason: "missing or incorrect back reference"}
		}
	}
	return nil
}

// Run invokes s and validates its output.
func Run(s Strategy, content, documentID, ownerID string, extra map[string]any) ([]domain.Chunk, error) {
	chunks, err := s.Chunk(content, documentID, ownerID, extra)
	if err != nil {
		return nil, fmt.Errorf("chunk document %s: %w", documentID, err)
	}
	if err := Validate(chunks, documentID, ownerID); err != nil {
		return nil, fmt.Errorf("document %s: %w", documentID, err)
	}
	return chunks, nil
}
