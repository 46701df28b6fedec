package service

import (
	"context"
	"fmt"

	"github.com/pedjoni/idiorag/internal/domain"
	"go.uber.org/zap"
)

// Paging limits for List
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// DocumentService handles reads, deletion and reindexing of a user's documents
type DocumentService struct {
	repo    DocumentRepository
	indexer Indexer
	logger  *zap.Logger
}

// NewDocumentService creates a new document service
func NewDocumentService(repo DocumentRepository, indexer Indexer, logger *zap.Logger) *DocumentService {
	return &DocumentService{repo: repo, indexer: indexer, logger: logger}
}

// Get returns one of the owner's documents, or domain.ErrNotFound.
func (s *DocumentService) Get(ctx context.Context, ownerID, id string) (*domain.Document, error) {
	return s.repo.Get(ctx, ownerID, id)
}

// List returns one page of the owner's documents with the owner's total.
func (s *DocumentService) List(ctx context.Context, ownerID string, skip, limit int) (*domain.DocumentListResponse, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	docs, err := s.repo.List(ctx, ownerID, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	total, err := s.repo.CountByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	return &domain.DocumentListResponse{
		Documents: docs,
		Total:     total,
		Skip:      skip,
		Limit:     limit,
	}, nil
}

// Delete removes the document's chunks and then its record. Chunk removal
// is best-effort: a failure is logged and the record is deleted anyway.
func (s *DocumentService) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := s.repo.Get(ctx, ownerID, id); err != nil {
		return err
	}

	if err := s.indexer.Delete(ctx, id, ownerID); err != nil {
		s.logger.Warn("Deleting document record despite chunk removal failure",
			zap.String("document_id", id),
			zap.Error(err))
	}

	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	s.logger.Info("Document deleted", zap.String("owner_id", ownerID), zap.String("document_id", id))
	return nil
}

// Reindex rebuilds the document's chunks with the strategy it was ingested with.
func (s *DocumentService) Reindex(ctx context.Context, ownerID, id string) (*domain.Document, error) {
	doc, err := s.repo.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if err := indexDocument(ctx, s.repo, s.indexer, doc, true, s.logger); err != nil {
		return doc, err
	}
	return doc, nil
}
