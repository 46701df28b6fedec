package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/pedjoni/idiorag/internal/chunker"
	"github.com/pedjoni/idiorag/internal/domain"
	"github.com/pedjoni/idiorag/internal/index"
	"go.uber.org/zap"
)

// IngestService handles document ingestion with source deduplication
type IngestService struct {
	repo            DocumentRepository
	gate            *Gate
	indexer         Indexer
	strategies      StrategyResolver
	docTypeChunkers map[string]string
	logger          *zap.Logger
}

// NewIngestService creates a new ingest service. docTypeChunkers maps a
// document type to the strategy used when a request names none.
func NewIngestService(
	repo DocumentRepository,
	indexer Indexer,
	strategies StrategyResolver,
	docTypeChunkers map[string]string,
	logger *zap.Logger,
) *IngestService {
	return &IngestService{
		repo:            repo,
		gate:            NewGate(repo),
		indexer:         indexer,
		strategies:      strategies,
		docTypeChunkers: docTypeChunkers,
		logger:          logger,
	}
}

// Ingest stores and indexes a document for ownerID.
//
// A request whose (owner, source) already exists with identical content
// writes nothing. Changed content updates the record in place and replaces
// its chunks. An indexing failure leaves the record with status failed and
// is not returned as an error.
func (s *IngestService) Ingest(ctx context.Context, ownerID string, req *domain.CreateDocumentRequest) (*domain.IngestResult, error) {
	if ownerID == "" {
		return nil, domain.ErrUnauthorized
	}
	if strings.TrimSpace(req.Title) == "" || req.Content == "" {
		return nil, fmt.Errorf("%w: title and content are required", domain.ErrInvalidRequest)
	}

	name := s.strategies.Resolve(req.Chunker, req.DocType, s.docTypeChunkers)
	if !s.strategies.Has(name) {
		return nil, &chunker.StrategyNotFoundError{Name: name, Known: s.strategies.Names()}
	}

	result, err := s.ingest(ctx, ownerID, req, name)
	if errors.Is(err, domain.ErrConflict) {
		// a concurrent request created this source first
		result, err = s.ingest(ctx, ownerID, req, name)
	}
	return result, err
}

func (s *IngestService) ingest(ctx context.Context, ownerID string, req *domain.CreateDocumentRequest, strategy string) (*domain.IngestResult, error) {
	decision, err := s.gate.Decide(ctx, ownerID, req.Source, req.Content)
	if err != nil {
		return nil, err
	}

	switch decision.Action {
	case domain.ActionUnchanged:
		s.logger.Info("Document unchanged, skipping",
			zap.String("owner_id", ownerID),
			zap.String("document_id", decision.Existing.ID),
			zap.String("source", req.Source))
		return &domain.IngestResult{Action: decision.Action, Document: decision.Existing}, nil

	case domain.ActionUpdated:
		doc := decision.Existing
		doc.Title = req.Title
		doc.Content = req.Content
		doc.Metadata = req.Metadata
		doc.DocType = req.DocType
		doc.Chunker = strategy
		doc.ContentFingerprint = decision.Fingerprint
		doc.IndexStatus = domain.IndexStatusPending
		doc.IndexError = ""
		if err := s.repo.Update(ctx, doc); err != nil {
			return nil, fmt.Errorf("failed to update document: %w", err)
		}
		// an indexing failure is recorded in doc.IndexStatus
		indexDocument(ctx, s.repo, s.indexer, doc, true, s.logger)
		return &domain.IngestResult{Action: decision.Action, Document: doc}, nil

	default:
		doc := &domain.Document{
			OwnerID:            ownerID,
			Title:              req.Title,
			Content:            req.Content,
			Metadata:           req.Metadata,
			DocType:            req.DocType,
			Source:             req.Source,
			Chunker:            strategy,
			ContentFingerprint: decision.Fingerprint,
			IndexStatus:        domain.IndexStatusPending,
		}
		if err := s.repo.Create(ctx, doc); err != nil {
			return nil, fmt.Errorf("failed to create document: %w", err)
		}
		// an indexing failure is recorded in doc.IndexStatus
		indexDocument(ctx, s.repo, s.indexer, doc, false, s.logger)
		return &domain.IngestResult{Action: domain.ActionCreated, Document: doc}, nil
	}
}

// indexDocument indexes doc, replacing existing chunks when replace is set,
// and records the outcome on the stored record and on doc.
func indexDocument(ctx context.Context, repo DocumentRepository, indexer Indexer, doc *domain.Document, replace bool, logger *zap.Logger) error {
	req := index.Request{
		DocumentID: doc.ID,
		OwnerID:    doc.OwnerID,
		Content:    doc.Content,
		Metadata:   chunkMetadata(doc),
		Strategy:   doc.Chunker,
	}

	run := indexer.Index
	if replace {
		run = indexer.Reindex
	}
	n, err := run(ctx, req)

	status, indexError := domain.IndexStatusIndexed, ""
	if err != nil {
		status, indexError = domain.IndexStatusFailed, err.Error()
		logger.Error("Failed to index document",
			zap.String("document_id", doc.ID),
			zap.String("owner_id", doc.OwnerID),
			zap.Error(err))
	} else {
		logger.Debug("Indexed document", zap.String("document_id", doc.ID), zap.Int("chunks", n))
	}

	if serr := repo.SetIndexStatus(ctx, doc.OwnerID, doc.ID, status, indexError); serr != nil {
		logger.Error("Failed to record index status",
			zap.String("document_id", doc.ID),
			zap.Error(serr))
	}
	doc.IndexStatus, doc.IndexError = status, indexError
	return err
}

// chunkMetadata is the extra metadata every chunk of doc carries.
func chunkMetadata(doc *domain.Document) map[string]any {
	md := make(map[string]any, len(doc.Metadata)+3)
	maps.Copy(md, doc.Metadata)
	md["title"] = doc.Title
	if doc.DocType != "" {
		md["doc_type"] = doc.DocType
	}
	if doc.Source != "" {
		md["source"] = doc.Source
	}
	return md
}
