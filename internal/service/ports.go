package service

import (
	"context"

	"github.com/pedjoni/idiorag/internal/chunker"
	"github.com/pedjoni/idiorag/internal/domain"
	"github.com/pedjoni/idiorag/internal/index"
	"github.com/pedjoni/idiorag/internal/repository"
	"github.com/pedjoni/idiorag/internal/retrieval"
)

// DocumentRepository persists document records. Every method is scoped by owner.
type DocumentRepository interface {
	GetByOwnerAndSource(ctx context.Context, ownerID, source string) (*domain.Document, error)
	Create(ctx context.Context, doc *domain.Document) error
	Update(ctx context.Context, doc *domain.Document) error
	Get(ctx context.Context, ownerID, id string) (*domain.Document, error)
	List(ctx context.Context, ownerID string, skip, limit int) ([]*domain.Document, error)
	CountByOwner(ctx context.Context, ownerID string) (int, error)
	Delete(ctx context.Context, ownerID, id string) error
	SetIndexStatus(ctx context.Context, ownerID, id, status, indexError string) error
}

// Indexer writes and removes a document's chunks.
type Indexer interface {
	Index(ctx context.Context, req index.Request) (int, error)
	Reindex(ctx context.Context, req index.Request) (int, error)
	Delete(ctx context.Context, documentID, ownerID string) error
}

// Retriever runs owner-scoped similarity search.
type Retriever interface {
	Retrieve(ctx context.Context, ownerID, query string, k int) ([]domain.RetrievedMatch, error)
}

// StrategyResolver picks chunking strategies by name.
type StrategyResolver interface {
	Resolve(explicit, docType string, docTypeMapping map[string]string) string
	Has(name string) bool
	Names() []string
}

var (
	_ DocumentRepository = (*repository.DocumentRepository)(nil)
	_ Indexer            = (*index.Pipeline)(nil)
	_ Retriever          = (*retrieval.Gateway)(nil)
	_ StrategyResolver   = (*chunker.Registry)(nil)
)
