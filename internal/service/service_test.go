package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/pedjoni/idiorag/internal/chunker"
	"github.com/pedjoni/idiorag/internal/domain"
	"github.com/pedjoni/idiorag/internal/embedding"
	"github.com/pedjoni/idiorag/internal/index"
	"github.com/pedjoni/idiorag/internal/repository"
	"github.com/pedjoni/idiorag/internal/vectorstore"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// countingStore counts writes reaching the vector store.
type countingStore struct {
	vectorstore.Store
	mu        sync.Mutex
	upserts   int
	deletes   int
	deleteErr error
}

func (s *countingStore) Upsert(ctx context.Context, ownerID string, records []vectorstore.Record) error {
	s.mu.Lock()
	s.upserts++
	s.mu.Unlock()
	return s.Store.Upsert(ctx, ownerID, records)
}

func (s *countingStore) DeleteByDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	s.deletes++
	err := s.deleteErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Store.DeleteByDocument(ctx, documentID)
}

type fixture struct {
	repo     *repository.DocumentRepository
	store    *countingStore
	embedder embedding.Embedder
	registry *chunker.Registry
	ingest   *IngestService
	docs     *DocumentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	db, err := repository.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := repository.NewDocumentRepository(db)

	emb := embedding.NewHashingEmbedder(64)
	store := &countingStore{Store: vectorstore.NewHNSWStore(64)}
	t.Cleanup(func() { store.Close() })

	registry := chunker.NewDefaultRegistry(8, 2)
	require.NoError(t, registry.RegisterFromPath("fishing", "fishing_log"))

	pipeline := index.NewPipeline(registry, emb, store, index.Options{BatchSize: 4, Concurrency: 2}, logger)
	mapping := map[string]string{"fishing_log": "fishing"}

	return &fixture{
		repo:     repo,
		store:    store,
		embedder: emb,
		registry: registry,
		ingest:   NewIngestService(repo, pipeline, registry, mapping, logger),
		docs:     NewDocumentService(repo, pipeline, logger),
	}
}

// chunkTexts returns the text of every stored chunk owned by ownerID.
func (f *fixture) chunkTexts(t *testing.T, ownerID string) []string {
	t.Helper()
	q, err := f.embedder.Embed(context.Background(), "anything")
	require.NoError(t, err)
	matches, err := f.store.Query(context.Background(), ownerID, q, 1000)
	require.NoError(t, err)
	texts := make([]string, len(matches))
	for i, m := range matches {
		texts[i] = m.Text
	}
	return texts
}

// failingIndexer fails every call.
type failingIndexer struct{ err error }

func (f failingIndexer) Index(context.Context, index.Request) (int, error)   { return 0, f.err }
func (f failingIndexer) Reindex(context.Context, index.Request) (int, error) { return 0, f.err }
func (f failingIndexer) Delete(context.Context, string, string) error {
	return errors.Join(domain.ErrDeletionFailed, f.err)
}
