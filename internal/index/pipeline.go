// Package index turns document content into owner-tagged, embedded chunks
// in the vector store.
package index

import (
	"context"
	"fmt"

	"github.com/pedjoni/idiorag/internal/chunker"
	"github.com/pedjoni/idiorag/internal/domain"
	"github.com/pedjoni/idiorag/internal/embedding"
	"github.com/pedjoni/idiorag/internal/vectorstore"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Request describes one document to index.
type Request struct {
	DocumentID string
	OwnerID    string
	Content    string
	Metadata   map[string]any
	// Strategy is a registry name; empty means chunker.DefaultName.
	Strategy string
}

// Options tunes embedding fan-out.
type Options struct {
	BatchSize   int
	Concurrency int
}

// Pipeline chunks, validates, embeds and stores documents.
type Pipeline struct {
	registry    *chunker.Registry
	embedder    embedding.Embedder
	store       vectorstore.Store
	batchSize   int
	concurrency int
	logger      *zap.Logger
}

// NewPipeline creates an indexing pipeline.
func NewPipeline(registry *chunker.Registry, embedder embedding.Embedder, store vectorstore.Store, opts Options, logger *zap.Logger) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Pipeline{
		registry:    registry,
		embedder:    embedder,
		store:       store,
		batchSize:   opts.BatchSize,
		concurrency: opts.Concurrency,
		logger:      logger,
	}
}

// Index chunks req.Content with the requested strategy and upserts the
// result. It returns the number of chunks stored. Nothing reaches the store
// unless every chunk passes the ownership contract.
func (p *Pipeline) Index(ctx context.Context, req Request) (int, error) {
	name := req.Strategy
	if name == "" {
		name = chunker.DefaultName
	}
	strategy, err := p.registry.Get(name)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrIndexingFailed, err)
	}

	chunks, err := chunker.Run(strategy, req.Content, req.DocumentID, req.OwnerID, req.Metadata)
	if err != nil {
		return 0, fmt.Errorf("%w: strategy %q: %w", domain.ErrIndexingFailed, name, err)
	}
	if len(chunks) == 0 {
		p.logger.Warn("Strategy produced no chunks",
			zap.String("document_id", req.DocumentID),
			zap.String("strategy", name))
		return 0, nil
	}

	vectors, err := p.embed(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrIndexingFailed, err)
	}

	records := make([]vectorstore.Record, len(chunks))
	for i := range chunks {
		records[i] = vectorstore.Record{Chunk: chunks[i], Vector: vectors[i]}
	}
	if err := p.store.Upsert(ctx, req.OwnerID, records); err != nil {
		return 0, fmt.Errorf("%w: store chunks: %w", domain.ErrIndexingFailed, err)
	}

	p.logger.Info("Document indexed",
		zap.String("document_id", req.DocumentID),
		zap.String("owner_id", req.OwnerID),
		zap.String("strategy", name),
		zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}

// embed embeds chunk texts in batches, at most p.concurrency in flight.
func (p *Pipeline) embed(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for start := 0; start < len(chunks); start += p.batchSize {
		end := min(start+p.batchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, end-start)
			for i := range texts {
				texts[i] = chunks[start+i].Text
			}
			batch, err := p.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
			}
			if len(batch) != len(texts) {
				return fmt.Errorf("embed chunks %d-%d: got %d vectors for %d texts", start, end-1, len(batch), len(texts))
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Reindex drops the document's existing chunks and indexes it again.
// A failed removal is logged and does not stop indexing.
func (p *Pipeline) Reindex(ctx context.Context, req Request) (int, error) {
	if err := p.store.DeleteByDocument(ctx, req.DocumentID); err != nil {
		p.logger.Warn("Failed to remove previous chunks before reindex",
			zap.String("document_id", req.DocumentID),
			zap.Error(err))
	}
	return p.Index(ctx, req)
}

// Delete removes every chunk of documentID. Callers treat the error as
// advisory; the document record may be deleted regardless.
func (p *Pipeline) Delete(ctx context.Context, documentID, ownerID string) error {
	if err := p.store.DeleteByDocument(ctx, documentID); err != nil {
		p.logger.Warn("Failed to remove document chunks",
			zap.String("document_id", documentID),
			zap.String("owner_id", ownerID),
			zap.Error(err))
		return fmt.Errorf("%w: %w", domain.ErrDeletionFailed, err)
	}
	return nil
}
