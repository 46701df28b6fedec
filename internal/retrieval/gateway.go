// Package retrieval runs owner-scoped similarity search over indexed chunks.
package retrieval

import (
	"context"
	"fmt"

	"github.com/pedjoni/idiorag/internal/domain"
	"github.com/pedjoni/idiorag/internal/embedding"
	"github.com/pedjoni/idiorag/internal/vectorstore"
	"go.uber.org/zap"
)

// Gateway embeds a query and searches only the caller's chunks.
type Gateway struct {
	embedder embedding.Embedder
	store    vectorstore.Store
	logger   *zap.Logger
}

// NewGateway creates a retrieval gateway.
func NewGateway(embedder embedding.Embedder, store vectorstore.Store, logger *zap.Logger) *Gateway {
	return &Gateway{embedder: embedder, store: store, logger: logger}
}

// Retrieve returns up to k chunks owned by ownerID, most similar first.
// A match carrying any other owner fails the whole call with ErrIsolationBreach.
func (g *Gateway) Retrieve(ctx context.Context, ownerID, query string, k int) ([]domain.RetrievedMatch, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner is required", domain.ErrRetrievalFailed)
	}
	if k <= 0 {
		return []domain.RetrievedMatch{}, nil
	}

	vec, err := g.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", domain.ErrRetrievalFailed, err)
	}

	matches, err := g.store.Query(ctx, ownerID, vec, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRetrievalFailed, err)
	}

	for _, m := range matches {
		if m.OwnerID != ownerID {
			g.logger.Error("Foreign chunk returned by vector store",
				zap.String("owner_id", ownerID),
				zap.String("match_owner_id", m.OwnerID),
				zap.String("document_id", m.DocumentID))
			return nil, fmt.Errorf("%w: match owned by %q in results for %q", domain.ErrIsolationBreach, m.OwnerID, ownerID)
		}
	}
	if len(matches) > k {
		matches = matches[:k]
	}

	g.logger.Debug("Retrieved chunks",
		zap.String("owner_id", ownerID),
		zap.Int("k", k),
		zap.Int("matches", len(matches)))
	return matches, nil
}
