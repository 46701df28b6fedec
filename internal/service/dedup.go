package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/pedjoni/idiorag/internal/domain"
)

// Decision is the outcome of a deduplication check.
type Decision struct {
	Action      string
	Existing    *domain.Document
	Fingerprint string
}

// SourceLookup finds the document an owner ingested from a source.
type SourceLookup interface {
	GetByOwnerAndSource(ctx context.Context, ownerID, source string) (*domain.Document, error)
}

// Gate decides whether an ingestion creates, updates or leaves a document.
// Documents are keyed by (owner, source); content is compared by fingerprint.
type Gate struct {
	lookup SourceLookup
}

// NewGate creates a deduplication gate.
func NewGate(lookup SourceLookup) *Gate {
	return &Gate{lookup: lookup}
}

// Fingerprint returns the hex SHA-256 of content's exact bytes.
func Fingerprint(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Decide classifies an ingestion. Without a source every ingestion creates
// a new document.
func (g *Gate) Decide(ctx context.Context, ownerID, source, content string) (Decision, error) {
	d := Decision{Action: domain.ActionCreated, Fingerprint: Fingerprint(content)}
	if source == "" {
		return d, nil
	}

	existing, err := g.lookup.GetByOwnerAndSource(ctx, ownerID, source)
	if err != nil {
		return Decision{}, fmt.Errorf("look up source %q: %w", source, err)
	}
	if existing == nil {
		return d, nil
	}

	d.Existing = existing
	if existing.ContentFingerprint == d.Fingerprint {
		d.Action = domain.ActionUnchanged
	} else {
		d.Action = domain.ActionUpdated
	}
	return d, nil
}
