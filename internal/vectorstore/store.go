// Package vectorstore holds chunk embeddings and answers owner-scoped
// similarity queries.
//
// Every adapter applies the owner filter inside the search itself: SQL
// predicates, per-owner graphs or payload filters. Application code never
// sees another owner's rows to post-filter.
package vectorstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pedjoni/idiorag/internal/domain"
)

// Record is a chunk with its embedding.
type Record struct {
	Chunk  domain.Chunk
	Vector []float32
}

// Store is the vector store port.
type Store interface {
	// Upsert stores records for ownerID. Every record's owner_id metadata must equal ownerID.
	Upsert(ctx context.Context, ownerID string, records []Record) error
	// Query returns up to k matches owned by ownerID, highest score first.
	// Order among equal scores is unspecified.
	Query(ctx context.Context, ownerID string, vector []float32, k int) ([]domain.RetrievedMatch, error)
	// DeleteByDocument removes every chunk whose back reference is documentID.
	DeleteByDocument(ctx context.Context, documentID string) error
	Close() error
}

// checkOwnership rejects records whose metadata names a different owner.
func checkOwnership(ownerID string, records []Record) error {
	for i, r := range records {
		owner, _ := r.Chunk.Metadata[domain.MetadataKeyOwnerID].(string)
		if owner != ownerID {
			return fmt.Errorf("record %d owned by %q, upsert scoped to %q: %w", i, owner, ownerID, domain.ErrIsolationBreach)
		}
	}
	return nil
}

// toMatch takes the owner from the chunk's stored metadata.
func toMatch(c domain.Chunk, score float64) domain.RetrievedMatch {
	docID, _ := c.Metadata[domain.MetadataKeyDocumentID].(string)
	owner, _ := c.Metadata[domain.MetadataKeyOwnerID].(string)
	return domain.RetrievedMatch{
		Text:       c.Text,
		OwnerID:    owner,
		DocumentID: docID,
		Score:      score,
		Metadata:   c.Metadata,
	}
}

// cosine returns the cosine similarity of a and b, or 0 for mismatched or zero vectors.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	var n float64
	for _, x := range v {
		n += float64(x) * float64(x)
	}
	if n == 0 {
		copy(out, v)
		return out
	}
	inv := 1 / math.Sqrt(n)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

// float32SliceToBytes converts a []float32 to a little-endian byte slice.
func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
