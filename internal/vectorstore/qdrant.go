package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pedjoni/idiorag/internal/domain"
)

var _ Store = (*QdrantStore)(nil)

// QdrantConfig configures the Qdrant REST adapter.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// QdrantStore is a minimal Qdrant REST client. Ownership is enforced with a
// must-match filter on the owner_id payload field, evaluated by Qdrant
// during the search.
type QdrantStore struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

// NewQdrantStore creates a client. Call Init before first use.
func NewQdrantStore(cfg QdrantConfig) *QdrantStore {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &QdrantStore{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// Init creates the collection with cosine distance and keyword indexes on
// the owner_id and back_reference payload fields.
func (s *QdrantStore) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	body := map[string]any{
		"vectors": map[string]any{"size": dimension, "distance": "Cosine"},
	}
	err := s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil)
	if err != nil && !isConflict(err) {
		return fmt.Errorf("create collection: %w", err)
	}
	for _, field := range []string{domain.MetadataKeyOwnerID, "back_reference"} {
		idx := map[string]any{"field_name": field, "field_schema": "keyword"}
		if err := s.do(ctx, http.MethodPut, s.collectionURL("/index?wait=true"), idx, nil); err != nil {
			return fmt.Errorf("create %s index: %w", field, err)
		}
	}
	return nil
}

// Upsert implements Store.
func (s *QdrantStore) Upsert(ctx context.Context, ownerID string, records []Record) error {
	if err := checkOwnership(ownerID, records); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	points := make([]map[string]any, len(records))
	for i, r := range records {
		points[i] = map[string]any{
			"id":     pointID(r.Chunk.ID),
			"vector": r.Vector,
			"payload": map[string]any{
				domain.MetadataKeyOwnerID:    ownerID,
				domain.MetadataKeyDocumentID: r.Chunk.BackReference,
				"back_reference":             r.Chunk.BackReference,
				"chunk_id":                   r.Chunk.ID,
				"position":                   r.Chunk.Position,
				"text":                       r.Chunk.Text,
				"metadata":                   r.Chunk.Metadata,
			},
		}
	}
	return s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), map[string]any{"points": points}, nil)
}

// Query implements Store.
func (s *QdrantStore) Query(ctx context.Context, ownerID string, vector []float32, k int) ([]domain.RetrievedMatch, error) {
	if k <= 0 {
		return []domain.RetrievedMatch{}, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
		"filter":       matchFilter(domain.MetadataKeyOwnerID, ownerID),
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload struct {
				OwnerID       string         `json:"owner_id"`
				BackReference string         `json:"back_reference"`
				ChunkID       string         `json:"chunk_id"`
				Position      int            `json:"position"`
				Text          string         `json:"text"`
				Metadata      map[string]any `json:"metadata"`
			} `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp); err != nil {
		return nil, err
	}

	out := make([]domain.RetrievedMatch, 0, len(resp.Result))
	for _, r := range resp.Result {
		out = append(out, domain.RetrievedMatch{
			Text:       r.Payload.Text,
			OwnerID:    r.Payload.OwnerID,
			DocumentID: r.Payload.BackReference,
			Score:      r.Score,
			Metadata:   r.Payload.Metadata,
		})
	}
	return out, nil
}

// DeleteByDocument implements Store.
func (s *QdrantStore) DeleteByDocument(ctx context.Context, documentID string) error {
	body := map[string]any{"filter": matchFilter("back_reference", documentID)}
	return s.do(ctx, http.MethodPost, s.collectionURL("/points/delete?wait=true"), body, nil)
}

// Close implements Store.
func (s *QdrantStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func matchFilter(key, value string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{"key": key, "match": map[string]any{"value": value}},
		},
	}
}

// pointID returns id if it is a UUID, else a stable UUID derived from it.
// Qdrant only accepts unsigned integers and UUIDs as point IDs.
func pointID(id string) string {
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func (s *QdrantStore) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

type statusError struct {
	method, url string
	status      int
	body        string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %d %s", e.method, e.url, e.status, e.body)
}

func isConflict(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.status == http.StatusConflict
}

func (s *QdrantStore) do(ctx context.Context, method, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &statusError{method: method, url: url, status: resp.StatusCode, body: string(msg)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode qdrant response: %w", err)
		}
	}
	return nil
}
