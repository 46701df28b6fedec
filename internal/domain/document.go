package domain

import "time"

// Document index status constants
const (
	IndexStatusPending = "pending"
	IndexStatusIndexed = "indexed"
	IndexStatusFailed  = "failed"
)

// Ingest actions reported by the deduplication gate
const (
	ActionCreated   = "created"
	ActionUnchanged = "unchanged"
	ActionUpdated   = "updated"
)

// Document represents a user-owned document
type Document struct {
	ID                 string         `json:"id"`
	OwnerID            string         `json:"owner_id"`
	Title              string         `json:"title"`
	Content            string         `json:"content"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	DocType            string         `json:"doc_type,omitempty"`
	Source             string         `json:"source,omitempty"`
	Chunker            string         `json:"chunker,omitempty"`
	ContentFingerprint string         `json:"content_fingerprint"`
	IndexStatus        string         `json:"index_status"`
	IndexError         string         `json:"index_error,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// CreateDocumentRequest is the request to ingest a document
type CreateDocumentRequest struct {
	Title    string         `json:"title" binding:"required,max=500"`
	Content  string         `json:"content" binding:"required"`
	Metadata map[string]any `json:"metadata,omitempty"`
	DocType  string         `json:"doc_type,omitempty"`
	Source   string         `json:"source,omitempty"`
	Chunker  string         `json:"chunker,omitempty"`
}

// IngestResult is the outcome of an ingestion request
type IngestResult struct {
	Action   string    `json:"action"`
	Document *Document `json:"document"`
}

// DocumentListResponse is the response for listing documents
type DocumentListResponse struct {
	Documents []*Document `json:"documents"`
	Total     int         `json:"total"`
	Skip      int         `json:"skip"`
	Limit     int         `json:"limit"`
}
