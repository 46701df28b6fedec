package domain

// Mandatory chunk metadata keys
const (
	MetadataKeyDocumentID = "document_id"
	MetadataKeyOwnerID    = "owner_id"
)

// Chunk is a retrievable text unit produced by a chunking strategy
type Chunk struct {
	ID            string         `json:"id"`
	Text          string         `json:"text"`
	Metadata      map[string]any `json:"metadata"`
	BackReference string         `json:"back_reference"`
	Position      int            `json:"position"`
}

// RetrievedMatch is a chunk returned by similarity search, never persisted
type RetrievedMatch struct {
	Text       string         `json:"content"`
	OwnerID    string         `json:"owner_id"`
	DocumentID string         `json:"document_id"`
	Score      float64        `json:"score"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
