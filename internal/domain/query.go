package domain

// Prompt modes
const (
	ModeDirect         = "direct"
	ModeChainOfThought = "chain_of_thought"
)

// Stream event types, in the order a client sees them
const (
	EventContext  = "context"
	EventThinking = "thinking"
	EventAnswer   = "answer"
	EventToken    = "token"
	EventDone     = "done"
	EventError    = "error"
)

// QueryRequest is the request to ask a question against the caller's documents
type QueryRequest struct {
	Query       string   `json:"query" binding:"required,min=1,max=2000"`
	TopK        int      `json:"top_k,omitempty" binding:"omitempty,min=1"`
	Mode        string   `json:"mode,omitempty" binding:"omitempty,oneof=direct chain_of_thought"`
	MaxTokens   int      `json:"max_tokens,omitempty" binding:"omitempty,min=1,max=4096"`
	Temperature *float64 `json:"temperature,omitempty" binding:"omitempty,min=0,max=2"`
	// UseCoT selects chain_of_thought when Mode is empty.
	UseCoT bool `json:"use_cot,omitempty"`

	OwnerID string `json:"-"`
}

// RetrievalMetadata summarizes retrieval quality for a query
type RetrievalMetadata struct {
	TotalDocumentsForOwner int     `json:"total_documents_for_owner"`
	DocumentsRetrieved     int     `json:"documents_retrieved"`
	ChunksRetrieved        int     `json:"chunks_retrieved"`
	AverageSimilarity      float64 `json:"average_similarity"`
}

// QueryResponse is the batch answer to a query
type QueryResponse struct {
	Query     string             `json:"query"`
	Answer    string             `json:"answer"`
	Reasoning string             `json:"reasoning,omitempty"`
	Context   []RetrievedMatch   `json:"context"`
	Metadata  *RetrievalMetadata `json:"metadata,omitempty"`
}

// StreamEvent represents one event in an SSE query stream
type StreamEvent struct {
	Type     string             `json:"type"` // context, thinking, answer, token, done, error
	Content  string             `json:"content,omitempty"`
	Chunks   []RetrievedMatch   `json:"chunks,omitempty"`
	Metadata *RetrievalMetadata `json:"metadata,omitempty"`
	Message  string             `json:"message,omitempty"`
}

// IsTerminal reports whether the event ends a stream
func (e StreamEvent) IsTerminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// Section markers shared by the chain-of-thought prompt and the stream parser
const (
	MarkerReasoningStart = "<thinking>"
	MarkerReasoningEnd   = "</thinking>"
	MarkerAnswerStart    = "<answer>"
	MarkerAnswerEnd      = "</answer>"
)
