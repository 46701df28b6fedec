package domain

import "errors"

var (
	// ErrNotFound indicates resource not found
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidRequest indicates invalid request
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnauthorized indicates unauthorized access
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict indicates a uniqueness conflict on (owner, source)
	ErrConflict = errors.New("conflict")

	// ErrChunkContractViolation indicates a chunk with missing or foreign ownership metadata
	ErrChunkContractViolation = errors.New("chunk contract violation")
	// ErrStrategyNotFound indicates an unregistered chunking strategy
	ErrStrategyNotFound = errors.New("chunking strategy not found")
	// ErrIndexingFailed indicates chunks could not be submitted to the vector store
	ErrIndexingFailed = errors.New("indexing failed")
	// ErrDeletionFailed indicates chunks could not be removed from the vector store
	ErrDeletionFailed = errors.New("vector deletion failed")
	// ErrRetrievalFailed indicates the similarity search failed
	ErrRetrievalFailed = errors.New("retrieval failed")
	// ErrCompletionFailed indicates the completion service failed
	ErrCompletionFailed = errors.New("completion failed")
	// ErrIsolationBreach indicates a match owned by another user reached the retrieval layer
	ErrIsolationBreach = errors.New("owner isolation breach")
)
