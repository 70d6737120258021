package domain

import "errors"

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrSessionNotFound signals a missing chat session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidRequest signals a malformed search request.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrRetrievalUnavailable signals that candidate retrieval failed and
	// no ranking can take place.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	// ErrLLMUnavailable signals that no completion provider produced output.
	ErrLLMUnavailable = errors.New("llm unavailable")
)
