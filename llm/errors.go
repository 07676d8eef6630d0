package llm

import "errors"

// Error taxonomy shared by every stage of the pipeline.
// Stages wrap these with fmt.Errorf("...: %w") so callers can use errors.Is.
var (
	// ErrInvalidDocument means the document has no extractable text
	ErrInvalidDocument = errors.New("invalid document: no extractable text")

	// ErrEmbeddingProvider means the embedding provider failed or returned a malformed response
	ErrEmbeddingProvider = errors.New("embedding provider error")

	// ErrIndexUnavailable means the vector index could not be reached
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrUnknownSession means a search was issued for a session that was never built
	ErrUnknownSession = errors.New("unknown session")

	// ErrGenerationProvider means the generation provider failed
	ErrGenerationProvider = errors.New("generation provider error")

	// ErrRerankProvider means the reranking scorer failed
	ErrRerankProvider = errors.New("rerank provider error")

	// ErrNotFound means no session has been registered yet
	ErrNotFound = errors.New("not found")

	// ErrDimensionMismatch means a vector does not match the session's embedding dimension
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmbeddingModelMismatch means a session is used with a different embedding model than it was built with
	ErrEmbeddingModelMismatch = errors.New("embedding model mismatch")

	// ErrModeMismatch means a session is queried in a different retrieval mode than it was built in
	ErrModeMismatch = errors.New("retrieval mode mismatch")

	// ErrInvalidChunkConfig means chunk size and overlap are out of range
	ErrInvalidChunkConfig = errors.New("invalid chunk config")
)
