package memory

import "github.com/m-mizutani/goerr/v2"

// Ingestion failures (source.ErrFetch) and unreadable cache lines
// (source.ErrMalformedCacheLine) are recovered where they happen and only
// logged. Everything below is surfaced to the caller.
var (
	// ErrInvalidHistoryFormat means an aggregate per-user file could not be
	// read; the bank's history stays unset.
	ErrInvalidHistoryFormat = goerr.New("invalid history format")
	// ErrShapeMismatch means a per-user operation was called on a flat bank.
	ErrShapeMismatch = goerr.New("operation does not match history shape")
	// ErrIndexNotFound means the index was never built in this process.
	ErrIndexNotFound = goerr.New("index not found")
	// ErrNoSuchNamespace means neither a namespace nor a user matched.
	ErrNoSuchNamespace = goerr.New("no such namespace or user")
	// ErrEmbeddingBackend wraps a failing embedding call.
	ErrEmbeddingBackend = goerr.New("embedding backend failed")
	// ErrNotLoaded means the bank has no history yet.
	ErrNotLoaded = goerr.New("memory bank has no history loaded")
	// ErrAlreadyIndexed means a load was attempted after indexing.
	ErrAlreadyIndexed = goerr.New("memory bank is already indexed")
)
