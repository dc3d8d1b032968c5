package memory

import (
	"context"

	"github.com/MichaelIeong/SAGE/core"
)

// Embedder converts text to vector embeddings.
// Implementations: mock (tests), ollama, openai, gemini, onnx.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size, or 0 if not yet known.
	Dimensions() int
}

// EmbedderSource resolves an embedding model identifier to an Embedder.
type EmbedderSource interface {
	Embedder(modelID string) (Embedder, error)
}

// Index is a live handle on one persisted similarity-search index. Tool
// adapters only ever see it through Bank.Search.
type Index interface {
	// Path is the index location relative to the store root
	// ("<namespace>" or "<namespace>/<user>").
	Path() string

	// Search returns document texts, most similar first. Equal scores keep
	// insertion order.
	Search(ctx context.Context, query string, topK int) ([]string, error)

	// Append embeds and adds one document without touching the others.
	Append(ctx context.Context, doc core.Document) error

	// Count returns the number of indexed documents.
	Count() int
}

// IndexManager builds or loads the indexes for one namespace.
type IndexManager interface {
	// BuildOrLoad returns one Index per corpus partition, keyed by
	// Partition.Key. With load set, partitions whose index already exists on
	// disk are opened without embedding anything; all others are rebuilt
	// from scratch, replacing any previous index.
	BuildOrLoad(ctx context.Context, namespace string, corpus Corpus, embedder Embedder, load bool) (map[string]Index, error)
}

// Ingestor fetches raw records for a source kind. It never fails: errors
// are logged and reported as an empty result.
type Ingestor interface {
	Fetch(ctx context.Context, kind core.SourceKind) []core.Record
}

// Profiler summarizes a user's dated utterances into a preference profile.
type Profiler interface {
	Profile(ctx context.Context, user string, history map[string][]string) (string, error)
}
