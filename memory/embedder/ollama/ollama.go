// Package ollama embeds text with a local Ollama server through chromem-go's
// Ollama client.
package ollama

import (
	"context"
	"sync/atomic"

	"github.com/m-mizutani/goerr/v2"
	chromem "github.com/philippgille/chromem-go"
)

// DefaultModel is the embedding model used when none is given.
const DefaultModel = "nomic-embed-text"

// Embedder calls Ollama's embeddings API.
type Embedder struct {
	model string
	embed chromem.EmbeddingFunc
	dims  atomic.Int64
}

// New creates an embedder for model. An empty baseURL uses Ollama's default
// (http://localhost:11434/api).
func New(model, baseURL string) *Embedder {
	if model == "" {
		model = DefaultModel
	}
	return &Embedder{
		model: model,
		embed: chromem.NewEmbeddingFuncOllama(model, baseURL),
	}
}

// Embed implements memory.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embed(ctx, text)
	if err != nil {
		return nil, goerr.Wrap(err, "ollama embedding failed", goerr.V("model", e.model))
	}
	e.dims.Store(int64(len(vec)))
	return vec, nil
}

// Dimensions returns the size seen on the last call, or 0 before any call.
func (e *Embedder) Dimensions() int {
	return int(e.dims.Load())
}
