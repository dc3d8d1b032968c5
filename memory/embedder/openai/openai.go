// Package openai embeds text with the OpenAI embeddings API.
package openai

import (
	"context"
	"sync/atomic"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sashabaranov/go-openai"
)

// DefaultModel is the embedding model used when none is given.
const DefaultModel = "text-embedding-3-small"

// Embedder calls OpenAI (or a compatible server) for embeddings.
type Embedder struct {
	client *openai.Client
	model  string
	dims   atomic.Int64
}

// New creates an embedder. A non-empty baseURL points the client at an
// OpenAI-compatible server.
func New(apiKey, model, baseURL string) *Embedder {
	if model == "" {
		model = DefaultModel
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Embedder{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Embed implements memory.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	rsp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "openai embedding failed", goerr.V("model", e.model))
	}

	if len(rsp.Data) == 0 || len(rsp.Data[0].Embedding) == 0 {
		return nil, goerr.New("no embedding in openai response", goerr.V("model", e.model))
	}

	vec := rsp.Data[0].Embedding
	e.dims.Store(int64(len(vec)))
	return vec, nil
}

// Dimensions returns the size seen on the last call, or 0 before any call.
func (e *Embedder) Dimensions() int {
	return int(e.dims.Load())
}
