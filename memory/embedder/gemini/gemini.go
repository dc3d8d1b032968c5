// Package gemini embeds text with Google's Gemini embedding models.
package gemini

import (
	"context"
	"sync/atomic"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// DefaultModel is the embedding model used when none is given.
const DefaultModel = "gemini-embedding-001"

// Embedder calls the Gemini API for embeddings.
type Embedder struct {
	client *genai.Client
	model  string
	dims   atomic.Int64
}

// New creates an embedder using the Gemini developer API.
func New(ctx context.Context, apiKey, model string) (*Embedder, error) {
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}
	return &Embedder{client: client, model: model}, nil
}

// Embed implements memory.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), &genai.EmbedContentConfig{})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed content", goerr.V("model", e.model))
	}
	if resp == nil || len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, goerr.New("no embedding in gemini response", goerr.V("model", e.model))
	}

	vec := resp.Embeddings[0].Values
	e.dims.Store(int64(len(vec)))
	return vec, nil
}

// Dimensions returns the size seen on the last call, or 0 before any call.
func (e *Embedder) Dimensions() int {
	return int(e.dims.Load())
}
