// Package embedder resolves embedding model identifiers to live embedders.
//
// Model ids have the form "<backend>:<model>". Supported backends are mock,
// ollama, openai, gemini and onnx (the last only in binaries built with the
// onnx tag). An id without a known backend prefix is an Ollama model name,
// so "nomic-embed-text" and "nomic-embed-text:latest" both go to Ollama.
//
// Each id is constructed once per Registry and reused. Query embeddings are
// cached per id, so repeated searches for the same text skip the backend.
package embedder

import (
	"context"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/dgraph-io/ristretto"
	"github.com/m-mizutani/goerr/v2"

	"github.com/MichaelIeong/SAGE/memory"
	"github.com/MichaelIeong/SAGE/memory/embedder/gemini"
	"github.com/MichaelIeong/SAGE/memory/embedder/mock"
	"github.com/MichaelIeong/SAGE/memory/embedder/ollama"
	"github.com/MichaelIeong/SAGE/memory/embedder/openai"
)

// DefaultModelID is used when a caller passes an empty id.
const DefaultModelID = "ollama:" + ollama.DefaultModel

// Factory builds an embedder for the model part of an id.
type Factory func(ctx context.Context, model string) (memory.Embedder, error)

// Registry caches embedders per model id.
type Registry struct {
	ollamaURL     string
	openaiKey     string
	openaiBaseURL string
	geminiKey     string
	onnxLibrary   string
	cacheSize     int64

	mu        sync.Mutex
	factories map[string]Factory
	embedders map[string]memory.Embedder
	cache     *ristretto.Cache
}

var _ memory.EmbedderSource = (*Registry)(nil)

// Option configures a Registry.
type Option func(*Registry)

// WithOllamaURL sets the Ollama API base, e.g. http://localhost:11434/api.
func WithOllamaURL(url string) Option {
	return func(r *Registry) {
		r.ollamaURL = url
	}
}

// WithOpenAI sets the OpenAI credentials. baseURL may be empty.
func WithOpenAI(apiKey, baseURL string) Option {
	return func(r *Registry) {
		r.openaiKey = apiKey
		r.openaiBaseURL = baseURL
	}
}

// WithGeminiKey sets the Gemini API key.
func WithGeminiKey(apiKey string) Option {
	return func(r *Registry) {
		r.geminiKey = apiKey
	}
}

// WithONNXLibrary sets the path of libonnxruntime.
func WithONNXLibrary(path string) Option {
	return func(r *Registry) {
		r.onnxLibrary = path
	}
}

// WithCacheSize bounds the number of cached query embeddings. Zero disables
// the cache.
func WithCacheSize(n int64) Option {
	return func(r *Registry) {
		r.cacheSize = n
	}
}

// New creates a Registry with the built-in backends.
func New(opts ...Option) (*Registry, error) {
	r := &Registry{
		cacheSize: 10_000,
		embedders: make(map[string]memory.Embedder),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.factories = map[string]Factory{
		"mock":   newMock,
		"ollama": r.newOllama,
		"openai": r.newOpenAI,
		"gemini": r.newGemini,
		"onnx":   r.newONNX,
	}

	if r.cacheSize > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: r.cacheSize * 10,
			MaxCost:     r.cacheSize,
			BufferItems: 64,
		})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create embedding cache")
		}
		r.cache = cache
	}
	return r, nil
}

// Register adds or replaces a backend.
func (r *Registry) Register(backend string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[backend] = f
}

// Embedder implements memory.EmbedderSource.
func (r *Registry) Embedder(modelID string) (memory.Embedder, error) {
	if modelID == "" {
		modelID = DefaultModelID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.embedders[modelID]; ok {
		return e, nil
	}

	backend, model := r.parse(modelID)
	factory, ok := r.factories[backend]
	if !ok {
		return nil, goerr.New("unknown embedding backend", goerr.V("model_id", modelID))
	}

	e, err := factory(context.Background(), model)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embedder", goerr.V("model_id", modelID))
	}
	if r.cache != nil {
		e = &cachedEmbedder{id: modelID, next: e, cache: r.cache}
	}
	r.embedders[modelID] = e
	return e, nil
}

// Close releases cached embedders and the query cache.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for id, e := range r.embedders {
		if c, ok := e.(*cachedEmbedder); ok {
			e = c.next
		}
		if closer, ok := e.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, goerr.Wrap(err, "failed to close embedder", goerr.V("model_id", id)))
			}
		}
	}
	r.embedders = make(map[string]memory.Embedder)
	if r.cache != nil {
		r.cache.Close()
		r.cache = nil
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// parse splits a model id into backend and model. Callers hold r.mu.
func (r *Registry) parse(modelID string) (string, string) {
	if backend, model, ok := strings.Cut(modelID, ":"); ok {
		if _, known := r.factories[backend]; known {
			return backend, model
		}
	}
	if _, known := r.factories[modelID]; known {
		return modelID, ""
	}
	return "ollama", modelID
}

func newMock(_ context.Context, model string) (memory.Embedder, error) {
	if model == "" {
		return mock.New(), nil
	}
	dims, err := strconv.Atoi(model)
	if err != nil || dims < 1 {
		return nil, goerr.New("mock model must be a positive dimension count", goerr.V("model", model))
	}
	return mock.NewWithDimensions(dims), nil
}

func (r *Registry) newOllama(_ context.Context, model string) (memory.Embedder, error) {
	return ollama.New(model, r.ollamaURL), nil
}

func (r *Registry) newOpenAI(_ context.Context, model string) (memory.Embedder, error) {
	if r.openaiKey == "" && r.openaiBaseURL == "" {
		return nil, goerr.New("openai api key is not configured")
	}
	return openai.New(r.openaiKey, model, r.openaiBaseURL), nil
}

func (r *Registry) newGemini(ctx context.Context, model string) (memory.Embedder, error) {
	if r.geminiKey == "" {
		return nil, goerr.New("gemini api key is not configured")
	}
	return gemini.New(ctx, r.geminiKey, model)
}

// cachedEmbedder memoizes embeddings in a shared ristretto cache keyed by
// model id and text.
type cachedEmbedder struct {
	id    string
	next  memory.Embedder
	cache *ristretto.Cache
}

func (c *cachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.id + "\x00" + text
	if v, ok := c.cache.Get(key); ok {
		if vec, ok := v.([]float32); ok {
			return slices.Clone(vec), nil
		}
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, slices.Clone(vec), 1)
	return vec, nil
}

func (c *cachedEmbedder) Dimensions() int {
	return c.next.Dimensions()
}
