package embedder

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/MichaelIeong/SAGE/memory"
	"github.com/MichaelIeong/SAGE/memory/embedder/mock"
	"github.com/MichaelIeong/SAGE/memory/embedder/ollama"
)

type countingEmbedder struct {
	calls atomic.Int32
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return []float32{float32(len(text)), 1}, nil
}

func (c *countingEmbedder) Dimensions() int { return 2 }

func unwrap(e memory.Embedder) memory.Embedder {
	if c, ok := e.(*cachedEmbedder); ok {
		return c.next
	}
	return e
}

func TestRegistry_SameIDSameInstance(t *testing.T) {
	r, err := New()
	gt.NoError(t, err)
	defer r.Close()

	a, err := r.Embedder("mock")
	gt.NoError(t, err)
	b, err := r.Embedder("mock")
	gt.NoError(t, err)
	gt.True(t, a == b)
	gt.Equal(t, a.Dimensions(), 384)

	c, err := r.Embedder("mock:16")
	gt.NoError(t, err)
	gt.True(t, a != c)
	gt.Equal(t, c.Dimensions(), 16)
}

func TestRegistry_BareNameIsOllama(t *testing.T) {
	r, err := New(WithOllamaURL("http://127.0.0.1:1/api"))
	gt.NoError(t, err)
	defer r.Close()

	for _, id := range []string{"nomic-embed-text", "nomic-embed-text:latest", "ollama:all-minilm", ""} {
		e, err := r.Embedder(id)
		gt.NoError(t, err)
		_, ok := unwrap(e).(*ollama.Embedder)
		gt.True(t, ok)
	}
}

func TestRegistry_Errors(t *testing.T) {
	r, err := New()
	gt.NoError(t, err)
	defer r.Close()

	_, err = r.Embedder("openai:text-embedding-3-small")
	gt.Error(t, err)
	_, err = r.Embedder("gemini:gemini-embedding-001")
	gt.Error(t, err)
	_, err = r.Embedder("mock:zero")
	gt.Error(t, err)
}

func TestRegistry_CachesQueryEmbeddings(t *testing.T) {
	ctx := context.Background()
	r, err := New()
	gt.NoError(t, err)
	defer r.Close()

	counter := &countingEmbedder{}
	r.Register("count", func(context.Context, string) (memory.Embedder, error) {
		return counter, nil
	})

	e, err := r.Embedder("count:any")
	gt.NoError(t, err)

	first, err := e.Embed(ctx, "turn on the tv")
	gt.NoError(t, err)
	r.cache.Wait()

	second, err := e.Embed(ctx, "turn on the tv")
	gt.NoError(t, err)
	gt.Equal(t, first, second)
	gt.Equal(t, counter.calls.Load(), int32(1))

	_, err = e.Embed(ctx, "something else")
	gt.NoError(t, err)
	gt.Equal(t, counter.calls.Load(), int32(2))
}

func TestRegistry_CacheDisabled(t *testing.T) {
	ctx := context.Background()
	r, err := New(WithCacheSize(0))
	gt.NoError(t, err)
	defer r.Close()

	counter := &countingEmbedder{}
	r.Register("count", func(context.Context, string) (memory.Embedder, error) {
		return counter, nil
	})

	e, err := r.Embedder("count")
	gt.NoError(t, err)
	_, ok := e.(*countingEmbedder)
	gt.True(t, ok)

	for range 3 {
		_, err := e.Embed(ctx, "same")
		gt.NoError(t, err)
	}
	gt.Equal(t, counter.calls.Load(), int32(3))
}

func TestRegistry_CloseResets(t *testing.T) {
	r, err := New()
	gt.NoError(t, err)

	a, err := r.Embedder("mock")
	gt.NoError(t, err)
	gt.NoError(t, r.Close())

	b, err := r.Embedder("mock")
	gt.NoError(t, err)
	_, isMock := b.(*mock.MockEmbedder)
	gt.True(t, isMock)
	gt.True(t, a != b)
}
