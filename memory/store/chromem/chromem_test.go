package chromem_test

import (
	"context"
	"errors"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/MichaelIeong/SAGE/core"
	"github.com/MichaelIeong/SAGE/memory"
	"github.com/MichaelIeong/SAGE/memory/store/chromem"
)

// vocabEmbedder puts each known word on its own axis and every other word
// on a shared trailing axis, so similarity is exactly word overlap.
type vocabEmbedder struct {
	vocab map[string]int
	calls atomic.Int64
	fail  string // Embed fails for texts containing this word
}

func newVocabEmbedder(words ...string) *vocabEmbedder {
	v := &vocabEmbedder{vocab: make(map[string]int)}
	for i, w := range words {
		v.vocab[w] = i
	}
	return v
}

func (v *vocabEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v.calls.Add(1)
	if v.fail != "" && strings.Contains(text, v.fail) {
		return nil, errors.New("backend unavailable")
	}
	vec := make([]float32, len(v.vocab)+1)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if i, ok := v.vocab[w]; ok {
			vec[i]++
		} else {
			vec[len(v.vocab)]++
		}
	}
	return vec, nil
}

func (v *vocabEmbedder) Dimensions() int { return len(v.vocab) + 1 }

var _ memory.Embedder = (*vocabEmbedder)(nil)

func newManager(t *testing.T, root string) *chromem.Manager {
	t.Helper()
	m, err := chromem.New(root, chromem.WithConcurrency(2))
	gt.NoError(t, err)
	return m
}

func TestManager_FlatSearch(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, t.TempDir())
	emb := newVocabEmbedder("tv", "light", "device", "space")

	handles, err := m.BuildOrLoad(ctx, "chroma_deviceinfo",
		memory.FlatCorpus{"Device TV is in space 1", "Device Light is in space 2"}, emb, false)
	gt.NoError(t, err)
	gt.A(t, keys(handles)).Length(1)

	idx := handles["chroma_deviceinfo"]
	gt.V(t, idx).NotNil()
	gt.Equal(t, idx.Count(), 2)

	got, err := idx.Search(ctx, "TV", 1)
	gt.NoError(t, err)
	gt.Equal(t, got, []string{"Device TV is in space 1"})

	all, err := idx.Search(ctx, "light", 10)
	gt.NoError(t, err)
	gt.Equal(t, all, []string{"Device Light is in space 2", "Device TV is in space 1"})
}

func TestManager_PerUserPartitions(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	m := newManager(t, root)
	emb := newVocabEmbedder("tv", "music")

	handles, err := m.BuildOrLoad(ctx, "chroma_userprofile", memory.PerUserCorpus{
		"Alice": {"turn on tv"},
		"bob":   {"play music", "play more music"},
	}, emb, false)
	gt.NoError(t, err)
	gt.Equal(t, keys(handles), []string{"alice", "bob"})
	gt.Equal(t, handles["alice"].Path(), "chroma_userprofile/alice")
	gt.Equal(t, handles["bob"].Count(), 2)

	gt.True(t, m.Exists("chroma_userprofile/alice"))
	gt.True(t, m.Exists("chroma_userprofile/bob"))

	got, err := handles["alice"].Search(ctx, "music", 5)
	gt.NoError(t, err)
	gt.Equal(t, got, []string{"turn on tv"})

	looked, err := m.Lookup("chroma_userprofile/bob")
	gt.NoError(t, err)
	gt.Equal(t, looked.Count(), 2)
}

func TestManager_LoadDoesNotReembed(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	docs := memory.FlatCorpus{"Device TV is in space 1", "Device Light is in space 2"}

	built := newVocabEmbedder("tv", "light", "device", "space")
	_, err := newManager(t, root).BuildOrLoad(ctx, "chroma_deviceinfo", docs, built, false)
	gt.NoError(t, err)
	gt.Equal(t, built.calls.Load(), int64(2))

	// fresh manager, as after a process restart
	reopened := newVocabEmbedder("tv", "light", "device", "space")
	handles, err := newManager(t, root).BuildOrLoad(ctx, "chroma_deviceinfo", memory.FlatCorpus{"ignored"}, reopened, true)
	gt.NoError(t, err)
	gt.Equal(t, reopened.calls.Load(), int64(0))

	got, err := handles["chroma_deviceinfo"].Search(ctx, "device", 10)
	gt.NoError(t, err)
	gt.A(t, got).Length(2)
	for _, text := range got {
		gt.True(t, text == docs[0] || text == docs[1])
	}
	gt.Equal(t, got[0], docs[0]) // tie on "device" keeps insertion order
}

func TestManager_LoadMissingBuilds(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, t.TempDir())
	emb := newVocabEmbedder("tv")

	handles, err := m.BuildOrLoad(ctx, "chroma_environment", memory.FlatCorpus{"tv"}, emb, true)
	gt.NoError(t, err)
	gt.Equal(t, handles["chroma_environment"].Count(), 1)
	gt.Equal(t, emb.calls.Load(), int64(1))
}

func TestManager_RebuildOverwrites(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	m := newManager(t, root)
	emb := newVocabEmbedder("tv", "light")

	_, err := m.BuildOrLoad(ctx, "ns", memory.FlatCorpus{"old tv"}, emb, false)
	gt.NoError(t, err)

	handles, err := m.BuildOrLoad(ctx, "ns", memory.FlatCorpus{"new light", "new tv"}, emb, false)
	gt.NoError(t, err)

	got, err := handles["ns"].Search(ctx, "tv", 10)
	gt.NoError(t, err)
	gt.Equal(t, got, []string{"new tv", "new light"})

	entries, err := os.ReadDir(root)
	gt.NoError(t, err)
	gt.A(t, entries).Length(1) // no leftover build or old directories
}

func TestManager_FailedBuildKeepsPreviousIndex(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	emb := newVocabEmbedder("tv")

	_, err := newManager(t, root).BuildOrLoad(ctx, "ns", memory.FlatCorpus{"tv one"}, emb, false)
	gt.NoError(t, err)

	emb.fail = "poison"
	_, err = newManager(t, root).BuildOrLoad(ctx, "ns", memory.FlatCorpus{"tv two", "poison"}, emb, false)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, memory.ErrEmbeddingBackend))

	entries, err := os.ReadDir(root)
	gt.NoError(t, err)
	gt.A(t, entries).Length(1)

	emb.fail = ""
	handles, err := newManager(t, root).BuildOrLoad(ctx, "ns", memory.FlatCorpus{}, emb, true)
	gt.NoError(t, err)
	got, err := handles["ns"].Search(ctx, "tv", 5)
	gt.NoError(t, err)
	gt.Equal(t, got, []string{"tv one"})
}

func TestIndex_SearchEmbeddingFailure(t *testing.T) {
	ctx := context.Background()
	emb := newVocabEmbedder("tv")
	handles, err := newManager(t, t.TempDir()).BuildOrLoad(ctx, "ns", memory.FlatCorpus{"tv"}, emb, false)
	gt.NoError(t, err)

	emb.fail = "broken"
	_, err = handles["ns"].Search(ctx, "broken query", 3)
	gt.True(t, errors.Is(err, memory.ErrEmbeddingBackend))
}

func TestIndex_AppendWithoutRebuild(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	emb := newVocabEmbedder("alice", "bob", "kitchen")

	handles, err := newManager(t, root).BuildOrLoad(ctx, "chroma_environment",
		memory.FlatCorpus{"Person alice is in kitchen"}, emb, false)
	gt.NoError(t, err)
	before := emb.calls.Load()

	idx := handles["chroma_environment"]
	gt.NoError(t, idx.Append(ctx, core.Document{Text: "Person bob is in garage", Kind: core.SourceEnv}))
	gt.Equal(t, emb.calls.Load(), before+1)
	gt.Equal(t, idx.Count(), 2)

	// appended document is persisted
	reloaded, err := newManager(t, root).BuildOrLoad(ctx, "chroma_environment", memory.FlatCorpus{}, emb, true)
	gt.NoError(t, err)
	got, err := reloaded["chroma_environment"].Search(ctx, "bob", 1)
	gt.NoError(t, err)
	gt.Equal(t, got, []string{"Person bob is in garage"})
}

func TestIndex_EmptyPartition(t *testing.T) {
	ctx := context.Background()
	handles, err := newManager(t, t.TempDir()).BuildOrLoad(ctx, "ns", memory.FlatCorpus{}, newVocabEmbedder("x"), false)
	gt.NoError(t, err)

	got, err := handles["ns"].Search(ctx, "anything", 5)
	gt.NoError(t, err)
	gt.A(t, got).Length(0)
}

func TestManager_LookupUnknown(t *testing.T) {
	_, err := newManager(t, t.TempDir()).Lookup("never/built")
	gt.True(t, errors.Is(err, memory.ErrIndexNotFound))
}

func TestNew_RequiresRoot(t *testing.T) {
	_, err := chromem.New("")
	gt.Error(t, err)

	root := filepath.Join(t.TempDir(), "a", "b")
	_, err = chromem.New(root)
	gt.NoError(t, err)
	_, err = os.Stat(root)
	gt.NoError(t, err)
}

func keys(m map[string]memory.Index) []string {
	return slices.Sorted(maps.Keys(m))
}
