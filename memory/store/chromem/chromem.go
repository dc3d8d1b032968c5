// Package chromem persists namespace indexes with chromem-go, a pure Go
// embedded vector database. Each partition (a flat namespace, or one user of
// a per-user namespace) is its own persistent DB directory under the store
// root.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	chromem "github.com/philippgille/chromem-go"

	"github.com/MichaelIeong/SAGE/core"
	"github.com/MichaelIeong/SAGE/logging"
	"github.com/MichaelIeong/SAGE/memory"
)

// collectionName is the single collection inside every partition DB.
const collectionName = "documents"

// Manager builds, loads and tracks the indexes under one root directory.
type Manager struct {
	root        string
	compress    bool
	concurrency int

	mu      sync.RWMutex
	handles map[string]*Index // keyed by partition path
}

// Option configures a Manager.
type Option func(*Manager)

// WithCompression gzips persisted documents.
func WithCompression(compress bool) Option {
	return func(m *Manager) {
		m.compress = compress
	}
}

// WithConcurrency sets how many goroutines chromem uses to write documents.
func WithConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// New creates a Manager storing indexes under root.
func New(root string, opts ...Option) (*Manager, error) {
	if root == "" {
		return nil, goerr.New("vector store root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create vector store root", goerr.V("root", root))
	}

	m := &Manager{
		root:        root,
		concurrency: runtime.NumCPU(),
		handles:     make(map[string]*Index),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// BuildOrLoad implements memory.IndexManager.
func (m *Manager) BuildOrLoad(ctx context.Context, namespace string, corpus memory.Corpus, embedder memory.Embedder, load bool) (map[string]memory.Index, error) {
	if namespace == "" {
		return nil, goerr.New("namespace is required")
	}
	if corpus == nil {
		return nil, goerr.New("corpus is required", goerr.V("namespace", namespace))
	}

	out := make(map[string]memory.Index)
	for _, p := range corpus.Partitions(namespace) {
		idx, err := m.buildOrLoad(ctx, p, embedder, load)
		if err != nil {
			return nil, err
		}
		out[p.Key] = idx
	}
	return out, nil
}

// Lookup returns the live handle for a partition path built or loaded by
// this Manager.
func (m *Manager) Lookup(path string) (memory.Index, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, ok := m.handles[path]
	if !ok {
		return nil, goerr.Wrap(memory.ErrIndexNotFound, "index was not built in this process",
			goerr.V("path", path))
	}
	return idx, nil
}

// Exists reports whether a persisted index directory is present for path.
func (m *Manager) Exists(path string) bool {
	info, err := os.Stat(m.dir(path))
	return err == nil && info.IsDir()
}

func (m *Manager) dir(path string) string {
	return filepath.Join(m.root, filepath.FromSlash(path))
}

func (m *Manager) buildOrLoad(ctx context.Context, p memory.Partition, embedder memory.Embedder, load bool) (*Index, error) {
	logger := logging.From(ctx).With("path", p.Path)
	dir := m.dir(p.Path)

	if load && m.Exists(p.Path) {
		idx, err := m.open(p.Path, embedder)
		if err == nil {
			logger.Info("loaded index", "documents", idx.Count())
			m.track(idx)
			return idx, nil
		}
		logger.Warn("failed to load index, rebuilding", "error", err)
	}

	if err := m.build(ctx, p, embedder); err != nil {
		return nil, err
	}

	idx, err := m.open(p.Path, embedder)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open rebuilt index", goerr.V("dir", dir))
	}
	logger.Info("built index", "documents", idx.Count())
	m.track(idx)
	return idx, nil
}

func (m *Manager) track(idx *Index) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handles[idx.path] = idx
}

// build embeds every text, writes a complete DB to a temp directory next to
// the target, and only then swaps it into place. Any failure removes the
// temp directory and leaves the previous index as it was.
func (m *Manager) build(ctx context.Context, p memory.Partition, embedder memory.Embedder) error {
	dir := m.dir(p.Path)
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return goerr.Wrap(err, "failed to create index parent", goerr.V("dir", parent))
	}

	docs := make([]chromem.Document, 0, len(p.Texts))
	for i, text := range p.Texts {
		vec, err := embedder.Embed(ctx, text)
		if err != nil {
			return embeddingError(err, p.Path)
		}
		docs = append(docs, newDocument(i, core.Document{Text: text}, vec))
	}

	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(dir)+".build-")
	if err != nil {
		return goerr.Wrap(err, "failed to create build directory", goerr.V("dir", parent))
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(tmp)
		}
	}()

	db, err := chromem.NewPersistentDB(tmp, m.compress)
	if err != nil {
		return goerr.Wrap(err, "failed to create persistent db", goerr.V("dir", tmp))
	}
	col, err := db.CreateCollection(collectionName, map[string]string{"path": p.Path}, embeddingFunc(embedder))
	if err != nil {
		return goerr.Wrap(err, "failed to create collection", goerr.V("dir", tmp))
	}
	if len(docs) > 0 {
		if err := col.AddDocuments(ctx, docs, m.concurrency); err != nil {
			return goerr.Wrap(err, "failed to add documents", goerr.V("dir", tmp))
		}
	}

	if err := swap(tmp, dir); err != nil {
		return err
	}
	committed = true
	return nil
}

// swap moves the freshly built directory tmp to dir, replacing any existing
// index.
func swap(tmp, dir string) error {
	old := ""
	if _, err := os.Stat(dir); err == nil {
		old = fmt.Sprintf("%s.old-%s", dir, uuid.New().String())
		if err := os.Rename(dir, old); err != nil {
			return goerr.Wrap(err, "failed to move previous index aside", goerr.V("dir", dir))
		}
	}

	if err := os.Rename(tmp, dir); err != nil {
		if old != "" {
			if rerr := os.Rename(old, dir); rerr != nil {
				err = errors.Join(err, rerr)
			}
		}
		return goerr.Wrap(err, "failed to move index into place", goerr.V("dir", dir))
	}

	if old != "" {
		if err := os.RemoveAll(old); err != nil {
			return goerr.Wrap(err, "failed to remove previous index", goerr.V("dir", old))
		}
	}
	return nil
}

// open loads a persisted DB. chromem keeps the stored embeddings, so
// nothing is re-embedded.
func (m *Manager) open(path string, embedder memory.Embedder) (*Index, error) {
	dir := m.dir(path)
	db, err := chromem.NewPersistentDB(dir, m.compress)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open persistent db", goerr.V("dir", dir))
	}
	col := db.GetCollection(collectionName, embeddingFunc(embedder))
	if col == nil {
		return nil, goerr.New("collection missing from index", goerr.V("dir", dir))
	}
	return &Index{
		path:     path,
		db:       db,
		col:      col,
		embedder: embedder,
	}, nil
}

// Index is a live handle on one persisted partition.
type Index struct {
	path     string
	db       *chromem.DB
	col      *chromem.Collection
	embedder memory.Embedder

	mu sync.Mutex // serializes Append so sequence ids stay unique
}

var _ memory.Index = (*Index)(nil)

// Path implements memory.Index.
func (i *Index) Path() string {
	return i.path
}

// Count implements memory.Index.
func (i *Index) Count() int {
	return i.col.Count()
}

// Search implements memory.Index. Every document is scored so that ties
// across the top-k boundary resolve by insertion order.
func (i *Index) Search(ctx context.Context, query string, topK int) ([]string, error) {
	if topK < 1 {
		return []string{}, nil
	}

	vec, err := i.embedder.Embed(ctx, query)
	if err != nil {
		return nil, embeddingError(err, i.path)
	}

	n := i.col.Count()
	if n == 0 {
		return []string{}, nil
	}

	results, err := i.col.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "chromem query failed", goerr.V("path", i.path))
	}

	sort.SliceStable(results, func(a, b int) bool {
		if results[a].Similarity != results[b].Similarity {
			return results[a].Similarity > results[b].Similarity
		}
		return results[a].ID < results[b].ID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	texts := make([]string, len(results))
	for k, r := range results {
		texts[k] = r.Content
	}

	logging.From(ctx).Debug("searched index", "path", i.path, "results", len(texts))
	return texts, nil
}

// Append implements memory.Index. Only the new document is embedded.
func (i *Index) Append(ctx context.Context, doc core.Document) error {
	vec, err := i.embedder.Embed(ctx, doc.Text)
	if err != nil {
		return embeddingError(err, i.path)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.col.AddDocument(ctx, newDocument(i.col.Count(), doc, vec)); err != nil {
		return goerr.Wrap(err, "failed to append document", goerr.V("path", i.path))
	}
	return nil
}

// newDocument builds the stored form of doc. IDs are zero-padded insertion
// sequence numbers, which makes them sort in insertion order.
func newDocument(seq int, doc core.Document, vec []float32) chromem.Document {
	metadata := make(map[string]string, len(doc.Metadata)+1)
	for k, v := range doc.Metadata {
		metadata[k] = v
	}
	if doc.Kind != "" {
		metadata["kind"] = string(doc.Kind)
	}
	return chromem.Document{
		ID:        fmt.Sprintf("%010d", seq),
		Content:   doc.Text,
		Embedding: vec,
		Metadata:  metadata,
	}
}

func embeddingFunc(e memory.Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return e.Embed(ctx, text)
	}
}

func embeddingError(err error, path string) error {
	return errors.Join(memory.ErrEmbeddingBackend,
		goerr.Wrap(err, "failed to embed text", goerr.V("path", path)))
}
