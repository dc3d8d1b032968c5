package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/MichaelIeong/SAGE/core"
	"github.com/MichaelIeong/SAGE/logging"
	"github.com/MichaelIeong/SAGE/source"
)

// State is the lifecycle stage of a Bank. It only moves forward.
type State int

const (
	StateEmpty State = iota
	StateLoaded
	StateIndexed
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateIndexed:
		return "indexed"
	default:
		return "empty"
	}
}

// DateLayout is the calendar date format used as per-user history keys.
const DateLayout = "2006-01-02"

// allUser owns instruction files found directly under a history directory.
const allUser = "all"

// Bank ties one namespace's history to its live indexes.
type Bank struct {
	namespace string
	shape     Shape
	manager   IndexManager
	embedders EmbedderSource
	ingestor  Ingestor
	profiler  Profiler

	mu        sync.RWMutex
	state     State
	history   History
	indexes   map[string]Index
	snapshots int
}

// BankOption configures a Bank.
type BankOption func(*Bank)

// WithShape pins the history shape instead of detecting it from content.
func WithShape(shape Shape) BankOption {
	return func(b *Bank) {
		b.shape = shape
	}
}

// WithIngestor sets the source used by EnsurePopulated.
func WithIngestor(i Ingestor) BankOption {
	return func(b *Bank) {
		b.ingestor = i
	}
}

// WithProfiler sets the summarizer used by Save.
func WithProfiler(p Profiler) BankOption {
	return func(b *Bank) {
		b.profiler = p
	}
}

// NewBank creates an Empty bank for namespace.
func NewBank(namespace string, manager IndexManager, embedders EmbedderSource, opts ...BankOption) *Bank {
	b := &Bank{
		namespace: namespace,
		manager:   manager,
		embedders: embedders,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Namespace returns the bank's namespace name.
func (b *Bank) Namespace() string {
	return b.namespace
}

// State returns the current lifecycle stage.
func (b *Bank) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// History returns the current history, or nil while Empty. Callers must
// not modify it.
func (b *Bank) History() History {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.history
}

func (b *Bank) logger(ctx context.Context) *slog.Logger {
	return logging.From(ctx).With("namespace", b.namespace)
}

// LoadHistory reads history from path. A file holding one JSON object is
// an aggregate per-user history; any other file is a JSONL cache whose
// malformed lines are skipped with a warning. A directory is read as one
// subdirectory per user, each holding instructions/*.json records.
//
// An unreadable aggregate file returns ErrInvalidHistoryFormat and leaves
// the bank untouched.
func (b *Bank) LoadHistory(ctx context.Context, path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateIndexed {
		return goerr.Wrap(ErrAlreadyIndexed, "cannot reload history", goerr.V("namespace", b.namespace))
	}

	logger := b.logger(ctx).With("path", path)
	info, err := os.Stat(path)
	if err != nil {
		return goerr.Wrap(err, "failed to stat history", goerr.V("path", path))
	}

	var h History
	if info.IsDir() {
		if b.shape == ShapeFlat {
			return goerr.Wrap(ErrShapeMismatch, "history directories are per-user",
				goerr.V("namespace", b.namespace), goerr.V("path", path))
		}
		h, err = loadUserDirectories(logger, path)
	} else {
		h, err = b.loadFile(logger, path)
	}
	if err != nil {
		return err
	}

	b.history = h
	b.state = StateLoaded
	logger.Info("loaded history", "shape", h.Shape().String(), "entries", h.Len())
	return nil
}

// StartEmpty moves an Empty flat bank to Loaded with no documents, so that
// indexing yields a live index that Append can grow. Nothing is written to
// disk.
func (b *Bank) StartEmpty(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateEmpty {
		return nil
	}
	if b.shape == ShapePerUser {
		return goerr.Wrap(ErrShapeMismatch, "only flat namespaces start empty",
			goerr.V("namespace", b.namespace))
	}

	b.history = FlatHistory{}
	b.state = StateLoaded
	b.logger(ctx).Info("started empty history")
	return nil
}

func (b *Bank) loadFile(logger *slog.Logger, path string) (History, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read history", goerr.V("path", path))
	}

	shape := b.shape
	if shape == ShapeAuto {
		shape = DetectShape(data)
	}

	if shape == ShapePerUser {
		h, err := ParsePerUserHistory(data)
		if err != nil {
			logger.Warn("invalid aggregate history, namespace left unloaded", "error", err)
			return nil, goerr.Wrap(err, "failed to load history", goerr.V("path", path))
		}
		return h, nil
	}

	docs, err := source.DecodeCache(bytes.NewReader(data), func(line int, err error) {
		logger.Warn("skipping malformed cache line", "line", line, "error", err)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read history", goerr.V("path", path))
	}
	return FlatHistory(docs), nil
}

// loadUserDirectories reads <dir>/<user>/instructions/*.json. JSON files
// placed directly in dir belong to the "all" user.
func loadUserDirectories(logger *slog.Logger, dir string) (PerUserHistory, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read history directory", goerr.V("dir", dir))
	}

	h := make(PerUserHistory)
	for _, e := range entries {
		full := filepath.Join(dir, e.Name())
		if !e.IsDir() {
			if filepath.Ext(e.Name()) == ".json" {
				addInstructionFile(logger, h, allUser, full)
			}
			continue
		}

		files, _ := filepath.Glob(filepath.Join(full, "instructions", "*.json"))
		if len(files) == 0 {
			logger.Info("no instructions found, skipping user", "user", e.Name())
			continue
		}
		for _, f := range files {
			addInstructionFile(logger, h, e.Name(), f)
		}
	}
	return h, nil
}

func addInstructionFile(logger *slog.Logger, h PerUserHistory, user, path string) {
	var rec struct {
		Instruction *string `json:"instruction"`
		Date        string  `json:"date"`
	}
	data, err := os.ReadFile(path)
	if err == nil {
		err = json.Unmarshal(data, &rec)
	}
	if err == nil && rec.Instruction == nil {
		err = goerr.New("instruction is missing")
	}
	if err != nil {
		logger.Warn("skipping unreadable instruction file", "file", path, "error", err)
		return
	}
	h.add(user, *rec.Instruction, rec.Date)
}

func (h PerUserHistory) add(user, text, date string) {
	u, ok := h[user]
	if !ok {
		u = &UserHistory{History: make(map[string][]string)}
		h[user] = u
	}
	u.History[date] = append(u.History[date], text)
}

// EnsurePopulated fills cachePath from the ingestor when it is absent or
// empty. A fetch that yields nothing leaves the file as it was.
func (b *Bank) EnsurePopulated(ctx context.Context, kind core.SourceKind, cachePath string) error {
	logger := b.logger(ctx).With("kind", string(kind), "path", cachePath)

	if data, err := os.ReadFile(cachePath); err == nil && len(bytes.TrimSpace(data)) > 0 {
		logger.Debug("cache present, skipping ingestion")
		return nil
	}

	if b.ingestor == nil {
		return goerr.New("no ingestor configured", goerr.V("namespace", b.namespace))
	}

	records := b.ingestor.Fetch(ctx, kind)
	if len(records) == 0 {
		logger.Warn("no records fetched, cache left as is")
		return nil
	}

	if err := source.EnsureCache(cachePath, records, kind); err != nil {
		return goerr.Wrap(err, "failed to write cache", goerr.V("namespace", b.namespace))
	}
	logger.Info("populated cache", "records", len(records))
	return nil
}

// IndexAll builds or loads the namespace's indexes with the embedding model
// modelID. With loadExisting set, persisted indexes are opened as they are.
func (b *Bank) IndexAll(ctx context.Context, modelID string, loadExisting bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateEmpty {
		return goerr.Wrap(ErrNotLoaded, "cannot index", goerr.V("namespace", b.namespace))
	}

	embedder, err := b.embedders.Embedder(modelID)
	if err != nil {
		return goerr.Wrap(err, "failed to resolve embedder", goerr.V("model", modelID))
	}

	indexes, err := b.manager.BuildOrLoad(ctx, b.namespace, b.history.Corpus(), embedder, loadExisting)
	if err != nil {
		return goerr.Wrap(err, "failed to index namespace", goerr.V("namespace", b.namespace))
	}

	b.indexes = indexes
	b.state = StateIndexed
	b.logger(ctx).Info("indexed namespace", "handles", len(indexes), "load_existing", loadExisting)
	return nil
}

// AddQuery records one utterance for user on date (today when empty). An
// Empty bank becomes a per-user bank. Indexes pick the new entry up at the
// next IndexAll.
func (b *Bank) AddQuery(user, text, date string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.history == nil {
		if b.shape == ShapeFlat {
			return goerr.Wrap(ErrShapeMismatch, "cannot add a query to a flat namespace",
				goerr.V("namespace", b.namespace))
		}
		b.history = make(PerUserHistory)
		b.state = StateLoaded
	}

	h, ok := b.history.(PerUserHistory)
	if !ok {
		return goerr.Wrap(ErrShapeMismatch, "cannot add a query to a flat namespace",
			goerr.V("namespace", b.namespace), goerr.V("user", user))
	}
	if date == "" {
		date = time.Now().Format(DateLayout)
	}
	h.add(user, text, date)
	return nil
}

// Search returns the topK most similar texts from the index named key: the
// namespace itself for flat banks, a user name for per-user banks.
func (b *Bank) Search(ctx context.Context, query, key string, topK int) ([]string, error) {
	idx, err := b.lookup(key)
	if err != nil {
		return nil, err
	}
	return idx.Search(ctx, query, topK)
}

func (b *Bank) lookup(key string) (Index, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.state != StateIndexed {
		return nil, goerr.Wrap(ErrIndexNotFound, "namespace is not indexed",
			goerr.V("namespace", b.namespace), goerr.V("key", key))
	}
	if idx, ok := b.indexes[key]; ok {
		return idx, nil
	}
	if idx, ok := b.indexes[UserKey(key)]; ok {
		return idx, nil
	}
	return nil, goerr.Wrap(ErrNoSuchNamespace, "no index for key",
		goerr.V("namespace", b.namespace), goerr.V("key", key))
}

// Has reports whether key names one of the bank's live indexes.
func (b *Bank) Has(key string) bool {
	_, err := b.lookup(key)
	return err == nil
}

// Append adds one document to an indexed flat bank, embedding only that
// document.
func (b *Bank) Append(ctx context.Context, doc core.Document) error {
	b.mu.RLock()
	_, flat := b.history.(FlatHistory)
	idx, ok := b.indexes[b.namespace]
	state := b.state
	b.mu.RUnlock()

	if state != StateIndexed {
		return goerr.Wrap(ErrIndexNotFound, "namespace is not indexed", goerr.V("namespace", b.namespace))
	}
	if !flat {
		return goerr.Wrap(ErrShapeMismatch, "append needs a flat namespace", goerr.V("namespace", b.namespace))
	}
	if !ok {
		return goerr.Wrap(ErrIndexNotFound, "namespace has no index", goerr.V("namespace", b.namespace))
	}

	if err := idx.Append(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to append document", goerr.V("namespace", b.namespace))
	}

	b.mu.Lock()
	if h, ok := b.history.(FlatHistory); ok {
		b.history = append(h, doc)
	}
	b.mu.Unlock()

	b.logger(ctx).Debug("appended document", "text", doc.Text)
	return nil
}

// Snapshot writes the history to dir/snapshot_<n>.json, or to dir itself
// when it names a .json file, and returns the written path. The counter
// advances even when the write fails.
func (b *Bank) Snapshot(dir string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.snapshots
	b.snapshots++

	path := dir
	if !strings.HasSuffix(dir, ".json") {
		path = filepath.Join(dir, fmt.Sprintf("snapshot_%d.json", n))
	}
	if b.history == nil {
		return "", goerr.Wrap(ErrNotLoaded, "nothing to snapshot", goerr.V("namespace", b.namespace))
	}
	if err := writeHistory(path, b.history); err != nil {
		return "", err
	}
	return path, nil
}

// Save fills in user profiles with the configured Profiler, then writes the
// history to path. A failing profile keeps the user's previous one.
func (b *Bank) Save(ctx context.Context, path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.history == nil {
		return goerr.Wrap(ErrNotLoaded, "nothing to save", goerr.V("namespace", b.namespace))
	}

	if h, ok := b.history.(PerUserHistory); ok && b.profiler != nil {
		logger := b.logger(ctx)
		for _, user := range slices.Sorted(maps.Keys(h)) {
			profile, err := b.profiler.Profile(ctx, user, h[user].History)
			if err != nil {
				logger.Warn("failed to build user profile", "user", user, "error", err)
				continue
			}
			h[user].Profile = profile
		}
	}
	return writeHistory(path, b.history)
}

func writeHistory(path string, h History) error {
	switch h := h.(type) {
	case FlatHistory:
		return source.WriteCache(path, h)

	case PerUserHistory:
		data, err := json.Marshal(h)
		if err != nil {
			return goerr.Wrap(err, "failed to encode history")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return goerr.Wrap(err, "failed to create history directory", goerr.V("path", path))
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return goerr.Wrap(err, "failed to write history", goerr.V("path", path))
		}
		return nil
	}
	return goerr.New("unknown history type")
}

// Len returns the number of stored utterances or documents.
func (b *Bank) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.history == nil {
		return 0
	}
	return b.history.Len()
}

// Contains reports whether user has said query on any date.
func (b *Bank) Contains(user, query string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	h, ok := b.history.(PerUserHistory)
	if !ok {
		return false
	}
	u, ok := h[user]
	if !ok {
		return false
	}
	for _, qs := range u.History {
		if slices.Contains(qs, query) {
			return true
		}
	}
	return false
}

// Keys lists the live index keys, sorted.
func (b *Bank) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Sorted(maps.Keys(b.indexes))
}
