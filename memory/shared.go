package memory

import (
	"context"
	"errors"
	"os"

	"github.com/m-mizutani/goerr/v2"

	"github.com/MichaelIeong/SAGE/core"
	"github.com/MichaelIeong/SAGE/logging"
)

// Shared holds one independent Bank per configured namespace. It is built
// once at startup and handed to tools and feed handlers.
type Shared struct {
	cfg   *Config
	banks []*Bank
	byNS  map[string]*Bank
}

// NewShared creates an Empty bank for every namespace in cfg. opts apply to
// every bank; each namespace's configured shape is applied on top.
func NewShared(cfg *Config, manager IndexManager, embedders EmbedderSource, opts ...BankOption) (*Shared, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Shared{cfg: cfg, byNS: make(map[string]*Bank, len(cfg.Namespaces))}
	for _, ns := range cfg.Namespaces {
		shape, _ := ParseShape(ns.Shape)
		bankOpts := append(append([]BankOption{}, opts...), WithShape(shape))
		b := NewBank(ns.Name, manager, embedders, bankOpts...)
		s.banks = append(s.banks, b)
		s.byNS[ns.Name] = b
	}
	return s, nil
}

// Init populates, loads and indexes every namespace. Missing or unreadable
// caches leave their namespace unloaded with a warning, except that a flat
// namespace with a source starts from an empty index. Indexing failures are
// returned together after every namespace has been tried.
func (s *Shared) Init(ctx context.Context) error {
	var errs []error
	for _, ns := range s.cfg.Namespaces {
		b := s.byNS[ns.Name]
		logger := logging.From(ctx).With("namespace", ns.Name)

		if ns.Source != "" {
			if err := b.EnsurePopulated(ctx, ns.Source, ns.CachePath); err != nil {
				logger.Warn("failed to populate cache", "error", err)
			}
		}

		if _, err := os.Stat(ns.CachePath); err != nil {
			// a sourced flat namespace still gets an empty live index for
			// the feed to append to
			if ns.Source == "" || b.StartEmpty(ctx) != nil {
				logger.Warn("no history found, namespace left unloaded", "path", ns.CachePath)
				continue
			}
			logger.Warn("no history found, starting with an empty index", "path", ns.CachePath)
		} else if err := b.LoadHistory(ctx, ns.CachePath); err != nil {
			logger.Warn("failed to load history, namespace left unloaded", "error", err)
			continue
		}

		if err := b.IndexAll(ctx, s.cfg.EmbeddingModel, s.cfg.LoadExisting); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Search resolves key as a namespace name first, then as a user of any
// indexed per-user namespace. topK <= 0 uses the configured default.
func (s *Shared) Search(ctx context.Context, query, key string, topK int) ([]string, error) {
	if topK <= 0 {
		topK = s.cfg.TopK
	}

	if b, ok := s.byNS[key]; ok {
		return b.Search(ctx, query, key, topK)
	}
	for _, b := range s.banks {
		if b.Has(key) {
			return b.Search(ctx, query, key, topK)
		}
	}
	return nil, goerr.Wrap(ErrNoSuchNamespace, "no namespace or user matches", goerr.V("key", key))
}

// Bank returns the bank of a namespace.
func (s *Shared) Bank(namespace string) (*Bank, bool) {
	b, ok := s.byNS[namespace]
	return b, ok
}

// Banks returns all banks in configuration order.
func (s *Shared) Banks() []*Bank {
	return s.banks
}

// Environment returns the bank fed by the env source, which receives live
// location updates. It falls back to the default environment namespace.
func (s *Shared) Environment() (*Bank, bool) {
	for _, ns := range s.cfg.Namespaces {
		if ns.Source == core.SourceEnv {
			return s.byNS[ns.Name], true
		}
	}
	return s.Bank(NamespaceEnvironment)
}

// TopK returns the configured default result count.
func (s *Shared) TopK() int {
	return s.cfg.TopK
}
