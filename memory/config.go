package memory

import (
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"

	"github.com/MichaelIeong/SAGE/core"
)

// Default namespace names.
const (
	NamespaceUserProfile = "chroma_userprofile"
	NamespaceDeviceInfo  = "chroma_deviceinfo"
	NamespaceEnvironment = "chroma_environment"
)

// Config describes every namespace served by a Shared memory.
type Config struct {
	// VectorstorePath is the root directory of persisted indexes.
	VectorstorePath string `yaml:"vectorstore_path"`
	// EmbeddingModel is an embedder model id, e.g. "ollama:nomic-embed-text".
	EmbeddingModel string `yaml:"embedding_model"`
	// LoadExisting opens persisted indexes instead of rebuilding them.
	LoadExisting bool `yaml:"load_existing"`
	// CompressIndexes gzips persisted index documents.
	CompressIndexes bool `yaml:"compress_indexes"`
	// TopK is the default number of search results.
	TopK int `yaml:"top_k"`

	Namespaces []NamespaceConfig `yaml:"namespaces"`
	Source     SourceConfig      `yaml:"source"`
	Embedder   EmbedderConfig    `yaml:"embedder"`
	Feed       FeedConfig        `yaml:"feed"`
	Profiler   ProfilerConfig    `yaml:"profiler"`
}

// NamespaceConfig describes one namespace.
type NamespaceConfig struct {
	Name string `yaml:"name"`
	// Shape is "per_user", "flat" or empty to detect from the cache file.
	Shape string `yaml:"shape"`
	// CachePath is the history file (or per-user directory).
	CachePath string `yaml:"cache_path"`
	// Source names the ingestor kind that fills CachePath when it is
	// missing; empty means the namespace is never fetched.
	Source core.SourceKind `yaml:"source"`
}

// SourceConfig configures the REST ingestor.
type SourceConfig struct {
	BaseURL   string        `yaml:"base_url"`
	ProjectID int           `yaml:"project_id"`
	Timeout   time.Duration `yaml:"timeout"`
}

// EmbedderConfig holds embedding backend endpoints and credentials.
type EmbedderConfig struct {
	OllamaURL     string `yaml:"ollama_url"`
	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	GeminiAPIKey  string `yaml:"gemini_api_key"`
	ONNXLibrary   string `yaml:"onnx_library"`
	CacheSize     int64  `yaml:"cache_size"`
}

// FeedConfig configures the live location feed.
type FeedConfig struct {
	WebSocketURL string `yaml:"websocket_url"`
	RedisAddr    string `yaml:"redis_addr"`
	Channel      string `yaml:"channel"`
}

// ProfilerConfig configures the user profile summarizer.
type ProfilerConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int64  `yaml:"max_tokens"`
}

// DefaultConfig returns the stock layout under root/memory_data: a per-user
// preference bank and flat device and environment banks fed from the REST
// source.
func DefaultConfig(root string) *Config {
	data := filepath.Join(root, "memory_data")
	return &Config{
		VectorstorePath: filepath.Join(data, "vectorstore"),
		EmbeddingModel:  "ollama:nomic-embed-text",
		TopK:            5,
		Namespaces: []NamespaceConfig{
			{
				Name:      NamespaceUserProfile,
				Shape:     ShapePerUser.String(),
				CachePath: filepath.Join(data, "memory_bank.json"),
			},
			{
				Name:      NamespaceDeviceInfo,
				Shape:     ShapeFlat.String(),
				CachePath: filepath.Join(data, "device_info.json"),
				Source:    core.SourceDevice,
			},
			{
				Name:      NamespaceEnvironment,
				Shape:     ShapeFlat.String(),
				CachePath: filepath.Join(data, "env_info.json"),
				Source:    core.SourceEnv,
			},
		},
		Source: SourceConfig{
			BaseURL:   "http://localhost:8080/api",
			ProjectID: 1,
			Timeout:   5 * time.Second,
		},
		Feed: FeedConfig{
			Channel: "env_update",
		},
	}
}

// LoadConfig reads a YAML file over DefaultConfig(root). Relative cache and
// vectorstore paths are resolved against root.
func LoadConfig(path, root string) (*Config, error) {
	cfg := DefaultConfig(root)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read config", goerr.V("path", path))
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, goerr.Wrap(err, "failed to parse config", goerr.V("path", path))
	}

	cfg.VectorstorePath = resolve(root, cfg.VectorstorePath)
	for i := range cfg.Namespaces {
		cfg.Namespaces[i].CachePath = resolve(root, cfg.Namespaces[i].CachePath)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks namespace names and shapes.
func (c *Config) Validate() error {
	if c.VectorstorePath == "" {
		return goerr.New("vectorstore_path is required")
	}
	seen := make(map[string]bool, len(c.Namespaces))
	for _, ns := range c.Namespaces {
		if ns.Name == "" {
			return goerr.New("namespace name is required")
		}
		if seen[ns.Name] {
			return goerr.New("duplicate namespace", goerr.V("name", ns.Name))
		}
		seen[ns.Name] = true
		if _, err := ParseShape(ns.Shape); err != nil {
			return goerr.Wrap(err, "invalid namespace", goerr.V("name", ns.Name))
		}
	}
	return nil
}

// Namespace returns the named namespace config.
func (c *Config) Namespace(name string) (NamespaceConfig, bool) {
	for _, ns := range c.Namespaces {
		if ns.Name == name {
			return ns, true
		}
	}
	return NamespaceConfig{}, false
}

func resolve(root, p string) string {
	if p == "" || filepath.IsAbs(p) || root == "" {
		return p
	}
	return filepath.Join(root, p)
}
