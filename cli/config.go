package cli

import (
	"context"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/MichaelIeong/SAGE/logging"
	"github.com/MichaelIeong/SAGE/memory"
	"github.com/MichaelIeong/SAGE/memory/embedder"
	"github.com/MichaelIeong/SAGE/memory/profiler"
	"github.com/MichaelIeong/SAGE/memory/store/chromem"
	"github.com/MichaelIeong/SAGE/source"
)

// config holds flag values. Non-empty flags override the YAML file.
type config struct {
	configPath string
	root       string
	logLevel   string

	vectorstore    string
	embeddingModel string
	loadExisting   bool
	topK           int64

	sourceURL     string
	projectID     int64
	sourceTimeout time.Duration

	ollamaURL       string
	openaiAPIKey    string
	openaiBaseURL   string
	geminiAPIKey    string
	onnxLibrary     string
	anthropicAPIKey string
}

// globalFlags are shared by every command.
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to YAML config file",
			Sources:     cli.EnvVars("SAGE_CONFIG"),
			Destination: &cfg.configPath,
		},
		&cli.StringFlag{
			Name:        "root",
			Usage:       "Smart home data root (memory_data lives under it)",
			Value:       ".",
			Sources:     cli.EnvVars("SMARTHOME_ROOT"),
			Destination: &cfg.root,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("SAGE_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "vectorstore",
			Usage:       "Directory of persisted indexes",
			Sources:     cli.EnvVars("SAGE_VECTORSTORE"),
			Destination: &cfg.vectorstore,
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Aliases:     []string{"m"},
			Usage:       "Embedding model id (mock, ollama:<m>, openai:<m>, gemini:<m>, onnx:<path>)",
			Sources:     cli.EnvVars("SAGE_EMBEDDING_MODEL"),
			Destination: &cfg.embeddingModel,
		},
		&cli.BoolFlag{
			Name:        "load-existing",
			Usage:       "Open persisted indexes instead of rebuilding them",
			Sources:     cli.EnvVars("SAGE_LOAD_EXISTING"),
			Destination: &cfg.loadExisting,
		},
	}
}

// sourceFlags configure the REST ingestor.
func sourceFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "source-url",
			Usage:       "Base URL of the device/person API",
			Sources:     cli.EnvVars("SAGE_SOURCE_URL"),
			Destination: &cfg.sourceURL,
		},
		&cli.IntFlag{
			Name:        "project-id",
			Usage:       "Project whose devices are fetched",
			Sources:     cli.EnvVars("SAGE_PROJECT_ID"),
			Destination: &cfg.projectID,
		},
		&cli.DurationFlag{
			Name:        "source-timeout",
			Usage:       "Timeout of each source request",
			Sources:     cli.EnvVars("SAGE_SOURCE_TIMEOUT"),
			Destination: &cfg.sourceTimeout,
		},
	}
}

// backendFlags carry embedding and LLM credentials.
func backendFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "ollama-url",
			Usage:       "Ollama API base URL",
			Sources:     cli.EnvVars("OLLAMA_URL"),
			Destination: &cfg.ollamaURL,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "OpenAI API key",
			Sources:     cli.EnvVars("OPENAI_API_KEY"),
			Destination: &cfg.openaiAPIKey,
		},
		&cli.StringFlag{
			Name:        "openai-base-url",
			Usage:       "OpenAI-compatible API base URL",
			Sources:     cli.EnvVars("OPENAI_BASE_URL"),
			Destination: &cfg.openaiBaseURL,
		},
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Usage:       "Gemini API key",
			Sources:     cli.EnvVars("GEMINI_API_KEY"),
			Destination: &cfg.geminiAPIKey,
		},
		&cli.StringFlag{
			Name:        "onnx-library",
			Usage:       "Path to libonnxruntime",
			Sources:     cli.EnvVars("ONNXRUNTIME_LIB"),
			Destination: &cfg.onnxLibrary,
		},
		&cli.StringFlag{
			Name:        "anthropic-api-key",
			Usage:       "Anthropic API key for user profiles",
			Sources:     cli.EnvVars("ANTHROPIC_API_KEY"),
			Destination: &cfg.anthropicAPIKey,
		},
	}
}

func allFlags(cfg *config, extra ...cli.Flag) []cli.Flag {
	flags := append([]cli.Flag{}, extra...)
	flags = append(flags, globalFlags(cfg)...)
	flags = append(flags, sourceFlags(cfg)...)
	flags = append(flags, backendFlags(cfg)...)
	return flags
}

// withLogger installs the configured logger in ctx and as the default.
func (cfg *config) withLogger(ctx context.Context) context.Context {
	logger := logging.New(cfg.logLevel, os.Stderr)
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

// memoryConfig loads the YAML file (when given) and applies flag overrides.
func (cfg *config) memoryConfig() (*memory.Config, error) {
	mc := memory.DefaultConfig(cfg.root)
	if cfg.configPath != "" {
		loaded, err := memory.LoadConfig(cfg.configPath, cfg.root)
		if err != nil {
			return nil, err
		}
		mc = loaded
	}

	override(&mc.VectorstorePath, cfg.vectorstore)
	override(&mc.EmbeddingModel, cfg.embeddingModel)
	if cfg.loadExisting {
		mc.LoadExisting = true
	}
	if cfg.topK > 0 {
		mc.TopK = int(cfg.topK)
	}
	override(&mc.Source.BaseURL, cfg.sourceURL)
	if cfg.projectID > 0 {
		mc.Source.ProjectID = int(cfg.projectID)
	}
	if cfg.sourceTimeout > 0 {
		mc.Source.Timeout = cfg.sourceTimeout
	}

	override(&mc.Embedder.OllamaURL, cfg.ollamaURL)
	override(&mc.Embedder.OpenAIAPIKey, cfg.openaiAPIKey)
	override(&mc.Embedder.OpenAIBaseURL, cfg.openaiBaseURL)
	override(&mc.Embedder.GeminiAPIKey, cfg.geminiAPIKey)
	override(&mc.Embedder.ONNXLibrary, cfg.onnxLibrary)
	override(&mc.Profiler.APIKey, cfg.anthropicAPIKey)

	if err := mc.Validate(); err != nil {
		return nil, err
	}
	return mc, nil
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// app is everything a command needs to serve memory.
type app struct {
	cfg      *memory.Config
	shared   *memory.Shared
	registry *embedder.Registry
}

func (a *app) Close() error {
	return a.registry.Close()
}

// newApp wires the index manager, embedder registry, ingestor and
// profiler into a Shared memory. Nothing is loaded yet.
func newApp(mc *memory.Config) (*app, error) {
	manager, err := chromem.New(mc.VectorstorePath, chromem.WithCompression(mc.CompressIndexes))
	if err != nil {
		return nil, err
	}

	regOpts := []embedder.Option{
		embedder.WithOllamaURL(mc.Embedder.OllamaURL),
		embedder.WithOpenAI(mc.Embedder.OpenAIAPIKey, mc.Embedder.OpenAIBaseURL),
		embedder.WithGeminiKey(mc.Embedder.GeminiAPIKey),
		embedder.WithONNXLibrary(mc.Embedder.ONNXLibrary),
	}
	if mc.Embedder.CacheSize != 0 {
		regOpts = append(regOpts, embedder.WithCacheSize(mc.Embedder.CacheSize))
	}
	registry, err := embedder.New(regOpts...)
	if err != nil {
		return nil, err
	}

	bankOpts := []memory.BankOption{
		memory.WithIngestor(source.NewIngestor(mc.Source.BaseURL,
			source.WithProjectID(mc.Source.ProjectID),
			source.WithTimeout(mc.Source.Timeout),
		)),
	}
	if mc.Profiler.APIKey != "" {
		bankOpts = append(bankOpts, memory.WithProfiler(profiler.New(
			[]option.RequestOption{option.WithAPIKey(mc.Profiler.APIKey)},
			profiler.WithModel(mc.Profiler.Model),
			profiler.WithMaxTokens(mc.Profiler.MaxTokens),
		)))
	}

	shared, err := memory.NewShared(mc, manager, registry, bankOpts...)
	if err != nil {
		registry.Close()
		return nil, goerr.Wrap(err, "failed to create shared memory")
	}
	return &app{cfg: mc, shared: shared, registry: registry}, nil
}
