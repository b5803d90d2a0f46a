// Copyright (c) GraphRAG Authors.
// Licensed under the MIT License.

// GraphRAG command line entry point.
//
// Usage:
//
//	graphrag ask --workspace demo "What is a vector index?"
//	graphrag ask --config graphrag.yaml --mode local "..."
//	graphrag chunk --file document.txt
//	graphrag version
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/graphrag/config"
	"github.com/BaSui01/graphrag/embedding"
	"github.com/BaSui01/graphrag/internal/clientcache"
	"github.com/BaSui01/graphrag/internal/metrics"
	"github.com/BaSui01/graphrag/internal/telemetry"
	"github.com/BaSui01/graphrag/llm"
	"github.com/BaSui01/graphrag/rag"
	"github.com/BaSui01/graphrag/store/memory"
	"github.com/BaSui01/graphrag/store/mongostore"
	"github.com/BaSui01/graphrag/store/sqlstore"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "ask":
		runAsk(os.Args[2:])
	case "chunk":
		runChunk(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runAsk(args []string) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	workspace := fs.String("workspace", "default", "Workspace to query")
	mode := fs.String("mode", "mix", "Retrieval mode: naive, local, global, hybrid, mix")
	topK := fs.Int("top-k", 0, "Result count per retrieval (0 uses the configured default)")
	model := fs.String("model", "", "Override the generation model")
	systemPrompt := fs.String("system-prompt", "", "Override the system prompt")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "ask requires a query argument")
		os.Exit(1)
	}
	query := fs.Arg(0)

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelProviders, err := telemetry.Init(telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: Version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		SampleRate:     cfg.Telemetry.SampleRate,
	}, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelProviders.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	collector := metrics.NewCollector("graphrag", prometheus.NewRegistry())

	store, cleanup, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer cleanup()

	embedder, err := buildEmbedder(cfg, collector, logger)
	if err != nil {
		logger.Fatal("failed to build embedding provider", zap.Error(err))
	}

	generator, err := buildGenerator(cfg)
	if err != nil {
		logger.Fatal("failed to build completion provider", zap.Error(err))
	}

	retriever := rag.NewRetriever(store, embedder, rag.RetrieverConfig{
		MinScore: cfg.Retrieval.MinScore,
	}, logger).WithMetrics(collector)

	engine := rag.NewEngine(retriever, generator, store, rag.EngineConfig{
		Model: cfg.LLM.Model,
	}, logger).WithUsageRecorder(logUsage{logger: logger})

	k := *topK
	if k <= 0 {
		k = cfg.Retrieval.TopK
	}

	answer, err := engine.Ask(ctx, query, rag.ParseMode(*mode), *workspace, k, rag.AskOptions{
		SystemPrompt: *systemPrompt,
		Model:        *model,
	})
	if err != nil {
		logger.Fatal("ask failed", zap.Error(err))
	}
	engine.Wait()

	fmt.Println(answer.Text)
	if len(answer.Sources) > 0 {
		fmt.Println("\nSources:")
		for i, src := range answer.Sources {
			fmt.Printf("  [%d] %s (score %.3f)\n", i+1, src.DocumentName, src.Score)
		}
	}
}

func runChunk(args []string) {
	fs := flag.NewFlagSet("chunk", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	file := fs.String("file", "", "Path to the document to chunk")
	fs.Parse(args)

	if *file == "" {
		fmt.Fprintln(os.Stderr, "chunk requires --file")
		os.Exit(1)
	}

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	data, err := os.ReadFile(*file)
	if err != nil {
		logger.Fatal("failed to read document", zap.Error(err))
	}

	collector := metrics.NewCollector("graphrag", prometheus.NewRegistry())

	tokenizer, err := rag.NewTiktokenTokenizer(cfg.LLM.Model)
	if err != nil {
		logger.Warn("tokenizer unavailable, using estimate", zap.Error(err))
		tokenizer = nil
	}

	chunker := rag.NewChunker(rag.ChunkerConfig{
		TargetTokens:  cfg.Chunker.TargetTokens,
		OverlapTokens: cfg.Chunker.OverlapTokens,
	}, tokenizerOrNil(tokenizer), logger)

	chunks := chunker.Chunk(string(data))
	collector.AddChunks(len(chunks))

	for _, chunk := range chunks {
		fmt.Printf("--- chunk %d [%d:%d] %d tokens ---\n%s\n",
			chunk.Index, chunk.StartOffset, chunk.EndOffset, chunk.TokenCount, chunk.Content)
	}
	fmt.Printf("%d chunks\n", len(chunks))
}

// tokenizerOrNil avoids passing a typed nil through the Tokenizer interface.
func tokenizerOrNil(t *rag.TiktokenTokenizer) rag.Tokenizer {
	if t == nil {
		return nil
	}
	return t
}

func loadConfig(path string) *config.Config {
	loader := config.NewLoader().WithValidator((*config.Config).Validate)
	if path != "" {
		loader = loader.WithConfigPath(path)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (rag.Store, func(), error) {
	switch cfg.Driver {
	case "memory", "":
		return memory.New(logger), func() {}, nil
	case "sqlite", "postgres", "mysql":
		store, err := sqlstore.Open(sqlstore.Config{Driver: cfg.Driver, DSN: cfg.DSN}, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case "mongo":
		store, err := mongostore.Open(ctx, mongostore.Config{URI: cfg.MongoURI, Database: cfg.MongoDatabase}, logger)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.Close(closeCtx); err != nil {
				logger.Warn("mongo disconnect failed", zap.Error(err))
			}
		}
		return store, cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}

// Provider clients are cached so repeated invocations with the same
// credentials reuse the underlying HTTP client and rate limiter.
var (
	embedderCache  *clientcache.Cache[rag.Embedder]
	generatorCache *clientcache.Cache[rag.Generator]
)

func buildEmbedder(cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) (rag.Embedder, error) {
	if embedderCache == nil {
		embedderCache = clientcache.New[rag.Embedder](cfg.ClientCache.MaxEntries, cfg.ClientCache.TTL)
	}

	key := fmt.Sprintf("%s|%s|%s", cfg.Embedding.BaseURL, cfg.Embedding.Model, cfg.Embedding.APIKey)
	return embedderCache.GetOrCreate(key, func() (rag.Embedder, error) {
		provider, err := embedding.NewOpenAI(embedding.Config{
			BaseURL:           cfg.Embedding.BaseURL,
			APIKey:            cfg.Embedding.APIKey,
			Model:             cfg.Embedding.Model,
			Dimensions:        cfg.Embedding.Dimensions,
			Timeout:           cfg.Embedding.Timeout,
			RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		})
		if err != nil {
			return nil, err
		}
		if !cfg.Redis.Enabled {
			return provider, nil
		}

		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cached := embedding.NewRedisCache(provider, client, embedding.CacheConfig{
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Redis.TTL,
		}, logger).WithMetrics(collector)
		return cached, nil
	})
}

func buildGenerator(cfg *config.Config) (rag.Generator, error) {
	if generatorCache == nil {
		generatorCache = clientcache.New[rag.Generator](cfg.ClientCache.MaxEntries, cfg.ClientCache.TTL)
	}

	key := fmt.Sprintf("%s|%s|%s", cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.APIKey)
	return generatorCache.GetOrCreate(key, func() (rag.Generator, error) {
		return llm.NewOpenAI(llm.Config{
			BaseURL:           cfg.LLM.BaseURL,
			APIKey:            cfg.LLM.APIKey,
			Model:             cfg.LLM.Model,
			Timeout:           cfg.LLM.Timeout,
			RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		})
	})
}

// logUsage records retrieval usage through the structured log.
type logUsage struct {
	logger *zap.Logger
}

func (u logUsage) RecordRetrieval(_ context.Context, usage rag.RetrievalUsage) error {
	u.logger.Info("retrieval usage",
		zap.String("workspace", usage.Workspace),
		zap.String("mode", string(usage.Mode)),
		zap.Int("passages", usage.Passages),
		zap.Int("entities", usage.Entities),
		zap.Int("relations", usage.Relations),
		zap.Duration("duration", usage.Duration),
	)
	return nil
}

func printVersion() {
	fmt.Printf("GraphRAG %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`GraphRAG - knowledge retrieval engine

Usage:
  graphrag <command> [options]

Commands:
  ask       Answer a question against a workspace
  chunk     Split a document into overlapping chunks
  version   Show version information
  help      Show this help message

Options for 'ask':
  --config <path>     Path to configuration file (YAML)
  --workspace <name>  Workspace to query (default "default")
  --mode <mode>       naive, local, global, hybrid or mix (default "mix")
  --top-k <n>         Result count per retrieval
  --model <name>      Override the generation model
  --system-prompt <s> Override the system prompt

Options for 'chunk':
  --config <path>     Path to configuration file (YAML)
  --file <path>       Document to chunk

Examples:
  graphrag ask --workspace demo "What is a vector index?"
  graphrag ask --mode local --top-k 5 "..."
  graphrag chunk --file document.txt`)
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoding = "console"
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      encoding == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		logger, _ = zap.NewProduction()
	}

	return logger
}
