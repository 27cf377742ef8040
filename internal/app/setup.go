package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/tracing"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/kmu-usr/airqa/api"
	"github.com/kmu-usr/airqa/db"
	"github.com/kmu-usr/airqa/internal/config"
	"github.com/kmu-usr/airqa/internal/knowledge"
	"github.com/kmu-usr/airqa/internal/llm"
	"github.com/kmu-usr/airqa/internal/log"
	"github.com/kmu-usr/airqa/internal/prompt"
	"github.com/kmu-usr/airqa/internal/qalog"
	"github.com/kmu-usr/airqa/internal/rag"
	"github.com/kmu-usr/airqa/internal/session"
)

// warmupQuery primes the embedder and the vector index on startup so the
// first real question does not pay the cold-start cost.
const warmupQuery = "系統預熱"

// Setup builds the full application. Call Close on the returned App to
// release its resources.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if logger == nil {
		logger = log.NewNop()
	}

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if retErr != nil {
			a.Close()
		}
	}()

	a.otelShutdown = setupTracing(ctx, cfg, logger)

	pool, err := setupDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	g, embedder, err := setupGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	a.Knowledge = knowledge.New(pool, embedder,
		logger.With("component", "knowledge"),
		knowledge.WithTopK(cfg.RetrievalTopK),
		knowledge.WithFetchK(cfg.RetrievalFetchK),
		knowledge.WithLambda(cfg.RetrievalLambda),
	)
	warmupRetrieval(ctx, a.Knowledge, logger)

	a.Sessions = session.NewStore(cfg.ChatDataDir, logger.With("component", "session"))
	a.Feedback = qalog.NewFeedbackStore(cfg.FeedbackDir, logger.With("component", "feedback"))
	a.QALog = qalog.NewQAStore(cfg.QALogDir, logger.With("component", "qalog"))

	a.Registry = llm.NewRegistry(g, llm.Config{
		Provider:    "ollama",
		Supported:   cfg.SupportedModels,
		Default:     cfg.DefaultModel,
		Temperature: float64(cfg.Temperature),
		TopP:        float64(cfg.TopP),
		Logger:      logger.With("component", "llm"),
	})

	a.Pipeline = rag.NewPipeline(rag.Config{
		Retriever:  a.Knowledge,
		Generator:  a.Registry,
		Sessions:   a.Sessions,
		Selector:   prompt.NewSelector(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))),
		QALog:      a.QALog,
		MaxRetries: cfg.MaxLLMRetries,
		Logger:     logger.With("component", "rag"),
	})

	a.Server = api.NewServer(api.Config{
		Asker:        a.Pipeline,
		Sessions:     a.Sessions,
		Feedback:     a.Feedback,
		Pool:         pool,
		Provisioners: []api.Provisioner{a.Sessions, a.Feedback, a.QALog},
		APIKeys:      cfg.APIKeys,
		CORSOrigins:  cfg.CORSOrigins,
		TrustProxy:   cfg.TrustProxy,
		RateLimit:    cfg.RateLimitRequests,
		RateWindow:   time.Duration(cfg.RateLimitWindowSeconds) * time.Second,
		Logger:       logger.With("component", "api"),
	})

	return a, nil
}

// setupTracing exports spans over OTLP HTTP when an endpoint is
// configured. Genkit already traces generation and embedding calls; this
// only attaches an exporter to its provider. Returns the shutdown hook.
func setupTracing(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	if cfg.OTLPEndpoint == "" {
		return func() {}
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("creating OTLP exporter, tracing disabled", "error", err)
		return func() {}
	}

	tracing.TracerProvider().RegisterSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter))
	logger.Info("trace export enabled",
		"endpoint", cfg.OTLPEndpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment)

	shutdown := tracing.TracerProvider().Shutdown
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// setupDBPool runs migrations and opens the pgx pool with the pgvector
// codec registered on every connection.
func setupDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// setupGenkit initializes Genkit with the Ollama plugin and registers
// every supported chat model plus the embedder. Ollama has no model
// auto-discovery, so registration is explicit.
func setupGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, ai.Embedder, error) {
	ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
	g := genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
	if g == nil {
		return nil, nil, errors.New("initializing genkit with ollama provider")
	}

	for _, name := range cfg.SupportedModels {
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: name,
			Type: "chat",
		}, nil)
	}
	ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)

	embedder := ollama.Embedder(g, cfg.OllamaHost)
	if embedder == nil {
		return nil, nil, fmt.Errorf("embedder %q not registered", cfg.EmbedderModel)
	}

	logger.Info("initialized Genkit with ollama provider",
		"host", cfg.OllamaHost,
		"models", cfg.SupportedModels,
		"embedder", cfg.EmbedderModel)
	return g, embedder, nil
}

// warmupRetrieval runs one small search so the embedder model loads
// before the first request. Failure is logged, never fatal: the service
// still starts when Ollama is slow to come up.
func warmupRetrieval(ctx context.Context, store *knowledge.Store, logger log.Logger) {
	warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := store.Search(warmCtx, warmupQuery, knowledge.WithTopK(1)); err != nil {
		logger.Warn("retrieval warm-up failed", "error", err)
		return
	}
	logger.Info("retrieval warm-up complete")
}
