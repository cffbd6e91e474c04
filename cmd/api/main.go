// Package main is the entry point for the knowledge-graph API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/capitalize-ai/knowledge-graph/internal/config"
	"github.com/capitalize-ai/knowledge-graph/internal/events"
	"github.com/capitalize-ai/knowledge-graph/internal/handler"
	"github.com/capitalize-ai/knowledge-graph/internal/llm"
	"github.com/capitalize-ai/knowledge-graph/internal/pipeline"
	"github.com/capitalize-ai/knowledge-graph/internal/processor"
	"github.com/capitalize-ai/knowledge-graph/internal/store"
	"github.com/capitalize-ai/knowledge-graph/internal/vector"
	"github.com/capitalize-ai/knowledge-graph/pkg/logger"
	"github.com/capitalize-ai/knowledge-graph/pkg/tracing"
)

func main() {
	// .env is a development convenience; deployments configure through the
	// environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	var log *logger.Logger
	if cfg.IsDevelopment() {
		log, err = logger.NewDevelopment()
	} else {
		log, err = logger.New(cfg.LogLevel)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting knowledge-graph server",
		zap.String("env", cfg.Environment),
		zap.String("llm", cfg.DefaultLLM),
		zap.String("vector_mode", cfg.VectorMode),
	)

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Open the graph store
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Error("failed to open store", zap.Error(err))
		os.Exit(1)
	}
	defer st.Close()

	// Initialize LLM client
	llmClient, modelName, err := newLLMClient(cfg)
	if err != nil {
		log.Error("failed to create LLM client", zap.Error(err))
		os.Exit(1)
	}
	analyzer := llm.NewAnalyzer(llmClient, modelName, log)

	// Initialize vector index
	index := newVectorIndex(cfg, log)

	// Connect to NATS when configured; graph events are optional.
	var eventsClient *events.Client
	var pub *events.Publisher
	if cfg.NATSURL != "" {
		eventsClient, err = events.Connect(events.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Warn("NATS unavailable, graph events disabled", zap.Error(err))
		} else {
			defer eventsClient.Close()
			pub = events.NewPublisher(eventsClient)
			if err := pub.EnsureStream(ctx); err != nil {
				log.Warn("failed to ensure events stream", zap.Error(err))
			}
		}
	}

	// Initialize pipeline and processor
	pipe := pipeline.New(st, analyzer, index, pub, pipeline.Config{
		VectorTopK:     cfg.VectorTopK,
		VectorMinScore: cfg.VectorMinScore,
	}, log)
	proc := processor.New(st, analyzer, index, pub, processor.Config{
		IdleThreshold: cfg.IdleThreshold,
		BatchSize:     cfg.ProcessorBatch,
	}, log)

	procCtx, stopProcessor := context.WithCancel(ctx)
	defer stopProcessor()
	if cfg.ProcessorInterval > 0 {
		go proc.RunLoop(procCtx, cfg.ProcessorInterval)
	}

	// Create router
	router := handler.NewRouter(handler.RouterConfig{
		Chat:      handler.NewChatHandler(pipe, st, log),
		Graph:     handler.NewGraphHandler(st, log),
		Knowledge: handler.NewKnowledgeHandler(pipe, st, log),
		Processor: handler.NewProcessorHandler(proc, st, log),
		Health:    handler.NewHealthHandler(st, eventsClient, llmClient.Name(), cfg.VectorMode),

		Log:               log,
		AllowedOrigins:    cfg.AllowedOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.Int("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	stopProcessor()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

func newLLMClient(cfg *config.Config) (llm.Client, string, error) {
	switch cfg.DefaultLLM {
	case config.ProviderAnthropic:
		client, err := llm.NewClient(llm.ProviderAnthropic, cfg.AnthropicAPIKey, "")
		return client, cfg.AnthropicModel, err
	default:
		client, err := llm.NewClient(llm.ProviderOpenAI, cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
		return client, cfg.OpenAIModel, err
	}
}

func newVectorIndex(cfg *config.Config, log *logger.Logger) vector.Index {
	switch cfg.VectorMode {
	case config.VectorModeRemote:
		return vector.NewRemoteIndex(cfg.VectorURL, cfg.VectorToken)
	case config.VectorModeLocal:
		return vector.NewLocalIndex(vector.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel))
	default:
		log.Info("vector index disabled")
		return vector.Disabled{}
	}
}
