// Copyright (C) 2025 JoeMat18
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package assistant wires the FloodNS question-answering service: the answer
// pipeline, the experiment store, the re-run manager, ingestion, and the HTTP
// surface that exposes them.
//
// The facade degrades instead of refusing to start: a missing Weaviate or
// MongoDB leaves the affected routes answering 503 while everything else
// keeps working.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JoeMat18/simulations-platform/services/assistant/framework"
	"github.com/JoeMat18/simulations-platform/services/assistant/handlers"
	"github.com/JoeMat18/simulations-platform/services/assistant/ingest"
	"github.com/JoeMat18/simulations-platform/services/assistant/observability"
	"github.com/JoeMat18/simulations-platform/services/assistant/pipeline"
	"github.com/JoeMat18/simulations-platform/services/assistant/rerun"
	"github.com/JoeMat18/simulations-platform/services/assistant/retrieval"
	"github.com/JoeMat18/simulations-platform/services/assistant/routes"
	"github.com/JoeMat18/simulations-platform/services/assistant/store"
	"github.com/JoeMat18/simulations-platform/services/llm"
)

// serviceName identifies the assistant in traces and health reports.
const serviceName = "floodns-assistant"

// shutdownGrace bounds the drain of in-flight HTTP requests on shutdown.
// Detached re-runs are waited for separately and have their own timeout.
const shutdownGrace = 10 * time.Second

// =============================================================================
// Interface Definition
// =============================================================================

// Service is the assistant's lifecycle contract. Run blocks until shutdown;
// Router exposes the configured engine for tests.
type Service interface {
	Run() error
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds the assistant's startup configuration. All fields are
// optional; zero values take the defaults documented per field. cmd/assistant
// populates it from the environment.
type Config struct {
	// Port is the HTTP server port. Default: 8610 (ASSISTANT_PORT).
	Port int

	// UseLocalModel selects the local Ollama backend; false selects the
	// HuggingFace Inference API (USE_LOCAL_MODEL).
	UseLocalModel bool

	// WeaviateURL is the vector store URL (WEAVIATE_SERVICE_URL). Empty
	// disables retrieval, ingestion, and search.
	WeaviateURL string

	// MongoURI is the experiment store connection string (MONGODB_URI).
	// Empty disables the experiment routes.
	MongoURI string

	// OTelEndpoint is the OTLP/gRPC collector endpoint
	// (OTEL_EXPORTER_OTLP_ENDPOINT). Default: floodns-otel-collector:4317.
	OTelEndpoint string

	// FrameworkDocPath locates the framework concepts document
	// (FRAMEWORK_DOC_PATH). Default: floodns/doc/framework.md.
	FrameworkDocPath string

	// EmbeddingBaseURL, EmbeddingModel and EmbeddingAPIKey configure the
	// OpenAI-compatible embeddings API used for ingestion and search
	// (EMBEDDING_BASE_URL, EMBEDDING_MODEL, EMBEDDING_API_KEY). Without an
	// API key, chunks are imported unvectorized and search answers 503.
	EmbeddingBaseURL string
	EmbeddingModel   string
	EmbeddingAPIKey  string

	// RunsDir is the working directory for re-run processes; the simulator
	// resolves its run directories relative to it (FLOODNS_RUNS_DIR).
	RunsDir string

	// RerunStaleAfter is how long an experiment may sit in Re-Running
	// before the janitor flips it to Error (RERUN_STALE_AFTER).
	// Default: 3h.
	RerunStaleAfter time.Duration

	// GinMode overrides the gin mode ("debug", "release", "test").
	GinMode string
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 8610
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "floodns-otel-collector:4317"
	}
	if cfg.FrameworkDocPath == "" {
		cfg.FrameworkDocPath = "floodns/doc/framework.md"
	}
	if cfg.RerunStaleAfter == 0 {
		cfg.RerunStaleAfter = rerun.DefaultStaleAfter
	}
	return cfg
}

// =============================================================================
// Implementation
// =============================================================================

// service is the production Service implementation. All fields are read-only
// after New returns; optional dependencies stay nil when unconfigured.
type service struct {
	config        Config
	router        *gin.Engine
	vector        *retrieval.Client
	vectorStore   *retrieval.Store
	embedder      *ingest.Embedder
	ingester      *ingest.Ingester
	mongo         *mongodriver.Client
	experiments   *store.ExperimentStore
	llmClient     llm.LLMClient
	framework     *framework.Context
	pipeline      *pipeline.Service
	rerunManager  *rerun.Manager
	janitor       *rerun.Janitor
	tracerCleanup func(context.Context)
}

var _ Service = (*service)(nil)

// New builds the assistant service. The generation backend is the only hard
// requirement; vector store and experiment store failures log a warning and
// leave their routes degraded.
func New(cfg Config) (Service, error) {
	s := &service{config: applyConfigDefaults(cfg)}

	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	cleanup, err := s.initTracer()
	if err != nil {
		slog.Warn("Tracing disabled", "endpoint", s.config.OTelEndpoint, "error", err)
	} else {
		s.tracerCleanup = cleanup
	}

	observability.InitMetrics()

	// Load already substitutes the static summary on failure.
	s.framework, _ = framework.Load(s.config.FrameworkDocPath)

	if err := s.initVector(); err != nil {
		slog.Warn("Vector store unavailable, retrieval routes degraded", "error", err)
	}
	if err := s.initMongo(); err != nil {
		slog.Warn("Experiment store unavailable, experiment routes degraded", "error", err)
	}

	if err := s.initLLMClient(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("initialize generation backend: %w", err)
	}

	s.initPipeline()
	s.initRerun()
	s.initRouter()

	return s, nil
}

// Run starts the HTTP server and the re-run janitor, then blocks until
// SIGINT/SIGTERM or a fatal server error. Shutdown drains in-flight requests
// and waits for detached re-runs before returning.
func (s *service) Run() error {
	defer s.cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if s.janitor != nil {
		go s.janitor.Run(ctx)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.router,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()
	slog.Info("Starting assistant server", "port", s.config.Port)

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP server shutdown incomplete", "error", err)
	}

	if s.rerunManager != nil {
		slog.Info("Waiting for in-flight re-runs")
		s.rerunManager.Wait()
	}
	return nil
}

// Router returns the configured engine for tests.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Initialization
// =============================================================================

func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("Failed to shutdown OTLP exporter", "error", err)
		}
	}
	return cleanup, nil
}

func (s *service) initVector() error {
	weaviateURL := strings.Trim(s.config.WeaviateURL, "\"' ")
	if weaviateURL == "" {
		slog.Info("Weaviate URL not configured, answering without retrieval")
		return nil
	}

	clientCfg := retrieval.DefaultClientConfig()
	clientCfg.URL = weaviateURL
	// A cold Weaviate must not keep the whole assistant down.
	clientCfg.AllowStartDegraded = true

	client, err := retrieval.NewClient(clientCfg)
	if err != nil {
		return err
	}
	s.vector = client

	var queryEmbedder retrieval.QueryEmbedder
	var docEmbedder ingest.DocumentEmbedder
	if s.config.EmbeddingAPIKey != "" {
		embedder, err := ingest.NewEmbedder(ingest.EmbedderConfig{
			BaseURL: s.config.EmbeddingBaseURL,
			APIKey:  s.config.EmbeddingAPIKey,
			Model:   s.config.EmbeddingModel,
		})
		if err != nil {
			slog.Warn("Embedder unavailable, vector search disabled", "error", err)
		} else {
			s.embedder = embedder
			queryEmbedder = embedder
			docEmbedder = embedder
		}
	} else {
		slog.Info("No embedding API key, importing chunks unvectorized")
	}

	s.vectorStore = retrieval.NewStore(client, queryEmbedder)
	if err := s.vectorStore.EnsureSchema(context.Background()); err != nil {
		slog.Warn("Schema check deferred", "error", err)
	}
	s.ingester = ingest.NewIngester(s.vectorStore, docEmbedder)

	slog.Info("Vector store initialized", "url", weaviateURL)
	return nil
}

func (s *service) initMongo() error {
	if s.config.MongoURI == "" {
		slog.Info("MongoDB URI not configured, experiment routes disabled")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := store.Connect(ctx, s.config.MongoURI)
	if err != nil {
		return err
	}
	s.mongo = client

	experiments, err := store.New(ctx, client)
	if err != nil {
		return err
	}
	s.experiments = experiments
	return nil
}

func (s *service) initLLMClient() error {
	var err error
	if s.config.UseLocalModel {
		slog.Info("Using local Ollama generation backend")
		s.llmClient, err = llm.NewOllamaClient()
	} else {
		slog.Info("Using HuggingFace Inference generation backend")
		s.llmClient, err = llm.NewHuggingFaceClient()
	}
	return err
}

func (s *service) initPipeline() {
	if s.vectorStore == nil {
		slog.Warn("Answer pipeline disabled: no vector store configured")
		return
	}
	s.pipeline = pipeline.NewService(s.vectorStore, s.llmClient, s.framework,
		pipeline.Config{UseLocalModel: s.config.UseLocalModel})
}

func (s *service) initRerun() {
	if s.experiments == nil {
		return
	}
	runner := rerun.NewFloodNSRunner(rerun.RunnerConfig{WorkDir: s.config.RunsDir})
	s.rerunManager = rerun.NewManager(s.experiments, runner)
	s.janitor = rerun.NewJanitor(s.experiments, s.config.RerunStaleAfter, rerun.DefaultSweepInterval)
}

func (s *service) initRouter() {
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(otelgin.Middleware(serviceName))
	s.router.Use(observability.Middleware())

	deps := routes.Deps{HealthProbes: s.healthProbes()}
	if s.pipeline != nil {
		deps.Pipeline = s.pipeline
	}
	if s.experiments != nil {
		deps.Experiments = s.experiments
	}
	if s.rerunManager != nil {
		deps.Rerun = s.rerunManager
	}
	if s.ingester != nil {
		deps.Ingester = s.ingester
	}
	if s.vectorStore != nil {
		deps.Searcher = s.vectorStore
	}
	routes.SetupRoutes(s.router, deps)
}

// healthProbes builds the per-dependency readiness probes the health
// endpoint sweeps concurrently.
func (s *service) healthProbes() map[string]handlers.Probe {
	probes := make(map[string]handlers.Probe)
	if s.experiments != nil {
		probes["mongodb"] = s.experiments.Ping
	}
	if s.vector != nil {
		probes["weaviate"] = func(context.Context) error {
			if !s.vector.IsAvailable() {
				return fmt.Errorf("weaviate connection %s", s.vector.State())
			}
			return nil
		}
	}
	return probes
}

// cleanup releases held connections. Called when Run exits and on
// construction failure.
func (s *service) cleanup() {
	if s.vector != nil {
		_ = s.vector.Close()
	}
	if s.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.mongo.Disconnect(ctx); err != nil {
			slog.Warn("MongoDB disconnect failed", "error", err)
		}
		cancel()
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}
