// Package main implements the policy question answering API server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/PolicyDeskAI/policyrag-mvp/engine/clean"
	"github.com/PolicyDeskAI/policyrag-mvp/engine/domain"
	"github.com/PolicyDeskAI/policyrag-mvp/engine/grounding"
	"github.com/PolicyDeskAI/policyrag-mvp/engine/ingest"
	"github.com/PolicyDeskAI/policyrag-mvp/engine/rag"
	"github.com/PolicyDeskAI/policyrag-mvp/engine/rank"
	"github.com/PolicyDeskAI/policyrag-mvp/engine/retrieve"
	"github.com/PolicyDeskAI/policyrag-mvp/engine/semantic"
	"github.com/PolicyDeskAI/policyrag-mvp/pkg/cohere"
	"github.com/PolicyDeskAI/policyrag-mvp/pkg/groq"
	"github.com/PolicyDeskAI/policyrag-mvp/pkg/metrics"
	"github.com/PolicyDeskAI/policyrag-mvp/pkg/mid"
	"github.com/PolicyDeskAI/policyrag-mvp/pkg/natsutil"
	"github.com/PolicyDeskAI/policyrag-mvp/pkg/ollama"
	"github.com/PolicyDeskAI/policyrag-mvp/pkg/pdfload"
	"github.com/PolicyDeskAI/policyrag-mvp/pkg/resilience"
)

// Config holds all environment-based configuration.
type Config struct {
	Port          string
	DocumentPath  string
	QdrantURL     string
	Collection    string
	EmbedDims     int
	OllamaURL     string
	EmbedModel    string
	GroqAPIKey    string
	GroqModel     string
	CohereAPIKey  string
	Rerank        string // "truncate" or "cross"
	ChunkMode     string // "section" or "paragraph"
	FooterPattern string // optional running-footer regex stripped during cleaning
	NATSURL       string
	CORSOrigin    string
}

func loadConfig() (Config, error) {
	dims, err := strconv.Atoi(envOr("EMBED_DIMS", "768"))
	if err != nil {
		return Config{}, fmt.Errorf("parse EMBED_DIMS: %w", err)
	}
	cfg := Config{
		Port:          envOr("PORT", "8080"),
		DocumentPath:  envOr("DOCUMENT_PATH", "data/policy.pdf"),
		QdrantURL:     envOr("QDRANT_URL", "localhost:6334"),
		Collection:    envOr("QDRANT_COLLECTION", "policy_chunks"),
		EmbedDims:     dims,
		OllamaURL:     envOr("OLLAMA_URL", "http://localhost:11434"),
		EmbedModel:    envOr("EMBED_MODEL", "nomic-embed-text"),
		GroqAPIKey:    os.Getenv("GROQ_API_KEY"),
		GroqModel:     envOr("GROQ_MODEL", groq.DefaultModel),
		CohereAPIKey:  os.Getenv("COHERE_API_KEY"),
		Rerank:        envOr("RERANK_STRATEGY", "truncate"),
		ChunkMode:     envOr("CHUNK_STRATEGY", "section"),
		FooterPattern: os.Getenv("FOOTER_PATTERN"),
		NATSURL:       os.Getenv("NATS_URL"),
		CORSOrigin:    envOr("CORS_ORIGIN", "*"),
	}
	if cfg.GroqAPIKey == "" {
		return Config{}, fmt.Errorf("GROQ_API_KEY is not set: %w", domain.ErrMissingCredential)
	}
	if cfg.Rerank == "cross" && cfg.CohereAPIKey == "" {
		return Config{}, fmt.Errorf("RERANK_STRATEGY=cross needs COHERE_API_KEY: %w", domain.ErrMissingCredential)
	}
	if cfg.FooterPattern != "" {
		if _, err := regexp.Compile("(?i)" + cfg.FooterPattern); err != nil {
			return Config{}, fmt.Errorf("parse FOOTER_PATTERN: %w", err)
		}
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Local development convenience; a missing .env is fine.
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("configuration error", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Connect to Qdrant ---
	index, err := semantic.NewQdrant(cfg.QdrantURL, cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer index.Close()

	if err := index.EnsureCollection(ctx, cfg.EmbedDims); err != nil {
		return fmt.Errorf("qdrant collection: %w", err)
	}

	// --- Embedding and generation clients ---
	embedder := ollama.NewEmbedClient(cfg.OllamaURL, cfg.EmbedModel)
	generator := groq.New(cfg.GroqAPIKey, groq.WithModel(cfg.GroqModel))

	// The LLM call goes through a circuit breaker so a failing provider
	// turns into fast errors instead of queued timeouts.
	guarded := &guardedGenerator{
		inner:   generator,
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}

	var selector rank.Selector
	if cfg.Rerank == "cross" {
		selector = rank.NewCrossRelevance(cohere.New(cfg.CohereAPIKey), logger)
	} else {
		selector = rank.NewTruncate()
	}

	reg := metrics.New()
	pipeline := metrics.NewPipeline(reg)

	var cleanOpts []clean.Option
	if cfg.FooterPattern != "" {
		cleanOpts = append(cleanOpts, clean.WithFooterPattern(cfg.FooterPattern))
	}

	// --- Ingestion (runs on demand when the index is empty) ---
	ingestDeps := ingest.Deps{
		Loader:   pdfload.New(),
		Cleaner:  clean.New(cleanOpts...),
		Embedder: embedder,
		Index:    index,
		Logger:   logger,
		Strategy: ingest.Strategy(cfg.ChunkMode),
	}
	ingestor := meteredIngestor(ingestDeps, cfg.DocumentPath, pipeline.IndexedChunks)

	// --- Optional answer audit events ---
	var publisher rag.Publisher
	if cfg.NATSURL != "" {
		nc, err := natsutil.Connect(cfg.NATSURL, logger)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()
		publisher = &natsPublisher{nc: nc}
	}

	// --- Build answering service ---
	svc := rag.New(rag.Deps{
		Retriever: retrieve.New(embedder, index, logger),
		Selector:  selector,
		Generator: guarded,
		Grounding: grounding.New(embedder, grounding.DefaultThreshold),
		Index:     index,
		Ingestor:  ingestor,
		Publisher: publisher,
		Logger:    logger,
	}, rag.DefaultOptions())

	if err := svc.Initialize(ctx); err != nil {
		// Keep serving: the first query retries ingestion, and health
		// reporting makes the degraded state visible.
		logger.Warn("startup ingestion failed, continuing", "err", err)
	}
	// Covers the restart-against-a-populated-index case, where the
	// ingestor never runs.
	if count, err := index.Count(ctx); err == nil {
		pipeline.IndexedChunks.Set(int64(count))
	}

	// --- Build HTTP server ---
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth(svc))
	mux.HandleFunc("POST /api/ask", handleAsk(svc, pipeline, logger))
	mux.Handle("GET /metrics", reg.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.OTel("policyrag-api"),
		mid.Logger(logger),
		mid.Metrics(reg),
		mid.CORS(cfg.CORSOrigin),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// meteredIngestor runs ingestion and records the stored chunk count.
func meteredIngestor(deps ingest.Deps, docPath string, indexed *metrics.Gauge) rag.IngestorFunc {
	return func(ctx context.Context) (int, error) {
		stored, err := ingest.Run(ctx, deps, docPath)
		if err == nil {
			indexed.Set(int64(stored))
		}
		return stored, err
	}
}

// --- Handlers ---

func handleHealth(svc *rag.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ready, err := svc.Ready(r.Context())
		status := "ok"
		if err != nil {
			status = "index unreachable"
		} else if !ready {
			status = "index empty"
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}

// AskRequest is the JSON body for POST /api/ask.
type AskRequest struct {
	Question string `json:"question"`
}

func handleAsk(svc *rag.Service, pipeline *metrics.Pipeline, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		pipeline.QueriesTotal.Inc()

		var req AskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		record, err := svc.Query(r.Context(), req.Question)
		if err != nil {
			if errors.Is(err, domain.ErrEmptyQuestion) || errors.Is(err, domain.ErrQuestionTooShort) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			pipeline.QueryErrors.Inc()
			logger.Error("query failed", "stage", domain.FailedStage(err), "err", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		switch {
		case record.Answer == rag.NoContentAnswer:
			pipeline.NoContentTotal.Inc()
		case record.Grounded:
			pipeline.GroundedTotal.Inc()
		default:
			pipeline.UngroundedTotal.Inc()
		}
		pipeline.QueryDuration.Since(start)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(record)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// --- Adapters ---

// guardedGenerator runs LLM calls through a circuit breaker.
type guardedGenerator struct {
	inner   rag.Generator
	breaker *resilience.Breaker
}

func (g *guardedGenerator) Generate(ctx context.Context, query string, contextChunks []string) (string, error) {
	return resilience.Do(g.breaker, ctx, func(ctx context.Context) (string, error) {
		return g.inner.Generate(ctx, query, contextChunks)
	})
}

// natsPublisher emits answer audit events.
type natsPublisher struct {
	nc *nats.Conn
}

func (p *natsPublisher) PublishAnswer(ctx context.Context, event rag.AnswerEvent) error {
	return natsutil.Publish(ctx, p.nc, natsutil.AnswerSubject, event)
}
