// Command ingest runs the document ingestion pipeline once: it loads the
// policy PDF, chunks it, embeds the chunks, and stores them in Qdrant.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

	"github.com/PolicyDeskAI/policyrag-mvp/engine/clean"
	"github.com/PolicyDeskAI/policyrag-mvp/engine/ingest"
	"github.com/PolicyDeskAI/policyrag-mvp/engine/semantic"
	"github.com/PolicyDeskAI/policyrag-mvp/pkg/ollama"
	"github.com/PolicyDeskAI/policyrag-mvp/pkg/pdfload"
)

func main() {
	_ = godotenv.Load()

	var (
		docPath     = flag.String("doc", "data/policy.pdf", "path to the source PDF")
		ollamaURL   = flag.String("ollama", "http://localhost:11434", "Ollama base URL")
		ollamaModel = flag.String("model", "nomic-embed-text", "Ollama embedding model")
		qdrantAddr  = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
		collection  = flag.String("collection", "policy_chunks", "Qdrant collection name")
		dims        = flag.Int("dims", 768, "embedding dimensionality")
		reset       = flag.Bool("reset", false, "drop existing chunks before ingesting")
		strategy    = flag.String("strategy", "section", "chunking strategy: section or paragraph")
		footer      = flag.String("footer", os.Getenv("FOOTER_PATTERN"), "running-footer regex to strip during cleaning")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := run(log, *docPath, *ollamaURL, *ollamaModel, *qdrantAddr, *collection, *strategy, *footer, *dims, *reset); err != nil {
		log.Error("ingestion failed", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger, docPath, ollamaURL, ollamaModel, qdrantAddr, collection, strategy, footer string, dims int, reset bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cleanOpts []clean.Option
	if footer != "" {
		if _, err := regexp.Compile("(?i)" + footer); err != nil {
			return fmt.Errorf("parse footer pattern: %w", err)
		}
		cleanOpts = append(cleanOpts, clean.WithFooterPattern(footer))
	}

	index, err := semantic.NewQdrant(qdrantAddr, collection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer index.Close()

	if err := index.EnsureCollection(ctx, dims); err != nil {
		return fmt.Errorf("qdrant collection: %w", err)
	}
	if reset {
		log.Info("dropping existing chunks", "collection", collection)
		if err := index.Reset(ctx); err != nil {
			return fmt.Errorf("qdrant reset: %w", err)
		}
	}

	// Batches embed concurrently, so the callback must serialize.
	var barMu sync.Mutex
	var bar *progressbar.ProgressBar
	deps := ingest.Deps{
		Loader:   pdfload.New(),
		Cleaner:  clean.New(cleanOpts...),
		Embedder: ollama.NewEmbedClient(ollamaURL, ollamaModel),
		Index:    index,
		Logger:   log,
		Strategy: ingest.Strategy(strategy),
		Progress: func(done, total int) {
			barMu.Lock()
			defer barMu.Unlock()
			if bar == nil {
				bar = progressbar.Default(int64(total), "embedding")
			}
			_ = bar.Set(done)
		},
	}

	stored, err := ingest.Run(ctx, deps, docPath)
	if err != nil {
		return err
	}
	if bar != nil {
		_ = bar.Finish()
	}

	fmt.Printf("\nIngestion complete: %d chunks stored in %q from %s\n",
		stored, collection, strings.TrimSpace(docPath))

	count, err := index.Count(ctx)
	if err != nil {
		return fmt.Errorf("verify count: %w", err)
	}
	log.Info("index verified", "chunks", count)
	return nil
}
