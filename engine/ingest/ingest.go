// Package ingest provides the ingestion pipeline that turns a source
// document into indexed vectors: load pages, drop front matter, clean,
// merge, chunk by section, embed, and store.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/PolicyDeskAI/policyrag-mvp/engine/domain"
	"github.com/PolicyDeskAI/policyrag-mvp/engine/semantic"
	"github.com/PolicyDeskAI/policyrag-mvp/pkg/fn"
)

// EmbedBatchSize is the max chunks per embedding request.
const EmbedBatchSize = 100

// EmbedWorkers bounds how many embedding batches run concurrently.
const EmbedWorkers = 4

// Loader produces the ordered pages of a document.
type Loader interface {
	Load(path string) ([]domain.Page, error)
}

// Cleaner normalizes page text before chunking.
type Cleaner interface {
	CleanPages(pages []domain.Page) []domain.Page
}

// Embedder turns a batch of texts into index-aligned vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Deps holds the external dependencies for the ingestion pipeline.
type Deps struct {
	Loader   Loader
	Cleaner  Cleaner
	Embedder Embedder
	Index    semantic.Index
	Logger   *slog.Logger
	// Strategy picks the chunking mode. Empty means StrategySection.
	Strategy Strategy
	// Progress, when set, is called after each embedding batch with the
	// number of chunks embedded so far and the total. Used by the CLI to
	// drive a progress bar.
	Progress func(done, total int)
}

// --- Pipeline Stages ---

// NewLoad creates a stage that loads a document's pages.
func NewLoad(loader Loader) fn.Stage[string, []domain.Page] {
	return func(_ context.Context, path string) fn.Result[[]domain.Page] {
		return fn.FromPair(loader.Load(path))
	}
}

// FilterFrontMatter drops cover and table-of-contents pages. A document
// with nothing past the front matter is an error, not an empty index.
var FilterFrontMatter fn.Stage[[]domain.Page, []domain.Page] = func(_ context.Context, pages []domain.Page) fn.Result[[]domain.Page] {
	kept := filterFrontMatter(pages)
	if len(kept) == 0 {
		return fn.Err[[]domain.Page](fmt.Errorf("ingest: all %d pages are front matter: %w", len(pages), domain.ErrNoExtractableText))
	}
	return fn.Ok(kept)
}

// NewClean creates a stage that normalizes page text.
func NewClean(cleaner Cleaner) fn.Stage[[]domain.Page, []domain.Page] {
	return func(_ context.Context, pages []domain.Page) fn.Result[[]domain.Page] {
		return fn.Ok(cleaner.CleanPages(pages))
	}
}

// Merge collapses cleaned pages into one document string.
var Merge fn.Stage[[]domain.Page, MergedDoc] = fn.MapStage(mergePages)

// NewChunk creates a stage that cuts the merged document into embeddable
// chunks with the given strategy.
func NewChunk(strategy Strategy) fn.Stage[MergedDoc, ChunkedDoc] {
	return func(_ context.Context, doc MergedDoc) fn.Result[ChunkedDoc] {
		chunks := buildChunks(doc, strategy)
		if len(chunks) == 0 {
			return fn.Err[ChunkedDoc](fmt.Errorf("ingest: %s produced no chunks: %w", doc.Source, domain.ErrNoExtractableText))
		}
		return fn.Ok(ChunkedDoc{Source: doc.Source, Chunks: chunks})
	}
}

// NewEmbed creates a stage that embeds chunks in batches, EmbedWorkers
// batches at a time. Each batch call is retried with the given opts, so a
// briefly unreachable embedding server does not fail the whole run. Progress
// reports the cumulative chunk count; batches finish out of order, the counts
// stay monotonic.
func NewEmbed(embedder Embedder, retry fn.RetryOpts, progress func(done, total int)) fn.Stage[ChunkedDoc, EmbeddedDoc] {
	return func(ctx context.Context, doc ChunkedDoc) fn.Result[EmbeddedDoc] {
		total := len(doc.Chunks)
		var done atomic.Int64

		batches := fn.Chunk(doc.Chunks, EmbedBatchSize)
		results := fn.ParMapResult(batches, EmbedWorkers, func(batch []domain.Chunk) fn.Result[[][]float32] {
			texts := fn.Map(batch, func(c domain.Chunk) string { return c.Text })

			result := fn.Retry(ctx, retry, func(ctx context.Context) fn.Result[[][]float32] {
				return fn.FromPair(embedder.EmbedBatch(ctx, texts))
			})
			vectors, err := result.Unwrap()
			if err != nil {
				return fn.Err[[][]float32](fmt.Errorf("embed batch: %w", err))
			}
			if len(vectors) != len(texts) {
				return fn.Err[[][]float32](fmt.Errorf("embed batch: got %d vectors for %d texts", len(vectors), len(texts)))
			}

			if progress != nil {
				progress(int(done.Add(int64(len(batch)))), total)
			}
			return fn.Ok(vectors)
		})

		embeddings := make([][]float32, 0, total)
		for _, r := range results {
			vectors, err := r.Unwrap()
			if err != nil {
				return fn.Err[EmbeddedDoc](err)
			}
			embeddings = append(embeddings, vectors...)
		}
		return fn.Ok(EmbeddedDoc{ChunkedDoc: doc, Embeddings: embeddings})
	}
}

// NewStore creates a stage that upserts embedded chunks into the vector
// index and reports how many were stored.
func NewStore(index semantic.Index) fn.Stage[EmbeddedDoc, int] {
	return func(ctx context.Context, doc EmbeddedDoc) fn.Result[int] {
		records := make([]semantic.Record, len(doc.Chunks))
		for i, c := range doc.Chunks {
			records[i] = semantic.Record{
				ID:        pointID(doc.Source, c.ID),
				Embedding: doc.Embeddings[i],
				Chunk:     c,
			}
		}
		if err := index.Upsert(ctx, records); err != nil {
			return fn.Err[int](fmt.Errorf("vector upsert: %w", err))
		}
		return fn.Ok(len(records))
	}
}

// LoggedTap returns a stage that logs entry/exit with duration.
func LoggedTap[T any](name string, log *slog.Logger) fn.Stage[T, T] {
	return func(ctx context.Context, t T) fn.Result[T] {
		log.Info("stage.enter", "stage", name)
		start := time.Now()
		defer func() {
			log.Info("stage.exit", "stage", name, "duration", time.Since(start))
		}()
		return fn.Ok(t)
	}
}

// NewPipeline constructs the full ingestion pipeline with all stages wired.
// Each stage carries an OTel span so ingestion latency shows up per stage.
func NewPipeline(deps Deps) fn.Stage[string, int] {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	// Compose: Load → Filter → Clean → Merge → Chunk → Embed → Store
	// with logging taps between stages.
	loaded := fn.Then(LoggedTap[string]("load", log), fn.TracedStage("ingest.load", NewLoad(deps.Loader)))
	filtered := fn.Then(loaded, FilterFrontMatter)
	cleaned := fn.Then(filtered, fn.Then(LoggedTap[[]domain.Page]("clean", log), NewClean(deps.Cleaner)))
	merged := fn.Then(cleaned, Merge)
	chunked := fn.Then(merged, fn.Then(LoggedTap[MergedDoc]("chunk", log), fn.TracedStage("ingest.chunk", NewChunk(deps.Strategy))))
	embedded := fn.Then(chunked, fn.Then(LoggedTap[ChunkedDoc]("embed", log), fn.TracedStage("ingest.embed", NewEmbed(deps.Embedder, fn.DefaultRetry, deps.Progress))))
	stored := fn.Then(embedded, fn.Then(LoggedTap[EmbeddedDoc]("store", log), fn.TracedStage("ingest.store", NewStore(deps.Index))))

	return stored
}

// Run executes the pipeline for one document and returns the number of
// chunks stored.
func Run(ctx context.Context, deps Deps, path string) (int, error) {
	result := NewPipeline(deps)(ctx, path)
	stored, err := result.Unwrap()
	if err != nil {
		return 0, err
	}
	return stored, nil
}
