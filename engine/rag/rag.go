// Package rag orchestrates the question answering pipeline. It accepts a
// user question, retrieves candidate chunks from the vector index, selects
// the context window, calls the LLM for a grounded answer, verifies the
// answer against its context, and assembles the structured response.
//
// On the first query against an empty index the service runs ingestion
// before answering, so a cold start needs no separate provisioning step.
package rag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/PolicyDeskAI/policyrag-mvp/engine/domain"
	"github.com/PolicyDeskAI/policyrag-mvp/engine/rank"
	"github.com/PolicyDeskAI/policyrag-mvp/engine/semantic"
)

// NoContentAnswer is returned verbatim when retrieval yields nothing.
const NoContentAnswer = "No relevant content found."

// Pipeline stage names used in error wrapping.
const (
	StageIngest   = "ingest"
	StageRetrieve = "retrieve"
	StageSelect   = "select"
	StageGenerate = "generate"
	StageVerify   = "verify"
)

// Retriever finds the chunks most similar to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]domain.ScoredChunk, error)
}

// Generator produces an answer from a question and its context chunks.
type Generator interface {
	Generate(ctx context.Context, query string, contextChunks []string) (string, error)
}

// GroundingChecker decides whether an answer is supported by its context.
type GroundingChecker interface {
	Verify(ctx context.Context, answer string, contextChunks []string) (grounded bool, score float64, err error)
}

// Ingestor populates the vector index from the source document.
type Ingestor interface {
	Ingest(ctx context.Context) (stored int, err error)
}

// IngestorFunc adapts a function to the Ingestor interface.
type IngestorFunc func(ctx context.Context) (int, error)

func (f IngestorFunc) Ingest(ctx context.Context) (int, error) { return f(ctx) }

// Publisher emits an audit event for each answered query. Publishing is
// best-effort; failures never fail the query.
type Publisher interface {
	PublishAnswer(ctx context.Context, event AnswerEvent) error
}

// AnswerEvent is the audit record published after each answered query.
type AnswerEvent struct {
	Query      string              `json:"query"`
	Record     domain.AnswerRecord `json:"record"`
	DurationMS int64               `json:"duration_ms"`
	Timestamp  time.Time           `json:"timestamp"`
}

// Deps holds the collaborators of the Service.
type Deps struct {
	Retriever Retriever
	Selector  rank.Selector
	Generator Generator
	Grounding GroundingChecker
	Index     semantic.Index
	Ingestor  Ingestor  // optional: enables cold-start ingestion
	Publisher Publisher // optional: answer audit events
	Logger    *slog.Logger
}

// Options configures the pipeline behaviour.
type Options struct {
	TopK          int
	FinalK        int
	SearchTimeout time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		TopK:          10,
		FinalK:        3,
		SearchTimeout: 5 * time.Second,
	}
}

// Service is the question answering orchestrator.
type Service struct {
	deps Deps
	opts Options
	log  *slog.Logger

	mu sync.Mutex // serializes cold-start ingestion
}

// New creates a Service.
func New(deps Deps, opts Options) *Service {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}
	if opts.FinalK <= 0 {
		opts.FinalK = DefaultOptions().FinalK
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = DefaultOptions().SearchTimeout
	}
	return &Service{deps: deps, opts: opts, log: log}
}

// Ready reports whether the index holds any chunks.
func (s *Service) Ready(ctx context.Context) (bool, error) {
	count, err := s.deps.Index.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("rag: index count: %w", err)
	}
	return count > 0, nil
}

// Initialize ingests the source document if the index is empty. Calling it
// at startup front-loads the cost; otherwise the first query pays it.
func (s *Service) Initialize(ctx context.Context) error {
	return s.ensureIngested(ctx)
}

// Shutdown releases any dependencies that hold connections. Deps that do not
// implement io.Closer are skipped.
func (s *Service) Shutdown() error {
	var errs []error
	for _, dep := range []any{s.deps.Publisher, s.deps.Index} {
		closer, ok := dep.(io.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Query runs the full pipeline for one question.
func (s *Service) Query(ctx context.Context, query string) (domain.AnswerRecord, error) {
	if err := domain.ValidateQuestion(query); err != nil {
		return domain.AnswerRecord{}, err
	}

	start := time.Now()
	s.log.Info("rag query start", "question_len", len(query))

	if err := s.ensureIngested(ctx); err != nil {
		return domain.AnswerRecord{}, domain.NewStageError(StageIngest, err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, s.opts.SearchTimeout)
	defer cancel()

	candidates, err := s.deps.Retriever.Retrieve(searchCtx, query, s.opts.TopK)
	if err != nil {
		return domain.AnswerRecord{}, domain.NewStageError(StageRetrieve, err)
	}
	s.log.Info("rag retrieval done", "candidates", len(candidates))

	// Nothing retrieved: short-circuit with a fixed non-answer instead of
	// spending an LLM call on a question the document cannot answer.
	if len(candidates) == 0 {
		return noContentRecord(), nil
	}

	selection, err := s.deps.Selector.Select(ctx, query, candidates, s.opts.FinalK)
	if err != nil {
		return domain.AnswerRecord{}, domain.NewStageError(StageSelect, err)
	}

	contextTexts := make([]string, len(selection.Chunks))
	chunks := make([]domain.Chunk, len(selection.Chunks))
	for i, sc := range selection.Chunks {
		contextTexts[i] = sc.Chunk.Text
		chunks[i] = sc.Chunk
	}

	answer, err := s.deps.Generator.Generate(ctx, query, contextTexts)
	if err != nil {
		return domain.AnswerRecord{}, domain.NewStageError(StageGenerate, err)
	}

	grounded, groundingScore, err := s.deps.Grounding.Verify(ctx, answer, contextTexts)
	if err != nil {
		return domain.AnswerRecord{}, domain.NewStageError(StageVerify, err)
	}

	record := domain.AnswerRecord{
		Answer:          answer,
		Sources:         domain.DedupSources(chunks),
		ConfidenceScore: round2(selection.Confidence),
		ConfidenceLevel: domain.ClassifyConfidence(selection.Confidence),
		Grounded:        grounded,
		GroundingScore:  groundingScore,
	}

	s.publish(ctx, AnswerEvent{
		Query:      query,
		Record:     record,
		DurationMS: time.Since(start).Milliseconds(),
		Timestamp:  time.Now().UTC(),
	})

	s.log.Info("rag query done",
		"grounded", record.Grounded,
		"confidence", record.ConfidenceLevel,
		"duration", time.Since(start),
	)
	return record, nil
}

// ensureIngested populates an empty index exactly once, even under
// concurrent first queries.
func (s *Service) ensureIngested(ctx context.Context) error {
	if s.deps.Ingestor == nil {
		return nil
	}
	count, err := s.deps.Index.Count(ctx)
	if err != nil {
		return fmt.Errorf("index count: %w", err)
	}
	if count > 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check under the lock: a concurrent query may have ingested while
	// this one waited.
	count, err = s.deps.Index.Count(ctx)
	if err != nil {
		return fmt.Errorf("index count: %w", err)
	}
	if count > 0 {
		return nil
	}

	s.log.Info("rag index empty, running ingestion")
	stored, err := s.deps.Ingestor.Ingest(ctx)
	if err != nil {
		return fmt.Errorf("cold-start ingestion: %w", err)
	}
	s.log.Info("rag ingestion complete", "chunks", stored)
	return nil
}

func (s *Service) publish(ctx context.Context, event AnswerEvent) {
	if s.deps.Publisher == nil {
		return
	}
	if err := s.deps.Publisher.PublishAnswer(ctx, event); err != nil {
		s.log.Warn("rag: answer event publish failed, continuing", "err", err)
	}
}

func noContentRecord() domain.AnswerRecord {
	return domain.AnswerRecord{
		Answer:          NoContentAnswer,
		Sources:         []domain.SourceRef{},
		ConfidenceScore: 0,
		ConfidenceLevel: domain.ConfidenceLow,
		Grounded:        false,
		GroundingScore:  0,
	}
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
