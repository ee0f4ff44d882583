package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/PolicyDeskAI/policyrag-mvp/engine/domain"
	"github.com/PolicyDeskAI/policyrag-mvp/engine/rank"
	"github.com/PolicyDeskAI/policyrag-mvp/engine/semantic"
)

// --- Mocks ---

type stubRetriever struct {
	chunks []domain.ScoredChunk
	err    error
	calls  int
}

func (s *stubRetriever) Retrieve(_ context.Context, _ string, _ int) ([]domain.ScoredChunk, error) {
	s.calls++
	return s.chunks, s.err
}

type stubGenerator struct {
	answer string
	err    error
	calls  int
}

func (s *stubGenerator) Generate(_ context.Context, _ string, _ []string) (string, error) {
	s.calls++
	return s.answer, s.err
}

type stubGrounding struct {
	grounded bool
	score    float64
	err      error
}

func (s *stubGrounding) Verify(_ context.Context, _ string, _ []string) (bool, float64, error) {
	return s.grounded, s.score, s.err
}

type recordingPublisher struct {
	events []AnswerEvent
	err    error
}

func (p *recordingPublisher) PublishAnswer(_ context.Context, e AnswerEvent) error {
	p.events = append(p.events, e)
	return p.err
}

func policyCandidates() []domain.ScoredChunk {
	return []domain.ScoredChunk{
		{Chunk: domain.Chunk{ID: 0, Text: "Access is reviewed quarterly.", SectionNumber: "3.1", SectionTitle: "Access Control"}, Score: 0.92},
		{Chunk: domain.Chunk{ID: 1, Text: "Reviews are logged.", SectionNumber: "3.1", SectionTitle: "Access Control"}, Score: 0.88},
		{Chunk: domain.Chunk{ID: 2, Text: "Passwords rotate yearly.", SectionNumber: "3.2", SectionTitle: "Passwords"}, Score: 0.80},
	}
}

func newTestService(retriever Retriever, gen Generator, grounding GroundingChecker, index semantic.Index) *Service {
	return New(Deps{
		Retriever: retriever,
		Selector:  rank.NewTruncate(),
		Generator: gen,
		Grounding: grounding,
		Index:     index,
	}, DefaultOptions())
}

// --- Validation ---

func TestQueryRejectsEmptyQuestion(t *testing.T) {
	svc := newTestService(&stubRetriever{}, &stubGenerator{}, &stubGrounding{}, semantic.NewMemory())

	_, err := svc.Query(context.Background(), "   ")
	if !errors.Is(err, domain.ErrEmptyQuestion) {
		t.Fatalf("expected ErrEmptyQuestion, got %v", err)
	}
}

func TestQueryRejectsShortQuestion(t *testing.T) {
	svc := newTestService(&stubRetriever{}, &stubGenerator{}, &stubGrounding{}, semantic.NewMemory())

	_, err := svc.Query(context.Background(), "ok")
	if !errors.Is(err, domain.ErrQuestionTooShort) {
		t.Fatalf("expected ErrQuestionTooShort, got %v", err)
	}
}

// --- Empty retrieval short circuit ---

func TestQueryNoCandidatesShortCircuits(t *testing.T) {
	gen := &stubGenerator{answer: "should never be used"}
	svc := newTestService(&stubRetriever{}, gen, &stubGrounding{}, semantic.NewMemory())

	record, err := svc.Query(context.Background(), "What is the retention period?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if record.Answer != NoContentAnswer {
		t.Errorf("expected fixed non-answer, got %q", record.Answer)
	}
	if len(record.Sources) != 0 || record.Sources == nil {
		t.Errorf("expected empty non-nil sources, got %#v", record.Sources)
	}
	if record.ConfidenceScore != 0 || record.ConfidenceLevel != domain.ConfidenceLow {
		t.Errorf("expected zero confidence Low, got %v %q", record.ConfidenceScore, record.ConfidenceLevel)
	}
	if record.Grounded || record.GroundingScore != 0 {
		t.Errorf("expected ungrounded zero score, got %v %v", record.Grounded, record.GroundingScore)
	}
	if gen.calls != 0 {
		t.Errorf("generator should not be called when retrieval is empty")
	}
}

// --- Happy path ---

func TestQueryHappyPath(t *testing.T) {
	retriever := &stubRetriever{chunks: policyCandidates()}
	gen := &stubGenerator{answer: "Access rights are reviewed quarterly."}
	grounding := &stubGrounding{grounded: true, score: 0.91}
	svc := newTestService(retriever, gen, grounding, semantic.NewMemory())

	record, err := svc.Query(context.Background(), "How often are access rights reviewed?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if record.Answer != "Access rights are reviewed quarterly." {
		t.Errorf("unexpected answer %q", record.Answer)
	}
	if record.ConfidenceScore != rank.TruncateConfidence {
		t.Errorf("expected confidence %v, got %v", rank.TruncateConfidence, record.ConfidenceScore)
	}
	if record.ConfidenceLevel != domain.ConfidenceMedium {
		t.Errorf("expected Medium confidence, got %q", record.ConfidenceLevel)
	}
	if !record.Grounded || record.GroundingScore != 0.91 {
		t.Errorf("unexpected grounding %v %v", record.Grounded, record.GroundingScore)
	}

	// Two chunks share section 3.1; sources must be deduplicated in order.
	want := []domain.SourceRef{
		{SectionNumber: "3.1", SectionTitle: "Access Control"},
		{SectionNumber: "3.2", SectionTitle: "Passwords"},
	}
	if len(record.Sources) != len(want) {
		t.Fatalf("expected %d sources, got %d", len(want), len(record.Sources))
	}
	for i := range want {
		if record.Sources[i] != want[i] {
			t.Errorf("source %d = %+v, want %+v", i, record.Sources[i], want[i])
		}
	}
}

func TestQueryConfidenceRounding(t *testing.T) {
	retriever := &stubRetriever{chunks: policyCandidates()}
	svc := New(Deps{
		Retriever: retriever,
		Selector:  fixedSelector{confidence: 0.8567},
		Generator: &stubGenerator{answer: "yes"},
		Grounding: &stubGrounding{grounded: true, score: 0.9},
		Index:     semantic.NewMemory(),
	}, DefaultOptions())

	record, err := svc.Query(context.Background(), "Is access logged?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.ConfidenceScore != 0.86 {
		t.Errorf("expected confidence rounded to 0.86, got %v", record.ConfidenceScore)
	}
	if record.ConfidenceLevel != domain.ConfidenceHigh {
		t.Errorf("expected High label from unrounded score, got %q", record.ConfidenceLevel)
	}
}

type fixedSelector struct {
	confidence float64
}

func (f fixedSelector) Select(_ context.Context, _ string, candidates []domain.ScoredChunk, finalK int) (rank.Selection, error) {
	if len(candidates) > finalK {
		candidates = candidates[:finalK]
	}
	return rank.Selection{Chunks: candidates, Confidence: f.confidence}, nil
}

// --- Stage error attribution ---

func TestQueryStageErrors(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name  string
		deps  func(d *Deps)
		stage string
	}{
		{"retrieve", func(d *Deps) { d.Retriever = &stubRetriever{err: boom} }, StageRetrieve},
		{"generate", func(d *Deps) { d.Generator = &stubGenerator{err: boom} }, StageGenerate},
		{"verify", func(d *Deps) { d.Grounding = &stubGrounding{err: boom} }, StageVerify},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := Deps{
				Retriever: &stubRetriever{chunks: policyCandidates()},
				Selector:  rank.NewTruncate(),
				Generator: &stubGenerator{answer: "a"},
				Grounding: &stubGrounding{},
				Index:     semantic.NewMemory(),
			}
			tt.deps(&deps)
			svc := New(deps, DefaultOptions())

			_, err := svc.Query(context.Background(), "What is the policy scope?")
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, boom) {
				t.Errorf("expected wrapped cause, got %v", err)
			}
			if got := domain.FailedStage(err); got != tt.stage {
				t.Errorf("expected stage %q, got %q", tt.stage, got)
			}
		})
	}
}

// --- Cold-start ingestion ---

func TestQueryColdStartIngestsOnce(t *testing.T) {
	index := semantic.NewMemory()
	ingests := 0
	ingestor := IngestorFunc(func(ctx context.Context) (int, error) {
		ingests++
		record := semantic.Record{
			ID:        "p1",
			Embedding: []float32{1, 0},
			Chunk:     domain.Chunk{ID: 0, Text: "Scope covers all staff.", SectionNumber: "2", SectionTitle: "Scope"},
		}
		if err := index.Upsert(ctx, []semantic.Record{record}); err != nil {
			return 0, err
		}
		return 1, nil
	})

	svc := New(Deps{
		Retriever: &stubRetriever{chunks: policyCandidates()},
		Selector:  rank.NewTruncate(),
		Generator: &stubGenerator{answer: "a"},
		Grounding: &stubGrounding{grounded: true, score: 0.8},
		Index:     index,
		Ingestor:  ingestor,
	}, DefaultOptions())

	for i := 0; i < 3; i++ {
		if _, err := svc.Query(context.Background(), "What is the scope?"); err != nil {
			t.Fatalf("query %d: %v", i, err)
		}
	}

	if ingests != 1 {
		t.Errorf("expected exactly one cold-start ingestion, got %d", ingests)
	}
}

func TestQueryIngestionFailureIsStageError(t *testing.T) {
	boom := errors.New("pdf missing")
	svc := New(Deps{
		Retriever: &stubRetriever{},
		Selector:  rank.NewTruncate(),
		Generator: &stubGenerator{},
		Grounding: &stubGrounding{},
		Index:     semantic.NewMemory(),
		Ingestor:  IngestorFunc(func(context.Context) (int, error) { return 0, boom }),
	}, DefaultOptions())

	_, err := svc.Query(context.Background(), "What is the scope?")
	if !errors.Is(err, boom) {
		t.Fatalf("expected ingestion cause, got %v", err)
	}
	if got := domain.FailedStage(err); got != StageIngest {
		t.Errorf("expected stage %q, got %q", StageIngest, got)
	}
}

// --- Lifecycle ---

func TestInitializeAndReady(t *testing.T) {
	index := semantic.NewMemory()
	svc := New(Deps{
		Retriever: &stubRetriever{},
		Selector:  rank.NewTruncate(),
		Generator: &stubGenerator{},
		Grounding: &stubGrounding{},
		Index:     index,
		Ingestor: IngestorFunc(func(ctx context.Context) (int, error) {
			record := semantic.Record{ID: "p1", Embedding: []float32{1}, Chunk: domain.Chunk{Text: "x"}}
			return 1, index.Upsert(ctx, []semantic.Record{record})
		}),
	}, DefaultOptions())

	ready, err := svc.Ready(context.Background())
	if err != nil || ready {
		t.Fatalf("expected not ready on empty index, got %v %v", ready, err)
	}

	if err := svc.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	ready, err = svc.Ready(context.Background())
	if err != nil || !ready {
		t.Fatalf("expected ready after initialize, got %v %v", ready, err)
	}
}

type closableIndex struct {
	*semantic.MemoryStore
	closed bool
}

func (c *closableIndex) Close() error {
	c.closed = true
	return nil
}

func TestShutdownClosesIndex(t *testing.T) {
	index := &closableIndex{MemoryStore: semantic.NewMemory()}
	svc := New(Deps{
		Retriever: &stubRetriever{},
		Selector:  rank.NewTruncate(),
		Generator: &stubGenerator{},
		Grounding: &stubGrounding{},
		Index:     index,
	}, DefaultOptions())

	if err := svc.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !index.closed {
		t.Error("expected the index to be closed")
	}
}

// --- Audit events ---

func TestQueryPublishesAnswerEvent(t *testing.T) {
	pub := &recordingPublisher{}
	svc := New(Deps{
		Retriever: &stubRetriever{chunks: policyCandidates()},
		Selector:  rank.NewTruncate(),
		Generator: &stubGenerator{answer: "quarterly"},
		Grounding: &stubGrounding{grounded: true, score: 0.9},
		Index:     semantic.NewMemory(),
		Publisher: pub,
	}, DefaultOptions())

	if _, err := svc.Query(context.Background(), "How often are reviews run?"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(pub.events) != 1 {
		t.Fatalf("expected one event, got %d", len(pub.events))
	}
	event := pub.events[0]
	if event.Query != "How often are reviews run?" {
		t.Errorf("unexpected event query %q", event.Query)
	}
	if event.Record.Answer != "quarterly" {
		t.Errorf("unexpected event answer %q", event.Record.Answer)
	}
	if event.Timestamp.IsZero() {
		t.Error("event timestamp not set")
	}
}

func TestQueryPublishFailureIsNotFatal(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("nats down")}
	svc := New(Deps{
		Retriever: &stubRetriever{chunks: policyCandidates()},
		Selector:  rank.NewTruncate(),
		Generator: &stubGenerator{answer: "a"},
		Grounding: &stubGrounding{},
		Index:     semantic.NewMemory(),
		Publisher: pub,
	}, DefaultOptions())

	if _, err := svc.Query(context.Background(), "What is the scope?"); err != nil {
		t.Fatalf("publish failure must not fail the query, got %v", err)
	}
}
