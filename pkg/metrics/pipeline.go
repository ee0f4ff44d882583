package metrics

// Pipeline bundles the metrics the answering service reports. One instance
// is created at startup and shared between the HTTP layer and the service.
type Pipeline struct {
	QueriesTotal    *Counter
	QueryErrors     *Counter
	NoContentTotal  *Counter
	GroundedTotal   *Counter
	UngroundedTotal *Counter
	IndexedChunks   *Gauge
	QueryDuration   *Histogram
}

// NewPipeline registers the answering pipeline metrics on reg.
func NewPipeline(reg *Registry) *Pipeline {
	return &Pipeline{
		QueriesTotal:    reg.Counter("rag_queries_total", "Total questions processed."),
		QueryErrors:     reg.Counter("rag_query_errors_total", "Questions that failed mid-pipeline."),
		NoContentTotal:  reg.Counter("rag_no_content_total", "Questions answered with the fixed non-answer."),
		GroundedTotal:   reg.Counter("rag_grounded_total", "Answers that passed grounding verification."),
		UngroundedTotal: reg.Counter("rag_ungrounded_total", "Answers flagged as unsupported by their context."),
		IndexedChunks:   reg.Gauge("rag_indexed_chunks", "Chunks currently held in the vector index."),
		QueryDuration:   reg.Histogram("rag_query_duration_seconds", "End-to-end query latency.", nil),
	}
}
