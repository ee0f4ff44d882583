// Command ask answers questions from the terminal. It builds the full
// pipeline in-process and prints the structured answer record as JSON, one
// question per line on stdin.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/PolicyDeskAI/policyrag-mvp/engine/clean"
	"github.com/PolicyDeskAI/policyrag-mvp/engine/domain"
	"github.com/PolicyDeskAI/policyrag-mvp/engine/grounding"
	"github.com/PolicyDeskAI/policyrag-mvp/engine/ingest"
	"github.com/PolicyDeskAI/policyrag-mvp/engine/rag"
	"github.com/PolicyDeskAI/policyrag-mvp/engine/rank"
	"github.com/PolicyDeskAI/policyrag-mvp/engine/retrieve"
	"github.com/PolicyDeskAI/policyrag-mvp/engine/semantic"
	"github.com/PolicyDeskAI/policyrag-mvp/pkg/groq"
	"github.com/PolicyDeskAI/policyrag-mvp/pkg/ollama"
	"github.com/PolicyDeskAI/policyrag-mvp/pkg/pdfload"
)

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	apiKey := os.Getenv("GROQ_API_KEY")
	if apiKey == "" {
		fmt.Fprintf(os.Stderr, "GROQ_API_KEY is not set: %v\n", domain.ErrMissingCredential)
		os.Exit(1)
	}

	qdrantAddr := envOr("QDRANT_URL", "localhost:6334")
	collection := envOr("QDRANT_COLLECTION", "policy_chunks")
	ollamaURL := envOr("OLLAMA_URL", "http://localhost:11434")
	embedModel := envOr("EMBED_MODEL", "nomic-embed-text")
	docPath := envOr("DOCUMENT_PATH", "data/policy.pdf")

	index, err := semantic.NewQdrant(qdrantAddr, collection)
	if err != nil {
		fmt.Fprintf(os.Stderr, "qdrant connect: %v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()
	if err := index.EnsureCollection(ctx, 768); err != nil {
		fmt.Fprintf(os.Stderr, "qdrant collection: %v\n", err)
		os.Exit(1)
	}

	embedder := ollama.NewEmbedClient(ollamaURL, embedModel)
	ingestDeps := ingest.Deps{
		Loader:   pdfload.New(),
		Cleaner:  clean.New(),
		Embedder: embedder,
		Index:    index,
		Logger:   logger,
	}

	svc := rag.New(rag.Deps{
		Retriever: retrieve.New(embedder, index, logger),
		Selector:  rank.NewTruncate(),
		Generator: groq.New(apiKey, groq.WithModel(envOr("GROQ_MODEL", groq.DefaultModel))),
		Grounding: grounding.New(embedder, grounding.DefaultThreshold),
		Index:     index,
		Ingestor: rag.IngestorFunc(func(ctx context.Context) (int, error) {
			return ingest.Run(ctx, ingestDeps, docPath)
		}),
		Logger: logger,
	}, rag.DefaultOptions())
	defer svc.Shutdown()

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("Enter your question: ")
	for scanner.Scan() {
		question := strings.TrimSpace(scanner.Text())
		if question == "" || question == "exit" || question == "quit" {
			return
		}

		record, err := svc.Query(ctx, question)
		if err != nil {
			if errors.Is(err, domain.ErrQuestionTooShort) {
				fmt.Fprintln(os.Stderr, "question too short, try again")
			} else {
				fmt.Fprintf(os.Stderr, "query failed: %v\n", err)
			}
			fmt.Print("\nEnter your question: ")
			continue
		}

		out, err := json.MarshalIndent(record, "", "    ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "encode answer: %v\n", err)
			continue
		}
		fmt.Printf("\n%s\n\nEnter your question: ", out)
	}
}
