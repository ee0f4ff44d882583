// Command evaluate runs a question set against a running API server and
// reports per-question health checks: empty answers, missing citations,
// low confidence, and non-answers.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PolicyDeskAI/policyrag-mvp/engine/domain"
)

// QuestionSet is the YAML evaluation input.
type QuestionSet struct {
	Questions []string `yaml:"questions"`
}

// Evaluation is one question's verdict.
type Evaluation struct {
	Question        string  `json:"question"`
	AnswerLength    int     `json:"answer_length"`
	NumSources      int     `json:"num_sources"`
	ConfidenceScore float64 `json:"confidence_score"`
	ConfidenceLevel string  `json:"confidence_level"`
	Grounded        bool    `json:"grounded_in_context"`
	PotentialIssue  string  `json:"potential_issue"`
}

const lowConfidenceFloor = 0.5

func main() {
	var (
		apiURL  = flag.String("api", "http://localhost:8080", "base URL of the running API server")
		setPath = flag.String("questions", "eval/questions.yaml", "YAML question set")
		timeout = flag.Duration("timeout", 60*time.Second, "per-question timeout")
	)
	flag.Parse()

	set, err := loadQuestionSet(*setPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load question set: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: *timeout}
	results := make([]Evaluation, 0, len(set.Questions))
	failures := 0

	for _, q := range set.Questions {
		fmt.Printf("Testing: %s\n", q)

		record, err := ask(client, *apiURL, q)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  query failed: %v\n", err)
			failures++
			continue
		}

		eval := evaluate(q, record)
		results = append(results, eval)
		if eval.PotentialIssue != "OK" {
			failures++
		}

		fmt.Printf("  confidence: %.2f  status: %s\n", eval.ConfidenceScore, eval.PotentialIssue)
	}

	out, _ := json.MarshalIndent(results, "", "    ")
	fmt.Printf("\n%s\n", out)

	if failures > 0 {
		fmt.Fprintf(os.Stderr, "\n%d of %d questions flagged\n", failures, len(set.Questions))
		os.Exit(1)
	}
}

func loadQuestionSet(path string) (QuestionSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return QuestionSet{}, err
	}
	var set QuestionSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return QuestionSet{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(set.Questions) == 0 {
		return QuestionSet{}, fmt.Errorf("%s contains no questions", path)
	}
	return set, nil
}

func ask(client *http.Client, apiURL, question string) (domain.AnswerRecord, error) {
	body, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		return domain.AnswerRecord{}, err
	}

	resp, err := client.Post(apiURL+"/api/ask", "application/json", bytes.NewReader(body))
	if err != nil {
		return domain.AnswerRecord{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.AnswerRecord{}, fmt.Errorf("api returned %s", resp.Status)
	}

	var record domain.AnswerRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return domain.AnswerRecord{}, fmt.Errorf("decode answer: %w", err)
	}
	return record, nil
}

// evaluate applies the health checks in priority order; the first hit wins.
func evaluate(question string, record domain.AnswerRecord) Evaluation {
	eval := Evaluation{
		Question:        question,
		AnswerLength:    len(record.Answer),
		NumSources:      len(record.Sources),
		ConfidenceScore: record.ConfidenceScore,
		ConfidenceLevel: record.ConfidenceLevel,
		Grounded:        record.Grounded,
	}

	switch {
	case strings.TrimSpace(record.Answer) == "":
		eval.PotentialIssue = "Empty answer"
	case record.ConfidenceScore < lowConfidenceFloor:
		eval.PotentialIssue = "Low confidence"
	case len(record.Sources) == 0:
		eval.PotentialIssue = "No citation source"
	case strings.Contains(strings.ToLower(record.Answer), "not available"):
		eval.PotentialIssue = "Model could not find answer"
	default:
		eval.PotentialIssue = "OK"
	}
	return eval
}
