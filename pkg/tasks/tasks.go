// Package tasks implements the eight reasoning tasks (A1-A8) that evaluation
// plans compose. Every task is a pure function over its inputs and the LLM
// client: identical inputs yield identical prompts, so task runs are
// idempotent and safe to retry.
package tasks

import (
	"context"
	"fmt"

	"github.com/auditflow/auditflow/pkg/models"
	"github.com/auditflow/auditflow/pkg/providers"
)

// Tag identifies a reasoning task.
type Tag string

// The task catalog.
const (
	TagSemanticSearch       Tag = "A1"
	TagImageRecognition     Tag = "A2"
	TagStructuredExtraction Tag = "A3"
	TagStepwiseReasoning    Tag = "A4"
	TagSemanticReasoning    Tag = "A5"
	TagConsolidation        Tag = "A6"
	TagPatternAnalysis      Tag = "A7"
	TagSegregationOfDuties  Tag = "A8"
)

// Input carries everything a task may need. Tasks read, never mutate.
type Input struct {
	Item *models.EvaluationItem

	// Evidence is the flattened extraction text with per-file headers.
	Evidence string

	// Retry tunables shared by all tasks.
	RetryPolicy providers.RetryPolicy

	// MaxTokens bounds each LLM call. Zero uses the provider default.
	MaxTokens int
}

// Result is the uniform task output consumed by the judge.
type Result struct {
	Tag     Tag
	Name    string
	Finding string
	Failed  bool
	Usage   providers.Usage
}

// Task is one reasoning step in an evaluation plan.
type Task interface {
	Tag() Tag
	Name() string
	Run(ctx context.Context, in *Input, client providers.LLMClient) (*Result, error)
}

// Catalog returns the full task set keyed by tag.
func Catalog() map[Tag]Task {
	all := []Task{
		&semanticSearch{},
		&imageRecognition{},
		&structuredExtraction{},
		&stepwiseReasoning{},
		&semanticReasoning{},
		&consolidation{},
		&patternAnalysis{},
		&segregationOfDuties{},
	}
	out := make(map[Tag]Task, len(all))
	for _, t := range all {
		out[t.Tag()] = t
	}
	return out
}

// ValidTag reports whether s names a catalog task.
func ValidTag(s string) bool {
	switch Tag(s) {
	case TagSemanticSearch, TagImageRecognition, TagStructuredExtraction,
		TagStepwiseReasoning, TagSemanticReasoning, TagConsolidation,
		TagPatternAnalysis, TagSegregationOfDuties:
		return true
	default:
		return false
	}
}

const systemPrompt = "You are an internal-control test evaluator. " +
	"Answer strictly in JSON with the requested fields. " +
	"Base every statement on the provided evidence only."

// invoke runs one retried LLM call and post-parses the finding. Responses
// that are not parseable JSON are kept verbatim as the finding: a degraded
// answer still beats a dropped task.
func invoke(ctx context.Context, client providers.LLMClient, in *Input, tag Tag, name, prompt string) (*Result, error) {
	resp, err := providers.InvokeWithRetry(ctx, client, &providers.LLMRequest{
		System:    systemPrompt,
		Prompt:    prompt,
		MaxTokens: in.MaxTokens,
	}, in.RetryPolicy)
	if err != nil {
		return nil, fmt.Errorf("task %s (%s): %w", tag, name, err)
	}

	finding := resp.Text
	var parsed struct {
		Finding string `json:"finding"`
	}
	if DecodeJSON(resp.Text, &parsed) && parsed.Finding != "" {
		finding = parsed.Finding
	}

	return &Result{Tag: tag, Name: name, Finding: finding, Usage: resp.Usage}, nil
}
