// Package graph drives a single evaluation item through the reasoning state
// machine: plan, plan review, execute, judge, judgment review, optional
// self-reflection, done. The orchestrator never returns an error; items that
// cannot be evaluated yield a result carrying an error kind instead.
package graph

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/auditflow/auditflow/pkg/evidence"
	"github.com/auditflow/auditflow/pkg/models"
	"github.com/auditflow/auditflow/pkg/providers"
	"github.com/auditflow/auditflow/pkg/tasks"
)

// Config tunes the state machine.
type Config struct {
	// MaxPlanRevisions bounds plan-review loops. Zero disables the review.
	MaxPlanRevisions int

	// MaxJudgmentRevisions bounds judgment-review loops. Zero disables it.
	MaxJudgmentRevisions int

	// SkipPlanCreation short-circuits straight to the mechanical plan.
	SkipPlanCreation bool

	// SelfReflectionEnabled adds the reflection pass after judgment review.
	SelfReflectionEnabled bool

	// ItemTimeout is the per-item wall-clock cap.
	ItemTimeout time.Duration

	// RetryPolicy applies to every LLM call.
	RetryPolicy providers.RetryPolicy

	// MaxTokens bounds each LLM call. Zero uses the provider default.
	MaxTokens int
}

// Orchestrator evaluates items against the configured LLM and evidence
// pipeline. Safe for concurrent use; per-item state lives on the stack.
type Orchestrator struct {
	llm       providers.LLMClient
	processor *evidence.Processor
	catalog   map[tasks.Tag]tasks.Task
	cost      *providers.CostReporter
	cfg       Config
}

// New creates an orchestrator. The cost reporter is optional.
func New(llm providers.LLMClient, processor *evidence.Processor, cost *providers.CostReporter, cfg Config) *Orchestrator {
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = 300 * time.Second
	}
	if cfg.RetryPolicy.MaxAttempts == 0 {
		cfg.RetryPolicy = providers.DefaultRetryPolicy()
	}
	return &Orchestrator{
		llm:       llm,
		processor: processor,
		catalog:   tasks.Catalog(),
		cost:      cost,
		cfg:       cfg,
	}
}

// graphState is the per-item working memory. Discarded once the result is
// produced.
type graphState struct {
	item        *models.EvaluationItem
	extractions []evidence.FileExtraction
	evidence    string

	plan                  []tasks.Tag
	planRationale         string
	planRevisionCount     int
	findings              []*tasks.Result
	judgmentRevisionCount int

	verdict           bool
	judgmentBasis     string
	documentReference string
	reflection        string
}

// EvaluateItem runs one item to completion under the per-item timeout.
func (o *Orchestrator) EvaluateItem(ctx context.Context, item *models.EvaluationItem) *models.EvaluationResult {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.ItemTimeout)
	defer cancel()

	logger := slog.With("item_id", item.ID)
	start := time.Now()

	st := &graphState{item: item}
	st.extractions = o.processor.Process(ctx, item.EvidenceFiles)
	st.evidence = evidence.PromptText(st.extractions)

	if err := o.runPlanPhase(ctx, st, logger); err != nil {
		return o.failedResult(item, err, logger)
	}
	if err := o.runExecutePhase(ctx, st, logger); err != nil {
		return o.failedResult(item, err, logger)
	}
	if err := o.runJudgePhase(ctx, st, logger); err != nil {
		return o.failedResult(item, err, logger)
	}
	if o.cfg.SelfReflectionEnabled {
		if err := o.runReflectPhase(ctx, st, logger); err != nil {
			return o.failedResult(item, err, logger)
		}
	}

	logger.Info("Item evaluation completed",
		"verdict", st.verdict,
		"plan", planSummary(st.plan),
		"duration_ms", time.Since(start).Milliseconds())

	return o.assembleResult(st)
}

func (o *Orchestrator) taskInput(st *graphState) *tasks.Input {
	return &tasks.Input{
		Item:        st.item,
		Evidence:    st.evidence,
		RetryPolicy: o.cfg.RetryPolicy,
		MaxTokens:   o.cfg.MaxTokens,
	}
}

// defaultPlan is the mechanical fallback: semantic reasoning only.
func defaultPlan() []tasks.Tag {
	return []tasks.Tag{tasks.TagSemanticReasoning}
}

func planSummary(plan []tasks.Tag) string {
	parts := make([]string, len(plan))
	for i, tag := range plan {
		parts[i] = string(tag)
	}
	return strings.Join(parts, " -> ")
}

// failedResult classifies the error into the client-facing taxonomy.
func (o *Orchestrator) failedResult(item *models.EvaluationItem, err error, logger *slog.Logger) *models.EvaluationResult {
	kind := models.ErrKindUpstream
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = models.ErrKindTimeout
	case errors.Is(err, context.Canceled):
		kind = models.ErrKindCancelled
	case providers.KindOf(err) == providers.KindTimeout:
		kind = models.ErrKindTimeout
	}

	logger.Warn("Item evaluation failed", "error_kind", kind, "error", err)
	return &models.EvaluationResult{
		ID:           item.ID,
		ErrorKind:    kind,
		ErrorMessage: err.Error(),
	}
}

func (o *Orchestrator) assembleResult(st *graphState) *models.EvaluationResult {
	basis := st.judgmentBasis
	if st.reflection != "" {
		basis = basis + "\n\nReflection: " + st.reflection
	}

	var focus []string
	if st.documentReference != "" {
		focus = append(focus, st.documentReference)
	}
	annotated := evidence.Annotate(st.item.EvidenceFiles, st.extractions, focus)

	fileName := ""
	if len(st.item.EvidenceFiles) > 0 {
		fileName = st.item.EvidenceFiles[0].FileName
	}

	return &models.EvaluationResult{
		ID:                   st.item.ID,
		EvaluationResult:     st.verdict,
		ExecutionPlanSummary: planSummary(st.plan),
		JudgmentBasis:        basis,
		DocumentReference:    st.documentReference,
		EvidenceFiles:        annotated,
		FileName:             fileName,
	}
}

// ask is one retried LLM call charged to the item's cost bucket.
func (o *Orchestrator) ask(ctx context.Context, st *graphState, system, prompt string) (string, error) {
	resp, err := providers.InvokeWithRetry(ctx, o.llm, &providers.LLMRequest{
		System:    system,
		Prompt:    prompt,
		MaxTokens: o.cfg.MaxTokens,
	}, o.cfg.RetryPolicy)
	if err != nil {
		return "", err
	}
	if o.cost != nil {
		o.cost.Record(st.item.ID, resp.Usage)
	}
	return resp.Text, nil
}
