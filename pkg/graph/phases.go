package graph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/auditflow/auditflow/pkg/tasks"
)

const plannerSystem = "You are an internal-control evaluation planner. " +
	"Answer strictly in JSON with the requested fields."

const taskCatalogText = `A1: semantic search over evidence text
A2: image recognition over scanned/visual evidence
A3: structured data extraction from tables and spreadsheets
A4: stepwise reasoning over numeric or procedural checks
A5: semantic reasoning over the control description and evidence
A6: multi-document consolidation
A7: pattern analysis over logs and record sets
A8: segregation-of-duties conflict detection`

// runPlanPhase covers S_PLAN and S_PLAN_REVIEW. Zero-task plans get one
// retry before the mechanical default takes over.
func (o *Orchestrator) runPlanPhase(ctx context.Context, st *graphState, logger *slog.Logger) error {
	if o.cfg.SkipPlanCreation {
		st.plan = defaultPlan()
		st.planRationale = "plan creation skipped by configuration"
		return nil
	}

	plan, rationale, err := o.createPlan(ctx, st, "")
	if err != nil {
		return err
	}
	if len(plan) == 0 {
		logger.Warn("Planner returned zero tasks, retrying once")
		plan, rationale, err = o.createPlan(ctx, st,
			"The previous plan contained no tasks. Select at least one task.")
		if err != nil {
			return err
		}
	}
	if len(plan) == 0 {
		logger.Warn("Planner returned zero tasks twice, using mechanical default plan")
		st.plan = defaultPlan()
		st.planRationale = "mechanical default after planning failure"
		return nil
	}
	st.plan = plan
	st.planRationale = rationale

	for st.planRevisionCount < o.cfg.MaxPlanRevisions {
		gaps, err := o.reviewPlan(ctx, st)
		if err != nil {
			return err
		}
		if len(gaps) == 0 {
			return nil
		}
		st.planRevisionCount++
		logger.Info("Plan review found gaps, revising",
			"revision", st.planRevisionCount,
			"gaps", strings.Join(gaps, "; "))

		plan, rationale, err = o.createPlan(ctx, st,
			"A reviewer found these gaps in the previous plan: "+strings.Join(gaps, "; "))
		if err != nil {
			return err
		}
		if len(plan) > 0 {
			st.plan = plan
			st.planRationale = rationale
		}
	}
	return nil
}

func (o *Orchestrator) createPlan(ctx context.Context, st *graphState, feedback string) ([]tasks.Tag, string, error) {
	prompt := fmt.Sprintf(`Select the reasoning tasks appropriate for evaluating this control, in execution order.

Available tasks:
%s

Control: %s
Test procedure: %s
Evidence summary (first 2000 chars):
%s`,
		taskCatalogText, st.item.ControlDescription, st.item.TestProcedure, clip(st.evidence, 2000))
	if feedback != "" {
		prompt += "\n\nFeedback: " + feedback
	}
	prompt += `

Return JSON: {"tasks": ["A1", ...], "rationale": "<why these tasks>"}`

	text, err := o.ask(ctx, st, plannerSystem, prompt)
	if err != nil {
		return nil, "", fmt.Errorf("planning: %w", err)
	}

	var parsed struct {
		Tasks     []string `json:"tasks"`
		Rationale string   `json:"rationale"`
	}
	if !tasks.DecodeJSON(text, &parsed) {
		return nil, "", nil
	}

	var plan []tasks.Tag
	seen := make(map[tasks.Tag]bool)
	for _, raw := range parsed.Tasks {
		tag := tasks.Tag(strings.ToUpper(strings.TrimSpace(raw)))
		if !tasks.ValidTag(string(tag)) || seen[tag] {
			continue
		}
		seen[tag] = true
		plan = append(plan, tag)
	}
	return plan, parsed.Rationale, nil
}

func (o *Orchestrator) reviewPlan(ctx context.Context, st *graphState) ([]string, error) {
	prompt := fmt.Sprintf(`Review the proposed plan for gaps: tasks that the test procedure requires but the plan omits, or tasks that cannot work with the available evidence.

Control: %s
Test procedure: %s
Proposed plan: %s
Rationale: %s

Return JSON: {"gaps": ["<gap description>", ...]} with an empty list when the plan is adequate.`,
		st.item.ControlDescription, st.item.TestProcedure, planSummary(st.plan), st.planRationale)

	text, err := o.ask(ctx, st, plannerSystem, prompt)
	if err != nil {
		return nil, fmt.Errorf("plan review: %w", err)
	}

	var parsed struct {
		Gaps []string `json:"gaps"`
	}
	if !tasks.DecodeJSON(text, &parsed) {
		// Unparseable critique never blocks the pipeline.
		return nil, nil
	}
	return parsed.Gaps, nil
}

// runExecutePhase is S_EXECUTE: tasks run sequentially; individual failures
// become negative findings, and only a fully failed plan aborts the graph.
func (o *Orchestrator) runExecutePhase(ctx context.Context, st *graphState, logger *slog.Logger) error {
	in := o.taskInput(st)
	var lastErr error
	failures := 0

	for _, tag := range st.plan {
		task, ok := o.catalog[tag]
		if !ok {
			continue
		}
		result, err := task.Run(ctx, in, o.llm)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			failures++
			lastErr = err
			logger.Warn("Task failed, recording negative finding",
				"task", tag, "error", err)
			result = &tasks.Result{
				Tag:     tag,
				Name:    task.Name(),
				Finding: fmt.Sprintf("task did not produce a finding: %v", err),
				Failed:  true,
			}
		} else if o.cost != nil {
			o.cost.Record(st.item.ID, result.Usage)
		}
		st.findings = append(st.findings, result)
	}

	if len(st.plan) > 0 && failures == len(st.plan) {
		return fmt.Errorf("every task in the plan failed: %w", lastErr)
	}
	return nil
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
