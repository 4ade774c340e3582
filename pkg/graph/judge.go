package graph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/auditflow/auditflow/pkg/tasks"
)

const judgeSystem = "You are an internal-control test judge. " +
	"Decide strictly from the recorded findings and quote evidence verbatim. " +
	"Answer in JSON with the requested fields."

// canonical verdict spellings that map to an effective control.
var effectiveVerdicts = map[string]bool{
	"effective": true,
	"有効":        true,
	"true":      true,
	"1":         true,
	"pass":      true,
}

// mapVerdict folds a free-form verdict onto the boolean contract. The second
// return reports whether the spelling was canonical.
func mapVerdict(raw string) (bool, bool) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if effectiveVerdicts[v] {
		return true, true
	}
	switch v {
	case "ineffective", "deficient", "false", "0", "fail", "無効":
		return false, true
	}
	return false, false
}

func findingsText(findings []*tasks.Result) string {
	var b strings.Builder
	for _, f := range findings {
		status := ""
		if f.Failed {
			status = " (task failed)"
		}
		fmt.Fprintf(&b, "[%s %s]%s\n%s\n\n", f.Tag, f.Name, status, f.Finding)
	}
	return b.String()
}

// runJudgePhase covers S_JUDGE and S_JUDGE_REVIEW.
func (o *Orchestrator) runJudgePhase(ctx context.Context, st *graphState, logger *slog.Logger) error {
	feedback := ""
	for {
		if err := o.judge(ctx, st, feedback, logger); err != nil {
			return err
		}
		if st.judgmentRevisionCount >= o.cfg.MaxJudgmentRevisions {
			return nil
		}
		supported, reason, err := o.reviewJudgment(ctx, st)
		if err != nil {
			return err
		}
		if supported {
			return nil
		}
		st.judgmentRevisionCount++
		logger.Info("Judgment review found the verdict unsupported, revising",
			"revision", st.judgmentRevisionCount, "reason", reason)
		feedback = "A reviewer found the previous verdict unsupported: " + reason
	}
}

func (o *Orchestrator) judge(ctx context.Context, st *graphState, feedback string, logger *slog.Logger) error {
	prompt := fmt.Sprintf(`Render a verdict on whether the control operated effectively, based only on the findings below.

Control: %s
Test procedure: %s

Findings:
%s`, st.item.ControlDescription, st.item.TestProcedure, findingsText(st.findings))
	if feedback != "" {
		prompt += "\nFeedback: " + feedback + "\n"
	}
	prompt += `
Return JSON: {"verdict": "effective" or "ineffective", "judgmentBasis": "<multi-line reasoning>", "documentReference": "<verbatim quotation from the evidence that supports the verdict>"}`

	text, err := o.ask(ctx, st, judgeSystem, prompt)
	if err != nil {
		return fmt.Errorf("judgment: %w", err)
	}

	var parsed struct {
		Verdict           string `json:"verdict"`
		JudgmentBasis     string `json:"judgmentBasis"`
		DocumentReference string `json:"documentReference"`
	}
	if !tasks.DecodeJSON(text, &parsed) {
		// A non-JSON judgment maps like a non-canonical verdict: deficient.
		parsed.Verdict = text
		parsed.JudgmentBasis = text
	}

	verdict, canonical := mapVerdict(parsed.Verdict)
	if !canonical {
		logger.Info("Non-canonical verdict mapped to deficient",
			"raw_verdict", clip(parsed.Verdict, 120))
	}

	st.verdict = verdict
	st.judgmentBasis = parsed.JudgmentBasis
	st.documentReference = parsed.DocumentReference
	return nil
}

func (o *Orchestrator) reviewJudgment(ctx context.Context, st *graphState) (bool, string, error) {
	verdictWord := "ineffective"
	if st.verdict {
		verdictWord = "effective"
	}
	prompt := fmt.Sprintf(`Review the verdict against the findings: is the verdict supported by the recorded findings and the quoted reference?

Verdict: %s
Judgment basis: %s
Document reference: %s

Findings:
%s

Return JSON: {"supported": <bool>, "reason": "<why, when unsupported>"}`,
		verdictWord, st.judgmentBasis, st.documentReference, findingsText(st.findings))

	text, err := o.ask(ctx, st, judgeSystem, prompt)
	if err != nil {
		return false, "", fmt.Errorf("judgment review: %w", err)
	}

	var parsed struct {
		Supported bool   `json:"supported"`
		Reason    string `json:"reason"`
	}
	if !tasks.DecodeJSON(text, &parsed) {
		// Unparseable critique never blocks the pipeline.
		return true, "", nil
	}
	return parsed.Supported, parsed.Reason, nil
}

// runReflectPhase is S_REFLECT: an annotation pass that can comment on the
// verdict but never flips it.
func (o *Orchestrator) runReflectPhase(ctx context.Context, st *graphState, logger *slog.Logger) error {
	verdictWord := "ineffective"
	if st.verdict {
		verdictWord = "effective"
	}
	prompt := fmt.Sprintf(`Reflect on the judgment below: note residual uncertainty, evidence limitations, or caveats an auditor should know. Do not re-decide the verdict.

Verdict: %s
Judgment basis: %s

Findings:
%s

Return JSON: {"annotation": "<reflection>", "confirm": <bool>}`,
		verdictWord, st.judgmentBasis, findingsText(st.findings))

	text, err := o.ask(ctx, st, judgeSystem, prompt)
	if err != nil {
		return fmt.Errorf("reflection: %w", err)
	}

	var parsed struct {
		Annotation string `json:"annotation"`
		Confirm    bool   `json:"confirm"`
	}
	if tasks.DecodeJSON(text, &parsed) && parsed.Annotation != "" {
		st.reflection = parsed.Annotation
		if !parsed.Confirm {
			logger.Info("Reflection disagreed with the verdict; verdict kept",
				"verdict", st.verdict)
		}
	}
	return nil
}
