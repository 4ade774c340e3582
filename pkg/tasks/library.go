package tasks

import (
	"context"
	"fmt"
	"strings"

	"github.com/auditflow/auditflow/pkg/providers"
)

// A1: semantic search over evidence.
type semanticSearch struct{}

func (t *semanticSearch) Tag() Tag     { return TagSemanticSearch }
func (t *semanticSearch) Name() string { return "semantic search" }

func (t *semanticSearch) Run(ctx context.Context, in *Input, client providers.LLMClient) (*Result, error) {
	prompt := fmt.Sprintf(`Search the evidence for passages relevant to the test procedure.

Test procedure: %s

Evidence:
%s

Return JSON: {"passages": [{"text": "<verbatim passage>", "score": <0..1>}], "finding": "<one-paragraph summary of what was found or not found>"}`,
		in.Item.TestProcedure, in.Evidence)

	resp, err := providers.InvokeWithRetry(ctx, client, &providers.LLMRequest{
		System:    systemPrompt,
		Prompt:    prompt,
		MaxTokens: in.MaxTokens,
	}, in.RetryPolicy)
	if err != nil {
		return nil, fmt.Errorf("task %s (%s): %w", t.Tag(), t.Name(), err)
	}

	finding := resp.Text
	var parsed struct {
		Passages []struct {
			Text  string  `json:"text"`
			Score float64 `json:"score"`
		} `json:"passages"`
		Finding string `json:"finding"`
	}
	if DecodeJSON(resp.Text, &parsed) {
		var b strings.Builder
		if parsed.Finding != "" {
			b.WriteString(parsed.Finding)
		}
		for _, p := range parsed.Passages {
			fmt.Fprintf(&b, "\n- [%.2f] %s", p.Score, p.Text)
		}
		if b.Len() > 0 {
			finding = b.String()
		}
	}
	return &Result{Tag: t.Tag(), Name: t.Name(), Finding: finding, Usage: resp.Usage}, nil
}

// A2: image recognition over OCR'd visual evidence.
type imageRecognition struct{}

func (t *imageRecognition) Tag() Tag     { return TagImageRecognition }
func (t *imageRecognition) Name() string { return "image recognition" }

func (t *imageRecognition) Run(ctx context.Context, in *Input, client providers.LLMClient) (*Result, error) {
	prompt := fmt.Sprintf(`The evidence below was extracted from screenshots or scans. Determine whether the visual evidence shows the features the test procedure expects (signatures, stamps, approval marks, dates, system screens).

Test procedure: %s

Extracted visual evidence:
%s

Return JSON: {"features": [{"name": "<feature>", "present": <bool>}], "finding": "<description of what the images show>"}`,
		in.Item.TestProcedure, in.Evidence)
	return invoke(ctx, client, in, t.Tag(), t.Name(), prompt)
}

// A3: structured data extraction from tabular evidence.
type structuredExtraction struct{}

func (t *structuredExtraction) Tag() Tag     { return TagStructuredExtraction }
func (t *structuredExtraction) Name() string { return "structured data extraction" }

func (t *structuredExtraction) Run(ctx context.Context, in *Input, client providers.LLMClient) (*Result, error) {
	prompt := fmt.Sprintf(`Extract the records relevant to the test procedure from the tabular evidence.

Test procedure: %s

Evidence:
%s

Return JSON: {"records": [<one object per extracted record>], "finding": "<summary of the extracted records and any gaps>"}`,
		in.Item.TestProcedure, in.Evidence)
	return invoke(ctx, client, in, t.Tag(), t.Name(), prompt)
}

// A4: stepwise reasoning over numeric or procedural questions.
type stepwiseReasoning struct{}

func (t *stepwiseReasoning) Tag() Tag     { return TagStepwiseReasoning }
func (t *stepwiseReasoning) Name() string { return "stepwise reasoning" }

func (t *stepwiseReasoning) Run(ctx context.Context, in *Input, client providers.LLMClient) (*Result, error) {
	prompt := fmt.Sprintf(`Work through the test procedure step by step against the evidence, stating each intermediate conclusion before the next step.

Control: %s
Test procedure: %s

Evidence:
%s

Return JSON: {"steps": ["<conclusion per step>"], "finding": "<final conclusion>"}`,
		in.Item.ControlDescription, in.Item.TestProcedure, in.Evidence)
	return invoke(ctx, client, in, t.Tag(), t.Name(), prompt)
}

// A5: semantic reasoning, the default task when planning degrades.
type semanticReasoning struct{}

func (t *semanticReasoning) Tag() Tag     { return TagSemanticReasoning }
func (t *semanticReasoning) Name() string { return "semantic reasoning" }

func (t *semanticReasoning) Run(ctx context.Context, in *Input, client providers.LLMClient) (*Result, error) {
	prompt := fmt.Sprintf(`Reason about whether the evidence demonstrates that the control operated as described.

Control: %s
Test procedure: %s

Evidence:
%s

Return JSON: {"finding": "<inference with the supporting evidence cited>", "confidence": <0..1>}`,
		in.Item.ControlDescription, in.Item.TestProcedure, in.Evidence)
	return invoke(ctx, client, in, t.Tag(), t.Name(), prompt)
}

// A6: multi-document consolidation.
type consolidation struct{}

func (t *consolidation) Tag() Tag     { return TagConsolidation }
func (t *consolidation) Name() string { return "multi-document consolidation" }

func (t *consolidation) Run(ctx context.Context, in *Input, client providers.LLMClient) (*Result, error) {
	prompt := fmt.Sprintf(`The evidence spans several documents. Consolidate them into one unified account of what happened, noting agreements and contradictions between documents.

Test procedure: %s

Evidence:
%s

Return JSON: {"finding": "<unified summary>", "contradictions": ["<any conflicts between documents>"]}`,
		in.Item.TestProcedure, in.Evidence)
	return invoke(ctx, client, in, t.Tag(), t.Name(), prompt)
}

// A7: pattern analysis over event logs or record sets.
type patternAnalysis struct{}

func (t *patternAnalysis) Tag() Tag     { return TagPatternAnalysis }
func (t *patternAnalysis) Name() string { return "pattern analysis" }

func (t *patternAnalysis) Run(ctx context.Context, in *Input, client providers.LLMClient) (*Result, error) {
	prompt := fmt.Sprintf(`Analyze the records in the evidence for anomalies relevant to the control: gaps in sequences, out-of-period entries, duplicates, unusual values or timing.

Control: %s
Test procedure: %s

Evidence:
%s

Return JSON: {"anomalies": [{"description": "<anomaly>", "records": "<which records>"}], "finding": "<anomaly report summary>"}`,
		in.Item.ControlDescription, in.Item.TestProcedure, in.Evidence)
	return invoke(ctx, client, in, t.Tag(), t.Name(), prompt)
}

// A8: segregation-of-duties conflict detection.
type segregationOfDuties struct{}

func (t *segregationOfDuties) Tag() Tag     { return TagSegregationOfDuties }
func (t *segregationOfDuties) Name() string { return "segregation-of-duties detection" }

func (t *segregationOfDuties) Run(ctx context.Context, in *Input, client providers.LLMClient) (*Result, error) {
	prompt := fmt.Sprintf(`Inspect the role and approval records in the evidence for segregation-of-duties conflicts: the same person initiating and approving, incompatible role combinations, or approvals outside authority.

Control: %s
Test procedure: %s

Evidence:
%s

Return JSON: {"conflicts": [{"person": "<who>", "roles": ["<conflicting roles>"]}], "finding": "<conflict list summary, or a statement that none were found>"}`,
		in.Item.ControlDescription, in.Item.TestProcedure, in.Evidence)

	resp, err := providers.InvokeWithRetry(ctx, client, &providers.LLMRequest{
		System:    systemPrompt,
		Prompt:    prompt,
		MaxTokens: in.MaxTokens,
	}, in.RetryPolicy)
	if err != nil {
		return nil, fmt.Errorf("task %s (%s): %w", t.Tag(), t.Name(), err)
	}

	finding := resp.Text
	var parsed struct {
		Conflicts []struct {
			Person string   `json:"person"`
			Roles  []string `json:"roles"`
		} `json:"conflicts"`
		Finding string `json:"finding"`
	}
	if DecodeJSON(resp.Text, &parsed) {
		var b strings.Builder
		if parsed.Finding != "" {
			b.WriteString(parsed.Finding)
		}
		for _, c := range parsed.Conflicts {
			fmt.Fprintf(&b, "\n- conflict: %s holds %s", c.Person, strings.Join(c.Roles, " + "))
		}
		if b.Len() > 0 {
			finding = b.String()
		}
	}
	return &Result{Tag: t.Tag(), Name: t.Name(), Finding: finding, Usage: resp.Usage}, nil
}
