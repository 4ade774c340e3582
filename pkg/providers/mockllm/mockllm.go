// Package mockllm provides a deterministic LLM client for tests and for the
// graceful-degradation path when no provider credentials are configured.
//
// With no script loaded the client answers every prompt from a small set of
// canned responses keyed on prompt markers, so a full evaluation graph runs
// end-to-end without network access. Tests can load scripted entries that
// are consumed in order, or routed by prompt substring for flows where call
// order is non-deterministic.
package mockllm

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/auditflow/auditflow/pkg/providers"
)

// Entry defines a single scripted response.
type Entry struct {
	Text  string
	Err   error
	Delay time.Duration
}

// Client implements providers.LLMClient with scripted or canned responses.
type Client struct {
	mu         sync.Mutex
	sequential []Entry
	seqIndex   int
	routes     map[string][]Entry
	routeIndex map[string]int
	delay      time.Duration
	captured   []*providers.LLMRequest
}

// New creates a mock client with canned heuristic responses.
func New() *Client {
	return &Client{
		routes:     make(map[string][]Entry),
		routeIndex: make(map[string]int),
	}
}

// Name implements providers.LLMClient.
func (c *Client) Name() string { return "mock" }

// Model implements providers.LLMClient.
func (c *Client) Model() string { return "mock-canned" }

// AddSequential appends an entry consumed in order for non-routed calls.
func (c *Client) AddSequential(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sequential = append(c.sequential, e)
}

// AddRouted appends an entry matched when the prompt contains substr.
// Routed entries take priority over sequential ones.
func (c *Client) AddRouted(substr string, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes[substr] = append(c.routes[substr], e)
}

// SetDelay makes every canned (non-scripted) response sleep first.
// Used by timeout tests.
func (c *Client) SetDelay(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delay = d
}

// CapturedRequests returns all requests seen so far.
func (c *Client) CapturedRequests() []*providers.LLMRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*providers.LLMRequest, len(c.captured))
	copy(out, c.captured)
	return out
}

// Invoke implements providers.LLMClient.
func (c *Client) Invoke(ctx context.Context, req *providers.LLMRequest) (*providers.LLMResponse, error) {
	c.mu.Lock()
	c.captured = append(c.captured, req)
	entry, scripted := c.nextEntry(req)
	delay := c.delay
	c.mu.Unlock()

	if scripted {
		delay = entry.Delay
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, providers.NewError(providers.KindTimeout, "mock", "context expired during mock delay", ctx.Err())
		}
	}

	if scripted {
		if entry.Err != nil {
			return nil, entry.Err
		}
		return respond(entry.Text), nil
	}
	return respond(canned(req)), nil
}

// nextEntry picks the scripted entry for this request, routed first.
// Caller holds the mutex.
func (c *Client) nextEntry(req *providers.LLMRequest) (Entry, bool) {
	for substr, entries := range c.routes {
		if strings.Contains(req.Prompt, substr) || strings.Contains(req.System, substr) {
			idx := c.routeIndex[substr]
			if idx < len(entries) {
				c.routeIndex[substr] = idx + 1
				return entries[idx], true
			}
		}
	}
	if c.seqIndex < len(c.sequential) {
		e := c.sequential[c.seqIndex]
		c.seqIndex++
		return e, true
	}
	return Entry{}, false
}

func respond(text string) *providers.LLMResponse {
	return &providers.LLMResponse{
		Text: text,
		Usage: providers.Usage{
			InputTokens:  len(text) / 4,
			OutputTokens: len(text) / 4,
			TotalTokens:  len(text) / 2,
		},
	}
}

// canned answers a prompt from its marker. Markers match the prompt
// templates in pkg/tasks and pkg/graph.
func canned(req *providers.LLMRequest) string {
	prompt := req.System + "\n" + req.Prompt
	switch {
	case strings.Contains(prompt, "Select the reasoning tasks"):
		return `{"tasks": ["A5"], "rationale": "Semantic reasoning over the control description and evidence."}`
	case strings.Contains(prompt, "Review the proposed plan"):
		return `{"gaps": []}`
	case strings.Contains(prompt, "Review the verdict"):
		return `{"supported": true}`
	case strings.Contains(prompt, "Render a verdict"):
		return `{"verdict": "effective", "judgmentBasis": "The evidence supports effective operation of the control.", "documentReference": "monthly reconciliation report, signed"}`
	case strings.Contains(prompt, "Reflect on the judgment"):
		return `{"annotation": "The judgment is consistent with the recorded findings.", "confirm": true}`
	default:
		return `{"finding": "No exceptions noted.", "confidence": 0.9}`
	}
}
