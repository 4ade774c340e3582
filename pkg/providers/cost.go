package providers

import "sync"

// CostReporter accumulates token usage per evaluation item so per-item cost
// can be attributed in logs. Safe for concurrent use across batch workers.
type CostReporter struct {
	mu     sync.Mutex
	byItem map[string]Usage
	total  Usage
	calls  int
}

// NewCostReporter creates an empty reporter.
func NewCostReporter() *CostReporter {
	return &CostReporter{byItem: make(map[string]Usage)}
}

// Record adds one call's usage to an item's running total.
func (r *CostReporter) Record(itemID string, usage Usage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.byItem[itemID]
	u.InputTokens += usage.InputTokens
	u.OutputTokens += usage.OutputTokens
	u.TotalTokens += usage.TotalTokens
	r.byItem[itemID] = u
	r.total.InputTokens += usage.InputTokens
	r.total.OutputTokens += usage.OutputTokens
	r.total.TotalTokens += usage.TotalTokens
	r.calls++
}

// ItemUsage returns the accumulated usage for one item.
func (r *CostReporter) ItemUsage(itemID string) Usage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byItem[itemID]
}

// Total returns the overall usage and call count.
func (r *CostReporter) Total() (Usage, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total, r.calls
}
