// Package batch runs a list of evaluation items through the orchestrator
// with bounded concurrency. The output always has the same length and order
// as the input, with a result object for every item, success or failure.
package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/auditflow/auditflow/pkg/models"
)

// Evaluator is the per-item evaluation contract the coordinator drives.
// Implemented by graph.Orchestrator.
type Evaluator interface {
	EvaluateItem(ctx context.Context, item *models.EvaluationItem) *models.EvaluationResult
}

// ProgressFunc receives batch progress: percent complete (0-100) and how
// many items have finished.
type ProgressFunc func(percent, completed int)

// Config tunes the coordinator.
type Config struct {
	// MaxConcurrentEvaluations bounds the worker pool.
	MaxConcurrentEvaluations int

	// ItemTimeout is handed to the per-item context. The orchestrator
	// enforces its own cap as well; this one guards the slot.
	ItemTimeout time.Duration
}

// Coordinator fans items out over a bounded pool.
type Coordinator struct {
	evaluator Evaluator
	cfg       Config
}

// New creates a coordinator over the given evaluator.
func New(evaluator Evaluator, cfg Config) *Coordinator {
	if cfg.MaxConcurrentEvaluations <= 0 {
		cfg.MaxConcurrentEvaluations = 10
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = 300 * time.Second
	}
	return &Coordinator{evaluator: evaluator, cfg: cfg}
}

// Run evaluates every item. The batch context carries the global sum-guard
// deadline: items that cannot start (or finish) before it expires yield
// TIMEOUT or CANCELLED results rather than blocking the batch forever.
// Progress callbacks fire after each item completes, serialized and with a
// non-decreasing percent; progress may be nil.
func (c *Coordinator) Run(ctx context.Context, items []models.EvaluationItem, progress ProgressFunc) []*models.EvaluationResult {
	if len(items) == 0 {
		return []*models.EvaluationResult{}
	}

	// One slow item must not starve the rest of the batch past the
	// job-level timeout: the sum guard caps the whole run.
	guard := time.Duration(len(items)) * c.cfg.ItemTimeout
	ctx, cancel := context.WithTimeout(ctx, guard)
	defer cancel()

	start := time.Now()
	slog.InfoContext(ctx, "Batch evaluation started",
		"item_count", len(items),
		"max_concurrent", c.cfg.MaxConcurrentEvaluations)

	results := make([]*models.EvaluationResult, len(items))
	sem := make(chan struct{}, c.cfg.MaxConcurrentEvaluations)

	var mu sync.Mutex
	completed := 0

	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = abortedResult(&items[idx], ctx)
				return
			}

			itemCtx, itemCancel := context.WithTimeout(ctx, c.cfg.ItemTimeout)
			results[idx] = c.evaluator.EvaluateItem(itemCtx, &items[idx])
			itemCancel()

			// The callback runs under the lock so reported percentages
			// never go backwards when items finish together.
			mu.Lock()
			completed++
			if progress != nil {
				progress(completed*100/len(items), completed)
			}
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	// Items aborted before acquiring a slot still count toward progress.
	if progress != nil && completed < len(items) {
		progress(100, len(items))
	}

	slog.InfoContext(ctx, "Batch evaluation finished",
		"item_count", len(items),
		"duration_ms", time.Since(start).Milliseconds())
	return results
}

func abortedResult(item *models.EvaluationItem, ctx context.Context) *models.EvaluationResult {
	kind := models.ErrKindTimeout
	msg := "batch deadline expired before the item could start"
	if ctx.Err() == context.Canceled {
		kind = models.ErrKindCancelled
		msg = "batch was cancelled before the item could start"
	}
	return &models.EvaluationResult{ID: item.ID, ErrorKind: kind, ErrorMessage: msg}
}
