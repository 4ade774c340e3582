package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/auditflow/auditflow/pkg/config"
	"github.com/auditflow/auditflow/pkg/models"
)

// Reaper removes terminal jobs past their retention window and recovers
// orphaned jobs whose worker stopped heartbeating. Every replica runs one;
// the operations are idempotent.
type Reaper struct {
	store Store
	cfg   config.JobsConfig

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewReaper creates a reaper over the given store.
func NewReaper(store Store, cfg config.JobsConfig) *Reaper {
	return &Reaper{
		store:  store,
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}
}

// Start launches the periodic sweep.
func (r *Reaper) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cfg.ReaperInterval)
		defer ticker.Stop()

		slog.Info("Job reaper started",
			"interval", r.cfg.ReaperInterval,
			"retention", r.cfg.Retention,
			"orphan_threshold", r.cfg.OrphanThreshold)

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.Sweep(ctx)
			}
		}
	}()
}

// Stop signals the reaper and waits for the current sweep to finish.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

// Sweep runs one reaping pass: retention deletes, then orphan recovery.
func (r *Reaper) Sweep(ctx context.Context) {
	if err := r.reapExpired(ctx); err != nil {
		slog.Error("Retention sweep failed", "error", err)
	}
	if err := r.recoverOrphans(ctx); err != nil {
		slog.Error("Orphan recovery failed", "error", err)
	}
}

func (r *Reaper) reapExpired(ctx context.Context) error {
	ids, err := r.store.ListExpired(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("listing expired jobs: %w", err)
	}
	for _, id := range ids {
		if err := r.store.Delete(ctx, id); err != nil {
			slog.Error("Failed to delete expired job", "job_id", id, "error", err)
			continue
		}
		slog.Info("Expired job removed", "job_id", id)
	}
	return nil
}

// recoverOrphans marks processing jobs with stale heartbeats as expired.
// The claim-holding pod is assumed dead; the work is not resumed.
func (r *Reaper) recoverOrphans(ctx context.Context) error {
	cutoff := time.Now().Add(-r.cfg.OrphanThreshold)
	orphans, err := r.store.ListOrphaned(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("listing orphaned jobs: %w", err)
	}
	if len(orphans) == 0 {
		return nil
	}

	slog.Warn("Detected orphaned jobs", "count", len(orphans))
	for _, job := range orphans {
		lastHeartbeat := "unknown"
		if job.HeartbeatAt != nil {
			lastHeartbeat = job.HeartbeatAt.Format(time.RFC3339)
		}

		now := time.Now()
		retain := now.Add(r.cfg.Retention)
		expired := job.Clone()
		expired.State = models.JobStateExpired
		expired.CompletedAt = &now
		expired.RetainUntil = &retain
		expired.ErrorKind = models.ErrKindTimeout
		expired.ErrorMessage = fmt.Sprintf("orphaned: no heartbeat from pod %s since %s", job.PodID, lastHeartbeat)

		if err := r.store.CompareAndSet(ctx, expired, models.JobStateRunning); err != nil {
			// Another replica recovered it first, or the pod came back.
			slog.Info("Orphan recovery skipped", "job_id", job.JobID, "error", err)
			continue
		}
		slog.Warn("Orphaned job marked expired",
			"job_id", job.JobID,
			"old_pod_id", job.PodID,
			"last_heartbeat", lastHeartbeat)
	}
	return nil
}
