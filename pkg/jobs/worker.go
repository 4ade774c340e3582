package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/auditflow/auditflow/pkg/batch"
	"github.com/auditflow/auditflow/pkg/config"
	"github.com/auditflow/auditflow/pkg/correlation"
	"github.com/auditflow/auditflow/pkg/models"
)

// BatchRunner evaluates a job's items. Implemented by batch.Coordinator.
type BatchRunner interface {
	Run(ctx context.Context, items []models.EvaluationItem, progress batch.ProgressFunc) []*models.EvaluationResult
}

// Pool manages the queue workers of one replica.
type Pool struct {
	podID   string
	store   Store
	runner  BatchRunner
	manager *Manager
	cfg     config.JobsConfig

	workers []*Worker
	started bool
}

// NewPool creates a worker pool. Workers are spawned by Start.
func NewPool(podID string, manager *Manager, runner BatchRunner, cfg config.JobsConfig) *Pool {
	return &Pool{
		podID:   podID,
		store:   manager.Store(),
		runner:  runner,
		manager: manager,
		cfg:     cfg,
		workers: make([]*Worker, 0, cfg.WorkerCount),
	}
}

// Start spawns the worker goroutines. Safe to call once; duplicate calls are
// no-ops.
func (p *Pool) Start(ctx context.Context) {
	if p.started {
		slog.Warn("Worker pool already started, ignoring duplicate Start call", "pod_id", p.podID)
		return
	}
	p.started = true

	slog.Info("Starting job worker pool", "pod_id", p.podID, "worker_count", p.cfg.WorkerCount)
	for i := 0; i < p.cfg.WorkerCount; i++ {
		w := newWorker(fmt.Sprintf("%s-worker-%d", p.podID, i), p.podID, p.store, p.runner, p.manager, p.cfg)
		p.workers = append(p.workers, w)
		w.Start(ctx)
	}
}

// Stop signals all workers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	slog.Info("Stopping job worker pool gracefully")
	for _, w := range p.workers {
		w.Stop()
	}
	slog.Info("Job worker pool stopped")
}

// Worker polls the queue, claims jobs, and drives them to a terminal state.
type Worker struct {
	id      string
	podID   string
	store   Store
	runner  BatchRunner
	manager *Manager
	cfg     config.JobsConfig

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newWorker(id, podID string, store Store, runner BatchRunner, manager *Manager, cfg config.JobsConfig) *Worker {
	return &Worker{
		id:      id,
		podID:   podID,
		store:   store,
		runner:  runner,
		manager: manager,
		cfg:     cfg,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the worker's poll loop.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Stop signals the worker and waits for the current job to finish.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	slog.Info("Job worker started", "worker_id", w.id)
	for {
		select {
		case <-w.stopCh:
			slog.Info("Job worker stopping", "worker_id", w.id)
			return
		case <-ctx.Done():
			slog.Info("Job worker context cancelled", "worker_id", w.id)
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrQueueEmpty) {
					w.sleep(w.pollInterval())
					continue
				}
				slog.Error("Error processing job", "worker_id", w.id, "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollInterval returns the poll duration with jitter so workers do not hit
// the store in lockstep.
func (w *Worker) pollInterval() time.Duration {
	base := w.cfg.PollInterval
	jitter := base / 5
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

// pollAndProcess claims one job and runs it to a terminal state.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	job, err := w.store.Dequeue(ctx, w.podID)
	if err != nil {
		return err
	}

	logger := slog.With("job_id", job.JobID, "worker_id", w.id)
	logger.Info("Job claimed", "item_count", len(job.Items))

	if job.CorrelationID != "" {
		ctx = correlation.NewContext(ctx, job.CorrelationID)
	}

	jobCtx, cancelJob := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancelJob()

	// API-triggered cancellation for jobs on this replica.
	w.manager.RegisterCancel(job.JobID, cancelJob)
	defer w.manager.UnregisterCancel(job.JobID)

	// Heartbeat and cross-replica cancel-flag polling.
	hbCtx, stopHeartbeat := context.WithCancel(jobCtx)
	defer stopHeartbeat()
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.runHeartbeat(hbCtx, job.JobID, cancelJob)
	}()

	results := w.runner.Run(jobCtx, job.Items, func(percent, completed int) {
		w.recordProgress(job, percent, logger)
	})
	stopHeartbeat()

	terminal := w.terminalJob(job, results, jobCtx)

	// The job context may already be dead; the terminal write must not be.
	if err := w.store.CompareAndSet(context.Background(), terminal, models.JobStateRunning); err != nil {
		if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
			// Reaper expired the job or retention removed it mid-run.
			logger.Warn("Terminal state write lost", "error", err)
			return nil
		}
		return fmt.Errorf("writing terminal state: %w", err)
	}

	logger.Info("Job processing complete", "state", terminal.State)
	return nil
}

// terminalJob derives the terminal record from the run outcome.
func (w *Worker) terminalJob(job *models.Job, results []*models.EvaluationResult, jobCtx context.Context) *models.Job {
	now := time.Now()
	retain := now.Add(w.cfg.Retention)

	terminal := job.Clone()
	terminal.CompletedAt = &now
	terminal.RetainUntil = &retain
	terminal.Progress = 100

	switch {
	case errors.Is(jobCtx.Err(), context.DeadlineExceeded):
		terminal.State = models.JobStateFailed
		terminal.ErrorKind = models.ErrKindTimeout
		terminal.ErrorMessage = fmt.Sprintf("job timed out after %v", w.cfg.JobTimeout)
	case errors.Is(jobCtx.Err(), context.Canceled):
		terminal.State = models.JobStateCancelled
		terminal.ErrorKind = models.ErrKindCancelled
		terminal.ErrorMessage = "job cancelled while processing"
	default:
		terminal.State = models.JobStateCompleted
		terminal.Results = make([]models.EvaluationResult, 0, len(results))
		for _, r := range results {
			if r != nil {
				terminal.Results = append(terminal.Results, *r)
			}
		}
	}
	return terminal
}

// recordProgress persists batch progress. Lost writes are tolerable; the
// next callback or the terminal write catches up.
func (w *Worker) recordProgress(job *models.Job, percent int, logger *slog.Logger) {
	update := job.Clone()
	update.State = models.JobStateRunning
	update.Progress = percent
	if err := w.store.CompareAndSet(context.Background(), update, models.JobStateRunning); err != nil {
		logger.Warn("Progress update lost", "percent", percent, "error", err)
	}
}

// runHeartbeat stamps liveness and polls the cancel flag until the job
// context ends.
func (w *Worker) runHeartbeat(ctx context.Context, jobID string, cancelJob context.CancelFunc) {
	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.store.Heartbeat(context.Background(), jobID, time.Now()); err != nil {
				slog.Warn("Heartbeat failed", "job_id", jobID, "error", err)
				continue
			}
			job, err := w.store.Get(context.Background(), jobID)
			if err == nil && job.CancelRequested {
				slog.Info("Cancel flag observed, stopping job", "job_id", jobID)
				cancelJob()
				return
			}
		}
	}
}
