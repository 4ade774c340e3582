package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/auditflow/auditflow/pkg/config"
	"github.com/auditflow/auditflow/pkg/correlation"
	"github.com/auditflow/auditflow/pkg/models"
)

// perItemEstimateSeconds feeds the submission receipt's duration estimate.
// Deliberately rough: clients use it to pick a polling interval, nothing else.
const perItemEstimateSeconds = 30

// Manager errors beyond the store sentinels.
var (
	// ErrBacklogFull means the queue is at the backpressure limit.
	ErrBacklogFull = errors.New("job queue backlog full")

	// ErrNotReady means the job has not reached a terminal state yet.
	ErrNotReady = errors.New("job results not ready")
)

// TerminalError reports a results request against a job that terminated
// without producing results.
type TerminalError struct {
	State   models.JobState
	Kind    models.ErrorKind
	Message string
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("job terminated in state %q: %s", e.State, e.Message)
}

// Receipt is the response to a job submission.
type Receipt struct {
	JobID            string          `json:"jobId"`
	State            models.JobState `json:"state"`
	EstimatedSeconds int             `json:"estimatedDurationSeconds"`
}

// Manager owns job submission, status, results, and cancellation. It also
// keeps the in-process cancel registry: jobs running on this replica can be
// cancelled immediately; jobs on other replicas rely on the store's cancel
// flag, polled by their worker.
type Manager struct {
	store Store
	cfg   config.JobsConfig

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewManager creates a manager over the given store.
func NewManager(store Store, cfg config.JobsConfig) *Manager {
	return &Manager{
		store:   store,
		cfg:     cfg,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Store exposes the underlying store for health checks and the reaper.
func (m *Manager) Store() Store {
	return m.store
}

// newJobID returns a 32-character hex identifier.
func newJobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Submit validates backpressure, persists the job, and enqueues it.
func (m *Manager) Submit(ctx context.Context, items []models.EvaluationItem) (*Receipt, error) {
	if len(items) == 0 {
		return nil, &models.ValidationError{Field: "items", Message: "at least one item is required"}
	}

	if m.cfg.BackpressureLimit > 0 {
		depth, err := m.store.QueueDepth(ctx)
		if err != nil {
			return nil, fmt.Errorf("checking queue depth: %w", err)
		}
		if depth >= m.cfg.BackpressureLimit {
			return nil, ErrBacklogFull
		}
	}

	job := &models.Job{
		JobID:         newJobID(),
		State:         models.JobStateSubmitted,
		CorrelationID: correlation.FromContext(ctx),
		SubmittedAt:   time.Now(),
		Items:         items,
	}
	if err := m.store.Put(ctx, job); err != nil {
		return nil, fmt.Errorf("persisting job: %w", err)
	}

	queued := job.Clone()
	queued.State = models.JobStateQueued
	if err := m.store.CompareAndSet(ctx, queued, models.JobStateSubmitted); err != nil {
		return nil, fmt.Errorf("queueing job: %w", err)
	}
	if err := m.store.Enqueue(ctx, job.JobID); err != nil {
		return nil, fmt.Errorf("enqueuing job: %w", err)
	}

	return &Receipt{
		JobID:            job.JobID,
		State:            models.JobStateQueued,
		EstimatedSeconds: len(items) * perItemEstimateSeconds,
	}, nil
}

// Status returns the current job record.
func (m *Manager) Status(ctx context.Context, jobID string) (*models.Job, error) {
	return m.store.Get(ctx, jobID)
}

// Results returns the evaluation results of a completed job. Non-terminal
// jobs yield ErrNotReady; jobs that terminated without results yield a
// TerminalError carrying the job's error descriptor.
func (m *Manager) Results(ctx context.Context, jobID string) ([]models.EvaluationResult, error) {
	job, err := m.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	switch job.State {
	case models.JobStateCompleted:
		return job.Results, nil
	case models.JobStateFailed, models.JobStateCancelled, models.JobStateExpired:
		kind := job.ErrorKind
		if kind == "" {
			kind = models.ErrKindInternal
		}
		msg := job.ErrorMessage
		if msg == "" {
			msg = string(job.State)
		}
		return nil, &TerminalError{State: job.State, Kind: kind, Message: msg}
	default:
		return nil, ErrNotReady
	}
}

// Cancel requests cancellation. Jobs that have not started are cancelled
// directly; a running job gets its cancel flag raised and, when it runs on
// this replica, its context cancelled immediately.
func (m *Manager) Cancel(ctx context.Context, jobID string) (models.JobState, error) {
	state, err := m.store.RequestCancel(ctx, jobID)
	if err != nil {
		return state, err
	}

	if state == models.JobStateSubmitted || state == models.JobStateQueued {
		job, err := m.store.Get(ctx, jobID)
		if err != nil {
			return state, err
		}
		now := time.Now()
		cancelled := job.Clone()
		cancelled.State = models.JobStateCancelled
		cancelled.CompletedAt = &now
		cancelled.ErrorKind = models.ErrKindCancelled
		cancelled.ErrorMessage = "cancelled before processing started"
		retain := now.Add(m.cfg.Retention)
		cancelled.RetainUntil = &retain

		err = m.store.CompareAndSet(ctx, cancelled, state)
		if err == nil {
			return models.JobStateCancelled, nil
		}
		if !errors.Is(err, ErrConflict) {
			return state, err
		}
		// A worker claimed the job between the two calls; the raised flag
		// stops it at the next boundary.
		state = models.JobStateRunning
	}

	m.mu.Lock()
	cancel, ok := m.cancels[jobID]
	m.mu.Unlock()
	if ok {
		cancel()
	}
	return state, nil
}

// RegisterCancel records the cancel function for a job running on this
// replica.
func (m *Manager) RegisterCancel(jobID string, cancel context.CancelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels[jobID] = cancel
}

// UnregisterCancel removes the registry entry.
func (m *Manager) UnregisterCancel(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cancels, jobID)
}
