// Package jobs provides the async job lifecycle: a durable store, a submit
// and status manager, a worker pool that drains the queue, and a reaper that
// removes retained records and recovers orphaned jobs.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/auditflow/auditflow/pkg/models"
)

// Store errors. Callers branch on these with errors.Is.
var (
	// ErrNotFound means no job record exists for the ID.
	ErrNotFound = errors.New("job not found")

	// ErrConflict means a compare-and-set lost: the stored state did not
	// match the expected state.
	ErrConflict = errors.New("job state conflict")

	// ErrQueueEmpty means no claimable job was queued.
	ErrQueueEmpty = errors.New("job queue empty")
)

// Store is the durable job repository shared by the API, the worker pool,
// and the reaper. Implementations must be safe for concurrent use across
// goroutines and, for the postgres backend, across replicas.
type Store interface {
	// Put creates the job record. The job ID must not already exist.
	Put(ctx context.Context, job *models.Job) error

	// Get returns a copy of the job, or ErrNotFound.
	Get(ctx context.Context, jobID string) (*models.Job, error)

	// CompareAndSet persists the job only if the stored state equals
	// expected, returning ErrConflict otherwise. The cancel flag is owned
	// by RequestCancel and the heartbeat stamp by Dequeue and Heartbeat;
	// neither is written here, so a caller holding a stale snapshot cannot
	// regress them.
	CompareAndSet(ctx context.Context, job *models.Job, expected models.JobState) error

	// RequestCancel raises the cancel flag on a non-terminal job and
	// returns the state observed at that moment.
	RequestCancel(ctx context.Context, jobID string) (models.JobState, error)

	// Enqueue appends the job to the FIFO work queue.
	Enqueue(ctx context.Context, jobID string) error

	// Dequeue claims the oldest queued job for podID: the job transitions
	// to processing with StartedAt and HeartbeatAt stamped. Jobs that left
	// the queued state while waiting (cancelled) are dropped from the
	// queue and skipped. Returns ErrQueueEmpty when nothing is claimable.
	Dequeue(ctx context.Context, podID string) (*models.Job, error)

	// Delete removes the job record and any queue entry.
	Delete(ctx context.Context, jobID string) error

	// QueueDepth returns the number of jobs waiting in the queue.
	QueueDepth(ctx context.Context) (int, error)

	// Heartbeat stamps the processing job's liveness timestamp.
	Heartbeat(ctx context.Context, jobID string, at time.Time) error

	// ListExpired returns IDs of terminal jobs whose retention window
	// ended at or before now.
	ListExpired(ctx context.Context, now time.Time) ([]string, error)

	// ListOrphaned returns processing jobs whose heartbeat is older than
	// cutoff. Jobs claimed but never heartbeated count from StartedAt.
	ListOrphaned(ctx context.Context, cutoff time.Time) ([]*models.Job, error)
}
