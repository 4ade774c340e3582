package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/auditflow/auditflow/pkg/models"
)

// MemoryStore is the single-replica job store. Suitable for development and
// for deployments that accept losing queued work on restart.
type MemoryStore struct {
	mu    sync.Mutex
	jobs  map[string]*models.Job
	queue []string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*models.Job)}
}

var _ Store = (*MemoryStore)(nil)

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.JobID]; ok {
		return ErrConflict
	}
	s.jobs[job.JobID] = job.Clone()
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, jobID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return job.Clone(), nil
}

// CompareAndSet implements Store.
func (s *MemoryStore) CompareAndSet(_ context.Context, job *models.Job, expected models.JobState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.jobs[job.JobID]
	if !ok {
		return ErrNotFound
	}
	if stored.State != expected {
		return ErrConflict
	}
	next := job.Clone()
	next.CancelRequested = stored.CancelRequested
	next.HeartbeatAt = stored.HeartbeatAt
	s.jobs[job.JobID] = next
	return nil
}

// RequestCancel implements Store.
func (s *MemoryStore) RequestCancel(_ context.Context, jobID string) (models.JobState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return "", ErrNotFound
	}
	if job.State.Terminal() {
		return job.State, ErrConflict
	}
	job.CancelRequested = true
	return job.State, nil
}

// Enqueue implements Store.
func (s *MemoryStore) Enqueue(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return ErrNotFound
	}
	s.queue = append(s.queue, jobID)
	return nil
}

// Dequeue implements Store.
func (s *MemoryStore) Dequeue(_ context.Context, podID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) > 0 {
		jobID := s.queue[0]
		s.queue = s.queue[1:]

		job, ok := s.jobs[jobID]
		if !ok || job.State != models.JobStateQueued {
			// Cancelled or deleted while waiting; drop the entry.
			continue
		}

		now := time.Now()
		job.State = models.JobStateRunning
		job.PodID = podID
		job.StartedAt = &now
		job.HeartbeatAt = &now
		return job.Clone(), nil
	}
	return nil, ErrQueueEmpty
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return ErrNotFound
	}
	delete(s.jobs, jobID)
	for i, id := range s.queue {
		if id == jobID {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			break
		}
	}
	return nil
}

// QueueDepth implements Store.
func (s *MemoryStore) QueueDepth(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	depth := 0
	for _, id := range s.queue {
		if job, ok := s.jobs[id]; ok && job.State == models.JobStateQueued {
			depth++
		}
	}
	return depth, nil
}

// Heartbeat implements Store.
func (s *MemoryStore) Heartbeat(_ context.Context, jobID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if job.State != models.JobStateRunning {
		return ErrConflict
	}
	t := at
	job.HeartbeatAt = &t
	return nil
}

// ListExpired implements Store.
func (s *MemoryStore) ListExpired(_ context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, job := range s.jobs {
		if job.State.Terminal() && job.RetainUntil != nil && !job.RetainUntil.After(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ListOrphaned implements Store.
func (s *MemoryStore) ListOrphaned(_ context.Context, cutoff time.Time) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var orphans []*models.Job
	for _, job := range s.jobs {
		if job.State != models.JobStateRunning {
			continue
		}
		last := job.StartedAt
		if job.HeartbeatAt != nil {
			last = job.HeartbeatAt
		}
		if last != nil && last.Before(cutoff) {
			orphans = append(orphans, job.Clone())
		}
	}
	return orphans, nil
}
