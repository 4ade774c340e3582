package jobs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditflow/auditflow/pkg/models"
)

// The store suite runs against every Store implementation: memory directly,
// postgres behind a testcontainer.

func newStoredJob(id string) *models.Job {
	return &models.Job{
		JobID:         id,
		State:         models.JobStateSubmitted,
		CorrelationID: "20260824_1756000000_0001",
		SubmittedAt:   time.Now().Truncate(time.Millisecond),
		Items: []models.EvaluationItem{
			{
				ID:                 "item-1",
				ControlDescription: "control",
				TestProcedure:      "procedure",
				EvidenceFiles: []models.EvidenceFile{
					{FileName: "note.txt", MimeType: models.MimeText, Content: []byte("evidence bytes")},
				},
			},
		},
	}
}

func queueJob(t *testing.T, s Store, id string) *models.Job {
	t.Helper()
	ctx := context.Background()
	job := newStoredJob(id)
	require.NoError(t, s.Put(ctx, job))
	queued := job.Clone()
	queued.State = models.JobStateQueued
	require.NoError(t, s.CompareAndSet(ctx, queued, models.JobStateSubmitted))
	require.NoError(t, s.Enqueue(ctx, id))
	return queued
}

func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("put and get round-trip", func(t *testing.T) {
		s := newStore(t)
		job := newStoredJob("job-rt")
		require.NoError(t, s.Put(ctx, job))

		got, err := s.Get(ctx, "job-rt")
		require.NoError(t, err)
		assert.Equal(t, models.JobStateSubmitted, got.State)
		assert.Equal(t, job.CorrelationID, got.CorrelationID)
		require.Len(t, got.Items, 1)
		require.Len(t, got.Items[0].EvidenceFiles, 1)
		assert.Equal(t, []byte("evidence bytes"), got.Items[0].EvidenceFiles[0].Content,
			"evidence bytes survive storage")
	})

	t.Run("put duplicate is a conflict", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, newStoredJob("job-dup")))
		assert.ErrorIs(t, s.Put(ctx, newStoredJob("job-dup")), ErrConflict)
	})

	t.Run("get missing job", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "no-such-job")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("compare-and-set enforces the expected state", func(t *testing.T) {
		s := newStore(t)
		job := newStoredJob("job-cas")
		require.NoError(t, s.Put(ctx, job))

		queued := job.Clone()
		queued.State = models.JobStateQueued
		require.NoError(t, s.CompareAndSet(ctx, queued, models.JobStateSubmitted))
		assert.ErrorIs(t, s.CompareAndSet(ctx, queued, models.JobStateSubmitted), ErrConflict)

		missing := newStoredJob("job-cas-missing")
		assert.ErrorIs(t, s.CompareAndSet(ctx, missing, models.JobStateSubmitted), ErrNotFound)
	})

	t.Run("compare-and-set preserves the cancel flag", func(t *testing.T) {
		s := newStore(t)
		job := queueJob(t, s, "job-flag")
		claimed, err := s.Dequeue(ctx, "pod-a")
		require.NoError(t, err)
		require.Equal(t, "job-flag", claimed.JobID)

		_, err = s.RequestCancel(ctx, "job-flag")
		require.NoError(t, err)

		// A stale progress write must not clear the flag.
		update := job.Clone()
		update.State = models.JobStateRunning
		update.Progress = 40
		require.NoError(t, s.CompareAndSet(ctx, update, models.JobStateRunning))

		got, err := s.Get(ctx, "job-flag")
		require.NoError(t, err)
		assert.True(t, got.CancelRequested)
		assert.Equal(t, 40, got.Progress)
	})

	t.Run("compare-and-set preserves the heartbeat stamp", func(t *testing.T) {
		s := newStore(t)
		queueJob(t, s, "job-hb-keep")
		claimed, err := s.Dequeue(ctx, "pod-a")
		require.NoError(t, err)

		fresh := time.Now().Add(10 * time.Minute).Truncate(time.Millisecond)
		require.NoError(t, s.Heartbeat(ctx, claimed.JobID, fresh))

		// A progress write from the claim-time snapshot must not wind the
		// heartbeat back to claim time.
		update := claimed.Clone()
		update.Progress = 50
		require.NoError(t, s.CompareAndSet(ctx, update, models.JobStateRunning))

		got, err := s.Get(ctx, claimed.JobID)
		require.NoError(t, err)
		assert.Equal(t, 50, got.Progress)
		require.NotNil(t, got.HeartbeatAt)
		assert.WithinDuration(t, fresh, *got.HeartbeatAt, time.Second)

		orphans, err := s.ListOrphaned(ctx, time.Now().Add(5*time.Minute))
		require.NoError(t, err)
		assert.Empty(t, orphans, "a heartbeating job is never orphaned")
	})

	t.Run("request cancel on terminal job", func(t *testing.T) {
		s := newStore(t)
		job := newStoredJob("job-term")
		job.State = models.JobStateCompleted
		require.NoError(t, s.Put(ctx, job))

		state, err := s.RequestCancel(ctx, "job-term")
		assert.ErrorIs(t, err, ErrConflict)
		assert.Equal(t, models.JobStateCompleted, state)

		_, err = s.RequestCancel(ctx, "absent")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("dequeue claims FIFO and stamps the claim", func(t *testing.T) {
		s := newStore(t)
		queueJob(t, s, "job-q1")
		queueJob(t, s, "job-q2")

		first, err := s.Dequeue(ctx, "pod-a")
		require.NoError(t, err)
		assert.Equal(t, "job-q1", first.JobID)
		assert.Equal(t, models.JobStateRunning, first.State)
		assert.Equal(t, "pod-a", first.PodID)
		require.NotNil(t, first.StartedAt)
		require.NotNil(t, first.HeartbeatAt)

		second, err := s.Dequeue(ctx, "pod-b")
		require.NoError(t, err)
		assert.Equal(t, "job-q2", second.JobID)

		_, err = s.Dequeue(ctx, "pod-a")
		assert.ErrorIs(t, err, ErrQueueEmpty)
	})

	t.Run("dequeue skips jobs cancelled while queued", func(t *testing.T) {
		s := newStore(t)
		cancelled := queueJob(t, s, "job-skip")
		queueJob(t, s, "job-live")

		gone := cancelled.Clone()
		gone.State = models.JobStateCancelled
		require.NoError(t, s.CompareAndSet(ctx, gone, models.JobStateQueued))

		claimed, err := s.Dequeue(ctx, "pod-a")
		require.NoError(t, err)
		assert.Equal(t, "job-live", claimed.JobID)
	})

	t.Run("queue depth counts only queued jobs", func(t *testing.T) {
		s := newStore(t)
		queueJob(t, s, "job-d1")
		queueJob(t, s, "job-d2")

		depth, err := s.QueueDepth(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, depth)

		_, err = s.Dequeue(ctx, "pod-a")
		require.NoError(t, err)

		depth, err = s.QueueDepth(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, depth)
	})

	t.Run("heartbeat requires a processing job", func(t *testing.T) {
		s := newStore(t)
		queueJob(t, s, "job-hb")
		claimed, err := s.Dequeue(ctx, "pod-a")
		require.NoError(t, err)

		at := time.Now().Add(time.Minute).Truncate(time.Millisecond)
		require.NoError(t, s.Heartbeat(ctx, claimed.JobID, at))

		got, err := s.Get(ctx, claimed.JobID)
		require.NoError(t, err)
		require.NotNil(t, got.HeartbeatAt)
		assert.WithinDuration(t, at, *got.HeartbeatAt, time.Second)

		queued := newStoredJob("job-hb2")
		require.NoError(t, s.Put(ctx, queued))
		assert.ErrorIs(t, s.Heartbeat(ctx, "job-hb2", at), ErrConflict)
		assert.ErrorIs(t, s.Heartbeat(ctx, "absent", at), ErrNotFound)
	})

	t.Run("list expired honors retention", func(t *testing.T) {
		s := newStore(t)
		now := time.Now()

		past := now.Add(-time.Hour)
		future := now.Add(time.Hour)
		for i, retain := range []*time.Time{&past, &future} {
			job := newStoredJob(fmt.Sprintf("job-exp-%d", i))
			job.State = models.JobStateCompleted
			job.RetainUntil = retain
			require.NoError(t, s.Put(ctx, job))
		}
		// Non-terminal jobs are never reaped, retention or not.
		running := newStoredJob("job-exp-running")
		running.State = models.JobStateRunning
		running.RetainUntil = &past
		require.NoError(t, s.Put(ctx, running))

		ids, err := s.ListExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, []string{"job-exp-0"}, ids)
	})

	t.Run("delete removes job and queue entry", func(t *testing.T) {
		s := newStore(t)
		queueJob(t, s, "job-del")
		require.NoError(t, s.Delete(ctx, "job-del"))

		_, err := s.Get(ctx, "job-del")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.Dequeue(ctx, "pod-a")
		assert.ErrorIs(t, err, ErrQueueEmpty)

		assert.ErrorIs(t, s.Delete(ctx, "job-del"), ErrNotFound)
	})

	t.Run("list orphaned finds stale heartbeats", func(t *testing.T) {
		s := newStore(t)
		queueJob(t, s, "job-orphan")
		claimed, err := s.Dequeue(ctx, "pod-dead")
		require.NoError(t, err)

		stale := time.Now().Add(-10 * time.Minute)
		require.NoError(t, s.Heartbeat(ctx, claimed.JobID, stale))

		orphans, err := s.ListOrphaned(ctx, time.Now().Add(-5*time.Minute))
		require.NoError(t, err)
		require.Len(t, orphans, 1)
		assert.Equal(t, "job-orphan", orphans[0].JobID)
		assert.Equal(t, "pod-dead", orphans[0].PodID)

		orphans, err = s.ListOrphaned(ctx, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.Empty(t, orphans)
	})
}
