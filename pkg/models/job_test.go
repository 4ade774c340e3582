package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobStateTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    JobState
		to      JobState
		allowed bool
	}{
		{name: "submitted to queued", from: JobStateSubmitted, to: JobStateQueued, allowed: true},
		{name: "queued to processing", from: JobStateQueued, to: JobStateRunning, allowed: true},
		{name: "processing to completed", from: JobStateRunning, to: JobStateCompleted, allowed: true},
		{name: "processing to error", from: JobStateRunning, to: JobStateFailed, allowed: true},
		{name: "processing to cancelled", from: JobStateRunning, to: JobStateCancelled, allowed: true},
		{name: "queued to cancelled", from: JobStateQueued, to: JobStateCancelled, allowed: true},
		{name: "submitted to cancelled", from: JobStateSubmitted, to: JobStateCancelled, allowed: true},
		{name: "queued expires", from: JobStateQueued, to: JobStateExpired, allowed: true},
		{name: "processing expires", from: JobStateRunning, to: JobStateExpired, allowed: true},
		{name: "no skip from submitted to processing", from: JobStateSubmitted, to: JobStateRunning, allowed: false},
		{name: "no skip from queued to completed", from: JobStateQueued, to: JobStateCompleted, allowed: false},
		{name: "completed is terminal", from: JobStateCompleted, to: JobStateCancelled, allowed: false},
		{name: "cancelled is terminal", from: JobStateCancelled, to: JobStateCompleted, allowed: false},
		{name: "expired is terminal", from: JobStateExpired, to: JobStateQueued, allowed: false},
		{name: "no backwards transition", from: JobStateRunning, to: JobStateQueued, allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestJobStateTerminal(t *testing.T) {
	assert.False(t, JobStateSubmitted.Terminal())
	assert.False(t, JobStateQueued.Terminal())
	assert.False(t, JobStateRunning.Terminal())
	assert.True(t, JobStateCompleted.Terminal())
	assert.True(t, JobStateFailed.Terminal())
	assert.True(t, JobStateCancelled.Terminal())
	assert.True(t, JobStateExpired.Terminal())
}

func TestEvaluationItemValidate(t *testing.T) {
	valid := EvaluationItem{
		ID:                 "IC-001",
		ControlDescription: "monthly reconciliation is approved",
		TestProcedure:      "inspect signed report",
	}
	assert.NoError(t, valid.Validate())

	missingID := valid
	missingID.ID = ""
	err := missingID.Validate()
	assert.Error(t, err)
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
	assert.Equal(t, "ID", ve.Field)

	missingControl := valid
	missingControl.ControlDescription = ""
	assert.Error(t, missingControl.Validate())

	missingProcedure := valid
	missingProcedure.TestProcedure = ""
	assert.Error(t, missingProcedure.Validate())
}

func TestJobClone(t *testing.T) {
	job := &Job{
		JobID: "abc",
		State: JobStateQueued,
		Items: []EvaluationItem{{ID: "1"}, {ID: "2"}},
	}
	c := job.Clone()
	c.Items[0].ID = "mutated"
	assert.Equal(t, "1", job.Items[0].ID)
}
