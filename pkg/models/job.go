package models

import "time"

// JobState is the lifecycle state of an async evaluation job.
// The wire spelling is used directly so status responses need no mapping.
type JobState string

// Job lifecycle states.
const (
	JobStateSubmitted JobState = "submitted"
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "processing"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "error"
	JobStateCancelled JobState = "cancelled"
	JobStateExpired   JobState = "expired"
)

// IsValid checks if the state is one of the enumerated values.
func (s JobState) IsValid() bool {
	switch s {
	case JobStateSubmitted, JobStateQueued, JobStateRunning, JobStateCompleted,
		JobStateFailed, JobStateCancelled, JobStateExpired:
		return true
	default:
		return false
	}
}

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateCompleted, JobStateFailed, JobStateCancelled, JobStateExpired:
		return true
	default:
		return false
	}
}

// CanTransitionTo enforces the lifecycle DAG:
// submitted → queued → processing → {completed | error | cancelled};
// any non-terminal state may additionally expire, and submitted/queued jobs
// may be cancelled directly.
func (s JobState) CanTransitionTo(next JobState) bool {
	if s.Terminal() {
		return false
	}
	if next == JobStateExpired {
		return true
	}
	switch s {
	case JobStateSubmitted:
		return next == JobStateQueued || next == JobStateCancelled
	case JobStateQueued:
		return next == JobStateRunning || next == JobStateCancelled
	case JobStateRunning:
		return next == JobStateCompleted || next == JobStateFailed || next == JobStateCancelled
	default:
		return false
	}
}

// Job is the durable container for one async evaluation batch.
type Job struct {
	JobID         string   `json:"jobId"`
	State         JobState `json:"state"`
	CorrelationID string   `json:"correlationId"`
	PodID         string   `json:"podId,omitempty"`

	SubmittedAt time.Time  `json:"submittedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	HeartbeatAt *time.Time `json:"heartbeatAt,omitempty"`

	Progress int `json:"progress"`

	Items   []EvaluationItem   `json:"items"`
	Results []EvaluationResult `json:"results,omitempty"`

	ErrorKind    ErrorKind `json:"errorKind,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`

	// CancelRequested is the cross-replica cancel flag polled by the
	// processing worker at task boundaries.
	CancelRequested bool `json:"cancelRequested,omitempty"`

	// RetainUntil is when the reaper may remove the record (terminal jobs only).
	RetainUntil *time.Time `json:"retainUntil,omitempty"`
}

// Clone returns a deep-enough copy for safe hand-off across goroutines.
// Item and result slices are copied; their elements are treated as immutable.
func (j *Job) Clone() *Job {
	c := *j
	if j.Items != nil {
		c.Items = make([]EvaluationItem, len(j.Items))
		copy(c.Items, j.Items)
	}
	if j.Results != nil {
		c.Results = make([]EvaluationResult, len(j.Results))
		copy(c.Results, j.Results)
	}
	return &c
}
