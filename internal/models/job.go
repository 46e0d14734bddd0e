package models

import (
	"sync"
	"time"
)

// JobStatus is the lifecycle state of one submitted run.
type JobStatus string

const (
	JobCreated   JobStatus = "created"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Milestone marks one stage boundary inside a running job.
type Milestone struct {
	Stage string    `json:"stage"`
	At    time.Time `json:"at"`
}

// JobState tracks one pipeline or checkpoint run by handle. Callers hold a
// *JobState and observe progress through Snapshot; writers go through the
// lifecycle methods, which are safe for concurrent use.
type JobState struct {
	mu         sync.Mutex
	ID         string
	Kind       string
	Status     JobStatus
	Milestones []Milestone
	Err        string
	CreatedAt  time.Time
	FinishedAt time.Time
}

// NewJobState returns a job in the created state.
func NewJobState(id, kind string) *JobState {
	return &JobState{
		ID:        id,
		Kind:      kind,
		Status:    JobCreated,
		CreatedAt: time.Now().UTC(),
	}
}

// Start moves the job to running.
func (j *JobState) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = JobRunning
}

// MarkStage appends a progress milestone.
func (j *JobState) MarkStage(stage string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Milestones = append(j.Milestones, Milestone{Stage: stage, At: time.Now().UTC()})
}

// Complete moves the job to its terminal success state.
func (j *JobState) Complete() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = JobCompleted
	j.FinishedAt = time.Now().UTC()
}

// Fail moves the job to its terminal error state.
func (j *JobState) Fail(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = JobFailed
	if err != nil {
		j.Err = err.Error()
	}
	j.FinishedAt = time.Now().UTC()
}

// JobView is an immutable copy of a job's state.
type JobView struct {
	ID         string      `json:"id"`
	Kind       string      `json:"kind"`
	Status     JobStatus   `json:"status"`
	Milestones []Milestone `json:"milestones"`
	Err        string      `json:"error,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	FinishedAt time.Time   `json:"finished_at"`
}

// Snapshot returns a copy safe to read while the job keeps running.
func (j *JobState) Snapshot() JobView {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobView{
		ID:         j.ID,
		Kind:       j.Kind,
		Status:     j.Status,
		Milestones: append([]Milestone(nil), j.Milestones...),
		Err:        j.Err,
		CreatedAt:  j.CreatedAt,
		FinishedAt: j.FinishedAt,
	}
}
