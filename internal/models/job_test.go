package models_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itradeyou/council/internal/models"
)

func TestJobStateLifecycle(t *testing.T) {
	job := models.NewJobState("j-1", "weekly-run")
	assert.Equal(t, models.JobCreated, job.Snapshot().Status)

	job.Start()
	job.MarkStage("snapshot")
	job.MarkStage("pitch")
	assert.Equal(t, models.JobRunning, job.Snapshot().Status)

	job.Complete()
	view := job.Snapshot()
	assert.Equal(t, models.JobCompleted, view.Status)
	require.Len(t, view.Milestones, 2)
	assert.Equal(t, "pitch", view.Milestones[1].Stage)
	assert.False(t, view.FinishedAt.IsZero())
}

func TestJobStateFailureRecordsError(t *testing.T) {
	job := models.NewJobState("j-2", "checkpoint")
	job.Start()
	job.Fail(errors.New("no frozen snapshot"))

	view := job.Snapshot()
	assert.Equal(t, models.JobFailed, view.Status)
	assert.Contains(t, view.Err, "no frozen snapshot")
}

func TestJobStateConcurrentMilestones(t *testing.T) {
	job := models.NewJobState("j-3", "weekly-run")
	job.Start()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job.MarkStage("stage")
		}()
	}
	wg.Wait()

	assert.Len(t, job.Snapshot().Milestones, 10)
}

func TestWeekIDFormat(t *testing.T) {
	assert.Equal(t, "2026-W35", models.WeekID(time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)))
	// ISO week years differ from calendar years at the boundary.
	assert.Equal(t, "2026-W53", models.WeekID(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)))
}
