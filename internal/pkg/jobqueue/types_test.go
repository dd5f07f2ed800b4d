package jobqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/BetSync/app/models"
)

func TestJobStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   JobStatus
		expected string
	}{
		{"Pending", JobStatusPending, "pending"},
		{"Processing", JobStatusProcessing, "processing"},
		{"Completed", JobStatusCompleted, "completed"},
		{"Failed", JobStatusFailed, "failed"},
		{"Retrying", JobStatusRetrying, "retrying"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.status))
		})
	}
}

func TestJob_IsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		job       *Job
		retryable bool
	}{
		{"Failed after first attempt", &Job{Status: JobStatusFailed, RetryCount: 1, MaxRetries: 3}, true},
		{"Failed after second attempt", &Job{Status: JobStatusFailed, RetryCount: 2, MaxRetries: 3}, true},
		{"Failed after last attempt", &Job{Status: JobStatusFailed, RetryCount: 3, MaxRetries: 3}, false},
		{"Single attempt budget", &Job{Status: JobStatusFailed, RetryCount: 1, MaxRetries: 1}, false},
		{"Processing job", &Job{Status: JobStatusProcessing, RetryCount: 0, MaxRetries: 3}, false},
		{"Completed job", &Job{Status: JobStatusCompleted, RetryCount: 0, MaxRetries: 3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.job.IsRetryable())
		})
	}
}

func TestJob_StatusTransitions(t *testing.T) {
	job := &Job{Status: JobStatusPending, MaxRetries: 3}
	assert.Equal(t, 1, job.Attempt())

	job.MarkAsProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	require.NotNil(t, job.ProcessedAt)

	job.MarkAsFailed("boom")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "boom", job.ErrorMsg)
	assert.Equal(t, 1, job.RetryCount)
	assert.Equal(t, 2, job.Attempt())

	job.MarkAsRetrying()
	assert.Equal(t, JobStatusRetrying, job.Status)

	job.MarkAsCompleted()
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Empty(t, job.ErrorMsg)
	require.NotNil(t, job.CompletedAt)
}

func TestSyncBetsJobPayload_SurvivesMapStorage(t *testing.T) {
	req := models.NewSyncRequest(
		time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 17, 0, 0, 0, 0, time.UTC),
		"VN",
	)

	payload := NewSyncBetsJobPayload(req, 12345, TriggerAPI)
	assert.Equal(t, "2024-01-15", payload.StartDate)
	assert.Equal(t, "2024-01-17", payload.EndDate)

	// Payload maps come back from Redis as decoded JSON, numbers as float64
	restored, err := SyncBetsJobPayloadFromMap(map[string]interface{}{
		"start_date":        "2024-01-15",
		"end_date":          "2024-01-17",
		"channel":           "VN",
		"estimated_records": float64(12345),
		"trigger":           "api",
	})
	require.NoError(t, err)
	assert.Equal(t, payload, *restored)

	got, err := restored.Request()
	require.NoError(t, err)
	assert.True(t, req.StartDate.Equal(got.StartDate))
	assert.True(t, req.EndDate.Equal(got.EndDate))
	assert.Equal(t, "VN", got.Channel)
}

func TestSyncBetsJobPayload_RequestRejectsBadDates(t *testing.T) {
	_, err := SyncBetsJobPayload{StartDate: "15/01/2024", EndDate: "2024-01-15"}.Request()
	assert.Error(t, err)

	_, err = SyncBetsJobPayload{StartDate: "2024-01-15", EndDate: ""}.Request()
	assert.Error(t, err)
}
