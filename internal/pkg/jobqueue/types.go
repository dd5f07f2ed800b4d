package jobqueue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ManuelReschke/BetSync/app/models"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeSyncBets JobType = "sync_bets"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// Sync triggers
const (
	TriggerAPI      = "api"
	TriggerCLI      = "cli"
	TriggerSchedule = "schedule"
)

// SyncBetsJobPayload contains the payload for bet sync jobs
type SyncBetsJobPayload struct {
	StartDate        string `json:"start_date"` // YYYY-MM-DD, included
	EndDate          string `json:"end_date"`   // YYYY-MM-DD, included
	Channel          string `json:"channel,omitempty"`
	EstimatedRecords int64  `json:"estimated_records"`
	Trigger          string `json:"trigger,omitempty"`
}

// NewSyncBetsJobPayload builds the payload for a sync request
func NewSyncBetsJobPayload(req models.SyncRequest, estimated int64, trigger string) SyncBetsJobPayload {
	return SyncBetsJobPayload{
		StartDate:        req.StartDate.Format(models.TrandateLayout),
		EndDate:          req.EndDate.Format(models.TrandateLayout),
		Channel:          req.Channel,
		EstimatedRecords: estimated,
		Trigger:          trigger,
	}
}

// ToMap converts the payload to a map for storage
func (p SyncBetsJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"start_date":        p.StartDate,
		"end_date":          p.EndDate,
		"channel":           p.Channel,
		"estimated_records": p.EstimatedRecords,
		"trigger":           p.Trigger,
	}
}

// Request parses the date range back into a sync request
func (p SyncBetsJobPayload) Request() (models.SyncRequest, error) {
	start, err := time.Parse(models.TrandateLayout, p.StartDate)
	if err != nil {
		return models.SyncRequest{}, fmt.Errorf("invalid start_date %q: %w", p.StartDate, err)
	}
	end, err := time.Parse(models.TrandateLayout, p.EndDate)
	if err != nil {
		return models.SyncRequest{}, fmt.Errorf("invalid end_date %q: %w", p.EndDate, err)
	}
	return models.NewSyncRequest(start, end, p.Channel), nil
}

// SyncBetsJobPayloadFromMap creates a payload from a map
func SyncBetsJobPayloadFromMap(data map[string]interface{}) (*SyncBetsJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload SyncBetsJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IsRetryable checks if a job can be retried. MaxRetries counts every attempt, the first one included.
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// Attempt returns the 1-based number of the attempt that is about to run or running
func (j *Job) Attempt() int {
	return j.RetryCount + 1
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
