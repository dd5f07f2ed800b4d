package jobstatus

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Status is the discriminator of a job state
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// State is one of Queued, Processing, Completed or Failed.
type State interface {
	Status() Status
	isState()
}

// Queued is written when a background run is dispatched, before a worker picks it up.
type Queued struct {
	QueuedAt         time.Time
	EstimatedRecords int64
}

// Processing is a run in flight.
type Processing struct {
	StartedAt          time.Time
	EstimatedRecords   int64
	ProcessedRecords   int64
	ProgressPercentage float64
	Attempt            int
}

// Completed is a run that flushed every batch.
type Completed struct {
	StartedAt        time.Time
	CompletedAt      time.Time
	ProcessedRecords int64
	ExecutionSeconds float64
	RecordsPerSecond float64
}

// Failed is a run that will not be attempted again.
type Failed struct {
	StartedAt        time.Time
	FailedAt         time.Time
	ProcessedRecords int64
	Error            string
	Attempt          int
}

func (Queued) Status() Status     { return StatusQueued }
func (Processing) Status() Status { return StatusProcessing }
func (Completed) Status() Status  { return StatusCompleted }
func (Failed) Status() Status     { return StatusFailed }

func (Queued) isState()     {}
func (Processing) isState() {}
func (Completed) isState()  {}
func (Failed) isState()     {}

// IsTerminal reports whether no further transitions are expected
func IsTerminal(s State) bool {
	switch s.(type) {
	case Completed, Failed:
		return true
	default:
		return false
	}
}

// SyncJobStatus is the stored status of one sync job
type SyncJobStatus struct {
	JobID     string
	UpdatedAt time.Time
	State     State
}

// startedAt returns the start time carried by the state, zero for Queued.
func (s *SyncJobStatus) startedAt() time.Time {
	switch st := s.State.(type) {
	case Processing:
		return st.StartedAt
	case Completed:
		return st.StartedAt
	case Failed:
		return st.StartedAt
	default:
		return time.Time{}
	}
}

func (s *SyncJobStatus) estimated() int64 {
	switch st := s.State.(type) {
	case Queued:
		return st.EstimatedRecords
	case Processing:
		return st.EstimatedRecords
	default:
		return 0
	}
}

func (s *SyncJobStatus) processed() int64 {
	switch st := s.State.(type) {
	case Processing:
		return st.ProcessedRecords
	case Completed:
		return st.ProcessedRecords
	case Failed:
		return st.ProcessedRecords
	default:
		return 0
	}
}

// ProgressPercentage returns round2(processed / estimated * 100), or 0 when estimated <= 0.
func ProgressPercentage(processed, estimated int64) float64 {
	if estimated <= 0 {
		return 0
	}
	return round2(float64(processed) / float64(estimated) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// wireStatus is the flat JSON shape shared by the cache entry and the HTTP API.
type wireStatus struct {
	JobID              string     `json:"job_id"`
	Status             Status     `json:"status"`
	UpdatedAt          time.Time  `json:"updated_at"`
	QueuedAt           *time.Time `json:"queued_at,omitempty"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	FailedAt           *time.Time `json:"failed_at,omitempty"`
	EstimatedRecords   *int64     `json:"estimated_records,omitempty"`
	ProcessedRecords   *int64     `json:"processed_records,omitempty"`
	ProgressPercentage *float64   `json:"progress_percentage,omitempty"`
	ExecutionSeconds   *float64   `json:"execution_time_seconds,omitempty"`
	RecordsPerSecond   *float64   `json:"records_per_second,omitempty"`
	Error              string     `json:"error,omitempty"`
	Attempt            int        `json:"attempt,omitempty"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func int64Ptr(v int64) *int64       { return &v }
func float64Ptr(v float64) *float64 { return &v }

// MarshalJSON writes the state fields next to job_id, status and updated_at
func (s SyncJobStatus) MarshalJSON() ([]byte, error) {
	if s.State == nil {
		return nil, fmt.Errorf("job %s has no state", s.JobID)
	}
	w := wireStatus{
		JobID:     s.JobID,
		Status:    s.State.Status(),
		UpdatedAt: s.UpdatedAt,
	}
	switch st := s.State.(type) {
	case Queued:
		w.QueuedAt = timePtr(st.QueuedAt)
		w.EstimatedRecords = int64Ptr(st.EstimatedRecords)
	case Processing:
		w.StartedAt = timePtr(st.StartedAt)
		w.EstimatedRecords = int64Ptr(st.EstimatedRecords)
		w.ProcessedRecords = int64Ptr(st.ProcessedRecords)
		w.ProgressPercentage = float64Ptr(st.ProgressPercentage)
		w.Attempt = st.Attempt
	case Completed:
		w.StartedAt = timePtr(st.StartedAt)
		w.CompletedAt = timePtr(st.CompletedAt)
		w.ProcessedRecords = int64Ptr(st.ProcessedRecords)
		w.ExecutionSeconds = float64Ptr(st.ExecutionSeconds)
		w.RecordsPerSecond = float64Ptr(st.RecordsPerSecond)
	case Failed:
		w.StartedAt = timePtr(st.StartedAt)
		w.FailedAt = timePtr(st.FailedAt)
		w.ProcessedRecords = int64Ptr(st.ProcessedRecords)
		w.Error = st.Error
		w.Attempt = st.Attempt
	}
	return json.Marshal(w)
}

// UnmarshalJSON picks the state type from the status field
func (s *SyncJobStatus) UnmarshalJSON(data []byte) error {
	var w wireStatus
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	deref := func(t *time.Time) time.Time {
		if t == nil {
			return time.Time{}
		}
		return *t
	}
	i64 := func(v *int64) int64 {
		if v == nil {
			return 0
		}
		return *v
	}
	f64 := func(v *float64) float64 {
		if v == nil {
			return 0
		}
		return *v
	}

	s.JobID = w.JobID
	s.UpdatedAt = w.UpdatedAt
	switch w.Status {
	case StatusQueued:
		s.State = Queued{QueuedAt: deref(w.QueuedAt), EstimatedRecords: i64(w.EstimatedRecords)}
	case StatusProcessing:
		s.State = Processing{
			StartedAt:          deref(w.StartedAt),
			EstimatedRecords:   i64(w.EstimatedRecords),
			ProcessedRecords:   i64(w.ProcessedRecords),
			ProgressPercentage: f64(w.ProgressPercentage),
			Attempt:            w.Attempt,
		}
	case StatusCompleted:
		s.State = Completed{
			StartedAt:        deref(w.StartedAt),
			CompletedAt:      deref(w.CompletedAt),
			ProcessedRecords: i64(w.ProcessedRecords),
			ExecutionSeconds: f64(w.ExecutionSeconds),
			RecordsPerSecond: f64(w.RecordsPerSecond),
		}
	case StatusFailed:
		s.State = Failed{
			StartedAt:        deref(w.StartedAt),
			FailedAt:         deref(w.FailedAt),
			ProcessedRecords: i64(w.ProcessedRecords),
			Error:            w.Error,
			Attempt:          w.Attempt,
		}
	default:
		return fmt.Errorf("unknown job status %q", w.Status)
	}
	return nil
}
