// Package config holds the tunables of the bet synchronization pipeline.
package config

import (
	"fmt"
	"strings"
	"time"
)

// SyncConfig contains every knob of the sync pipeline. Connection settings for the
// databases and the cache are read through env.GetEnv instead.
type SyncConfig struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Inline runs read ChunkSize groups per source page and commit BatchSize records per transaction.
	ChunkSize        int `koanf:"chunk_size"`
	BatchSize        int `koanf:"batch_size"`
	ProgressInterval int `koanf:"progress_log_interval"`

	// Background runs use their own, larger sizes.
	BackgroundChunkSize        int `koanf:"background_chunk_size"`
	BackgroundBatchSize        int `koanf:"background_batch_size"`
	BackgroundProgressInterval int `koanf:"background_progress_log_interval"`

	// UpsertStatementSize caps the rows of a single INSERT statement inside a batch.
	UpsertStatementSize int `koanf:"upsert_statement_size"`

	// BackgroundThreshold is the largest estimate that still runs inline.
	BackgroundThreshold int64 `koanf:"background_threshold"`

	// JobTimeoutSeconds is the hard limit of one background attempt.
	JobTimeoutSeconds int `koanf:"job_timeout"`
	JobTries          int `koanf:"job_tries"`
	StatusCacheHours  int `koanf:"status_cache_hours"`

	QueueWorkers int           `koanf:"queue_workers"`
	RetryBackoff time.Duration `koanf:"retry_backoff"`

	ScheduleEnabled  bool          `koanf:"schedule_enabled"`
	ScheduleInterval time.Duration `koanf:"schedule_interval"`
	ScheduleDaysBack int           `koanf:"schedule_days_back"`

	SkipInvalidRecords bool `koanf:"skip_invalid_records"`
	EnableValidation   bool `koanf:"enable_validation"`

	DefaultDateRangeDays int    `koanf:"default_date_range_days"`
	AllowedChannels      string `koanf:"allowed_channels"`
	DefaultChannel       string `koanf:"default_channel"`

	EstimateExactMaxDays   int `koanf:"estimate_exact_max_days"`
	EstimateEventsPerGroup int `koanf:"estimate_events_per_group"`

	SlowSyncThresholdSeconds int   `koanf:"slow_sync_threshold"`
	LargeInlineWarning       int64 `koanf:"large_inline_warning"`
}

// New returns the defaults.
func New() *SyncConfig {
	return &SyncConfig{
		LogLevel:                   "info",
		ChunkSize:                  1000,
		BatchSize:                  500,
		ProgressInterval:           5000,
		BackgroundChunkSize:        2000,
		BackgroundBatchSize:        1000,
		BackgroundProgressInterval: 10000,
		UpsertStatementSize:        250,
		BackgroundThreshold:        10000,
		JobTimeoutSeconds:          3600,
		JobTries:                   3,
		StatusCacheHours:           24,
		QueueWorkers:               2,
		RetryBackoff:               time.Minute,
		ScheduleEnabled:            true,
		ScheduleInterval:           5 * time.Minute,
		ScheduleDaysBack:           0,
		SkipInvalidRecords:         false,
		EnableValidation:           true,
		DefaultDateRangeDays:       1,
		AllowedChannels:            "VN,TH,MY,PH,DK",
		EstimateExactMaxDays:       31,
		EstimateEventsPerGroup:     1,
		SlowSyncThresholdSeconds:   300,
		LargeInlineWarning:         50000,
	}
}

// Validate rejects values the pipeline cannot run with.
func (c *SyncConfig) Validate() error {
	positive := map[string]int{
		"chunk_size":                       c.ChunkSize,
		"batch_size":                       c.BatchSize,
		"progress_log_interval":            c.ProgressInterval,
		"background_chunk_size":            c.BackgroundChunkSize,
		"background_batch_size":            c.BackgroundBatchSize,
		"background_progress_log_interval": c.BackgroundProgressInterval,
		"upsert_statement_size":            c.UpsertStatementSize,
		"job_timeout":                      c.JobTimeoutSeconds,
		"job_tries":                        c.JobTries,
		"status_cache_hours":               c.StatusCacheHours,
		"queue_workers":                    c.QueueWorkers,
		"estimate_events_per_group":        c.EstimateEventsPerGroup,
	}
	for key, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfig, key, value)
		}
	}
	if c.BackgroundThreshold < 0 {
		return fmt.Errorf("%w: background_threshold must not be negative", ErrInvalidConfig)
	}
	if c.ScheduleEnabled && c.ScheduleInterval <= 0 {
		return fmt.Errorf("%w: schedule_interval must be positive when the schedule is enabled", ErrInvalidConfig)
	}
	if c.ScheduleDaysBack < 0 {
		return fmt.Errorf("%w: schedule_days_back must not be negative", ErrInvalidConfig)
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("%w: retry_backoff must not be negative", ErrInvalidConfig)
	}
	if c.DefaultChannel != "" && !c.IsChannelAllowed(c.DefaultChannel) {
		return fmt.Errorf("%w: default_channel %q is not in allowed_channels", ErrInvalidConfig, c.DefaultChannel)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	return nil
}

// Channels returns the allowed channel names, upper-cased.
func (c *SyncConfig) Channels() []string {
	var channels []string
	for _, ch := range strings.Split(c.AllowedChannels, ",") {
		ch = strings.ToUpper(strings.TrimSpace(ch))
		if ch != "" {
			channels = append(channels, ch)
		}
	}
	return channels
}

// IsChannelAllowed reports whether channel is listed in AllowedChannels.
// An empty allow list accepts every channel.
func (c *SyncConfig) IsChannelAllowed(channel string) bool {
	channels := c.Channels()
	if len(channels) == 0 {
		return true
	}
	channel = strings.ToUpper(strings.TrimSpace(channel))
	for _, ch := range channels {
		if ch == channel {
			return true
		}
	}
	return false
}

func (c *SyncConfig) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutSeconds) * time.Second
}

func (c *SyncConfig) StatusTTL() time.Duration {
	return time.Duration(c.StatusCacheHours) * time.Hour
}

func (c *SyncConfig) SlowSyncThreshold() time.Duration {
	return time.Duration(c.SlowSyncThresholdSeconds) * time.Second
}
