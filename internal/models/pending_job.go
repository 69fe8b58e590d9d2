package models

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a pending job. Transitions are
// monotonic: pending -> processing -> {completed, failed}.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status is absorbing.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// JobMetadata carries the request context a pending job needs to be
// reconciled into a MediaMetadata row after the originating process
// state is gone.
type JobMetadata struct {
	Prompt      string    `json:"prompt"`
	Model       string    `json:"model"`
	Title       string    `json:"title"`
	Kind        MediaKind `json:"kind"`
	AspectRatio string    `json:"aspect_ratio,omitempty"`
	Resolution  string    `json:"resolution,omitempty"`
	DurationSec int       `json:"duration_sec,omitempty"`
	Cost        float64   `json:"cost"`
	Endpoint    string    `json:"endpoint,omitempty"`

	// SecondaryID is the provider's own job identifier when it differs
	// from our task_id correlation key.
	SecondaryID string `json:"secondary_id,omitempty"`
}

// ParseJobMetadata decodes the metadata column, tolerating both a JSON
// object and a JSON string containing an object. Historical rows were
// written with the double encoding; this adapter is the only place that
// tolerance lives.
func ParseJobMetadata(raw []byte) (JobMetadata, error) {
	var meta JobMetadata
	if len(raw) == 0 {
		return meta, nil
	}
	if err := json.Unmarshal(raw, &meta); err == nil {
		return meta, nil
	}
	var inner string
	if err := json.Unmarshal(raw, &inner); err != nil {
		return meta, fmt.Errorf("metadata is neither object nor string: %w", err)
	}
	if err := json.Unmarshal([]byte(inner), &meta); err != nil {
		return meta, fmt.Errorf("string-encoded metadata is not an object: %w", err)
	}
	return meta, nil
}

// PendingJob is the durable record of a generation submitted to an
// external provider whose result has not yet been reconciled. Exactly
// one row exists per outstanding task_id.
type PendingJob struct {
	TaskID       string
	UserID       uuid.UUID
	Provider     Provider
	Kind         MediaKind
	Status       JobStatus
	ResultURL    sql.NullString
	ErrorMessage sql.NullString
	Metadata     JobMetadata
	DeviceToken  sql.NullString
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  sql.NullTime
}

// Age returns how long ago the job was created.
func (j *PendingJob) Age(now time.Time) time.Duration {
	return now.Sub(j.CreatedAt)
}
