package models

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// MediaMetadata is the durable artifact record written exactly once per
// completed or permanently-failed job. Rows are never updated after
// insert; a failed job gets its own terminal row rather than mutating a
// prior one. Image and video rows share one table, discriminated by
// Kind.
type MediaMetadata struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Kind         MediaKind
	Provider     Provider
	URL          string
	ThumbnailURL sql.NullString
	Model        string
	Title        string
	Prompt       string
	AspectRatio  string
	Endpoint     string
	Cost         float64
	Status       string
	ErrorMessage sql.NullString
	CreatedAt    time.Time

	// Video-only attributes.
	DurationSec sql.NullInt64
	Resolution  sql.NullString
	FileExt     sql.NullString
}

const (
	MediaStatusCompleted = "completed"
	MediaStatusFailed    = "failed"
)
