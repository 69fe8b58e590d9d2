package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"

	"mediaforge-backend/internal/models"
)

// PendingStore is the durable record of jobs awaiting external
// completion. Implemented by supabase.PendingJobStore.
type PendingStore interface {
	Create(ctx context.Context, job *models.PendingJob) error
	Get(ctx context.Context, taskID string) (*models.PendingJob, error)
	FetchAll(ctx context.Context, userID uuid.UUID) ([]models.PendingJob, error)
	FetchOpen(ctx context.Context) ([]models.PendingJob, error)
	FetchStuck(ctx context.Context, olderThan time.Duration) ([]models.PendingJob, error)
	DeleteOrphaned(ctx context.Context, olderThan time.Duration) (int64, error)
	UpdateStatus(ctx context.Context, taskID string, status models.JobStatus, resultURL, errMsg string) error
	Delete(ctx context.Context, taskID string) error
}

// MediaStore records terminal artifacts. Implemented by
// supabase.MediaMetadataStore.
type MediaStore interface {
	Insert(ctx context.Context, m *models.MediaMetadata) error
}

// BlobStore uploads artifact bytes and returns a public URL.
// Implemented by supabase.StorageClient.
type BlobStore interface {
	Upload(path string, data []byte) (string, error)
}

// ChangeFeed delivers row-level pending_jobs changes. Implemented by
// supabase.RealtimeClient.
type ChangeFeed interface {
	SubscribePendingJobs(ctx context.Context, fn func(action string, job models.PendingJob)) error
}

// Config carries the lifecycle tunables. Zero values are replaced by
// the defaults below.
type Config struct {
	// Submission deadlines. Video gets more headroom since providers
	// hold the connection for minutes.
	ImageSubmitTimeout time.Duration
	VideoSubmitTimeout time.Duration

	// Artifact download.
	ImageDownloadTimeout time.Duration
	VideoDownloadTimeout time.Duration
	DownloadAttempts     int
	DownloadRetryDelay   time.Duration // linear: delay * attempt

	// Metadata insert retry: base * 2^attempt.
	MetadataAttempts  int
	MetadataBaseDelay time.Duration

	// Reconciler sweeps. StuckAfter is deliberately uniform across
	// media kinds.
	StuckAfter   time.Duration
	OrphanAfter  time.Duration
	PollInterval time.Duration

	// CallbackURL is the publicly reachable webhook endpoint given to
	// providers in webhook mode.
	CallbackURL string
}

func (c Config) withDefaults() Config {
	if c.ImageSubmitTimeout == 0 {
		c.ImageSubmitTimeout = 300 * time.Second
	}
	if c.VideoSubmitTimeout == 0 {
		c.VideoSubmitTimeout = 650 * time.Second
	}
	if c.ImageDownloadTimeout == 0 {
		c.ImageDownloadTimeout = 30 * time.Second
	}
	if c.VideoDownloadTimeout == 0 {
		c.VideoDownloadTimeout = 120 * time.Second
	}
	if c.DownloadAttempts == 0 {
		c.DownloadAttempts = 3
	}
	if c.DownloadRetryDelay == 0 {
		c.DownloadRetryDelay = 2 * time.Second
	}
	if c.MetadataAttempts == 0 {
		c.MetadataAttempts = 3
	}
	if c.MetadataBaseDelay == 0 {
		c.MetadataBaseDelay = 2 * time.Second
	}
	if c.StuckAfter == 0 {
		c.StuckAfter = 10 * time.Minute
	}
	if c.OrphanAfter == 0 {
		c.OrphanAfter = 30 * time.Minute
	}
	if c.PollInterval == 0 {
		c.PollInterval = 30 * time.Second
	}
	return c
}

func (c Config) submitTimeout(kind models.MediaKind) time.Duration {
	if kind == models.MediaVideo {
		return c.VideoSubmitTimeout
	}
	return c.ImageSubmitTimeout
}

func (c Config) downloadTimeout(kind models.MediaKind) time.Duration {
	if kind == models.MediaVideo {
		return c.VideoDownloadTimeout
	}
	return c.ImageDownloadTimeout
}
