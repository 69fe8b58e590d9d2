package supabase

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"mediaforge-backend/internal/models"
)

var ErrNotFound = errors.New("not found")

// DatabaseClient owns the direct PostgreSQL connection and the stores
// built on top of it.
type DatabaseClient struct {
	db          *sql.DB
	PendingJobs *PendingJobStore
	Media       *MediaMetadataStore
}

func NewDatabaseClient(connectionString string) (*DatabaseClient, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DatabaseClient{
		db:          db,
		PendingJobs: &PendingJobStore{db: db},
		Media:       &MediaMetadataStore{db: db},
	}, nil
}

func (d *DatabaseClient) Close() error {
	return d.db.Close()
}

// PendingJobStore is the durable record of jobs awaiting external
// completion.
type PendingJobStore struct {
	db *sql.DB
}

const pendingJobColumns = `task_id, user_id, provider, kind, status, result_url, error_message, metadata, device_token, created_at, updated_at, completed_at`

func (s *PendingJobStore) Create(ctx context.Context, job *models.PendingJob) error {
	metadataJSON, err := json.Marshal(job.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pending_jobs (task_id, user_id, provider, kind, status, metadata, device_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, job.TaskID, job.UserID, job.Provider, job.Kind, job.Status, metadataJSON, job.DeviceToken)
	if err != nil {
		return fmt.Errorf("failed to create pending job: %w", err)
	}
	return nil
}

func (s *PendingJobStore) Get(ctx context.Context, taskID string) (*models.PendingJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+pendingJobColumns+`
		FROM pending_jobs
		WHERE task_id = $1
	`, taskID)
	job, err := scanPendingJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get pending job: %w", err)
	}
	return job, nil
}

func (s *PendingJobStore) FetchAll(ctx context.Context, userID uuid.UUID) ([]models.PendingJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pendingJobColumns+`
		FROM pending_jobs
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending jobs: %w", err)
	}
	defer rows.Close()
	return collectPendingJobs(rows)
}

// FetchOpen returns every pending job row, used by the reconciler's
// catch-up pass at startup.
func (s *PendingJobStore) FetchOpen(ctx context.Context) ([]models.PendingJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pendingJobColumns+`
		FROM pending_jobs
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch open jobs: %w", err)
	}
	defer rows.Close()
	return collectPendingJobs(rows)
}

// FetchStuck returns non-terminal jobs older than the given window.
func (s *PendingJobStore) FetchStuck(ctx context.Context, olderThan time.Duration) ([]models.PendingJob, error) {
	cutoff := time.Now().Add(-olderThan)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pendingJobColumns+`
		FROM pending_jobs
		WHERE status IN ('pending', 'processing') AND created_at < $1
		ORDER BY created_at ASC
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stuck jobs: %w", err)
	}
	defer rows.Close()
	return collectPendingJobs(rows)
}

// DeleteOrphaned removes rows older than the given window regardless of
// status.
func (s *PendingJobStore) DeleteOrphaned(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM pending_jobs
		WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete orphaned jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// UpdateStatus moves a job to a new status, recording result URL and
// error text when present. Terminal statuses also stamp completed_at.
func (s *PendingJobStore) UpdateStatus(ctx context.Context, taskID string, status models.JobStatus, resultURL, errMsg string) error {
	var completedAt sql.NullTime
	if status.Terminal() {
		completedAt = sql.NullTime{Time: time.Now(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_jobs
		SET status = $2,
		    result_url = COALESCE(NULLIF($3, ''), result_url),
		    error_message = COALESCE(NULLIF($4, ''), error_message),
		    updated_at = NOW(),
		    completed_at = COALESCE($5, completed_at)
		WHERE task_id = $1
	`, taskID, status, resultURL, errMsg, completedAt)
	if err != nil {
		return fmt.Errorf("failed to update pending job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PendingJobStore) Delete(ctx context.Context, taskID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM pending_jobs
		WHERE task_id = $1
	`, taskID)
	if err != nil {
		return fmt.Errorf("failed to delete pending job: %w", err)
	}
	return nil
}

func collectPendingJobs(rows *sql.Rows) ([]models.PendingJob, error) {
	var jobs []models.PendingJob
	for rows.Next() {
		job, err := scanPendingJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPendingJob(row rowScanner) (*models.PendingJob, error) {
	var (
		job      models.PendingJob
		metadata []byte
	)
	if err := row.Scan(
		&job.TaskID, &job.UserID, &job.Provider, &job.Kind, &job.Status,
		&job.ResultURL, &job.ErrorMessage, &metadata, &job.DeviceToken,
		&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	); err != nil {
		return nil, err
	}

	meta, err := models.ParseJobMetadata(metadata)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", job.TaskID, err)
	}
	job.Metadata = meta
	return &job, nil
}

// MediaMetadataStore is the append-only artifact record table.
type MediaMetadataStore struct {
	db *sql.DB
}

func (s *MediaMetadataStore) Insert(ctx context.Context, m *models.MediaMetadata) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO media_metadata (
			id, user_id, kind, provider, url, thumbnail_url, model, title,
			prompt, aspect_ratio, endpoint, cost, status, error_message,
			duration_sec, resolution, file_ext
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, m.ID, m.UserID, m.Kind, m.Provider, m.URL, m.ThumbnailURL, m.Model, m.Title,
		m.Prompt, m.AspectRatio, m.Endpoint, m.Cost, m.Status, m.ErrorMessage,
		m.DurationSec, m.Resolution, m.FileExt)
	if err != nil {
		return fmt.Errorf("failed to insert media metadata: %w", err)
	}
	return nil
}
