package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"mediaforge-backend/internal/models"
)

// fetchArtifact downloads a result with bounded retry on transient
// failures and empty bodies. Some providers signal completion before
// the file is readable at the returned URL.
func fetchArtifact(ctx context.Context, hc *http.Client, cfg Config, kind models.MediaKind, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= cfg.DownloadAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(time.Duration(attempt-1) * cfg.DownloadRetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		data, err := downloadOnce(ctx, hc, cfg.downloadTimeout(kind), url)
		if err != nil {
			lastErr = err
			if transient(err) {
				continue
			}
			return nil, err
		}
		if len(data) == 0 {
			lastErr = newTaskError(ErrDecode, "the generated file was empty", nil)
			continue
		}
		return data, nil
	}
	return nil, lastErr
}

func downloadOnce(ctx context.Context, hc *http.Client, timeout time.Duration, url string) ([]byte, error) {
	dlCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(dlCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download artifact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newTaskError(ErrDecode, fmt.Sprintf("artifact download returned status %d", resp.StatusCode), nil)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	return data, nil
}

// persistMetadata inserts with exponential backoff. The caller decides
// what an exhausted retry means; here it is just the last error.
func persistMetadata(ctx context.Context, store MediaStore, cfg Config, meta *models.MediaMetadata) error {
	var lastErr error
	for attempt := 0; attempt < cfg.MetadataAttempts; attempt++ {
		if attempt > 0 {
			delay := cfg.MetadataBaseDelay * (1 << (attempt - 1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := store.Insert(ctx, meta); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

func storagePath(userID uuid.UUID, filename string) string {
	return fmt.Sprintf("users/%s/media/%s", userID, filename)
}

func buildMetadata(spec models.GenerationSpec, userID uuid.UUID, artifactURL, thumbURL, ext, status, errMsg string) *models.MediaMetadata {
	m := &models.MediaMetadata{
		ID:          uuid.New(),
		UserID:      userID,
		Kind:        spec.Kind,
		Provider:    spec.Provider,
		URL:         artifactURL,
		Model:       spec.Model,
		Title:       spec.Title,
		Prompt:      spec.Prompt,
		AspectRatio: spec.AspectRatio,
		Endpoint:    spec.Endpoint,
		Cost:        spec.Cost,
		Status:      status,
	}
	if thumbURL != "" {
		m.ThumbnailURL = sql.NullString{String: thumbURL, Valid: true}
	}
	if errMsg != "" {
		m.ErrorMessage = sql.NullString{String: errMsg, Valid: true}
	}
	if spec.Kind == models.MediaVideo {
		if spec.DurationSec > 0 {
			m.DurationSec = sql.NullInt64{Int64: int64(spec.DurationSec), Valid: true}
		}
		if spec.Resolution != "" {
			m.Resolution = sql.NullString{String: spec.Resolution, Valid: true}
		}
		if ext != "" {
			m.FileExt = sql.NullString{String: ext, Valid: true}
		}
	}
	return m
}
