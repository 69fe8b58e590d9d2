package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mediaforge-backend/internal/media"
	"mediaforge-backend/internal/models"
	"mediaforge-backend/internal/provider"
)

// Submission carries the per-attempt context around one GenerationSpec.
type Submission struct {
	UserID      uuid.UUID
	Mode        models.SubmitMode
	DeviceToken string
	SourceImage []byte

	// Progress receives monotonically non-decreasing values in [0,1].
	// Nil is allowed.
	Progress func(float64)
}

// SubmissionTask turns a GenerationSpec into a stored artifact (poll
// mode) or a registered pending job (webhook mode).
type SubmissionTask struct {
	cfg        Config
	providers  *provider.Registry
	pending    PendingStore
	mediaStore MediaStore
	blobs      BlobStore
	httpClient *http.Client
	log        zerolog.Logger
}

func NewSubmissionTask(cfg Config, providers *provider.Registry, pending PendingStore, mediaStore MediaStore, blobs BlobStore, log zerolog.Logger) *SubmissionTask {
	return &SubmissionTask{
		cfg:        cfg.withDefaults(),
		providers:  providers,
		pending:    pending,
		mediaStore: mediaStore,
		blobs:      blobs,
		httpClient: &http.Client{},
		log:        log.With().Str("component", "submission").Logger(),
	}
}

// Run executes one submission attempt. The returned SubmitResult is one
// of Success, Queued or Failure; errors never escape unclassified.
func (t *SubmissionTask) Run(ctx context.Context, spec models.GenerationSpec, sub Submission) SubmitResult {
	client, err := t.providers.Get(spec.Provider)
	if err != nil {
		return Failure{Err: newTaskError(ErrProvider, "unknown provider", err)}
	}

	if sub.Mode == models.ModeWebhook {
		return t.runWebhook(ctx, client, spec, sub)
	}
	return t.runPoll(ctx, client, spec, sub)
}

func (t *SubmissionTask) runPoll(ctx context.Context, client provider.Client, spec models.GenerationSpec, sub Submission) SubmitResult {
	log := t.log.With().
		Str("provider", string(spec.Provider)).
		Str("kind", string(spec.Kind)).
		Str("mode", "poll").
		Logger()

	t.report(sub, 0.1)

	submitCtx, cancel := context.WithTimeout(ctx, t.cfg.submitTimeout(spec.Kind))
	out, err := client.Submit(submitCtx, spec)
	cancel()
	if err != nil {
		log.Warn().Err(err).Msg("provider submit failed")
		return Failure{Err: Classify(err)}
	}

	t.report(sub, 0.45)

	data, err := fetchArtifact(ctx, t.httpClient, t.cfg, spec.Kind, out.ArtifactURL)
	if err != nil {
		log.Warn().Err(err).Str("url", out.ArtifactURL).Msg("artifact download failed")
		return Failure{Err: Classify(err)}
	}

	t.report(sub, 0.75)

	artifactID := uuid.New()
	ext := media.ExtensionFor(data)

	var thumbURL string
	if spec.Kind == models.MediaVideo {
		// Best-effort: a missing thumbnail never fails the task.
		if thumb, err := media.Thumbnail(data); err != nil {
			log.Warn().Err(err).Msg("thumbnail synthesis failed")
		} else {
			thumbPath := storagePath(sub.UserID, artifactID.String()+"_thumb.jpg")
			if url, err := t.blobs.Upload(thumbPath, thumb); err != nil {
				log.Warn().Err(err).Msg("thumbnail upload failed")
			} else {
				thumbURL = url
			}
		}
	}

	artifactURL, err := t.blobs.Upload(storagePath(sub.UserID, artifactID.String()+ext), data)
	if err != nil {
		log.Error().Err(err).Msg("artifact upload failed")
		return Failure{Err: newTaskError(ErrPersistence, "could not save the generated file", err)}
	}

	t.report(sub, 0.9)

	meta := buildMetadata(spec, sub.UserID, artifactURL, thumbURL, ext, models.MediaStatusCompleted, "")
	if err := persistMetadata(ctx, t.mediaStore, t.cfg, meta); err != nil {
		// The artifact exists in storage but the user cannot see it.
		// Surfaced as a distinct condition so operators can reconcile.
		log.Error().Err(err).Str("artifact_url", artifactURL).Msg("metadata insert exhausted retries; artifact stored but unrecorded")
		return Failure{Err: newTaskError(ErrPersistence, "the file was generated but could not be recorded", err)}
	}

	t.report(sub, 1.0)
	log.Info().Str("artifact_url", artifactURL).Msg("generation completed")
	return Success{ArtifactURL: artifactURL, ThumbnailURL: thumbURL}
}

func (t *SubmissionTask) runWebhook(ctx context.Context, client provider.Client, spec models.GenerationSpec, sub Submission) SubmitResult {
	log := t.log.With().
		Str("provider", string(spec.Provider)).
		Str("kind", string(spec.Kind)).
		Str("mode", "webhook").
		Logger()

	t.report(sub, 0.1)

	taskID := fmt.Sprintf("%s_%s", spec.Provider, uuid.NewString())
	job := &models.PendingJob{
		TaskID:   taskID,
		UserID:   sub.UserID,
		Provider: spec.Provider,
		Kind:     spec.Kind,
		Status:   models.StatusPending,
		Metadata: models.JobMetadata{
			Prompt:      spec.Prompt,
			Model:       spec.Model,
			Title:       spec.Title,
			Kind:        spec.Kind,
			AspectRatio: spec.AspectRatio,
			Resolution:  spec.Resolution,
			DurationSec: spec.DurationSec,
			Cost:        spec.Cost,
			Endpoint:    spec.Endpoint,
		},
	}
	if sub.DeviceToken != "" {
		job.DeviceToken = sql.NullString{String: sub.DeviceToken, Valid: true}
	}

	if err := t.pending.Create(ctx, job); err != nil {
		log.Error().Err(err).Msg("pending job insert failed")
		return Failure{Err: newTaskError(ErrPersistence, "could not register the job", err)}
	}

	if err := client.SubmitWithCallback(ctx, spec, taskID, t.cfg.CallbackURL); err != nil {
		// Compensate: the row must not outlive the failed submission.
		if delErr := t.pending.Delete(context.WithoutCancel(ctx), taskID); delErr != nil {
			log.Error().Err(delErr).Str("task_id", taskID).Msg("compensating delete failed; orphan sweep will collect the row")
		}
		log.Warn().Err(err).Msg("provider submit failed")
		return Failure{Err: Classify(err)}
	}

	// True remote progress is unobservable; the coordinator pins the
	// notification at the fixed processing marker.
	t.report(sub, 0.5)
	log.Info().Str("task_id", taskID).Msg("job queued for webhook delivery")
	return Queued{TaskID: taskID}
}

func (t *SubmissionTask) report(sub Submission, value float64) {
	if sub.Progress != nil {
		sub.Progress(value)
	}
}
