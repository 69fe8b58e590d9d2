package jobs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"mediaforge-backend/internal/media"
	"mediaforge-backend/internal/models"
	"mediaforge-backend/internal/provider"
	"mediaforge-backend/internal/supabase"
)

type eventKind int

const (
	evRegister eventKind = iota
	evRelease
	evChange
	evStuck
	evDone
)

type event struct {
	kind    eventKind
	taskID  string
	notifID uuid.UUID
	job     *models.PendingJob
}

// Reconciler drives every pending_jobs row to a terminal outcome
// exactly once. All bookkeeping lives in maps owned by a single
// goroutine; change-feed events, webhook nudges and sweeps all funnel
// through the same channel, so redeliveries from any source collapse.
type Reconciler struct {
	cfg        Config
	pending    PendingStore
	mediaStore MediaStore
	blobs      BlobStore
	feed       ChangeFeed
	providers  *provider.Registry
	notifier   *Notifier
	httpClient *http.Client
	log        zerolog.Logger

	events chan event
	cron   *cron.Cron
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Owned by the run loop. taskNotif links rows to notifications,
	// inFlight guards rows being finalized, done absorbs redeliveries.
	taskNotif map[string]uuid.UUID
	inFlight  map[string]struct{}
	done      map[string]struct{}
}

func NewReconciler(cfg Config, pending PendingStore, mediaStore MediaStore, blobs BlobStore, feed ChangeFeed, providers *provider.Registry, notifier *Notifier, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		cfg:        cfg.withDefaults(),
		pending:    pending,
		mediaStore: mediaStore,
		blobs:      blobs,
		feed:       feed,
		providers:  providers,
		notifier:   notifier,
		httpClient: &http.Client{},
		log:        log.With().Str("component", "reconciler").Logger(),
		events:     make(chan event, 64),
		taskNotif:  make(map[string]uuid.UUID),
		inFlight:   make(map[string]struct{}),
		done:       make(map[string]struct{}),
	}
}

// Start runs the recovery sequence and launches the loop and sweeps.
// Sweep and catch-up failures are logged, not fatal: the cron retries.
func (r *Reconciler) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)

	if n, err := r.pending.DeleteOrphaned(ctx, r.cfg.OrphanAfter); err != nil {
		r.log.Error().Err(err).Msg("orphan sweep failed")
	} else if n > 0 {
		r.log.Info().Int64("count", n).Msg("deleted orphaned jobs")
	}

	go r.run(ctx)

	r.sweepStuck(ctx)
	r.catchUp(ctx)

	if r.feed != nil {
		if err := r.feed.SubscribePendingJobs(ctx, func(action string, job models.PendingJob) {
			if action == "DELETE" {
				return
			}
			r.send(ctx, event{kind: evChange, job: &job})
		}); err != nil {
			r.log.Warn().Err(err).Msg("change feed unavailable, relying on sweeps")
		}
	}

	r.cron = cron.New()
	if _, err := r.cron.AddFunc(fmt.Sprintf("@every %s", r.cfg.PollInterval), func() { r.sweepStuck(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule stuck sweep: %w", err)
	}
	if _, err := r.cron.AddFunc("@every 5m", func() {
		if n, err := r.pending.DeleteOrphaned(ctx, r.cfg.OrphanAfter); err != nil {
			r.log.Error().Err(err).Msg("orphan sweep failed")
		} else if n > 0 {
			r.log.Info().Int64("count", n).Msg("deleted orphaned jobs")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule orphan sweep: %w", err)
	}
	r.cron.Start()
	return nil
}

// Stop cancels the loop and waits for in-flight finalizations.
func (r *Reconciler) Stop() {
	if r.cron != nil {
		r.cron.Stop()
	}
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// RegisterTask links a queued task to its notification so a later
// terminal event resolves without the metadata fallback.
func (r *Reconciler) RegisterTask(ctx context.Context, taskID string, notifID uuid.UUID) {
	r.send(ctx, event{kind: evRegister, taskID: taskID, notifID: notifID})
}

// ReleaseTask drops the link, e.g. after a cancel that beat submission.
func (r *Reconciler) ReleaseTask(ctx context.Context, taskID string) {
	r.send(ctx, event{kind: evRelease, taskID: taskID})
}

// Notify nudges the reconciler about a row the webhook handler just
// updated. The row read happens here, on the caller's goroutine.
func (r *Reconciler) Notify(ctx context.Context, taskID string) {
	job, err := r.pending.Get(ctx, taskID)
	if err != nil {
		if !errors.Is(err, supabase.ErrNotFound) {
			r.log.Error().Err(err).Str("task_id", taskID).Msg("failed to load nudged job")
		}
		return
	}
	r.send(ctx, event{kind: evChange, job: job})
}

func (r *Reconciler) send(ctx context.Context, ev event) {
	select {
	case r.events <- ev:
	case <-ctx.Done():
	}
}

func (r *Reconciler) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.events:
			switch ev.kind {
			case evRegister:
				if _, absorbed := r.done[ev.taskID]; !absorbed {
					r.taskNotif[ev.taskID] = ev.notifID
				}
			case evRelease:
				delete(r.taskNotif, ev.taskID)
			case evChange:
				if ev.job.Status.Terminal() {
					r.beginFinalize(ctx, *ev.job, false)
				}
			case evStuck:
				r.beginFinalize(ctx, *ev.job, true)
			case evDone:
				delete(r.inFlight, ev.taskID)
				delete(r.taskNotif, ev.taskID)
				r.done[ev.taskID] = struct{}{}
			}
		}
	}
}

// beginFinalize claims the row and hands the I/O to a worker. Runs on
// the loop goroutine; the guard sets make the claim race-free.
func (r *Reconciler) beginFinalize(ctx context.Context, job models.PendingJob, expired bool) {
	id := job.TaskID
	if _, ok := r.done[id]; ok {
		return
	}
	if _, ok := r.inFlight[id]; ok {
		return
	}
	r.inFlight[id] = struct{}{}
	notifID := r.resolveNotification(job)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if expired {
			r.expire(ctx, job, notifID)
		} else {
			r.finalize(ctx, job, notifID)
		}
		r.send(ctx, event{kind: evDone, taskID: id})
	}()
}

// resolveNotification finds the notification for a row: the registered
// link first, then a metadata match for tasks registered before a
// restart, then a fresh record so the outcome is never silent.
func (r *Reconciler) resolveNotification(job models.PendingJob) uuid.UUID {
	if id, ok := r.taskNotif[job.TaskID]; ok {
		return id
	}
	md := job.Metadata
	if id, ok := r.notifier.FindByMetadata(job.UserID, md.Title, md.Model, md.Prompt); ok {
		r.taskNotif[job.TaskID] = id
		return id
	}
	id := r.notifier.Show(job.UserID, md.Title, "Processing your request", md.Model, md.Prompt)
	r.taskNotif[job.TaskID] = id
	return id
}

func (r *Reconciler) finalize(ctx context.Context, job models.PendingJob, notifID uuid.UUID) {
	switch job.Status {
	case models.StatusCompleted:
		r.finalizeCompleted(ctx, job, notifID)
	case models.StatusFailed:
		msg := "generation failed"
		if job.ErrorMessage.Valid && job.ErrorMessage.String != "" {
			msg = job.ErrorMessage.String
		}
		r.finalizeFailed(ctx, job, notifID, msg)
	}
}

// finalizeCompleted materializes the remote result: download, thumbnail
// for video, upload to storage, media row, then row deletion. Any
// failure downgrades the job to a failed outcome; the row still gets
// deleted so it cannot be processed twice.
func (r *Reconciler) finalizeCompleted(ctx context.Context, job models.PendingJob, notifID uuid.UUID) {
	log := r.log.With().Str("task_id", job.TaskID).Logger()

	if !job.ResultURL.Valid || job.ResultURL.String == "" {
		log.Error().Msg("completed job carries no result url")
		r.finalizeFailed(ctx, job, notifID, "the provider reported success without a result")
		return
	}

	data, err := fetchArtifact(ctx, r.httpClient, r.cfg, job.Kind, job.ResultURL.String)
	if err != nil {
		log.Error().Err(err).Msg("result download failed")
		r.finalizeFailed(ctx, job, notifID, Classify(err).Message)
		return
	}

	artifactID := uuid.New()
	ext := media.ExtensionFor(data)

	var thumbURL string
	if job.Kind == models.MediaVideo {
		if thumb, terr := media.Thumbnail(data); terr != nil {
			log.Warn().Err(terr).Msg("thumbnail synthesis failed")
		} else if url, uerr := r.blobs.Upload(storagePath(job.UserID, artifactID.String()+"_thumb.jpg"), thumb); uerr != nil {
			log.Warn().Err(uerr).Msg("thumbnail upload failed")
		} else {
			thumbURL = url
		}
	}

	artifactURL, err := r.blobs.Upload(storagePath(job.UserID, artifactID.String()+ext), data)
	if err != nil {
		log.Error().Err(err).Msg("artifact upload failed")
		r.finalizeFailed(ctx, job, notifID, "could not save the generated file")
		return
	}

	meta := buildMetadata(specFromJob(job), job.UserID, artifactURL, thumbURL, ext, models.MediaStatusCompleted, "")
	if err := persistMetadata(ctx, r.mediaStore, r.cfg, meta); err != nil {
		log.Error().Err(err).Str("artifact_url", artifactURL).Msg("metadata insert exhausted retries; artifact stored but unrecorded")
		r.finalizeFailed(ctx, job, notifID, "the file was generated but could not be recorded")
		return
	}

	r.notifier.MarkCompleted(notifID, readyMessage(job.Kind), thumbURL)
	r.deleteRow(ctx, job.TaskID)
	log.Info().Str("artifact_url", artifactURL).Msg("job reconciled")
}

// finalizeFailed marks the notification before touching the database so
// the user learns the outcome even if persistence misbehaves.
func (r *Reconciler) finalizeFailed(ctx context.Context, job models.PendingJob, notifID uuid.UUID, msg string) {
	r.notifier.MarkFailed(notifID, msg)

	meta := buildMetadata(specFromJob(job), job.UserID, "", "", "", models.MediaStatusFailed, msg)
	if err := persistMetadata(ctx, r.mediaStore, r.cfg, meta); err != nil {
		r.log.Error().Err(err).Str("task_id", job.TaskID).Msg("failed outcome could not be recorded")
	}
	r.deleteRow(ctx, job.TaskID)
	r.log.Info().Str("task_id", job.TaskID).Str("error", msg).Msg("job reconciled as failed")
}

// expire handles a row past the stuck window. Providers that can be
// polled get one probe first; a terminal probe result wins over the
// timeout verdict.
func (r *Reconciler) expire(ctx context.Context, job models.PendingJob, notifID uuid.UUID) {
	log := r.log.With().Str("task_id", job.TaskID).Logger()

	client, err := r.providers.Get(job.Provider)
	if err == nil && client.SupportsPoll() {
		probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		st, perr := client.PollStatus(probeCtx, providerTaskID(job))
		cancel()
		if perr != nil {
			log.Warn().Err(perr).Msg("status probe failed")
		} else {
			switch st.Status {
			case models.StatusCompleted:
				job.Status = models.StatusCompleted
				if st.ResultURL != "" {
					job.ResultURL.String = st.ResultURL
					job.ResultURL.Valid = true
				}
				log.Info().Msg("stuck job completed on probe")
				r.finalizeCompleted(ctx, job, notifID)
				return
			case models.StatusFailed:
				msg := st.ErrorMessage
				if msg == "" {
					msg = "generation failed"
				}
				log.Info().Msg("stuck job failed on probe")
				r.finalizeFailed(ctx, job, notifID, msg)
				return
			}
		}
	}

	log.Warn().Dur("age", job.Age(time.Now())).Msg("job timed out")
	r.finalizeFailed(ctx, job, notifID, "the job took too long and was cancelled")
}

func (r *Reconciler) deleteRow(ctx context.Context, taskID string) {
	if err := r.pending.Delete(ctx, taskID); err != nil && !errors.Is(err, supabase.ErrNotFound) {
		// The orphan sweep collects the leftover.
		r.log.Error().Err(err).Str("task_id", taskID).Msg("failed to delete reconciled job")
	}
}

func (r *Reconciler) sweepStuck(ctx context.Context) {
	jobs, err := r.pending.FetchStuck(ctx, r.cfg.StuckAfter)
	if err != nil {
		r.log.Error().Err(err).Msg("stuck sweep failed")
		return
	}
	for i := range jobs {
		r.send(ctx, event{kind: evStuck, job: &jobs[i]})
	}
}

// catchUp reconciles rows that turned terminal while the process was
// down or between a webhook write and a crash.
func (r *Reconciler) catchUp(ctx context.Context) {
	jobs, err := r.pending.FetchOpen(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("catch-up scan failed")
		return
	}
	for i := range jobs {
		if jobs[i].Status.Terminal() {
			r.send(ctx, event{kind: evChange, job: &jobs[i]})
		}
	}
}

// providerTaskID is the identifier the provider knows the job by. Rows
// created locally store the remote id in metadata.
func providerTaskID(job models.PendingJob) string {
	if job.Metadata.SecondaryID != "" {
		return job.Metadata.SecondaryID
	}
	return job.TaskID
}

func specFromJob(job models.PendingJob) models.GenerationSpec {
	md := job.Metadata
	return models.GenerationSpec{
		Provider:    job.Provider,
		Model:       md.Model,
		Kind:        job.Kind,
		Prompt:      md.Prompt,
		Title:       md.Title,
		AspectRatio: md.AspectRatio,
		DurationSec: md.DurationSec,
		Resolution:  md.Resolution,
		Endpoint:    md.Endpoint,
		Cost:        md.Cost,
	}
}

func readyMessage(kind models.MediaKind) string {
	if kind == models.MediaVideo {
		return "Your video is ready"
	}
	return "Your image is ready"
}
