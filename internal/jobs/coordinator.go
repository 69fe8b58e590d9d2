package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mediaforge-backend/internal/models"
)

type taskHandle struct {
	cancel    context.CancelFunc
	notifID   uuid.UUID
	submitted atomic.Bool
}

// Coordinator owns the in-process lifecycle of generation tasks: it
// shows the notification, runs the SubmissionTask under a cancelable
// context and hands webhook-mode tasks over to the reconciler.
type Coordinator struct {
	task       *SubmissionTask
	reconciler *Reconciler
	notifier   *Notifier
	log        zerolog.Logger

	baseCtx context.Context

	mu      sync.Mutex
	handles map[uuid.UUID]*taskHandle
	wg      sync.WaitGroup
}

func NewCoordinator(ctx context.Context, task *SubmissionTask, reconciler *Reconciler, notifier *Notifier, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		task:       task,
		reconciler: reconciler,
		notifier:   notifier,
		log:        log.With().Str("component", "coordinator").Logger(),
		baseCtx:    ctx,
		handles:    make(map[uuid.UUID]*taskHandle),
	}
}

// Start launches a generation and returns immediately with the local
// task id and the notification tracking it.
func (c *Coordinator) Start(spec models.GenerationSpec, sub Submission) (uuid.UUID, uuid.UUID) {
	notifID := c.notifier.Show(sub.UserID, spec.Title, "Starting generation", spec.Model, spec.Prompt)
	c.notifier.SetRetryPayload(notifID, RetryPayload{
		Spec:        spec,
		SourceImage: sub.SourceImage,
		UserID:      sub.UserID,
		Mode:        sub.Mode,
		DeviceToken: sub.DeviceToken,
	})
	return c.launch(spec, sub, notifID), notifID
}

// Retry reruns the submission recorded on a failed notification,
// reusing the notification so the user keeps a single thread of
// progress. Returns false when the notification holds no payload or is
// not in a failed state.
func (c *Coordinator) Retry(notifID uuid.UUID) (uuid.UUID, bool) {
	payload, ok := c.notifier.RetryPayload(notifID)
	if !ok {
		return uuid.Nil, false
	}
	if !c.notifier.ResetForRetry(notifID) {
		return uuid.Nil, false
	}
	sub := Submission{
		UserID:      payload.UserID,
		Mode:        payload.Mode,
		DeviceToken: payload.DeviceToken,
		SourceImage: payload.SourceImage,
	}
	return c.launch(payload.Spec, sub, notifID), true
}

// Cancel stops a task that has not reached the provider yet. Once the
// job is submitted remotely the provider keeps running it, so the call
// only reports that it is too late.
func (c *Coordinator) Cancel(localID uuid.UUID) (found, alreadySubmitted bool) {
	c.mu.Lock()
	h, ok := c.handles[localID]
	if !ok {
		c.mu.Unlock()
		return false, false
	}
	if h.submitted.Load() {
		c.mu.Unlock()
		return true, true
	}
	delete(c.handles, localID)
	c.mu.Unlock()

	h.cancel()
	c.notifier.Dismiss(h.notifID)
	return true, false
}

// Wait blocks until every launched task goroutine returns.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) launch(spec models.GenerationSpec, sub Submission, notifID uuid.UUID) uuid.UUID {
	localID := uuid.New()
	ctx, cancel := context.WithCancel(c.baseCtx)
	h := &taskHandle{cancel: cancel, notifID: notifID}

	c.mu.Lock()
	c.pruneLocked()
	c.handles[localID] = h
	c.mu.Unlock()

	sub.Progress = func(v float64) { c.notifier.UpdateProgress(notifID, v) }

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		c.runTask(ctx, localID, h, spec, sub)
	}()
	return localID
}

func (c *Coordinator) runTask(ctx context.Context, localID uuid.UUID, h *taskHandle, spec models.GenerationSpec, sub Submission) {
	log := c.log.With().
		Str("local_task_id", localID.String()).
		Str("provider", string(spec.Provider)).
		Logger()

	res := c.task.Run(ctx, spec, sub)
	switch v := res.(type) {
	case Success:
		c.notifier.MarkCompleted(h.notifID, readyMessage(spec.Kind), v.ThumbnailURL)
		c.drop(localID)
	case Queued:
		// Terminal handling moves to the reconciler; the handle stays so
		// Cancel can answer "already submitted".
		h.submitted.Store(true)
		c.reconciler.RegisterTask(c.baseCtx, v.TaskID, h.notifID)
		c.notifier.UpdateMessage(h.notifID, "Processing remotely")
		log.Info().Str("task_id", v.TaskID).Msg("task queued")
	case Failure:
		if errors.Is(ctx.Err(), context.Canceled) {
			// User cancel already dismissed the notification.
			log.Info().Msg("task cancelled")
		} else {
			c.notifier.MarkFailed(h.notifID, v.Err.Message)
			log.Warn().Err(v.Err).Str("kind", v.Err.Kind.String()).Msg("task failed")
		}
		c.drop(localID)
	}
}

func (c *Coordinator) drop(localID uuid.UUID) {
	c.mu.Lock()
	delete(c.handles, localID)
	c.mu.Unlock()
}

// pruneLocked removes submitted handles whose notification has since
// reached a terminal state or been dismissed.
func (c *Coordinator) pruneLocked() {
	for id, h := range c.handles {
		if !h.submitted.Load() {
			continue
		}
		rec, ok := c.notifier.Get(h.notifID)
		if !ok || rec.Terminal() {
			delete(c.handles, id)
		}
	}
}
