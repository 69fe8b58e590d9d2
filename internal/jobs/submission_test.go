package jobs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediaforge-backend/internal/models"
	"mediaforge-backend/internal/provider"
)

func newSubmissionFixture(t *testing.T, p *fakeProvider) (*SubmissionTask, *fakePendingStore, *fakeMediaStore, *fakeBlobStore) {
	t.Helper()
	pending := newFakePendingStore()
	mediaStore := &fakeMediaStore{}
	blobs := newFakeBlobStore()
	task := NewSubmissionTask(fastConfig(), provider.NewRegistry(p), pending, mediaStore, blobs, zerolog.Nop())
	return task, pending, mediaStore, blobs
}

func imageSpec() models.GenerationSpec {
	return models.GenerationSpec{
		Provider: models.ProviderFlux,
		Model:    "flux-pro",
		Kind:     models.MediaImage,
		Prompt:   "a sunset over mountains",
		Title:    "Sunset",
		Cost:     4,
	}
}

func TestSubmissionTask_PollSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("\x89PNG\r\n\x1a\nimagedata"))
	}))
	defer srv.Close()

	p := &fakeProvider{id: models.ProviderFlux, submitOut: &provider.SubmitOutput{ArtifactURL: srv.URL + "/result.png"}}
	task, pending, mediaStore, blobs := newSubmissionFixture(t, p)

	var progress []float64
	res := task.Run(context.Background(), imageSpec(), Submission{
		UserID:   uuid.New(),
		Mode:     models.ModePoll,
		Progress: func(v float64) { progress = append(progress, v) },
	})

	success, ok := res.(Success)
	require.True(t, ok, "expected Success, got %T", res)
	assert.NotEmpty(t, success.ArtifactURL)
	assert.Empty(t, success.ThumbnailURL)

	rows := mediaStore.all()
	require.Len(t, rows, 1)
	assert.Equal(t, models.MediaStatusCompleted, rows[0].Status)
	assert.Equal(t, "a sunset over mountains", rows[0].Prompt)
	assert.Equal(t, 1, blobs.count())
	assert.Equal(t, 0, pending.count())

	assert.Equal(t, []float64{0.1, 0.45, 0.75, 0.9, 1.0}, progress)
}

func TestSubmissionTask_MetadataRetrySucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("imagedata"))
	}))
	defer srv.Close()

	p := &fakeProvider{id: models.ProviderFlux, submitOut: &provider.SubmitOutput{ArtifactURL: srv.URL}}
	task, _, mediaStore, _ := newSubmissionFixture(t, p)
	mediaStore.failUntil = 2 // first two inserts fail, third lands

	res := task.Run(context.Background(), imageSpec(), Submission{UserID: uuid.New(), Mode: models.ModePoll})

	_, ok := res.(Success)
	require.True(t, ok, "expected Success, got %T", res)
	require.Len(t, mediaStore.all(), 1)
	assert.Equal(t, 3, mediaStore.calls)
}

func TestSubmissionTask_MetadataRetryExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("imagedata"))
	}))
	defer srv.Close()

	p := &fakeProvider{id: models.ProviderFlux, submitOut: &provider.SubmitOutput{ArtifactURL: srv.URL}}
	task, _, mediaStore, blobs := newSubmissionFixture(t, p)
	mediaStore.failUntil = 10

	res := task.Run(context.Background(), imageSpec(), Submission{UserID: uuid.New(), Mode: models.ModePoll})

	failure, ok := res.(Failure)
	require.True(t, ok, "expected Failure, got %T", res)
	assert.Equal(t, ErrPersistence, failure.Err.Kind)
	assert.Contains(t, failure.Err.Message, "could not be recorded")
	// The artifact upload happened before the insert gave up.
	assert.Equal(t, 1, blobs.count())
}

func TestSubmissionTask_EmptyBodyRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			return // empty body
		}
		w.Write([]byte("imagedata"))
	}))
	defer srv.Close()

	p := &fakeProvider{id: models.ProviderFlux, submitOut: &provider.SubmitOutput{ArtifactURL: srv.URL}}
	task, _, _, _ := newSubmissionFixture(t, p)

	res := task.Run(context.Background(), imageSpec(), Submission{UserID: uuid.New(), Mode: models.ModePoll})

	_, ok := res.(Success)
	require.True(t, ok, "expected Success, got %T", res)
	assert.Equal(t, 3, calls)
}

func TestSubmissionTask_ProviderErrorClassified(t *testing.T) {
	p := &fakeProvider{
		id:        models.ProviderFlux,
		submitErr: &provider.APIError{Provider: models.ProviderFlux, StatusCode: 422, Message: "prompt rejected"},
	}
	task, _, mediaStore, _ := newSubmissionFixture(t, p)

	res := task.Run(context.Background(), imageSpec(), Submission{UserID: uuid.New(), Mode: models.ModePoll})

	failure, ok := res.(Failure)
	require.True(t, ok, "expected Failure, got %T", res)
	assert.Equal(t, ErrProvider, failure.Err.Kind)
	assert.Contains(t, failure.Err.Message, "prompt rejected")
	assert.Empty(t, mediaStore.all())
}

func TestSubmissionTask_UnknownProvider(t *testing.T) {
	task, _, _, _ := newSubmissionFixture(t, &fakeProvider{id: models.ProviderFlux})

	spec := imageSpec()
	spec.Provider = models.ProviderKling
	res := task.Run(context.Background(), spec, Submission{UserID: uuid.New(), Mode: models.ModePoll})

	failure, ok := res.(Failure)
	require.True(t, ok)
	assert.Equal(t, ErrProvider, failure.Err.Kind)
}

func TestSubmissionTask_WebhookQueued(t *testing.T) {
	p := &fakeProvider{id: models.ProviderKling}
	task, pending, _, _ := newSubmissionFixture(t, p)

	userID := uuid.New()
	spec := models.GenerationSpec{
		Provider: models.ProviderKling,
		Model:    "kling-v1",
		Kind:     models.MediaVideo,
		Prompt:   "waves crashing",
		Title:    "Waves",
	}

	var progress []float64
	res := task.Run(context.Background(), spec, Submission{
		UserID:      userID,
		Mode:        models.ModeWebhook,
		DeviceToken: "dev-token-1",
		Progress:    func(v float64) { progress = append(progress, v) },
	})

	queued, ok := res.(Queued)
	require.True(t, ok, "expected Queued, got %T", res)
	assert.NotEmpty(t, queued.TaskID)

	job, found := pending.get(queued.TaskID)
	require.True(t, found)
	assert.Equal(t, models.StatusPending, job.Status)
	assert.Equal(t, userID, job.UserID)
	assert.Equal(t, "waves crashing", job.Metadata.Prompt)
	assert.Equal(t, "dev-token-1", job.DeviceToken.String)

	assert.Equal(t, 1, p.callbackCalls)
	assert.Equal(t, queued.TaskID, p.lastTaskID)
	assert.Equal(t, "https://api.test/webhooks/provider", p.lastCallbackURL)

	assert.Equal(t, []float64{0.1, 0.5}, progress)
}

func TestSubmissionTask_WebhookSubmitFailureCompensates(t *testing.T) {
	p := &fakeProvider{
		id:          models.ProviderKling,
		callbackErr: &provider.APIError{Provider: models.ProviderKling, StatusCode: 500, Message: "internal error"},
	}
	task, pending, _, _ := newSubmissionFixture(t, p)

	spec := models.GenerationSpec{Provider: models.ProviderKling, Kind: models.MediaVideo, Prompt: "waves"}
	res := task.Run(context.Background(), spec, Submission{UserID: uuid.New(), Mode: models.ModeWebhook})

	failure, ok := res.(Failure)
	require.True(t, ok, "expected Failure, got %T", res)
	assert.Equal(t, ErrProvider, failure.Err.Kind)

	// The pending row must not outlive the failed submission.
	assert.Equal(t, 0, pending.count())
}

func TestSubmissionTask_CancelledBeforeSubmit(t *testing.T) {
	p := &fakeProvider{id: models.ProviderFlux, submitDelay: time.Second, submitOut: &provider.SubmitOutput{ArtifactURL: "unused"}}
	task, _, mediaStore, _ := newSubmissionFixture(t, p)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	res := task.Run(ctx, imageSpec(), Submission{UserID: uuid.New(), Mode: models.ModePoll})

	_, ok := res.(Failure)
	require.True(t, ok, "expected Failure, got %T", res)
	assert.Empty(t, mediaStore.all())
}
