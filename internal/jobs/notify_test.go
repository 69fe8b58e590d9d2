package jobs

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediaforge-backend/internal/models"
)

func TestNotifier_ProgressIsMonotonic(t *testing.T) {
	n := NewNotifier(0)
	userID := uuid.New()
	id := n.Show(userID, "Sunset", "Starting", "flux-pro", "a sunset")

	n.UpdateProgress(id, 0.45)
	n.UpdateProgress(id, 0.1)

	rec, ok := n.Get(id)
	require.True(t, ok)
	assert.Equal(t, 0.45, rec.Progress)
}

func TestNotifier_ProgressClamped(t *testing.T) {
	n := NewNotifier(0)
	id := n.Show(uuid.New(), "Sunset", "Starting", "flux-pro", "a sunset")

	n.UpdateProgress(id, 1.7)
	rec, _ := n.Get(id)
	assert.Equal(t, 1.0, rec.Progress)
}

func TestNotifier_SingleTerminalTransition(t *testing.T) {
	n := NewNotifier(0)
	id := n.Show(uuid.New(), "Sunset", "Starting", "flux-pro", "a sunset")

	assert.True(t, n.MarkCompleted(id, "Your image is ready", ""))
	assert.False(t, n.MarkFailed(id, "too late"))
	assert.False(t, n.MarkCompleted(id, "again", ""))

	rec, ok := n.Get(id)
	require.True(t, ok)
	assert.True(t, rec.Completed)
	assert.False(t, rec.Failed)
	assert.Equal(t, "Your image is ready", rec.Message)
	assert.Equal(t, 1.0, rec.Progress)
}

func TestNotifier_ProgressIgnoredAfterTerminal(t *testing.T) {
	n := NewNotifier(0)
	id := n.Show(uuid.New(), "Sunset", "Starting", "flux-pro", "a sunset")

	n.MarkFailed(id, "provider error")
	n.UpdateProgress(id, 0.9)

	rec, _ := n.Get(id)
	assert.True(t, rec.Failed)
	assert.NotEqual(t, 0.9, rec.Progress)
}

func TestNotifier_RetryPayloadLifecycle(t *testing.T) {
	n := NewNotifier(0)
	userID := uuid.New()
	id := n.Show(userID, "Sunset", "Starting", "flux-pro", "a sunset")

	payload := RetryPayload{
		Spec:   models.GenerationSpec{Provider: models.ProviderFlux, Prompt: "a sunset"},
		UserID: userID,
		Mode:   models.ModePoll,
	}
	n.SetRetryPayload(id, payload)

	// Completion discards the retry payload.
	n.MarkCompleted(id, "done", "")
	_, ok := n.RetryPayload(id)
	assert.False(t, ok)
}

func TestNotifier_RetryPayloadSurvivesFailure(t *testing.T) {
	n := NewNotifier(0)
	userID := uuid.New()
	id := n.Show(userID, "Sunset", "Starting", "flux-pro", "a sunset")
	n.SetRetryPayload(id, RetryPayload{UserID: userID, Mode: models.ModePoll})

	n.MarkFailed(id, "provider error")

	got, ok := n.RetryPayload(id)
	require.True(t, ok)
	assert.Equal(t, userID, got.UserID)

	assert.True(t, n.ResetForRetry(id))
	rec, _ := n.Get(id)
	assert.False(t, rec.Failed)
	assert.Equal(t, 0.0, rec.Progress)
}

func TestNotifier_ResetForRetryRequiresFailure(t *testing.T) {
	n := NewNotifier(0)
	id := n.Show(uuid.New(), "Sunset", "Starting", "flux-pro", "a sunset")

	assert.False(t, n.ResetForRetry(id))
}

func TestNotifier_FindByMetadata(t *testing.T) {
	n := NewNotifier(0)
	userID := uuid.New()
	id := n.Show(userID, "Sunset", "Starting", "flux-pro", "a sunset")

	got, ok := n.FindByMetadata(userID, "Sunset", "flux-pro", "a sunset")
	require.True(t, ok)
	assert.Equal(t, id, got)

	// Terminal records are not candidates.
	n.MarkCompleted(id, "done", "")
	_, ok = n.FindByMetadata(userID, "Sunset", "flux-pro", "a sunset")
	assert.False(t, ok)

	_, ok = n.FindByMetadata(uuid.New(), "Sunset", "flux-pro", "a sunset")
	assert.False(t, ok)
}

func TestNotifier_ListNewestFirst(t *testing.T) {
	n := NewNotifier(0)
	userID := uuid.New()
	first := n.Show(userID, "First", "Starting", "m", "p")
	second := n.Show(userID, "Second", "Starting", "m", "p")
	n.Show(uuid.New(), "Other user", "Starting", "m", "p")

	list := n.List(userID)
	require.Len(t, list, 2)
	assert.Equal(t, second, list[0].ID)
	assert.Equal(t, first, list[1].ID)
}

func TestNotifier_AutoDismiss(t *testing.T) {
	n := NewNotifier(10 * time.Millisecond)
	id := n.Show(uuid.New(), "Sunset", "Starting", "flux-pro", "a sunset")

	n.MarkCompleted(id, "done", "")

	assert.Eventually(t, func() bool {
		_, ok := n.Get(id)
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestNotifier_Dismiss(t *testing.T) {
	n := NewNotifier(0)
	id := n.Show(uuid.New(), "Sunset", "Starting", "flux-pro", "a sunset")

	n.Dismiss(id)
	_, ok := n.Get(id)
	assert.False(t, ok)
}
