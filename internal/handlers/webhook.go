package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"mediaforge-backend/internal/models"
	"mediaforge-backend/internal/supabase"
)

// StatusStore records provider-reported outcomes. Implemented by
// supabase.PendingJobStore.
type StatusStore interface {
	UpdateStatus(ctx context.Context, taskID string, status models.JobStatus, resultURL, errMsg string) error
}

// ReconcilerNudge wakes the reconciler for a freshly updated row.
// Implemented by jobs.Reconciler.
type ReconcilerNudge interface {
	Notify(ctx context.Context, taskID string)
}

type WebhookHandler struct {
	pending    StatusStore
	reconciler ReconcilerNudge
	secret     string
	log        zerolog.Logger
}

func NewWebhookHandler(pending StatusStore, reconciler ReconcilerNudge, secret string, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		pending:    pending,
		reconciler: reconciler,
		secret:     secret,
		log:        log,
	}
}

// ProviderWebhookEvent is the completion callback providers send for
// webhook-mode tasks.
type ProviderWebhookEvent struct {
	TaskID       string `json:"task_id"`
	Status       string `json:"status"` // "completed" or "failed"
	ResultURL    string `json:"result_url,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// HandleProviderWebhook records the delivered outcome and nudges the
// reconciler. Redeliveries for rows already reconciled return 200 so
// the provider stops retrying.
func (h *WebhookHandler) HandleProviderWebhook(c *gin.Context) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "missing authorization token"})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if h.secret != "" && token != h.secret {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "invalid authorization token"})
		return
	}

	var event ProviderWebhookEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "failed to parse event", Message: err.Error()})
		return
	}
	if event.TaskID == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "missing task_id"})
		return
	}

	status := models.JobStatus(event.Status)
	if !status.Terminal() {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "unknown status", Message: event.Status})
		return
	}

	err := h.pending.UpdateStatus(c.Request.Context(), event.TaskID, status, event.ResultURL, event.ErrorMessage)
	if err != nil {
		if errors.Is(err, supabase.ErrNotFound) {
			// Already reconciled or never ours. Absorb.
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		h.log.Error().Err(err).Str("task_id", event.TaskID).Msg("webhook status update failed")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to record status"})
		return
	}

	h.log.Info().
		Str("task_id", event.TaskID).
		Str("status", event.Status).
		Msg("webhook delivered")

	// The nudge must outlive this request.
	go h.reconciler.Notify(context.WithoutCancel(c.Request.Context()), event.TaskID)

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
