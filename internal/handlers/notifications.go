package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"mediaforge-backend/internal/jobs"
	"mediaforge-backend/internal/models"
)

type NotificationsHandler struct {
	notifier    *jobs.Notifier
	coordinator *jobs.Coordinator
}

func NewNotificationsHandler(notifier *jobs.Notifier, coordinator *jobs.Coordinator) *NotificationsHandler {
	return &NotificationsHandler{notifier: notifier, coordinator: coordinator}
}

// List returns the caller's notifications, newest first.
func (h *NotificationsHandler) List(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		return
	}

	records := h.notifier.List(userID)
	out := make([]models.NotificationResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toNotificationResponse(rec))
	}
	c.JSON(http.StatusOK, gin.H{"notifications": out})
}

// Dismiss removes a notification.
func (h *NotificationsHandler) Dismiss(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		return
	}
	notifID, ok := notificationIDParam(c)
	if !ok {
		return
	}

	rec, found := h.notifier.Get(notifID)
	if !found || rec.UserID != userID {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "notification not found"})
		return
	}

	h.notifier.Dismiss(notifID)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Retry reruns the failed submission a notification tracks.
func (h *NotificationsHandler) Retry(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		return
	}
	notifID, ok := notificationIDParam(c)
	if !ok {
		return
	}

	rec, found := h.notifier.Get(notifID)
	if !found || rec.UserID != userID {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "notification not found"})
		return
	}

	localID, retried := h.coordinator.Retry(notifID)
	if !retried {
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: "notification is not retryable"})
		return
	}

	c.JSON(http.StatusAccepted, models.RetryResponse{
		Retried:        true,
		LocalTaskID:    localID.String(),
		NotificationID: notifID.String(),
	})
}

// Cancel stops a task that has not been submitted to its provider yet.
func (h *NotificationsHandler) Cancel(c *gin.Context) {
	if _, ok := userIDFromContext(c); !ok {
		return
	}

	localID, err := uuid.Parse(c.Param("task_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid task id"})
		return
	}

	found, alreadySubmitted := h.coordinator.Cancel(localID)
	if !found {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "task not found"})
		return
	}

	c.JSON(http.StatusOK, models.CancelResponse{
		Cancelled:        !alreadySubmitted,
		AlreadySubmitted: alreadySubmitted,
	})
}

func notificationIDParam(c *gin.Context) (uuid.UUID, bool) {
	notifID, err := uuid.Parse(c.Param("notification_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid notification id"})
		return uuid.Nil, false
	}
	return notifID, true
}

func toNotificationResponse(rec jobs.NotificationRecord) models.NotificationResponse {
	return models.NotificationResponse{
		ID:           rec.ID.String(),
		Title:        rec.Title,
		Message:      rec.Message,
		Progress:     rec.Progress,
		ThumbnailURL: rec.ThumbnailURL,
		Completed:    rec.Completed,
		Failed:       rec.Failed,
		Retryable:    rec.Failed && rec.Retry != nil,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}
