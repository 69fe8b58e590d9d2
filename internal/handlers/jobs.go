package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mediaforge-backend/internal/models"
	"mediaforge-backend/internal/supabase"
)

type JobsHandler struct {
	pending *supabase.PendingJobStore
}

func NewJobsHandler(pending *supabase.PendingJobStore) *JobsHandler {
	return &JobsHandler{pending: pending}
}

// List returns the caller's pending jobs.
func (h *JobsHandler) List(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		return
	}

	jobs, err := h.pending.FetchAll(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to fetch jobs", Message: err.Error()})
		return
	}

	out := make([]models.PendingJobResponse, 0, len(jobs))
	for _, job := range jobs {
		resp := models.PendingJobResponse{
			TaskID:    job.TaskID,
			Provider:  string(job.Provider),
			Kind:      string(job.Kind),
			Status:    string(job.Status),
			Title:     job.Metadata.Title,
			Model:     job.Metadata.Model,
			CreatedAt: job.CreatedAt,
			UpdatedAt: job.UpdatedAt,
		}
		if job.ResultURL.Valid {
			resp.ResultURL = job.ResultURL.String
		}
		if job.ErrorMessage.Valid {
			resp.ErrorMessage = job.ErrorMessage.String
		}
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, gin.H{"jobs": out})
}
