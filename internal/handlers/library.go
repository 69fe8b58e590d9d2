package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mediaforge-backend/internal/models"
	"mediaforge-backend/internal/supabase"
)

type LibraryHandler struct {
	client *supabase.Client
}

func NewLibraryHandler(client *supabase.Client) *LibraryHandler {
	return &LibraryHandler{client: client}
}

// List returns the caller's generated media, optionally filtered by
// kind (?kind=image|video).
func (h *LibraryHandler) List(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		return
	}

	kind := c.Query("kind")
	if kind != "" && kind != string(models.MediaImage) && kind != string(models.MediaVideo) {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "unknown kind", Message: kind})
		return
	}

	raw, err := h.client.ListLibrary(userID, kind)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to fetch library", Message: err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}
