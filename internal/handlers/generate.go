package handlers

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mediaforge-backend/internal/jobs"
	"mediaforge-backend/internal/middleware"
	"mediaforge-backend/internal/models"
)

type GenerateHandler struct {
	coordinator *jobs.Coordinator
	log         zerolog.Logger
}

func NewGenerateHandler(coordinator *jobs.Coordinator, log zerolog.Logger) *GenerateHandler {
	return &GenerateHandler{coordinator: coordinator, log: log}
}

// GenerateImage starts an image generation task.
func (h *GenerateHandler) GenerateImage(c *gin.Context) {
	h.generate(c, models.MediaImage)
}

// GenerateVideo starts a video generation task.
func (h *GenerateHandler) GenerateVideo(c *gin.Context) {
	h.generate(c, models.MediaVideo)
}

func (h *GenerateHandler) generate(c *gin.Context, kind models.MediaKind) {
	userID, ok := userIDFromContext(c)
	if !ok {
		return
	}

	var req models.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body", Message: err.Error()})
		return
	}

	provider := models.Provider(req.Provider)
	if !provider.Valid() {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "unknown provider", Message: req.Provider})
		return
	}

	mode := models.SubmitMode(req.Mode)
	if mode == "" {
		mode = models.ModePoll
	}
	if mode != models.ModePoll && mode != models.ModeWebhook {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "unknown mode", Message: req.Mode})
		return
	}

	var sourceImage []byte
	if req.SourceImage != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.SourceImage)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid source image", Message: "source_image must be base64-encoded"})
			return
		}
		sourceImage = decoded
	}

	title := req.Title
	if title == "" {
		title = req.Prompt
	}

	spec := models.GenerationSpec{
		Provider:          provider,
		Model:             req.Model,
		Kind:              kind,
		Prompt:            req.Prompt,
		Title:             title,
		AspectRatio:       req.AspectRatio,
		DurationSec:       req.DurationSec,
		Resolution:        req.Resolution,
		Audio:             req.Audio,
		ReferenceImageURL: req.ReferenceImageURL,
		FrameImageURL:     req.FrameImageURL,
		Endpoint:          req.Endpoint,
		Cost:              req.Cost,
	}

	localID, notifID := h.coordinator.Start(spec, jobs.Submission{
		UserID:      userID,
		Mode:        mode,
		DeviceToken: req.DeviceToken,
		SourceImage: sourceImage,
	})

	h.log.Info().
		Str("local_task_id", localID.String()).
		Str("provider", req.Provider).
		Str("kind", string(kind)).
		Str("mode", string(mode)).
		Msg("generation accepted")

	c.JSON(http.StatusAccepted, models.GenerateResponse{
		LocalTaskID:    localID.String(),
		NotificationID: notifID.String(),
		Status:         "accepted",
	})
}

// userIDFromContext reads the authenticated user id set by the auth
// middleware and writes the error response itself on failure.
func userIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	raw, exists := c.Get(middleware.UserIDKey)
	if !exists {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "user not authenticated"})
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(raw.(string))
	if err != nil {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "invalid user id"})
		return uuid.Nil, false
	}
	return userID, true
}
