package models

type GenerateRequest struct {
	Provider    string  `json:"provider" binding:"required"`
	Model       string  `json:"model" binding:"required"`
	Prompt      string  `json:"prompt" binding:"required"`
	Title       string  `json:"title,omitempty"`
	Mode        string  `json:"mode,omitempty"` // "poll" (default) or "webhook"
	AspectRatio string  `json:"aspect_ratio,omitempty"`
	DurationSec int     `json:"duration_sec,omitempty"`
	Resolution  string  `json:"resolution,omitempty"`
	Audio       bool    `json:"audio,omitempty"`
	Endpoint    string  `json:"endpoint,omitempty"`
	Cost        float64 `json:"cost,omitempty"`

	// ReferenceImageURL points at an already-uploaded source image for
	// image-to-image and image-to-video requests.
	ReferenceImageURL string `json:"reference_image_url,omitempty"`
	FrameImageURL     string `json:"frame_image_url,omitempty"`

	// SourceImage is an optional inline base64 source image, retained
	// locally so a failed generation can be retried.
	SourceImage string `json:"source_image,omitempty"`

	DeviceToken string `json:"device_token,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
