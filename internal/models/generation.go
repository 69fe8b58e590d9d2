package models

// MediaKind discriminates the two supported generation job kinds.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// SubmitMode selects how a generation is delivered: poll holds the
// connection until the provider returns the artifact, webhook registers
// a pending job and returns immediately.
type SubmitMode string

const (
	ModePoll    SubmitMode = "poll"
	ModeWebhook SubmitMode = "webhook"
)

// Provider identifies a third-party generation API.
type Provider string

const (
	ProviderFlux  Provider = "flux"
	ProviderKling Provider = "kling"
	ProviderVeo   Provider = "veo"
)

func (p Provider) Valid() bool {
	switch p {
	case ProviderFlux, ProviderKling, ProviderVeo:
		return true
	}
	return false
}

// GenerationSpec is the immutable description of one requested
// generation. It is created by the caller before submission and never
// mutated; the submission task owns it for the duration of one attempt.
type GenerationSpec struct {
	Provider    Provider  `json:"provider"`
	Model       string    `json:"model"`
	Kind        MediaKind `json:"kind"`
	Prompt      string    `json:"prompt"`
	Title       string    `json:"title"`
	AspectRatio string    `json:"aspect_ratio,omitempty"`
	DurationSec int       `json:"duration_sec,omitempty"`
	Resolution  string    `json:"resolution,omitempty"`
	Audio       bool      `json:"audio,omitempty"`

	// ReferenceImageURL and FrameImageURL point at already-uploaded
	// inputs (image-to-image, first/last frame for video).
	ReferenceImageURL string `json:"reference_image_url,omitempty"`
	FrameImageURL     string `json:"frame_image_url,omitempty"`

	// Endpoint is the provider endpoint variant the model catalog
	// resolved for this model (e.g. "text2video").
	Endpoint string `json:"endpoint,omitempty"`

	// Cost is the credit cost resolved by the caller from the pricing
	// catalog before submission.
	Cost float64 `json:"cost"`
}
