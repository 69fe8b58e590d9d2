package models

import "time"

type GenerateResponse struct {
	LocalTaskID    string `json:"local_task_id"`
	NotificationID string `json:"notification_id"`
	Status         string `json:"status"`
}

type CancelResponse struct {
	Cancelled        bool `json:"cancelled"`
	AlreadySubmitted bool `json:"already_submitted"`
}

type RetryResponse struct {
	Retried        bool   `json:"retried"`
	LocalTaskID    string `json:"local_task_id,omitempty"`
	NotificationID string `json:"notification_id,omitempty"`
}

type NotificationResponse struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	Progress     float64   `json:"progress"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	Completed    bool      `json:"completed"`
	Failed       bool      `json:"failed"`
	Retryable    bool      `json:"retryable"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type PendingJobResponse struct {
	TaskID       string    `json:"task_id"`
	Provider     string    `json:"provider"`
	Kind         string    `json:"kind"`
	Status       string    `json:"status"`
	Title        string    `json:"title,omitempty"`
	Model        string    `json:"model,omitempty"`
	ResultURL    string    `json:"result_url,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
