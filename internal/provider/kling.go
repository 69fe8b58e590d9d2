package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mediaforge-backend/internal/models"
)

// KlingClient talks to the Kling video generation API. Kling jobs are
// always asynchronous on the provider side; synchronous Submit creates
// the job and polls until it settles or the context expires.
type KlingClient struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	pollInterval time.Duration
}

type klingCreateRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	Duration       int    `json:"duration,omitempty"`
	Resolution     string `json:"resolution,omitempty"`
	Audio          bool   `json:"audio,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
	FrameImageURL  string `json:"frame_image_url,omitempty"`
	CallbackURL    string `json:"callback_url,omitempty"`
	ExternalTaskID string `json:"external_task_id,omitempty"`
}

type klingCreateResponse struct {
	Data struct {
		TaskID string `json:"task_id"`
	} `json:"data"`
	Message string `json:"message,omitempty"`
}

type klingStatusResponse struct {
	Data struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"` // "submitted", "processing", "succeed", "failed"
		TaskMsg    string `json:"task_status_msg,omitempty"`
		TaskResult struct {
			Videos []struct {
				URL string `json:"url"`
			} `json:"videos"`
		} `json:"task_result"`
	} `json:"data"`
}

func NewKlingClient(baseURL, apiKey string) *KlingClient {
	return &KlingClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		pollInterval: 5 * time.Second,
	}
}

func (c *KlingClient) ID() models.Provider { return models.ProviderKling }

func (c *KlingClient) SupportsPoll() bool { return true }

func (c *KlingClient) Submit(ctx context.Context, spec models.GenerationSpec) (*SubmitOutput, error) {
	taskID, err := c.create(ctx, spec, "", "")
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		status, err := c.PollStatus(ctx, taskID)
		if err != nil {
			// Transient poll failures are retried until the deadline.
			continue
		}
		switch status.Status {
		case models.StatusCompleted:
			if status.ResultURL == "" {
				return nil, &APIError{Provider: c.ID(), Message: "task succeeded but returned no video url"}
			}
			return &SubmitOutput{ArtifactURL: status.ResultURL}, nil
		case models.StatusFailed:
			msg := status.ErrorMessage
			if msg == "" {
				msg = "video generation failed"
			}
			return nil, &APIError{Provider: c.ID(), Message: msg}
		}
	}
}

func (c *KlingClient) SubmitWithCallback(ctx context.Context, spec models.GenerationSpec, taskID, callbackURL string) error {
	_, err := c.create(ctx, spec, taskID, callbackURL)
	return err
}

func (c *KlingClient) PollStatus(ctx context.Context, taskID string) (*StatusOutput, error) {
	url := c.baseURL + "/v1/videos/tasks/" + taskID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError(resp)
	}

	var result klingStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}

	out := &StatusOutput{ErrorMessage: result.Data.TaskMsg}
	switch result.Data.TaskStatus {
	case "succeed":
		out.Status = models.StatusCompleted
		if len(result.Data.TaskResult.Videos) > 0 {
			out.ResultURL = result.Data.TaskResult.Videos[0].URL
		}
	case "failed":
		out.Status = models.StatusFailed
	case "submitted":
		out.Status = models.StatusPending
	default:
		out.Status = models.StatusProcessing
	}
	return out, nil
}

func (c *KlingClient) create(ctx context.Context, spec models.GenerationSpec, taskID, callbackURL string) (string, error) {
	body := klingCreateRequest{
		Model:          spec.Model,
		Prompt:         spec.Prompt,
		Duration:       spec.DurationSec,
		Resolution:     spec.Resolution,
		Audio:          spec.Audio,
		ImageURL:       spec.ReferenceImageURL,
		FrameImageURL:  spec.FrameImageURL,
		CallbackURL:    callbackURL,
		ExternalTaskID: taskID,
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/v1/videos/" + c.endpointPath(spec.Endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", c.apiError(resp)
	}

	var result klingCreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Data.TaskID == "" {
		return "", &APIError{Provider: c.ID(), Message: "response contained no task id"}
	}
	return result.Data.TaskID, nil
}

// endpointPath maps the catalog endpoint to Kling's path segment.
// Defaults to text2video when no endpoint variant is given.
func (c *KlingClient) endpointPath(endpoint string) string {
	switch endpoint {
	case "image2video":
		return "image2video"
	default:
		return "text2video"
	}
}

func (c *KlingClient) apiError(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)
	var e klingCreateResponse
	msg := ""
	if json.Unmarshal(raw, &e) == nil {
		msg = e.Message
	}
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	return &APIError{Provider: c.ID(), StatusCode: resp.StatusCode, Message: msg}
}
