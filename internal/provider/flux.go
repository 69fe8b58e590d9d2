package provider

import (
	"context"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mediaforge-backend/internal/models"
)

// FluxClient talks to the Flux image generation API. Flux supports
// synchronous generation, callback delivery, and status polling.
type FluxClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type fluxGenerateRequest struct {
	Model             string `json:"model"`
	Prompt            string `json:"prompt"`
	AspectRatio       string `json:"aspect_ratio,omitempty"`
	ReferenceImageURL string `json:"reference_image_url,omitempty"`
	CallbackURL       string `json:"callback_url,omitempty"`
	ExternalTaskID    string `json:"external_task_id,omitempty"`
}

type fluxGenerateResponse struct {
	Data struct {
		URL string `json:"url"`
	} `json:"data"`
}

type fluxStatusResponse struct {
	Status string `json:"status"` // "pending", "processing", "completed", "failed"
	Result struct {
		URL string `json:"url"`
	} `json:"result"`
	Error string `json:"error,omitempty"`
}

type fluxErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func NewFluxClient(baseURL, apiKey string) *FluxClient {
	return &FluxClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			// Per-call deadlines come from the request context; this is
			// a hard ceiling for a single connection.
			Timeout: 11 * time.Minute,
		},
	}
}

func (c *FluxClient) ID() models.Provider { return models.ProviderFlux }

func (c *FluxClient) SupportsPoll() bool { return true }

func (c *FluxClient) Submit(ctx context.Context, spec models.GenerationSpec) (*SubmitOutput, error) {
	body := fluxGenerateRequest{
		Model:             spec.Model,
		Prompt:            spec.Prompt,
		AspectRatio:       spec.AspectRatio,
		ReferenceImageURL: spec.ReferenceImageURL,
	}

	var result fluxGenerateResponse
	if err := c.post(ctx, "/v1/images/generations", body, &result); err != nil {
		return nil, err
	}
	if result.Data.URL == "" {
		return nil, &APIError{Provider: c.ID(), Message: "response contained no artifact url"}
	}
	return &SubmitOutput{ArtifactURL: result.Data.URL}, nil
}

func (c *FluxClient) SubmitWithCallback(ctx context.Context, spec models.GenerationSpec, taskID, callbackURL string) error {
	body := fluxGenerateRequest{
		Model:             spec.Model,
		Prompt:            spec.Prompt,
		AspectRatio:       spec.AspectRatio,
		ReferenceImageURL: spec.ReferenceImageURL,
		CallbackURL:       callbackURL,
		ExternalTaskID:    taskID,
	}
	return c.post(ctx, "/v1/images/generations", body, nil)
}

func (c *FluxClient) PollStatus(ctx context.Context, taskID string) (*StatusOutput, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/tasks/"+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError(resp)
	}

	var result fluxStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}
	return &StatusOutput{
		Status:       models.JobStatus(result.Status),
		ResultURL:    result.Result.URL,
		ErrorMessage: result.Error,
	}, nil
}

func (c *FluxClient) post(ctx context.Context, path string, body, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return c.apiError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *FluxClient) apiError(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)
	var e fluxErrorResponse
	msg := ""
	if json.Unmarshal(raw, &e) == nil {
		msg = e.Error.Message
	}
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	return &APIError{Provider: c.ID(), StatusCode: resp.StatusCode, Message: msg}
}
