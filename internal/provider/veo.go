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

// VeoClient talks to the Veo video generation API. Veo only offers a
// long-held synchronous request: no callback delivery and no
// query-by-id, so timed-out Veo jobs can never recover a provider-side
// error message.
type VeoClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type veoGenerateRequest struct {
	Model         string `json:"model"`
	Prompt        string `json:"prompt"`
	DurationSec   int    `json:"duration_seconds,omitempty"`
	Resolution    string `json:"resolution,omitempty"`
	GenerateAudio bool   `json:"generate_audio,omitempty"`
	ImageURL      string `json:"image_url,omitempty"`
}

type veoGenerateResponse struct {
	Video struct {
		URL string `json:"url"`
	} `json:"video"`
	Error string `json:"error,omitempty"`
}

func NewVeoClient(baseURL, apiKey string) *VeoClient {
	return &VeoClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 11 * time.Minute,
		},
	}
}

func (c *VeoClient) ID() models.Provider { return models.ProviderVeo }

func (c *VeoClient) SupportsPoll() bool { return false }

func (c *VeoClient) Submit(ctx context.Context, spec models.GenerationSpec) (*SubmitOutput, error) {
	body := veoGenerateRequest{
		Model:         spec.Model,
		Prompt:        spec.Prompt,
		DurationSec:   spec.DurationSec,
		Resolution:    spec.Resolution,
		GenerateAudio: spec.Audio,
		ImageURL:      spec.ReferenceImageURL,
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/videos:generate", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		var e veoGenerateResponse
		msg := ""
		if json.Unmarshal(raw, &e) == nil {
			msg = e.Error
		}
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return nil, &APIError{Provider: c.ID(), StatusCode: resp.StatusCode, Message: msg}
	}

	var result veoGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Video.URL == "" {
		return nil, &APIError{Provider: c.ID(), Message: "response contained no video url"}
	}
	return &SubmitOutput{ArtifactURL: result.Video.URL}, nil
}

func (c *VeoClient) SubmitWithCallback(ctx context.Context, spec models.GenerationSpec, taskID, callbackURL string) error {
	return &APIError{Provider: c.ID(), Message: "callback delivery is not supported"}
}

func (c *VeoClient) PollStatus(ctx context.Context, taskID string) (*StatusOutput, error) {
	return nil, &APIError{Provider: c.ID(), Message: "status query is not supported"}
}
