package provider_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediaforge-backend/internal/models"
	"mediaforge-backend/internal/provider"
)

func TestKlingClient_SubmitWithCallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/videos/image2video", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "kling_task-1", body["external_task_id"])
		assert.Equal(t, "https://api.test/webhooks/provider", body["callback_url"])

		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"task_id": "remote-77"},
		})
	}))
	defer srv.Close()

	client := provider.NewKlingClient(srv.URL, "test-key")
	err := client.SubmitWithCallback(context.Background(), models.GenerationSpec{
		Model:             "kling-v1",
		Prompt:            "waves crashing",
		Endpoint:          "image2video",
		ReferenceImageURL: "https://cdn.test/ref.png",
	}, "kling_task-1", "https://api.test/webhooks/provider")

	assert.NoError(t, err)
}

func TestKlingClient_PollStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		taskStatus string
		want       models.JobStatus
	}{
		{"submitted maps to pending", "submitted", models.StatusPending},
		{"processing stays processing", "processing", models.StatusProcessing},
		{"succeed maps to completed", "succeed", models.StatusCompleted},
		{"failed stays failed", "failed", models.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/videos/tasks/remote-77", r.URL.Path)
				json.NewEncoder(w).Encode(map[string]any{
					"data": map[string]any{
						"task_id":     "remote-77",
						"task_status": tt.taskStatus,
						"task_result": map[string]any{
							"videos": []map[string]any{{"url": "https://cdn.kling.test/v.mp4"}},
						},
					},
				})
			}))
			defer srv.Close()

			client := provider.NewKlingClient(srv.URL, "test-key")
			out, err := client.PollStatus(context.Background(), "remote-77")

			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Status)
			if tt.want == models.StatusCompleted {
				assert.Equal(t, "https://cdn.kling.test/v.mp4", out.ResultURL)
			}
		})
	}
}

func TestKlingClient_CreateWithoutTaskID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{}})
	}))
	defer srv.Close()

	client := provider.NewKlingClient(srv.URL, "test-key")
	err := client.SubmitWithCallback(context.Background(), models.GenerationSpec{Prompt: "waves"}, "t", "cb")

	var apiErr *provider.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Message, "no task id")
}
