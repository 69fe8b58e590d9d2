package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJobMetadata_Object(t *testing.T) {
	raw := []byte(`{"prompt":"a sunset","model":"flux-pro","title":"Sunset","kind":"image","cost":4}`)

	meta, err := ParseJobMetadata(raw)
	require.NoError(t, err)
	assert.Equal(t, "a sunset", meta.Prompt)
	assert.Equal(t, "flux-pro", meta.Model)
	assert.Equal(t, MediaImage, meta.Kind)
	assert.Equal(t, 4.0, meta.Cost)
}

func TestParseJobMetadata_StringEncoded(t *testing.T) {
	raw := []byte(`"{\"prompt\":\"a sunset\",\"model\":\"flux-pro\",\"kind\":\"image\",\"cost\":4}"`)

	meta, err := ParseJobMetadata(raw)
	require.NoError(t, err)
	assert.Equal(t, "a sunset", meta.Prompt)
	assert.Equal(t, "flux-pro", meta.Model)
}

func TestParseJobMetadata_Empty(t *testing.T) {
	meta, err := ParseJobMetadata(nil)
	require.NoError(t, err)
	assert.Empty(t, meta.Prompt)
}

func TestParseJobMetadata_Garbage(t *testing.T) {
	_, err := ParseJobMetadata([]byte(`[1,2,3]`))
	assert.Error(t, err)

	_, err = ParseJobMetadata([]byte(`"not json inside"`))
	assert.Error(t, err)
}

func TestJobStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestPendingJob_Age(t *testing.T) {
	now := time.Now()
	job := PendingJob{CreatedAt: now.Add(-15 * time.Minute)}
	assert.Equal(t, 15*time.Minute, job.Age(now))
}

func TestProvider_Valid(t *testing.T) {
	assert.True(t, ProviderFlux.Valid())
	assert.True(t, ProviderKling.Valid())
	assert.True(t, ProviderVeo.Valid())
	assert.False(t, Provider("dalle").Valid())
}
