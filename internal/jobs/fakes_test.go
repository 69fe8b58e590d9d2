package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"mediaforge-backend/internal/models"
	"mediaforge-backend/internal/provider"
	"mediaforge-backend/internal/supabase"
)

type fakePendingStore struct {
	mu      sync.Mutex
	jobs    map[string]models.PendingJob
	failOps map[string]error
}

func newFakePendingStore() *fakePendingStore {
	return &fakePendingStore{jobs: make(map[string]models.PendingJob), failOps: make(map[string]error)}
}

func (s *fakePendingStore) Create(_ context.Context, job *models.PendingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOps["create"]; err != nil {
		return err
	}
	j := *job
	j.CreatedAt = time.Now()
	j.UpdatedAt = j.CreatedAt
	s.jobs[job.TaskID] = j
	return nil
}

func (s *fakePendingStore) Get(_ context.Context, taskID string) (*models.PendingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[taskID]
	if !ok {
		return nil, supabase.ErrNotFound
	}
	return &j, nil
}

func (s *fakePendingStore) FetchAll(_ context.Context, userID uuid.UUID) ([]models.PendingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PendingJob
	for _, j := range s.jobs {
		if j.UserID == userID {
			out = append(out, j)
		}
	}
	return out, nil
}

func (s *fakePendingStore) FetchOpen(context.Context) ([]models.PendingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PendingJob
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out, nil
}

func (s *fakePendingStore) FetchStuck(_ context.Context, olderThan time.Duration) ([]models.PendingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var out []models.PendingJob
	for _, j := range s.jobs {
		if !j.Status.Terminal() && j.CreatedAt.Before(cutoff) {
			out = append(out, j)
		}
	}
	return out, nil
}

func (s *fakePendingStore) DeleteOrphaned(_ context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var n int64
	for id, j := range s.jobs {
		if j.CreatedAt.Before(cutoff) {
			delete(s.jobs, id)
			n++
		}
	}
	return n, nil
}

func (s *fakePendingStore) UpdateStatus(_ context.Context, taskID string, status models.JobStatus, resultURL, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[taskID]
	if !ok {
		return supabase.ErrNotFound
	}
	j.Status = status
	if resultURL != "" {
		j.ResultURL.String = resultURL
		j.ResultURL.Valid = true
	}
	if errMsg != "" {
		j.ErrorMessage.String = errMsg
		j.ErrorMessage.Valid = true
	}
	j.UpdatedAt = time.Now()
	s.jobs[taskID] = j
	return nil
}

func (s *fakePendingStore) Delete(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, taskID)
	return nil
}

func (s *fakePendingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *fakePendingStore) get(taskID string) (models.PendingJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[taskID]
	return j, ok
}

func (s *fakePendingStore) put(job models.PendingJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.TaskID] = job
}

type fakeMediaStore struct {
	mu        sync.Mutex
	rows      []models.MediaMetadata
	failUntil int
	calls     int
}

func (s *fakeMediaStore) Insert(_ context.Context, m *models.MediaMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failUntil {
		return assert.AnError
	}
	s.rows = append(s.rows, *m)
	return nil
}

func (s *fakeMediaStore) all() []models.MediaMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.MediaMetadata, len(s.rows))
	copy(out, s.rows)
	return out
}

type fakeBlobStore struct {
	mu      sync.Mutex
	uploads map[string][]byte
	err     error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{uploads: make(map[string][]byte)}
}

func (s *fakeBlobStore) Upload(path string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.uploads[path] = data
	return "https://storage.test/" + path, nil
}

func (s *fakeBlobStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploads)
}

type fakeProvider struct {
	id models.Provider

	mu              sync.Mutex
	submitOut       *provider.SubmitOutput
	submitErr       error
	callbackErr     error
	pollOut         *provider.StatusOutput
	pollErr         error
	supportsPoll    bool
	submitCalls     int
	callbackCalls   int
	pollCalls       int
	lastTaskID      string
	lastCallbackURL string
	submitDelay     time.Duration
}

func (f *fakeProvider) ID() models.Provider { return f.id }

func (f *fakeProvider) Submit(ctx context.Context, _ models.GenerationSpec) (*provider.SubmitOutput, error) {
	f.mu.Lock()
	f.submitCalls++
	delay := f.submitDelay
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitOut, f.submitErr
}

func (f *fakeProvider) SubmitWithCallback(_ context.Context, _ models.GenerationSpec, taskID, callbackURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbackCalls++
	f.lastTaskID = taskID
	f.lastCallbackURL = callbackURL
	return f.callbackErr
}

func (f *fakeProvider) PollStatus(context.Context, string) (*provider.StatusOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollCalls++
	return f.pollOut, f.pollErr
}

func (f *fakeProvider) SupportsPoll() bool { return f.supportsPoll }

// fastConfig keeps retry sleeps out of test runtime.
func fastConfig() Config {
	return Config{
		ImageSubmitTimeout:   time.Second,
		VideoSubmitTimeout:   time.Second,
		ImageDownloadTimeout: time.Second,
		VideoDownloadTimeout: time.Second,
		DownloadAttempts:     3,
		DownloadRetryDelay:   time.Millisecond,
		MetadataAttempts:     3,
		MetadataBaseDelay:    time.Millisecond,
		StuckAfter:           10 * time.Minute,
		OrphanAfter:          30 * time.Minute,
		PollInterval:         30 * time.Second,
		CallbackURL:          "https://api.test/webhooks/provider",
	}
}
