package jobs

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mediaforge-backend/internal/models"
)

// RetryPayload is the context retained from a failed attempt so the
// user can retry it. Successes discard this; failures must not.
type RetryPayload struct {
	Spec        models.GenerationSpec
	SourceImage []byte
	UserID      uuid.UUID
	Mode        models.SubmitMode
	DeviceToken string
}

// NotificationRecord is the ephemeral, process-local projection of one
// job's human-readable state.
type NotificationRecord struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Title        string
	Message      string
	Model        string
	Prompt       string
	Progress     float64
	ThumbnailURL string
	Completed    bool
	Failed       bool
	Retry        *RetryPayload
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// seq orders progress writes so a stale lower value arriving late
	// cannot regress the bar.
	seq uint64
}

// Terminal reports whether the record reached completed or failed.
func (n *NotificationRecord) Terminal() bool {
	return n.Completed || n.Failed
}

// Notifier owns every live NotificationRecord. All mutation goes
// through its methods; records handed out are copies.
type Notifier struct {
	mu          sync.Mutex
	records     map[uuid.UUID]*NotificationRecord
	autoDismiss time.Duration
	timers      map[uuid.UUID]*time.Timer
}

// NewNotifier creates a Notifier. Completed notifications are removed
// automatically after autoDismiss; zero disables auto-dismissal.
func NewNotifier(autoDismiss time.Duration) *Notifier {
	return &Notifier{
		records:     make(map[uuid.UUID]*NotificationRecord),
		autoDismiss: autoDismiss,
		timers:      make(map[uuid.UUID]*time.Timer),
	}
}

// Show creates a new notification and returns its id.
func (n *Notifier) Show(userID uuid.UUID, title, message, model, prompt string) uuid.UUID {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := uuid.New()
	now := time.Now()
	n.records[id] = &NotificationRecord{
		ID:        id,
		UserID:    userID,
		Title:     title,
		Message:   message,
		Model:     model,
		Prompt:    prompt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return id
}

// UpdateProgress applies a progress value in [0,1]. Lower-than-current
// values and updates after a terminal state are ignored.
func (n *Notifier) UpdateProgress(id uuid.UUID, value float64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	rec, ok := n.records[id]
	if !ok || rec.Terminal() {
		return
	}
	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}
	if value < rec.Progress {
		return
	}
	rec.Progress = value
	rec.seq++
	rec.UpdatedAt = time.Now()
}

func (n *Notifier) UpdateMessage(id uuid.UUID, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	rec, ok := n.records[id]
	if !ok || rec.Terminal() {
		return
	}
	rec.Message = text
	rec.UpdatedAt = time.Now()
}

// MarkCompleted moves the record to its completed terminal state.
// Returns false if the record was missing or already terminal, so
// duplicate completion signals never double-apply.
func (n *Notifier) MarkCompleted(id uuid.UUID, message, thumbnailURL string) bool {
	n.mu.Lock()
	rec, ok := n.records[id]
	if !ok || rec.Terminal() {
		n.mu.Unlock()
		return false
	}
	rec.Completed = true
	rec.Progress = 1
	rec.Message = message
	if thumbnailURL != "" {
		rec.ThumbnailURL = thumbnailURL
	}
	rec.Retry = nil
	rec.UpdatedAt = time.Now()
	n.mu.Unlock()

	if n.autoDismiss > 0 {
		n.scheduleDismiss(id)
	}
	return true
}

// MarkFailed moves the record to its failed terminal state. Idempotent
// like MarkCompleted.
func (n *Notifier) MarkFailed(id uuid.UUID, message string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	rec, ok := n.records[id]
	if !ok || rec.Terminal() {
		return false
	}
	rec.Failed = true
	if message == "" {
		message = "generation failed"
	}
	rec.Message = message
	rec.UpdatedAt = time.Now()
	return true
}

// SetRetryPayload attaches the original attempt context to a record so
// a failed generation can be retried.
func (n *Notifier) SetRetryPayload(id uuid.UUID, payload RetryPayload) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if rec, ok := n.records[id]; ok {
		rec.Retry = &payload
	}
}

// RetryPayload returns the retained attempt context, if any.
func (n *Notifier) RetryPayload(id uuid.UUID) (RetryPayload, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	rec, ok := n.records[id]
	if !ok || rec.Retry == nil {
		return RetryPayload{}, false
	}
	return *rec.Retry, true
}

// ResetForRetry rewinds a failed record to an in-progress look while
// keeping the same id. Only failed records are retryable.
func (n *Notifier) ResetForRetry(id uuid.UUID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	rec, ok := n.records[id]
	if !ok || !rec.Failed {
		return false
	}
	rec.Completed = false
	rec.Failed = false
	rec.Progress = 0
	rec.seq++
	rec.Message = "Retrying…"
	rec.UpdatedAt = time.Now()
	return true
}

// FindByMetadata locates an open, non-terminal notification by the
// (title, model, prompt) tuple. Best-effort fallback for webhook events
// arriving after a process restart erased the direct task mapping.
func (n *Notifier) FindByMetadata(userID uuid.UUID, title, model, prompt string) (uuid.UUID, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for id, rec := range n.records {
		if rec.UserID != userID || rec.Terminal() {
			continue
		}
		if rec.Title == title && rec.Model == model && rec.Prompt == prompt {
			return id, true
		}
	}
	return uuid.Nil, false
}

// Get returns a copy of one record.
func (n *Notifier) Get(id uuid.UUID) (NotificationRecord, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	rec, ok := n.records[id]
	if !ok {
		return NotificationRecord{}, false
	}
	return *rec, true
}

// List returns copies of the user's records, newest first.
func (n *Notifier) List(userID uuid.UUID) []NotificationRecord {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []NotificationRecord
	for _, rec := range n.records {
		if rec.UserID == userID {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Dismiss removes a record.
func (n *Notifier) Dismiss(id uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.removeLocked(id)
}

func (n *Notifier) scheduleDismiss(id uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if t, ok := n.timers[id]; ok {
		t.Stop()
	}
	n.timers[id] = time.AfterFunc(n.autoDismiss, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.removeLocked(id)
	})
}

func (n *Notifier) removeLocked(id uuid.UUID) {
	delete(n.records, id)
	if t, ok := n.timers[id]; ok {
		t.Stop()
		delete(n.timers, id)
	}
}
