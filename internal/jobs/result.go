// Package jobs implements the asynchronous generation job lifecycle:
// submission, webhook/poll hybrid completion delivery, change-feed
// reconciliation, timeout detection, retry, and notification state.
package jobs

// SubmitResult is the closed outcome of one submission attempt. The
// three variants are the only implementations; switching on the
// concrete type is exhaustive.
type SubmitResult interface {
	isSubmitResult()
}

// Success carries the stored artifact after a synchronous (poll mode)
// generation completed end to end.
type Success struct {
	ArtifactURL  string
	ThumbnailURL string
}

// Queued means the provider accepted the job for asynchronous delivery;
// completion arrives later via webhook or the change feed.
type Queued struct {
	TaskID string
}

// Failure is a terminal submission error, already classified for user
// display.
type Failure struct {
	Err *TaskError
}

func (Success) isSubmitResult() {}
func (Queued) isSubmitResult()  {}
func (Failure) isSubmitResult() {}
