// Package provider contains typed HTTP clients for the third-party
// generation APIs. Each client speaks one provider's wire format; the
// rest of the system only sees the Client contract.
package provider

import (
	"context"
	"fmt"

	"mediaforge-backend/internal/models"
)

// SubmitOutput is the result of a synchronous submission.
type SubmitOutput struct {
	ArtifactURL string
}

// StatusOutput is a best-effort provider-side status probe result.
type StatusOutput struct {
	Status       models.JobStatus
	ResultURL    string
	ErrorMessage string
}

// Client is the contract every provider client fulfils. SubmitWithCallback
// and PollStatus are not universally supported; callers must check
// SupportsPoll before probing and be prepared for an APIError from
// SubmitWithCallback.
type Client interface {
	ID() models.Provider

	// Submit runs a generation synchronously, holding the connection
	// and/or polling the provider until the artifact is available or ctx
	// expires.
	Submit(ctx context.Context, spec models.GenerationSpec) (*SubmitOutput, error)

	// SubmitWithCallback registers a generation that the provider will
	// report back on via callbackURL, correlated by taskID.
	SubmitWithCallback(ctx context.Context, spec models.GenerationSpec, taskID, callbackURL string) error

	// PollStatus queries the provider for the state of a previously
	// submitted job.
	PollStatus(ctx context.Context, taskID string) (*StatusOutput, error)

	SupportsPoll() bool
}

// APIError is an error response from a provider, surfaced verbatim so
// the user sees the provider's own message when one is available.
type APIError struct {
	Provider   models.Provider
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: request failed with status %d", e.Provider, e.StatusCode)
}

// Registry maps provider identifiers to their clients.
type Registry struct {
	clients map[models.Provider]Client
}

func NewRegistry(clients ...Client) *Registry {
	r := &Registry{clients: make(map[models.Provider]Client, len(clients))}
	for _, c := range clients {
		r.clients[c.ID()] = c
	}
	return r
}

func (r *Registry) Register(c Client) {
	r.clients[c.ID()] = c
}

func (r *Registry) Get(id models.Provider) (Client, error) {
	c, ok := r.clients[id]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", id)
	}
	return c, nil
}
