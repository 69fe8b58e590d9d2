package supabase

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"
)

// Client wraps the Supabase PostgREST client used for read paths that
// go through row-level security instead of the direct connection.
type Client struct {
	Supabase *supabase.Client
}

func NewClient(supabaseURL, apiKey string) (*Client, error) {
	client, err := supabase.NewClient(supabaseURL, apiKey, nil)
	if err != nil {
		return nil, err
	}
	return &Client{Supabase: client}, nil
}

// ListLibrary returns the user's media history rows as raw JSON, newest
// first, optionally filtered by media kind.
func (c *Client) ListLibrary(userID uuid.UUID, kind string) (json.RawMessage, error) {
	q := c.Supabase.From("media_metadata").
		Select("*", "", false).
		Eq("user_id", userID.String())
	if kind != "" {
		q = q.Eq("kind", kind)
	}
	data, _, err := q.Order("created_at", &postgrest.OrderOpts{Ascending: false}).Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to list library: %w", err)
	}
	return json.RawMessage(data), nil
}
