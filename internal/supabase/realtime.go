package supabase

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"mediaforge-backend/internal/models"
)

// ChangeHandler receives a row-level change on the pending_jobs table.
// Action is one of INSERT, UPDATE, DELETE. Handlers must be idempotent:
// the feed may redeliver, and gaps are covered by the polling fallback.
type ChangeHandler = func(action string, job models.PendingJob)

// RealtimeClient consumes the Supabase Realtime (Phoenix protocol)
// change feed over a websocket.
type RealtimeClient struct {
	url     string
	apiKey  string
	log     zerolog.Logger
	mu      sync.Mutex
	conn    *websocket.Conn
	ref     int
	done    chan struct{}
	handler ChangeHandler
}

func NewRealtimeClient(supabaseURL, apiKey string, log zerolog.Logger) *RealtimeClient {
	wsURL := supabaseURL
	if strings.HasPrefix(wsURL, "https") {
		wsURL = "wss" + wsURL[len("https"):]
	} else if strings.HasPrefix(wsURL, "http") {
		wsURL = "ws" + wsURL[len("http"):]
	}
	wsURL = strings.TrimSuffix(wsURL, "/") + "/realtime/v1/websocket?apikey=" + apiKey + "&vsn=1.0.0"

	return &RealtimeClient{
		url:    wsURL,
		apiKey: apiKey,
		log:    log.With().Str("component", "realtime").Logger(),
		done:   make(chan struct{}),
	}
}

// SubscribePendingJobs connects, joins the pending_jobs changes channel
// and dispatches events to fn until ctx is cancelled. Reconnects with
// backoff on connection loss.
func (r *RealtimeClient) SubscribePendingJobs(ctx context.Context, fn ChangeHandler) error {
	r.mu.Lock()
	r.handler = fn
	r.mu.Unlock()

	if err := r.connect(ctx); err != nil {
		return err
	}

	go r.run(ctx)
	return nil
}

func (r *RealtimeClient) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()

	if err := r.join(); err != nil {
		conn.Close()
		return err
	}
	return nil
}

func (r *RealtimeClient) join() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ref++
	ref := fmt.Sprintf("%d", r.ref)
	msg := map[string]any{
		"topic": "realtime:public:pending_jobs",
		"event": "phx_join",
		"payload": map[string]any{
			"config": map[string]any{
				"postgres_changes": []map[string]any{
					{"event": "*", "schema": "public", "table": "pending_jobs"},
				},
			},
		},
		"ref":      ref,
		"join_ref": ref,
	}
	if err := r.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send join: %w", err)
	}
	return nil
}

func (r *RealtimeClient) run(ctx context.Context) {
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.done:
				return
			case <-heartbeat.C:
				r.sendHeartbeat()
			}
		}
	}()

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			r.Close()
			return
		case <-r.done:
			return
		default:
		}

		r.mu.Lock()
		conn := r.conn
		r.mu.Unlock()

		if conn == nil {
			if err := r.connect(ctx); err != nil {
				r.log.Warn().Err(err).Dur("backoff", backoff).Msg("realtime reconnect failed")
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return
				}
				if backoff < 30*time.Second {
					backoff *= 2
				}
				continue
			}
			backoff = time.Second
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			r.log.Warn().Err(err).Msg("realtime connection lost")
			r.mu.Lock()
			r.conn = nil
			r.mu.Unlock()
			conn.Close()
			continue
		}

		r.dispatch(message)
	}
}

type realtimeMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type postgresChange struct {
	Data struct {
		Type      string          `json:"type"` // INSERT, UPDATE, DELETE
		Record    json.RawMessage `json:"record"`
		OldRecord json.RawMessage `json:"old_record"`
	} `json:"data"`
}

func (r *RealtimeClient) dispatch(message []byte) {
	var msg realtimeMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}
	if msg.Event != "postgres_changes" {
		return
	}

	var change postgresChange
	if err := json.Unmarshal(msg.Payload, &change); err != nil {
		r.log.Warn().Err(err).Msg("malformed change payload")
		return
	}

	record := change.Data.Record
	if change.Data.Type == "DELETE" {
		record = change.Data.OldRecord
	}
	job, err := decodeFeedRecord(record)
	if err != nil {
		r.log.Warn().Err(err).Str("action", change.Data.Type).Msg("undecodable feed record")
		return
	}

	r.mu.Lock()
	handler := r.handler
	r.mu.Unlock()
	if handler != nil {
		handler(change.Data.Type, *job)
	}
}

// feedRecord mirrors the pending_jobs row as Realtime serializes it.
type feedRecord struct {
	TaskID       string          `json:"task_id"`
	UserID       string          `json:"user_id"`
	Provider     string          `json:"provider"`
	Kind         string          `json:"kind"`
	Status       string          `json:"status"`
	ResultURL    *string         `json:"result_url"`
	ErrorMessage *string         `json:"error_message"`
	Metadata     json.RawMessage `json:"metadata"`
	DeviceToken  *string         `json:"device_token"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func decodeFeedRecord(raw json.RawMessage) (*models.PendingJob, error) {
	var rec feedRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	userID, err := uuid.Parse(rec.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", rec.UserID, err)
	}
	meta, err := models.ParseJobMetadata(rec.Metadata)
	if err != nil {
		return nil, err
	}

	job := &models.PendingJob{
		TaskID:    rec.TaskID,
		UserID:    userID,
		Provider:  models.Provider(rec.Provider),
		Kind:      models.MediaKind(rec.Kind),
		Status:    models.JobStatus(rec.Status),
		Metadata:  meta,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	if rec.ResultURL != nil {
		job.ResultURL = sql.NullString{String: *rec.ResultURL, Valid: true}
	}
	if rec.ErrorMessage != nil {
		job.ErrorMessage = sql.NullString{String: *rec.ErrorMessage, Valid: true}
	}
	if rec.DeviceToken != nil {
		job.DeviceToken = sql.NullString{String: *rec.DeviceToken, Valid: true}
	}
	return job, nil
}

func (r *RealtimeClient) sendHeartbeat() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return
	}
	r.ref++
	msg := map[string]any{
		"topic":   "phoenix",
		"event":   "heartbeat",
		"payload": map[string]any{},
		"ref":     fmt.Sprintf("%d", r.ref),
	}
	if err := r.conn.WriteJSON(msg); err != nil {
		r.log.Warn().Err(err).Msg("heartbeat failed")
	}
}

// Close tears the connection down and stops the reconnect loop.
func (r *RealtimeClient) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	select {
	case <-r.done:
	default:
		close(r.done)
	}

	if r.conn != nil {
		r.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		r.conn.Close()
		r.conn = nil
	}
}
