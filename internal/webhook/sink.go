// Package webhook implements the completion hand-off: once a replay is
// durably stored, a signed notification is POSTed to the configured endpoint.
// Delivery is fire and forget: a failed notification is logged and never
// rolls back the ingestion that triggered it.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/replay-browser/internal/config"
	"github.com/replay-browser/internal/domain"
)

// Sink delivers replay-ingested notifications over HTTP.
type Sink struct {
	url    string
	secret string
	client *http.Client
	logger *slog.Logger
}

// payload is the notification body. Events are omitted; receivers that want
// the full stream fetch the replay through the API.
type payload struct {
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	ReplayID  int64     `json:"replay_id"`
	Link      string    `json:"link"`
	ServerID  string    `json:"server_id"`
	Players   int       `json:"players"`
	Events    int       `json:"events"`
}

// NewSink creates a new webhook sink
func NewSink(cfg *config.WebhookConfig, logger *slog.Logger) *Sink {
	return &Sink{
		url:    cfg.URL,
		secret: cfg.Secret,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Deliver posts the notification for a stored replay. The returned error is
// informational: callers log it and move on.
func (s *Sink) Deliver(ctx context.Context, replay *domain.Replay) error {
	body, err := json.Marshal(payload{
		EventType: "replay_ingested",
		Timestamp: time.Now().UTC(),
		ReplayID:  replay.ID,
		Link:      replay.Link,
		ServerID:  replay.ServerID,
		Players:   len(replay.Players),
		Events:    len(replay.Events),
	})
	if err != nil {
		return fmt.Errorf("marshaling notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.secret != "" {
		req.Header.Set("X-Signature-256", "sha256="+s.sign(body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivering notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification rejected with status %d", resp.StatusCode)
	}

	s.logger.Debug("replay notification delivered", "replay_id", replay.ID, "url", s.url)
	return nil
}

// sign computes the HMAC-SHA256 signature of the body.
func (s *Sink) sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
