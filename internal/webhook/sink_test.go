package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replay-browser/internal/config"
	"github.com/replay-browser/internal/domain"
)

func testReplay() *domain.Replay {
	return &domain.Replay{
		ID:       42,
		Link:     "https://replays.example.com/lizard/round_42.yaml",
		ServerID: "lizard",
		Players:  []domain.Player{{PlayerICName: "Juno Vale"}},
	}
}

func newTestSink(url string) *Sink {
	cfg := &config.WebhookConfig{URL: url, Secret: "swordfish", Timeout: 5 * time.Second}
	return NewSink(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDeliver(t *testing.T) {
	var gotBody []byte
	var gotSignature string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSignature = r.Header.Get("X-Signature-256")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	err := newTestSink(server.URL).Deliver(context.Background(), testReplay())
	require.NoError(t, err)

	var got payload
	require.NoError(t, json.Unmarshal(gotBody, &got))
	assert.Equal(t, "replay_ingested", got.EventType)
	assert.Equal(t, int64(42), got.ReplayID)
	assert.Equal(t, "lizard", got.ServerID)
	assert.Equal(t, 1, got.Players)

	mac := hmac.New(sha256.New, []byte("swordfish"))
	mac.Write(gotBody)
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), gotSignature)
}

func TestDeliverRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := newTestSink(server.URL).Deliver(context.Background(), testReplay())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
