package fetch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replay-browser/internal/domain"
)

func newTestFetcher() *Fetcher {
	return New(5*time.Second, 1<<20, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFetchHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("server_id: lizard\n"))
	}))
	defer server.Close()

	data, err := newTestFetcher().Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "server_id: lizard\n", string(data))
}

func TestFetchHTTPNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestFetcher().Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestFetchHTTPUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	_, err := newTestFetcher().Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestFetchFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "round_1.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_id: lizard\n"), 0o644))

	data, err := newTestFetcher().Fetch(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "server_id: lizard\n", string(data))
}

func TestFetchMissingFile(t *testing.T) {
	_, err := newTestFetcher().Fetch(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}
