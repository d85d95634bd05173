// Package fetch retrieves raw replay documents from their sources.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/replay-browser/internal/domain"
)

// Fetcher loads replay documents over HTTP, falling back to the local
// filesystem for plain paths. Failures surface as domain.ErrSourceUnavailable
// so the consumer knows they are worth retrying.
type Fetcher struct {
	client  *http.Client
	logger  *slog.Logger
	maxSize int64
}

// New creates a new Fetcher.
func New(timeout time.Duration, maxSize int64, logger *slog.Logger) *Fetcher {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if maxSize == 0 {
		maxSize = 64 << 20
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		maxSize: maxSize,
	}
}

// Fetch returns the raw bytes of the given source identifier.
func (f *Fetcher) Fetch(ctx context.Context, source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return f.fetchHTTP(ctx, source)
	}
	return f.fetchFile(source)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, source string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", domain.ErrSourceUnavailable, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", domain.ErrSourceUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", domain.ErrSourceUnavailable, err)
	}

	f.logger.Debug("fetched source", "source", source, "bytes", len(data))
	return data, nil
}

func (f *Fetcher) fetchFile(source string) ([]byte, error) {
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	return data, nil
}
