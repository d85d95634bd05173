// Package ingest owns the replay ingestion pipeline: a FIFO of pending
// sources and a single-flight consumer that drains it through the decoder
// and the store.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/replay-browser/internal/decoder"
	"github.com/replay-browser/internal/domain"
)

// SourceFetcher retrieves the raw bytes of a replay source. Implementations
// report transient failures as domain.ErrSourceUnavailable.
type SourceFetcher interface {
	Fetch(ctx context.Context, source string) ([]byte, error)
}

// ReplayStore persists decoded replays. Implementations report failures as
// domain.ErrStoreFailure.
type ReplayStore interface {
	Save(ctx context.Context, replay *domain.Replay) (int64, error)
}

// DeliverySink receives a completion hand-off once a replay is durably
// stored. Delivery is best effort; ingestion never depends on its outcome.
type DeliverySink interface {
	Deliver(ctx context.Context, replay *domain.Replay) error
}

// SourceFailure records one source that could not be ingested.
type SourceFailure struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// DrainReport summarizes one completed drain.
type DrainReport struct {
	Processed int             `json:"processed"`
	Failures  []SourceFailure `json:"failures,omitempty"`
}

// Notifier broadcasts ingest progress to connected observers.
type Notifier interface {
	BroadcastReplayIngested(replay *domain.Replay)
}

// Consumer serializes processing of queued replay sources. Enqueue and
// RequestDrain may be called from any number of goroutines; the draining
// flag is the only contested shared state and at most one drain runs at a
// time regardless of how many callers ask for one.
type Consumer struct {
	fetcher SourceFetcher
	store   ReplayStore
	decoder *decoder.Decoder
	sink    DeliverySink
	logger  *slog.Logger

	retryAttempts int
	retryDelay    time.Duration

	mu       sync.Mutex
	pending  []string
	draining atomic.Bool
	notifier Notifier
}

// NewConsumer creates a new ingestion consumer.
func NewConsumer(
	fetcher SourceFetcher,
	store ReplayStore,
	dec *decoder.Decoder,
	sink DeliverySink,
	retryAttempts int,
	retryDelay time.Duration,
	logger *slog.Logger,
) *Consumer {
	if retryAttempts < 1 {
		retryAttempts = 1
	}
	return &Consumer{
		fetcher:       fetcher,
		store:         store,
		decoder:       dec,
		sink:          sink,
		retryAttempts: retryAttempts,
		retryDelay:    retryDelay,
		logger:        logger,
	}
}

// SetNotifier attaches an observer for ingest completions.
func (c *Consumer) SetNotifier(n Notifier) {
	c.notifier = n
}

// Enqueue appends a pending source. It never blocks and never deduplicates;
// idempotence is the store's concern, not the queue's.
func (c *Consumer) Enqueue(source string) {
	c.mu.Lock()
	c.pending = append(c.pending, source)
	depth := len(c.pending)
	c.mu.Unlock()
	c.logger.Debug("source enqueued", "source", source, "queue_depth", depth)
}

// RequestDrain attempts the Idle -> Draining transition. Exactly one caller
// wins per transition and becomes responsible for running Drain; everyone
// else gets false and walks away.
func (c *Consumer) RequestDrain() bool {
	return c.draining.CompareAndSwap(false, true)
}

// QueueDepth returns the number of pending sources.
func (c *Consumer) QueueDepth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Drain processes pending sources oldest first until the queue is empty,
// then releases the draining flag. It must only be called by the goroutine
// that won RequestDrain. A poisoned source is recorded and skipped; the
// context is honored between sources, never mid-source.
func (c *Consumer) Drain(ctx context.Context) DrainReport {
	defer c.draining.Store(false)

	var report DrainReport
	for {
		if ctx.Err() != nil {
			c.logger.Info("drain interrupted", "processed", report.Processed, "remaining", c.QueueDepth())
			return report
		}

		source, ok := c.pop()
		if !ok {
			break
		}

		if err := c.ingest(ctx, source); err != nil {
			c.logger.Error("source failed permanently", "source", source, "error", err)
			report.Failures = append(report.Failures, SourceFailure{
				Source: source,
				Reason: err.Error(),
			})
			continue
		}
		report.Processed++
	}

	c.logger.Info("drain completed", "processed", report.Processed, "failed", len(report.Failures))
	return report
}

// pop removes and returns the oldest pending source.
func (c *Consumer) pop() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return "", false
	}
	source := c.pending[0]
	c.pending = c.pending[1:]
	return source, true
}

// ingest runs one source through fetch, decode, save and hand-off. Fetch and
// store failures are retried a bounded number of times; decode failures are
// structural and fail immediately.
func (c *Consumer) ingest(ctx context.Context, source string) error {
	raw, err := c.fetchWithRetries(ctx, source)
	if err != nil {
		return err
	}

	replay, err := c.decoder.Decode(raw)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", source, err)
	}
	if replay.Link == "" {
		replay.Link = source
	}

	if err := c.saveWithRetries(ctx, replay); err != nil {
		return err
	}

	c.handOff(ctx, replay)
	return nil
}

func (c *Consumer) fetchWithRetries(ctx context.Context, source string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.retryAttempts; attempt++ {
		raw, err := c.fetcher.Fetch(ctx, source)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		c.logger.Warn("fetch failed", "source", source, "attempt", attempt, "error", err)
		if !c.backoff(ctx, attempt) {
			break
		}
	}
	return nil, fmt.Errorf("fetching %s: %w", source, lastErr)
}

func (c *Consumer) saveWithRetries(ctx context.Context, replay *domain.Replay) error {
	var lastErr error
	for attempt := 1; attempt <= c.retryAttempts; attempt++ {
		id, err := c.store.Save(ctx, replay)
		if err == nil {
			replay.ID = id
			return nil
		}
		lastErr = err
		c.logger.Warn("save failed", "link", replay.Link, "attempt", attempt, "error", err)
		if !c.backoff(ctx, attempt) {
			break
		}
	}
	return fmt.Errorf("saving %s: %w", replay.Link, lastErr)
}

// backoff sleeps before the next retry. It returns false when there is no
// next attempt because the context is gone.
func (c *Consumer) backoff(ctx context.Context, attempt int) bool {
	if attempt >= c.retryAttempts {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.retryDelay):
		return true
	}
}

// handOff notifies the delivery sink and any attached observer. Both are
// best effort: the replay is already durable and stays that way.
func (c *Consumer) handOff(ctx context.Context, replay *domain.Replay) {
	if c.sink != nil {
		if err := c.sink.Deliver(ctx, replay); err != nil {
			c.logger.Warn("completion hand-off failed", "replay_id", replay.ID, "error", err)
		}
	}
	if c.notifier != nil {
		c.notifier.BroadcastReplayIngested(replay)
	}
}
