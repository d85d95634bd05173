package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replay-browser/internal/decoder"
	"github.com/replay-browser/internal/domain"
)

const validDocument = `
link: https://replays.example.com/lizard/lizard-2024_05_01-14_30-round_1.yaml
server_id: lizard
round_end_players:
  - player_guid: 16fd2706-8baf-433b-82eb-8c7fada847da
    player_ic_name: Juno Vale
    player_ooc_name: juno
`

type fakeFetcher struct {
	mu        sync.Mutex
	documents map[string][]byte
	failures  map[string]int
	calls     map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		documents: make(map[string][]byte),
		failures:  make(map[string]int),
		calls:     make(map[string]int),
	}
}

func (f *fakeFetcher) Fetch(_ context.Context, source string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[source]++
	if f.failures[source] > 0 {
		f.failures[source]--
		return nil, fmt.Errorf("%w: connection refused", domain.ErrSourceUnavailable)
	}
	doc, ok := f.documents[source]
	if !ok {
		return nil, fmt.Errorf("%w: no such source", domain.ErrSourceUnavailable)
	}
	return doc, nil
}

type fakeStore struct {
	mu     sync.Mutex
	nextID int64
	saved  []*domain.Replay
	fail   int
}

func (s *fakeStore) Save(_ context.Context, replay *domain.Replay) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail > 0 {
		s.fail--
		return 0, fmt.Errorf("%w: connection reset", domain.ErrStoreFailure)
	}
	s.nextID++
	s.saved = append(s.saved, replay)
	return s.nextID, nil
}

type fakeSink struct {
	mu        sync.Mutex
	delivered []int64
	err       error
}

func (s *fakeSink) Deliver(_ context.Context, replay *domain.Replay) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.delivered = append(s.delivered, replay.ID)
	return nil
}

func newTestConsumer(fetcher SourceFetcher, store ReplayStore, sink DeliverySink) *Consumer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewConsumer(fetcher, store, decoder.New(logger), sink, 3, time.Millisecond, logger)
}

func TestRequestDrainSingleFlight(t *testing.T) {
	consumer := newTestConsumer(newFakeFetcher(), &fakeStore{}, nil)

	const callers = 32
	var wins atomic.Int32
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			if consumer.RequestDrain() {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())

	// Drain releases the flag, so the next round produces a new winner.
	consumer.Drain(context.Background())
	assert.True(t, consumer.RequestDrain())
}

func TestDrainProcessesOldestFirst(t *testing.T) {
	fetcher := newFakeFetcher()
	store := &fakeStore{}
	sink := &fakeSink{}
	consumer := newTestConsumer(fetcher, store, sink)

	sources := []string{
		"https://replays.example.com/lizard/2024_05_01-14_30-round_1.yaml",
		"https://replays.example.com/lizard/2024_05_01-16_02-round_2.yaml",
		"https://replays.example.com/lizard/2024_05_01-17_45-round_3.yaml",
	}
	for _, source := range sources {
		fetcher.documents[source] = []byte("server_id: lizard\n")
		consumer.Enqueue(source)
	}
	require.Equal(t, 3, consumer.QueueDepth())

	require.True(t, consumer.RequestDrain())
	report := consumer.Drain(context.Background())

	assert.Equal(t, 3, report.Processed)
	assert.Empty(t, report.Failures)
	assert.Equal(t, 0, consumer.QueueDepth())

	require.Len(t, store.saved, 3)
	for i, source := range sources {
		assert.Equal(t, source, store.saved[i].Link)
		assert.Equal(t, int64(i+1), store.saved[i].ID)
	}
	assert.Equal(t, []int64{1, 2, 3}, sink.delivered)
}

func TestDrainIsolatesPoisonedSource(t *testing.T) {
	fetcher := newFakeFetcher()
	store := &fakeStore{}
	consumer := newTestConsumer(fetcher, store, nil)

	fetcher.documents["good-1"] = []byte(validDocument)
	fetcher.documents["poisoned"] = []byte("link: [unterminated")
	fetcher.documents["good-2"] = []byte(validDocument)
	for _, source := range []string{"good-1", "poisoned", "good-2"} {
		consumer.Enqueue(source)
	}

	require.True(t, consumer.RequestDrain())
	report := consumer.Drain(context.Background())

	assert.Equal(t, 2, report.Processed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "poisoned", report.Failures[0].Source)
	assert.Len(t, store.saved, 2)
}

func TestDrainRetriesTransientFetchFailures(t *testing.T) {
	fetcher := newFakeFetcher()
	store := &fakeStore{}
	consumer := newTestConsumer(fetcher, store, nil)

	fetcher.documents["flaky"] = []byte(validDocument)
	fetcher.failures["flaky"] = 2
	consumer.Enqueue("flaky")

	require.True(t, consumer.RequestDrain())
	report := consumer.Drain(context.Background())

	assert.Equal(t, 1, report.Processed)
	assert.Empty(t, report.Failures)
	assert.Equal(t, 3, fetcher.calls["flaky"])
}

func TestDrainGivesUpAfterRetryBudget(t *testing.T) {
	fetcher := newFakeFetcher()
	consumer := newTestConsumer(fetcher, &fakeStore{}, nil)

	fetcher.failures["down"] = 10
	consumer.Enqueue("down")

	require.True(t, consumer.RequestDrain())
	report := consumer.Drain(context.Background())

	assert.Equal(t, 0, report.Processed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, 3, fetcher.calls["down"])
}

func TestDrainDoesNotRetryDecodeFailures(t *testing.T) {
	fetcher := newFakeFetcher()
	consumer := newTestConsumer(fetcher, &fakeStore{}, nil)

	fetcher.documents["broken"] = []byte("link: [unterminated")
	consumer.Enqueue("broken")

	require.True(t, consumer.RequestDrain())
	report := consumer.Drain(context.Background())

	require.Len(t, report.Failures, 1)
	assert.Equal(t, 1, fetcher.calls["broken"], "structural failures must not be retried")
}

func TestDrainRetriesStoreFailures(t *testing.T) {
	fetcher := newFakeFetcher()
	store := &fakeStore{fail: 2}
	consumer := newTestConsumer(fetcher, store, nil)

	fetcher.documents["round"] = []byte(validDocument)
	consumer.Enqueue("round")

	require.True(t, consumer.RequestDrain())
	report := consumer.Drain(context.Background())

	assert.Equal(t, 1, report.Processed)
	require.Len(t, store.saved, 1)
	assert.Equal(t, int64(1), store.saved[0].ID)
}

func TestDrainHonorsContextBetweenSources(t *testing.T) {
	fetcher := newFakeFetcher()
	consumer := newTestConsumer(fetcher, &fakeStore{}, nil)

	fetcher.documents["queued"] = []byte(validDocument)
	consumer.Enqueue("queued")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.True(t, consumer.RequestDrain())
	report := consumer.Drain(ctx)

	assert.Equal(t, 0, report.Processed)
	assert.Equal(t, 1, consumer.QueueDepth())
	// The flag is released even on an interrupted drain.
	assert.True(t, consumer.RequestDrain())
}

func TestHandOffFailureDoesNotFailIngestion(t *testing.T) {
	fetcher := newFakeFetcher()
	store := &fakeStore{}
	sink := &fakeSink{err: errors.New("endpoint unreachable")}
	consumer := newTestConsumer(fetcher, store, sink)

	fetcher.documents["round"] = []byte(validDocument)
	consumer.Enqueue("round")

	require.True(t, consumer.RequestDrain())
	report := consumer.Drain(context.Background())

	assert.Equal(t, 1, report.Processed)
	assert.Empty(t, report.Failures)
	assert.Len(t, store.saved, 1)
}
