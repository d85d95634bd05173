package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/replay-browser/internal/config"
	"github.com/replay-browser/internal/service"
	"github.com/replay-browser/internal/websocket"
)

// RefreshWorker periodically recomputes the default leaderboard snapshot so
// reads stay warm and websocket subscribers see fresh standings without
// polling. Aggregation is read-only over the store, so refresh cycles run
// safely alongside ingestion.
type RefreshWorker struct {
	service *service.LeaderboardService
	hub     *websocket.Hub
	config  *config.LeaderboardConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewRefreshWorker creates a new refresh worker
func NewRefreshWorker(
	svc *service.LeaderboardService,
	hub *websocket.Hub,
	cfg *config.LeaderboardConfig,
	logger *slog.Logger,
) *RefreshWorker {
	return &RefreshWorker{
		service: svc,
		hub:     hub,
		config:  cfg,
		logger:  logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins the background refresh process
func (w *RefreshWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("refresh worker started", "interval", w.config.RefreshInterval)

	go w.run(ctx)
	return nil
}

// Stop stops the background refresh process
func (w *RefreshWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("refresh worker stopped")
	return nil
}

// run is the main worker loop
func (w *RefreshWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

// refresh recomputes the default snapshot and broadcasts it
func (w *RefreshWorker) refresh(ctx context.Context) {
	w.logger.Info("starting leaderboard refresh")
	startTime := time.Now()

	w.service.InvalidateSnapshots(ctx)
	data, err := w.service.ComputeLeaderboardData(ctx, nil)
	if err != nil {
		w.logger.Error("failed to refresh leaderboards", "error", err)
		return
	}

	if w.hub != nil {
		w.hub.BroadcastLeaderboardUpdate(*data)
	}

	w.logger.Info("leaderboard refresh completed",
		"duration", time.Since(startTime),
		"leaderboards", len(data.Leaderboards),
	)
}

// IsRunning returns whether the worker is currently running
func (w *RefreshWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single refresh cycle (useful for manual triggers)
func (w *RefreshWorker) RunOnce(ctx context.Context) {
	w.refresh(ctx)
}
