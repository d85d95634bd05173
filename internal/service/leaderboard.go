package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/replay-browser/internal/aggregator"
	"github.com/replay-browser/internal/config"
	"github.com/replay-browser/internal/domain"
	"github.com/replay-browser/internal/postgres"
	"github.com/replay-browser/internal/redis"
)

// StatTimesDied is the event-derived statistic key; the remaining keys are
// the aggregator's built-ins.
const StatTimesDied = "times_died"

// DefaultStatistics is the statistic set served when a request names none.
var DefaultStatistics = []string{"rounds_played", "antag_rounds", StatTimesDied}

// LeaderboardService computes leaderboard read models from the replay store,
// memoized in the snapshot cache.
type LeaderboardService struct {
	store  *postgres.Repository
	cache  *redis.Cache
	config *config.LeaderboardConfig
	logger *slog.Logger
}

// NewLeaderboardService creates a new leaderboard service
func NewLeaderboardService(
	store *postgres.Repository,
	cache *redis.Cache,
	cfg *config.LeaderboardConfig,
	logger *slog.Logger,
) *LeaderboardService {
	return &LeaderboardService{
		store:  store,
		cache:  cache,
		config: cfg,
		logger: logger,
	}
}

// ComputeLeaderboardData returns the ranked leaderboards for the requested
// statistics. A fresh computation is cached for the configured TTL; a cache
// hit is served with IsCache set so callers can tell the difference.
func (s *LeaderboardService) ComputeLeaderboardData(ctx context.Context, requested []string) (*domain.LeaderboardData, error) {
	if len(requested) == 0 {
		requested = DefaultStatistics
	}

	cacheKey := strings.Join(requested, ",")
	if s.cache != nil {
		if cached, ok, err := s.cache.GetLeaderboardData(ctx, cacheKey); err == nil && ok {
			cached.IsCache = true
			return cached, nil
		} else if err != nil {
			s.logger.Warn("discarding unreadable snapshot", "key", cacheKey, "error", err)
		}
	}

	records, err := s.store.ListPlayerRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing player records: %w", err)
	}

	boards := make([]domain.Leaderboard, 0, len(requested))
	for _, key := range requested {
		board, err := s.computeOne(ctx, key, records)
		if err != nil {
			return nil, err
		}
		boards = append(boards, board)
	}

	data := aggregator.ComposeLeaderboardData(false, boards...)
	if s.cache != nil {
		if err := s.cache.SetLeaderboardData(ctx, cacheKey, data, s.config.CacheTTL); err != nil {
			s.logger.Warn("failed to cache leaderboard snapshot", "key", cacheKey, "error", err)
		}
	}
	return &data, nil
}

// InvalidateSnapshots drops the cached default snapshot after new data
// arrives. Non-default statistic combinations simply age out via TTL.
func (s *LeaderboardService) InvalidateSnapshots(ctx context.Context) {
	if s.cache == nil {
		return
	}
	key := strings.Join(DefaultStatistics, ",")
	if err := s.cache.InvalidateLeaderboardData(ctx, key); err != nil {
		s.logger.Warn("failed to invalidate leaderboard snapshot", "key", key, "error", err)
	}
}

// GetReplay returns a stored replay by ID.
func (s *LeaderboardService) GetReplay(ctx context.Context, id int64) (*domain.Replay, error) {
	return s.store.GetReplay(ctx, id)
}

// FindReplays searches replays by server and participant.
func (s *LeaderboardService) FindReplays(ctx context.Context, serverID string, playerGUID uuid.UUID) ([]domain.Replay, error) {
	return s.store.FindByServerAndParticipant(ctx, serverID, playerGUID)
}

// EraseProfile redacts a player's stored records and bulk-deletes the
// redaction-adjacent derived rows. Snapshots computed from the old data are
// invalidated so the placeholder shows up immediately.
func (s *LeaderboardService) EraseProfile(ctx context.Context, playerGUID uuid.UUID) error {
	if err := s.store.DeleteCharacterAndJobDataFor(ctx, playerGUID); err != nil {
		return fmt.Errorf("deleting character and job data: %w", err)
	}
	if err := s.store.RedactPlayer(ctx, playerGUID); err != nil {
		return err
	}
	s.InvalidateSnapshots(ctx)
	s.logger.Info("player profile erased", "player_guid", playerGUID)
	return nil
}

func (s *LeaderboardService) computeOne(ctx context.Context, key string, records []domain.Player) (domain.Leaderboard, error) {
	if key == StatTimesDied {
		deaths, err := s.store.CountDeathsByPlayer(ctx)
		if err != nil {
			return domain.Leaderboard{}, fmt.Errorf("counting deaths: %w", err)
		}
		counts := make(map[string]aggregator.Tally, len(deaths))
		names := playerNames(records)
		for guid, count := range deaths {
			counts[guid] = aggregator.Tally{Player: names[guid], Count: count}
		}
		stat := aggregator.Statistic{
			Name:        "Most deaths",
			TrackedData: "Times died",
			ExtraInfo:   "Transitions into the dead state",
		}
		return aggregator.ComputeFromCounts(stat, counts), nil
	}

	stat, ok := aggregator.Lookup(key)
	if !ok {
		return domain.Leaderboard{}, fmt.Errorf("%w: %s", domain.ErrUnknownStatistic, key)
	}
	return aggregator.ComputeLeaderboard(stat, records), nil
}

// playerNames indexes the latest known projection of each player by GUID.
func playerNames(records []domain.Player) map[string]domain.EventPlayer {
	names := make(map[string]domain.EventPlayer, len(records))
	for _, record := range records {
		names[record.PlayerGUID.String()] = domain.EventPlayerOf(record)
	}
	return names
}
