// Package aggregator folds per-player participation records into ranked
// leaderboards. All functions are pure over the snapshot they are given;
// callers decide where the records come from and whether results are cached.
package aggregator

import (
	"sort"

	"github.com/replay-browser/internal/domain"
)

// Statistic names a tracked metric and how one participation record counts
// toward it.
type Statistic struct {
	Name        string
	TrackedData string
	ExtraInfo   string

	// Count returns the record's contribution to the metric, usually 0 or 1.
	Count func(p domain.Player) int64
}

// Built-in statistics computed directly from participation records.
var builtins = map[string]Statistic{
	"rounds_played": {
		Name:        "Most played",
		TrackedData: "Rounds played",
		Count:       func(domain.Player) int64 { return 1 },
	},
	"antag_rounds": {
		Name:        "Most antag rounds",
		TrackedData: "Antag rounds played",
		ExtraInfo:   "Rounds where the player was an antagonist",
		Count: func(p domain.Player) int64 {
			if p.Antag {
				return 1
			}
			return 0
		},
	},
}

// Lookup returns the built-in statistic registered under key.
func Lookup(key string) (Statistic, bool) {
	stat, ok := builtins[key]
	return stat, ok
}

// Tally is one player's pre-computed count, used for statistics derived
// outside the participation records (e.g. from the event stream).
type Tally struct {
	Player domain.EventPlayer
	Count  int64
}

// ComputeLeaderboard groups participation records by player GUID, counts
// them under the given statistic and ranks the result.
func ComputeLeaderboard(stat Statistic, records []domain.Player) domain.Leaderboard {
	counts := make(map[string]Tally)
	for _, record := range records {
		n := stat.Count(record)
		if n == 0 {
			continue
		}
		key := record.PlayerGUID.String()
		tally := counts[key]
		tally.Count += n
		tally.Player = domain.EventPlayerOf(record)
		counts[key] = tally
	}
	return ComputeFromCounts(stat, counts)
}

// ComputeFromCounts ranks pre-tallied counts. Positions use standard
// competition ranking: equal counts share a position and the next distinct
// count skips ahead by the number of tied entries (10,10,8 ranks 1,1,3).
// Ties beyond count order by player GUID ascending, for determinism.
func ComputeFromCounts(stat Statistic, counts map[string]Tally) domain.Leaderboard {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := counts[keys[i]], counts[keys[j]]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return keys[i] < keys[j]
	})

	board := domain.Leaderboard{
		Name:        stat.Name,
		TrackedData: stat.TrackedData,
		ExtraInfo:   stat.ExtraInfo,
		Data:        make(map[string]domain.PlayerCount, len(keys)),
	}

	position := 0
	var lastCount int64
	for i, key := range keys {
		tally := counts[key]
		if i == 0 || tally.Count != lastCount {
			position = i + 1
			lastCount = tally.Count
		}
		board.Data[key] = domain.PlayerCount{
			Player:   tally.Player,
			Count:    tally.Count,
			Position: position,
		}
	}
	return board
}

// ComposeLeaderboardData assembles independently computed leaderboards into
// the transport envelope. IsCache is the caching collaborator's call, not
// state of the aggregator.
func ComposeLeaderboardData(isCache bool, boards ...domain.Leaderboard) domain.LeaderboardData {
	return domain.LeaderboardData{
		IsCache:      isCache,
		Leaderboards: boards,
	}
}
