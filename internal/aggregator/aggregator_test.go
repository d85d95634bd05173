package aggregator

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replay-browser/internal/domain"
)

var (
	guidA = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	guidB = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	guidC = uuid.MustParse("33333333-3333-3333-3333-333333333333")
)

func record(guid uuid.UUID, name string, antag bool) domain.Player {
	return domain.Player{
		PlayerGUID:    guid,
		PlayerICName:  name,
		PlayerOOCName: name,
		Antag:         antag,
	}
}

func repeat(p domain.Player, n int) []domain.Player {
	records := make([]domain.Player, n)
	for i := range records {
		records[i] = p
	}
	return records
}

func TestComputeLeaderboardCompetitionRanking(t *testing.T) {
	stat, ok := Lookup("rounds_played")
	require.True(t, ok)

	var records []domain.Player
	records = append(records, repeat(record(guidA, "alice", false), 10)...)
	records = append(records, repeat(record(guidB, "bob", false), 10)...)
	records = append(records, repeat(record(guidC, "carol", false), 8)...)

	board := ComputeLeaderboard(stat, records)

	require.Len(t, board.Data, 3)
	assert.Equal(t, 1, board.Data[guidA.String()].Position)
	assert.Equal(t, 1, board.Data[guidB.String()].Position)
	assert.Equal(t, 3, board.Data[guidC.String()].Position)
	assert.Equal(t, int64(10), board.Data[guidA.String()].Count)
	assert.Equal(t, int64(8), board.Data[guidC.String()].Count)
}

func TestComputeLeaderboardGroupsByGUID(t *testing.T) {
	stat, _ := Lookup("rounds_played")

	// Same GUID under different in-character names is still one player.
	records := []domain.Player{
		record(guidA, "Flint Redborn", false),
		record(guidA, "Juno Vale", false),
		record(guidB, "bob", false),
	}

	board := ComputeLeaderboard(stat, records)

	require.Len(t, board.Data, 2)
	assert.Equal(t, int64(2), board.Data[guidA.String()].Count)
	assert.Equal(t, 1, board.Data[guidA.String()].Position)
	assert.Equal(t, 2, board.Data[guidB.String()].Position)
}

func TestAntagRoundsCountsOnlyAntagRecords(t *testing.T) {
	stat, ok := Lookup("antag_rounds")
	require.True(t, ok)

	records := []domain.Player{
		record(guidA, "alice", true),
		record(guidA, "alice", false),
		record(guidB, "bob", false),
	}

	board := ComputeLeaderboard(stat, records)

	require.Len(t, board.Data, 1)
	assert.Equal(t, int64(1), board.Data[guidA.String()].Count)
}

func TestComputeFromCounts(t *testing.T) {
	stat := Statistic{Name: "Most deaths", TrackedData: "Times died"}
	counts := map[string]Tally{
		guidA.String(): {Player: domain.EventPlayer{PlayerGUID: guidA}, Count: 4},
		guidB.String(): {Player: domain.EventPlayer{PlayerGUID: guidB}, Count: 4},
		guidC.String(): {Player: domain.EventPlayer{PlayerGUID: guidC}, Count: 9},
	}

	board := ComputeFromCounts(stat, counts)

	assert.Equal(t, "Most deaths", board.Name)
	assert.Equal(t, 1, board.Data[guidC.String()].Position)
	assert.Equal(t, 2, board.Data[guidA.String()].Position)
	assert.Equal(t, 2, board.Data[guidB.String()].Position)
}

func TestLookupUnknownStatistic(t *testing.T) {
	_, ok := Lookup("fastest_round")
	assert.False(t, ok)
}

func TestComposeLeaderboardData(t *testing.T) {
	stat, _ := Lookup("rounds_played")
	board := ComputeLeaderboard(stat, []domain.Player{record(guidA, "alice", false)})

	data := ComposeLeaderboardData(false, board)
	assert.False(t, data.IsCache)
	require.Len(t, data.Leaderboards, 1)

	cached := ComposeLeaderboardData(true, board)
	assert.True(t, cached.IsCache)
}
