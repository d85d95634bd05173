package domain

// LeaderboardData is the transport envelope returned to read endpoints.
// IsCache is true when the payload came from the short-lived snapshot cache
// rather than a fresh computation.
type LeaderboardData struct {
	IsCache      bool          `json:"is_cache"`
	Leaderboards []Leaderboard `json:"leaderboards"`
}

// Leaderboard is a named ranking of one tracked statistic across players.
type Leaderboard struct {
	Name        string                 `json:"name"`
	TrackedData string                 `json:"tracked_data"`
	ExtraInfo   string                 `json:"extra_info,omitempty"`
	Data        map[string]PlayerCount `json:"data"`
}

// PlayerCount is one player's score within one leaderboard.
type PlayerCount struct {
	Player   EventPlayer `json:"player"`
	Count    int64       `json:"count"`
	Position int         `json:"position"`
}
