package domain

import (
	"time"

	"github.com/google/uuid"
)

// RedactedName is the placeholder written over identifying player fields
// when a profile erasure is requested.
const RedactedName = "Redacted"

// Replay represents one recorded game session: its metadata, the players
// who participated in the round and the decoded event stream.
type Replay struct {
	ID         int64         `json:"id"`
	Link       string        `json:"link"`
	Date       time.Time     `json:"date"`
	ServerID   string        `json:"server_id"`
	ServerName string        `json:"server_name,omitempty"`
	Players    []Player      `json:"players"`
	Events     []ReplayEvent `json:"events"`
}

// Player is one player's participation record within a single replay.
// The ReplayID back reference is a plain identifier, never an object
// reference, so replays and players form no ownership cycle.
type Player struct {
	PlayerGUID       uuid.UUID `json:"player_guid"`
	PlayerICName     string    `json:"player_ic_name"`
	PlayerOOCName    string    `json:"player_ooc_name"`
	Antag            bool      `json:"antag"`
	AntagPrototypes  []string  `json:"antag_prototypes,omitempty"`
	JobPrototypes    []string  `json:"job_prototypes,omitempty"`
	ReplayID         int64     `json:"replay_id,omitempty"`
}

// RedactInformation irreversibly clears the player's identifying fields.
// It is idempotent: applying it twice yields the same record as once.
func (p *Player) RedactInformation() {
	p.PlayerGUID = uuid.Nil
	p.PlayerICName = RedactedName
	p.PlayerOOCName = RedactedName
	p.AntagPrototypes = nil
	p.JobPrototypes = nil
}

// IsRedacted reports whether the record has been through RedactInformation.
func (p *Player) IsRedacted() bool {
	return p.PlayerGUID == uuid.Nil && p.PlayerOOCName == RedactedName
}

// EventPlayer is a lightweight, non-owning projection of a Player used
// inside event payloads and leaderboard entries.
type EventPlayer struct {
	PlayerGUID    uuid.UUID `json:"player_guid"`
	PlayerICName  string    `json:"player_ic_name"`
	PlayerOOCName string    `json:"player_ooc_name"`
	Antag         bool      `json:"antag,omitempty"`
}

// EventPlayerOf projects a full participation record into its event form.
func EventPlayerOf(p Player) EventPlayer {
	return EventPlayer{
		PlayerGUID:    p.PlayerGUID,
		PlayerICName:  p.PlayerICName,
		PlayerOOCName: p.PlayerOOCName,
		Antag:         p.Antag,
	}
}
