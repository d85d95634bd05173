// Package decoder turns raw replay documents into domain.Replay aggregates.
//
// Replay documents are YAML: top-level metadata, a round_end_players list and
// an ordered events list where each event carries a "type" discriminator.
// Decoding is a pure transform over the supplied bytes; all I/O belongs to
// the caller. The decoder is tolerant of schema drift: unknown fields and
// unknown event discriminators are skipped with a warning, and a single bad
// entry never aborts the rest of the document.
package decoder

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/replay-browser/internal/domain"
)

// document is the wire schema of a replay document.
type document struct {
	Link            string        `yaml:"link"`
	ServerID        string        `yaml:"server_id"`
	ServerName      string        `yaml:"server_name"`
	RoundEndPlayers []playerEntry `yaml:"round_end_players"`
	Events          []eventEntry  `yaml:"events"`
}

type playerEntry struct {
	PlayerGUID      string   `yaml:"player_guid"`
	PlayerICName    string   `yaml:"player_ic_name"`
	PlayerOOCName   string   `yaml:"player_ooc_name"`
	Antag           bool     `yaml:"antag"`
	AntagPrototypes []string `yaml:"antag_prototypes"`
	JobPrototypes   []string `yaml:"job_prototypes"`
}

type eventEntry struct {
	Type    string    `yaml:"type"`
	Payload yaml.Node `yaml:"payload"`
}

type mobStateChangedPayload struct {
	Target   playerEntry `yaml:"target"`
	OldState string      `yaml:"old_state"`
	NewState string      `yaml:"new_state"`
}

// eventDecoders dispatches event payload decoding by discriminator.
var eventDecoders = map[string]func(payload *yaml.Node) (domain.ReplayEvent, error){
	domain.EventTypeMobStateChanged: decodeMobStateChanged,
}

// Date formats embedded in replay links, tried most specific first.
var (
	linkDatePatterns = []struct {
		re     *regexp.Regexp
		layout string
	}{
		{regexp.MustCompile(`\d{4}_\d{2}_\d{2}-\d{2}_\d{2}`), "2006_01_02-15_04"},
		{regexp.MustCompile(`\d{4}-\d{2}-\d{2}`), "2006-01-02"},
	}
)

// Decoder converts raw replay documents into domain aggregates.
type Decoder struct {
	logger *slog.Logger
}

// New creates a new Decoder.
func New(logger *slog.Logger) *Decoder {
	return &Decoder{logger: logger}
}

// Decode parses a raw replay document. The top-level structure failing to
// parse is domain.ErrMalformedDocument; individually unreadable players or
// events are skipped with a warning so the rest of the stream survives.
func (d *Decoder) Decode(data []byte) (*domain.Replay, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedDocument, err)
	}

	replay := &domain.Replay{
		Link:       doc.Link,
		ServerID:   doc.ServerID,
		ServerName: doc.ServerName,
		Date:       DateFromLink(doc.Link),
	}

	for i, entry := range doc.RoundEndPlayers {
		player, err := decodePlayer(entry)
		if err != nil {
			d.logger.Warn("skipping unreadable player entry", "index", i, "error", err)
			continue
		}
		replay.Players = append(replay.Players, player)
	}

	for i, entry := range doc.Events {
		decode, ok := eventDecoders[entry.Type]
		if !ok {
			d.logger.Warn("skipping event with unknown discriminator", "index", i, "type", entry.Type)
			continue
		}
		event, err := decode(&entry.Payload)
		if err != nil {
			d.logger.Warn("skipping unreadable event payload", "index", i, "type", entry.Type, "error", err)
			continue
		}
		replay.Events = append(replay.Events, event)
	}

	return replay, nil
}

// EncodeEvents renders a decoded event list back into its tagged document
// form, suitable for re-decoding. Only known variants are representable, so
// the round trip is lossless over the closed union.
func EncodeEvents(events []domain.ReplayEvent) ([]byte, error) {
	entries := make([]map[string]any, 0, len(events))
	for _, event := range events {
		switch event.Type {
		case domain.EventTypeMobStateChanged:
			payload := event.MobStateChanged
			entries = append(entries, map[string]any{
				"type": event.Type,
				"payload": map[string]any{
					"target": map[string]any{
						"player_guid":     payload.Target.PlayerGUID.String(),
						"player_ic_name":  payload.Target.PlayerICName,
						"player_ooc_name": payload.Target.PlayerOOCName,
						"antag":           payload.Target.Antag,
					},
					"old_state": payload.OldState.String(),
					"new_state": payload.NewState.String(),
				},
			})
		default:
			return nil, fmt.Errorf("%w: cannot encode event type %q", domain.ErrInvalidEventPayload, event.Type)
		}
	}
	return yaml.Marshal(map[string]any{"events": entries})
}

// DateFromLink extracts the round date embedded in a source link. Known
// formats are tried in priority order, fine grained first; all results are
// UTC. A link with no recognizable timestamp yields the zero time.
func DateFromLink(link string) time.Time {
	for _, pattern := range linkDatePatterns {
		match := pattern.re.FindString(link)
		if match == "" {
			continue
		}
		date, err := time.ParseInLocation(pattern.layout, match, time.UTC)
		if err != nil {
			continue
		}
		return date
	}
	return time.Time{}
}

func decodePlayer(entry playerEntry) (domain.Player, error) {
	if entry.PlayerGUID == "" {
		return domain.Player{}, fmt.Errorf("missing required field player_guid")
	}
	guid, err := uuid.Parse(entry.PlayerGUID)
	if err != nil {
		return domain.Player{}, fmt.Errorf("parsing player_guid: %w", err)
	}
	return domain.Player{
		PlayerGUID:      guid,
		PlayerICName:    entry.PlayerICName,
		PlayerOOCName:   entry.PlayerOOCName,
		Antag:           entry.Antag,
		AntagPrototypes: entry.AntagPrototypes,
		JobPrototypes:   entry.JobPrototypes,
	}, nil
}

func decodeMobStateChanged(payload *yaml.Node) (domain.ReplayEvent, error) {
	var raw mobStateChangedPayload
	if err := payload.Decode(&raw); err != nil {
		return domain.ReplayEvent{}, fmt.Errorf("%w: %v", domain.ErrInvalidEventPayload, err)
	}

	oldState, err := domain.ParseMobState(raw.OldState)
	if err != nil {
		return domain.ReplayEvent{}, err
	}
	newState, err := domain.ParseMobState(raw.NewState)
	if err != nil {
		return domain.ReplayEvent{}, err
	}

	target, err := decodePlayer(raw.Target)
	if err != nil {
		return domain.ReplayEvent{}, fmt.Errorf("%w: decoding target: %v", domain.ErrInvalidEventPayload, err)
	}

	return domain.NewMobStateChangedEvent(domain.EventPlayerOf(target), oldState, newState), nil
}
