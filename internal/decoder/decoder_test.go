package decoder

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replay-browser/internal/domain"
)

const sampleDocument = `
link: https://replays.example.com/lizard/lizard-2024_05_01-14_30-round_4242.yaml
server_id: lizard
server_name: Lizard Station
round_end_players:
  - player_guid: 6f9619ff-8b86-d011-b42d-00cf4fc964ff
    player_ic_name: Flint Redborn
    player_ooc_name: flint
    antag: true
    antag_prototypes: [Traitor]
    job_prototypes: [StationEngineer]
  - player_guid: 16fd2706-8baf-433b-82eb-8c7fada847da
    player_ic_name: Juno Vale
    player_ooc_name: juno
    antag: false
    job_prototypes: [Paramedic]
events:
  - type: mob_state_changed
    payload:
      target:
        player_guid: 16fd2706-8baf-433b-82eb-8c7fada847da
        player_ic_name: Juno Vale
        player_ooc_name: juno
      old_state: alive
      new_state: critical
  - type: mob_state_changed
    payload:
      target:
        player_guid: 16fd2706-8baf-433b-82eb-8c7fada847da
        player_ic_name: Juno Vale
        player_ooc_name: juno
      old_state: critical
      new_state: dead
`

func newTestDecoder() *Decoder {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDecode(t *testing.T) {
	replay, err := newTestDecoder().Decode([]byte(sampleDocument))
	require.NoError(t, err)

	assert.Equal(t, "lizard", replay.ServerID)
	assert.Equal(t, "Lizard Station", replay.ServerName)
	assert.Equal(t, time.Date(2024, 5, 1, 14, 30, 0, 0, time.UTC), replay.Date)

	require.Len(t, replay.Players, 2)
	assert.Equal(t, uuid.MustParse("6f9619ff-8b86-d011-b42d-00cf4fc964ff"), replay.Players[0].PlayerGUID)
	assert.True(t, replay.Players[0].Antag)
	assert.Equal(t, []string{"Traitor"}, replay.Players[0].AntagPrototypes)
	assert.False(t, replay.Players[1].Antag)

	require.Len(t, replay.Events, 2)
	first := replay.Events[0]
	require.Equal(t, domain.EventTypeMobStateChanged, first.Type)
	require.NotNil(t, first.MobStateChanged)
	assert.Equal(t, domain.MobStateAlive, first.MobStateChanged.OldState)
	assert.Equal(t, domain.MobStateCritical, first.MobStateChanged.NewState)
	assert.Equal(t, "Juno Vale", first.MobStateChanged.Target.PlayerICName)
	assert.Equal(t, domain.MobStateDead, replay.Events[1].MobStateChanged.NewState)
}

func TestDecodeIsDeterministic(t *testing.T) {
	dec := newTestDecoder()
	first, err := dec.Decode([]byte(sampleDocument))
	require.NoError(t, err)
	second, err := dec.Decode([]byte(sampleDocument))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDecodeMalformedDocument(t *testing.T) {
	_, err := newTestDecoder().Decode([]byte("link: [unterminated"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMalformedDocument)
}

func TestDecodeSkipsUnknownEventType(t *testing.T) {
	doc := `
link: https://replays.example.com/round_1.yaml
server_id: lizard
events:
  - type: chat_message
    payload:
      text: hello
  - type: mob_state_changed
    payload:
      target:
        player_guid: 16fd2706-8baf-433b-82eb-8c7fada847da
      old_state: alive
      new_state: dead
`
	replay, err := newTestDecoder().Decode([]byte(doc))
	require.NoError(t, err)
	require.Len(t, replay.Events, 1)
	assert.Equal(t, domain.EventTypeMobStateChanged, replay.Events[0].Type)
}

func TestDecodeSkipsUnknownMobState(t *testing.T) {
	doc := `
link: https://replays.example.com/round_1.yaml
server_id: lizard
events:
  - type: mob_state_changed
    payload:
      target:
        player_guid: 16fd2706-8baf-433b-82eb-8c7fada847da
      old_state: alive
      new_state: gibbed
  - type: mob_state_changed
    payload:
      target:
        player_guid: 16fd2706-8baf-433b-82eb-8c7fada847da
      old_state: alive
      new_state: critical
`
	replay, err := newTestDecoder().Decode([]byte(doc))
	require.NoError(t, err)
	require.Len(t, replay.Events, 1)
	assert.Equal(t, domain.MobStateCritical, replay.Events[0].MobStateChanged.NewState)
}

func TestDecodeSkipsPlayerWithoutGUID(t *testing.T) {
	doc := `
link: https://replays.example.com/round_1.yaml
server_id: lizard
round_end_players:
  - player_ic_name: Ghost
    player_ooc_name: ghost
  - player_guid: 16fd2706-8baf-433b-82eb-8c7fada847da
    player_ic_name: Juno Vale
    player_ooc_name: juno
`
	replay, err := newTestDecoder().Decode([]byte(doc))
	require.NoError(t, err)
	require.Len(t, replay.Players, 1)
	assert.Equal(t, "Juno Vale", replay.Players[0].PlayerICName)
}

func TestDateFromLink(t *testing.T) {
	tests := []struct {
		name string
		link string
		want time.Time
	}{
		{
			name: "timestamped link",
			link: "https://replays.example.com/lizard/lizard-2024_05_01-14_30-round_4242.yaml",
			want: time.Date(2024, 5, 1, 14, 30, 0, 0, time.UTC),
		},
		{
			name: "date only link",
			link: "https://replays.example.com/archive/2024-05-01/round_4242.yaml",
			want: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "no date in link",
			link: "https://replays.example.com/round_4242.yaml",
			want: time.Time{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DateFromLink(tt.link))
		})
	}
}

func TestEncodeEventsRoundTrip(t *testing.T) {
	target := domain.EventPlayer{
		PlayerGUID:    uuid.MustParse("16fd2706-8baf-433b-82eb-8c7fada847da"),
		PlayerICName:  "Juno Vale",
		PlayerOOCName: "juno",
	}
	events := []domain.ReplayEvent{
		domain.NewMobStateChangedEvent(target, domain.MobStateAlive, domain.MobStateCritical),
		domain.NewMobStateChangedEvent(target, domain.MobStateCritical, domain.MobStateDead),
	}

	encoded, err := EncodeEvents(events)
	require.NoError(t, err)

	replay, err := newTestDecoder().Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, events, replay.Events)
}

func TestEncodeEventsRejectsUnknownType(t *testing.T) {
	_, err := EncodeEvents([]domain.ReplayEvent{{Type: "chat_message"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidEventPayload)
}
