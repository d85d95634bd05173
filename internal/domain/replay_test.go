package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactInformation(t *testing.T) {
	player := Player{
		PlayerGUID:      uuid.MustParse("6f9619ff-8b86-d011-b42d-00cf4fc964ff"),
		PlayerICName:    "Flint Redborn",
		PlayerOOCName:   "flint",
		Antag:           true,
		AntagPrototypes: []string{"Traitor"},
		JobPrototypes:   []string{"Engineer"},
	}

	player.RedactInformation()

	assert.Equal(t, uuid.Nil, player.PlayerGUID)
	assert.Equal(t, RedactedName, player.PlayerICName)
	assert.Equal(t, RedactedName, player.PlayerOOCName)
	assert.Nil(t, player.AntagPrototypes)
	assert.Nil(t, player.JobPrototypes)
	assert.True(t, player.IsRedacted())

	// Applying redaction twice yields the same record as once
	once := player
	player.RedactInformation()
	assert.Equal(t, once, player)
}

func TestParseMobState(t *testing.T) {
	for _, state := range []MobState{MobStateAlive, MobStateCritical, MobStateDead} {
		parsed, err := ParseMobState(state.String())
		require.NoError(t, err)
		assert.Equal(t, state, parsed)
	}

	_, err := ParseMobState("gibbed")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidEventPayload)
}
