package domain

import "fmt"

// Event type discriminators. The discriminator is the stable tag stored in
// the replay document; renaming a Go identifier never changes the wire value.
const (
	EventTypeMobStateChanged = "mob_state_changed"
)

// MobState is the closed set of entity life-cycle states tracked by
// MobStateChanged events.
type MobState int

const (
	MobStateAlive MobState = iota
	MobStateCritical
	MobStateDead
)

// mobStateNames is the explicit enum<->string mapping table. Serialized
// documents round-trip through these names; renames are handled by editing
// this table, not by failing parses.
var mobStateNames = map[MobState]string{
	MobStateAlive:    "alive",
	MobStateCritical: "critical",
	MobStateDead:     "dead",
}

var mobStateValues = map[string]MobState{
	"alive":    MobStateAlive,
	"critical": MobStateCritical,
	"dead":     MobStateDead,
}

// String returns the serialized name of the state.
func (s MobState) String() string {
	if name, ok := mobStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("mobstate(%d)", int(s))
}

// ParseMobState maps a serialized state name back to its enum value.
// Unknown names are an InvalidEventPayload condition for the event that
// carried them.
func ParseMobState(name string) (MobState, error) {
	state, ok := mobStateValues[name]
	if !ok {
		return 0, fmt.Errorf("%w: unknown mob state %q", ErrInvalidEventPayload, name)
	}
	return state, nil
}

// ReplayEvent is one decoded occurrence from a replay's event stream.
// The set of variants is closed: Type selects which payload field is set.
type ReplayEvent struct {
	Type            string           `json:"type"`
	MobStateChanged *MobStateChanged `json:"mob_state_changed,omitempty"`
}

// MobStateChanged records a tracked entity's life-cycle transition.
type MobStateChanged struct {
	Target   EventPlayer `json:"target"`
	OldState MobState    `json:"old_state"`
	NewState MobState    `json:"new_state"`
}

// NewMobStateChangedEvent wraps a MobStateChanged payload in its tagged form.
func NewMobStateChangedEvent(target EventPlayer, oldState, newState MobState) ReplayEvent {
	return ReplayEvent{
		Type: EventTypeMobStateChanged,
		MobStateChanged: &MobStateChanged{
			Target:   target,
			OldState: oldState,
			NewState: newState,
		},
	}
}
