package scenario_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tachyon-beep/tidebreak-sub000/internal/core/entity"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/fault"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/sim"
	"github.com/tachyon-beep/tidebreak-sub000/internal/scenario"
)

const patrol = `
name: patrol
seed: 7
entities:
  - tag: ship
    position: {x: 0, y: 0}
    heading: 0.5
    hp: 120
    weapons:
      - slot: 0
        cooldown_max: 1.5
        ammo: missile
  - tag: platform
    position: {x: 40, y: 10}
    radar_range: 90
    tracks:
      - target: 0
        quality: tracking
  - tag: squadron
    position: {x: -20, y: 0}
    velocity: {x: 4, y: -1}
`

func TestParseAndApply(t *testing.T) {
	sc, err := scenario.Parse([]byte(patrol), "patrol.yaml")
	require.NoError(t, err)
	assert.Equal(t, "patrol", sc.Name)
	assert.Equal(t, uint64(7), sc.Seed)
	require.Len(t, sc.Entities, 3)

	s := sim.New(sc.Seed)
	require.NoError(t, sc.Apply(s))
	require.Equal(t, 3, s.Arena().Len())

	ship := s.Arena().Get(0)
	assert.Equal(t, entity.TagShip, ship.Tag)
	assert.InDelta(t, 120.0, ship.Bundle.Combat.HP, 1e-9)
	assert.InDelta(t, 0.5, ship.Bundle.Transform.Heading, 1e-9)
	require.Len(t, ship.Bundle.Combat.Weapons, 1)
	assert.Equal(t, entity.AmmoMissile, ship.Bundle.Combat.Weapons[0].Ammo)
	assert.InDelta(t, 1.5, ship.Bundle.Combat.Weapons[0].CooldownMax, 1e-9)

	platform := s.Arena().Get(1)
	assert.Equal(t, entity.TagPlatform, platform.Tag)
	assert.InDelta(t, 90.0, platform.Bundle.Sensor.RadarRange, 1e-9)
	require.Len(t, platform.Bundle.Sensor.Tracks, 1)
	assert.Equal(t, entity.ID(0), platform.Bundle.Sensor.Tracks[0].Target)
	assert.Equal(t, entity.QualityTracking, platform.Bundle.Sensor.Tracks[0].Quality)

	squadron := s.Arena().Get(2)
	assert.Equal(t, entity.TagSquadron, squadron.Tag)
	assert.InDelta(t, 300.0, squadron.Bundle.Combat.HP, 1e-9) // default kept
	assert.InDelta(t, 4.0, squadron.Bundle.Physics.Velocity.X, 1e-9)
	assert.InDelta(t, -1.0, squadron.Bundle.Physics.Velocity.Y, 1e-9)
}

func TestUnknownFieldsIgnored(t *testing.T) {
	raw := []byte(`
name: forward
seed: 1
future_field: whatever
entities:
  - tag: ship
    position: {x: 1, y: 2}
    future_knob: 12
`)
	sc, err := scenario.Parse(raw, "forward.yaml")
	require.NoError(t, err)
	assert.Len(t, sc.Entities, 1)
}

func TestRejectsWholeFile(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unknown tag", "name: x\nentities:\n  - tag: zeppelin\n"},
		{"no entities", "name: x\nseed: 3\n"},
		{"negative hp", "name: x\nentities:\n  - tag: ship\n    hp: -5\n"},
		{"bad ammo", "name: x\nentities:\n  - tag: ship\n    weapons:\n      - slot: 0\n        ammo: pebbles\n"},
		{"track target out of range", "name: x\nentities:\n  - tag: ship\n    tracks:\n      - target: 5\n"},
		{"track target is self", "name: x\nentities:\n  - tag: ship\n    tracks:\n      - target: 0\n"},
		{"bad track quality", "name: x\nentities:\n  - tag: ship\n  - tag: ship\n    tracks:\n      - target: 0\n        quality: psychic\n"},
		{"not yaml", "{{{{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := scenario.Parse([]byte(tt.raw), tt.name)
			require.Error(t, err)
			var se *fault.SchemaError
			assert.ErrorAs(t, err, &se)
		})
	}
}
