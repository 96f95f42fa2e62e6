package scripting_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tachyon-beep/tidebreak-sub000/internal/core/entity"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/output"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/sim"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/vmath"
	"github.com/tachyon-beep/tidebreak-sub000/internal/scripting"
)

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func newEngine(t *testing.T, scripts map[string]string) *scripting.Engine {
	t.Helper()
	dir := t.TempDir()
	for name, body := range scripts {
		writeScript(t, dir, name, body)
	}
	eng, err := scripting.NewEngine(dir, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(eng.Close)
	return eng
}

func TestRegisterPluginFromScript(t *testing.T) {
	eng := newEngine(t, map[string]string{
		"brake.lua": `
register_plugin{
  id = "brake",
  tags = {"ship"},
  reads = {"transform", "physics"},
  emits = {"command"},
  run = function(ctx)
    emit.set_velocity(ctx.entity, 0, 0)
  end,
}`,
	})

	ps := eng.Plugins()
	require.Len(t, ps, 1)
	d := ps[0].Declaration()
	assert.Equal(t, output.PluginID("brake"), d.ID)
	assert.Equal(t, []entity.Tag{entity.TagShip}, d.Tags)
	assert.Equal(t, []entity.ComponentKind{entity.KindTransform, entity.KindPhysics}, d.Reads)
	assert.Equal(t, []output.Kind{output.KindCommand}, d.Emits)
	assert.True(t, d.Sequential, "scripted plugins share one VM and must run in the sequential tail")
}

func TestScriptedPluginDrivesSimulation(t *testing.T) {
	eng := newEngine(t, map[string]string{
		"eastward.lua": `
register_plugin{
  id = "eastward",
  tags = {"ship"},
  reads = {"transform", "physics"},
  emits = {"command"},
  run = function(ctx)
    local x, y = world.position(ctx.entity)
    emit.set_velocity(ctx.entity, 60, 0)
  end,
}`,
	})

	run := func() (float64, uint64) {
		s := sim.New(4)
		for _, p := range eng.Plugins() {
			require.NoError(t, s.Register(p))
		}
		id, err := s.SpawnEntity(entity.TagShip, entity.ShipBundle(vmath.Zero, 0))
		require.NoError(t, err)
		require.NoError(t, s.Run(60))
		return s.Arena().Get(id).Bundle.Transform.Position.X, s.StateHash()
	}

	x1, h1 := run()
	x2, h2 := run()
	assert.InDelta(t, 60.0, x1, 1e-9)
	assert.Equal(t, x1, x2)
	assert.Equal(t, h1, h2)
}

func TestScriptErrorDropsOutputsOnly(t *testing.T) {
	eng := newEngine(t, map[string]string{
		"broken.lua": `
register_plugin{
  id = "broken",
  tags = {"ship"},
  reads = {"transform"},
  emits = {"command"},
  run = function(ctx)
    error("boom")
  end,
}`,
	})

	s := sim.New(4)
	for _, p := range eng.Plugins() {
		require.NoError(t, s.Register(p))
	}
	_, err := s.SpawnEntity(entity.TagShip, entity.ShipBundle(vmath.Zero, 0))
	require.NoError(t, err)

	require.NoError(t, s.Step())
	assert.Equal(t, uint64(1), s.Tick())
}

func TestBadRegistrationFailsLoad(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing id", `register_plugin{tags={"ship"}, emits={"command"}, run=function(ctx) end}`},
		{"bad tag", `register_plugin{id="x", tags={"blimp"}, emits={"command"}, run=function(ctx) end}`},
		{"bad kind", `register_plugin{id="x", tags={"ship"}, emits={"wish"}, run=function(ctx) end}`},
		{"run not function", `register_plugin{id="x", tags={"ship"}, emits={"command"}, run=5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeScript(t, dir, "bad.lua", tt.body)
			_, err := scripting.NewEngine(dir, zap.NewNop())
			require.Error(t, err)
		})
	}
}

func TestLoadOrderIsByFileName(t *testing.T) {
	mk := func(id string) string {
		return `register_plugin{id="` + id + `", tags={"ship"}, reads={"transform"}, emits={"command"}, run=function(ctx) end}`
	}
	eng := newEngine(t, map[string]string{
		"b_second.lua": mk("second"),
		"a_first.lua":  mk("first"),
	})

	ps := eng.Plugins()
	require.Len(t, ps, 2)
	assert.Equal(t, output.PluginID("first"), ps[0].Declaration().ID)
	assert.Equal(t, output.PluginID("second"), ps[1].Declaration().ID)
}

func TestGlobalStateScriptIsDeterministic(t *testing.T) {
	const ships = 16
	script := map[string]string{
		"counter.lua": `
count = 0
register_plugin{
  id = "counter",
  tags = {"ship"},
  reads = {"physics"},
  emits = {"command"},
  run = function(ctx)
    count = count + 1
    emit.set_velocity(ctx.entity, count, 0)
  end,
}`,
	}

	run := func() ([]float64, uint64) {
		eng := newEngine(t, script)
		s := sim.New(9, sim.WithWorkers(8))
		for _, p := range eng.Plugins() {
			require.NoError(t, s.Register(p))
		}
		for i := 0; i < ships; i++ {
			_, err := s.SpawnEntity(entity.TagShip, entity.ShipBundle(vmath.New(float64(i*10), 0), 0))
			require.NoError(t, err)
		}
		require.NoError(t, s.Step())

		vels := make([]float64, ships)
		for i := range vels {
			vels[i] = s.Arena().Get(entity.ID(i)).Bundle.Physics.Velocity.X
		}
		return vels, s.StateHash()
	}

	baseVels, baseHash := run()
	for i := 0; i < ships; i++ {
		assert.InDelta(t, float64(i+1), baseVels[i], 1e-9,
			"vm-global counter must observe invocations in entity order")
	}
	for attempt := 0; attempt < 5; attempt++ {
		vels, hash := run()
		require.Equal(t, baseVels, vels)
		require.Equal(t, baseHash, hash)
	}
}
