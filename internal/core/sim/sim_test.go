package sim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tachyon-beep/tidebreak-sub000/internal/core/entity"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/event"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/fault"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/output"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/plugin"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/resolver"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/sim"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/view"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/vmath"
	"github.com/tachyon-beep/tidebreak-sub000/internal/plugins"
)

type stubPlugin struct {
	decl plugin.Declaration
	fn   func(ctx *plugin.Context, w *view.WorldView) []output.Output
}

func (p *stubPlugin) Declaration() *plugin.Declaration { return &p.decl }

func (p *stubPlugin) Run(ctx *plugin.Context, w *view.WorldView) []output.Output {
	if p.fn == nil {
		return nil
	}
	return p.fn(ctx, w)
}

func damagePlugin(id output.PluginID, target entity.ID, amount float64) *stubPlugin {
	return &stubPlugin{
		decl: plugin.Declaration{
			ID:    id,
			Tags:  []entity.Tag{entity.TagShip},
			Reads: []entity.ComponentKind{entity.KindCombat},
			Emits: []output.Kind{output.KindModifier},
		},
		fn: func(ctx *plugin.Context, w *view.WorldView) []output.Output {
			if ctx.Entity != target {
				return nil
			}
			return []output.Output{output.ApplyDamage{Target: target, Amount: amount}}
		},
	}
}

func spawnShip(t *testing.T, s *sim.Simulation, pos vmath.Vec2) entity.ID {
	t.Helper()
	id, err := s.SpawnEntity(entity.TagShip, entity.ShipBundle(pos, 0))
	require.NoError(t, err)
	return id
}

func TestPhysicsIntegratesWithoutPlugins(t *testing.T) {
	s := sim.New(1)
	b := entity.ShipBundle(vmath.Zero, 0)
	b.Physics.Velocity = vmath.New(60, 0)
	id, err := s.SpawnEntity(entity.TagShip, b)
	require.NoError(t, err)

	require.NoError(t, s.Run(60))

	tf := s.Arena().Get(id).Bundle.Transform
	assert.InDelta(t, 60.0, tf.Position.X, 1e-9)
	assert.InDelta(t, 0.0, tf.Position.Y, 1e-9)
}

func TestDeterministicAcrossRuns(t *testing.T) {
	build := func(workers int) *sim.Simulation {
		s := sim.New(42, sim.WithWorkers(workers))
		for _, p := range plugins.Defaults() {
			require.NoError(t, s.Register(p))
		}
		spawnShip(t, s, vmath.New(0, 0))
		spawnShip(t, s, vmath.New(30, 0))
		_, err := s.SpawnEntity(entity.TagPlatform, entity.PlatformBundle(vmath.New(15, 10)))
		require.NoError(t, err)
		return s
	}

	a := build(1)
	b := build(8)
	for tick := 0; tick < 100; tick++ {
		require.NoError(t, a.Step())
		require.NoError(t, b.Step())
		require.Equal(t, a.StateHash(), b.StateHash(), "tick %d", tick)
	}
}

func TestDamageAccumulatesAcrossPlugins(t *testing.T) {
	s := sim.New(1)
	require.NoError(t, s.Register(damagePlugin("alpha", 0, 10)))
	require.NoError(t, s.Register(damagePlugin("beta", 0, 10)))
	id := spawnShip(t, s, vmath.Zero)

	require.NoError(t, s.Step())

	assert.InDelta(t, 80.0, s.Arena().Get(id).Bundle.Combat.HP, 1e-9)
}

func TestSeededDamageScenario(t *testing.T) {
	run := func() (float64, uint64) {
		s := sim.New(7)
		require.NoError(t, s.Register(damagePlugin("damage", 0, 20)))
		id := spawnShip(t, s, vmath.Zero)
		require.NoError(t, s.Run(3))
		return s.Arena().Get(id).Bundle.Combat.HP, s.StateHash()
	}

	hp1, hash1 := run()
	hp2, hash2 := run()
	assert.InDelta(t, 40.0, hp1, 1e-9)
	assert.Equal(t, hp1, hp2)
	assert.Equal(t, hash1, hash2)
}

func TestRepeatedSetVelocityLastWriteWins(t *testing.T) {
	s := sim.New(1)
	require.NoError(t, s.Register(&stubPlugin{
		decl: plugin.Declaration{
			ID:    "helm",
			Tags:  []entity.Tag{entity.TagShip},
			Reads: []entity.ComponentKind{entity.KindPhysics},
			Emits: []output.Kind{output.KindCommand},
		},
		fn: func(ctx *plugin.Context, w *view.WorldView) []output.Output {
			return []output.Output{
				output.SetVelocity{Target: ctx.Entity, Velocity: vmath.New(100, 0)},
				output.SetVelocity{Target: ctx.Entity, Velocity: vmath.New(0, 12)},
			}
		},
	}))
	id := spawnShip(t, s, vmath.Zero)

	require.NoError(t, s.Step())

	vel := s.Arena().Get(id).Bundle.Physics.Velocity
	assert.InDelta(t, 0.0, vel.X, 1e-9)
	assert.InDelta(t, 12.0, vel.Y, 1e-9)
}

func TestEmitScopeViolationFailsTick(t *testing.T) {
	s := sim.New(1)
	require.NoError(t, s.Register(&stubPlugin{
		decl: plugin.Declaration{
			ID:    "rogue",
			Tags:  []entity.Tag{entity.TagShip},
			Reads: []entity.ComponentKind{entity.KindCombat},
			Emits: []output.Kind{output.KindCommand},
		},
		fn: func(ctx *plugin.Context, w *view.WorldView) []output.Output {
			return []output.Output{output.ApplyDamage{Target: ctx.Entity, Amount: 5}}
		},
	}))
	id := spawnShip(t, s, vmath.Zero)

	err := s.Step()
	require.Error(t, err)
	assert.True(t, fault.IsContractViolation(err))

	// the failed tick must not have touched state, and the failure sticks
	assert.Equal(t, uint64(0), s.Tick())
	assert.InDelta(t, 100.0, s.Arena().Get(id).Bundle.Combat.HP, 1e-9)
	require.Error(t, s.Step())

	s.Reset(1)
	assert.Equal(t, uint64(0), s.Tick())
}

func TestReadScopeViolationFailsTick(t *testing.T) {
	s := sim.New(1)
	require.NoError(t, s.Register(&stubPlugin{
		decl: plugin.Declaration{
			ID:    "peeker",
			Tags:  []entity.Tag{entity.TagShip},
			Reads: []entity.ComponentKind{entity.KindTransform},
			Emits: []output.Kind{output.KindCommand},
		},
		fn: func(ctx *plugin.Context, w *view.WorldView) []output.Output {
			w.Combat(ctx.Entity) // not declared
			return nil
		},
	}))
	spawnShip(t, s, vmath.Zero)

	err := s.Step()
	require.Error(t, err)
	assert.True(t, fault.IsContractViolation(err))
}

func TestDestroyedEntityDespawnsInApply(t *testing.T) {
	s := sim.New(1)
	require.NoError(t, s.Register(damagePlugin("damage", 0, 150)))
	id := spawnShip(t, s, vmath.Zero)

	require.NoError(t, s.Step())

	assert.Nil(t, s.Arena().Get(id))
	var destroyed bool
	for _, r := range s.Bus().Current() {
		if _, ok := r.Fact.(output.EntityDestroyed); ok {
			destroyed = true
		}
	}
	assert.True(t, destroyed, "expected an entity_destroyed fact on the bus")
}

func TestInjectedInputsAreDeterministic(t *testing.T) {
	run := func() uint64 {
		s := sim.New(9)
		id := spawnShip(t, s, vmath.Zero)
		s.Inject(id, output.SetVelocity{Target: id, Velocity: vmath.New(5, 5)})
		require.NoError(t, s.Run(10))
		return s.StateHash()
	}
	assert.Equal(t, run(), run())
}

func TestInjectedVelocityApplies(t *testing.T) {
	s := sim.New(1)
	id := spawnShip(t, s, vmath.Zero)
	s.Inject(id, output.SetVelocity{Target: id, Velocity: vmath.New(6, 0)})

	require.NoError(t, s.Step())

	assert.InDelta(t, 6.0, s.Arena().Get(id).Bundle.Physics.Velocity.X, 1e-9)
	assert.InDelta(t, 6.0*resolver.FixedDT, s.Arena().Get(id).Bundle.Transform.Position.X, 1e-9)
}

func TestSpawnEntityAfterStartRejected(t *testing.T) {
	s := sim.New(1)
	spawnShip(t, s, vmath.Zero)
	require.NoError(t, s.Step())

	_, err := s.SpawnEntity(entity.TagShip, entity.ShipBundle(vmath.Zero, 0))
	require.Error(t, err)
	assert.True(t, fault.IsContractViolation(err))
}

func TestResetReproducesRun(t *testing.T) {
	seedAndRun := func(s *sim.Simulation) uint64 {
		spawnShip(t, s, vmath.New(1, 2))
		spawnShip(t, s, vmath.New(3, 4))
		require.NoError(t, s.Run(20))
		return s.StateHash()
	}

	s := sim.New(11)
	require.NoError(t, s.Register(damagePlugin("damage", 0, 1)))
	first := seedAndRun(s)

	s.Reset(11)
	assert.Equal(t, first, seedAndRun(s))
}

func TestRNGStreamsAreIndependent(t *testing.T) {
	// A plugin that draws randomness on one entity must not change what a
	// second entity's invocation observes.
	draws := make(map[entity.ID]float64)
	build := func(extraDraw bool) *sim.Simulation {
		s := sim.New(5, sim.WithWorkers(1))
		require.NoError(t, s.Register(&stubPlugin{
			decl: plugin.Declaration{
				ID:    "roller",
				Tags:  []entity.Tag{entity.TagShip},
				Reads: []entity.ComponentKind{entity.KindTransform},
				Emits: []output.Kind{output.KindCommand},
			},
			fn: func(ctx *plugin.Context, w *view.WorldView) []output.Output {
				v := ctx.RNG.Float64()
				if extraDraw && ctx.Entity == 0 {
					ctx.RNG.Float64()
				}
				draws[ctx.Entity] = v
				return nil
			},
		}))
		spawnShip(t, s, vmath.Zero)
		spawnShip(t, s, vmath.New(10, 0))
		return s
	}

	require.NoError(t, build(false).Step())
	base := draws[1]
	draws = make(map[entity.ID]float64)
	require.NoError(t, build(true).Step())
	assert.Equal(t, base, draws[1])
}

func TestFactsVisibleNextTick(t *testing.T) {
	var seen []uint64 // ticks on which the plugin observed a fact
	s := sim.New(3, sim.WithWorkers(1))
	require.NoError(t, s.Register(&stubPlugin{
		decl: plugin.Declaration{
			ID:    "emitter",
			Tags:  []entity.Tag{entity.TagShip},
			Reads: []entity.ComponentKind{entity.KindCombat},
			Emits: []output.Kind{output.KindEvent, output.KindModifier},
		},
		fn: func(ctx *plugin.Context, w *view.WorldView) []output.Output {
			for _, r := range w.Events() {
				if _, ok := r.Fact.(output.DamageDealt); ok {
					seen = append(seen, ctx.Tick)
				}
			}
			if ctx.Tick == 0 {
				return []output.Output{output.ApplyDamage{Target: ctx.Entity, Amount: 1}}
			}
			return nil
		},
	}))
	spawnShip(t, s, vmath.Zero)

	require.NoError(t, s.Run(3))
	require.Len(t, seen, 1)
	assert.Equal(t, uint64(1), seen[0], "fact resolved on tick 0 must surface on tick 1")
}

func TestFactProvenanceIsDeterministic(t *testing.T) {
	run := func() []event.Record {
		var recs []event.Record
		s := sim.New(11, sim.WithWorkers(1))
		s.Bus().Subscribe(func(r event.Record) { recs = append(recs, r) })
		require.NoError(t, s.Register(damagePlugin("striker", 1, 5)))
		spawnShip(t, s, vmath.Zero)
		spawnShip(t, s, vmath.New(10, 0))
		require.NoError(t, s.Run(3))
		return recs
	}

	first := run()
	require.NotEmpty(t, first)
	for i, r := range first {
		dd, ok := r.Fact.(output.DamageDealt)
		require.True(t, ok)
		assert.Equal(t, entity.ID(1), dd.Target)
		assert.Equal(t, output.PluginID("striker"), r.Source.Plugin)
		assert.NotZero(t, r.Trace, "fact must carry the emitting invocation's trace")
		if i > 0 {
			assert.Greater(t, r.ID, first[i-1].ID, "event ids are assigned in queue order")
		}
	}

	assert.Equal(t, first, run(), "provenance fields must be identical across reruns")
}

func TestReactiveOutputsCarryCause(t *testing.T) {
	s := sim.New(5, sim.WithWorkers(1))

	require.NoError(t, s.Register(&stubPlugin{
		decl: plugin.Declaration{
			ID:    "spotter",
			Tags:  []entity.Tag{entity.TagShip},
			Reads: []entity.ComponentKind{entity.KindSensor},
			Emits: []output.Kind{output.KindEvent},
		},
		fn: func(ctx *plugin.Context, w *view.WorldView) []output.Output {
			if ctx.Tick != 0 || ctx.Entity != 0 {
				return nil
			}
			return []output.Output{output.ContactDetected{
				Observer: 0, Contact: 1, Quality: entity.QualityCoarse,
			}}
		},
	}))
	require.NoError(t, s.Register(&stubPlugin{
		decl: plugin.Declaration{
			ID:    "avenger",
			Tags:  []entity.Tag{entity.TagShip},
			Reads: []entity.ComponentKind{entity.KindCombat},
			Emits: []output.Kind{output.KindModifier},
		},
		fn: func(ctx *plugin.Context, w *view.WorldView) []output.Output {
			if ctx.Entity != 0 {
				return nil
			}
			var outs []output.Output
			for _, rec := range w.Events() {
				if c, ok := rec.Fact.(output.ContactDetected); ok {
					outs = append(outs, output.Caused{
						Cause:  rec.ID,
						Output: output.ApplyDamage{Target: c.Contact, Amount: 5},
					})
				}
			}
			return outs
		},
	}))
	spawnShip(t, s, vmath.Zero)
	spawnShip(t, s, vmath.New(10, 0))

	var contactID, damageCause output.EventID
	s.Bus().Subscribe(func(r event.Record) {
		switch r.Fact.(type) {
		case output.ContactDetected:
			contactID = r.ID
		case output.DamageDealt:
			damageCause = r.Cause
		}
	})

	require.NoError(t, s.Run(2))
	require.NotZero(t, contactID)
	assert.Equal(t, contactID, damageCause,
		"a reaction to a fact must carry that fact's id as its cause")
	assert.InDelta(t, 95.0, s.Arena().Get(1).Bundle.Combat.HP, 1e-9)
}

func TestOutputVolumeCapFailsTick(t *testing.T) {
	s := sim.New(1, sim.WithWorkers(1), sim.WithMaxEnvelopes(3))
	require.NoError(t, s.Register(&stubPlugin{
		decl: plugin.Declaration{
			ID:    "chatterbox",
			Tags:  []entity.Tag{entity.TagShip},
			Reads: []entity.ComponentKind{entity.KindTransform},
			Emits: []output.Kind{output.KindCommand},
		},
		fn: func(ctx *plugin.Context, w *view.WorldView) []output.Output {
			outs := make([]output.Output, 5)
			for i := range outs {
				outs[i] = output.SetHeading{Target: ctx.Entity, Heading: float64(i)}
			}
			return outs
		},
	}))
	spawnShip(t, s, vmath.Zero)

	err := s.Step()
	require.Error(t, err)
	var ex *fault.ExhaustionError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, "envelopes", ex.Resource)
	assert.Equal(t, uint64(3), ex.Limit)
	assert.Equal(t, uint64(0), s.Tick(), "a capped tick must not apply")

	require.Error(t, s.Step(), "failure sticks until reset")
	s.Reset(1)
	assert.Equal(t, uint64(0), s.Tick())
}
