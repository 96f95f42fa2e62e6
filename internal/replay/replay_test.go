package replay_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tachyon-beep/tidebreak-sub000/internal/core/entity"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/output"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/sim"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/vmath"
	"github.com/tachyon-beep/tidebreak-sub000/internal/plugins"
	"github.com/tachyon-beep/tidebreak-sub000/internal/replay"
)

func buildSim(t *testing.T, seed uint64) *sim.Simulation {
	t.Helper()
	s := sim.New(seed)
	for _, p := range plugins.Defaults() {
		require.NoError(t, s.Register(p))
	}
	_, err := s.SpawnEntity(entity.TagShip, entity.ShipBundle(vmath.Zero, 0))
	require.NoError(t, err)
	_, err = s.SpawnEntity(entity.TagShip, entity.ShipBundle(vmath.New(25, 0), 0))
	require.NoError(t, err)
	return s
}

func record(t *testing.T, seed uint64) *replay.Log {
	t.Helper()
	s := buildSim(t, seed)
	rec := replay.NewRecorder(s, "test")
	for i := 0; i < 30; i++ {
		if i == 5 {
			require.NoError(t, rec.Inject(0, output.SetVelocity{Target: 0, Velocity: vmath.New(3, 4)}))
		}
		if i == 12 {
			require.NoError(t, rec.Inject(1, output.ApplyDamage{Target: 1, Amount: 15}))
		}
		require.NoError(t, rec.Step())
	}
	return rec.Finish()
}

func TestRecordThenVerify(t *testing.T) {
	l := record(t, 77)
	require.Len(t, l.Ticks, 30)
	assert.Equal(t, uint64(77), l.Seed)
	assert.NotZero(t, l.FinalHash)

	require.NoError(t, replay.Verify(buildSim(t, 77), l))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	l := record(t, 77)
	path := filepath.Join(t.TempDir(), "run.json")
	require.NoError(t, l.Save(path))

	loaded, err := replay.LoadLog(path)
	require.NoError(t, err)
	assert.Equal(t, l.RunID, loaded.RunID)
	assert.Equal(t, l.FinalHash, loaded.FinalHash)

	require.NoError(t, replay.Verify(buildSim(t, 77), loaded))
}

func TestVerifyDetectsTamperedHash(t *testing.T) {
	l := record(t, 77)
	l.Ticks[10].Hash ^= 1

	err := replay.Verify(buildSim(t, 77), l)
	require.Error(t, err)
	var div *replay.DivergenceError
	require.ErrorAs(t, err, &div)
	assert.Equal(t, uint64(10), div.Tick)
}

func TestVerifyDetectsMissingInput(t *testing.T) {
	l := record(t, 77)
	l.Ticks[5].Inputs = nil // drop the velocity injection

	err := replay.Verify(buildSim(t, 77), l)
	require.Error(t, err)
	var div *replay.DivergenceError
	require.ErrorAs(t, err, &div)
}

func TestVerifyRejectsSeedMismatch(t *testing.T) {
	l := record(t, 77)
	require.Error(t, replay.Verify(buildSim(t, 78), l))
}

func TestVerifyRejectsNewerVersion(t *testing.T) {
	l := record(t, 77)
	l.Version = replay.Version + 1
	path := filepath.Join(t.TempDir(), "run.json")
	require.NoError(t, l.Save(path))

	_, err := replay.LoadLog(path)
	require.Error(t, err)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env := output.Envelope{
		Output:   output.DamageDealt{Source: 3, Target: 7, Amount: 12.5},
		Source:   output.InstanceID{Entity: 3, Plugin: "weapon"},
		Cause:    output.EventID(41),
		Trace:    output.TraceID(0xdeadbeef),
		Tick:     100,
		Sequence: 2,
	}

	data, err := replay.EncodeEnvelope(env)
	require.NoError(t, err)
	got, err := replay.DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, env, got, "every envelope field survives the audit round trip")
}

func TestDecodeEnvelopeIgnoresUnknownFields(t *testing.T) {
	env := output.Envelope{
		Output: output.SetVelocity{Target: 1, Velocity: vmath.New(6, 0)},
		Source: output.InstanceID{Entity: 1, Plugin: "movement"},
		Tick:   5,
	}
	data, err := replay.EncodeEnvelope(env)
	require.NoError(t, err)

	padded := append([]byte(`{"annotation":"added later",`), data[1:]...)
	got, err := replay.DecodeEnvelope(padded)
	require.NoError(t, err)
	assert.Equal(t, env, got)
}

func TestDecodeEnvelopeRejectsNewerVersion(t *testing.T) {
	_, err := replay.DecodeEnvelope([]byte(`{"version":99,"output":{"name":"detonate","args":{}}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version 99")
}
