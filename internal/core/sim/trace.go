package sim

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/tachyon-beep/tidebreak-sub000/internal/core/output"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/rng"
)

// externalTraceIndex stands in for a plugin index when the source is an
// injected input. Real registration indexes are small; this cannot collide.
const externalTraceIndex = ^uint64(0)

// deriveTrace computes the stable trace id for one (entity, plugin)
// invocation. It is a pure function of (seed, tick, entity, plugin index),
// so the same invocation carries the same trace id in every run.
func deriveTrace(seed, tick, entityID, pluginIndex uint64) output.TraceID {
	var buf [32]byte
	binary.LittleEndian.PutUint64(buf[0:], seed)
	binary.LittleEndian.PutUint64(buf[8:], tick)
	binary.LittleEndian.PutUint64(buf[16:], entityID)
	binary.LittleEndian.PutUint64(buf[24:], pluginIndex)
	return output.TraceID(xxhash.Sum64(buf[:]))
}

// deriveStream seeds a private random stream for one invocation from the
// master state, which advances once per apply. Draws from one stream never
// perturb any other invocation's stream.
func deriveStream(masterState, entityID uint64, pluginID output.PluginID) *rng.Stream {
	h := xxhash.New()
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:], masterState)
	binary.LittleEndian.PutUint64(buf[8:], entityID)
	_, _ = h.Write(buf[:])
	_, _ = h.WriteString(string(pluginID))
	return rng.New(h.Sum64())
}

// splitmix advances the master stream state, once per apply phase. Mixing
// happens at derivation time; the state walk is the plain Weyl sequence.
func splitmix(state uint64) uint64 {
	return state + 0x9e3779b97f4a7c15
}
