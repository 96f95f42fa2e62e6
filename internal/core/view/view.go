// Package view provides the scoped, read-only façade plugins see. Every
// component accessor checks the plugin's declared readable set; an
// undeclared read is a contract violation, not a soft miss.
package view

import (
	"fmt"

	"github.com/tachyon-beep/tidebreak-sub000/internal/core/arena"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/entity"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/event"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/fault"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/output"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/vmath"
)

// WorldView wraps the current generation for one (entity, plugin) execution.
// It is immutable and safe to share across the parallel plugin phase.
type WorldView struct {
	cur     *arena.Arena
	tick    uint64
	facts   []event.Record
	plugin  output.PluginID
	allowed uint32 // bitset over entity.ComponentKind; ^0 = full access
	strict  bool

	violation *fault.ContractViolation // first undeclared access, if any
}

// ForPlugin builds a view scoped to the declared readable component kinds.
// In strict mode an undeclared access panics at the call site; otherwise it
// is recorded and the accessor returns nil.
func ForPlugin(cur *arena.Arena, tick uint64, plugin output.PluginID, reads []entity.ComponentKind, facts []event.Record, strict bool) *WorldView {
	var mask uint32
	for _, k := range reads {
		mask |= 1 << uint32(k)
	}
	return &WorldView{
		cur:     cur,
		tick:    tick,
		facts:   facts,
		plugin:  plugin,
		allowed: mask,
		strict:  strict,
	}
}

// FullAccess builds an unscoped view for inspection tooling.
func FullAccess(cur *arena.Arena, tick uint64) *WorldView {
	return &WorldView{cur: cur, tick: tick, allowed: ^uint32(0)}
}

// Tick returns the tick this view is frozen at.
func (v *WorldView) Tick() uint64 { return v.tick }

// Violation returns the first recorded contract violation, or nil. The
// executor checks this after every plugin run.
func (v *WorldView) Violation() *fault.ContractViolation { return v.violation }

func (v *WorldView) checkAccess(kind entity.ComponentKind, id entity.ID) bool {
	if v.allowed&(1<<uint32(kind)) != 0 {
		return true
	}
	cv := &fault.ContractViolation{
		Phase:     "plugin",
		Plugin:    string(v.plugin),
		Entity:    uint64(id),
		Component: kind.String(),
		Detail:    "component kind not in declared reads",
	}
	if v.strict {
		panic(fmt.Sprintf("worldview: access denied: %v", cv))
	}
	if v.violation == nil {
		v.violation = cv
	}
	return false
}

// Entity reports existence and tag. Identity queries are always in scope.
func (v *WorldView) Entity(id entity.ID) (entity.Tag, bool) {
	e := v.cur.Get(id)
	if e == nil {
		return 0, false
	}
	return e.Tag, true
}

// Transform returns the target's pose, or nil if the entity is gone, lacks
// the component, or the kind was not declared.
func (v *WorldView) Transform(id entity.ID) *entity.Transform {
	if !v.checkAccess(entity.KindTransform, id) {
		return nil
	}
	if e := v.cur.Get(id); e != nil {
		return e.Bundle.Transform
	}
	return nil
}

func (v *WorldView) Physics(id entity.ID) *entity.Physics {
	if !v.checkAccess(entity.KindPhysics, id) {
		return nil
	}
	if e := v.cur.Get(id); e != nil {
		return e.Bundle.Physics
	}
	return nil
}

func (v *WorldView) Combat(id entity.ID) *entity.Combat {
	if !v.checkAccess(entity.KindCombat, id) {
		return nil
	}
	if e := v.cur.Get(id); e != nil {
		return e.Bundle.Combat
	}
	return nil
}

func (v *WorldView) Sensor(id entity.ID) *entity.Sensor {
	if !v.checkAccess(entity.KindSensor, id) {
		return nil
	}
	if e := v.cur.Get(id); e != nil {
		return e.Bundle.Sensor
	}
	return nil
}

func (v *WorldView) Inventory(id entity.ID) *entity.Inventory {
	if !v.checkAccess(entity.KindInventory, id) {
		return nil
	}
	if e := v.cur.Get(id); e != nil {
		return e.Bundle.Inventory
	}
	return nil
}

// QueryRadius returns ids within radius of center, ascending. Spatial
// queries are always in scope; only component payloads are gated.
func (v *WorldView) QueryRadius(center vmath.Vec2, radius float64) []entity.ID {
	return v.cur.QueryRadius(center, radius)
}

// QueryByTag returns ids with the given tag, ascending.
func (v *WorldView) QueryByTag(tag entity.Tag) []entity.ID {
	return v.cur.QueryByTag(tag)
}

// Events returns the facts resolved on the previous tick, in their resolved
// order. Reactive plugins read these and wrap what they emit in
// output.Caused to link the reaction to its trigger.
func (v *WorldView) Events() []event.Record { return v.facts }
