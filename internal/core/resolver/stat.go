package resolver

import (
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/entity"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/output"
)

// Stat is the generic modifier resolver. Set operations are last-write-wins
// in batch order, Add operations accumulate. It runs before Combat so that
// max-HP adjustments land before damage is clamped against them.
type Stat struct{}

func NewStat() *Stat { return &Stat{} }

func (*Stat) Name() string           { return "stat" }
func (*Stat) Handles() []output.Kind { return []output.Kind{output.KindModifier} }

func (s *Stat) Resolve(ctx *Context, batch []output.Envelope) error {
	for _, env := range batch {
		mod, ok := env.Output.(output.ModifyStat)
		if !ok {
			continue
		}
		e := ctx.Next.GetMut(mod.Target)
		if e == nil {
			continue
		}
		apply(e, mod)
	}
	return nil
}

func apply(e *entity.Entity, mod output.ModifyStat) {
	set := func(dst *float64) {
		switch mod.Op {
		case output.OpSet:
			*dst = mod.Value
		case output.OpAdd:
			*dst += mod.Value
		}
	}
	switch mod.Stat {
	case output.StatHP:
		if e.Bundle.Combat != nil {
			set(&e.Bundle.Combat.HP)
			if e.Bundle.Combat.HP > e.Bundle.Combat.MaxHP {
				e.Bundle.Combat.HP = e.Bundle.Combat.MaxHP
			}
		}
	case output.StatMaxHP:
		if e.Bundle.Combat != nil {
			set(&e.Bundle.Combat.MaxHP)
		}
	case output.StatRadarRange:
		if e.Bundle.Sensor != nil {
			set(&e.Bundle.Sensor.RadarRange)
		}
	case output.StatMass:
		if e.Bundle.Physics != nil {
			set(&e.Bundle.Physics.Mass)
		}
	}
}
