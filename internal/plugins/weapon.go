package plugins

import (
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/entity"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/output"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/plugin"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/view"
)

// Weapon fires every ready mount at the first held track. Whether the shot
// is actually legal this tick is the physics resolver's call; the plugin
// only proposes it.
type Weapon struct {
	decl plugin.Declaration
}

func NewWeapon() *Weapon {
	return &Weapon{decl: plugin.Declaration{
		ID:    "weapon",
		Tags:  []entity.Tag{entity.TagShip},
		Reads: []entity.ComponentKind{entity.KindCombat, entity.KindSensor},
		Emits: []output.Kind{output.KindCommand},
	}}
}

func (wp *Weapon) Declaration() *plugin.Declaration { return &wp.decl }

func (wp *Weapon) Run(ctx *plugin.Context, w *view.WorldView) []output.Output {
	cb := w.Combat(ctx.Entity)
	sn := w.Sensor(ctx.Entity)
	if cb == nil || sn == nil || cb.Destroyed() || len(sn.Tracks) == 0 {
		return nil
	}
	target := sn.Tracks[0].Target
	var outs []output.Output
	for i := range cb.Weapons {
		if cb.Weapons[i].Ready() {
			outs = append(outs, output.FireWeapon{
				Source: ctx.Entity,
				Target: target,
				Slot:   cb.Weapons[i].Slot,
			})
		}
	}
	return outs
}
