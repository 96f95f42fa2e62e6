package plugins

import (
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/entity"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/output"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/plugin"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/view"
)

const (
	hitRadius     = 2.0
	warheadDamage = 25.0
)

// Projectile detonates on proximity. The nearest non-projectile entity
// inside the hit radius takes warhead damage and the round despawns during
// apply; until then it just flies.
type Projectile struct {
	decl plugin.Declaration
}

func NewProjectile() *Projectile {
	return &Projectile{decl: plugin.Declaration{
		ID:    "projectile",
		Tags:  []entity.Tag{entity.TagProjectile},
		Reads: []entity.ComponentKind{entity.KindTransform, entity.KindPhysics},
		Emits: []output.Kind{output.KindCommand, output.KindModifier},
	}}
}

func (p *Projectile) Declaration() *plugin.Declaration { return &p.decl }

func (p *Projectile) Run(ctx *plugin.Context, w *view.WorldView) []output.Output {
	tf := w.Transform(ctx.Entity)
	if tf == nil {
		return nil
	}
	for _, id := range w.QueryRadius(tf.Position, hitRadius) {
		if id == ctx.Entity {
			continue
		}
		if tag, ok := w.Entity(id); !ok || tag == entity.TagProjectile {
			continue
		}
		return []output.Output{
			output.ApplyDamage{Target: id, Amount: warheadDamage},
			output.Detonate{Target: ctx.Entity},
		}
	}
	return nil
}
