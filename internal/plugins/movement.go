// Package plugins holds the stock behavior modules shipped with the kernel.
// Each is a small pure function over a scoped world view; scenario files and
// scripts compose them with scripted plugins at load time.
package plugins

import (
	"math"

	"github.com/tachyon-beep/tidebreak-sub000/internal/core/entity"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/output"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/plugin"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/view"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/vmath"
)

const cruiseSpeed = 10.0

// Movement puts stationary hulls underway along their current heading.
// Entities already moving are left alone; course changes come from injected
// commands or scripted plugins.
type Movement struct {
	decl plugin.Declaration
}

func NewMovement() *Movement {
	return &Movement{decl: plugin.Declaration{
		ID:    "movement",
		Tags:  []entity.Tag{entity.TagShip, entity.TagSquadron},
		Reads: []entity.ComponentKind{entity.KindTransform, entity.KindPhysics},
		Emits: []output.Kind{output.KindCommand},
	}}
}

func (m *Movement) Declaration() *plugin.Declaration { return &m.decl }

func (m *Movement) Run(ctx *plugin.Context, w *view.WorldView) []output.Output {
	ph := w.Physics(ctx.Entity)
	tf := w.Transform(ctx.Entity)
	if ph == nil || tf == nil {
		return nil
	}
	if ph.Velocity.LengthSq() > 0 {
		return nil
	}
	vel := vmath.New(math.Cos(tf.Heading), math.Sin(tf.Heading)).Scale(cruiseSpeed)
	return []output.Output{output.SetVelocity{Target: ctx.Entity, Velocity: vel}}
}
