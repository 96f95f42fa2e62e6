package plugins

import (
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/entity"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/output"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/plugin"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/view"
)

// Sensor sweeps the radar. One ContactDetected event per entity inside
// radar range, coarse quality; the track resolver folds these into the
// observer's track table for the next tick.
type Sensor struct {
	decl plugin.Declaration
}

func NewSensor() *Sensor {
	return &Sensor{decl: plugin.Declaration{
		ID:    "sensor",
		Tags:  []entity.Tag{entity.TagShip, entity.TagPlatform},
		Reads: []entity.ComponentKind{entity.KindTransform, entity.KindSensor},
		Emits: []output.Kind{output.KindEvent},
	}}
}

func (s *Sensor) Declaration() *plugin.Declaration { return &s.decl }

func (s *Sensor) Run(ctx *plugin.Context, w *view.WorldView) []output.Output {
	tf := w.Transform(ctx.Entity)
	sn := w.Sensor(ctx.Entity)
	if tf == nil || sn == nil || sn.RadarRange <= 0 {
		return nil
	}
	var outs []output.Output
	for _, id := range w.QueryRadius(tf.Position, sn.RadarRange) {
		if id == ctx.Entity {
			continue
		}
		outs = append(outs, output.ContactDetected{
			Observer: ctx.Entity,
			Contact:  id,
			Quality:  entity.QualityCoarse,
		})
	}
	return outs
}
