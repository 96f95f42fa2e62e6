package resolver

import (
	"sort"

	"github.com/tachyon-beep/tidebreak-sub000/internal/core/entity"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/output"
)

// SensorTracks folds ContactDetected events into the observer's track
// table. It consumes the same Event kind the EventLog resolver does; both
// see the full filtered batch because filtering never consumes envelopes.
type SensorTracks struct{}

func NewSensorTracks() *SensorTracks { return &SensorTracks{} }

func (*SensorTracks) Name() string           { return "sensor_tracks" }
func (*SensorTracks) Handles() []output.Kind { return []output.Kind{output.KindEvent} }

func (t *SensorTracks) Resolve(ctx *Context, batch []output.Envelope) error {
	touched := make(map[entity.ID]bool)
	for _, env := range batch {
		contact, ok := env.Output.(output.ContactDetected)
		if !ok {
			continue
		}
		obs := ctx.Next.GetMut(contact.Observer)
		if obs == nil || obs.Bundle.Sensor == nil {
			continue
		}
		seen := ctx.Current.Get(contact.Contact)
		if seen == nil || seen.Bundle.Transform == nil {
			continue
		}
		if !touched[contact.Observer] {
			// First contact for this observer this tick rebuilds the table.
			obs.Bundle.Sensor.Tracks = obs.Bundle.Sensor.Tracks[:0]
			touched[contact.Observer] = true
		}
		upsert(obs.Bundle.Sensor, entity.Track{
			Target:   contact.Contact,
			Position: seen.Bundle.Transform.Position,
			Quality:  contact.Quality,
		})
	}
	// Observers with no contacts this tick lose their table. Stale tracks
	// would otherwise keep weapons firing at departed targets forever.
	ctx.Next.Each(func(e *entity.Entity) {
		if e.Bundle.Sensor != nil && !touched[e.ID] {
			e.Bundle.Sensor.Tracks = e.Bundle.Sensor.Tracks[:0]
		}
	})
	return nil
}

func upsert(s *entity.Sensor, tr entity.Track) {
	for i := range s.Tracks {
		if s.Tracks[i].Target == tr.Target {
			if tr.Quality > s.Tracks[i].Quality {
				s.Tracks[i] = tr
			}
			return
		}
	}
	s.Tracks = append(s.Tracks, tr)
	sort.Slice(s.Tracks, func(i, j int) bool { return s.Tracks[i].Target < s.Tracks[j].Target })
}
