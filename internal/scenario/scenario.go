// Package scenario loads initial world definitions from YAML and seeds a
// simulation with them. Unknown fields are ignored so newer files load on
// older builds; anything structurally wrong rejects the whole file.
package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tachyon-beep/tidebreak-sub000/internal/core/entity"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/fault"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/sim"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/vmath"
)

// Scenario is one parsed world definition. A nonzero Seed overrides the
// configured seed; an explicit -seed flag beats both.
type Scenario struct {
	Name     string       `yaml:"name"`
	Seed     uint64       `yaml:"seed"`
	Entities []EntitySpec `yaml:"entities"`
}

// EntitySpec describes one seeded entity. Zero-valued optional fields keep
// the tag's bundle defaults.
type EntitySpec struct {
	Tag        string       `yaml:"tag"`
	Position   Point        `yaml:"position"`
	Heading    float64      `yaml:"heading"`
	Velocity   Point        `yaml:"velocity"`
	HP         float64      `yaml:"hp"`
	RadarRange float64      `yaml:"radar_range"`
	Weapons    []WeaponSpec `yaml:"weapons"`
	Tracks     []TrackSpec  `yaml:"tracks"`
}

// Point is a YAML-friendly coordinate pair.
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// WeaponSpec is one weapon mount override.
type WeaponSpec struct {
	Slot        int     `yaml:"slot"`
	CooldownMax float64 `yaml:"cooldown_max"`
	Ammo        string  `yaml:"ammo"`
}

// TrackSpec pre-seeds a sensor track. Target is the index of another entity
// in this scenario, which is also its spawned id.
type TrackSpec struct {
	Target  int    `yaml:"target"`
	Quality string `yaml:"quality"`
}

// Load reads and validates a scenario file. Validation failures return a
// SchemaError naming the file; nothing is partially loaded.
func Load(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: read %s: %w", path, err)
	}
	return Parse(raw, path)
}

// Parse decodes and validates scenario bytes. The source string only labels
// errors.
func Parse(raw []byte, source string) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return nil, &fault.SchemaError{Source: source, Detail: err.Error()}
	}
	if len(sc.Entities) == 0 {
		return nil, &fault.SchemaError{Source: source, Detail: "scenario defines no entities"}
	}
	for i, e := range sc.Entities {
		if _, err := entity.ParseTag(e.Tag); err != nil {
			return nil, &fault.SchemaError{
				Source: source,
				Detail: fmt.Sprintf("entity %d: %v", i, err),
			}
		}
		if e.HP < 0 {
			return nil, &fault.SchemaError{
				Source: source,
				Detail: fmt.Sprintf("entity %d: negative hp", i),
			}
		}
		for _, w := range e.Weapons {
			if _, err := parseAmmo(w.Ammo); err != nil {
				return nil, &fault.SchemaError{
					Source: source,
					Detail: fmt.Sprintf("entity %d: %v", i, err),
				}
			}
		}
		for _, tr := range e.Tracks {
			if tr.Target < 0 || tr.Target >= len(sc.Entities) || tr.Target == i {
				return nil, &fault.SchemaError{
					Source: source,
					Detail: fmt.Sprintf("entity %d: track target %d out of range", i, tr.Target),
				}
			}
			if _, err := parseQuality(tr.Quality); err != nil {
				return nil, &fault.SchemaError{
					Source: source,
					Detail: fmt.Sprintf("entity %d: %v", i, err),
				}
			}
		}
	}
	return &sc, nil
}

// Apply seeds every entity into the simulation, in file order. Must run
// before the first tick.
func (sc *Scenario) Apply(s *sim.Simulation) error {
	for i, spec := range sc.Entities {
		tag, err := entity.ParseTag(spec.Tag)
		if err != nil {
			return err
		}
		bundle := entity.BundleFor(tag, vmath.New(spec.Position.X, spec.Position.Y), spec.Heading)
		if bundle.Physics != nil && (spec.Velocity.X != 0 || spec.Velocity.Y != 0) {
			bundle.Physics.Velocity = vmath.New(spec.Velocity.X, spec.Velocity.Y)
		}
		if spec.HP > 0 && bundle.Combat != nil {
			bundle.Combat.HP = spec.HP
			bundle.Combat.MaxHP = spec.HP
		}
		if spec.RadarRange > 0 && bundle.Sensor != nil {
			bundle.Sensor.RadarRange = spec.RadarRange
		}
		if len(spec.Weapons) > 0 && bundle.Combat != nil {
			bundle.Combat.Weapons = bundle.Combat.Weapons[:0]
			for _, w := range spec.Weapons {
				ammo, _ := parseAmmo(w.Ammo)
				bundle.Combat.Weapons = append(bundle.Combat.Weapons, entity.WeaponState{
					Slot:        w.Slot,
					CooldownMax: w.CooldownMax,
					Ammo:        ammo,
				})
			}
		}
		if len(spec.Tracks) > 0 && bundle.Sensor != nil {
			for _, tr := range spec.Tracks {
				quality, _ := parseQuality(tr.Quality)
				target := sc.Entities[tr.Target]
				bundle.Sensor.Tracks = append(bundle.Sensor.Tracks, entity.Track{
					Target:   entity.ID(tr.Target),
					Position: vmath.New(target.Position.X, target.Position.Y),
					Quality:  quality,
				})
			}
		}
		if _, err := s.SpawnEntity(tag, bundle); err != nil {
			return fmt.Errorf("scenario %s: entity %d: %w", sc.Name, i, err)
		}
	}
	return nil
}

func parseAmmo(name string) (entity.AmmoType, error) {
	switch name {
	case "", "bullet":
		return entity.AmmoBullet, nil
	case "missile":
		return entity.AmmoMissile, nil
	case "torpedo":
		return entity.AmmoTorpedo, nil
	default:
		return 0, fmt.Errorf("unknown ammo type %q", name)
	}
}

func parseQuality(name string) (entity.TrackQuality, error) {
	switch name {
	case "", "coarse":
		return entity.QualityCoarse, nil
	case "tracking":
		return entity.QualityTracking, nil
	case "fire_control":
		return entity.QualityFireControl, nil
	default:
		return 0, fmt.Errorf("unknown track quality %q", name)
	}
}
