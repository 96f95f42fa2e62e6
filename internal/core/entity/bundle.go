package entity

import "github.com/tachyon-beep/tidebreak-sub000/internal/core/vmath"

// Bundle is the concrete component set attached to an entity. Which fields
// are non-nil is determined by the tag at spawn and never changes:
//
//	ship       transform physics combat sensor inventory
//	platform   transform                sensor
//	projectile transform physics
//	squadron   transform physics combat
type Bundle struct {
	Transform *Transform
	Physics   *Physics
	Combat    *Combat
	Sensor    *Sensor
	Inventory *Inventory
}

// Has reports whether the bundle carries the given component kind.
func (b *Bundle) Has(kind ComponentKind) bool {
	switch kind {
	case KindTransform:
		return b.Transform != nil
	case KindPhysics:
		return b.Physics != nil
	case KindCombat:
		return b.Combat != nil
	case KindSensor:
		return b.Sensor != nil
	case KindInventory:
		return b.Inventory != nil
	}
	return false
}

// Kinds returns the component kinds present, in declaration order.
func (b *Bundle) Kinds() []ComponentKind {
	var kinds []ComponentKind
	for _, k := range AllComponentKinds() {
		if b.Has(k) {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Clone deep-copies the bundle, including slices and maps, so the next
// generation never aliases the current one.
func (b *Bundle) Clone() Bundle {
	var c Bundle
	if b.Transform != nil {
		t := *b.Transform
		c.Transform = &t
	}
	if b.Physics != nil {
		p := *b.Physics
		c.Physics = &p
	}
	if b.Combat != nil {
		cb := *b.Combat
		cb.Weapons = append([]WeaponState(nil), b.Combat.Weapons...)
		c.Combat = &cb
	}
	if b.Sensor != nil {
		s := *b.Sensor
		s.Tracks = append([]Track(nil), b.Sensor.Tracks...)
		c.Sensor = &s
	}
	if b.Inventory != nil {
		inv := Inventory{
			Ammo:     make(map[AmmoType]int, len(b.Inventory.Ammo)),
			Reserved: make(map[string]ID, len(b.Inventory.Reserved)),
		}
		for k, v := range b.Inventory.Ammo {
			inv.Ammo[k] = v
		}
		for k, v := range b.Inventory.Reserved {
			inv.Reserved[k] = v
		}
		c.Inventory = &inv
	}
	return c
}

// ShipBundle builds the full five-component bundle for a mobile unit.
func ShipBundle(pos vmath.Vec2, heading float64) Bundle {
	return Bundle{
		Transform: &Transform{Position: pos, Heading: heading},
		Physics:   &Physics{Mass: 1},
		Combat:    &Combat{HP: 100, MaxHP: 100},
		Sensor:    &Sensor{RadarRange: 50},
		Inventory: &Inventory{Ammo: map[AmmoType]int{}, Reserved: map[string]ID{}},
	}
}

// PlatformBundle builds the stationary sensor bundle.
func PlatformBundle(pos vmath.Vec2) Bundle {
	return Bundle{
		Transform: &Transform{Position: pos},
		Sensor:    &Sensor{RadarRange: 80},
	}
}

// ProjectileBundle builds the transform+physics bundle for a projectile in
// flight.
func ProjectileBundle(pos vmath.Vec2, heading float64, vel vmath.Vec2) Bundle {
	return Bundle{
		Transform: &Transform{Position: pos, Heading: heading},
		Physics:   &Physics{Velocity: vel, Mass: 0.01},
	}
}

// SquadronBundle builds the group bundle (moves and fights, no own sensors).
func SquadronBundle(pos vmath.Vec2, heading float64) Bundle {
	return Bundle{
		Transform: &Transform{Position: pos, Heading: heading},
		Physics:   &Physics{Mass: 5},
		Combat:    &Combat{HP: 300, MaxHP: 300},
	}
}

// BundleFor returns the default bundle for a tag at the given pose.
func BundleFor(tag Tag, pos vmath.Vec2, heading float64) Bundle {
	switch tag {
	case TagPlatform:
		return PlatformBundle(pos)
	case TagProjectile:
		return ProjectileBundle(pos, heading, vmath.Zero)
	case TagSquadron:
		return SquadronBundle(pos, heading)
	default:
		return ShipBundle(pos, heading)
	}
}

// TagComponents returns the component kinds a tag's bundle carries. Plugin
// registration validates declared reads against this matrix.
func TagComponents(tag Tag) []ComponentKind {
	switch tag {
	case TagPlatform:
		return []ComponentKind{KindTransform, KindSensor}
	case TagProjectile:
		return []ComponentKind{KindTransform, KindPhysics}
	case TagSquadron:
		return []ComponentKind{KindTransform, KindPhysics, KindCombat}
	default:
		return AllComponentKinds()
	}
}
