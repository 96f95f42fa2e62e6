package entity

import (
	"fmt"

	"github.com/tachyon-beep/tidebreak-sub000/internal/core/vmath"
)

// ComponentKind is the discrete identifier a scoped view checks before
// handing out a component.
type ComponentKind uint8

const (
	KindTransform ComponentKind = iota
	KindPhysics
	KindCombat
	KindSensor
	KindInventory

	componentKindCount = iota
)

var kindNames = [...]string{"transform", "physics", "combat", "sensor", "inventory"}

func (k ComponentKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("component(%d)", uint8(k))
}

// AllComponentKinds lists every kind in declaration order.
func AllComponentKinds() []ComponentKind {
	kinds := make([]ComponentKind, componentKindCount)
	for i := range kinds {
		kinds[i] = ComponentKind(i)
	}
	return kinds
}

// Transform is the spatial pose of an entity.
type Transform struct {
	Position vmath.Vec2
	Heading  float64 // radians
}

// Physics is the motion state integrated each tick.
type Physics struct {
	Velocity     vmath.Vec2
	Acceleration vmath.Vec2
	Mass         float64
}

// StatusFlags is a bitset of discrete entity conditions.
type StatusFlags uint32

const (
	FlagDestroyed StatusFlags = 1 << iota
	FlagDisabled
	FlagStealthed
)

func (f StatusFlags) Has(flag StatusFlags) bool { return f&flag != 0 }

// AmmoType distinguishes weapon ammunition pools.
type AmmoType uint8

const (
	AmmoBullet AmmoType = iota
	AmmoMissile
	AmmoTorpedo
)

// WeaponState is one weapon slot's firing state.
type WeaponState struct {
	Slot        int
	Cooldown    float64 // seconds until ready; 0 = ready
	CooldownMax float64
	Ammo        AmmoType
}

// Ready reports whether the weapon can fire this tick.
func (w *WeaponState) Ready() bool { return w.Cooldown <= 0 }

// Combat holds hit points, weapons, and status flags.
type Combat struct {
	HP      float64
	MaxHP   float64
	Weapons []WeaponState
	Flags   StatusFlags
}

// Destroyed reports whether the entity is out of the fight.
func (c *Combat) Destroyed() bool { return c.Flags.Has(FlagDestroyed) || c.HP <= 0 }

// Weapon returns the weapon in the given slot, or nil.
func (c *Combat) Weapon(slot int) *WeaponState {
	for i := range c.Weapons {
		if c.Weapons[i].Slot == slot {
			return &c.Weapons[i]
		}
	}
	return nil
}

// TrackQuality grades how well a sensor contact is resolved.
type TrackQuality uint8

const (
	QualityCoarse TrackQuality = iota
	QualityTracking
	QualityFireControl
)

// Track is one entry in a sensor's contact table.
type Track struct {
	Target   ID
	Position vmath.Vec2 // last observed position
	Quality  TrackQuality
}

// Sensor holds detection range and the current track table.
type Sensor struct {
	RadarRange float64
	Tracks     []Track
}

// Inventory holds consumable stores and per-tick resource grants.
type Inventory struct {
	Ammo map[AmmoType]int
	// Reserved maps a resource key to the entity granted the claim this
	// tick. Cleared when the next generation is built.
	Reserved map[string]ID
}
