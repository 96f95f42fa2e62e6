// Package output defines the proposal taxonomy plugins emit and the causal
// envelope that carries every proposal through the resolver pipeline.
package output

import (
	"fmt"

	"github.com/tachyon-beep/tidebreak-sub000/internal/core/entity"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/vmath"
)

// PluginID names a registered plugin. IDs are compared lexically when
// envelopes are put into total order.
type PluginID string

// InstanceID is one (entity, plugin) pairing, the unit of plugin execution.
type InstanceID struct {
	Entity entity.ID
	Plugin PluginID
}

func (i InstanceID) String() string {
	return fmt.Sprintf("%s/%s", i.Entity, i.Plugin)
}

// TraceID is the root identifier shared by an entire causal chain. It is
// derived from (seed, tick, entity, plugin index), so replaying a tick
// reproduces the same ids.
type TraceID uint64

// EventID identifies a resolved fact. Zero means "no cause".
type EventID uint64

// Kind partitions outputs into the four resolver-facing categories.
type Kind uint8

const (
	KindCommand Kind = iota
	KindModifier
	KindEvent
	KindReservation
)

var kindNames = [...]string{"command", "modifier", "event", "reservation"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Output is a proposal. Outputs never mutate anything; they are data handed
// to resolvers.
type Output interface {
	Kind() Kind
	// Name is the variant name used in audit serialization.
	Name() string
}

// ── Commands ──

// SetVelocity requests a new velocity for the target. Last write in total
// order wins.
type SetVelocity struct {
	Target   entity.ID
	Velocity vmath.Vec2
}

func (SetVelocity) Kind() Kind   { return KindCommand }
func (SetVelocity) Name() string { return "set_velocity" }

// SetHeading requests a new heading (radians) for the target.
type SetHeading struct {
	Target  entity.ID
	Heading float64
}

func (SetHeading) Kind() Kind   { return KindCommand }
func (SetHeading) Name() string { return "set_heading" }

// FireWeapon requests that Source's weapon in Slot fire at Target.
type FireWeapon struct {
	Source entity.ID
	Target entity.ID
	Slot   int
}

func (FireWeapon) Kind() Kind   { return KindCommand }
func (FireWeapon) Name() string { return "fire_weapon" }

// SpawnProjectile requests a projectile spawn. The spawn itself happens in
// the apply phase; the command only queues it.
type SpawnProjectile struct {
	Owner    entity.ID
	Position vmath.Vec2
	Velocity vmath.Vec2
}

func (SpawnProjectile) Kind() Kind   { return KindCommand }
func (SpawnProjectile) Name() string { return "spawn_projectile" }

// Detonate removes a spent projectile during apply.
type Detonate struct {
	Target entity.ID
}

func (Detonate) Kind() Kind   { return KindCommand }
func (Detonate) Name() string { return "detonate" }

// ── Modifiers ──

// ApplyDamage requests an HP decrease on the target.
type ApplyDamage struct {
	Target entity.ID
	Amount float64
}

func (ApplyDamage) Kind() Kind   { return KindModifier }
func (ApplyDamage) Name() string { return "apply_damage" }

// ApplyHealing requests an HP increase on the target, capped at MaxHP.
type ApplyHealing struct {
	Target entity.ID
	Amount float64
}

func (ApplyHealing) Kind() Kind   { return KindModifier }
func (ApplyHealing) Name() string { return "apply_healing" }

// SetStatusFlag requests a status flag change on the target.
type SetStatusFlag struct {
	Target entity.ID
	Flag   entity.StatusFlags
	Value  bool
}

func (SetStatusFlag) Kind() Kind   { return KindModifier }
func (SetStatusFlag) Name() string { return "set_status_flag" }

// StatID names a scalar stat a generic resolver can adjust.
type StatID string

const (
	StatHP         StatID = "hp"
	StatMaxHP      StatID = "max_hp"
	StatRadarRange StatID = "radar_range"
	StatMass       StatID = "mass"
)

// StatOp selects the merge policy for ModifyStat.
type StatOp uint8

const (
	OpSet StatOp = iota // last write in total order wins
	OpAdd               // deltas accumulate
)

func (op StatOp) String() string {
	if op == OpAdd {
		return "add"
	}
	return "set"
}

// ModifyStat requests a generic scalar change to a named stat.
type ModifyStat struct {
	Target entity.ID
	Stat   StatID
	Op     StatOp
	Value  float64
}

func (ModifyStat) Kind() Kind   { return KindModifier }
func (ModifyStat) Name() string { return "modify_stat" }

// ── Events ──

// WeaponFired records that a weapon discharged.
type WeaponFired struct {
	Source entity.ID
	Slot   int
}

func (WeaponFired) Kind() Kind   { return KindEvent }
func (WeaponFired) Name() string { return "weapon_fired" }

// DamageDealt records resolved damage.
type DamageDealt struct {
	Source entity.ID
	Target entity.ID
	Amount float64
}

func (DamageDealt) Kind() Kind   { return KindEvent }
func (DamageDealt) Name() string { return "damage_dealt" }

// EntityDestroyed records that the target dropped to zero HP.
type EntityDestroyed struct {
	Target entity.ID
}

func (EntityDestroyed) Kind() Kind   { return KindEvent }
func (EntityDestroyed) Name() string { return "entity_destroyed" }

// ContactDetected records a sensor contact.
type ContactDetected struct {
	Observer entity.ID
	Contact  entity.ID
	Quality  entity.TrackQuality
}

func (ContactDetected) Kind() Kind   { return KindEvent }
func (ContactDetected) Name() string { return "contact_detected" }

// ── Reservations ──

// ClaimResource claims a contended resource for the holder. The first claim
// in total order wins for a given resource key each tick.
type ClaimResource struct {
	Resource string
	Holder   entity.ID
}

func (ClaimResource) Kind() Kind   { return KindReservation }
func (ClaimResource) Name() string { return "claim_resource" }

// ResourceGranted records that a claim won its resource key for the tick.
type ResourceGranted struct {
	Resource string
	Holder   entity.ID
}

func (ResourceGranted) Kind() Kind   { return KindEvent }
func (ResourceGranted) Name() string { return "resource_granted" }

// ── Causality ──

// Caused tags an output with the event id that triggered it. The executor
// unwraps the tag and stamps the cause on the envelope, linking a reaction
// back to the fact it reacted to.
type Caused struct {
	Cause EventID
	Output
}
