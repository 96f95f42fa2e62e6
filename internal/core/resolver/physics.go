package resolver

import (
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/entity"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/output"
)

// FixedDT is the simulation timestep in seconds (60 Hz).
const FixedDT = 1.0 / 60.0

// Physics consumes Command outputs. Velocity and heading commands are
// last-write-wins in batch order; weapon fire starts cooldowns and queues
// projectile spawns for the apply phase. After commands are applied, every
// entity with motion state is integrated, whether or not anything targeted
// it this tick, and the spatial index is re-synced.
type Physics struct{}

func NewPhysics() *Physics { return &Physics{} }

func (*Physics) Name() string           { return "physics" }
func (*Physics) Handles() []output.Kind { return []output.Kind{output.KindCommand} }

func (p *Physics) Resolve(ctx *Context, batch []output.Envelope) error {
	for _, env := range batch {
		switch cmd := env.Output.(type) {
		case output.SetVelocity:
			if e := ctx.Next.GetMut(cmd.Target); e != nil && e.Bundle.Physics != nil {
				e.Bundle.Physics.Velocity = cmd.Velocity
			}
		case output.SetHeading:
			if e := ctx.Next.GetMut(cmd.Target); e != nil && e.Bundle.Transform != nil {
				e.Bundle.Transform.Heading = cmd.Heading
			}
		case output.FireWeapon:
			p.fire(ctx, env, cmd)
		case output.Detonate:
			ctx.Effects.QueueDespawn(cmd.Target)
		case output.SpawnProjectile:
			ctx.Effects.QueueSpawn(Spawn{
				Tag:    entity.TagProjectile,
				Bundle: entity.ProjectileBundle(cmd.Position, 0, cmd.Velocity),
				Trace:  env.Trace,
				Cause:  env.Cause,
			})
		}
	}

	p.integrate(ctx)
	return nil
}

// fire validates the shot against the frozen current generation, then
// writes the cooldown to next and queues the projectile.
func (p *Physics) fire(ctx *Context, env output.Envelope, cmd output.FireWeapon) {
	src := ctx.Current.Get(cmd.Source)
	if src == nil || src.Bundle.Combat == nil || src.Bundle.Transform == nil {
		return
	}
	w := src.Bundle.Combat.Weapon(cmd.Slot)
	if w == nil || !w.Ready() {
		return
	}
	tgt := ctx.Current.Get(cmd.Target)
	if tgt == nil || tgt.Bundle.Transform == nil {
		return
	}

	if next := ctx.Next.GetMut(cmd.Source); next != nil && next.Bundle.Combat != nil {
		if nw := next.Bundle.Combat.Weapon(cmd.Slot); nw != nil {
			nw.Cooldown = nw.CooldownMax
		}
	}

	// Projectile leaves the muzzle toward the target's observed position.
	pos := src.Bundle.Transform.Position
	dir := tgt.Bundle.Transform.Position.Sub(pos).Normalized()
	ctx.Effects.QueueSpawn(Spawn{
		Tag:    entity.TagProjectile,
		Bundle: entity.ProjectileBundle(pos, src.Bundle.Transform.Heading, dir.Scale(projectileSpeed)),
		Trace:  env.Trace,
		Cause:  env.Cause,
	})
	ctx.Effects.Fact(env, output.WeaponFired{Source: cmd.Source, Slot: cmd.Slot})
}

const projectileSpeed = 300.0

// integrate advances motion and cooldowns for every entity, in id order.
func (p *Physics) integrate(ctx *Context) {
	ctx.Next.Each(func(e *entity.Entity) {
		if e.Bundle.Physics != nil && e.Bundle.Transform != nil {
			ph := e.Bundle.Physics
			ph.Velocity = ph.Velocity.Add(ph.Acceleration.Scale(ctx.DT))
			old := e.Bundle.Transform.Position
			e.Bundle.Transform.Position = old.Add(ph.Velocity.Scale(ctx.DT))
			ctx.Next.SyncSpatial(e.ID, old, e.Bundle.Transform.Position)
		}
		if e.Bundle.Combat != nil {
			for i := range e.Bundle.Combat.Weapons {
				w := &e.Bundle.Combat.Weapons[i]
				if w.Cooldown > 0 {
					w.Cooldown -= ctx.DT
					if w.Cooldown < 0 {
						w.Cooldown = 0
					}
				}
			}
		}
	})
}
