package resolver

import (
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/entity"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/output"
)

// Combat consumes Modifier outputs that touch health and status flags.
// Damage from multiple sources in the same tick accumulates; the order of
// application is the envelope total order, so ties resolve identically on
// every run.
type Combat struct{}

func NewCombat() *Combat { return &Combat{} }

func (*Combat) Name() string           { return "combat" }
func (*Combat) Handles() []output.Kind { return []output.Kind{output.KindModifier} }

func (c *Combat) Resolve(ctx *Context, batch []output.Envelope) error {
	for _, env := range batch {
		switch mod := env.Output.(type) {
		case output.ApplyDamage:
			c.damage(ctx, env, mod)
		case output.ApplyHealing:
			c.heal(ctx, mod)
		case output.SetStatusFlag:
			c.setFlag(ctx, mod)
		}
	}
	return nil
}

func (c *Combat) damage(ctx *Context, env output.Envelope, mod output.ApplyDamage) {
	e := ctx.Next.GetMut(mod.Target)
	if e == nil || e.Bundle.Combat == nil {
		return
	}
	cb := e.Bundle.Combat
	if cb.Destroyed() {
		return
	}
	cb.HP -= mod.Amount
	ctx.Effects.Fact(env, output.DamageDealt{
		Source: env.Source.Entity,
		Target: mod.Target,
		Amount: mod.Amount,
	})
	if cb.HP <= 0 {
		cb.HP = 0
		cb.Flags |= entity.FlagDestroyed
		ctx.Effects.QueueDespawn(mod.Target)
		ctx.Effects.Fact(env, output.EntityDestroyed{Target: mod.Target})
	}
}

func (c *Combat) heal(ctx *Context, mod output.ApplyHealing) {
	e := ctx.Next.GetMut(mod.Target)
	if e == nil || e.Bundle.Combat == nil || e.Bundle.Combat.Destroyed() {
		return
	}
	cb := e.Bundle.Combat
	cb.HP += mod.Amount
	if cb.HP > cb.MaxHP {
		cb.HP = cb.MaxHP
	}
}

func (c *Combat) setFlag(ctx *Context, mod output.SetStatusFlag) {
	e := ctx.Next.GetMut(mod.Target)
	if e == nil || e.Bundle.Combat == nil {
		return
	}
	if mod.Value {
		e.Bundle.Combat.Flags |= mod.Flag
	} else {
		e.Bundle.Combat.Flags &^= mod.Flag
	}
}
