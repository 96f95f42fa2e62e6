package resolver

import (
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/entity"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/output"
)

// Reservation grants exclusive resource claims. For each resource key the
// first claim in the envelope total order wins for this tick; later claims
// on the same key are dropped silently. Grants are recorded on the holder's
// inventory, published as ResourceGranted facts, and cleared when the next
// generation is cloned.
type Reservation struct{}

func NewReservation() *Reservation { return &Reservation{} }

func (*Reservation) Name() string           { return "reservation" }
func (*Reservation) Handles() []output.Kind { return []output.Kind{output.KindReservation} }

func (r *Reservation) Resolve(ctx *Context, batch []output.Envelope) error {
	granted := make(map[string]bool, len(batch))
	for _, env := range batch {
		claim, ok := env.Output.(output.ClaimResource)
		if !ok {
			continue
		}
		if granted[claim.Resource] {
			continue
		}
		holder := ctx.Next.GetMut(claim.Holder)
		if holder == nil || holder.Bundle.Inventory == nil {
			continue
		}
		granted[claim.Resource] = true
		if holder.Bundle.Inventory.Reserved == nil {
			holder.Bundle.Inventory.Reserved = make(map[string]entity.ID)
		}
		holder.Bundle.Inventory.Reserved[claim.Resource] = claim.Holder
		ctx.Effects.Fact(env, output.ResourceGranted{
			Resource: claim.Resource,
			Holder:   claim.Holder,
		})
	}
	return nil
}
