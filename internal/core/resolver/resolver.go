// Package resolver turns sorted output batches into next-generation state.
// Resolvers run strictly sequentially in registration order; each sees the
// subset of the original sorted batch matching its declared kinds. Conflicts
// are resolved by position in that order, never by wall-clock arrival.
package resolver

import (
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/arena"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/entity"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/output"
)

// Context is the resolution-phase environment. Current is the frozen
// generation plugins saw; Next is the writable copy this tick's effects land
// in. Reading Next is forbidden by convention: every decision must be a
// function of Current plus the batch, or order-dependent feedback creeps in.
type Context struct {
	Current *arena.Arena
	Next    *arena.Arena
	Tick    uint64
	DT      float64
	Effects *Effects
}

// Resolver is one sequential stage of the pipeline.
type Resolver interface {
	Name() string
	// Handles declares the output kinds this resolver consumes.
	Handles() []output.Kind
	// Resolve applies the filtered batch to ctx.Next. The batch arrives in
	// total order and must be applied in that order.
	Resolve(ctx *Context, batch []output.Envelope) error
}

// Spawn is a queued entity creation, executed during apply.
type Spawn struct {
	Tag    entity.Tag
	Bundle entity.Bundle
	Trace  output.TraceID
	Cause  output.EventID
}

// PendingFact is a resolved fact awaiting an event id. Ids are assigned in
// queue order during apply, which is deterministic because resolution is
// sequential.
type PendingFact struct {
	Source output.InstanceID
	Trace  output.TraceID
	Cause  output.EventID
	Fact   output.Output
}

// Effects accumulates the apply-phase work resolvers are not allowed to do
// directly: entity lifecycle and fact publication.
type Effects struct {
	Spawns   []Spawn
	Despawns []entity.ID
	Facts    []PendingFact
}

// QueueSpawn defers an entity creation to the apply phase.
func (e *Effects) QueueSpawn(s Spawn) { e.Spawns = append(e.Spawns, s) }

// QueueDespawn defers an entity removal to the apply phase.
func (e *Effects) QueueDespawn(id entity.ID) { e.Despawns = append(e.Despawns, id) }

// Fact records a resolved fact for next-tick delivery and the audit log.
func (e *Effects) Fact(src output.Envelope, fact output.Output) {
	e.Facts = append(e.Facts, PendingFact{
		Source: src.Source,
		Trace:  src.Trace,
		Cause:  src.Cause,
		Fact:   fact,
	})
}
