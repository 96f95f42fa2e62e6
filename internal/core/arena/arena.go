// Package arena owns all entity records of one state generation. A
// simulation holds two arenas, current and next, and swaps them at the end
// of every tick.
package arena

import (
	"math"
	"sort"

	"github.com/tachyon-beep/tidebreak-sub000/internal/core/entity"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/fault"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/vmath"
)

// maxEntityID leaves headroom below the uint64 ceiling so id arithmetic in
// derived hashes can never wrap.
const maxEntityID = math.MaxUint64 - 1

// Arena is one generation of world state. Iteration is always in ascending
// id order, so a full walk is deterministic regardless of spawn history.
type Arena struct {
	entities map[entity.ID]*entity.Entity
	ids      []entity.ID // sorted
	spatial  *SpatialIndex

	nextID      entity.ID
	nextEventID uint64

	// lifecycleOpen is set by the scheduler for the apply phase (and for
	// pre-run seeding). Spawn and Despawn outside that window are rejected.
	lifecycleOpen bool
	phase         string
}

// New returns an empty arena with lifecycle closed.
func New() *Arena {
	return &Arena{
		entities:    make(map[entity.ID]*entity.Entity),
		spatial:     NewSpatialIndex(defaultCellSize),
		nextEventID: 1,
		phase:       "init",
	}
}

// OpenLifecycle marks spawn/despawn as legal and records the phase name used
// in violation provenance. Called by the scheduler only.
func (a *Arena) OpenLifecycle(phase string) {
	a.lifecycleOpen = true
	a.phase = phase
}

// CloseLifecycle seals the arena against spawn/despawn.
func (a *Arena) CloseLifecycle(phase string) {
	a.lifecycleOpen = false
	a.phase = phase
}

// Spawn creates an entity with the next monotonic id. Legal only while the
// lifecycle window is open (apply phase or pre-run seeding).
func (a *Arena) Spawn(tag entity.Tag, bundle entity.Bundle) (entity.ID, error) {
	if !a.lifecycleOpen {
		return 0, &fault.ContractViolation{
			Phase:     a.phase,
			Component: "lifecycle",
			Detail:    "spawn called outside apply phase",
		}
	}
	if uint64(a.nextID) >= maxEntityID {
		return 0, &fault.ExhaustionError{Resource: "entity ids", Limit: maxEntityID}
	}
	id := a.nextID
	a.nextID++

	e := &entity.Entity{ID: id, Tag: tag, Bundle: bundle}
	a.entities[id] = e
	a.insertID(id)
	if e.Bundle.Transform != nil {
		a.spatial.Insert(id, e.Bundle.Transform.Position)
	}
	return id, nil
}

// Despawn removes an entity. Legal only while the lifecycle window is open.
func (a *Arena) Despawn(id entity.ID) error {
	if !a.lifecycleOpen {
		return &fault.ContractViolation{
			Phase:     a.phase,
			Entity:    uint64(id),
			Component: "lifecycle",
			Detail:    "despawn called outside apply phase",
		}
	}
	e, ok := a.entities[id]
	if !ok {
		return nil // already gone; despawn is idempotent within a tick
	}
	if e.Bundle.Transform != nil {
		a.spatial.Remove(id, e.Bundle.Transform.Position)
	}
	delete(a.entities, id)
	a.removeID(id)
	return nil
}

// Get returns the entity or nil. The returned pointer must be treated as
// read-only outside the resolution and apply phases.
func (a *Arena) Get(id entity.ID) *entity.Entity {
	return a.entities[id]
}

// GetMut is Get under a name that marks mutation intent. Only resolvers
// writing the next generation may use it.
func (a *Arena) GetMut(id entity.ID) *entity.Entity {
	return a.entities[id]
}

// Len returns the live entity count.
func (a *Arena) Len() int { return len(a.entities) }

// IDs returns the live entity ids in ascending order. The slice is shared;
// callers must not mutate it.
func (a *Arena) IDs() []entity.ID { return a.ids }

// Each walks entities in ascending id order.
func (a *Arena) Each(fn func(*entity.Entity)) {
	for _, id := range a.ids {
		fn(a.entities[id])
	}
}

// Spatial returns the spatial index over this generation.
func (a *Arena) Spatial() *SpatialIndex { return a.spatial }

// SyncSpatial re-indexes one entity after its position changed. Resolvers
// must call this for every transform they move.
func (a *Arena) SyncSpatial(id entity.ID, oldPos, newPos vmath.Vec2) {
	a.spatial.Move(id, oldPos, newPos)
}

// QueryRadius returns ids of live entities within radius of center, sorted
// ascending.
func (a *Arena) QueryRadius(center vmath.Vec2, radius float64) []entity.ID {
	return a.spatial.QueryRadius(center, radius, func(id entity.ID) (vmath.Vec2, bool) {
		e := a.entities[id]
		if e == nil || e.Bundle.Transform == nil {
			return vmath.Zero, false
		}
		return e.Bundle.Transform.Position, true
	})
}

// QueryByTag returns ids of live entities with the given tag, ascending.
func (a *Arena) QueryByTag(tag entity.Tag) []entity.ID {
	var out []entity.ID
	for _, id := range a.ids {
		if a.entities[id].Tag == tag {
			out = append(out, id)
		}
	}
	return out
}

// NextEventID hands out the next fact identifier. Deterministic because
// only the sequential event resolver consumes it.
func (a *Arena) NextEventID() uint64 {
	id := a.nextEventID
	a.nextEventID++
	return id
}

// Clone deep-copies the arena into a fresh next generation. Per-tick grant
// state (inventory reservations) does not carry over.
func (a *Arena) Clone() *Arena {
	c := &Arena{
		entities:    make(map[entity.ID]*entity.Entity, len(a.entities)),
		ids:         append([]entity.ID(nil), a.ids...),
		spatial:     NewSpatialIndex(a.spatial.cellSize),
		nextID:      a.nextID,
		nextEventID: a.nextEventID,
		phase:       a.phase,
	}
	for id, e := range a.entities {
		ce := e.Clone()
		if ce.Bundle.Inventory != nil && len(ce.Bundle.Inventory.Reserved) > 0 {
			ce.Bundle.Inventory.Reserved = make(map[string]entity.ID)
		}
		c.entities[id] = ce
		if ce.Bundle.Transform != nil {
			c.spatial.Insert(id, ce.Bundle.Transform.Position)
		}
	}
	return c
}

func (a *Arena) insertID(id entity.ID) {
	i := sort.Search(len(a.ids), func(i int) bool { return a.ids[i] >= id })
	a.ids = append(a.ids, 0)
	copy(a.ids[i+1:], a.ids[i:])
	a.ids[i] = id
}

func (a *Arena) removeID(id entity.ID) {
	i := sort.Search(len(a.ids), func(i int) bool { return a.ids[i] >= id })
	if i < len(a.ids) && a.ids[i] == id {
		a.ids = append(a.ids[:i], a.ids[i+1:]...)
	}
}
