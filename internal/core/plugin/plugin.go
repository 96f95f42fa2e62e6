// Package plugin defines the behavior-module contract: a static declaration
// plus a pure Run function from a scoped world view to a list of outputs.
package plugin

import (
	"fmt"

	"github.com/tachyon-beep/tidebreak-sub000/internal/core/entity"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/output"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/rng"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/view"
)

// Declaration is a plugin's static contract, checked at registration and
// enforced at run time.
type Declaration struct {
	ID    output.PluginID
	Tags  []entity.Tag           // entity tags this plugin applies to
	Reads []entity.ComponentKind // component kinds it may read
	Emits []output.Kind          // output kinds it may emit
	// Sequential excludes the plugin from the parallel fan-out; its
	// invocations run one at a time in invocation order after the fan-out
	// drains. Set it when Run touches shared mutable host state, such as a
	// script VM, whose observation order must not depend on scheduling.
	Sequential bool
}

// EmitsKind reports whether the declaration permits the given output kind.
func (d *Declaration) EmitsKind(k output.Kind) bool {
	for _, e := range d.Emits {
		if e == k {
			return true
		}
	}
	return false
}

// Context carries the per-invocation identity a plugin needs to attribute
// its outputs and to draw deterministic randomness.
type Context struct {
	Entity entity.ID
	Tick   uint64
	Trace  output.TraceID
	// RNG is this invocation's private sub-stream, derived from
	// (seed, tick, entity, plugin id). Drawing from it never perturbs any
	// other invocation.
	RNG *rng.Stream
}

// Plugin is a pure behavior module. Run must not retain ctx or the view, and
// its only observable effect is the returned output list.
type Plugin interface {
	Declaration() *Declaration
	Run(ctx *Context, w *view.WorldView) []output.Output
}

// Registration is one plugin with its position in registration order, which
// is part of the deterministic identity of a run.
type Registration struct {
	Plugin Plugin
	Index  int
}

// Registry holds registered plugins per tag. It is mutable while the
// simulation is being built and frozen before the first tick.
type Registry struct {
	byTag  map[entity.Tag][]Registration
	nextIx int
	frozen bool
}

func NewRegistry() *Registry {
	return &Registry{byTag: make(map[entity.Tag][]Registration)}
}

// Register validates the declaration and attaches the plugin to every tag it
// declares. Registration order is the tiebreak identity used in trace
// derivation, so it must be identical across runs.
func (r *Registry) Register(p Plugin) error {
	if r.frozen {
		return fmt.Errorf("plugin registry: register %q after freeze", p.Declaration().ID)
	}
	d := p.Declaration()
	if d.ID == "" {
		return fmt.Errorf("plugin registry: empty plugin id")
	}
	if len(d.Tags) == 0 {
		return fmt.Errorf("plugin registry: plugin %q declares no tags", d.ID)
	}
	if len(d.Emits) == 0 {
		return fmt.Errorf("plugin registry: plugin %q declares no output kinds", d.ID)
	}
	for _, tag := range d.Tags {
		if err := checkReads(d, tag); err != nil {
			return err
		}
	}
	reg := Registration{Plugin: p, Index: r.nextIx}
	r.nextIx++
	for _, tag := range d.Tags {
		r.byTag[tag] = append(r.byTag[tag], reg)
	}
	return nil
}

// checkReads verifies every declared read exists in the tag's bundle; a
// declaration asking for a component the tag never carries is a registration
// error, caught before the simulation runs.
func checkReads(d *Declaration, tag entity.Tag) error {
	available := make(map[entity.ComponentKind]bool)
	for _, k := range entity.TagComponents(tag) {
		available[k] = true
	}
	for _, k := range d.Reads {
		if !available[k] {
			return fmt.Errorf("plugin registry: plugin %q reads %s but tag %s has no such component",
				d.ID, k, tag)
		}
	}
	return nil
}

// Freeze seals the registry. The running simulation holds a shared-read
// reference; nothing registers after this.
func (r *Registry) Freeze() { r.frozen = true }

// Frozen reports whether the registry is sealed.
func (r *Registry) Frozen() bool { return r.frozen }

// For returns the registrations for a tag in registration order.
func (r *Registry) For(tag entity.Tag) []Registration {
	return r.byTag[tag]
}

// Len returns the number of distinct registrations.
func (r *Registry) Len() int { return r.nextIx }
