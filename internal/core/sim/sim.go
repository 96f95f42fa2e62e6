// Package sim drives the four-phase tick loop: snapshot, parallel plugin
// execution, sequential resolution, and apply. Given the same seed, plugin
// set, and injected inputs, two runs produce bit-identical state at every
// tick regardless of worker count.
package sim

import (
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tachyon-beep/tidebreak-sub000/internal/core/arena"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/entity"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/event"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/fault"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/output"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/plugin"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/resolver"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/view"
)

// ExternalSource is the plugin id attached to injected inputs so they sort
// alongside plugin outputs in the same total order.
const ExternalSource output.PluginID = "external"

// StepSummary is handed to observers after each successful apply.
type StepSummary struct {
	Tick      uint64 // the tick that just completed
	Hash      uint64
	Envelopes int
	Facts     int
	Entities  int
}

// Observer receives a summary at the end of every applied tick.
type Observer func(StepSummary)

// DefaultMaxEnvelopes bounds the per-tick output batch. A runaway plugin
// emitting without bound fails the tick instead of exhausting memory.
const DefaultMaxEnvelopes = 1 << 16

// Options tune the scheduler without affecting results.
type Options struct {
	// Workers caps the plugin-phase goroutine fan-out. Zero means NumCPU.
	Workers int
	// MaxEnvelopes caps the per-tick batch, injected inputs included.
	// Exceeding it fails the tick with an ExhaustionError. Zero means
	// DefaultMaxEnvelopes.
	MaxEnvelopes int
	// Strict makes scope violations panic at the access site instead of
	// failing the tick, for debugging plugin contracts.
	Strict bool
	Logger *zap.Logger
}

// Option mutates Options during construction.
type Option func(*Options)

func WithWorkers(n int) Option        { return func(o *Options) { o.Workers = n } }
func WithMaxEnvelopes(n int) Option   { return func(o *Options) { o.MaxEnvelopes = n } }
func WithStrict() Option              { return func(o *Options) { o.Strict = true } }
func WithLogger(l *zap.Logger) Option { return func(o *Options) { o.Logger = l } }

// Simulation owns one deterministic world. It is not safe for concurrent
// use; all methods are called from the driving goroutine.
type Simulation struct {
	seed     uint64
	tick     uint64
	rngState uint64 // master stream state, advanced once per apply

	cur      *arena.Arena
	registry *plugin.Registry
	pipeline []resolver.Resolver
	bus      *event.Bus

	injected       []output.Envelope
	observers      []Observer
	batchObservers []BatchObserver

	failure error
	opts    Options
	log     *zap.Logger
}

// New builds a simulation from a seed. The default resolver pipeline runs
// physics, stat, combat, reservation, sensor tracking, and event logging in
// that order.
func New(seed uint64, opts ...Option) *Simulation {
	o := Options{Workers: runtime.NumCPU()}
	for _, fn := range opts {
		fn(&o)
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.MaxEnvelopes <= 0 {
		o.MaxEnvelopes = DefaultMaxEnvelopes
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return &Simulation{
		seed:     seed,
		rngState: seed,
		cur:      arena.New(),
		registry: plugin.NewRegistry(),
		pipeline: defaultPipeline(),
		bus:      event.NewBus(),
		opts:     o,
		log:      o.Logger,
	}
}

func defaultPipeline() []resolver.Resolver {
	return []resolver.Resolver{
		resolver.NewPhysics(),
		resolver.NewStat(),
		resolver.NewCombat(),
		resolver.NewReservation(),
		resolver.NewSensorTracks(),
		resolver.NewEventLog(),
	}
}

// Register adds a plugin. Registration order is part of the run's identity
// and must match between runs that are expected to agree.
func (s *Simulation) Register(p plugin.Plugin) error {
	if s.tick > 0 {
		return fmt.Errorf("sim: register %q after first tick", p.Declaration().ID)
	}
	return s.registry.Register(p)
}

// SetPipeline replaces the resolver pipeline. Legal only before the first
// tick; pipeline order is part of the run's identity.
func (s *Simulation) SetPipeline(rs []resolver.Resolver) error {
	if s.tick > 0 {
		return fmt.Errorf("sim: pipeline change after first tick")
	}
	s.pipeline = rs
	return nil
}

// SpawnEntity seeds an entity before the first tick. Once the simulation is
// running, spawning happens only through resolver effects in apply.
func (s *Simulation) SpawnEntity(tag entity.Tag, bundle entity.Bundle) (entity.ID, error) {
	if s.tick > 0 {
		return 0, &fault.ContractViolation{
			Phase:  "running",
			Detail: "direct spawn after first tick",
		}
	}
	s.cur.OpenLifecycle("seed")
	id, err := s.cur.Spawn(tag, bundle)
	s.cur.CloseLifecycle("seed")
	return id, err
}

// Inject queues an external input for the next tick. Injected inputs enter
// the same total order as plugin outputs, attributed to ExternalSource, so
// the same injection sequence always resolves identically.
func (s *Simulation) Inject(target entity.ID, out output.Output) {
	s.injected = append(s.injected, output.Envelope{
		Output:   out,
		Source:   output.InstanceID{Entity: target, Plugin: ExternalSource},
		Trace:    deriveTrace(s.seed, s.tick, uint64(target), externalTraceIndex),
		Tick:     s.tick,
		Sequence: uint32(len(s.injected)),
	})
}

// Observe registers a per-tick summary callback, called after apply.
func (s *Simulation) Observe(fn Observer) { s.observers = append(s.observers, fn) }

// BatchObserver receives the tick's sorted envelope batch before resolution,
// for audit sinks. The batch is shared; observers must not mutate or retain
// it past the call.
type BatchObserver func(tick uint64, batch []output.Envelope)

// ObserveBatch registers an envelope audit callback.
func (s *Simulation) ObserveBatch(fn BatchObserver) {
	s.batchObservers = append(s.batchObservers, fn)
}

// Bus exposes the fact bus for subscription before the run starts.
func (s *Simulation) Bus() *event.Bus { return s.bus }

// Tick returns the number of completed ticks.
func (s *Simulation) Tick() uint64 { return s.tick }

// Seed returns the run's seed.
func (s *Simulation) Seed() uint64 { return s.seed }

// Arena exposes the current generation for inspection. Callers must treat
// it as read-only.
func (s *Simulation) Arena() *arena.Arena { return s.cur }

// View returns an unscoped read view of the current generation.
func (s *Simulation) View() *view.WorldView {
	return view.FullAccess(s.cur, s.tick)
}

// Reset rewinds the simulation to tick zero under a new seed. Registered
// plugins and the pipeline survive; entities, facts, and any failure do not.
func (s *Simulation) Reset(seed uint64) {
	s.seed = seed
	s.rngState = seed
	s.tick = 0
	s.cur = arena.New()
	s.bus.Reset()
	s.injected = nil
	s.failure = nil
}

// Run steps n ticks, stopping at the first failure.
func (s *Simulation) Run(n int) error {
	for i := 0; i < n; i++ {
		if err := s.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Step advances the world one tick. On failure the current generation is
// left untouched and the failure sticks until Reset.
func (s *Simulation) Step() error {
	if s.failure != nil {
		return fmt.Errorf("sim: tick %d: previous failure: %w", s.tick, s.failure)
	}
	if !s.registry.Frozen() {
		s.registry.Freeze()
	}

	// Snapshot. The current generation is frozen by convention; plugins see
	// it only through scoped views, plus last tick's facts.
	cur := s.cur
	facts := s.bus.Current()

	batch, err := s.runPlugins(cur, facts)
	if err != nil {
		s.failure = err
		s.log.Error("tick failed in plugin phase", zap.Uint64("tick", s.tick), zap.Error(err))
		return err
	}
	batch = append(batch, s.injected...)
	if len(batch) > s.opts.MaxEnvelopes {
		s.failure = fmt.Errorf("sim: tick %d: %w", s.tick,
			&fault.ExhaustionError{Resource: "envelopes", Limit: uint64(s.opts.MaxEnvelopes)})
		s.log.Error("tick failed on output volume",
			zap.Uint64("tick", s.tick), zap.Int("envelopes", len(batch)), zap.Error(s.failure))
		return s.failure
	}
	output.Sort(batch)

	for _, fn := range s.batchObservers {
		fn(s.tick, batch)
	}

	next := cur.Clone()
	effects := &resolver.Effects{}
	rctx := &resolver.Context{
		Current: cur,
		Next:    next,
		Tick:    s.tick,
		DT:      resolver.FixedDT,
		Effects: effects,
	}
	for _, r := range s.pipeline {
		if err := r.Resolve(rctx, filterFor(r, batch)); err != nil {
			s.failure = fmt.Errorf("sim: tick %d: resolver %s: %w", s.tick, r.Name(), err)
			s.log.Error("tick failed in resolution phase",
				zap.Uint64("tick", s.tick), zap.String("resolver", r.Name()), zap.Error(err))
			return s.failure
		}
	}

	s.apply(next, effects, len(batch))
	return nil
}

// apply commits the next generation: lifecycle effects, fact id assignment,
// bus promotion, tick and master-stream advance, then observer flush.
func (s *Simulation) apply(next *arena.Arena, effects *resolver.Effects, envelopes int) {
	next.OpenLifecycle("apply")
	for _, sp := range effects.Spawns {
		if _, err := next.Spawn(sp.Tag, sp.Bundle); err != nil {
			s.log.Warn("spawn effect dropped", zap.Uint64("tick", s.tick), zap.Error(err))
		}
	}
	for _, id := range effects.Despawns {
		if err := next.Despawn(id); err != nil {
			s.log.Warn("despawn effect dropped",
				zap.Uint64("tick", s.tick), zap.Uint64("entity", uint64(id)), zap.Error(err))
		}
	}
	next.CloseLifecycle("run")

	for _, pf := range effects.Facts {
		s.bus.Publish(event.Record{
			ID:     output.EventID(next.NextEventID()),
			Trace:  pf.Trace,
			Cause:  pf.Cause,
			Tick:   s.tick,
			Source: pf.Source,
			Fact:   pf.Fact,
		})
	}
	s.bus.Swap()

	s.cur = next
	s.injected = s.injected[:0]
	s.tick++
	s.rngState = splitmix(s.rngState)

	if len(s.observers) > 0 {
		sum := StepSummary{
			Tick:      s.tick - 1,
			Hash:      s.StateHash(),
			Envelopes: envelopes,
			Facts:     len(s.bus.Current()),
			Entities:  next.Len(),
		}
		for _, fn := range s.observers {
			fn(sum)
		}
	}
}

// runPlugins executes every (entity, plugin) invocation for the tick. The
// invocation list is built in entity-id then registration order; goroutines
// write into pre-assigned slots, so scheduling order never leaks into the
// result. The returned batch is unsorted.
func (s *Simulation) runPlugins(cur *arena.Arena, facts []event.Record) ([]output.Envelope, error) {
	type invocation struct {
		id  entity.ID
		reg plugin.Registration
	}
	var invs []invocation
	for _, id := range cur.IDs() {
		e := cur.Get(id)
		for _, reg := range s.registry.For(e.Tag) {
			invs = append(invs, invocation{id: id, reg: reg})
		}
	}
	if len(invs) == 0 {
		return nil, nil
	}

	results := make([][]output.Envelope, len(invs))
	violations := make([]*fault.ContractViolation, len(invs))

	run := func(i int, inv invocation) {
		d := inv.reg.Plugin.Declaration()
		trace := deriveTrace(s.seed, s.tick, uint64(inv.id), uint64(inv.reg.Index))
		pctx := &plugin.Context{
			Entity: inv.id,
			Tick:   s.tick,
			Trace:  trace,
			RNG:    deriveStream(s.rngState, uint64(inv.id), d.ID),
		}
		w := view.ForPlugin(cur, s.tick, d.ID, d.Reads, facts, s.opts.Strict)
		outs := inv.reg.Plugin.Run(pctx, w)
		if v := w.Violation(); v != nil {
			violations[i] = v
			return
		}
		envs := make([]output.Envelope, 0, len(outs))
		for seq, out := range outs {
			var cause output.EventID
			if c, ok := out.(output.Caused); ok {
				cause, out = c.Cause, c.Output
			}
			if !d.EmitsKind(out.Kind()) {
				violations[i] = &fault.ContractViolation{
					Phase:     "plugin",
					Plugin:    string(d.ID),
					Entity:    uint64(inv.id),
					Component: out.Name(),
					Detail:    "emitted undeclared output kind " + out.Kind().String(),
				}
				return
			}
			envs = append(envs, output.Envelope{
				Output:   out,
				Source:   output.InstanceID{Entity: inv.id, Plugin: d.ID},
				Cause:    cause,
				Trace:    trace,
				Tick:     s.tick,
				Sequence: uint32(seq),
			})
		}
		results[i] = envs
	}

	var g errgroup.Group
	g.SetLimit(s.opts.Workers)
	for i, inv := range invs {
		if inv.reg.Plugin.Declaration().Sequential {
			continue
		}
		i, inv := i, inv
		g.Go(func() error {
			run(i, inv)
			return nil
		})
	}
	// Plugins report violations through slots, never through errors, so Wait
	// cannot fail; the check keeps the contract honest if that changes.
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("sim: tick %d: plugin phase: %w", s.tick, err)
	}

	// Sequential plugins share mutable host state, a script VM for one, so
	// their invocations run one at a time in invocation order after the
	// fan-out has drained.
	for i, inv := range invs {
		if inv.reg.Plugin.Declaration().Sequential {
			run(i, inv)
		}
	}

	// First violation in invocation order wins, independent of scheduling.
	for _, v := range violations {
		if v != nil {
			return nil, fmt.Errorf("sim: tick %d: %w", s.tick, v)
		}
	}

	var batch []output.Envelope
	for _, envs := range results {
		batch = append(batch, envs...)
	}
	return batch, nil
}

// filterFor extracts, in order, the envelopes whose kind the resolver
// declared. Every resolver filters from the same original sorted batch;
// consuming a kind does not hide it from later resolvers.
func filterFor(r resolver.Resolver, batch []output.Envelope) []output.Envelope {
	kinds := r.Handles()
	if len(kinds) == 1 {
		return output.FilterKind(batch, kinds[0])
	}
	want := make(map[output.Kind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	out := make([]output.Envelope, 0, len(batch))
	for _, env := range batch {
		if want[env.Output.Kind()] {
			out = append(out, env)
		}
	}
	return out
}
