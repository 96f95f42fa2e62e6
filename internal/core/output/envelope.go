package output

import "sort"

// Envelope wraps an Output with its provenance. (Source, Sequence) is unique
// within a tick, which gives the whole batch a total order that does not
// depend on how the plugin phase was scheduled.
type Envelope struct {
	Output   Output
	Source   InstanceID
	Cause    EventID // upstream fact that triggered this, 0 = root
	Trace    TraceID
	Tick     uint64
	Sequence uint32 // emission index within the source plugin's run
}

// Less orders envelopes by (entity, plugin, sequence), the convergence key
// that erases plugin-phase scheduling nondeterminism.
func (e *Envelope) Less(o *Envelope) bool {
	if e.Source.Entity != o.Source.Entity {
		return e.Source.Entity < o.Source.Entity
	}
	if e.Source.Plugin != o.Source.Plugin {
		return e.Source.Plugin < o.Source.Plugin
	}
	return e.Sequence < o.Sequence
}

// Sort puts a batch into total order in place.
func Sort(batch []Envelope) {
	sort.Slice(batch, func(i, j int) bool { return batch[i].Less(&batch[j]) })
}

// FilterKind returns the subset of batch with the given kind, preserving the
// established order. The result shares no backing with batch.
func FilterKind(batch []Envelope, kind Kind) []Envelope {
	var out []Envelope
	for i := range batch {
		if batch[i].Output.Kind() == kind {
			out = append(out, batch[i])
		}
	}
	return out
}
