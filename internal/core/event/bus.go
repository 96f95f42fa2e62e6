// Package event carries resolved facts between ticks. Facts published while
// resolving tick N become readable by plugins during tick N+1, so reactive
// chains always cross a tick boundary and never feed back within one.
package event

import (
	"sync"

	"github.com/tachyon-beep/tidebreak-sub000/internal/core/output"
)

// Record is one resolved fact with its causal identity.
type Record struct {
	ID     output.EventID
	Trace  output.TraceID
	Cause  output.EventID
	Tick   uint64
	Source output.InstanceID
	Fact   output.Output // always an Event-kind output
}

// Handler observes facts as they are promoted at the tick boundary.
type Handler func(Record)

// Bus is a double-buffered fact store. Publish fills the back buffer during
// resolution; Swap promotes it during apply; Current is what world views
// expose on the following tick.
type Bus struct {
	mu       sync.Mutex // protects handler registration only
	front    []Record
	back     []Record
	handlers []Handler
}

func NewBus() *Bus {
	return &Bus{}
}

// Publish queues a fact into the back buffer. Called only by the sequential
// event resolver, so no locking is needed on the hot path.
func (b *Bus) Publish(r Record) {
	b.back = append(b.back, r)
}

// Subscribe registers a handler invoked for each fact at promotion time.
// Registration happens before the simulation starts.
func (b *Bus) Subscribe(fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, fn)
}

// Swap promotes back to front, delivers the promoted facts to subscribers in
// publish order, and clears the new back buffer. Called once per apply phase.
func (b *Bus) Swap() {
	b.front, b.back = b.back, b.front[:0]
	for _, r := range b.front {
		for _, h := range b.handlers {
			h(r)
		}
	}
}

// Current returns the facts resolved on the previous tick. The slice is
// shared; callers must not mutate it.
func (b *Bus) Current() []Record { return b.front }

// Reset drops both buffers, for simulation reset.
func (b *Bus) Reset() {
	b.front = nil
	b.back = nil
}
