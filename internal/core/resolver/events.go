package resolver

import (
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/output"
)

// EventLog forwards Event-kind envelopes into the fact queue so plugins can
// observe them on the following tick. Events never mutate entity state.
type EventLog struct{}

func NewEventLog() *EventLog { return &EventLog{} }

func (*EventLog) Name() string           { return "events" }
func (*EventLog) Handles() []output.Kind { return []output.Kind{output.KindEvent} }

func (l *EventLog) Resolve(ctx *Context, batch []output.Envelope) error {
	for _, env := range batch {
		ctx.Effects.Fact(env, env.Output)
	}
	return nil
}
