package persist

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tachyon-beep/tidebreak-sub000/internal/core/event"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/output"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/sim"
	"github.com/tachyon-beep/tidebreak-sub000/internal/replay"
)

// TickRow is one per-tick telemetry record.
type TickRow struct {
	Tick      uint64
	Hash      uint64
	Envelopes int
	Facts     int
	Entities  int
}

// FactRow is one resolved fact with its causal identity, flattened for
// storage.
type FactRow struct {
	Tick         uint64
	EventID      uint64
	Trace        uint64
	Cause        uint64
	SourceEntity uint64
	SourcePlugin string
	Name         string
}

// EnvelopeRow is one envelope from the tick's sorted batch. Ordinal is the
// batch position; the payload is the full serialized envelope, so the audit
// trail reconstructs exactly what resolution saw.
type EnvelopeRow struct {
	Tick         uint64
	Ordinal      int
	Sequence     uint32
	SourceEntity uint64
	SourcePlugin string
	Cause        uint64
	Trace        uint64
	Name         string
	Payload      []byte
}

// Telemetry buffers per-tick summaries and facts and writes them in
// batches. The simulation calls the hooks on its own goroutine; Flush is
// called from the driver, so the buffers are mutex-guarded.
type Telemetry struct {
	db    *DB
	runID uuid.UUID
	log   *zap.Logger

	mu        sync.Mutex
	ticks     []TickRow
	facts     []FactRow
	envelopes []EnvelopeRow
}

func NewTelemetry(db *DB, runID uuid.UUID) *Telemetry {
	return &Telemetry{db: db, runID: runID, log: db.log}
}

// Attach subscribes the telemetry sinks to a simulation. Call before the
// first tick.
func (t *Telemetry) Attach(s *sim.Simulation) {
	s.Observe(func(sum sim.StepSummary) {
		t.mu.Lock()
		t.ticks = append(t.ticks, TickRow{
			Tick:      sum.Tick,
			Hash:      sum.Hash,
			Envelopes: sum.Envelopes,
			Facts:     sum.Facts,
			Entities:  sum.Entities,
		})
		t.mu.Unlock()
	})
	s.ObserveBatch(func(tick uint64, batch []output.Envelope) {
		rows := make([]EnvelopeRow, 0, len(batch))
		for i, env := range batch {
			payload, err := replay.EncodeEnvelope(env)
			if err != nil {
				t.log.Warn("envelope audit row dropped",
					zap.Uint64("tick", tick), zap.Int("ordinal", i), zap.Error(err))
				continue
			}
			rows = append(rows, EnvelopeRow{
				Tick:         tick,
				Ordinal:      i,
				Sequence:     env.Sequence,
				SourceEntity: uint64(env.Source.Entity),
				SourcePlugin: string(env.Source.Plugin),
				Cause:        uint64(env.Cause),
				Trace:        uint64(env.Trace),
				Name:         env.Output.Name(),
				Payload:      payload,
			})
		}
		t.mu.Lock()
		t.envelopes = append(t.envelopes, rows...)
		t.mu.Unlock()
	})
	s.Bus().Subscribe(func(r event.Record) {
		t.mu.Lock()
		t.facts = append(t.facts, FactRow{
			Tick:         r.Tick,
			EventID:      uint64(r.ID),
			Trace:        uint64(r.Trace),
			Cause:        uint64(r.Cause),
			SourceEntity: uint64(r.Source.Entity),
			SourcePlugin: string(r.Source.Plugin),
			Name:         r.Fact.Name(),
		})
		t.mu.Unlock()
	})
}

// StartRun records the run header.
func (t *Telemetry) StartRun(ctx context.Context, seed uint64, scenario string) error {
	_, err := t.db.Pool.Exec(ctx,
		`INSERT INTO runs (id, seed, scenario) VALUES ($1, $2, $3)`,
		t.runID, int64(seed), scenario,
	)
	if err != nil {
		return fmt.Errorf("telemetry start run: %w", err)
	}
	return nil
}

// FinishRun records the final hash and tick count.
func (t *Telemetry) FinishRun(ctx context.Context, ticks uint64, finalHash uint64) error {
	_, err := t.db.Pool.Exec(ctx,
		`UPDATE runs SET ticks = $2, final_hash = $3, finished_at = now() WHERE id = $1`,
		t.runID, int64(ticks), int64(finalHash),
	)
	if err != nil {
		return fmt.Errorf("telemetry finish run: %w", err)
	}
	return nil
}

// Flush writes the buffered rows in one transaction and clears the
// buffers. Safe to call with empty buffers.
func (t *Telemetry) Flush(ctx context.Context) error {
	t.mu.Lock()
	ticks, facts, envelopes := t.ticks, t.facts, t.envelopes
	t.ticks, t.facts, t.envelopes = nil, nil, nil
	t.mu.Unlock()
	if len(ticks) == 0 && len(facts) == 0 && len(envelopes) == 0 {
		return nil
	}

	tx, err := t.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("telemetry begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, row := range ticks {
		if _, err := tx.Exec(ctx,
			`INSERT INTO run_ticks (run_id, tick, hash, envelopes, facts, entities)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			t.runID, int64(row.Tick), int64(row.Hash), row.Envelopes, row.Facts, row.Entities,
		); err != nil {
			return fmt.Errorf("telemetry tick insert: %w", err)
		}
	}
	for _, row := range facts {
		if _, err := tx.Exec(ctx,
			`INSERT INTO run_facts (run_id, tick, event_id, trace, cause, source_entity, source_plugin, name)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			t.runID, int64(row.Tick), int64(row.EventID), int64(row.Trace), int64(row.Cause),
			int64(row.SourceEntity), row.SourcePlugin, row.Name,
		); err != nil {
			return fmt.Errorf("telemetry fact insert: %w", err)
		}
	}

	for _, row := range envelopes {
		if _, err := tx.Exec(ctx,
			`INSERT INTO run_envelopes (run_id, tick, ordinal, seq, source_entity, source_plugin, cause, trace, name, payload)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			t.runID, int64(row.Tick), row.Ordinal, int64(row.Sequence), int64(row.SourceEntity),
			row.SourcePlugin, int64(row.Cause), int64(row.Trace), row.Name, row.Payload,
		); err != nil {
			return fmt.Errorf("telemetry envelope insert: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("telemetry commit: %w", err)
	}
	t.log.Debug("telemetry flushed",
		zap.Int("ticks", len(ticks)), zap.Int("facts", len(facts)),
		zap.Int("envelopes", len(envelopes)))
	return nil
}
