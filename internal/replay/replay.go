// Package replay records and verifies deterministic runs. A log is a seed,
// the injected inputs per tick, and the state hash after every tick;
// replaying the log against the same build must reproduce every hash.
package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/tachyon-beep/tidebreak-sub000/internal/core/entity"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/output"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/sim"
)

// Version is bumped when the log layout changes incompatibly. Readers
// ignore unknown fields, so additive changes do not bump it.
const Version = 1

// Log is one recorded run.
type Log struct {
	Version  int       `json:"version"`
	RunID    uuid.UUID `json:"run_id"`
	Seed     uint64    `json:"seed"`
	Scenario string    `json:"scenario,omitempty"`

	// Ticks[i] holds the inputs injected before tick i and the state hash
	// observed after it.
	Ticks []TickRecord `json:"ticks"`

	FinalHash uint64 `json:"final_hash"`
}

// TickRecord is the per-tick slice of a log.
type TickRecord struct {
	Inputs []Input `json:"inputs,omitempty"`
	Hash   uint64  `json:"hash"`
}

// Recorder wraps a simulation and captures inputs and hashes as it steps.
type Recorder struct {
	sim     *sim.Simulation
	log     Log
	pending []Input
}

// NewRecorder starts a recording for the simulation's current seed. Call
// it before the first tick.
func NewRecorder(s *sim.Simulation, scenario string) *Recorder {
	return &Recorder{
		sim: s,
		log: Log{
			Version:  Version,
			RunID:    uuid.New(),
			Seed:     s.Seed(),
			Scenario: scenario,
		},
	}
}

// Inject forwards an input to the simulation and records it for replay.
func (r *Recorder) Inject(target entity.ID, out output.Output) error {
	w, err := encodeOutput(out)
	if err != nil {
		return err
	}
	r.pending = append(r.pending, Input{Target: target, Output: w})
	r.sim.Inject(target, out)
	return nil
}

// Step advances the simulation one tick, folding the pending inputs and the
// resulting hash into the log.
func (r *Recorder) Step() error {
	if err := r.sim.Step(); err != nil {
		return err
	}
	r.log.Ticks = append(r.log.Ticks, TickRecord{Inputs: r.pending, Hash: r.sim.StateHash()})
	r.pending = nil
	return nil
}

// Finish seals and returns the log.
func (r *Recorder) Finish() *Log {
	r.log.FinalHash = r.sim.StateHash()
	return &r.log
}

// Save writes the log as JSON.
func (l *Log) Save(path string) error {
	raw, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("replay: marshal log: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("replay: write %s: %w", path, err)
	}
	return nil
}

// LoadLog reads a log from disk.
func LoadLog(path string) (*Log, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("replay: read %s: %w", path, err)
	}
	var l Log
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, fmt.Errorf("replay: parse %s: %w", path, err)
	}
	if l.Version > Version {
		return nil, fmt.Errorf("replay: log version %d is newer than this build supports", l.Version)
	}
	return &l, nil
}

// DivergenceError reports the first tick where a replay stopped matching.
type DivergenceError struct {
	Tick uint64
	Want uint64
	Got  uint64
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("replay diverged at tick %d: hash %016x, recorded %016x",
		e.Tick, e.Got, e.Want)
}

// Verify replays the log against a fresh simulation and compares the hash
// after every tick. The simulation must be built the same way as the
// recorded run (same plugins, same pipeline, same scenario) and not yet
// stepped; Verify resets it to the log's seed first.
func Verify(s *sim.Simulation, l *Log) error {
	if s.Tick() != 0 {
		return fmt.Errorf("replay: verify against a simulation that already ran")
	}
	if s.Seed() != l.Seed {
		return fmt.Errorf("replay: simulation seeded with %d, log recorded %d", s.Seed(), l.Seed)
	}
	for i, tr := range l.Ticks {
		for _, in := range tr.Inputs {
			out, err := decodeOutput(in.Output)
			if err != nil {
				return err
			}
			s.Inject(in.Target, out)
		}
		if err := s.Step(); err != nil {
			return fmt.Errorf("replay: tick %d: %w", i, err)
		}
		if got := s.StateHash(); got != tr.Hash {
			return &DivergenceError{Tick: uint64(i), Want: tr.Hash, Got: got}
		}
	}
	if l.FinalHash != 0 && s.StateHash() != l.FinalHash {
		return &DivergenceError{Tick: uint64(len(l.Ticks)), Want: l.FinalHash, Got: s.StateHash()}
	}
	return nil
}
