package replay

import (
	"encoding/json"
	"fmt"

	"github.com/tachyon-beep/tidebreak-sub000/internal/core/entity"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/output"
)

// wireOutput is the serialized form of one injected output. Name selects
// the concrete type; Args carries its fields. Unknown extra fields in Args
// are ignored on decode, so logs written by newer builds still load.
type wireOutput struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

func encodeOutput(out output.Output) (wireOutput, error) {
	args, err := json.Marshal(out)
	if err != nil {
		return wireOutput{}, fmt.Errorf("replay: encode %s: %w", out.Name(), err)
	}
	return wireOutput{Name: out.Name(), Args: args}, nil
}

func decodeOutput(w wireOutput) (output.Output, error) {
	var (
		out output.Output
		err error
	)
	switch w.Name {
	case "set_velocity":
		out, err = decodeAs[output.SetVelocity](w.Args)
	case "set_heading":
		out, err = decodeAs[output.SetHeading](w.Args)
	case "fire_weapon":
		out, err = decodeAs[output.FireWeapon](w.Args)
	case "detonate":
		out, err = decodeAs[output.Detonate](w.Args)
	case "spawn_projectile":
		out, err = decodeAs[output.SpawnProjectile](w.Args)
	case "apply_damage":
		out, err = decodeAs[output.ApplyDamage](w.Args)
	case "apply_healing":
		out, err = decodeAs[output.ApplyHealing](w.Args)
	case "set_status_flag":
		out, err = decodeAs[output.SetStatusFlag](w.Args)
	case "modify_stat":
		out, err = decodeAs[output.ModifyStat](w.Args)
	case "claim_resource":
		out, err = decodeAs[output.ClaimResource](w.Args)
	case "weapon_fired":
		out, err = decodeAs[output.WeaponFired](w.Args)
	case "damage_dealt":
		out, err = decodeAs[output.DamageDealt](w.Args)
	case "entity_destroyed":
		out, err = decodeAs[output.EntityDestroyed](w.Args)
	case "contact_detected":
		out, err = decodeAs[output.ContactDetected](w.Args)
	case "resource_granted":
		out, err = decodeAs[output.ResourceGranted](w.Args)
	default:
		return nil, fmt.Errorf("replay: unknown output %q", w.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("replay: decode %s: %w", w.Name, err)
	}
	return out, nil
}

func decodeAs[T output.Output](raw json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}

// Input is one injected input with its target, in injection order.
type Input struct {
	Target entity.ID  `json:"target"`
	Output wireOutput `json:"output"`
}

// EnvelopeVersion is the schema version of the serialized envelope form.
// Decoding rejects anything newer; unknown fields within a known version
// are ignored.
const EnvelopeVersion = 1

// wireEnvelope carries every envelope field, causal metadata included, for
// audit storage.
type wireEnvelope struct {
	Version  int            `json:"version"`
	Output   wireOutput     `json:"output"`
	Entity   entity.ID      `json:"entity"`
	Plugin   string         `json:"plugin"`
	Cause    output.EventID `json:"cause"`
	Trace    output.TraceID `json:"trace"`
	Tick     uint64         `json:"tick"`
	Sequence uint32         `json:"sequence"`
}

// EncodeEnvelope serializes one envelope for the audit trail.
func EncodeEnvelope(env output.Envelope) ([]byte, error) {
	w, err := encodeOutput(env.Output)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEnvelope{
		Version:  EnvelopeVersion,
		Output:   w,
		Entity:   env.Source.Entity,
		Plugin:   string(env.Source.Plugin),
		Cause:    env.Cause,
		Trace:    env.Trace,
		Tick:     env.Tick,
		Sequence: env.Sequence,
	})
}

// DecodeEnvelope restores a serialized envelope.
func DecodeEnvelope(data []byte) (output.Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return output.Envelope{}, fmt.Errorf("replay: decode envelope: %w", err)
	}
	if w.Version > EnvelopeVersion {
		return output.Envelope{}, fmt.Errorf("replay: envelope version %d newer than supported %d",
			w.Version, EnvelopeVersion)
	}
	out, err := decodeOutput(w.Output)
	if err != nil {
		return output.Envelope{}, err
	}
	return output.Envelope{
		Output:   out,
		Source:   output.InstanceID{Entity: w.Entity, Plugin: output.PluginID(w.Plugin)},
		Cause:    w.Cause,
		Trace:    w.Trace,
		Tick:     w.Tick,
		Sequence: w.Sequence,
	}, nil
}
