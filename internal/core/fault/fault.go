// Package fault defines the kernel's error taxonomy. Contract violations are
// programming errors and carry full provenance; schema and exhaustion faults
// are reported to the caller and never silently absorbed, because a masked
// fault would also mask nondeterminism.
package fault

import (
	"errors"
	"fmt"
)

// ContractViolation reports a plugin or resolver breaking its declaration:
// reading an undeclared component, emitting an undeclared output kind, or
// touching entity lifecycle outside the apply phase.
type ContractViolation struct {
	Phase     string
	Plugin    string // empty when the violator is not a plugin
	Entity    uint64
	Component string // component kind or operation that was out of bounds
	Detail    string
}

func (v *ContractViolation) Error() string {
	who := v.Plugin
	if who == "" {
		who = "caller"
	}
	return fmt.Sprintf("contract violation in %s phase: %s touched %s on entity %d: %s",
		v.Phase, who, v.Component, v.Entity, v.Detail)
}

// SchemaError reports a rejected load of persisted state or a replay log.
// Loads fail whole; nothing is partially applied.
type SchemaError struct {
	Source string // file or stream being loaded
	Detail string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error in %s: %s", e.Source, e.Detail)
}

// ExhaustionError reports an exceeded hard resource bound (entity ids,
// output volume). Fatal, not retried.
type ExhaustionError struct {
	Resource string
	Limit    uint64
}

func (e *ExhaustionError) Error() string {
	return fmt.Sprintf("%s exhausted (limit %d)", e.Resource, e.Limit)
}

// IsContractViolation reports whether err wraps a ContractViolation.
func IsContractViolation(err error) bool {
	var cv *ContractViolation
	return errors.As(err, &cv)
}
