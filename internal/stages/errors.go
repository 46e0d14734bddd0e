package stages

import (
	"errors"
	"fmt"
)

// Structural stage errors: required upstream context is missing. These are
// surfaced to the caller, never papered over with defaults.
var (
	ErrNoSnapshot = errors.New("no frozen research snapshot for this cycle: run the full pipeline first")
	ErrNoPitches  = errors.New("no accepted pitches in context")
	ErrNoDecision = errors.New("no chairman decision in context")
)

// ErrRejected marks a silent per-item rejection: the response could not be
// parsed into a usable object at all. Rejections are logged and dropped,
// never fatal to a stage.
var ErrRejected = errors.New("rejected")

// ValidationError is a contract breach the validator can fully
// characterize, e.g. a FLAT pitch carrying a risk profile. Distinct from a
// rejection so that real schema violations are loud in the logs.
type ValidationError struct {
	Agent  string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: agent %s field %s: %s", e.Agent, e.Field, e.Reason)
}
