package models

import "time"

// ActionKind is one of the five checkpoint position actions.
type ActionKind string

const (
	ActionStay     ActionKind = "STAY"
	ActionExit     ActionKind = "EXIT"
	ActionFlip     ActionKind = "FLIP"
	ActionReduce   ActionKind = "REDUCE"
	ActionIncrease ActionKind = "INCREASE"
)

// ActionKinds lists all valid actions.
var ActionKinds = []ActionKind{ActionStay, ActionExit, ActionFlip, ActionReduce, ActionIncrease}

// Valid reports whether k names one of the five actions.
func (k ActionKind) Valid() bool {
	for _, a := range ActionKinds {
		if k == a {
			return true
		}
	}
	return false
}

// CheckpointAction is the re-evaluation outcome for one open position at
// one checkpoint time, consumed immediately by the same checkpoint's
// execution step.
type CheckpointAction struct {
	Account           string     `json:"account"`
	Instrument        Instrument `json:"instrument"`
	Direction         Direction  `json:"direction"`
	CurrentConviction float64    `json:"current_conviction"`
	NewConviction     float64    `json:"new_conviction"`
	Action            ActionKind `json:"action"`
	Reason            string     `json:"reason"`
	Executed          bool       `json:"executed"`
	Checkpoint        string     `json:"checkpoint"`
	DecidedAt         time.Time  `json:"decided_at"`
}
