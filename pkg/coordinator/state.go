package coordinator

import "fmt"

// State is a step of the cycle state machine.
type State int

const (
	Idle State = iota
	RequestingProof
	AwaitingProofResult
	SubmittingAuthorization
	AwaitingInclusion
	TickingExecutor
	AwaitingTickInclusion
	Verifying
	Failed
)

var stateNames = [...]string{
	Idle:                    "idle",
	RequestingProof:         "requesting_proof",
	AwaitingProofResult:     "awaiting_proof_result",
	SubmittingAuthorization: "submitting_authorization",
	AwaitingInclusion:       "awaiting_inclusion",
	TickingExecutor:         "ticking_executor",
	AwaitingTickInclusion:   "awaiting_tick_inclusion",
	Verifying:               "verifying",
	Failed:                  "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// StageError is a cycle failure together with the state it happened in.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
