package processing

import "fmt"

// State of one orchestrator.
type State int

const (
	Idle State = iota
	Validated
	Submitting
	Waiting
	Success
	Failure
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validated:
		return "validated"
	case Submitting:
		return "submitting"
	case Waiting:
		return "waiting"
	case Success:
		return "success"
	case Failure:
		return "failure"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Busy reports whether a request is in flight.
func (s State) Busy() bool { return s == Submitting || s == Waiting }

// Event drives a transition.
type Event int

const (
	ArtifactSelected Event = iota
	ValidationFailed
	SubmitStarted
	RequestSent
	UploadSucceeded
	UploadFailed
	Reset
)

func (e Event) String() string {
	switch e {
	case ArtifactSelected:
		return "artifact_selected"
	case ValidationFailed:
		return "validation_failed"
	case SubmitStarted:
		return "submit_started"
	case RequestSent:
		return "request_sent"
	case UploadSucceeded:
		return "upload_succeeded"
	case UploadFailed:
		return "upload_failed"
	case Reset:
		return "reset"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// transitions is the only place a State changes. Missing entries are
// illegal moves.
var transitions = map[State]map[Event]State{
	Idle: {
		ArtifactSelected: Validated,
		ValidationFailed: Idle,
		Reset:            Idle,
	},
	Validated: {
		ArtifactSelected: Validated,
		ValidationFailed: Idle,
		SubmitStarted:    Submitting,
		Reset:            Idle,
	},
	Submitting: {
		RequestSent:  Waiting,
		UploadFailed: Failure,
	},
	Waiting: {
		UploadSucceeded: Success,
		UploadFailed:    Failure,
	},
	Success: {
		ArtifactSelected: Validated,
		ValidationFailed: Idle,
		Reset:            Idle,
	},
	Failure: {
		ArtifactSelected: Validated,
		ValidationFailed: Idle,
		SubmitStarted:    Submitting,
		Reset:            Idle,
	},
}

func next(s State, e Event) (State, error) {
	to, ok := transitions[s][e]
	if !ok {
		return s, fmt.Errorf("processing: %s not allowed in state %s", e, s)
	}
	return to, nil
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
