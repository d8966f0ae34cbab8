// ABOUTME: Tagged outcome type for property executions and whole sessions
// ABOUTME: Also defines termination reasons and the scheduler states

package scheduler

import "fmt"

// OutcomeKind tags an Outcome.
type OutcomeKind int

// Outcome kinds. Pass, Fail and Error describe one property execution;
// Terminated and Fatal describe how a session ended.
const (
	OutcomePass OutcomeKind = iota
	OutcomeFail
	OutcomeError
	OutcomeTerminated
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomePass:
		return "pass"
	case OutcomeFail:
		return "fail"
	case OutcomeError:
		return "error"
	case OutcomeTerminated:
		return "terminated"
	case OutcomeFatal:
		return "fatal"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// TerminationReason explains a normal session end.
type TerminationReason string

// Termination reasons.
const (
	ReasonStepBudget    TerminationReason = "step-budget-reached"
	ReasonRemoteTimeout TerminationReason = "remote-timeout"
	ReasonInterrupted   TerminationReason = "interrupted"
)

// Outcome is the result of one property execution or of a session.
type Outcome struct {
	Kind OutcomeKind
	// Property is set for Pass, Fail and Error.
	Property string
	// Reason is set for Terminated.
	Reason TerminationReason
	// Err is the failure for Fail, Error and Fatal.
	Err error
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeTerminated:
		return fmt.Sprintf("terminated(%s)", o.Reason)
	case OutcomeFatal:
		return fmt.Sprintf("fatal(%v)", o.Err)
	default:
		return fmt.Sprintf("%s(%s)", o.Kind, o.Property)
	}
}

func terminated(reason TerminationReason) Outcome {
	return Outcome{Kind: OutcomeTerminated, Reason: reason}
}

func fatal(err error) Outcome {
	return Outcome{Kind: OutcomeFatal, Err: err}
}

// State is a position in the session state machine.
type State int

// Scheduler states.
const (
	StateInit State = iota
	StateStepping
	StateEvaluating
	StateSelecting
	StateExecuting
	StateRecording
	StateTerminated
)

var stateNames = [...]string{
	StateInit:       "INIT",
	StateStepping:   "STEPPING",
	StateEvaluating: "EVALUATING",
	StateSelecting:  "SELECTING",
	StateExecuting:  "EXECUTING",
	StateRecording:  "RECORDING",
	StateTerminated: "TERMINATED",
}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}
