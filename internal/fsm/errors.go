package fsm

import (
	"fmt"

	"github.com/go-faster/errors"
)

// ErrCancel is returned by an OnTransitionStart hook to cancel a transition
// silently: the state is left unchanged and no error hooks run.
var ErrCancel = errors.New("transition cancelled")

// IllegalTransitionError indicates the requested state is not reachable from
// the current state, or a hook vetoed the transition.
type IllegalTransitionError struct {
	Process string
	From    string
	To      string
	Message string
}

func (e *IllegalTransitionError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: cannot transition from %q to %q: %s", e.Process, e.From, e.To, e.Message)
	}
	return fmt.Sprintf("%s: cannot transition from %q to %q", e.Process, e.From, e.To)
}

// UndefinedInitialStateError indicates the initial state is not declared in
// the transition graph.
type UndefinedInitialStateError struct {
	State string
}

func (e *UndefinedInitialStateError) Error() string {
	return fmt.Sprintf("initial state %q is not defined", e.State)
}

// UnknownTargetStateError indicates a transition points at a state that is
// not declared in the graph.
type UnknownTargetStateError struct {
	From string
	To   string
}

func (e *UnknownTargetStateError) Error() string {
	return fmt.Sprintf("state %q transitions to undefined state %q", e.From, e.To)
}

// DuplicateProcessError indicates the same process was registered twice.
type DuplicateProcessError struct {
	Definition string
	Process    string
}

func (e *DuplicateProcessError) Error() string {
	return fmt.Sprintf("%s: process %q registered more than once", e.Definition, e.Process)
}
