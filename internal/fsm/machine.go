package fsm

import (
	"context"

	"github.com/go-faster/errors"
)

// Machine tracks the current state of one entity against a Definition.
//
// A Machine is not safe for concurrent use; callers serialize access to the
// entity it belongs to.
type Machine[S ~string, D any] struct {
	def     *Definition[S, D]
	current S
}

// Current returns the current state.
func (m *Machine[S, D]) Current() S {
	return m.current
}

// NextStates returns the states reachable from the current state.
func (m *Machine[S, D]) NextStates() []S {
	return m.def.transitions.Next(m.current)
}

// CanTransitionTo reports whether to is a direct target of the current state.
func (m *Machine[S, D]) CanTransitionTo(to S) bool {
	return m.def.transitions.Allows(m.current, to)
}

// JumpTo sets the current state unconditionally, bypassing the graph and
// every hook. It exists for system-level corrections only.
func (m *Machine[S, D]) JumpTo(state S) {
	m.current = state
}

// Transition attempts to move to the given state.
//
// The state is committed before Transition returns so that logic running
// later in the same operation observes the new state. End hooks do not run
// until the caller invokes Result.Finalize, which lets the caller persist
// the committed state first.
//
// A rejected transition leaves the state unchanged and returns a Result
// with Committed false, together with whatever error the definition's
// illegal-transition handler produced.
func (m *Machine[S, D]) Transition(ctx context.Context, to S, data D) (*Result[S, D], error) {
	from := m.current
	noop := &Result[S, D]{From: from, To: from}

	if !m.CanTransitionTo(to) {
		return noop, m.def.fail(ctx, from, to, "")
	}

	if err := m.def.start(ctx, from, to, data); err != nil {
		if errors.Is(err, ErrCancel) {
			return noop, nil
		}
		return noop, m.def.fail(ctx, from, to, err.Error())
	}

	m.current = to

	return &Result[S, D]{
		From:      from,
		To:        to,
		Committed: true,
		finalize: func(ctx context.Context) error {
			return m.def.end(ctx, from, to, data)
		},
	}, nil
}

// Result describes the outcome of Machine.Transition.
type Result[S ~string, D any] struct {
	From      S
	To        S
	Committed bool

	finalize func(ctx context.Context) error
}

// Finalize runs the end hooks of a committed transition. It is a no-op for
// rejected transitions and on every call after the first.
func (r *Result[S, D]) Finalize(ctx context.Context) error {
	if r == nil || r.finalize == nil {
		return nil
	}
	fn := r.finalize
	r.finalize = nil
	return fn(ctx)
}
