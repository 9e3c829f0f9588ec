// Package fsm implements a generic finite state machine whose transition
// graph can be extended by independently supplied processes.
//
// A graph is declared as Transitions, merged with any number of extensions
// at boot, validated once, and then shared read-only by every Machine built
// from the resulting Definition.
package fsm

import (
	"slices"
)

// MergeStrategy controls how an extension combines with an existing state.
type MergeStrategy string

const (
	// MergeAppend appends the extension's targets to the base targets.
	MergeAppend MergeStrategy = "merge"
	// MergeReplace discards the base targets in favour of the extension's.
	MergeReplace MergeStrategy = "replace"
)

// Transition lists the states reachable from one state.
type Transition[S ~string] struct {
	To            []S
	MergeStrategy MergeStrategy
}

// Transitions maps every declared state to its outgoing transitions.
type Transitions[S ~string] map[S]Transition[S]

// Clone returns a deep copy of the graph.
func (t Transitions[S]) Clone() Transitions[S] {
	out := make(Transitions[S], len(t))
	for state, tr := range t {
		out[state] = Transition[S]{
			To:            slices.Clone(tr.To),
			MergeStrategy: tr.MergeStrategy,
		}
	}
	return out
}

// Has reports whether state is declared.
func (t Transitions[S]) Has(state S) bool {
	_, ok := t[state]
	return ok
}

// States returns all declared states in lexical order.
func (t Transitions[S]) States() []S {
	states := make([]S, 0, len(t))
	for state := range t {
		states = append(states, state)
	}
	slices.Sort(states)
	return states
}

// Next returns the targets reachable from state.
func (t Transitions[S]) Next(state S) []S {
	return slices.Clone(t[state].To)
}

// Allows reports whether to is a direct target of from.
func (t Transitions[S]) Allows(from, to S) bool {
	return slices.Contains(t[from].To, to)
}

// Merge combines base with ext without mutating either.
//
// States only present in ext are added as-is. For states present in both,
// ext's targets are appended unless ext marks the state MergeReplace, in
// which case ext's targets win outright. Appending is not idempotent:
// merging the same extension twice duplicates its targets.
func Merge[S ~string](base, ext Transitions[S]) Transitions[S] {
	out := base.Clone()
	for state, tr := range ext {
		existing, ok := out[state]
		switch {
		case !ok, tr.MergeStrategy == MergeReplace:
			out[state] = Transition[S]{To: slices.Clone(tr.To)}
		default:
			existing.To = append(existing.To, tr.To...)
			out[state] = existing
		}
	}
	return out
}

// Validation is the outcome of a successful Validate call.
type Validation[S ~string] struct {
	// Unreachable lists declared states that cannot be reached from the
	// initial state. They are reported, not rejected: a state may be
	// deliberately reachable only through Machine.JumpTo.
	Unreachable []S
}

// Valid reports whether every declared state is reachable.
func (v Validation[S]) Valid() bool {
	return len(v.Unreachable) == 0
}

// Validate checks that initial is declared, that every target is declared
// and reports states unreachable from initial.
//
// The reachability walk fails on the first undeclared target it meets.
// Targets of unreachable states are checked afterwards so the graph is
// always closed once Validate returns without error.
func Validate[S ~string](t Transitions[S], initial S) (Validation[S], error) {
	if !t.Has(initial) {
		return Validation[S]{}, &UndefinedInitialStateError{State: string(initial)}
	}

	visited := map[S]bool{initial: true}
	stack := []S{initial}
	for len(stack) > 0 {
		state := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, target := range t[state].To {
			if !t.Has(target) {
				return Validation[S]{}, &UnknownTargetStateError{From: string(state), To: string(target)}
			}
			if !visited[target] {
				visited[target] = true
				stack = append(stack, target)
			}
		}
	}

	var v Validation[S]
	for _, state := range t.States() {
		if visited[state] {
			continue
		}
		for _, target := range t[state].To {
			if !t.Has(target) {
				return Validation[S]{}, &UnknownTargetStateError{From: string(state), To: string(target)}
			}
		}
		v.Unreachable = append(v.Unreachable, state)
	}

	return v, nil
}
