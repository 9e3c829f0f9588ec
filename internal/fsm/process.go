package fsm

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/multierr"
)

// StartHook runs before a transition is committed. Returning nil lets the
// transition proceed, ErrCancel cancels it silently, and any other error
// vetoes it and reports the error message to the error hooks.
type StartHook[S ~string, D any] func(ctx context.Context, from, to S, data D) error

// EndHook runs after a transition has been committed and finalized.
type EndHook[S ~string, D any] func(ctx context.Context, from, to S, data D) error

// ErrorHook observes a rejected transition. message is empty when the
// target was not in the transition graph.
type ErrorHook[S ~string] func(ctx context.Context, from, to S, message string)

// Process is one contribution to a Definition: extra transitions plus
// optional lifecycle hooks.
type Process[S ~string, D any] struct {
	Name              string
	Transitions       Transitions[S]
	OnTransitionStart StartHook[S, D]
	OnTransitionEnd   EndHook[S, D]
	OnError           ErrorHook[S]
}

// Config describes a Definition before composition.
type Config[S ~string, D any] struct {
	// Name identifies the definition in errors, e.g. "order".
	Name        string
	Initial     S
	Transitions Transitions[S]
	Processes   []Process[S, D]
	// OnIllegal runs after all error hooks. A non-nil return value is
	// surfaced to the caller of Machine.Transition. When OnIllegal is nil a
	// rejected transition is a silent no-op.
	OnIllegal func(from, to S, message string) error
}

// Definition is an immutable, validated transition graph with its composed
// hooks. It is built once at boot and shared by all machines.
type Definition[S ~string, D any] struct {
	name        string
	initial     S
	transitions Transitions[S]
	validation  Validation[S]
	processes   []string

	starts    []StartHook[S, D]
	ends      []EndHook[S, D]
	errs      []ErrorHook[S]
	onIllegal func(from, to S, message string) error
}

// Compose merges every process graph into the base graph in registration
// order, validates the result and collects the hooks.
func Compose[S ~string, D any](cfg Config[S, D]) (*Definition[S, D], error) {
	def := &Definition[S, D]{
		name:        cfg.Name,
		initial:     cfg.Initial,
		transitions: cfg.Transitions.Clone(),
		onIllegal:   cfg.OnIllegal,
	}

	seen := make(map[string]struct{}, len(cfg.Processes))
	for _, p := range cfg.Processes {
		if p.Name != "" {
			if _, dup := seen[p.Name]; dup {
				return nil, &DuplicateProcessError{Definition: cfg.Name, Process: p.Name}
			}
			seen[p.Name] = struct{}{}
			def.processes = append(def.processes, p.Name)
		}
		if p.Transitions != nil {
			def.transitions = Merge(def.transitions, p.Transitions)
		}
		if p.OnTransitionStart != nil {
			def.starts = append(def.starts, p.OnTransitionStart)
		}
		if p.OnTransitionEnd != nil {
			def.ends = append(def.ends, p.OnTransitionEnd)
		}
		if p.OnError != nil {
			def.errs = append(def.errs, p.OnError)
		}
	}

	v, err := Validate(def.transitions, cfg.Initial)
	if err != nil {
		return nil, errors.Wrapf(err, "validate %s transitions", cfg.Name)
	}
	def.validation = v

	return def, nil
}

// Name returns the definition name.
func (d *Definition[S, D]) Name() string { return d.name }

// Initial returns the initial state.
func (d *Definition[S, D]) Initial() S { return d.initial }

// Transitions returns a copy of the merged transition graph.
func (d *Definition[S, D]) Transitions() Transitions[S] { return d.transitions.Clone() }

// Validation returns the validation result computed by Compose.
func (d *Definition[S, D]) Validation() Validation[S] { return d.validation }

// Processes returns the names of the registered processes in order.
func (d *Definition[S, D]) Processes() []string {
	return append([]string(nil), d.processes...)
}

// NewMachine returns a machine positioned at the initial state.
func (d *Definition[S, D]) NewMachine() *Machine[S, D] {
	return &Machine[S, D]{def: d, current: d.initial}
}

// Restore returns a machine positioned at a previously persisted state.
func (d *Definition[S, D]) Restore(current S) *Machine[S, D] {
	return &Machine[S, D]{def: d, current: current}
}

// start folds the start hooks left to right, stopping at the first veto.
func (d *Definition[S, D]) start(ctx context.Context, from, to S, data D) error {
	for _, hook := range d.starts {
		if err := hook(ctx, from, to, data); err != nil {
			return err
		}
	}
	return nil
}

// end runs every end hook regardless of earlier failures.
func (d *Definition[S, D]) end(ctx context.Context, from, to S, data D) error {
	var errs error
	for _, hook := range d.ends {
		errs = multierr.Append(errs, hook(ctx, from, to, data))
	}
	return errs
}

// fail notifies every error hook, then defers to the base handler.
func (d *Definition[S, D]) fail(ctx context.Context, from, to S, message string) error {
	for _, hook := range d.errs {
		hook(ctx, from, to, message)
	}
	if d.onIllegal == nil {
		return nil
	}
	return d.onIllegal(from, to, message)
}
