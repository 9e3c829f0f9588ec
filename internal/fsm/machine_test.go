package fsm

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	hook    string
	from    door
	to      door
	message string
}

type recorder struct {
	calls []call
}

func (r *recorder) process(name string, veto map[door]error) Process[door, string] {
	return Process[door, string]{
		Name: name,
		OnTransitionStart: func(_ context.Context, from, to door, _ string) error {
			r.calls = append(r.calls, call{hook: name + ".start", from: from, to: to})
			return veto[to]
		},
		OnTransitionEnd: func(_ context.Context, from, to door, _ string) error {
			r.calls = append(r.calls, call{hook: name + ".end", from: from, to: to})
			return nil
		},
		OnError: func(_ context.Context, from, to door, message string) {
			r.calls = append(r.calls, call{hook: name + ".error", from: from, to: to, message: message})
		},
	}
}

func (r *recorder) hooks() []string {
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.hook
	}
	return out
}

func newLift(t *testing.T, onIllegal func(from, to door, message string) error, processes ...Process[door, string]) *Definition[door, string] {
	t.Helper()
	def, err := Compose(Config[door, string]{
		Name:        "lift",
		Initial:     doorsClosed,
		Transitions: liftGraph(),
		Processes:   processes,
		OnIllegal:   onIllegal,
	})
	require.NoError(t, err)
	return def
}

func TestMachine_TransitionCommitsThenFinalizes(t *testing.T) {
	rec := &recorder{}
	m := newLift(t, nil, rec.process("p", nil)).NewMachine()
	ctx := context.Background()

	res, err := m.Transition(ctx, doorsOpen, "open")
	require.NoError(t, err)
	assert.True(t, res.Committed)
	assert.Equal(t, doorsOpen, m.Current())
	assert.Equal(t, []string{"p.start"}, rec.hooks())

	require.NoError(t, res.Finalize(ctx))
	assert.Equal(t, []string{"p.start", "p.end"}, rec.hooks())

	require.NoError(t, res.Finalize(ctx))
	assert.Len(t, rec.calls, 2, "finalize must run end hooks once")
}

func TestMachine_CancelledTransitionLeavesState(t *testing.T) {
	rec := &recorder{}
	m := newLift(t, nil, rec.process("p", map[door]error{moving: ErrCancel})).NewMachine()
	ctx := context.Background()

	res, err := m.Transition(ctx, doorsOpen, "")
	require.NoError(t, err)
	require.NoError(t, res.Finalize(ctx))

	res, err = m.Transition(ctx, doorsClosed, "")
	require.NoError(t, err)
	require.NoError(t, res.Finalize(ctx))

	rec.calls = nil
	res, err = m.Transition(ctx, moving, "")
	require.NoError(t, err)
	assert.False(t, res.Committed)
	assert.Equal(t, doorsClosed, m.Current())
	require.NoError(t, res.Finalize(ctx))
	assert.Equal(t, []string{"p.start"}, rec.hooks(), "no end or error hooks after a silent cancel")
}

func TestMachine_VetoReportsMessage(t *testing.T) {
	rec := &recorder{}
	illegal := func(from, to door, message string) error {
		return &IllegalTransitionError{Process: "lift", From: string(from), To: string(to), Message: message}
	}
	m := newLift(t, illegal, rec.process("p", map[door]error{moving: errors.New("doors are jammed")})).NewMachine()

	res, err := m.Transition(context.Background(), moving, "")

	var illegalErr *IllegalTransitionError
	require.ErrorAs(t, err, &illegalErr)
	assert.Equal(t, "DoorsClosed", illegalErr.From)
	assert.Equal(t, "Moving", illegalErr.To)
	assert.Equal(t, "doors are jammed", illegalErr.Message)
	assert.False(t, res.Committed)
	assert.Equal(t, doorsClosed, m.Current())
	assert.Equal(t, []string{"p.start", "p.error"}, rec.hooks())
	assert.Equal(t, "doors are jammed", rec.calls[1].message)
}

func TestMachine_IllegalTransition(t *testing.T) {
	t.Run("without base handler is a no-op", func(t *testing.T) {
		rec := &recorder{}
		m := newLift(t, nil, rec.process("p", nil)).Restore(doorsOpen)

		res, err := m.Transition(context.Background(), moving, "")
		require.NoError(t, err)
		assert.False(t, res.Committed)
		assert.Equal(t, doorsOpen, m.Current())
		assert.Equal(t, []string{"p.error"}, rec.hooks())
		assert.Empty(t, rec.calls[0].message)
	})

	t.Run("with base handler raises", func(t *testing.T) {
		illegal := func(from, to door, _ string) error {
			return &IllegalTransitionError{Process: "lift", From: string(from), To: string(to)}
		}
		m := newLift(t, illegal).Restore(doorsOpen)

		_, err := m.Transition(context.Background(), moving, "")

		var illegalErr *IllegalTransitionError
		require.ErrorAs(t, err, &illegalErr)
		assert.Equal(t, doorsOpen, m.Current())
	})
}

func TestMachine_FirstVetoShortCircuits(t *testing.T) {
	rec := &recorder{}
	m := newLift(t, nil,
		rec.process("a", nil),
		rec.process("b", map[door]error{doorsOpen: errors.New("b says no")}),
		rec.process("c", nil),
	).NewMachine()

	res, err := m.Transition(context.Background(), doorsOpen, "")
	require.NoError(t, err)
	assert.False(t, res.Committed)
	assert.Equal(t, []string{"a.start", "b.start", "a.error", "b.error", "c.error"}, rec.hooks())
}

func TestMachine_EndHooksAllRun(t *testing.T) {
	var ran []string
	failing := Process[door, string]{
		Name: "failing",
		OnTransitionEnd: func(context.Context, door, door, string) error {
			ran = append(ran, "failing")
			return errors.New("boom")
		},
	}
	after := Process[door, string]{
		Name: "after",
		OnTransitionEnd: func(context.Context, door, door, string) error {
			ran = append(ran, "after")
			return nil
		},
	}
	m := newLift(t, nil, failing, after).NewMachine()
	ctx := context.Background()

	res, err := m.Transition(ctx, doorsOpen, "")
	require.NoError(t, err)

	err = res.Finalize(ctx)
	require.Error(t, err)
	assert.Equal(t, []string{"failing", "after"}, ran)
	assert.Equal(t, doorsOpen, m.Current())
}

func TestMachine_HooksObserveCommittedState(t *testing.T) {
	var m *Machine[door, string]
	var nextDuringEnd []door
	p := Process[door, string]{
		Name: "observer",
		OnTransitionEnd: func(context.Context, door, door, string) error {
			nextDuringEnd = m.NextStates()
			return nil
		},
	}
	m = newLift(t, nil, p).NewMachine()
	ctx := context.Background()

	res, err := m.Transition(ctx, doorsOpen, "")
	require.NoError(t, err)
	require.NoError(t, res.Finalize(ctx))

	assert.Equal(t, []door{doorsClosed}, nextDuringEnd)
}

func TestMachine_CanTransitionTo(t *testing.T) {
	m := newLift(t, nil).NewMachine()

	for _, s := range []door{doorsClosed, doorsOpen, moving} {
		assert.Equal(t, liftGraph().Allows(doorsClosed, s), m.CanTransitionTo(s), "state %s", s)
	}
	assert.ElementsMatch(t, []door{doorsOpen, moving}, m.NextStates())
}

func TestMachine_JumpToBypassesHooks(t *testing.T) {
	rec := &recorder{}
	m := newLift(t, nil, rec.process("p", nil)).NewMachine()

	m.JumpTo(moving)

	assert.Equal(t, moving, m.Current())
	assert.Empty(t, rec.calls)
}

func TestCompose(t *testing.T) {
	t.Run("process transitions are merged", func(t *testing.T) {
		def := newLift(t, nil, Process[door, string]{
			Name:        "express",
			Transitions: Transitions[door]{doorsOpen: {To: []door{moving}}},
		})
		assert.True(t, def.Transitions().Allows(doorsOpen, moving))
		assert.Equal(t, []string{"express"}, def.Processes())
		assert.True(t, def.Validation().Valid())
	})

	t.Run("duplicate process rejected", func(t *testing.T) {
		p := Process[door, string]{Name: "twice", Transitions: Transitions[door]{doorsOpen: {To: []door{moving}}}}
		_, err := Compose(Config[door, string]{
			Name:        "lift",
			Initial:     doorsClosed,
			Transitions: liftGraph(),
			Processes:   []Process[door, string]{p, p},
		})

		var dup *DuplicateProcessError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "twice", dup.Process)
	})

	t.Run("invalid merged graph rejected", func(t *testing.T) {
		_, err := Compose(Config[door, string]{
			Name:        "lift",
			Initial:     doorsClosed,
			Transitions: liftGraph(),
			Processes: []Process[door, string]{{
				Name:        "broken",
				Transitions: Transitions[door]{moving: {To: []door{"Void"}}},
			}},
		})

		var unknown *UnknownTargetStateError
		require.ErrorAs(t, err, &unknown)
	})

	t.Run("replace removes a default transition", func(t *testing.T) {
		def := newLift(t, nil, Process[door, string]{
			Name:        "no-moving-with-open-doors",
			Transitions: Transitions[door]{doorsClosed: {To: []door{doorsOpen}, MergeStrategy: MergeReplace}},
		})
		assert.False(t, def.Transitions().Allows(doorsClosed, moving))
		assert.Equal(t, []door{moving}, def.Validation().Unreachable)
	})
}
