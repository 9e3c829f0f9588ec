package fsm

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type door string

const (
	doorsClosed door = "DoorsClosed"
	doorsOpen   door = "DoorsOpen"
	moving      door = "Moving"
)

func liftGraph() Transitions[door] {
	return Transitions[door]{
		doorsClosed: {To: []door{doorsOpen, moving}},
		doorsOpen:   {To: []door{doorsClosed}},
		moving:      {To: []door{doorsClosed}},
	}
}

func TestMerge_AppendsTargets(t *testing.T) {
	base := Transitions[door]{
		doorsClosed: {To: []door{doorsOpen}},
		doorsOpen:   {To: []door{doorsClosed}},
	}
	ext := Transitions[door]{
		doorsClosed: {To: []door{moving}},
		moving:      {To: []door{doorsClosed}},
	}

	merged := Merge(base, ext)

	assert.Equal(t, []door{doorsOpen, moving}, merged[doorsClosed].To)
	assert.Equal(t, []door{doorsClosed}, merged[moving].To)
	assert.Equal(t, []door{doorsClosed}, merged[doorsOpen].To)
}

func TestMerge_ReplaceWins(t *testing.T) {
	base := liftGraph()
	ext := Transitions[door]{
		doorsClosed: {To: []door{doorsOpen}, MergeStrategy: MergeReplace},
	}

	merged := Merge(base, ext)

	assert.Equal(t, []door{doorsOpen}, merged[doorsClosed].To)
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	base := liftGraph()
	ext := Transitions[door]{
		doorsOpen: {To: []door{moving}},
	}

	_ = Merge(base, ext)

	assert.Equal(t, []door{doorsClosed}, base[doorsOpen].To)
	assert.Equal(t, []door{moving}, ext[doorsOpen].To)
}

func TestMerge_AppendIsNotIdempotent(t *testing.T) {
	ext := Transitions[door]{doorsOpen: {To: []door{moving}}}

	once := Merge(liftGraph(), ext)
	twice := Merge(once, ext)

	assert.Equal(t, []door{doorsClosed, moving}, once[doorsOpen].To)
	assert.Equal(t, []door{doorsClosed, moving, moving}, twice[doorsOpen].To)
}

func TestMerge_ReplaceIsIdempotent(t *testing.T) {
	ext := Transitions[door]{doorsOpen: {To: []door{moving}, MergeStrategy: MergeReplace}}

	once := Merge(liftGraph(), ext)
	twice := Merge(once, ext)

	assert.Equal(t, once, twice)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name            string
		graph           Transitions[door]
		initial         door
		wantUnreachable []door
		wantErr         any
	}{
		{
			name:    "all states reachable",
			graph:   liftGraph(),
			initial: doorsClosed,
		},
		{
			name: "unreachable state is a warning",
			graph: Transitions[door]{
				doorsClosed: {To: []door{doorsOpen}},
				doorsOpen:   {To: []door{doorsClosed}},
				moving:      {To: []door{doorsClosed}},
			},
			initial:         doorsClosed,
			wantUnreachable: []door{moving},
		},
		{
			name:    "undefined initial state",
			graph:   liftGraph(),
			initial: "Broken",
			wantErr: &UndefinedInitialStateError{},
		},
		{
			name: "unknown target on reachable path",
			graph: Transitions[door]{
				doorsClosed: {To: []door{"Basement"}},
			},
			initial: doorsClosed,
			wantErr: &UnknownTargetStateError{},
		},
		{
			name: "unknown target on unreachable state",
			graph: Transitions[door]{
				doorsClosed: {To: []door{}},
				moving:      {To: []door{"Roof"}},
			},
			initial: doorsClosed,
			wantErr: &UnknownTargetStateError{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Validate(tt.graph, tt.initial)

			switch want := tt.wantErr.(type) {
			case *UndefinedInitialStateError:
				require.ErrorAs(t, err, &want)
				assert.Equal(t, string(tt.initial), want.State)
			case *UnknownTargetStateError:
				require.ErrorAs(t, err, &want)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantUnreachable, v.Unreachable)
				assert.Equal(t, len(tt.wantUnreachable) == 0, v.Valid())
			}
		})
	}
}

func TestValidate_ReportsOffendingEdge(t *testing.T) {
	_, err := Validate(Transitions[door]{
		doorsClosed: {To: []door{doorsOpen}},
		doorsOpen:   {To: []door{"Attic"}},
	}, doorsClosed)

	var target *UnknownTargetStateError
	require.True(t, errors.As(err, &target))
	assert.Equal(t, "DoorsOpen", target.From)
	assert.Equal(t, "Attic", target.To)
}
