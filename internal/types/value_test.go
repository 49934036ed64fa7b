package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_String(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"null", Null(), ""},
		{"true", Bool(true), "true"},
		{"false", Bool(false), "false"},
		{"int", Int(42), "42"},
		{"negative", Number(-3), "-3"},
		{"float", Number(1.5), "1.5"},
		{"string", String("hi"), "hi"},
		{"sequence", Sequence(Int(1), Int(2), Int(3)), "[1, 2, 3]"},
		{"nested strings", Sequence(String("a"), Null(), Bool(true)), `["a", null, true]`},
		{"mapping", Mapping(MapOf("k", "v", "n", 2)), `{"k": "v", "n": 2}`},
		{"empty sequence", Sequence(), "[]"},
		{"empty mapping", Mapping(nil), "{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.v.String())
		})
	}
}

func TestValue_Truthy(t *testing.T) {
	falsy := []Value{Null(), Bool(false), Int(0), String(""), Sequence(), Mapping(nil)}
	for _, v := range falsy {
		assert.False(t, v.Truthy(), "%s should be falsy", v.Kind())
	}
	truthy := []Value{Bool(true), Number(0.1), String("false"), Sequence(Null()), Mapping(MapOf("a", 1))}
	for _, v := range truthy {
		assert.True(t, v.Truthy(), "%s should be truthy", v.Kind())
	}
}

func TestValue_IsEmpty(t *testing.T) {
	assert.True(t, Null().IsEmpty())
	assert.True(t, String("").IsEmpty())
	assert.True(t, Sequence().IsEmpty())
	assert.False(t, Int(0).IsEmpty())
	assert.False(t, Bool(false).IsEmpty())
	assert.False(t, Mapping(nil).IsEmpty())
}

func TestValue_Equal(t *testing.T) {
	assert.True(t, Int(1).Equal(Number(1.0)))
	assert.False(t, Bool(true).Equal(Int(1)), "bool never equals number")
	assert.True(t, Sequence(Int(1), String("a")).Equal(Sequence(Int(1), String("a"))))
	assert.False(t, Sequence(Int(1)).Equal(Sequence(Int(1), Int(2))))
	assert.True(t, Mapping(MapOf("a", 1, "b", 2)).Equal(Mapping(MapOf("b", 2, "a", 1))))
	assert.False(t, Mapping(MapOf("a", 1)).Equal(Mapping(MapOf("a", 2))))
	assert.True(t, Null().Equal(Null()))
}

func TestValue_Len(t *testing.T) {
	n, err := String("héllo").Len()
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = Sequence(Int(1), Int(2)).Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = Int(3).Len()
	assert.Error(t, err)
}

func TestFromGo_RoundTrip(t *testing.T) {
	in := map[string]any{
		"b":    []any{1, "two", nil, true},
		"a":    1.5,
		"nest": map[any]any{"x": "y"},
	}
	v, err := FromGo(in)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "nest"}, v.Map().Keys(), "keys are sorted")
	assert.Equal(t, map[string]any{
		"b":    []any{1, "two", nil, true},
		"a":    1.5,
		"nest": map[string]any{"x": "y"},
	}, v.ToGo())
}

func TestFromGo_Rejects(t *testing.T) {
	_, err := FromGo(map[any]any{1: "x"})
	assert.Error(t, err)

	_, err = FromGo(struct{}{})
	assert.Error(t, err)
}

func TestMap_Order(t *testing.T) {
	m := NewMap()
	m.Set("z", Int(1))
	m.Set("a", Int(2))
	m.Set("z", Int(3))
	assert.Equal(t, []string{"z", "a"}, m.Keys())

	v, ok := m.Get("z")
	require.True(t, ok)
	assert.Equal(t, "3", v.String())

	m.Delete("z")
	assert.Equal(t, []string{"a"}, m.Keys())
	assert.False(t, m.Has("z"))

	var nilMap *Map
	assert.Equal(t, 0, nilMap.Len())
	_, ok = nilMap.Get("x")
	assert.False(t, ok)
}

func TestActionStatus_Transitions(t *testing.T) {
	assert.True(t, ActionIdle.CanTransitionTo(ActionRunning))
	assert.True(t, ActionFailed.CanTransitionTo(ActionRunning))
	assert.False(t, ActionRunning.CanTransitionTo(ActionRunning))
	assert.True(t, ActionRunning.CanTransitionTo(ActionSuccess))
	assert.False(t, ActionIdle.CanTransitionTo(ActionSuccess))
	assert.False(t, ActionStatus("bogus").Valid())
}

func TestStepState_Transitions(t *testing.T) {
	assert.True(t, StepPending.CanTransitionTo(StepSkipped))
	assert.True(t, StepPending.CanTransitionTo(StepRunning))
	assert.False(t, StepPending.CanTransitionTo(StepFailed))
	assert.True(t, StepRunning.CanTransitionTo(StepFailed))
	assert.False(t, StepSucceeded.CanTransitionTo(StepRunning))
}

func TestStepResult_Value(t *testing.T) {
	out := "hello"
	r := &StepResult{ExitCode: 0, Stdout: &out, DurationMS: 12}
	m := r.Value().Map()

	assert.Equal(t, []string{"exit_code", "stdout", "duration_ms"}, m.Keys())
	assert.False(t, m.Has("stderr"), "uncaptured streams are absent")
}
