package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeckError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *DeckError
		want string
	}{
		{
			name: "without cause",
			err:  New("EXPR_001", "bad expression"),
			want: "[EXPR_001] bad expression",
		},
		{
			name: "with cause",
			err:  Wrap("IO_005", "write failed", errors.New("disk full")),
			want: "[IO_005] write failed: disk full",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestDeckError_WithDetail(t *testing.T) {
	err := New("TEST_001", "test").
		WithDetail("key1", "value1").
		WithDetail("key2", 42)

	assert.Equal(t, "value1", err.Details["key1"])
	assert.Equal(t, 42, err.Details["key2"])
}

func TestDeckError_MarshalJSON(t *testing.T) {
	err := &DeckError{
		Code:    "PROC_001",
		Message: "step failed",
		Details: map[string]any{"step": "build"},
		Cause:   errors.New("underlying"),
	}

	data, jsonErr := json.Marshal(err)
	require.NoError(t, jsonErr)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, "PROC_001", result["code"])
	assert.Equal(t, "step failed", result["message"])
	assert.Equal(t, "underlying", result["cause"])
	assert.Equal(t, map[string]any{"step": "build"}, result["details"])
}

func TestHasCodeAndCode(t *testing.T) {
	err := New("TEST_001", "test")
	wrapped := fmt.Errorf("outer: %w", err)

	assert.True(t, HasCode(err, "TEST_001"))
	assert.False(t, HasCode(err, "TEST_002"))
	assert.False(t, HasCode(errors.New("plain"), "TEST_001"))
	assert.True(t, HasCode(wrapped, "TEST_001"))

	assert.Equal(t, "TEST_001", Code(wrapped))
	assert.Equal(t, "", Code(errors.New("plain")))
}

func TestIsRecoverable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ProcessExit("s", 2), true},
		{ProcessLaunch("nope", errors.New("not found")), true},
		{ProcessTimeout("sleep", 10), true},
		{IOWriteError("/x", errors.New("eacces")), true},
		{ExprSyntax("a +", "unexpected end"), false},
		{TypeMismatch("foreach.in", "sequence", "string"), false},
		{ArgSpecMissingOpt(0), false},
		{ConfigMissingField("actions"), false},
		{fmt.Errorf("wrapped: %w", IOFileNotFound("/y")), true},
		{errors.New("plain"), false},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, IsRecoverable(tt.err))
		})
	}
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "ExpressionError", TypeName(ExprUnresolved("x", "x")))
	assert.Equal(t, "ProcessError", TypeName(ProcessExit("s", 1)))
	assert.Equal(t, "ArgSpecError", TypeName(ArgSpecInvalid(1, "bad mode")))
	assert.Equal(t, "TypeMismatchError", TypeName(TypeMismatch("a", "b", "c")))
	assert.Equal(t, "Error", TypeName(errors.New("plain")))
}

func TestFactoryFunctions(t *testing.T) {
	tests := []struct {
		name     string
		err      *DeckError
		wantCode string
	}{
		{"ConfigMissingField", ConfigMissingField("field"), CodeConfigMissingField},
		{"ConfigInvalidValue", ConfigInvalidValue("field", "val", "reason"), CodeConfigInvalidValue},
		{"ExprSyntax", ExprSyntax("1 +", "eof"), CodeExprSyntax},
		{"ExprDisallowed", ExprDisallowed("f()", "call f"), CodeExprDisallowed},
		{"ExprUnresolved", ExprUnresolved("x", "x"), CodeExprUnresolved},
		{"ExprEval", ExprEval("1 < 'a'", errors.New("bad")), CodeExprEval},
		{"TypeMismatch", TypeMismatch("in", "sequence", "string"), CodeTypeMismatch},
		{"ArgSpecMissingOpt", ArgSpecMissingOpt(3), CodeArgSpecMissingOpt},
		{"ArgSpecInvalid", ArgSpecInvalid(3, "mode"), CodeArgSpecInvalid},
		{"ProcessExit", ProcessExit("s", 3), CodeProcessExit},
		{"ProcessLaunch", ProcessLaunch("p", errors.New("e")), CodeProcessLaunch},
		{"ProcessTimeout", ProcessTimeout("p", 5), CodeProcessTimeout},
		{"ProcessCancelled", ProcessCancelled(errors.New("e")), CodeProcessCancelled},
		{"IOFileNotFound", IOFileNotFound("/path"), CodeIOFileNotFound},
		{"IOPermissionDenied", IOPermissionDenied("/path", errors.New("err")), CodeIOPermission},
		{"IOReadError", IOReadError("/path", errors.New("err")), CodeIOReadError},
		{"IOWriteError", IOWriteError("/path", errors.New("err")), CodeIOWriteError},
		{"FormInvalid", FormInvalid([]string{"a", "b"}), CodeFormInvalid},
		{"UnknownAction", UnknownAction("x"), CodeSchedUnknownAction},
		{"AlreadyRunning", AlreadyRunning("x"), CodeSchedAlreadyRunning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, tt.err.Code)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestErrorsUnwrapChain(t *testing.T) {
	root := errors.New("root cause")
	wrapped := Wrap("WRAP_001", "wrapped", root)
	assert.ErrorIs(t, wrapped, root)
}
