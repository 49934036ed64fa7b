// Package errors provides structured error types for actiondeck.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Error codes for actiondeck operations. The prefix is the error class.
const (
	// Config errors: malformed document, fatal at load
	CodeConfigMissingField = "CONFIG_001" // Missing required field
	CodeConfigInvalidValue = "CONFIG_002" // Invalid value or type
	CodeConfigVersion      = "CONFIG_003" // Unsupported document version
	CodeConfigDuplicateID  = "CONFIG_004" // Duplicate sibling step id

	// Expression errors: fatal to the run
	CodeExprSyntax     = "EXPR_001" // Parse error
	CodeExprDisallowed = "EXPR_002" // Disallowed construct or call
	CodeExprUnresolved = "EXPR_003" // Unresolvable name, key or index
	CodeExprEval       = "EXPR_004" // Operand types do not support the operation

	// Type errors: fatal to the pipeline
	CodeTypeMismatch = "TYPE_001" // e.g. foreach.in not a sequence

	// Argv spec errors: fatal, detected before launch
	CodeArgSpecMissingOpt = "ARGSPEC_001" // Extended option without opt
	CodeArgSpecInvalid    = "ARGSPEC_002" // Unknown mode/style or malformed item
	CodeArgSpecTemplate   = "ARGSPEC_003" // Repeat/join template could not be applied

	// Process errors: recoverable, the step fails
	CodeProcessExit      = "PROC_001" // Non-zero exit
	CodeProcessLaunch    = "PROC_002" // Program could not be started
	CodeProcessTimeout   = "PROC_003" // timeout_ms elapsed
	CodeProcessCancelled = "PROC_004" // Run was stopped

	// IO errors: recoverable, the step fails
	CodeIOFileNotFound = "IO_001" // File not found
	CodeIOPermission   = "IO_002" // Permission denied
	CodeIOReadError    = "IO_004" // Read error
	CodeIOWriteError   = "IO_005" // Write error

	// Form errors: the run is not started
	CodeFormInvalid = "FORM_001" // One or more fields failed validation
	CodeFormUnknown = "FORM_002" // Value for a field the form does not declare

	// Scheduler errors
	CodeSchedUnknownAction  = "SCHED_001" // No such action
	CodeSchedAlreadyRunning = "SCHED_002" // Action has a flow in progress
	CodeSchedClosed         = "SCHED_003" // Scheduler closed

	// Preset errors
	CodePresetNotFound = "PRESET_001" // Preset not found
	CodePresetInvalid  = "PRESET_002" // Empty or duplicate preset name
)

// DeckError is the structured error type for actiondeck operations.
type DeckError struct {
	Code    string         `json:"code"`              // Error code (e.g., "EXPR_001")
	Message string         `json:"message"`           // Human-readable message
	Details map[string]any `json:"details,omitempty"` // Context (step, expression, etc.)
	Cause   error          `json:"-"`                 // Wrapped error (not serialized)
}

// Error implements the error interface.
func (e *DeckError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *DeckError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error.
func (e *DeckError) WithDetail(key string, value any) *DeckError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause wraps an underlying error.
func (e *DeckError) WithCause(err error) *DeckError {
	e.Cause = err
	return e
}

// MarshalJSON implements json.Marshaler with cause error message.
func (e *DeckError) MarshalJSON() ([]byte, error) {
	type alias DeckError
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// New creates a new DeckError.
func New(code, message string) *DeckError {
	return &DeckError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new DeckError with formatted message.
func Newf(code, format string, args ...any) *DeckError {
	return &DeckError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with a DeckError.
func Wrap(code, message string, err error) *DeckError {
	return &DeckError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with a formatted DeckError.
func Wrapf(code string, err error, format string, args ...any) *DeckError {
	return &DeckError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// --- Config Errors ---

// ConfigMissingField creates an error for a missing document field.
func ConfigMissingField(field string) *DeckError {
	return Newf(CodeConfigMissingField, "missing required field: %s", field).
		WithDetail("field", field)
}

// ConfigInvalidValue creates an error for an invalid document value.
func ConfigInvalidValue(field string, value any, reason string) *DeckError {
	return Newf(CodeConfigInvalidValue, "invalid value for %s: %s", field, reason).
		WithDetail("field", field).
		WithDetail("value", value).
		WithDetail("reason", reason)
}

// --- Expression Errors ---

// ExprSyntax creates an error for an expression that does not parse.
func ExprSyntax(expr, reason string) *DeckError {
	return Newf(CodeExprSyntax, "invalid expression syntax %q: %s", expr, reason).
		WithDetail("expression", expr)
}

// ExprDisallowed creates an error for a construct outside the allow-list.
func ExprDisallowed(expr, construct string) *DeckError {
	return Newf(CodeExprDisallowed, "forbidden expression construct %s in %q", construct, expr).
		WithDetail("expression", expr).
		WithDetail("construct", construct)
}

// ExprUnresolved creates an error for a name, key or index that does not exist.
func ExprUnresolved(expr, name string) *DeckError {
	return Newf(CodeExprUnresolved, "expression %q: %s is not defined", expr, name).
		WithDetail("expression", expr).
		WithDetail("name", name)
}

// ExprEval creates an error for an operation the operands do not support.
func ExprEval(expr string, err error) *DeckError {
	return Wrapf(CodeExprEval, err, "expression evaluation failed: %s", expr).
		WithDetail("expression", expr)
}

// --- Type Errors ---

// TypeMismatch creates an error for a value of the wrong kind.
func TypeMismatch(what, expected, actual string) *DeckError {
	return Newf(CodeTypeMismatch, "%s must evaluate to %s, got %s", what, expected, actual).
		WithDetail("expected", expected).
		WithDetail("actual", actual)
}

// --- Argv Spec Errors ---

// ArgSpecMissingOpt creates an error for an extended item without opt.
func ArgSpecMissingOpt(index int) *DeckError {
	return Newf(CodeArgSpecMissingOpt, "argv item %d: extended option requires opt", index).
		WithDetail("index", index)
}

// ArgSpecInvalid creates an error for a malformed argv item.
func ArgSpecInvalid(index int, reason string) *DeckError {
	return Newf(CodeArgSpecInvalid, "argv item %d: %s", index, reason).
		WithDetail("index", index).
		WithDetail("reason", reason)
}

// --- Process Errors ---

// ProcessExit creates an error for a non-zero exit code.
func ProcessExit(stepID string, code int) *DeckError {
	return Newf(CodeProcessExit, "step %s failed with exit code %d", stepID, code).
		WithDetail("step", stepID).
		WithDetail("exit_code", code)
}

// ProcessLaunch creates an error for a program that could not start.
func ProcessLaunch(program string, err error) *DeckError {
	return Wrapf(CodeProcessLaunch, err, "starting %s", program).
		WithDetail("program", program)
}

// ProcessTimeout creates an error for an invocation killed on timeout.
func ProcessTimeout(program string, timeoutMS int) *DeckError {
	return Newf(CodeProcessTimeout, "%s timed out after %dms", program, timeoutMS).
		WithDetail("program", program).
		WithDetail("timeout_ms", timeoutMS)
}

// ProcessCancelled creates an error for a stopped run.
func ProcessCancelled(err error) *DeckError {
	return Wrap(CodeProcessCancelled, "action was stopped", err)
}

// --- IO Errors ---

// IOFileNotFound creates an error for missing file.
func IOFileNotFound(path string) *DeckError {
	return Newf(CodeIOFileNotFound, "file not found: %s", path).
		WithDetail("path", path)
}

// IOPermissionDenied creates an error for permission issues.
func IOPermissionDenied(path string, err error) *DeckError {
	return Wrap(CodeIOPermission, "permission denied", err).
		WithDetail("path", path)
}

// IOReadError creates an error for read failures.
func IOReadError(path string, err error) *DeckError {
	return Wrap(CodeIOReadError, "failed to read file", err).
		WithDetail("path", path)
}

// IOWriteError creates an error for write failures.
func IOWriteError(path string, err error) *DeckError {
	return Wrap(CodeIOWriteError, "failed to write file", err).
		WithDetail("path", path)
}

// --- Form Errors ---

// FormInvalid joins per-field problems into one validation error.
func FormInvalid(problems []string) *DeckError {
	return New(CodeFormInvalid, strings.Join(problems, "; ")).
		WithDetail("problems", problems)
}

// --- Scheduler Errors ---

// UnknownAction creates an error for an action id not in the document.
func UnknownAction(id string) *DeckError {
	return Newf(CodeSchedUnknownAction, "unknown action: %s", id).
		WithDetail("action", id)
}

// AlreadyRunning creates an error for a second trigger of a running action.
func AlreadyRunning(id string) *DeckError {
	return Newf(CodeSchedAlreadyRunning, "action %s is already running", id).
		WithDetail("action", id)
}

// --- Preset Errors ---

// PresetNotFound creates an error for a missing named preset.
func PresetNotFound(actionID, name string) *DeckError {
	return Newf(CodePresetNotFound, "preset %q not found for action %s", name, actionID).
		WithDetail("action", actionID).
		WithDetail("preset", name)
}

// PresetInvalid creates an error for a rejected preset name.
func PresetInvalid(name, reason string) *DeckError {
	return Newf(CodePresetInvalid, "invalid preset name %q: %s", name, reason).
		WithDetail("preset", name)
}

// HasCode checks if an error is a DeckError with the given code.
// It handles wrapped errors by unwrapping to find a DeckError.
func HasCode(err error, code string) bool {
	var derr *DeckError
	if errors.As(err, &derr) {
		return derr.Code == code
	}
	return false
}

// Code returns the error code if err is a DeckError, empty string otherwise.
// It handles wrapped errors by unwrapping to find a DeckError.
func Code(err error) string {
	var derr *DeckError
	if errors.As(err, &derr) {
		return derr.Code
	}
	return ""
}

// Class returns the code prefix ("CONFIG", "EXPR", "PROC", ...).
func Class(err error) string {
	code := Code(err)
	if i := strings.IndexByte(code, '_'); i > 0 {
		return code[:i]
	}
	return code
}

// IsRecoverable reports whether err is a step-level failure that
// continue_on_error may absorb: process and IO errors only.
func IsRecoverable(err error) bool {
	switch Class(err) {
	case "PROC", "IO":
		return true
	}
	return false
}

// TypeName maps an error to the class name shown in the `error` scope of
// on_error steps.
func TypeName(err error) string {
	switch Class(err) {
	case "CONFIG":
		return "ConfigError"
	case "EXPR":
		return "ExpressionError"
	case "TYPE":
		return "TypeMismatchError"
	case "ARGSPEC":
		return "ArgSpecError"
	case "PROC":
		return "ProcessError"
	case "IO":
		return "IOError"
	}
	return "Error"
}
