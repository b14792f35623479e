// Package errors defines the single error taxonomy shared by the linker, the scope
// store and the evaluator.
package errors

import (
	stdErrors "errors"
	"fmt"
)

// Operation identifies the logical operation producing a contextual error.
type Operation string

const (
	// OperationLink denotes the verification/linking pass.
	OperationLink Operation = "link"
	// OperationStore denotes scope store requests.
	OperationStore Operation = "store"
	// OperationReference denotes task reference resolution and invocation.
	OperationReference Operation = "reference"
	// OperationGatekeeper denotes gatekeeper evaluation.
	OperationGatekeeper Operation = "gatekeeper"
	// OperationCommand denotes spawned shell commands.
	OperationCommand Operation = "command"
	// OperationFunction denotes built-in function calls.
	OperationFunction Operation = "function"
	// OperationEvaluate denotes generic element evaluation.
	OperationEvaluate Operation = "evaluate"
	// OperationInvocation denotes the top-level component/task invocation surface.
	OperationInvocation Operation = "invocation"
	// OperationLoad denotes syntax tree document and manifest loading.
	OperationLoad Operation = "load"
)

// Sentinel describes a stable error code.
type Sentinel string

// Error returns the sentinel code string.
func (sentinel Sentinel) Error() string {
	return string(sentinel)
}

// Code exposes the sentinel code string.
func (sentinel Sentinel) Code() string {
	return string(sentinel)
}

// OperationError annotates an error with the operation and the source location producing it.
type OperationError struct {
	operation Operation
	subject   string
	err       error
	message   string
}

// Error implements the error interface.
func (operationError OperationError) Error() string {
	if len(operationError.message) > 0 {
		if len(operationError.subject) == 0 {
			return fmt.Sprintf("%s: %s", operationError.operation, operationError.message)
		}
		return fmt.Sprintf("%s[%s]: %s", operationError.operation, operationError.subject, operationError.message)
	}
	if len(operationError.subject) == 0 {
		return fmt.Sprintf("%s: %v", operationError.operation, operationError.err)
	}
	return fmt.Sprintf("%s[%s]: %v", operationError.operation, operationError.subject, operationError.err)
}

// Unwrap exposes the underlying error chain.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the originating operation identifier.
func (operationError OperationError) Operation() Operation {
	return operationError.operation
}

// Subject returns the source location or name related to the error.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code surfaces the sentinel code of the wrapped error when present.
func (operationError OperationError) Code() string {
	if coder, found := findSentinel(operationError.err); found {
		return coder.Code()
	}
	return ""
}

// Message exposes the formatted message when provided via WrapMessage.
func (operationError OperationError) Message() string {
	return operationError.message
}

// Wrap constructs an OperationError combining the provided metadata with the base sentinel.
func Wrap(operation Operation, subject string, sentinel Sentinel, detail error) error {
	if len(sentinel) == 0 {
		return OperationError{operation: operation, subject: subject, err: detail}
	}
	baseError := error(sentinel)
	if detail != nil {
		baseError = fmt.Errorf("%w: %w", sentinel, detail)
	}
	return OperationError{operation: operation, subject: subject, err: baseError}
}

// WrapMessage constructs an OperationError combining the provided metadata with a formatted message.
func WrapMessage(operation Operation, subject string, sentinel Sentinel, message string) error {
	if len(message) == 0 {
		return Wrap(operation, subject, sentinel, nil)
	}
	return OperationError{operation: operation, subject: subject, err: fmt.Errorf("%w: %s", sentinel, message), message: message}
}

// HasOperation reports whether err already carries operation metadata.
func HasOperation(err error) bool {
	var operationError OperationError
	return stdErrors.As(err, &operationError)
}

// IsInternal reports whether err signals an engine invariant break rather than a script mistake.
func IsInternal(err error) bool {
	sentinel, found := findSentinel(err)
	if !found {
		return false
	}
	_, internal := internalSentinels[sentinel]
	return internal
}

func findSentinel(err error) (Sentinel, bool) {
	if err == nil {
		return "", false
	}
	var sentinel Sentinel
	if stdErrors.As(err, &sentinel) {
		return sentinel, true
	}
	return "", false
}

// Runtime failures caused by the script being executed.
var (
	// ErrNotFoundComponent indicates a reference named a component that does not exist.
	ErrNotFoundComponent Sentinel = "component_not_found"
	// ErrTaskNotFound indicates a reference named a task missing from its component.
	ErrTaskNotFound Sentinel = "task_not_found"
	// ErrInvalidReference indicates a reference path with an unsupported shape.
	ErrInvalidReference Sentinel = "invalid_reference"
	// ErrArgumentsCountMismatch indicates a call supplied the wrong number of arguments.
	ErrArgumentsCountMismatch Sentinel = "arguments_count_mismatch"
	// ErrArgumentTypeMismatch indicates a call supplied an argument of an incompatible type.
	ErrArgumentTypeMismatch Sentinel = "argument_type_mismatch"
	// ErrValueExtractionFailed indicates a value did not have the kind an element required.
	ErrValueExtractionFailed Sentinel = "value_extraction_failed"
	// ErrVariableNotFound indicates a variable was read or updated before declaration.
	ErrVariableNotFound Sentinel = "variable_not_found"
	// ErrFunctionNotFound indicates a call to an unregistered built-in function.
	ErrFunctionNotFound Sentinel = "function_not_found"
	// ErrFunctionFailed indicates a built-in function reported a failure.
	ErrFunctionFailed Sentinel = "function_failed"
	// ErrSpawnedProcessExitWithError indicates a command finished with a non-zero exit status.
	ErrSpawnedProcessExitWithError Sentinel = "spawned_process_exit_with_error"
	// ErrSpawnFailed indicates a command could not be started.
	ErrSpawnFailed Sentinel = "spawn_failed"
	// ErrIndexOutOfRange indicates an index accessor exceeded its target.
	ErrIndexOutOfRange Sentinel = "index_out_of_range"
	// ErrDivisionByZero indicates an integer division by zero.
	ErrDivisionByZero Sentinel = "division_by_zero"
	// ErrBreakOutsideLoop indicates a break statement with no enclosing loop.
	ErrBreakOutsideLoop Sentinel = "break_outside_loop"
	// ErrReturnOutsideTask indicates a return statement with no enclosing task.
	ErrReturnOutsideTask Sentinel = "return_outside_task"
	// ErrInvalidDocument indicates a malformed syntax tree document or manifest.
	ErrInvalidDocument Sentinel = "invalid_document"
	// ErrUnsupportedElement indicates an element kind that cannot be evaluated in its position.
	ErrUnsupportedElement Sentinel = "unsupported_element"
)

// Scope store protocol violations. They indicate an engine invariant break.
var (
	// ErrStoreDisconnected indicates the scope store actor is gone.
	ErrStoreDisconnected Sentinel = "store_disconnected"
	// ErrNoOpenScopes indicates a scope operation ran with no scope open.
	ErrNoOpenScopes Sentinel = "no_open_scopes"
	// ErrScopeAlreadyExist indicates a scope id was opened twice.
	ErrScopeAlreadyExist Sentinel = "scope_already_exist"
	// ErrScopeNotFound indicates an enter request for an unknown scope id.
	ErrScopeNotFound Sentinel = "scope_not_found"
	// ErrNoActiveScopes indicates a leave request with no active scope.
	ErrNoActiveScopes Sentinel = "no_active_scopes"
	// ErrLoopAlreadyExist indicates a loop id was opened twice.
	ErrLoopAlreadyExist Sentinel = "loop_already_exist"
	// ErrNoOpenLoopsToClose indicates a close_loop request with no loop open.
	ErrNoOpenLoopsToClose Sentinel = "no_open_loops_to_close"
	// ErrNoOpenLoopsToBreak indicates a break request with no loop open.
	ErrNoOpenLoopsToBreak Sentinel = "no_open_loops_to_break"
	// ErrBreakSignalAlreadyExist indicates the innermost loop was already broken.
	ErrBreakSignalAlreadyExist Sentinel = "break_signal_already_exist"
	// ErrReturnContextAlreadyExist indicates a return context id was opened twice.
	ErrReturnContextAlreadyExist Sentinel = "return_context_already_exist"
	// ErrNoOpenReturnContexts indicates a return-context request with none open.
	ErrNoOpenReturnContexts Sentinel = "no_open_return_contexts"
	// ErrReturnValueAlreadyExist indicates a second return value for one context.
	ErrReturnValueAlreadyExist Sentinel = "return_value_already_exist"
	// ErrParentValueAlreadyExist indicates a pipeline token already carries a parent value.
	ErrParentValueAlreadyExist Sentinel = "parent_value_already_exist"
	// ErrParentValueNotFound indicates a pipeline consumer found no parent value.
	ErrParentValueNotFound Sentinel = "parent_value_not_found"
)

var internalSentinels = map[Sentinel]struct{}{
	ErrStoreDisconnected:         {},
	ErrNoOpenScopes:              {},
	ErrScopeAlreadyExist:         {},
	ErrScopeNotFound:             {},
	ErrNoActiveScopes:            {},
	ErrLoopAlreadyExist:          {},
	ErrNoOpenLoopsToClose:        {},
	ErrNoOpenLoopsToBreak:        {},
	ErrBreakSignalAlreadyExist:   {},
	ErrReturnContextAlreadyExist: {},
	ErrNoOpenReturnContexts:      {},
	ErrReturnValueAlreadyExist:   {},
	ErrParentValueAlreadyExist:   {},
	ErrParentValueNotFound:       {},
}
