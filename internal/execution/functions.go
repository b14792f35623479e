package execution

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	runtimeerrors "github.com/tyemirov/taskscript/internal/errors"
	"github.com/tyemirov/taskscript/internal/store"
	"github.com/tyemirov/taskscript/internal/syntax"
	"github.com/tyemirov/taskscript/internal/values"
)

// Built-in function names.
const (
	FunctionPrintConstant    = "print"
	FunctionLengthConstant   = "len"
	FunctionToStringConstant = "to_string"
	FunctionIsEmptyConstant  = "is_empty"
	FunctionEnvConstant      = "env"
	FunctionJoinConstant     = "join"
	FunctionSplitConstant    = "split"
	FunctionContainsConstant = "contains"
	FunctionIsErrorConstant  = "is_error"

	printSeparatorConstant              = " "
	lineTerminatorConstant              = "\n"
	argumentsExpectedTemplateConstant   = "%s expects %s"
	unsupportedArgumentTemplateConstant = "%s does not accept %s"
)

// Call carries the evaluated inputs of a built-in invocation.
type Call struct {
	Name             string
	Arguments        []values.Value
	Previous         values.Value
	WorkingDirectory string
	Output           io.Writer
}

// Builtin implements one built-in function.
type Builtin func(call Call) (values.Value, error)

// Registry maps built-in names to implementations.
type Registry struct {
	functions map[string]Builtin
}

// NewRegistry returns a registry holding the default built-ins.
func NewRegistry() *Registry {
	registry := &Registry{functions: make(map[string]Builtin)}
	registry.Register(FunctionPrintConstant, printBuiltin)
	registry.Register(FunctionLengthConstant, lengthBuiltin)
	registry.Register(FunctionToStringConstant, toStringBuiltin)
	registry.Register(FunctionIsEmptyConstant, isEmptyBuiltin)
	registry.Register(FunctionEnvConstant, envBuiltin)
	registry.Register(FunctionJoinConstant, joinBuiltin)
	registry.Register(FunctionSplitConstant, splitBuiltin)
	registry.Register(FunctionContainsConstant, containsBuiltin)
	registry.Register(FunctionIsErrorConstant, isErrorBuiltin)
	return registry
}

// Register adds or replaces a built-in.
func (registry *Registry) Register(name string, implementation Builtin) {
	registry.functions[name] = implementation
}

// Has reports whether name is a registered built-in.
func (registry *Registry) Has(name string) bool {
	_, found := registry.functions[name]
	return found
}

// Lookup returns the implementation registered under name.
func (registry *Registry) Lookup(name string) (Builtin, bool) {
	implementation, found := registry.functions[name]
	return implementation, found
}

// Names lists the registered built-ins in lexical order.
func (registry *Registry) Names() []string {
	names := make([]string, 0, len(registry.functions))
	for name := range registry.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// evaluateFunction calls a built-in. Inside a method chain the parent value is
// withdrawn and passed as the implicit first argument.
func (evaluator *Evaluator) evaluateFunction(executionContext context.Context, function *syntax.Function, frame Frame, parentToken store.PipelineToken) (values.Value, error) {
	implementation, found := evaluator.functions.Lookup(function.Name)
	if !found {
		return nil, evaluator.failure(function, runtimeerrors.ErrFunctionNotFound, function.Name)
	}

	arguments := make([]values.Value, 0, len(function.Arguments)+1)
	if parentToken != 0 {
		parent, withdrawError := frame.Scope.WithdrawParentValue(parentToken)
		if withdrawError != nil {
			return nil, evaluator.storeFailure(function, withdrawError)
		}
		arguments = append(arguments, parent)
	}
	for _, argument := range function.Arguments {
		value, evaluationError := evaluator.Evaluate(executionContext, argument, frame)
		if evaluationError != nil {
			return nil, evaluationError
		}
		arguments = append(arguments, value)
	}

	workingDirectory, cwdError := evaluator.lookupCwd(function, frame)
	if cwdError != nil {
		return nil, cwdError
	}
	result, callError := implementation(Call{
		Name:             function.Name,
		Arguments:        arguments,
		Previous:         frame.Previous,
		WorkingDirectory: workingDirectory,
		Output:           evaluator.output,
	})
	if callError != nil {
		return nil, runtimeerrors.Wrap(runtimeerrors.OperationFunction, evaluator.locate(function), runtimeerrors.ErrFunctionFailed, callError)
	}
	if result == nil {
		return values.Empty{}, nil
	}
	return result, nil
}

// printBuiltin writes its arguments separated by spaces, or the previous value when called bare.
func printBuiltin(call Call) (values.Value, error) {
	rendered := make([]string, 0, len(call.Arguments))
	for _, argument := range call.Arguments {
		rendered = append(rendered, values.Render(argument))
	}
	if len(call.Arguments) == 0 {
		rendered = append(rendered, values.Render(call.Previous))
	}
	if _, writeError := io.WriteString(call.Output, strings.Join(rendered, printSeparatorConstant)+lineTerminatorConstant); writeError != nil {
		return nil, writeError
	}
	return values.Empty{}, nil
}

func lengthBuiltin(call Call) (values.Value, error) {
	subject, subjectError := singleArgument(call)
	if subjectError != nil {
		return nil, subjectError
	}
	switch typed := subject.(type) {
	case values.Vec:
		return values.Integer(len(typed)), nil
	case values.String, values.Path:
		return values.Integer(len([]rune(values.Render(typed)))), nil
	case values.Range:
		length := typed.To - typed.From
		if length < 0 {
			length = -length
		}
		return values.Integer(length), nil
	case values.Empty:
		return values.Integer(0), nil
	default:
		return nil, fmt.Errorf(unsupportedArgumentTemplateConstant, call.Name, values.RefOf(subject))
	}
}

func toStringBuiltin(call Call) (values.Value, error) {
	subject, subjectError := singleArgument(call)
	if subjectError != nil {
		return nil, subjectError
	}
	return values.String(values.Render(subject)), nil
}

func isEmptyBuiltin(call Call) (values.Value, error) {
	subject, subjectError := singleArgument(call)
	if subjectError != nil {
		return nil, subjectError
	}
	switch typed := subject.(type) {
	case values.Vec:
		return values.Bool(len(typed) == 0), nil
	case values.String:
		return values.Bool(len(typed) == 0), nil
	case values.Path:
		return values.Bool(len(typed) == 0), nil
	default:
		return values.Bool(values.IsEmpty(subject)), nil
	}
}

// envBuiltin reads a process environment variable; unset variables yield Empty.
func envBuiltin(call Call) (values.Value, error) {
	subject, subjectError := singleArgument(call)
	if subjectError != nil {
		return nil, subjectError
	}
	name, isText := values.AsText(subject)
	if !isText {
		return nil, fmt.Errorf(unsupportedArgumentTemplateConstant, call.Name, values.RefOf(subject))
	}
	value, found := os.LookupEnv(name)
	if !found {
		return values.Empty{}, nil
	}
	return values.String(value), nil
}

func joinBuiltin(call Call) (values.Value, error) {
	if len(call.Arguments) != 2 {
		return nil, fmt.Errorf(argumentsExpectedTemplateConstant, call.Name, "a vector and a separator")
	}
	items, isVector := call.Arguments[0].(values.Vec)
	separator, isText := values.AsText(call.Arguments[1])
	if !isVector || !isText {
		return nil, fmt.Errorf(argumentsExpectedTemplateConstant, call.Name, "a vector and a separator")
	}
	rendered := make([]string, 0, len(items))
	for _, item := range items {
		rendered = append(rendered, values.Render(item))
	}
	return values.String(strings.Join(rendered, separator)), nil
}

func splitBuiltin(call Call) (values.Value, error) {
	if len(call.Arguments) != 2 {
		return nil, fmt.Errorf(argumentsExpectedTemplateConstant, call.Name, "a string and a separator")
	}
	text, textOk := values.AsText(call.Arguments[0])
	separator, separatorOk := values.AsText(call.Arguments[1])
	if !textOk || !separatorOk {
		return nil, fmt.Errorf(argumentsExpectedTemplateConstant, call.Name, "a string and a separator")
	}
	parts := strings.Split(text, separator)
	result := make(values.Vec, 0, len(parts))
	for _, part := range parts {
		result = append(result, values.String(part))
	}
	return result, nil
}

func containsBuiltin(call Call) (values.Value, error) {
	if len(call.Arguments) != 2 {
		return nil, fmt.Errorf(argumentsExpectedTemplateConstant, call.Name, "a container and a candidate")
	}
	switch container := call.Arguments[0].(type) {
	case values.Vec:
		for _, item := range container {
			if values.Equal(item, call.Arguments[1]) {
				return values.Bool(true), nil
			}
		}
		return values.Bool(false), nil
	case values.String, values.Path:
		return values.Bool(strings.Contains(values.Render(container), values.Render(call.Arguments[1]))), nil
	default:
		return nil, fmt.Errorf(unsupportedArgumentTemplateConstant, call.Name, values.RefOf(container))
	}
}

func isErrorBuiltin(call Call) (values.Value, error) {
	subject, subjectError := singleArgument(call)
	if subjectError != nil {
		return nil, subjectError
	}
	_, isError := subject.(values.Error)
	return values.Bool(isError), nil
}

// singleArgument returns the only argument, falling back to the previous value.
func singleArgument(call Call) (values.Value, error) {
	switch len(call.Arguments) {
	case 0:
		if call.Previous == nil {
			return values.Empty{}, nil
		}
		return call.Previous, nil
	case 1:
		return call.Arguments[0], nil
	default:
		return nil, fmt.Errorf(argumentsExpectedTemplateConstant, call.Name, "one argument")
	}
}
