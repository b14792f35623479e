package execution

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	runtimeerrors "github.com/tyemirov/taskscript/internal/errors"
	"github.com/tyemirov/taskscript/internal/syntax"
	"github.com/tyemirov/taskscript/internal/values"
)

const (
	gatekeeperSkipMessageConstant = "gatekeeper skipped task"
	scopePrefixConstant           = "task"
	returnPrefixConstant          = "return"
	argumentCountTemplateConstant = "%s expects %d..%s arguments, got %d"
	unboundedArityConstant        = "n"
)

func (evaluator *Evaluator) evaluateReference(executionContext context.Context, reference *syntax.Reference, frame Frame) (values.Value, error) {
	component, task, resolveError := evaluator.resolveReference(reference, frame)
	if resolveError != nil {
		return nil, resolveError
	}

	arguments := make([]values.Value, 0, len(reference.Inputs))
	for _, input := range reference.Inputs {
		argument, evaluationError := evaluator.Evaluate(executionContext, input, frame)
		if evaluationError != nil {
			return nil, evaluationError
		}
		arguments = append(arguments, argument)
	}

	minimum, maximum := task.Arity()
	if len(arguments) < minimum || (maximum >= 0 && len(arguments) > maximum) {
		renderedMaximum := unboundedArityConstant
		if maximum >= 0 {
			renderedMaximum = fmt.Sprint(maximum)
		}
		return nil, evaluator.operationFailure(runtimeerrors.OperationReference, reference, runtimeerrors.ErrArgumentsCountMismatch, fmt.Sprintf(argumentCountTemplateConstant, reference.PathString(), minimum, renderedMaximum, len(arguments)))
	}
	return evaluator.invokeTask(executionContext, component, task, reference, arguments, frame)
}

func (evaluator *Evaluator) resolveReference(reference *syntax.Reference, frame Frame) (*syntax.Component, *syntax.Task, error) {
	if len(reference.Variable) == 0 {
		return evaluator.resolvePath(reference, reference.Path, frame)
	}
	bound, found, lookupError := frame.Scope.Lookup(reference.Variable)
	if lookupError != nil {
		return nil, nil, evaluator.storeFailure(reference, lookupError)
	}
	if !found {
		return nil, nil, evaluator.failure(reference, runtimeerrors.ErrVariableNotFound, reference.Variable)
	}
	taskReference, isTaskReference := bound.(values.TaskRef)
	if !isTaskReference {
		return nil, nil, evaluator.failure(reference, runtimeerrors.ErrValueExtractionFailed, fmt.Sprintf("$%s holds %s, not a task reference", reference.Variable, values.RefOf(bound)))
	}
	return evaluator.resolvePath(reference, []string{taskReference.Component, taskReference.Task}, frame)
}

// resolvePath resolves "task", "component:task" and "self:task" relative to the frame owner.
func (evaluator *Evaluator) resolvePath(element syntax.Element, path []string, frame Frame) (*syntax.Component, *syntax.Task, error) {
	var componentName, taskName string
	switch len(path) {
	case 1:
		componentName, taskName = syntax.SelfComponentConstant, path[0]
	case 2:
		componentName, taskName = path[0], path[1]
	default:
		return nil, nil, evaluator.operationFailure(runtimeerrors.OperationReference, element, runtimeerrors.ErrInvalidReference, fmt.Sprintf("%v", path))
	}

	component := frame.Owner
	if componentName != syntax.SelfComponentConstant && (component == nil || component.Name != componentName) {
		component = nil
		for _, candidate := range frame.Components {
			if candidate.Name == componentName {
				component = candidate
				break
			}
		}
	}
	if component == nil {
		return nil, nil, evaluator.operationFailure(runtimeerrors.OperationReference, element, runtimeerrors.ErrNotFoundComponent, componentName)
	}
	task, found := component.Task(taskName)
	if !found {
		return nil, nil, evaluator.operationFailure(runtimeerrors.OperationReference, element, runtimeerrors.ErrTaskNotFound, component.Name+":"+taskName)
	}
	return component, task, nil
}

func (evaluator *Evaluator) evaluateClosure(closure *syntax.Closure, frame Frame) (values.Value, error) {
	component, task, resolveError := evaluator.resolvePath(closure, closure.Path, frame)
	if resolveError != nil {
		return nil, resolveError
	}
	return values.TaskRef{Component: component.Name, Task: task.Name}, nil
}

// invokeTask runs task inside an isolated scope. Gatekeepers see the bound
// parameters; a false gatekeeper skips the body and yields Empty.
func (evaluator *Evaluator) invokeTask(executionContext context.Context, component *syntax.Component, task *syntax.Task, caller syntax.Element, arguments []values.Value, frame Frame) (result values.Value, invocationError error) {
	var site syntax.Element = task
	if caller != nil {
		site = caller
	}
	taskLogger := evaluator.logger.With(zap.String(componentFieldConstant, component.Name), zap.String(taskFieldConstant, task.Name))

	scopeIdentifier := evaluator.nextIdentifier(scopePrefixConstant, task)
	if storeError := frame.Scope.Open(scopeIdentifier); storeError != nil {
		return nil, evaluator.storeFailure(site, storeError)
	}
	defer func() {
		if closeError := frame.Scope.Close(); closeError != nil && invocationError == nil {
			result, invocationError = nil, evaluator.storeFailure(site, closeError)
		}
	}()
	if storeError := frame.Scope.Enter(scopeIdentifier); storeError != nil {
		return nil, evaluator.storeFailure(site, storeError)
	}
	defer func() {
		if leaveError := frame.Scope.Leave(); leaveError != nil && invocationError == nil {
			result, invocationError = nil, evaluator.storeFailure(site, leaveError)
		}
	}()
	if storeError := frame.Scope.SetCwd(evaluator.componentDirectory(component)); storeError != nil {
		return nil, evaluator.storeFailure(site, storeError)
	}
	if bindError := evaluator.bindParameters(site, task, arguments, frame); bindError != nil {
		return nil, bindError
	}

	taskFrame := frame
	taskFrame.Owner = component
	taskFrame.Arguments = arguments
	taskFrame.Previous = values.Empty{}

	proceed, gatekeeperError := evaluator.admit(executionContext, component, task, arguments, taskFrame)
	if gatekeeperError != nil {
		return nil, gatekeeperError
	}
	if !proceed {
		taskLogger.Info(gatekeeperSkipMessageConstant)
		return values.Empty{}, nil
	}

	returnIdentifier := evaluator.nextIdentifier(returnPrefixConstant, task)
	if storeError := frame.Scope.OpenReturnContext(returnIdentifier); storeError != nil {
		return nil, evaluator.storeFailure(site, storeError)
	}
	defer func() {
		if closeError := frame.Scope.CloseReturnContext(); closeError != nil && invocationError == nil {
			result, invocationError = nil, evaluator.storeFailure(site, closeError)
		}
	}()

	taskLogger.Debug(taskStartedMessageConstant)
	bodyValue := values.Value(values.Empty{})
	if task.Body != nil {
		evaluated, evaluationError := evaluator.Evaluate(executionContext, task.Body, taskFrame)
		if evaluationError != nil {
			return nil, evaluationError
		}
		bodyValue = evaluated
	}
	returned, found, storeError := frame.Scope.WithdrawReturnValue(returnIdentifier)
	if storeError != nil {
		return nil, evaluator.storeFailure(site, storeError)
	}
	if found {
		bodyValue = returned
	}
	taskLogger.Debug(taskFinishedMessageConstant, zap.String("result", values.Render(bodyValue)))
	return bodyValue, nil
}

// bindParameters inserts positional arguments; omitted optional parameters bind
// Empty and a trailing repeated parameter collects the remainder into a Vec.
func (evaluator *Evaluator) bindParameters(site syntax.Element, task *syntax.Task, arguments []values.Value, frame Frame) error {
	for index, parameter := range task.Parameters {
		var bound values.Value = values.Empty{}
		switch {
		case parameter.Type.Kind == values.RefRepeated && index == len(task.Parameters)-1:
			collected := values.Vec{}
			if index < len(arguments) {
				collected = append(collected, arguments[index:]...)
			}
			bound = collected
		case index < len(arguments):
			bound = arguments[index]
		}
		if storeError := frame.Scope.Insert(parameter.Name, bound); storeError != nil {
			return evaluator.storeFailure(site, storeError)
		}
	}
	return nil
}

// admit evaluates the applicable gatekeepers in order and reports whether the task may run.
func (evaluator *Evaluator) admit(executionContext context.Context, component *syntax.Component, task *syntax.Task, arguments []values.Value, frame Frame) (bool, error) {
	for _, gatekeeper := range task.Gatekeepers {
		applies, matchError := evaluator.gatekeeperApplies(executionContext, gatekeeper, component, task, arguments, frame)
		if matchError != nil {
			return false, matchError
		}
		if !applies {
			continue
		}
		verdict, evaluationError := evaluator.Evaluate(executionContext, gatekeeper, frame)
		if evaluationError != nil {
			return false, evaluationError
		}
		allowed, isBool := values.AsBool(verdict)
		if !isBool {
			return false, evaluator.operationFailure(runtimeerrors.OperationGatekeeper, gatekeeper, runtimeerrors.ErrValueExtractionFailed, fmt.Sprintf("gatekeeper produced %s, expected bool", values.RefOf(verdict)))
		}
		if !allowed {
			return false, nil
		}
	}
	return true, nil
}

func (evaluator *Evaluator) gatekeeperApplies(executionContext context.Context, gatekeeper *syntax.Gatekeeper, component *syntax.Component, task *syntax.Task, arguments []values.Value, frame Frame) (bool, error) {
	if len(gatekeeper.Targets) == 0 {
		return true, nil
	}
	for _, target := range gatekeeper.Targets {
		targetComponent, targetTask, resolveError := evaluator.resolvePath(target, target.Path, frame)
		if resolveError != nil {
			return false, resolveError
		}
		if targetComponent != component || targetTask != task {
			continue
		}
		if len(target.Inputs) == 0 {
			return true, nil
		}
		matches, compareError := evaluator.inputsMatch(executionContext, target.Inputs, arguments, frame)
		if compareError != nil {
			return false, compareError
		}
		if matches {
			return true, nil
		}
	}
	return false, nil
}

func (evaluator *Evaluator) inputsMatch(executionContext context.Context, inputs []syntax.Element, arguments []values.Value, frame Frame) (bool, error) {
	if len(inputs) != len(arguments) {
		return false, nil
	}
	for index, input := range inputs {
		expected, evaluationError := evaluator.Evaluate(executionContext, input, frame)
		if evaluationError != nil {
			return false, evaluationError
		}
		if !values.Equal(expected, arguments[index]) {
			return false, nil
		}
	}
	return true, nil
}
