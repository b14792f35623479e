package execution

import (
	"context"
	"fmt"

	runtimeerrors "github.com/tyemirov/taskscript/internal/errors"
	"github.com/tyemirov/taskscript/internal/syntax"
	"github.com/tyemirov/taskscript/internal/values"
)

const (
	loopPrefixConstant      = "loop"
	loopScopePrefixConstant = "loop-scope"
)

// iterationSource yields the next loop item; ok is false once exhausted.
type iterationSource func(executionContext context.Context, frame Frame) (item values.Value, ok bool, err error)

// runLoop drives one loop: a child signal for the body, a registered loop id, a
// nested scope holding the loop variable, and stop checks before every iteration.
func (evaluator *Evaluator) runLoop(executionContext context.Context, element syntax.Element, variable string, next iterationSource, body *syntax.Block, frame Frame) (result values.Value, loopError error) {
	bodySignal := frame.Signal.Child()
	defer bodySignal.Cancel()

	loopIdentifier := evaluator.nextIdentifier(loopPrefixConstant, element)
	if storeError := frame.Scope.OpenLoop(loopIdentifier); storeError != nil {
		return nil, evaluator.storeFailure(element, storeError)
	}
	defer func() {
		if closeError := frame.Scope.CloseLoop(); closeError != nil && loopError == nil {
			result, loopError = nil, evaluator.storeFailure(element, closeError)
		}
	}()

	scopeIdentifier := evaluator.nextIdentifier(loopScopePrefixConstant, element)
	if storeError := frame.Scope.OpenNested(scopeIdentifier); storeError != nil {
		return nil, evaluator.storeFailure(element, storeError)
	}
	defer func() {
		if closeError := frame.Scope.Close(); closeError != nil && loopError == nil {
			result, loopError = nil, evaluator.storeFailure(element, closeError)
		}
	}()
	if storeError := frame.Scope.Enter(scopeIdentifier); storeError != nil {
		return nil, evaluator.storeFailure(element, storeError)
	}
	defer func() {
		if leaveError := frame.Scope.Leave(); leaveError != nil && loopError == nil {
			result, loopError = nil, evaluator.storeFailure(element, leaveError)
		}
	}()

	bodyFrame := frame
	bodyFrame.Signal = bodySignal
	var last values.Value = values.Empty{}
	for {
		if bodySignal.IsCancelled() {
			return last, nil
		}
		stopped, storeError := frame.Scope.IsLoopStopped()
		if storeError != nil {
			return nil, evaluator.storeFailure(element, storeError)
		}
		if stopped {
			return last, nil
		}
		item, ok, sourceError := next(executionContext, bodyFrame)
		if sourceError != nil {
			return nil, sourceError
		}
		if !ok {
			return last, nil
		}
		if len(variable) > 0 {
			if insertError := frame.Scope.Insert(variable, item); insertError != nil {
				return nil, evaluator.storeFailure(element, insertError)
			}
		}
		bodyFrame.Previous = last
		value, bodyError := evaluator.Evaluate(executionContext, body, bodyFrame)
		if bodyError != nil {
			return nil, bodyError
		}
		last = value
	}
}

func (evaluator *Evaluator) evaluateEach(executionContext context.Context, each *syntax.Each, frame Frame) (values.Value, error) {
	source, evaluationError := evaluator.Evaluate(executionContext, each.Source, frame)
	if evaluationError != nil {
		return nil, evaluationError
	}
	var next iterationSource
	switch typed := source.(type) {
	case values.Vec:
		next = sliceSource(typed)
	case values.Range:
		next = rangeSource(typed)
	case values.Empty:
		next = sliceSource(nil)
	default:
		return nil, evaluator.failure(each, runtimeerrors.ErrValueExtractionFailed, fmt.Sprintf("each expects vec, got %s", values.RefOf(source)))
	}
	return evaluator.runLoop(executionContext, each, each.Variable, next, each.Body, frame)
}

func (evaluator *Evaluator) evaluateFor(executionContext context.Context, forElement *syntax.For, frame Frame) (values.Value, error) {
	source, evaluationError := evaluator.Evaluate(executionContext, forElement.Source, frame)
	if evaluationError != nil {
		return nil, evaluationError
	}
	var bounds values.Range
	switch typed := source.(type) {
	case values.Range:
		bounds = typed
	case values.Integer:
		bounds = values.Range{From: 0, To: int64(typed)}
	default:
		return nil, evaluator.failure(forElement, runtimeerrors.ErrValueExtractionFailed, fmt.Sprintf("for expects range, got %s", values.RefOf(source)))
	}
	return evaluator.runLoop(executionContext, forElement, forElement.Variable, rangeSource(bounds), forElement.Body, frame)
}

func (evaluator *Evaluator) evaluateLoop(executionContext context.Context, loop *syntax.Loop, frame Frame) (values.Value, error) {
	unbounded := func(context.Context, Frame) (values.Value, bool, error) {
		return values.Empty{}, true, nil
	}
	return evaluator.runLoop(executionContext, loop, "", unbounded, loop.Body, frame)
}

func (evaluator *Evaluator) evaluateWhile(executionContext context.Context, while *syntax.While, frame Frame) (values.Value, error) {
	condition := func(conditionContext context.Context, conditionFrame Frame) (values.Value, bool, error) {
		holds, conditionError := evaluator.evaluateCondition(conditionContext, while.Condition, conditionFrame)
		if conditionError != nil {
			return nil, false, conditionError
		}
		return values.Empty{}, holds, nil
	}
	return evaluator.runLoop(executionContext, while, "", condition, while.Body, frame)
}

func (evaluator *Evaluator) evaluateFirst(executionContext context.Context, first *syntax.First, frame Frame) (values.Value, error) {
	for _, alternative := range first.Alternatives {
		value, evaluationError := evaluator.Evaluate(executionContext, alternative, frame)
		if evaluationError != nil {
			return nil, evaluationError
		}
		if !values.IsEmpty(value) {
			return value, nil
		}
	}
	return values.Empty{}, nil
}

func (evaluator *Evaluator) evaluateOptional(executionContext context.Context, optional *syntax.Optional, frame Frame) (values.Value, error) {
	holds, conditionError := evaluator.evaluateCondition(executionContext, optional.Condition, frame)
	if conditionError != nil {
		return nil, conditionError
	}
	if !holds {
		return values.Empty{}, nil
	}
	return evaluator.Evaluate(executionContext, optional.Action, frame)
}

func (evaluator *Evaluator) evaluateIf(executionContext context.Context, ifElement *syntax.If, frame Frame) (values.Value, error) {
	for _, branch := range ifElement.Branches {
		holds, conditionError := evaluator.evaluateCondition(executionContext, branch.Condition, frame)
		if conditionError != nil {
			return nil, conditionError
		}
		if holds {
			return evaluator.evaluateBranchBody(executionContext, branch.Body, frame)
		}
	}
	return evaluator.evaluateBranchBody(executionContext, ifElement.Else, frame)
}

func (evaluator *Evaluator) evaluateBranchBody(executionContext context.Context, body *syntax.Block, frame Frame) (values.Value, error) {
	if body == nil {
		return values.Empty{}, nil
	}
	return evaluator.Evaluate(executionContext, body, frame)
}

// evaluateBreaker marks the innermost loop broken and raises its body signal.
func (evaluator *Evaluator) evaluateBreaker(breakerElement *syntax.Breaker, frame Frame) (values.Value, error) {
	if storeError := frame.Scope.SetBreak(); storeError != nil {
		return nil, evaluator.storeFailure(breakerElement, storeError)
	}
	frame.Signal.Cancel()
	return values.Empty{}, nil
}

func (evaluator *Evaluator) evaluateReturn(executionContext context.Context, returnElement *syntax.Return, frame Frame) (values.Value, error) {
	var value values.Value = values.Empty{}
	if returnElement.Value != nil {
		evaluated, evaluationError := evaluator.Evaluate(executionContext, returnElement.Value, frame)
		if evaluationError != nil {
			return nil, evaluationError
		}
		value = evaluated
	}
	if storeError := frame.Scope.SetReturnValue(value); storeError != nil {
		return nil, evaluator.storeFailure(returnElement, storeError)
	}
	return value, nil
}

func (evaluator *Evaluator) evaluateCondition(executionContext context.Context, condition syntax.Element, frame Frame) (bool, error) {
	value, evaluationError := evaluator.Evaluate(executionContext, condition, frame)
	if evaluationError != nil {
		return false, evaluationError
	}
	holds, isBool := values.AsBool(value)
	if !isBool {
		return false, evaluator.failure(condition, runtimeerrors.ErrValueExtractionFailed, fmt.Sprintf("condition produced %s, expected bool", values.RefOf(value)))
	}
	return holds, nil
}

func sliceSource(items values.Vec) iterationSource {
	position := 0
	return func(context.Context, Frame) (values.Value, bool, error) {
		if position >= len(items) {
			return nil, false, nil
		}
		item := items[position]
		position++
		return item, true, nil
	}
}

// rangeSource walks a half-open range; From > To counts down.
func rangeSource(bounds values.Range) iterationSource {
	current := bounds.From
	step := int64(1)
	if bounds.From > bounds.To {
		step = -1
	}
	return func(context.Context, Frame) (values.Value, bool, error) {
		if current == bounds.To {
			return nil, false, nil
		}
		item := values.Integer(current)
		current += step
		return item, true, nil
	}
}
