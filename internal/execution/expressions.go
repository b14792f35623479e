package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"

	runtimeerrors "github.com/tyemirov/taskscript/internal/errors"
	"github.com/tyemirov/taskscript/internal/store"
	"github.com/tyemirov/taskscript/internal/syntax"
	"github.com/tyemirov/taskscript/internal/values"
)

const (
	operatorAndConstant                 = "&&"
	operatorOrConstant                  = "||"
	operatorEqualConstant               = "=="
	operatorNotEqualConstant            = "!="
	operatorLessConstant                = "<"
	operatorGreaterConstant             = ">"
	operatorLessEqualConstant           = "<="
	operatorGreaterEqualConstant        = ">="
	operatorAddConstant                 = "+"
	operatorSubtractConstant            = "-"
	operatorMultiplyConstant            = "*"
	operatorDivideConstant              = "/"
	operatorRemainderConstant           = "%"
	operatorIncrementConstant           = "+="
	operatorDecrementConstant           = "-="
	unsupportedOperatorTemplateConstant = "unsupported operator %q for %s and %s"
)

func (evaluator *Evaluator) evaluateCombination(executionContext context.Context, combination *syntax.Combination, frame Frame) (values.Value, error) {
	left, leftError := evaluator.evaluateCondition(executionContext, combination.Left, frame)
	if leftError != nil {
		return nil, leftError
	}
	switch combination.Operator {
	case operatorAndConstant:
		if !left {
			return values.Bool(false), nil
		}
	case operatorOrConstant:
		if left {
			return values.Bool(true), nil
		}
	default:
		return nil, evaluator.failure(combination, runtimeerrors.ErrValueExtractionFailed, fmt.Sprintf("unsupported operator %q", combination.Operator))
	}
	right, rightError := evaluator.evaluateCondition(executionContext, combination.Right, frame)
	if rightError != nil {
		return nil, rightError
	}
	return values.Bool(right), nil
}

func (evaluator *Evaluator) evaluateOperands(executionContext context.Context, left syntax.Element, right syntax.Element, frame Frame) (values.Value, values.Value, error) {
	leftValue, leftError := evaluator.Evaluate(executionContext, left, frame)
	if leftError != nil {
		return nil, nil, leftError
	}
	rightValue, rightError := evaluator.Evaluate(executionContext, right, frame)
	if rightError != nil {
		return nil, nil, rightError
	}
	return leftValue, rightValue, nil
}

func (evaluator *Evaluator) evaluateComparing(executionContext context.Context, comparing *syntax.Comparing, frame Frame) (values.Value, error) {
	left, right, operandError := evaluator.evaluateOperands(executionContext, comparing.Left, comparing.Right, frame)
	if operandError != nil {
		return nil, operandError
	}
	switch comparing.Operator {
	case operatorEqualConstant:
		return values.Bool(values.Equal(left, right)), nil
	case operatorNotEqualConstant:
		return values.Bool(!values.Equal(left, right)), nil
	}

	order, comparable := compareOrdered(left, right)
	if !comparable {
		return nil, evaluator.failure(comparing, runtimeerrors.ErrValueExtractionFailed, fmt.Sprintf(unsupportedOperatorTemplateConstant, comparing.Operator, values.RefOf(left), values.RefOf(right)))
	}
	switch comparing.Operator {
	case operatorLessConstant:
		return values.Bool(order < 0), nil
	case operatorGreaterConstant:
		return values.Bool(order > 0), nil
	case operatorLessEqualConstant:
		return values.Bool(order <= 0), nil
	case operatorGreaterEqualConstant:
		return values.Bool(order >= 0), nil
	default:
		return nil, evaluator.failure(comparing, runtimeerrors.ErrValueExtractionFailed, fmt.Sprintf(unsupportedOperatorTemplateConstant, comparing.Operator, values.RefOf(left), values.RefOf(right)))
	}
}

// compareOrdered orders integers numerically and text lexicographically.
func compareOrdered(left values.Value, right values.Value) (int, bool) {
	_, leftIsInteger := left.(values.Integer)
	_, rightIsInteger := right.(values.Integer)
	if leftIsInteger || rightIsInteger {
		leftNumber, leftOk := values.AsInteger(left)
		rightNumber, rightOk := values.AsInteger(right)
		if !leftOk || !rightOk {
			return 0, false
		}
		switch {
		case leftNumber < rightNumber:
			return -1, true
		case leftNumber > rightNumber:
			return 1, true
		default:
			return 0, true
		}
	}
	leftText, leftOk := values.AsText(left)
	rightText, rightOk := values.AsText(right)
	if !leftOk || !rightOk {
		return 0, false
	}
	return strings.Compare(leftText, rightText), true
}

func (evaluator *Evaluator) evaluateCompute(executionContext context.Context, compute *syntax.Compute, frame Frame) (values.Value, error) {
	left, right, operandError := evaluator.evaluateOperands(executionContext, compute.Left, compute.Right, frame)
	if operandError != nil {
		return nil, operandError
	}
	result, computeError := applyArithmetic(compute.Operator, left, right)
	if computeError != nil {
		return nil, evaluator.arithmeticFailure(compute, computeError)
	}
	return result, nil
}

func (evaluator *Evaluator) evaluateIncrementer(executionContext context.Context, incrementer *syntax.Incrementer, frame Frame) (values.Value, error) {
	current, found, lookupError := frame.Scope.Lookup(incrementer.Variable)
	if lookupError != nil {
		return nil, evaluator.storeFailure(incrementer, lookupError)
	}
	if !found {
		return nil, evaluator.failure(incrementer, runtimeerrors.ErrVariableNotFound, incrementer.Variable)
	}
	delta, evaluationError := evaluator.Evaluate(executionContext, incrementer.Value, frame)
	if evaluationError != nil {
		return nil, evaluationError
	}

	var operator string
	switch incrementer.Operator {
	case operatorIncrementConstant:
		operator = operatorAddConstant
	case operatorDecrementConstant:
		operator = operatorSubtractConstant
	default:
		return nil, evaluator.failure(incrementer, runtimeerrors.ErrValueExtractionFailed, fmt.Sprintf("unsupported operator %q", incrementer.Operator))
	}
	updated, computeError := applyArithmetic(operator, current, delta)
	if computeError != nil {
		return nil, evaluator.arithmeticFailure(incrementer, computeError)
	}
	if updateError := frame.Scope.Update(incrementer.Variable, updated); updateError != nil {
		return nil, evaluator.variableFailure(incrementer, incrementer.Variable, updateError)
	}
	return updated, nil
}

var errDivisionByZero = errors.New("division by zero")

// applyArithmetic computes integer arithmetic; + also concatenates text and appends to vectors.
func applyArithmetic(operator string, left values.Value, right values.Value) (values.Value, error) {
	if operator == operatorAddConstant {
		switch typedLeft := left.(type) {
		case values.String:
			return values.String(string(typedLeft) + values.Render(right)), nil
		case values.Path:
			return values.Path(string(typedLeft) + values.Render(right)), nil
		case values.Vec:
			combined := append(values.Vec{}, typedLeft...)
			if typedRight, isVector := right.(values.Vec); isVector {
				return append(combined, typedRight...), nil
			}
			return append(combined, right), nil
		}
	}
	leftNumber, leftOk := values.AsInteger(left)
	rightNumber, rightOk := values.AsInteger(right)
	if !leftOk || !rightOk {
		return nil, fmt.Errorf(unsupportedOperatorTemplateConstant, operator, values.RefOf(left), values.RefOf(right))
	}
	switch operator {
	case operatorAddConstant:
		return values.Integer(leftNumber + rightNumber), nil
	case operatorSubtractConstant:
		return values.Integer(leftNumber - rightNumber), nil
	case operatorMultiplyConstant:
		return values.Integer(leftNumber * rightNumber), nil
	case operatorDivideConstant, operatorRemainderConstant:
		if rightNumber == 0 {
			return nil, errDivisionByZero
		}
		if operator == operatorDivideConstant {
			return values.Integer(leftNumber / rightNumber), nil
		}
		return values.Integer(leftNumber % rightNumber), nil
	default:
		return nil, fmt.Errorf(unsupportedOperatorTemplateConstant, operator, values.RefOf(left), values.RefOf(right))
	}
}

func (evaluator *Evaluator) arithmeticFailure(element syntax.Element, computeError error) error {
	if errors.Is(computeError, errDivisionByZero) {
		return evaluator.failure(element, runtimeerrors.ErrDivisionByZero, computeError.Error())
	}
	return evaluator.failure(element, runtimeerrors.ErrValueExtractionFailed, computeError.Error())
}

func (evaluator *Evaluator) variableFailure(element syntax.Element, name string, storeError error) error {
	if errors.Is(storeError, runtimeerrors.ErrVariableNotFound) {
		return evaluator.failure(element, runtimeerrors.ErrVariableNotFound, name)
	}
	return evaluator.storeFailure(element, storeError)
}

func (evaluator *Evaluator) evaluateVariable(variable *syntax.VariableName, frame Frame) (values.Value, error) {
	value, found, lookupError := frame.Scope.Lookup(variable.Name)
	if lookupError != nil {
		return nil, evaluator.storeFailure(variable, lookupError)
	}
	if !found {
		return nil, evaluator.failure(variable, runtimeerrors.ErrVariableNotFound, variable.Name)
	}
	return value, nil
}

// evaluateAssignation rebinds the nearest existing binding, declaring it in the
// active scope when none exists.
func (evaluator *Evaluator) evaluateAssignation(executionContext context.Context, assignation *syntax.VariableAssignation, frame Frame) (values.Value, error) {
	value, evaluationError := evaluator.Evaluate(executionContext, assignation.Value, frame)
	if evaluationError != nil {
		return nil, evaluationError
	}
	updateError := frame.Scope.Update(assignation.Name, value)
	if errors.Is(updateError, runtimeerrors.ErrVariableNotFound) {
		updateError = frame.Scope.Insert(assignation.Name, value)
	}
	if updateError != nil {
		return nil, evaluator.storeFailure(assignation, updateError)
	}
	return value, nil
}

func (evaluator *Evaluator) evaluateDeclaration(executionContext context.Context, declaration *syntax.VariableDeclaration, frame Frame) (values.Value, error) {
	var value values.Value = values.Empty{}
	if declaration.Value != nil {
		evaluated, evaluationError := evaluator.Evaluate(executionContext, declaration.Value, frame)
		if evaluationError != nil {
			return nil, evaluationError
		}
		value = evaluated
	}
	if insertError := frame.Scope.Insert(declaration.Name, value); insertError != nil {
		return nil, evaluator.storeFailure(declaration, insertError)
	}
	return value, nil
}

func (evaluator *Evaluator) evaluateValues(executionContext context.Context, valuesElement *syntax.Values, frame Frame) (values.Value, error) {
	collected := make(values.Vec, 0, len(valuesElement.Elements))
	for _, element := range valuesElement.Elements {
		value, evaluationError := evaluator.Evaluate(executionContext, element, frame)
		if evaluationError != nil {
			return nil, evaluationError
		}
		collected = append(collected, value)
	}
	return collected, nil
}

func (evaluator *Evaluator) evaluateRange(executionContext context.Context, rangeElement *syntax.Range, frame Frame) (values.Value, error) {
	from, to, operandError := evaluator.evaluateOperands(executionContext, rangeElement.From, rangeElement.To, frame)
	if operandError != nil {
		return nil, operandError
	}
	fromNumber, fromOk := values.AsInteger(from)
	toNumber, toOk := values.AsInteger(to)
	if !fromOk || !toOk {
		return nil, evaluator.failure(rangeElement, runtimeerrors.ErrValueExtractionFailed, fmt.Sprintf("range bounds must be integers, got %s and %s", values.RefOf(from), values.RefOf(to)))
	}
	return values.Range{From: fromNumber, To: toNumber}, nil
}

func (evaluator *Evaluator) evaluatePattern(executionContext context.Context, pattern *syntax.PatternString, frame Frame) (values.Value, error) {
	var rendered strings.Builder
	for _, segment := range pattern.Segments {
		value, evaluationError := evaluator.Evaluate(executionContext, segment, frame)
		if evaluationError != nil {
			return nil, evaluationError
		}
		rendered.WriteString(values.Render(value))
	}
	return values.String(rendered.String()), nil
}

// evaluateAccessor indexes the parent pipeline value; negative indexes count from the end.
func (evaluator *Evaluator) evaluateAccessor(executionContext context.Context, accessor *syntax.Accessor, frame Frame, parentToken store.PipelineToken) (values.Value, error) {
	if parentToken == 0 {
		return nil, evaluator.failure(accessor, runtimeerrors.ErrValueExtractionFailed, "accessor used outside a method chain")
	}
	parent, withdrawError := frame.Scope.WithdrawParentValue(parentToken)
	if withdrawError != nil {
		return nil, evaluator.storeFailure(accessor, withdrawError)
	}
	indexValue, evaluationError := evaluator.Evaluate(executionContext, accessor.Index, frame)
	if evaluationError != nil {
		return nil, evaluationError
	}
	index, isInteger := values.AsInteger(indexValue)
	if !isInteger {
		return nil, evaluator.failure(accessor, runtimeerrors.ErrValueExtractionFailed, fmt.Sprintf("index must be integer, got %s", values.RefOf(indexValue)))
	}

	switch typed := parent.(type) {
	case values.Vec:
		position, inRange := normalizeIndex(index, len(typed))
		if !inRange {
			return nil, evaluator.failure(accessor, runtimeerrors.ErrIndexOutOfRange, fmt.Sprintf("index %d of %d", index, len(typed)))
		}
		return typed[position], nil
	case values.String, values.Path:
		text := []rune(values.Render(typed))
		position, inRange := normalizeIndex(index, len(text))
		if !inRange {
			return nil, evaluator.failure(accessor, runtimeerrors.ErrIndexOutOfRange, fmt.Sprintf("index %d of %d", index, len(text)))
		}
		return values.String(string(text[position])), nil
	default:
		return nil, evaluator.failure(accessor, runtimeerrors.ErrValueExtractionFailed, fmt.Sprintf("cannot index %s", values.RefOf(parent)))
	}
}

func normalizeIndex(index int64, length int) (int, bool) {
	if index < 0 {
		index += int64(length)
	}
	if index < 0 || index >= int64(length) {
		return 0, false
	}
	return int(index), true
}
