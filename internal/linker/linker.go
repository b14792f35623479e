// Package linker implements the static verification pass that must succeed before a
// syntax tree is executed.
package linker

import (
	"fmt"
	"strings"

	runtimeerrors "github.com/tyemirov/taskscript/internal/errors"
	"github.com/tyemirov/taskscript/internal/syntax"
	"github.com/tyemirov/taskscript/internal/values"
)

const (
	issueTemplateConstant            = "%s:%s: %v"
	additionalIssuesTemplateConstant = "%s (and %d more)"
	componentMissingTemplateConstant = "component %q not found"
	taskMissingTemplateConstant      = "task %q not found in component %q"
	pathShapeTemplateConstant        = "reference path %q must have one or two segments"
	argumentCountTemplateConstant    = "%s expects %s arguments, got %d"
	argumentTypeTemplateConstant     = "%s argument %d (%s) expects %s, got %s"
	functionMissingTemplateConstant  = "function %q is not defined"
	declarationTypeTemplateConstant  = "variable %q declared as %s cannot hold %s"
	breakOutsideLoopMessageConstant  = "break is only allowed inside a loop body"
	returnOutsideTaskMessageConstant = "return is only allowed inside a task body"
	unboundedArgumentsRangeConstant  = "at least %d"
	exactArgumentsRangeConstant      = "%d"
	boundedArgumentsRangeConstant    = "%d to %d"
)

// FunctionCatalog reports which built-in functions exist.
type FunctionCatalog interface {
	Has(name string) bool
}

// Issue is one verification failure tied to a source token.
type Issue struct {
	Token    syntax.Token
	Location string
	Err      error
}

// Error renders the issue with its location.
func (issue Issue) Error() string {
	return fmt.Sprintf("%s: %v", issue.Location, issue.Err)
}

// LinkError aggregates every verification failure of a document; the first issue is
// the one reported.
type LinkError struct {
	Source string
	Issues []Issue
}

// Error implements the error interface.
func (linkError *LinkError) Error() string {
	if len(linkError.Issues) == 0 {
		return linkError.Source
	}
	first := fmt.Sprintf(issueTemplateConstant, linkError.Source, linkError.Issues[0].Location, linkError.Issues[0].Err)
	if len(linkError.Issues) == 1 {
		return first
	}
	return fmt.Sprintf(additionalIssuesTemplateConstant, first, len(linkError.Issues)-1)
}

// Unwrap exposes the first issue's error chain.
func (linkError *LinkError) Unwrap() error {
	if len(linkError.Issues) == 0 {
		return nil
	}
	return linkError.Issues[0].Err
}

// TypeTable maps component names to the declared types of their variables.
type TypeTable map[string]map[string]values.ValueRef

// Lookup returns the recorded type of a component variable.
func (table TypeTable) Lookup(component string, variable string) (values.ValueRef, bool) {
	variables, found := table[component]
	if !found {
		return values.ValueRef{}, false
	}
	ref, found := variables[variable]
	return ref, found
}

// Linker verifies documents against a function catalog.
type Linker struct {
	functions FunctionCatalog
}

// New builds a linker.
func New(functions FunctionCatalog) *Linker {
	return &Linker{functions: functions}
}

// Link verifies every component of document and returns its type table.
func (linker *Linker) Link(document *syntax.Document) (TypeTable, error) {
	pass := &linkPass{linker: linker, document: document, table: make(TypeTable)}
	for _, component := range document.Components {
		pass.table[component.Name] = make(map[string]values.ValueRef)
		for _, task := range component.Tasks() {
			pass.linkTask(component, task)
		}
	}
	if len(pass.issues) > 0 {
		return pass.table, &LinkError{Source: document.Source, Issues: pass.issues}
	}
	return pass.table, nil
}

type linkPass struct {
	linker   *Linker
	document *syntax.Document
	table    TypeTable
	issues   []Issue
}

type linkScope struct {
	component *syntax.Component
	variables map[string]values.ValueRef
	loopDepth int
	inTask    bool
}

// insideLoop opens a nested scope: bindings made in the loop body stay in the body.
func (scope linkScope) insideLoop() linkScope {
	variables := make(map[string]values.ValueRef, len(scope.variables))
	for name, ref := range scope.variables {
		variables[name] = ref
	}
	scope.variables = variables
	scope.loopDepth++
	return scope
}

func (pass *linkPass) report(element syntax.Element, sentinel runtimeerrors.Sentinel, message string) {
	token := element.Meta().Token
	pass.issues = append(pass.issues, Issue{
		Token:    token,
		Location: pass.document.Tokens.Locate(token),
		Err:      runtimeerrors.WrapMessage(runtimeerrors.OperationLink, string(element.Kind()), sentinel, message),
	})
}

func (pass *linkPass) record(scope linkScope, name string, ref values.ValueRef) {
	scope.variables[name] = ref
	componentTable := pass.table[scope.component.Name]
	if existing, found := componentTable[name]; found && !existing.Equal(ref) {
		componentTable[name] = values.Ref(values.RefAny)
		return
	}
	componentTable[name] = ref
}

func (pass *linkPass) linkTask(component *syntax.Component, task *syntax.Task) {
	guardScope := linkScope{component: component, variables: make(map[string]values.ValueRef)}
	for _, parameter := range task.Parameters {
		guardScope.variables[parameter.Name] = parameter.Type
	}
	for _, gatekeeper := range task.Gatekeepers {
		pass.linkElement(guardScope, gatekeeper.Function)
		for _, target := range gatekeeper.Targets {
			pass.linkReference(guardScope, target)
		}
	}

	bodyScope := linkScope{component: component, variables: make(map[string]values.ValueRef), inTask: true}
	for _, parameter := range task.Parameters {
		pass.record(bodyScope, parameter.Name, parameter.Type)
	}
	if task.Body != nil {
		pass.linkElement(bodyScope, task.Body)
	}
}

func (pass *linkPass) linkAll(scope linkScope, elements []syntax.Element) {
	for _, element := range elements {
		pass.linkElement(scope, element)
	}
}

func (pass *linkPass) linkElement(scope linkScope, element syntax.Element) {
	if element == nil {
		return
	}
	pass.linkAll(scope, element.Meta().Pipeline)

	switch typed := element.(type) {
	case *syntax.Block:
		pass.linkAll(scope, typed.Elements)
	case *syntax.Reference:
		pass.linkReference(scope, typed)
	case *syntax.Closure:
		pass.resolve(scope, typed, typed.Path)
	case *syntax.Function:
		if pass.linker.functions != nil && !pass.linker.functions.Has(typed.Name) {
			pass.report(typed, runtimeerrors.ErrFunctionNotFound, fmt.Sprintf(functionMissingTemplateConstant, typed.Name))
		}
		pass.linkAll(scope, typed.Arguments)
	case *syntax.Join:
		for _, reference := range typed.References {
			pass.linkReference(scope, reference)
		}
	case *syntax.Command:
		pass.linkAll(scope, typed.Segments)
	case *syntax.Each:
		pass.linkElement(scope, typed.Source)
		elementType := values.Ref(values.RefAny)
		if sourceType := pass.infer(scope, typed.Source); sourceType.Kind == values.RefVec && sourceType.Inner != nil {
			elementType = *sourceType.Inner
		}
		loopScope := scope.insideLoop()
		pass.record(loopScope, typed.Variable, elementType)
		pass.linkElement(loopScope, typed.Body)
	case *syntax.For:
		pass.linkElement(scope, typed.Source)
		loopScope := scope.insideLoop()
		pass.record(loopScope, typed.Variable, values.Ref(values.RefInteger))
		pass.linkElement(loopScope, typed.Body)
	case *syntax.Loop:
		pass.linkElement(scope.insideLoop(), typed.Body)
	case *syntax.While:
		pass.linkElement(scope, typed.Condition)
		pass.linkElement(scope.insideLoop(), typed.Body)
	case *syntax.First:
		pass.linkAll(scope, typed.Alternatives)
	case *syntax.Optional:
		pass.linkElement(scope, typed.Condition)
		pass.linkElement(scope, typed.Action)
	case *syntax.If:
		for _, branch := range typed.Branches {
			pass.linkElement(scope, branch.Condition)
			pass.linkElement(scope, branch.Body)
		}
		if typed.Else != nil {
			pass.linkElement(scope, typed.Else)
		}
	case *syntax.Breaker:
		if scope.loopDepth == 0 {
			pass.report(typed, runtimeerrors.ErrBreakOutsideLoop, breakOutsideLoopMessageConstant)
		}
	case *syntax.Return:
		if !scope.inTask {
			pass.report(typed, runtimeerrors.ErrReturnOutsideTask, returnOutsideTaskMessageConstant)
		}
		pass.linkElement(scope, typed.Value)
	case *syntax.Combination:
		pass.linkElement(scope, typed.Left)
		pass.linkElement(scope, typed.Right)
	case *syntax.Comparing:
		pass.linkElement(scope, typed.Left)
		pass.linkElement(scope, typed.Right)
	case *syntax.Compute:
		pass.linkElement(scope, typed.Left)
		pass.linkElement(scope, typed.Right)
	case *syntax.Incrementer:
		pass.linkElement(scope, typed.Value)
	case *syntax.VariableAssignation:
		pass.linkElement(scope, typed.Value)
		if _, declared := scope.variables[typed.Name]; !declared {
			pass.record(scope, typed.Name, pass.infer(scope, typed.Value))
		}
	case *syntax.VariableDeclaration:
		pass.linkElement(scope, typed.Value)
		declaredType := typed.Type
		if typed.Value != nil {
			valueType := pass.infer(scope, typed.Value)
			if !declaredType.Accepts(valueType) {
				pass.report(typed, runtimeerrors.ErrArgumentTypeMismatch, fmt.Sprintf(declarationTypeTemplateConstant, typed.Name, declaredType, valueType))
			}
		}
		pass.record(scope, typed.Name, declaredType)
	case *syntax.Values:
		pass.linkAll(scope, typed.Elements)
	case *syntax.Range:
		pass.linkElement(scope, typed.From)
		pass.linkElement(scope, typed.To)
	case *syntax.PatternString:
		pass.linkAll(scope, typed.Segments)
	case *syntax.Accessor:
		pass.linkElement(scope, typed.Index)
	}
}

func (pass *linkPass) resolve(scope linkScope, element syntax.Element, path []string) (*syntax.Task, bool) {
	var componentName, taskName string
	switch len(path) {
	case 1:
		componentName, taskName = scope.component.Name, path[0]
	case 2:
		componentName, taskName = path[0], path[1]
		if componentName == syntax.SelfComponentConstant {
			componentName = scope.component.Name
		}
	default:
		pass.report(element, runtimeerrors.ErrInvalidReference, fmt.Sprintf(pathShapeTemplateConstant, strings.Join(path, ":")))
		return nil, false
	}
	component, found := pass.document.Component(componentName)
	if !found {
		pass.report(element, runtimeerrors.ErrNotFoundComponent, fmt.Sprintf(componentMissingTemplateConstant, componentName))
		return nil, false
	}
	task, found := component.Task(taskName)
	if !found {
		pass.report(element, runtimeerrors.ErrTaskNotFound, fmt.Sprintf(taskMissingTemplateConstant, taskName, componentName))
		return nil, false
	}
	return task, true
}

func (pass *linkPass) linkReference(scope linkScope, reference *syntax.Reference) {
	pass.linkAll(scope, reference.Meta().Pipeline)
	pass.linkAll(scope, reference.Inputs)
	if len(reference.Variable) > 0 {
		return
	}
	task, resolved := pass.resolve(scope, reference, reference.Path)
	if !resolved {
		return
	}
	pass.checkArguments(scope, reference, task)
}

func (pass *linkPass) checkArguments(scope linkScope, reference *syntax.Reference, task *syntax.Task) {
	minimum, maximum := task.Arity()
	count := len(reference.Inputs)
	if count < minimum || (maximum >= 0 && count > maximum) {
		pass.report(reference, runtimeerrors.ErrArgumentsCountMismatch, fmt.Sprintf(argumentCountTemplateConstant, reference.PathString(), describeArity(minimum, maximum), count))
		return
	}
	for index, input := range reference.Inputs {
		parameter := task.Parameters[min(index, len(task.Parameters)-1)]
		inputType := pass.infer(scope, input)
		if !parameter.Type.Accepts(inputType) {
			pass.report(input, runtimeerrors.ErrArgumentTypeMismatch, fmt.Sprintf(argumentTypeTemplateConstant, reference.PathString(), index+1, parameter.Name, parameter.Type, inputType))
		}
	}
}

func describeArity(minimum int, maximum int) string {
	switch {
	case maximum < 0:
		return fmt.Sprintf(unboundedArgumentsRangeConstant, minimum)
	case minimum == maximum:
		return fmt.Sprintf(exactArgumentsRangeConstant, minimum)
	default:
		return fmt.Sprintf(boundedArgumentsRangeConstant, minimum, maximum)
	}
}

func (pass *linkPass) infer(scope linkScope, element syntax.Element) values.ValueRef {
	if element == nil {
		return values.Ref(values.RefEmpty)
	}
	metadata := element.Meta()
	if metadata.Inverting {
		return values.Ref(values.RefBool)
	}
	if metadata.Tolerant || len(metadata.Pipeline) > 0 {
		return values.Ref(values.RefAny)
	}
	switch typed := element.(type) {
	case *syntax.Integer:
		return values.Ref(values.RefInteger)
	case *syntax.Boolean, *syntax.Comparing, *syntax.Combination:
		return values.Ref(values.RefBool)
	case *syntax.SimpleString, *syntax.PatternString:
		return values.Ref(values.RefString)
	case *syntax.Range:
		return values.Ref(values.RefRange)
	case *syntax.Error:
		return values.Ref(values.RefError)
	case *syntax.Closure:
		return values.Ref(values.RefTaskRef)
	case *syntax.Incrementer:
		return values.Ref(values.RefInteger)
	case *syntax.Compute:
		if typed.Operator == "+" {
			leftType := pass.infer(scope, typed.Left)
			if leftType.Kind == values.RefString || leftType.Kind == values.RefPath {
				return values.Ref(values.RefString)
			}
		}
		return values.Ref(values.RefInteger)
	case *syntax.Values:
		if len(typed.Elements) == 0 {
			return values.VecOf(values.Ref(values.RefAny))
		}
		elementType := pass.infer(scope, typed.Elements[0])
		for _, element := range typed.Elements[1:] {
			if !elementType.Equal(pass.infer(scope, element)) {
				return values.VecOf(values.Ref(values.RefAny))
			}
		}
		return values.VecOf(elementType)
	case *syntax.VariableName:
		if ref, found := scope.variables[typed.Name]; found {
			if ref.Kind == values.RefRepeated && ref.Inner != nil {
				return values.VecOf(*ref.Inner)
			}
			return ref
		}
		return values.Ref(values.RefAny)
	default:
		return values.Ref(values.RefAny)
	}
}
