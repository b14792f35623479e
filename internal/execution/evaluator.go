// Package execution walks linked syntax trees, coordinating scope bookkeeping
// through the store actor, cancellation through breaker signals and process
// spawning through the shell executor.
package execution

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/tyemirov/taskscript/internal/breaker"
	runtimeerrors "github.com/tyemirov/taskscript/internal/errors"
	"github.com/tyemirov/taskscript/internal/execshell"
	"github.com/tyemirov/taskscript/internal/store"
	"github.com/tyemirov/taskscript/internal/syntax"
	"github.com/tyemirov/taskscript/internal/values"
)

const (
	taskStartedMessageConstant      = "task started"
	taskFinishedMessageConstant     = "task finished"
	toleratedFailureMessageConstant = "tolerated failure"
	componentFieldConstant          = "component"
	taskFieldConstant               = "task"
	locationFieldConstant           = "location"
	subjectTemplateConstant         = "%s@%s"
	identifierTemplateConstant      = "%s-%d-%d"
)

var (
	// ErrDocumentNotConfigured indicates the evaluator was built without a document.
	ErrDocumentNotConfigured = errors.New("execution document not configured")
	// ErrLoggerNotConfigured indicates the evaluator was built without a logger.
	ErrLoggerNotConfigured = errors.New("execution logger not configured")
	// ErrSpawnerNotConfigured indicates the evaluator was built without a spawner.
	ErrSpawnerNotConfigured = errors.New("execution spawner not configured")
)

// Spawner runs shell command lines on behalf of Command elements.
type Spawner interface {
	Execute(executionContext context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error)
}

// Dependencies configures the collaborators shared by every evaluation.
type Dependencies struct {
	Logger        *zap.Logger
	Spawner       Spawner
	Functions     *Registry
	Output        io.Writer
	RootDirectory string
}

// Frame is the per-call evaluation state threaded through recursion.
type Frame struct {
	Owner      *syntax.Component
	Components []*syntax.Component
	Arguments  []values.Value
	Previous   values.Value
	Scope      *store.Handle
	Signal     *breaker.Signal
	Pipeline   store.PipelineToken
}

// Evaluator evaluates elements of one document.
type Evaluator struct {
	document      *syntax.Document
	logger        *zap.Logger
	spawner       Spawner
	functions     *Registry
	output        io.Writer
	rootDirectory string
	sequence      atomic.Uint64
}

// NewEvaluator validates dependencies and constructs an Evaluator.
func NewEvaluator(document *syntax.Document, dependencies Dependencies) (*Evaluator, error) {
	if document == nil {
		return nil, ErrDocumentNotConfigured
	}
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if dependencies.Spawner == nil {
		return nil, ErrSpawnerNotConfigured
	}
	functions := dependencies.Functions
	if functions == nil {
		functions = NewRegistry()
	}
	output := dependencies.Output
	if output == nil {
		output = os.Stdout
	}
	rootDirectory := dependencies.RootDirectory
	if len(rootDirectory) == 0 {
		workingDirectory, workingDirectoryError := os.Getwd()
		if workingDirectoryError != nil {
			return nil, workingDirectoryError
		}
		rootDirectory = workingDirectory
	}
	absoluteRoot, absoluteError := filepath.Abs(rootDirectory)
	if absoluteError != nil {
		return nil, absoluteError
	}
	return &Evaluator{
		document:      document,
		logger:        dependencies.Logger,
		spawner:       dependencies.Spawner,
		functions:     functions,
		output:        &synchronizedWriter{target: output},
		rootDirectory: absoluteRoot,
	}, nil
}

// RootDirectory reports the absolute directory component cwds resolve against.
func (evaluator *Evaluator) RootDirectory() string {
	return evaluator.rootDirectory
}

// Run invokes componentName:taskName with arguments on a fresh store and returns its result.
func (evaluator *Evaluator) Run(executionContext context.Context, componentName string, taskName string, arguments []values.Value) (values.Value, error) {
	component, found := evaluator.document.Component(componentName)
	if !found {
		return nil, runtimeerrors.WrapMessage(runtimeerrors.OperationInvocation, componentName+":"+taskName, runtimeerrors.ErrNotFoundComponent, componentName)
	}
	task, found := component.Task(taskName)
	if !found {
		return nil, runtimeerrors.WrapMessage(runtimeerrors.OperationInvocation, componentName+":"+taskName, runtimeerrors.ErrTaskNotFound, taskName)
	}
	minimum, maximum := task.Arity()
	if len(arguments) < minimum || (maximum >= 0 && len(arguments) > maximum) {
		return nil, runtimeerrors.WrapMessage(runtimeerrors.OperationInvocation, componentName+":"+taskName, runtimeerrors.ErrArgumentsCountMismatch, fmt.Sprintf("got %d arguments", len(arguments)))
	}

	scopeStore := store.New(evaluator.rootDirectory)
	defer scopeStore.Shutdown()

	rootSignal := breaker.NewSignal(executionContext)
	defer rootSignal.Cancel()

	frame := Frame{Owner: component, Components: evaluator.document.Components, Scope: scopeStore.Root(), Signal: rootSignal, Previous: values.Empty{}}
	return evaluator.invokeTask(executionContext, component, task, nil, arguments, frame)
}

// Evaluate computes the value of element: its own value, then the PPM chain, then
// inversion. A tolerant element turns a script failure into Empty; store protocol
// violations always propagate.
func (evaluator *Evaluator) Evaluate(executionContext context.Context, element syntax.Element, frame Frame) (values.Value, error) {
	parentToken := frame.Pipeline
	frame.Pipeline = 0
	metadata := element.Meta()

	value, evaluationError := evaluator.evaluateElement(executionContext, element, frame, parentToken)
	if evaluationError == nil {
		value, evaluationError = evaluator.applyPipeline(executionContext, metadata.Pipeline, value, frame)
	}
	if evaluationError == nil && metadata.Inverting {
		flag, isBool := values.AsBool(value)
		if !isBool {
			evaluationError = evaluator.failure(element, runtimeerrors.ErrValueExtractionFailed, fmt.Sprintf("cannot invert %s", values.RefOf(value)))
		} else {
			value = values.Bool(!flag)
		}
	}
	if evaluationError != nil {
		if metadata.Tolerant && !runtimeerrors.IsInternal(evaluationError) {
			evaluator.logger.Debug(toleratedFailureMessageConstant, zap.String(locationFieldConstant, evaluator.locate(element)), zap.Error(evaluationError))
			return values.Empty{}, nil
		}
		return nil, evaluationError
	}
	if value == nil {
		return values.Empty{}, nil
	}
	return value, nil
}

func (evaluator *Evaluator) evaluateElement(executionContext context.Context, element syntax.Element, frame Frame, parentToken store.PipelineToken) (values.Value, error) {
	switch typed := element.(type) {
	case *syntax.Block:
		return evaluator.evaluateBlock(executionContext, typed, frame)
	case *syntax.Meta, *syntax.Comment:
		return values.Empty{}, nil
	case *syntax.Reference:
		return evaluator.evaluateReference(executionContext, typed, frame)
	case *syntax.Closure:
		return evaluator.evaluateClosure(typed, frame)
	case *syntax.Gatekeeper:
		return evaluator.Evaluate(executionContext, typed.Function, frame)
	case *syntax.Function:
		return evaluator.evaluateFunction(executionContext, typed, frame, parentToken)
	case *syntax.Join:
		return evaluator.evaluateJoin(executionContext, typed, frame)
	case *syntax.Command:
		return evaluator.evaluateCommand(executionContext, typed, frame)
	case *syntax.Each:
		return evaluator.evaluateEach(executionContext, typed, frame)
	case *syntax.For:
		return evaluator.evaluateFor(executionContext, typed, frame)
	case *syntax.Loop:
		return evaluator.evaluateLoop(executionContext, typed, frame)
	case *syntax.While:
		return evaluator.evaluateWhile(executionContext, typed, frame)
	case *syntax.First:
		return evaluator.evaluateFirst(executionContext, typed, frame)
	case *syntax.Optional:
		return evaluator.evaluateOptional(executionContext, typed, frame)
	case *syntax.If:
		return evaluator.evaluateIf(executionContext, typed, frame)
	case *syntax.Breaker:
		return evaluator.evaluateBreaker(typed, frame)
	case *syntax.Return:
		return evaluator.evaluateReturn(executionContext, typed, frame)
	case *syntax.Combination:
		return evaluator.evaluateCombination(executionContext, typed, frame)
	case *syntax.Comparing:
		return evaluator.evaluateComparing(executionContext, typed, frame)
	case *syntax.Compute:
		return evaluator.evaluateCompute(executionContext, typed, frame)
	case *syntax.Incrementer:
		return evaluator.evaluateIncrementer(executionContext, typed, frame)
	case *syntax.VariableName:
		return evaluator.evaluateVariable(typed, frame)
	case *syntax.VariableAssignation:
		return evaluator.evaluateAssignation(executionContext, typed, frame)
	case *syntax.VariableDeclaration:
		return evaluator.evaluateDeclaration(executionContext, typed, frame)
	case *syntax.Values:
		return evaluator.evaluateValues(executionContext, typed, frame)
	case *syntax.Range:
		return evaluator.evaluateRange(executionContext, typed, frame)
	case *syntax.Integer:
		return values.Integer(typed.Value), nil
	case *syntax.Boolean:
		return values.Bool(typed.Value), nil
	case *syntax.SimpleString:
		return values.String(typed.Value), nil
	case *syntax.PatternString:
		return evaluator.evaluatePattern(executionContext, typed, frame)
	case *syntax.Error:
		return values.Error{Message: typed.Message}, nil
	case *syntax.Accessor:
		return evaluator.evaluateAccessor(executionContext, typed, frame, parentToken)
	default:
		return nil, evaluator.failure(element, runtimeerrors.ErrUnsupportedElement, string(element.Kind()))
	}
}

// evaluateBlock yields the value of the last evaluated element, stopping early on
// cancellation, a break or a pending return.
func (evaluator *Evaluator) evaluateBlock(executionContext context.Context, block *syntax.Block, frame Frame) (values.Value, error) {
	var last values.Value = values.Empty{}
	for _, element := range block.Elements {
		if frame.Signal.IsCancelled() {
			return last, nil
		}
		stopped, storeError := frame.Scope.IsLoopStopped()
		if storeError != nil {
			return nil, evaluator.storeFailure(block, storeError)
		}
		if stopped {
			return last, nil
		}
		frame.Previous = last
		value, evaluationError := evaluator.Evaluate(executionContext, element, frame)
		if evaluationError != nil {
			return nil, evaluationError
		}
		last = value
	}
	return last, nil
}

func (evaluator *Evaluator) applyPipeline(executionContext context.Context, chain []syntax.Element, value values.Value, frame Frame) (values.Value, error) {
	current := value
	for _, method := range chain {
		token := store.PipelineToken(evaluator.sequence.Add(1))
		if storeError := frame.Scope.SetParentValue(token, current); storeError != nil {
			return nil, evaluator.storeFailure(method, storeError)
		}
		methodFrame := frame
		methodFrame.Pipeline = token
		methodFrame.Previous = current
		result, evaluationError := evaluator.Evaluate(executionContext, method, methodFrame)
		if dropError := frame.Scope.DropParentValue(token); dropError != nil && evaluationError == nil {
			evaluationError = evaluator.storeFailure(method, dropError)
		}
		if evaluationError != nil {
			return nil, evaluationError
		}
		current = result
	}
	return current, nil
}

func (evaluator *Evaluator) nextIdentifier(prefix string, element syntax.Element) store.ID {
	return store.ID(fmt.Sprintf(identifierTemplateConstant, prefix, element.Meta().Token, evaluator.sequence.Add(1)))
}

func (evaluator *Evaluator) locate(element syntax.Element) string {
	return fmt.Sprintf(subjectTemplateConstant, element.Kind(), evaluator.document.Tokens.Locate(element.Meta().Token))
}

func (evaluator *Evaluator) failure(element syntax.Element, sentinel runtimeerrors.Sentinel, message string) error {
	return evaluator.operationFailure(runtimeerrors.OperationEvaluate, element, sentinel, message)
}

func (evaluator *Evaluator) operationFailure(operation runtimeerrors.Operation, element syntax.Element, sentinel runtimeerrors.Sentinel, message string) error {
	return runtimeerrors.WrapMessage(operation, evaluator.locate(element), sentinel, message)
}

func (evaluator *Evaluator) storeFailure(element syntax.Element, storeError error) error {
	if runtimeerrors.HasOperation(storeError) {
		return storeError
	}
	return runtimeerrors.Wrap(runtimeerrors.OperationStore, evaluator.locate(element), "", storeError)
}

func (evaluator *Evaluator) lookupCwd(element syntax.Element, frame Frame) (string, error) {
	workingDirectory, storeError := frame.Scope.GetCwd()
	if storeError != nil {
		return "", evaluator.storeFailure(element, storeError)
	}
	if len(workingDirectory) == 0 {
		return evaluator.rootDirectory, nil
	}
	return workingDirectory, nil
}

func (evaluator *Evaluator) componentDirectory(component *syntax.Component) string {
	if len(component.Cwd) == 0 {
		return evaluator.rootDirectory
	}
	if filepath.IsAbs(component.Cwd) {
		return filepath.Clean(component.Cwd)
	}
	return filepath.Join(evaluator.rootDirectory, component.Cwd)
}

// synchronizedWriter serializes writes from concurrently evaluated Join branches.
type synchronizedWriter struct {
	mutex  sync.Mutex
	target io.Writer
}

func (writer *synchronizedWriter) Write(payload []byte) (int, error) {
	writer.mutex.Lock()
	defer writer.mutex.Unlock()
	return writer.target.Write(payload)
}
