package taskrunner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	runtimeerrors "github.com/tyemirov/taskscript/internal/errors"
	"github.com/tyemirov/taskscript/internal/linker"
	"github.com/tyemirov/taskscript/internal/manifest"
	"github.com/tyemirov/taskscript/internal/syntax"
	"github.com/tyemirov/taskscript/internal/values"
)

const (
	scriptMissingMessageConstant          = "no script document provided; pass --script or set script in the manifest"
	targetWithoutManifestTemplateConstant = "target %q requested but no manifest was found"
	targetMissingTemplateConstant         = "target %q is not declared in %s"
	invocationMissingMessageConstant      = "no task selected; pass component:task or --target"
	invocationShapeTemplateConstant       = "task selector %q must be component:task"
	argumentCoercionTemplateConstant      = "argument %d (%q) expects %s"
	vecArgumentSeparatorConstant          = ","
	invocationSeparatorConstant           = ":"
)

// ErrScriptNotProvided indicates neither the request nor the manifest named a script.
var ErrScriptNotProvided = errors.New(scriptMissingMessageConstant)

// Request selects the document, the task and its raw command-line arguments.
type Request struct {
	ScriptPath       string
	ManifestPath     string
	WorkingDirectory string
	Target           string
	Selector         string
	Arguments        []string
}

// Invocation is a resolved component task call.
type Invocation struct {
	Component string
	Task      string
	Arguments []values.Value
}

// Program is a loaded and linked document ready for execution.
type Program struct {
	Document      *syntax.Document
	Manifest      *manifest.Manifest
	Types         linker.TypeTable
	RootDirectory string
}

// Load reads the manifest (explicit, or taskscript.hcl in the working directory when
// present) and the script document, applies component overrides and links the result.
func Load(request Request, functions linker.FunctionCatalog) (Program, error) {
	workingDirectory := strings.TrimSpace(request.WorkingDirectory)

	projectManifest, manifestError := loadManifest(request.ManifestPath, workingDirectory)
	if manifestError != nil {
		return Program{}, manifestError
	}

	scriptPath := strings.TrimSpace(request.ScriptPath)
	if len(scriptPath) == 0 && projectManifest != nil {
		scriptPath = projectManifest.Script
	}
	if len(scriptPath) == 0 {
		return Program{}, ErrScriptNotProvided
	}
	if !filepath.IsAbs(scriptPath) && len(workingDirectory) > 0 && len(strings.TrimSpace(request.ScriptPath)) > 0 {
		scriptPath = filepath.Join(workingDirectory, scriptPath)
	}

	document, documentError := syntax.LoadDocument(scriptPath)
	if documentError != nil {
		return Program{}, documentError
	}
	if projectManifest != nil {
		if applyError := projectManifest.Apply(document); applyError != nil {
			return Program{}, applyError
		}
	}

	types, linkError := linker.New(functions).Link(document)
	if linkError != nil {
		return Program{}, linkError
	}

	rootDirectory := workingDirectory
	if len(rootDirectory) == 0 {
		rootDirectory = filepath.Dir(scriptPath)
	}
	return Program{Document: document, Manifest: projectManifest, Types: types, RootDirectory: rootDirectory}, nil
}

func loadManifest(explicitPath string, workingDirectory string) (*manifest.Manifest, error) {
	trimmedPath := strings.TrimSpace(explicitPath)
	if len(trimmedPath) > 0 {
		if !filepath.IsAbs(trimmedPath) && len(workingDirectory) > 0 {
			trimmedPath = filepath.Join(workingDirectory, trimmedPath)
		}
		return manifest.Load(trimmedPath)
	}
	candidate := filepath.Join(workingDirectory, manifest.DefaultFileNameConstant)
	if _, statError := os.Stat(candidate); statError != nil {
		return nil, nil
	}
	return manifest.Load(candidate)
}

// Invocation resolves the task to run. A target supplies component, task and
// arguments; extra command-line arguments are appended after the target's own.
func (program Program) Invocation(request Request) (Invocation, error) {
	targetName := strings.TrimSpace(request.Target)
	if len(targetName) > 0 {
		if program.Manifest == nil {
			return Invocation{}, runtimeerrors.WrapMessage(runtimeerrors.OperationInvocation, targetName, runtimeerrors.ErrInvalidDocument, fmt.Sprintf(targetWithoutManifestTemplateConstant, targetName))
		}
		target, found := program.Manifest.Target(targetName)
		if !found {
			return Invocation{}, runtimeerrors.WrapMessage(runtimeerrors.OperationInvocation, targetName, runtimeerrors.ErrInvalidDocument, fmt.Sprintf(targetMissingTemplateConstant, targetName, program.Manifest.Path))
		}
		invocation := Invocation{Component: target.Component, Task: target.Task, Arguments: append([]values.Value{}, target.Arguments...)}
		extra, coercionError := program.coerce(target.Component, target.Task, request.Arguments, len(invocation.Arguments))
		if coercionError != nil {
			return Invocation{}, coercionError
		}
		invocation.Arguments = append(invocation.Arguments, extra...)
		return invocation, nil
	}

	selector := strings.TrimSpace(request.Selector)
	if len(selector) == 0 {
		return Invocation{}, runtimeerrors.WrapMessage(runtimeerrors.OperationInvocation, "", runtimeerrors.ErrTaskNotFound, invocationMissingMessageConstant)
	}
	componentName, taskName, shaped := strings.Cut(selector, invocationSeparatorConstant)
	if !shaped || len(componentName) == 0 || len(taskName) == 0 {
		return Invocation{}, runtimeerrors.WrapMessage(runtimeerrors.OperationInvocation, selector, runtimeerrors.ErrInvalidReference, fmt.Sprintf(invocationShapeTemplateConstant, selector))
	}
	arguments, coercionError := program.coerce(componentName, taskName, request.Arguments, 0)
	if coercionError != nil {
		return Invocation{}, coercionError
	}
	return Invocation{Component: componentName, Task: taskName, Arguments: arguments}, nil
}

// coerce converts raw command-line arguments using the declared parameter types of
// the task; offset is the number of arguments already bound. Unknown tasks are left
// for the evaluator to report.
func (program Program) coerce(componentName string, taskName string, raw []string, offset int) ([]values.Value, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var parameters []syntax.Parameter
	if component, found := program.Document.Component(componentName); found {
		if task, taskFound := component.Task(taskName); taskFound {
			parameters = task.Parameters
		}
	}
	converted := make([]values.Value, 0, len(raw))
	for index, argument := range raw {
		position := offset + index
		ref := values.Ref(values.RefAny)
		switch {
		case position < len(parameters):
			ref = parameters[position].Type
		case len(parameters) > 0 && parameters[len(parameters)-1].Type.Kind == values.RefRepeated:
			ref = parameters[len(parameters)-1].Type
		}
		value, coerced := CoerceArgument(ref, argument)
		if !coerced {
			return nil, runtimeerrors.WrapMessage(runtimeerrors.OperationInvocation, componentName+invocationSeparatorConstant+taskName, runtimeerrors.ErrValueExtractionFailed, fmt.Sprintf(argumentCoercionTemplateConstant, position, argument, ref.String()))
		}
		converted = append(converted, value)
	}
	return converted, nil
}

// CoerceArgument converts a command-line string to the value a parameter of type ref
// expects. Untyped parameters receive the string unchanged.
func CoerceArgument(ref values.ValueRef, raw string) (values.Value, bool) {
	switch ref.Kind {
	case values.RefOptional, values.RefRepeated:
		if ref.Inner == nil {
			return values.String(raw), true
		}
		return CoerceArgument(*ref.Inner, raw)
	case values.RefOneOf:
		for _, variant := range ref.Variants {
			if value, coerced := CoerceArgument(variant, raw); coerced {
				return value, true
			}
		}
		return nil, false
	case values.RefInteger, values.RefNumeric:
		parsed, parseError := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if parseError != nil {
			return nil, false
		}
		return values.Integer(parsed), true
	case values.RefBool:
		parsed, parseError := strconv.ParseBool(strings.TrimSpace(raw))
		if parseError != nil {
			return nil, false
		}
		return values.Bool(parsed), true
	case values.RefPath:
		return values.Path(raw), true
	case values.RefVec:
		inner := values.Ref(values.RefAny)
		if ref.Inner != nil {
			inner = *ref.Inner
		}
		items := values.Vec{}
		if len(raw) == 0 {
			return items, true
		}
		for _, part := range strings.Split(raw, vecArgumentSeparatorConstant) {
			item, coerced := CoerceArgument(inner, part)
			if !coerced {
				return nil, false
			}
			items = append(items, item)
		}
		return items, true
	case values.RefEmpty:
		if len(raw) == 0 {
			return values.Empty{}, true
		}
		return nil, false
	case values.RefRange, values.RefTaskRef, values.RefError, values.RefSpawnStatus:
		return nil, false
	default:
		return values.String(raw), true
	}
}
