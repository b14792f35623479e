package execution

import (
	"context"
	"errors"
	"strings"

	runtimeerrors "github.com/tyemirov/taskscript/internal/errors"
	"github.com/tyemirov/taskscript/internal/execshell"
	"github.com/tyemirov/taskscript/internal/syntax"
	"github.com/tyemirov/taskscript/internal/values"
)

const commandSegmentSeparatorConstant = " "

// evaluateCommand interpolates the segments into one shell line and spawns it in
// the active scope's working directory. Cancellation yields Empty.
func (evaluator *Evaluator) evaluateCommand(executionContext context.Context, command *syntax.Command, frame Frame) (values.Value, error) {
	var line strings.Builder
	for _, segment := range command.Segments {
		value, evaluationError := evaluator.Evaluate(executionContext, segment, frame)
		if evaluationError != nil {
			return nil, evaluationError
		}
		line.WriteString(commandText(value))
	}

	workingDirectory, cwdError := evaluator.lookupCwd(command, frame)
	if cwdError != nil {
		return nil, cwdError
	}
	details := execshell.CommandDetails{WorkingDirectory: workingDirectory}
	if frame.Owner != nil {
		details.EnvironmentFile = frame.Owner.EnvFile
	}

	_, executionError := evaluator.spawner.Execute(frame.Signal.Context(), execshell.ShellCommand{Line: line.String(), Details: details})
	if executionError != nil {
		var failedError execshell.CommandFailedError
		if errors.As(executionError, &failedError) {
			return nil, runtimeerrors.Wrap(runtimeerrors.OperationCommand, evaluator.locate(command), runtimeerrors.ErrSpawnedProcessExitWithError, executionError)
		}
		return nil, runtimeerrors.Wrap(runtimeerrors.OperationCommand, evaluator.locate(command), runtimeerrors.ErrSpawnFailed, executionError)
	}
	return values.Empty{}, nil
}

// commandText renders a segment value; vectors expand to space separated words.
func commandText(value values.Value) string {
	vector, isVector := value.(values.Vec)
	if !isVector {
		return values.Render(value)
	}
	words := make([]string, 0, len(vector))
	for _, item := range vector {
		words = append(words, commandText(item))
	}
	return strings.Join(words, commandSegmentSeparatorConstant)
}
