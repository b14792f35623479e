package execshell

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	loggerNotConfiguredMessageConstant        = "shell executor logger not configured"
	commandRunnerNotConfiguredMessageConstant = "shell executor command runner not configured"
	commandLineMissingMessageConstant         = "shell command line not provided"
	environmentFileErrorTemplateConstant      = "failed to read environment file %s: %w"
	commandStartMessageConstant               = "command execution starting"
	commandSuccessMessageConstant             = "command execution completed"
	commandFailureMessageConstant             = "command returned non-zero status"
	commandCancelledMessageConstant           = "command execution cancelled"
	commandRunnerErrorMessageConstant         = "command execution error"
	commandLineFieldNameConstant              = "command"
	workingDirectoryFieldNameConstant         = "working_directory"
	environmentFileFieldNameConstant          = "env_file"
	exitCodeFieldNameConstant                 = "exit_code"
	standardErrorFieldNameConstant            = "stderr"
	maximumDetailLinesConstant                = 3
)

// CommandDetails describes command invocation properties.
type CommandDetails struct {
	WorkingDirectory     string
	EnvironmentVariables map[string]string
	EnvironmentFile      string
	StandardInput        []byte
}

// ShellCommand represents one command line handed to the shell.
type ShellCommand struct {
	Line    string
	Details CommandDetails
}

// ExecutionResult captures observable command results.
type ExecutionResult struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
	Cancelled      bool
}

// CommandRunner executes shell commands.
type CommandRunner interface {
	Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error)
}

// ShellExecutor orchestrates running shell commands with logging.
type ShellExecutor struct {
	commandRunner        CommandRunner
	logger               *zap.Logger
	humanReadableLogging bool
	messageFormatter     CommandMessageFormatter
}

var (
	// ErrLoggerNotConfigured indicates the logger dependency was missing.
	ErrLoggerNotConfigured = errors.New(loggerNotConfiguredMessageConstant)
	// ErrCommandRunnerNotConfigured indicates the command runner dependency was missing.
	ErrCommandRunnerNotConfigured = errors.New(commandRunnerNotConfiguredMessageConstant)
	// ErrCommandLineMissing indicates the command line was empty.
	ErrCommandLineMissing = errors.New(commandLineMissingMessageConstant)
)

// CommandFailedError provides details about commands exiting with a non-zero code.
type CommandFailedError struct {
	Command ShellCommand
	Result  ExecutionResult
}

const commandFailureErrorMessageTemplateConstant = "command %q exited with code %d"

// Error describes the failure in a readable format.
func (commandError CommandFailedError) Error() string {
	baseMessage := fmt.Sprintf(commandFailureErrorMessageTemplateConstant, commandError.Command.Line, commandError.Result.ExitCode)
	if detail := summarizeOutput(commandError.Result); len(detail) > 0 {
		baseMessage = fmt.Sprintf("%s: %s", baseMessage, detail)
	}
	return baseMessage
}

// CommandExecutionError wraps unexpected execution failures from the runner.
type CommandExecutionError struct {
	Command ShellCommand
	Cause   error
}

const commandExecutionErrorMessageTemplateConstant = "command %q execution failed"

// Error describes the underlying runner failure.
func (executionError CommandExecutionError) Error() string {
	return fmt.Sprintf(commandExecutionErrorMessageTemplateConstant, executionError.Command.Line)
}

// Unwrap exposes the underlying error.
func (executionError CommandExecutionError) Unwrap() error {
	return executionError.Cause
}

// NewShellExecutor builds an executor for the provided runner and logger.
func NewShellExecutor(logger *zap.Logger, commandRunner CommandRunner, humanReadableLogging bool) (*ShellExecutor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if commandRunner == nil {
		return nil, ErrCommandRunnerNotConfigured
	}
	return &ShellExecutor{
		commandRunner:        commandRunner,
		logger:               logger,
		humanReadableLogging: humanReadableLogging,
		messageFormatter:     CommandMessageFormatter{},
	}, nil
}

// Execute runs the provided shell command and logs lifecycle events. A command
// interrupted through executionContext yields a Cancelled result and no error.
func (executor *ShellExecutor) Execute(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	if len(strings.TrimSpace(command.Line)) == 0 {
		return ExecutionResult{}, ErrCommandLineMissing
	}

	prepared, preparationError := executor.prepareCommand(command)
	if preparationError != nil {
		return ExecutionResult{}, CommandExecutionError{Command: command, Cause: preparationError}
	}
	command = prepared

	if executionContext.Err() != nil {
		executor.report(stageCancelled, command, ExecutionResult{}, nil)
		return ExecutionResult{Cancelled: true}, nil
	}

	executor.report(stageStarted, command, ExecutionResult{}, nil)
	executionResult, runnerError := executor.commandRunner.Run(executionContext, command)

	switch {
	case executionResult.Cancelled || executionContext.Err() != nil:
		executor.report(stageCancelled, command, executionResult, nil)
		return ExecutionResult{StandardOutput: executionResult.StandardOutput, StandardError: executionResult.StandardError, Cancelled: true}, nil
	case runnerError != nil:
		executor.report(stageRunnerFailed, command, executionResult, runnerError)
		return ExecutionResult{}, CommandExecutionError{Command: command, Cause: runnerError}
	case executionResult.ExitCode != 0:
		executor.report(stageExitedNonZero, command, executionResult, nil)
		return executionResult, CommandFailedError{Command: command, Result: executionResult}
	default:
		executor.report(stageCompleted, command, executionResult, nil)
		return executionResult, nil
	}
}

type lifecycleStage int

const (
	stageStarted lifecycleStage = iota
	stageCompleted
	stageCancelled
	stageExitedNonZero
	stageRunnerFailed
)

// report logs one lifecycle event, either as a sentence (console format) or as structured fields.
func (executor *ShellExecutor) report(stage lifecycleStage, command ShellCommand, result ExecutionResult, cause error) {
	lineField := zap.String(commandLineFieldNameConstant, command.Line)
	switch stage {
	case stageStarted:
		executor.emit(zap.InfoLevel, executor.messageFormatter.BuildStartedMessage(command), commandStartMessageConstant,
			lineField,
			zap.String(workingDirectoryFieldNameConstant, command.Details.WorkingDirectory),
			zap.String(environmentFileFieldNameConstant, command.Details.EnvironmentFile),
		)
	case stageCompleted:
		executor.emit(zap.InfoLevel, executor.messageFormatter.BuildSuccessMessage(command), commandSuccessMessageConstant,
			lineField, zap.Int(exitCodeFieldNameConstant, result.ExitCode))
	case stageCancelled:
		executor.emit(zap.InfoLevel, executor.messageFormatter.BuildCancelledMessage(command), commandCancelledMessageConstant, lineField)
	case stageExitedNonZero:
		executor.emit(zap.WarnLevel, executor.messageFormatter.BuildFailureMessage(command, result), commandFailureMessageConstant,
			lineField,
			zap.Int(exitCodeFieldNameConstant, result.ExitCode),
			zap.String(standardErrorFieldNameConstant, result.StandardError),
		)
	case stageRunnerFailed:
		executor.emit(zap.ErrorLevel, executor.messageFormatter.BuildExecutionFailureMessage(command, cause), commandRunnerErrorMessageConstant,
			lineField, zap.Error(cause))
	}
}

func (executor *ShellExecutor) emit(level zapcore.Level, humanMessage string, structuredMessage string, fields ...zap.Field) {
	if executor.humanReadableLogging {
		executor.logger.Log(level, humanMessage)
		return
	}
	executor.logger.Log(level, structuredMessage, fields...)
}

// prepareCommand merges the environment file beneath explicitly provided variables.
func (executor *ShellExecutor) prepareCommand(command ShellCommand) (ShellCommand, error) {
	environmentFile := strings.TrimSpace(command.Details.EnvironmentFile)
	if len(environmentFile) == 0 {
		return command, nil
	}
	if !filepath.IsAbs(environmentFile) && len(command.Details.WorkingDirectory) > 0 {
		environmentFile = filepath.Join(command.Details.WorkingDirectory, environmentFile)
	}
	fileVariables, readError := godotenv.Read(environmentFile)
	if readError != nil {
		return command, fmt.Errorf(environmentFileErrorTemplateConstant, environmentFile, readError)
	}
	merged := make(map[string]string, len(fileVariables)+len(command.Details.EnvironmentVariables))
	for key, value := range fileVariables {
		merged[key] = value
	}
	for key, value := range command.Details.EnvironmentVariables {
		merged[key] = value
	}
	command.Details.EnvironmentVariables = merged
	return command, nil
}

func summarizeOutput(result ExecutionResult) string {
	detail := strings.TrimSpace(result.StandardError)
	if len(detail) == 0 {
		detail = strings.TrimSpace(result.StandardOutput)
	}
	if len(detail) == 0 {
		return ""
	}
	lines := strings.Split(detail, "\n")
	if len(lines) > maximumDetailLinesConstant {
		lines = lines[:maximumDetailLinesConstant]
	}
	normalized := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		normalized = append(normalized, trimmed)
	}
	return strings.Join(normalized, " | ")
}
