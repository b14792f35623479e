package execshell_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tyemirov/taskscript/internal/execshell"
)

const (
	testExecutionSuccessCaseNameConstant         = "success"
	testExecutionFailureCaseNameConstant         = "failure_exit_code"
	testExecutionRunnerErrorCaseNameConstant     = "runner_error"
	testExecutionCancelledCaseNameConstant       = "cancelled"
	testLoggerInitializationCaseNameConstant     = "logger_validation"
	testRunnerInitializationCaseNameConstant     = "runner_validation"
	testSuccessfulInitializationCaseNameConstant = "successful_initialization"
	testCommandLineConstant                      = "deploy prod"
	testWorkingDirectoryConstant                 = "."
	testStandardErrorOutputConstant              = "failure"
	testRunnerFailureMessageConstant             = "runner failure"
	testEnvironmentFileNameConstant              = ".env"
)

type recordingCommandRunner struct {
	executionResult  execshell.ExecutionResult
	executionError   error
	recordedCommands []execshell.ShellCommand
}

func (runner *recordingCommandRunner) Run(executionContext context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error) {
	runner.recordedCommands = append(runner.recordedCommands, command)
	return runner.executionResult, runner.executionError
}

func testCommand() execshell.ShellCommand {
	return execshell.ShellCommand{Line: testCommandLineConstant, Details: execshell.CommandDetails{WorkingDirectory: testWorkingDirectoryConstant}}
}

func TestShellExecutorInitializationValidation(testInstance *testing.T) {
	testCases := []struct {
		name          string
		logger        *zap.Logger
		runner        execshell.CommandRunner
		expectError   error
		expectSuccess bool
	}{
		{
			name:        testLoggerInitializationCaseNameConstant,
			logger:      nil,
			runner:      &recordingCommandRunner{},
			expectError: execshell.ErrLoggerNotConfigured,
		},
		{
			name:        testRunnerInitializationCaseNameConstant,
			logger:      zap.NewNop(),
			runner:      nil,
			expectError: execshell.ErrCommandRunnerNotConfigured,
		},
		{
			name:          testSuccessfulInitializationCaseNameConstant,
			logger:        zap.NewNop(),
			runner:        &recordingCommandRunner{},
			expectSuccess: true,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor, creationError := execshell.NewShellExecutor(testCase.logger, testCase.runner, false)
			if testCase.expectSuccess {
				require.NoError(testInstance, creationError)
				require.NotNil(testInstance, executor)
			} else {
				require.Error(testInstance, creationError)
				require.ErrorIs(testInstance, creationError, testCase.expectError)
			}
		})
	}
}

func TestShellExecutorLifecycle(testInstance *testing.T) {
	testCases := []struct {
		name            string
		runnerResult    execshell.ExecutionResult
		runnerError     error
		expectErrorType any
		expectCancelled bool
		expectedLevels  []zapcore.Level
		humanMessages   []string
		structuredTexts []string
	}{
		{
			name:            testExecutionSuccessCaseNameConstant,
			runnerResult:    execshell.ExecutionResult{StandardOutput: "ok"},
			expectedLevels:  []zapcore.Level{zap.InfoLevel, zap.InfoLevel},
			humanMessages:   []string{"Running deploy prod (in .)", "Completed deploy prod (in .)"},
			structuredTexts: []string{"command execution starting", "command execution completed"},
		},
		{
			name:            testExecutionFailureCaseNameConstant,
			runnerResult:    execshell.ExecutionResult{StandardError: testStandardErrorOutputConstant, ExitCode: 1},
			expectErrorType: execshell.CommandFailedError{},
			expectedLevels:  []zapcore.Level{zap.InfoLevel, zap.WarnLevel},
			humanMessages:   []string{"Running deploy prod (in .)", "deploy prod (in .) failed with exit code 1: failure"},
			structuredTexts: []string{"command execution starting", "command returned non-zero status"},
		},
		{
			name:            testExecutionRunnerErrorCaseNameConstant,
			runnerError:     errors.New(testRunnerFailureMessageConstant),
			expectErrorType: execshell.CommandExecutionError{},
			expectedLevels:  []zapcore.Level{zap.InfoLevel, zap.ErrorLevel},
			humanMessages:   []string{"Running deploy prod (in .)", "deploy prod (in .) failed: runner failure"},
			structuredTexts: []string{"command execution starting", "command execution error"},
		},
		{
			name:            testExecutionCancelledCaseNameConstant,
			runnerResult:    execshell.ExecutionResult{Cancelled: true, ExitCode: -1},
			expectCancelled: true,
			expectedLevels:  []zapcore.Level{zap.InfoLevel, zap.InfoLevel},
			humanMessages:   []string{"Running deploy prod (in .)", "Cancelled deploy prod (in .)"},
			structuredTexts: []string{"command execution starting", "command execution cancelled"},
		},
	}

	for testCaseIndex, testCase := range testCases {
		for _, humanReadable := range []bool{false, true} {
			testInstance.Run(fmt.Sprintf("%d_%s_human_%t", testCaseIndex, testCase.name, humanReadable), func(testInstance *testing.T) {
				observerCore, observedLogs := observer.New(zap.DebugLevel)
				recordingRunner := &recordingCommandRunner{
					executionResult: testCase.runnerResult,
					executionError:  testCase.runnerError,
				}

				shellExecutor, creationError := execshell.NewShellExecutor(zap.New(observerCore), recordingRunner, humanReadable)
				require.NoError(testInstance, creationError)

				executionResult, executionError := shellExecutor.Execute(context.Background(), testCommand())
				switch {
				case testCase.expectErrorType != nil:
					require.IsType(testInstance, testCase.expectErrorType, executionError)
				case testCase.expectCancelled:
					require.NoError(testInstance, executionError)
					require.True(testInstance, executionResult.Cancelled)
					require.Equal(testInstance, 0, executionResult.ExitCode)
				default:
					require.NoError(testInstance, executionError)
					require.Equal(testInstance, testCase.runnerResult.StandardOutput, executionResult.StandardOutput)
				}

				expectedMessages := testCase.structuredTexts
				if humanReadable {
					expectedMessages = testCase.humanMessages
				}
				capturedLogs := observedLogs.All()
				require.Len(testInstance, capturedLogs, len(expectedMessages))
				for logIndex, entry := range capturedLogs {
					require.Equal(testInstance, expectedMessages[logIndex], entry.Message)
					require.Equal(testInstance, testCase.expectedLevels[logIndex], entry.Level)
					if humanReadable {
						require.Empty(testInstance, entry.Context)
					} else {
						require.Equal(testInstance, testCommandLineConstant, entry.ContextMap()["command"])
					}
				}
			})
		}
	}
}

func TestShellExecutorSkipsRunnerWhenAlreadyCancelled(testInstance *testing.T) {
	recordingRunner := &recordingCommandRunner{}
	shellExecutor, creationError := execshell.NewShellExecutor(zap.NewNop(), recordingRunner, false)
	require.NoError(testInstance, creationError)

	cancelledContext, cancel := context.WithCancel(context.Background())
	cancel()

	executionResult, executionError := shellExecutor.Execute(cancelledContext, testCommand())
	require.NoError(testInstance, executionError)
	require.True(testInstance, executionResult.Cancelled)
	require.Empty(testInstance, recordingRunner.recordedCommands)
}

func TestShellExecutorRejectsEmptyCommandLine(testInstance *testing.T) {
	shellExecutor, creationError := execshell.NewShellExecutor(zap.NewNop(), &recordingCommandRunner{}, false)
	require.NoError(testInstance, creationError)

	_, executionError := shellExecutor.Execute(context.Background(), execshell.ShellCommand{Line: "  "})
	require.ErrorIs(testInstance, executionError, execshell.ErrCommandLineMissing)
}

func TestShellExecutorMergesEnvironmentFile(testInstance *testing.T) {
	workingDirectory := testInstance.TempDir()
	require.NoError(testInstance, os.WriteFile(filepath.Join(workingDirectory, testEnvironmentFileNameConstant), []byte("STAGE=dev\nREGION=eu\n"), 0o600))

	recordingRunner := &recordingCommandRunner{}
	shellExecutor, creationError := execshell.NewShellExecutor(zap.NewNop(), recordingRunner, false)
	require.NoError(testInstance, creationError)

	_, executionError := shellExecutor.Execute(context.Background(), execshell.ShellCommand{
		Line: "env",
		Details: execshell.CommandDetails{
			WorkingDirectory:     workingDirectory,
			EnvironmentFile:      testEnvironmentFileNameConstant,
			EnvironmentVariables: map[string]string{"STAGE": "prod"},
		},
	})
	require.NoError(testInstance, executionError)

	require.Len(testInstance, recordingRunner.recordedCommands, 1)
	environment := recordingRunner.recordedCommands[0].Details.EnvironmentVariables
	require.Equal(testInstance, "prod", environment["STAGE"])
	require.Equal(testInstance, "eu", environment["REGION"])
}

func TestShellExecutorReportsMissingEnvironmentFile(testInstance *testing.T) {
	recordingRunner := &recordingCommandRunner{}
	shellExecutor, creationError := execshell.NewShellExecutor(zap.NewNop(), recordingRunner, false)
	require.NoError(testInstance, creationError)

	_, executionError := shellExecutor.Execute(context.Background(), execshell.ShellCommand{
		Line:    "env",
		Details: execshell.CommandDetails{WorkingDirectory: testInstance.TempDir(), EnvironmentFile: "missing.env"},
	})
	require.IsType(testInstance, execshell.CommandExecutionError{}, executionError)
	require.Empty(testInstance, recordingRunner.recordedCommands)
}
