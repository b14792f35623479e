package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	runtimeerrors "github.com/tyemirov/taskscript/internal/errors"
	"github.com/tyemirov/taskscript/internal/utils"
	"github.com/tyemirov/taskscript/internal/values"
	"github.com/tyemirov/taskscript/pkg/taskrunner"
)

const (
	internalTestScriptConstant = `components:
  - name: app
    elements:
      - kind: task
        name: build
        params:
          - name: flavour
            type: str
        body:
          - kind: return
            value: built
`
)

type capturingExecutor struct {
	invocations []taskrunner.Invocation
}

func (executor *capturingExecutor) Run(_ context.Context, _ taskrunner.Program, invocation taskrunner.Invocation) (taskrunner.Outcome, error) {
	executor.invocations = append(executor.invocations, invocation)
	return taskrunner.Outcome{Component: invocation.Component, Task: invocation.Task, Result: values.String("stubbed")}, nil
}

func TestNormalizeInitializationScopeArguments(t *testing.T) {
	testCases := []struct {
		name         string
		input        []string
		expectedArgs []string
	}{
		{
			name:         "NoArguments",
			input:        nil,
			expectedArgs: nil,
		},
		{
			name:         "ImplicitLocalValue",
			input:        []string{"--init"},
			expectedArgs: []string{"--init=local"},
		},
		{
			name:         "ImplicitLocalWithFollowingFlag",
			input:        []string{"--init", "--force"},
			expectedArgs: []string{"--init=local", "--force"},
		},
		{
			name:         "ExplicitLocalValue",
			input:        []string{"--init", "local"},
			expectedArgs: []string{"--init", "local"},
		},
		{
			name:         "ExplicitUserValue",
			input:        []string{"--init=user"},
			expectedArgs: []string{"--init=user"},
		},
		{
			name:         "EmptyAssignmentDefaultsToLocal",
			input:        []string{"--init="},
			expectedArgs: []string{"--init=local"},
		},
		{
			name:         "RunArgumentsUntouched",
			input:        []string{"run", "app:build", "--summary=false"},
			expectedArgs: []string{"run", "app:build", "--summary=false"},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			require.Equal(t, testCase.expectedArgs, normalizeInitializationScopeArguments(testCase.input))
		})
	}
}

func TestApplicationCommandHierarchy(t *testing.T) {
	application := NewApplication()
	rootCommand := application.rootCommand

	for _, commandName := range []string{"run", "check", "list", "version"} {
		command, _, findError := rootCommand.Find([]string{commandName})
		require.NoError(t, findError)
		require.Equal(t, commandName, command.Name())
		require.Equal(t, applicationNameConstant, command.Parent().Name())
	}

	runCommand, _, _ := rootCommand.Find([]string{"run"})
	require.NotNil(t, runCommand.Flags().Lookup("summary"))
	require.NotNil(t, rootCommand.PersistentFlags().Lookup("script"))
	require.NotNil(t, rootCommand.PersistentFlags().Lookup("target"))

	_, _, unknownError := rootCommand.Find([]string{"deploy"})
	require.Error(t, unknownError)
	require.Contains(t, unknownError.Error(), "unknown command")
}

func TestVersionFlagPrintsAndExits(t *testing.T) {
	t.Setenv(configurationSearchPathEnvironmentVariableConstant, t.TempDir())

	application := NewApplication()
	application.versionResolver = func(context.Context) string { return "v9.9.9" }
	exitCodes := make([]int, 0, 1)
	application.exitFunction = func(code int) { exitCodes = append(exitCodes, code) }

	output := &bytes.Buffer{}
	application.SetOutputs(output, &bytes.Buffer{})
	application.rootCommand.SetArgs([]string{"--version"})
	require.NoError(t, application.rootCommand.Execute())

	require.True(t, strings.HasPrefix(output.String(), "taskscript version: v9.9.9\n"))
	require.Equal(t, []int{0}, exitCodes)
}

func TestVersionCommandPrintsResolvedVersion(t *testing.T) {
	t.Setenv(configurationSearchPathEnvironmentVariableConstant, t.TempDir())

	application := NewApplication()
	application.versionResolver = func(context.Context) string { return "v1.0.0" }

	output := &bytes.Buffer{}
	application.SetOutputs(output, &bytes.Buffer{})
	application.rootCommand.SetArgs([]string{"version"})
	require.NoError(t, application.rootCommand.Execute())

	require.Equal(t, "taskscript version: v1.0.0\n", output.String())
}

func TestInitializeConfigurationAttachesRuntimeSelection(t *testing.T) {
	configurationDirectory := t.TempDir()
	configurationContent := "runtime:\n  script: configured.yaml\n  working_directory: /configured\n"
	require.NoError(t, os.WriteFile(filepath.Join(configurationDirectory, configurationFileNameConstant), []byte(configurationContent), 0o600))
	t.Setenv(configurationSearchPathEnvironmentVariableConstant, configurationDirectory)

	application := NewApplication()
	command, _, findError := application.rootCommand.Find([]string{"run"})
	require.NoError(t, findError)
	require.NoError(t, application.rootCommand.PersistentFlags().Set("script", "flag.yaml"))

	command.SetContext(context.Background())
	require.NoError(t, application.initializeConfiguration(command))

	selection, found := application.commandContextAccessor.RuntimeSelection(command.Context())
	require.True(t, found)
	require.Equal(t, "flag.yaml", selection.ScriptPath)
	require.Equal(t, "/configured", selection.WorkingDirectory)

	rootSelection, rootFound := application.commandContextAccessor.RuntimeSelection(application.rootCommand.Context())
	require.True(t, rootFound)
	require.Equal(t, selection, rootSelection)
}

func TestRunCommandUsesInjectedExecutor(t *testing.T) {
	t.Setenv(configurationSearchPathEnvironmentVariableConstant, t.TempDir())
	scriptDirectory := t.TempDir()
	scriptPath := filepath.Join(scriptDirectory, "build.yaml")
	require.NoError(t, os.WriteFile(scriptPath, []byte(internalTestScriptConstant), 0o600))

	executor := &capturingExecutor{}
	application := NewApplication()
	application.executorFactory = func(taskrunner.Dependencies) taskrunner.Executor { return executor }

	output := &bytes.Buffer{}
	errorOutput := &bytes.Buffer{}
	application.SetOutputs(output, errorOutput)
	application.rootCommand.SetArgs([]string{"run", "--script", scriptPath, "app:build", "vanilla"})
	require.NoError(t, application.rootCommand.Execute())

	require.Len(t, executor.invocations, 1)
	require.Equal(t, "app", executor.invocations[0].Component)
	require.Equal(t, "build", executor.invocations[0].Task)
	require.Equal(t, []values.Value{values.String("vanilla")}, executor.invocations[0].Arguments)
	require.Equal(t, "stubbed\n", output.String())
	require.Contains(t, errorOutput.String(), "Summary: task=app:build status=ok result=stubbed")
}

func TestBuildRequestSplitsSelectorFromArguments(t *testing.T) {
	testCases := []struct {
		name             string
		target           string
		arguments        []string
		expectedSelector string
		expectedArgs     []string
	}{
		{
			name:             "Selector",
			arguments:        []string{"app:build", "one", "two"},
			expectedSelector: "app:build",
			expectedArgs:     []string{"one", "two"},
		},
		{
			name:             "ComponentAndTaskWords",
			arguments:        []string{"app", "build", "one"},
			expectedSelector: "app:build",
			expectedArgs:     []string{"one"},
		},
		{
			name:         "TargetTakesAllArguments",
			target:       "release",
			arguments:    []string{"one"},
			expectedArgs: []string{"one"},
		},
		{
			name: "NoArguments",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			application := NewApplication()
			command := &cobra.Command{Use: "run"}
			command.SetContext(application.commandContextAccessor.WithRuntimeSelection(context.Background(), runtimeSelectionWithTarget(testCase.target)))

			request := application.buildRequest(command, testCase.arguments)
			require.Equal(t, testCase.target, request.Target)
			require.Equal(t, testCase.expectedSelector, request.Selector)
			require.Equal(t, len(testCase.expectedArgs), len(request.Arguments))
			for index, expected := range testCase.expectedArgs {
				require.Equal(t, expected, request.Arguments[index])
			}
		})
	}
}

func runtimeSelectionWithTarget(target string) utils.RuntimeSelection {
	return utils.RuntimeSelection{ScriptPath: "build.yaml", Target: target}
}

func TestConfigurationScaffoldDestination(t *testing.T) {
	scaffold := configurationScaffold{
		workingDirectory: func() (string, error) { return "/work", nil },
		homeDirectory:    func() (string, error) { return "/home/tester", nil },
	}

	testCases := []struct {
		name             string
		scope            string
		expectedPath     string
		expectedErrorMsg string
	}{
		{name: "EmptyScopeIsLocal", scope: "", expectedPath: filepath.Join("/work", configurationFileNameConstant)},
		{name: "LocalScope", scope: " LOCAL ", expectedPath: filepath.Join("/work", configurationFileNameConstant)},
		{name: "UserScope", scope: "user", expectedPath: filepath.Join("/home/tester", userConfigurationDirectoryNameConstant, configurationFileNameConstant)},
		{name: "UnknownScope", scope: "global", expectedErrorMsg: "unsupported initialization scope \"global\""},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			destination, destinationError := scaffold.destination(testCase.scope)
			if len(testCase.expectedErrorMsg) > 0 {
				require.Error(t, destinationError)
				require.Contains(t, destinationError.Error(), testCase.expectedErrorMsg)
				return
			}
			require.NoError(t, destinationError)
			require.Equal(t, testCase.expectedPath, destination)
		})
	}
}

func TestConfigurationScaffoldWriteRejectsDirectoryTarget(t *testing.T) {
	targetPath := filepath.Join(t.TempDir(), configurationFileNameConstant)
	require.NoError(t, os.Mkdir(targetPath, 0o755))

	writeError := newConfigurationScaffold(true).write(targetPath, []byte("common: {}\n"))
	require.Error(t, writeError)
	require.Contains(t, writeError.Error(), "is a directory")
}

func TestClassifyFailureMarksInternalErrors(t *testing.T) {
	testCases := []struct {
		name           string
		failure        error
		expectInternal bool
	}{
		{
			name:           "StoreViolation",
			failure:        runtimeerrors.Wrap(runtimeerrors.OperationStore, "main.yaml:3:5", runtimeerrors.ErrNoOpenLoopsToBreak, nil),
			expectInternal: true,
		},
		{
			name:    "ScriptFailure",
			failure: runtimeerrors.WrapMessage(runtimeerrors.OperationEvaluate, "main.yaml:3:5", runtimeerrors.ErrVariableNotFound, "count"),
		},
		{
			name: "NoFailure",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			observerCore, observedLogs := observer.New(zap.DebugLevel)
			application := NewApplication()
			application.logger = zap.New(observerCore)

			classified := application.classifyFailure(testCase.failure)
			if testCase.failure == nil {
				require.NoError(t, classified)
				require.Zero(t, observedLogs.Len())
				return
			}
			require.ErrorIs(t, classified, testCase.failure)
			if !testCase.expectInternal {
				require.Equal(t, testCase.failure, classified)
				require.Zero(t, observedLogs.Len())
				return
			}
			require.True(t, strings.HasPrefix(classified.Error(), "internal error: "), classified.Error())
			entries := observedLogs.FilterMessage(internalErrorMessageConstant).All()
			require.Len(t, entries, 1)
			require.Equal(t, zap.ErrorLevel, entries[0].Level)
		})
	}
}
