package taskrunner_test

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tyemirov/taskscript/internal/execution"
	"github.com/tyemirov/taskscript/pkg/taskrunner"
)

func TestBuildDependenciesDefaultsCollaborators(testInstance *testing.T) {
	output := &bytes.Buffer{}
	errorsOutput := &bytes.Buffer{}

	dependencies, buildError := taskrunner.BuildDependencies(
		taskrunner.DependenciesConfig{},
		taskrunner.DependenciesOptions{Output: output, Errors: errorsOutput, Shell: "/bin/sh", ShellFlag: "-c"},
	)
	require.NoError(testInstance, buildError)
	require.NotNil(testInstance, dependencies.Logger)
	require.NotNil(testInstance, dependencies.Spawner)
	require.NotNil(testInstance, dependencies.Functions)
	require.Same(testInstance, output, dependencies.Output)
	require.Same(testInstance, errorsOutput, dependencies.Errors)
	require.False(testInstance, dependencies.DisableSummary)
}

func TestBuildDependenciesUsesProvidedCollaborators(testInstance *testing.T) {
	logger := zap.NewNop()
	registry := execution.NewRegistry()

	dependencies, buildError := taskrunner.BuildDependencies(
		taskrunner.DependenciesConfig{
			LoggerProvider:               func() *zap.Logger { return logger },
			HumanReadableLoggingProvider: func() bool { return true },
			CommandRunner:                &recordingCommandRunner{},
			Functions:                    registry,
		},
		taskrunner.DependenciesOptions{DisableSummary: true, Output: &bytes.Buffer{}, Errors: &bytes.Buffer{}},
	)
	require.NoError(testInstance, buildError)
	require.Same(testInstance, logger, dependencies.Logger)
	require.Same(testInstance, registry, dependencies.Functions)
	require.True(testInstance, dependencies.DisableSummary)
}

func TestBuildDependenciesFallsBackToCommandWriters(testInstance *testing.T) {
	commandOutput := &bytes.Buffer{}
	commandErrors := &bytes.Buffer{}
	command := &cobra.Command{Use: "run"}
	command.SetOut(commandOutput)
	command.SetErr(commandErrors)

	dependencies, buildError := taskrunner.BuildDependencies(
		taskrunner.DependenciesConfig{LoggerProvider: func() *zap.Logger { return nil }},
		taskrunner.DependenciesOptions{Command: command},
	)
	require.NoError(testInstance, buildError)
	require.NotNil(testInstance, dependencies.Logger)
	require.Same(testInstance, commandOutput, dependencies.Output)
	require.Same(testInstance, commandErrors, dependencies.Errors)
}
