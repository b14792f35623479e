package taskrunner

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tyemirov/taskscript/internal/execshell"
	"github.com/tyemirov/taskscript/internal/execution"
)

// Dependencies are the collaborators an Executor runs with.
type Dependencies struct {
	Logger         *zap.Logger
	Spawner        execution.Spawner
	Functions      *execution.Registry
	Output         io.Writer
	Errors         io.Writer
	DisableSummary bool
}

// DependenciesConfig captures providers required to build runtime dependencies.
type DependenciesConfig struct {
	LoggerProvider               func() *zap.Logger
	HumanReadableLoggingProvider func() bool
	CommandRunner                execshell.CommandRunner
	Functions                    *execution.Registry
}

// DependenciesOptions allows per-command overrides when resolving dependencies.
type DependenciesOptions struct {
	Command        *cobra.Command
	Output         io.Writer
	Errors         io.Writer
	Shell          string
	ShellFlag      string
	DisableSummary bool
}

// BuildDependencies resolves the logger, shell spawner, function registry and output
// writers. Spawned processes stream to the same writers the runtime prints to.
func BuildDependencies(config DependenciesConfig, options DependenciesOptions) (Dependencies, error) {
	logger := resolveLogger(config.LoggerProvider)
	humanReadable := false
	if config.HumanReadableLoggingProvider != nil {
		humanReadable = config.HumanReadableLoggingProvider()
	}

	outputWriter := resolveWriter(options.Output, options.Command, true)
	errorWriter := resolveWriter(options.Errors, options.Command, false)

	commandRunner := config.CommandRunner
	if commandRunner == nil {
		commandRunner = execshell.NewOSCommandRunner(
			execshell.WithShell(options.Shell, options.ShellFlag),
			execshell.WithOutput(outputWriter, errorWriter),
		)
	}
	spawner, spawnerError := execshell.NewShellExecutor(logger, commandRunner, humanReadable)
	if spawnerError != nil {
		return Dependencies{}, fmt.Errorf("taskrunner.dependencies.spawner: %w", spawnerError)
	}

	functions := config.Functions
	if functions == nil {
		functions = execution.NewRegistry()
	}

	return Dependencies{
		Logger:         logger,
		Spawner:        spawner,
		Functions:      functions,
		Output:         outputWriter,
		Errors:         errorWriter,
		DisableSummary: options.DisableSummary,
	}, nil
}

func resolveLogger(provider func() *zap.Logger) *zap.Logger {
	if provider == nil {
		return zap.NewNop()
	}
	logger := provider()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func resolveWriter(provided io.Writer, command *cobra.Command, useStdout bool) io.Writer {
	if provided != nil {
		return provided
	}
	if command != nil {
		if useStdout {
			if writer := command.OutOrStdout(); writer != nil && writer != io.Discard {
				return writer
			}
		} else {
			if writer := command.ErrOrStderr(); writer != nil && writer != io.Discard {
				return writer
			}
		}
	}
	if useStdout {
		return os.Stdout
	}
	return os.Stderr
}
