package execshell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"time"
)

const (
	defaultShellConstant            = "sh"
	defaultShellFlagConstant        = "-c"
	environmentAssignmentConstant   = "="
	processTerminationGraceConstant = 2 * time.Second
)

// OSCommandRunner runs command lines through the system shell.
type OSCommandRunner struct {
	shell          string
	shellFlag      string
	standardOutput io.Writer
	standardError  io.Writer
}

// OSCommandRunnerOption customizes an OSCommandRunner.
type OSCommandRunnerOption func(*OSCommandRunner)

// WithShell overrides the shell executable and the flag preceding the command line.
func WithShell(shell string, shellFlag string) OSCommandRunnerOption {
	return func(runner *OSCommandRunner) {
		if len(shell) > 0 {
			runner.shell = shell
		}
		if len(shellFlag) > 0 {
			runner.shellFlag = shellFlag
		}
	}
}

// WithOutput streams command output to the provided writers in addition to capturing it.
func WithOutput(standardOutput io.Writer, standardError io.Writer) OSCommandRunnerOption {
	return func(runner *OSCommandRunner) {
		runner.standardOutput = standardOutput
		runner.standardError = standardError
	}
}

// NewOSCommandRunner builds a runner invoking `sh -c <line>` by default.
func NewOSCommandRunner(options ...OSCommandRunnerOption) *OSCommandRunner {
	runner := &OSCommandRunner{shell: defaultShellConstant, shellFlag: defaultShellFlagConstant}
	for _, option := range options {
		option(runner)
	}
	return runner
}

// Run executes the command, terminating it when executionContext is cancelled.
func (runner *OSCommandRunner) Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	process := exec.CommandContext(executionContext, runner.shell, runner.shellFlag, command.Line)
	process.Dir = command.Details.WorkingDirectory
	process.WaitDelay = processTerminationGraceConstant
	if len(command.Details.EnvironmentVariables) > 0 {
		environment := os.Environ()
		for key, value := range command.Details.EnvironmentVariables {
			environment = append(environment, key+environmentAssignmentConstant+value)
		}
		process.Env = environment
	}
	if len(command.Details.StandardInput) > 0 {
		process.Stdin = bytes.NewReader(command.Details.StandardInput)
	}

	var standardOutput, standardError bytes.Buffer
	process.Stdout = teeWriter(&standardOutput, runner.standardOutput)
	process.Stderr = teeWriter(&standardError, runner.standardError)

	runError := process.Run()
	result := ExecutionResult{StandardOutput: standardOutput.String(), StandardError: standardError.String()}
	if executionContext.Err() != nil {
		result.Cancelled = true
		return result, nil
	}
	if runError == nil {
		return result, nil
	}
	var exitError *exec.ExitError
	if errors.As(runError, &exitError) {
		result.ExitCode = exitError.ExitCode()
		return result, nil
	}
	return result, runError
}

func teeWriter(capture io.Writer, passthrough io.Writer) io.Writer {
	if passthrough == nil {
		return capture
	}
	return io.MultiWriter(capture, passthrough)
}
