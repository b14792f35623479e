package taskrunner

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tyemirov/taskscript/internal/execution"
	"github.com/tyemirov/taskscript/internal/values"
)

const (
	runStartedMessageConstant  = "task started"
	runFinishedMessageConstant = "task finished"
	runFailedMessageConstant   = "task failed"
	taskFieldConstant          = "task"
	argumentsFieldConstant     = "arguments"
	durationFieldConstant      = "duration"
	resultFieldConstant        = "result"
)

// Outcome records what a task invocation produced.
type Outcome struct {
	Component string
	Task      string
	Result    values.Value
	Duration  time.Duration
	Failed    bool
}

// Executor runs a resolved invocation of a linked program.
type Executor interface {
	Run(ctx context.Context, program Program, invocation Invocation) (Outcome, error)
}

// Factory constructs an Executor given runtime dependencies.
type Factory func(Dependencies) Executor

// Resolve returns either the provided factory result or the default evaluator runner,
// wrapped so a summary line is printed after every run.
func Resolve(factory Factory, dependencies Dependencies) Executor {
	var base Executor
	if factory != nil {
		base = factory(dependencies)
	}
	if base == nil {
		base = evaluatorRunner{dependencies: dependencies}
	}
	return summaryExecutor{
		delegate:     base,
		dependencies: dependencies,
	}
}

type evaluatorRunner struct {
	dependencies Dependencies
}

func (runner evaluatorRunner) Run(ctx context.Context, program Program, invocation Invocation) (Outcome, error) {
	logger := resolveLogger(func() *zap.Logger { return runner.dependencies.Logger })
	outcome := Outcome{Component: invocation.Component, Task: invocation.Task, Result: values.Empty{}}

	evaluator, evaluatorError := execution.NewEvaluator(program.Document, execution.Dependencies{
		Logger:        logger,
		Spawner:       runner.dependencies.Spawner,
		Functions:     runner.dependencies.Functions,
		Output:        runner.dependencies.Output,
		RootDirectory: program.RootDirectory,
	})
	if evaluatorError != nil {
		outcome.Failed = true
		return outcome, evaluatorError
	}

	taskName := invocation.Component + invocationSeparatorConstant + invocation.Task
	logger.Debug(runStartedMessageConstant, zap.String(taskFieldConstant, taskName), zap.Int(argumentsFieldConstant, len(invocation.Arguments)))

	startedAt := time.Now()
	result, runError := evaluator.Run(ctx, invocation.Component, invocation.Task, invocation.Arguments)
	outcome.Duration = time.Since(startedAt)
	if runError != nil {
		outcome.Failed = true
		logger.Debug(runFailedMessageConstant, zap.String(taskFieldConstant, taskName), zap.Duration(durationFieldConstant, outcome.Duration), zap.Error(runError))
		return outcome, runError
	}
	if result != nil {
		outcome.Result = result
	}
	logger.Debug(runFinishedMessageConstant, zap.String(taskFieldConstant, taskName), zap.Duration(durationFieldConstant, outcome.Duration), zap.String(resultFieldConstant, values.Render(outcome.Result)))
	return outcome, nil
}

type summaryExecutor struct {
	delegate     Executor
	dependencies Dependencies
}

func (executor summaryExecutor) Run(ctx context.Context, program Program, invocation Invocation) (Outcome, error) {
	outcome, err := executor.delegate.Run(ctx, program, invocation)
	executor.printSummary(outcome)
	return outcome, err
}

func (executor summaryExecutor) printSummary(outcome Outcome) {
	if executor.dependencies.DisableSummary {
		return
	}
	writer := executor.summaryWriter()
	if writer == nil {
		return
	}

	summary := RenderSummaryLine(outcome)
	if len(strings.TrimSpace(summary)) == 0 {
		return
	}
	fmt.Fprintln(writer, summary)
}

func (executor summaryExecutor) summaryWriter() io.Writer {
	if executor.dependencies.Errors != nil {
		return executor.dependencies.Errors
	}
	if executor.dependencies.Output != nil {
		return executor.dependencies.Output
	}
	return nil
}
