package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tyemirov/taskscript/internal/linker"
	"github.com/tyemirov/taskscript/internal/utils"
	flagutils "github.com/tyemirov/taskscript/internal/utils/flags"
	"github.com/tyemirov/taskscript/internal/values"
	"github.com/tyemirov/taskscript/pkg/taskrunner"
)

const (
	runCommandUseConstant              = "run [component:task | component task] [arguments...]"
	runCommandShortDescriptionConstant = "Run a task or a manifest target"
	runCommandLongDescriptionConstant  = "run links the script and invokes component:task with the given arguments, or the manifest target selected with --target (extra arguments are appended)."
	checkCommandUseConstant            = "check"
	checkCommandShortConstant          = "Load and link the script without running it"
	listCommandUseConstant             = "list"
	listCommandShortConstant           = "List component tasks and manifest targets"
	versionCommandUseConstant          = "version"
	versionCommandShortConstant        = "Print the application version"
	checkSuccessTemplateConstant       = "%s: %d components, %d tasks linked\n"
	checkIssueTemplateConstant         = "%s\n"
	listTaskTemplateConstant           = "%s:%s(%s)\n"
	listParameterTemplateConstant      = "%s: %s"
	listParameterSeparatorConstant     = ", "
	listTargetTemplateConstant         = "target %s -> %s:%s\n"
	runStartedMessageConstant          = "task run requested"
	logFieldSelectorConstant           = "selector"
	logFieldTargetConstant             = "target"
	logFieldScriptConstant             = "script"
	runResultTemplateConstant          = "%s\n"
	selectorSeparatorConstant          = ":"
)

func (application *Application) registerCommands(rootCommand *cobra.Command) {
	runCommand := &cobra.Command{
		Use:   runCommandUseConstant,
		Short: runCommandShortDescriptionConstant,
		Long:  runCommandLongDescriptionConstant,
		RunE:  application.runTask,
	}
	flagutils.BindExecutionFlags(
		runCommand,
		flagutils.ExecutionDefaults{Summary: true},
		flagutils.ExecutionFlagDefinitions{
			Summary: flagutils.ExecutionFlagDefinition{Name: flagutils.SummaryFlagName, Usage: flagutils.SummaryFlagUsage, Enabled: true},
		},
	)

	checkCommand := &cobra.Command{
		Use:   checkCommandUseConstant,
		Short: checkCommandShortConstant,
		Args:  cobra.NoArgs,
		RunE:  application.checkScript,
	}

	listCommand := &cobra.Command{
		Use:   listCommandUseConstant,
		Short: listCommandShortConstant,
		Args:  cobra.NoArgs,
		RunE:  application.listTasks,
	}

	versionCommand := &cobra.Command{
		Use:   versionCommandUseConstant,
		Short: versionCommandShortConstant,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			application.printVersion(command)
			return nil
		},
	}

	rootCommand.AddCommand(runCommand, checkCommand, listCommand, versionCommand)
}

func (application *Application) runtimeSelection(command *cobra.Command) utils.RuntimeSelection {
	if selection, found := flagutils.ResolveRuntimeSelection(command); found {
		return selection
	}
	return application.collectRuntimeSelection(command)
}

func (application *Application) buildRequest(command *cobra.Command, arguments []string) taskrunner.Request {
	selection := application.runtimeSelection(command)
	request := taskrunner.Request{
		ScriptPath:       selection.ScriptPath,
		ManifestPath:     selection.ManifestPath,
		WorkingDirectory: selection.WorkingDirectory,
		Target:           selection.Target,
	}
	if len(request.Target) > 0 {
		request.Arguments = arguments
		return request
	}
	switch {
	case len(arguments) == 0:
	case strings.Contains(arguments[0], selectorSeparatorConstant) || len(arguments) == 1:
		request.Selector = arguments[0]
		request.Arguments = arguments[1:]
	default:
		request.Selector = arguments[0] + selectorSeparatorConstant + arguments[1]
		request.Arguments = arguments[2:]
	}
	return request
}

func (application *Application) loadProgram(command *cobra.Command, arguments []string) (taskrunner.Program, taskrunner.Request, error) {
	request := application.buildRequest(command, arguments)
	program, loadError := taskrunner.Load(request, application.functions)
	return program, request, loadError
}

func (application *Application) runTask(command *cobra.Command, arguments []string) error {
	program, request, loadError := application.loadProgram(command, arguments)
	if loadError != nil {
		application.reportLinkIssues(command.ErrOrStderr(), loadError)
		return loadError
	}

	invocation, invocationError := program.Invocation(request)
	if invocationError != nil {
		return invocationError
	}

	summaryEnabled := true
	if flagValue, flagChanged, flagError := flagutils.BoolFlag(command, flagutils.SummaryFlagName); flagError == nil && flagChanged {
		summaryEnabled = flagValue
	}

	outputWriter := utils.NewFlushingWriter(command.OutOrStdout())
	dependencies, dependenciesError := taskrunner.BuildDependencies(
		taskrunner.DependenciesConfig{
			LoggerProvider:               func() *zap.Logger { return application.logger },
			HumanReadableLoggingProvider: application.humanReadableLoggingEnabled,
			Functions:                    application.functions,
		},
		taskrunner.DependenciesOptions{
			Command:        command,
			Output:         outputWriter,
			Errors:         utils.NewFlushingWriter(command.ErrOrStderr()),
			Shell:          application.configuration.Runtime.Shell,
			ShellFlag:      application.configuration.Runtime.ShellFlag,
			DisableSummary: !summaryEnabled,
		},
	)
	if dependenciesError != nil {
		return dependenciesError
	}

	application.logger.Debug(
		runStartedMessageConstant,
		zap.String(logFieldSelectorConstant, request.Selector),
		zap.String(logFieldTargetConstant, request.Target),
		zap.String(logFieldScriptConstant, program.Document.Source),
	)

	outcome, runError := taskrunner.Resolve(application.executorFactory, dependencies).Run(command.Context(), program, invocation)
	if runError != nil {
		return runError
	}

	if rendered := values.Render(outcome.Result); len(rendered) > 0 {
		fmt.Fprintf(outputWriter, runResultTemplateConstant, rendered)
	}
	return nil
}

func (application *Application) checkScript(command *cobra.Command, arguments []string) error {
	program, _, loadError := application.loadProgram(command, arguments)
	if loadError != nil {
		application.reportLinkIssues(command.ErrOrStderr(), loadError)
		return loadError
	}

	taskCount := 0
	for _, component := range program.Document.Components {
		taskCount += len(component.Tasks())
	}
	fmt.Fprintf(command.OutOrStdout(), checkSuccessTemplateConstant, program.Document.Source, len(program.Document.Components), taskCount)
	return nil
}

func (application *Application) listTasks(command *cobra.Command, arguments []string) error {
	program, _, loadError := application.loadProgram(command, arguments)
	if loadError != nil {
		application.reportLinkIssues(command.ErrOrStderr(), loadError)
		return loadError
	}

	writer := command.OutOrStdout()
	for _, component := range program.Document.Components {
		for _, task := range component.Tasks() {
			parameters := make([]string, 0, len(task.Parameters))
			for _, parameter := range task.Parameters {
				parameters = append(parameters, fmt.Sprintf(listParameterTemplateConstant, parameter.Name, parameter.Type.String()))
			}
			fmt.Fprintf(writer, listTaskTemplateConstant, component.Name, task.Name, strings.Join(parameters, listParameterSeparatorConstant))
		}
	}

	if program.Manifest == nil {
		return nil
	}
	for _, targetName := range program.Manifest.TargetNames() {
		target, _ := program.Manifest.Target(targetName)
		fmt.Fprintf(writer, listTargetTemplateConstant, target.Name, target.Component, target.Task)
	}
	return nil
}

func (application *Application) reportLinkIssues(writer io.Writer, loadError error) {
	var linkError *linker.LinkError
	if !errors.As(loadError, &linkError) {
		return
	}
	for _, issue := range linkError.Issues {
		fmt.Fprintf(writer, checkIssueTemplateConstant, issue.Error())
	}
}
