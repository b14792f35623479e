package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	runtimeerrors "github.com/tyemirov/taskscript/internal/errors"
	"github.com/tyemirov/taskscript/internal/execshell"
	"github.com/tyemirov/taskscript/internal/execution"
	"github.com/tyemirov/taskscript/internal/utils"
	flagutils "github.com/tyemirov/taskscript/internal/utils/flags"
	"github.com/tyemirov/taskscript/internal/version"
	"github.com/tyemirov/taskscript/pkg/taskrunner"
)

const (
	applicationNameConstant                            = "taskscript"
	applicationShortDescriptionConstant                = "Run taskscript documents"
	applicationLongDescriptionConstant                 = "taskscript loads a syntax tree document, links it, and runs component tasks with shell commands, gatekeepers and loops."
	configFileFlagNameConstant                         = "config"
	configFileFlagUsageConstant                        = "Path to a configuration file (YAML or JSON) used instead of the search path."
	logLevelFlagNameConstant                           = "log-level"
	logLevelFlagUsageConstant                          = "Override the configured log level (debug, info, warn, error)."
	logFormatFlagNameConstant                          = "log-format"
	logFormatFlagUsageConstant                         = "Override the configured log format (structured or console)."
	initFlagNameConstant                               = "init"
	initFlagUsageConstant                              = "Write the default configuration to LOCAL (./config.yaml) or user ($HOME/.taskscript/config.yaml) and exit."
	initFlagDefaultConstant                            = scaffoldScopeLocalConstant
	forceFlagNameConstant                              = "force"
	forceFlagUsageConstant                             = "Replace an existing configuration file when used with --init."
	versionFlagNameConstant                            = "version"
	versionFlagUsageConstant                           = "Print the application version and exit"
	commonLogLevelConfigKeyConstant                    = "common.log_level"
	commonLogFormatConfigKeyConstant                   = "common.log_format"
	runtimeScriptConfigKeyConstant                     = "runtime.script"
	runtimeManifestConfigKeyConstant                   = "runtime.manifest"
	runtimeWorkingDirectoryConfigKeyConstant           = "runtime.working_directory"
	runtimeShellConfigKeyConstant                      = "runtime.shell"
	runtimeShellFlagConfigKeyConstant                  = "runtime.shell_flag"
	defaultShellConstant                               = "/bin/sh"
	defaultShellFlagConstant                           = "-c"
	environmentPrefixConstant                          = "TASKSCRIPT"
	configurationNameConstant                          = "config"
	configurationTypeConstant                          = "yaml"
	configurationFileNameConstant                      = configurationNameConstant + "." + configurationTypeConstant
	configurationSearchPathEnvironmentVariableConstant = "TASKSCRIPT_CONFIG_SEARCH_PATH"
	xdgConfigHomeEnvironmentVariableConstant           = "XDG_CONFIG_HOME"
	userConfigurationDirectoryNameConstant             = ".taskscript"
	xdgConfigurationDirectoryNameConstant              = "taskscript"
	workingDirectorySearchPathConstant                 = "."
	configurationInitializedMessageConstant            = "configuration initialized"
	configurationInitializedConsoleTemplateConstant    = "%s | log level=%s | log format=%s | config file=%s"
	configurationWrittenMessageConstant                = "configuration file created"
	logFieldLogLevelConstant                           = "log_level"
	logFieldLogFormatConstant                          = "log_format"
	logFieldConfigFileConstant                         = "config_file"
	configurationLoadErrorTemplateConstant             = "unable to load configuration: %w"
	loggerCreationErrorTemplateConstant                = "unable to create logger: %w"
	loggerSyncErrorTemplateConstant                    = "unable to flush logger: %w"
	versionOutputTemplateConstant                      = "taskscript version: %s\n"
	internalErrorMessageConstant                       = "internal runtime error"
	internalErrorTemplateConstant                      = "internal error: %w"
)

// syncErrorsIgnored are returned by Sync on terminals and pipes and carry no lost output.
var syncErrorsIgnored = []error{syscall.ENOTSUP, syscall.EINVAL, syscall.EBADF, syscall.ENOTTY}

type loggerOutputsFactory interface {
	CreateLoggerOutputs(utils.LogLevel, utils.LogFormat) (utils.LoggerOutputs, error)
}

// Application wires the Cobra root command, configuration loader, structured logger and task runtime.
type Application struct {
	rootCommand            *cobra.Command
	configurationLoader    *utils.ConfigurationLoader
	loggerFactory          loggerOutputsFactory
	logger                 *zap.Logger
	consoleLogger          *zap.Logger
	configuration          ApplicationConfiguration
	configurationMetadata  utils.LoadedConfiguration
	configurationFilePath  string
	commandContextAccessor utils.CommandContextAccessor
	initializationScope    string
	initializationForced   bool
	versionFlag            bool
	versionResolver        func(context.Context) string
	exitFunction           func(int)
	functions              *execution.Registry
	executorFactory        taskrunner.Factory
}

// NewApplication assembles a fully wired CLI application instance.
func NewApplication() *Application {
	application := &Application{
		loggerFactory:          utils.NewLoggerFactory(),
		logger:                 zap.NewNop(),
		consoleLogger:          zap.NewNop(),
		commandContextAccessor: utils.NewCommandContextAccessor(),
		functions:              execution.NewRegistry(),
		exitFunction:           os.Exit,
	}
	application.versionResolver = application.resolveVersion

	application.configurationLoader = utils.NewConfigurationLoader(
		configurationNameConstant,
		configurationTypeConstant,
		environmentPrefixConstant,
		configurationSearchPaths(),
	)
	application.configurationLoader.SetEmbeddedConfiguration(EmbeddedDefaultConfiguration())

	rootCommand := &cobra.Command{
		Use:               applicationNameConstant,
		Short:             applicationShortDescriptionConstant,
		Long:              applicationLongDescriptionConstant,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: application.prepareCommand,
		RunE:              application.runRootCommand,
	}
	rootCommand.SetContext(context.Background())

	persistentFlags := rootCommand.PersistentFlags()
	persistentFlags.StringVar(&application.configurationFilePath, configFileFlagNameConstant, "", configFileFlagUsageConstant)
	persistentFlags.String(logLevelFlagNameConstant, "", logLevelFlagUsageConstant)
	persistentFlags.String(logFormatFlagNameConstant, "", logFormatFlagUsageConstant)
	persistentFlags.StringVar(&application.initializationScope, initFlagNameConstant, initFlagDefaultConstant, initFlagUsageConstant)
	persistentFlags.BoolVar(&application.initializationForced, forceFlagNameConstant, false, forceFlagUsageConstant)
	rootCommand.Flags().BoolVar(&application.versionFlag, versionFlagNameConstant, false, versionFlagUsageConstant)

	flagutils.BindRuntimeFlags(rootCommand, flagutils.RuntimeFlagValues{}, flagutils.DefaultRuntimeFlagDefinitions())

	application.registerCommands(rootCommand)
	application.rootCommand = rootCommand
	return application
}

// SetOutputs redirects command output; tests use it to capture results.
func (application *Application) SetOutputs(output io.Writer, errorOutput io.Writer) {
	application.rootCommand.SetOut(output)
	application.rootCommand.SetErr(errorOutput)
}

// Execute runs the command hierarchy with os.Args. SIGINT and SIGTERM cancel the running task.
func (application *Application) Execute() error {
	application.rootCommand.SetArgs(normalizeInitializationScopeArguments(os.Args[1:]))

	executionContext, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	executionError := application.classifyFailure(application.rootCommand.ExecuteContext(executionContext))
	if syncError := application.flushLoggers(); syncError != nil {
		return fmt.Errorf(loggerSyncErrorTemplateConstant, syncError)
	}
	return executionError
}

// classifyFailure marks engine invariant breaks so they are not mistaken for script errors.
func (application *Application) classifyFailure(executionError error) error {
	if !runtimeerrors.IsInternal(executionError) {
		return executionError
	}
	application.logger.Error(internalErrorMessageConstant, zap.Error(executionError))
	return fmt.Errorf(internalErrorTemplateConstant, executionError)
}

// Execute builds a fresh application instance and executes the root command hierarchy.
func Execute() error {
	return NewApplication().Execute()
}

// normalizeInitializationScopeArguments gives a bare --init the local scope so the
// following token is never consumed as its value.
func normalizeInitializationScopeArguments(arguments []string) []string {
	if len(arguments) == 0 {
		return nil
	}

	initFlag := "--" + initFlagNameConstant
	implicitInit := initFlag + "=" + initFlagDefaultConstant
	normalized := make([]string, 0, len(arguments))
	for index, argument := range arguments {
		switch {
		case strings.HasPrefix(argument, initFlag+"=") && len(strings.TrimSpace(strings.TrimPrefix(argument, initFlag+"="))) == 0:
			normalized = append(normalized, implicitInit)
		case argument == initFlag && (index+1 == len(arguments) || strings.HasPrefix(arguments[index+1], "-")):
			normalized = append(normalized, implicitInit)
		default:
			normalized = append(normalized, argument)
		}
	}
	return normalized
}

// configurationSearchPaths lists the working directory, then $XDG_CONFIG_HOME/taskscript and
// $HOME/.taskscript, unless TASKSCRIPT_CONFIG_SEARCH_PATH replaces the list.
func configurationSearchPaths() []string {
	if override := strings.TrimSpace(os.Getenv(configurationSearchPathEnvironmentVariableConstant)); len(override) > 0 {
		paths := make([]string, 0)
		for _, candidate := range filepath.SplitList(override) {
			if trimmed := strings.TrimSpace(candidate); len(trimmed) > 0 {
				paths = append(paths, trimmed)
			}
		}
		if len(paths) > 0 {
			return paths
		}
		return []string{workingDirectorySearchPathConstant}
	}

	paths := []string{workingDirectorySearchPathConstant}
	appendUnique := func(candidate string) {
		for _, existing := range paths {
			if existing == candidate {
				return
			}
		}
		paths = append(paths, candidate)
	}
	if xdgHome := strings.TrimSpace(os.Getenv(xdgConfigHomeEnvironmentVariableConstant)); len(xdgHome) > 0 {
		appendUnique(filepath.Join(xdgHome, xdgConfigurationDirectoryNameConstant))
	}
	if homeDirectory, homeError := os.UserHomeDir(); homeError == nil && len(strings.TrimSpace(homeDirectory)) > 0 {
		appendUnique(filepath.Join(homeDirectory, userConfigurationDirectoryNameConstant))
	}
	return paths
}

func (application *Application) prepareCommand(command *cobra.Command, _ []string) error {
	if initializationError := application.initializeConfiguration(command); initializationError != nil {
		return initializationError
	}

	versionRequested := application.versionFlag
	if flagValue, flagChanged, flagError := flagutils.BoolFlag(command, versionFlagNameConstant); flagError == nil && flagChanged {
		versionRequested = flagValue
	}
	if versionRequested {
		application.printVersion(command)
		application.exitFunction(0)
	}
	return nil
}

func (application *Application) initializeConfiguration(command *cobra.Command) error {
	defaultValues := map[string]any{
		commonLogLevelConfigKeyConstant:          string(utils.LogLevelError),
		commonLogFormatConfigKeyConstant:         string(utils.LogFormatStructured),
		runtimeScriptConfigKeyConstant:           "",
		runtimeManifestConfigKeyConstant:         "",
		runtimeWorkingDirectoryConfigKeyConstant: "",
		runtimeShellConfigKeyConstant:            defaultShellConstant,
		runtimeShellFlagConfigKeyConstant:        defaultShellFlagConstant,
	}

	loadedConfiguration, loadError := application.configurationLoader.LoadConfiguration(application.configurationFilePath, defaultValues, &application.configuration)
	if loadError != nil {
		return fmt.Errorf(configurationLoadErrorTemplateConstant, loadError)
	}
	application.configurationMetadata = loadedConfiguration
	application.configuration.Runtime = application.configuration.Runtime.normalized()

	if logLevel, changed, flagError := flagutils.StringFlag(command, logLevelFlagNameConstant); flagError == nil && changed {
		application.configuration.Common.LogLevel = logLevel
	}
	if logFormat, changed, flagError := flagutils.StringFlag(command, logFormatFlagNameConstant); flagError == nil && changed {
		application.configuration.Common.LogFormat = logFormat
	}

	loggerOutputs, loggerError := application.loggerFactory.CreateLoggerOutputs(
		utils.LogLevel(application.configuration.Common.LogLevel),
		utils.LogFormat(application.configuration.Common.LogFormat),
	)
	if loggerError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, loggerError)
	}
	application.logger = nopIfNil(loggerOutputs.DiagnosticLogger)
	application.consoleLogger = nopIfNil(loggerOutputs.ConsoleLogger)

	application.logConfigurationInitialization()

	if command == nil {
		return nil
	}
	updatedContext := application.commandContextAccessor.WithConfigurationFilePath(command.Context(), application.configurationMetadata.ConfigFileUsed)
	updatedContext = application.commandContextAccessor.WithRuntimeSelection(updatedContext, application.collectRuntimeSelection(command))
	updatedContext = application.commandContextAccessor.WithLogLevel(updatedContext, application.configuration.Common.LogLevel)
	command.SetContext(updatedContext)
	if rootCommand := command.Root(); rootCommand != nil {
		rootCommand.SetContext(updatedContext)
	}
	return nil
}

func nopIfNil(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// collectRuntimeSelection layers explicitly set runtime flags over the configured runtime section.
func (application *Application) collectRuntimeSelection(command *cobra.Command) utils.RuntimeSelection {
	selection := utils.RuntimeSelection{
		ScriptPath:       application.configuration.Runtime.Script,
		ManifestPath:     application.configuration.Runtime.Manifest,
		WorkingDirectory: application.configuration.Runtime.WorkingDirectory,
	}

	flagSelection := flagutils.CollectRuntimeSelection(command)
	overlay := func(target *string, value string) {
		if len(value) > 0 {
			*target = value
		}
	}
	overlay(&selection.ScriptPath, flagSelection.ScriptPath)
	overlay(&selection.ManifestPath, flagSelection.ManifestPath)
	overlay(&selection.Target, flagSelection.Target)
	overlay(&selection.WorkingDirectory, flagSelection.WorkingDirectory)
	return selection
}

// InitializeForCommand prepares application state for the provided command name without executing command logic.
func (application *Application) InitializeForCommand(commandUse string) error {
	command := &cobra.Command{Use: commandUse}
	command.SetContext(context.Background())
	return application.initializeConfiguration(command)
}

// ConfigFileUsed returns the configuration file path used during initialization.
func (application *Application) ConfigFileUsed() string {
	return application.configurationMetadata.ConfigFileUsed
}

// Configuration returns the effective configuration after initialization.
func (application *Application) Configuration() ApplicationConfiguration {
	return application.configuration
}

func (application *Application) humanReadableLoggingEnabled() bool {
	return strings.EqualFold(strings.TrimSpace(application.configuration.Common.LogFormat), string(utils.LogFormatConsole))
}

func (application *Application) logConfigurationInitialization() {
	if !strings.EqualFold(strings.TrimSpace(application.configuration.Common.LogLevel), string(utils.LogLevelDebug)) {
		return
	}

	common := application.configuration.Common
	configFile := application.configurationMetadata.ConfigFileUsed
	if application.humanReadableLoggingEnabled() {
		application.consoleLogger.Debug(fmt.Sprintf(configurationInitializedConsoleTemplateConstant, configurationInitializedMessageConstant, common.LogLevel, common.LogFormat, configFile))
		return
	}
	application.logger.Debug(
		configurationInitializedMessageConstant,
		zap.String(logFieldLogLevelConstant, common.LogLevel),
		zap.String(logFieldLogFormatConstant, common.LogFormat),
		zap.String(logFieldConfigFileConstant, configFile),
	)
}

// resolveVersion describes the checkout through the same shell bridge tasks use.
func (application *Application) resolveVersion(executionContext context.Context) string {
	dependencies := version.Dependencies{}
	if shellExecutor, executorError := execshell.NewShellExecutor(application.logger, execshell.NewOSCommandRunner(), application.humanReadableLoggingEnabled()); executorError == nil {
		dependencies.Spawner = shellExecutor
	}
	return strings.TrimSpace(version.Detect(executionContext, dependencies))
}

func (application *Application) printVersion(command *cobra.Command) {
	fmt.Fprintf(command.OutOrStdout(), versionOutputTemplateConstant, application.versionResolver(command.Context()))
}

func (application *Application) runRootCommand(command *cobra.Command, _ []string) error {
	if _, changed, flagError := flagutils.StringFlag(command, initFlagNameConstant); flagError != nil || !changed {
		return command.Help()
	}

	scaffold := newConfigurationScaffold(application.initializationForced)
	destination, destinationError := scaffold.destination(application.initializationScope)
	if destinationError != nil {
		return destinationError
	}
	content, _ := EmbeddedDefaultConfiguration()
	if writeError := scaffold.write(destination, content); writeError != nil {
		return writeError
	}
	application.logger.Info(configurationWrittenMessageConstant, zap.String(logFieldConfigFileConstant, destination))
	return nil
}

func (application *Application) flushLoggers() error {
	for _, logger := range []*zap.Logger{application.logger, application.consoleLogger} {
		if logger == nil {
			continue
		}
		if syncError := logger.Sync(); syncError != nil && !isIgnorableSyncError(syncError) {
			return syncError
		}
	}
	return nil
}

func isIgnorableSyncError(syncError error) bool {
	for _, ignored := range syncErrorsIgnored {
		if errors.Is(syncError, ignored) {
			return true
		}
	}
	return false
}
