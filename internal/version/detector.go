package version

import (
	"context"
	"os"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"

	"github.com/tyemirov/taskscript/internal/execshell"
)

const (
	unknownVersionFallbackConstant            = "unknown"
	buildInfoDevelVersionValueConstant        = "devel"
	repositoryRootCommandConstant             = "git rev-parse --show-toplevel"
	exactTagCommandConstant                   = "git describe --tags --exact-match"
	longDescriptionCommandConstant            = "git describe --tags --long --dirty"
	gitTerminalPromptEnvironmentNameConstant  = "GIT_TERMINAL_PROMPT"
	gitTerminalPromptEnvironmentValueConstant = "0"
)

// BuildVersion is set through -ldflags at release time and wins over every other source.
var BuildVersion string

// BuildInfoProvider exposes runtime build metadata.
type BuildInfoProvider interface {
	Read() (*debug.BuildInfo, bool)
}

// CommandSpawner runs the shell lines used to describe the source checkout.
type CommandSpawner interface {
	Execute(executionContext context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error)
}

// Detector resolves application version strings.
type Detector struct {
	buildInfoProvider BuildInfoProvider
	spawner           CommandSpawner
	workingDirectory  string
}

// Dependencies describes the collaborators required for version detection.
type Dependencies struct {
	BuildInfoProvider BuildInfoProvider
	Spawner           CommandSpawner
	WorkingDirectory  string
}

// NewDetector fills missing collaborators with the process build info, an OS shell
// spawner and the current directory.
func NewDetector(dependencies Dependencies) (*Detector, error) {
	detector := &Detector{
		buildInfoProvider: dependencies.BuildInfoProvider,
		spawner:           dependencies.Spawner,
		workingDirectory:  strings.TrimSpace(dependencies.WorkingDirectory),
	}
	if detector.buildInfoProvider == nil {
		detector.buildInfoProvider = runtimeBuildInfoProvider{}
	}
	if detector.spawner == nil {
		shellExecutor, creationError := execshell.NewShellExecutor(zap.NewNop(), execshell.NewOSCommandRunner(), false)
		if creationError != nil {
			return nil, creationError
		}
		detector.spawner = shellExecutor
	}
	if len(detector.workingDirectory) == 0 {
		if currentDirectory, directoryError := os.Getwd(); directoryError == nil {
			detector.workingDirectory = currentDirectory
		}
	}
	return detector, nil
}

// Detect resolves the application version using the supplied dependencies.
func Detect(executionContext context.Context, dependencies Dependencies) string {
	detector, detectorError := NewDetector(dependencies)
	if detectorError != nil {
		return unknownVersionFallbackConstant
	}
	return detector.Version(executionContext)
}

// Version walks the version sources in priority order: the -ldflags value, module
// build info, an exact tag of the checkout, then a long checkout description.
func (detector *Detector) Version(executionContext context.Context) string {
	if detector == nil {
		return unknownVersionFallbackConstant
	}

	sources := []func() string{
		func() string { return strings.TrimSpace(BuildVersion) },
		detector.moduleVersion,
		func() string { return detector.checkoutVersion(executionContext) },
	}
	for _, source := range sources {
		if resolved := source(); len(resolved) > 0 {
			return resolved
		}
	}
	return unknownVersionFallbackConstant
}

func (detector *Detector) moduleVersion() string {
	if detector.buildInfoProvider == nil {
		return ""
	}
	buildInfo, available := detector.buildInfoProvider.Read()
	if !available || buildInfo == nil {
		return ""
	}
	moduleVersion := strings.Trim(strings.TrimSpace(buildInfo.Main.Version), "()")
	if strings.EqualFold(moduleVersion, buildInfoDevelVersionValueConstant) {
		return ""
	}
	return moduleVersion
}

// checkoutVersion asks git from the top of the checkout that holds the working directory.
func (detector *Detector) checkoutVersion(executionContext context.Context) string {
	checkoutRoot := ""
	if len(detector.workingDirectory) > 0 {
		checkoutRoot = detector.gitOutput(executionContext, detector.workingDirectory, repositoryRootCommandConstant)
		if len(checkoutRoot) == 0 {
			checkoutRoot = detector.workingDirectory
		}
	}
	for _, describeLine := range []string{exactTagCommandConstant, longDescriptionCommandConstant} {
		if described := detector.gitOutput(executionContext, checkoutRoot, describeLine); len(described) > 0 {
			return described
		}
	}
	return ""
}

func (detector *Detector) gitOutput(executionContext context.Context, workingDirectory string, line string) string {
	if detector.spawner == nil {
		return ""
	}
	executionResult, executionError := detector.spawner.Execute(executionContext, execshell.ShellCommand{
		Line: line,
		Details: execshell.CommandDetails{
			WorkingDirectory:     workingDirectory,
			EnvironmentVariables: map[string]string{gitTerminalPromptEnvironmentNameConstant: gitTerminalPromptEnvironmentValueConstant},
		},
	})
	if executionError != nil || executionResult.Cancelled {
		return ""
	}
	return strings.TrimSpace(executionResult.StandardOutput)
}

type runtimeBuildInfoProvider struct{}

func (runtimeBuildInfoProvider) Read() (*debug.BuildInfo, bool) {
	return debug.ReadBuildInfo()
}
