package utils

import (
	"context"
	"strings"
)

const (
	configurationFilePathContextKeyConstant = commandContextKey("configurationFilePath")
	runtimeSelectionContextKeyConstant      = commandContextKey("runtimeSelection")
	logLevelContextKeyConstant              = commandContextKey("logLevel")
)

type commandContextKey string

// RuntimeSelection identifies which script, manifest and target a command operates on.
type RuntimeSelection struct {
	ScriptPath       string
	ManifestPath     string
	Target           string
	WorkingDirectory string
}

// CommandContextAccessor manages values stored in command execution contexts.
type CommandContextAccessor struct{}

// NewCommandContextAccessor constructs a CommandContextAccessor instance.
func NewCommandContextAccessor() CommandContextAccessor {
	return CommandContextAccessor{}
}

// WithConfigurationFilePath records the configuration file the command was initialized from.
func (accessor CommandContextAccessor) WithConfigurationFilePath(parentContext context.Context, configurationFilePath string) context.Context {
	return context.WithValue(orBackground(parentContext), configurationFilePathContextKeyConstant, configurationFilePath)
}

// WithRuntimeSelection records the trimmed selection. An all-empty selection is not stored.
func (accessor CommandContextAccessor) WithRuntimeSelection(parentContext context.Context, selection RuntimeSelection) context.Context {
	selection.ScriptPath = strings.TrimSpace(selection.ScriptPath)
	selection.ManifestPath = strings.TrimSpace(selection.ManifestPath)
	selection.Target = strings.TrimSpace(selection.Target)
	selection.WorkingDirectory = strings.TrimSpace(selection.WorkingDirectory)
	if selection == (RuntimeSelection{}) {
		return orBackground(parentContext)
	}
	return context.WithValue(orBackground(parentContext), runtimeSelectionContextKeyConstant, selection)
}

// WithLogLevel records a non-blank log level.
func (accessor CommandContextAccessor) WithLogLevel(parentContext context.Context, logLevel string) context.Context {
	logLevel = strings.TrimSpace(logLevel)
	if len(logLevel) == 0 {
		return orBackground(parentContext)
	}
	return context.WithValue(orBackground(parentContext), logLevelContextKeyConstant, logLevel)
}

// ConfigurationFilePath returns the recorded configuration file path.
func (accessor CommandContextAccessor) ConfigurationFilePath(executionContext context.Context) (string, bool) {
	return contextValue[string](executionContext, configurationFilePathContextKeyConstant)
}

// RuntimeSelection returns the recorded runtime selection.
func (accessor CommandContextAccessor) RuntimeSelection(executionContext context.Context) (RuntimeSelection, bool) {
	return contextValue[RuntimeSelection](executionContext, runtimeSelectionContextKeyConstant)
}

// LogLevel returns the recorded log level.
func (accessor CommandContextAccessor) LogLevel(executionContext context.Context) (string, bool) {
	return contextValue[string](executionContext, logLevelContextKeyConstant)
}

func orBackground(parentContext context.Context) context.Context {
	if parentContext == nil {
		return context.Background()
	}
	return parentContext
}

func contextValue[T any](executionContext context.Context, key commandContextKey) (T, bool) {
	var zero T
	if executionContext == nil {
		return zero, false
	}
	value, available := executionContext.Value(key).(T)
	if !available {
		return zero, false
	}
	return value, true
}
