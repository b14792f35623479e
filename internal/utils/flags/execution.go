// Package flags binds the runtime and execution flags shared by taskscript commands.
package flags

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	// SummaryFlagName exposes the run summary toggle name.
	SummaryFlagName = "summary"
	// SummaryFlagUsage describes the run summary toggle.
	SummaryFlagUsage = "Print the task result and duration after the run"
)

// ExecutionDefaults holds the default values of the execution flags.
type ExecutionDefaults struct {
	Summary bool
}

// ExecutionFlagDefinition names one execution flag and whether a command exposes it.
type ExecutionFlagDefinition struct {
	Name      string
	Usage     string
	Shorthand string
	Enabled   bool
}

// ExecutionFlagDefinitions groups execution flag definitions.
type ExecutionFlagDefinitions struct {
	Summary ExecutionFlagDefinition
}

// BindExecutionFlags adds the enabled execution flags to the command's local flags.
// A flag that already exists is left untouched.
func BindExecutionFlags(command *cobra.Command, defaults ExecutionDefaults, definitions ExecutionFlagDefinitions) {
	if command == nil {
		return
	}
	bindToggleFlag(command.Flags(), definitions.Summary, defaults.Summary)
}

func bindToggleFlag(flagSet *pflag.FlagSet, definition ExecutionFlagDefinition, defaultValue bool) {
	if flagSet == nil || !definition.Enabled || len(definition.Name) == 0 || flagSet.Lookup(definition.Name) != nil {
		return
	}
	flagSet.BoolP(definition.Name, definition.Shorthand, defaultValue, definition.Usage)
}
