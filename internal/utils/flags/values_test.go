package flags_test

import (
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/tyemirov/taskscript/internal/utils"
	"github.com/tyemirov/taskscript/internal/utils/flags"
)

func newRuntimeCommand(testInstance *testing.T, arguments []string) (*cobra.Command, *cobra.Command, *flags.RuntimeFlagValues) {
	testInstance.Helper()
	rootCommand := &cobra.Command{Use: "taskscript"}
	values := flags.BindRuntimeFlags(rootCommand, flags.RuntimeFlagValues{Script: "default.yaml"}, flags.DefaultRuntimeFlagDefinitions())
	childCommand := &cobra.Command{Use: "run", RunE: func(*cobra.Command, []string) error { return nil }}
	flags.BindExecutionFlags(childCommand, flags.ExecutionDefaults{Summary: true}, flags.ExecutionFlagDefinitions{
		Summary: flags.ExecutionFlagDefinition{Name: flags.SummaryFlagName, Usage: flags.SummaryFlagUsage, Enabled: true},
	})
	rootCommand.AddCommand(childCommand)
	rootCommand.SetArgs(arguments)
	rootCommand.SetContext(context.Background())
	require.NoError(testInstance, rootCommand.Execute())
	return rootCommand, childCommand, values
}

func TestBindRuntimeFlagsRecordsExplicitValues(testInstance *testing.T) {
	_, childCommand, values := newRuntimeCommand(testInstance, []string{"run", "-s", "build.yaml", "--target", " deploy ", "--summary=false"})

	require.Equal(testInstance, "build.yaml", values.Script)
	require.Equal(testInstance, " deploy ", values.Target)

	selection, available := flags.ResolveRuntimeSelection(childCommand)
	require.True(testInstance, available)
	require.Equal(testInstance, utils.RuntimeSelection{ScriptPath: "build.yaml", Target: "deploy"}, selection)

	summary, changed, summaryError := flags.BoolFlag(childCommand, flags.SummaryFlagName)
	require.NoError(testInstance, summaryError)
	require.True(testInstance, changed)
	require.False(testInstance, summary)
}

func TestResolveRuntimeSelectionIgnoresDefaults(testInstance *testing.T) {
	_, childCommand, values := newRuntimeCommand(testInstance, []string{"run"})

	require.Equal(testInstance, "default.yaml", values.Script)
	_, available := flags.ResolveRuntimeSelection(childCommand)
	require.False(testInstance, available)

	summary, changed, summaryError := flags.BoolFlag(childCommand, flags.SummaryFlagName)
	require.NoError(testInstance, summaryError)
	require.False(testInstance, changed)
	require.True(testInstance, summary)
}

func TestResolveRuntimeSelectionPrefersContext(testInstance *testing.T) {
	_, childCommand, _ := newRuntimeCommand(testInstance, []string{"run", "--script", "flag.yaml"})
	stored := utils.RuntimeSelection{ScriptPath: "context.yaml"}
	childCommand.SetContext(utils.NewCommandContextAccessor().WithRuntimeSelection(context.Background(), stored))

	selection, available := flags.ResolveRuntimeSelection(childCommand)
	require.True(testInstance, available)
	require.Equal(testInstance, stored, selection)
}

func TestFlagLookupReportsMissingFlags(testInstance *testing.T) {
	command := &cobra.Command{Use: "bare"}

	_, _, boolError := flags.BoolFlag(command, "absent")
	require.ErrorIs(testInstance, boolError, flags.ErrFlagNotDefined)
	_, _, stringError := flags.StringFlag(nil, flags.ScriptFlagName)
	require.ErrorIs(testInstance, stringError, flags.ErrFlagNotDefined)
}
