package flags

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tyemirov/taskscript/internal/utils"
)

// ErrFlagNotDefined indicates that the requested flag is not present on the command.
var ErrFlagNotDefined = errors.New("flag not defined")

// BoolFlag returns the flag value and whether the user set it explicitly.
func BoolFlag(command *cobra.Command, name string) (bool, bool, error) {
	return flagValue(command, name, (*pflag.FlagSet).GetBool)
}

// StringFlag returns the flag value and whether the user set it explicitly.
func StringFlag(command *cobra.Command, name string) (string, bool, error) {
	return flagValue(command, name, (*pflag.FlagSet).GetString)
}

func flagValue[T any](command *cobra.Command, name string, read func(*pflag.FlagSet, string) (T, error)) (T, bool, error) {
	var zero T
	flagSet, flag := locateFlag(command, name)
	if flag == nil {
		return zero, false, ErrFlagNotDefined
	}
	value, readError := read(flagSet, name)
	if readError != nil {
		return zero, false, readError
	}
	return value, flag.Changed, nil
}

// locateFlag searches the command's own, persistent and inherited flags before the root's persistent flags.
func locateFlag(command *cobra.Command, name string) (*pflag.FlagSet, *pflag.Flag) {
	if command == nil {
		return nil, nil
	}
	flagSets := []*pflag.FlagSet{command.Flags(), command.PersistentFlags(), command.InheritedFlags()}
	if root := command.Root(); root != nil {
		flagSets = append(flagSets, root.PersistentFlags())
	}
	for _, flagSet := range flagSets {
		if flagSet == nil {
			continue
		}
		if flag := flagSet.Lookup(name); flag != nil {
			return flagSet, flag
		}
	}
	return nil, nil
}

// CollectRuntimeSelection reads the explicitly set runtime selection flags.
func CollectRuntimeSelection(command *cobra.Command) utils.RuntimeSelection {
	selection := utils.RuntimeSelection{}
	if command == nil {
		return selection
	}
	collect := func(name string, target *string) {
		if value, changed, err := StringFlag(command, name); err == nil && changed {
			*target = strings.TrimSpace(value)
		}
	}
	collect(ScriptFlagName, &selection.ScriptPath)
	collect(ManifestFlagName, &selection.ManifestPath)
	collect(TargetFlagName, &selection.Target)
	collect(WorkingDirectoryFlagName, &selection.WorkingDirectory)
	return selection
}

// ResolveRuntimeSelection returns the selection stored in the command context, falling
// back to flag values, and reports whether any value was provided.
func ResolveRuntimeSelection(command *cobra.Command) (utils.RuntimeSelection, bool) {
	contextAccessor := utils.NewCommandContextAccessor()
	if command != nil {
		if selection, available := contextAccessor.RuntimeSelection(command.Context()); available {
			return selection, true
		}
	}

	selection := CollectRuntimeSelection(command)
	return selection, selection != (utils.RuntimeSelection{})
}
