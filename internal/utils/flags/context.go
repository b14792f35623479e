package flags

import "github.com/spf13/cobra"

const (
	// ScriptFlagName exposes the shared script document flag name.
	ScriptFlagName = "script"
	// ScriptFlagShorthand provides the shorthand for the script flag.
	ScriptFlagShorthand = "s"
	// ScriptFlagUsage describes the script flag purpose.
	ScriptFlagUsage = "Path to the syntax tree document (YAML or JSON)"
	// ManifestFlagName exposes the shared project manifest flag name.
	ManifestFlagName = "manifest"
	// ManifestFlagUsage describes the manifest flag purpose.
	ManifestFlagUsage = "Path to the HCL project manifest"
	// TargetFlagName exposes the shared run target flag name.
	TargetFlagName = "target"
	// TargetFlagShorthand provides the shorthand for the target flag.
	TargetFlagShorthand = "t"
	// TargetFlagUsage describes the target flag purpose.
	TargetFlagUsage = "Named run target declared in the manifest"
	// WorkingDirectoryFlagName exposes the root working directory flag name.
	WorkingDirectoryFlagName = "working-directory"
	// WorkingDirectoryFlagUsage describes the working directory flag purpose.
	WorkingDirectoryFlagUsage = "Directory component paths resolve against"
)

// RuntimeFlagDefinition captures configuration for one runtime selection flag.
type RuntimeFlagDefinition struct {
	Name      string
	Shorthand string
	Usage     string
	Enabled   bool
}

// RuntimeFlagDefinitions groups runtime selection flag definitions.
type RuntimeFlagDefinitions struct {
	Script           RuntimeFlagDefinition
	Manifest         RuntimeFlagDefinition
	Target           RuntimeFlagDefinition
	WorkingDirectory RuntimeFlagDefinition
}

// DefaultRuntimeFlagDefinitions enables every runtime selection flag with its standard name.
func DefaultRuntimeFlagDefinitions() RuntimeFlagDefinitions {
	return RuntimeFlagDefinitions{
		Script:           RuntimeFlagDefinition{Name: ScriptFlagName, Shorthand: ScriptFlagShorthand, Usage: ScriptFlagUsage, Enabled: true},
		Manifest:         RuntimeFlagDefinition{Name: ManifestFlagName, Usage: ManifestFlagUsage, Enabled: true},
		Target:           RuntimeFlagDefinition{Name: TargetFlagName, Shorthand: TargetFlagShorthand, Usage: TargetFlagUsage, Enabled: true},
		WorkingDirectory: RuntimeFlagDefinition{Name: WorkingDirectoryFlagName, Usage: WorkingDirectoryFlagUsage, Enabled: true},
	}
}

// RuntimeFlagValues stores runtime selection flag values.
type RuntimeFlagValues struct {
	Script           string
	Manifest         string
	Target           string
	WorkingDirectory string
}

// BindRuntimeFlags attaches runtime selection flags to the command's persistent flag set.
func BindRuntimeFlags(command *cobra.Command, defaults RuntimeFlagValues, definitions RuntimeFlagDefinitions) *RuntimeFlagValues {
	values := defaults
	if command == nil {
		return &values
	}

	persistentFlagSet := command.PersistentFlags()
	bindString := func(target *string, definition RuntimeFlagDefinition, defaultValue string) {
		if !definition.Enabled || len(definition.Name) == 0 {
			return
		}
		if persistentFlagSet.Lookup(definition.Name) != nil {
			return
		}
		persistentFlagSet.StringVarP(target, definition.Name, definition.Shorthand, defaultValue, definition.Usage)
	}
	bindString(&values.Script, definitions.Script, defaults.Script)
	bindString(&values.Manifest, definitions.Manifest, defaults.Manifest)
	bindString(&values.Target, definitions.Target, defaults.Target)
	bindString(&values.WorkingDirectory, definitions.WorkingDirectory, defaults.WorkingDirectory)

	return &values
}
