package cli

import (
	_ "embed"
	"strings"
)

//go:embed default_config.yaml
var embeddedDefaultConfiguration []byte

// ApplicationConfiguration describes the persisted configuration for the CLI entrypoint.
type ApplicationConfiguration struct {
	Common  ApplicationCommonConfiguration  `mapstructure:"common"`
	Runtime ApplicationRuntimeConfiguration `mapstructure:"runtime"`
}

// ApplicationCommonConfiguration stores logging defaults shared across commands.
type ApplicationCommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// ApplicationRuntimeConfiguration selects the script, manifest and shell used by run, check and list.
type ApplicationRuntimeConfiguration struct {
	Script           string `mapstructure:"script"`
	Manifest         string `mapstructure:"manifest"`
	WorkingDirectory string `mapstructure:"working_directory"`
	Shell            string `mapstructure:"shell"`
	ShellFlag        string `mapstructure:"shell_flag"`
}

// EmbeddedDefaultConfiguration returns the bundled configuration content and its type.
func EmbeddedDefaultConfiguration() ([]byte, string) {
	return append([]byte(nil), embeddedDefaultConfiguration...), configurationTypeConstant
}

func (configuration ApplicationRuntimeConfiguration) normalized() ApplicationRuntimeConfiguration {
	return ApplicationRuntimeConfiguration{
		Script:           strings.TrimSpace(configuration.Script),
		Manifest:         strings.TrimSpace(configuration.Manifest),
		WorkingDirectory: strings.TrimSpace(configuration.WorkingDirectory),
		Shell:            strings.TrimSpace(configuration.Shell),
		ShellFlag:        strings.TrimSpace(configuration.ShellFlag),
	}
}
