package cli_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/tyemirov/taskscript/cmd/cli"
	"github.com/tyemirov/taskscript/internal/utils"
)

const (
	testConfigurationFileNameConstant                        = "config.yaml"
	testConfigurationHeaderConstant                          = "common:\n  log_level: error\n  log_format: structured\n"
	testConsoleConfigurationHeaderConstant                   = "common:\n  log_level: error\n  log_format: console\n"
	testDebugConfigurationHeaderConstant                     = "common:\n  log_level: debug\n  log_format: structured\n"
	testDebugConsoleConfigurationHeaderConstant              = "common:\n  log_level: debug\n  log_format: console\n"
	testRuntimeConfigurationTemplateConstant                 = "runtime:\n  script: %s\n"
	testConfigurationSearchPathEnvironmentName               = "TASKSCRIPT_CONFIG_SEARCH_PATH"
	testRunCommandNameConstant                               = "run"
	configurationInitializedMessageTextConstant              = "configuration initialized"
	configurationInitializedConsoleTemplateConstant          = "%s | log level=%s | log format=%s | config file=%s"
	configurationLogLevelFieldNameConstant                   = "log_level"
	configurationLogFormatFieldNameConstant                  = "log_format"
	configurationFileFieldNameConstant                       = "config_file"
	testUserConfigurationDirectoryNameConstant               = ".taskscript"
	testXDGConfigurationDirectoryNameConstant                = "taskscript"
	testXDGConfigHomeDirectoryNameConstant                   = "config"
	testCaseWorkingDirectoryPreferredMessageConstant         = "WorkingDirectoryPreferred"
	testCaseXDGDirectoryFallbackMessageConstant              = "XDGDirectoryFallback"
	testCaseHomeDirectoryFallbackMessageConstant             = "HomeDirectoryFallback"
	applicationSubtestNameTemplateConstant                   = "%d_%s"
	configurationDirectoryRoleWorkingConstant                = "working"
	configurationDirectoryRoleXDGConstant                    = "xdg"
	configurationDirectoryRoleHomeConstant                   = "home"
	configurationInitializationLocalTestNameConstant         = "LocalScope"
	configurationInitializationUserTestNameConstant          = "UserScope"
	configurationInitializationForceRequiredTestNameConstant = "ForceRequired"
	configurationInitializationForceEnabledTestNameConstant  = "ForceEnabled"
	configurationInitializationArgumentsLocalConstant        = "--init"
	configurationInitializationArgumentsUserConstant         = "--init=user"
	configurationInitializationForceFlagConstant             = "--force"
	configurationInitializationExistingContentConstant       = "common:\n  log_level: error\n"
	configurationInitializationErrorMessageFragmentConstant  = "already exists"
	testApplicationNameConstant                              = "taskscript"
	configurationInitializationUserHomeEnvNameConstant       = "HOME"
	testScriptFileNameConstant                               = "build.yaml"
	testManifestFileNameConstant                             = "taskscript.hcl"
	testScriptConstant                                       = `components:
  - name: app
    elements:
      - kind: task
        name: double
        params:
          - name: count
            type: int
        body:
          - kind: return
            value:
              kind: compute
              operator: "*"
              left:
                kind: variable
                name: $count
              right: 2
      - kind: task
        name: greet
        params:
          - name: who
            type: str
          - name: loud
            type: optional<bool>
        body:
          - kind: return
            value: hello
`
	testBrokenScriptConstant = `components:
  - name: app
    elements:
      - kind: task
        name: broken
        body:
          - kind: function
            name: missing_function
            args: []
`
	testManifestConstant = `script = "build.yaml"

target "double-five" {
  component = "app"
  task      = "double"
  args      = [5]
}
`
)

func TestApplicationInitializationLoggingModes(testInstance *testing.T) {
	testCases := []struct {
		name                string
		configurationHeader string
		expectedFormat      utils.LogFormat
		expectBanner        bool
	}{
		{name: "StructuredErrorLevelSilent", configurationHeader: testConfigurationHeaderConstant, expectedFormat: utils.LogFormatStructured},
		{name: "ConsoleErrorLevelSilent", configurationHeader: testConsoleConfigurationHeaderConstant, expectedFormat: utils.LogFormatConsole},
		{name: "StructuredDebugBanner", configurationHeader: testDebugConfigurationHeaderConstant, expectedFormat: utils.LogFormatStructured, expectBanner: true},
		{name: "ConsoleDebugBanner", configurationHeader: testDebugConsoleConfigurationHeaderConstant, expectedFormat: utils.LogFormatConsole, expectBanner: true},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(applicationSubtestNameTemplateConstant, testCaseIndex, testCase.name), func(t *testing.T) {
			configurationDirectory := t.TempDir()
			configurationPath := filepath.Join(configurationDirectory, testConfigurationFileNameConstant)
			writeConfigurationFile(t, configurationPath, testCase.configurationHeader)
			t.Setenv(testConfigurationSearchPathEnvironmentName, configurationDirectory)

			application := cli.NewApplication()
			stderrCapture := startTestStderrCapture(t)
			initializationError := application.InitializeForCommand(testRunCommandNameConstant)
			capturedOutput := strings.TrimSpace(stderrCapture.Stop(t))
			require.NoError(t, initializationError)

			usedPath := application.ConfigFileUsed()
			require.Equal(t, resolveSymlinkedPath(t, configurationPath), resolveSymlinkedPath(t, usedPath))

			if !testCase.expectBanner {
				require.Empty(t, capturedOutput)
				return
			}

			if testCase.expectedFormat == utils.LogFormatConsole {
				require.NotContains(t, capturedOutput, "\""+configurationLogLevelFieldNameConstant+"\"")
				expectedBanner := fmt.Sprintf(configurationInitializedConsoleTemplateConstant, configurationInitializedMessageTextConstant, utils.LogLevelDebug, utils.LogFormatConsole, usedPath)
				bannerFound := false
				for _, line := range strings.Split(capturedOutput, "\n") {
					if strings.Contains(line, expectedBanner) {
						require.True(t, strings.HasPrefix(strings.TrimSpace(line), "DEBUG"), line)
						bannerFound = true
					}
				}
				require.True(t, bannerFound, capturedOutput)
				return
			}

			logLines := strings.Split(capturedOutput, "\n")
			require.Len(t, logLines, 1)
			var logEntry map[string]any
			require.NoError(t, json.Unmarshal([]byte(logLines[0]), &logEntry))
			require.Equal(t, map[string]any{
				"level":                                 "debug",
				"message":                               configurationInitializedMessageTextConstant,
				configurationLogLevelFieldNameConstant:  string(utils.LogLevelDebug),
				configurationLogFormatFieldNameConstant: string(utils.LogFormatStructured),
				configurationFileFieldNameConstant:      usedPath,
			}, selectFields(logEntry, "level", "message", configurationLogLevelFieldNameConstant, configurationLogFormatFieldNameConstant, configurationFileFieldNameConstant))
		})
	}
}

func TestApplicationConfigurationInitialization(testInstance *testing.T) {
	embeddedConfigurationContent, _ := cli.EmbeddedDefaultConfiguration()
	require.NotEmpty(testInstance, embeddedConfigurationContent)

	testCases := []struct {
		name            string
		arguments       []string
		existingContent string
		userScope       bool
		expectedError   string
	}{
		{name: configurationInitializationLocalTestNameConstant, arguments: []string{configurationInitializationArgumentsLocalConstant}},
		{name: configurationInitializationUserTestNameConstant, arguments: []string{configurationInitializationArgumentsUserConstant}, userScope: true},
		{
			name:            configurationInitializationForceRequiredTestNameConstant,
			arguments:       []string{configurationInitializationArgumentsLocalConstant},
			existingContent: configurationInitializationExistingContentConstant,
			expectedError:   configurationInitializationErrorMessageFragmentConstant,
		},
		{
			name:            configurationInitializationForceEnabledTestNameConstant,
			arguments:       []string{configurationInitializationArgumentsLocalConstant, configurationInitializationForceFlagConstant},
			existingContent: configurationInitializationExistingContentConstant,
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(applicationSubtestNameTemplateConstant, testCaseIndex, testCase.name), func(t *testing.T) {
			workingDirectory := changeToTemporaryDirectory(t)
			configurationPath := filepath.Join(workingDirectory, testConfigurationFileNameConstant)
			if testCase.userScope {
				homeDirectory := t.TempDir()
				t.Setenv(configurationInitializationUserHomeEnvNameConstant, homeDirectory)
				configurationPath = filepath.Join(homeDirectory, testUserConfigurationDirectoryNameConstant, testConfigurationFileNameConstant)
			}
			if len(testCase.existingContent) > 0 {
				writeConfigurationFile(t, configurationPath, testCase.existingContent)
			}
			replaceArguments(t, testCase.arguments...)

			executionError := cli.NewApplication().Execute()

			fileContent, readError := os.ReadFile(configurationPath)
			require.NoError(t, readError)
			if len(testCase.expectedError) > 0 {
				require.ErrorContains(t, executionError, testCase.expectedError)
				require.Equal(t, testCase.existingContent, string(fileContent))
				return
			}
			require.NoError(t, executionError)
			require.Equal(t, embeddedConfigurationContent, fileContent)
		})
	}
}

func TestApplicationConfigurationSearchPaths(testInstance *testing.T) {
	testCases := []struct {
		name                                string
		createWorkingDirectoryConfiguration bool
		createXDGConfiguration              bool
		createHomeConfiguration             bool
		expectedDirectoryRole               string
	}{
		{
			name:                                testCaseWorkingDirectoryPreferredMessageConstant,
			createWorkingDirectoryConfiguration: true,
			createXDGConfiguration:              true,
			createHomeConfiguration:             true,
			expectedDirectoryRole:               configurationDirectoryRoleWorkingConstant,
		},
		{
			name:                    testCaseXDGDirectoryFallbackMessageConstant,
			createXDGConfiguration:  true,
			createHomeConfiguration: true,
			expectedDirectoryRole:   configurationDirectoryRoleXDGConstant,
		},
		{
			name:                    testCaseHomeDirectoryFallbackMessageConstant,
			createHomeConfiguration: true,
			expectedDirectoryRole:   configurationDirectoryRoleHomeConstant,
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(applicationSubtestNameTemplateConstant, testCaseIndex, testCase.name), func(t *testing.T) {
			homeDirectoryPath := t.TempDir()
			xdgConfigHomeDirectoryPath := filepath.Join(homeDirectoryPath, testXDGConfigHomeDirectoryNameConstant)

			t.Setenv("HOME", homeDirectoryPath)
			t.Setenv("XDG_CONFIG_HOME", xdgConfigHomeDirectoryPath)
			t.Setenv(testConfigurationSearchPathEnvironmentName, "")

			homeConfigurationDirectoryPath := filepath.Join(homeDirectoryPath, testUserConfigurationDirectoryNameConstant)
			xdgConfigurationDirectoryPath := filepath.Join(xdgConfigHomeDirectoryPath, testXDGConfigurationDirectoryNameConstant)
			require.NoError(t, os.MkdirAll(homeConfigurationDirectoryPath, 0o755))
			require.NoError(t, os.MkdirAll(xdgConfigurationDirectoryPath, 0o755))

			workingDirectoryPath := changeToTemporaryDirectory(t)

			if testCase.createWorkingDirectoryConfiguration {
				writeConfigurationFile(t, filepath.Join(workingDirectoryPath, testConfigurationFileNameConstant), testConfigurationHeaderConstant)
			}
			if testCase.createXDGConfiguration {
				writeConfigurationFile(t, filepath.Join(xdgConfigurationDirectoryPath, testConfigurationFileNameConstant), testConfigurationHeaderConstant)
			}
			if testCase.createHomeConfiguration {
				writeConfigurationFile(t, filepath.Join(homeConfigurationDirectoryPath, testConfigurationFileNameConstant), testConfigurationHeaderConstant)
			}

			expectedConfigurationPathByRole := map[string]string{
				configurationDirectoryRoleWorkingConstant: filepath.Join(workingDirectoryPath, testConfigurationFileNameConstant),
				configurationDirectoryRoleXDGConstant:     filepath.Join(xdgConfigurationDirectoryPath, testConfigurationFileNameConstant),
				configurationDirectoryRoleHomeConstant:    filepath.Join(homeConfigurationDirectoryPath, testConfigurationFileNameConstant),
			}
			expectedConfigurationPath, expectedPathKnown := expectedConfigurationPathByRole[testCase.expectedDirectoryRole]
			require.True(t, expectedPathKnown, "unexpected directory role %s", testCase.expectedDirectoryRole)

			application := cli.NewApplication()
			require.NoError(t, application.InitializeForCommand(testRunCommandNameConstant))
			require.Equal(t, resolveSymlinkedPath(t, expectedConfigurationPath), resolveSymlinkedPath(t, application.ConfigFileUsed()))
		})
	}
}

func TestApplicationRuntimeConfigurationFromFile(testInstance *testing.T) {
	configurationDirectory := testInstance.TempDir()
	configurationContent := testConfigurationHeaderConstant + fmt.Sprintf(testRuntimeConfigurationTemplateConstant, " ./build.yaml ")
	writeConfigurationFile(testInstance, filepath.Join(configurationDirectory, testConfigurationFileNameConstant), configurationContent)
	testInstance.Setenv(testConfigurationSearchPathEnvironmentName, configurationDirectory)

	application := cli.NewApplication()
	require.NoError(testInstance, application.InitializeForCommand(testRunCommandNameConstant))

	configuration := application.Configuration()
	require.Equal(testInstance, "./build.yaml", configuration.Runtime.Script)
	require.Equal(testInstance, "/bin/sh", configuration.Runtime.Shell)
	require.Equal(testInstance, "-c", configuration.Runtime.ShellFlag)
}

func TestApplicationEmbeddedDefaultsDecode(testInstance *testing.T) {
	configurationData, configurationType := cli.EmbeddedDefaultConfiguration()
	viperInstance := viper.New()
	viperInstance.SetConfigType(configurationType)
	require.NoError(testInstance, viperInstance.ReadConfig(bytes.NewReader(configurationData)))

	var configuration cli.ApplicationConfiguration
	require.NoError(testInstance, viperInstance.Unmarshal(&configuration))

	require.Equal(testInstance, string(utils.LogLevelError), configuration.Common.LogLevel)
	require.Equal(testInstance, string(utils.LogFormatStructured), configuration.Common.LogFormat)
	require.Equal(testInstance, "/bin/sh", configuration.Runtime.Shell)
	require.Equal(testInstance, "-c", configuration.Runtime.ShellFlag)
}

func TestApplicationCommands(testInstance *testing.T) {
	testCases := []struct {
		name           string
		script         string
		withManifest   bool
		arguments      []string
		expectError    bool
		expectedOutput []string
		expectedErrors []string
	}{
		{
			name:           "run_selector",
			script:         testScriptConstant,
			arguments:      []string{"run", "--script", testScriptFileNameConstant, "app:double", "21"},
			expectedOutput: []string{"42\n"},
			expectedErrors: []string{"Summary: task=app:double status=ok result=42"},
		},
		{
			name:           "run_without_summary",
			script:         testScriptConstant,
			arguments:      []string{"run", "--script", testScriptFileNameConstant, "--summary=false", "app:greet", "world"},
			expectedOutput: []string{"hello\n"},
		},
		{
			name:           "run_manifest_target",
			script:         testScriptConstant,
			withManifest:   true,
			arguments:      []string{"run", "--target", "double-five"},
			expectedOutput: []string{"10\n"},
			expectedErrors: []string{"Summary: task=app:double status=ok result=10"},
		},
		{
			name:        "run_rejects_bad_argument",
			script:      testScriptConstant,
			arguments:   []string{"run", "--script", testScriptFileNameConstant, "app:double", "many"},
			expectError: true,
		},
		{
			name:        "run_unknown_task",
			script:      testScriptConstant,
			arguments:   []string{"run", "--script", testScriptFileNameConstant, "app:missing"},
			expectError: true,
		},
		{
			name:           "check_success",
			script:         testScriptConstant,
			arguments:      []string{"check", "-s", testScriptFileNameConstant},
			expectedOutput: []string{"1 components, 2 tasks linked"},
		},
		{
			name:           "check_reports_link_issues",
			script:         testBrokenScriptConstant,
			arguments:      []string{"check", "-s", testScriptFileNameConstant},
			expectError:    true,
			expectedErrors: []string{"missing_function"},
		},
		{
			name:         "list_tasks_and_targets",
			script:       testScriptConstant,
			withManifest: true,
			arguments:    []string{"list"},
			expectedOutput: []string{
				"app:double(count: integer)\n",
				"app:greet(who: string, loud: optional<bool>)\n",
				"target double-five -> app:double\n",
			},
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(applicationSubtestNameTemplateConstant, testCaseIndex, testCase.name), func(t *testing.T) {
			t.Setenv(testConfigurationSearchPathEnvironmentName, t.TempDir())
			workingDirectory := changeToTemporaryDirectory(t)
			writeConfigurationFile(t, filepath.Join(workingDirectory, testScriptFileNameConstant), testCase.script)
			if testCase.withManifest {
				writeConfigurationFile(t, filepath.Join(workingDirectory, testManifestFileNameConstant), testManifestConstant)
			}
			replaceArguments(t, testCase.arguments...)

			output := &bytes.Buffer{}
			errorOutput := &bytes.Buffer{}
			application := cli.NewApplication()
			application.SetOutputs(output, errorOutput)

			executionError := application.Execute()
			if testCase.expectError {
				require.Error(t, executionError)
			} else {
				require.NoError(t, executionError)
			}

			for _, expectedFragment := range testCase.expectedOutput {
				require.Contains(t, output.String(), expectedFragment)
			}
			for _, expectedFragment := range testCase.expectedErrors {
				require.Contains(t, errorOutput.String(), expectedFragment)
			}
		})
	}
}

func changeToTemporaryDirectory(t *testing.T) string {
	t.Helper()

	workingDirectory := t.TempDir()
	originalWorkingDirectory, workingDirectoryError := os.Getwd()
	require.NoError(t, workingDirectoryError)
	require.NoError(t, os.Chdir(workingDirectory))
	t.Cleanup(func() {
		require.NoError(t, os.Chdir(originalWorkingDirectory))
	})
	return workingDirectory
}

func replaceArguments(t *testing.T, arguments ...string) {
	t.Helper()

	originalArguments := os.Args
	os.Args = append([]string{testApplicationNameConstant}, arguments...)
	t.Cleanup(func() {
		os.Args = originalArguments
	})
}

func writeConfigurationFile(t *testing.T, configurationPath string, configurationContent string) {
	t.Helper()

	writeError := os.WriteFile(configurationPath, []byte(configurationContent), 0o600)
	require.NoError(t, writeError)
}

func resolveSymlinkedPath(testingInstance testing.TB, path string) string {
	testingInstance.Helper()

	resolvedPath, resolveError := filepath.EvalSymlinks(path)
	if resolveError != nil {
		return path
	}
	return resolvedPath
}

type testStderrCapture struct {
	originalDescriptor *os.File
	reader             *os.File
	writer             *os.File
}

func startTestStderrCapture(testingInstance testing.TB) testStderrCapture {
	testingInstance.Helper()

	reader, writer, pipeError := os.Pipe()
	require.NoError(testingInstance, pipeError)

	capture := testStderrCapture{
		originalDescriptor: os.Stderr,
		reader:             reader,
		writer:             writer,
	}

	os.Stderr = writer

	return capture
}

func (capture *testStderrCapture) Stop(testingInstance testing.TB) string {
	testingInstance.Helper()

	os.Stderr = capture.originalDescriptor

	require.NoError(testingInstance, capture.writer.Close())

	capturedBytes, readError := io.ReadAll(capture.reader)
	require.NoError(testingInstance, readError)

	require.NoError(testingInstance, capture.reader.Close())

	return string(capturedBytes)
}

func selectFields(entry map[string]any, names ...string) map[string]any {
	selected := make(map[string]any, len(names))
	for _, name := range names {
		if value, found := entry[name]; found {
			selected[name] = value
		}
	}
	return selected
}
