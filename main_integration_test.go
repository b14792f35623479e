package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	integrationTimeoutConstant                = 30 * time.Second
	integrationBinaryFileNameConstant         = "taskscript-integration"
	integrationCommandFailureFormatConstant   = "command failed: %v\n%s"
	integrationConfigSearchPathEnvVarConstant = "TASKSCRIPT_CONFIG_SEARCH_PATH"
	integrationSubtestNameTemplateConstant    = "%d_%s"
	integrationScriptFileNameConstant         = "build.yaml"
	integrationManifestFileNameConstant       = "taskscript.hcl"
	integrationEnvironmentFileNameConstant    = ".env"
	integrationEnvironmentFileContentConstant = "GREETING=hello\n"
	integrationScriptContentConstant          = `components:
  - name: app
    cwd: .
    elements:
      - kind: task
        name: greet
        params:
          - name: env
            type: str
        body:
          - kind: command
            segments:
              - "echo $GREETING-"
              - kind: variable
                name: $env
          - kind: return
            value: greeted
      - kind: task
        name: explode
        body:
          - kind: command
            line: "exit 3"
`
	integrationManifestContentConstant = `script = "build.yaml"

component "app" {
  env_file = ".env"
}

target "greet-prod" {
  component = "app"
  task      = "greet"
  args      = ["prod"]
}
`
)

func TestTaskscriptBinaryIntegration(testInstance *testing.T) {
	repositoryRoot, workingDirectoryError := os.Getwd()
	require.NoError(testInstance, workingDirectoryError)
	binaryPath := buildIntegrationBinary(testInstance, repositoryRoot)

	testCases := []struct {
		name             string
		arguments        []string
		expectError      bool
		expectedSnippets []string
	}{
		{
			name:             "target_runs_shell_with_environment_file",
			arguments:        []string{"run", "--target", "greet-prod"},
			expectedSnippets: []string{"hello-prod\n", "greeted\n", "Summary: task=app:greet status=ok result=greeted"},
		},
		{
			name:             "selector_runs_shell",
			arguments:        []string{"run", "app:greet", "stage"},
			expectedSnippets: []string{"hello-stage\n"},
		},
		{
			name:             "failing_command_reports_failure",
			arguments:        []string{"run", "app:explode"},
			expectError:      true,
			expectedSnippets: []string{"Summary: task=app:explode status=failed"},
		},
		{
			name:             "list_shows_targets",
			arguments:        []string{"list"},
			expectedSnippets: []string{"app:greet(env: string)\n", "target greet-prod -> app:greet\n"},
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(integrationSubtestNameTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			projectDirectory := writeIntegrationProject(testInstance)

			outputText, runError := runBinaryIntegrationCommand(testInstance, binaryPath, projectDirectory, testCase.arguments)
			if testCase.expectError {
				require.Error(testInstance, runError, outputText)
			} else if runError != nil {
				testInstance.Fatalf(integrationCommandFailureFormatConstant, runError, outputText)
			}

			for _, snippet := range testCase.expectedSnippets {
				require.Contains(testInstance, outputText, snippet)
			}
		})
	}
}

func writeIntegrationProject(testInstance *testing.T) string {
	testInstance.Helper()

	projectDirectory := testInstance.TempDir()
	files := map[string]string{
		integrationScriptFileNameConstant:      integrationScriptContentConstant,
		integrationManifestFileNameConstant:    integrationManifestContentConstant,
		integrationEnvironmentFileNameConstant: integrationEnvironmentFileContentConstant,
	}
	for fileName, content := range files {
		require.NoError(testInstance, os.WriteFile(filepath.Join(projectDirectory, fileName), []byte(content), 0o600))
	}
	return projectDirectory
}

func buildIntegrationBinary(testInstance *testing.T, repositoryRoot string) string {
	testInstance.Helper()
	binaryPath := filepath.Join(testInstance.TempDir(), integrationBinaryFileNameConstant)

	command := exec.Command("go", "build", "-o", binaryPath, ".")
	command.Dir = repositoryRoot
	command.Env = os.Environ()

	outputBytes, runError := command.CombinedOutput()
	if runError != nil {
		testInstance.Fatalf(integrationCommandFailureFormatConstant, runError, string(outputBytes))
	}
	return binaryPath
}

func runBinaryIntegrationCommand(testInstance *testing.T, binaryPath string, workingDirectory string, arguments []string) (string, error) {
	testInstance.Helper()

	executionContext, cancelFunction := context.WithTimeout(context.Background(), integrationTimeoutConstant)
	defer cancelFunction()

	command := exec.CommandContext(executionContext, binaryPath, arguments...)
	command.Dir = workingDirectory
	command.Env = append(filterEnvironment(os.Environ(), integrationConfigSearchPathEnvVarConstant), integrationConfigSearchPathEnvVarConstant+"="+testInstance.TempDir())

	outputBytes, runError := command.CombinedOutput()
	return string(outputBytes), runError
}

func filterEnvironment(environment []string, excludedName string) []string {
	filtered := make([]string, 0, len(environment))
	for _, assignment := range environment {
		if strings.HasPrefix(assignment, excludedName+"=") {
			continue
		}
		filtered = append(filtered, assignment)
	}
	return filtered
}
