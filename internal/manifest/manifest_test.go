package manifest_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	runtimeerrors "github.com/tyemirov/taskscript/internal/errors"
	"github.com/tyemirov/taskscript/internal/manifest"
	"github.com/tyemirov/taskscript/internal/syntax"
	"github.com/tyemirov/taskscript/internal/values"
)

const (
	testManifestFileNameConstant = "taskscript.hcl"
	testManifestContentsConstant = `
script = "scripts/build.yaml"

component "app" {
  cwd      = "services"
  env_file = ".env"
}

target "deploy" {
  component = "app"
  task      = "deploy"
  args      = ["prod", 2, true]
}

target "smoke" {
  component = "app"
  task      = "main"
}
`
	testDocumentContentsConstant = `components:
  - name: app
    cwd: original
    env_file: original.env
    elements:
      - kind: task
        name: main
        body: []
`
)

func TestParseDecodesScriptComponentsAndTargets(testInstance *testing.T) {
	parsed, parseError := manifest.Parse(testManifestFileNameConstant, []byte(testManifestContentsConstant))
	require.NoError(testInstance, parseError)

	require.Equal(testInstance, "scripts/build.yaml", parsed.Script)
	require.Equal(testInstance, manifest.ComponentOverride{Name: "app", Cwd: "services", EnvFile: ".env"}, parsed.Components["app"])
	require.Equal(testInstance, []string{"deploy", "smoke"}, parsed.TargetNames())

	deployTarget, found := parsed.Target("deploy")
	require.True(testInstance, found)
	require.Equal(testInstance, "app", deployTarget.Component)
	require.Equal(testInstance, "deploy", deployTarget.Task)
	require.Equal(testInstance, []values.Value{values.String("prod"), values.Integer(2), values.Bool(true)}, deployTarget.Arguments)

	smokeTarget, found := parsed.Target("smoke")
	require.True(testInstance, found)
	require.Empty(testInstance, smokeTarget.Arguments)

	_, found = parsed.Target("missing")
	require.False(testInstance, found)
}

func TestParseRejectsInvalidManifests(testInstance *testing.T) {
	testCases := []struct {
		name     string
		contents string
	}{
		{name: "syntax_error", contents: `script = `},
		{name: "unknown_attribute", contents: `interpreter = "bash"`},
		{name: "duplicate_component", contents: "component \"app\" {}\ncomponent \"app\" {}\n"},
		{name: "duplicate_target", contents: "target \"t\" {\n  component = \"app\"\n  task = \"main\"\n}\ntarget \"t\" {\n  component = \"app\"\n  task = \"main\"\n}\n"},
		{name: "target_missing_task", contents: "target \"t\" {\n  component = \"app\"\n}\n"},
		{name: "fractional_argument", contents: "target \"t\" {\n  component = \"app\"\n  task = \"main\"\n  args = [1.5]\n}\n"},
		{name: "object_argument", contents: "target \"t\" {\n  component = \"app\"\n  task = \"main\"\n  args = [{ key = \"value\" }]\n}\n"},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf("%d_%s", testCaseIndex, testCase.name), func(testInstance *testing.T) {
			_, parseError := manifest.Parse(testManifestFileNameConstant, []byte(testCase.contents))
			require.ErrorIs(testInstance, parseError, runtimeerrors.ErrInvalidDocument)
		})
	}
}

func TestToValueConvertsSupportedTypes(testInstance *testing.T) {
	testCases := []struct {
		name        string
		input       cty.Value
		expected    values.Value
		expectError bool
	}{
		{name: "string", input: cty.StringVal("text"), expected: values.String("text")},
		{name: "integer", input: cty.NumberIntVal(-7), expected: values.Integer(-7)},
		{name: "bool", input: cty.False, expected: values.Bool(false)},
		{name: "null", input: cty.NullVal(cty.String), expected: values.Empty{}},
		{name: "list", input: cty.ListVal([]cty.Value{cty.StringVal("a"), cty.StringVal("b")}), expected: values.Vec{values.String("a"), values.String("b")}},
		{name: "nested_tuple", input: cty.TupleVal([]cty.Value{cty.NumberIntVal(1), cty.TupleVal([]cty.Value{cty.True})}), expected: values.Vec{values.Integer(1), values.Vec{values.Bool(true)}}},
		{name: "fractional", input: cty.NumberFloatVal(0.5), expectError: true},
		{name: "object", input: cty.ObjectVal(map[string]cty.Value{"key": cty.StringVal("value")}), expectError: true},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf("%d_%s", testCaseIndex, testCase.name), func(testInstance *testing.T) {
			converted, convertError := manifest.ToValue(testCase.input)
			if testCase.expectError {
				require.Error(testInstance, convertError)
				return
			}
			require.NoError(testInstance, convertError)
			require.Equal(testInstance, testCase.expected, converted)
		})
	}
}

func TestApplyOverridesComponentSettings(testInstance *testing.T) {
	document, parseError := syntax.ParseDocument("script.yaml", []byte(testDocumentContentsConstant))
	require.NoError(testInstance, parseError)

	parsed, manifestError := manifest.Parse(testManifestFileNameConstant, []byte(`component "app" {
  cwd = "services"
}
`))
	require.NoError(testInstance, manifestError)
	require.NoError(testInstance, parsed.Apply(document))

	component, found := document.Component("app")
	require.True(testInstance, found)
	require.Equal(testInstance, "services", component.Cwd)
	require.Equal(testInstance, "original.env", component.EnvFile)
}

func TestApplyRejectsUnknownComponent(testInstance *testing.T) {
	document, parseError := syntax.ParseDocument("script.yaml", []byte(testDocumentContentsConstant))
	require.NoError(testInstance, parseError)

	parsed, manifestError := manifest.Parse(testManifestFileNameConstant, []byte(`component "ghost" {}`))
	require.NoError(testInstance, manifestError)
	require.ErrorIs(testInstance, parsed.Apply(document), runtimeerrors.ErrNotFoundComponent)
}

func TestLoadResolvesScriptRelativeToManifest(testInstance *testing.T) {
	directory := testInstance.TempDir()
	manifestPath := filepath.Join(directory, testManifestFileNameConstant)
	require.NoError(testInstance, os.WriteFile(manifestPath, []byte(testManifestContentsConstant), 0o600))

	loaded, loadError := manifest.Load(manifestPath)
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, filepath.Join(directory, "scripts", "build.yaml"), loaded.Script)

	_, missingError := manifest.Load(filepath.Join(directory, "absent.hcl"))
	require.ErrorIs(testInstance, missingError, runtimeerrors.ErrInvalidDocument)
}
