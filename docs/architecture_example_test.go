package docs_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tyemirov/taskscript/internal/execution"
	"github.com/tyemirov/taskscript/internal/linker"
	"github.com/tyemirov/taskscript/internal/manifest"
	"github.com/tyemirov/taskscript/internal/syntax"
)

const (
	documentationFileNameConstant    = "ARCHITECTURE.md"
	yamlFenceStartConstant           = "```yaml"
	hclFenceStartConstant            = "```hcl"
	fenceEndConstant                 = "```"
	scriptHeaderMarkerConstant       = "# build.yaml"
	parentDirectoryReferenceConstant = ".."
	missingStartFenceMessageConstant = "Architecture example missing fence start"
	missingEndFenceMessageConstant   = "Architecture example missing fence end"
	missingHeaderMessageConstant     = "Architecture example missing script header marker"
)

func readArchitectureDocument(testInstance *testing.T) string {
	testInstance.Helper()

	workingDirectory, workingDirectoryError := os.Getwd()
	require.NoError(testInstance, workingDirectoryError)

	contentBytes, readError := os.ReadFile(filepath.Join(workingDirectory, parentDirectoryReferenceConstant, documentationFileNameConstant))
	require.NoError(testInstance, readError)
	return string(contentBytes)
}

func extractFencedSnippet(testInstance *testing.T, contentText string, fenceStart string) string {
	testInstance.Helper()

	fenceStartIndex := strings.Index(contentText, fenceStart)
	require.NotEqual(testInstance, -1, fenceStartIndex, missingStartFenceMessageConstant)

	remainingText := contentText[fenceStartIndex+len(fenceStart):]
	fenceEndRelativeIndex := strings.Index(remainingText, fenceEndConstant)
	require.NotEqual(testInstance, -1, fenceEndRelativeIndex, missingEndFenceMessageConstant)

	return strings.TrimSpace(remainingText[:fenceEndRelativeIndex])
}

func TestArchitectureExampleScriptLinks(testInstance *testing.T) {
	contentText := readArchitectureDocument(testInstance)
	scriptSnippet := extractFencedSnippet(testInstance, contentText, yamlFenceStartConstant)
	require.True(testInstance, strings.HasPrefix(scriptSnippet, scriptHeaderMarkerConstant), missingHeaderMessageConstant)

	document, parseError := syntax.ParseDocument(documentationFileNameConstant, []byte(scriptSnippet))
	require.NoError(testInstance, parseError)

	component, componentFound := document.Component("build")
	require.True(testInstance, componentFound)
	_, taskFound := component.Task("compile")
	require.True(testInstance, taskFound)

	_, linkError := linker.New(execution.NewRegistry()).Link(document)
	require.NoError(testInstance, linkError)
}

func TestArchitectureExampleManifestTargetsScript(testInstance *testing.T) {
	contentText := readArchitectureDocument(testInstance)
	scriptSnippet := extractFencedSnippet(testInstance, contentText, yamlFenceStartConstant)
	manifestSnippet := extractFencedSnippet(testInstance, contentText, hclFenceStartConstant)

	projectManifest, parseError := manifest.Parse(manifest.DefaultFileNameConstant, []byte(manifestSnippet))
	require.NoError(testInstance, parseError)
	require.Equal(testInstance, []string{"compile-cli"}, projectManifest.TargetNames())

	target, targetFound := projectManifest.Target("compile-cli")
	require.True(testInstance, targetFound)

	document, documentError := syntax.ParseDocument(documentationFileNameConstant, []byte(scriptSnippet))
	require.NoError(testInstance, documentError)
	require.NoError(testInstance, projectManifest.Apply(document))

	component, componentFound := document.Component(target.Component)
	require.True(testInstance, componentFound)
	task, taskFound := component.Task(target.Task)
	require.True(testInstance, taskFound)
	require.Len(testInstance, target.Arguments, len(task.Parameters))
}
