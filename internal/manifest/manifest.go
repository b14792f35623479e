// Package manifest reads the optional HCL project file naming the script document,
// per-component overrides and named run targets.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	runtimeerrors "github.com/tyemirov/taskscript/internal/errors"
	"github.com/tyemirov/taskscript/internal/syntax"
	"github.com/tyemirov/taskscript/internal/values"
)

// DefaultFileNameConstant is the manifest looked up in the working directory.
const DefaultFileNameConstant = "taskscript.hcl"

const (
	duplicateBlockTemplateConstant   = "duplicate %s block %q"
	argumentTemplateConstant         = "argument %d: %w"
	unsupportedTypeTemplateConstant  = "unsupported value type %s"
	fractionalNumberTemplateConstant = "number %s is not an integer"
	componentBlockConstant           = "component"
	targetBlockConstant              = "target"
)

// ComponentOverride replaces a component's working directory or environment file.
type ComponentOverride struct {
	Name    string
	Cwd     string
	EnvFile string
}

// Target is a named invocation of component:task with fixed arguments.
type Target struct {
	Name      string
	Component string
	Task      string
	Arguments []values.Value
}

// Manifest is the decoded project file.
type Manifest struct {
	Path       string
	Script     string
	Components map[string]ComponentOverride
	Targets    map[string]Target
}

type fileRoot struct {
	Script     *string           `hcl:"script,optional"`
	Components []*componentBlock `hcl:"component,block"`
	Targets    []*targetBlock    `hcl:"target,block"`
}

type componentBlock struct {
	Name    string  `hcl:"name,label"`
	Cwd     *string `hcl:"cwd,optional"`
	EnvFile *string `hcl:"env_file,optional"`
}

type targetBlock struct {
	Name      string    `hcl:"name,label"`
	Component string    `hcl:"component"`
	Task      string    `hcl:"task"`
	Args      cty.Value `hcl:"args,optional"`
}

// Load parses the manifest at path. A relative script path resolves against the
// manifest's directory.
func Load(path string) (*Manifest, error) {
	contents, readError := os.ReadFile(path)
	if readError != nil {
		return nil, runtimeerrors.Wrap(runtimeerrors.OperationLoad, path, runtimeerrors.ErrInvalidDocument, readError)
	}
	parsed, parseError := Parse(path, contents)
	if parseError != nil {
		return nil, parseError
	}
	if len(parsed.Script) > 0 && !filepath.IsAbs(parsed.Script) {
		parsed.Script = filepath.Join(filepath.Dir(path), parsed.Script)
	}
	return parsed, nil
}

// Parse decodes manifest contents; filename is used in diagnostics only.
func Parse(filename string, contents []byte) (*Manifest, error) {
	parser := hclparse.NewParser()
	file, diagnostics := parser.ParseHCL(contents, filename)
	if diagnostics.HasErrors() {
		return nil, runtimeerrors.WrapMessage(runtimeerrors.OperationLoad, filename, runtimeerrors.ErrInvalidDocument, diagnostics.Error())
	}

	var root fileRoot
	if decodeDiagnostics := gohcl.DecodeBody(file.Body, nil, &root); decodeDiagnostics.HasErrors() {
		return nil, runtimeerrors.WrapMessage(runtimeerrors.OperationLoad, filename, runtimeerrors.ErrInvalidDocument, decodeDiagnostics.Error())
	}

	manifest := &Manifest{
		Path:       filename,
		Components: make(map[string]ComponentOverride, len(root.Components)),
		Targets:    make(map[string]Target, len(root.Targets)),
	}
	if root.Script != nil {
		manifest.Script = *root.Script
	}
	for _, block := range root.Components {
		if _, exists := manifest.Components[block.Name]; exists {
			return nil, runtimeerrors.WrapMessage(runtimeerrors.OperationLoad, filename, runtimeerrors.ErrInvalidDocument, fmt.Sprintf(duplicateBlockTemplateConstant, componentBlockConstant, block.Name))
		}
		override := ComponentOverride{Name: block.Name}
		if block.Cwd != nil {
			override.Cwd = *block.Cwd
		}
		if block.EnvFile != nil {
			override.EnvFile = *block.EnvFile
		}
		manifest.Components[block.Name] = override
	}
	for _, block := range root.Targets {
		if _, exists := manifest.Targets[block.Name]; exists {
			return nil, runtimeerrors.WrapMessage(runtimeerrors.OperationLoad, filename, runtimeerrors.ErrInvalidDocument, fmt.Sprintf(duplicateBlockTemplateConstant, targetBlockConstant, block.Name))
		}
		arguments, convertError := convertArguments(block.Args)
		if convertError != nil {
			return nil, runtimeerrors.WrapMessage(runtimeerrors.OperationLoad, filename, runtimeerrors.ErrInvalidDocument, fmt.Sprintf("target %q: %v", block.Name, convertError))
		}
		manifest.Targets[block.Name] = Target{Name: block.Name, Component: block.Component, Task: block.Task, Arguments: arguments}
	}
	return manifest, nil
}

// Target returns the named run target.
func (manifest *Manifest) Target(name string) (Target, bool) {
	target, found := manifest.Targets[name]
	return target, found
}

// TargetNames lists targets in lexical order.
func (manifest *Manifest) TargetNames() []string {
	names := make([]string, 0, len(manifest.Targets))
	for name := range manifest.Targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply writes component overrides into document. Overrides naming unknown
// components are rejected.
func (manifest *Manifest) Apply(document *syntax.Document) error {
	for name, override := range manifest.Components {
		component, found := document.Component(name)
		if !found {
			return runtimeerrors.WrapMessage(runtimeerrors.OperationLoad, manifest.Path, runtimeerrors.ErrNotFoundComponent, name)
		}
		if len(override.Cwd) > 0 {
			component.Cwd = override.Cwd
		}
		if len(override.EnvFile) > 0 {
			component.EnvFile = override.EnvFile
		}
	}
	return nil
}

func convertArguments(arguments cty.Value) ([]values.Value, error) {
	if arguments.IsNull() || !arguments.IsKnown() {
		return nil, nil
	}
	argumentType := arguments.Type()
	if !argumentType.IsListType() && !argumentType.IsTupleType() && !argumentType.IsSetType() {
		single, convertError := ToValue(arguments)
		if convertError != nil {
			return nil, convertError
		}
		return []values.Value{single}, nil
	}
	converted := make([]values.Value, 0, arguments.LengthInt())
	iterator := arguments.ElementIterator()
	for iterator.Next() {
		_, element := iterator.Element()
		value, convertError := ToValue(element)
		if convertError != nil {
			return nil, fmt.Errorf(argumentTemplateConstant, len(converted), convertError)
		}
		converted = append(converted, value)
	}
	return converted, nil
}

// ToValue converts a cty value into a runtime value. Numbers must be integral;
// objects and maps have no runtime counterpart.
func ToValue(value cty.Value) (values.Value, error) {
	if value.IsNull() || !value.IsKnown() {
		return values.Empty{}, nil
	}
	valueType := value.Type()
	switch {
	case valueType == cty.String:
		return values.String(value.AsString()), nil
	case valueType == cty.Bool:
		var decoded bool
		if decodeError := gocty.FromCtyValue(value, &decoded); decodeError != nil {
			return nil, decodeError
		}
		return values.Bool(decoded), nil
	case valueType == cty.Number:
		if !value.AsBigFloat().IsInt() {
			return nil, fmt.Errorf(fractionalNumberTemplateConstant, value.AsBigFloat().String())
		}
		var decoded int64
		if decodeError := gocty.FromCtyValue(value, &decoded); decodeError != nil {
			return nil, decodeError
		}
		return values.Integer(decoded), nil
	case valueType.IsListType() || valueType.IsTupleType() || valueType.IsSetType():
		converted := make(values.Vec, 0, value.LengthInt())
		iterator := value.ElementIterator()
		for iterator.Next() {
			_, element := iterator.Element()
			item, convertError := ToValue(element)
			if convertError != nil {
				return nil, convertError
			}
			converted = append(converted, item)
		}
		return converted, nil
	default:
		return nil, fmt.Errorf(unsupportedTypeTemplateConstant, valueType.FriendlyName())
	}
}
