package syntax

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	runtimeerrors "github.com/tyemirov/taskscript/internal/errors"
	"github.com/tyemirov/taskscript/internal/values"
)

const (
	documentPathRequiredMessageConstant  = "syntax tree document path must be provided"
	documentReadErrorTemplateConstant    = "failed to read syntax tree document: %w"
	documentParseErrorTemplateConstant   = "failed to parse syntax tree document: %w"
	documentComponentsMessageConstant    = "document must define a components sequence"
	mappingExpectedTemplateConstant      = "%s must be a mapping"
	sequenceExpectedTemplateConstant     = "%s must be a sequence"
	fieldRequiredTemplateConstant        = "%s requires field %q"
	fieldTypeTemplateConstant            = "field %q: %v"
	unknownElementKindTemplateConstant   = "unknown element kind %q"
	componentElementKindTemplateConstant = "element kind %q is not allowed at component level"
	parameterTypeTemplateConstant        = "parameter %q: %v"
	declarationTypeTemplateConstant      = "declaration %q: %v"
	referenceTargetTemplateConstant      = "%s requires a path or a variable"
	subjectTemplateConstant              = "%s:%s"
	kindFieldConstant                    = "kind"
	metaFieldConstant                    = "meta"
	componentsFieldConstant              = "components"
	elementsFieldConstant                = "elements"
	bodyFieldConstant                    = "body"
	nameFieldConstant                    = "name"
	valueFieldConstant                   = "value"
	segmentsFieldConstant                = "segments"
	variableFieldConstant                = "variable"
	sourceFieldConstant                  = "source"
	conditionFieldConstant               = "condition"
	operatorFieldConstant                = "operator"
	leftFieldConstant                    = "left"
	rightFieldConstant                   = "right"
	pathFieldConstant                    = "path"
	typeFieldConstant                    = "type"
	integerTagConstant                   = "!!int"
	booleanTagConstant                   = "!!bool"
	nullTagConstant                      = "!!null"
	documentDescriptionConstant          = "document"
	componentDescriptionConstant         = "component"
	elementDescriptionConstant           = "element"
	metadataDescriptionConstant          = "meta"
	blockDescriptionConstant             = "block"
	parameterDescriptionConstant         = "parameter"
	branchDescriptionConstant            = "branch"
	gatekeeperDescriptionConstant        = "gatekeeper"
	referenceDescriptionConstant         = "reference"
	functionDescriptionConstant          = "function"
	componentElementsDescriptionConstant = "component elements"
	inlineSourceDescriptionConstant      = "<inline>"
)

// LoadDocument reads a syntax tree document from disk.
func LoadDocument(filePath string) (*Document, error) {
	trimmedPath := strings.TrimSpace(filePath)
	if len(trimmedPath) == 0 {
		return nil, runtimeerrors.WrapMessage(runtimeerrors.OperationLoad, "", runtimeerrors.ErrInvalidDocument, documentPathRequiredMessageConstant)
	}
	contentBytes, readError := os.ReadFile(trimmedPath)
	if readError != nil {
		return nil, fmt.Errorf(documentReadErrorTemplateConstant, readError)
	}
	return ParseDocument(trimmedPath, contentBytes)
}

// ParseDocument decodes a YAML or JSON syntax tree document.
func ParseDocument(source string, contentBytes []byte) (*Document, error) {
	if len(source) == 0 {
		source = inlineSourceDescriptionConstant
	}
	var root yaml.Node
	if unmarshalError := yaml.Unmarshal(contentBytes, &root); unmarshalError != nil {
		return nil, fmt.Errorf(documentParseErrorTemplateConstant, unmarshalError)
	}
	decoderInstance := &decoder{source: source, tokens: make(TokenMap)}
	documentNode := &root
	if documentNode.Kind == yaml.DocumentNode && len(documentNode.Content) > 0 {
		documentNode = documentNode.Content[0]
	}
	fields, fieldsError := decoderInstance.fields(documentNode, documentDescriptionConstant)
	if fieldsError != nil {
		return nil, fieldsError
	}
	componentsNode, found := fields[componentsFieldConstant]
	if !found || componentsNode.Kind != yaml.SequenceNode {
		return nil, decoderInstance.fail(documentNode, documentComponentsMessageConstant)
	}
	document := &Document{Source: source, Tokens: decoderInstance.tokens}
	for _, componentNode := range componentsNode.Content {
		component, componentError := decoderInstance.component(componentNode)
		if componentError != nil {
			return nil, componentError
		}
		document.Components = append(document.Components, component)
	}
	return document, nil
}

type decoder struct {
	source string
	tokens TokenMap
	next   Token
}

func (decoderInstance *decoder) fail(node *yaml.Node, template string, arguments ...any) error {
	location := decoderInstance.source
	if node != nil {
		location = fmt.Sprintf(subjectTemplateConstant, decoderInstance.source, Position{Line: node.Line, Column: node.Column}.String())
	}
	return runtimeerrors.WrapMessage(runtimeerrors.OperationLoad, location, runtimeerrors.ErrInvalidDocument, fmt.Sprintf(template, arguments...))
}

func (decoderInstance *decoder) fields(node *yaml.Node, description string) (map[string]*yaml.Node, error) {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil, decoderInstance.fail(node, mappingExpectedTemplateConstant, description)
	}
	fields := make(map[string]*yaml.Node, len(node.Content)/2)
	for index := 0; index+1 < len(node.Content); index += 2 {
		fields[node.Content[index].Value] = node.Content[index+1]
	}
	return fields, nil
}

func (decoderInstance *decoder) sequence(node *yaml.Node, description string) ([]*yaml.Node, error) {
	if node == nil || node.Tag == nullTagConstant {
		return nil, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, decoderInstance.fail(node, sequenceExpectedTemplateConstant, description)
	}
	return node.Content, nil
}

func (decoderInstance *decoder) text(node *yaml.Node, fields map[string]*yaml.Node, name string, description string, required bool) (string, error) {
	fieldNode, found := fields[name]
	if !found {
		if required {
			return "", decoderInstance.fail(node, fieldRequiredTemplateConstant, description, name)
		}
		return "", nil
	}
	var decoded string
	if decodeError := fieldNode.Decode(&decoded); decodeError != nil {
		return "", decoderInstance.fail(fieldNode, fieldTypeTemplateConstant, name, decodeError)
	}
	return strings.TrimSpace(decoded), nil
}

func (decoderInstance *decoder) metadata(node *yaml.Node, fields map[string]*yaml.Node) (Metadata, error) {
	token := decoderInstance.next
	decoderInstance.next++
	decoderInstance.tokens[token] = Position{Line: node.Line, Column: node.Column}
	metadata := Metadata{Token: token}

	metaNode, found := fields[metaFieldConstant]
	if !found {
		return metadata, nil
	}
	var envelope struct {
		Comments  []string  `yaml:"comments"`
		Doc       string    `yaml:"doc"`
		Pipeline  yaml.Node `yaml:"ppm"`
		Tolerant  bool      `yaml:"tolerant"`
		Inverting bool      `yaml:"inverting"`
	}
	if decodeError := metaNode.Decode(&envelope); decodeError != nil {
		return metadata, decoderInstance.fail(metaNode, fieldTypeTemplateConstant, metaFieldConstant, decodeError)
	}
	metadata.Comments = envelope.Comments
	metadata.Doc = envelope.Doc
	metadata.Tolerant = envelope.Tolerant
	metadata.Inverting = envelope.Inverting
	if envelope.Pipeline.Kind != 0 {
		pipelineNodes, sequenceError := decoderInstance.sequence(&envelope.Pipeline, metadataDescriptionConstant)
		if sequenceError != nil {
			return metadata, sequenceError
		}
		for _, methodNode := range pipelineNodes {
			method, methodError := decoderInstance.element(methodNode)
			if methodError != nil {
				return metadata, methodError
			}
			metadata.Pipeline = append(metadata.Pipeline, method)
		}
	}
	return metadata, nil
}

func (decoderInstance *decoder) component(node *yaml.Node) (*Component, error) {
	fields, fieldsError := decoderInstance.fields(node, componentDescriptionConstant)
	if fieldsError != nil {
		return nil, fieldsError
	}
	metadata, metadataError := decoderInstance.metadata(node, fields)
	if metadataError != nil {
		return nil, metadataError
	}
	component := &Component{Metadata: metadata}
	if component.Name, fieldsError = decoderInstance.text(node, fields, nameFieldConstant, componentDescriptionConstant, true); fieldsError != nil {
		return nil, fieldsError
	}
	if component.Cwd, fieldsError = decoderInstance.text(node, fields, "cwd", componentDescriptionConstant, false); fieldsError != nil {
		return nil, fieldsError
	}
	if component.EnvFile, fieldsError = decoderInstance.text(node, fields, "env_file", componentDescriptionConstant, false); fieldsError != nil {
		return nil, fieldsError
	}
	elementNodes, sequenceError := decoderInstance.sequence(fields[elementsFieldConstant], componentElementsDescriptionConstant)
	if sequenceError != nil {
		return nil, sequenceError
	}
	for _, elementNode := range elementNodes {
		element, elementError := decoderInstance.element(elementNode)
		if elementError != nil {
			return nil, elementError
		}
		switch element.(type) {
		case *Task, *Meta, *Comment:
			component.Elements = append(component.Elements, element)
		default:
			return nil, decoderInstance.fail(elementNode, componentElementKindTemplateConstant, element.Kind())
		}
	}
	return component, nil
}

func (decoderInstance *decoder) block(node *yaml.Node) (*Block, error) {
	if node == nil || node.Tag == nullTagConstant {
		return &Block{Metadata: Metadata{Token: decoderInstance.allocate(node)}}, nil
	}
	if node.Kind == yaml.SequenceNode {
		block := &Block{Metadata: Metadata{Token: decoderInstance.allocate(node)}}
		elements, elementsError := decoderInstance.elements(node, blockDescriptionConstant)
		if elementsError != nil {
			return nil, elementsError
		}
		block.Elements = elements
		return block, nil
	}
	element, elementError := decoderInstance.element(node)
	if elementError != nil {
		return nil, elementError
	}
	if block, isBlock := element.(*Block); isBlock {
		return block, nil
	}
	return &Block{Metadata: Metadata{Token: element.Meta().Token}, Elements: []Element{element}}, nil
}

func (decoderInstance *decoder) allocate(node *yaml.Node) Token {
	token := decoderInstance.next
	decoderInstance.next++
	if node != nil {
		decoderInstance.tokens[token] = Position{Line: node.Line, Column: node.Column}
	}
	return token
}

func (decoderInstance *decoder) elements(node *yaml.Node, description string) ([]Element, error) {
	nodes, sequenceError := decoderInstance.sequence(node, description)
	if sequenceError != nil {
		return nil, sequenceError
	}
	elements := make([]Element, 0, len(nodes))
	for _, elementNode := range nodes {
		element, elementError := decoderInstance.element(elementNode)
		if elementError != nil {
			return nil, elementError
		}
		elements = append(elements, element)
	}
	return elements, nil
}

func (decoderInstance *decoder) optionalElement(fields map[string]*yaml.Node, name string) (Element, error) {
	fieldNode, found := fields[name]
	if !found || fieldNode.Tag == nullTagConstant {
		return nil, nil
	}
	return decoderInstance.element(fieldNode)
}

func (decoderInstance *decoder) requiredElement(node *yaml.Node, fields map[string]*yaml.Node, name string, description string) (Element, error) {
	element, elementError := decoderInstance.optionalElement(fields, name)
	if elementError != nil {
		return nil, elementError
	}
	if element == nil {
		return nil, decoderInstance.fail(node, fieldRequiredTemplateConstant, description, name)
	}
	return element, nil
}

func (decoderInstance *decoder) scalar(node *yaml.Node) (Element, error) {
	metadata := Metadata{Token: decoderInstance.allocate(node)}
	switch node.Tag {
	case integerTagConstant:
		var decoded int64
		if decodeError := node.Decode(&decoded); decodeError != nil {
			return nil, decoderInstance.fail(node, fieldTypeTemplateConstant, valueFieldConstant, decodeError)
		}
		return &Integer{Metadata: metadata, Value: decoded}, nil
	case booleanTagConstant:
		var decoded bool
		if decodeError := node.Decode(&decoded); decodeError != nil {
			return nil, decoderInstance.fail(node, fieldTypeTemplateConstant, valueFieldConstant, decodeError)
		}
		return &Boolean{Metadata: metadata, Value: decoded}, nil
	default:
		return &SimpleString{Metadata: metadata, Value: node.Value}, nil
	}
}

func (decoderInstance *decoder) element(node *yaml.Node) (Element, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return decoderInstance.scalar(node)
	case yaml.SequenceNode:
		token := decoderInstance.allocate(node)
		elements, elementsError := decoderInstance.elements(node, elementDescriptionConstant)
		if elementsError != nil {
			return nil, elementsError
		}
		return &Values{Metadata: Metadata{Token: token}, Elements: elements}, nil
	}
	fields, fieldsError := decoderInstance.fields(node, elementDescriptionConstant)
	if fieldsError != nil {
		return nil, fieldsError
	}
	kind, kindError := decoderInstance.text(node, fields, kindFieldConstant, elementDescriptionConstant, true)
	if kindError != nil {
		return nil, kindError
	}
	metadata, metadataError := decoderInstance.metadata(node, fields)
	if metadataError != nil {
		return nil, metadataError
	}
	builder, known := elementBuilders[ElementKind(kind)]
	if !known {
		return nil, decoderInstance.fail(node, unknownElementKindTemplateConstant, kind)
	}
	return builder(decoderInstance, node, fields, metadata)
}

type elementBuilder func(*decoder, *yaml.Node, map[string]*yaml.Node, Metadata) (Element, error)

var elementBuilders map[ElementKind]elementBuilder

func init() {
	elementBuilders = map[ElementKind]elementBuilder{
		KindTask:                buildTask,
		KindBlock:               buildBlock,
		KindMeta:                buildMeta,
		KindComment:             buildComment,
		KindReference:           buildReference,
		KindClosure:             buildClosure,
		KindFunction:            buildFunction,
		KindJoin:                buildJoin,
		KindCommand:             buildCommand,
		KindEach:                buildEach,
		KindFor:                 buildFor,
		KindLoop:                buildLoop,
		KindWhile:               buildWhile,
		KindFirst:               buildFirst,
		KindOptional:            buildOptional,
		KindIf:                  buildIf,
		KindBreaker:             buildBreaker,
		KindReturn:              buildReturn,
		KindCombination:         buildBinary,
		KindComparing:           buildBinary,
		KindCompute:             buildBinary,
		KindIncrementer:         buildIncrementer,
		KindVariableName:        buildVariableName,
		KindVariableAssignation: buildAssignation,
		KindVariableDeclaration: buildDeclaration,
		KindValues:              buildValues,
		KindRange:               buildRange,
		KindInteger:             buildInteger,
		KindBoolean:             buildBoolean,
		KindSimpleString:        buildSimpleString,
		KindPatternString:       buildPatternString,
		KindError:               buildError,
		KindAccessor:            buildAccessor,
	}
}

func buildTask(decoderInstance *decoder, node *yaml.Node, fields map[string]*yaml.Node, metadata Metadata) (Element, error) {
	task := &Task{Metadata: metadata}
	var nameError error
	if task.Name, nameError = decoderInstance.text(node, fields, nameFieldConstant, string(KindTask), true); nameError != nil {
		return nil, nameError
	}
	parameterNodes, sequenceError := decoderInstance.sequence(fields["params"], parameterDescriptionConstant)
	if sequenceError != nil {
		return nil, sequenceError
	}
	for _, parameterNode := range parameterNodes {
		parameterFields, fieldsError := decoderInstance.fields(parameterNode, parameterDescriptionConstant)
		if fieldsError != nil {
			return nil, fieldsError
		}
		parameterName, parameterNameError := decoderInstance.text(parameterNode, parameterFields, nameFieldConstant, parameterDescriptionConstant, true)
		if parameterNameError != nil {
			return nil, parameterNameError
		}
		rawType, rawTypeError := decoderInstance.text(parameterNode, parameterFields, typeFieldConstant, parameterDescriptionConstant, false)
		if rawTypeError != nil {
			return nil, rawTypeError
		}
		parameterType, parseError := values.ParseRef(rawType)
		if parseError != nil {
			return nil, decoderInstance.fail(parameterNode, parameterTypeTemplateConstant, parameterName, parseError)
		}
		task.Parameters = append(task.Parameters, Parameter{Name: parameterName, Type: parameterType})
	}
	gatekeeperNodes, gatekeeperSequenceError := decoderInstance.sequence(fields["gatekeepers"], gatekeeperDescriptionConstant)
	if gatekeeperSequenceError != nil {
		return nil, gatekeeperSequenceError
	}
	for _, gatekeeperNode := range gatekeeperNodes {
		gatekeeper, gatekeeperError := decoderInstance.gatekeeper(gatekeeperNode)
		if gatekeeperError != nil {
			return nil, gatekeeperError
		}
		task.Gatekeepers = append(task.Gatekeepers, gatekeeper)
	}
	body, bodyError := decoderInstance.block(fields[bodyFieldConstant])
	if bodyError != nil {
		return nil, bodyError
	}
	task.Body = body
	return task, nil
}

func (decoderInstance *decoder) gatekeeper(node *yaml.Node) (*Gatekeeper, error) {
	fields, fieldsError := decoderInstance.fields(node, gatekeeperDescriptionConstant)
	if fieldsError != nil {
		return nil, fieldsError
	}
	metadata, metadataError := decoderInstance.metadata(node, fields)
	if metadataError != nil {
		return nil, metadataError
	}
	gatekeeper := &Gatekeeper{Metadata: metadata}
	functionNode, found := fields[string(KindFunction)]
	if !found {
		return nil, decoderInstance.fail(node, fieldRequiredTemplateConstant, gatekeeperDescriptionConstant, KindFunction)
	}
	functionFields, functionFieldsError := decoderInstance.fields(functionNode, functionDescriptionConstant)
	if functionFieldsError != nil {
		return nil, functionFieldsError
	}
	functionMetadata, functionMetadataError := decoderInstance.metadata(functionNode, functionFields)
	if functionMetadataError != nil {
		return nil, functionMetadataError
	}
	functionElement, functionError := buildFunction(decoderInstance, functionNode, functionFields, functionMetadata)
	if functionError != nil {
		return nil, functionError
	}
	gatekeeper.Function = functionElement.(*Function)
	targetNodes, sequenceError := decoderInstance.sequence(fields["targets"], referenceDescriptionConstant)
	if sequenceError != nil {
		return nil, sequenceError
	}
	for _, targetNode := range targetNodes {
		target, targetError := decoderInstance.reference(targetNode)
		if targetError != nil {
			return nil, targetError
		}
		gatekeeper.Targets = append(gatekeeper.Targets, target)
	}
	return gatekeeper, nil
}

func (decoderInstance *decoder) reference(node *yaml.Node) (*Reference, error) {
	if node.Kind == yaml.ScalarNode {
		return &Reference{Metadata: Metadata{Token: decoderInstance.allocate(node)}, Path: ParsePath(node.Value)}, nil
	}
	element, elementError := decoderInstance.element(node)
	if elementError != nil {
		return nil, elementError
	}
	reference, isReference := element.(*Reference)
	if !isReference {
		return nil, decoderInstance.fail(node, mappingExpectedTemplateConstant, referenceDescriptionConstant)
	}
	return reference, nil
}

func buildBlock(decoderInstance *decoder, node *yaml.Node, fields map[string]*yaml.Node, metadata Metadata) (Element, error) {
	elements, elementsError := decoderInstance.elements(fields[elementsFieldConstant], blockDescriptionConstant)
	if elementsError != nil {
		return nil, elementsError
	}
	return &Block{Metadata: metadata, Elements: elements}, nil
}

func buildMeta(decoderInstance *decoder, node *yaml.Node, fields map[string]*yaml.Node, metadata Metadata) (Element, error) {
	key, keyError := decoderInstance.text(node, fields, "key", string(KindMeta), true)
	if keyError != nil {
		return nil, keyError
	}
	value, valueError := decoderInstance.text(node, fields, valueFieldConstant, string(KindMeta), false)
	if valueError != nil {
		return nil, valueError
	}
	return &Meta{Metadata: metadata, Key: key, Value: value}, nil
}

func buildComment(decoderInstance *decoder, node *yaml.Node, fields map[string]*yaml.Node, metadata Metadata) (Element, error) {
	text, textError := decoderInstance.text(node, fields, "text", string(KindComment), false)
	if textError != nil {
		return nil, textError
	}
	return &Comment{Metadata: metadata, Text: text}, nil
}

func buildReference(decoderInstance *decoder, node *yaml.Node, fields map[string]*yaml.Node, metadata Metadata) (Element, error) {
	reference := &Reference{Metadata: metadata}
	rawPath, pathError := decoderInstance.text(node, fields, pathFieldConstant, string(KindReference), false)
	if pathError != nil {
		return nil, pathError
	}
	reference.Path = ParsePath(rawPath)
	variable, variableError := decoderInstance.text(node, fields, variableFieldConstant, string(KindReference), false)
	if variableError != nil {
		return nil, variableError
	}
	reference.Variable = strings.TrimPrefix(variable, "$")
	if len(reference.Path) == 0 && len(reference.Variable) == 0 {
		return nil, decoderInstance.fail(node, referenceTargetTemplateConstant, KindReference)
	}
	inputs, inputsError := decoderInstance.elements(fields["inputs"], string(KindReference))
	if inputsError != nil {
		return nil, inputsError
	}
	reference.Inputs = inputs
	return reference, nil
}

func buildClosure(decoderInstance *decoder, node *yaml.Node, fields map[string]*yaml.Node, metadata Metadata) (Element, error) {
	rawPath, pathError := decoderInstance.text(node, fields, pathFieldConstant, string(KindClosure), true)
	if pathError != nil {
		return nil, pathError
	}
	return &Closure{Metadata: metadata, Path: ParsePath(rawPath)}, nil
}

func buildFunction(decoderInstance *decoder, node *yaml.Node, fields map[string]*yaml.Node, metadata Metadata) (Element, error) {
	name, nameError := decoderInstance.text(node, fields, nameFieldConstant, string(KindFunction), true)
	if nameError != nil {
		return nil, nameError
	}
	arguments, argumentsError := decoderInstance.elements(fields["args"], string(KindFunction))
	if argumentsError != nil {
		return nil, argumentsError
	}
	return &Function{Metadata: metadata, Name: name, Arguments: arguments}, nil
}

func buildJoin(decoderInstance *decoder, node *yaml.Node, fields map[string]*yaml.Node, metadata Metadata) (Element, error) {
	referenceNodes, sequenceError := decoderInstance.sequence(fields["references"], string(KindJoin))
	if sequenceError != nil {
		return nil, sequenceError
	}
	join := &Join{Metadata: metadata}
	for _, referenceNode := range referenceNodes {
		reference, referenceError := decoderInstance.reference(referenceNode)
		if referenceError != nil {
			return nil, referenceError
		}
		join.References = append(join.References, reference)
	}
	return join, nil
}

func buildCommand(decoderInstance *decoder, node *yaml.Node, fields map[string]*yaml.Node, metadata Metadata) (Element, error) {
	if lineNode, found := fields["line"]; found {
		segment, segmentError := decoderInstance.scalar(lineNode)
		if segmentError != nil {
			return nil, segmentError
		}
		return &Command{Metadata: metadata, Segments: []Element{segment}}, nil
	}
	segments, segmentsError := decoderInstance.elements(fields[segmentsFieldConstant], string(KindCommand))
	if segmentsError != nil {
		return nil, segmentsError
	}
	return &Command{Metadata: metadata, Segments: segments}, nil
}

func (decoderInstance *decoder) iteration(node *yaml.Node, fields map[string]*yaml.Node, kind ElementKind) (string, Element, *Block, error) {
	variable, variableError := decoderInstance.text(node, fields, variableFieldConstant, string(kind), true)
	if variableError != nil {
		return "", nil, nil, variableError
	}
	source, sourceError := decoderInstance.requiredElement(node, fields, sourceFieldConstant, string(kind))
	if sourceError != nil {
		return "", nil, nil, sourceError
	}
	body, bodyError := decoderInstance.block(fields[bodyFieldConstant])
	if bodyError != nil {
		return "", nil, nil, bodyError
	}
	return strings.TrimPrefix(variable, "$"), source, body, nil
}

func buildEach(decoderInstance *decoder, node *yaml.Node, fields map[string]*yaml.Node, metadata Metadata) (Element, error) {
	variable, source, body, iterationError := decoderInstance.iteration(node, fields, KindEach)
	if iterationError != nil {
		return nil, iterationError
	}
	return &Each{Metadata: metadata, Variable: variable, Source: source, Body: body}, nil
}

func buildFor(decoderInstance *decoder, node *yaml.Node, fields map[string]*yaml.Node, metadata Metadata) (Element, error) {
	variable, source, body, iterationError := decoderInstance.iteration(node, fields, KindFor)
	if iterationError != nil {
		return nil, iterationError
	}
	return &For{Metadata: metadata, Variable: variable, Source: source, Body: body}, nil
}

func buildLoop(decoderInstance *decoder, node *yaml.Node, fields map[string]*yaml.Node, metadata Metadata) (Element, error) {
	body, bodyError := decoderInstance.block(fields[bodyFieldConstant])
	if bodyError != nil {
		return nil, bodyError
	}
	return &Loop{Metadata: metadata, Body: body}, nil
}

func buildWhile(decoderInstance *decoder, node *yaml.Node, fields map[string]*yaml.Node, metadata Metadata) (Element, error) {
	condition, conditionError := decoderInstance.requiredElement(node, fields, conditionFieldConstant, string(KindWhile))
	if conditionError != nil {
		return nil, conditionError
	}
	body, bodyError := decoderInstance.block(fields[bodyFieldConstant])
	if bodyError != nil {
		return nil, bodyError
	}
	return &While{Metadata: metadata, Condition: condition, Body: body}, nil
}

func buildFirst(decoderInstance *decoder, node *yaml.Node, fields map[string]*yaml.Node, metadata Metadata) (Element, error) {
	alternatives, alternativesError := decoderInstance.elements(fields[elementsFieldConstant], string(KindFirst))
	if alternativesError != nil {
		return nil, alternativesError
	}
	return &First{Metadata: metadata, Alternatives: alternatives}, nil
}

func buildOptional(decoderInstance *decoder, node *yaml.Node, fields map[string]*yaml.Node, metadata Metadata) (Element, error) {
	condition, conditionError := decoderInstance.requiredElement(node, fields, conditionFieldConstant, string(KindOptional))
	if conditionError != nil {
		return nil, conditionError
	}
	action, actionError := decoderInstance.requiredElement(node, fields, "action", string(KindOptional))
	if actionError != nil {
		return nil, actionError
	}
	return &Optional{Metadata: metadata, Condition: condition, Action: action}, nil
}

func buildIf(decoderInstance *decoder, node *yaml.Node, fields map[string]*yaml.Node, metadata Metadata) (Element, error) {
	branchNodes, sequenceError := decoderInstance.sequence(fields["branches"], branchDescriptionConstant)
	if sequenceError != nil {
		return nil, sequenceError
	}
	conditional := &If{Metadata: metadata}
	for _, branchNode := range branchNodes {
		branchFields, fieldsError := decoderInstance.fields(branchNode, branchDescriptionConstant)
		if fieldsError != nil {
			return nil, fieldsError
		}
		condition, conditionError := decoderInstance.requiredElement(branchNode, branchFields, conditionFieldConstant, branchDescriptionConstant)
		if conditionError != nil {
			return nil, conditionError
		}
		body, bodyError := decoderInstance.block(branchFields[bodyFieldConstant])
		if bodyError != nil {
			return nil, bodyError
		}
		conditional.Branches = append(conditional.Branches, Branch{Condition: condition, Body: body})
	}
	if len(conditional.Branches) == 0 {
		return nil, decoderInstance.fail(node, fieldRequiredTemplateConstant, KindIf, "branches")
	}
	if elseNode, found := fields["else"]; found {
		fallback, fallbackError := decoderInstance.block(elseNode)
		if fallbackError != nil {
			return nil, fallbackError
		}
		conditional.Else = fallback
	}
	return conditional, nil
}

func buildBreaker(decoderInstance *decoder, node *yaml.Node, fields map[string]*yaml.Node, metadata Metadata) (Element, error) {
	return &Breaker{Metadata: metadata}, nil
}

func buildReturn(decoderInstance *decoder, node *yaml.Node, fields map[string]*yaml.Node, metadata Metadata) (Element, error) {
	value, valueError := decoderInstance.optionalElement(fields, valueFieldConstant)
	if valueError != nil {
		return nil, valueError
	}
	return &Return{Metadata: metadata, Value: value}, nil
}

func buildBinary(decoderInstance *decoder, node *yaml.Node, fields map[string]*yaml.Node, metadata Metadata) (Element, error) {
	kind, _ := decoderInstance.text(node, fields, kindFieldConstant, elementDescriptionConstant, true)
	operator, operatorError := decoderInstance.text(node, fields, operatorFieldConstant, kind, true)
	if operatorError != nil {
		return nil, operatorError
	}
	left, leftError := decoderInstance.requiredElement(node, fields, leftFieldConstant, kind)
	if leftError != nil {
		return nil, leftError
	}
	right, rightError := decoderInstance.requiredElement(node, fields, rightFieldConstant, kind)
	if rightError != nil {
		return nil, rightError
	}
	switch ElementKind(kind) {
	case KindCombination:
		return &Combination{Metadata: metadata, Operator: operator, Left: left, Right: right}, nil
	case KindComparing:
		return &Comparing{Metadata: metadata, Operator: operator, Left: left, Right: right}, nil
	default:
		return &Compute{Metadata: metadata, Operator: operator, Left: left, Right: right}, nil
	}
}

func buildIncrementer(decoderInstance *decoder, node *yaml.Node, fields map[string]*yaml.Node, metadata Metadata) (Element, error) {
	variable, variableError := decoderInstance.text(node, fields, variableFieldConstant, string(KindIncrementer), true)
	if variableError != nil {
		return nil, variableError
	}
	operator, operatorError := decoderInstance.text(node, fields, operatorFieldConstant, string(KindIncrementer), true)
	if operatorError != nil {
		return nil, operatorError
	}
	value, valueError := decoderInstance.requiredElement(node, fields, valueFieldConstant, string(KindIncrementer))
	if valueError != nil {
		return nil, valueError
	}
	return &Incrementer{Metadata: metadata, Variable: strings.TrimPrefix(variable, "$"), Operator: operator, Value: value}, nil
}

func buildVariableName(decoderInstance *decoder, node *yaml.Node, fields map[string]*yaml.Node, metadata Metadata) (Element, error) {
	name, nameError := decoderInstance.text(node, fields, nameFieldConstant, string(KindVariableName), true)
	if nameError != nil {
		return nil, nameError
	}
	return &VariableName{Metadata: metadata, Name: strings.TrimPrefix(name, "$")}, nil
}

func buildAssignation(decoderInstance *decoder, node *yaml.Node, fields map[string]*yaml.Node, metadata Metadata) (Element, error) {
	name, nameError := decoderInstance.text(node, fields, nameFieldConstant, string(KindVariableAssignation), true)
	if nameError != nil {
		return nil, nameError
	}
	value, valueError := decoderInstance.requiredElement(node, fields, valueFieldConstant, string(KindVariableAssignation))
	if valueError != nil {
		return nil, valueError
	}
	return &VariableAssignation{Metadata: metadata, Name: strings.TrimPrefix(name, "$"), Value: value}, nil
}

func buildDeclaration(decoderInstance *decoder, node *yaml.Node, fields map[string]*yaml.Node, metadata Metadata) (Element, error) {
	name, nameError := decoderInstance.text(node, fields, nameFieldConstant, string(KindVariableDeclaration), true)
	if nameError != nil {
		return nil, nameError
	}
	name = strings.TrimPrefix(name, "$")
	rawType, rawTypeError := decoderInstance.text(node, fields, typeFieldConstant, string(KindVariableDeclaration), false)
	if rawTypeError != nil {
		return nil, rawTypeError
	}
	declaredType, parseError := values.ParseRef(rawType)
	if parseError != nil {
		return nil, decoderInstance.fail(node, declarationTypeTemplateConstant, name, parseError)
	}
	value, valueError := decoderInstance.optionalElement(fields, valueFieldConstant)
	if valueError != nil {
		return nil, valueError
	}
	return &VariableDeclaration{Metadata: metadata, Name: name, Type: declaredType, Value: value}, nil
}

func buildValues(decoderInstance *decoder, node *yaml.Node, fields map[string]*yaml.Node, metadata Metadata) (Element, error) {
	elements, elementsError := decoderInstance.elements(fields[elementsFieldConstant], string(KindValues))
	if elementsError != nil {
		return nil, elementsError
	}
	return &Values{Metadata: metadata, Elements: elements}, nil
}

func buildRange(decoderInstance *decoder, node *yaml.Node, fields map[string]*yaml.Node, metadata Metadata) (Element, error) {
	from, fromError := decoderInstance.requiredElement(node, fields, "from", string(KindRange))
	if fromError != nil {
		return nil, fromError
	}
	to, toError := decoderInstance.requiredElement(node, fields, "to", string(KindRange))
	if toError != nil {
		return nil, toError
	}
	return &Range{Metadata: metadata, From: from, To: to}, nil
}

func buildInteger(decoderInstance *decoder, node *yaml.Node, fields map[string]*yaml.Node, metadata Metadata) (Element, error) {
	valueNode, found := fields[valueFieldConstant]
	if !found {
		return nil, decoderInstance.fail(node, fieldRequiredTemplateConstant, KindInteger, valueFieldConstant)
	}
	var decoded int64
	if decodeError := valueNode.Decode(&decoded); decodeError != nil {
		return nil, decoderInstance.fail(valueNode, fieldTypeTemplateConstant, valueFieldConstant, decodeError)
	}
	return &Integer{Metadata: metadata, Value: decoded}, nil
}

func buildBoolean(decoderInstance *decoder, node *yaml.Node, fields map[string]*yaml.Node, metadata Metadata) (Element, error) {
	valueNode, found := fields[valueFieldConstant]
	if !found {
		return nil, decoderInstance.fail(node, fieldRequiredTemplateConstant, KindBoolean, valueFieldConstant)
	}
	var decoded bool
	if decodeError := valueNode.Decode(&decoded); decodeError != nil {
		return nil, decoderInstance.fail(valueNode, fieldTypeTemplateConstant, valueFieldConstant, decodeError)
	}
	return &Boolean{Metadata: metadata, Value: decoded}, nil
}

func buildSimpleString(decoderInstance *decoder, node *yaml.Node, fields map[string]*yaml.Node, metadata Metadata) (Element, error) {
	value := ""
	if valueNode, found := fields[valueFieldConstant]; found {
		value = valueNode.Value
	}
	return &SimpleString{Metadata: metadata, Value: value}, nil
}

func buildPatternString(decoderInstance *decoder, node *yaml.Node, fields map[string]*yaml.Node, metadata Metadata) (Element, error) {
	segments, segmentsError := decoderInstance.elements(fields[segmentsFieldConstant], string(KindPatternString))
	if segmentsError != nil {
		return nil, segmentsError
	}
	return &PatternString{Metadata: metadata, Segments: segments}, nil
}

func buildError(decoderInstance *decoder, node *yaml.Node, fields map[string]*yaml.Node, metadata Metadata) (Element, error) {
	message, messageError := decoderInstance.text(node, fields, "message", string(KindError), false)
	if messageError != nil {
		return nil, messageError
	}
	return &Error{Metadata: metadata, Message: message}, nil
}

func buildAccessor(decoderInstance *decoder, node *yaml.Node, fields map[string]*yaml.Node, metadata Metadata) (Element, error) {
	index, indexError := decoderInstance.requiredElement(node, fields, "index", string(KindAccessor))
	if indexError != nil {
		return nil, indexError
	}
	return &Accessor{Metadata: metadata, Index: index}, nil
}
