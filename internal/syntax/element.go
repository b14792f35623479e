// Package syntax defines the read-only syntax tree consumed by the linker and the
// evaluator, together with the loader reading tree documents produced by the parser.
package syntax

import (
	"fmt"
	"strings"

	"github.com/tyemirov/taskscript/internal/values"
)

// Token identifies the source token an element was built from.
type Token int

// ElementKind names an element variant.
type ElementKind string

// Supported element kinds.
const (
	KindComponent           ElementKind = "component"
	KindTask                ElementKind = "task"
	KindBlock               ElementKind = "block"
	KindGatekeeper          ElementKind = "gatekeeper"
	KindMeta                ElementKind = "meta"
	KindComment             ElementKind = "comment"
	KindReference           ElementKind = "reference"
	KindClosure             ElementKind = "closure"
	KindFunction            ElementKind = "function"
	KindJoin                ElementKind = "join"
	KindCommand             ElementKind = "command"
	KindEach                ElementKind = "each"
	KindFor                 ElementKind = "for"
	KindLoop                ElementKind = "loop"
	KindWhile               ElementKind = "while"
	KindFirst               ElementKind = "first"
	KindOptional            ElementKind = "optional"
	KindIf                  ElementKind = "if"
	KindBreaker             ElementKind = "break"
	KindReturn              ElementKind = "return"
	KindCombination         ElementKind = "combination"
	KindComparing           ElementKind = "comparing"
	KindCompute             ElementKind = "compute"
	KindIncrementer         ElementKind = "increment"
	KindVariableName        ElementKind = "variable"
	KindVariableAssignation ElementKind = "assign"
	KindVariableDeclaration ElementKind = "declare"
	KindValues              ElementKind = "values"
	KindRange               ElementKind = "range"
	KindInteger             ElementKind = "integer"
	KindBoolean             ElementKind = "boolean"
	KindSimpleString        ElementKind = "string"
	KindPatternString       ElementKind = "pattern"
	KindError               ElementKind = "error"
	KindAccessor            ElementKind = "accessor"
)

// SelfComponentConstant aliases the owning component in reference paths.
const SelfComponentConstant = "self"

// Metadata is the envelope every element carries.
type Metadata struct {
	Token     Token
	Comments  []string
	Doc       string
	Pipeline  []Element
	Tolerant  bool
	Inverting bool
}

// Meta exposes the element metadata.
func (metadata *Metadata) Meta() *Metadata {
	return metadata
}

// Element is the closed set of syntax tree nodes.
type Element interface {
	Meta() *Metadata
	Kind() ElementKind
	sealedElement()
}

// Component groups tasks sharing a working directory.
type Component struct {
	Metadata
	Name     string
	Cwd      string
	EnvFile  string
	Elements []Element
}

// Tasks returns the component's tasks in declaration order.
func (component *Component) Tasks() []*Task {
	tasks := make([]*Task, 0, len(component.Elements))
	for _, element := range component.Elements {
		if task, isTask := element.(*Task); isTask {
			tasks = append(tasks, task)
		}
	}
	return tasks
}

// Task finds a task by name.
func (component *Component) Task(name string) (*Task, bool) {
	for _, task := range component.Tasks() {
		if task.Name == name {
			return task, true
		}
	}
	return nil, false
}

// Parameter is a declared task parameter.
type Parameter struct {
	Name string
	Type values.ValueRef
}

// Task is a named, parameterized unit of execution.
type Task struct {
	Metadata
	Name        string
	Parameters  []Parameter
	Gatekeepers []*Gatekeeper
	Body        *Block
}

// Arity returns the accepted argument count range; maximum is -1 when a trailing
// repeated parameter absorbs extra arguments.
func (task *Task) Arity() (int, int) {
	minimum := 0
	for index, parameter := range task.Parameters {
		if !parameter.Type.IsOptional() {
			minimum = index + 1
		}
	}
	if len(task.Parameters) > 0 && task.Parameters[len(task.Parameters)-1].Type.Kind == values.RefRepeated {
		return minimum, -1
	}
	return minimum, len(task.Parameters)
}

// Block is an ordered statement sequence.
type Block struct {
	Metadata
	Elements []Element
}

// Gatekeeper guards task invocations with a boolean function.
type Gatekeeper struct {
	Metadata
	Function *Function
	Targets  []*Reference
}

// Meta attaches a documentation key to a component.
type Meta struct {
	Metadata
	Key   string
	Value string
}

// Comment is a standalone comment statement.
type Comment struct {
	Metadata
	Text string
}

// Reference calls a task by path, or through a variable holding a task reference.
type Reference struct {
	Metadata
	Path     []string
	Variable string
	Inputs   []Element
}

// ParsePath splits "task", "component:task" or "self:task" into segments.
func ParsePath(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	segments := strings.Split(trimmed, ":")
	for index := range segments {
		segments[index] = strings.TrimSpace(segments[index])
	}
	return segments
}

// PathString renders the reference target.
func (reference *Reference) PathString() string {
	if len(reference.Variable) > 0 {
		return "$" + reference.Variable
	}
	return strings.Join(reference.Path, ":")
}

// Closure produces a task reference value without invoking it.
type Closure struct {
	Metadata
	Path []string
}

// Function calls a built-in function.
type Function struct {
	Metadata
	Name      string
	Arguments []Element
}

// Join evaluates references concurrently.
type Join struct {
	Metadata
	References []*Reference
}

// Command spawns a shell command built from its segments.
type Command struct {
	Metadata
	Segments []Element
}

// Each iterates over the elements of a vector.
type Each struct {
	Metadata
	Variable string
	Source   Element
	Body     *Block
}

// For iterates over a half-open integer range.
type For struct {
	Metadata
	Variable string
	Source   Element
	Body     *Block
}

// Loop iterates until broken.
type Loop struct {
	Metadata
	Body *Block
}

// While iterates while its condition holds.
type While struct {
	Metadata
	Condition Element
	Body      *Block
}

// First yields the first non-empty alternative.
type First struct {
	Metadata
	Alternatives []Element
}

// Optional evaluates its action only when its condition holds.
type Optional struct {
	Metadata
	Condition Element
	Action    Element
}

// Branch is one conditional arm of an If.
type Branch struct {
	Condition Element
	Body      *Block
}

// If evaluates the first branch whose condition holds, else the fallback.
type If struct {
	Metadata
	Branches []Branch
	Else     *Block
}

// Breaker stops the innermost loop.
type Breaker struct {
	Metadata
}

// Return sets the enclosing task's result.
type Return struct {
	Metadata
	Value Element
}

// Combination joins booleans with && or ||.
type Combination struct {
	Metadata
	Operator string
	Left     Element
	Right    Element
}

// Comparing compares two values.
type Comparing struct {
	Metadata
	Operator string
	Left     Element
	Right    Element
}

// Compute applies arithmetic or concatenation.
type Compute struct {
	Metadata
	Operator string
	Left     Element
	Right    Element
}

// Incrementer applies += or -= to a variable.
type Incrementer struct {
	Metadata
	Variable string
	Operator string
	Value    Element
}

// VariableName reads a variable.
type VariableName struct {
	Metadata
	Name string
}

// VariableAssignation updates a binding, declaring it in the active scope when absent.
type VariableAssignation struct {
	Metadata
	Name  string
	Value Element
}

// VariableDeclaration declares a typed binding in the active scope.
type VariableDeclaration struct {
	Metadata
	Name  string
	Type  values.ValueRef
	Value Element
}

// Values builds a vector.
type Values struct {
	Metadata
	Elements []Element
}

// Range builds an integer range.
type Range struct {
	Metadata
	From Element
	To   Element
}

// Integer is an integer literal.
type Integer struct {
	Metadata
	Value int64
}

// Boolean is a boolean literal.
type Boolean struct {
	Metadata
	Value bool
}

// SimpleString is a string literal.
type SimpleString struct {
	Metadata
	Value string
}

// PatternString interpolates its segments into a string.
type PatternString struct {
	Metadata
	Segments []Element
}

// Error is an error literal.
type Error struct {
	Metadata
	Message string
}

// Accessor indexes into the parent value of a pipeline.
type Accessor struct {
	Metadata
	Index Element
}

func (*Component) Kind() ElementKind           { return KindComponent }
func (*Task) Kind() ElementKind                { return KindTask }
func (*Block) Kind() ElementKind               { return KindBlock }
func (*Gatekeeper) Kind() ElementKind          { return KindGatekeeper }
func (*Meta) Kind() ElementKind                { return KindMeta }
func (*Comment) Kind() ElementKind             { return KindComment }
func (*Reference) Kind() ElementKind           { return KindReference }
func (*Closure) Kind() ElementKind             { return KindClosure }
func (*Function) Kind() ElementKind            { return KindFunction }
func (*Join) Kind() ElementKind                { return KindJoin }
func (*Command) Kind() ElementKind             { return KindCommand }
func (*Each) Kind() ElementKind                { return KindEach }
func (*For) Kind() ElementKind                 { return KindFor }
func (*Loop) Kind() ElementKind                { return KindLoop }
func (*While) Kind() ElementKind               { return KindWhile }
func (*First) Kind() ElementKind               { return KindFirst }
func (*Optional) Kind() ElementKind            { return KindOptional }
func (*If) Kind() ElementKind                  { return KindIf }
func (*Breaker) Kind() ElementKind             { return KindBreaker }
func (*Return) Kind() ElementKind              { return KindReturn }
func (*Combination) Kind() ElementKind         { return KindCombination }
func (*Comparing) Kind() ElementKind           { return KindComparing }
func (*Compute) Kind() ElementKind             { return KindCompute }
func (*Incrementer) Kind() ElementKind         { return KindIncrementer }
func (*VariableName) Kind() ElementKind        { return KindVariableName }
func (*VariableAssignation) Kind() ElementKind { return KindVariableAssignation }
func (*VariableDeclaration) Kind() ElementKind { return KindVariableDeclaration }
func (*Values) Kind() ElementKind              { return KindValues }
func (*Range) Kind() ElementKind               { return KindRange }
func (*Integer) Kind() ElementKind             { return KindInteger }
func (*Boolean) Kind() ElementKind             { return KindBoolean }
func (*SimpleString) Kind() ElementKind        { return KindSimpleString }
func (*PatternString) Kind() ElementKind       { return KindPatternString }
func (*Error) Kind() ElementKind               { return KindError }
func (*Accessor) Kind() ElementKind            { return KindAccessor }

func (*Component) sealedElement()           {}
func (*Task) sealedElement()                {}
func (*Block) sealedElement()               {}
func (*Gatekeeper) sealedElement()          {}
func (*Meta) sealedElement()                {}
func (*Comment) sealedElement()             {}
func (*Reference) sealedElement()           {}
func (*Closure) sealedElement()             {}
func (*Function) sealedElement()            {}
func (*Join) sealedElement()                {}
func (*Command) sealedElement()             {}
func (*Each) sealedElement()                {}
func (*For) sealedElement()                 {}
func (*Loop) sealedElement()                {}
func (*While) sealedElement()               {}
func (*First) sealedElement()               {}
func (*Optional) sealedElement()            {}
func (*If) sealedElement()                  {}
func (*Breaker) sealedElement()             {}
func (*Return) sealedElement()              {}
func (*Combination) sealedElement()         {}
func (*Comparing) sealedElement()           {}
func (*Compute) sealedElement()             {}
func (*Incrementer) sealedElement()         {}
func (*VariableName) sealedElement()        {}
func (*VariableAssignation) sealedElement() {}
func (*VariableDeclaration) sealedElement() {}
func (*Values) sealedElement()              {}
func (*Range) sealedElement()               {}
func (*Integer) sealedElement()             {}
func (*Boolean) sealedElement()             {}
func (*SimpleString) sealedElement()        {}
func (*PatternString) sealedElement()       {}
func (*Error) sealedElement()               {}
func (*Accessor) sealedElement()            {}

// Position is a line/column pair in the tree document.
type Position struct {
	Line   int
	Column int
}

// String renders the position as line:column.
func (position Position) String() string {
	return fmt.Sprintf("%d:%d", position.Line, position.Column)
}

// TokenMap resolves token ids to document positions.
type TokenMap map[Token]Position

// Locate renders the position of token, or "?" when unknown.
func (tokenMap TokenMap) Locate(token Token) string {
	position, found := tokenMap[token]
	if !found {
		return "?"
	}
	return position.String()
}

// Document is a loaded syntax tree.
type Document struct {
	Source     string
	Components []*Component
	Tokens     TokenMap
}

// Component finds a component by name.
func (document *Document) Component(name string) (*Component, bool) {
	for _, component := range document.Components {
		if component.Name == name {
			return component, true
		}
	}
	return nil, false
}
