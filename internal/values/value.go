// Package values defines the runtime value model produced by every evaluation and
// the static type descriptors consulted by the linker.
package values

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the tag of a runtime Value.
type Kind string

// Supported value kinds.
const (
	KindEmpty       Kind = "empty"
	KindBool        Kind = "bool"
	KindInteger     Kind = "integer"
	KindString      Kind = "string"
	KindPath        Kind = "path"
	KindVec         Kind = "vec"
	KindRange       Kind = "range"
	KindTaskRef     Kind = "task"
	KindError       Kind = "error"
	KindSpawnStatus Kind = "spawn_status"
)

// Value is the tagged union produced by evaluation. Implementations are immutable
// except Vec, which is deep-cloned whenever it crosses a scope or branch boundary.
type Value interface {
	Kind() Kind
	Clone() Value
	String() string
	sealedValue()
}

// Empty is the unit value; skipped gatekeepers and false optionals produce it.
type Empty struct{}

// Bool holds a boolean.
type Bool bool

// Integer holds a signed integer.
type Integer int64

// String holds text.
type String string

// Path holds a filesystem path.
type Path string

// Vec holds an ordered list of independently owned values.
type Vec []Value

// Range holds integer endpoints; iteration direction follows endpoint order.
type Range struct {
	From int64
	To   int64
}

// TaskRef names a task that can be invoked later.
type TaskRef struct {
	Component string
	Task      string
}

// Error carries a script-level error message as a value.
type Error struct {
	Message string
}

// SpawnStatus describes the outcome of a spawned process. Command elements are
// effect-only and yield Empty, so no evaluation produces it yet; it is reserved for
// post-processing methods that inspect an exit status.
type SpawnStatus struct {
	ExitCode  int
	Cancelled bool
}

func (Empty) Kind() Kind       { return KindEmpty }
func (Bool) Kind() Kind        { return KindBool }
func (Integer) Kind() Kind     { return KindInteger }
func (String) Kind() Kind      { return KindString }
func (Path) Kind() Kind        { return KindPath }
func (Vec) Kind() Kind         { return KindVec }
func (Range) Kind() Kind       { return KindRange }
func (TaskRef) Kind() Kind     { return KindTaskRef }
func (Error) Kind() Kind       { return KindError }
func (SpawnStatus) Kind() Kind { return KindSpawnStatus }

func (value Empty) Clone() Value       { return value }
func (value Bool) Clone() Value        { return value }
func (value Integer) Clone() Value     { return value }
func (value String) Clone() Value      { return value }
func (value Path) Clone() Value        { return value }
func (value Range) Clone() Value       { return value }
func (value TaskRef) Clone() Value     { return value }
func (value Error) Clone() Value       { return value }
func (value SpawnStatus) Clone() Value { return value }

// Clone copies every nested value so the result shares no storage with the receiver.
func (value Vec) Clone() Value {
	if value == nil {
		return Vec(nil)
	}
	cloned := make(Vec, len(value))
	for index := range value {
		cloned[index] = Clone(value[index])
	}
	return cloned
}

func (Empty) String() string { return "" }

func (value Bool) String() string { return strconv.FormatBool(bool(value)) }

func (value Integer) String() string { return strconv.FormatInt(int64(value), 10) }

func (value String) String() string { return string(value) }

func (value Path) String() string { return string(value) }

func (value Vec) String() string {
	rendered := make([]string, 0, len(value))
	for index := range value {
		rendered = append(rendered, Render(value[index]))
	}
	return "[" + strings.Join(rendered, ", ") + "]"
}

func (value Range) String() string { return fmt.Sprintf("%d..%d", value.From, value.To) }

func (value TaskRef) String() string {
	if len(value.Component) == 0 {
		return value.Task
	}
	return value.Component + ":" + value.Task
}

func (value Error) String() string { return value.Message }

func (value SpawnStatus) String() string {
	if value.Cancelled {
		return "cancelled"
	}
	return fmt.Sprintf("exit %d", value.ExitCode)
}

func (Empty) sealedValue()       {}
func (Bool) sealedValue()        {}
func (Integer) sealedValue()     {}
func (String) sealedValue()      {}
func (Path) sealedValue()        {}
func (Vec) sealedValue()         {}
func (Range) sealedValue()       {}
func (TaskRef) sealedValue()     {}
func (Error) sealedValue()       {}
func (SpawnStatus) sealedValue() {}

// Clone deep-copies a value; a nil value clones to Empty.
func Clone(value Value) Value {
	if value == nil {
		return Empty{}
	}
	return value.Clone()
}

// Render converts a value to text; nil renders as an empty string.
func Render(value Value) string {
	if value == nil {
		return ""
	}
	return value.String()
}

// IsEmpty reports whether the value is nil or Empty.
func IsEmpty(value Value) bool {
	if value == nil {
		return true
	}
	_, empty := value.(Empty)
	return empty
}

// Equal compares two values structurally.
func Equal(left Value, right Value) bool {
	if IsEmpty(left) || IsEmpty(right) {
		return IsEmpty(left) && IsEmpty(right)
	}
	switch typedLeft := left.(type) {
	case Vec:
		typedRight, ok := right.(Vec)
		if !ok || len(typedLeft) != len(typedRight) {
			return false
		}
		for index := range typedLeft {
			if !Equal(typedLeft[index], typedRight[index]) {
				return false
			}
		}
		return true
	case String:
		switch typedRight := right.(type) {
		case String:
			return typedLeft == typedRight
		case Path:
			return string(typedLeft) == string(typedRight)
		}
		return false
	case Path:
		switch typedRight := right.(type) {
		case Path:
			return typedLeft == typedRight
		case String:
			return string(typedLeft) == string(typedRight)
		}
		return false
	default:
		return left == right
	}
}

// AsBool extracts a boolean.
func AsBool(value Value) (bool, bool) {
	typed, ok := value.(Bool)
	return bool(typed), ok
}

// AsInteger extracts an integer, accepting numeric strings.
func AsInteger(value Value) (int64, bool) {
	switch typed := value.(type) {
	case Integer:
		return int64(typed), true
	case String:
		parsed, parseError := strconv.ParseInt(strings.TrimSpace(string(typed)), 10, 64)
		if parseError != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// AsText extracts text from String and Path values.
func AsText(value Value) (string, bool) {
	switch typed := value.(type) {
	case String:
		return string(typed), true
	case Path:
		return string(typed), true
	default:
		return "", false
	}
}
