package values

import (
	"fmt"
	"strings"
)

// RefKind identifies the tag of a static type descriptor.
type RefKind string

// Supported type descriptor kinds. The first group mirrors Value kinds; the second
// group are wildcards only the linker understands.
const (
	RefEmpty       RefKind = "empty"
	RefBool        RefKind = "bool"
	RefInteger     RefKind = "integer"
	RefString      RefKind = "string"
	RefPath        RefKind = "path"
	RefVec         RefKind = "vec"
	RefRange       RefKind = "range"
	RefTaskRef     RefKind = "task"
	RefError       RefKind = "error"
	RefSpawnStatus RefKind = "spawn_status"

	RefAny      RefKind = "any"
	RefOptional RefKind = "optional"
	RefRepeated RefKind = "repeated"
	RefOneOf    RefKind = "one_of"
	RefIncoming RefKind = "incoming"
	RefNumeric  RefKind = "numeric"
)

// ValueRef describes the static type of a variable, parameter or expression.
type ValueRef struct {
	Kind     RefKind
	Inner    *ValueRef
	Variants []ValueRef
}

// Ref builds a descriptor without nested types.
func Ref(kind RefKind) ValueRef {
	return ValueRef{Kind: kind}
}

// VecOf builds a vector descriptor.
func VecOf(inner ValueRef) ValueRef {
	return ValueRef{Kind: RefVec, Inner: &inner}
}

// OptionalOf builds an optional descriptor.
func OptionalOf(inner ValueRef) ValueRef {
	return ValueRef{Kind: RefOptional, Inner: &inner}
}

// RepeatedOf builds a descriptor absorbing any number of trailing arguments.
func RepeatedOf(inner ValueRef) ValueRef {
	return ValueRef{Kind: RefRepeated, Inner: &inner}
}

// OneOf builds a union descriptor.
func OneOf(variants ...ValueRef) ValueRef {
	return ValueRef{Kind: RefOneOf, Variants: append([]ValueRef(nil), variants...)}
}

// RefOf derives the descriptor of a concrete runtime value.
func RefOf(value Value) ValueRef {
	switch typed := value.(type) {
	case nil, Empty:
		return Ref(RefEmpty)
	case Bool:
		return Ref(RefBool)
	case Integer:
		return Ref(RefInteger)
	case String:
		return Ref(RefString)
	case Path:
		return Ref(RefPath)
	case Vec:
		if len(typed) == 0 {
			return VecOf(Ref(RefAny))
		}
		elementRef := RefOf(typed[0])
		for index := 1; index < len(typed); index++ {
			if !elementRef.Equal(RefOf(typed[index])) {
				return VecOf(Ref(RefAny))
			}
		}
		return VecOf(elementRef)
	case Range:
		return Ref(RefRange)
	case TaskRef:
		return Ref(RefTaskRef)
	case Error:
		return Ref(RefError)
	case SpawnStatus:
		return Ref(RefSpawnStatus)
	default:
		return Ref(RefAny)
	}
}

// ParseRef reads a descriptor from its textual form, e.g. "str", "vec<num>",
// "optional<bool>", "repeated<str>", "str|path".
func ParseRef(raw string) (ValueRef, error) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Ref(RefAny), nil
	}
	if parts := splitUnion(trimmed); len(parts) > 1 {
		variants := make([]ValueRef, 0, len(parts))
		for _, part := range parts {
			variant, parseError := ParseRef(part)
			if parseError != nil {
				return ValueRef{}, parseError
			}
			variants = append(variants, variant)
		}
		return OneOf(variants...), nil
	}
	if openIndex := strings.Index(trimmed, "<"); openIndex > 0 && strings.HasSuffix(trimmed, ">") {
		outer := strings.ToLower(strings.TrimSpace(trimmed[:openIndex]))
		inner, parseError := ParseRef(trimmed[openIndex+1 : len(trimmed)-1])
		if parseError != nil {
			return ValueRef{}, parseError
		}
		switch outer {
		case "vec":
			return VecOf(inner), nil
		case "optional":
			return OptionalOf(inner), nil
		case "repeated":
			return RepeatedOf(inner), nil
		default:
			return ValueRef{}, fmt.Errorf("unknown type constructor %q", outer)
		}
	}
	switch strings.ToLower(trimmed) {
	case "empty":
		return Ref(RefEmpty), nil
	case "bool":
		return Ref(RefBool), nil
	case "int", "integer", "num":
		return Ref(RefInteger), nil
	case "str", "string":
		return Ref(RefString), nil
	case "path":
		return Ref(RefPath), nil
	case "vec":
		return VecOf(Ref(RefAny)), nil
	case "range":
		return Ref(RefRange), nil
	case "task":
		return Ref(RefTaskRef), nil
	case "error":
		return Ref(RefError), nil
	case "spawn_status":
		return Ref(RefSpawnStatus), nil
	case "any":
		return Ref(RefAny), nil
	case "incoming":
		return Ref(RefIncoming), nil
	case "numeric":
		return Ref(RefNumeric), nil
	default:
		return ValueRef{}, fmt.Errorf("unknown type %q", trimmed)
	}
}

// Equal compares descriptors structurally.
func (ref ValueRef) Equal(other ValueRef) bool {
	if ref.Kind != other.Kind {
		return false
	}
	if (ref.Inner == nil) != (other.Inner == nil) {
		return false
	}
	if ref.Inner != nil && !ref.Inner.Equal(*other.Inner) {
		return false
	}
	if len(ref.Variants) != len(other.Variants) {
		return false
	}
	for index := range ref.Variants {
		if !ref.Variants[index].Equal(other.Variants[index]) {
			return false
		}
	}
	return true
}

// Accepts reports whether a value described by candidate may be bound where ref is expected.
func (ref ValueRef) Accepts(candidate ValueRef) bool {
	if ref.Kind == RefAny || ref.Kind == "" || candidate.Kind == RefAny || candidate.Kind == "" || candidate.Kind == RefIncoming {
		return true
	}
	if candidate.Kind == RefOneOf {
		for _, variant := range candidate.Variants {
			if !ref.Accepts(variant) {
				return false
			}
		}
		return len(candidate.Variants) > 0
	}
	switch ref.Kind {
	case RefIncoming:
		return true
	case RefOptional:
		if candidate.Kind == RefEmpty {
			return true
		}
		return ref.inner().Accepts(candidate)
	case RefRepeated:
		return ref.inner().Accepts(candidate)
	case RefOneOf:
		for _, variant := range ref.Variants {
			if variant.Accepts(candidate) {
				return true
			}
		}
		return false
	case RefNumeric:
		return candidate.Kind == RefInteger || candidate.Kind == RefNumeric
	case RefPath:
		return candidate.Kind == RefPath || candidate.Kind == RefString
	case RefString:
		return candidate.Kind == RefString || candidate.Kind == RefPath
	case RefInteger:
		return candidate.Kind == RefInteger || candidate.Kind == RefNumeric
	case RefVec:
		if candidate.Kind != RefVec {
			return false
		}
		return ref.inner().Accepts(candidate.inner())
	}
	return ref.Kind == candidate.Kind
}

// IsOptional reports whether an argument for this descriptor may be omitted.
func (ref ValueRef) IsOptional() bool {
	return ref.Kind == RefOptional || ref.Kind == RefRepeated
}

// String renders the descriptor in the form ParseRef reads.
func (ref ValueRef) String() string {
	switch ref.Kind {
	case RefVec, RefOptional, RefRepeated:
		return fmt.Sprintf("%s<%s>", ref.Kind, ref.inner().String())
	case RefOneOf:
		rendered := make([]string, 0, len(ref.Variants))
		for _, variant := range ref.Variants {
			rendered = append(rendered, variant.String())
		}
		return strings.Join(rendered, "|")
	case "":
		return string(RefAny)
	default:
		return string(ref.Kind)
	}
}

func (ref ValueRef) inner() ValueRef {
	if ref.Inner == nil {
		return Ref(RefAny)
	}
	return *ref.Inner
}

// splitUnion splits raw on "|" outside angle brackets.
func splitUnion(raw string) []string {
	var parts []string
	depth, start := 0, 0
	for index, character := range raw {
		switch character {
		case '<':
			depth++
		case '>':
			depth--
		case '|':
			if depth == 0 {
				parts = append(parts, raw[start:index])
				start = index + 1
			}
		}
	}
	return append(parts, raw[start:])
}
