package meta

import (
	"errors"
	"fmt"
)

// ErrUnsupportedType is returned when a type, a union of types or an enum
// backing cannot be represented in storage.
var ErrUnsupportedType = errors.New("unsupported type")

// Kind is the logical kind of a field type.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindTime
	KindEnum
	KindJSON
	KindRef
)

var kindNames = [...]string{
	KindNull:   "null",
	KindString: "string",
	KindInt:    "int",
	KindFloat:  "float",
	KindBool:   "bool",
	KindTime:   "datetime",
	KindEnum:   "enum",
	KindJSON:   "json",
	KindRef:    "ref",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Builtin reports whether the kind is a scalar. Builtin types are ordered
// before enum, json and reference types inside a field's union.
func (k Kind) Builtin() bool {
	return k <= KindBool
}

// Type is one candidate logical type of a field.
//
// Name identifies the type: the kind name for scalars, the enum name for
// enums and the record type name for references.
type Type struct {
	Kind Kind
	Name string
	Enum *Enum
}

// Predeclared scalar types.
var (
	Null   = Type{Kind: KindNull, Name: "null"}
	String = Type{Kind: KindString, Name: "string"}
	Int    = Type{Kind: KindInt, Name: "int"}
	Float  = Type{Kind: KindFloat, Name: "float"}
	Bool   = Type{Kind: KindBool, Name: "bool"}
	Time   = Type{Kind: KindTime, Name: "datetime"}
	JSON   = Type{Kind: KindJSON, Name: "json"}
)

// Self is a reference to the record type being declared. The builder
// replaces it with Ref(<record name>).
var Self = Type{Kind: KindRef}

// Ref returns a reference type pointing at the named record type.
func Ref(recordType string) Type {
	return Type{Kind: KindRef, Name: recordType}
}

// EnumType returns the type of values of e.
func EnumType(e *Enum) Type {
	return Type{Kind: KindEnum, Name: e.Name, Enum: e}
}

func (t Type) String() string {
	if t.Kind == KindRef && t.Name == "" {
		return "self"
	}
	return t.Name
}

// Backing is the storage representation of an enum.
type Backing uint8

const (
	// BackingNone stores case names.
	BackingNone Backing = iota
	// BackingString stores string backing values.
	BackingString
	// BackingInt stores integer backing values.
	BackingInt
)

// Enum is an enumerated type with ordered cases.
type Enum struct {
	Name    string
	Alias   string
	Backing Backing

	cases  []string
	values []any
}

// NewEnum declares an enum whose cases are stored by name.
func NewEnum(name string, cases ...string) (*Enum, error) {
	if err := checkCases(name, cases); err != nil {
		return nil, err
	}
	return &Enum{Name: name, cases: append([]string(nil), cases...)}, nil
}

// NewBackedEnum declares an enum whose cases are stored as backing values.
// All values must be strings, or all must be integers.
func NewBackedEnum(name string, cases []string, values []any) (*Enum, error) {
	if err := checkCases(name, cases); err != nil {
		return nil, err
	}
	if len(values) != len(cases) {
		return nil, fmt.Errorf("enum %s: %d cases but %d backing values", name, len(cases), len(values))
	}

	e := &Enum{Name: name, cases: append([]string(nil), cases...), values: make([]any, len(values))}
	for i, v := range values {
		var b Backing
		switch val := v.(type) {
		case string:
			b = BackingString
		case int:
			b = BackingInt
			v = int64(val)
		case int32:
			b = BackingInt
			v = int64(val)
		case int64:
			b = BackingInt
		default:
			return nil, fmt.Errorf("enum %s: backing value %T: %w", name, v, ErrUnsupportedType)
		}
		if i > 0 && b != e.Backing {
			return nil, fmt.Errorf("enum %s: mixed backing values: %w", name, ErrUnsupportedType)
		}
		e.Backing = b
		e.values[i] = v
	}
	return e, nil
}

// MustEnum panics if err is non-nil. Intended for package-level declarations.
func MustEnum(e *Enum, err error) *Enum {
	if err != nil {
		panic(err)
	}
	return e
}

func checkCases(name string, cases []string) error {
	if name == "" {
		return errors.New("enum name is required")
	}
	if len(cases) == 0 {
		return fmt.Errorf("enum %s: at least one case is required", name)
	}
	seen := make(map[string]bool, len(cases))
	for _, c := range cases {
		if c == "" {
			return fmt.Errorf("enum %s: empty case name", name)
		}
		if seen[c] {
			return fmt.Errorf("enum %s: duplicate case %q", name, c)
		}
		seen[c] = true
	}
	return nil
}

// AliasName returns the alias written into discriminator columns.
func (e *Enum) AliasName() string {
	if e.Alias != "" {
		return e.Alias
	}
	return e.Name
}

// Cases returns the case names in declaration order.
func (e *Enum) Cases() []string {
	return append([]string(nil), e.cases...)
}

// First returns the first declared case.
func (e *Enum) First() EnumValue {
	return EnumValue{Enum: e, Case: e.cases[0]}
}

// Case returns the value for the named case.
func (e *Enum) Case(name string) (EnumValue, bool) {
	for _, c := range e.cases {
		if c == name {
			return EnumValue{Enum: e, Case: c}, true
		}
	}
	return EnumValue{}, false
}

// MustCase is like Case but panics on an unknown case name.
func (e *Enum) MustCase(name string) EnumValue {
	v, ok := e.Case(name)
	if !ok {
		panic(fmt.Sprintf("enum %s has no case %q", e.Name, name))
	}
	return v
}

// FromBacking returns the case whose backing value equals v.
func (e *Enum) FromBacking(v any) (EnumValue, bool) {
	if e.Backing == BackingNone {
		return EnumValue{}, false
	}
	if i, ok := v.(int); ok {
		v = int64(i)
	}
	for idx, bv := range e.values {
		if bv == v {
			return EnumValue{Enum: e, Case: e.cases[idx]}, true
		}
	}
	return EnumValue{}, false
}

// EnumValue is a runtime value of an enum.
type EnumValue struct {
	Enum *Enum
	Case string
}

// IsZero reports whether v holds no case.
func (v EnumValue) IsZero() bool {
	return v.Enum == nil
}

// Backing returns the backing value, or the case name for unbacked enums.
func (v EnumValue) Backing() any {
	if v.Enum == nil {
		return nil
	}
	if v.Enum.Backing == BackingNone {
		return v.Case
	}
	for i, c := range v.Enum.cases {
		if c == v.Case {
			return v.Enum.values[i]
		}
	}
	return nil
}

func (v EnumValue) String() string {
	if v.Enum == nil {
		return ""
	}
	return v.Enum.Name + "." + v.Case
}
