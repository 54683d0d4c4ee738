package record

import "sort"

// Entity is an instance of a record type: the type name plus the current
// field values. Entities are compared by identity; the record manager keeps
// at most one entity per record type and key.
type Entity struct {
	typ    string
	values map[string]any
}

// New returns an empty entity of the named record type.
func New(typ string) *Entity {
	return &Entity{typ: typ, values: make(map[string]any)}
}

// Type returns the record type name.
func (e *Entity) Type() string {
	return e.typ
}

// Get returns the value of a field and whether it is set.
func (e *Entity) Get(field string) (any, bool) {
	v, ok := e.values[field]
	return v, ok
}

// Value returns the value of a field, or nil when unset.
func (e *Entity) Value(field string) any {
	return e.values[field]
}

// Set assigns a field. Integer values are stored as int64 and floating
// point values as float64.
func (e *Entity) Set(field string, v any) *Entity {
	e.values[field] = Normalize(v)
	return e
}

// Has reports whether a field is set. A field set to nil is set.
func (e *Entity) Has(field string) bool {
	_, ok := e.values[field]
	return ok
}

// Unset removes a field value.
func (e *Entity) Unset(field string) {
	delete(e.values, field)
}

// Fields returns the names of the set fields in sorted order.
func (e *Entity) Fields() []string {
	names := make([]string, 0, len(e.values))
	for name := range e.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Normalize widens sized integers to int64 and float32 to float64.
func Normalize(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}
