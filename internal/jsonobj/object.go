// Package jsonobj provides a JSON object addressed by dotted paths.
//
// Values of json-typed fields are held as *Object. The object keeps its raw
// JSON text, so encoding it for storage does not re-marshal anything.
package jsonobj

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrInvalidJSON is returned when text is not valid JSON.
var ErrInvalidJSON = errors.New("invalid json")

const emptyObject = "{}"

// Object is a JSON document with path accessors.
type Object struct {
	raw string
}

// New returns an empty object.
func New() *Object {
	return &Object{raw: emptyObject}
}

// Parse wraps JSON text. Empty text and the literal null yield an empty
// object.
func Parse(text string) (*Object, error) {
	if text == "" || text == "null" {
		return New(), nil
	}
	if !gjson.Valid(text) {
		return nil, fmt.Errorf("parse %q: %w", truncate(text), ErrInvalidJSON)
	}
	return &Object{raw: text}, nil
}

// From builds an object from a Go value by setting each entry of m.
func From(m map[string]any) (*Object, error) {
	o := New()
	for k, v := range m {
		if err := o.Set(gjsonEscape(k), v); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Raw returns the JSON text.
func (o *Object) Raw() string {
	return o.raw
}

func (o *Object) String() string {
	return o.raw
}

// Exists reports whether path resolves to a value.
func (o *Object) Exists(path string) bool {
	return gjson.Get(o.raw, path).Exists()
}

// Get returns the value at path decoded into Go types
// (string, float64, bool, nil, []any, map[string]any).
func (o *Object) Get(path string) (any, bool) {
	result := gjson.Get(o.raw, path)
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}

// GetString returns the string at path.
func (o *Object) GetString(path string) (string, bool) {
	result := gjson.Get(o.raw, path)
	if !result.Exists() || result.Type != gjson.String {
		return "", false
	}
	return result.String(), true
}

// GetInt returns the number at path as an integer.
func (o *Object) GetInt(path string) (int64, bool) {
	result := gjson.Get(o.raw, path)
	if !result.Exists() || result.Type != gjson.Number {
		return 0, false
	}
	return result.Int(), true
}

// GetBool returns the boolean at path.
func (o *Object) GetBool(path string) (bool, bool) {
	result := gjson.Get(o.raw, path)
	switch result.Type {
	case gjson.True:
		return true, true
	case gjson.False:
		return false, true
	default:
		return false, false
	}
}

// Set stores value at path, creating intermediate objects. A nil value
// deletes the path.
func (o *Object) Set(path string, value any) error {
	if value == nil {
		return o.Delete(path)
	}
	var (
		updated string
		err     error
	)
	if inner, ok := value.(*Object); ok {
		updated, err = sjson.SetRaw(o.raw, path, inner.raw)
	} else {
		updated, err = sjson.Set(o.raw, path, value)
	}
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	o.raw = updated
	return nil
}

// Delete removes path. Deleting a missing path is not an error.
func (o *Object) Delete(path string) error {
	updated, err := sjson.Delete(o.raw, path)
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	o.raw = updated
	return nil
}

// Equal reports whether both objects hold the same JSON text.
func (o *Object) Equal(other *Object) bool {
	if o == nil || other == nil {
		return o == other
	}
	return o.raw == other.raw
}

// MarshalJSON implements json.Marshaler.
func (o *Object) MarshalJSON() ([]byte, error) {
	return []byte(o.raw), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Object) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	o.raw = parsed.raw
	return nil
}

func gjsonEscape(key string) string {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		switch key[i] {
		case '.', '*', '?', '|', '#', '@', '\\':
			out = append(out, '\\')
		}
		out = append(out, key[i])
	}
	return string(out)
}

func truncate(s string) string {
	if len(s) > 32 {
		return s[:32] + "..."
	}
	return s
}
