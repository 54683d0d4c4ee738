package query

import (
	"context"
	"fmt"

	"github.com/roach88/blazeorm/internal/codec"
	"github.com/roach88/blazeorm/internal/meta"
)

// Reserved binding names.
const (
	// RowParam binds the raw, undecoded row.
	RowParam = "_row"
	// IndexParam binds the zero-based row index.
	IndexParam = "_idx"
)

// Binding names one value passed to a Map callback and the types it is
// decoded as. A binding without types uses the query's decoder for the
// name when one is set, and the raw column value otherwise.
type Binding struct {
	Name  string
	Types []meta.Type
}

// Bind returns a binding for name.
func Bind(name string, types ...meta.Type) Binding {
	return Binding{Name: name, Types: types}
}

// Values holds the bound values of one row.
type Values map[string]any

// String returns the named value as a string, or "" if it is not one.
func (v Values) String(name string) string {
	s, _ := v[name].(string)
	return s
}

// Int returns the named value as an int64, or 0 if it is not one.
func (v Values) Int(name string) int64 {
	n, _ := v[name].(int64)
	return n
}

// Index returns the row index bound with IndexParam.
func (v Values) Index() int {
	n, _ := v[IndexParam].(int)
	return n
}

// Row returns the raw row bound with RowParam.
func (v Values) Row() Row {
	r, _ := v[RowParam].(Row)
	return r
}

// Map runs q and converts every row with fn, passing the values named by
// bindings.
func Map[T any](ctx context.Context, q *Query, bindings []Binding, fn func(Values) (T, error)) ([]T, error) {
	decoders := make([]codec.Decoder, len(bindings))
	for i, b := range bindings {
		switch {
		case b.Name == RowParam || b.Name == IndexParam:
		case len(b.Types) > 0:
			if q.hooks.Decoder == nil {
				return nil, fmt.Errorf("binding %s: query has no decoder provider", b.Name)
			}
			d, err := q.hooks.Decoder(b.Name, b.Types)
			if err != nil {
				return nil, fmt.Errorf("binding %s: %w", b.Name, err)
			}
			decoders[i] = d
		default:
			decoders[i] = q.decoderFor(b.Name)
		}
	}

	out := []T{}
	idx := 0
	for raw, err := range q.rawRows(ctx) {
		if err != nil {
			return nil, err
		}
		values := make(Values, len(bindings))
		for i, b := range bindings {
			switch b.Name {
			case RowParam:
				values[b.Name] = raw
			case IndexParam:
				values[b.Name] = idx
			default:
				v, err := decoders[i](raw)
				if err != nil {
					return nil, fmt.Errorf("row %d: %w", idx, err)
				}
				values[b.Name] = v
			}
		}
		item, err := fn(values)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
		idx++
	}
	return out, nil
}

func (q *Query) decoderFor(name string) codec.Decoder {
	for _, d := range q.decoders {
		if d.name == name {
			return d.decode
		}
	}
	return func(row map[string]any) (any, error) {
		return row[name], nil
	}
}
