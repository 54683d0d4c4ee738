// Package query executes parameterized SQL and decodes result rows into
// logical values.
//
// A Query accumulates positional or named parameters and a per-field
// decoder map before it runs. Rows are produced lazily; every call to Rows
// executes the statement again.
package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"strings"

	"github.com/roach88/blazeorm/internal/codec"
	"github.com/roach88/blazeorm/internal/meta"
)

var (
	// ErrListParam is returned for list values that cannot be expanded.
	ErrListParam = errors.New("invalid list parameter")
	// ErrMixedParams is returned when positional and named parameters are
	// combined in one query.
	ErrMixedParams = errors.New("positional and named parameters cannot be mixed")
)

// Executor runs statements. *store.Conn implements it.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ParamEncoder converts a logical parameter value to its stored form.
type ParamEncoder func(v any) (any, error)

// DecoderProvider builds a decoder for a result field of the given types.
type DecoderProvider func(name string, types []meta.Type) (codec.Decoder, error)

// Hooks connect a query to the storage engine's codec.
type Hooks struct {
	EncodeParam ParamEncoder
	Decoder     DecoderProvider
	Logger      *slog.Logger
}

// Row is one result row keyed by column or field name.
type Row map[string]any

type fieldDecoder struct {
	name   string
	decode codec.Decoder
}

// Query is a parameterized statement.
type Query struct {
	exec  Executor
	sql   string
	log   string
	hooks Hooks

	positional []any
	named      map[string]any
	namedOrder []string
	listSeq    int

	decoders []fieldDecoder
	err      error
}

// New returns a query for sqlText.
func New(exec Executor, sqlText string, hooks Hooks) *Query {
	if hooks.Logger == nil {
		hooks.Logger = slog.Default()
	}
	return &Query{
		exec:  exec,
		sql:   sqlText,
		log:   sqlText,
		hooks: hooks,
		named: make(map[string]any),
	}
}

// SQL returns the statement text after list expansion.
func (q *Query) SQL() string {
	return q.sql
}

// Err returns the first error recorded while building the query.
func (q *Query) Err() error {
	return q.err
}

// Bind appends positional parameters. List values are rejected; they need a
// named parameter to expand into.
func (q *Query) Bind(args ...any) *Query {
	for _, a := range args {
		if IsList(a) {
			q.fail(fmt.Errorf("positional parameter %d: named parameter required for list: %w", len(q.positional)+1, ErrListParam))
			return q
		}
		q.positional = append(q.positional, a)
	}
	return q
}

// SetParam sets a named parameter referenced as :name in the statement.
// A list value expands the placeholder into one parameter per element.
func (q *Query) SetParam(name string, v any) *Query {
	name = strings.Trim(name, ": ")
	if !IsList(v) {
		q.setNamed(name, v)
		return q
	}

	items := ListItems(v)
	placeholders := make([]string, len(items))
	for i, item := range items {
		if IsList(item) {
			q.fail(fmt.Errorf("parameter %s: nested list: %w", name, ErrListParam))
			return q
		}
		q.listSeq++
		key := fmt.Sprintf("ap_%d", q.listSeq)
		placeholders[i] = ":" + key
		q.setNamed(key, item)
	}

	pattern := regexp.MustCompile(":" + regexp.QuoteMeta(name) + `(\W|$)`)
	// SQLite accepts an empty list: x IN () is false, x NOT IN () is true.
	joined := strings.Join(placeholders, ",")
	q.sql = pattern.ReplaceAllString(q.sql, joined+"${1}")
	q.log = pattern.ReplaceAllString(q.log, fmt.Sprintf(":[%s(%d)]${1}", name, len(items)))
	return q
}

func (q *Query) setNamed(name string, v any) {
	if _, ok := q.named[name]; !ok {
		q.namedOrder = append(q.namedOrder, name)
	}
	q.named[name] = v
}

// SetFieldTypes decodes result rows into the given fields. Once any decoder
// is set, rows contain only decoded fields.
func (q *Query) SetFieldTypes(fields ...*meta.Field) *Query {
	for _, f := range fields {
		q.SetDecoder(f.Name, f.Types...)
	}
	return q
}

// SetDecoder decodes the result field name as one of types.
func (q *Query) SetDecoder(name string, types ...meta.Type) *Query {
	if q.hooks.Decoder == nil {
		q.fail(fmt.Errorf("decoder %s: query has no decoder provider", name))
		return q
	}
	fn, err := q.hooks.Decoder(name, types)
	if err != nil {
		q.fail(fmt.Errorf("decoder %s: %w", name, err))
		return q
	}
	for i := range q.decoders {
		if q.decoders[i].name == name {
			q.decoders[i].decode = fn
			return q
		}
	}
	q.decoders = append(q.decoders, fieldDecoder{name: name, decode: fn})
	return q
}

func (q *Query) fail(err error) {
	if q.err == nil {
		q.err = err
	}
}

// args encodes the accumulated parameters for the driver.
func (q *Query) args() ([]any, error) {
	if q.err != nil {
		return nil, q.err
	}
	if len(q.positional) > 0 && len(q.named) > 0 {
		return nil, ErrMixedParams
	}

	out := make([]any, 0, len(q.positional)+len(q.named))
	for i, v := range q.positional {
		enc, err := q.encode(v)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i+1, err)
		}
		out = append(out, enc)
	}
	for _, name := range q.namedOrder {
		enc, err := q.encode(q.named[name])
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		out = append(out, sql.Named(name, enc))
	}
	return out, nil
}

func (q *Query) encode(v any) (any, error) {
	if q.hooks.EncodeParam == nil {
		return v, nil
	}
	return q.hooks.EncodeParam(v)
}

// IsList reports whether v is a slice or array other than []byte.
func IsList(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.([]byte); ok {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// ListItems returns the elements of a list value.
func ListItems(v any) []any {
	if items, ok := v.([]any); ok {
		return items
	}
	rv := reflect.ValueOf(v)
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items
}
