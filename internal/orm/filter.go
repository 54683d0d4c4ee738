package orm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/blazeorm/internal/meta"
	"github.com/roach88/blazeorm/internal/query"
)

// Cond is a filter tree. The zero Cond matches every record.
type Cond struct {
	// group is "AND" or "OR" for inner nodes and "" for predicates.
	group string
	items []Cond

	field string
	op    string
	value any
}

// Where returns the predicate "field op value". An empty op means "=".
func Where(field, op string, value any) Cond {
	if op == "" {
		op = "="
	}
	return Cond{field: field, op: op, value: value}
}

// And returns the conjunction of conds. An empty And matches everything.
func And(conds ...Cond) Cond {
	return Cond{group: "AND", items: conds}
}

// Or returns the disjunction of conds. An empty Or matches nothing.
func Or(conds ...Cond) Cond {
	return Cond{group: "OR", items: conds}
}

// IsZero reports whether c is the empty filter.
func (c Cond) IsZero() bool {
	return c.group == "" && c.field == ""
}

func (c Cond) String() string {
	switch {
	case c.IsZero():
		return "true"
	case c.group == "":
		return fmt.Sprintf("%s %s %v", c.field, c.op, c.value)
	}
	parts := make([]string, len(c.items))
	for i, item := range c.items {
		parts[i] = item.String()
	}
	return "(" + strings.Join(parts, " "+c.group+" ") + ")"
}

// compile renders c into SQL through the engine's predicates on md's fields.
func (c Cond) compile(engine StorageEngine, md *meta.Record) (query.Fragment, error) {
	if c.group == "" {
		f, ok := md.Field(c.field)
		if !ok {
			return query.Fragment{}, NewError(CodeUnsupportedOperation, md.Name, "unknown filter field %q", c.field)
		}
		return engine.QueryFilter(f, c.op, c.value)
	}

	if len(c.items) == 0 {
		if c.group == "AND" {
			return query.Always, nil
		}
		return query.Never, nil
	}
	frags := make([]query.Fragment, 0, len(c.items))
	for _, item := range c.items {
		if item.IsZero() {
			item = And()
		}
		frag, err := item.compile(engine, md)
		if err != nil {
			return query.Fragment{}, err
		}
		frags = append(frags, frag)
	}
	return query.Group(" "+c.group+" ", frags...), nil
}

// Filter is the map form of a filter. Keys are "field op" (op defaults to
// "="), or "and" / "or" holding a Filter or a []Filter. Keys are applied in
// sorted order and joined with AND.
type Filter map[string]any

// Cond converts f into a filter tree.
func (f Filter) Cond() (Cond, error) {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]Cond, 0, len(keys))
	for _, k := range keys {
		v := f[k]
		switch k {
		case "and", "or":
			subs, err := subFilters(k, v)
			if err != nil {
				return Cond{}, err
			}
			items := make([]Cond, len(subs))
			for i, sub := range subs {
				if items[i], err = sub.Cond(); err != nil {
					return Cond{}, err
				}
			}
			if k == "and" {
				conds = append(conds, And(items...))
			} else {
				conds = append(conds, Or(items...))
			}
		default:
			field, op, _ := strings.Cut(strings.TrimSpace(k), " ")
			conds = append(conds, Where(field, strings.TrimSpace(op), v))
		}
	}
	if len(conds) == 1 {
		return conds[0], nil
	}
	return And(conds...), nil
}

func subFilters(key string, v any) ([]Filter, error) {
	switch s := v.(type) {
	case Filter:
		out := make([]Filter, 0, len(s))
		for _, k := range sortedKeys(s) {
			out = append(out, Filter{k: s[k]})
		}
		return out, nil
	case map[string]any:
		return subFilters(key, Filter(s))
	case []Filter:
		return s, nil
	case []map[string]any:
		out := make([]Filter, len(s))
		for i, m := range s {
			out[i] = m
		}
		return out, nil
	default:
		return nil, fmt.Errorf("filter %q: unsupported value %T", key, v)
	}
}

func sortedKeys(f Filter) []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Order is one sort key.
type Order struct {
	Field string
	Desc  bool
}

// Asc sorts by field ascending.
func Asc(field string) Order {
	return Order{Field: field}
}

// Desc sorts by field descending.
func Desc(field string) Order {
	return Order{Field: field, Desc: true}
}

// ParseOrder parses "field" or "field:dir" where dir is one of + - ASC DESC.
func ParseOrder(s string) (Order, error) {
	field, dir, found := strings.Cut(s, ":")
	if field == "" {
		return Order{}, fmt.Errorf("order %q: missing field", s)
	}
	if !found {
		return Asc(field), nil
	}
	switch strings.ToUpper(dir) {
	case "+", "ASC":
		return Asc(field), nil
	case "-", "DESC":
		return Desc(field), nil
	default:
		return Order{}, fmt.Errorf("order %q: invalid direction %q", s, dir)
	}
}
