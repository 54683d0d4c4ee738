package cli

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/blazeorm/internal/jsonobj"
	"github.com/roach88/blazeorm/internal/meta"
	"github.com/roach88/blazeorm/internal/orm"
	"github.com/roach88/blazeorm/internal/record"
)

// wherePattern splits "field op value". Longer operators come first so
// that "!~~" is not read as "!~" followed by "~".
var wherePattern = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*(!~~|~~|!~|~|!=|<=|>=|<|>|=)(.*)$`)

var timeLayouts = []string{time.RFC3339, time.DateTime, time.DateOnly}

// parseWhere parses one --where expression. A value in brackets,
// "[a,b]", is a list.
func parseWhere(m *orm.Manager, md *meta.Record, expr string) (orm.Cond, error) {
	parts := wherePattern.FindStringSubmatch(expr)
	if parts == nil {
		return orm.Cond{}, fmt.Errorf("invalid --where %q: want field<op>value", expr)
	}
	name, op, raw := parts[1], parts[2], strings.TrimSpace(parts[3])

	f, ok := md.Field(name)
	if !ok {
		return orm.Cond{}, fmt.Errorf("invalid --where %q: %s has no field %q", expr, md.Name, name)
	}

	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		items := strings.Split(raw[1:len(raw)-1], ",")
		list := make([]any, 0, len(items))
		for _, item := range items {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			v, err := parseValue(m, f, item)
			if err != nil {
				return orm.Cond{}, fmt.Errorf("invalid --where %q: %w", expr, err)
			}
			list = append(list, v)
		}
		return orm.Where(name, op, list), nil
	}

	// Pattern operators take the text as is.
	if strings.Contains(op, "~") {
		return orm.Where(name, op, raw), nil
	}
	v, err := parseValue(m, f, raw)
	if err != nil {
		return orm.Cond{}, fmt.Errorf("invalid --where %q: %w", expr, err)
	}
	return orm.Where(name, op, v), nil
}

// parseAssignment parses "field=value" into a field and a typed value.
func parseAssignment(m *orm.Manager, md *meta.Record, expr string) (string, any, error) {
	name, raw, ok := strings.Cut(expr, "=")
	if !ok {
		return "", nil, fmt.Errorf("invalid assignment %q: want field=value", expr)
	}
	name = strings.TrimSpace(name)
	f, ok := md.Field(name)
	if !ok {
		return "", nil, fmt.Errorf("invalid assignment %q: %s has no field %q", expr, md.Name, name)
	}
	v, err := parseValue(m, f, raw)
	if err != nil {
		return "", nil, fmt.Errorf("invalid assignment %q: %w", expr, err)
	}
	return name, v, nil
}

// parseValue converts command line text to a value of one of the field's
// types. Specific types are tried before string, so in a string|int union
// "42" is an int.
func parseValue(m *orm.Manager, f *meta.Field, raw string) (any, error) {
	var isString bool
	for _, t := range f.Types {
		switch t.Kind {
		case meta.KindNull:
			if raw == "null" {
				return nil, nil
			}
		case meta.KindString:
			isString = true
		case meta.KindInt:
			if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
				return n, nil
			}
		case meta.KindFloat:
			if x, err := strconv.ParseFloat(raw, 64); err == nil {
				return x, nil
			}
		case meta.KindBool:
			if raw == "true" || raw == "false" {
				return raw == "true", nil
			}
		case meta.KindTime:
			for _, layout := range timeLayouts {
				if ts, err := time.Parse(layout, raw); err == nil {
					return ts.UTC(), nil
				}
			}
		case meta.KindEnum:
			if v, ok := t.Enum.Case(raw); ok {
				return v, nil
			}
		case meta.KindJSON:
			if strings.HasPrefix(raw, "{") {
				if o, err := jsonobj.Parse(raw); err == nil {
					return o, nil
				}
			}
		case meta.KindRef:
			if e, err := m.Reference(t.Name, raw); err == nil {
				return e, nil
			}
		}
	}
	if isString {
		return raw, nil
	}
	return nil, fmt.Errorf("field %s: %q is not a value of %s", f.Name, raw, strings.Join(f.TypeNames(), "|"))
}

// displayValue renders a field value for output. References become their
// 36-character id, or the primary key values of a natural-key record.
func displayValue(m *orm.Manager, v any) any {
	switch val := v.(type) {
	case nil, string, int64, float64, bool:
		return val
	case time.Time:
		return val.UTC().Format(time.DateTime)
	case meta.EnumValue:
		return val.Case
	case *jsonobj.Object:
		return json.RawMessage(val.Raw())
	case *record.Entity:
		if id, err := m.ReferenceID(val); err == nil {
			if id == "" {
				return nil
			}
			return id
		}
		md, err := m.RecordMetadata(val.Type())
		if err != nil {
			return val.Type()
		}
		key := make(map[string]any, len(md.PrimaryKey.Fields))
		for _, name := range md.PrimaryKey.Fields {
			key[name] = displayValue(m, val.Value(name))
		}
		return key
	default:
		return fmt.Sprint(val)
	}
}

// displayText renders a display value for the text table.
func displayText(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case json.RawMessage:
		return string(val)
	case map[string]any:
		b, _ := json.Marshal(val)
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}
