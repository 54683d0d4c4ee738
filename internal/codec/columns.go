package codec

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/blazeorm/internal/jsonobj"
	"github.com/roach88/blazeorm/internal/meta"
	"github.com/roach88/blazeorm/internal/record"
)

// Decoder reconstructs a logical value from a result row.
type Decoder func(row map[string]any) (any, error)

// TypeOf returns the logical type of a runtime value. Enum and reference
// types carry their name; Enum definitions are taken from the value.
func TypeOf(v any) (meta.Type, error) {
	switch val := record.Normalize(v).(type) {
	case nil:
		return meta.Null, nil
	case string:
		return meta.String, nil
	case int64:
		return meta.Int, nil
	case float64:
		return meta.Float, nil
	case bool:
		return meta.Bool, nil
	case time.Time:
		return meta.Time, nil
	case meta.EnumValue:
		if val.Enum == nil {
			return meta.Type{}, fmt.Errorf("empty enum value: %w", ErrUnsupportedType)
		}
		return meta.EnumType(val.Enum), nil
	case *jsonobj.Object:
		return meta.JSON, nil
	case *record.Entity:
		return meta.Ref(val.Type()), nil
	default:
		return meta.Type{}, fmt.Errorf("value of type %T: %w", v, ErrUnsupportedType)
	}
}

// fieldType returns the declared type of f matching the runtime type of v.
func fieldType(f *meta.Field, v any) (meta.Type, error) {
	t, err := TypeOf(v)
	if err != nil {
		return meta.Type{}, fmt.Errorf("field %s: %w", f.Name, err)
	}
	for _, ft := range f.Types {
		if ft.Kind == t.Kind && ft.Name == t.Name {
			return ft, nil
		}
	}
	if t.Kind == meta.KindInt && f.HasType(meta.Float.Name) && !f.HasType(meta.Int.Name) {
		return meta.Float, nil
	}
	return meta.Type{}, fmt.Errorf("field %s does not accept %s values: %w", f.Name, t, ErrUnsupportedType)
}

// ResolveColumns computes the physical columns of f and stores them in
// f.Columns. Columns of a composite field are the discriminator followed by
// one column per distinct suffix, in type order.
func (c *Codec) ResolveColumns(f *meta.Field) error {
	infos := make([]*TypeInfo, len(f.Types))
	aliases := make(map[string]string, len(f.Types))
	var enumValues []string
	isFloat := false
	for i, t := range f.Types {
		ti, err := c.Resolve(t)
		if err != nil {
			return fmt.Errorf("field %s: %w", f.Name, err)
		}
		if prev, dup := aliases[ti.Alias]; dup {
			return fmt.Errorf("field %s: types %s and %s share alias %q: %w", f.Name, prev, t, ti.Alias, ErrUnsupportedType)
		}
		aliases[ti.Alias] = t.Name
		infos[i] = ti

		switch {
		case t.Kind == meta.KindEnum && t.Enum.Backing == meta.BackingNone:
			for _, name := range t.Enum.Cases() {
				if !contains(enumValues, name) {
					enumValues = append(enumValues, name)
				}
			}
		case t.Kind == meta.KindFloat:
			isFloat = true
		}
	}

	composite := f.Composite()
	if !composite && infos[0].Suffix == SuffixType {
		return fmt.Errorf("field %s: a null-only field cannot be stored: %w", f.Name, ErrUnsupportedType)
	}

	var columns []*meta.Column
	byName := make(map[string]*meta.Column)
	if composite {
		names := make([]string, len(infos))
		for i, ti := range infos {
			names[i] = ti.Alias
		}
		disc := &meta.Column{
			Name: f.Name + SuffixType,
			DDL:  "enum(" + quoteList(names) + ") NOT NULL",
		}
		columns = append(columns, disc)
		byName[disc.Name] = disc
	}

	for _, ti := range infos {
		name := f.Name
		if composite {
			name += ti.Suffix
		}
		col, ok := byName[name]
		if !ok {
			col = &meta.Column{Name: name}
			switch ti.Suffix {
			case SuffixString:
				col.DDL, col.Default = stringDDL(f), ""
			case SuffixNumber:
				col.DDL, col.Default = numberDDL(f, isFloat), int64(0)
			case SuffixBool:
				col.DDL, col.Default = "tinyint", int64(0)
			case SuffixDatetime:
				col.DDL, col.Default = "datetime", EmptyDate
				if f.TypeHint == "timestamp" {
					col.DDL = "timestamp"
				}
			case SuffixEnum:
				values := enumValues
				if composite {
					values = append([]string{""}, enumValues...)
				}
				col.DDL, col.Default = "enum("+quoteList(values)+")", values[0]
			case SuffixRef:
				col.DDL, col.Default = KeyType, EmptyKey()
			case SuffixJSON:
				col.DDL, col.Default = "json", "null"
			default:
				return fmt.Errorf("field %s: type %s has no column: %w", f.Name, ti.Type, ErrUnsupportedType)
			}
			col.DDL += " NOT NULL"
			columns = append(columns, col)
			byName[name] = col
		}
		if ti.Suffix != SuffixType {
			col.StoredTypes = append(col.StoredTypes, ti.Type.Name)
		}
	}

	f.Columns = columns
	return nil
}

func stringDDL(f *meta.Field) string {
	switch f.TypeHint {
	case "blob", "mediumblob", "text", "mediumtext":
		return f.TypeHint
	case "binary", "varbinary":
		return fmt.Sprintf("%s(%d)", f.TypeHint, f.Length)
	default:
		return fmt.Sprintf("varchar(%d)", f.Length)
	}
}

func numberDDL(f *meta.Field, isFloat bool) string {
	switch {
	case f.DecimalDigits > 0:
		return fmt.Sprintf("decimal(%d,%d)", f.DecimalDigits, f.DecimalFractionDigits)
	case isFloat:
		return "float"
	case f.TypeHint == "bigint", f.TypeHint == "tinyint":
		return f.TypeHint
	default:
		return "int"
	}
}

// Bind encodes v into the stored values of f's columns, aligned with
// f.Columns. The field's columns must have been resolved.
func (c *Codec) Bind(f *meta.Field, v any) ([]any, error) {
	t, err := fieldType(f, v)
	if err != nil {
		return nil, err
	}
	ti, err := c.Resolve(t)
	if err != nil {
		return nil, err
	}
	encoded, err := ti.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", f.Name, err)
	}

	if len(f.Columns) == 1 {
		return []any{encoded}, nil
	}
	out := make([]any, len(f.Columns))
	for i, col := range f.Columns {
		switch {
		case col.Discriminator():
			out[i] = ti.Alias
		case col.Stores(t.Name):
			out[i] = encoded
		default:
			out[i] = col.Default
		}
	}
	return out, nil
}

// Decoder returns a decoder reading a value of one of types from the
// columns named after name.
func (c *Codec) Decoder(name string, types []meta.Type) (Decoder, error) {
	if len(types) == 0 {
		return nil, fmt.Errorf("decoder %s: no types: %w", name, ErrUnsupportedType)
	}
	if len(types) == 1 {
		ti, err := c.Resolve(types[0])
		if err != nil {
			return nil, err
		}
		return func(row map[string]any) (any, error) {
			return ti.Decode(row[name])
		}, nil
	}

	type slot struct {
		column string
		info   *TypeInfo
	}
	typeColumn := name + SuffixType
	byAlias := make(map[string]slot, len(types))
	for _, t := range types {
		ti, err := c.Resolve(t)
		if err != nil {
			return nil, err
		}
		byAlias[ti.Alias] = slot{column: name + ti.Suffix, info: ti}
	}
	return func(row map[string]any) (any, error) {
		alias := asString(row[typeColumn])
		s, ok := byAlias[alias]
		if !ok {
			return nil, fmt.Errorf("field %s: %w %q", name, ErrUnknownDiscriminator, alias)
		}
		return s.info.Decode(row[s.column])
	}, nil
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return ""
	}
}

func quoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}
	return strings.Join(quoted, ",")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
