package meta

import (
	"errors"
	"fmt"
	"slices"
)

// Default field and batch settings.
const (
	DefaultLength = 120

	// PrimaryIndex is the name of the index formed by primary fields.
	PrimaryIndex = "PRIMARY"

	// ImplicitKeyField is prepended to record types declaring no primary key.
	ImplicitKeyField = "id"

	referenceBatchLimit = 5000
	plainBatchLimit     = 200
	insertBatchLimit    = 5000
)

// FieldOption configures a field declared with Builder.Field.
type FieldOption func(*Field)

// Length sets the display length hint used for string DDL.
func Length(n int) FieldOption {
	return func(f *Field) { f.Length = n }
}

// Decimal stores numeric values as decimal(digits, fraction).
func Decimal(digits, fraction int) FieldOption {
	return func(f *Field) {
		f.DecimalDigits = digits
		f.DecimalFractionDigits = fraction
	}
}

// Hint sets the type hint selecting a DDL variant, e.g. "text", "blob",
// "timestamp", "int" or "smallint".
func Hint(h string) FieldOption {
	return func(f *Field) { f.TypeHint = h }
}

// Primary marks the field as part of the primary key.
func Primary() FieldOption {
	return func(f *Field) { f.Primary = true }
}

// Indexed adds a non-unique index by_<field> for the field.
func Indexed() FieldOption {
	return func(f *Field) { f.Indexed = true }
}

// Builder collects the declaration of one record type.
type Builder struct {
	rec     Record
	indexes []*Index
	errs    []error

	fetchLimit, insertLimit, deleteLimit int
}

// NewRecord starts the declaration of a record type stored in table.
func NewRecord(name, table string) *Builder {
	return &Builder{rec: Record{Name: name, Table: table}}
}

// Alias sets the alias written into discriminator columns.
func (b *Builder) Alias(alias string) *Builder {
	b.rec.Alias = alias
	return b
}

// Field declares a field whose value may be any of types.
func (b *Builder) Field(name string, types []Type, opts ...FieldOption) *Builder {
	f := &Field{Name: name, Types: append([]Type(nil), types...), Length: DefaultLength}
	for _, opt := range opts {
		opt(f)
	}
	b.rec.Fields = append(b.rec.Fields, f)
	return b
}

// Index declares an index over fields.
func (b *Builder) Index(name string, unique bool, fields ...string) *Builder {
	b.indexes = append(b.indexes, &Index{Name: name, Unique: unique, Fields: fields})
	return b
}

// IndexDDL declares an index with an explicit definition over columns.
func (b *Builder) IndexDDL(name, ddl string, columns ...string) *Builder {
	b.indexes = append(b.indexes, &Index{Name: name, DDL: ddl, Columns: columns})
	return b
}

// BatchLimits overrides the fetch, insert and delete batch sizes.
// Zero keeps the default.
func (b *Builder) BatchLimits(fetch, insert, del int) *Builder {
	b.fetchLimit, b.insertLimit, b.deleteLimit = fetch, insert, del
	return b
}

// Build validates the declaration and resolves the primary key, derived
// indexes and batch limits.
func (b *Builder) Build() (*Record, error) {
	r := b.rec
	if r.Name == "" {
		return nil, errors.New("record name is required")
	}
	if r.Table == "" {
		return nil, fmt.Errorf("record %s: table is required", r.Name)
	}

	r.fields = make(map[string]*Field, len(r.Fields)+1)
	r.Fields = slices.Clone(r.Fields)
	for i, f := range r.Fields {
		nf, err := normalizeField(r.Name, f)
		if err != nil {
			return nil, err
		}
		if _, dup := r.fields[nf.Name]; dup {
			return nil, fmt.Errorf("record %s: duplicate field %q", r.Name, nf.Name)
		}
		r.Fields[i] = nf
		r.fields[nf.Name] = nf
	}

	r.Indexes = make([]*Index, 0, len(b.indexes)+1)
	for _, idx := range b.indexes {
		r.Indexes = append(r.Indexes, idx.clone())
	}
	for _, f := range r.Fields {
		if f.Primary {
			if pk := findIndex(r.Indexes, PrimaryIndex); pk != nil {
				pk.Fields = append(pk.Fields, f.Name)
			} else {
				r.Indexes = append(r.Indexes, &Index{Name: PrimaryIndex, Unique: true, Fields: []string{f.Name}})
			}
		}
		if f.Indexed {
			r.Indexes = append(r.Indexes, &Index{Name: "by_" + f.Name, Fields: []string{f.Name}})
		}
	}

	for _, idx := range r.Indexes {
		if idx.Name == "" {
			return nil, fmt.Errorf("record %s: index name is required", r.Name)
		}
		for _, name := range idx.Fields {
			if _, ok := r.fields[name]; !ok {
				return nil, fmt.Errorf("record %s: index %s references unknown field %q", r.Name, idx.Name, name)
			}
		}
		if r.PrimaryKey == nil && (idx.Name == PrimaryIndex || idx.Unique) && len(idx.Fields) > 0 {
			r.PrimaryKey = idx
		}
	}

	if r.PrimaryKey == nil {
		if _, taken := r.fields[ImplicitKeyField]; taken {
			return nil, fmt.Errorf("record %s: no primary key and field %q is already declared", r.Name, ImplicitKeyField)
		}
		id := &Field{Name: ImplicitKeyField, Types: []Type{Ref(r.Name)}, Length: DefaultLength, Primary: true}
		r.Fields = append([]*Field{id}, r.Fields...)
		r.fields[id.Name] = id
		r.PrimaryKey = &Index{Name: PrimaryIndex, Unique: true, Fields: []string{id.Name}}
		r.Indexes = append([]*Index{r.PrimaryKey}, r.Indexes...)
	}

	if len(r.PrimaryKey.Fields) == 1 {
		f := r.fields[r.PrimaryKey.Fields[0]]
		if len(f.Types) == 1 && f.Types[0].Kind == KindRef && f.Types[0].Name == r.Name {
			r.IsReference = true
			r.ReferenceField = f.Name
		}
	}

	if r.IsReference {
		r.FetchBatchLimit, r.DeleteBatchLimit = referenceBatchLimit, referenceBatchLimit
	} else {
		r.FetchBatchLimit, r.DeleteBatchLimit = plainBatchLimit, plainBatchLimit
	}
	r.InsertBatchLimit = insertBatchLimit
	if b.fetchLimit > 0 {
		r.FetchBatchLimit = b.fetchLimit
	}
	if b.insertLimit > 0 {
		r.InsertBatchLimit = b.insertLimit
	}
	if b.deleteLimit > 0 {
		r.DeleteBatchLimit = b.deleteLimit
	}

	return &r, nil
}

// MustBuild is like Build but panics on error.
func (b *Builder) MustBuild() *Record {
	r, err := b.Build()
	if err != nil {
		panic(err)
	}
	return r
}

// normalizeField resolves Self, drops duplicate types and orders builtin
// types before enum, json and reference types.
func normalizeField(recordName string, f *Field) (*Field, error) {
	if f.Name == "" {
		return nil, fmt.Errorf("record %s: field name is required", recordName)
	}
	if len(f.Types) == 0 {
		return nil, fmt.Errorf("record %s: field %s: at least one type is required", recordName, f.Name)
	}

	nf := *f
	nf.Types = make([]Type, 0, len(f.Types))
	seen := make(map[string]bool, len(f.Types))
	for _, t := range f.Types {
		if t.Kind == KindRef && t.Name == "" {
			t = Ref(recordName)
		}
		if t.Kind == KindEnum && t.Enum == nil {
			return nil, fmt.Errorf("record %s: field %s: enum type %q has no definition: %w", recordName, f.Name, t.Name, ErrUnsupportedType)
		}
		if t.Name == "" {
			return nil, fmt.Errorf("record %s: field %s: unnamed %s type: %w", recordName, f.Name, t.Kind, ErrUnsupportedType)
		}
		if seen[t.Name] {
			continue
		}
		seen[t.Name] = true
		nf.Types = append(nf.Types, t)
	}
	slices.SortStableFunc(nf.Types, func(a, b Type) int {
		switch {
		case a.Kind.Builtin() == b.Kind.Builtin():
			return 0
		case a.Kind.Builtin():
			return -1
		default:
			return 1
		}
	})
	nf.Columns = nil
	return &nf, nil
}

func findIndex(indexes []*Index, name string) *Index {
	for _, idx := range indexes {
		if idx.Name == name {
			return idx
		}
	}
	return nil
}
