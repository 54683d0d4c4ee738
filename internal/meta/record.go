package meta

// Column is a physical storage slot backing (part of) a field.
type Column struct {
	Name    string
	DDL     string
	Default any

	// StoredTypes lists the type names whose values live in this column.
	// It is empty for the discriminator column of a composite field.
	StoredTypes []string
}

// Discriminator reports whether the column stores the alias of the active
// type of a composite field.
func (c *Column) Discriminator() bool {
	return len(c.StoredTypes) == 0
}

// Stores reports whether values of the named type are written to c.
func (c *Column) Stores(typeName string) bool {
	for _, t := range c.StoredTypes {
		if t == typeName {
			return true
		}
	}
	return false
}

// Field describes a named property of a record type.
type Field struct {
	Name                  string
	Types                 []Type
	Length                int
	DecimalDigits         int
	DecimalFractionDigits int
	TypeHint              string
	Primary               bool
	Indexed               bool

	// Columns is filled in by the storage engine that owns the record type.
	Columns []*Column
}

// Composite reports whether the field is a union of more than one type.
func (f *Field) Composite() bool {
	return len(f.Types) > 1
}

// TypeNames returns the names of the field's candidate types.
func (f *Field) TypeNames() []string {
	names := make([]string, len(f.Types))
	for i, t := range f.Types {
		names[i] = t.Name
	}
	return names
}

// HasType reports whether name is one of the field's candidate types.
func (f *Field) HasType(name string) bool {
	for _, t := range f.Types {
		if t.Name == name {
			return true
		}
	}
	return false
}

// ColumnNames returns the names of the resolved columns in order.
func (f *Field) ColumnNames() []string {
	names := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		names[i] = c.Name
	}
	return names
}

func (f *Field) clone() *Field {
	c := *f
	c.Types = append([]Type(nil), f.Types...)
	c.Columns = make([]*Column, len(f.Columns))
	for i, col := range f.Columns {
		cc := *col
		cc.StoredTypes = append([]string(nil), col.StoredTypes...)
		c.Columns[i] = &cc
	}
	return &c
}

// Index is a (possibly unique) index over one or more fields.
type Index struct {
	Name   string
	Fields []string
	// Columns is resolved from the fields' columns by the storage engine
	// unless declared explicitly.
	Columns []string
	DDL     string
	Unique  bool
}

func (i *Index) clone() *Index {
	c := *i
	c.Fields = append([]string(nil), i.Fields...)
	c.Columns = append([]string(nil), i.Columns...)
	return &c
}

// Record is the resolved metadata of one record type.
type Record struct {
	Name  string
	Table string
	Alias string

	Fields  []*Field
	Indexes []*Index

	PrimaryKey     *Index
	IsReference    bool
	ReferenceField string

	FetchBatchLimit  int
	InsertBatchLimit int
	DeleteBatchLimit int

	fields map[string]*Field
}

// Field returns the named field.
func (r *Record) Field(name string) (*Field, bool) {
	f, ok := r.fields[name]
	return f, ok
}

// PrimaryFields returns the primary key fields in key order.
func (r *Record) PrimaryFields() []*Field {
	if r.PrimaryKey == nil {
		return nil
	}
	fields := make([]*Field, 0, len(r.PrimaryKey.Fields))
	for _, name := range r.PrimaryKey.Fields {
		fields = append(fields, r.fields[name])
	}
	return fields
}

// IsPrimaryField reports whether name is part of the primary key.
func (r *Record) IsPrimaryField(name string) bool {
	if r.PrimaryKey == nil {
		return false
	}
	for _, f := range r.PrimaryKey.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// IsPrimaryColumn reports whether the named column belongs to the primary key.
func (r *Record) IsPrimaryColumn(name string) bool {
	if r.PrimaryKey == nil {
		return false
	}
	for _, c := range r.PrimaryKey.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// AliasName returns the alias written into discriminator columns of fields
// referencing this record type.
func (r *Record) AliasName() string {
	if r.Alias != "" {
		return r.Alias
	}
	return r.Name
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	c := *r
	c.Fields = make([]*Field, len(r.Fields))
	c.fields = make(map[string]*Field, len(r.Fields))
	for i, f := range r.Fields {
		cf := f.clone()
		c.Fields[i] = cf
		c.fields[cf.Name] = cf
	}
	c.Indexes = make([]*Index, len(r.Indexes))
	c.PrimaryKey = nil
	for i, idx := range r.Indexes {
		ci := idx.clone()
		c.Indexes[i] = ci
		if idx == r.PrimaryKey {
			c.PrimaryKey = ci
		}
	}
	return &c
}
