package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/blazeorm/internal/meta"
)

// Document is the decoded form of a schema file. YAML and CUE sources
// produce the same shape.
type Document struct {
	Enums   []EnumDoc   `yaml:"enums"`
	Records []RecordDoc `yaml:"records"`
}

// EnumDoc declares an enum. When Values is set the enum is backed and
// Values[i] is stored for Cases[i].
type EnumDoc struct {
	Name   string   `yaml:"name"`
	Alias  string   `yaml:"alias,omitempty"`
	Cases  []string `yaml:"cases"`
	Values []any    `yaml:"values,omitempty"`
}

// RecordDoc declares a record type.
type RecordDoc struct {
	Name    string     `yaml:"name"`
	Table   string     `yaml:"table"`
	Alias   string     `yaml:"alias,omitempty"`
	Fields  []FieldDoc `yaml:"fields"`
	Indexes []IndexDoc `yaml:"indexes,omitempty"`
	Batch   *BatchDoc  `yaml:"batch,omitempty"`
}

// FieldDoc declares a field. Types lists type names: null, string, int,
// float, bool, datetime, json, self, an enum name or a record name.
type FieldDoc struct {
	Name    string      `yaml:"name"`
	Types   []string    `yaml:"types"`
	Primary bool        `yaml:"primary,omitempty"`
	Indexed bool        `yaml:"indexed,omitempty"`
	Length  int         `yaml:"length,omitempty"`
	Hint    string      `yaml:"hint,omitempty"`
	Decimal *DecimalDoc `yaml:"decimal,omitempty"`
}

// DecimalDoc is the precision of a decimal column.
type DecimalDoc struct {
	Digits   int `yaml:"digits"`
	Fraction int `yaml:"fraction"`
}

// IndexDoc declares an index over fields.
type IndexDoc struct {
	Name   string   `yaml:"name"`
	Unique bool     `yaml:"unique,omitempty"`
	Fields []string `yaml:"fields"`
}

// BatchDoc overrides batch limits. Zero keeps the default.
type BatchDoc struct {
	Fetch  int `yaml:"fetch,omitempty"`
	Insert int `yaml:"insert,omitempty"`
	Delete int `yaml:"delete,omitempty"`
}

var scalarTypes = map[string]meta.Type{
	"null":     meta.Null,
	"string":   meta.String,
	"int":      meta.Int,
	"float":    meta.Float,
	"bool":     meta.Bool,
	"datetime": meta.Time,
	"json":     meta.JSON,
	"self":     meta.Self,
}

// Registry builds the metadata of every declared record type and checks
// that references resolve.
func (d *Document) Registry() (*meta.Registry, error) {
	enums := make(map[string]*meta.Enum, len(d.Enums))
	for _, ed := range d.Enums {
		e, err := ed.build()
		if err != nil {
			return nil, err
		}
		if _, dup := enums[e.Name]; dup {
			return nil, fmt.Errorf("enum %s declared twice", e.Name)
		}
		enums[e.Name] = e
	}

	records := make(map[string]bool, len(d.Records))
	for _, rd := range d.Records {
		records[rd.Name] = true
	}

	reg, err := meta.NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, rd := range d.Records {
		rec, err := rd.build(enums, records)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(rec); err != nil {
			return nil, err
		}
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

func (ed EnumDoc) build() (*meta.Enum, error) {
	var (
		e   *meta.Enum
		err error
	)
	if len(ed.Values) > 0 {
		e, err = meta.NewBackedEnum(ed.Name, ed.Cases, ed.Values)
	} else {
		e, err = meta.NewEnum(ed.Name, ed.Cases...)
	}
	if err != nil {
		return nil, err
	}
	e.Alias = ed.Alias
	return e, nil
}

func (rd RecordDoc) build(enums map[string]*meta.Enum, records map[string]bool) (*meta.Record, error) {
	b := meta.NewRecord(rd.Name, rd.Table)
	if rd.Alias != "" {
		b.Alias(rd.Alias)
	}
	for _, fd := range rd.Fields {
		types := make([]meta.Type, 0, len(fd.Types))
		for _, name := range fd.Types {
			t, err := resolveType(name, enums, records)
			if err != nil {
				return nil, fmt.Errorf("record %s: field %s: %w", rd.Name, fd.Name, err)
			}
			types = append(types, t)
		}

		var opts []meta.FieldOption
		if fd.Primary {
			opts = append(opts, meta.Primary())
		}
		if fd.Indexed {
			opts = append(opts, meta.Indexed())
		}
		if fd.Length > 0 {
			opts = append(opts, meta.Length(fd.Length))
		}
		if fd.Hint != "" {
			opts = append(opts, meta.Hint(fd.Hint))
		}
		if fd.Decimal != nil {
			opts = append(opts, meta.Decimal(fd.Decimal.Digits, fd.Decimal.Fraction))
		}
		b.Field(fd.Name, types, opts...)
	}
	for _, idx := range rd.Indexes {
		b.Index(idx.Name, idx.Unique, idx.Fields...)
	}
	if rd.Batch != nil {
		b.BatchLimits(rd.Batch.Fetch, rd.Batch.Insert, rd.Batch.Delete)
	}
	return b.Build()
}

func resolveType(name string, enums map[string]*meta.Enum, records map[string]bool) (meta.Type, error) {
	if t, ok := scalarTypes[name]; ok {
		return t, nil
	}
	if e, ok := enums[name]; ok {
		return meta.EnumType(e), nil
	}
	if records[name] {
		return meta.Ref(name), nil
	}
	return meta.Type{}, fmt.Errorf("unknown type %q", name)
}

// Load reads a schema file, choosing the decoder by extension: .yaml and
// .yml for YAML, .cue or a directory for CUE.
func Load(path string) (*Document, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return LoadCUE(path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(path)
	case ".cue":
		return LoadCUE(path)
	default:
		return nil, fmt.Errorf("unsupported schema file %s: want .yaml, .yml or .cue", path)
	}
}

// LoadRegistry is Load followed by Document.Registry.
func LoadRegistry(path string) (*meta.Registry, error) {
	doc, err := Load(path)
	if err != nil {
		return nil, err
	}
	reg, err := doc.Registry()
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", path, err)
	}
	return reg, nil
}
