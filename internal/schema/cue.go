package schema

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

// DecodeError is a schema error with the CUE source position when known.
type DecodeError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *DecodeError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LoadCUE reads a CUE schema from a single file or from the package in a
// directory.
//
// Enums and records are structs keyed by name; fields and indexes are
// structs keyed by name and keep their declaration order:
//
//	enums: Status: cases: ["draft", "published"]
//	records: Post: {
//		table: "posts"
//		fields: {
//			title: types: ["string"]
//			status: types: ["Status"]
//		}
//	}
func LoadCUE(path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	ctx := cuecontext.New()
	var v cue.Value
	if info.IsDir() {
		instances := load.Instances([]string{"."}, &load.Config{Dir: path})
		if len(instances) == 0 {
			return nil, fmt.Errorf("schema %s: no CUE instances loaded", path)
		}
		if instances[0].Err != nil {
			return nil, fmt.Errorf("schema %s: loading CUE files: %w", path, instances[0].Err)
		}
		v = ctx.BuildInstance(instances[0])
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema file: %w", err)
		}
		v = ctx.CompileBytes(data, cue.Filename(path))
	}

	doc, err := DecodeCUE(v)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", path, err)
	}
	return doc, nil
}

// ParseCUE compiles CUE source text and decodes it.
func ParseCUE(src string) (*Document, error) {
	return DecodeCUE(cuecontext.New().CompileString(src))
}

// DecodeCUE decodes a compiled CUE value into a Document.
func DecodeCUE(v cue.Value) (*Document, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	doc := &Document{}
	err := eachField(v, "enums", func(name string, ev cue.Value) error {
		ed, err := decodeEnum(name, ev)
		if err != nil {
			return err
		}
		doc.Enums = append(doc.Enums, ed)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = eachField(v, "records", func(name string, rv cue.Value) error {
		rd, err := decodeRecord(name, rv)
		if err != nil {
			return err
		}
		doc.Records = append(doc.Records, rd)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := validateDocument(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func decodeEnum(name string, v cue.Value) (EnumDoc, error) {
	ed := EnumDoc{Name: name}
	var err error
	if ed.Alias, err = optionalString(v, "alias"); err != nil {
		return ed, err
	}
	if ed.Cases, err = stringList(v, "cases"); err != nil {
		return ed, err
	}
	if len(ed.Cases) == 0 {
		return ed, &DecodeError{
			Field:   "enums." + name + ".cases",
			Message: "at least one case is required",
			Pos:     v.Pos(),
		}
	}

	valuesVal := v.LookupPath(cue.ParsePath("values"))
	if !valuesVal.Exists() {
		return ed, nil
	}
	iter, err := valuesVal.List()
	if err != nil {
		return ed, formatCUEError(err)
	}
	for iter.Next() {
		item := iter.Value()
		switch item.Kind() {
		case cue.IntKind:
			n, err := item.Int64()
			if err != nil {
				return ed, formatCUEError(err)
			}
			ed.Values = append(ed.Values, n)
		case cue.StringKind:
			s, _ := item.String()
			ed.Values = append(ed.Values, s)
		default:
			return ed, &DecodeError{
				Field:   "enums." + name + ".values",
				Message: fmt.Sprintf("backing values must be strings or integers, got %s", item.Kind()),
				Pos:     item.Pos(),
			}
		}
	}
	return ed, nil
}

func decodeRecord(name string, v cue.Value) (RecordDoc, error) {
	rd := RecordDoc{Name: name}
	var err error
	if rd.Table, err = optionalString(v, "table"); err != nil {
		return rd, err
	}
	if rd.Table == "" {
		return rd, &DecodeError{
			Field:   "records." + name + ".table",
			Message: "table is required",
			Pos:     v.Pos(),
		}
	}
	if rd.Alias, err = optionalString(v, "alias"); err != nil {
		return rd, err
	}

	err = eachField(v, "fields", func(fieldName string, fv cue.Value) error {
		fd, err := decodeField(fieldName, fv)
		if err != nil {
			return err
		}
		rd.Fields = append(rd.Fields, fd)
		return nil
	})
	if err != nil {
		return rd, err
	}

	err = eachField(v, "indexes", func(indexName string, iv cue.Value) error {
		idx := IndexDoc{Name: indexName}
		var err error
		if idx.Unique, err = optionalBool(iv, "unique"); err != nil {
			return err
		}
		if idx.Fields, err = stringList(iv, "fields"); err != nil {
			return err
		}
		rd.Indexes = append(rd.Indexes, idx)
		return nil
	})
	if err != nil {
		return rd, err
	}

	if bv := v.LookupPath(cue.ParsePath("batch")); bv.Exists() {
		rd.Batch = &BatchDoc{}
		if rd.Batch.Fetch, err = optionalInt(bv, "fetch"); err != nil {
			return rd, err
		}
		if rd.Batch.Insert, err = optionalInt(bv, "insert"); err != nil {
			return rd, err
		}
		if rd.Batch.Delete, err = optionalInt(bv, "delete"); err != nil {
			return rd, err
		}
	}
	return rd, nil
}

// decodeField accepts either a struct or a bare type name:
//
//	title: "string"
//	rating: {types: ["null", "float"], decimal: {digits: 5, fraction: 2}}
func decodeField(name string, v cue.Value) (FieldDoc, error) {
	fd := FieldDoc{Name: name}
	if s, err := v.String(); err == nil {
		fd.Types = []string{s}
		return fd, nil
	}

	var err error
	typesVal := v.LookupPath(cue.ParsePath("types"))
	if s, serr := typesVal.String(); serr == nil {
		fd.Types = []string{s}
	} else if fd.Types, err = stringList(v, "types"); err != nil {
		return fd, err
	}
	if fd.Primary, err = optionalBool(v, "primary"); err != nil {
		return fd, err
	}
	if fd.Indexed, err = optionalBool(v, "indexed"); err != nil {
		return fd, err
	}
	if fd.Length, err = optionalInt(v, "length"); err != nil {
		return fd, err
	}
	if fd.Hint, err = optionalString(v, "hint"); err != nil {
		return fd, err
	}
	if dv := v.LookupPath(cue.ParsePath("decimal")); dv.Exists() {
		fd.Decimal = &DecimalDoc{}
		if fd.Decimal.Digits, err = optionalInt(dv, "digits"); err != nil {
			return fd, err
		}
		if fd.Decimal.Fraction, err = optionalInt(dv, "fraction"); err != nil {
			return fd, err
		}
	}
	return fd, nil
}

// eachField calls fn for every field of the struct at path, in order.
// A missing struct is not an error.
func eachField(v cue.Value, path string, fn func(label string, v cue.Value) error) error {
	sv := v.LookupPath(cue.ParsePath(path))
	if !sv.Exists() {
		return nil
	}
	iter, err := sv.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		if err := fn(iter.Label(), iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

func stringList(v cue.Value, path string) ([]string, error) {
	lv := v.LookupPath(cue.ParsePath(path))
	if !lv.Exists() {
		return nil, nil
	}
	iter, err := lv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

func optionalString(v cue.Value, path string) (string, error) {
	sv := v.LookupPath(cue.ParsePath(path))
	if !sv.Exists() {
		return "", nil
	}
	s, err := sv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalBool(v cue.Value, path string) (bool, error) {
	bv := v.LookupPath(cue.ParsePath(path))
	if !bv.Exists() {
		return false, nil
	}
	b, err := bv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func optionalInt(v cue.Value, path string) (int, error) {
	iv := v.LookupPath(cue.ParsePath(path))
	if !iv.Exists() {
		return 0, nil
	}
	n, err := iv.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return int(n), nil
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &DecodeError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
