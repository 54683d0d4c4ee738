package orm

import (
	"context"
	"encoding/hex"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"
	"weak"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/blazeorm/internal/codec"
	"github.com/roach88/blazeorm/internal/jsonobj"
	"github.com/roach88/blazeorm/internal/meta"
	"github.com/roach88/blazeorm/internal/query"
	"github.com/roach88/blazeorm/internal/record"
)

// Reference returns the tracked instance of typ identified by key, creating
// an unloaded one when none is tracked. It never reads storage.
//
// Reference record types take a 16-byte binary key or its 36-character
// hyphenated form; nil and the zero-filled key yield the null reference.
// Other types take a map or entity holding the primary key fields, or a
// scalar when the key has a single field.
func (m *Manager) Reference(typ string, key any) (*record.Entity, error) {
	md, err := m.RecordMetadata(typ)
	if err != nil {
		return nil, err
	}

	var (
		hash   string
		values []any
		st     = &record.State{State: record.StateReference, Task: record.TaskFetch}
	)
	if md.IsReference {
		bin, err := binaryKey(typ, key)
		if err != nil {
			return nil, err
		}
		if bin == nil {
			st.Task = record.TaskNone
		}
		hash, st.Key = string(bin), bin
	} else {
		values, err = primaryValues(md, key)
		if err != nil {
			return nil, err
		}
		hash = m.keyHash(values)
		st.Key = []byte(hash)
	}

	km := m.keyMap(typ)
	if e, ok := km[hash]; ok {
		return e, nil
	}

	e := record.New(typ)
	for i, f := range md.PrimaryFields() {
		if !md.IsReference {
			e.Set(f.Name, values[i])
		}
	}
	m.track(e, st)
	km[hash] = e
	return e, nil
}

// NullReference returns the null reference of a reference record type.
func (m *Manager) NullReference(typ string) (*record.Entity, error) {
	md, err := m.RecordMetadata(typ)
	if err != nil {
		return nil, err
	}
	if !md.IsReference {
		return nil, NewError(CodeInvalidKey, typ, "not a reference record type")
	}
	return m.Reference(typ, nil)
}

// IsNullReference reports whether e is the null reference of its type.
func (m *Manager) IsNullReference(e *record.Entity) bool {
	st := m.state(e)
	return st != nil && st.State == record.StateReference && st.Key == nil
}

// ReferenceKey returns the binary key of a reference record, or nil for
// the null reference.
func (m *Manager) ReferenceKey(e *record.Entity) ([]byte, error) {
	md, err := m.RecordMetadata(e.Type())
	if err != nil {
		return nil, err
	}
	if !md.IsReference {
		return nil, NewError(CodeInvalidKey, e.Type(), "not a reference record type")
	}
	st, err := m.mustState(e)
	if err != nil {
		return nil, err
	}
	if st.Key == nil && st.State == record.StateNew {
		return nil, NewError(CodeInvalidState, e.Type(), "new record has no key yet")
	}
	return st.Key, nil
}

// ReferenceID returns the hyphenated form of a reference record's key, or
// "" for the null reference.
func (m *Manager) ReferenceID(e *record.Entity) (string, error) {
	key, err := m.ReferenceKey(e)
	if err != nil || key == nil {
		return "", err
	}
	return FormatKey(key)
}

func binaryKey(typ string, key any) ([]byte, error) {
	var bin []byte
	switch k := key.(type) {
	case nil:
		return nil, nil
	case []byte:
		switch len(k) {
		case 0:
			return nil, nil
		case codec.KeySize:
			bin = append([]byte(nil), k...)
		default:
			return nil, NewError(CodeInvalidKey, typ, "key of %d bytes", len(k))
		}
	case string:
		switch len(k) {
		case codec.KeySize:
			bin = []byte(k)
		case 36:
			parsed, err := ParseKey(k)
			if err != nil {
				return nil, NewError(CodeInvalidKey, typ, "key %q is not a valid key", k)
			}
			bin = parsed
		default:
			return nil, NewError(CodeInvalidKey, typ, "key %q is not a valid key", k)
		}
	default:
		return nil, NewError(CodeInvalidKey, typ, "key of type %T", key)
	}
	if codec.IsEmptyKey(bin) {
		return nil, nil
	}
	return bin, nil
}

// primaryValues extracts the primary key values of md from source.
func primaryValues(md *meta.Record, source any) ([]any, error) {
	var get func(name string) any
	switch s := source.(type) {
	case map[string]any:
		get = func(name string) any { return s[name] }
	case query.Row:
		get = func(name string) any { return s[name] }
	case *record.Entity:
		get = s.Value
	default:
		if md.PrimaryKey == nil || len(md.PrimaryKey.Fields) != 1 {
			return nil, NewError(CodeInvalidKey, md.Name, "composite key needs a field map")
		}
		get = func(string) any { return source }
	}
	fields := md.PrimaryFields()
	values := make([]any, len(fields))
	for i, f := range fields {
		values[i] = record.Normalize(get(f.Name))
	}
	return values, nil
}

// keyHash joins the normalized primary key values into the identity map
// key of a record with a natural key.
func (m *Manager) keyHash(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = m.keyPart(v)
	}
	return strings.Join(parts, "-")
}

func (m *Manager) keyPart(v any) string {
	switch val := record.Normalize(v).(type) {
	case nil:
		return "nil@"
	case string:
		return "s@" + strconv.Quote(norm.NFC.String(val))
	case int64:
		return "i@" + strconv.FormatInt(val, 10)
	case float64:
		return "f@" + strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		return "b@" + strconv.FormatBool(val)
	case time.Time:
		return "DT@" + val.UTC().Format(time.RFC3339)
	case meta.EnumValue:
		return "E@" + val.String()
	case []byte:
		return "x@" + hex.EncodeToString(val)
	case *jsonobj.Object:
		return "J@" + val.Raw()
	case *record.Entity:
		if st := m.state(val); st != nil && st.Key != nil {
			return "R@" + val.Type() + "@" + hex.EncodeToString(st.Key)
		}
		return fmt.Sprintf("R@%s@%p", val.Type(), val)
	default:
		return fmt.Sprintf("%T@%v", val, val)
	}
}

// entityKeyHash computes the key hash of e from its current field values.
func (m *Manager) entityKeyHash(md *meta.Record, e *record.Entity) (string, error) {
	values, err := primaryValues(md, e)
	if err != nil {
		return "", err
	}
	return m.keyHash(values), nil
}

// Make materializes an instance of typ from a decoded row or field map.
//
// When data holds the full primary key, the tracked instance for that key
// is reused; it is filled from data only while it is still unloaded.
// Otherwise a new, untracked instance is returned. Fields missing from data
// and not yet set get their type's zero value.
func (m *Manager) Make(typ string, data map[string]any) (*record.Entity, error) {
	md, err := m.RecordMetadata(typ)
	if err != nil {
		return nil, err
	}

	var (
		e  *record.Entity
		st *record.State
	)
	if len(data) > 0 && hasPrimaryKey(md, data) {
		if md.IsReference {
			e, err = m.referenceFromValue(typ, data[md.ReferenceField])
		} else {
			e, err = m.Reference(typ, data)
		}
		if err != nil {
			return nil, err
		}
		st = m.state(e)
		if md.IsReference && st.State == record.StateReference && st.Key == nil {
			return nil, NewError(CodeInvalidKey, typ, "the null reference cannot be loaded")
		}
		switch {
		case st.State == record.StateReference:
		case st.State == record.StateStored:
			if st.Task != record.TaskFetch {
				return e, nil
			}
		default:
			return nil, NewError(CodeInvalidState, typ, "cannot load a %s record", st.State)
		}
	} else {
		e = record.New(typ)
	}

	for _, f := range md.Fields {
		if md.IsReference && f.Name == md.ReferenceField {
			continue
		}
		if v, ok := data[f.Name]; ok {
			e.Set(f.Name, v)
		}
	}
	if err := m.fillDefaults(md, e); err != nil {
		return nil, err
	}

	if st != nil {
		st.State = record.StateStored
		if st.Task == record.TaskFetch {
			st.Task = record.TaskNone
		}
	}
	return e, nil
}

func hasPrimaryKey(md *meta.Record, data map[string]any) bool {
	if md.PrimaryKey == nil {
		return false
	}
	for _, name := range md.PrimaryKey.Fields {
		if _, ok := data[name]; !ok {
			return false
		}
	}
	return true
}

func (m *Manager) referenceFromValue(typ string, v any) (*record.Entity, error) {
	if e, ok := v.(*record.Entity); ok {
		if e.Type() != typ {
			return nil, NewError(CodeInvalidKey, typ, "reference to %s given", e.Type())
		}
		if _, err := m.mustState(e); err != nil {
			return nil, err
		}
		return e, nil
	}
	return m.Reference(typ, v)
}

// fillDefaults sets every unset field of e to its zero value.
func (m *Manager) fillDefaults(md *meta.Record, e *record.Entity) error {
	for _, f := range md.Fields {
		if (md.IsReference && f.Name == md.ReferenceField) || e.Has(f.Name) {
			continue
		}
		v, ok, err := m.zeroValue(f)
		if err != nil {
			return fmt.Errorf("field %s: %w", f.Name, err)
		}
		if ok {
			e.Set(f.Name, v)
		}
	}
	return nil
}

// zeroValue returns the default of f: the first of its types that has one.
func (m *Manager) zeroValue(f *meta.Field) (any, bool, error) {
	for _, t := range f.Types {
		switch t.Kind {
		case meta.KindNull:
			return nil, true, nil
		case meta.KindString:
			return "", true, nil
		case meta.KindInt:
			return int64(0), true, nil
		case meta.KindFloat:
			return float64(0), true, nil
		case meta.KindBool:
			return false, true, nil
		case meta.KindTime:
			return time.Time{}, true, nil
		case meta.KindEnum:
			return t.Enum.First(), true, nil
		case meta.KindJSON:
			return jsonobj.New(), true, nil
		case meta.KindRef:
			target, err := m.RecordMetadata(t.Name)
			if err != nil {
				return nil, false, err
			}
			if !target.IsReference {
				continue
			}
			ref, err := m.NullReference(t.Name)
			if err != nil {
				return nil, false, err
			}
			return ref, true, nil
		}
	}
	return nil, false, nil
}

// Prefetch loads every unloaded instance, optionally restricted to the
// types of the given instances and type names. Instances missing from
// storage become Deleted.
func (m *Manager) Prefetch(ctx context.Context, include ...any) error {
	var only map[string]bool
	if len(include) > 0 {
		only = make(map[string]bool)
		for _, item := range include {
			switch v := item.(type) {
			case string:
				only[v] = true
			case *record.Entity:
				if st := m.state(v); st != nil && st.Key != nil && st.Task == record.TaskFetch {
					only[v.Type()] = true
				}
			default:
				return fmt.Errorf("prefetch: unsupported include %T", item)
			}
		}
		if len(only) == 0 {
			return nil
		}
	}

	pending := make(map[string][]*record.Entity)
	var types []string
	for _, s := range m.slots {
		if s.state.Task != record.TaskFetch {
			continue
		}
		e := s.ref.Value()
		if e == nil || (only != nil && !only[e.Type()]) {
			continue
		}
		if _, seen := pending[e.Type()]; !seen {
			types = append(types, e.Type())
		}
		pending[e.Type()] = append(pending[e.Type()], e)
	}

	for _, typ := range types {
		if err := m.fetch(ctx, typ, pending[typ]); err != nil {
			return fmt.Errorf("prefetch %s: %w", typ, err)
		}
	}
	return nil
}

func (m *Manager) fetch(ctx context.Context, typ string, records []*record.Entity) error {
	repo, err := m.Repository(typ)
	if err != nil {
		return err
	}
	md := repo.meta
	for _, chunk := range chunks(records, md.FetchBatchLimit) {
		var cond Cond
		switch {
		case md.IsReference:
			cond = Where(md.ReferenceField, "=", chunk)
		case len(md.PrimaryKey.Fields) == 1:
			name := md.PrimaryKey.Fields[0]
			values := make([]any, len(chunk))
			for i, e := range chunk {
				values[i] = e.Value(name)
			}
			cond = Where(name, "=", values)
		default:
			rows := make([]Cond, len(chunk))
			for i, e := range chunk {
				parts := make([]Cond, len(md.PrimaryKey.Fields))
				for j, name := range md.PrimaryKey.Fields {
					parts[j] = Where(name, "=", e.Value(name))
				}
				rows[i] = And(parts...)
			}
			cond = Or(rows...)
		}

		found, err := repo.FindAll(ctx, cond, 0)
		if err != nil {
			return err
		}
		if len(found) == len(chunk) {
			continue
		}
		for _, e := range chunk {
			if st := m.state(e); st != nil && st.State == record.StateReference {
				st.State = record.StateDeleted
				st.Task = record.TaskNone
			}
		}
	}
	return nil
}

func chunks[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}

// Free drops the key map entries of the given types, or of all types, runs
// a garbage collection and rebuilds the key map from the instances that are
// still referenced elsewhere. Untracked slots are compacted away.
func (m *Manager) Free(types ...string) {
	if len(types) == 0 {
		m.keys = make(map[string]map[string]*record.Entity)
	} else {
		for _, typ := range types {
			delete(m.keys, typ)
		}
	}
	runtime.GC()

	live := m.slots[:0]
	index := make(map[weak.Pointer[record.Entity]]int, len(m.index))
	for _, s := range m.slots {
		e := s.ref.Value()
		if e == nil {
			continue
		}
		index[s.ref] = len(live)
		live = append(live, s)
		if s.state.Key == nil && s.state.State != record.StateReference {
			continue
		}
		// A later slot with the same key replaced an earlier, deleted one.
		m.keyMap(e.Type())[string(s.state.Key)] = e
	}
	clear(m.slots[len(live):])
	m.slots = live
	m.index = index
	m.logger.Debug("identity map freed", "types", types, "tracked", len(live))
}
