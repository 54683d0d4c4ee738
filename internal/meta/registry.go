package meta

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownRecord is returned when a record type is not registered.
var ErrUnknownRecord = errors.New("unknown record type")

// Registry holds the metadata of every record type known to an application.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record
	enums   map[string]*Enum
	order   []string
}

// NewRegistry returns a registry containing records.
func NewRegistry(records ...*Record) (*Registry, error) {
	r := &Registry{records: make(map[string]*Record), enums: make(map[string]*Enum)}
	for _, rec := range records {
		if err := r.Register(rec); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds rec. Registering two record types with the same name or
// alias is an error.
func (r *Registry) Register(rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.records[rec.Name]; dup {
		return fmt.Errorf("record %s already registered", rec.Name)
	}
	for _, other := range r.records {
		if other.AliasName() == rec.AliasName() {
			return fmt.Errorf("record %s: alias %q already used by %s", rec.Name, rec.AliasName(), other.Name)
		}
	}
	for _, f := range rec.Fields {
		for _, t := range f.Types {
			if t.Enum == nil {
				continue
			}
			if prev, ok := r.enums[t.Enum.Name]; ok && prev != t.Enum {
				return fmt.Errorf("record %s: field %s: conflicting definitions of enum %s", rec.Name, f.Name, t.Enum.Name)
			}
			r.enums[t.Enum.Name] = t.Enum
		}
	}

	r.records[rec.Name] = rec
	r.order = append(r.order, rec.Name)
	return nil
}

// Lookup returns the metadata of the named record type.
func (r *Registry) Lookup(name string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRecord, name)
	}
	return rec, nil
}

// MustLookup is like Lookup but panics on an unknown name.
func (r *Registry) MustLookup(name string) *Record {
	rec, err := r.Lookup(name)
	if err != nil {
		panic(err)
	}
	return rec
}

// Enum returns a registered enum by name.
func (r *Registry) Enum(name string) (*Enum, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.enums[name]
	return e, ok
}

// Names returns the registered record type names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Validate checks that every reference type points at a registered record.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		for _, f := range r.records[name].Fields {
			for _, t := range f.Types {
				if t.Kind != KindRef {
					continue
				}
				if _, ok := r.records[t.Name]; !ok {
					return fmt.Errorf("record %s: field %s: %w: %s", name, f.Name, ErrUnknownRecord, t.Name)
				}
			}
		}
	}
	return nil
}
