// Package orm implements the record manager: an identity map of record
// instances, their lifecycle state and the unit of work that writes pending
// changes through storage engines.
//
// A Manager is not safe for concurrent use. The intended deployment is one
// manager per unit of work.
package orm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"weak"

	"github.com/hashicorp/go-multierror"
	"github.com/tevino/abool"

	"github.com/roach88/blazeorm/internal/codec"
	"github.com/roach88/blazeorm/internal/meta"
	"github.com/roach88/blazeorm/internal/record"
)

// slot is one tracked instance. The instance itself is held weakly; the
// key map and the attached list keep the instances that must survive.
type slot struct {
	ref   weak.Pointer[record.Entity]
	state *record.State
}

// Manager tracks record instances and writes their pending changes.
type Manager struct {
	logger  *slog.Logger
	keygen  KeyGenerator
	metrics *flushMetrics

	slots []slot
	index map[weak.Pointer[record.Entity]]int
	keys  map[string]map[string]*record.Entity

	attached    []*record.Entity
	attachedSet map[*record.Entity]struct{}

	// listeners[0] is the most recently pushed.
	listeners []Listener

	engines map[string]StorageEngine
	repos   map[string]*Repository

	flushing *abool.AtomicBool
	syncing  *abool.AtomicBool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithKeyGenerator sets the generator used for new reference records.
// Defaults to a TimeKeyGenerator.
func WithKeyGenerator(g KeyGenerator) Option {
	return func(m *Manager) {
		m.keygen = g
	}
}

// NewManager returns an empty manager. Storage engines are added with
// AddStorageEngine before records are used.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		logger:      slog.Default(),
		metrics:     newFlushMetrics(),
		index:       make(map[weak.Pointer[record.Entity]]int),
		keys:        make(map[string]map[string]*record.Entity),
		attachedSet: make(map[*record.Entity]struct{}),
		engines:     make(map[string]StorageEngine),
		repos:       make(map[string]*Repository),
		flushing:    abool.New(),
		syncing:     abool.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.keygen == nil {
		m.keygen = NewTimeKeyGenerator()
	}
	return m
}

// AddStorageEngine binds e to the given record types, or as the default
// engine when no types are given.
func (m *Manager) AddStorageEngine(e StorageEngine, types ...string) error {
	if len(types) == 0 {
		types = []string{DefaultEngine}
	}
	for _, typ := range types {
		if _, dup := m.engines[typ]; dup {
			return fmt.Errorf("storage engine for %s is already registered", typ)
		}
	}
	for _, typ := range types {
		m.engines[typ] = e
	}
	return nil
}

// StorageEngine returns the engine bound to typ, falling back to the
// default engine.
func (m *Manager) StorageEngine(typ string) (StorageEngine, error) {
	if e, ok := m.engines[typ]; ok {
		return e, nil
	}
	if e, ok := m.engines[DefaultEngine]; ok {
		return e, nil
	}
	return nil, NewError(CodeNotFound, typ, "no storage engine")
}

// RecordMetadata returns the metadata of typ from its storage engine.
func (m *Manager) RecordMetadata(typ string) (*meta.Record, error) {
	e, err := m.StorageEngine(typ)
	if err != nil {
		return nil, err
	}
	return e.RecordMetadata(typ)
}

// uniqueEngines returns the distinct engines of types in first-seen order.
// With no types, every registered engine is returned.
func (m *Manager) uniqueEngines(types []string) ([]StorageEngine, error) {
	var out []StorageEngine
	add := func(e StorageEngine) {
		for _, seen := range out {
			if seen == e {
				return
			}
		}
		out = append(out, e)
	}
	if len(types) == 0 {
		names := make([]string, 0, len(m.engines))
		for name := range m.engines {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			add(m.engines[name])
		}
		return out, nil
	}
	for _, typ := range types {
		e, err := m.StorageEngine(typ)
		if err != nil {
			return nil, err
		}
		add(e)
	}
	return out, nil
}

// Begin opens a transaction on every engine serving types.
func (m *Manager) Begin(ctx context.Context, types ...string) error {
	engines, err := m.uniqueEngines(types)
	if err != nil {
		return err
	}
	for _, e := range engines {
		if err := e.Begin(ctx); err != nil {
			return fmt.Errorf("begin: %w", err)
		}
	}
	return nil
}

// Commit commits the transaction of every engine serving types.
func (m *Manager) Commit(types ...string) error {
	engines, err := m.uniqueEngines(types)
	if err != nil {
		return err
	}
	var result *multierror.Error
	for _, e := range engines {
		if err := e.Commit(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Rollback rolls back the transaction of every engine serving types.
func (m *Manager) Rollback(types ...string) error {
	engines, err := m.uniqueEngines(types)
	if err != nil {
		return err
	}
	var result *multierror.Error
	for _, e := range engines {
		if err := e.Rollback(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// PushListener adds l on top of the listener stack.
func (m *Manager) PushListener(l Listener) {
	m.listeners = append([]Listener{l}, m.listeners...)
}

// PopListener removes and returns the most recently pushed listener.
func (m *Manager) PopListener() (Listener, error) {
	if len(m.listeners) == 0 {
		return nil, ErrEmptyListenerStack
	}
	l := m.listeners[0]
	m.listeners = m.listeners[1:]
	return l, nil
}

// Repository returns the repository of typ.
func (m *Manager) Repository(typ string) (*Repository, error) {
	if r, ok := m.repos[typ]; ok {
		return r, nil
	}
	engine, err := m.StorageEngine(typ)
	if err != nil {
		return nil, err
	}
	md, err := engine.RecordMetadata(typ)
	if err != nil {
		return nil, err
	}
	r := &Repository{typ: typ, manager: m, engine: engine, meta: md}
	m.repos[typ] = r
	return r, nil
}

// FindOne returns the first record of typ matching cond.
func (m *Manager) FindOne(ctx context.Context, typ string, cond Cond, order ...Order) (*record.Entity, error) {
	r, err := m.Repository(typ)
	if err != nil {
		return nil, err
	}
	return r.FindOne(ctx, cond, order...)
}

// FindAll returns the records of typ matching cond. A limit of 0 means no
// limit.
func (m *Manager) FindAll(ctx context.Context, typ string, cond Cond, limit int, order ...Order) ([]*record.Entity, error) {
	r, err := m.Repository(typ)
	if err != nil {
		return nil, err
	}
	return r.FindAll(ctx, cond, limit, order...)
}

// WriteMetrics writes the manager's flush metrics in Prometheus text
// format.
func (m *Manager) WriteMetrics(w io.Writer) {
	m.metrics.set.WritePrometheus(w)
}

// Resolver returns the codec.Resolver connecting decoded reference values to
// this manager's identity map.
func (m *Manager) Resolver() codec.Resolver {
	return resolver{m: m}
}

type resolver struct {
	m *Manager
}

func (r resolver) Reference(typ string, key []byte) (*record.Entity, error) {
	return r.m.Reference(typ, key)
}

func (r resolver) ReferenceKey(e *record.Entity) ([]byte, error) {
	return r.m.ReferenceKey(e)
}

// track registers e with state st.
func (m *Manager) track(e *record.Entity, st *record.State) {
	ref := weak.Make(e)
	m.index[ref] = len(m.slots)
	m.slots = append(m.slots, slot{ref: ref, state: st})
}

// state returns the tracked state of e, or nil when e is not managed.
func (m *Manager) state(e *record.Entity) *record.State {
	if e == nil {
		return nil
	}
	idx, ok := m.index[weak.Make(e)]
	if !ok {
		return nil
	}
	return m.slots[idx].state
}

func (m *Manager) mustState(e *record.Entity) (*record.State, error) {
	st := m.state(e)
	if st == nil {
		typ := ""
		if e != nil {
			typ = e.Type()
		}
		return nil, NewError(CodeUnmanagedRecord, typ, "record is not managed")
	}
	return st, nil
}

// State returns a copy of the tracked state of e.
func (m *Manager) State(e *record.Entity) (record.State, error) {
	st, err := m.mustState(e)
	if err != nil {
		return record.State{}, err
	}
	return *st, nil
}

// IsManaged reports whether e is tracked.
func (m *Manager) IsManaged(e *record.Entity) bool {
	return m.state(e) != nil
}

// IsNew reports whether e has never been written to storage.
func (m *Manager) IsNew(e *record.Entity) (bool, error) {
	st, err := m.mustState(e)
	if err != nil {
		return false, err
	}
	return st.State == record.StateNew, nil
}

// IsStored reports whether e exists in storage with its fields loaded.
func (m *Manager) IsStored(e *record.Entity) (bool, error) {
	st, err := m.mustState(e)
	if err != nil {
		return false, err
	}
	return st.State == record.StateStored, nil
}

// IsDeleted reports whether e no longer exists in storage.
func (m *Manager) IsDeleted(e *record.Entity) (bool, error) {
	st, err := m.mustState(e)
	if err != nil {
		return false, err
	}
	return st.State == record.StateDeleted, nil
}

// Tracked returns the number of live tracked instances.
func (m *Manager) Tracked() int {
	n := 0
	for _, s := range m.slots {
		if s.ref.Value() != nil {
			n++
		}
	}
	return n
}

func (m *Manager) keyMap(typ string) map[string]*record.Entity {
	km, ok := m.keys[typ]
	if !ok {
		km = make(map[string]*record.Entity)
		m.keys[typ] = km
	}
	return km
}

func (m *Manager) assertNotSyncing() error {
	if m.syncing.IsSet() {
		return ErrModificationDuringSync
	}
	return nil
}
