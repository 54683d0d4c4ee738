package orm

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/blazeorm/internal/meta"
	"github.com/roach88/blazeorm/internal/record"
)

// Persist queues e for writing. An untracked instance is registered as New
// with its unset fields defaulted; for natural-key types its key must not
// belong to a live record.
func (m *Manager) Persist(e *record.Entity) error {
	if err := m.assertNotSyncing(); err != nil {
		return err
	}
	typ := e.Type()
	md, err := m.RecordMetadata(typ)
	if err != nil {
		return err
	}

	st := m.state(e)
	if st == nil {
		if err := m.fillDefaults(md, e); err != nil {
			return err
		}
		st = &record.State{State: record.StateNew, Task: record.TaskStore}
		if md.IsReference {
			m.track(e, st)
		} else {
			hash, err := m.entityKeyHash(md, e)
			if err != nil {
				return err
			}
			km := m.keyMap(typ)
			if existing, ok := km[hash]; ok {
				if es := m.state(existing); es == nil || es.State != record.StateDeleted {
					return NewError(CodeDuplicateKey, typ, "key %s is already in use", hash)
				}
			}
			st.Key = []byte(hash)
			m.track(e, st)
			km[hash] = e
		}
	}

	if !st.CanBePersisted() {
		return NewError(CodeInvalidState, typ, "cannot persist a %s record with task %s", st.State, st.Task)
	}
	st.Task = record.TaskStore
	m.attach(e)
	return nil
}

// Remove queues e for deletion.
func (m *Manager) Remove(e *record.Entity) error {
	if err := m.assertNotSyncing(); err != nil {
		return err
	}
	st, err := m.mustState(e)
	if err != nil {
		return err
	}
	if !st.CanBeRemoved() {
		return NewError(CodeInvalidState, e.Type(), "cannot remove a %s record with task %s", st.State, st.Task)
	}
	st.Task = record.TaskDelete
	m.attach(e)
	return nil
}

// Detach drops the pending work of e.
func (m *Manager) Detach(e *record.Entity) error {
	if err := m.assertNotSyncing(); err != nil {
		return err
	}
	if _, ok := m.attachedSet[e]; !ok {
		return NewError(CodeInvalidState, e.Type(), "record is not attached")
	}
	delete(m.attachedSet, e)
	for i, a := range m.attached {
		if a == e {
			m.attached = append(m.attached[:i], m.attached[i+1:]...)
			break
		}
	}
	m.state(e).Task = record.TaskNone
	return nil
}

// Clear drops all pending work.
func (m *Manager) Clear() error {
	if err := m.assertNotSyncing(); err != nil {
		return err
	}
	for _, e := range m.attached {
		if st := m.state(e); st != nil {
			st.Task = record.TaskNone
		}
	}
	m.attached = nil
	m.attachedSet = make(map[*record.Entity]struct{})
	return nil
}

// Pending returns the number of records with pending work.
func (m *Manager) Pending() int {
	return len(m.attached)
}

func (m *Manager) attach(e *record.Entity) {
	if _, ok := m.attachedSet[e]; ok {
		return
	}
	m.attachedSet[e] = struct{}{}
	m.attached = append(m.attached, e)
}

// collect computes the sync batch from the attached records. New reference
// records without a key are assigned one.
func (m *Manager) collect() (*SyncData, error) {
	data := newSyncData()
	if err := m.assignKeys(); err != nil {
		return nil, err
	}
	for _, e := range m.attached {
		typ := e.Type()
		st := m.state(e)
		md, err := m.RecordMetadata(typ)
		if err != nil {
			return nil, err
		}

		checkKey := func() error {
			if md.IsReference {
				return nil
			}
			hash, err := m.entityKeyHash(md, e)
			if err != nil {
				return err
			}
			if hash != string(st.Key) {
				return NewError(CodeInvalidState, typ, "primary key changed from %s to %s", st.Key, hash)
			}
			return nil
		}

		switch st.Task {
		case record.TaskStore:
			if st.State == record.StateNew {
				if !md.IsReference {
					if err := m.rekey(md, e, st); err != nil {
						return nil, err
					}
				}
				data.add(data.created, e)
				continue
			}
			if err := checkKey(); err != nil {
				return nil, err
			}
			data.add(data.updated, e)
		case record.TaskDelete:
			if err := checkKey(); err != nil {
				return nil, err
			}
			data.add(data.deleted, e)
		}
	}
	return data, nil
}

// assignKeys gives every attached reference record queued for storing a
// key, before any natural key referencing it is hashed.
func (m *Manager) assignKeys() error {
	for _, e := range m.attached {
		st := m.state(e)
		if st.Task != record.TaskStore || st.Key != nil {
			continue
		}
		md, err := m.RecordMetadata(e.Type())
		if err != nil {
			return err
		}
		if !md.IsReference {
			continue
		}
		key, err := m.keygen.Generate()
		if err != nil {
			return fmt.Errorf("generate key: %w", err)
		}
		st.Key = key
		m.keyMap(e.Type())[string(key)] = e
	}
	return nil
}

// rekey updates the key of a new record with a natural key whose key
// fields changed or now reference records that have been assigned keys.
func (m *Manager) rekey(md *meta.Record, e *record.Entity, st *record.State) error {
	hash, err := m.entityKeyHash(md, e)
	if err != nil {
		return err
	}
	if hash == string(st.Key) {
		return nil
	}
	km := m.keyMap(md.Name)
	if existing, ok := km[hash]; ok && existing != e {
		if es := m.state(existing); es == nil || es.State != record.StateDeleted {
			return NewError(CodeDuplicateKey, md.Name, "key %s is already in use", hash)
		}
	}
	if km[string(st.Key)] == e {
		delete(km, string(st.Key))
	}
	st.Key = []byte(hash)
	km[hash] = e
	return nil
}

// Flush writes every pending change.
//
// Each listener's BeforeFlush sees a freshly collected batch, most recently
// pushed listener first. The final batch is then written inside one
// transaction per storage engine, OnFlush runs for every listener in push
// order, the transactions commit and record states advance. AfterFlush
// runs last, most recently pushed listener first.
//
// Writes spanning several engines are not atomic: a commit failure after
// another engine committed leaves that engine's changes in place.
//
// Keys are assigned while collecting, before any listener runs. A failure
// in BeforeFlush leaves tasks and states untouched and nothing written, but
// new records keep the keys they were given and natural keys stay re-keyed.
func (m *Manager) Flush(ctx context.Context) (err error) {
	if !m.flushing.SetToIf(false, true) {
		return ErrRecursiveFlush
	}
	defer m.flushing.UnSet()

	start := time.Now()
	defer func() {
		m.metrics.observe(start, err)
	}()

	listeners := append([]Listener(nil), m.listeners...)
	for _, l := range listeners {
		data, err := m.collect()
		if err != nil {
			return err
		}
		if err := l.BeforeFlush(ctx, m, data); err != nil {
			return fmt.Errorf("before flush: %w", err)
		}
	}

	if err := m.assertNotSyncing(); err != nil {
		return err
	}
	m.syncing.Set()
	data, err := m.collect()
	if err != nil {
		m.syncing.UnSet()
		return err
	}
	if err := m.sync(ctx, data, listeners); err != nil {
		m.syncing.UnSet()
		return err
	}
	m.attached = nil
	m.attachedSet = make(map[*record.Entity]struct{})
	m.syncing.UnSet()

	created, updated, deleted := data.Counts()
	m.metrics.records(created, updated, deleted)
	m.logger.Debug("flush complete",
		"types", len(data.Types()),
		"created", created,
		"updated", updated,
		"deleted", deleted,
		"elapsed", time.Since(start),
	)

	for _, l := range listeners {
		if err := l.AfterFlush(ctx, m, data); err != nil {
			return fmt.Errorf("after flush: %w", err)
		}
	}
	return nil
}

type engineGroup struct {
	engine StorageEngine
	types  []string
}

// sync writes data through the storage engines and advances record states.
func (m *Manager) sync(ctx context.Context, data *SyncData, listeners []Listener) error {
	var groups []*engineGroup
	for _, typ := range data.Types() {
		engine, err := m.StorageEngine(typ)
		if err != nil {
			return err
		}
		var g *engineGroup
		for _, candidate := range groups {
			if candidate.engine == engine {
				g = candidate
				break
			}
		}
		if g == nil {
			g = &engineGroup{engine: engine}
			groups = append(groups, g)
		}
		g.types = append(g.types, typ)
	}

	var open []StorageEngine
	abort := func(cause error) error {
		result := multierror.Append(nil, cause)
		for i := len(open) - 1; i >= 0; i-- {
			if err := open[i].Rollback(); err != nil {
				result = multierror.Append(result, fmt.Errorf("rollback: %w", err))
			}
		}
		if len(result.Errors) == 1 {
			return cause
		}
		return result
	}

	for _, g := range groups {
		if err := g.engine.Begin(ctx); err != nil {
			return abort(fmt.Errorf("begin: %w", err))
		}
		open = append(open, g.engine)
	}
	for _, g := range groups {
		if err := g.engine.Sync(ctx, g.types, data); err != nil {
			return abort(fmt.Errorf("sync %v: %w", g.types, err))
		}
	}
	for i := len(listeners) - 1; i >= 0; i-- {
		if err := listeners[i].OnFlush(ctx, m, data); err != nil {
			return abort(fmt.Errorf("on flush: %w", err))
		}
	}
	for len(open) > 0 {
		if err := open[0].Commit(); err != nil {
			open = open[1:]
			return abort(fmt.Errorf("commit: %w", err))
		}
		open = open[1:]
	}

	for _, typ := range data.Types() {
		for _, e := range data.Persisted(typ) {
			st := m.state(e)
			st.State, st.Task = record.StateStored, record.TaskNone
		}
		for _, e := range data.Deleted(typ) {
			st := m.state(e)
			st.State, st.Task = record.StateDeleted, record.TaskNone
		}
	}
	return nil
}
