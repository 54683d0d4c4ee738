package orm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/blazeorm/internal/meta"
	"github.com/roach88/blazeorm/internal/query"
	"github.com/roach88/blazeorm/internal/testutil"
)

// fakeEngine records the calls a manager makes. It stores nothing.
type fakeEngine struct {
	name     string
	registry *meta.Registry
	events   *[]string

	beginErr    error
	syncErr     error
	commitErr   error
	rollbackErr error

	synced []*SyncData
}

func newFakeEngine(name string, registry *meta.Registry, events *[]string) *fakeEngine {
	return &fakeEngine{name: name, registry: registry, events: events}
}

func (e *fakeEngine) log(event string) {
	*e.events = append(*e.events, e.name+":"+event)
}

func (e *fakeEngine) RecordMetadata(typ string) (*meta.Record, error) {
	return e.registry.Lookup(typ)
}

func (e *fakeEngine) Sync(_ context.Context, types []string, data *SyncData) error {
	e.log(fmt.Sprintf("sync%v", types))
	if e.syncErr != nil {
		return e.syncErr
	}
	e.synced = append(e.synced, data)
	return nil
}

func (e *fakeEngine) QueryFilter(field *meta.Field, op string, value any) (query.Fragment, error) {
	return query.Fragment{SQL: field.Name + " " + op + " ?", Args: []any{value}}, nil
}

func (e *fakeEngine) NewQuery(sqlText string, args ...any) *query.Query {
	return query.New(nil, sqlText, query.Hooks{}).Bind(args...)
}

func (e *fakeEngine) Begin(context.Context) error {
	e.log("begin")
	return e.beginErr
}

func (e *fakeEngine) Commit() error {
	e.log("commit")
	return e.commitErr
}

func (e *fakeEngine) Rollback() error {
	e.log("rollback")
	return e.rollbackErr
}

// newTestManager returns a manager over a fake default engine, generating
// sequence keys.
func newTestManager(t *testing.T) (*Manager, *fakeEngine, *[]string) {
	t.Helper()
	events := &[]string{}
	engine := newFakeEngine("db", testutil.Registry(), events)
	m := NewManager(
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithKeyGenerator(testutil.NewSequenceKeys()),
	)
	require.NoError(t, m.AddStorageEngine(engine))
	return m, engine, events
}

// recorder is a listener appending its calls to events.
func recorder(name string, events *[]string) ListenerFuncs {
	return ListenerFuncs{
		Before: func(context.Context, *Manager, *SyncData) error {
			*events = append(*events, "before:"+name)
			return nil
		},
		On: func(context.Context, *Manager, *SyncData) error {
			*events = append(*events, "on:"+name)
			return nil
		},
		After: func(context.Context, *Manager, *SyncData) error {
			*events = append(*events, "after:"+name)
			return nil
		},
	}
}
