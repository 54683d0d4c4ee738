package orm

import (
	"context"

	"github.com/roach88/blazeorm/internal/meta"
	"github.com/roach88/blazeorm/internal/query"
)

// DefaultEngine is the binding name of the engine used for record types
// without an explicit binding.
const DefaultEngine = "*"

// StorageEngine persists record types to one backend.
type StorageEngine interface {
	// RecordMetadata returns the metadata of typ with columns resolved.
	RecordMetadata(typ string) (*meta.Record, error)

	// Sync writes the created, updated and deleted records of types.
	Sync(ctx context.Context, types []string, data *SyncData) error

	// QueryFilter returns the predicate "field op value".
	QueryFilter(field *meta.Field, op string, value any) (query.Fragment, error)

	// NewQuery returns a query over the engine's connection with its codec
	// installed. args are positional.
	NewQuery(sqlText string, args ...any) *query.Query

	Begin(ctx context.Context) error
	Commit() error
	Rollback() error
}

// Listener receives flush events.
//
// BeforeFlush may persist or remove further records; each listener sees a
// freshly collected batch. OnFlush runs inside the engine transactions and
// may write through the engines. AfterFlush runs once states have advanced.
type Listener interface {
	BeforeFlush(ctx context.Context, m *Manager, data *SyncData) error
	OnFlush(ctx context.Context, m *Manager, data *SyncData) error
	AfterFlush(ctx context.Context, m *Manager, data *SyncData) error
}

// ListenerFuncs adapts functions to a Listener. Nil functions are skipped.
type ListenerFuncs struct {
	Before func(ctx context.Context, m *Manager, data *SyncData) error
	On     func(ctx context.Context, m *Manager, data *SyncData) error
	After  func(ctx context.Context, m *Manager, data *SyncData) error
}

func (l ListenerFuncs) BeforeFlush(ctx context.Context, m *Manager, data *SyncData) error {
	if l.Before == nil {
		return nil
	}
	return l.Before(ctx, m, data)
}

func (l ListenerFuncs) OnFlush(ctx context.Context, m *Manager, data *SyncData) error {
	if l.On == nil {
		return nil
	}
	return l.On(ctx, m, data)
}

func (l ListenerFuncs) AfterFlush(ctx context.Context, m *Manager, data *SyncData) error {
	if l.After == nil {
		return nil
	}
	return l.After(ctx, m, data)
}
