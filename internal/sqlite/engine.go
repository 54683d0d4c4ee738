// Package sqlite implements the SQLite storage engine.
//
// The engine resolves the physical columns of every record type through the
// type codec, writes sync batches as chunked upserts and deletes, and
// renders filter predicates and table DDL for SQLite.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/roach88/blazeorm/internal/codec"
	"github.com/roach88/blazeorm/internal/meta"
	"github.com/roach88/blazeorm/internal/query"
	"github.com/roach88/blazeorm/internal/store"
)

// maxParams is SQLite's default limit on bound parameters per statement.
const maxParams = 32766

// Engine is a storage engine over one SQLite connection.
type Engine struct {
	conn     *store.Conn
	registry *meta.Registry
	codec    *codec.Codec
	logger   *slog.Logger

	mu    sync.Mutex
	cache map[string]*meta.Record
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New returns an engine storing the record types of registry in conn.
// resolver connects reference values to the record manager.
func New(conn *store.Conn, registry *meta.Registry, resolver codec.Resolver, opts ...Option) *Engine {
	e := &Engine{
		conn:     conn,
		registry: registry,
		codec:    codec.New(registry, resolver),
		logger:   slog.Default(),
		cache:    make(map[string]*meta.Record),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Codec returns the engine's type codec.
func (e *Engine) Codec() *codec.Codec {
	return e.codec
}

// RecordMetadata returns the metadata of typ with columns resolved. The
// result is cached and must not be modified.
func (e *Engine) RecordMetadata(typ string) (*meta.Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if md, ok := e.cache[typ]; ok {
		return md, nil
	}

	rec, err := e.registry.Lookup(typ)
	if err != nil {
		return nil, err
	}
	md := rec.Clone()
	for _, f := range md.Fields {
		if err := e.codec.ResolveColumns(f); err != nil {
			return nil, fmt.Errorf("record %s: %w", typ, err)
		}
		for _, col := range f.Columns {
			// SQLite has no enum type.
			if strings.HasPrefix(col.DDL, "enum(") {
				col.DDL = "varchar(255) NOT NULL"
			}
		}
	}
	for _, idx := range md.Indexes {
		if len(idx.Columns) > 0 {
			continue
		}
		for _, name := range idx.Fields {
			f, ok := md.Field(name)
			if !ok {
				return nil, fmt.Errorf("record %s: index %s: unknown field %s", typ, idx.Name, name)
			}
			idx.Columns = append(idx.Columns, f.ColumnNames()...)
		}
	}

	e.cache[typ] = md
	e.logger.Debug("record metadata resolved", "type", typ, "table", md.Table, "fields", len(md.Fields))
	return md, nil
}

// NewQuery returns a query over the engine's connection. A single
// map[string]any argument sets named parameters; other arguments are bound
// positionally.
func (e *Engine) NewQuery(sqlText string, args ...any) *query.Query {
	q := query.New(e.conn, sqlText, query.Hooks{
		EncodeParam: e.codec.EncodeParam,
		Decoder:     e.codec.Decoder,
		Logger:      e.logger,
	})
	if len(args) == 1 {
		if named, ok := args[0].(map[string]any); ok {
			for name, v := range named {
				q.SetParam(name, v)
			}
			return q
		}
	}
	return q.Bind(args...)
}

// Begin opens a transaction, or joins the one already open.
func (e *Engine) Begin(ctx context.Context) error {
	return e.conn.Begin(ctx)
}

// Commit commits the current transaction level.
func (e *Engine) Commit() error {
	return e.conn.Commit()
}

// Rollback rolls back the open transaction.
func (e *Engine) Rollback() error {
	return e.conn.Rollback()
}
