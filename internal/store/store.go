package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bluele/gcache"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultStatementCacheSize is the number of prepared statements kept per
// connection.
const DefaultStatementCacheSize = 64

var defaultPragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

// ErrClosed is returned by operations on a closed Conn.
var ErrClosed = errors.New("connection closed")

// Conn is a SQLite connection with nested transaction support.
type Conn struct {
	db     *sql.DB
	tx     *sql.Tx
	level  int
	stmts  gcache.Cache
	logger *slog.Logger

	cacheSize int
	pragmas   []string
}

// Option configures a Conn.
type Option func(*Conn)

// WithLogger sets the logger used for transaction and statement events.
func WithLogger(l *slog.Logger) Option {
	return func(c *Conn) {
		c.logger = l
	}
}

// WithStatementCacheSize sets the prepared statement cache size.
// Zero disables statement caching.
func WithStatementCacheSize(n int) Option {
	return func(c *Conn) {
		c.cacheSize = n
	}
}

// WithPragmas replaces the pragmas applied when the database is opened.
func WithPragmas(pragmas ...string) Option {
	return func(c *Conn) {
		c.pragmas = pragmas
	}
}

// Open creates or opens a SQLite database at the given path.
//
// The pool is limited to one connection: SQLite allows a single writer and
// transaction state must stay on the connection that began it.
func Open(path string, opts ...Option) (*Conn, error) {
	c := &Conn{
		logger:    slog.Default(),
		cacheSize: DefaultStatementCacheSize,
		pragmas:   defaultPragmas,
	}
	for _, opt := range opts {
		opt(c)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db, c.pragmas); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	c.db = db
	if c.cacheSize > 0 {
		c.stmts = gcache.New(c.cacheSize).
			LRU().
			EvictedFunc(closeStatement).
			PurgeVisitorFunc(closeStatement).
			Build()
	}
	return c, nil
}

func closeStatement(_, value interface{}) {
	if stmt, ok := value.(*sql.Stmt); ok {
		stmt.Close()
	}
}

// Close rolls back an open transaction, closes cached statements and the
// database.
func (c *Conn) Close() error {
	if c.db == nil {
		return nil
	}
	if c.tx != nil {
		c.tx.Rollback()
		c.tx, c.level = nil, 0
	}
	if c.stmts != nil {
		c.stmts.Purge()
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// DB returns the underlying sql.DB.
func (c *Conn) DB() *sql.DB {
	return c.db
}

func applyPragmas(db *sql.DB, pragmas []string) error {
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (c *Conn) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := c.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

// ExecContext executes a statement inside the active transaction, if any.
func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	stmt, release, err := c.prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	defer release()

	res, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("exec: %w", err)
	}
	return res, nil
}

// QueryContext runs a query inside the active transaction, if any.
// Callers are responsible for closing the returned rows.
func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	stmt, release, err := c.prepare(ctx, query)
	if err != nil {
		return nil, err
	}

	// Outside a transaction database/sql defers the final close of a
	// statement until its rows are closed.
	defer release()

	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return rows, nil
}

// prepare returns a statement for query bound to the active transaction.
// The release func must be called when the statement is no longer used.
//
// The pool holds a single connection, which an open transaction owns.
// Statements are therefore only added to the cache outside transactions;
// inside one, cached statements are re-bound with StmtContext and missing
// ones are prepared on the transaction itself. Transaction statements are
// closed by the transaction when it commits or rolls back; closing one
// earlier would finalize it under any rows still being read.
func (c *Conn) prepare(ctx context.Context, query string) (*sql.Stmt, func(), error) {
	if c.db == nil {
		return nil, nil, ErrClosed
	}

	var cached *sql.Stmt
	if c.stmts != nil {
		if v, err := c.stmts.Get(query); err == nil {
			cached = v.(*sql.Stmt)
		}
	}

	if c.tx != nil {
		var stmt *sql.Stmt
		if cached != nil {
			stmt = c.tx.StmtContext(ctx, cached)
		} else {
			prepared, err := c.tx.PrepareContext(ctx, query)
			if err != nil {
				return nil, nil, fmt.Errorf("prepare: %w", err)
			}
			stmt = prepared
		}
		return stmt, func() {}, nil
	}

	if cached != nil {
		return cached, func() {}, nil
	}
	prepared, err := c.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("prepare: %w", err)
	}
	if c.stmts == nil {
		return prepared, func() { prepared.Close() }, nil
	}
	if err := c.stmts.Set(query, prepared); err != nil {
		return prepared, func() { prepared.Close() }, nil
	}
	c.logger.Debug("statement cached", "sql", query)
	return prepared, func() {}, nil
}
