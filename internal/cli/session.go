package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/roach88/blazeorm/internal/meta"
	"github.com/roach88/blazeorm/internal/orm"
	"github.com/roach88/blazeorm/internal/schema"
	"github.com/roach88/blazeorm/internal/sqlite"
	"github.com/roach88/blazeorm/internal/store"
)

// session is a record manager bound to one SQLite database through the
// engine of a loaded schema.
type session struct {
	registry *meta.Registry
	conn     *store.Conn
	manager  *orm.Manager
	engine   *sqlite.Engine
	logger   *slog.Logger
}

func loadSchema(path string) (*meta.Registry, error) {
	if path == "" {
		return nil, &ExitError{Code: ExitCommandError, ErrCode: ErrCodeSchema, Message: "--schema is required"}
	}
	reg, err := schema.LoadRegistry(path)
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, ErrCode: ErrCodeSchema, Message: "failed to load schema", Err: err}
	}
	return reg, nil
}

// openSession loads the schema and opens the database. Unless create is
// set, the database file must already exist.
func openSession(opts *RootOptions, schemaPath, dbPath string, create bool) (*session, error) {
	reg, err := loadSchema(schemaPath)
	if err != nil {
		return nil, err
	}

	if dbPath == "" {
		return nil, &ExitError{Code: ExitCommandError, ErrCode: ErrCodeDatabase, Message: "--db is required"}
	}
	if !create {
		if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
			return nil, &ExitError{Code: ExitCommandError, ErrCode: ErrCodeDatabase,
				Message: fmt.Sprintf("database not found: %s", dbPath)}
		}
	}

	logger := opts.logger()
	logger.Debug("opening database", "path", dbPath)
	conn, err := store.Open(dbPath, store.WithLogger(logger))
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, ErrCode: ErrCodeDatabase, Message: "failed to open database", Err: err}
	}

	m := orm.NewManager(orm.WithLogger(logger))
	e := sqlite.New(conn, reg, m.Resolver(), sqlite.WithLogger(logger))
	if err := m.AddStorageEngine(e); err != nil {
		conn.Close()
		return nil, err
	}
	return &session{registry: reg, conn: conn, manager: m, engine: e, logger: logger}, nil
}

func (s *session) Close() {
	if err := s.conn.Close(); err != nil {
		s.logger.Error("error closing database", "error", err)
	}
}
