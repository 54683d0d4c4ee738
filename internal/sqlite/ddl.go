package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/blazeorm/internal/query"
)

// TableDDL returns the statements creating the table of typ: CREATE TABLE
// with its key and unique constraints, followed by one CREATE INDEX per
// plain index.
func (e *Engine) TableDDL(typ string) ([]string, error) {
	md, err := e.RecordMetadata(typ)
	if err != nil {
		return nil, err
	}

	var lines, indexes []string
	for _, f := range md.Fields {
		for _, col := range f.Columns {
			lines = append(lines, fmt.Sprintf("    %s %s", query.QuoteIdent(col.Name), col.DDL))
		}
	}
	for _, idx := range md.Indexes {
		columns := make([]string, len(idx.Columns))
		for i, c := range idx.Columns {
			// SQLite indexes have no prefix length.
			columns[i] = query.QuoteIdent(baseColumn(c))
		}
		list := strings.Join(columns, ",")
		name := md.Table + "_" + idx.Name
		switch {
		case idx.DDL != "":
			lines = append(lines, "    "+idx.DDL)
		case idx == md.PrimaryKey:
			lines = append(lines, fmt.Sprintf("    constraint PK primary key (%s)", list))
		case idx.Unique:
			lines = append(lines, fmt.Sprintf("    constraint %s unique (%s)", query.QuoteIdent(name), list))
		default:
			indexes = append(indexes, fmt.Sprintf("CREATE INDEX %s ON %s (%s);",
				query.QuoteIdent(name), query.QuoteIdent(md.Table), list))
		}
	}

	create := "CREATE TABLE " + query.QuoteIdent(md.Table) + " (\n" + strings.Join(lines, ",\n") + "\n);"
	return append([]string{create}, indexes...), nil
}

// CreateTables creates the tables of types, or of every registered type.
func (e *Engine) CreateTables(ctx context.Context, types ...string) error {
	if len(types) == 0 {
		types = e.registry.Names()
	}
	for _, typ := range types {
		stmts, err := e.TableDDL(typ)
		if err != nil {
			return err
		}
		for _, stmt := range stmts {
			if _, err := e.conn.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create table for %s: %w", typ, err)
			}
		}
		e.logger.Info("table created", "type", typ, "statements", len(stmts))
	}
	return nil
}
