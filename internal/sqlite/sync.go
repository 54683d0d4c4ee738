package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/blazeorm/internal/meta"
	"github.com/roach88/blazeorm/internal/orm"
	"github.com/roach88/blazeorm/internal/query"
	"github.com/roach88/blazeorm/internal/record"
)

// Sync writes the created and updated records of each type as upserts,
// then deletes its deleted records.
func (e *Engine) Sync(ctx context.Context, types []string, data *orm.SyncData) error {
	for _, typ := range types {
		md, err := e.RecordMetadata(typ)
		if err != nil {
			return err
		}
		if err := e.upsert(ctx, md, data.Persisted(typ)); err != nil {
			return fmt.Errorf("upsert %s: %w", typ, err)
		}
		if err := e.delete(ctx, md, data.Deleted(typ)); err != nil {
			return fmt.Errorf("delete %s: %w", typ, err)
		}
	}
	return nil
}

func (e *Engine) upsert(ctx context.Context, md *meta.Record, records []*record.Entity) error {
	if len(records) == 0 {
		return nil
	}
	var columns, updates []string
	for _, f := range md.Fields {
		for _, col := range f.Columns {
			name := query.QuoteIdent(col.Name)
			columns = append(columns, name)
			if !md.IsPrimaryColumn(col.Name) {
				updates = append(updates, name+" = excluded."+name)
			}
		}
	}
	keyColumns := make([]string, len(md.PrimaryKey.Columns))
	for i, c := range md.PrimaryKey.Columns {
		keyColumns[i] = query.QuoteIdent(baseColumn(c))
	}

	conflict := "DO NOTHING"
	if len(updates) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(updates, ", ")
	}
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",") + ")"

	limit := min(md.InsertBatchLimit, maxParams/len(columns))
	for _, batch := range batches(records, limit) {
		args := make([]any, 0, len(batch)*len(columns))
		for _, r := range batch {
			row, err := e.bindRow(md, md.Fields, r)
			if err != nil {
				return err
			}
			args = append(args, row...)
		}
		sqlText := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s ON CONFLICT (%s) %s",
			query.QuoteIdent(md.Table),
			strings.Join(columns, ", "),
			strings.TrimSuffix(strings.Repeat(placeholder+",", len(batch)), ","),
			strings.Join(keyColumns, ", "),
			conflict,
		)
		if _, err := e.NewQuery(sqlText, args...).Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) delete(ctx context.Context, md *meta.Record, records []*record.Entity) error {
	if len(records) == 0 {
		return nil
	}
	keyFields := md.PrimaryFields()
	var columns []string
	for _, f := range keyFields {
		for _, col := range f.Columns {
			columns = append(columns, query.QuoteIdent(col.Name))
		}
	}

	var match string
	if len(columns) == 1 {
		match = "?"
	} else {
		match = "(" + strings.Join(columns, " = ? AND ") + " = ?)"
	}

	limit := min(md.DeleteBatchLimit, maxParams/len(columns))
	for _, batch := range batches(records, limit) {
		args := make([]any, 0, len(batch)*len(columns))
		for _, r := range batch {
			row, err := e.bindRow(md, keyFields, r)
			if err != nil {
				return err
			}
			args = append(args, row...)
		}
		matches := make([]string, len(batch))
		for i := range matches {
			matches[i] = match
		}
		var sqlText string
		if len(columns) == 1 {
			sqlText = fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)", query.QuoteIdent(md.Table), columns[0], strings.Join(matches, ","))
		} else {
			sqlText = fmt.Sprintf("DELETE FROM %s WHERE %s", query.QuoteIdent(md.Table), strings.Join(matches, " OR "))
		}
		if _, err := e.NewQuery(sqlText, args...).Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// bindRow encodes the values of fields of r in column order. The reference
// field of a reference record type binds the record itself.
func (e *Engine) bindRow(md *meta.Record, fields []*meta.Field, r *record.Entity) ([]any, error) {
	var row []any
	for _, f := range fields {
		var v any = r.Value(f.Name)
		if md.IsReference && f.Name == md.ReferenceField {
			v = r
		}
		values, err := e.codec.Bind(f, v)
		if err != nil {
			return nil, err
		}
		row = append(row, values...)
	}
	return row, nil
}

// baseColumn strips an index prefix length: "name(10)" -> "name".
func baseColumn(c string) string {
	if i := strings.IndexByte(c, '('); i > 0 {
		return c[:i]
	}
	return c
}

func batches[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		out = append(out, items[start:min(start+size, len(items))])
	}
	return out
}
