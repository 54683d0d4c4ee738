package query

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"time"
)

// rawRows executes the query and yields undecoded rows with their index.
func (q *Query) rawRows(ctx context.Context) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		args, err := q.args()
		if err != nil {
			yield(nil, err)
			return
		}

		start := time.Now()
		rows, err := q.exec.QueryContext(ctx, q.sql, args...)
		if err != nil {
			yield(nil, fmt.Errorf("query %s: %w", q.log, err))
			return
		}
		defer rows.Close()
		q.hooks.Logger.Debug("query executed", "sql", q.log, "params", len(args), "elapsed", time.Since(start))

		cols, err := rows.Columns()
		if err != nil {
			yield(nil, fmt.Errorf("read columns: %w", err))
			return
		}

		for rows.Next() {
			row, err := scanRow(rows, cols)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(row, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("iterate rows: %w", err))
		}
	}
}

func scanRow(rows *sql.Rows, cols []string) (Row, error) {
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}
	row := make(Row, len(cols))
	for i, c := range cols {
		row[c] = values[i]
	}
	return row, nil
}

// decodeRow applies the field decoders. Without decoders the raw row is
// returned as is.
func (q *Query) decodeRow(raw Row) (Row, error) {
	if len(q.decoders) == 0 {
		return raw, nil
	}
	out := make(Row, len(q.decoders))
	for _, d := range q.decoders {
		v, err := d.decode(raw)
		if err != nil {
			return nil, err
		}
		out[d.name] = v
	}
	return out, nil
}

// Rows returns the decoded result rows. Each range over the sequence runs
// the statement again; breaking out of the loop closes the result set.
//
// The connection is held while the sequence is being consumed, so the loop
// body must not run other statements on the same connection.
func (q *Query) Rows(ctx context.Context) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for raw, err := range q.rawRows(ctx) {
			if err != nil {
				yield(nil, err)
				return
			}
			row, err := q.decodeRow(raw)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// Row returns the first decoded row, or nil when the result is empty.
func (q *Query) Row(ctx context.Context) (Row, error) {
	for row, err := range q.Rows(ctx) {
		return row, err
	}
	return nil, nil
}

// Cell returns the first value of the first row, or nil when the result is
// empty. With decoders set, the first decoded field is returned.
func (q *Query) Cell(ctx context.Context) (any, error) {
	args, err := q.args()
	if err != nil {
		return nil, err
	}
	rows, err := q.exec.QueryContext(ctx, q.sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.log, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	if !rows.Next() {
		return nil, rows.Err()
	}
	raw, err := scanRow(rows, cols)
	if err != nil {
		return nil, err
	}
	if len(q.decoders) > 0 {
		return q.decoders[0].decode(raw)
	}
	if len(cols) == 0 {
		return nil, nil
	}
	return raw[cols[0]], nil
}

// All returns every decoded row.
func (q *Query) All(ctx context.Context) ([]Row, error) {
	out := []Row{}
	for row, err := range q.Rows(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// Exec runs the statement and returns the number of affected rows.
func (q *Query) Exec(ctx context.Context) (int64, error) {
	args, err := q.args()
	if err != nil {
		return 0, err
	}

	res, err := q.exec.ExecContext(ctx, q.sql, args...)
	if err != nil {
		return 0, fmt.Errorf("exec %s: %w", q.log, err)
	}
	q.hooks.Logger.Debug("statement executed", "sql", q.log, "params", len(args))

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
