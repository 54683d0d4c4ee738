package orm

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/blazeorm/internal/meta"
	"github.com/roach88/blazeorm/internal/query"
	"github.com/roach88/blazeorm/internal/record"
)

// Criteria selects records of one type.
type Criteria struct {
	Cond   Cond
	Order  []Order
	Limit  int
	Offset int

	// CalculateTotal counts all matching records, ignoring Limit and Offset.
	CalculateTotal bool
}

// Result holds the records selected by Criteria. Total is set only when
// Criteria.CalculateTotal is.
type Result struct {
	Records []*record.Entity
	Total   int64
}

// Repository queries the records of one type. Result rows are turned into
// instances through Manager.Make, so loaded records join the identity map.
type Repository struct {
	typ     string
	manager *Manager
	engine  StorageEngine
	meta    *meta.Record
}

// Type returns the record type name.
func (r *Repository) Type() string {
	return r.typ
}

// FindOne returns the first record matching cond, or an error matching
// ErrNotFound.
func (r *Repository) FindOne(ctx context.Context, cond Cond, order ...Order) (*record.Entity, error) {
	res, err := r.Run(ctx, Criteria{Cond: cond, Order: order, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		return nil, NewError(CodeNotFound, r.typ, "no record matches %s", cond)
	}
	return res.Records[0], nil
}

// FindAll returns the records matching cond. A limit of 0 means no limit.
func (r *Repository) FindAll(ctx context.Context, cond Cond, limit int, order ...Order) ([]*record.Entity, error) {
	res, err := r.Run(ctx, Criteria{Cond: cond, Order: order, Limit: limit})
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

// Run executes c.
func (r *Repository) Run(ctx context.Context, c Criteria) (Result, error) {
	table := query.QuoteIdent(r.meta.Table)

	var where query.Fragment
	if !c.Cond.IsZero() {
		frag, err := c.Cond.compile(r.engine, r.meta)
		if err != nil {
			return Result{}, err
		}
		where = frag
	}

	var orderBy []string
	for _, o := range c.Order {
		f, ok := r.meta.Field(o.Field)
		if !ok {
			return Result{}, fmt.Errorf("order: field %q not found in %s", o.Field, r.typ)
		}
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		for _, col := range f.Columns {
			orderBy = append(orderBy, query.QuoteIdent(col.Name)+" "+dir)
		}
	}

	var sb strings.Builder
	sb.WriteString("SELECT * FROM " + table)
	if !where.IsZero() {
		sb.WriteString("\nWHERE " + where.SQL)
	}
	if len(orderBy) > 0 {
		sb.WriteString("\nORDER BY " + strings.Join(orderBy, ", "))
	}
	if c.Limit > 0 {
		fmt.Fprintf(&sb, "\nLIMIT %d", c.Limit)
		if c.Offset > 0 {
			fmt.Fprintf(&sb, " OFFSET %d", c.Offset)
		}
	}

	rows, err := r.engine.NewQuery(sb.String(), where.Args...).SetFieldTypes(r.meta.Fields...).All(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("find %s: %w", r.typ, err)
	}
	res := Result{Records: make([]*record.Entity, 0, len(rows))}
	for _, row := range rows {
		e, err := r.manager.Make(r.typ, row)
		if err != nil {
			return Result{}, err
		}
		res.Records = append(res.Records, e)
	}

	if c.CalculateTotal {
		countSQL := "SELECT COUNT(*) FROM " + table
		if !where.IsZero() {
			countSQL += "\nWHERE " + where.SQL
		}
		n, err := r.engine.NewQuery(countSQL, where.Args...).Cell(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("count %s: %w", r.typ, err)
		}
		total, ok := n.(int64)
		if !ok {
			return Result{}, fmt.Errorf("count %s: unexpected %T", r.typ, n)
		}
		res.Total = total
	}
	return res, nil
}

// FetchRelation loads the one-to-many relation property of records: the
// records of targetType whose targetField references them. Each record's
// property is set to its related records, sorted with less when given.
// Records that already have the property set and null references are
// skipped. The loaded related records are returned.
func (r *Repository) FetchRelation(
	ctx context.Context,
	records []*record.Entity,
	property, targetType, targetField string,
	less func(a, b *record.Entity) bool,
) ([]*record.Entity, error) {
	var pending []*record.Entity
	for _, e := range records {
		if !e.Has(property) && !r.manager.IsNullReference(e) {
			pending = append(pending, e)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}

	target, err := r.manager.Repository(targetType)
	if err != nil {
		return nil, err
	}
	byOwner := make(map[*record.Entity][]*record.Entity)
	var relations []*record.Entity
	for _, chunk := range chunks(pending, target.meta.FetchBatchLimit) {
		found, err := target.FindAll(ctx, Where(targetField, "=", chunk), 0)
		if err != nil {
			return nil, err
		}
		for _, rel := range found {
			owner, _ := rel.Value(targetField).(*record.Entity)
			byOwner[owner] = append(byOwner[owner], rel)
			relations = append(relations, rel)
		}
	}

	for _, e := range pending {
		list := byOwner[e]
		if list == nil {
			list = []*record.Entity{}
		}
		if less != nil {
			sort.SliceStable(list, func(i, j int) bool { return less(list[i], list[j]) })
		}
		e.Set(property, list)
	}
	return relations, nil
}
