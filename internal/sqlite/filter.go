package sqlite

import (
	"strings"

	"github.com/roach88/blazeorm/internal/meta"
	"github.com/roach88/blazeorm/internal/orm"
	"github.com/roach88/blazeorm/internal/query"
)

var comparisons = map[string]string{
	"=":   "=",
	"!=":  "<>",
	"<":   "<",
	"<=":  "<=",
	">":   ">",
	">=":  ">=",
	"~":   "LIKE",
	"!~":  "NOT LIKE",
	"~~":  "LIKE",
	"!~~": "NOT LIKE",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// QueryFilter returns the predicate "field op value".
//
// A list value is allowed with = and != on single-column fields and becomes
// IN / NOT IN. Fields spanning several columns accept only = and !=, which
// compare every column. The pattern operators ~ (prefix) and ~~ (substring)
// and their negations need a field whose first type is string.
func (e *Engine) QueryFilter(field *meta.Field, op string, value any) (query.Fragment, error) {
	unsupported := func() (query.Fragment, error) {
		return query.Fragment{}, orm.NewError(orm.CodeUnsupportedOperation, "", "operator %s on field %s", op, field.Name)
	}

	if query.IsList(value) {
		if len(field.Columns) != 1 || (op != "=" && op != "!=") {
			return unsupported()
		}
		items := query.ListItems(value)
		if len(items) == 0 {
			if op == "=" {
				return query.Never, nil
			}
			return query.Always, nil
		}
		args := make([]any, len(items))
		for i, item := range items {
			encoded, err := e.codec.Bind(field, item)
			if err != nil {
				return query.Fragment{}, err
			}
			args[i] = encoded[0]
		}
		in := " IN ("
		if op == "!=" {
			in = " NOT IN ("
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(items)), ",")
		return query.Fragment{
			SQL:  query.QuoteIdent(field.Columns[0].Name) + in + placeholders + ")",
			Args: args,
		}, nil
	}

	sqlOp, ok := comparisons[op]
	if !ok {
		return unsupported()
	}
	if len(field.Columns) != 1 && op != "=" && op != "!=" {
		return unsupported()
	}
	pattern := strings.HasPrefix(sqlOp, "LIKE") || strings.HasPrefix(sqlOp, "NOT LIKE")
	if pattern && field.Types[0].Kind != meta.KindString {
		return unsupported()
	}

	encoded, err := e.codec.Bind(field, value)
	if err != nil {
		return query.Fragment{}, err
	}
	parts := make([]query.Fragment, len(field.Columns))
	for i, col := range field.Columns {
		arg := encoded[i]
		cond := query.QuoteIdent(col.Name) + " " + sqlOp + " ?"
		if pattern {
			s, _ := arg.(string)
			s = likeEscaper.Replace(s) + "%"
			if op == "~~" || op == "!~~" {
				s = "%" + s
			}
			arg = s
			cond += ` ESCAPE '\'`
		}
		parts[i] = query.Fragment{SQL: cond, Args: []any{arg}}
	}
	if op == "!=" {
		return query.Group(" OR ", parts...), nil
	}
	return query.Group(" AND ", parts...), nil
}
