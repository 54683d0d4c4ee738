package query

import "strings"

// Fragment is a piece of SQL with its positional (?) arguments.
type Fragment struct {
	SQL  string
	Args []any
}

// Always and Never are constant predicates.
var (
	Always = Fragment{SQL: "1 = 1"}
	Never  = Fragment{SQL: "0 = 1"}
)

// IsZero reports whether f holds no SQL.
func (f Fragment) IsZero() bool {
	return f.SQL == ""
}

// Join concatenates fragments with sep, skipping empty ones.
func Join(sep string, frags ...Fragment) Fragment {
	parts := make([]string, 0, len(frags))
	var args []any
	for _, f := range frags {
		if f.IsZero() {
			continue
		}
		parts = append(parts, f.SQL)
		args = append(args, f.Args...)
	}
	return Fragment{SQL: strings.Join(parts, sep), Args: args}
}

// Group wraps a join of fragments in parentheses when there is more than one.
func Group(sep string, frags ...Fragment) Fragment {
	joined := Join(sep, frags...)
	n := 0
	for _, f := range frags {
		if !f.IsZero() {
			n++
		}
	}
	if n > 1 {
		joined.SQL = "(" + joined.SQL + ")"
	}
	return joined
}

// QuoteIdent quotes an SQL identifier with double quotes.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
