package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/blazeorm/internal/orm"
)

// FindOptions holds flags for the find command.
type FindOptions struct {
	*RootOptions
	Database string
	Schema   string
	Where    []string
	Order    []string
	Limit    int
	Offset   int
	Total    bool
}

// FindResult holds the matching records as field -> display value maps.
type FindResult struct {
	Type    string           `json:"type"`
	Fields  []string         `json:"fields"`
	Records []map[string]any `json:"records"`
	Total   *int64           `json:"total,omitempty"`
}

// Text renders the records as an aligned table.
func (r FindResult) Text() string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(r.Fields, "\t"))
	for _, rec := range r.Records {
		cells := make([]string, len(r.Fields))
		for i, f := range r.Fields {
			cells[i] = displayText(rec[f])
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	w.Flush()
	if r.Total != nil {
		fmt.Fprintf(&sb, "(%d of %d)\n", len(r.Records), *r.Total)
	} else {
		fmt.Fprintf(&sb, "(%d)\n", len(r.Records))
	}
	return sb.String()
}

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FindOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "find --db <path> --schema <file> <type>",
		Short: "Print the records matching a filter",
		Long: `Print the records of a type matching every --where condition.

A condition is field<op>value with op one of = != < <= > >= and the pattern
operators ~ (prefix), ~~ (substring), !~ and !~~. A value in brackets is a
list: with = and != the condition becomes IN / NOT IN. References are
matched by their 36-character id, and null matches a nullable field.

Example:
  blazeorm find --db ./blog.db --schema ./schema.yaml Post --where 'status=published'
  blazeorm find --db ./blog.db --schema ./schema.yaml Post --where 'title~~engine' --order published:- --limit 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFind(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "path to the schema file (required)")
	cmd.Flags().StringArrayVarP(&opts.Where, "where", "w", nil, "condition field<op>value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Order, "order", nil, "sort key field[:+|-] (repeatable)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of records (0 = no limit)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "number of records to skip (with --limit)")
	cmd.Flags().BoolVar(&opts.Total, "total", false, "also count all matching records")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("schema")

	return cmd
}

func runFind(opts *FindOptions, typ string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	s, err := openSession(opts.RootOptions, opts.Schema, opts.Database, false)
	if err != nil {
		return formatter.Fail(err)
	}
	defer s.Close()

	repo, err := s.manager.Repository(typ)
	if err != nil {
		return formatter.Fail(WrapExitError(ExitCommandError, "unknown record type", err))
	}
	md, err := s.manager.RecordMetadata(typ)
	if err != nil {
		return formatter.Fail(WrapExitError(ExitCommandError, "unknown record type", err))
	}

	criteria := orm.Criteria{Limit: opts.Limit, Offset: opts.Offset, CalculateTotal: opts.Total}
	conds := make([]orm.Cond, 0, len(opts.Where))
	for _, expr := range opts.Where {
		c, err := parseWhere(s.manager, md, expr)
		if err != nil {
			return formatter.Fail(&ExitError{Code: ExitCommandError, ErrCode: ErrCodeArgument, Message: err.Error()})
		}
		conds = append(conds, c)
	}
	if len(conds) > 0 {
		criteria.Cond = orm.And(conds...)
	}
	for _, o := range opts.Order {
		order, err := orm.ParseOrder(o)
		if err != nil {
			return formatter.Fail(&ExitError{Code: ExitCommandError, ErrCode: ErrCodeArgument, Message: err.Error()})
		}
		criteria.Order = append(criteria.Order, order)
	}

	formatter.VerboseLog("find %s where %s", typ, criteria.Cond)
	res, err := repo.Run(cmd.Context(), criteria)
	if err != nil {
		return formatter.Fail(WrapExitError(ExitFailure, "query failed", err))
	}

	out := FindResult{Type: typ, Records: make([]map[string]any, 0, len(res.Records))}
	for _, f := range md.Fields {
		out.Fields = append(out.Fields, f.Name)
	}
	for _, e := range res.Records {
		row := make(map[string]any, len(out.Fields))
		for _, name := range out.Fields {
			if name == md.ReferenceField {
				row[name] = displayValue(s.manager, e)
				continue
			}
			row[name] = displayValue(s.manager, e.Value(name))
		}
		out.Records = append(out.Records, row)
	}
	if opts.Total {
		out.Total = &res.Total
	}
	return formatter.Success(out)
}
