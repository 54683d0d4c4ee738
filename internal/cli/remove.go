package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/blazeorm/internal/orm"
)

// RemoveOptions holds flags for the rm command.
type RemoveOptions struct {
	*RootOptions
	Database string
	Schema   string
	Where    []string
	All      bool
}

// RemoveResult reports the number of deleted records.
type RemoveResult struct {
	Type    string `json:"type"`
	Removed int    `json:"removed"`
}

func (r RemoveResult) Text() string {
	return fmt.Sprintf("Removed %d %s record(s)\n", r.Removed, r.Type)
}

// NewRemoveCommand creates the rm command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RemoveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rm --db <path> --schema <file> <type> --where <cond>...",
		Short: "Delete the records matching a filter",
		Long: `Delete the records of a type matching every --where condition, in one
flush. Conditions use the syntax of find. Deleting every record of a type
requires --all.

Example:
  blazeorm rm --db ./blog.db --schema ./schema.yaml Post --where 'status=archived'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "path to the schema file (required)")
	cmd.Flags().StringArrayVarP(&opts.Where, "where", "w", nil, "condition field<op>value (repeatable)")
	cmd.Flags().BoolVar(&opts.All, "all", false, "delete every record when no --where is given")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("schema")

	return cmd
}

func runRemove(opts *RemoveOptions, typ string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if len(opts.Where) == 0 && !opts.All {
		return formatter.Fail(&ExitError{Code: ExitCommandError, ErrCode: ErrCodeArgument,
			Message: "refusing to delete every record without --all"})
	}

	s, err := openSession(opts.RootOptions, opts.Schema, opts.Database, false)
	if err != nil {
		return formatter.Fail(err)
	}
	defer s.Close()

	md, err := s.manager.RecordMetadata(typ)
	if err != nil {
		return formatter.Fail(WrapExitError(ExitCommandError, "unknown record type", err))
	}
	conds := make([]orm.Cond, 0, len(opts.Where))
	for _, expr := range opts.Where {
		c, err := parseWhere(s.manager, md, expr)
		if err != nil {
			return formatter.Fail(&ExitError{Code: ExitCommandError, ErrCode: ErrCodeArgument, Message: err.Error()})
		}
		conds = append(conds, c)
	}
	var cond orm.Cond
	if len(conds) > 0 {
		cond = orm.And(conds...)
	}

	found, err := s.manager.FindAll(cmd.Context(), typ, cond, 0)
	if err != nil {
		return formatter.Fail(WrapExitError(ExitFailure, "query failed", err))
	}
	for _, e := range found {
		if err := s.manager.Remove(e); err != nil {
			return formatter.Fail(WrapExitError(ExitFailure, "failed to remove record", err))
		}
	}
	if err := s.manager.Flush(cmd.Context()); err != nil {
		return formatter.Fail(WrapExitError(ExitFailure, "failed to remove records", err))
	}

	return formatter.Success(RemoveResult{Type: typ, Removed: len(found)})
}
