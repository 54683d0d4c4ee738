package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Database string
	Schema   string
}

// InitResult lists the created tables.
type InitResult struct {
	Database string   `json:"database"`
	Types    []string `json:"types"`
}

func (r InitResult) Text() string {
	return fmt.Sprintf("Created %d table(s) in %s: %s\n", len(r.Types), r.Database, strings.Join(r.Types, ", "))
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init --db <path> --schema <file> [types...]",
		Short: "Create the tables of a schema",
		Long: `Create the tables and indexes of a schema in a SQLite database, creating
the database file if it does not exist. With type arguments only those
tables are created.

Example:
  blazeorm init --db ./blog.db --schema ./schema.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "path to the schema file (required)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("schema")

	return cmd
}

func runInit(opts *InitOptions, types []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	s, err := openSession(opts.RootOptions, opts.Schema, opts.Database, true)
	if err != nil {
		return formatter.Fail(err)
	}
	defer s.Close()

	if len(types) == 0 {
		types = s.registry.Names()
	}
	if err := s.engine.CreateTables(cmd.Context(), types...); err != nil {
		return formatter.Fail(WrapExitError(ExitFailure, "failed to create tables", err))
	}
	formatter.VerboseLog("created %d table(s)", len(types))

	return formatter.Success(InitResult{Database: opts.Database, Types: types})
}
