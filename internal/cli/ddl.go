package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/blazeorm/internal/meta"
	"github.com/roach88/blazeorm/internal/orm"
	"github.com/roach88/blazeorm/internal/sqlite"
)

// DDLOptions holds flags for the ddl command.
type DDLOptions struct {
	*RootOptions
	Schema string
}

// TableDDL is the DDL of one record type.
type TableDDL struct {
	Type       string   `json:"type"`
	Table      string   `json:"table"`
	Statements []string `json:"statements"`
}

// DDLResult lists the DDL of the selected record types.
type DDLResult struct {
	Tables []TableDDL `json:"tables"`
}

// Text renders the statements as a SQL script.
func (r DDLResult) Text() string {
	var sb strings.Builder
	for i, t := range r.Tables {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("-- " + t.Type + "\n")
		for _, stmt := range t.Statements {
			sb.WriteString(stmt + "\n")
		}
	}
	return sb.String()
}

// NewDDLCommand creates the ddl command.
func NewDDLCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DDLOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ddl --schema <file> [types...]",
		Short: "Print the SQLite DDL of a schema",
		Long: `Print the CREATE TABLE and CREATE INDEX statements of the record types
declared in a schema, in declaration order. With type arguments only those
types are printed.

Example:
  blazeorm ddl --schema ./schema.yaml
  blazeorm ddl --schema ./schema.cue Post Tag`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDDL(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "", "path to the schema file (required)")
	_ = cmd.MarkFlagRequired("schema")

	return cmd
}

func runDDL(opts *DDLOptions, types []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	reg, err := loadSchema(opts.Schema)
	if err != nil {
		return formatter.Fail(err)
	}
	res, err := schemaDDL(reg, types)
	if err != nil {
		return formatter.Fail(WrapExitError(ExitCommandError, "failed to render DDL", err))
	}
	return formatter.Success(res)
}

// schemaDDL renders the tables of types, or of every record type. The
// engine has no connection: rendering DDL never touches the database.
func schemaDDL(reg *meta.Registry, types []string) (DDLResult, error) {
	if len(types) == 0 {
		types = reg.Names()
	}
	e := sqlite.New(nil, reg, orm.NewManager().Resolver())

	res := DDLResult{Tables: make([]TableDDL, 0, len(types))}
	for _, typ := range types {
		md, err := e.RecordMetadata(typ)
		if err != nil {
			return DDLResult{}, err
		}
		stmts, err := e.TableDDL(typ)
		if err != nil {
			return DDLResult{}, err
		}
		res.Tables = append(res.Tables, TableDDL{Type: typ, Table: md.Table, Statements: stmts})
	}
	return res, nil
}
