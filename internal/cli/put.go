package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/blazeorm/internal/record"
)

// PutOptions holds flags for the put command.
type PutOptions struct {
	*RootOptions
	Database string
	Schema   string
	Metrics  bool
}

// PutResult describes the stored record.
type PutResult struct {
	Type   string         `json:"type"`
	ID     string         `json:"id,omitempty"`
	Record map[string]any `json:"record"`
}

func (r PutResult) Text() string {
	if r.ID != "" {
		return fmt.Sprintf("Stored %s %s\n", r.Type, r.ID)
	}
	return fmt.Sprintf("Stored %s %s\n", r.Type, displayText(r.Record))
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PutOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "put --db <path> --schema <file> <type> [field=value...]",
		Short: "Store a record",
		Long: `Store a record built from field=value assignments. Unassigned fields get
their default value. A reference record type gets a new time-ordered id; a
record with a natural key replaces the stored record with the same key.

Example:
  blazeorm put --db ./blog.db --schema ./schema.yaml Author name=Ada email=ada@example.com
  blazeorm put --db ./blog.db --schema ./schema.yaml Setting key=theme value=dark`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPut(opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "path to the schema file (required)")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "write flush metrics to stderr")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("schema")

	return cmd
}

func runPut(opts *PutOptions, typ string, assignments []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	s, err := openSession(opts.RootOptions, opts.Schema, opts.Database, false)
	if err != nil {
		return formatter.Fail(err)
	}
	defer s.Close()

	md, err := s.manager.RecordMetadata(typ)
	if err != nil {
		return formatter.Fail(WrapExitError(ExitCommandError, "unknown record type", err))
	}

	e := record.New(typ)
	for _, expr := range assignments {
		name, v, err := parseAssignment(s.manager, md, expr)
		if err == nil && name == md.ReferenceField {
			err = fmt.Errorf("invalid assignment %q: the id of a new record is generated", expr)
		}
		if err != nil {
			return formatter.Fail(&ExitError{Code: ExitCommandError, ErrCode: ErrCodeArgument, Message: err.Error()})
		}
		e.Set(name, v)
	}

	if err := s.manager.Persist(e); err != nil {
		return formatter.Fail(WrapExitError(ExitFailure, "failed to store record", err))
	}
	if err := s.manager.Flush(cmd.Context()); err != nil {
		return formatter.Fail(WrapExitError(ExitFailure, "failed to store record", err))
	}
	if opts.Metrics {
		s.manager.WriteMetrics(formatter.GetErrWriter())
	}

	res := PutResult{Type: typ, Record: make(map[string]any)}
	for _, f := range md.Fields {
		if f.Name == md.ReferenceField {
			continue
		}
		res.Record[f.Name] = displayValue(s.manager, e.Value(f.Name))
	}
	if md.IsReference {
		if res.ID, err = s.manager.ReferenceID(e); err != nil {
			return formatter.Fail(err)
		}
	}
	return formatter.Success(res)
}
