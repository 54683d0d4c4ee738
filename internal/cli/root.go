// Package cli implements the blazeorm command line.
package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Logger is configured from Verbose before any subcommand runs.
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of the blazeorm CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "blazeorm",
		Short: "blazeorm - record persistence for SQLite",
		Long: `Work with a blazeorm schema and the SQLite database storing it.

A schema is a YAML (.yaml, .yml) or CUE (.cue, or a directory of .cue files)
document declaring enums and record types.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			level := slog.LevelWarn
			if opts.Verbose {
				level = slog.LevelDebug
			}
			opts.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
				Level: level,
			}))
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewDDLCommand(opts))
	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewFindCommand(opts))
	cmd.AddCommand(NewPutCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewKeygenCommand(opts))

	return cmd
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func (o *RootOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}
