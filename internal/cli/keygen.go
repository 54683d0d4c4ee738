package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/blazeorm/internal/orm"
)

// KeygenOptions holds flags for the keygen command.
type KeygenOptions struct {
	*RootOptions
	Count int
}

// KeygenResult lists generated keys in their 36-character form.
type KeygenResult struct {
	Keys []string `json:"keys"`
}

func (r KeygenResult) Text() string {
	return strings.Join(r.Keys, "\n") + "\n"
}

// NewKeygenCommand creates the keygen command.
func NewKeygenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &KeygenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "keygen [-n count]",
		Short: "Print time-ordered record keys",
		Long: `Print keys as generated for new reference records: time-ordered UUID
version 6 values, strictly increasing within one run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeygen(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Count, "count", "n", 1, "number of keys")

	return cmd
}

func runKeygen(opts *KeygenOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	if opts.Count < 1 {
		return formatter.Fail(&ExitError{Code: ExitCommandError, ErrCode: ErrCodeArgument, Message: "--count must be at least 1"})
	}

	gen := orm.NewTimeKeyGenerator()
	res := KeygenResult{Keys: make([]string, 0, opts.Count)}
	for i := 0; i < opts.Count; i++ {
		key, err := gen.Generate()
		if err != nil {
			return formatter.Fail(err)
		}
		s, err := orm.FormatKey(key)
		if err != nil {
			return formatter.Fail(err)
		}
		res.Keys = append(res.Keys, s)
	}
	return formatter.Success(res)
}
