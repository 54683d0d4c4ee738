// Command blazeorm works with blazeorm schemas and SQLite databases.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/blazeorm/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
