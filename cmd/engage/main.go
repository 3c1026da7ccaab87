// Command engage manages post reactions and their aggregate counts.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/engage/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
