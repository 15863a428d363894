// Command stately validates CUE schemas, runs scenarios against the objects
// they declare and queries notification journals.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/stately/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
