// Command spacewald is a thin wrapper around internal/cli: every
// subcommand reopens the node directory fresh, the way the teacher's
// git filter driver re-opened .mlsgit/ on each invocation.
package main

import (
	"fmt"
	"os"

	"github.com/spacewald/core/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
