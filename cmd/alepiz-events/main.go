// Command alepiz-events runs the event lifecycle engine and its
// operator commands.
package main

import (
	"fmt"
	"os"

	"github.com/asbelov/alepiz-sub006/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
