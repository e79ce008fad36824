// Command bindery serves live resource bindings over websockets.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/bindery/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "bindery:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
