// jailcore launches a target program under a composable set of Linux
// isolation mechanisms and reports its classified exit status.
package main

import (
	"fmt"
	"os"

	"jailcore/cmd"
	"jailcore/jail"
)

func main() {
	// The re-exec'd entry path is dispatched directly, ahead of cobra's
	// own flag parsing: argv at this point belongs to the jailed target,
	// not to this program, and must not be interpreted as jailcore flags.
	if target, argv, static, ok := jail.EntryTarget(os.Args[1:]); ok {
		jail.Entry(target, argv, static)
		return
	}

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
