// tinykernel drives a small in-process, Xinu-style preemptive
// multitasking kernel from the command line: process creation and
// control, counting semaphores, bounded mailboxes, and the system-call
// dispatcher sitting on top of them.
package main

import (
	"fmt"
	"os"

	"tinykernel/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
