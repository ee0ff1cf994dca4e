// The main package for the rollcallsyncd executable.
package main

import (
	"github.com/mentionmarkets/rollcall-sync/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
