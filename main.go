package main

import (
	"github.com/alymdu/shortest-plates/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
