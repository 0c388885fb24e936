// The main package for the sgs-catalog executable.
package main

import (
	"github.com/JakeFAU/sgs-catalog/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
