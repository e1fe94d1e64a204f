// The main package for the imgcheck executable.
package main

import (
	"github.com/tmartin-sci/imgcheck/cmd"
)

func main() {
	cmd.Execute()
}
