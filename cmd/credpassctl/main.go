// Command credpassctl is the operator CLI for the credpass projector and the
// verification contract.
package main

import (
	"os"

	"credpass/cmd/credpassctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
