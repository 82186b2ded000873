package main

import (
	"fmt"
	"os"

	"marketsuite-backend/cmd/research-cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
