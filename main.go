package main

import (
	"os"

	"github.com/riskforge/attree/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
