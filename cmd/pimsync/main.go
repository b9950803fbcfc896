package main

import (
	"os"

	"github.com/badno/pimsync/cmd/pimsync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
