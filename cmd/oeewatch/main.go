package main

import (
	"os"

	"github.com/rewired-gh/oeewatch/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
