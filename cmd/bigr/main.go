package main

import (
	"os"

	"github.com/okanyucel/bigr-discovery/cmd/bigr/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
