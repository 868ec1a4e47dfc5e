package main

import (
	"os"

	"busybeaver/cmd/busybeaver/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
