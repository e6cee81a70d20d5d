package main

import (
	"os"

	"tradesync/cmd/tradesync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
