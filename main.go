package main

import (
	"os"

	"github.com/syncline/syncline/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
