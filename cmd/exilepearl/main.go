package main

import (
	"os"

	"github.com/Maxopoly/ExilePearl/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
