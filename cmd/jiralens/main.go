package main

import (
	"os"

	"github.com/jiralens/jiralens/internal/infrastructure/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
