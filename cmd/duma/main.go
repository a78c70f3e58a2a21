package main

import (
	"os"

	"github.com/dmitriyabr/duma-erp-sub003/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
