package main

import (
	"os"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/stevemurr/collection-server/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
