package main

import (
	"os"

	"github.com/repoagent/repoagent/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
