package main

import (
	"os"

	"github.com/dot5enko/mvstore/cli"
)

func main() {
	os.Exit(cli.Execute())
}
