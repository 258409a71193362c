package main

import (
	"os"

	"github.com/jtj60/dorado-exchange-sub003/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
