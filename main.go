package main

import (
	"os"

	"github.com/kvistgaard/evalbench/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
