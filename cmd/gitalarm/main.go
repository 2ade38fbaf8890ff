package main

import (
	"os"

	"github.com/coldpath/gitalarm/cmd/gitalarm/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
