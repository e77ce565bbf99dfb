package main

import (
	"fmt"
	"os"

	"github.com/vtrash/vtrash/internal/cli"
)

// These variables are set in build step
var (
	Version   = "unset"
	Revision  = "unset"
	BuildDate = "unset"
)

func main() {
	err := cli.Run(cli.Version{
		AppName:   "vtrash",
		Version:   Version,
		Revision:  Revision,
		BuildDate: BuildDate,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "vtrash: %v\n", err)
		os.Exit(1)
	}
}
