package main

import (
	"os"

	"github.com/ztrue/tracerr"

	"github.com/H0K5/miasm/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		if _, ok := err.(tracerr.Error); ok {
			tracerr.PrintSourceColor(err)
		} else {
			os.Stderr.WriteString("error: " + err.Error() + "\n")
		}
		os.Exit(1)
	}
}
