package main

import (
	"fmt"
	"os"

	"github.com/qwerty-development/tableflow/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tableflow:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
