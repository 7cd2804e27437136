package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"

	"github.com/Ning0612/ipmtool/internal/cli"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	app := cli.New(os.Stdin, os.Stdout, os.Stderr)

	err := fang.Execute(
		context.Background(),
		app.Command(),
		fang.WithVersion(fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)),
		fang.WithNotifySignal(os.Interrupt),
	)
	if closeErr := app.Close(); closeErr != nil && err == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", closeErr)
	}
	if err != nil {
		os.Exit(cli.ExitFailed)
	}
	os.Exit(app.ExitCode())
}
