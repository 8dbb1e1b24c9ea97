package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/mamaar/goextract/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	err := cli.NewApp(stdout, stderr).Execute(ctx, args)
	if err == nil {
		return 0
	}
	// A blocking status was already printed with the result.
	if !cli.IsStatusError(err) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return 1
}
