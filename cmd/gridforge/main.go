package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/gridforge/gridforge/internal/app"
	"github.com/gridforge/gridforge/internal/cli"
)

// main is the entrypoint for the gridforge command.
func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := run(os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error
// handling.
func run(outW io.Writer, args []string) error {
	cfg, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	ctx := context.Background()
	a, err := app.NewApp(ctx, outW, cfg, nil)
	if err != nil {
		return err
	}

	return a.Run(ctx, cfg)
}
