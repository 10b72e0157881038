package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/desertthunder/phx/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)
	runner := NewRunner(RunnerOpts{Logger: logger})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp(runner).Run(ctx, os.Args); err != nil {
		logger.Fatalf("application error: %v", err)
	}
}

func newApp(r *Runner) *cli.Command {
	return &cli.Command{
		Name:     "phx",
		Usage:    "Mirror an iCloud photo library into a directory, bucket or photo server",
		Version:  "0.1.0",
		Flags:    globalFlags(),
		Before:   r.before,
		Commands: r.register(),
	}
}
