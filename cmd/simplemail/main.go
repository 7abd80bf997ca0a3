// Package main is the entry point for the simplemail command.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shineum/simplemail/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Run(ctx, os.Args[1:], cli.OSEnv())
	stop()
	os.Exit(code)
}
