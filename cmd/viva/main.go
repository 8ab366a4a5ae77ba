package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rbright/viva/internal/app"
)

func main() {
	// The first SIGINT/SIGTERM cancels ctx and lets the session wrap up;
	// app.Execute installs its own handler for a second, aborting signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := app.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	os.Exit(code)
}
