// depwait blocks a CI job until its upstream jobs have published their
// result artifacts, then exits 0, 1 or the configured skip code.
package main

import (
	"context"
	"depwait/internal/cli"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	app := &cli.App{Out: os.Stdout, Err: os.Stderr}
	code := app.Execute(ctx, os.Args[1:])
	cancel()
	os.Exit(code)
}
