// Command merit-cli drives the tinymerit service from a terminal: search
// payees, build checkout URLs, read payment history and manage the saved
// account and API key.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := &cli{}
	if err := c.execute(ctx, newRootCmdWith(c)); err != nil {
		stop()
		os.Exit(1)
	}
}
