package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := newRootCmd().ExecuteContext(ctx)
	var es exitStatus
	if err != nil && !errors.As(err, &es) {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	cancel()
	os.Exit(exitCode(err))
}
