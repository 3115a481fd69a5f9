// ABOUTME: Askpass bridge invoked by Git and SSH as GIT_ASKPASS / SSH_ASKPASS
// ABOUTME: Forwards the prompt to the local ocm server and prints its answer

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/2389/ocm/internal/askpass"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := askpass.Run(ctx, os.Args[1:], askpass.EnvFromOS(), os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}
