// Package signal cancels long-running commands on interrupt.
package signal

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	clog "github.com/xrsl/solvx/pkg/log"
)

// ExitInterrupted is the exit status used when a second interrupt forces exit.
const ExitInterrupted = 130

var exit = os.Exit

// WithInterrupt returns a context that is cancelled on the first SIGINT or
// SIGTERM. Pipelines stop between batches and write their checkpoint; a
// second signal exits immediately.
func WithInterrupt(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			clog.Warn("interrupted, finishing current batch (interrupt again to exit)", "signal", sig)
			cancel()
		case <-ctx.Done():
			return
		}
		select {
		case sig := <-sigCh:
			clog.Error("forced exit", "signal", sig)
			exit(ExitInterrupted)
		case <-parent.Done():
		}
	}()

	return ctx, cancel
}

// NotifyContext is WithInterrupt on a background context.
func NotifyContext() (context.Context, context.CancelFunc) {
	return WithInterrupt(context.Background())
}
