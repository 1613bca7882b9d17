package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gookit/color"
)

var colArrow = color.HEX("#FFEB3B")

// notifyContext cancels the returned context on the first SIGINT or
// SIGTERM; running commands are killed with their process group. A second
// signal exits immediately.
func notifyContext(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigs:
			colArrow.Print("\n-> ")
			color.Danger.Printf("Received %v. Cancelling\n", sig)
			cancel()
		case <-ctx.Done():
			return
		}
		<-sigs
		colArrow.Print("\n-> ")
		color.Danger.Println("Second interrupt received. Forcing immediate exit.")
		os.Exit(130)
	}()

	return ctx, func() {
		signal.Stop(sigs)
		cancel()
	}
}
