package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// setupSignalHandler returns a channel that is closed when SIGINT or SIGTERM
// arrives. A second signal exits immediately.
func setupSignalHandler() <-chan struct{} {
	shutdown := make(chan struct{})

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		fmt.Fprintf(os.Stderr, "\nReceived signal: %v, stopping after the current block\n", sig)
		close(shutdown)

		sig = <-sigChan
		fmt.Fprintf(os.Stderr, "Received signal: %v again, exiting\n", sig)
		os.Exit(130)
	}()

	return shutdown
}
