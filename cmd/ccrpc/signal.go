package main

import (
	"os"
	"os/signal"
)

// signalChannel returns a channel that receives the platform's shutdown
// signals. The buffer keeps a signal that arrives while the receiver is busy.
func signalChannel() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, shutdownSignals...)
	return ch
}
