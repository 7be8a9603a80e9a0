//go:build windows

package discord

import (
	"fmt"
	"net"

	"github.com/Microsoft/go-winio"
)

// ///////////////////////////////////////////////
// Socket Discovery
// ///////////////////////////////////////////////

// pipeName returns the named pipe Discord listens on for slot i.
func pipeName(i int) string {
	return fmt.Sprintf(`\\.\pipe\discord-ipc-%d`, i)
}

// connectToDiscord dials each Discord named pipe slot and returns the first
// that answers.
func connectToDiscord() (net.Conn, error) {
	timeout := defaultTimeout
	for i := range maxIPCSlots {
		conn, err := winio.DialPipe(pipeName(i), &timeout)
		if err == nil {
			return conn, nil
		}
	}
	return nil, ErrIPCNotAvailable
}
