//go:build !windows

package discord

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
)

// ///////////////////////////////////////////////
// Socket Discovery
// ///////////////////////////////////////////////

// clientVariants are the socket prefixes of stable, Canary and PTB builds.
var clientVariants = []string{"discord-ipc", "discordcanary-ipc", "discordptb-ipc"}

// sandboxDirs are the per-user subdirectories used by Snap and Flatpak
// packages.
var sandboxDirs = []string{
	"snap.discord",
	"snap.discord-canary",
	"snap.discord-ptb",
	"app/com.discordapp.Discord",
	"app/com.discordapp.DiscordCanary",
	"app/com.discordapp.DiscordPTB",
}

// socketPaths lists candidate socket paths in probe order. Base directories
// come from XDG_RUNTIME_DIR, TMPDIR, /tmp and /run/user/<uid>.
func socketPaths(getenv func(string) string, uid int) []string {
	var bases []string
	seen := map[string]bool{}
	addBase := func(dir string) {
		dir = strings.TrimRight(dir, "/")
		if dir == "" || seen[dir] {
			return
		}
		seen[dir] = true
		bases = append(bases, dir)
	}
	addBase(getenv("XDG_RUNTIME_DIR"))
	addBase(getenv("TMPDIR"))
	addBase("/tmp")
	runUser := fmt.Sprintf("/run/user/%d", uid)
	addBase(runUser)

	var paths []string
	for _, base := range bases {
		for _, v := range clientVariants {
			for i := range maxIPCSlots {
				paths = append(paths, filepath.Join(base, fmt.Sprintf("%s-%d", v, i)))
			}
		}
	}
	for _, sd := range sandboxDirs {
		for i := range maxIPCSlots {
			paths = append(paths, filepath.Join(runUser, sd, fmt.Sprintf("discord-ipc-%d", i)))
		}
	}
	return paths
}

// isWSL reports whether the process runs under Windows Subsystem for Linux,
// where Discord's pipe is only reachable through a socat relay.
func isWSL() bool {
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(data)), "microsoft")
}

// connectToDiscord returns the first candidate socket that accepts a
// connection.
func connectToDiscord() (net.Conn, error) {
	for _, path := range socketPaths(os.Getenv, os.Getuid()) {
		conn, err := net.DialTimeout("unix", path, defaultTimeout)
		if err == nil {
			return conn, nil
		}
	}
	if isWSL() {
		return nil, fmt.Errorf("%w: under WSL a socat + npiperelay.exe relay to /tmp/discord-ipc-0 is required", ErrIPCNotAvailable)
	}
	return nil, ErrIPCNotAvailable
}
