// Package discord is a minimal client for Discord's local Rich Presence IPC
// socket. It supports the handshake and SET_ACTIVITY only.
//
// Platform-specific socket discovery lives in conn_unix.go and
// conn_windows.go.
package discord

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"
)

// ///////////////////////////////////////////////
// Sentinel Errors
// ///////////////////////////////////////////////

// ErrNotConnected is returned when an operation requires an active connection.
var ErrNotConnected = errors.New("not connected")

// ErrClosedByPeer is returned when Discord closes the session.
var ErrClosedByPeer = errors.New("connection closed by discord")

// defaultTimeout bounds every round trip on the socket.
const defaultTimeout = 5 * time.Second

// ///////////////////////////////////////////////
// Data Types
// ///////////////////////////////////////////////

// Timestamps holds the start timestamp for an activity.
type Timestamps struct {
	Start int64 `json:"start,omitempty"`
}

// Assets holds image keys and tooltip text for an activity.
type Assets struct {
	LargeImage string `json:"large_image,omitempty"`
	LargeText  string `json:"large_text,omitempty"`
}

// Activity is the Rich Presence card.
type Activity struct {
	Details    string      `json:"details,omitempty"`
	State      string      `json:"state,omitempty"`
	Timestamps *Timestamps `json:"timestamps,omitempty"`
	Assets     *Assets     `json:"assets,omitempty"`
}

// ///////////////////////////////////////////////
// Client
// ///////////////////////////////////////////////

// Client manages a connection to Discord's IPC socket. A failed read or
// write drops the connection, so [Client.Connected] reflects whether the
// last round trip succeeded.
type Client struct {
	// appID is the Discord application (OAuth2 client) identifier.
	appID string
	// dial opens the socket; connectToDiscord outside tests.
	dial func() (net.Conn, error)
	// timeout is the deadline applied to each round trip.
	timeout time.Duration

	// mu protects conn and nonce.
	mu sync.Mutex
	// conn is the active connection, or nil when disconnected.
	conn net.Conn
	// nonce tags each command frame.
	nonce uint64
	// shown is true while an acknowledged activity is on the card.
	shown bool
}

// NewClient creates a Discord IPC client for the given application ID.
func NewClient(appID string) *Client {
	return &Client{
		appID:   appID,
		dial:    connectToDiscord,
		timeout: defaultTimeout,
	}
}

// Connect dials Discord and performs the handshake, replacing any existing
// connection.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dropLocked()

	conn, err := c.dial()
	if err != nil {
		return err
	}
	c.conn = conn

	if err := c.handshake(); err != nil {
		c.dropLocked()
		return err
	}
	return nil
}

// SetActivity publishes activity for this process.
func (c *Client) SetActivity(activity *Activity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setActivityLocked(activity)
}

// ClearActivity removes this process's activity.
func (c *Client) ClearActivity() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setActivityLocked(nil)
}

// Close closes the socket. An activity still on the card is cleared first on
// a best-effort basis.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	if c.shown {
		_ = c.setActivityLocked(nil)
		if c.conn == nil {
			return nil
		}
	}
	err := c.conn.Close()
	c.conn = nil
	c.shown = false
	return err
}

// dropLocked closes and forgets the connection. The caller must hold c.mu.
func (c *Client) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.shown = false
}

// handshake sends the handshake frame and waits for READY. The caller must
// hold c.mu.
func (c *Client) handshake() error {
	c.conn.SetDeadline(time.Now().Add(c.timeout))
	defer c.conn.SetDeadline(time.Time{})

	hello := map[string]any{"v": 1, "client_id": c.appID}
	if err := writeJSON(c.conn, OpHandshake, hello); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	resp, err := readResponse(c.conn)
	if err != nil {
		return fmt.Errorf("reading handshake response: %w", err)
	}
	if resp.Evt == "ERROR" {
		return fmt.Errorf("handshake rejected: %s", resp.Data.Message)
	}
	return nil
}

// setActivityLocked sends SET_ACTIVITY and waits for the acknowledgement.
// Any I/O failure drops the connection. The caller must hold c.mu.
func (c *Client) setActivityLocked(activity *Activity) error {
	if c.conn == nil {
		return ErrNotConnected
	}

	c.nonce++
	cmd := map[string]any{
		"cmd": "SET_ACTIVITY",
		"args": map[string]any{
			"pid":      os.Getpid(),
			"activity": activity,
		},
		"nonce": strconv.FormatUint(c.nonce, 10),
	}

	c.conn.SetDeadline(time.Now().Add(c.timeout))
	if err := writeJSON(c.conn, OpFrame, cmd); err != nil {
		c.dropLocked()
		return fmt.Errorf("set activity: %w", err)
	}
	resp, err := readResponse(c.conn)
	if err != nil {
		c.dropLocked()
		return fmt.Errorf("set activity response: %w", err)
	}
	c.conn.SetDeadline(time.Time{})

	if resp.Evt == "ERROR" {
		return fmt.Errorf("set activity rejected (%d): %s", resp.Data.Code, resp.Data.Message)
	}
	c.shown = activity != nil
	return nil
}
