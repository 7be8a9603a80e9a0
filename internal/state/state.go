// Package state persists the current Claude Code session snapshot.
//
// The snapshot is a single JSON object in state.json. Hooks mutate it, the
// daemon reads it once per poll. There is no locking: writes are atomic
// renames and the last writer wins. A missing or unparseable file reads as
// the empty [Record].
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"tools.zach/dev/ccrpc/internal/atomicfile"
)

// ErrNoState is returned by [Store.Read] when the state file does not exist.
var ErrNoState = errors.New("no state file")

// ///////////////////////////////////////////////
// Record Types
// ///////////////////////////////////////////////

// Tokens is the token and cost summary reported by the statusline.
type Tokens struct {
	Input      int64   `json:"input"`
	Output     int64   `json:"output"`
	CacheRead  int64   `json:"cache_read"`
	CacheWrite int64   `json:"cache_write"`
	Cost       float64 `json:"cost"`
	// SimpleCost is a fixed-rate estimate kept for display only.
	SimpleCost float64 `json:"simple_cost"`
}

// Total returns input plus output tokens.
func (t *Tokens) Total() int64 {
	if t == nil {
		return 0
	}
	return t.Input + t.Output
}

// Record is the session snapshot stored in state.json. The zero value is the
// empty record and serializes as {}.
type Record struct {
	// SessionStart is the epoch second the session began. Set once per session.
	SessionStart int64 `json:"session_start,omitempty"`
	// Project is the display name derived from the working directory.
	Project string `json:"project,omitempty"`
	// Tool is the most recent tool name; empty means generic working.
	Tool string `json:"tool,omitempty"`
	// LastUpdate is the epoch second of the latest hook mutation.
	LastUpdate int64 `json:"last_update,omitempty"`
	// Model is the display name of the active model.
	Model string `json:"model,omitempty"`
	// ModelID is the API identifier of the active model.
	ModelID string `json:"model_id,omitempty"`
	// Tokens is the latest token summary, nil until the statusline reports.
	Tokens *Tokens `json:"tokens,omitempty"`
	// StatuslineUpdate is the epoch second of the latest token refresh.
	StatuslineUpdate int64 `json:"statusline_update,omitempty"`
	// CWD is the full working directory of the session.
	CWD string `json:"cwd,omitempty"`
}

// Empty reports whether r carries no active session.
func (r Record) Empty() bool {
	return r == Record{}
}

// ///////////////////////////////////////////////
// Store
// ///////////////////////////////////////////////

// Store reads and writes the state file at a fixed path.
type Store struct {
	path string
}

// NewStore returns a Store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}

// Read returns the stored record. On any failure it returns the empty record
// together with an error describing why; callers treat that as no session.
func (s *Store) Read() (Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, ErrNoState
		}
		return Record{}, fmt.Errorf("reading state: %w", err)
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("parsing state: %w", err)
	}
	return r, nil
}

// Write replaces the state file with r, creating the directory if needed.
func (s *Store) Write(r Record) error {
	if err := atomicfile.WriteJSON(s.path, r, 0o644); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	return nil
}

// Clear writes the empty record.
func (s *Store) Clear() error {
	return s.Write(Record{})
}
