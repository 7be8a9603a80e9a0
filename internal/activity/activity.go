// Package activity derives the Rich Presence payload from a session record.
package activity

import (
	"time"

	"tools.zach/dev/ccrpc/internal/config"
	"tools.zach/dev/ccrpc/internal/state"
)

// ///////////////////////////////////////////////
// Tool Labels
// ///////////////////////////////////////////////

// toolLabels maps Claude Code tool names to the top line of the card.
var toolLabels = map[string]string{
	"Edit":      "Editing",
	"Write":     "Writing",
	"Read":      "Reading",
	"Bash":      "Running command",
	"Glob":      "Searching files",
	"Grep":      "Searching code",
	"Task":      "Delegating task",
	"WebFetch":  "Fetching web content",
	"WebSearch": "Researching",
}

// Label returns the display label for tool. Entries in overrides win over the
// built-in table; an empty or unknown tool yields fallback.
func Label(tool string, overrides map[string]string, fallback string) string {
	if tool == "" {
		return fallback
	}
	if l, ok := overrides[tool]; ok && l != "" {
		return l
	}
	if l, ok := toolLabels[tool]; ok {
		return l
	}
	return fallback
}

// ///////////////////////////////////////////////
// Payload
// ///////////////////////////////////////////////

// Payload is the presence content published for a session.
type Payload struct {
	// Details is the top line, the tool label.
	Details string
	// State is the bottom line, the formatted project line.
	State string
	// Project is the project name the State line was built from.
	Project string
	// Start is the epoch second shown as elapsed time.
	Start int64
	// LargeImage is the asset key of the large image.
	LargeImage string
	// LargeText is the tooltip of the large image.
	LargeText string
}

// Key identifies a payload for change detection. Two payloads with the same
// key are not re-published.
type Key struct {
	Details string
	Project string
}

// Key returns the change-detection key of p.
func (p Payload) Key() Key {
	return Key{Details: p.Details, Project: p.Project}
}

// Build derives the payload for rec. A missing project falls back to the
// configured default and a missing session start to now.
func Build(rec state.Record, cfg *config.Config, now time.Time) Payload {
	project := rec.Project
	if project == "" {
		project = cfg.Display.DefaultProject
	}
	start := rec.SessionStart
	if start == 0 {
		start = now.Unix()
	}
	return Payload{
		Details:    Label(rec.Tool, cfg.Display.Tools, cfg.Display.DefaultLabel),
		State:      cfg.FormatState(project),
		Project:    project,
		Start:      start,
		LargeImage: cfg.Discord.LargeImage,
		LargeText:  cfg.Discord.LargeText,
	}
}
