// Package statusline handles Claude Code's statusline callback. Each call
// carries the running model and token totals; they are merged into the
// active session and echoed back as a one-line summary.
package statusline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"tools.zach/dev/ccrpc/internal/state"
)

// Estimated per-million token rates used for the display-only simple cost.
const (
	simpleInputRate  = 4.0
	simpleOutputRate = 12.0
)

// ///////////////////////////////////////////////
// Input
// ///////////////////////////////////////////////

// Input is the subset of the statusline JSON this package reads. Missing
// fields decode as zero.
type Input struct {
	Model struct {
		DisplayName string `json:"display_name"`
		ID          string `json:"id"`
	} `json:"model"`
	Cost struct {
		TotalCostUSD float64 `json:"total_cost_usd"`
	} `json:"cost"`
	ContextWindow struct {
		TotalInputTokens  int64 `json:"total_input_tokens"`
		TotalOutputTokens int64 `json:"total_output_tokens"`
		CurrentUsage      struct {
			CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
			CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
		} `json:"current_usage"`
	} `json:"context_window"`
}

// Parse decodes statusline JSON.
func Parse(data []byte) (Input, error) {
	var in Input
	if err := json.Unmarshal(data, &in); err != nil {
		return Input{}, fmt.Errorf("parsing statusline input: %w", err)
	}
	return in, nil
}

// Tokens converts the input into the stored token summary.
func (in Input) Tokens() *state.Tokens {
	cw := in.ContextWindow
	return &state.Tokens{
		Input:      cw.TotalInputTokens,
		Output:     cw.TotalOutputTokens,
		CacheRead:  cw.CurrentUsage.CacheReadInputTokens,
		CacheWrite: cw.CurrentUsage.CacheCreationInputTokens,
		Cost:       in.Cost.TotalCostUSD,
		SimpleCost: SimpleCost(cw.TotalInputTokens, cw.TotalOutputTokens),
	}
}

// SimpleCost estimates cost from fixed mid-tier rates.
func SimpleCost(input, output int64) float64 {
	return (float64(input)*simpleInputRate + float64(output)*simpleOutputRate) / 1_000_000
}

// ///////////////////////////////////////////////
// Merge
// ///////////////////////////////////////////////

// Merge folds in into rec. An empty rec has no session to attach to and is
// returned unchanged with ok false.
func Merge(rec state.Record, in Input, now time.Time) (merged state.Record, ok bool) {
	if rec.Empty() {
		return rec, false
	}
	if in.Model.DisplayName != "" {
		rec.Model = in.Model.DisplayName
	}
	if in.Model.ID != "" {
		rec.ModelID = in.Model.ID
	}
	rec.Tokens = in.Tokens()
	rec.StatuslineUpdate = now.Unix()
	return rec, true
}

// ///////////////////////////////////////////////
// Formatting
// ///////////////////////////////////////////////

// FormatTokens renders a count as 12.5k or 1.2M.
func FormatTokens(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

// FormatCost renders dollars with two decimals, or three below one cent.
func FormatCost(c float64) string {
	if c >= 0.01 {
		return fmt.Sprintf("$%.2f", c)
	}
	return fmt.Sprintf("$%.3f", c)
}

// Line returns the statusline text for in.
func Line(in Input) string {
	total := in.ContextWindow.TotalInputTokens + in.ContextWindow.TotalOutputTokens
	switch {
	case total > 0:
		return fmt.Sprintf("[%s] %s | %s", in.Model.DisplayName, FormatTokens(total), FormatCost(in.Cost.TotalCostUSD))
	case in.Model.DisplayName != "":
		return fmt.Sprintf("[%s]", in.Model.DisplayName)
	default:
		return ""
	}
}

// ///////////////////////////////////////////////
// Handler
// ///////////////////////////////////////////////

// Store is the part of the state store the handler needs.
type Store interface {
	Read() (state.Record, error)
	Write(state.Record) error
}

// Run reads one statusline payload from r, merges it into the session held
// by store and writes the summary line to w. Malformed input prints an empty
// line and leaves the state alone.
func Run(r io.Reader, w io.Writer, store Store, now time.Time, log *slog.Logger) error {
	data, err := io.ReadAll(r)
	if err != nil {
		log.Debug("reading statusline input failed", "error", err)
		_, werr := fmt.Fprintln(w)
		return werr
	}
	in, err := Parse(data)
	if err != nil {
		log.Debug("ignoring statusline input", "error", err)
		_, werr := fmt.Fprintln(w)
		return werr
	}

	rec, err := store.Read()
	if err != nil && !errors.Is(err, state.ErrNoState) {
		log.Debug("state unreadable, treating as empty", "error", err)
	}
	if merged, ok := Merge(rec, in, now); ok {
		if err := store.Write(merged); err != nil {
			log.Warn("could not write state", "error", err)
		}
	}

	_, err = fmt.Fprintln(w, Line(in))
	return err
}
