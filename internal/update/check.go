// Package update looks for a newer ccrpc release via a JSON manifest whose
// "." key holds the latest stable version.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// maxManifestSize caps the manifest body.
const maxManifestSize = 64 << 10

// Checker fetches release manifests.
type Checker struct {
	client *retryablehttp.Client
	log    *slog.Logger
}

// NewChecker returns a Checker with a short timeout and two retries.
func NewChecker(log *slog.Logger) *Checker {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.HTTPClient.Timeout = 5 * time.Second
	client.Logger = nil
	return &Checker{client: client, log: log}
}

// ///////////////////////////////////////////////
// Public API
// ///////////////////////////////////////////////

// Check logs a notice when the manifest at url names a version newer than
// current and reports whether it did. Failures are logged at debug and
// otherwise ignored.
func (c *Checker) Check(ctx context.Context, url, current string) (latest string, newer bool) {
	if url == "" {
		c.log.Debug("skipping version check: no manifest URL configured")
		return "", false
	}
	latest, err := c.Latest(ctx, url)
	if err != nil {
		c.log.Debug("version check failed", "error", err)
		return "", false
	}
	if latest == "" || latest == current {
		return latest, false
	}
	if Less(current, latest) {
		c.log.Info("new version available", "current", current, "latest", latest)
		return latest, true
	}
	return latest, false
}

// Latest downloads the manifest and returns its "." entry.
func (c *Checker) Latest(ctx context.Context, url string) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize))
	if err != nil {
		return "", fmt.Errorf("reading manifest: %w", err)
	}
	var manifest map[string]string
	if err := json.Unmarshal(body, &manifest); err != nil {
		return "", fmt.Errorf("parsing manifest: %w", err)
	}
	return manifest["."], nil
}

// ///////////////////////////////////////////////
// Versions
// ///////////////////////////////////////////////

// version is a parsed MAJOR.MINOR.PATCH with a pre-release flag.
type version struct {
	parts [3]int
	pre   bool
}

// parseVersion accepts "1.2.3", "v1.2.3", "1.2.3-rc.1" and "1.2.3+build".
func parseVersion(s string) (version, bool) {
	s = strings.TrimPrefix(s, "v")
	var v version
	if i := strings.IndexAny(s, "-+"); i >= 0 {
		v.pre = s[i] == '-'
		s = s[:i]
	}
	fields := strings.Split(s, ".")
	if len(fields) != 3 {
		return version{}, false
	}
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return version{}, false
		}
		v.parts[i] = n
	}
	return v, true
}

// Less reports whether version a sorts before b. A pre-release sorts before
// the release with the same numbers; unparseable versions never compare
// less.
func Less(a, b string) bool {
	va, okA := parseVersion(a)
	vb, okB := parseVersion(b)
	if !okA || !okB {
		return false
	}
	for i := range va.parts {
		if va.parts[i] != vb.parts[i] {
			return va.parts[i] < vb.parts[i]
		}
	}
	return va.pre && !vb.pre
}
